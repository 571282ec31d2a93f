package handler

import (
	"log"
	"net/http"

	"anoa.com/lostfound/internal/entity"
	notifDto "anoa.com/lostfound/internal/modules/notification/dto"
	notifService "anoa.com/lostfound/internal/modules/notification/service"
	"anoa.com/lostfound/internal/realtime"
	"anoa.com/lostfound/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type NotificationHandler struct {
	service  notifService.NotificationService
	broker   realtime.Broker
	upgrader websocket.Upgrader
}

func NewNotificationHandler(service notifService.NotificationService, broker realtime.Broker) *NotificationHandler {
	return &NotificationHandler{
		service:  service,
		broker:   broker,
		upgrader: realtime.NewUpgrader(),
	}
}

func toResponse(n entity.Notification) notifDto.NotificationResponse {
	res := notifDto.NotificationResponse{
		ID:        n.ID,
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		ItemID:    n.ItemID,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt,
	}
	if n.Sender != nil {
		res.Sender = &notifDto.SenderResponse{
			ID:        n.Sender.ID,
			Name:      n.Sender.Name,
			AvatarURL: n.Sender.AvatarURL,
		}
	}
	if payload, err := notifService.DecodePayload(n.Type, n.Metadata); err == nil {
		res.Payload = payload
	} else {
		log.Printf("notification %s has unreadable payload: %v", n.ID, err)
	}
	return res
}

func (h *NotificationHandler) GetNotifications(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	page, limit := response.Pagination(c, 20, 100)
	notifications, err := h.service.GetNotifications(c.Request.Context(), userID, limit, (page-1)*limit)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	data := make([]notifDto.NotificationResponse, 0, len(notifications))
	for _, n := range notifications {
		data = append(data, toResponse(n))
	}

	c.JSON(http.StatusOK, notifDto.NotificationListResponse{Data: data, Page: page, Limit: limit})
}

func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification id"})
		return
	}

	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	if err := h.service.MarkAsRead(c.Request.Context(), id, userID); err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Marked as read"})
}

func (h *NotificationHandler) MarkAllAsRead(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	if err := h.service.MarkAllAsRead(c.Request.Context(), userID); err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "All notifications marked as read"})
}

func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	count, err := h.service.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": count})
}

func (h *NotificationHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification id"})
		return
	}

	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	if err := h.service.Delete(c.Request.Context(), id, userID); err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Notification deleted"})
}

func (h *NotificationHandler) HandleWebSocket(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	if h.broker == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "live updates are unavailable"})
		return
	}

	sub, err := h.broker.Subscribe(c.Request.Context(), realtime.NotificationChannel(userID))
	if err != nil {
		log.Printf("Failed to subscribe to notifications for %s: %v", userID, err)
		response.ResponseError(c, err)
		return
	}
	defer sub.Close()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Failed to upgrade websocket: %v", err)
		return
	}
	defer conn.Close()

	realtime.Pump(c.Request.Context(), conn, sub, nil)
}
