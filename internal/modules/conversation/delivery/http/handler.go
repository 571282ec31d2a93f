package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	convDto "anoa.com/lostfound/internal/modules/conversation/dto"
	conversation "anoa.com/lostfound/internal/modules/conversation/service"
	"anoa.com/lostfound/internal/realtime"
	"anoa.com/lostfound/pkg/apperror"
	"anoa.com/lostfound/pkg/response"
	"anoa.com/lostfound/pkg/validator"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const maxAttachmentSize = 10 << 20

type ChatHandler struct {
	service  conversation.ConversationService
	broker   realtime.Broker
	upgrader websocket.Upgrader
}

func NewChatHandler(service conversation.ConversationService, broker realtime.Broker) *ChatHandler {
	return &ChatHandler{
		service:  service,
		broker:   broker,
		upgrader: realtime.NewUpgrader(),
	}
}

func (h *ChatHandler) ListChats(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	chats, err := h.service.ListConversations(c.Request.Context(), userID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": chats})
}

func (h *ChatHandler) StartChat(c *gin.Context) {
	var req convDto.StartChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
		return
	}

	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	result, err := h.service.StartDirect(c.Request.Context(), uuid.MustParse(req.ItemID), userID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	c.JSON(status, result)
}

func (h *ChatHandler) GetHistory(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	history, err := h.service.FetchHistory(c.Request.Context(), c.Param("conversation_id"), userID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, history)
}

func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req convDto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
		return
	}

	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	msg, err := h.service.SendMessage(c.Request.Context(), c.Param("conversation_id"), userID, req.Text)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusCreated, msg)
}

func (h *ChatHandler) SendAttachment(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if header.Size > maxAttachmentSize {
		response.ResponseError(c, apperror.New(http.StatusRequestEntityTooLarge, fmt.Sprintf("file must be at most %d MB", maxAttachmentSize>>20), nil))
		return
	}

	file, err := header.Open()
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	defer file.Close()

	msg, err := h.service.SendAttachment(c.Request.Context(), c.Param("conversation_id"), userID, file, header.Filename)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusCreated, msg)
}

func (h *ChatHandler) MarkRead(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	if err := h.service.MarkRead(c.Request.Context(), c.Param("conversation_id"), userID); err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Marked as read"})
}

func (h *ChatHandler) Resolve(c *gin.Context) {
	var req convDto.ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
		return
	}

	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	if err := h.service.Resolve(c.Request.Context(), c.Param("conversation_id"), userID, req.Notes, req.ItemReturned); err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Conversation resolved"})
}

func (h *ChatHandler) Close(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	if err := h.service.Close(c.Request.Context(), c.Param("conversation_id"), userID); err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Conversation closed"})
}

// HandleWebSocket streams conversation events to a participant and relays its
// typing signals. Presence is announced on connect and disconnect.
func (h *ChatHandler) HandleWebSocket(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	conversationID := c.Param("conversation_id")
	participant, err := h.service.Join(c.Request.Context(), conversationID, userID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	if h.broker == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "live updates are unavailable"})
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	sub, err := h.broker.Subscribe(ctx, realtime.ConversationChannel(conversationID))
	if err != nil {
		log.Printf("Failed to subscribe to conversation %s: %v", conversationID, err)
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

	_ = h.service.Presence(ctx, conversationID, participant, true)
	defer func() {
		_ = h.service.Presence(context.Background(), conversationID, participant, false)
	}()

	realtime.Pump(ctx, conn, sub, func(frame []byte) {
		var event convDto.ClientEvent
		if err := json.Unmarshal(frame, &event); err != nil {
			return
		}
		err := h.service.Signal(ctx, conversationID, userID, event.Type)
		switch {
		case errors.Is(err, apperror.ErrForbidden):
			// resolved or closed while connected
			cancel()
		case err != nil:
			log.Printf("Ignoring websocket frame from %s: %v", userID, err)
		}
	})
}
