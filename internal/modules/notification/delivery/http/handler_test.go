package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"anoa.com/lostfound/internal/entity"
	notifDto "anoa.com/lostfound/internal/modules/notification/dto"
	notifService "anoa.com/lostfound/internal/modules/notification/service"
	"anoa.com/lostfound/internal/testutil/memstore"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (notifService.NotificationService, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memstore.New()
	svc := notifService.NewNotificationService(store.Notifications(), nil)
	h := NewNotificationHandler(svc, nil)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("user_id", c.GetHeader("X-User"))
		c.Next()
	})
	r.GET("/notifications", h.GetNotifications)
	r.GET("/notifications/unread-count", h.UnreadCount)
	r.PUT("/notifications/:id/read", h.MarkAsRead)
	r.PUT("/notifications/read-all", h.MarkAllAsRead)
	r.DELETE("/notifications/:id", h.Delete)
	r.GET("/notifications/ws", h.HandleWebSocket)
	return svc, r
}

func call(r *gin.Engine, method, path string, userID uuid.UUID) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("X-User", userID.String())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestNotificationInbox(t *testing.T) {
	svc, r := setup(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	first, err := svc.Emit(ctx, notifService.Emission{
		UserID:  alice,
		Title:   "Chat Started",
		Body:    "You started a chat",
		Payload: notifService.ChatStarted{ConversationID: "chat_1"},
	})
	require.NoError(t, err)
	_, err = svc.Emit(ctx, notifService.Emission{UserID: alice, Title: "Hello", Payload: notifService.MessageReceived{ConversationID: "chat_1", MessageID: "msg_1"}})
	require.NoError(t, err)

	w := call(r, http.MethodGet, "/notifications?limit=1&page=2", alice)
	require.Equal(t, http.StatusOK, w.Code)
	var list notifDto.NotificationListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Equal(t, 2, list.Page)
	require.Len(t, list.Data, 1)
	require.Equal(t, first.ID, list.Data[0].ID)
	require.Equal(t, entity.NotificationChatStarted, list.Data[0].Type)
	require.Equal(t, "chat_1", list.Data[0].Payload.(map[string]interface{})["conversation_id"])

	w = call(r, http.MethodGet, "/notifications/unread-count", alice)
	require.JSONEq(t, `{"count":2}`, w.Body.String())

	require.Equal(t, http.StatusForbidden, call(r, http.MethodPut, "/notifications/"+first.ID.String()+"/read", bob).Code)
	require.Equal(t, http.StatusBadRequest, call(r, http.MethodPut, "/notifications/nope/read", alice).Code)
	require.Equal(t, http.StatusOK, call(r, http.MethodPut, "/notifications/"+first.ID.String()+"/read", alice).Code)
	require.JSONEq(t, `{"count":1}`, call(r, http.MethodGet, "/notifications/unread-count", alice).Body.String())

	require.Equal(t, http.StatusOK, call(r, http.MethodPut, "/notifications/read-all", alice).Code)
	require.JSONEq(t, `{"count":0}`, call(r, http.MethodGet, "/notifications/unread-count", alice).Body.String())

	require.Equal(t, http.StatusNotFound, call(r, http.MethodDelete, "/notifications/"+uuid.NewString(), alice).Code)
	require.Equal(t, http.StatusOK, call(r, http.MethodDelete, "/notifications/"+first.ID.String(), alice).Code)
}

func TestWebSocketWithoutBroker(t *testing.T) {
	_, r := setup(t)
	require.Equal(t, http.StatusServiceUnavailable, call(r, http.MethodGet, "/notifications/ws", uuid.New()).Code)
}
