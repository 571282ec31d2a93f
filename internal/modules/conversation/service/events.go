package conversation

import (
	"time"

	"anoa.com/lostfound/internal/entity"
	"github.com/google/uuid"
)

const (
	EventMessage     = "message"
	EventStatus      = "status"
	EventTyping      = "typing"
	EventStopTyping  = "stop_typing"
	EventUserOnline  = "user_online"
	EventUserOffline = "user_offline"
)

// MessageEvent is pushed to the conversation channel for every stored message.
type MessageEvent struct {
	Type              string               `json:"type"`
	ConversationID    string               `json:"conversation_id"`
	MessageID         string               `json:"message_id"`
	SenderID          uuid.UUID            `json:"sender_id"`
	SenderDisplayName string               `json:"sender_display_name"`
	Text              string               `json:"text"`
	MessageType       entity.MessageType   `json:"message_type"`
	Timestamp         time.Time            `json:"timestamp"`
	Status            entity.MessageStatus `json:"status"`
}

// StatusEvent announces a conversation leaving the active state.
type StatusEvent struct {
	Type           string                    `json:"type"`
	ConversationID string                    `json:"conversation_id"`
	Status         entity.ConversationStatus `json:"status"`
	ChangedBy      uuid.UUID                 `json:"changed_by"`
	Timestamp      time.Time                 `json:"timestamp"`
}

// SignalEvent carries typing and presence hints. Nothing about it is stored.
type SignalEvent struct {
	Type           string    `json:"type"`
	ConversationID string    `json:"conversation_id"`
	UserID         uuid.UUID `json:"user_id"`
	DisplayName    string    `json:"display_name"`
	Timestamp      time.Time `json:"timestamp"`
}

// isClientSignal reports whether a socket client may send kind. Presence is
// published by the server only.
func isClientSignal(kind string) bool {
	return kind == EventTyping || kind == EventStopTyping
}

func newMessageEvent(msg *entity.Message) MessageEvent {
	return MessageEvent{
		Type:              EventMessage,
		ConversationID:    msg.ConversationID,
		MessageID:         msg.ID,
		SenderID:          msg.SenderID,
		SenderDisplayName: msg.SenderName,
		Text:              msg.Text,
		MessageType:       msg.Type,
		Timestamp:         msg.CreatedAt,
		Status:            msg.Status,
	}
}
