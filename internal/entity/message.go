package entity

import (
	"time"

	"github.com/google/uuid"
)

type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeSystem MessageType = "system"
	MessageTypeImage  MessageType = "image"
	MessageTypeFile   MessageType = "file"
)

type MessageStatus string

const (
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
)

const MaxMessageLength = 1000

type Message struct {
	ID             string        `gorm:"size:64;primaryKey" json:"message_id"`
	ConversationID string        `gorm:"size:64;not null;index:idx_messages_order,priority:1" json:"conversation_id"`
	SenderID       uuid.UUID     `gorm:"type:uuid;not null;index" json:"sender_id"`
	SenderName     string        `gorm:"size:100;not null" json:"sender_name"`
	Text           string        `gorm:"size:1000;not null" json:"text"`
	Type           MessageType   `gorm:"size:10;not null;default:text" json:"type"`
	Status         MessageStatus `gorm:"size:10;not null;default:sent" json:"status"`
	ReadBy         []MessageRead `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE" json:"read_by"`
	IsEdited       bool          `gorm:"default:false" json:"is_edited"`
	EditedAt       *time.Time    `json:"edited_at,omitempty"`
	IsDeleted      bool          `gorm:"default:false" json:"-"`
	DeletedAt      *time.Time    `json:"-"`
	ReplyTo        *string       `gorm:"size:64" json:"reply_to,omitempty"`
	CreatedAt      time.Time     `gorm:"not null;index:idx_messages_order,priority:2" json:"created_at"`
}

// ReadByUser reports whether userID already has a read receipt on the message.
func (m *Message) ReadByUser(userID uuid.UUID) bool {
	for _, r := range m.ReadBy {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

// MessageRead is a read receipt; at most one per (message, user).
type MessageRead struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	MessageID string    `gorm:"size:64;not null;uniqueIndex:idx_message_read_unique,priority:1" json:"-"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_message_read_unique,priority:2" json:"user_id"`
	ReadAt    time.Time `gorm:"not null" json:"read_at"`
}
