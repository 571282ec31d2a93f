package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type NotificationType string

const (
	NotificationMatchFound      NotificationType = "match_found"
	NotificationMessageReceived NotificationType = "message_received"
	NotificationItemResolved    NotificationType = "item_resolved"
	NotificationChatStarted     NotificationType = "chat_started"
)

type Notification struct {
	ID        uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID        `gorm:"type:uuid;not null;index:idx_notifications_user,priority:1" json:"user_id"` // recipient
	Type      NotificationType `gorm:"size:30;not null" json:"type"`
	Title     string           `gorm:"size:200;not null" json:"title"`
	Message   string           `gorm:"type:text;not null" json:"message"`
	ItemID    *uuid.UUID       `gorm:"type:uuid;index" json:"item_id,omitempty"`
	SenderID  *uuid.UUID       `gorm:"type:uuid" json:"sender_id,omitempty"`
	IsRead    bool             `gorm:"default:false;index:idx_notifications_user,priority:2" json:"is_read"`
	Metadata  datatypes.JSON   `gorm:"type:jsonb" json:"metadata"`
	CreatedAt time.Time        `gorm:"autoCreateTime;index:idx_notifications_user,priority:3" json:"created_at"`

	Item   *Item `gorm:"foreignKey:ItemID;constraint:OnDelete:CASCADE" json:"-"`
	Sender *User `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
}

func (n *Notification) BeforeCreate(tx *gorm.DB) (err error) {
	if n.ID == uuid.Nil {
		n.ID, err = uuid.NewV7()
	}
	return
}
