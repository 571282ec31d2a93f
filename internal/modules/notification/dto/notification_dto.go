package dto

import (
	"time"

	"anoa.com/lostfound/internal/entity"
	"github.com/google/uuid"
)

type SenderResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	AvatarURL *string   `json:"avatar_url,omitempty"`
}

type NotificationResponse struct {
	ID        uuid.UUID               `json:"id"`
	Type      entity.NotificationType `json:"type"`
	Title     string                  `json:"title"`
	Message   string                  `json:"message"`
	ItemID    *uuid.UUID              `json:"item_id,omitempty"`
	Sender    *SenderResponse         `json:"sender,omitempty"`
	IsRead    bool                    `json:"is_read"`
	Payload   interface{}             `json:"payload,omitempty"`
	CreatedAt time.Time               `json:"created_at"`
}

type NotificationListResponse struct {
	Data  []NotificationResponse `json:"data"`
	Page  int                    `json:"page"`
	Limit int                    `json:"limit"`
}
