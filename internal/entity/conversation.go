package entity

import (
	"time"

	"github.com/google/uuid"
)

type ConversationStatus string

const (
	ConversationStatusActive   ConversationStatus = "active"
	ConversationStatusResolved ConversationStatus = "resolved"
	ConversationStatusClosed   ConversationStatus = "closed"
	// ConversationStatusArchived is not reachable by any current transition.
	ConversationStatusArchived ConversationStatus = "archived"
)

type ParticipantRole string

const (
	ParticipantRoleOwner   ParticipantRole = "owner"
	ParticipantRoleFinder  ParticipantRole = "finder"
	ParticipantRoleClaimer ParticipantRole = "claimer"
)

type Conversation struct {
	ID             string             `gorm:"size:64;primaryKey" json:"conversation_id"`
	ItemID         uuid.UUID          `gorm:"type:uuid;not null;index" json:"item_id"`
	Item           *Item              `gorm:"foreignKey:ItemID;constraint:OnDelete:CASCADE" json:"item,omitempty"`
	Participants   []Participant      `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE" json:"participants"`
	Status         ConversationStatus `gorm:"size:20;not null;default:active;index:idx_conversations_activity,priority:1" json:"status"`
	LastActivityAt time.Time          `gorm:"not null;index:idx_conversations_activity,priority:2" json:"last_activity_at"`
	TotalMessages  int                `gorm:"default:0" json:"total_messages"`
	UnreadCount    int                `gorm:"default:0" json:"unread_count"`

	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy      *uuid.UUID `gorm:"type:uuid" json:"resolved_by,omitempty"`
	ResolutionNotes string     `gorm:"type:text" json:"resolution_notes,omitempty"`
	ItemReturned    bool       `gorm:"default:false" json:"item_returned"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Participant returns the entry for userID, or nil when the user is not part of the conversation.
func (c *Conversation) Participant(userID uuid.UUID) *Participant {
	for i := range c.Participants {
		if c.Participants[i].UserID == userID {
			return &c.Participants[i]
		}
	}
	return nil
}

// Other returns the first participant that is not userID.
func (c *Conversation) Other(userID uuid.UUID) *Participant {
	for i := range c.Participants {
		if c.Participants[i].UserID != userID {
			return &c.Participants[i]
		}
	}
	return nil
}

type Participant struct {
	ID             uint            `gorm:"primaryKey" json:"-"`
	ConversationID string          `gorm:"size:64;not null;uniqueIndex:idx_participant_unique,priority:1" json:"-"`
	UserID         uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_participant_unique,priority:2;index" json:"user_id"`
	DisplayName    string          `gorm:"size:100;not null" json:"display_name"`
	Role           ParticipantRole `gorm:"size:20;not null" json:"role"`
	JoinedAt       time.Time       `gorm:"not null" json:"joined_at"`
	IsActive       bool            `gorm:"default:true" json:"is_active"`
	LastSeenAt     time.Time       `json:"last_seen_at"`
}
