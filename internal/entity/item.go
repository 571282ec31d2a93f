package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ItemType string

const (
	ItemTypeLost  ItemType = "lost"
	ItemTypeFound ItemType = "found"
)

// Opposite returns the type an item of this type is matched against.
func (t ItemType) Opposite() ItemType {
	if t == ItemTypeLost {
		return ItemTypeFound
	}
	return ItemTypeLost
}

type ItemStatus string

const (
	ItemStatusActive          ItemStatus = "active"
	ItemStatusClaimed         ItemStatus = "claimed"
	ItemStatusResolved        ItemStatus = "resolved"
	ItemStatusPendingApproval ItemStatus = "pending_approval"
)

// CategoryOther is the catch-all category; candidates for it are not filtered by category.
const CategoryOther = "other"

// Item is owned by the item CRUD service. This module only reads it and appends match links.
type Item struct {
	ID             uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	Type           ItemType    `gorm:"size:10;not null;index:idx_items_lookup,priority:2" json:"type"`
	Category       string      `gorm:"size:50;not null;index:idx_items_lookup,priority:1" json:"category"`
	Title          string      `gorm:"size:200;not null" json:"title"`
	Description    string      `gorm:"type:text" json:"description"`
	Location       string      `gorm:"size:255;not null" json:"location"`
	Latitude       *float64    `json:"latitude,omitempty"`
	Longitude      *float64    `json:"longitude,omitempty"`
	Date           time.Time   `gorm:"not null;index" json:"date"`
	Status         ItemStatus  `gorm:"size:20;not null;default:active;index:idx_items_lookup,priority:3" json:"status"`
	OwnerID        uuid.UUID   `gorm:"type:uuid;not null;index" json:"owner_id"`
	Owner          *User       `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`
	MatchScore     float64     `gorm:"default:0" json:"match_score"`
	MatchLinks     []MatchLink `gorm:"foreignKey:ItemID;constraint:OnDelete:CASCADE" json:"match_links"`
	IsPublic       bool        `gorm:"default:true" json:"is_public"`
	AdminNotes     string      `gorm:"type:text" json:"admin_notes,omitempty"`
	ResolutionDate *time.Time  `json:"resolution_date,omitempty"`
	CreatedAt      time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

func (i *Item) BeforeCreate(tx *gorm.DB) (err error) {
	if i.ID == uuid.Nil {
		i.ID, err = uuid.NewV7()
	}
	return
}

// HasMatchWith reports whether a link to the given item is already stored.
// Link counts per item stay small (top-N per run), so a scan is enough.
func (i *Item) HasMatchWith(itemID uuid.UUID) bool {
	for _, link := range i.MatchLinks {
		if link.MatchedItemID == itemID {
			return true
		}
	}
	return false
}

// MatchLink is one direction of a symmetric match. The pipeline always writes both directions.
type MatchLink struct {
	ID            uint      `gorm:"primaryKey" json:"-"`
	ItemID        uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_match_pair,priority:1" json:"item_id"`
	MatchedItemID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_match_pair,priority:2" json:"matched_item_id"`
	MatchedItem   *Item     `gorm:"foreignKey:MatchedItemID;constraint:OnDelete:CASCADE" json:"matched_item,omitempty"`
	Score         float64   `gorm:"not null" json:"score"`
	MatchedAt     time.Time `gorm:"not null" json:"matched_at"`
}
