package dto

import (
	"github.com/google/uuid"
)

type ManualMatchRequest struct {
	ItemAID string `json:"item_a_id" binding:"required,uuid"`
	ItemBID string `json:"item_b_id" binding:"required,uuid,nefield=ItemAID"`
}

type ManualMatchResponse struct {
	ItemAID uuid.UUID `json:"item_a_id"`
	ItemBID uuid.UUID `json:"item_b_id"`
	Score   float64   `json:"score"`
	Created bool      `json:"created"`
}

type TriggerResponse struct {
	ItemID uuid.UUID `json:"item_id"`
	Queued bool      `json:"queued"`
}
