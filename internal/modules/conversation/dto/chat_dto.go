package dto

type StartChatRequest struct {
	ItemID string `json:"item_id" binding:"required,uuid"`
}

type SendMessageRequest struct {
	Text string `json:"text" binding:"required,max=1000"`
}

type ResolveRequest struct {
	Notes        string `json:"notes" binding:"omitempty,min=3,max=500"`
	ItemReturned bool   `json:"item_returned"`
}

// ClientEvent is a frame read from a chat websocket. Only signal types are accepted.
type ClientEvent struct {
	Type string `json:"type"`
}
