package service

import (
	"encoding/json"
	"fmt"

	"anoa.com/lostfound/internal/entity"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Payload is the typed metadata attached to a notification. Each kind of
// notification has exactly one payload type.
type Payload interface {
	Kind() entity.NotificationType
}

type MatchFound struct {
	MatchedItemID  uuid.UUID `json:"matched_item_id"`
	OriginalItemID uuid.UUID `json:"original_item_id"`
	Score          float64   `json:"score"`
	MatchType      string    `json:"match_type"` // auto or manual
}

func (MatchFound) Kind() entity.NotificationType { return entity.NotificationMatchFound }

type ChatStarted struct {
	ConversationID string    `json:"conversation_id"`
	ItemID         uuid.UUID `json:"item_id"`
}

func (ChatStarted) Kind() entity.NotificationType { return entity.NotificationChatStarted }

type MessageReceived struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
}

func (MessageReceived) Kind() entity.NotificationType { return entity.NotificationMessageReceived }

type ItemResolved struct {
	ConversationID string `json:"conversation_id"`
	ItemReturned   bool   `json:"item_returned"`
}

func (ItemResolved) Kind() entity.NotificationType { return entity.NotificationItemResolved }

func encodePayload(p Payload) (datatypes.JSON, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

// DecodePayload turns stored metadata back into the payload type for kind.
func DecodePayload(kind entity.NotificationType, raw datatypes.JSON) (Payload, error) {
	var p Payload
	switch kind {
	case entity.NotificationMatchFound:
		p = &MatchFound{}
	case entity.NotificationChatStarted:
		p = &ChatStarted{}
	case entity.NotificationMessageReceived:
		p = &MessageReceived{}
	case entity.NotificationItemResolved:
		p = &ItemResolved{}
	default:
		return nil, fmt.Errorf("unknown notification kind %q", kind)
	}

	if len(raw) > 0 {
		if err := json.Unmarshal(raw, p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", kind, err)
		}
	}
	return p, nil
}
