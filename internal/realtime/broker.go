// Package realtime fans events out to clients subscribed to a named channel.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ItemsCreatedChannel carries ids of freshly created items from the item service.
const ItemsCreatedChannel = "items:created"

func NotificationChannel(userID uuid.UUID) string {
	return fmt.Sprintf("user_notifications:%s", userID.String())
}

func ConversationChannel(conversationID string) string {
	return fmt.Sprintf("conversation:%s", conversationID)
}

// Broker publishes payloads to channels and hands out subscriptions to them.
type Broker interface {
	Publish(ctx context.Context, channel string, data []byte) error
	Subscribe(ctx context.Context, channel string) (*Subscription, error)
}

// Subscription delivers payloads on C until Close is called or the
// subscribing context ends.
type Subscription struct {
	C <-chan []byte

	once    sync.Once
	closeFn func()
}

func newSubscription(c <-chan []byte, closeFn func()) *Subscription {
	return &Subscription{C: c, closeFn: closeFn}
}

func (s *Subscription) Close() {
	s.once.Do(s.closeFn)
}

// PublishJSON marshals v and publishes it on channel.
func PublishJSON(ctx context.Context, b Broker, channel string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Publish(ctx, channel, data)
}
