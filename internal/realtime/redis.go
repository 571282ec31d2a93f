package realtime

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type redisBroker struct {
	client *redis.Client
}

// NewRedisBroker fans events out across every API instance through redis pub/sub.
func NewRedisBroker(client *redis.Client) Broker {
	return &redisBroker{client: client}
}

func (b *redisBroker) Publish(ctx context.Context, channel string, data []byte) error {
	return b.client.Publish(ctx, channel, data).Err()
}

func (b *redisBroker) Subscribe(ctx context.Context, channel string) (*Subscription, error) {
	pubsub := b.client.Subscribe(ctx, channel)

	// Wait for confirmation that subscription is created
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	out := make(chan []byte, subscriberBuffer)
	done := make(chan struct{})
	s := newSubscription(out, func() { close(done) })

	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				default:
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return s, nil
}
