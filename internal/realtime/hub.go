package realtime

import (
	"context"
	"log"
	"sync"
)

const subscriberBuffer = 64

type subscriber struct {
	channel string
	send    chan []byte
}

// LocalHub is an in-process Broker. It serves single-instance deployments
// without redis and stands in for redis in tests.
type LocalHub struct {
	mu       sync.RWMutex
	channels map[string]map[*subscriber]struct{}
}

func NewLocalHub() *LocalHub {
	return &LocalHub{
		channels: make(map[string]map[*subscriber]struct{}),
	}
}

// Publish never blocks; a subscriber whose buffer is full misses the payload.
func (h *LocalHub) Publish(ctx context.Context, channel string, data []byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.channels[channel] {
		select {
		case sub.send <- data:
		default:
			log.Printf("realtime: subscriber buffer full on %s, dropping event", channel)
		}
	}
	return nil
}

func (h *LocalHub) Subscribe(ctx context.Context, channel string) (*Subscription, error) {
	sub := &subscriber{
		channel: channel,
		send:    make(chan []byte, subscriberBuffer),
	}

	h.mu.Lock()
	if h.channels[channel] == nil {
		h.channels[channel] = make(map[*subscriber]struct{})
	}
	h.channels[channel][sub] = struct{}{}
	h.mu.Unlock()

	s := newSubscription(sub.send, func() { h.unsubscribe(sub) })
	go func() {
		<-ctx.Done()
		s.Close()
	}()
	return s, nil
}

func (h *LocalHub) unsubscribe(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subs, ok := h.channels[sub.channel]; ok {
		if _, exists := subs[sub]; exists {
			delete(subs, sub)
			close(sub.send)
		}
		if len(subs) == 0 {
			delete(h.channels, sub.channel)
		}
	}
}

func (h *LocalHub) subscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}
