package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestLocalHubDeliversToChannelSubscribers(t *testing.T) {
	hub := NewLocalHub()
	ctx := context.Background()

	a, err := hub.Subscribe(ctx, "conversation:chat_1")
	require.NoError(t, err)
	defer a.Close()
	b, err := hub.Subscribe(ctx, "conversation:chat_1")
	require.NoError(t, err)
	defer b.Close()
	other, err := hub.Subscribe(ctx, "conversation:chat_2")
	require.NoError(t, err)
	defer other.Close()

	require.NoError(t, hub.Publish(ctx, "conversation:chat_1", []byte(`{"type":"typing"}`)))

	require.Equal(t, []byte(`{"type":"typing"}`), receive(t, a.C))
	require.Equal(t, []byte(`{"type":"typing"}`), receive(t, b.C))
	select {
	case <-other.C:
		t.Fatal("unexpected delivery on unrelated channel")
	default:
	}
}

func TestLocalHubCloseUnsubscribes(t *testing.T) {
	hub := NewLocalHub()
	channel := NotificationChannel(uuid.New())

	sub, err := hub.Subscribe(context.Background(), channel)
	require.NoError(t, err)
	require.Equal(t, 1, hub.subscriberCount(channel))

	sub.Close()
	sub.Close()
	require.Equal(t, 0, hub.subscriberCount(channel))

	_, open := <-sub.C
	require.False(t, open)
	require.NoError(t, hub.Publish(context.Background(), channel, []byte("late")))
}

func TestLocalHubContextCancelUnsubscribes(t *testing.T) {
	hub := NewLocalHub()
	ctx, cancel := context.WithCancel(context.Background())

	_, err := hub.Subscribe(ctx, "items:created")
	require.NoError(t, err)
	cancel()

	require.Eventually(t, func() bool {
		return hub.subscriberCount("items:created") == 0
	}, time.Second, 10*time.Millisecond)
}

func TestPublishJSON(t *testing.T) {
	hub := NewLocalHub()
	sub, err := hub.Subscribe(context.Background(), "c")
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, PublishJSON(context.Background(), hub, "c", map[string]string{"k": "v"}))
	require.JSONEq(t, `{"k":"v"}`, string(receive(t, sub.C)))
}

func receive(t *testing.T, c <-chan []byte) []byte {
	t.Helper()
	select {
	case data := <-c:
		return data
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}
