package matching

import (
	"context"
	"sync"
	"testing"
	"time"

	"anoa.com/lostfound/internal/config"
	"anoa.com/lostfound/internal/realtime"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type recordingProcessor struct {
	mu  sync.Mutex
	ids []uuid.UUID
}

func (p *recordingProcessor) ProcessMatches(ctx context.Context, itemID uuid.UUID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, itemID)
	return 1
}

func (p *recordingProcessor) processed() []uuid.UUID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]uuid.UUID(nil), p.ids...)
}

func TestDispatcherEnqueueDropsWhenFull(t *testing.T) {
	d := NewDispatcher(&recordingProcessor{}, config.MatchConfig{Workers: 1, QueueSize: 1})

	require.True(t, d.Enqueue(uuid.New()))
	require.False(t, d.Enqueue(uuid.New()))
}

func TestDispatcherProcessesAfterDelay(t *testing.T) {
	p := &recordingProcessor{}
	d := NewDispatcher(p, config.MatchConfig{Workers: 2, QueueSize: 4, TriggerDelay: 20 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	id := uuid.New()
	start := time.Now()
	require.True(t, d.Enqueue(id))
	require.Eventually(t, func() bool { return len(p.processed()) == 1 }, time.Second, 5*time.Millisecond)
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	require.Equal(t, id, p.processed()[0])

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop")
	}
}

func TestDispatcherListen(t *testing.T) {
	p := &recordingProcessor{}
	d := NewDispatcher(p, config.MatchConfig{Workers: 1, QueueSize: 4})
	hub := realtime.NewLocalHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go d.Run(ctx)
	go func() {
		_ = d.Listen(ctx, hub)
	}()

	// publish until the listener has subscribed
	id := uuid.New()
	require.Eventually(t, func() bool {
		_ = hub.Publish(ctx, realtime.ItemsCreatedChannel, []byte("not-an-id"))
		_ = realtime.PublishJSON(ctx, hub, realtime.ItemsCreatedChannel, id.String())
		return len(p.processed()) > 0
	}, time.Second, 20*time.Millisecond)
	for _, processed := range p.processed() {
		require.Equal(t, id, processed)
	}
}
