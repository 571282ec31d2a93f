package matching

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"anoa.com/lostfound/internal/config"
	"anoa.com/lostfound/internal/realtime"
	"github.com/google/uuid"
)

// ItemProcessor is the part of MatchService the dispatcher drives.
type ItemProcessor interface {
	ProcessMatches(ctx context.Context, itemID uuid.UUID) int
}

type job struct {
	itemID  uuid.UUID
	readyAt time.Time
}

// Dispatcher runs matching for newly created items off the request path.
// Each item waits for the trigger delay so its own write can settle, then a
// worker from a fixed pool processes it.
type Dispatcher struct {
	processor ItemProcessor
	jobs      chan job
	workers   int
	delay     time.Duration
	wg        sync.WaitGroup
	now       func() time.Time
}

func NewDispatcher(processor ItemProcessor, cfg config.MatchConfig) *Dispatcher {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	queueSize := cfg.QueueSize
	if queueSize < 1 {
		queueSize = 1
	}

	return &Dispatcher{
		processor: processor,
		jobs:      make(chan job, queueSize),
		workers:   workers,
		delay:     cfg.TriggerDelay,
		now:       time.Now,
	}
}

// Enqueue never blocks. It returns false when the queue is full; the hourly
// sweep picks such items up later.
func (d *Dispatcher) Enqueue(itemID uuid.UUID) bool {
	select {
	case d.jobs <- job{itemID: itemID, readyAt: d.now().Add(d.delay)}:
		return true
	default:
		log.Printf("⚠️ [dispatcher] queue full, dropping item %s", itemID)
		return false
	}
}

// Run starts the workers and blocks until ctx is cancelled and they have exited.
func (d *Dispatcher) Run(ctx context.Context) {
	log.Printf("🚀 [dispatcher] starting %d match workers", d.workers)
	for i := 1; i <= d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}
	d.wg.Wait()
	log.Println("🛑 [dispatcher] stopped")
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case j := <-d.jobs:
			if wait := j.readyAt.Sub(d.now()); wait > 0 {
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return
				}
			}
			matched := d.processor.ProcessMatches(ctx, j.itemID)
			if matched > 0 {
				log.Printf("🔗 [dispatcher] worker %d: item %s got %d matches", id, j.itemID, matched)
			}
		}
	}
}

// Listen feeds item ids published on the items-created channel into the queue
// until ctx is cancelled.
func (d *Dispatcher) Listen(ctx context.Context, broker realtime.Broker) error {
	sub, err := broker.Subscribe(ctx, realtime.ItemsCreatedChannel)
	if err != nil {
		return err
	}
	defer sub.Close()

	log.Printf("👂 [dispatcher] listening on %s", realtime.ItemsCreatedChannel)
	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-sub.C:
			if !ok {
				return nil
			}
			itemID, err := uuid.Parse(strings.Trim(strings.TrimSpace(string(payload)), `"`))
			if err != nil {
				log.Printf("⚠️ [dispatcher] ignoring malformed item id %q", payload)
				continue
			}
			d.Enqueue(itemID)
		}
	}
}
