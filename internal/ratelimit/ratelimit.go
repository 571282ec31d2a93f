// Package ratelimit hands out short-lived exclusive keys. It backs the per-user
// send limit on chat messages and the per-pair lock in the match pipeline.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type Guard interface {
	// Acquire sets key for ttl and reports whether it was free.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

func UserActionKey(userID uuid.UUID, action string) string {
	return fmt.Sprintf("rate_limit:user:%s:%s", userID.String(), action)
}

// PairKey is the same for (a, b) and (b, a).
func PairKey(prefix string, a, b uuid.UUID) string {
	if b.String() < a.String() {
		a, b = b, a
	}
	return fmt.Sprintf("%s:%s:%s", prefix, a.String(), b.String())
}

type redisGuard struct {
	rdb *redis.Client
}

// NewRedisGuard returns a guard that allows everything when rdb is nil.
func NewRedisGuard(rdb *redis.Client) Guard {
	return &redisGuard{rdb: rdb}
}

func (g *redisGuard) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if g.rdb == nil {
		return true, nil
	}

	wasSet, err := g.rdb.SetNX(ctx, key, "locked", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check rate limit in redis: %w", err)
	}

	return wasSet, nil
}

func (g *redisGuard) Release(ctx context.Context, key string) error {
	if g.rdb == nil {
		return nil
	}
	_, err := g.rdb.Del(ctx, key).Result()
	return err
}

// memorySweepInterval bounds how often Acquire walks the whole key set.
const memorySweepInterval = time.Minute

type memoryGuard struct {
	mu        sync.Mutex
	keys      map[string]time.Time
	now       func() time.Time
	lastSweep time.Time
}

// NewMemoryGuard keeps keys in process memory. Expired keys are dropped on a
// later Acquire.
func NewMemoryGuard(now func() time.Time) Guard {
	if now == nil {
		now = time.Now
	}
	return &memoryGuard{keys: make(map[string]time.Time), now: now, lastSweep: now()}
}

func (g *memoryGuard) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if now.Sub(g.lastSweep) >= memorySweepInterval {
		g.sweep(now)
	}

	if exp, ok := g.keys[key]; ok && now.Before(exp) {
		return false, nil
	}
	g.keys[key] = now.Add(ttl)
	return true, nil
}

func (g *memoryGuard) sweep(now time.Time) {
	for key, exp := range g.keys {
		if !now.Before(exp) {
			delete(g.keys, key)
		}
	}
	g.lastSweep = now
}

func (g *memoryGuard) Release(ctx context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.keys, key)
	return nil
}
