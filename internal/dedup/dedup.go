// Package dedup remembers inbound channel message ids so retried or replayed
// webhook deliveries are processed at most once.
package dedup

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "inbound:msg:"

// Guard claims inbound message ids.
type Guard interface {
	// Claim records messageID and reports false when it was already claimed.
	Claim(ctx context.Context, messageID string) (bool, error)
	// Release forgets a claim so a redelivery is processed again.
	Release(ctx context.Context, messageID string) error
	Seen(ctx context.Context, messageID string) (bool, error)
}

// RedisGuard stores claims as expiring keys.
type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisGuard builds a guard on top of an existing client.
func NewRedisGuard(client *redis.Client, ttl time.Duration) *RedisGuard {
	return &RedisGuard{client: client, ttl: ttl}
}

func (g *RedisGuard) Claim(ctx context.Context, messageID string) (bool, error) {
	return g.client.SetNX(ctx, keyPrefix+messageID, time.Now().UTC().Format(time.RFC3339), g.ttl).Result()
}

func (g *RedisGuard) Release(ctx context.Context, messageID string) error {
	return g.client.Del(ctx, keyPrefix+messageID).Err()
}

func (g *RedisGuard) Seen(ctx context.Context, messageID string) (bool, error) {
	n, err := g.client.Exists(ctx, keyPrefix+messageID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MemoryGuard keeps claims in process memory.
type MemoryGuard struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]time.Time
}

// NewMemoryGuard builds an in-process guard.
func NewMemoryGuard(ttl time.Duration) *MemoryGuard {
	return &MemoryGuard{ttl: ttl, now: time.Now, entries: make(map[string]time.Time)}
}

func (g *MemoryGuard) Claim(_ context.Context, messageID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if expires, ok := g.entries[messageID]; ok && now.Before(expires) {
		return false, nil
	}
	g.entries[messageID] = now.Add(g.ttl)
	g.sweep(now)
	return true, nil
}

func (g *MemoryGuard) Release(_ context.Context, messageID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.entries, messageID)
	return nil
}

func (g *MemoryGuard) Seen(_ context.Context, messageID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	expires, ok := g.entries[messageID]
	return ok && g.now().Before(expires), nil
}

// sweep drops expired claims; callers hold mu.
func (g *MemoryGuard) sweep(now time.Time) {
	if len(g.entries) < 1024 {
		return
	}
	for id, expires := range g.entries {
		if !now.Before(expires) {
			delete(g.entries, id)
		}
	}
}
