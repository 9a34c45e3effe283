// Package noncecache implements auth-nonce replay protection (spec.md
// §4.1/SPEC_FULL.md §4.1 supplement): a nonce may be redeemed by at most one
// successful auth. Grounded on the teacher's internal/reputation/wallet.go
// optional-backend-with-fallback shape (there: Spanner-or-cache; here:
// Redis-or-in-memory-map), switched from a read-through cache to a
// write-once replay guard.
package noncecache

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache redeems a nonce exactly once within its TTL.
type Cache struct {
	redis *redis.Client
	mu    sync.Mutex
	local map[string]time.Time // nonce -> expiry, used when redis is nil
}

// New builds a Cache. If redisURL is empty, the cache falls back to an
// in-memory map (fine for a single-process exchange; Redis matters once
// more than one process can accept connections for the same identity set).
func New(redisURL string) (*Cache, error) {
	c := &Cache{local: make(map[string]time.Time)}
	if redisURL == "" {
		return c, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	c.redis = redis.NewClient(opts)
	return c, nil
}

// Redeem reports whether nonce was not previously seen (i.e. the caller may
// proceed with auth), marking it seen for ttl either way.
func (c *Cache) Redeem(ctx context.Context, nonce string, ttl time.Duration) (bool, error) {
	if c.redis != nil {
		ok, err := c.redis.SetNX(ctx, "synapse:nonce:"+nonce, 1, ttl).Result()
		if err != nil {
			return false, err
		}
		return ok, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.evictExpiredLocked()
	if _, seen := c.local[nonce]; seen {
		return false, nil
	}
	c.local[nonce] = time.Now().Add(ttl)
	return true, nil
}

func (c *Cache) evictExpiredLocked() {
	now := time.Now()
	for nonce, expiry := range c.local {
		if now.After(expiry) {
			delete(c.local, nonce)
		}
	}
}

// Close releases the Redis client, if any.
func (c *Cache) Close() error {
	if c.redis != nil {
		return c.redis.Close()
	}
	return nil
}
