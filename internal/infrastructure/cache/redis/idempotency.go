// internal/infrastructure/cache/redis/idempotency.go
package redis

import (
	"context"
	"time"
)

// IdempotencyStore remembers processed event ids so redelivered envelopes are skipped.
type IdempotencyStore struct {
	cache *Cache
	ttl   time.Duration
}

func NewIdempotencyStore(cache *Cache, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyStore{cache: cache, ttl: ttl}
}

func (s *IdempotencyStore) Seen(ctx context.Context, key string) (bool, error) {
	return s.cache.Exists(ctx, "processed:"+key)
}

// Mark records key and reports whether this call was the first to do so.
func (s *IdempotencyStore) Mark(ctx context.Context, key string) (bool, error) {
	return s.cache.SetNX(ctx, "processed:"+key, time.Now().UnixMilli(), s.ttl)
}
