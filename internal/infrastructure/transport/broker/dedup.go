// internal/infrastructure/transport/broker/dedup.go
package broker

import (
	"context"
	"sync"
	"time"
)

// MemoryDeduplicator is the in-process Deduplicator used when Redis is disabled.
type MemoryDeduplicator struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	keys map[string]time.Time
}

func NewMemoryDeduplicator(ttl time.Duration) *MemoryDeduplicator {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryDeduplicator{
		ttl:  ttl,
		now:  time.Now,
		keys: make(map[string]time.Time),
	}
}

func (d *MemoryDeduplicator) Seen(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	expires, ok := d.keys[key]
	if !ok {
		return false, nil
	}
	if d.now().After(expires) {
		delete(d.keys, key)
		return false, nil
	}
	return true, nil
}

func (d *MemoryDeduplicator) Mark(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if expires, ok := d.keys[key]; ok && now.Before(expires) {
		return false, nil
	}
	d.keys[key] = now.Add(d.ttl)

	if len(d.keys) > 10000 {
		for k, exp := range d.keys {
			if now.After(exp) {
				delete(d.keys, k)
			}
		}
	}
	return true, nil
}
