// application/workers/retry_queue.go
package workers

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/44dummies/tradermind-server-sub000/internal/types/events"
)

var ErrRetryQueueFull = errors.New("retry queue full")

// RetryItem is a failed event waiting for its next attempt.
type RetryItem struct {
	Event     events.Envelope
	Topic     events.Topic
	Attempt   int
	NotBefore time.Time
	// Persisted marks a trade.closed whose row already transitioned; only
	// the participant PnL step is left.
	Persisted bool
}

// RetryQueue is a bounded set of RetryItems ordered by NotBefore.
type RetryQueue struct {
	mu       sync.Mutex
	items    []*RetryItem
	capacity int
}

func NewRetryQueue(capacity int) *RetryQueue {
	if capacity <= 0 {
		capacity = 1000
	}
	return &RetryQueue{capacity: capacity}
}

func (q *RetryQueue) Push(item *RetryItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= q.capacity {
		return ErrRetryQueueFull
	}
	q.items = append(q.items, item)
	sort.SliceStable(q.items, func(i, j int) bool {
		return q.items[i].NotBefore.Before(q.items[j].NotBefore)
	})
	return nil
}

// Due removes and returns the items whose NotBefore is not after now.
func (q *RetryQueue) Due(now time.Time) []*RetryItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for n < len(q.items) && !q.items[n].NotBefore.After(now) {
		n++
	}
	if n == 0 {
		return nil
	}
	due := make([]*RetryItem, n)
	copy(due, q.items[:n])
	q.items = append(q.items[:0], q.items[n:]...)
	return due
}

func (q *RetryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
