// internal/infrastructure/transport/broker/registry.go
package broker

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/44dummies/tradermind-server-sub000/internal/infrastructure/transport/event_bus"
	"github.com/44dummies/tradermind-server-sub000/internal/types/events"
)

type SubscribeOption func(*subscribeOptions)

type subscribeOptions struct {
	group string
	name  string
}

// WithGroup places the subscription in its own consumer group so every role
// sees every entry while instances of one role share them.
func WithGroup(group string) SubscribeOption {
	return func(o *subscribeOptions) { o.group = group }
}

// WithName labels the subscription in logs and on the local bus.
func WithName(name string) SubscribeOption {
	return func(o *subscribeOptions) { o.name = name }
}

type SubscriptionInfo struct {
	Topic events.Topic `json:"topic"`
	Group string       `json:"group"`
	Name  string       `json:"name"`
}

type subscription struct {
	topic   events.Topic
	group   string
	name    string
	handler Handler
	local   *eventbus.BaseSubscriber
	cancel  context.CancelFunc
	done    chan struct{}
}

func subscriptionKey(topic events.Topic, group string) string {
	return group + "|" + string(topic)
}

// registry owns the live subscriptions. Entries are created by Subscribe and
// destroyed by Unsubscribe or Stop.
type registry struct {
	mu   sync.RWMutex
	subs map[string]*subscription
}

func newRegistry() *registry {
	return &registry{subs: make(map[string]*subscription)}
}

func (r *registry) add(sub *subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := subscriptionKey(sub.topic, sub.group)
	if _, exists := r.subs[key]; exists {
		return fmt.Errorf("%w: %s/%s", ErrAlreadySubscribed, sub.topic, sub.group)
	}
	r.subs[key] = sub
	return nil
}

func (r *registry) remove(topic events.Topic, group string) (*subscription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := subscriptionKey(topic, group)
	sub, ok := r.subs[key]
	if ok {
		delete(r.subs, key)
	}
	return sub, ok
}

func (r *registry) has(topic events.Topic, group string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.subs[subscriptionKey(topic, group)]
	return ok
}

func (r *registry) list() []*subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*subscription, 0, len(r.subs))
	for _, sub := range r.subs {
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool {
		return subscriptionKey(out[i].topic, out[i].group) < subscriptionKey(out[j].topic, out[j].group)
	})
	return out
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}
