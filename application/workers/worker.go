// application/workers/worker.go
package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/44dummies/tradermind-server-sub000/internal/infrastructure/transport/broker"
	"github.com/44dummies/tradermind-server-sub000/internal/types/events"
	"github.com/44dummies/tradermind-server-sub000/pkg/logger"
)

// Consumer group per role: every role sees every entry of its topics,
// instances of one role share them.
const (
	GroupOrderManager = "order-manager"
	GroupDB           = "db-worker"
	GroupNotification = "notification-worker"
	GroupSession      = "session-worker"
)

// Broker is the part of the message broker the workers use.
type Broker interface {
	Publish(ctx context.Context, topic events.Topic, env events.Envelope) (string, error)
	Subscribe(topic events.Topic, handler broker.Handler, opts ...broker.SubscribeOption) error
	Unsubscribe(topic events.Topic, opts ...broker.SubscribeOption) error
}

type Worker interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Stats() map[string]interface{}
}

func subscribeAll(b Broker, group string, topics []events.Topic, handler broker.Handler) error {
	for i, topic := range topics {
		if err := b.Subscribe(topic, handler, broker.WithGroup(group), broker.WithName(group)); err != nil {
			unsubscribeAll(b, group, topics[:i])
			return fmt.Errorf("%s: subscribe %s: %w", group, topic, err)
		}
	}
	return nil
}

func unsubscribeAll(b Broker, group string, topics []events.Topic) error {
	var errs []error
	for _, topic := range topics {
		if err := b.Unsubscribe(topic, broker.WithGroup(group)); err != nil && !errors.Is(err, broker.ErrNotSubscribed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// publish logs instead of failing: the caller's own work is already done.
func publish(ctx context.Context, b Broker, topic events.Topic, env events.Envelope) {
	if _, err := b.Publish(ctx, topic, env); err != nil {
		logger.Warn("⚠️ Publish %s (%s, correlation %s) failed: %v", env.Type, env.ID, env.CorrelationID, err)
	}
}

// Pool starts workers in order and stops them in reverse.
type Pool struct {
	mu      sync.Mutex
	workers []Worker
	started []Worker
}

func NewPool(workers ...Worker) *Pool {
	return &Pool{workers: workers}
}

func (p *Pool) Add(w Worker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.workers = append(p.workers, w)
}

func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.started) > 0 {
		return nil
	}
	for _, w := range p.workers {
		if err := w.Start(ctx); err != nil {
			p.stopLocked()
			return fmt.Errorf("start %s: %w", w.Name(), err)
		}
		p.started = append(p.started, w)
		logger.Info("✅ Worker %s started", w.Name())
	}
	return nil
}

func (p *Pool) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopLocked()
}

func (p *Pool) stopLocked() error {
	var errs []error
	for i := len(p.started) - 1; i >= 0; i-- {
		w := p.started[i]
		if err := w.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", w.Name(), err))
			continue
		}
		logger.Info("🛑 Worker %s stopped", w.Name())
	}
	p.started = nil
	return errors.Join(errs...)
}

func (p *Pool) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.started) > 0
}

func (p *Pool) Stats() map[string]interface{} {
	p.mu.Lock()
	workers := append([]Worker(nil), p.workers...)
	p.mu.Unlock()

	out := make(map[string]interface{}, len(workers))
	for _, w := range workers {
		out[w.Name()] = w.Stats()
	}
	return out
}
