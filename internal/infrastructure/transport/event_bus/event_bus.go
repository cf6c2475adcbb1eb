// internal/infrastructure/transport/event_bus/event_bus.go
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/44dummies/tradermind-server-sub000/internal/types/events"
	"github.com/44dummies/tradermind-server-sub000/pkg/logger"
)

// EventBus is the in-process dispatcher. The broker routes envelopes through it
// while Redis is unreachable, so delivery here is synchronous.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[events.Topic][]Subscriber
	middlewares []Middleware
	metrics     *Metrics
	config      EventBusConfig
	running     bool
	stopChan    chan struct{}
	wg          sync.WaitGroup
}

type EventBusConfig struct {
	EnableMetrics   bool          `json:"enable_metrics"`
	EnableLogging   bool          `json:"enable_logging"`
	MetricsInterval time.Duration `json:"metrics_interval"`
}

var DefaultConfig = EventBusConfig{
	EnableMetrics:   true,
	EnableLogging:   true,
	MetricsInterval: time.Minute,
}

type Metrics struct {
	Mu               sync.RWMutex
	EventsPublished  int64                `json:"events_published"`
	EventsProcessed  int64                `json:"events_processed"`
	EventsFailed     int64                `json:"events_failed"`
	SubscribersCount map[events.Topic]int `json:"subscribers_count"`
	ProcessingTime   time.Duration        `json:"processing_time"`
}

// MetricsSnapshot is a lock-free copy of Metrics.
type MetricsSnapshot struct {
	EventsPublished  int64                `json:"events_published"`
	EventsProcessed  int64                `json:"events_processed"`
	EventsFailed     int64                `json:"events_failed"`
	SubscribersCount map[events.Topic]int `json:"subscribers_count"`
	ProcessingTime   time.Duration        `json:"processing_time"`
}

// NewEventBus builds a bus with validation and recovery middleware installed.
func NewEventBus(config ...EventBusConfig) *EventBus {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.MetricsInterval <= 0 {
		cfg.MetricsInterval = DefaultConfig.MetricsInterval
	}

	bus := &EventBus{
		subscribers: make(map[events.Topic][]Subscriber),
		metrics: &Metrics{
			SubscribersCount: make(map[events.Topic]int),
		},
		config:   cfg,
		stopChan: make(chan struct{}),
	}

	bus.middlewares = []Middleware{&RecoveryMiddleware{}, &ValidationMiddleware{}}
	if cfg.EnableLogging {
		bus.middlewares = append(bus.middlewares, &LoggingMiddleware{})
	}
	if cfg.EnableMetrics {
		bus.middlewares = append(bus.middlewares, &MetricsMiddleware{metrics: bus.metrics})
	}

	return bus
}

// Start launches the periodic metrics reporter.
func (b *EventBus) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return
	}
	b.running = true
	b.stopChan = make(chan struct{})

	if b.config.EnableMetrics {
		b.wg.Add(1)
		go b.metricsLoop()
	}
	logger.Info("🚀 Local event bus started")
}

func (b *EventBus) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	close(b.stopChan)
	b.mu.Unlock()

	b.wg.Wait()
	logger.Info("🛑 Local event bus stopped")
}

func (b *EventBus) Subscribe(topic events.Topic, subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subscribers[topic] = append(b.subscribers[topic], subscriber)

	b.metrics.Mu.Lock()
	b.metrics.SubscribersCount[topic] = len(b.subscribers[topic])
	b.metrics.Mu.Unlock()

	if b.config.EnableLogging {
		logger.Debug("✅ %s subscribed to %s", subscriber.Name(), topic)
	}
}

func (b *EventBus) Unsubscribe(topic events.Topic, subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subscribers, exists := b.subscribers[topic]
	if !exists {
		return
	}

	for i, sub := range subscribers {
		if sub == subscriber {
			b.subscribers[topic] = append(subscribers[:i:i], subscribers[i+1:]...)

			b.metrics.Mu.Lock()
			b.metrics.SubscribersCount[topic] = len(b.subscribers[topic])
			b.metrics.Mu.Unlock()

			if b.config.EnableLogging {
				logger.Debug("❌ %s unsubscribed from %s", subscriber.Name(), topic)
			}
			return
		}
	}
}

// PublishSync delivers env to every subscriber of topic before returning.
// All subscribers are attempted; their errors are joined.
func (b *EventBus) PublishSync(ctx context.Context, topic events.Topic, env events.Envelope) error {
	b.metrics.Mu.Lock()
	b.metrics.EventsPublished++
	b.metrics.Mu.Unlock()

	b.mu.RLock()
	subscribers := append([]Subscriber(nil), b.subscribers[topic]...)
	middlewares := append([]Middleware(nil), b.middlewares...)
	b.mu.RUnlock()

	if len(subscribers) == 0 {
		logger.Debug("⚠️ No local subscribers for %s on %s", env.Type, topic)
		return nil
	}

	var errs []error
	for _, subscriber := range subscribers {
		handler := b.subscriberHandler(subscriber)
		if err := executeWithMiddleware(ctx, topic, env, middlewares, handler); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", subscriber.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Dispatch implements the broker's fallback contract.
func (b *EventBus) Dispatch(ctx context.Context, topic events.Topic, env events.Envelope) error {
	return b.PublishSync(ctx, topic, env)
}

func (b *EventBus) AddMiddleware(middleware Middleware) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.middlewares = append(b.middlewares, middleware)
	logger.Debug("➕ Middleware added: %T", middleware)
}

func (b *EventBus) subscriberHandler(subscriber Subscriber) HandlerFunc {
	return func(ctx context.Context, topic events.Topic, env events.Envelope) error {
		err := subscriber.HandleEnvelope(ctx, env)

		b.metrics.Mu.Lock()
		b.metrics.EventsProcessed++
		if err != nil {
			b.metrics.EventsFailed++
		}
		b.metrics.Mu.Unlock()
		return err
	}
}

// executeWithMiddleware wraps handler so that middlewares[0] runs outermost.
func executeWithMiddleware(ctx context.Context, topic events.Topic, env events.Envelope, middlewares []Middleware, handler HandlerFunc) error {
	chain := handler
	for i := len(middlewares) - 1; i >= 0; i-- {
		mw := middlewares[i]
		next := chain
		chain = func(ctx context.Context, topic events.Topic, env events.Envelope) error {
			return mw.Process(ctx, topic, env, next)
		}
	}
	return chain(ctx, topic, env)
}

func (b *EventBus) GetMetrics() MetricsSnapshot {
	b.metrics.Mu.RLock()
	defer b.metrics.Mu.RUnlock()

	counts := make(map[events.Topic]int, len(b.metrics.SubscribersCount))
	for k, v := range b.metrics.SubscribersCount {
		counts[k] = v
	}
	return MetricsSnapshot{
		EventsPublished:  b.metrics.EventsPublished,
		EventsProcessed:  b.metrics.EventsProcessed,
		EventsFailed:     b.metrics.EventsFailed,
		SubscribersCount: counts,
		ProcessingTime:   b.metrics.ProcessingTime,
	}
}

func (b *EventBus) GetSubscriberCount(topic events.Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.subscribers[topic])
}

// GetTopics returns every topic that has at least one subscriber, sorted.
func (b *EventBus) GetTopics() []events.Topic {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var topics []events.Topic
	for topic, subs := range b.subscribers {
		if len(subs) > 0 {
			topics = append(topics, topic)
		}
	}

	sort.Slice(topics, func(i, j int) bool {
		return topics[i] < topics[j]
	})
	return topics
}

func (b *EventBus) metricsLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.config.MetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.logMetrics()
		case <-b.stopChan:
			return
		}
	}
}

func (b *EventBus) logMetrics() {
	metrics := b.GetMetrics()
	if metrics.EventsPublished == 0 {
		return
	}

	var avg time.Duration
	if metrics.EventsProcessed > 0 {
		avg = metrics.ProcessingTime / time.Duration(metrics.EventsProcessed)
	}
	logger.Info("📊 Local bus: published=%d processed=%d failed=%d avg=%v",
		metrics.EventsPublished, metrics.EventsProcessed, metrics.EventsFailed, avg)
}

func (b *EventBus) IsRunning() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.running
}

func (b *EventBus) Name() string {
	return "EventBus"
}

func (b *EventBus) HealthCheck() bool {
	return b.IsRunning()
}
