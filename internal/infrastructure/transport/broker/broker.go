// internal/infrastructure/transport/broker/broker.go
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/44dummies/tradermind-server-sub000/internal/infrastructure/transport/event_bus"
	"github.com/44dummies/tradermind-server-sub000/internal/types/events"
	"github.com/44dummies/tradermind-server-sub000/pkg/logger"
)

var (
	ErrUnknownTopic      = errors.New("unknown topic")
	ErrAlreadySubscribed = errors.New("already subscribed")
	ErrNotSubscribed     = errors.New("not subscribed")
	ErrStopped           = errors.New("broker stopped")
)

const envelopeField = "envelope"

// Mode is the delivery path currently in use.
type Mode string

const (
	ModeStream Mode = "stream"
	ModeDirect Mode = "direct"
)

// Handler processes one envelope. A nil return acknowledges it.
type Handler func(ctx context.Context, env events.Envelope) error

// Fallback receives envelopes while the durable log is unreachable.
type Fallback interface {
	Dispatch(ctx context.Context, topic events.Topic, env events.Envelope) error
}

// LocalDispatcher is the in-process bus subscribers are mirrored onto for direct mode.
type LocalDispatcher interface {
	Fallback
	Subscribe(topic events.Topic, subscriber eventbus.Subscriber)
	Unsubscribe(topic events.Topic, subscriber eventbus.Subscriber)
}

// Deduplicator remembers processed envelope keys.
type Deduplicator interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) (bool, error)
}

type Config struct {
	Group          string
	StreamPrefix   string
	ConsumerName   string
	BatchSize      int64
	Block          time.Duration
	ClaimMinIdle   time.Duration
	MaxLen         int64
	HealthInterval time.Duration
	// MaxDeliveries caps how often a pending entry is handed out before it is
	// acked as dead.
	MaxDeliveries int64
}

var DefaultConfig = Config{
	Group:          "tradermind-workers",
	StreamPrefix:   "tradermind:stream:",
	BatchSize:      10,
	Block:          2 * time.Second,
	ClaimMinIdle:   30 * time.Second,
	MaxLen:         10000,
	HealthInterval: 5 * time.Second,
	MaxDeliveries:  10,
}

// Broker publishes envelopes to Redis Streams and runs consumer-group loops.
// Without a reachable Redis it runs in direct mode and hands envelopes to the
// local dispatcher synchronously.
type Broker struct {
	cfg      Config
	client   *redis.Client
	local    LocalDispatcher
	fallback Fallback
	dedup    Deduplicator
	registry *registry
	metrics  Metrics

	ready atomic.Bool

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// Metrics are updated atomically from every consume loop.
type Metrics struct {
	Published  atomic.Int64
	Fallback   atomic.Int64
	Delivered  atomic.Int64
	Acked      atomic.Int64
	Failed     atomic.Int64
	Duplicates atomic.Int64
	Claimed    atomic.Int64
	Dead       atomic.Int64
}

type MetricsSnapshot struct {
	Mode       Mode  `json:"mode"`
	Published  int64 `json:"published"`
	Fallback   int64 `json:"fallback"`
	Delivered  int64 `json:"delivered"`
	Acked      int64 `json:"acked"`
	Failed     int64 `json:"failed"`
	Duplicates int64 `json:"duplicates"`
	Claimed    int64 `json:"claimed"`
	Dead       int64 `json:"dead"`
	Subs       int   `json:"subscriptions"`
}

// New builds a broker. client may be nil, which pins the broker to direct mode.
func New(client *redis.Client, local LocalDispatcher, dedup Deduplicator, config ...Config) *Broker {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.Group == "" {
		cfg.Group = DefaultConfig.Group
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig.BatchSize
	}
	if cfg.Block <= 0 {
		cfg.Block = DefaultConfig.Block
	}
	if cfg.ClaimMinIdle <= 0 {
		cfg.ClaimMinIdle = DefaultConfig.ClaimMinIdle
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = DefaultConfig.HealthInterval
	}
	if cfg.MaxDeliveries <= 0 {
		cfg.MaxDeliveries = DefaultConfig.MaxDeliveries
	}
	if cfg.ConsumerName == "" {
		cfg.ConsumerName = consumerName()
	}

	b := &Broker{
		cfg:      cfg,
		client:   client,
		local:    local,
		fallback: local,
		dedup:    dedup,
		registry: newRegistry(),
		stopChan: make(chan struct{}),
	}
	return b
}

func consumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "tradermind"
	}
	return fmt.Sprintf("%s-%d-%d-%s", host, os.Getpid(), time.Now().UnixMilli(), uuid.NewString()[:8])
}

// Start probes Redis once and launches the health loop that flips modes.
func (b *Broker) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return nil
	}
	b.running = true
	b.stopChan = make(chan struct{})
	b.mu.Unlock()

	b.probe(ctx)
	if b.IsReady() {
		logger.Info("✅ Broker ready: Redis Streams (group %s, consumer %s)", b.cfg.Group, b.cfg.ConsumerName)
	} else {
		logger.Warn("⚠️ Broker running in direct mode: events are dispatched in-process only")
	}

	if b.client != nil {
		b.wg.Add(1)
		go b.healthLoop()
	}
	return nil
}

// Stop cancels every subscription and the health loop.
func (b *Broker) Stop() error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return nil
	}
	b.running = false
	close(b.stopChan)
	b.mu.Unlock()

	for _, sub := range b.registry.list() {
		b.stopSubscription(sub)
	}
	b.wg.Wait()
	b.ready.Store(false)
	logger.Info("🛑 Broker stopped")
	return nil
}

// IsReady reports whether publishes currently reach the durable log.
func (b *Broker) IsReady() bool {
	return b.ready.Load()
}

func (b *Broker) Mode() Mode {
	if b.IsReady() {
		return ModeStream
	}
	return ModeDirect
}

// RegisterFallback replaces the handler used in direct mode.
func (b *Broker) RegisterFallback(f Fallback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fallback = f
}

// Publish appends env to topic's stream and returns the stream entry id.
// In direct mode it returns "" with a nil error after dispatching locally:
// the envelope was delivered in-process but not durably.
func (b *Broker) Publish(ctx context.Context, topic events.Topic, env events.Envelope) (string, error) {
	if !topic.Valid() {
		return "", fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("broker.Publish: encode %s: %w", env.ID, err)
	}

	if b.client != nil && b.IsReady() {
		id, err := b.client.XAdd(ctx, &redis.XAddArgs{
			Stream: b.streamKey(topic),
			MaxLen: b.cfg.MaxLen,
			Approx: b.cfg.MaxLen > 0,
			Values: map[string]interface{}{
				envelopeField: string(data),
				"type":        string(env.Type),
			},
		}).Result()
		if err == nil {
			b.metrics.Published.Add(1)
			logger.Debug("📤 %s → %s (%s)", env.Type, topic, id)
			return id, nil
		}
		if isServerError(err) {
			return "", fmt.Errorf("broker.Publish: XADD %s: %w", topic, err)
		}
		b.markUnreachable(err)
	}

	b.dispatchFallback(ctx, topic, env)
	return "", nil
}

func (b *Broker) dispatchFallback(ctx context.Context, topic events.Topic, env events.Envelope) {
	b.mu.Lock()
	fallback := b.fallback
	b.mu.Unlock()

	if fallback == nil {
		logger.Warn("⚠️ Dropping %s (%s): no durable log and no fallback", env.Type, env.ID)
		return
	}
	b.metrics.Fallback.Add(1)
	if err := fallback.Dispatch(ctx, topic, env); err != nil {
		logger.Warn("⚠️ Direct dispatch of %s (%s) failed: %v", env.Type, env.ID, err)
	}
}

// Subscribe registers handler for topic in the default group, or the group set by WithGroup.
func (b *Broker) Subscribe(topic events.Topic, handler Handler, opts ...SubscribeOption) error {
	if !topic.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}
	options := subscribeOptions{group: b.cfg.Group, name: string(topic)}
	for _, opt := range opts {
		opt(&options)
	}

	b.mu.Lock()
	stopped := !b.running
	b.mu.Unlock()
	if stopped {
		return ErrStopped
	}

	ctx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		topic:   topic,
		group:   options.group,
		name:    options.name,
		handler: handler,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	if err := b.registry.add(sub); err != nil {
		cancel()
		return err
	}

	sub.local = eventbus.NewBaseSubscriber(options.name, func(ctx context.Context, env events.Envelope) error {
		return b.deliver(ctx, sub, env)
	})
	if b.local != nil {
		b.local.Subscribe(topic, sub.local)
	}

	if b.client == nil {
		close(sub.done)
	} else {
		go b.consume(ctx, sub)
	}

	logger.Info("📥 Subscribed %s to %s (group %s)", options.name, topic, options.group)
	return nil
}

// Unsubscribe stops the loop for (topic, group) and releases its connection.
func (b *Broker) Unsubscribe(topic events.Topic, opts ...SubscribeOption) error {
	options := subscribeOptions{group: b.cfg.Group}
	for _, opt := range opts {
		opt(&options)
	}

	sub, ok := b.registry.remove(topic, options.group)
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrNotSubscribed, topic, options.group)
	}
	b.stopSubscription(sub)
	logger.Info("📤 Unsubscribed %s from %s", sub.name, topic)
	return nil
}

func (b *Broker) stopSubscription(sub *subscription) {
	b.registry.remove(sub.topic, sub.group)
	sub.cancel()
	<-sub.done
	if b.local != nil && sub.local != nil {
		b.local.Unsubscribe(sub.topic, sub.local)
	}
}

// Subscriptions lists active (topic, group) pairs.
func (b *Broker) Subscriptions() []SubscriptionInfo {
	subs := b.registry.list()
	out := make([]SubscriptionInfo, 0, len(subs))
	for _, s := range subs {
		out = append(out, SubscriptionInfo{Topic: s.topic, Group: s.group, Name: s.name})
	}
	return out
}

func (b *Broker) IsSubscribed(topic events.Topic, group string) bool {
	return b.registry.has(topic, group)
}

func (b *Broker) GetMetrics() MetricsSnapshot {
	return MetricsSnapshot{
		Mode:       b.Mode(),
		Published:  b.metrics.Published.Load(),
		Fallback:   b.metrics.Fallback.Load(),
		Delivered:  b.metrics.Delivered.Load(),
		Acked:      b.metrics.Acked.Load(),
		Failed:     b.metrics.Failed.Load(),
		Duplicates: b.metrics.Duplicates.Load(),
		Claimed:    b.metrics.Claimed.Load(),
		Dead:       b.metrics.Dead.Load(),
		Subs:       b.registry.len(),
	}
}

func (b *Broker) ConsumerName() string { return b.cfg.ConsumerName }

func (b *Broker) Name() string { return "Broker" }

func (b *Broker) HealthCheck() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

func (b *Broker) streamKey(topic events.Topic) string {
	return b.cfg.StreamPrefix + string(topic)
}

func (b *Broker) healthLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), b.cfg.HealthInterval)
			b.probe(ctx)
			cancel()
		case <-b.stopChan:
			return
		}
	}
}

func (b *Broker) probe(ctx context.Context) {
	if b.client == nil {
		b.ready.Store(false)
		return
	}
	err := b.client.Ping(ctx).Err()
	if err != nil {
		b.markUnreachable(err)
		return
	}
	if !b.ready.Swap(true) {
		logger.Info("🔌 Redis reachable, broker switched to stream mode")
	}
}

func (b *Broker) markUnreachable(err error) {
	if b.ready.Swap(false) {
		logger.Warn("⚠️ Redis unreachable (%v), broker switched to direct mode", err)
	}
}

// isServerError reports errors returned by Redis itself, as opposed to transport failures.
func isServerError(err error) bool {
	var rerr redis.Error
	return errors.As(err, &rerr) && !errors.Is(err, redis.Nil)
}
