package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/44dummies/tradermind-server-sub000/internal/infrastructure/transport/event_bus"
	"github.com/44dummies/tradermind-server-sub000/internal/types/events"
)

func testConfig(name string) Config {
	return Config{
		Group:          "test-group",
		StreamPrefix:   "test:stream:",
		ConsumerName:   name,
		BatchSize:      10,
		Block:          50 * time.Millisecond,
		ClaimMinIdle:   time.Minute,
		MaxLen:         1000,
		HealthInterval: 50 * time.Millisecond,
	}
}

func newTestBroker(t *testing.T, mr *miniredis.Miniredis, cfg Config, dedup Deduplicator) *Broker {
	t.Helper()

	var client *redis.Client
	if mr != nil {
		client = redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
		t.Cleanup(func() { client.Close() })
	}

	b := New(client, eventbus.NewEventBus(eventbus.EventBusConfig{}), dedup, cfg)
	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(func() { b.Stop() })
	return b
}

func signalEnvelope(t *testing.T, n int) events.Envelope {
	t.Helper()
	env, err := events.NewEnvelope(events.EventSignalGenerated, events.SignalPayload{
		Symbol:     fmt.Sprintf("R_%d", n),
		Direction:  events.DirectionOver,
		Confidence: 0.7,
	})
	require.NoError(t, err)
	return env
}

type collector struct {
	mu  sync.Mutex
	ids []string
}

func (c *collector) handle(_ context.Context, env events.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(c.ids, env.ID)
	return nil
}

func (c *collector) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.ids...)
}

func TestPublishAndConsumeInOrder(t *testing.T) {
	mr := miniredis.RunT(t)
	b := newTestBroker(t, mr, testConfig("c1"), nil)
	require.True(t, b.IsReady())
	assert.Equal(t, ModeStream, b.Mode())

	var want []string
	for i := 0; i < 5; i++ {
		env := signalEnvelope(t, i)
		id, err := b.Publish(context.Background(), events.TopicTradeSignals, env)
		require.NoError(t, err)
		require.NotEmpty(t, id)
		want = append(want, env.ID)
	}

	c := &collector{}
	require.NoError(t, b.Subscribe(events.TopicTradeSignals, c.handle))

	require.Eventually(t, func() bool { return len(c.snapshot()) == 5 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, want, c.snapshot())
	require.Eventually(t, func() bool { return b.GetMetrics().Acked == 5 }, time.Second, 10*time.Millisecond)
}

func TestConsumerGroupSplitsEntries(t *testing.T) {
	mr := miniredis.RunT(t)
	a := newTestBroker(t, mr, testConfig("consumer-a"), nil)
	b := newTestBroker(t, mr, testConfig("consumer-b"), nil)

	ca, cb := &collector{}, &collector{}
	require.NoError(t, a.Subscribe(events.TopicTradeExecuted, ca.handle))
	require.NoError(t, b.Subscribe(events.TopicTradeExecuted, cb.handle))

	const n = 20
	for i := 0; i < n; i++ {
		_, err := a.Publish(context.Background(), events.TopicTradeExecuted, signalEnvelope(t, i))
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		return len(ca.snapshot())+len(cb.snapshot()) == n
	}, 3*time.Second, 10*time.Millisecond)
	time.Sleep(150 * time.Millisecond)

	seen := map[string]int{}
	for _, id := range append(ca.snapshot(), cb.snapshot()...) {
		seen[id]++
	}
	assert.Len(t, seen, n)
	for id, count := range seen {
		assert.Equal(t, 1, count, "entry %s delivered more than once", id)
	}
}

func TestPendingEntriesOfCrashedConsumerAreClaimed(t *testing.T) {
	mr := miniredis.RunT(t)

	cfgA := testConfig("crashing")
	cfgA.ClaimMinIdle = 50 * time.Millisecond
	cfgA.MaxDeliveries = 1000
	a := newTestBroker(t, mr, cfgA, nil)

	const n = 3
	var attempts atomic.Int64
	require.NoError(t, a.Subscribe(events.TopicTradeClosed, func(context.Context, events.Envelope) error {
		attempts.Add(1)
		return errors.New("worker crashed mid-flight")
	}))
	for i := 0; i < n; i++ {
		_, err := a.Publish(context.Background(), events.TopicTradeClosed, signalEnvelope(t, i))
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return attempts.Load() >= n }, 3*time.Second, 10*time.Millisecond)
	require.NoError(t, a.Stop())

	cfgB := testConfig("survivor")
	cfgB.ClaimMinIdle = 50 * time.Millisecond
	cfgB.MaxDeliveries = 1000
	b := newTestBroker(t, mr, cfgB, nil)

	c := &collector{}
	require.NoError(t, b.Subscribe(events.TopicTradeClosed, c.handle))

	require.Eventually(t, func() bool { return len(c.snapshot()) == n }, 3*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, b.GetMetrics().Claimed, int64(n))
}

func TestFailedHandlerIsRedelivered(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig("retry")
	cfg.ClaimMinIdle = 50 * time.Millisecond
	b := newTestBroker(t, mr, cfg, nil)

	var calls atomic.Int64
	require.NoError(t, b.Subscribe(events.TopicNotifications, func(context.Context, events.Envelope) error {
		if calls.Add(1) == 1 {
			return errors.New("transient")
		}
		return nil
	}))
	_, err := b.Publish(context.Background(), events.TopicNotifications, signalEnvelope(t, 1))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return b.GetMetrics().Acked == 1 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(2), calls.Load())
}

func TestPoisonEntryIsAckedAsDead(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig("poison")
	cfg.ClaimMinIdle = 20 * time.Millisecond
	cfg.MaxDeliveries = 3
	b := newTestBroker(t, mr, cfg, nil)

	poison := signalEnvelope(t, 1)
	var poisonCalls atomic.Int64
	c := &collector{}
	require.NoError(t, b.Subscribe(events.TopicTradeClosed, func(ctx context.Context, env events.Envelope) error {
		if env.ID == poison.ID {
			poisonCalls.Add(1)
			return errors.New("always fails")
		}
		return c.handle(ctx, env)
	}))

	_, err := b.Publish(context.Background(), events.TopicTradeClosed, poison)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return b.GetMetrics().Dead == 1 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(3), poisonCalls.Load())

	pending, err := b.client.XPending(context.Background(), b.streamKey(events.TopicTradeClosed), cfg.Group).Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count)

	good := signalEnvelope(t, 2)
	_, err = b.Publish(context.Background(), events.TopicTradeClosed, good)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(c.snapshot()) == 1 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{good.ID}, c.snapshot())
	assert.Equal(t, int64(3), poisonCalls.Load())
}

func TestDuplicateEnvelopeIsProcessedOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	b := newTestBroker(t, mr, testConfig("dedup"), NewMemoryDeduplicator(time.Hour))

	c := &collector{}
	require.NoError(t, b.Subscribe(events.TopicTradeClosed, c.handle))

	env := signalEnvelope(t, 7)
	for i := 0; i < 2; i++ {
		_, err := b.Publish(context.Background(), events.TopicTradeClosed, env)
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return b.GetMetrics().Acked == 2 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{env.ID}, c.snapshot())
	assert.Equal(t, int64(1), b.GetMetrics().Duplicates)
}

func TestDirectModeDeliversSynchronously(t *testing.T) {
	b := newTestBroker(t, nil, testConfig("direct"), nil)
	assert.False(t, b.IsReady())
	assert.Equal(t, ModeDirect, b.Mode())

	c := &collector{}
	require.NoError(t, b.Subscribe(events.TopicSessionEvents, c.handle))

	env := signalEnvelope(t, 1)
	id, err := b.Publish(context.Background(), events.TopicSessionEvents, env)
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.Equal(t, []string{env.ID}, c.snapshot())
	assert.Equal(t, int64(1), b.GetMetrics().Fallback)
}

func TestFallsBackWhenRedisDisappears(t *testing.T) {
	mr := miniredis.RunT(t)
	b := newTestBroker(t, mr, testConfig("flaky"), nil)
	require.True(t, b.IsReady())

	c := &collector{}
	require.NoError(t, b.Subscribe(events.TopicNotifications, c.handle))

	mr.Close()

	env := signalEnvelope(t, 2)
	id, err := b.Publish(context.Background(), events.TopicNotifications, env)
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.False(t, b.IsReady())
	assert.Contains(t, c.snapshot(), env.ID)
}

func TestPublishRejectsUnknownTopic(t *testing.T) {
	b := newTestBroker(t, nil, testConfig("x"), nil)
	_, err := b.Publish(context.Background(), "trades.opened", signalEnvelope(t, 1))
	assert.ErrorIs(t, err, ErrUnknownTopic)
}

func TestSubscriptionLifecycle(t *testing.T) {
	mr := miniredis.RunT(t)
	b := newTestBroker(t, mr, testConfig("life"), nil)

	handler := func(context.Context, events.Envelope) error { return nil }
	require.NoError(t, b.Subscribe(events.TopicTradeSignals, handler))
	assert.ErrorIs(t, b.Subscribe(events.TopicTradeSignals, handler), ErrAlreadySubscribed)
	require.NoError(t, b.Subscribe(events.TopicTradeSignals, handler, WithGroup("other"), WithName("audit")))
	assert.Len(t, b.Subscriptions(), 2)

	start := time.Now()
	require.NoError(t, b.Unsubscribe(events.TopicTradeSignals))
	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, b.IsSubscribed(events.TopicTradeSignals, "test-group"))
	assert.True(t, b.IsSubscribed(events.TopicTradeSignals, "other"))
	assert.ErrorIs(t, b.Unsubscribe(events.TopicTradeSignals), ErrNotSubscribed)
}

func TestMemoryDeduplicatorExpires(t *testing.T) {
	d := NewMemoryDeduplicator(time.Minute)
	now := time.Now()
	d.now = func() time.Time { return now }

	first, _ := d.Mark(context.Background(), "k")
	assert.True(t, first)
	seen, _ := d.Seen(context.Background(), "k")
	assert.True(t, seen)

	now = now.Add(2 * time.Minute)
	seen, _ = d.Seen(context.Background(), "k")
	assert.False(t, seen)
}
