package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/44dummies/tradermind-server-sub000/internal/adapters/execution"
	"github.com/44dummies/tradermind-server-sub000/internal/adapters/notification"
	"github.com/44dummies/tradermind-server-sub000/internal/core/domain/session"
	storage "github.com/44dummies/tradermind-server-sub000/internal/infrastructure/persistence/in_memory_storage"
	"github.com/44dummies/tradermind-server-sub000/internal/infrastructure/persistence/postgres/models"
	"github.com/44dummies/tradermind-server-sub000/internal/infrastructure/transport/broker"
	"github.com/44dummies/tradermind-server-sub000/internal/infrastructure/transport/event_bus"
	"github.com/44dummies/tradermind-server-sub000/internal/types/events"
)

var admin = session.Actor{UserID: "admin", IsAdmin: true}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func newDirectBroker(t *testing.T) *broker.Broker {
	t.Helper()
	b := broker.New(nil, eventbus.NewEventBus(eventbus.EventBusConfig{}), broker.NewMemoryDeduplicator(0))
	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(func() { b.Stop() })
	return b
}

// tap records every envelope published on a topic.
type tap struct {
	mu   sync.Mutex
	envs []events.Envelope
}

func listen(t *testing.T, b *broker.Broker, topic events.Topic) *tap {
	t.Helper()
	tp := &tap{}
	require.NoError(t, b.Subscribe(topic, func(_ context.Context, env events.Envelope) error {
		tp.mu.Lock()
		defer tp.mu.Unlock()
		tp.envs = append(tp.envs, env)
		return nil
	}, broker.WithGroup("tap-"+string(topic))))
	return tp
}

func (tp *tap) all() []events.Envelope {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	return append([]events.Envelope(nil), tp.envs...)
}

func (tp *tap) types() []events.EventType {
	var out []events.EventType
	for _, env := range tp.all() {
		out = append(out, env.Type)
	}
	return out
}

type balances map[string]decimal.Decimal

func (b balances) Balance(_ context.Context, userID string) (decimal.Decimal, error) {
	v, ok := b[userID]
	if !ok {
		return decimal.Zero, errors.New("unknown user")
	}
	return v, nil
}

// runningSession creates and starts a session with the given users accepted.
func runningSession(t *testing.T, m *session.Manager, mode session.StakingMode, stake int64, users ...string) *session.Session {
	t.Helper()
	ctx := context.Background()
	s, err := m.CreateSession(ctx, admin, session.CreateParams{
		Name:            "workers",
		Type:            session.TypeDay,
		DefaultTP:       dec(10),
		DefaultSL:       dec(5),
		Markets:         []string{"R_100"},
		StakingMode:     mode,
		BaseStake:       dec(stake),
		DurationMinutes: 1,
	})
	require.NoError(t, err)
	_, err = m.InviteUsers(ctx, admin, s.ID, users)
	require.NoError(t, err)
	for _, u := range users {
		_, err = m.AcceptSession(ctx, s.ID, u, dec(10), dec(5))
		require.NoError(t, err)
	}
	s, err = m.StartSession(ctx, admin, s.ID)
	require.NoError(t, err)
	return s
}

type fakeBackend struct {
	mu     sync.Mutex
	orders []execution.Order
	fail   map[string]error
	closed chan execution.Closure
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{fail: map[string]error{}, closed: make(chan execution.Closure, 16)}
}

func (f *fakeBackend) Submit(_ context.Context, o execution.Order) (execution.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[o.UserID]; err != nil {
		return execution.Position{}, err
	}
	f.orders = append(f.orders, o)
	return execution.Position{
		ContractID: o.UserID + "-contract",
		Order:      o,
		EntryPrice: decimal.RequireFromString("1234.56"),
		StartTime:  time.Now(),
	}, nil
}

func (f *fakeBackend) Closed() <-chan execution.Closure { return f.closed }
func (f *fakeBackend) Name() string                     { return "fake" }

type adjustment struct {
	asset    string
	from, to int
}

type exposure struct {
	mu  sync.Mutex
	adj []adjustment
}

func (e *exposure) Adjust(asset string, from, to int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.adj = append(e.adj, adjustment{asset, from, to})
}

func signalEnv(t *testing.T, sessionID string) events.Envelope {
	t.Helper()
	env, err := events.NewEnvelope(events.EventSignalGenerated, events.SignalPayload{
		Symbol:     "R_100",
		Direction:  events.DirectionOver,
		Confidence: 0.72,
	}, events.WithSession(sessionID), events.WithCorrelation("corr-1"))
	require.NoError(t, err)
	return env
}

func TestOrderManagerExecutesForEveryParticipant(t *testing.T) {
	ctx := context.Background()
	b := newDirectBroker(t)
	executed := listen(t, b, events.TopicTradeExecuted)
	failures := listen(t, b, events.TopicNotifications)

	m := session.NewManager(storage.NewSessionStore(), balances{"alice": dec(500), "bob": dec(300)}, nil)
	s := runningSession(t, m, session.StakingFixed, 2, "alice", "bob")

	backend := newFakeBackend()
	backend.fail["bob"] = execution.ErrInsufficientBalance
	exp := &exposure{}
	om := NewOrderManager(b, m, backend, exp)
	require.NoError(t, om.Start(ctx))
	defer om.Stop()

	_, err := b.Publish(ctx, events.TopicTradeSignals, signalEnv(t, s.ID))
	require.NoError(t, err)

	require.Len(t, backend.orders, 1)
	order := backend.orders[0]
	assert.Equal(t, "alice", order.UserID)
	assert.True(t, order.Stake.Equal(dec(2)))
	assert.Equal(t, 1, order.Digit)
	assert.Equal(t, "corr-1", order.CorrelationID)

	envs := executed.all()
	require.Len(t, envs, 1)
	assert.Equal(t, "corr-1", envs[0].CorrelationID)
	assert.Equal(t, s.ID, envs[0].SessionID)
	assert.Equal(t, "alice", envs[0].UserID)

	assert.Equal(t, []events.EventType{events.EventTradeFailed}, failures.types())
	assert.Equal(t, []adjustment{{"R_100", 1, 1}}, exp.adj)
}

func TestOrderManagerSkipsSessionThatIsNotRunning(t *testing.T) {
	ctx := context.Background()
	b := newDirectBroker(t)
	m := session.NewManager(storage.NewSessionStore(), balances{"alice": dec(500)}, nil)
	s := runningSession(t, m, session.StakingFixed, 1, "alice")
	_, err := m.PauseSession(ctx, admin, s.ID)
	require.NoError(t, err)

	backend := newFakeBackend()
	exp := &exposure{}
	om := NewOrderManager(b, m, backend, exp)
	require.NoError(t, om.Start(ctx))
	defer om.Stop()

	_, err = b.Publish(ctx, events.TopicTradeSignals, signalEnv(t, s.ID))
	require.NoError(t, err)
	_, err = b.Publish(ctx, events.TopicTradeSignals, signalEnv(t, "missing"))
	require.NoError(t, err)

	assert.Empty(t, backend.orders)
	assert.Equal(t, []adjustment{{"R_100", 1, 0}, {"R_100", 1, 0}}, exp.adj)
	assert.EqualValues(t, 2, om.Stats()["skipped"])
}

func TestOrderManagerPublishesClosures(t *testing.T) {
	ctx := context.Background()
	b := newDirectBroker(t)
	closed := listen(t, b, events.TopicTradeClosed)

	backend := newFakeBackend()
	om := NewOrderManager(b, nil, backend, nil)
	require.NoError(t, om.Start(ctx))
	defer om.Stop()

	backend.closed <- execution.Closure{
		Position: execution.Position{
			ContractID: "c-1",
			Order: execution.Order{
				Symbol:        "R_100",
				Direction:     events.DirectionUnder,
				Stake:         dec(1),
				UserID:        "alice",
				SessionID:     "s-1",
				CorrelationID: "corr-9",
			},
		},
		ProfitLoss: decimal.RequireFromString("0.95"),
		Reason:     events.CloseExpired,
		ClosedAt:   time.Now(),
	}

	require.Eventually(t, func() bool { return len(closed.all()) == 1 }, time.Second, 5*time.Millisecond)
	env := closed.all()[0]
	assert.Equal(t, "corr-9", env.CorrelationID)
	assert.Equal(t, "s-1", env.SessionID)

	var p events.TradeClosedPayload
	require.NoError(t, env.Decode(&p))
	assert.Equal(t, "c-1", p.ContractID)
	assert.InDelta(t, 0.95, p.ProfitLoss, 1e-9)
}

func TestStakeFor(t *testing.T) {
	p := &session.Participant{InitialBalance: decimal.RequireFromString("250")}

	fixed := &session.Session{StakingMode: session.StakingFixed, BaseStake: dec(3)}
	assert.True(t, StakeFor(fixed, p).Equal(dec(3)))

	pct := &session.Session{StakingMode: session.StakingPercentage, BaseStake: decimal.RequireFromString("1.5")}
	assert.Equal(t, "3.75", StakeFor(pct, p).String())
}

// flakyTrades fails every call until healed.
type flakyTrades struct {
	*storage.TradeStore
	mu     sync.Mutex
	calls  int
	healed bool
}

var errDBDown = errors.New("database unavailable")

func (f *flakyTrades) SaveOpened(ctx context.Context, t *models.Trade) error {
	f.mu.Lock()
	f.calls++
	healed := f.healed
	f.mu.Unlock()
	if !healed {
		return errDBDown
	}
	return f.TradeStore.SaveOpened(ctx, t)
}

func (f *flakyTrades) heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.healed = true
}

func (f *flakyTrades) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func executedEnv(t *testing.T) events.Envelope {
	t.Helper()
	env, err := events.NewEnvelope(events.EventTradeExecuted, events.TradeExecutedPayload{
		ContractID: "c-1",
		Symbol:     "R_100",
		Direction:  events.DirectionOver,
		Stake:      1,
		EntryPrice: 1234.5,
		StartTime:  time.Now(),
	}, events.WithSession("s-1"), events.WithUser("alice"), events.WithCorrelation("corr-1"))
	require.NoError(t, err)
	return env
}

func newTestDBWorker(t *testing.T, b Broker, trades *flakyTrades) (*DBWorker, *time.Time) {
	t.Helper()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	w := NewDBWorker(b, trades, nil, RetryConfig{Delay: time.Second, MaxRetries: 3, QueueSize: 10, PollInterval: time.Hour})
	w.now = func() time.Time { return now }
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { w.Stop() })
	return w, &now
}

func TestDBWorkerDropsAfterThreeRetries(t *testing.T) {
	ctx := context.Background()
	b := newDirectBroker(t)
	trades := &flakyTrades{TradeStore: storage.NewTradeStore()}
	w, now := newTestDBWorker(t, b, trades)

	_, err := b.Publish(ctx, events.TopicTradeExecuted, executedEnv(t))
	require.NoError(t, err)
	assert.Equal(t, 1, trades.callCount())
	require.Equal(t, 1, w.queue.Len())
	assert.Equal(t, events.TopicTradeExecuted, w.queue.items[0].Topic)

	// Not due yet.
	w.RetryDue(ctx)
	assert.Equal(t, 1, trades.callCount())

	for i := 1; i <= 3; i++ {
		*now = now.Add(time.Duration(i) * time.Second)
		w.RetryDue(ctx)
		assert.Equal(t, 1+i, trades.callCount(), "retry %d", i)
	}

	assert.Equal(t, 0, w.queue.Len())
	stats := w.Stats()
	assert.EqualValues(t, 3, stats["retried"])
	assert.EqualValues(t, 1, stats["dropped"])

	*now = now.Add(time.Hour)
	w.RetryDue(ctx)
	assert.Equal(t, 4, trades.callCount())
}

func TestDBWorkerRecoversOnRetry(t *testing.T) {
	ctx := context.Background()
	b := newDirectBroker(t)
	trades := &flakyTrades{TradeStore: storage.NewTradeStore()}
	w, now := newTestDBWorker(t, b, trades)

	_, err := b.Publish(ctx, events.TopicTradeExecuted, executedEnv(t))
	require.NoError(t, err)

	trades.heal()
	*now = now.Add(time.Second)
	w.RetryDue(ctx)

	saved, err := trades.GetByContractID(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, "corr-1", saved.CorrelationID)
	assert.EqualValues(t, 0, w.Stats()["dropped"])
	assert.Equal(t, 0, w.queue.Len())
}

func TestDBWorkerAppliesPnLAndStopsParticipant(t *testing.T) {
	ctx := context.Background()
	b := newDirectBroker(t)
	notifications := listen(t, b, events.TopicNotifications)

	m := session.NewManager(storage.NewSessionStore(), balances{"alice": dec(500)}, nil)
	s := runningSession(t, m, session.StakingFixed, 1, "alice")

	trades := storage.NewTradeStore()
	w := NewDBWorker(b, trades, m, DefaultRetryConfig)
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	opened, err := events.NewEnvelope(events.EventTradeExecuted, events.TradeExecutedPayload{
		ContractID: "c-7", Symbol: "R_100", Direction: events.DirectionOver, Stake: 12, EntryPrice: 100, StartTime: time.Now(),
	}, events.WithSession(s.ID), events.WithUser("alice"))
	require.NoError(t, err)
	_, err = b.Publish(ctx, events.TopicTradeExecuted, opened)
	require.NoError(t, err)

	closed, err := events.NewEnvelope(events.EventTradeClosed, events.TradeClosedPayload{
		ContractID: "c-7", Symbol: "R_100", Direction: events.DirectionOver, Stake: 12, ProfitLoss: 11.4, CloseReason: events.CloseExpired,
	}, events.WithSession(s.ID), events.WithUser("alice"))
	require.NoError(t, err)
	_, err = b.Publish(ctx, events.TopicTradeClosed, closed)
	require.NoError(t, err)

	trade, err := trades.GetByContractID(ctx, "c-7")
	require.NoError(t, err)
	require.NotNil(t, trade.ClosedAt)

	p, err := m.GetParticipant(ctx, s.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, session.ParticipantStopped, p.Status)
	assert.Equal(t, []events.EventType{events.EventParticipantStopped}, notifications.types())

	// Redelivery of the same close does not count twice.
	closed.ID = "redelivered"
	_, err = b.Publish(ctx, events.TopicTradeClosed, closed)
	require.NoError(t, err)
	p, err = m.GetParticipant(ctx, s.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, "11.4", p.CurrentPnL.String())
}

type capturePusher struct {
	mu   sync.Mutex
	msgs []notification.Message
	err  error
}

func (c *capturePusher) Push(_ context.Context, msg notification.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, msg)
	return nil
}

type denyAfter struct {
	mu    sync.Mutex
	limit int
	seen  map[string]int
}

func (d *denyAfter) CheckRateLimit(_ context.Context, key string, _ int64, _ time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[key]++
	return d.seen[key] <= d.limit, nil
}

func TestNotificationWorkerStoresAndPushes(t *testing.T) {
	ctx := context.Background()
	b := newDirectBroker(t)
	store := storage.NewNotificationStore()
	pusher := &capturePusher{}
	w := NewNotificationWorker(b, store, pusher, &denyAfter{limit: 1, seen: map[string]int{}})
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	closed, err := events.NewEnvelope(events.EventTradeClosed, events.TradeClosedPayload{
		ContractID: "c-1", Symbol: "R_100", Direction: events.DirectionOver, Stake: 1, ProfitLoss: 0.95, CloseReason: events.CloseExpired,
	}, events.WithSession("s-1"), events.WithUser("alice"), events.WithCorrelation("corr-1"))
	require.NoError(t, err)
	_, err = b.Publish(ctx, events.TopicTradeClosed, closed)
	require.NoError(t, err)

	require.Len(t, pusher.msgs, 1)
	assert.Equal(t, "Trade won", pusher.msgs[0].Title)
	assert.Equal(t, "alice", pusher.msgs[0].UserID)

	stored, err := store.ListByUser(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.True(t, stored[0].Delivered)
	assert.Equal(t, "corr-1", stored[0].CorrelationID)

	// The second push in the window is throttled but still stored.
	executed := executedEnv(t)
	_, err = b.Publish(ctx, events.TopicTradeExecuted, executed)
	require.NoError(t, err)
	assert.Len(t, pusher.msgs, 1)
	stored, err = store.ListByUser(ctx, "alice", 10)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
	assert.EqualValues(t, 1, w.Stats()["throttled"])
}

func TestNotificationWorkerNeverFailsDelivery(t *testing.T) {
	ctx := context.Background()
	b := newDirectBroker(t)
	pusher := &capturePusher{err: notification.ErrNoRecipient}
	w := NewNotificationWorker(b, storage.NewNotificationStore(), pusher, nil)
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	env, err := events.NewEnvelope(events.EventNotification, events.NotificationPayload{Title: "hi", Message: "there"}, events.WithUser("alice"))
	require.NoError(t, err)
	_, err = b.Publish(ctx, events.TopicNotifications, env)
	require.NoError(t, err)

	system, err := events.NewEnvelope(events.EventNotification, events.NotificationPayload{Title: "bot", Message: "started"})
	require.NoError(t, err)
	_, err = b.Publish(ctx, events.TopicNotifications, system)
	require.NoError(t, err)

	stats := w.Stats()
	assert.EqualValues(t, 1, stats["failed"])
	assert.EqualValues(t, 1, stats["system"])
	assert.EqualValues(t, 1, stats["persisted"])
}

type fakeTimer struct {
	clock    *fakeClock
	deadline time.Time
	f        func()
	stopped  bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, deadline: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock and fires due timers outside the lock.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []func()
	for _, t := range c.timers {
		if !t.stopped && !t.deadline.After(c.now) {
			t.stopped = true
			due = append(due, t.f)
		}
	}
	c.mu.Unlock()
	for _, f := range due {
		f()
	}
}

func TestSessionWorkerAutoStops(t *testing.T) {
	ctx := context.Background()
	b := newDirectBroker(t)
	sessionEvents := listen(t, b, events.TopicSessionEvents)

	clock := &fakeClock{now: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
	m := session.NewManager(storage.NewSessionStore(), balances{"alice": dec(500)}, b)
	m.SetClock(clock.Now)

	w := NewSessionWorker(b, m, clock)
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	s := runningSession(t, m, session.StakingFixed, 1, "alice")
	left, ok := w.Remaining(s.ID)
	require.True(t, ok)
	assert.Equal(t, time.Minute, left)

	clock.Advance(59 * time.Second)
	got, err := m.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusRunning, got.Status)

	clock.Advance(time.Second)
	got, err = m.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, got.Status)
	assert.Equal(t, ReasonDurationElapsed, got.EndReason)

	types := sessionEvents.types()
	assert.Equal(t, events.EventSessionAutoStopped, types[len(types)-1])
	_, ok = w.Remaining(s.ID)
	assert.False(t, ok)
	assert.EqualValues(t, 1, w.Stats()["completed"])
}

func TestSessionWorkerPauseKeepsRemaining(t *testing.T) {
	ctx := context.Background()
	b := newDirectBroker(t)

	clock := &fakeClock{now: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
	m := session.NewManager(storage.NewSessionStore(), balances{"alice": dec(500)}, b)
	m.SetClock(clock.Now)

	w := NewSessionWorker(b, m, clock)
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	s := runningSession(t, m, session.StakingFixed, 1, "alice")

	clock.Advance(20 * time.Second)
	_, err := m.PauseSession(ctx, admin, s.ID)
	require.NoError(t, err)
	left, ok := w.Remaining(s.ID)
	require.True(t, ok)
	assert.Equal(t, 40*time.Second, left)

	// Paused time does not count.
	clock.Advance(time.Hour)
	got, err := m.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusPaused, got.Status)

	_, err = m.ResumeSession(ctx, admin, s.ID)
	require.NoError(t, err)
	clock.Advance(39 * time.Second)
	got, err = m.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusRunning, got.Status)

	clock.Advance(time.Second)
	got, err = m.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, got.Status)
}

func TestSessionWorkerStopClearsTimer(t *testing.T) {
	ctx := context.Background()
	b := newDirectBroker(t)

	clock := &fakeClock{now: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
	m := session.NewManager(storage.NewSessionStore(), balances{"alice": dec(500)}, b)
	m.SetClock(clock.Now)

	w := NewSessionWorker(b, m, clock)
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	s := runningSession(t, m, session.StakingFixed, 1, "alice")
	_, err := m.StopSession(ctx, admin, s.ID)
	require.NoError(t, err)

	_, ok := w.Remaining(s.ID)
	assert.False(t, ok)
	clock.Advance(2 * time.Minute)
	assert.EqualValues(t, 0, w.Stats()["expired"])
}

type stubWorker struct {
	name    string
	failErr error
	log     *[]string
}

func (s *stubWorker) Name() string { return s.name }
func (s *stubWorker) Start(context.Context) error {
	if s.failErr != nil {
		return s.failErr
	}
	*s.log = append(*s.log, "start "+s.name)
	return nil
}
func (s *stubWorker) Stop() error {
	*s.log = append(*s.log, "stop "+s.name)
	return nil
}
func (s *stubWorker) Stats() map[string]interface{} { return nil }

func TestPoolStartsInOrderAndStopsInReverse(t *testing.T) {
	var log []string
	p := NewPool(&stubWorker{name: "a", log: &log}, &stubWorker{name: "b", log: &log})
	require.NoError(t, p.Start(context.Background()))
	assert.True(t, p.IsRunning())
	require.NoError(t, p.Stop())
	assert.Equal(t, []string{"start a", "start b", "stop b", "stop a"}, log)
}

func TestPoolRollsBackOnFailedStart(t *testing.T) {
	var log []string
	boom := errors.New("boom")
	p := NewPool(&stubWorker{name: "a", log: &log}, &stubWorker{name: "b", failErr: boom, log: &log})
	err := p.Start(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.False(t, p.IsRunning())
	assert.Equal(t, []string{"start a", "stop a"}, log)
}
