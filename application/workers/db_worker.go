// application/workers/db_worker.go
package workers

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/44dummies/tradermind-server-sub000/internal/core/domain/session"
	"github.com/44dummies/tradermind-server-sub000/internal/infrastructure/persistence/postgres/models"
	trade_repo "github.com/44dummies/tradermind-server-sub000/internal/infrastructure/persistence/postgres/repository/trade"
	"github.com/44dummies/tradermind-server-sub000/internal/types/events"
	"github.com/44dummies/tradermind-server-sub000/pkg/logger"
)

// TradeResultApplier is the session manager's PnL entry point.
type TradeResultApplier interface {
	ApplyTradeResult(ctx context.Context, sessionID, userID string, pnl decimal.Decimal) (session.TradeOutcome, error)
}

type RetryConfig struct {
	Delay        time.Duration
	MaxRetries   int
	QueueSize    int
	PollInterval time.Duration
}

var DefaultRetryConfig = RetryConfig{
	Delay:        time.Second,
	MaxRetries:   3,
	QueueSize:    1000,
	PollInterval: 200 * time.Millisecond,
}

// DBWorker persists trade.executed and trade.closed. A failed event is
// acknowledged on the broker and retried here with delay attempt×Delay; after
// MaxRetries failed retries it is dropped.
type DBWorker struct {
	broker   Broker
	trades   trade_repo.TradeRepository
	sessions TradeResultApplier
	cfg      RetryConfig
	queue    *RetryQueue
	now      func() time.Time

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	wg      sync.WaitGroup

	opened   atomic.Int64
	closed   atomic.Int64
	retried  atomic.Int64
	dropped  atomic.Int64
	stopped  atomic.Int64
	failures atomic.Int64
}

var dbTopics = []events.Topic{events.TopicTradeExecuted, events.TopicTradeClosed}

func NewDBWorker(b Broker, trades trade_repo.TradeRepository, sessions TradeResultApplier, cfg RetryConfig) *DBWorker {
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultRetryConfig.Delay
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = DefaultRetryConfig.MaxRetries
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultRetryConfig.PollInterval
	}
	return &DBWorker{
		broker:   b,
		trades:   trades,
		sessions: sessions,
		cfg:      cfg,
		queue:    NewRetryQueue(cfg.QueueSize),
		now:      time.Now,
	}
}

func (w *DBWorker) Name() string { return "db_worker" }

func (w *DBWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	if err := subscribeAll(w.broker, GroupDB, dbTopics, w.handle); err != nil {
		return err
	}
	w.running = true
	w.stop = make(chan struct{})
	w.wg.Add(1)
	go w.retryLoop(ctx)
	return nil
}

func (w *DBWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	close(w.stop)
	w.mu.Unlock()

	err := unsubscribeAll(w.broker, GroupDB, dbTopics)
	w.wg.Wait()
	if n := w.queue.Len(); n > 0 {
		logger.Warn("⚠️ DB worker stopped with %d events awaiting retry", n)
	}
	return err
}

func (w *DBWorker) handle(ctx context.Context, env events.Envelope) error {
	item := &RetryItem{Event: env, Topic: events.TopicFor(env.Type)}
	if err := w.process(ctx, item); err != nil {
		w.failures.Add(1)
		w.schedule(item, err)
	}
	return nil
}

func (w *DBWorker) schedule(item *RetryItem, cause error) {
	item.Attempt++
	item.NotBefore = w.now().Add(time.Duration(item.Attempt) * w.cfg.Delay)
	if err := w.queue.Push(item); err != nil {
		w.drop(item, fmt.Errorf("%v (%w)", cause, err))
		return
	}
	logger.Warn("⚠️ DB write for %s (%s) failed, retry %d in %v: %v",
		item.Event.Type, item.Event.ID, item.Attempt, time.Duration(item.Attempt)*w.cfg.Delay, cause)
}

func (w *DBWorker) drop(item *RetryItem, cause error) {
	w.dropped.Add(1)
	logger.Error("❌ Unrecoverable DB write dropped: %s %s from %s (correlation %s) after %d retries: %v",
		item.Event.Type, item.Event.ID, item.Topic, item.Event.CorrelationID, item.Attempt, cause)
}

func (w *DBWorker) retryLoop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RetryDue(ctx)
		}
	}
}

// RetryDue runs every item whose delay has elapsed.
func (w *DBWorker) RetryDue(ctx context.Context) {
	for _, item := range w.queue.Due(w.now()) {
		w.retried.Add(1)
		err := w.process(ctx, item)
		if err == nil {
			logger.Info("✅ DB write for %s (%s) succeeded on retry %d", item.Event.Type, item.Event.ID, item.Attempt)
			continue
		}
		w.failures.Add(1)
		if item.Attempt >= w.cfg.MaxRetries {
			w.drop(item, err)
			continue
		}
		w.schedule(item, err)
	}
}

func (w *DBWorker) process(ctx context.Context, item *RetryItem) error {
	env := item.Event
	switch env.Type {
	case events.EventTradeExecuted:
		return w.saveOpened(ctx, env)
	case events.EventTradeClosed:
		return w.saveClosed(ctx, item)
	default:
		logger.Debug("DB worker ignores %s", env.Type)
		return nil
	}
}

func (w *DBWorker) saveOpened(ctx context.Context, env events.Envelope) error {
	var p events.TradeExecutedPayload
	if err := env.Decode(&p); err != nil {
		logger.Error("❌ DB worker dropped %s: %v", env.ID, err)
		return nil
	}
	trade := &models.Trade{
		ContractID:    p.ContractID,
		CorrelationID: env.CorrelationID,
		SessionID:     env.SessionID,
		UserID:        env.UserID,
		ParticipantID: p.ParticipantID,
		Symbol:        p.Symbol,
		Direction:     string(p.Direction),
		Stake:         decimal.NewFromFloat(p.Stake),
		EntryPrice:    decimal.NewFromFloat(p.EntryPrice),
		StartTime:     p.StartTime,
	}
	if err := w.trades.SaveOpened(ctx, trade); err != nil {
		return err
	}
	w.opened.Add(1)
	return nil
}

func (w *DBWorker) saveClosed(ctx context.Context, item *RetryItem) error {
	env := item.Event
	var p events.TradeClosedPayload
	if err := env.Decode(&p); err != nil {
		logger.Error("❌ DB worker dropped %s: %v", env.ID, err)
		return nil
	}
	pnl := decimal.NewFromFloat(p.ProfitLoss)

	if !item.Persisted {
		reason := string(p.CloseReason)
		closedAt := env.Timestamp
		trade := &models.Trade{
			ContractID:    p.ContractID,
			CorrelationID: env.CorrelationID,
			SessionID:     env.SessionID,
			UserID:        env.UserID,
			ParticipantID: p.ParticipantID,
			Symbol:        p.Symbol,
			Direction:     string(p.Direction),
			Stake:         decimal.NewFromFloat(p.Stake),
			ProfitLoss:    decimal.NewNullDecimal(pnl),
			CloseReason:   &reason,
			StartTime:     closedAt,
			ClosedAt:      &closedAt,
		}
		transitioned, err := w.trades.Close(ctx, trade)
		if err != nil {
			return err
		}
		if !transitioned {
			logger.Debug("Trade %s already closed", p.ContractID)
			return nil
		}
		item.Persisted = true
		w.closed.Add(1)
	}

	if w.sessions == nil || env.SessionID == "" || env.UserID == "" {
		return nil
	}
	outcome, err := w.sessions.ApplyTradeResult(ctx, env.SessionID, env.UserID, pnl)
	if err != nil {
		return fmt.Errorf("apply pnl to %s/%s: %w", env.SessionID, env.UserID, err)
	}
	if outcome.Stopped {
		w.stopped.Add(1)
		w.publishStopped(ctx, env, outcome)
	}
	return nil
}

func (w *DBWorker) publishStopped(ctx context.Context, parent events.Envelope, outcome session.TradeOutcome) {
	p := outcome.Participant
	payload := events.NotificationPayload{
		Title:   "Session target reached",
		Message: fmt.Sprintf("Trading stopped for this session: %s (PnL %s)", outcome.Reason, p.CurrentPnL.StringFixed(2)),
		Level:   "info",
		Data: map[string]interface{}{
			"sessionId": p.SessionID,
			"reason":    outcome.Reason,
			"pnl":       p.CurrentPnL.String(),
		},
	}
	env, err := events.Derive(parent, events.EventParticipantStopped, payload)
	if err != nil {
		logger.Error("❌ Encode participant.stopped: %v", err)
		return
	}
	publish(ctx, w.broker, events.TopicNotifications, env)
}

func (w *DBWorker) Stats() map[string]interface{} {
	return map[string]interface{}{
		"opened":      w.opened.Load(),
		"closed":      w.closed.Load(),
		"retried":     w.retried.Load(),
		"dropped":     w.dropped.Load(),
		"failures":    w.failures.Load(),
		"stopped":     w.stopped.Load(),
		"retry_queue": w.queue.Len(),
	}
}
