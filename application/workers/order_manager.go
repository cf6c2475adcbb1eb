// application/workers/order_manager.go
package workers

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"github.com/44dummies/tradermind-server-sub000/internal/adapters/execution"
	"github.com/44dummies/tradermind-server-sub000/internal/core/domain/session"
	"github.com/44dummies/tradermind-server-sub000/internal/types/events"
	"github.com/44dummies/tradermind-server-sub000/pkg/logger"
)

// OrderSessions is what the order manager reads from the session manager.
type OrderSessions interface {
	GetSession(ctx context.Context, sessionID string) (*session.Session, error)
	ActiveParticipants(ctx context.Context, sessionID string) ([]*session.Participant, error)
}

// ExposureAdjuster corrects the open-position count registered at admission.
type ExposureAdjuster interface {
	Adjust(asset string, from, to int)
}

// OrderManager executes admitted signals for every active participant of the
// signal's session and reports contract settlements as trade.closed.
type OrderManager struct {
	broker   Broker
	sessions OrderSessions
	backend  execution.Backend
	exposure ExposureAdjuster

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	wg      sync.WaitGroup

	signals  atomic.Int64
	skipped  atomic.Int64
	executed atomic.Int64
	failed   atomic.Int64
	closed   atomic.Int64
}

func NewOrderManager(b Broker, sessions OrderSessions, backend execution.Backend, exposure ExposureAdjuster) *OrderManager {
	return &OrderManager{
		broker:   b,
		sessions: sessions,
		backend:  backend,
		exposure: exposure,
	}
}

func (m *OrderManager) Name() string { return "order_manager" }

func (m *OrderManager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}

	if err := subscribeAll(m.broker, GroupOrderManager, []events.Topic{events.TopicTradeSignals}, m.handleSignal); err != nil {
		return err
	}
	m.running = true
	m.stop = make(chan struct{})
	m.wg.Add(1)
	go m.closurePump(ctx)
	return nil
}

func (m *OrderManager) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	close(m.stop)
	m.mu.Unlock()

	err := unsubscribeAll(m.broker, GroupOrderManager, []events.Topic{events.TopicTradeSignals})
	m.wg.Wait()
	return err
}

func (m *OrderManager) handleSignal(ctx context.Context, env events.Envelope) error {
	m.signals.Add(1)

	var sig events.SignalPayload
	if err := env.Decode(&sig); err != nil {
		logger.Error("❌ Order manager dropped %s: %v", env.ID, err)
		return nil
	}

	sess, err := m.sessions.GetSession(ctx, env.SessionID)
	if err != nil {
		m.release(sig.Symbol, 0)
		m.skipped.Add(1)
		logger.Warn("⚠️ Signal %s for unknown session %q: %v", env.ID, env.SessionID, err)
		return nil
	}
	if sess.Status != session.StatusRunning {
		m.release(sig.Symbol, 0)
		m.skipped.Add(1)
		logger.Info("⏭️ Signal %s skipped: session %s is %s", env.ID, sess.ID, sess.Status)
		return nil
	}

	participants, err := m.sessions.ActiveParticipants(ctx, sess.ID)
	if err != nil {
		// Transient store failure: leave the entry pending for redelivery.
		return fmt.Errorf("order manager: participants of %s: %w", sess.ID, err)
	}

	digit := contractDigit(sig)
	opened := 0
	for _, p := range participants {
		stake := StakeFor(sess, p)
		if !stake.IsPositive() {
			continue
		}
		order := execution.Order{
			Symbol:        sig.Symbol,
			Direction:     sig.Direction,
			Digit:         digit,
			Stake:         stake,
			UserID:        p.UserID,
			SessionID:     sess.ID,
			ParticipantID: p.ID(),
			CorrelationID: env.CorrelationID,
		}

		pos, err := m.backend.Submit(ctx, order)
		if err != nil {
			m.failed.Add(1)
			m.publishFailure(ctx, env, order, err)
			continue
		}
		opened++
		m.executed.Add(1)
		m.publishExecuted(ctx, env, pos)
	}

	m.release(sig.Symbol, opened)
	logger.Info("📈 Signal %s %s on %s: %d/%d positions opened",
		env.ID, sig.Direction, sig.Symbol, opened, len(participants))
	return nil
}

// release turns the single admission slot into one slot per opened position.
func (m *OrderManager) release(symbol string, opened int) {
	if m.exposure != nil {
		m.exposure.Adjust(symbol, 1, opened)
	}
}

func (m *OrderManager) publishExecuted(ctx context.Context, parent events.Envelope, pos execution.Position) {
	payload := events.TradeExecutedPayload{
		ContractID:    pos.ContractID,
		Symbol:        pos.Order.Symbol,
		Direction:     pos.Order.Direction,
		Stake:         pos.Order.Stake.InexactFloat64(),
		EntryPrice:    pos.EntryPrice.InexactFloat64(),
		StartTime:     pos.StartTime,
		ParticipantID: pos.Order.ParticipantID,
	}
	env, err := events.Derive(parent, events.EventTradeExecuted, payload, events.WithUser(pos.Order.UserID))
	if err != nil {
		logger.Error("❌ Encode trade.executed %s: %v", pos.ContractID, err)
		return
	}
	publish(ctx, m.broker, events.TopicTradeExecuted, env)
}

func (m *OrderManager) publishFailure(ctx context.Context, parent events.Envelope, order execution.Order, cause error) {
	logger.Warn("⚠️ Order for %s on %s failed: %v", order.UserID, order.Symbol, cause)
	payload := events.NotificationPayload{
		Title:   "Trade failed",
		Message: fmt.Sprintf("%s %s could not be opened: %v", order.Symbol, order.Direction, cause),
		Level:   "error",
		Data: map[string]interface{}{
			"symbol": order.Symbol,
			"stake":  order.Stake.String(),
		},
	}
	env, err := events.Derive(parent, events.EventTradeFailed, payload, events.WithUser(order.UserID))
	if err != nil {
		logger.Error("❌ Encode trade.failed: %v", err)
		return
	}
	publish(ctx, m.broker, events.TopicNotifications, env)
}

func (m *OrderManager) closurePump(ctx context.Context) {
	defer m.wg.Done()
	closed := m.backend.Closed()
	for {
		select {
		case <-m.stop:
			return
		case <-ctx.Done():
			return
		case c, ok := <-closed:
			if !ok {
				return
			}
			m.publishClosed(ctx, c)
		}
	}
}

func (m *OrderManager) publishClosed(ctx context.Context, c execution.Closure) {
	o := c.Position.Order
	payload := events.TradeClosedPayload{
		ContractID:    c.Position.ContractID,
		Symbol:        o.Symbol,
		Direction:     o.Direction,
		Stake:         o.Stake.InexactFloat64(),
		ProfitLoss:    c.ProfitLoss.InexactFloat64(),
		CloseReason:   c.Reason,
		ParticipantID: o.ParticipantID,
	}
	env, err := events.NewEnvelope(events.EventTradeClosed, payload,
		events.WithCorrelation(o.CorrelationID),
		events.WithSession(o.SessionID),
		events.WithUser(o.UserID),
		events.WithTimestamp(c.ClosedAt),
	)
	if err != nil {
		logger.Error("❌ Encode trade.closed %s: %v", c.Position.ContractID, err)
		return
	}
	m.closed.Add(1)
	publish(ctx, m.broker, events.TopicTradeClosed, env)
}

// StakeFor is baseStake in fixed mode and baseStake percent of the initial
// balance in percentage mode.
func StakeFor(s *session.Session, p *session.Participant) decimal.Decimal {
	if s.StakingMode == session.StakingPercentage {
		return p.InitialBalance.Mul(s.BaseStake).Div(decimal.NewFromInt(100)).Round(2)
	}
	return s.BaseStake
}

func contractDigit(sig events.SignalPayload) int {
	if sig.Digit != nil {
		return *sig.Digit
	}
	if sig.Direction == events.DirectionUnder {
		return 8
	}
	return 1
}

func (m *OrderManager) Stats() map[string]interface{} {
	return map[string]interface{}{
		"signals":  m.signals.Load(),
		"skipped":  m.skipped.Load(),
		"executed": m.executed.Load(),
		"failed":   m.failed.Load(),
		"closed":   m.closed.Load(),
	}
}
