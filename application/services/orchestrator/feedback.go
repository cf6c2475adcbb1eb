// application/services/orchestrator/feedback.go
package orchestrator

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/44dummies/tradermind-server-sub000/internal/infrastructure/transport/broker"
	"github.com/44dummies/tradermind-server-sub000/internal/types/events"
	"github.com/44dummies/tradermind-server-sub000/pkg/logger"
)

// AttachFeedback subscribes the bot to trade.closed. It stays attached across
// Stop so positions opened before a stop still release their exposure.
func (b *BotEngine) AttachFeedback() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subscribed || b.broker == nil {
		return nil
	}
	err := b.broker.Subscribe(events.TopicTradeClosed, b.HandleTradeClosed,
		broker.WithGroup(GroupBotEngine), broker.WithName(GroupBotEngine))
	if err != nil && !errors.Is(err, broker.ErrAlreadySubscribed) {
		return err
	}
	b.subscribed = true
	return nil
}

func (b *BotEngine) DetachFeedback() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.subscribed {
		return nil
	}
	b.subscribed = false
	err := b.broker.Unsubscribe(events.TopicTradeClosed, broker.WithGroup(GroupBotEngine))
	if errors.Is(err, broker.ErrNotSubscribed) {
		return nil
	}
	return err
}

// HandleTradeClosed releases the contract's exposure slot, books its PnL in
// the risk ledger under the signal's correlation id and feeds the engine's
// win history.
func (b *BotEngine) HandleTradeClosed(_ context.Context, env events.Envelope) error {
	var p events.TradeClosedPayload
	if err := env.Decode(&p); err != nil {
		logger.Warn("⚠️ Bot ignored %s: %v", env.ID, err)
		return nil
	}

	if b.gate != nil {
		b.gate.Correlation().Deregister(p.Symbol)
	}
	if b.ledger != nil {
		b.ledger.RecordSignal(env.CorrelationID, decimal.NewFromFloat(p.ProfitLoss))
	}
	if b.analyzer != nil {
		b.analyzer.RecordTradeResult(p.Symbol, p.ProfitLoss > 0)
	}

	b.mu.Lock()
	b.counters.Closed++
	b.mu.Unlock()
	logger.Debug("📕 %s closed %s: %+.2f (%s)", p.ContractID, p.Symbol, p.ProfitLoss, p.CloseReason)
	return nil
}
