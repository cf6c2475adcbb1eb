// application/services/orchestrator/pipeline.go
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/44dummies/tradermind-server-sub000/internal/core/domain/signals"
	"github.com/44dummies/tradermind-server-sub000/internal/core/domain/signals/engine"
	"github.com/44dummies/tradermind-server-sub000/internal/types/events"
	"github.com/44dummies/tradermind-server-sub000/pkg/logger"
)

// OnTick runs the pipeline for one tick. Ticks of one source arrive serially.
func (b *BotEngine) OnTick(tick signals.Tick) {
	b.mu.Lock()
	if b.state != StateRunning {
		b.mu.Unlock()
		return
	}
	b.counters.Ticks++
	ctx := b.ctx
	pending, hasPending := b.pending[tick.Symbol]
	b.mu.Unlock()

	if err := b.safeProcess(ctx, tick, pending, hasPending); err != nil {
		b.recordError(tick.Symbol, err)
	}
}

func (b *BotEngine) safeProcess(ctx context.Context, tick signals.Tick, pending signals.Signal, hasPending bool) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline panic: %v", r)
		}
	}()
	return b.process(ctx, tick, pending, hasPending)
}

func (b *BotEngine) process(ctx context.Context, tick signals.Tick, pending signals.Signal, hasPending bool) error {
	if err := b.history.StoreTick(tick); err != nil {
		return fmt.Errorf("store tick: %w", err)
	}
	if b.history.Count(tick.Symbol) < b.cfg.WarmupTicks {
		return nil
	}
	in, err := b.history.Input(tick.Symbol, b.cfg.MaxHistory)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	if hasPending {
		return b.revalidate(ctx, in, pending)
	}

	a, err := b.analyzer.Analyze(in)
	b.mu.Lock()
	b.counters.Analyses++
	b.mu.Unlock()
	if errors.Is(err, signals.ErrInsufficientData) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("analyze %s: %w", tick.Symbol, err)
	}
	if !a.Recommended {
		return nil
	}

	sig := a.Signal()
	b.mu.Lock()
	if b.state == StateRunning {
		b.pending[sig.Market] = sig
		b.counters.Pending++
	}
	b.mu.Unlock()
	logger.Info("⏳ %s %s (digit %d, conf %.3f) held for revalidation", sig.Market, sig.Side, sig.Digit, sig.Confidence)
	return nil
}

// revalidate is the smart-delay step: the pending signal survives only if the
// extended history still points the same way.
func (b *BotEngine) revalidate(ctx context.Context, in signals.Input, pending signals.Signal) error {
	r, err := b.analyzer.Revalidate(in, pending)
	if errors.Is(err, engine.ErrNotExtended) {
		return nil
	}

	b.mu.Lock()
	delete(b.pending, pending.Market)
	if err != nil || !r.Confirmed {
		b.counters.Discarded++
	}
	b.mu.Unlock()

	if errors.Is(err, signals.ErrInsufficientData) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("revalidate %s: %w", pending.Market, err)
	}
	if !r.Confirmed {
		logger.Info("🗑️ %s %s discarded: %s", pending.Market, pending.Side, r.Reason)
		return nil
	}
	return b.admit(ctx, pending)
}

// admit runs the risk gate and publishes the signal with a new correlation id.
func (b *BotEngine) admit(ctx context.Context, sig signals.Signal) error {
	d := b.gate.Admit(b.ledger.Context(sig.Market))
	if !d.Allowed {
		b.mu.Lock()
		b.counters.Rejected++
		b.mu.Unlock()
		return nil
	}

	b.mu.Lock()
	sessionID := b.sessionID
	running := b.state == StateRunning
	b.mu.Unlock()
	if !running {
		b.gate.Correlation().Deregister(sig.Market)
		return nil
	}

	env, err := events.NewEnvelope(events.EventSignalGenerated, sig.Payload(), events.WithSession(sessionID))
	if err != nil {
		b.gate.Correlation().Deregister(sig.Market)
		return fmt.Errorf("encode signal: %w", err)
	}
	if _, err := b.broker.Publish(ctx, events.TopicTradeSignals, env); err != nil {
		b.gate.Correlation().Deregister(sig.Market)
		return fmt.Errorf("publish signal: %w", err)
	}

	b.mu.Lock()
	b.counters.Signals++
	b.mu.Unlock()
	logger.Signal(sig.Market, string(sig.Side), sig.Digit, sig.Confidence, sig.MaxRuns)
	logger.Debug("📤 Signal %s for session %s (correlation %s)", env.ID, sessionID, env.CorrelationID)
	return nil
}

// recordError counts a pipeline failure and stops the bot at the threshold.
// It runs on the tick source's goroutine, so the source is stopped
// asynchronously.
func (b *BotEngine) recordError(symbol string, err error) {
	b.mu.Lock()
	b.errorCount++
	b.lastError = err.Error()
	n := b.errorCount
	if n < b.cfg.ErrorThreshold || b.state != StateRunning {
		b.mu.Unlock()
		logger.Warn("⚠️ Pipeline error %d/%d on %s: %v", n, b.cfg.ErrorThreshold, symbol, err)
		return
	}
	ctx, status, observers := b.haltLocked(StateStopped, ReasonErrorThreshold)
	b.mu.Unlock()

	logger.Error("🚨 Bot stopped after %d pipeline errors, last: %v", n, err)
	go b.stopSource(b.source)
	b.announce(ctx, status, observers)
}
