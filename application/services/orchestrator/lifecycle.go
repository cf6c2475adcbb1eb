// application/services/orchestrator/lifecycle.go
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/44dummies/tradermind-server-sub000/internal/adapters/market"
	"github.com/44dummies/tradermind-server-sub000/internal/core/domain/signals"
	"github.com/44dummies/tradermind-server-sub000/pkg/logger"
)

// Start binds the bot to the active session and opens the tick stream for
// its markets.
func (b *BotEngine) Start(ctx context.Context) error {
	b.mu.Lock()
	if err := b.startableLocked(); err != nil {
		b.mu.Unlock()
		return err
	}
	b.mu.Unlock()

	sess, err := b.sessions.GetActiveSession(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoActiveSession, err)
	}
	if len(sess.Markets) == 0 {
		return fmt.Errorf("%w: session %s has no markets", ErrNoActiveSession, sess.ID)
	}
	if err := b.AttachFeedback(); err != nil {
		return err
	}

	b.mu.Lock()
	if err := b.startableLocked(); err != nil {
		b.mu.Unlock()
		return err
	}
	b.state = StateRunning
	b.sessionID = sess.ID
	b.markets = append([]string(nil), sess.Markets...)
	b.reason = ""
	b.errorCount = 0
	b.lastError = ""
	b.autoPaused = false
	b.startedAt = b.now()
	b.ctx = ctx
	b.pending = make(map[string]signals.Signal)
	markets := b.markets
	b.mu.Unlock()

	if err := b.source.Start(ctx, markets, b); err != nil {
		b.mu.Lock()
		b.state = StateStopped
		b.reason = err.Error()
		b.mu.Unlock()
		return fmt.Errorf("start tick stream %s: %w", b.source.Name(), err)
	}

	logger.Info("🤖 Bot started for session %s on %v via %s", sess.ID, markets, b.source.Name())
	b.mu.Lock()
	status, observers := b.statusLocked(), b.observersLocked()
	b.mu.Unlock()
	b.announce(ctx, status, observers)
	return nil
}

func (b *BotEngine) startableLocked() error {
	if b.emergency {
		return ErrEmergencyLatch
	}
	if b.state == StateRunning || b.state == StatePaused {
		return ErrAlreadyRunning
	}
	return nil
}

// Stop closes the tick stream and drops pending signals.
func (b *BotEngine) Stop(reason string) error {
	b.mu.Lock()
	if b.state != StateRunning && b.state != StatePaused {
		b.mu.Unlock()
		return ErrNotRunning
	}
	if reason == "" {
		reason = ReasonManual
	}
	ctx, status, observers := b.haltLocked(StateStopped, reason)
	b.mu.Unlock()

	b.stopSource(b.source)
	logger.Info("🛑 Bot stopped: %s", reason)
	b.announce(ctx, status, observers)
	return nil
}

// EmergencyStop halts the bot whatever its state and latches until
// ResetEmergency. Start is refused while latched.
func (b *BotEngine) EmergencyStop(reason string) {
	if reason == "" {
		reason = ReasonManual
	}
	b.mu.Lock()
	b.emergency = true
	ctx, status, observers := b.haltLocked(StateEmergency, reason)
	b.mu.Unlock()

	b.stopSource(b.source)
	logger.Error("🚨 EMERGENCY STOP: %s", reason)
	b.announce(ctx, status, observers)
}

// ResetEmergency clears the latch and the risk ledger and leaves the bot
// stopped.
func (b *BotEngine) ResetEmergency() bool {
	b.mu.Lock()
	if !b.emergency {
		b.mu.Unlock()
		return false
	}
	if b.ledger != nil {
		b.ledger.Reset()
	}
	b.emergency = false
	b.state = StateStopped
	b.reason = "emergency_reset"
	ctx, status, observers := b.ctx, b.statusLocked(), b.observersLocked()
	b.mu.Unlock()

	logger.Warn("⚠️ Emergency latch cleared")
	b.announce(ctx, status, observers)
	return true
}

// Shutdown stops the bot if needed and detaches the trade feedback loop.
func (b *BotEngine) Shutdown() error {
	if err := b.Stop(ReasonShutdown); err != nil && !errors.Is(err, ErrNotRunning) {
		return err
	}
	return b.DetachFeedback()
}

// haltLocked moves to a non-running state and returns what announce needs.
func (b *BotEngine) haltLocked(to State, reason string) (context.Context, Status, []StatusObserver) {
	b.state = to
	b.reason = reason
	b.autoPaused = false
	b.pending = make(map[string]signals.Signal)
	return b.ctx, b.statusLocked(), b.observersLocked()
}

func (b *BotEngine) observersLocked() []StatusObserver {
	return append([]StatusObserver(nil), b.observers...)
}

// OnDisconnect pauses a running bot until the stream comes back.
func (b *BotEngine) OnDisconnect(err error) {
	b.mu.Lock()
	if b.state != StateRunning {
		b.mu.Unlock()
		return
	}
	b.state = StatePaused
	b.autoPaused = true
	b.reason = ReasonDisconnected
	b.pending = make(map[string]signals.Signal)
	ctx, status, observers := b.ctx, b.statusLocked(), b.observersLocked()
	b.mu.Unlock()

	logger.Warn("⏸️ Bot paused, tick stream lost: %v", err)
	b.announce(ctx, status, observers)
}

// OnReconnect resumes only a pause caused by OnDisconnect.
func (b *BotEngine) OnReconnect() {
	b.mu.Lock()
	if b.state != StatePaused || !b.autoPaused || b.emergency {
		b.mu.Unlock()
		return
	}
	b.state = StateRunning
	b.autoPaused = false
	b.reason = ""
	ctx, status, observers := b.ctx, b.statusLocked(), b.observersLocked()
	b.mu.Unlock()

	logger.Info("▶️ Bot resumed, tick stream back")
	b.announce(ctx, status, observers)
}

var _ market.Listener = (*BotEngine)(nil)
