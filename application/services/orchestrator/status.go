// application/services/orchestrator/status.go
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/44dummies/tradermind-server-sub000/internal/core/domain/risk"
	"github.com/44dummies/tradermind-server-sub000/internal/types/events"
	"github.com/44dummies/tradermind-server-sub000/pkg/logger"
)

type State string

const (
	StateStopped   State = "stopped"
	StateRunning   State = "running"
	StatePaused    State = "paused"
	StateEmergency State = "emergency_stopped"
)

// Status is a point-in-time snapshot of the bot.
type Status struct {
	State      State                 `json:"state"`
	Emergency  bool                  `json:"emergency"`
	AutoPaused bool                  `json:"auto_paused"`
	SessionID  string                `json:"session_id,omitempty"`
	Markets    []string              `json:"markets,omitempty"`
	Reason     string                `json:"reason,omitempty"`
	Errors     int                   `json:"errors"`
	LastError  string                `json:"last_error,omitempty"`
	Ticks      int64                 `json:"ticks"`
	Analyses   int64                 `json:"analyses"`
	Pending    int                   `json:"pending"`
	Held       int64                 `json:"held"`
	Discarded  int64                 `json:"discarded"`
	Rejected   int64                 `json:"rejected"`
	Signals    int64                 `json:"signals"`
	Closed     int64                 `json:"closed"`
	StartedAt  time.Time             `json:"started_at,omitempty"`
	Uptime     string                `json:"uptime,omitempty"`
	Exposure   risk.ExposureSnapshot `json:"exposure"`
	Ledger     *risk.LedgerSnapshot  `json:"ledger,omitempty"`
}

// StatusObserver is told about every state change, outside the bot's locks.
type StatusObserver interface {
	OnStatusChange(status Status)
}

// StatusObserverFunc adapts a function to StatusObserver.
type StatusObserverFunc func(Status)

func (f StatusObserverFunc) OnStatusChange(s Status) { f(s) }

func (b *BotEngine) Status() Status {
	b.mu.Lock()
	s := b.statusLocked()
	b.mu.Unlock()

	if b.gate != nil {
		s.Exposure = b.gate.Correlation().Snapshot()
	}
	if b.ledger != nil {
		snap := b.ledger.Snapshot()
		s.Ledger = &snap
	}
	return s
}

func (b *BotEngine) statusLocked() Status {
	s := Status{
		State:      b.state,
		Emergency:  b.emergency,
		AutoPaused: b.autoPaused,
		SessionID:  b.sessionID,
		Markets:    append([]string(nil), b.markets...),
		Reason:     b.reason,
		Errors:     b.errorCount,
		LastError:  b.lastError,
		Ticks:      b.counters.Ticks,
		Analyses:   b.counters.Analyses,
		Pending:    len(b.pending),
		Held:       b.counters.Pending,
		Discarded:  b.counters.Discarded,
		Rejected:   b.counters.Rejected,
		Signals:    b.counters.Signals,
		Closed:     b.counters.Closed,
		StartedAt:  b.startedAt,
	}
	if b.state == StateRunning || b.state == StatePaused {
		s.Uptime = b.now().Sub(b.startedAt).Round(time.Second).String()
	}
	return s
}

// announce delivers s to the observers and publishes bot.status. The caller
// must not hold b.mu.
func (b *BotEngine) announce(ctx context.Context, s Status, observers []StatusObserver) {
	for _, o := range observers {
		o.OnStatusChange(s)
	}
	if b.broker == nil {
		return
	}

	level := "info"
	switch s.State {
	case StateEmergency:
		level = "error"
	case StatePaused:
		level = "warning"
	case StateStopped:
		if s.Reason == ReasonErrorThreshold {
			level = "error"
		}
	}
	payload := events.NotificationPayload{
		Title:   "Bot " + string(s.State),
		Message: fmt.Sprintf("Bot is %s", s.State),
		Level:   level,
		Data: map[string]interface{}{
			"state":   string(s.State),
			"reason":  s.Reason,
			"session": s.SessionID,
			"errors":  s.Errors,
		},
	}
	if s.Reason != "" {
		payload.Message = fmt.Sprintf("Bot is %s (%s)", s.State, s.Reason)
	}
	var opts []events.Option
	if s.SessionID != "" {
		opts = append(opts, events.WithSession(s.SessionID))
	}
	env, err := events.NewEnvelope(events.EventBotStatus, payload, opts...)
	if err != nil {
		logger.Error("❌ Encode bot.status: %v", err)
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := b.broker.Publish(ctx, events.TopicNotifications, env); err != nil {
		logger.Warn("⚠️ Publish bot.status failed: %v", err)
	}
}
