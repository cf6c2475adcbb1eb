// application/scheduler/jobs.go
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/44dummies/tradermind-server-sub000/internal/core/domain/risk"
	"github.com/44dummies/tradermind-server-sub000/internal/core/domain/session"
	"github.com/44dummies/tradermind-server-sub000/pkg/logger"
)

// ReasonOverdue ends sessions whose auto-stop timer was lost, e.g. across a restart.
const ReasonOverdue = "duration_elapsed"

// SessionSweeper is the part of the session manager the sweep job uses.
type SessionSweeper interface {
	ListSessions(ctx context.Context, statuses ...session.Status) ([]*session.Session, error)
	CompleteSession(ctx context.Context, sessionID, reason string) (*session.Session, error)
}

type Deps struct {
	Sessions SessionSweeper
	Ledger   *risk.Ledger
	Exposure *risk.CorrelationManager
	Now      func() time.Time
}

// RegisterAll registers every job whose dependencies are present.
func RegisterAll(s *Scheduler, deps Deps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Sessions != nil {
		s.Register(&Job{
			Name:        "session_sweep",
			Description: "complete running sessions whose duration has elapsed",
			Schedule:    Every(time.Minute),
			Handler:     SweepSessions(deps.Sessions, deps.Now),
		})
	}
	if deps.Ledger != nil {
		s.Register(&Job{
			Name:        "daily_report",
			Description: "log the closing risk ledger of the UTC day",
			Schedule:    DailyAt(23, 59),
			Handler:     DailyReport(deps.Ledger, deps.Exposure),
		})
	}
}

func SweepSessions(sessions SessionSweeper, now func() time.Time) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		running, err := sessions.ListSessions(ctx, session.StatusRunning)
		if err != nil {
			return fmt.Errorf("list running sessions: %w", err)
		}

		var errs []error
		for _, s := range running {
			if s.DurationMinutes <= 0 || s.Remaining(now()) > 0 {
				continue
			}
			_, err := sessions.CompleteSession(ctx, s.ID, ReasonOverdue)
			var te *session.TransitionError
			switch {
			case err == nil:
				logger.Info("⏹️ [Scheduler] Session %s was overdue, completed", s.ID)
			case errors.As(err, &te):
				// stopped concurrently
			default:
				errs = append(errs, fmt.Errorf("complete %s: %w", s.ID, err))
			}
		}
		return errors.Join(errs...)
	}
}

func DailyReport(ledger *risk.Ledger, exposure *risk.CorrelationManager) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		snap := ledger.Snapshot()
		open := 0
		if exposure != nil {
			open = exposure.Global()
		}
		logger.Info("📊 [Scheduler] %s: %d trades, net %s, daily loss %s, losing streak %d, open positions %d",
			snap.Day.Format("2006-01-02"), snap.Trades, snap.NetPnL.StringFixed(2),
			snap.DailyLoss.StringFixed(2), snap.ConsecutiveLosses, open)
		return nil
	}
}
