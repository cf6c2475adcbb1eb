// application/workers/session_worker.go
package workers

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/44dummies/tradermind-server-sub000/internal/core/domain/session"
	"github.com/44dummies/tradermind-server-sub000/internal/types/events"
	"github.com/44dummies/tradermind-server-sub000/pkg/logger"
)

// SessionCompleter ends a session whose duration elapsed.
type SessionCompleter interface {
	CompleteSession(ctx context.Context, sessionID, reason string) (*session.Session, error)
}

const ReasonDurationElapsed = "duration_elapsed"

type sessionTimer struct {
	timer    Timer
	deadline time.Time
}

// SessionWorker owns the auto-stop timers. A start arms a timer for the
// session duration, a pause disarms it keeping what is left, a resume re-arms
// it with the remainder and any terminal event clears it.
type SessionWorker struct {
	broker    Broker
	completer SessionCompleter
	clock     Clock

	mu        sync.Mutex
	running   bool
	ctx       context.Context
	timers    map[string]*sessionTimer
	remaining map[string]time.Duration

	armed       atomic.Int64
	expired     atomic.Int64
	completions atomic.Int64
}

var sessionTopics = []events.Topic{events.TopicSessionEvents}

func NewSessionWorker(b Broker, completer SessionCompleter, clock Clock) *SessionWorker {
	if clock == nil {
		clock = RealClock
	}
	return &SessionWorker{
		broker:    b,
		completer: completer,
		clock:     clock,
		timers:    make(map[string]*sessionTimer),
		remaining: make(map[string]time.Duration),
	}
}

func (w *SessionWorker) Name() string { return "session_worker" }

func (w *SessionWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	if err := subscribeAll(w.broker, GroupSession, sessionTopics, w.handle); err != nil {
		return err
	}
	w.running = true
	w.ctx = ctx
	return nil
}

func (w *SessionWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	for id, t := range w.timers {
		t.timer.Stop()
		delete(w.timers, id)
	}
	w.mu.Unlock()

	return unsubscribeAll(w.broker, GroupSession, sessionTopics)
}

func (w *SessionWorker) handle(_ context.Context, env events.Envelope) error {
	var p events.SessionPayload
	if err := env.Decode(&p); err != nil {
		logger.Warn("⚠️ Session worker dropped %s: %v", env.ID, err)
		return nil
	}
	if p.SessionID == "" {
		p.SessionID = env.SessionID
	}

	switch env.Type {
	case events.EventSessionStarted, events.EventSessionResumed:
		d := time.Duration(p.RemainingSeconds) * time.Second
		if d <= 0 && env.Type == events.EventSessionStarted {
			d = time.Duration(p.DurationMinutes) * time.Minute
		}
		if d > 0 {
			w.arm(p.SessionID, d)
		}
	case events.EventSessionPaused:
		w.disarm(p.SessionID, true)
	case events.EventSessionStopped, events.EventSessionCancelled, events.EventSessionAutoStopped:
		w.disarm(p.SessionID, false)
	}
	return nil
}

func (w *SessionWorker) arm(sessionID string, d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if old, ok := w.timers[sessionID]; ok {
		old.timer.Stop()
	}
	delete(w.remaining, sessionID)
	w.timers[sessionID] = &sessionTimer{
		deadline: w.clock.Now().Add(d),
		timer:    w.clock.AfterFunc(d, func() { w.expire(sessionID) }),
	}
	w.armed.Add(1)
	logger.Info("⏱️ Session %s auto-stop in %v", sessionID, d)
}

func (w *SessionWorker) disarm(sessionID string, keepRemaining bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	t, ok := w.timers[sessionID]
	if !ok {
		if !keepRemaining {
			delete(w.remaining, sessionID)
		}
		return
	}
	t.timer.Stop()
	delete(w.timers, sessionID)

	if keepRemaining {
		left := t.deadline.Sub(w.clock.Now())
		if left < 0 {
			left = 0
		}
		w.remaining[sessionID] = left
		logger.Info("⏸️ Session %s auto-stop paused with %v left", sessionID, left.Round(time.Second))
		return
	}
	delete(w.remaining, sessionID)
}

func (w *SessionWorker) expire(sessionID string) {
	w.mu.Lock()
	if _, ok := w.timers[sessionID]; !ok || !w.running {
		w.mu.Unlock()
		return
	}
	delete(w.timers, sessionID)
	ctx := w.ctx
	w.mu.Unlock()

	w.expired.Add(1)
	logger.Info("⌛ Session %s duration elapsed", sessionID)

	if _, err := w.completer.CompleteSession(ctx, sessionID, ReasonDurationElapsed); err != nil {
		var te *session.TransitionError
		if errors.As(err, &te) {
			logger.Debug("Session %s already %s", sessionID, te.From)
			return
		}
		logger.Error("❌ Auto-stop of session %s failed: %v", sessionID, err)
		return
	}
	w.completions.Add(1)
}

// Remaining reports the time left on an armed or paused session timer.
func (w *SessionWorker) Remaining(sessionID string) (time.Duration, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[sessionID]; ok {
		return t.deadline.Sub(w.clock.Now()), true
	}
	d, ok := w.remaining[sessionID]
	return d, ok
}

func (w *SessionWorker) Stats() map[string]interface{} {
	w.mu.Lock()
	active := len(w.timers)
	paused := len(w.remaining)
	w.mu.Unlock()
	return map[string]interface{}{
		"active_timers": active,
		"paused_timers": paused,
		"armed":         w.armed.Load(),
		"expired":       w.expired.Load(),
		"completed":     w.completions.Load(),
	}
}
