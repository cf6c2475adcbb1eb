// internal/core/domain/session/manager.go
package session

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/44dummies/tradermind-server-sub000/internal/types/events"
	"github.com/44dummies/tradermind-server-sub000/pkg/logger"
)

// Publisher is the broker surface the manager emits session events through.
type Publisher interface {
	Publish(ctx context.Context, topic events.Topic, env events.Envelope) (string, error)
}

// Manager enforces the session state machine and participant rules.
type Manager struct {
	mu        sync.Mutex
	store     Store
	balances  BalanceProvider
	publisher Publisher
	now       func() time.Time
}

func NewManager(store Store, balances BalanceProvider, publisher Publisher) *Manager {
	return &Manager{
		store:     store,
		balances:  balances,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the wall clock, for tests.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

func (m *Manager) CreateSession(ctx context.Context, actor Actor, p CreateParams) (*Session, error) {
	if !actor.IsAdmin {
		return nil, ErrNotAdmin
	}
	if err := validateParams(p); err != nil {
		return nil, err
	}

	minBalance := p.MinBalance
	if minBalance.IsZero() {
		minBalance = DefaultMinBalance(p.Type)
	}
	mode := p.StakingMode
	if mode == "" {
		mode = StakingFixed
	}

	now := m.now()
	s := &Session{
		ID:              uuid.NewString(),
		Name:            p.Name,
		Type:            p.Type,
		Status:          StatusPending,
		MinBalance:      minBalance,
		DefaultTP:       p.DefaultTP,
		DefaultSL:       p.DefaultSL,
		Markets:         append([]string(nil), p.Markets...),
		StakingMode:     mode,
		BaseStake:       p.BaseStake,
		DurationMinutes: p.DurationMinutes,
		CreatedBy:       actor.UserID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := m.store.CreateSession(ctx, s); err != nil {
		return nil, fmt.Errorf("session.Create: %w", err)
	}

	logger.Info("🆕 Session %s (%s) created by %s", s.ID, s.Type, actor.UserID)
	m.emit(ctx, events.EventSessionCreated, s, "")
	return s, nil
}

func validateParams(p CreateParams) error {
	var problems []string
	if !p.Type.Valid() {
		problems = append(problems, fmt.Sprintf("unknown type %q", p.Type))
	}
	if !p.DefaultTP.IsPositive() {
		problems = append(problems, "default TP must be positive")
	}
	if !p.DefaultSL.IsPositive() {
		problems = append(problems, "default SL must be positive")
	}
	if len(p.Markets) == 0 {
		problems = append(problems, "at least one market is required")
	}
	if p.MinBalance.IsNegative() {
		problems = append(problems, "min balance must not be negative")
	}
	if p.StakingMode != "" && p.StakingMode != StakingFixed && p.StakingMode != StakingPercentage {
		problems = append(problems, fmt.Sprintf("unknown staking mode %q", p.StakingMode))
	}
	if !p.BaseStake.IsPositive() {
		problems = append(problems, "base stake must be positive")
	}
	if p.DurationMinutes < 0 {
		problems = append(problems, "duration must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidParams, strings.Join(problems, "; "))
	}
	return nil
}

// InviteUsers adds pending participants. Users already past the invitation stage are left untouched.
func (m *Manager) InviteUsers(ctx context.Context, actor Actor, sessionID string, userIDs []string) ([]*Participant, error) {
	if !actor.IsAdmin {
		return nil, ErrNotAdmin
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.Status.Terminal() {
		return nil, ErrSessionClosed
	}

	now := m.now()
	var invited []*Participant
	for _, userID := range userIDs {
		existing, err := m.store.GetParticipant(ctx, sessionID, userID)
		if err == nil && existing.Status != ParticipantPending {
			continue
		}
		p := &Participant{
			SessionID:  sessionID,
			UserID:     userID,
			Status:     ParticipantPending,
			CurrentPnL: decimal.Zero,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := m.store.UpsertParticipant(ctx, p); err != nil {
			return invited, fmt.Errorf("session.Invite %s: %w", userID, err)
		}
		invited = append(invited, p)
	}

	logger.Info("✉️ Invited %d users to session %s", len(invited), sessionID)
	return invited, nil
}

// AcceptSession activates an invited participant. The balance must cover the
// session minimum and tp/sl may not be below the session defaults.
func (m *Manager) AcceptSession(ctx context.Context, sessionID, userID string, tp, sl decimal.Decimal) (*Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.Status.Terminal() {
		return nil, ErrSessionClosed
	}

	p, err := m.store.GetParticipant(ctx, sessionID, userID)
	if err != nil || p.Status != ParticipantPending {
		return nil, ErrNotInvited
	}

	if tp.LessThan(s.DefaultTP) {
		return nil, fmt.Errorf("%w: %s < %s", ErrTPBelowMinimum, tp, s.DefaultTP)
	}
	if sl.LessThan(s.DefaultSL) {
		return nil, fmt.Errorf("%w: %s < %s", ErrSLBelowMinimum, sl, s.DefaultSL)
	}

	balance, err := m.balances.Balance(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("session.Accept: balance for %s: %w", userID, err)
	}
	if balance.LessThan(s.MinBalance) {
		return nil, fmt.Errorf("%w: %s < %s", ErrInsufficientBalance, balance, s.MinBalance)
	}

	now := m.now()
	p.Status = ParticipantActive
	p.TP = tp
	p.SL = sl
	p.InitialBalance = balance
	p.CurrentPnL = decimal.Zero
	p.JoinedAt = &now
	p.UpdatedAt = now

	if err := m.store.UpsertParticipant(ctx, p); err != nil {
		return nil, fmt.Errorf("session.Accept: %w", err)
	}

	logger.Info("🤝 %s joined session %s (tp %s, sl %s)", userID, sessionID, tp, sl)
	return p, nil
}

func (m *Manager) StartSession(ctx context.Context, actor Actor, sessionID string) (*Session, error) {
	return m.transition(ctx, actor, sessionID, StatusRunning, events.EventSessionStarted, "", func(s *Session, now time.Time) {
		s.StartedAt = &now
		s.ResumedAt = &now
		s.RemainingSeconds = int64(s.Duration() / time.Second)
	})
}

func (m *Manager) PauseSession(ctx context.Context, actor Actor, sessionID string) (*Session, error) {
	return m.transition(ctx, actor, sessionID, StatusPaused, events.EventSessionPaused, "", func(s *Session, now time.Time) {
		s.RemainingSeconds = int64(s.Remaining(now).Round(time.Second) / time.Second)
		s.PausedAt = &now
	})
}

func (m *Manager) ResumeSession(ctx context.Context, actor Actor, sessionID string) (*Session, error) {
	return m.transition(ctx, actor, sessionID, StatusRunning, events.EventSessionResumed, "", func(s *Session, now time.Time) {
		s.PausedAt = nil
		s.ResumedAt = &now
	})
}

func (m *Manager) StopSession(ctx context.Context, actor Actor, sessionID string) (*Session, error) {
	return m.transition(ctx, actor, sessionID, StatusCompleted, events.EventSessionStopped, "stopped", endSession("stopped"))
}

func (m *Manager) CancelSession(ctx context.Context, actor Actor, sessionID string) (*Session, error) {
	return m.transition(ctx, actor, sessionID, StatusCancelled, events.EventSessionCancelled, "cancelled", endSession("cancelled"))
}

// CompleteSession is the system path used when the duration elapses. It
// publishes session.auto_stopped.
func (m *Manager) CompleteSession(ctx context.Context, sessionID, reason string) (*Session, error) {
	return m.transition(ctx, SystemActor, sessionID, StatusCompleted, events.EventSessionAutoStopped, reason, endSession(reason))
}

func endSession(reason string) func(*Session, time.Time) {
	return func(s *Session, now time.Time) {
		s.RemainingSeconds = int64(s.Remaining(now) / time.Second)
		s.EndedAt = &now
		s.EndReason = reason
	}
}

func (m *Manager) transition(ctx context.Context, actor Actor, sessionID string, to Status, eventType events.EventType, reason string, mutate func(*Session, time.Time)) (*Session, error) {
	if !actor.IsAdmin {
		return nil, ErrNotAdmin
	}

	s, from, err := m.applyTransition(ctx, sessionID, to, mutate)
	if err != nil {
		return nil, err
	}

	logger.Info("🔁 Session %s: %s → %s", sessionID, from, to)
	// Emitted after the lock is released: in direct mode subscribers run inline.
	m.emit(ctx, eventType, s, reason)
	return s, nil
}

func (m *Manager) applyTransition(ctx context.Context, sessionID string, to Status, mutate func(*Session, time.Time)) (*Session, Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, "", err
	}

	from := s.Status
	if !CanTransition(from, to) {
		return nil, from, &TransitionError{SessionID: sessionID, From: from, To: to}
	}

	now := m.now()
	mutate(s, now)
	s.Status = to
	s.UpdatedAt = now

	if err := m.store.UpdateSession(ctx, s, from); err != nil {
		return nil, from, fmt.Errorf("session.Transition %s→%s: %w", from, to, err)
	}
	return s, from, nil
}

func (m *Manager) LeaveSession(ctx context.Context, sessionID, userID string) error {
	return m.setParticipantStatus(ctx, sessionID, userID, ParticipantLeft)
}

func (m *Manager) RemoveParticipant(ctx context.Context, actor Actor, sessionID, userID string) error {
	if !actor.IsAdmin {
		return ErrNotAdmin
	}
	return m.setParticipantStatus(ctx, sessionID, userID, ParticipantRemoved)
}

// setParticipantStatus moves a pending or active participant of an open
// session out of it.
func (m *Manager) setParticipantStatus(ctx context.Context, sessionID, userID string, status ParticipantStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if s.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrSessionClosed, sessionID, s.Status)
	}
	p, err := m.store.GetParticipant(ctx, sessionID, userID)
	if err != nil {
		return err
	}
	if p.Status != ParticipantPending && p.Status != ParticipantActive {
		return fmt.Errorf("%w: %s is %s", ErrParticipantInactive, userID, p.Status)
	}
	p.Status = status
	p.UpdatedAt = m.now()
	if err := m.store.UpsertParticipant(ctx, p); err != nil {
		return fmt.Errorf("session.Participant %s: %w", status, err)
	}
	logger.Info("👋 %s is now %s in session %s", userID, status, sessionID)
	return nil
}

// ApplyTradeResult adds pnl to the participant and stops them once TP or SL is reached.
func (m *Manager) ApplyTradeResult(ctx context.Context, sessionID, userID string, pnl decimal.Decimal) (TradeOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.store.GetParticipant(ctx, sessionID, userID)
	if err != nil {
		return TradeOutcome{}, err
	}

	p.CurrentPnL = p.CurrentPnL.Add(pnl)
	p.UpdatedAt = m.now()

	outcome := TradeOutcome{Participant: p}
	if p.Status == ParticipantActive {
		switch {
		case p.TP.IsPositive() && p.CurrentPnL.GreaterThanOrEqual(p.TP):
			outcome.Stopped, outcome.Reason = true, string(events.CloseTPReached)
		case p.SL.IsPositive() && p.CurrentPnL.LessThanOrEqual(p.SL.Neg()):
			outcome.Stopped, outcome.Reason = true, string(events.CloseSLReached)
		}
		if outcome.Stopped {
			p.Status = ParticipantStopped
		}
	}

	if err := m.store.UpsertParticipant(ctx, p); err != nil {
		return TradeOutcome{}, fmt.Errorf("session.ApplyTradeResult: %w", err)
	}
	if outcome.Stopped {
		logger.Info("🏁 %s stopped in session %s: %s (pnl %s)", userID, sessionID, outcome.Reason, p.CurrentPnL)
	}
	return outcome, nil
}

// GetActiveSession returns the most recently started running session.
func (m *Manager) GetActiveSession(ctx context.Context) (*Session, error) {
	running, err := m.store.ListSessions(ctx, StatusRunning)
	if err != nil {
		return nil, err
	}
	if len(running) == 0 {
		return nil, ErrNoActiveSession
	}
	sort.SliceStable(running, func(i, j int) bool {
		return startedAt(running[i]).After(startedAt(running[j]))
	})
	return running[0], nil
}

func startedAt(s *Session) time.Time {
	if s.StartedAt == nil {
		return time.Time{}
	}
	return *s.StartedAt
}

func (m *Manager) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	return m.store.GetSession(ctx, sessionID)
}

// ListSessions returns sessions in any of statuses, or all of them.
func (m *Manager) ListSessions(ctx context.Context, statuses ...Status) ([]*Session, error) {
	return m.store.ListSessions(ctx, statuses...)
}

func (m *Manager) ActiveParticipants(ctx context.Context, sessionID string) ([]*Participant, error) {
	return m.store.ListParticipants(ctx, sessionID, ParticipantActive)
}

func (m *Manager) GetParticipant(ctx context.Context, sessionID, userID string) (*Participant, error) {
	return m.store.GetParticipant(ctx, sessionID, userID)
}

func (m *Manager) emit(ctx context.Context, eventType events.EventType, s *Session, reason string) {
	if m.publisher == nil {
		return
	}
	payload := events.SessionPayload{
		SessionID:        s.ID,
		Status:           string(s.Status),
		DurationMinutes:  s.DurationMinutes,
		RemainingSeconds: int64(s.Remaining(m.now()) / time.Second),
		Reason:           reason,
	}
	env, err := events.NewEnvelope(eventType, payload, events.WithSession(s.ID))
	if err != nil {
		logger.Error("❌ Encode %s for session %s: %v", eventType, s.ID, err)
		return
	}
	if _, err := m.publisher.Publish(ctx, events.TopicSessionEvents, env); err != nil {
		logger.Warn("⚠️ Publish %s for session %s: %v", eventType, s.ID, err)
	}
}
