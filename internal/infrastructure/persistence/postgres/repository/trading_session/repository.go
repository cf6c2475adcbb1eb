// internal/infrastructure/persistence/postgres/repository/trading_session/repository.go
package trading_session_repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/44dummies/tradermind-server-sub000/internal/core/domain/session"
)

const sessionColumns = `id, name, type, status, min_balance, default_tp, default_sl, markets,
	staking_mode, base_stake, duration_minutes, remaining_seconds, created_by,
	started_at, resumed_at, paused_at, ended_at, end_reason, created_at, updated_at`

const participantColumns = `session_id, user_id, status, tp, sl, initial_balance, current_pnl,
	joined_at, created_at, updated_at`

type tradingSessionRepoImpl struct {
	db *sqlx.DB
}

// NewTradingSessionRepository returns a PostgreSQL session.Store.
func NewTradingSessionRepository(db *sqlx.DB) session.Store {
	return &tradingSessionRepoImpl{db: db}
}

func (r *tradingSessionRepoImpl) CreateSession(ctx context.Context, s *session.Session) error {
	query := `
		INSERT INTO trading_sessions (` + sessionColumns + `)
		VALUES (:id, :name, :type, :status, :min_balance, :default_tp, :default_sl, :markets,
			:staking_mode, :base_stake, :duration_minutes, :remaining_seconds, :created_by,
			:started_at, :resumed_at, :paused_at, :ended_at, :end_reason, :created_at, :updated_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, s); err != nil {
		return fmt.Errorf("TradingSessionRepo.CreateSession: %w", err)
	}
	return nil
}

// UpdateSession is a compare-and-set on status.
func (r *tradingSessionRepoImpl) UpdateSession(ctx context.Context, s *session.Session, expected session.Status) error {
	query := `
		UPDATE trading_sessions
		SET status = $1, remaining_seconds = $2, started_at = $3, resumed_at = $4,
			paused_at = $5, ended_at = $6, end_reason = $7, updated_at = $8
		WHERE id = $9 AND status = $10
	`
	res, err := r.db.ExecContext(ctx, query,
		s.Status, s.RemainingSeconds, s.StartedAt, s.ResumedAt,
		s.PausedAt, s.EndedAt, s.EndReason, s.UpdatedAt,
		s.ID, expected,
	)
	if err != nil {
		return fmt.Errorf("TradingSessionRepo.UpdateSession: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("TradingSessionRepo.UpdateSession: %w", err)
	}
	if n == 0 {
		return session.ErrConcurrentUpdate
	}
	return nil
}

func (r *tradingSessionRepoImpl) GetSession(ctx context.Context, id string) (*session.Session, error) {
	var s session.Session
	err := r.db.GetContext(ctx, &s, `SELECT `+sessionColumns+` FROM trading_sessions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("TradingSessionRepo.GetSession: %w", err)
	}
	return &s, nil
}

func (r *tradingSessionRepoImpl) ListSessions(ctx context.Context, statuses ...session.Status) ([]*session.Session, error) {
	var (
		sessions []*session.Session
		err      error
	)
	if len(statuses) == 0 {
		err = r.db.SelectContext(ctx, &sessions,
			`SELECT `+sessionColumns+` FROM trading_sessions ORDER BY created_at DESC`)
	} else {
		err = r.db.SelectContext(ctx, &sessions,
			`SELECT `+sessionColumns+` FROM trading_sessions WHERE status = ANY($1) ORDER BY created_at DESC`,
			pq.Array(toStrings(statuses)))
	}
	if err != nil {
		return nil, fmt.Errorf("TradingSessionRepo.ListSessions: %w", err)
	}
	return sessions, nil
}

func (r *tradingSessionRepoImpl) UpsertParticipant(ctx context.Context, p *session.Participant) error {
	query := `
		INSERT INTO session_participants (` + participantColumns + `)
		VALUES (:session_id, :user_id, :status, :tp, :sl, :initial_balance, :current_pnl,
			:joined_at, :created_at, :updated_at)
		ON CONFLICT (session_id, user_id) DO UPDATE SET
			status = EXCLUDED.status,
			tp = EXCLUDED.tp,
			sl = EXCLUDED.sl,
			initial_balance = EXCLUDED.initial_balance,
			current_pnl = EXCLUDED.current_pnl,
			joined_at = EXCLUDED.joined_at,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := r.db.NamedExecContext(ctx, query, p); err != nil {
		return fmt.Errorf("TradingSessionRepo.UpsertParticipant: %w", err)
	}
	return nil
}

func (r *tradingSessionRepoImpl) GetParticipant(ctx context.Context, sessionID, userID string) (*session.Participant, error) {
	var p session.Participant
	err := r.db.GetContext(ctx, &p,
		`SELECT `+participantColumns+` FROM session_participants WHERE session_id = $1 AND user_id = $2`,
		sessionID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrParticipantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("TradingSessionRepo.GetParticipant: %w", err)
	}
	return &p, nil
}

func (r *tradingSessionRepoImpl) ListParticipants(ctx context.Context, sessionID string, statuses ...session.ParticipantStatus) ([]*session.Participant, error) {
	var (
		participants []*session.Participant
		err          error
	)
	if len(statuses) == 0 {
		err = r.db.SelectContext(ctx, &participants,
			`SELECT `+participantColumns+` FROM session_participants WHERE session_id = $1 ORDER BY created_at`,
			sessionID)
	} else {
		names := make([]string, len(statuses))
		for i, st := range statuses {
			names[i] = string(st)
		}
		err = r.db.SelectContext(ctx, &participants,
			`SELECT `+participantColumns+` FROM session_participants WHERE session_id = $1 AND status = ANY($2) ORDER BY created_at`,
			sessionID, pq.Array(names))
	}
	if err != nil {
		return nil, fmt.Errorf("TradingSessionRepo.ListParticipants: %w", err)
	}
	return participants, nil
}

func toStrings(statuses []session.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
