package trading_session_repo

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/44dummies/tradermind-server-sub000/internal/core/domain/session"
)

func newMock(t *testing.T) (session.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewTradingSessionRepository(sqlx.NewDb(db, "postgres")), mock
}

func TestUpdateSessionCompareAndSet(t *testing.T) {
	store, mock := newMock(t)
	s := &session.Session{ID: "s-1", Status: session.StatusRunning, UpdatedAt: time.Now()}

	mock.ExpectExec(`UPDATE trading_sessions`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE trading_sessions`).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.UpdateSession(context.Background(), s, session.StatusPending))

	err := store.UpdateSession(context.Background(), s, session.StatusPending)
	assert.ErrorIs(t, err, session.ErrConcurrentUpdate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSessionMapsRow(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now().UTC().Truncate(time.Second)

	cols := []string{"id", "name", "type", "status", "min_balance", "default_tp", "default_sl", "markets",
		"staking_mode", "base_stake", "duration_minutes", "remaining_seconds", "created_by",
		"started_at", "resumed_at", "paused_at", "ended_at", "end_reason", "created_at", "updated_at"}
	mock.ExpectQuery(`SELECT .* FROM trading_sessions WHERE id = \$1`).
		WithArgs("s-1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"s-1", "morning", "day", "running", "100", "50", "20", "{R_100,R_75}",
			"fixed", "1.5", 60, int64(3600), "admin",
			now, now, nil, nil, "", now, now,
		))

	s, err := store.GetSession(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, session.StatusRunning, s.Status)
	assert.Equal(t, session.TypeDay, s.Type)
	assert.True(t, s.MinBalance.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, []string{"R_100", "R_75"}, []string(s.Markets))
	require.NotNil(t, s.StartedAt)
	assert.Nil(t, s.PausedAt)
}

func TestGetSessionNotFound(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectQuery(`SELECT .* FROM trading_sessions`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.GetSession(context.Background(), "nope")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestListParticipantsWrapsErrors(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectQuery(`SELECT .* FROM session_participants WHERE session_id = \$1 AND status = ANY\(\$2\)`).
		WillReturnError(errors.New("boom"))

	_, err := store.ListParticipants(context.Background(), "s-1", session.ParticipantActive)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TradingSessionRepo.ListParticipants")
}
