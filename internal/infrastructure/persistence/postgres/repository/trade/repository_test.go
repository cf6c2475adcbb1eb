package trade_repo

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/44dummies/tradermind-server-sub000/internal/infrastructure/persistence/postgres/models"
)

func newMock(t *testing.T) (TradeRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewTradeRepository(sqlx.NewDb(db, "postgres")), mock
}

func closedTrade() *models.Trade {
	now := time.Now()
	reason := "TP_REACHED"
	return &models.Trade{
		ContractID:    "c-1",
		CorrelationID: "corr-1",
		SessionID:     "s-1",
		UserID:        "u-1",
		Symbol:        "R_100",
		Direction:     "OVER",
		Stake:         decimal.NewFromInt(10),
		ProfitLoss:    decimal.NewNullDecimal(decimal.RequireFromString("9.5")),
		CloseReason:   &reason,
		StartTime:     now.Add(-time.Minute),
		ClosedAt:      &now,
	}
}

func TestSaveOpenedIgnoresDuplicates(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectExec(`INSERT INTO trades .* ON CONFLICT \(contract_id\) DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SaveOpened(context.Background(), &models.Trade{ContractID: "c-1", StartTime: time.Now()})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCloseTransitionsOnce(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectQuery(`INSERT INTO trades .* WHERE trades.status = 'open' RETURNING contract_id`).
		WillReturnRows(sqlmock.NewRows([]string{"contract_id"}).AddRow("c-1"))
	mock.ExpectQuery(`INSERT INTO trades .* RETURNING contract_id`).
		WillReturnRows(sqlmock.NewRows([]string{"contract_id"}))

	changed, err := repo.Close(context.Background(), closedTrade())
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.Close(context.Background(), closedTrade())
	require.NoError(t, err)
	assert.False(t, changed, "second close of the same contract must not report a transition")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByContractIDNotFound(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectQuery(`SELECT .* FROM trades WHERE contract_id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"contract_id"}))

	_, err := repo.GetByContractID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrTradeNotFound)
}
