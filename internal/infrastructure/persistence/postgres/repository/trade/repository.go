// internal/infrastructure/persistence/postgres/repository/trade/repository.go
package trade_repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/44dummies/tradermind-server-sub000/internal/infrastructure/persistence/postgres/models"
)

var ErrTradeNotFound = errors.New("trade not found")

const tradeColumns = `contract_id, correlation_id, session_id, user_id, participant_id, symbol,
	direction, stake, entry_price, status, profit_loss, close_reason, start_time, closed_at,
	created_at, updated_at`

type tradeRepoImpl struct {
	db *sqlx.DB
}

func NewTradeRepository(db *sqlx.DB) TradeRepository {
	return &tradeRepoImpl{db: db}
}

func (r *tradeRepoImpl) SaveOpened(ctx context.Context, trade *models.Trade) error {
	query := `
		INSERT INTO trades (contract_id, correlation_id, session_id, user_id, participant_id,
			symbol, direction, stake, entry_price, status, start_time)
		VALUES (:contract_id, :correlation_id, :session_id, :user_id, :participant_id,
			:symbol, :direction, :stake, :entry_price, 'open', :start_time)
		ON CONFLICT (contract_id) DO NOTHING
	`
	if _, err := r.db.NamedExecContext(ctx, query, trade); err != nil {
		return fmt.Errorf("TradeRepo.SaveOpened: %w", err)
	}
	return nil
}

// Close inserts the trade as closed when the open event has not been stored yet.
func (r *tradeRepoImpl) Close(ctx context.Context, trade *models.Trade) (bool, error) {
	query := `
		INSERT INTO trades (contract_id, correlation_id, session_id, user_id, participant_id,
			symbol, direction, stake, entry_price, status, profit_loss, close_reason, start_time, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'closed', $10, $11, $12, $13)
		ON CONFLICT (contract_id) DO UPDATE SET
			status = 'closed',
			profit_loss = EXCLUDED.profit_loss,
			close_reason = EXCLUDED.close_reason,
			closed_at = EXCLUDED.closed_at,
			updated_at = NOW()
		WHERE trades.status = 'open'
		RETURNING contract_id
	`
	var contractID string
	err := r.db.QueryRowxContext(ctx, query,
		trade.ContractID, trade.CorrelationID, trade.SessionID, trade.UserID, trade.ParticipantID,
		trade.Symbol, trade.Direction, trade.Stake, trade.EntryPrice,
		trade.ProfitLoss, trade.CloseReason, trade.StartTime, trade.ClosedAt,
	).Scan(&contractID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("TradeRepo.Close: %w", err)
	}
	return true, nil
}

func (r *tradeRepoImpl) GetByContractID(ctx context.Context, contractID string) (*models.Trade, error) {
	var t models.Trade
	err := r.db.GetContext(ctx, &t, `SELECT `+tradeColumns+` FROM trades WHERE contract_id = $1`, contractID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTradeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("TradeRepo.GetByContractID: %w", err)
	}
	return &t, nil
}

func (r *tradeRepoImpl) ListBySession(ctx context.Context, sessionID string, limit int) ([]*models.Trade, error) {
	if limit <= 0 {
		limit = 100
	}
	var trades []*models.Trade
	err := r.db.SelectContext(ctx, &trades,
		`SELECT `+tradeColumns+` FROM trades WHERE session_id = $1 ORDER BY start_time DESC LIMIT $2`,
		sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("TradeRepo.ListBySession: %w", err)
	}
	return trades, nil
}
