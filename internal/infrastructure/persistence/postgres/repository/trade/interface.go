package trade_repo

import (
	"context"

	"github.com/44dummies/tradermind-server-sub000/internal/infrastructure/persistence/postgres/models"
)

// TradeRepository stores executed contracts.
type TradeRepository interface {
	// SaveOpened inserts an open trade. An existing row is left untouched.
	SaveOpened(ctx context.Context, trade *models.Trade) error
	// Close moves a trade to closed. It reports false when the trade was
	// already closed, so the caller applies PnL once per contract.
	Close(ctx context.Context, trade *models.Trade) (bool, error)
	GetByContractID(ctx context.Context, contractID string) (*models.Trade, error)
	ListBySession(ctx context.Context, sessionID string, limit int) ([]*models.Trade, error)
}
