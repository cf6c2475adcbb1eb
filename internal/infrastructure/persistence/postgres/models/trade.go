// internal/infrastructure/persistence/postgres/models/trade.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TradeStatusOpen   = "open"
	TradeStatusClosed = "closed"
)

// Trade is one executed contract for one participant.
type Trade struct {
	ContractID    string              `db:"contract_id"    json:"contract_id"`
	CorrelationID string              `db:"correlation_id" json:"correlation_id"`
	SessionID     string              `db:"session_id"     json:"session_id"`
	UserID        string              `db:"user_id"        json:"user_id"`
	ParticipantID string              `db:"participant_id" json:"participant_id"`
	Symbol        string              `db:"symbol"         json:"symbol"`
	Direction     string              `db:"direction"      json:"direction"`
	Stake         decimal.Decimal     `db:"stake"          json:"stake"`
	EntryPrice    decimal.Decimal     `db:"entry_price"    json:"entry_price"`
	Status        string              `db:"status"         json:"status"`
	ProfitLoss    decimal.NullDecimal `db:"profit_loss"    json:"profit_loss"`
	CloseReason   *string             `db:"close_reason"   json:"close_reason,omitempty"`
	StartTime     time.Time           `db:"start_time"     json:"start_time"`
	ClosedAt      *time.Time          `db:"closed_at"      json:"closed_at,omitempty"`
	CreatedAt     time.Time           `db:"created_at"     json:"created_at"`
	UpdatedAt     time.Time           `db:"updated_at"     json:"updated_at"`
}

func (t *Trade) IsClosed() bool {
	return t.Status == TradeStatusClosed
}
