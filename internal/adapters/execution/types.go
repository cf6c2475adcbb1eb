// internal/adapters/execution/types.go
package execution

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/44dummies/tradermind-server-sub000/internal/types/events"
)

var (
	ErrInvalidStake        = errors.New("stake must be positive")
	ErrInsufficientBalance = errors.New("insufficient balance for stake")
	ErrBackendStopped      = errors.New("execution backend stopped")
)

// Order is one contract request for one participant.
type Order struct {
	Symbol        string
	Direction     events.Direction
	Digit         int
	Stake         decimal.Decimal
	UserID        string
	SessionID     string
	ParticipantID string
	CorrelationID string
}

// Position is an opened contract.
type Position struct {
	ContractID string
	Order      Order
	EntryPrice decimal.Decimal
	StartTime  time.Time
}

// Closure reports a settled contract.
type Closure struct {
	Position   Position
	ProfitLoss decimal.Decimal
	Reason     events.CloseReason
	ClosedAt   time.Time
}

// Backend opens contracts and reports their settlement on Closed.
type Backend interface {
	Submit(ctx context.Context, order Order) (Position, error)
	Closed() <-chan Closure
	Name() string
}
