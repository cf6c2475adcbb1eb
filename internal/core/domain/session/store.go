// internal/core/domain/session/store.go
package session

import (
	"context"

	"github.com/shopspring/decimal"
)

// Store persists sessions and participants.
type Store interface {
	CreateSession(ctx context.Context, s *Session) error
	// UpdateSession writes s only if the stored status still equals expected,
	// otherwise it returns ErrConcurrentUpdate.
	UpdateSession(ctx context.Context, s *Session, expected Status) error
	GetSession(ctx context.Context, id string) (*Session, error)
	ListSessions(ctx context.Context, statuses ...Status) ([]*Session, error)

	UpsertParticipant(ctx context.Context, p *Participant) error
	GetParticipant(ctx context.Context, sessionID, userID string) (*Participant, error)
	ListParticipants(ctx context.Context, sessionID string, statuses ...ParticipantStatus) ([]*Participant, error)
}

// BalanceProvider reports a user's trading balance.
type BalanceProvider interface {
	Balance(ctx context.Context, userID string) (decimal.Decimal, error)
}
