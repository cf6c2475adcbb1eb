// internal/core/domain/session/errors.go
package session

import (
	"errors"
	"fmt"
)

var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrNoActiveSession     = errors.New("no running session")
	ErrNotAdmin            = errors.New("admin privileges required")
	ErrConcurrentUpdate    = errors.New("session was modified concurrently")
	ErrInvalidParams       = errors.New("invalid session parameters")

	// Acceptance rejections.
	ErrNotInvited          = errors.New("user was not invited to this session")
	ErrInsufficientBalance = errors.New("balance below session minimum")
	ErrTPBelowMinimum      = errors.New("take profit below session default")
	ErrSLBelowMinimum      = errors.New("stop loss below session default")
	ErrSessionClosed       = errors.New("session is no longer open")

	ErrParticipantInactive = errors.New("participant is neither pending nor active")
)

// TransitionError reports a move the state machine does not allow.
type TransitionError struct {
	SessionID string
	From, To  Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("session %s: invalid transition %s → %s", e.SessionID, e.From, e.To)
}
