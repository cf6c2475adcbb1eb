// internal/adapters/market/types.go
package market

import (
	"context"
	"errors"

	"github.com/44dummies/tradermind-server-sub000/internal/core/domain/signals"
)

var (
	ErrAlreadyRunning = errors.New("tick source already running")
	ErrNoSymbols      = errors.New("no symbols to subscribe")
)

// Listener receives ticks and connection changes. Calls for one source are serialised.
type Listener interface {
	OnTick(tick signals.Tick)
	OnDisconnect(err error)
	OnReconnect()
}

// TickSource streams ticks for a set of symbols until Stop.
type TickSource interface {
	Start(ctx context.Context, symbols []string, listener Listener) error
	Stop() error
	IsRunning() bool
	Name() string
}

// Stats is shared by both sources.
type Stats struct {
	Ticks      int64  `json:"ticks"`
	Reconnects int64  `json:"reconnects"`
	Connected  bool   `json:"connected"`
	LastError  string `json:"last_error,omitempty"`
	Subscribed int    `json:"subscribed"`
	SourceName string `json:"source"`
}
