// internal/api/types.go
package api

import (
	"context"
	"net/http"

	"github.com/44dummies/tradermind-server-sub000/application/services/orchestrator"
)

// BotControl is the bot engine surface exposed over HTTP.
type BotControl interface {
	Start(ctx context.Context) error
	Stop(reason string) error
	EmergencyStop(reason string)
	ResetEmergency() bool
	Status() orchestrator.Status
}

// HealthChecker is implemented by the broker, Redis and database services.
type HealthChecker interface {
	Name() string
	HealthCheck() bool
}

// WebSocketHandler registers a push connection for a user.
type WebSocketHandler interface {
	HandleWebSocket(w http.ResponseWriter, r *http.Request, userID string)
}

// StatsFunc contributes one section of GET /status.
type StatsFunc func() interface{}

type Deps struct {
	Bot        BotControl
	Components []HealthChecker
	Stats      map[string]StatsFunc
	Hub        WebSocketHandler
	Mode       func() string
	// Context outlives requests; the bot's tick stream runs under it.
	Context context.Context
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type errorResponse struct {
	Error string `json:"error"`
}
