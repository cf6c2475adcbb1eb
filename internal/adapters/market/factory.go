// internal/adapters/market/factory.go
package market

import (
	"fmt"
	"time"

	"github.com/44dummies/tradermind-server-sub000/internal/infrastructure/config"
)

// NewTickSource builds the source selected by MARKET_SOURCE.
func NewTickSource(cfg config.MarketConfig) (TickSource, error) {
	switch cfg.Source {
	case "websocket":
		return NewDerivClient(cfg.WebSocketURL, cfg.ReconnectDelay), nil
	case "mock", "":
		return NewMockFeed(cfg.MockInterval, time.Now().UnixNano()), nil
	default:
		return nil, fmt.Errorf("unknown market source %q", cfg.Source)
	}
}
