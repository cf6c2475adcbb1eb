// internal/adapters/notification/factory.go
package notification

import (
	"context"

	"github.com/44dummies/tradermind-server-sub000/internal/infrastructure/config"
	"github.com/44dummies/tradermind-server-sub000/pkg/logger"
)

// NewCompositeFromConfig wires the websocket hub and, with credentials, FCM.
// The hub is returned separately so the HTTP layer can register connections.
func NewCompositeFromConfig(ctx context.Context, cfg config.PushConfig) (*CompositeNotificationService, *Hub) {
	hub := NewHub()
	hub.SetEnabled(cfg.WebSocketEnabled)
	service := NewCompositeNotificationService(hub)

	if cfg.FirebaseCredentials != "" {
		fcm, err := NewFCMNotifier(ctx, cfg.FirebaseCredentials)
		if err != nil {
			logger.Warn("⚠️ FCM push disabled: %v", err)
		} else {
			service.AddNotifier(fcm)
		}
	}
	return service, hub
}
