package notification_repo

import (
	"context"

	"github.com/44dummies/tradermind-server-sub000/internal/infrastructure/persistence/postgres/models"
)

// NotificationRepository keeps the per-user inbox.
type NotificationRepository interface {
	Save(ctx context.Context, n *models.Notification) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*models.Notification, error)
	MarkDelivered(ctx context.Context, id string) error
}
