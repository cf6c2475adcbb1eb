// internal/infrastructure/persistence/postgres/repository/notification/repository.go
package notification_repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/44dummies/tradermind-server-sub000/internal/infrastructure/persistence/postgres/models"
)

var ErrNotificationNotFound = errors.New("notification not found")

type notificationRepoImpl struct {
	db *sqlx.DB
}

func NewNotificationRepository(db *sqlx.DB) NotificationRepository {
	return &notificationRepoImpl{db: db}
}

// Save is idempotent on id.
func (r *notificationRepoImpl) Save(ctx context.Context, n *models.Notification) error {
	query := `
		INSERT INTO notifications (id, user_id, session_id, correlation_id, type, title, message, data, delivered, created_at)
		VALUES (:id, :user_id, :session_id, :correlation_id, :type, :title, :message, :data, :delivered, :created_at)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := r.db.NamedExecContext(ctx, query, n); err != nil {
		return fmt.Errorf("NotificationRepo.Save: %w", err)
	}
	return nil
}

func (r *notificationRepoImpl) ListByUser(ctx context.Context, userID string, limit int) ([]*models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	var list []*models.Notification
	err := r.db.SelectContext(ctx, &list, `
		SELECT id, user_id, session_id, correlation_id, type, title, message, data, delivered, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("NotificationRepo.ListByUser: %w", err)
	}
	return list, nil
}

func (r *notificationRepoImpl) MarkDelivered(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET delivered = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("NotificationRepo.MarkDelivered: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotificationNotFound
	}
	return nil
}
