// internal/infrastructure/persistence/postgres/models/notification.go
package models

import "time"

// Notification is a user-facing message kept for the in-app inbox.
type Notification struct {
	ID            string    `db:"id"             json:"id"`
	UserID        string    `db:"user_id"        json:"user_id"`
	SessionID     *string   `db:"session_id"     json:"session_id,omitempty"`
	CorrelationID string    `db:"correlation_id" json:"correlation_id"`
	Type          string    `db:"type"           json:"type"`
	Title         string    `db:"title"          json:"title"`
	Message       string    `db:"message"        json:"message"`
	Data          []byte    `db:"data"           json:"data,omitempty"`
	Delivered     bool      `db:"delivered"      json:"delivered"`
	CreatedAt     time.Time `db:"created_at"     json:"created_at"`
}
