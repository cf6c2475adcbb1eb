package notification_repo

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (NotificationRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewNotificationRepository(sqlx.NewDb(db, "postgres")), mock
}

func TestMarkDelivered(t *testing.T) {
	repo, mock := newMock(t)
	query := regexp.QuoteMeta(`UPDATE notifications SET delivered = TRUE WHERE id = $1`)

	mock.ExpectExec(query).WithArgs("n-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).WithArgs("missing").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.MarkDelivered(context.Background(), "n-1"))
	assert.ErrorIs(t, repo.MarkDelivered(context.Background(), "missing"), ErrNotificationNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
