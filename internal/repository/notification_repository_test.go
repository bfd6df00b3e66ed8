package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/hostel-noc-api/internal/models"
)

func TestNotificationRepositoryCreateDefaults(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notifications")).WillReturnResult(sqlmock.NewResult(1, 1))
	n := &models.Notification{RecipientID: "student-1", Subject: "NOC approved", Message: "Your request was approved"}
	require.NoError(t, repo.Create(context.Background(), n))
	assert.NotEmpty(t, n.ID)
	assert.Equal(t, models.NotificationStatusSent, n.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryListByRecipient(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM notifications WHERE recipient_id = $1 ORDER BY created_at DESC LIMIT $2")).
		WithArgs("student-1", 20).
		WillReturnRows(sqlmock.NewRows([]string{"id", "recipient_id", "subject", "message", "request_id", "status", "attempts", "created_at", "sent_at"}).
			AddRow("n-1", "student-1", "NOC approved", "done", "noc-1", "SENT", 1, now, now))

	list, err := repo.ListByRecipient(context.Background(), "student-1", 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "noc-1", *list[0].RequestID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
