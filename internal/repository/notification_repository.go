package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/hostel-noc-api/internal/models"
)

// NotificationRepository persists in-app notifications.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create stores a notification row.
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if n.Status == "" {
		n.Status = models.NotificationStatusSent
	}
	const query = `INSERT INTO notifications (id, recipient_id, subject, message, request_id, status, attempts, created_at, sent_at)
	VALUES (:id, :recipient_id, :subject, :message, :request_id, :status, :attempts, :created_at, :sent_at)
	ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, attempts = EXCLUDED.attempts, sent_at = EXCLUDED.sent_at`
	if _, err := r.db.NamedExecContext(ctx, query, n); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// ListByRecipient returns the newest notifications for a user.
func (r *NotificationRepository) ListByRecipient(ctx context.Context, recipientID string, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	const query = `SELECT id, recipient_id, subject, message, request_id, status, attempts, created_at, sent_at
	FROM notifications WHERE recipient_id = $1 ORDER BY created_at DESC LIMIT $2`
	var notifications []models.Notification
	if err := r.db.SelectContext(ctx, &notifications, query, recipientID, limit); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return notifications, nil
}
