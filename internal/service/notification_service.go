package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/hostel-noc-api/internal/models"
	appErrors "github.com/noah-isme/hostel-noc-api/pkg/errors"
	"github.com/noah-isme/hostel-noc-api/pkg/jobs"
)

// NotificationJobType tags notification jobs on the shared queue.
const NotificationJobType = "noc_notification"

type notificationQueue interface {
	Enqueue(job jobs.Job) error
}

type notificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	ListByRecipient(ctx context.Context, recipientID string, limit int) ([]models.Notification, error)
}

// NotificationService hands notifications to the background queue. It never blocks the caller.
type NotificationService struct {
	queue  notificationQueue
	store  notificationStore
	logger *zap.Logger
}

// NewNotificationService constructs the service.
func NewNotificationService(queue notificationQueue, store notificationStore, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{queue: queue, store: store, logger: logger}
}

// Notify enqueues a message for recipientID.
func (s *NotificationService) Notify(ctx context.Context, recipientID string, msg models.NotificationMessage) error {
	if strings.TrimSpace(recipientID) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "recipient is required")
	}
	if s.queue == nil {
		return fmt.Errorf("notification queue not configured")
	}
	n := &models.Notification{
		ID:          uuid.NewString(),
		RecipientID: recipientID,
		Subject:     msg.Subject,
		Message:     msg.Body,
		Status:      models.NotificationStatusQueued,
		CreatedAt:   time.Now().UTC(),
	}
	if msg.RequestID != "" {
		requestID := msg.RequestID
		n.RequestID = &requestID
	}
	if err := s.queue.Enqueue(jobs.Job{ID: n.ID, Type: NotificationJobType, Payload: n}); err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

// ListForUser returns the caller's latest notifications.
func (s *NotificationService) ListForUser(ctx context.Context, actor *models.JWTClaims, limit int) ([]models.Notification, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	items, err := s.store.ListByRecipient(ctx, actor.UserID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	if items == nil {
		items = []models.Notification{}
	}
	return items, nil
}

// NotificationWorker persists queued notifications.
type NotificationWorker struct {
	store   notificationStore
	metrics *MetricsService
	logger  *zap.Logger
}

// NewNotificationWorker constructs a worker.
func NewNotificationWorker(store notificationStore, metrics *MetricsService, logger *zap.Logger) *NotificationWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationWorker{store: store, metrics: metrics, logger: logger}
}

// Handle processes a queue job.
func (w *NotificationWorker) Handle(ctx context.Context, job jobs.Job) error {
	n, ok := job.Payload.(*models.Notification)
	if !ok || n == nil {
		w.logger.Error("dropping malformed notification job", zap.String("job_id", job.ID))
		return nil
	}
	now := time.Now().UTC()
	n.Status = models.NotificationStatusSent
	n.Attempts = job.Attempt + 1
	n.SentAt = &now
	if err := w.store.Create(ctx, n); err != nil {
		return err
	}
	w.metrics.RecordNotification(OutcomeSuccess)
	return nil
}

// GiveUp records a notification that exhausted its retries.
func (w *NotificationWorker) GiveUp(ctx context.Context, job jobs.Job, cause error) {
	w.metrics.RecordNotification(OutcomeFailure)
	n, ok := job.Payload.(*models.Notification)
	if !ok || n == nil {
		return
	}
	n.Status = models.NotificationStatusFailed
	n.Attempts = job.Attempt
	n.SentAt = nil
	if err := w.store.Create(ctx, n); err != nil {
		w.logger.Warn("failed to record undelivered notification",
			zap.String("notification_id", n.ID),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
	}
}
