package models

import "time"

// NotificationStatus tracks delivery of a notification.
type NotificationStatus string

const (
	NotificationStatusQueued NotificationStatus = "QUEUED"
	NotificationStatusSent   NotificationStatus = "SENT"
	NotificationStatusFailed NotificationStatus = "FAILED"
)

// Notification is an in-app message addressed to a single user.
type Notification struct {
	ID          string             `db:"id" json:"id"`
	RecipientID string             `db:"recipient_id" json:"recipientId"`
	Subject     string             `db:"subject" json:"subject"`
	Message     string             `db:"message" json:"message"`
	RequestID   *string            `db:"request_id" json:"requestId,omitempty"`
	Status      NotificationStatus `db:"status" json:"status"`
	Attempts    int                `db:"attempts" json:"attempts"`
	CreatedAt   time.Time          `db:"created_at" json:"createdAt"`
	SentAt      *time.Time         `db:"sent_at" json:"sentAt,omitempty"`
}

// NotificationMessage is what workflow code hands to the notifier.
type NotificationMessage struct {
	Subject   string
	Body      string
	RequestID string
}
