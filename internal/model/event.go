package model

import "time"

// Notification event statuses
const (
	EventStatusSent    = "sent"
	EventStatusFailed  = "failed"
	EventStatusClicked = "clicked"
)

// NotificationEvent is one ledger row: a single dispatch attempt to a single
// device for a single reminder. Append-only; a click updates status on the
// matching row instead of appending a duplicate.
type NotificationEvent struct {
	ID                string     `json:"id"`
	OwnerID           int64      `json:"owner_id"`
	EntityKind        string     `json:"entity_kind"`
	EntityID          int64      `json:"entity_id"`
	ScheduledFireTime time.Time  `json:"scheduled_fire_time"`
	SentAt            *time.Time `json:"sent_at,omitempty"`
	Status            string     `json:"status"`
	ErrorMessage      *string    `json:"error_message,omitempty"`
	SubscriptionID    int64      `json:"subscription_id"`
	CreatedAt         time.Time  `json:"created_at"`
}
