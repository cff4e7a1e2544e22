package model

import "time"

// PushSubscription is one registered delivery target for a user. Endpoint is
// globally unique; a 410 from the push service removes the row.
type PushSubscription struct {
	ID         int64     `json:"id"`
	OwnerID    int64     `json:"owner_id"`
	Endpoint   string    `json:"endpoint"`
	P256dhKey  string    `json:"p256dh_key"`
	AuthKey    string    `json:"auth_key"`
	UserAgent  string    `json:"user_agent"`
	LastSeenAt time.Time `json:"last_seen_at"`
	CreatedAt  time.Time `json:"created_at"`
}
