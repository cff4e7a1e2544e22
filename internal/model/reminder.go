package model

import (
	"fmt"
	"time"
)

// Reminder kinds
const (
	KindMedication  = "medication"
	KindAppointment = "appointment"
)

// Reminder is one schedulable due-event: a medication dose or an appointment.
// Rows are created by the CRUD layer; this subsystem only flips notified and
// moves fire_time (snooze).
type Reminder struct {
	ID         int64     `json:"id"`
	OwnerID    int64     `json:"owner_id"`
	Kind       string    `json:"kind"`
	Title      string    `json:"title"`
	FireTime   time.Time `json:"fire_time"`
	Notified   bool      `json:"notified"`
	Recurrence *string   `json:"recurrence,omitempty"`
}

// DueItem is a scanned reminder tagged for downstream correlation.
type DueItem struct {
	RefID    string    `json:"ref_id"`
	Kind     string    `json:"kind"`
	EntityID int64     `json:"entity_id"`
	OwnerID  int64     `json:"owner_id"`
	Title    string    `json:"title"`
	FireTime time.Time `json:"fire_time"`
}

// RefID builds the composite id used to correlate a reminder across the
// pipeline, e.g. "med-12" or "appt-4".
func RefID(kind string, entityID int64) string {
	prefix := "appt"
	if kind == KindMedication {
		prefix = "med"
	}
	return fmt.Sprintf("%s-%d", prefix, entityID)
}
