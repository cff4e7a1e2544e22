package model

import "time"

// UserPreference holds one owner's notification toggles, quiet-hours window,
// and time zone. A nil quiet bound disables quiet hours; start > end means
// the window wraps midnight.
type UserPreference struct {
	OwnerID            int64     `json:"owner_id"`
	Timezone           string    `json:"timezone"`
	QuietStart         *string   `json:"quiet_start,omitempty"` // "HH:MM" local time
	QuietEnd           *string   `json:"quiet_end,omitempty"`
	NotifyMedications  bool      `json:"notify_medications"`
	NotifyAppointments bool      `json:"notify_appointments"`
	SnoozePresets      []int     `json:"snooze_presets"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// DefaultPreferences returns the preference row seeded on first opt-in:
// everything enabled, no quiet hours, UTC.
func DefaultPreferences(ownerID int64) UserPreference {
	return UserPreference{
		OwnerID:            ownerID,
		Timezone:           "UTC",
		NotifyMedications:  true,
		NotifyAppointments: true,
		SnoozePresets:      []int{10, 30, 60},
	}
}
