package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hollyoak/remindhub/internal/model"
)

type PreferenceStore struct {
	db *sql.DB
}

func NewPreferenceStore(db *sql.DB) *PreferenceStore {
	return &PreferenceStore{db: db}
}

const preferenceCols = `owner_id, timezone, quiet_start, quiet_end, notify_medications, notify_appointments, snooze_presets, created_at, updated_at`

func (s *PreferenceStore) Get(ownerID int64) (*model.UserPreference, error) {
	row := s.db.QueryRow(`SELECT `+preferenceCols+` FROM user_preferences WHERE owner_id = ?`, ownerID)
	pref, err := scanPreference(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get preferences: %w", err)
	}
	return pref, nil
}

// EnsureDefaults creates the default preference row for an owner if none
// exists, and returns the current row either way. Called on first opt-in.
func (s *PreferenceStore) EnsureDefaults(ownerID int64) (*model.UserPreference, error) {
	_, err := s.db.Exec(`INSERT OR IGNORE INTO user_preferences (owner_id) VALUES (?)`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("ensure default preferences: %w", err)
	}
	return s.Get(ownerID)
}

// Upsert replaces an owner's preference row.
func (s *PreferenceStore) Upsert(pref model.UserPreference) (*model.UserPreference, error) {
	presets, err := json.Marshal(pref.SnoozePresets)
	if err != nil {
		return nil, fmt.Errorf("marshal snooze presets: %w", err)
	}

	var quietStart, quietEnd any
	if pref.QuietStart != nil {
		quietStart = *pref.QuietStart
	}
	if pref.QuietEnd != nil {
		quietEnd = *pref.QuietEnd
	}

	_, err = s.db.Exec(
		`INSERT INTO user_preferences (owner_id, timezone, quiet_start, quiet_end, notify_medications, notify_appointments, snooze_presets)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(owner_id) DO UPDATE SET
		   timezone = excluded.timezone,
		   quiet_start = excluded.quiet_start,
		   quiet_end = excluded.quiet_end,
		   notify_medications = excluded.notify_medications,
		   notify_appointments = excluded.notify_appointments,
		   snooze_presets = excluded.snooze_presets,
		   updated_at = CURRENT_TIMESTAMP`,
		pref.OwnerID, pref.Timezone, quietStart, quietEnd,
		boolToInt(pref.NotifyMedications), boolToInt(pref.NotifyAppointments), string(presets),
	)
	if err != nil {
		return nil, fmt.Errorf("upsert preferences: %w", err)
	}
	return s.Get(pref.OwnerID)
}

func scanPreference(scanner interface{ Scan(...any) error }) (*model.UserPreference, error) {
	var p model.UserPreference
	var quietStart, quietEnd sql.NullString
	var notifyMeds, notifyAppts int
	var presets string

	err := scanner.Scan(&p.OwnerID, &p.Timezone, &quietStart, &quietEnd,
		&notifyMeds, &notifyAppts, &presets, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if quietStart.Valid {
		p.QuietStart = &quietStart.String
	}
	if quietEnd.Valid {
		p.QuietEnd = &quietEnd.String
	}
	p.NotifyMedications = notifyMeds != 0
	p.NotifyAppointments = notifyAppts != 0

	if err := json.Unmarshal([]byte(presets), &p.SnoozePresets); err != nil {
		return nil, fmt.Errorf("unmarshal snooze presets: %w", err)
	}
	return &p, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
