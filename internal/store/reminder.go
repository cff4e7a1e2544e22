package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/hollyoak/remindhub/internal/model"
)

// ReminderStore reads and mutates the two reminder collections owned by the
// CRUD layer. This subsystem only selects due rows, flips notified, and
// moves fire_time on snooze.
type ReminderStore struct {
	db *sql.DB
}

func NewReminderStore(db *sql.DB) *ReminderStore {
	return &ReminderStore{db: db}
}

const reminderCols = `id, owner_id, title, fire_time, notified, recurrence`

func tableFor(kind string) (string, error) {
	switch kind {
	case model.KindMedication:
		return "medication_reminders", nil
	case model.KindAppointment:
		return "appointment_reminders", nil
	default:
		return "", fmt.Errorf("unknown reminder kind %q", kind)
	}
}

func scanReminder(kind string, scanner interface{ Scan(...any) error }) (*model.Reminder, error) {
	var r model.Reminder
	var notifiedInt int
	var recurrence sql.NullString

	err := scanner.Scan(&r.ID, &r.OwnerID, &r.Title, &r.FireTime, &notifiedInt, &recurrence)
	if err != nil {
		return nil, err
	}
	r.Kind = kind
	r.Notified = notifiedInt != 0
	if recurrence.Valid {
		r.Recurrence = &recurrence.String
	}
	return &r, nil
}

// Create inserts a reminder. Creation normally belongs to the CRUD layer;
// this exists for seeding and tests.
func (s *ReminderStore) Create(kind string, ownerID int64, title string, fireTime time.Time) (*model.Reminder, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	result, err := s.db.Exec(
		`INSERT INTO `+table+` (owner_id, title, fire_time) VALUES (?, ?, ?)`,
		ownerID, title, fireTime.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert reminder: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.Get(kind, id)
}

func (s *ReminderStore) Get(kind string, id int64) (*model.Reminder, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRow(`SELECT `+reminderCols+` FROM `+table+` WHERE id = ?`, id)
	r, err := scanReminder(kind, row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reminder: %w", err)
	}
	return r, nil
}

// ListDue returns all unnotified reminders of the given kind whose fire time
// has passed. No side effects; safe to re-run before downstream processing
// completes.
func (s *ReminderStore) ListDue(kind string, now time.Time) ([]model.Reminder, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(
		`SELECT `+reminderCols+` FROM `+table+` WHERE notified = 0 AND fire_time <= ? ORDER BY fire_time ASC`,
		now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list due reminders: %w", err)
	}
	defer rows.Close()

	var reminders []model.Reminder
	for rows.Next() {
		r, err := scanReminder(kind, rows)
		if err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		reminders = append(reminders, *r)
	}
	return reminders, rows.Err()
}

// MarkNotified flips notified on a reminder. Setting it twice is harmless.
func (s *ReminderStore) MarkNotified(kind string, id int64) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`UPDATE `+table+` SET notified = 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark notified: %w", err)
	}
	return nil
}

// Snooze moves a reminder's fire time and clears notified so the next scan
// pass re-selects it.
func (s *ReminderStore) Snooze(kind string, id int64, fireTime time.Time) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(
		`UPDATE `+table+` SET fire_time = ?, notified = 0, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		fireTime.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("snooze reminder: %w", err)
	}
	return nil
}
