package store

import (
	"database/sql"
	"fmt"

	"github.com/hollyoak/remindhub/internal/model"
)

// EventStore is the delivery ledger: append on dispatch attempts, update
// status to clicked on the matching row, read for diagnostics. Nothing is
// ever deleted.
type EventStore struct {
	db *sql.DB
}

func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db}
}

const eventCols = `id, owner_id, entity_kind, entity_id, scheduled_fire_time, sent_at, status, error_message, subscription_id, created_at`

// Append records one dispatch attempt outcome.
func (s *EventStore) Append(ev model.NotificationEvent) error {
	var sentAt, errMsg any
	if ev.SentAt != nil {
		sentAt = ev.SentAt.UTC()
	}
	if ev.ErrorMessage != nil {
		errMsg = *ev.ErrorMessage
	}

	_, err := s.db.Exec(
		`INSERT INTO notification_events (id, owner_id, entity_kind, entity_id, scheduled_fire_time, sent_at, status, error_message, subscription_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.OwnerID, ev.EntityKind, ev.EntityID, ev.ScheduledFireTime.UTC(),
		sentAt, ev.Status, errMsg, ev.SubscriptionID,
	)
	if err != nil {
		return fmt.Errorf("append notification event: %w", err)
	}
	return nil
}

// MarkClicked flips the matching event's status to clicked. Returns false
// when no event matched (unknown id or different owner).
func (s *EventStore) MarkClicked(id string, ownerID int64) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE notification_events SET status = ? WHERE id = ? AND owner_id = ?`,
		model.EventStatusClicked, id, ownerID,
	)
	if err != nil {
		return false, fmt.Errorf("mark event clicked: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *EventStore) Get(id string) (*model.NotificationEvent, error) {
	row := s.db.QueryRow(`SELECT `+eventCols+` FROM notification_events WHERE id = ?`, id)
	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get notification event: %w", err)
	}
	return ev, nil
}

// ListByOwner returns an owner's most recent events, newest first.
func (s *EventStore) ListByOwner(ownerID int64, limit int) ([]model.NotificationEvent, error) {
	rows, err := s.db.Query(
		`SELECT `+eventCols+` FROM notification_events WHERE owner_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		ownerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list notification events: %w", err)
	}
	defer rows.Close()

	var events []model.NotificationEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification event: %w", err)
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}

func scanEvent(scanner interface{ Scan(...any) error }) (*model.NotificationEvent, error) {
	var ev model.NotificationEvent
	var sentAt sql.NullTime
	var errMsg sql.NullString

	err := scanner.Scan(&ev.ID, &ev.OwnerID, &ev.EntityKind, &ev.EntityID, &ev.ScheduledFireTime,
		&sentAt, &ev.Status, &errMsg, &ev.SubscriptionID, &ev.CreatedAt)
	if err != nil {
		return nil, err
	}
	if sentAt.Valid {
		ev.SentAt = &sentAt.Time
	}
	if errMsg.Valid {
		ev.ErrorMessage = &errMsg.String
	}
	return &ev, nil
}
