// Package queue implements the device agent's offline store and replay
// engine. Actions and data mutations performed while the device has no
// connectivity are persisted locally in FIFO order and replayed against the
// server once it is reachable again.
package queue

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const (
	KindAction   = "action"
	KindMutation = "mutation"
)

// maxAttempts bounds replay retries across drain passes. An item that fails
// this many times is flagged dead and skipped so one poison entry cannot
// stall the queue forever.
const maxAttempts = 8

const schema = `
CREATE TABLE IF NOT EXISTS queued_actions (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	payload     TEXT NOT NULL,
	enqueued_at TIMESTAMP NOT NULL,
	retry_count INTEGER NOT NULL DEFAULT 0,
	last_error  TEXT,
	dead        INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_queued_actions_pending ON queued_actions(dead, enqueued_at);
`

// Item is one queued entry awaiting replay.
type Item struct {
	ID         string
	Kind       string
	Payload    []byte
	EnqueuedAt time.Time
	RetryCount int
	LastError  *string
	Dead       bool
}

// Store persists queued items in a local SQLite file.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the agent's queue database at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open queue database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create queue schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Add enqueues a raw payload of the given kind and returns the item id.
func (s *Store) Add(kind string, payload []byte) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO queued_actions (id, kind, payload, enqueued_at) VALUES (?, ?, ?, ?)`,
		id, kind, string(payload), time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("enqueue item: %w", err)
	}
	return id, nil
}

// ListPending returns live items in arrival order.
func (s *Store) ListPending() ([]Item, error) {
	rows, err := s.db.Query(
		`SELECT id, kind, payload, enqueued_at, retry_count, last_error, dead
		 FROM queued_actions WHERE dead = 0 ORDER BY enqueued_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		var payload string
		if err := rows.Scan(&it.ID, &it.Kind, &payload, &it.EnqueuedAt, &it.RetryCount, &it.LastError, &it.Dead); err != nil {
			return nil, fmt.Errorf("scan queued item: %w", err)
		}
		it.Payload = []byte(payload)
		items = append(items, it)
	}
	return items, rows.Err()
}

// Delete removes a replayed item.
func (s *Store) Delete(id string) error {
	if _, err := s.db.Exec(`DELETE FROM queued_actions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete queued item: %w", err)
	}
	return nil
}

// RecordFailure increments the retry counter and flags the item dead once
// maxAttempts is reached. It reports whether the item is now dead.
func (s *Store) RecordFailure(id, errMsg string) (bool, error) {
	_, err := s.db.Exec(
		`UPDATE queued_actions
		 SET retry_count = retry_count + 1,
		     last_error = ?,
		     dead = CASE WHEN retry_count + 1 >= ? THEN 1 ELSE 0 END
		 WHERE id = ?`,
		errMsg, maxAttempts, id,
	)
	if err != nil {
		return false, fmt.Errorf("record failure: %w", err)
	}

	var dead bool
	if err := s.db.QueryRow(`SELECT dead FROM queued_actions WHERE id = ?`, id).Scan(&dead); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("read item state: %w", err)
	}
	return dead, nil
}

// Counts reports pending and dead item totals, for agent status logging.
func (s *Store) Counts() (pending, dead int, err error) {
	err = s.db.QueryRow(
		`SELECT
			COUNT(CASE WHEN dead = 0 THEN 1 END),
			COUNT(CASE WHEN dead = 1 THEN 1 END)
		 FROM queued_actions`,
	).Scan(&pending, &dead)
	if err != nil {
		return 0, 0, fmt.Errorf("count queued items: %w", err)
	}
	return pending, dead, nil
}
