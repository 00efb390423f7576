// ABOUTME: Local SQLite state for relay-matrix using mattn/go-sqlite3
// ABOUTME: Persists the Matrix sync position and thread root names across restarts

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/id"
)

// StateStore implements mautrix.SyncStore and remembers thread names so
// replies can carry the name of their root message.
type StateStore struct {
	db *sql.DB
}

var _ mautrix.SyncStore = (*StateStore)(nil)

// OpenStateStore opens (or creates) the state database at path.
func OpenStateStore(path string) (*StateStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("creating state directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening state database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &StateStore{db: db}
	if err := s.createSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *StateStore) createSchema() error {
	const schema = `
		CREATE TABLE IF NOT EXISTS sync_state (
			user_id    TEXT PRIMARY KEY,
			filter_id  TEXT NOT NULL DEFAULT '',
			next_batch TEXT NOT NULL DEFAULT ''
		);
		CREATE TABLE IF NOT EXISTS thread_names (
			room_id  TEXT NOT NULL,
			root_id  TEXT NOT NULL,
			name     TEXT NOT NULL,
			PRIMARY KEY (room_id, root_id)
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("creating state schema: %w", err)
	}
	return nil
}

// SaveFilterID stores the sync filter id for userID.
func (s *StateStore) SaveFilterID(ctx context.Context, userID id.UserID, filterID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_state (user_id, filter_id) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET filter_id = excluded.filter_id
	`, userID.String(), filterID)
	if err != nil {
		return fmt.Errorf("saving filter id: %w", err)
	}
	return nil
}

// LoadFilterID returns the stored filter id, or "" when none was saved.
func (s *StateStore) LoadFilterID(ctx context.Context, userID id.UserID) (string, error) {
	return s.loadColumn(ctx, "filter_id", userID)
}

// SaveNextBatch stores the sync token to resume from.
func (s *StateStore) SaveNextBatch(ctx context.Context, userID id.UserID, nextBatchToken string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_state (user_id, next_batch) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET next_batch = excluded.next_batch
	`, userID.String(), nextBatchToken)
	if err != nil {
		return fmt.Errorf("saving next batch: %w", err)
	}
	return nil
}

// LoadNextBatch returns the stored sync token, or "" on first start.
func (s *StateStore) LoadNextBatch(ctx context.Context, userID id.UserID) (string, error) {
	return s.loadColumn(ctx, "next_batch", userID)
}

// loadColumn reads one sync_state column. column is always a literal.
func (s *StateStore) loadColumn(ctx context.Context, column string, userID id.UserID) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT "+column+" FROM sync_state WHERE user_id = ?", userID.String(),
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("loading %s: %w", column, err)
	}
	return value, nil
}

// SaveThreadName records the display name of a thread root.
func (s *StateStore) SaveThreadName(ctx context.Context, roomID id.RoomID, rootID id.EventID, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO thread_names (room_id, root_id, name) VALUES (?, ?, ?)
		ON CONFLICT(room_id, root_id) DO UPDATE SET name = excluded.name
	`, roomID.String(), rootID.String(), name)
	if err != nil {
		return fmt.Errorf("saving thread name: %w", err)
	}
	return nil
}

// LoadThreadName returns a recorded thread name. ok is false when unknown.
func (s *StateStore) LoadThreadName(ctx context.Context, roomID id.RoomID, rootID id.EventID) (name string, ok bool, err error) {
	err = s.db.QueryRowContext(ctx,
		"SELECT name FROM thread_names WHERE room_id = ? AND root_id = ?",
		roomID.String(), rootID.String(),
	).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("loading thread name: %w", err)
	}
	return name, true, nil
}

// Close closes the database.
func (s *StateStore) Close() error {
	return s.db.Close()
}
