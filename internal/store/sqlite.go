// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Opens the database, creates the messages schema and applies column migrations

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger

	// writeMu serializes appends so ids are assigned in acknowledgement order.
	// Reads never take it.
	writeMu sync.Mutex
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Every pooled connection to ":memory:" would see its own empty database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// WAL lets readers proceed while an append is in flight
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the messages table and its conversation index.
// The scope index is created after migrations because older databases
// lack the group_parent_id column until then.
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT NOT NULL,
			conversation_name TEXT,
			author TEXT NOT NULL,
			author_id TEXT,
			avatar_url TEXT,
			content TEXT NOT NULL,
			created_at TEXT NOT NULL,
			group_parent_id TEXT,
			group_parent_name TEXT,
			is_from_respondent INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation_created
			ON messages(conversation_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations adds columns introduced after the first schema revision and
// then builds the scope index that depends on them.
func (s *SQLiteStore) runMigrations() error {
	// SQLite doesn't support ADD COLUMN IF NOT EXISTS, so we check first
	migrations := []struct {
		column string
		apply  string
	}{
		{column: "group_parent_id", apply: `ALTER TABLE messages ADD COLUMN group_parent_id TEXT`},
		{column: "group_parent_name", apply: `ALTER TABLE messages ADD COLUMN group_parent_name TEXT`},
		{column: "author_id", apply: `ALTER TABLE messages ADD COLUMN author_id TEXT`},
		{column: "is_from_respondent", apply: `ALTER TABLE messages ADD COLUMN is_from_respondent INTEGER NOT NULL DEFAULT 0`},
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRow(`SELECT 1 FROM pragma_table_info('messages') WHERE name = ?`, m.column).Scan(&exists)
		if err == nil {
			continue
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("inspecting messages.%s: %w", m.column, err)
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column to messages: %w", m.column, err)
		}
		s.logger.Info("applied migration", "column", m.column, "table", "messages")
	}

	if err := s.normalizeTimestamps(); err != nil {
		return err
	}

	_, err := s.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_messages_scope_conversation_created
			ON messages(group_parent_id, conversation_id, created_at)
	`)
	if err != nil {
		return fmt.Errorf("creating scope index: %w", err)
	}
	return nil
}

// fixedWidthGlob matches created_at values already in timestampLayout.
const fixedWidthGlob = "[0-9][0-9][0-9][0-9]-[0-9][0-9]-[0-9][0-9]T[0-9][0-9]:[0-9][0-9]:[0-9][0-9].[0-9][0-9][0-9][0-9][0-9][0-9][0-9][0-9][0-9]Z"

// normalizeTimestamps rewrites created_at values stored by older revisions
// (plain RFC 3339 text) into timestampLayout. SQL compares created_at as
// text, so a mixed table would order and filter rows incorrectly.
func (s *SQLiteStore) normalizeTimestamps() error {
	rows, err := s.db.Query(`SELECT id, created_at FROM messages WHERE created_at NOT GLOB ?`, fixedWidthGlob)
	if err != nil {
		return fmt.Errorf("scanning legacy timestamps: %w", err)
	}

	type legacyRow struct {
		id        int64
		createdAt string
	}
	var pending []legacyRow
	for rows.Next() {
		var r legacyRow
		if err := rows.Scan(&r.id, &r.createdAt); err != nil {
			rows.Close()
			return fmt.Errorf("scanning legacy timestamp: %w", err)
		}
		pending = append(pending, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterating legacy timestamps: %w", err)
	}
	rows.Close()

	if len(pending) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning timestamp migration: %w", err)
	}
	defer tx.Rollback()

	converted := 0
	for _, r := range pending {
		t, err := parseTimestamp(r.createdAt)
		if err != nil {
			s.logger.Warn("leaving unparsable created_at in place", "id", r.id, "created_at", r.createdAt)
			continue
		}
		if _, err := tx.Exec(`UPDATE messages SET created_at = ? WHERE id = ?`, formatTimestamp(t), r.id); err != nil {
			return fmt.Errorf("rewriting created_at for message %d: %w", r.id, err)
		}
		converted++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing timestamp migration: %w", err)
	}
	s.logger.Info("normalized legacy timestamps", "rows", converted)
	return nil
}

// Ping verifies the database connection is alive
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: ping: %w", ErrPersistence, err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
