// ABOUTME: SQLite implementation of the Store interfaces using modernc.org/sqlite
// ABOUTME: Opens the database in WAL mode and creates the schema on startup

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a SQLite store at the given path. The schema is
// created if it does not exist; parent directories are created as needed.
// Pass ":memory:" for an in-process test database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	// Pragmas go in the DSN so every pooled connection gets them, not just
	// the one a db.Exec happens to run on.
	// WAL for concurrent readers alongside the scheduler's batch writes.
	// Concurrent seq allocations wait for the writer instead of failing busy.
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS claws (
			claw_id TEXT PRIMARY KEY,
			public_key TEXT NOT NULL UNIQUE,
			encryption_key TEXT NOT NULL DEFAULT '',
			encryption_key_fingerprint TEXT NOT NULL DEFAULT '',
			label TEXT NOT NULL DEFAULT '',
			last_seen_at DATETIME,
			created_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS friendships (
			claw_id TEXT NOT NULL,
			friend_id TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			PRIMARY KEY (claw_id, friend_id)
		);

		CREATE TABLE IF NOT EXISTS relationships (
			claw_id TEXT NOT NULL,
			friend_id TEXT NOT NULL,
			strength REAL NOT NULL,
			dunbar_layer TEXT NOT NULL,
			manual_override INTEGER NOT NULL DEFAULT 0,
			last_interaction_at DATETIME,
			updated_at DATETIME NOT NULL,
			PRIMARY KEY (claw_id, friend_id)
		);

		CREATE TABLE IF NOT EXISTS trust_scores (
			from_claw_id TEXT NOT NULL,
			to_claw_id TEXT NOT NULL,
			domain TEXT NOT NULL,
			q_score REAL NOT NULL DEFAULT 0,
			h_score REAL,
			n_score REAL NOT NULL DEFAULT 0,
			w_score REAL NOT NULL DEFAULT 0,
			composite REAL NOT NULL DEFAULT 0,
			updated_at DATETIME NOT NULL,
			PRIMARY KEY (from_claw_id, to_claw_id, domain)
		);

		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			sender_id TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS inbox_entries (
			id TEXT PRIMARY KEY,
			recipient_id TEXT NOT NULL,
			message_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'unread',
			created_at DATETIME NOT NULL,
			UNIQUE (recipient_id, seq)
		);

		CREATE INDEX IF NOT EXISTS idx_inbox_recipient_seq
			ON inbox_entries(recipient_id, seq);

		CREATE INDEX IF NOT EXISTS idx_inbox_recipient_status
			ON inbox_entries(recipient_id, status);

		CREATE TABLE IF NOT EXISTS seq_counters (
			recipient_id TEXT PRIMARY KEY,
			next_seq INTEGER NOT NULL
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
