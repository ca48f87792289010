// Package sqlite implements the context and side-effect store on a single
// embedded database file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	_ "modernc.org/sqlite"
)

// Options configure the store.
type Options struct {
	Path   string
	Argon2 Argon2Params
}

// Store wraps the embedded database. All operations serialize on one mutex
// (exclusive writer discipline); writes are committed before returning.
type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	hasher *passwordHasher
	log    *slog.Logger
}

// Open opens (creating if needed) the database file and applies the schema.
func Open(opts Options) (*Store, error) {
	db, err := sql.Open("sqlite", opts.Path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single connection keeps the writer discipline honest even if a
	// caller bypasses the mutex.
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	s := &Store{
		db:     db,
		hasher: newPasswordHasher(opts.Argon2),
		log:    slog.With("component", "store"),
	}
	s.log.Info("database opened", "path", opts.Path)
	return s, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			user_id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
			session_id TEXT DEFAULT '',
			role TEXT NOT NULL CHECK (role IN ('user', 'assistant', 'system')),
			content TEXT NOT NULL,
			timestamp INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_messages_user_ts ON messages(user_id, timestamp);

		CREATE TABLE IF NOT EXISTS reminders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			description TEXT DEFAULT '',
			due_date INTEGER NOT NULL,
			recurring TEXT DEFAULT '',
			completed INTEGER NOT NULL DEFAULT 0,
			completed_at INTEGER,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_reminders_user_due ON reminders(user_id, due_date);

		CREATE TABLE IF NOT EXISTS vault_items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT 'note',
			content BLOB NOT NULL,
			created_at INTEGER NOT NULL,
			modified_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_vault_user_mod ON vault_items(user_id, modified_at);

		CREATE TABLE IF NOT EXISTS media_items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			type TEXT NOT NULL,
			file_path TEXT NOT NULL,
			duration_seconds REAL,
			artist TEXT DEFAULT '',
			album TEXT DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS metrics (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			metric_type TEXT NOT NULL,
			metric_value REAL NOT NULL,
			metadata TEXT,
			recorded_at INTEGER NOT NULL
		);
	`)
	return err
}

// ensureUser creates the user row dependent tables reference. Must be
// called with s.mu held.
func (s *Store) ensureUser(ctx context.Context, userID string, now int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO users (user_id, created_at) VALUES (?, ?)`,
		userID, now)
	if err != nil {
		return fmt.Errorf("ensure user %s: %w", userID, err)
	}
	return nil
}

// Ping checks database liveness for health probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.log.Info("database closed")
	return s.db.Close()
}
