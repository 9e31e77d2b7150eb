// Package store is the embedded relational persistence layer: settings, contact annotations, scope profiles, and the
// outreach queue, all behind a single modernc.org/sqlite connection.
package store

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"

	"github.com/pkg/errors"

	_ "modernc.org/sqlite"
)

// Store owns the single process-wide database handle. All access funnels
// through withDB, which acquires a short-held mutex around a closure,
// since the pure-Go sqlite driver is configured for a single connection.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open connects to a SQLite database at path (":memory:" for tests),
// applies the standard foreign-key/WAL/busy-timeout pragmas, and runs
// the schema migration.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("dsn required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", path)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "failed to set pragma: %s", p)
		}
	}

	// Single-connection pool: SQLite serializes writers anyway, and a
	// single connection keeps WAL checkpoints and the busy_timeout
	// pragma in effect for every statement.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// withDB serializes access to the single connection around a closure.
func (s *Store) withDB(ctx context.Context, fn func(ctx context.Context, db *sql.DB) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(ctx, s.db)
}

const schema = `
CREATE TABLE IF NOT EXISTS contact_tags (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL,
	tag TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	UNIQUE(user_id, tag)
);

CREATE TABLE IF NOT EXISTS contact_notes (
	user_id INTEGER PRIMARY KEY,
	notes TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS last_contact (
	user_id INTEGER PRIMARY KEY,
	last_message_date INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS scope_profiles (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	config TEXT NOT NULL,
	is_default INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS outreach_queue (
	id TEXT PRIMARY KEY,
	template TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	started_at INTEGER,
	completed_at INTEGER
);

CREATE TABLE IF NOT EXISTS outreach_recipients (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	queue_id TEXT NOT NULL REFERENCES outreach_queue(id) ON DELETE CASCADE,
	user_id INTEGER NOT NULL,
	first_name TEXT NOT NULL,
	last_name TEXT NOT NULL,
	status TEXT NOT NULL,
	error TEXT,
	sent_at INTEGER,
	UNIQUE(queue_id, user_id)
);
CREATE INDEX IF NOT EXISTS idx_outreach_recipients_queue_id ON outreach_recipients(queue_id);

CREATE TABLE IF NOT EXISTS app_settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
`

func (s *Store) migrate(ctx context.Context) error {
	return s.withDB(ctx, func(ctx context.Context, db *sql.DB) error {
		if _, err := db.ExecContext(ctx, schema); err != nil {
			return errors.Wrap(err, "failed to apply schema")
		}
		slog.Debug("store schema ready")
		return nil
	})
}
