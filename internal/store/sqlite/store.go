// Package sqlite implements the orchestrator store on a local SQLite
// database. It is the default backend: hermetic, single-file, good enough
// for one orchestrator authority with a polling worker fleet.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
)

const (
	sqliteConstraint           = 19
	sqliteConstraintPrimaryKey = 1555
	sqliteConstraintUnique     = 2067
)

type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// WAL keeps readers unblocked while claims and status reports write;
	// busy_timeout makes concurrent writers queue instead of erroring.
	for _, pragma := range []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA busy_timeout=5000;`,
		`PRAGMA foreign_keys=ON;`,
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma: %w", err)
		}
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &Store{db: db}, nil
}

func applySchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS jobs (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  status TEXT NOT NULL,
  worker_id TEXT NOT NULL DEFAULT '',
  preferred_host TEXT NOT NULL DEFAULT '',
  require_host INTEGER NOT NULL DEFAULT 0,
  image TEXT NOT NULL DEFAULT '',
  command TEXT NOT NULL DEFAULT '',
  container_name TEXT NOT NULL DEFAULT '',
  config_path TEXT NOT NULL DEFAULT '',
  volumes TEXT NOT NULL DEFAULT '[]',
  env TEXT NOT NULL DEFAULT '{}',
  container_id TEXT NOT NULL DEFAULT '',
  exit_code INTEGER,
  error TEXT NOT NULL DEFAULT '',
  details TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL,
  status_updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);

CREATE TABLE IF NOT EXISTS queue_entries (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  job_id TEXT NOT NULL UNIQUE,
  preferred_host TEXT NOT NULL DEFAULT '',
  require_host INTEGER NOT NULL DEFAULT 0,
  enqueued_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS claim_markers (
  job_id TEXT PRIMARY KEY,
  worker_id TEXT NOT NULL,
  claimed_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS hosts (
  worker_id TEXT PRIMARY KEY,
  last_heartbeat_at TEXT NOT NULL,
  info TEXT NOT NULL DEFAULT '{}'
);
`
	_, err := db.Exec(schema)
	return err
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// beginWrite starts a write transaction. Serializable maps to an exclusive
// SQLite transaction, which is what the claim CAS relies on.
func (s *Store) beginWrite(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
}

func isConstraintError(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqliteConstraint, sqliteConstraintPrimaryKey, sqliteConstraintUnique:
			return true
		}
	}
	return false
}

// timeLayout pads nanoseconds to fixed width so the stored strings order
// chronologically under SQLite's text comparison.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t, nil
}
