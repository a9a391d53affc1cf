// Package persistence is the relational store backing the coordination
// kernel: Agents, WorkItems ("Tasks"), MemoryEntries, and the append-only
// EventLog. It owns all entity state; services read and write through the
// scoped handles defined in scope.go.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const (
	schemaVersion = 1

	// defaultMaxRetries bounds how many times a write retries after a
	// SQLITE_BUSY/LOCKED error before giving up.
	defaultMaxRetries = 5
)

// Store wraps the single-file SQLite database under .aiswarm/aiswarm.db.
type Store struct {
	db *sql.DB
}

// DefaultDBPath returns {workingDir}/.aiswarm/aiswarm.db.
func DefaultDBPath(workingDir string) string {
	if workingDir == "" {
		workingDir = "."
	}
	return filepath.Join(workingDir, ".aiswarm", "aiswarm.db")
}

// Open creates (or reuses) the SQLite database at path, running pragma
// setup and schema migration. An empty path uses an in-memory database,
// useful for tests where transactions and scopes still behave as
// documented but are cheap to throw away.
func Open(path string) (*Store, error) {
	dsn := path
	if path == "" || path == ":memory:" {
		// A shared cache keeps the in-memory DB alive across the pool's
		// connections instead of vanishing after the first one closes.
		dsn = "file::memory:?cache=shared"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
		dsn = fmt.Sprintf("%s?_busy_timeout=5000&_foreign_keys=on", path)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite3: %w", err)
	}
	// A single writer connection avoids SQLITE_BUSY from this process
	// fighting itself; cross-process contention still goes through the
	// busy_timeout above.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	ctx := context.Background()
	if err := s.configurePragmas(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// DB exposes the underlying *sql.DB for diagnostics (the admin CLI's
// read-only dashboard, doctor checks).
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) configurePragmas(ctx context.Context) error {
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
	} {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("set pragma %q: %w", pragma, err)
		}
	}
	return nil
}

func (s *Store) initSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL);`,
		`CREATE TABLE IF NOT EXISTS agents (
			id                 TEXT PRIMARY KEY,
			persona_id         TEXT NOT NULL,
			persona_id_norm    TEXT NOT NULL,
			agent_type         TEXT NOT NULL,
			working_directory  TEXT NOT NULL,
			status             TEXT NOT NULL,
			process_id         INTEGER,
			model              TEXT,
			worktree_name      TEXT,
			registered_at      TIMESTAMP NOT NULL,
			last_heartbeat     TIMESTAMP NOT NULL,
			started_at         TIMESTAMP NOT NULL,
			stopped_at         TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_agents_persona_norm ON agents(persona_id_norm);`,
		`CREATE INDEX IF NOT EXISTS idx_agents_status ON agents(status);`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id                 TEXT PRIMARY KEY,
			agent_id           TEXT,
			status             TEXT NOT NULL,
			persona_id         TEXT,
			persona_id_norm    TEXT,
			description        TEXT NOT NULL,
			priority           INTEGER NOT NULL,
			created_at         TIMESTAMP NOT NULL,
			started_at         TIMESTAMP,
			completed_at       TIMESTAMP,
			result             TEXT,
			FOREIGN KEY(agent_id) REFERENCES agents(id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_claimable ON tasks(status, persona_id_norm, priority, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_agent ON tasks(agent_id);`,
		`CREATE TABLE IF NOT EXISTS memory_entries (
			id                 TEXT PRIMARY KEY,
			namespace          TEXT NOT NULL,
			key                TEXT NOT NULL,
			value              TEXT NOT NULL,
			type               TEXT NOT NULL,
			metadata           TEXT,
			is_compressed      INTEGER NOT NULL DEFAULT 0,
			size               INTEGER NOT NULL,
			created_at         TIMESTAMP NOT NULL,
			last_updated_at    TIMESTAMP NOT NULL,
			accessed_at        TIMESTAMP,
			access_count       INTEGER NOT NULL DEFAULT 0,
			UNIQUE(namespace, key)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_memory_namespace ON memory_entries(namespace);`,
		`CREATE TABLE IF NOT EXISTS event_log (
			id                 INTEGER PRIMARY KEY AUTOINCREMENT,
			event_type         TEXT NOT NULL,
			timestamp          TIMESTAMP NOT NULL,
			actor              TEXT,
			correlation_id     TEXT,
			entity_id          TEXT,
			entity_type        TEXT,
			severity           TEXT NOT NULL,
			payload            TEXT NOT NULL,
			tags               TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_event_log_entity ON event_log(entity_type, entity_id);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM schema_version;`).Scan(&count); err != nil {
		return fmt.Errorf("check schema_version: %w", err)
	}
	if count == 0 {
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_version(version) VALUES (?);`, schemaVersion); err != nil {
			return fmt.Errorf("seed schema_version: %w", err)
		}
	}
	return nil
}

// retryOnBusy retries f when SQLite reports BUSY or LOCKED, with bounded
// exponential backoff and jitter, to absorb transient single-writer
// contention without surfacing it to the caller as a hard failure.
func retryOnBusy(ctx context.Context, f func() error) error {
	const baseDelay = 25 * time.Millisecond
	const maxDelay = 400 * time.Millisecond

	var err error
	for attempt := 0; attempt <= defaultMaxRetries; attempt++ {
		err = f()
		if err == nil || !isSQLiteBusy(err) {
			return err
		}
		if attempt == defaultMaxRetries {
			return err
		}
		delay := baseDelay << uint(attempt)
		if delay > maxDelay {
			delay = maxDelay
		}
		jitter := time.Duration(rand.IntN(int(delay/2) + 1))
		delay = delay - delay/4 + jitter

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "(5)") ||
		strings.Contains(msg, "(6)")
}

// NormalizePersona lower-cases and trims a persona tag for case-insensitive
// comparisons, per DESIGN NOTES "canonicalize on write".
func NormalizePersona(persona string) string {
	return strings.ToLower(strings.TrimSpace(persona))
}
