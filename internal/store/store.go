// Package store implements the gateway's relational persistence layer:
// users, API keys, provider credentials, usage counters, policies, and
// incidents (spec §3, §6 "Persisted layout"). It follows the same
// sql.Open/WAL/migrate shape this codebase's existing SQLite-backed
// storage uses, adapted to this domain's schema.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

// Store provides persistent storage for the gateway's entities.
type Store struct {
	db *sql.DB
}

// Open creates (or attaches to) the SQLite database at dbPath and runs
// migrations.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	// Single-writer database: usage-counter upserts and all other writes
	// share one connection to avoid SQLITE_BUSY under concurrent access.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	if err := s.seedPolicyDefaults(); err != nil {
		db.Close()
		return nil, fmt.Errorf("seeding policy defaults: %w", err)
	}

	slog.Info("store initialized", "path", dbPath)
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for the usage writer (internal/usage),
// which needs to run its own prepared upsert against the same connection.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);

	CREATE TABLE IF NOT EXISTS rampart_api_keys (
		id TEXT PRIMARY KEY,
		owner_user_id TEXT NOT NULL REFERENCES users(id),
		name TEXT NOT NULL,
		prefix TEXT NOT NULL,
		hash TEXT NOT NULL,
		preview TEXT NOT NULL,
		permissions TEXT NOT NULL,
		rate_limit_per_minute INTEGER NOT NULL,
		rate_limit_per_hour INTEGER NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		expires_at DATETIME,
		last_used_at DATETIME,
		created_at DATETIME NOT NULL,
		UNIQUE(prefix, hash)
	);
	CREATE INDEX IF NOT EXISTS idx_api_keys_owner ON rampart_api_keys(owner_user_id);
	CREATE INDEX IF NOT EXISTS idx_api_keys_prefix ON rampart_api_keys(prefix);

	CREATE TABLE IF NOT EXISTS rampart_api_key_usage (
		api_key_id TEXT NOT NULL REFERENCES rampart_api_keys(id),
		endpoint TEXT NOT NULL,
		date TEXT NOT NULL,
		hour INTEGER NOT NULL,
		request_count INTEGER NOT NULL DEFAULT 0,
		tokens INTEGER NOT NULL DEFAULT 0,
		cost REAL NOT NULL DEFAULT 0,
		PRIMARY KEY (api_key_id, endpoint, date, hour)
	);

	CREATE TABLE IF NOT EXISTS provider_keys (
		id TEXT PRIMARY KEY,
		owner_user_id TEXT NOT NULL REFERENCES users(id),
		provider TEXT NOT NULL,
		encrypted TEXT NOT NULL,
		last4 TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		created_at DATETIME NOT NULL,
		UNIQUE(owner_user_id, provider)
	);

	CREATE TABLE IF NOT EXISTS policies (
		id TEXT PRIMARY KEY,
		owner_user_id TEXT NOT NULL REFERENCES users(id),
		type TEXT NOT NULL,
		rules TEXT NOT NULL,
		enabled INTEGER NOT NULL DEFAULT 1,
		version INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_policies_owner ON policies(owner_user_id);

	CREATE TABLE IF NOT EXISTS policy_defaults (
		key TEXT PRIMARY KEY,
		json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS incidents (
		id TEXT PRIMARY KEY,
		owner_user_id TEXT NOT NULL REFERENCES users(id),
		threat_type TEXT NOT NULL,
		severity TEXT NOT NULL,
		content_preview TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'open',
		detected_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_incidents_owner ON incidents(owner_user_id);
	CREATE INDEX IF NOT EXISTS idx_incidents_status ON incidents(status);
	`
	_, err := s.db.Exec(schema)
	return err
}

// nowUTC is a small indirection so tests can stay deterministic if ever
// needed; production code always calls time.Now().UTC().
func nowUTC() time.Time { return time.Now().UTC() }
