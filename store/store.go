// Package store is the persisted key-value store shared by detector
// sessions, the reminder scheduler, and the presentation API. Values are
// JSON documents keyed by name; every read-modify-write runs inside a
// single SQLite transaction so racing page contexts cannot lose updates.
// Change notification is provided by Watcher, which polls
// PRAGMA data_version.
//
// Usage:
//
//	import _ "modernc.org/sqlite"
//	s, err := store.Open("formwatch.db", store.WithMkdirAll())
//
// In tests:
//
//	s := store.OpenMemory(t)
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);`

type config struct {
	driver      string
	busyTimeout int
	synchronous string
	mkdirAll    bool
	ping        bool
}

func defaults() config {
	return config{
		driver:      "sqlite",
		busyTimeout: 10_000,
		synchronous: "NORMAL",
		ping:        true,
	}
}

// Option customises Open behaviour.
type Option func(*config)

// WithDriver sets the database/sql driver name. Default: "sqlite".
func WithDriver(name string) Option { return func(c *config) { c.driver = name } }

// WithBusyTimeout sets PRAGMA busy_timeout in milliseconds. Default: 10000.
func WithBusyTimeout(ms int) Option { return func(c *config) { c.busyTimeout = ms } }

// WithMkdirAll creates parent directories of the database path before opening.
func WithMkdirAll() Option { return func(c *config) { c.mkdirAll = true } }

// WithoutPing skips the db.Ping() verification after opening.
func WithoutPing() Option { return func(c *config) { c.ping = false } }

// Store wraps an SQLite database holding the kv table.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the store at path with production-safe
// pragmas applied. The caller must blank-import an SQLite driver:
//
//	import _ "modernc.org/sqlite"
func Open(path string, opts ...Option) (*Store, error) {
	cfg := defaults()
	for _, o := range opts {
		o(&cfg)
	}

	if cfg.mkdirAll && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: mkdir: %w", err)
		}
	}

	db, err := sql.Open(cfg.driver, path)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.busyTimeout),
		fmt.Sprintf("PRAGMA synchronous = %s", cfg.synchronous),
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: exec schema: %w", err)
	}

	if cfg.ping {
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: ping: %w", err)
		}
	}

	return &Store{db: db}, nil
}

// OpenMemory opens an in-memory store for testing. It sets MaxOpenConns(1)
// so all queries hit the same in-memory database (each connection to
// ":memory:" creates a separate one) and registers t.Cleanup to close it.
func OpenMemory(t testing.TB, opts ...Option) *Store {
	t.Helper()
	s, err := Open(":memory:", opts...)
	if err != nil {
		t.Fatalf("store.OpenMemory: %v", err)
	}
	s.db.SetMaxOpenConns(1)
	t.Cleanup(func() { s.Close() })
	return s
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying handle for Watcher and diagnostics.
func (s *Store) DB() *sql.DB { return s.db }

// Tx is a transaction-scoped view of the kv table.
type Tx struct {
	ctx context.Context
	tx  *sql.Tx
	now func() time.Time
}

// Get unmarshals the value stored under key into dest. It reports whether
// the key was present; an absent key leaves dest untouched.
func (t *Tx) Get(key string, dest any) (bool, error) {
	var raw string
	err := t.tx.QueryRowContext(t.ctx,
		"SELECT value FROM kv WHERE key = ?", key).Scan(&raw)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: get %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return false, fmt.Errorf("store: decode %s: %w", key, err)
	}
	return true, nil
}

// Set stores v under key as a JSON document, replacing any prior value.
func (t *Tx) Set(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", key, err)
	}
	_, err = t.tx.ExecContext(t.ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(raw), t.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("store: set %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is a no-op.
func (t *Tx) Delete(key string) error {
	if _, err := t.tx.ExecContext(t.ctx, "DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("store: delete %s: %w", key, err)
	}
	return nil
}

// Update runs fn inside a writable transaction. The transaction commits
// when fn returns nil and rolls back otherwise, making every
// get-then-set sequence atomic.
func (s *Store) Update(ctx context.Context, fn func(*Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	if err := fn(&Tx{ctx: ctx, tx: tx, now: time.Now}); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// View runs fn inside a read-only transaction.
func (s *Store) View(ctx context.Context, fn func(*Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("store: begin read: %w", err)
	}
	defer tx.Rollback()
	return fn(&Tx{ctx: ctx, tx: tx, now: time.Now})
}

// Get is a single-key convenience wrapper around View.
func (s *Store) Get(ctx context.Context, key string, dest any) (bool, error) {
	var found bool
	err := s.View(ctx, func(tx *Tx) error {
		var err error
		found, err = tx.Get(key, dest)
		return err
	})
	return found, err
}

// Set is a single-key convenience wrapper around Update.
func (s *Store) Set(ctx context.Context, key string, v any) error {
	return s.Update(ctx, func(tx *Tx) error { return tx.Set(key, v) })
}
