// Package sqlitestore provides a SQLite-backed credential store.
package sqlitestore

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jrsteele09/go-notes-session/store"
	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS entries (
	key           TEXT PRIMARY KEY,
	value         TEXT NOT NULL,
	expires_at_ms INTEGER NOT NULL
)`

var _ store.Store = (*Store)(nil)

// Store persists credential entries in SQLite.
type Store struct {
	sqlDB   *sql.DB
	nowFunc func() time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// Open opens (or creates) a SQLite store at path. Use ":memory:" for a
// throwaway database.
func Open(path string, opts ...store.Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serialises writers
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{sqlDB: sqlDB, nowFunc: store.NowFunc(opts...)}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Get retrieves a value by key, deleting it if it has expired.
func (s *Store) Get(key string) (string, error) {
	var value string
	var expiresAt int64
	err := s.sqlDB.QueryRow(`SELECT value, expires_at_ms FROM entries WHERE key = ?`, key).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get entry %q: %w", key, err)
	}

	if expiresAt <= toMillis(s.nowFunc()) {
		if _, err := s.sqlDB.Exec(`DELETE FROM entries WHERE key = ? AND expires_at_ms = ?`, key, expiresAt); err != nil {
			return "", fmt.Errorf("delete expired entry %q: %w", key, err)
		}
		return "", store.ErrNotFound
	}
	return value, nil
}

// Set upserts a value until expiresAt.
func (s *Store) Set(key, value string, expiresAt time.Time) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}
	_, err := s.sqlDB.Exec(
		`INSERT INTO entries (key, value, expires_at_ms) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at_ms = excluded.expires_at_ms`,
		key, value, toMillis(expiresAt),
	)
	if err != nil {
		return fmt.Errorf("set entry %q: %w", key, err)
	}
	return nil
}

// Remove deletes a key.
func (s *Store) Remove(key string) error {
	if _, err := s.sqlDB.Exec(`DELETE FROM entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("remove entry %q: %w", key, err)
	}
	return nil
}
