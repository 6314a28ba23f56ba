// Package prefs persists UI preferences in a small local SQLite database.
// Call-session state is never persisted; the only call-related preference is
// the default call type.
package prefs

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// Default preference values
const (
	KeyCallType = "call_type"

	DefaultCallType = "video"
)

// Store wraps the local preferences database
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens or creates the preferences database in dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create prefs dir: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "prefs.db"))
	if err != nil {
		return nil, fmt.Errorf("open prefs database: %w", err)
	}

	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
		CREATE TABLE IF NOT EXISTS prefs (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("init prefs database: %w", err)
	}

	return &Store{db: db}, nil
}

// Get returns the value for key, or fallback if unset.
func (s *Store) Get(key, fallback string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var value string
	err := s.db.QueryRow(`SELECT value FROM prefs WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return fallback, nil
	}
	if err != nil {
		return fallback, fmt.Errorf("read pref %q: %w", key, err)
	}
	return value, nil
}

// Set stores the value for key, replacing any previous value.
func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO prefs (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("write pref %q: %w", key, err)
	}
	return nil
}

// CallType returns the preferred default call type.
func (s *Store) CallType() string {
	v, err := s.Get(KeyCallType, DefaultCallType)
	if err != nil {
		return DefaultCallType
	}
	return v
}

// SetCallType stores the preferred default call type.
func (s *Store) SetCallType(callType string) error {
	return s.Set(KeyCallType, callType)
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
