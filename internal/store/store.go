// Package store implements keepbot's SQLite persistence: the per-thread
// preference store (color, emoji, member nicknames) and the per-account
// session store. The store holds the owner-approved state; the reconcile
// engine treats it as the single source of truth.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"keepbot/internal/logging"
)

// DefaultColor is the platform default thread color. It is persisted as the
// empty-string sentinel so "never set" and "explicitly default" both resolve
// to it on read while staying distinct from any real color value.
const DefaultColor = "messenger-blue"

// Store wraps a single SQLite connection shared by all reads and writes.
type Store struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string
}

// Open initializes the SQLite database at the given path and creates the
// schema if needed.
func Open(path string) (*Store, error) {
	logging.Store("opening store at %s", path)

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("failed to set busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("failed to set journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("failed to set synchronous=NORMAL: %v", err)
	}

	s := &Store{db: db, path: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	logging.StoreDebug("store schema ready")
	return s, nil
}

// initialize creates the required tables.
func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS login (
		id INTEGER PRIMARY KEY,
		user_id TEXT UNIQUE,
		email TEXT UNIQUE,
		password TEXT,
		session_state TEXT
	);
	CREATE TABLE IF NOT EXISTS threads (
		id INTEGER PRIMARY KEY,
		thread_id TEXT UNIQUE,
		color TEXT,
		emoji TEXT
	);
	CREATE TABLE IF NOT EXISTS nicknames (
		id INTEGER PRIMARY KEY,
		thread_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		nickname TEXT,
		UNIQUE(thread_id, user_id)
	);
	CREATE INDEX IF NOT EXISTS idx_nicknames_thread ON nicknames(thread_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	logging.Store("closing store")
	return s.db.Close()
}

// Color returns the stored color for a thread. A thread never seen before
// (or one whose color was never set) gets the platform default persisted
// and returned; absence is not an error.
func (s *Store) Color(threadID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var color sql.NullString
	err := s.db.QueryRow(`SELECT color FROM threads WHERE thread_id = ?`, threadID).Scan(&color)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("failed to read color for thread %s: %w", threadID, err)
	}
	if errors.Is(err, sql.ErrNoRows) || !color.Valid || color.String == "" {
		if err := s.setColorLocked(threadID, DefaultColor); err != nil {
			return "", err
		}
		return DefaultColor, nil
	}
	return color.String, nil
}

// Emoji returns the stored emoji for a thread, materializing the empty
// default on first lookup.
func (s *Store) Emoji(threadID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var emoji sql.NullString
	err := s.db.QueryRow(`SELECT emoji FROM threads WHERE thread_id = ?`, threadID).Scan(&emoji)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("failed to read emoji for thread %s: %w", threadID, err)
	}
	if errors.Is(err, sql.ErrNoRows) {
		if err := s.setEmojiLocked(threadID, ""); err != nil {
			return "", err
		}
		return "", nil
	}
	if !emoji.Valid {
		return "", nil
	}
	return emoji.String, nil
}

// Nickname returns the stored nickname for a member in a thread,
// materializing the empty default on first lookup.
func (s *Store) Nickname(threadID, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var nickname sql.NullString
	err := s.db.QueryRow(
		`SELECT nickname FROM nicknames WHERE thread_id = ? AND user_id = ?`,
		threadID, userID,
	).Scan(&nickname)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("failed to read nickname for thread %s user %s: %w", threadID, userID, err)
	}
	if errors.Is(err, sql.ErrNoRows) {
		if err := s.setNicknameLocked(threadID, userID, ""); err != nil {
			return "", err
		}
		return "", nil
	}
	if !nickname.Valid {
		return "", nil
	}
	return nickname.String, nil
}

// SetColor records the owner-approved color for a thread. The upsert only
// touches the color column, so a stored emoji survives.
func (s *Store) SetColor(threadID, color string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setColorLocked(threadID, color)
}

func (s *Store) setColorLocked(threadID, color string) error {
	stored := color
	if color == DefaultColor {
		stored = ""
	}
	logging.StoreDebug("set color thread=%s value=%q", threadID, stored)
	_, err := s.db.Exec(
		`INSERT INTO threads (thread_id, color) VALUES (?, ?)
		 ON CONFLICT(thread_id) DO UPDATE SET color = excluded.color`,
		threadID, stored,
	)
	if err != nil {
		return fmt.Errorf("failed to store color for thread %s: %w", threadID, err)
	}
	return nil
}

// SetEmoji records the owner-approved emoji for a thread without touching
// the color column.
func (s *Store) SetEmoji(threadID, emoji string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setEmojiLocked(threadID, emoji)
}

func (s *Store) setEmojiLocked(threadID, emoji string) error {
	logging.StoreDebug("set emoji thread=%s value=%q", threadID, emoji)
	_, err := s.db.Exec(
		`INSERT INTO threads (thread_id, emoji) VALUES (?, ?)
		 ON CONFLICT(thread_id) DO UPDATE SET emoji = excluded.emoji`,
		threadID, emoji,
	)
	if err != nil {
		return fmt.Errorf("failed to store emoji for thread %s: %w", threadID, err)
	}
	return nil
}

// SetNickname records the owner-approved nickname for a member in a thread.
func (s *Store) SetNickname(threadID, userID, nickname string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setNicknameLocked(threadID, userID, nickname)
}

func (s *Store) setNicknameLocked(threadID, userID, nickname string) error {
	logging.StoreDebug("set nickname thread=%s user=%s value=%q", threadID, userID, nickname)
	_, err := s.db.Exec(
		`INSERT INTO nicknames (thread_id, user_id, nickname) VALUES (?, ?, ?)
		 ON CONFLICT(thread_id, user_id) DO UPDATE SET nickname = excluded.nickname`,
		threadID, userID, nickname,
	)
	if err != nil {
		return fmt.Errorf("failed to store nickname for thread %s user %s: %w", threadID, userID, err)
	}
	return nil
}

// Session returns the stored session state for a login email, or nil when
// no session has been persisted yet.
func (s *Store) Session(email string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var state sql.NullString
	err := s.db.QueryRow(`SELECT session_state FROM login WHERE email = ?`, email).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session for %s: %w", email, err)
	}
	if !state.Valid || state.String == "" {
		return nil, nil
	}
	return []byte(state.String), nil
}

// SaveSession upserts the account row, replacing any prior session state
// for that user id.
func (s *Store) SaveSession(userID, email, password string, state []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	logging.StoreDebug("saving session for user=%s email=%s", userID, email)
	_, err := s.db.Exec(
		`INSERT INTO login (user_id, email, password, session_state) VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		 email = excluded.email,
		 password = excluded.password,
		 session_state = excluded.session_state`,
		userID, email, password, string(state),
	)
	if err != nil {
		return fmt.Errorf("failed to save session for user %s: %w", userID, err)
	}
	return nil
}

// Stats returns row counts per table for operational checks.
func (s *Store) Stats() (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]int64)
	for _, table := range []string{"login", "threads", "nicknames"} {
		var count int64
		if err := s.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		stats[table] = count
	}
	return stats, nil
}
