package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Store persists the access token.
type Store interface {
	// Load returns the stored token. ok is false when nothing is stored.
	Load(ctx context.Context) (token string, ok bool, err error)
	Save(ctx context.Context, token string) error
	Delete(ctx context.Context) error
}

// SQLiteStore keeps the token in the settings table under a fixed key.
type SQLiteStore struct {
	db  *sql.DB
	key string
}

// NewSQLiteStore creates a store over db. key is the settings row name, normally "access_token".
func NewSQLiteStore(db *sql.DB, key string) *SQLiteStore {
	return &SQLiteStore{db: db, key: key}
}

// Load reads the token row.
func (s *SQLiteStore) Load(ctx context.Context) (string, bool, error) {
	var token string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, s.key).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: loading %s: %w", ErrStoreUnavailable, s.key, err)
	}
	return token, token != "", nil
}

// Save upserts the token row.
func (s *SQLiteStore) Save(ctx context.Context, token string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		s.key, token, now)
	if err != nil {
		return fmt.Errorf("%w: saving %s: %w", ErrStoreUnavailable, s.key, err)
	}
	return nil
}

// Delete removes the token row. Deleting a missing row is not an error.
func (s *SQLiteStore) Delete(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, s.key); err != nil {
		return fmt.Errorf("%w: deleting %s: %w", ErrStoreUnavailable, s.key, err)
	}
	return nil
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu    sync.Mutex
	token string
}

// NewMemoryStore returns a store pre-loaded with token (which may be empty).
func NewMemoryStore(token string) *MemoryStore {
	return &MemoryStore{token: token}
}

// Load implements Store.
func (m *MemoryStore) Load(context.Context) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, m.token != "", nil
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, token string) error {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
	return nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(context.Context) error {
	m.mu.Lock()
	m.token = ""
	m.mu.Unlock()
	return nil
}
