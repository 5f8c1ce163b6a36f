package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound marks a missing row.
var ErrNotFound = errors.New("store: not found")

// CreateSession inserts a session row; existing keys are left untouched.
func (s *Store) CreateSession(key string) error {
	now := time.Now().Unix()
	_, err := s.db.Exec(`
		INSERT INTO sessions (session_key, created_at, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(session_key) DO NOTHING`,
		key, now, now)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetSession fetches one session by key.
func (s *Store) GetSession(key string) (*Session, error) {
	row := s.db.QueryRow(`
		SELECT session_key, message_count, token_estimate, COALESCE(metadata, ''), created_at, updated_at
		FROM sessions WHERE session_key = ?`, key)

	var sess Session
	var created, updated int64
	err := row.Scan(&sess.SessionKey, &sess.MessageCount, &sess.TokenEstimate, &sess.Metadata, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	sess.CreatedAt = time.Unix(created, 0)
	sess.UpdatedAt = time.Unix(updated, 0)
	return &sess, nil
}

// BumpSession advances message count and token estimates after a persisted message.
func (s *Store) BumpSession(key string, tokenEstimate int) error {
	_, err := s.db.Exec(`
		UPDATE sessions
		SET message_count = message_count + 1,
		    token_estimate = token_estimate + ?,
		    updated_at = ?
		WHERE session_key = ?`,
		tokenEstimate, time.Now().Unix(), key)
	if err != nil {
		return fmt.Errorf("bump session: %w", err)
	}
	return nil
}

// SetSessionTokenEstimate overwrites the accumulated estimate (after summary compression).
func (s *Store) SetSessionTokenEstimate(key string, tokenEstimate int) error {
	_, err := s.db.Exec(`
		UPDATE sessions SET token_estimate = ?, updated_at = ? WHERE session_key = ?`,
		tokenEstimate, time.Now().Unix(), key)
	if err != nil {
		return fmt.Errorf("set session tokens: %w", err)
	}
	return nil
}
