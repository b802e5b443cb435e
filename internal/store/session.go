package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"
)

type SessionStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

func NewSessionStore(db *sql.DB, ttl time.Duration) *SessionStore {
	return &SessionStore{db: db, ttl: ttl, now: time.Now}
}

// TTL is how long a new session stays valid.
func (s *SessionStore) TTL() time.Duration {
	return s.ttl
}

// Create inserts a new session and returns its ID.
func (s *SessionStore) Create(ctx context.Context, userID string) (string, error) {
	id := newToken()
	expiresAt := s.now().Add(s.ttl)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, expires_at) VALUES (?, ?, ?)`,
		id, userID, formatTime(expiresAt),
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetUserID validates the session and returns the associated user ID.
// Returns ErrNotFound if the session does not exist or is expired.
func (s *SessionStore) GetUserID(ctx context.Context, sessionID string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id FROM sessions WHERE id = ? AND expires_at > ?`,
		sessionID, formatTime(s.now()),
	).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return userID, err
}

// Delete removes a single session (logout).
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID)
	return err
}

// DeleteExpired removes expired sessions.
func (s *SessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at <= ?`, formatTime(s.now()))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func newToken() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
