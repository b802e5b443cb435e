package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/floorreports/internal/model"
)

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) CountAll(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

// Create inserts a user. pinLookup is the keyed digest used to find the
// user at login; pinHash is the bcrypt hash that is verified afterwards.
func (s *UserStore) Create(ctx context.Context, user *model.User, pinLookup, pinHash string) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, role, pin_lookup, pin_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID, user.Name, string(user.Role), pinLookup, pinHash, formatTime(user.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetByPinLookup returns the user and the stored bcrypt hash.
func (s *UserStore) GetByPinLookup(ctx context.Context, pinLookup string) (*model.User, string, error) {
	var hash string
	u, err := s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, name, role, created_at, last_login_at, pin_hash
		FROM users WHERE pin_lookup = ?`, pinLookup), &hash)
	if err != nil {
		return nil, "", err
	}
	return u, hash, nil
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*model.User, error) {
	var hash string
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, name, role, created_at, last_login_at, pin_hash
		FROM users WHERE id = ?`, id), &hash)
}

func (s *UserStore) UpdateLastLogin(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET last_login_at = ? WHERE id = ?`, formatTime(time.Now()), id)
	return err
}

func (s *UserStore) scanUser(row *sql.Row, hash *string) (*model.User, error) {
	var (
		u           model.User
		role        string
		createdAt   string
		lastLoginAt sql.NullString
	)
	err := row.Scan(&u.ID, &u.Name, &role, &createdAt, &lastLoginAt, hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Role = model.Role(role)
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if lastLoginAt.Valid {
		t, err := parseTime(lastLoginAt.String)
		if err != nil {
			return nil, err
		}
		u.LastLoginAt = &t
	}
	return &u, nil
}
