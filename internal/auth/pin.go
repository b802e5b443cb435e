// Package auth handles pincode login: hashing, lookup digests and seeding
// the first administrator.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/floorreports/internal/model"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	bcryptCost = 12

	MinPinLength = 4
	MaxPinLength = 8
)

var (
	ErrInvalidPin = fmt.Errorf("pincode must be %d to %d digits", MinPinLength, MaxPinLength)

	// ErrBadCredentials is returned for an unknown or mismatching pincode.
	ErrBadCredentials = errors.New("invalid pincode")
)

// Hash returns a bcrypt hash of the pincode.
func Hash(pin string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pin), bcryptCost)
	return string(b), err
}

// Verify reports whether pin matches the stored bcrypt hash.
func Verify(hash, pin string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)) == nil
}

// ValidPin reports whether pin is all digits and of an accepted length.
func ValidPin(pin string) bool {
	if len(pin) < MinPinLength || len(pin) > MaxPinLength {
		return false
	}
	for _, c := range pin {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// PinLookup returns the keyed digest under which a pincode is indexed. Users
// log in with the pincode alone, so the lookup must be deterministic; the
// bcrypt hash is checked after the row is found.
func PinLookup(key []byte, pin string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(pin))
	return hex.EncodeToString(mac.Sum(nil))
}

func NewID() string {
	return uuid.NewString()
}

// UserCreator is the minimal interface needed for seeding the first admin.
type UserCreator interface {
	CountAll(ctx context.Context) (int, error)
	Create(ctx context.Context, user *model.User, pinLookup, pinHash string) error
}

// SeedFirstAdmin creates an admin account when the users table is empty.
// It does nothing when name or pin is empty.
func SeedFirstAdmin(ctx context.Context, users UserCreator, key []byte, name, pin string) error {
	if name == "" || pin == "" {
		return nil
	}
	if !ValidPin(pin) {
		return ErrInvalidPin
	}

	count, err := users.CountAll(ctx)
	if err != nil {
		return fmt.Errorf("seed: count users: %w", err)
	}
	if count > 0 {
		return nil
	}

	hash, err := Hash(pin)
	if err != nil {
		return fmt.Errorf("seed: hash pincode: %w", err)
	}

	u := &model.User{ID: NewID(), Name: name, Role: model.RoleAdmin}
	if err := users.Create(ctx, u, PinLookup(key, pin), hash); err != nil {
		return fmt.Errorf("seed: create admin: %w", err)
	}
	slog.Info("seed: created first admin", "name", name)
	return nil
}

// UserFinder looks a user up by pincode digest.
type UserFinder interface {
	GetByPinLookup(ctx context.Context, pinLookup string) (*model.User, string, error)
}

// Authenticate resolves a pincode to a user.
func Authenticate(ctx context.Context, users UserFinder, key []byte, pin string) (*model.User, error) {
	if !ValidPin(pin) {
		return nil, ErrBadCredentials
	}
	u, hash, err := users.GetByPinLookup(ctx, PinLookup(key, pin))
	if err != nil {
		return nil, err
	}
	if !Verify(hash, pin) {
		return nil, ErrBadCredentials
	}
	return u, nil
}
