package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/floorreports/internal/crypto"
	"github.com/floorreports/internal/model"
)

const settingsCategory = "email_reports"

type SettingsStore struct {
	db      *sql.DB
	crypter *crypto.Crypter
	seed    *model.ReportSettings
}

// NewSettingsStore returns a store that falls back to seed when nothing has
// been saved yet. A nil seed means the built-in defaults.
func NewSettingsStore(db *sql.DB, crypter *crypto.Crypter, seed *model.ReportSettings) *SettingsStore {
	if seed == nil {
		seed = model.DefaultReportSettings()
	}
	return &SettingsStore{db: db, crypter: crypter, seed: seed}
}

// Load decrypts and returns the current settings. Seeds the row if none exists.
func (s *SettingsStore) Load(ctx context.Context) (*model.ReportSettings, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM settings WHERE category = ?`, settingsCategory,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		defaults := s.seed.Clone()
		if saveErr := s.Save(ctx, defaults, "system"); saveErr != nil {
			return nil, saveErr
		}
		slog.Info("settings: seeded defaults")
		return defaults, nil
	} else if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	plaintext, err := s.crypter.Decrypt(data)
	if err != nil {
		slog.Error("settings: decryption failed", "err", err)
		return nil, fmt.Errorf("decrypt settings: %w", err)
	}
	settings := model.DefaultReportSettings()
	if err := json.Unmarshal(plaintext, settings); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	return settings, nil
}

// Save validates, encrypts and persists settings.
func (s *SettingsStore) Save(ctx context.Context, settings *model.ReportSettings, updatedBy string) error {
	if err := settings.Normalize(); err != nil {
		return err
	}
	raw, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	ciphertext, err := s.crypter.Encrypt(raw)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO settings (category, data, updated_at, updated_by)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (category) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at,
			updated_by = excluded.updated_by`,
		settingsCategory, ciphertext, formatTime(time.Now()), updatedBy,
	)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}
