package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/atlas-desktop/aurum-control-plane/pkg/types"
)

// SettingsRepository persists the app_settings control surface.
type SettingsRepository struct {
	db *DB
}

// NewSettingsRepository constructs a SettingsRepository.
func NewSettingsRepository(db *DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get returns the setting for key, or sql.ErrNoRows if unset.
func (r *SettingsRepository) Get(ctx context.Context, key string) (*types.AppSetting, error) {
	var s types.AppSetting
	var isSecret int
	err := r.db.Conn().QueryRowContext(ctx, `
		SELECT key, value, is_secret FROM app_settings WHERE key = ?
	`, key).Scan(&s.Key, &s.Value, &isSecret)
	if err != nil {
		return nil, err
	}
	s.IsSecret = isSecret != 0
	return &s, nil
}

// Set upserts a setting value.
func (r *SettingsRepository) Set(ctx context.Context, key, value string, isSecret bool) error {
	_, err := r.db.Conn().ExecContext(ctx, `
		INSERT INTO app_settings (key, value, is_secret) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, is_secret = excluded.is_secret
	`, key, value, boolToInt(isSecret))
	if err != nil {
		return fmt.Errorf("store: setting %s: %w", key, err)
	}
	return nil
}

// All returns every setting row.
func (r *SettingsRepository) All(ctx context.Context) ([]types.AppSetting, error) {
	rows, err := r.db.Conn().QueryContext(ctx, `SELECT key, value, is_secret FROM app_settings`)
	if err != nil {
		return nil, fmt.Errorf("store: listing settings: %w", err)
	}
	defer rows.Close()

	var out []types.AppSetting
	for rows.Next() {
		var s types.AppSetting
		var isSecret int
		if err := rows.Scan(&s.Key, &s.Value, &isSecret); err != nil {
			return nil, fmt.Errorf("store: scanning setting: %w", err)
		}
		s.IsSecret = isSecret != 0
		out = append(out, s)
	}
	return out, rows.Err()
}

// ErrNotFound is sql.ErrNoRows, which Get returns when a key has no stored
// row. settings.Service falls back to defaults and does not return it.
var ErrNotFound = sql.ErrNoRows
