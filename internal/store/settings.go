package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"bnappcal/internal/model"
)

// Fixed identifiers for the persisted UI state.
const (
	KeyCity  = "bnapp-city"
	KeyTheme = "bnapp-theme"
)

// GetSetting returns the stored value and whether it exists.
func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting %q: %w", key, err)
	}
	return value, true, nil
}

func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	return nil
}

// LoadCity returns the persisted city. ok is false when nothing usable is
// stored (missing, malformed JSON, or zero coordinates).
func (s *Store) LoadCity(ctx context.Context) (model.City, bool, error) {
	raw, found, err := s.GetSetting(ctx, KeyCity)
	if err != nil || !found {
		return model.City{}, false, err
	}
	var c model.City
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return model.City{}, false, nil
	}
	if !c.Usable() {
		return model.City{}, false, nil
	}
	return c, true, nil
}

func (s *Store) SaveCity(ctx context.Context, c model.City) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return s.SetSetting(ctx, KeyCity, string(data))
}

// LoadTheme defaults to dark when nothing is stored.
func (s *Store) LoadTheme(ctx context.Context) (model.Theme, error) {
	raw, _, err := s.GetSetting(ctx, KeyTheme)
	if err != nil {
		return model.ThemeDark, err
	}
	return model.ParseTheme(raw), nil
}

func (s *Store) SaveTheme(ctx context.Context, t model.Theme) error {
	return s.SetSetting(ctx, KeyTheme, string(model.ParseTheme(string(t))))
}
