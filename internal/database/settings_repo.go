package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Setting keys understood by the core
const (
	SettingSendDelayMin = "send_delay_min" // seconds
	SettingSendDelayMax = "send_delay_max" // seconds
	SettingVerifyStrict = "verify_strict"  // "1" disables direct fallback
)

// GetSetting returns a per-user setting, or fallback when unset
func (db *DB) GetSetting(ctx context.Context, userID int64, key, fallback string) (string, error) {
	var value string
	query := `SELECT value FROM settings WHERE user_id = ? AND key = ?`
	err := db.GetContext(ctx, &value, query, userID, key)
	if errors.Is(err, sql.ErrNoRows) {
		return fallback, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return value, nil
}

// SetSetting upserts a per-user setting
func (db *DB) SetSetting(ctx context.Context, userID int64, key, value string) error {
	query := `
		INSERT INTO settings (user_id, key, value) VALUES (?, ?, ?)
		ON CONFLICT(user_id, key) DO UPDATE SET value = excluded.value
	`
	if _, err := db.ExecContext(ctx, query, userID, key, value); err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

// SendDelayRange returns the user's pacing interval, falling back to the
// supplied defaults when not configured.
func (db *DB) SendDelayRange(ctx context.Context, userID int64, defMin, defMax time.Duration) (time.Duration, time.Duration, error) {
	min, err := db.durationSetting(ctx, userID, SettingSendDelayMin, defMin)
	if err != nil {
		return 0, 0, err
	}
	max, err := db.durationSetting(ctx, userID, SettingSendDelayMax, defMax)
	if err != nil {
		return 0, 0, err
	}
	if min > max {
		min, max = max, min
	}
	return min, max, nil
}

// StrictVerify reports whether the user forbids direct (unproxied) IMAP
// connections when every verify proxy attempt fails.
func (db *DB) StrictVerify(ctx context.Context, userID int64) (bool, error) {
	v, err := db.GetSetting(ctx, userID, SettingVerifyStrict, "0")
	if err != nil {
		return false, err
	}
	return v == "1", nil
}

func (db *DB) durationSetting(ctx context.Context, userID int64, key string, fallback time.Duration) (time.Duration, error) {
	raw, err := db.GetSetting(ctx, userID, key, "")
	if err != nil {
		return 0, err
	}
	if raw == "" {
		return fallback, nil
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 {
		return fallback, nil
	}
	return time.Duration(secs) * time.Second, nil
}
