package localdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ichi0g0y/prize-wheel/internal/shared/logger"
	"go.uber.org/zap"
)

// SpinCooldown is one row of spin_cooldowns. Times are stored as unix milliseconds.
type SpinCooldown struct {
	Identity       string
	SpunAt         time.Time
	LastPrizeLabel string
	LastCode       string
	ExpiresAt      time.Time
}

// SetupSpinCooldownTable creates the spin_cooldowns table.
func SetupSpinCooldownTable(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS spin_cooldowns (
			identity TEXT PRIMARY KEY,
			spun_at INTEGER NOT NULL,
			last_prize_label TEXT NOT NULL DEFAULT '',
			last_code TEXT NOT NULL DEFAULT '',
			expires_at INTEGER NOT NULL
		)
	`); err != nil {
		logger.Error("Failed to create spin_cooldowns table", zap.Error(err))
		return fmt.Errorf("failed to create spin_cooldowns table: %w", err)
	}

	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_spin_cooldowns_expires_at ON spin_cooldowns(expires_at)`); err != nil {
		logger.Warn("Failed to create spin_cooldowns index", zap.Error(err))
	}

	return nil
}

// GetSpinCooldown returns the record for identity or nil when absent.
func GetSpinCooldown(ctx context.Context, identity string) (*SpinCooldown, error) {
	db := GetDB()
	if db == nil {
		return nil, ErrDBNotInitialized
	}

	var row SpinCooldown
	var spunAtMs, expiresAtMs int64
	err := db.QueryRowContext(ctx, `
		SELECT identity, spun_at, last_prize_label, last_code, expires_at
		FROM spin_cooldowns
		WHERE identity = ?
	`, identity).Scan(&row.Identity, &spunAtMs, &row.LastPrizeLabel, &row.LastCode, &expiresAtMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		logger.Error("Failed to get spin cooldown", zap.Error(err))
		return nil, fmt.Errorf("failed to get spin cooldown: %w", err)
	}

	row.SpunAt = time.UnixMilli(spunAtMs)
	row.ExpiresAt = time.UnixMilli(expiresAtMs)
	return &row, nil
}

// UpsertSpinCooldown inserts or replaces the record for row.Identity.
func UpsertSpinCooldown(ctx context.Context, row SpinCooldown) error {
	db := GetDB()
	if db == nil {
		return ErrDBNotInitialized
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO spin_cooldowns (identity, spun_at, last_prize_label, last_code, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET
			spun_at = excluded.spun_at,
			last_prize_label = excluded.last_prize_label,
			last_code = excluded.last_code,
			expires_at = excluded.expires_at
	`,
		row.Identity,
		row.SpunAt.UnixMilli(),
		row.LastPrizeLabel,
		row.LastCode,
		row.ExpiresAt.UnixMilli(),
	)
	if err != nil {
		logger.Error("Failed to upsert spin cooldown", zap.Error(err))
		return fmt.Errorf("failed to upsert spin cooldown: %w", err)
	}
	return nil
}

// DeleteSpinCooldown removes the record for identity.
func DeleteSpinCooldown(ctx context.Context, identity string) error {
	db := GetDB()
	if db == nil {
		return ErrDBNotInitialized
	}

	if _, err := db.ExecContext(ctx, `DELETE FROM spin_cooldowns WHERE identity = ?`, identity); err != nil {
		logger.Error("Failed to delete spin cooldown", zap.Error(err))
		return fmt.Errorf("failed to delete spin cooldown: %w", err)
	}
	return nil
}

// CleanupExpiredSpinCooldowns deletes records whose expiry is at or before now.
func CleanupExpiredSpinCooldowns(now time.Time) (int64, error) {
	db := GetDB()
	if db == nil {
		return 0, ErrDBNotInitialized
	}

	result, err := db.Exec(`DELETE FROM spin_cooldowns WHERE expires_at <= ?`, now.UnixMilli())
	if err != nil {
		logger.Error("Failed to cleanup spin cooldowns", zap.Error(err))
		return 0, fmt.Errorf("failed to cleanup spin cooldowns: %w", err)
	}

	deleted, _ := result.RowsAffected()
	if deleted > 0 {
		logger.Debug("Cleaned up expired spin cooldowns", zap.Int64("deleted", deleted))
	}
	return deleted, nil
}
