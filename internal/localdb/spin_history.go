package localdb

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ichi0g0y/prize-wheel/internal/shared/logger"
	"github.com/ichi0g0y/prize-wheel/internal/types"
	"go.uber.org/zap"
)

const defaultHistoryLimit = 50

// SetupSpinHistoryTable creates the spin_history table.
func SetupSpinHistoryTable(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS spin_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			identity TEXT NOT NULL DEFAULT '',
			prize_id TEXT NOT NULL,
			prize_label TEXT NOT NULL,
			code TEXT NOT NULL DEFAULT '',
			winner_index INTEGER NOT NULL,
			rotation REAL NOT NULL,
			spun_at INTEGER NOT NULL
		)
	`); err != nil {
		logger.Error("Failed to create spin_history table", zap.Error(err))
		return fmt.Errorf("failed to create spin_history table: %w", err)
	}

	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_spin_history_spun_at ON spin_history(spun_at DESC)`); err != nil {
		logger.Warn("Failed to create spin_history index", zap.Error(err))
	}

	return nil
}

// SaveSpinHistory stores one finished spin and returns its id.
func SaveSpinHistory(entry types.SpinHistory) (int64, error) {
	db := GetDB()
	if db == nil {
		return 0, ErrDBNotInitialized
	}

	if entry.SpunAt.IsZero() {
		entry.SpunAt = time.Now()
	}

	result, err := db.Exec(`
		INSERT INTO spin_history (identity, prize_id, prize_label, code, winner_index, rotation, spun_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		entry.Identity,
		entry.PrizeID,
		entry.PrizeLabel,
		entry.Code,
		entry.WinnerIndex,
		entry.Rotation,
		entry.SpunAt.UnixMilli(),
	)
	if err != nil {
		logger.Error("Failed to save spin history", zap.Error(err))
		return 0, fmt.Errorf("failed to save spin history: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read spin history id: %w", err)
	}
	return id, nil
}

// GetSpinHistory returns the newest entries first.
func GetSpinHistory(limit int) ([]types.SpinHistory, error) {
	db := GetDB()
	if db == nil {
		return nil, ErrDBNotInitialized
	}

	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	rows, err := db.Query(`
		SELECT id, identity, prize_id, prize_label, code, winner_index, rotation, spun_at
		FROM spin_history
		ORDER BY spun_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		logger.Error("Failed to query spin history", zap.Error(err))
		return nil, fmt.Errorf("failed to query spin history: %w", err)
	}
	defer rows.Close()

	history := []types.SpinHistory{}
	for rows.Next() {
		var h types.SpinHistory
		var spunAtMs int64
		if err := rows.Scan(&h.ID, &h.Identity, &h.PrizeID, &h.PrizeLabel, &h.Code, &h.WinnerIndex, &h.Rotation, &spunAtMs); err != nil {
			return nil, fmt.Errorf("failed to scan spin history: %w", err)
		}
		h.SpunAt = time.UnixMilli(spunAtMs)
		history = append(history, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate spin history: %w", err)
	}

	return history, nil
}

// ClearSpinHistory deletes all history rows.
func ClearSpinHistory() error {
	db := GetDB()
	if db == nil {
		return ErrDBNotInitialized
	}

	if _, err := db.Exec(`DELETE FROM spin_history`); err != nil {
		logger.Error("Failed to clear spin history", zap.Error(err))
		return fmt.Errorf("failed to clear spin history: %w", err)
	}
	return nil
}
