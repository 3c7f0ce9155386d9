package localdb

import (
	"database/sql"
	"fmt"

	"github.com/ichi0g0y/prize-wheel/internal/shared/logger"
	"github.com/ichi0g0y/prize-wheel/internal/types"
	"go.uber.org/zap"
)

// SetupPrizeTables creates wheel_prizes and wheel_prize_usage tables.
func SetupPrizeTables(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS wheel_prizes (
			id TEXT PRIMARY KEY,
			label TEXT NOT NULL,
			percent REAL NOT NULL DEFAULT 0,
			color TEXT NOT NULL DEFAULT '',
			max_wins INTEGER NOT NULL DEFAULT 0,
			unlimited BOOLEAN NOT NULL DEFAULT false,
			position INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		logger.Error("Failed to create wheel_prizes table", zap.Error(err))
		return fmt.Errorf("failed to create wheel_prizes table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS wheel_prize_usage (
			prize_id TEXT PRIMARY KEY,
			used INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		logger.Error("Failed to create wheel_prize_usage table", zap.Error(err))
		return fmt.Errorf("failed to create wheel_prize_usage table: %w", err)
	}

	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_wheel_prizes_position ON wheel_prizes(position)`); err != nil {
		logger.Warn("Failed to create wheel_prizes index", zap.Error(err))
	}

	return nil
}

// GetPrizes returns the prize list in wheel order.
func GetPrizes() ([]types.Prize, error) {
	db := GetDB()
	if db == nil {
		return nil, ErrDBNotInitialized
	}

	rows, err := db.Query(`
		SELECT id, label, percent, color, max_wins, unlimited, position
		FROM wheel_prizes
		ORDER BY position ASC, id ASC
	`)
	if err != nil {
		logger.Error("Failed to query prizes", zap.Error(err))
		return nil, fmt.Errorf("failed to query prizes: %w", err)
	}
	defer rows.Close()

	prizes := []types.Prize{}
	for rows.Next() {
		var p types.Prize
		if err := rows.Scan(&p.ID, &p.Label, &p.Percent, &p.Color, &p.MaxWins, &p.Unlimited, &p.Position); err != nil {
			logger.Error("Failed to scan prize", zap.Error(err))
			return nil, fmt.Errorf("failed to scan prize: %w", err)
		}
		prizes = append(prizes, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate prizes: %w", err)
	}

	return prizes, nil
}

// ReplacePrizes replaces the whole prize list. Position follows slice order.
// Usage counters of prizes that no longer exist are removed.
func ReplacePrizes(prizes []types.Prize) error {
	db := GetDB()
	if db == nil {
		return ErrDBNotInitialized
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.Exec(`DELETE FROM wheel_prizes`); err != nil {
		logger.Error("Failed to clear prizes", zap.Error(err))
		return fmt.Errorf("failed to clear prizes: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO wheel_prizes (id, label, percent, color, max_wins, unlimited, position, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare prize insert: %w", err)
	}
	defer stmt.Close()

	for i, p := range prizes {
		if _, err := stmt.Exec(p.ID, p.Label, p.Percent, p.Color, p.MaxWins, p.Unlimited, i); err != nil {
			logger.Error("Failed to insert prize", zap.Error(err), zap.String("prize_id", p.ID))
			return fmt.Errorf("failed to insert prize %s: %w", p.ID, err)
		}
	}

	if _, err := tx.Exec(`DELETE FROM wheel_prize_usage WHERE prize_id NOT IN (SELECT id FROM wheel_prizes)`); err != nil {
		return fmt.Errorf("failed to prune prize usage: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit prizes: %w", err)
	}

	logger.Info("Prize list replaced", zap.Int("count", len(prizes)))
	return nil
}

// GetPrizeUsage returns used counts keyed by prize id. Prizes never won are absent.
func GetPrizeUsage() (map[string]int, error) {
	db := GetDB()
	if db == nil {
		return nil, ErrDBNotInitialized
	}

	rows, err := db.Query(`SELECT prize_id, used FROM wheel_prize_usage`)
	if err != nil {
		logger.Error("Failed to query prize usage", zap.Error(err))
		return nil, fmt.Errorf("failed to query prize usage: %w", err)
	}
	defer rows.Close()

	usage := make(map[string]int)
	for rows.Next() {
		var id string
		var used int
		if err := rows.Scan(&id, &used); err != nil {
			return nil, fmt.Errorf("failed to scan prize usage: %w", err)
		}
		usage[id] = used
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate prize usage: %w", err)
	}

	return usage, nil
}

// IncrementPrizeUsage adds one win to prizeID and returns the new count.
func IncrementPrizeUsage(prizeID string) (int, error) {
	db := GetDB()
	if db == nil {
		return 0, ErrDBNotInitialized
	}

	_, err := db.Exec(`
		INSERT INTO wheel_prize_usage (prize_id, used, updated_at)
		VALUES (?, 1, CURRENT_TIMESTAMP)
		ON CONFLICT(prize_id) DO UPDATE SET
			used = used + 1,
			updated_at = CURRENT_TIMESTAMP
	`, prizeID)
	if err != nil {
		logger.Error("Failed to increment prize usage", zap.Error(err), zap.String("prize_id", prizeID))
		return 0, fmt.Errorf("failed to increment prize usage: %w", err)
	}

	var used int
	if err := db.QueryRow(`SELECT used FROM wheel_prize_usage WHERE prize_id = ?`, prizeID).Scan(&used); err != nil {
		return 0, fmt.Errorf("failed to read prize usage: %w", err)
	}
	return used, nil
}

// ResetPrizeUsage clears all usage counters.
func ResetPrizeUsage() error {
	db := GetDB()
	if db == nil {
		return ErrDBNotInitialized
	}

	if _, err := db.Exec(`DELETE FROM wheel_prize_usage`); err != nil {
		logger.Error("Failed to reset prize usage", zap.Error(err))
		return fmt.Errorf("failed to reset prize usage: %w", err)
	}

	logger.Info("Prize usage counters reset")
	return nil
}
