package localdb

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/ichi0g0y/prize-wheel/internal/shared/logger"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

var DBClient *sql.DB

var ErrDBNotInitialized = errors.New("database not initialized")

func SetupDB(dbPath string) (*sql.DB, error) {
	if DBClient != nil {
		return DBClient, nil
	}

	// WALモードとBusy Timeoutを設定（Race Condition対策）
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	// SQLiteは単一ライターなので接続プールを1に制限
	db.SetMaxOpenConns(1)

	// settingsテーブル
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		setting_type TEXT NOT NULL DEFAULT 'normal',
		is_required BOOLEAN NOT NULL DEFAULT false,
		description TEXT,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	// 景品・使用回数
	if err := SetupPrizeTables(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	// クールダウン記録
	if err := SetupSpinCooldownTable(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	// スピン履歴
	if err := SetupSpinHistoryTable(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	DBClient = db
	logger.Info("Database initialized", zap.String("path", dbPath))
	return db, nil
}

// GetDB は現在のデータベース接続を返します
func GetDB() *sql.DB {
	return DBClient
}

// CloseDB closes the shared connection and forgets it.
func CloseDB() error {
	if DBClient == nil {
		return nil
	}
	err := DBClient.Close()
	DBClient = nil
	if err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
