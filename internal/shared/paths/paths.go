package paths

import (
	"os"
	"path/filepath"
)

const (
	dataDirEnv  = "PRIZE_WHEEL_DATA_DIR"
	dataDirName = ".prize-wheel"
	dbFileName  = "local.db"
)

// GetDataDir はデータ保存先ディレクトリを返す。
// PRIZE_WHEEL_DATA_DIR が設定されていればそれを優先する。
func GetDataDir() string {
	if dir := os.Getenv(dataDirEnv); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return dataDirName
	}
	return filepath.Join(home, dataDirName)
}

// GetDBPath returns the SQLite database path.
func GetDBPath() string {
	return filepath.Join(GetDataDir(), dbFileName)
}

// EnsureDataDirs creates the data directory if missing.
func EnsureDataDirs() error {
	return os.MkdirAll(GetDataDir(), 0o755)
}
