package env

import (
	"os"
	"strconv"
	"time"

	"github.com/ichi0g0y/prize-wheel/internal/localdb"
	"github.com/ichi0g0y/prize-wheel/internal/settings"
	"github.com/ichi0g0y/prize-wheel/internal/shared/logger"
	"github.com/ichi0g0y/prize-wheel/internal/shared/paths"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type EnvValue struct {
	ServerPort int
	DebugMode  bool

	SpinDurationMs int
	SpinTurns      int
	RightToLeft    bool
	SpinCodeLength int
	WeightedMode   bool

	CooldownDays  int
	CooldownStore string
	RedisAddr     *string
	RedisPassword *string

	EligibilityURL     *string
	EligibilityToken   *string
	EligibilityTimeout time.Duration
}

var Value EnvValue

// LoadEnv は .env・環境変数・settingsテーブルから設定を組み立てる
func LoadEnv() {
	// .envは任意
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("Failed to load .env file", zap.Error(err))
	}

	db := localdb.GetDB()
	if db == nil {
		if err := paths.EnsureDataDirs(); err != nil {
			logger.Error("Failed to create data directory", zap.Error(err))
		}
		var err error
		db, err = localdb.SetupDB(paths.GetDBPath())
		if err != nil {
			logger.Error("Failed to setup database, using defaults", zap.Error(err))
			Value = fromGetter(defaultGetter)
			return
		}
	}

	sm := settings.NewSettingsManager(db)
	if err := sm.MigrateFromEnv(); err != nil {
		logger.Warn("Failed to migrate settings from environment", zap.Error(err))
	}
	// 環境変数で移行されなかったキーはデフォルト値で保存しておく
	if err := sm.InitializeDefaultSettings(); err != nil {
		logger.Warn("Failed to initialize default settings", zap.Error(err))
	}

	Value = fromSettings(sm)
}

// Reload はsettingsテーブルの変更を反映する
func Reload(sm *settings.SettingsManager) {
	Value = fromSettings(sm)
}

func fromSettings(sm *settings.SettingsManager) EnvValue {
	return build(func(key string) string {
		v, err := sm.GetSetting(key)
		if err != nil {
			return defaultGetter(key)
		}
		return v
	}, sm.GetInt)
}

func defaultGetter(key string) string {
	return settings.DefaultSettings[key].Value
}

func fromGetter(get func(string) string) EnvValue {
	return build(get, func(key string) int {
		if n, err := strconv.Atoi(get(key)); err == nil {
			return n
		}
		n, _ := strconv.Atoi(defaultGetter(key))
		return n
	})
}

func build(get func(string) string, atoi func(string) int) EnvValue {
	optional := func(key string) *string {
		v := get(key)
		if v == "" {
			return nil
		}
		return &v
	}

	return EnvValue{
		ServerPort: atoi("SERVER_PORT"),
		DebugMode:  get("DEBUG_OUTPUT") == "true",

		SpinDurationMs: atoi("SPIN_DURATION_MS"),
		SpinTurns:      atoi("SPIN_TURNS"),
		RightToLeft:    get("SPIN_TEXT_DIRECTION") == "rtl",
		SpinCodeLength: atoi("SPIN_CODE_LENGTH"),
		WeightedMode:   get("ALLOCATION_MODE") == "weighted",

		CooldownDays:  atoi("COOLDOWN_DAYS"),
		CooldownStore: get("COOLDOWN_STORE"),
		RedisAddr:     optional("REDIS_ADDR"),
		RedisPassword: optional("REDIS_PASSWORD"),

		EligibilityURL:     optional("ELIGIBILITY_URL"),
		EligibilityToken:   optional("ELIGIBILITY_TOKEN"),
		EligibilityTimeout: time.Duration(atoi("ELIGIBILITY_TIMEOUT_MS")) * time.Millisecond,
	}
}
