package settings

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/ichi0g0y/prize-wheel/internal/shared/logger"
	"go.uber.org/zap"
)

type SettingType string

const (
	SettingTypeNormal SettingType = "normal"
	SettingTypeSecret SettingType = "secret"
)

type Setting struct {
	Key         string      `json:"key"`
	Value       string      `json:"value"`
	Type        SettingType `json:"type"`
	Required    bool        `json:"required"`
	Description string      `json:"description"`
	UpdatedAt   time.Time   `json:"updated_at"`
	HasValue    bool        `json:"has_value"` // シークレット値が設定されているかどうか
}

type SettingsManager struct {
	db *sql.DB
}

func NewSettingsManager(db *sql.DB) *SettingsManager {
	return &SettingsManager{db: db}
}

// 設定の定義
var DefaultSettings = map[string]Setting{
	// サーバー設定
	"SERVER_PORT": {
		Key: "SERVER_PORT", Value: "8080", Type: SettingTypeNormal, Required: false,
		Description: "Web server port",
	},
	"DEBUG_OUTPUT": {
		Key: "DEBUG_OUTPUT", Value: "false", Type: SettingTypeNormal, Required: false,
		Description: "Enable debug output",
	},

	// スピン設定
	"SPIN_DURATION_MS": {
		Key: "SPIN_DURATION_MS", Value: "12000", Type: SettingTypeNormal, Required: false,
		Description: "Spin animation duration in milliseconds (8000-60000)",
	},
	"SPIN_TURNS": {
		Key: "SPIN_TURNS", Value: "5", Type: SettingTypeNormal, Required: false,
		Description: "Full turns before landing (2-10)",
	},
	"SPIN_TEXT_DIRECTION": {
		Key: "SPIN_TEXT_DIRECTION", Value: "ltr", Type: SettingTypeNormal, Required: false,
		Description: "Segment order direction (ltr or rtl)",
	},
	"SPIN_CODE_LENGTH": {
		Key: "SPIN_CODE_LENGTH", Value: "8", Type: SettingTypeNormal, Required: false,
		Description: "Length of the redemption code issued for each spin (4-32)",
	},
	"ALLOCATION_MODE": {
		Key: "ALLOCATION_MODE", Value: "uniform", Type: SettingTypeNormal, Required: false,
		Description: "Winner allocation (uniform or weighted by percent)",
	},

	// クールダウン設定
	"COOLDOWN_DAYS": {
		Key: "COOLDOWN_DAYS", Value: "15", Type: SettingTypeNormal, Required: false,
		Description: "Days before the same identity can spin again (1-365)",
	},
	"COOLDOWN_STORE": {
		Key: "COOLDOWN_STORE", Value: "sqlite", Type: SettingTypeNormal, Required: false,
		Description: "Cooldown record store (sqlite, memory or redis)",
	},
	"REDIS_ADDR": {
		Key: "REDIS_ADDR", Value: "", Type: SettingTypeNormal, Required: false,
		Description: "Redis address for the redis cooldown store (host:port)",
	},
	"REDIS_PASSWORD": {
		Key: "REDIS_PASSWORD", Value: "", Type: SettingTypeSecret, Required: false,
		Description: "Redis password",
	},

	// 外部資格チェック
	"ELIGIBILITY_URL": {
		Key: "ELIGIBILITY_URL", Value: "", Type: SettingTypeNormal, Required: false,
		Description: "External eligibility check endpoint (empty disables the check)",
	},
	"ELIGIBILITY_TOKEN": {
		Key: "ELIGIBILITY_TOKEN", Value: "", Type: SettingTypeSecret, Required: false,
		Description: "Bearer token sent to the eligibility endpoint",
	},
	"ELIGIBILITY_TIMEOUT_MS": {
		Key: "ELIGIBILITY_TIMEOUT_MS", Value: "5000", Type: SettingTypeNormal, Required: false,
		Description: "Eligibility request timeout in milliseconds (100-60000)",
	},
}

// 機能の有効性チェック
type FeatureStatus struct {
	EligibilityConfigured bool     `json:"eligibility_configured"`
	CooldownStore         string   `json:"cooldown_store"`
	MissingSettings       []string `json:"missing_settings"`
	Warnings              []string `json:"warnings"`
	ServiceMode           bool     `json:"service_mode"` // systemdサービスとして実行されているか
}

func (sm *SettingsManager) CheckFeatureStatus() (*FeatureStatus, error) {
	status := &FeatureStatus{
		MissingSettings: []string{},
		Warnings:        []string{},
		ServiceMode:     os.Getenv("RUNNING_AS_SERVICE") == "true",
	}

	store, err := sm.GetSetting("COOLDOWN_STORE")
	if err != nil {
		return nil, err
	}
	status.CooldownStore = store

	if store == "redis" {
		if addr, _ := sm.GetSetting("REDIS_ADDR"); addr == "" {
			status.MissingSettings = append(status.MissingSettings, "REDIS_ADDR")
		}
	}
	if store == "memory" {
		status.Warnings = append(status.Warnings, "COOLDOWN_STORE is memory - cooldowns are lost on restart")
	}

	if eligibilityURL, _ := sm.GetSetting("ELIGIBILITY_URL"); eligibilityURL != "" {
		status.EligibilityConfigured = true
	} else {
		status.Warnings = append(status.Warnings, "ELIGIBILITY_URL is empty - only the local cooldown gate is applied")
	}

	return status, nil
}

// CRUD操作
func (sm *SettingsManager) GetSetting(key string) (string, error) {
	var value string
	err := sm.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		// デフォルト値を返す
		if defaultSetting, exists := DefaultSettings[key]; exists {
			return defaultSetting.Value, nil
		}
		return "", fmt.Errorf("setting not found: %s", key)
	}
	return value, err
}

// GetInt returns an integer setting, falling back to the default when the stored value is broken.
func (sm *SettingsManager) GetInt(key string) int {
	value, err := sm.GetSetting(key)
	if err == nil {
		if n, convErr := strconv.Atoi(value); convErr == nil {
			return n
		}
	}
	n, _ := strconv.Atoi(DefaultSettings[key].Value)
	return n
}

func (sm *SettingsManager) SetSetting(key, value string) error {
	// デフォルト設定が存在するかチェック
	defaultSetting, exists := DefaultSettings[key]
	if !exists {
		return fmt.Errorf("unknown setting key: %s", key)
	}
	if err := ValidateSetting(key, value); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}

	_, err := sm.db.Exec(`
		INSERT INTO settings (key, value, setting_type, is_required, description)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP`,
		key, value,
		string(defaultSetting.Type),
		defaultSetting.Required,
		defaultSetting.Description,
	)
	return err
}

func (sm *SettingsManager) GetAllSettings() (map[string]Setting, error) {
	rows, err := sm.db.Query(`
		SELECT key, value, setting_type, is_required, description, updated_at
		FROM settings ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settings := make(map[string]Setting)
	for rows.Next() {
		var s Setting
		var settingType string
		var description sql.NullString
		err := rows.Scan(&s.Key, &s.Value, &settingType, &s.Required, &description, &s.UpdatedAt)
		if err != nil {
			return nil, err
		}
		s.Type = SettingType(settingType)
		s.Description = description.String
		s.HasValue = s.Value != ""

		// 機密情報はAPIに値を出さない
		if s.Type == SettingTypeSecret {
			s.Value = ""
		}

		settings[s.Key] = s
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// DBにない設定はデフォルト値で補完
	for key, defaultSetting := range DefaultSettings {
		if _, exists := settings[key]; !exists {
			settings[key] = defaultSetting
		}
	}

	return settings, nil
}

// 環境変数からの移行
func (sm *SettingsManager) MigrateFromEnv() error {
	logger.Info("Starting migration from environment variables")
	migrated := 0

	for key := range DefaultSettings {
		// 既にDB設定が存在する場合はスキップ
		var existingKey string
		if err := sm.db.QueryRow("SELECT key FROM settings WHERE key = ?", key).Scan(&existingKey); err == nil {
			continue
		}

		if envValue := os.Getenv(key); envValue != "" {
			if err := sm.SetSetting(key, envValue); err != nil {
				logger.Error("Failed to migrate setting", zap.String("key", key), zap.Error(err))
				return fmt.Errorf("failed to migrate %s: %w", key, err)
			}
			logger.Info("Migrated setting from environment", zap.String("key", key))
			migrated++
		}
	}

	if migrated > 0 {
		logger.Info("Migration completed", zap.Int("migrated_count", migrated))

		if hasSecretInEnv() {
			logger.Warn("SECURITY WARNING: Sensitive data found in environment variables.")
			logger.Warn("Please remove ELIGIBILITY_TOKEN and REDIS_PASSWORD from .env file after confirming the migration is successful.")
		}
	}

	return nil
}

func hasSecretInEnv() bool {
	for key, setting := range DefaultSettings {
		if setting.Type == SettingTypeSecret && os.Getenv(key) != "" {
			return true
		}
	}
	return false
}

func validateIntRange(value string, min, max int) error {
	val, err := strconv.Atoi(value)
	if err != nil || val < min || val > max {
		return fmt.Errorf("must be integer between %d and %d", min, max)
	}
	return nil
}

// バリデーション
func ValidateSetting(key, value string) error {
	switch key {
	case "SERVER_PORT":
		return validateIntRange(value, 1, 65535)
	case "SPIN_DURATION_MS":
		return validateIntRange(value, 8000, 60000)
	case "SPIN_TURNS":
		return validateIntRange(value, 2, 10)
	case "SPIN_CODE_LENGTH":
		return validateIntRange(value, 4, 32)
	case "COOLDOWN_DAYS":
		return validateIntRange(value, 1, 365)
	case "ELIGIBILITY_TIMEOUT_MS":
		return validateIntRange(value, 100, 60000)
	case "SPIN_TEXT_DIRECTION":
		if value != "ltr" && value != "rtl" {
			return fmt.Errorf("must be 'ltr' or 'rtl'")
		}
	case "ALLOCATION_MODE":
		if value != "uniform" && value != "weighted" {
			return fmt.Errorf("must be 'uniform' or 'weighted'")
		}
	case "COOLDOWN_STORE":
		if value != "sqlite" && value != "memory" && value != "redis" {
			return fmt.Errorf("must be 'sqlite', 'memory' or 'redis'")
		}
	case "ELIGIBILITY_URL":
		if value != "" {
			u, err := url.Parse(value)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				return fmt.Errorf("must be an http(s) URL")
			}
		}
	case "DEBUG_OUTPUT":
		// boolean値のチェック
		if value != "true" && value != "false" {
			return fmt.Errorf("must be 'true' or 'false'")
		}
	}
	return nil
}

// 初期設定のセットアップ
func (sm *SettingsManager) InitializeDefaultSettings() error {
	for key, setting := range DefaultSettings {
		// 既に設定が存在する場合はスキップ
		var existingKey string
		if err := sm.db.QueryRow("SELECT key FROM settings WHERE key = ?", key).Scan(&existingKey); err == nil {
			continue
		}

		if err := sm.SetSetting(key, setting.Value); err != nil {
			return fmt.Errorf("failed to initialize setting %s: %w", key, err)
		}
	}
	return nil
}
