package webserver

import (
	"encoding/json"
	"net/http"

	"github.com/ichi0g0y/prize-wheel/internal/env"
	"github.com/ichi0g0y/prize-wheel/internal/localdb"
	"github.com/ichi0g0y/prize-wheel/internal/settings"
	"github.com/ichi0g0y/prize-wheel/internal/shared/logger"
	"go.uber.org/zap"
)

func settingsManager(w http.ResponseWriter) *settings.SettingsManager {
	db := localdb.GetDB()
	if db == nil {
		writeError(w, http.StatusServiceUnavailable, localdb.ErrDBNotInitialized.Error())
		return nil
	}
	return settings.NewSettingsManager(db)
}

// handleWheelSettings は設定の取得（GET）と一括更新（PUT）を処理する。
func handleWheelSettings(w http.ResponseWriter, r *http.Request) {
	sm := settingsManager(w)
	if sm == nil {
		return
	}

	switch r.Method {
	case http.MethodGet:
		all, err := sm.GetAllSettings()
		if err != nil {
			logger.Error("Failed to get settings", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to get settings")
			return
		}
		writeJSON(w, http.StatusOK, all)

	case http.MethodPut:
		var updates map[string]string
		if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		// 全件検証してから保存する
		for key, value := range updates {
			def, ok := settings.DefaultSettings[key]
			if !ok {
				writeError(w, http.StatusBadRequest, "unknown setting key: "+key)
				return
			}
			// GETは機密値を空で返すので、空のまま送り返されたものは変更なしとみなす
			if def.Type == settings.SettingTypeSecret && value == "" {
				delete(updates, key)
				continue
			}
			if err := settings.ValidateSetting(key, value); err != nil {
				writeError(w, http.StatusBadRequest, key+": "+err.Error())
				return
			}
		}
		for key, value := range updates {
			if err := sm.SetSetting(key, value); err != nil {
				logger.Error("Failed to save setting", zap.String("key", key), zap.Error(err))
				writeError(w, http.StatusInternalServerError, "failed to save "+key)
				return
			}
		}

		env.Reload(sm)
		if svc := getWheel(); svc != nil {
			svc.applyConfig(
				env.Value.SpinDurationMs,
				env.Value.SpinTurns,
				env.Value.RightToLeft,
				env.Value.WeightedMode,
				env.Value.SpinCodeLength,
				env.Value.CooldownDays,
			)
		}

		logger.Info("Settings updated", zap.Int("count", len(updates)))
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"updated": len(updates),
		})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func handleSettingsStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sm := settingsManager(w)
	if sm == nil {
		return
	}

	status, err := sm.CheckFeatureStatus()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check status")
		return
	}
	writeJSON(w, http.StatusOK, status)
}
