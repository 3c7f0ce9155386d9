package webserver

import (
	"errors"
	"net/http"

	"github.com/ichi0g0y/prize-wheel/internal/cooldown"
	"github.com/ichi0g0y/prize-wheel/internal/shared/logger"
	"go.uber.org/zap"
)

// handleCooldown は /api/cooldown?identity= の参照（GET）と管理者による解除（DELETE）
func handleCooldown(w http.ResponseWriter, r *http.Request) {
	svc := requireWheel(w)
	if svc == nil {
		return
	}
	gate := svc.cooldownGate()

	identity, err := cooldown.NormalizeIdentity(r.URL.Query().Get("identity"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "identity is required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		endsAt, active, err := gate.ActiveCooldownEndsAt(r.Context(), identity)
		if err != nil {
			logger.Error("Failed to read cooldown", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to read cooldown")
			return
		}

		response := map[string]interface{}{
			"identity":      identity,
			"active":        active,
			"cooldown_days": gate.Days(),
			"ends_at":       nil,
			"last_outcome":  nil,
		}
		if active {
			response["ends_at"] = endsAt.UnixMilli()
			last, err := gate.LastOutcome(r.Context(), identity)
			if err != nil && !errors.Is(err, cooldown.ErrInvalidIdentity) {
				logger.Warn("Failed to read last outcome", zap.Error(err))
			}
			if last != nil {
				response["last_outcome"] = last
			}
		}
		writeJSON(w, http.StatusOK, response)

	case http.MethodDelete:
		if err := gate.Clear(r.Context(), identity); err != nil {
			logger.Error("Failed to clear cooldown", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to clear cooldown")
			return
		}
		logger.Info("Cooldown cleared", zap.String("identity", identity))
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success":  true,
			"identity": identity,
		})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
