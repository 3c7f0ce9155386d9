package webserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ichi0g0y/prize-wheel/internal/cooldown"
	"github.com/ichi0g0y/prize-wheel/internal/localdb"
	"github.com/ichi0g0y/prize-wheel/internal/lottery"
	"github.com/ichi0g0y/prize-wheel/internal/shared/logger"
	"github.com/ichi0g0y/prize-wheel/internal/types"
	"github.com/ichi0g0y/prize-wheel/internal/version"
	"github.com/ichi0g0y/prize-wheel/internal/wheel"
	"go.uber.org/zap"
)

const (
	defaultGeometryRadius = 200.0
	maxGeometryRadius     = 4096.0
	maxPrizes             = 64
)

type spinRequestBody struct {
	Identity    string `json:"identity"`
	Trigger     *int64 `json:"trigger"`
	ForcedIndex *int   `json:"forced_index"`
}

type wheelPrizeView struct {
	types.Prize
	Used      int  `json:"used"`
	Available bool `json:"available"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

func requireWheel(w http.ResponseWriter) *wheelService {
	svc := getWheel()
	if svc == nil {
		writeError(w, http.StatusServiceUnavailable, errWheelNotReady.Error())
	}
	return svc
}

// handleWheelSpin はクールダウン・資格チェックを通過した場合にスピンを開始する
func handleWheelSpin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	svc := requireWheel(w)
	if svc == nil {
		return
	}

	var body spinRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	identity, err := cooldown.NormalizeIdentity(body.Identity)
	if err != nil {
		writeError(w, http.StatusBadRequest, "identity is required")
		return
	}

	gate := svc.cooldownGate()
	endsAt, active, err := gate.ActiveCooldownEndsAt(r.Context(), identity)
	if err != nil {
		logger.Error("Failed to read cooldown", zap.Error(err), zap.String("identity", identity))
		writeError(w, http.StatusInternalServerError, "failed to read cooldown")
		return
	}
	if active {
		response := map[string]interface{}{
			"success":  false,
			"error":    "cooldown active",
			"identity": identity,
			"ends_at":  endsAt.UnixMilli(),
		}
		if last, err := gate.LastOutcome(r.Context(), identity); err == nil && last != nil {
			response["last_outcome"] = last
		}
		writeJSON(w, http.StatusTooManyRequests, response)
		return
	}

	decision := svc.checker.Check(r.Context(), identity)
	if !decision.Allowed {
		logger.Info("Spin denied by eligibility check",
			zap.String("identity", identity),
			zap.String("message", decision.Message))
		writeJSON(w, http.StatusForbidden, map[string]interface{}{
			"success": false,
			"error":   "not eligible",
			"message": decision.Message,
		})
		return
	}

	session, err := svc.startSpin(spinInput{
		Identity:    identity,
		Trigger:     body.Trigger,
		ForcedIndex: body.ForcedIndex,
	})
	if err != nil {
		switch {
		case errors.Is(err, errNoAvailablePrizes), errors.Is(err, errWheelBusy), errors.Is(err, errDuplicateTrigger):
			writeError(w, http.StatusConflict, err.Error())
		default:
			logger.Error("Failed to start spin", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to start spin")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"success": true,
		"session": session,
	})
}

// handleWheelCancel は進行中のスピンを取り消す。結果は配信されない。
func handleWheelCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	svc := requireWheel(w)
	if svc == nil {
		return
	}

	cancelled := svc.driver.Cancel()
	if cancelled {
		logger.Info("Spin cancelled")
		BroadcastWSMessage("wheel_cancelled", map[string]interface{}{
			"rotation": svc.driver.Rotation(),
		})
		BroadcastWSMessage("wheel_state", svc.snapshot())
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"cancelled": cancelled,
	})
}

func handleWheelState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	svc := requireWheel(w)
	if svc == nil {
		return
	}
	writeJSON(w, http.StatusOK, svc.snapshot())
}

// handleWheelPrizes は景品リストの取得・置き換えを処理する。
func handleWheelPrizes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		handleGetWheelPrizes(w)
	case http.MethodPut:
		handlePutWheelPrizes(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func handleGetWheelPrizes(w http.ResponseWriter) {
	prizes, available, usage, err := loadAvailability()
	if err != nil {
		logger.Error("Failed to get prizes", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get prizes")
		return
	}

	availableSet := make(map[int]bool, len(available))
	for _, idx := range available {
		availableSet[idx] = true
	}

	views := make([]wheelPrizeView, 0, len(prizes))
	for i, p := range prizes {
		views = append(views, wheelPrizeView{
			Prize:     p,
			Used:      usage[p.ID],
			Available: availableSet[i],
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"prizes":          views,
		"available_count": len(available),
		"percent":         lottery.SummarizePercents(prizes),
	})
}

func validatePrizes(prizes []types.Prize) error {
	if len(prizes) > maxPrizes {
		return fmt.Errorf("too many prizes (max %d)", maxPrizes)
	}

	seen := make(map[string]bool, len(prizes))
	for i := range prizes {
		p := &prizes[i]
		p.ID = strings.TrimSpace(p.ID)
		p.Label = strings.TrimSpace(p.Label)

		if p.ID == "" {
			return fmt.Errorf("prize %d: id is required", i)
		}
		if seen[p.ID] {
			return fmt.Errorf("prize %d: duplicate id %q", i, p.ID)
		}
		seen[p.ID] = true

		if p.Label == "" {
			return fmt.Errorf("prize %q: label is required", p.ID)
		}
		if math.IsNaN(p.Percent) || math.IsInf(p.Percent, 0) || p.Percent < 0 || p.Percent > 100 {
			return fmt.Errorf("prize %q: percent must be between 0 and 100", p.ID)
		}
		if p.MaxWins < 0 {
			return fmt.Errorf("prize %q: max_wins must not be negative", p.ID)
		}
	}
	return nil
}

func handlePutWheelPrizes(w http.ResponseWriter, r *http.Request) {
	var prizes []types.Prize
	if err := json.NewDecoder(r.Body).Decode(&prizes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validatePrizes(prizes); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := localdb.ReplacePrizes(prizes); err != nil {
		logger.Error("Failed to replace prizes", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to save prizes")
		return
	}

	summary := lottery.SummarizePercents(prizes)
	if !summary.Balanced {
		logger.Warn("Prize percents do not add up to 100", zap.String("total", summary.Total))
	}

	if svc := getWheel(); svc != nil {
		svc.refreshAvailability()
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"count":   len(prizes),
		"percent": summary,
	})
}

func handleWheelUsageReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := localdb.ResetPrizeUsage(); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to reset usage")
		return
	}
	if svc := getWheel(); svc != nil {
		svc.refreshAvailability()
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
	})
}

// handleWheelHistory はスピン履歴の取得・削除を処理する。
func handleWheelHistory(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limit := 0
		if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
			if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
				limit = l
			}
		}
		history, err := localdb.GetSpinHistory(limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to get history")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"history": history,
			"count":   len(history),
		})

	case http.MethodDelete:
		if err := localdb.ClearSpinHistory(); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to clear history")
			return
		}
		logger.Info("Spin history cleared")
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
		})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type geometrySegment struct {
	wheel.Segment
	PrizeID    string `json:"prize_id"`
	PrizeLabel string `json:"prize_label"`
	Color      string `json:"color,omitempty"`
}

// handleWheelGeometry は現在の景品リストのSVG描画情報を返す
func handleWheelGeometry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	radius := defaultGeometryRadius
	if radiusStr := r.URL.Query().Get("radius"); radiusStr != "" {
		v, err := strconv.ParseFloat(radiusStr, 64)
		if err != nil || math.IsNaN(v) || v <= 0 || v > maxGeometryRadius {
			writeError(w, http.StatusBadRequest, "invalid radius")
			return
		}
		radius = v
	}

	prizes, err := localdb.GetPrizes()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get prizes")
		return
	}

	reversed := false
	if svc := getWheel(); svc != nil {
		svc.mu.RLock()
		reversed = svc.reversed
		svc.mu.RUnlock()
	}

	segments := make([]geometrySegment, 0, len(prizes))
	for i, seg := range wheel.Segments(len(prizes), radius, radius, radius, reversed) {
		segments = append(segments, geometrySegment{
			Segment:    seg,
			PrizeID:    prizes[i].ID,
			PrizeLabel: prizes[i].Label,
			Color:      prizes[i].Color,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"radius":        radius,
		"reversed":      reversed,
		"segment_angle": wheel.SegmentAngle(len(prizes)),
		"segments":      segments,
	})
}

// handleStatus returns the current system status
func handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	statusData := map[string]interface{}{
		"wheel":     "not_initialized",
		"clients":   wsHub.ClientCount(),
		"database":  localdb.GetDB() != nil,
		"version":   version.Current(),
		"timestamp": time.Now().Format(time.RFC3339),
	}
	if svc := getWheel(); svc != nil {
		statusData["wheel"] = svc.driver.State().String()
	}

	writeJSON(w, http.StatusOK, statusData)
}
