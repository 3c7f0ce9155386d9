package webserver

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/ichi0g0y/prize-wheel/internal/shared/logger"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

const (
	defaultQRSize = 256
	maxQRSize     = 1024
	maxCodeLength = 32
)

// handleWheelCodeQR は引換コードのQR画像(PNG)を返す
func handleWheelCodeQR(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	code := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("code")))
	if code == "" || len(code) > maxCodeLength || strings.Trim(code, spinCodeAlphabet) != "" {
		writeError(w, http.StatusBadRequest, "invalid code")
		return
	}

	size := defaultQRSize
	if sizeStr := r.URL.Query().Get("size"); sizeStr != "" {
		v, err := strconv.Atoi(sizeStr)
		if err != nil || v < 64 || v > maxQRSize {
			writeError(w, http.StatusBadRequest, "invalid size")
			return
		}
		size = v
	}

	png, err := qrcode.Encode(code, qrcode.Medium, size)
	if err != nil {
		logger.Error("Failed to encode QR code", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to encode QR code")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}
