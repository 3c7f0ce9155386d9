package webserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ichi0g0y/prize-wheel/internal/shared/logger"
	"go.uber.org/zap"
)

var httpServer *http.Server

// corsMiddleware adds CORS headers to HTTP handlers
func corsMiddleware(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		handler(w, r)
	}
}

// NewMux registers every route on a fresh ServeMux.
func NewMux() *http.ServeMux {
	mux := http.NewServeMux()

	// ホイールAPI
	mux.HandleFunc("/api/wheel/spin", corsMiddleware(handleWheelSpin))
	mux.HandleFunc("/api/wheel/cancel", corsMiddleware(handleWheelCancel))
	mux.HandleFunc("/api/wheel/state", corsMiddleware(handleWheelState))
	mux.HandleFunc("/api/wheel/prizes", corsMiddleware(handleWheelPrizes))
	mux.HandleFunc("/api/wheel/usage/reset", corsMiddleware(handleWheelUsageReset))
	mux.HandleFunc("/api/wheel/history", corsMiddleware(handleWheelHistory))
	mux.HandleFunc("/api/wheel/geometry", corsMiddleware(handleWheelGeometry))
	mux.HandleFunc("/api/wheel/code/qr", corsMiddleware(handleWheelCodeQR))
	mux.HandleFunc("/api/wheel/settings", corsMiddleware(handleWheelSettings))
	mux.HandleFunc("/api/cooldown", corsMiddleware(handleCooldown))

	// 設定・ログ
	mux.HandleFunc("/api/settings/status", corsMiddleware(handleSettingsStatus))
	mux.HandleFunc("/api/logs", corsMiddleware(handleLogs))
	mux.HandleFunc("/api/logs/download", corsMiddleware(handleLogsDownload))
	mux.HandleFunc("/api/logs/stream", handleLogsStream) // WebSocketは独自のUpgrade処理
	mux.HandleFunc("/api/logs/clear", corsMiddleware(handleLogsClear))

	mux.HandleFunc("/status", handleStatus)

	RegisterWebSocketRoute(mux)
	return mux
}

func StartWebServer(port int) error {
	startLogStreamer()

	mux := NewMux()
	addr := fmt.Sprintf(":%d", port)
	logger.Info("Starting web server", zap.String("address", addr))

	httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		WriteTimeout: 30 * time.Second,
		ReadTimeout:  10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine and wait briefly to check for immediate errors
	errChan := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
		close(errChan)
	}()

	// Wait briefly to catch immediate binding errors
	select {
	case err := <-errChan:
		if err != nil {
			logger.Error("Failed to start web server", zap.Error(err))
			return fmt.Errorf("failed to start web server on port %d: %w", port, err)
		}
	case <-time.After(100 * time.Millisecond):
	}

	return nil
}

// Shutdown gracefully shuts down the web server
func Shutdown() {
	if httpServer == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown web server gracefully", zap.Error(err))
	} else {
		logger.Info("Web server shutdown complete")
	}
}
