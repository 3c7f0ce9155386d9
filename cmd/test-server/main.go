package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ichi0g0y/prize-wheel/internal/cooldown"
	"github.com/ichi0g0y/prize-wheel/internal/localdb"
	"github.com/ichi0g0y/prize-wheel/internal/shared/logger"
	"github.com/ichi0g0y/prize-wheel/internal/types"
	"github.com/ichi0g0y/prize-wheel/internal/webserver"
	"go.uber.org/zap"
)

// オーバーレイ開発用。一時DB・メモリ上のクールダウン・サンプル景品で起動する
var samplePrizes = []types.Prize{
	{ID: "coffee", Label: "Coffee", Percent: 40, Color: "#c0392b", Unlimited: true},
	{ID: "lunch", Label: "وجبة غداء", Percent: 10, Color: "#2980b9", MaxWins: 3},
	{ID: "cap", Label: "Cap", Percent: 20, Color: "#27ae60", MaxWins: 10},
	{ID: "sticker", Label: "Sticker", Percent: 25, Color: "#f39c12", Unlimited: true},
	{ID: "voucher", Label: "Voucher 50 SAR", Percent: 5, Color: "#8e44ad", MaxWins: 1},
}

func main() {
	logger.Init(true)
	defer logger.Sync()

	logger.Info("Starting test web server...")

	dir, err := os.MkdirTemp("", "prize-wheel-test-*")
	if err != nil {
		logger.Fatal("Failed to create temp dir", zap.Error(err))
	}
	defer os.RemoveAll(dir)

	dbPath := filepath.Join(dir, "local.db")
	logger.Info("Using database path", zap.String("path", dbPath))

	if _, err := localdb.SetupDB(dbPath); err != nil {
		logger.Fatal("Failed to setup database", zap.Error(err))
	}
	defer localdb.CloseDB()

	if err := localdb.ReplacePrizes(samplePrizes); err != nil {
		logger.Fatal("Failed to seed prizes", zap.Error(err))
	}

	// クールダウンは1日（最小値）
	webserver.InitWheel(webserver.WheelConfig{
		DurationMs: 8000,
		Turns:      3,
		Gate:       cooldown.NewGate(cooldown.NewMemoryStore(), cooldown.MinDays),
	})
	defer webserver.CloseWheel()

	port := 8080
	if portStr := os.Getenv("SERVER_PORT"); portStr != "" {
		var p int
		if _, err := fmt.Sscanf(portStr, "%d", &p); err == nil {
			port = p
			logger.Info("Using port from SERVER_PORT env", zap.Int("port", port))
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	if err := webserver.StartWebServer(port); err != nil {
		logger.Fatal("Failed to start web server", zap.Error(err))
	}

	fmt.Printf("Test server started on port %d\n", port)
	fmt.Println("Press Ctrl+C to stop")

	<-sigChan
	fmt.Println("\nShutting down...")
	webserver.Shutdown()
}
