package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ichi0g0y/prize-wheel/internal/env"
	"github.com/ichi0g0y/prize-wheel/internal/localdb"
	"github.com/ichi0g0y/prize-wheel/internal/shared/logger"
	"github.com/ichi0g0y/prize-wheel/internal/shared/paths"
	"github.com/ichi0g0y/prize-wheel/internal/version"
	"github.com/ichi0g0y/prize-wheel/internal/webserver"
	"go.uber.org/zap"
)

func main() {
	logger.Init(false)
	defer logger.Sync()

	logger.Info("Starting prize-wheel server", zap.String("version", version.String()))

	if err := paths.EnsureDataDirs(); err != nil {
		logger.Fatal("Failed to ensure data directories", zap.Error(err))
	}

	if _, err := localdb.SetupDB(paths.GetDBPath()); err != nil {
		logger.Fatal("Failed to setup database", zap.Error(err))
	}
	defer localdb.CloseDB()

	// env.LoadEnv must run after DB initialization.
	env.LoadEnv()
	if env.Value.DebugMode {
		logger.Init(true)
		logger.Info("Debug mode enabled")
	}

	gate, closeStore, err := buildCooldownGate()
	if err != nil {
		logger.Fatal("Failed to setup cooldown store", zap.Error(err))
	}
	defer closeStore()

	webserver.InitWheel(webserver.WheelConfig{
		DurationMs: env.Value.SpinDurationMs,
		Turns:      env.Value.SpinTurns,
		Reversed:   env.Value.RightToLeft,
		Weighted:   env.Value.WeightedMode,
		CodeLength: env.Value.SpinCodeLength,
		Gate:       gate,
		Checker:    buildChecker(),
	})

	port := 8080
	if env.Value.ServerPort != 0 {
		port = env.Value.ServerPort
	}

	if err := webserver.StartWebServer(port); err != nil {
		logger.Fatal("Failed to start web server", zap.Error(err))
	}

	maintenanceDone := make(chan struct{})
	if env.Value.CooldownStore == storeSQLite {
		go cleanupCooldownsPeriodically(maintenanceDone)
	}

	logger.Info("Server started",
		zap.Int("port", port),
		zap.String("api", fmt.Sprintf("http://localhost:%d/api/wheel/state", port)),
		zap.String("ws", fmt.Sprintf("ws://localhost:%d/ws", port)))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")

	close(maintenanceDone)
	webserver.Shutdown()
	webserver.CloseWheel()

	logger.Info("Shutdown complete")
}
