package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ichi0g0y/prize-wheel/internal/cooldown"
	"github.com/ichi0g0y/prize-wheel/internal/eligibility"
	"github.com/ichi0g0y/prize-wheel/internal/env"
	"github.com/ichi0g0y/prize-wheel/internal/localdb"
	"github.com/ichi0g0y/prize-wheel/internal/shared/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	storeSQLite = "sqlite"
	storeMemory = "memory"
	storeRedis  = "redis"

	redisPingTimeout = 3 * time.Second
	cleanupInterval  = time.Hour
)

// buildCooldownGate は COOLDOWN_STORE に応じたストアでGateを作る。
// 戻り値のcloseはストアの接続を閉じる。
func buildCooldownGate() (*cooldown.Gate, func(), error) {
	days := cooldown.ClampDays(env.Value.CooldownDays)
	noop := func() {}

	switch env.Value.CooldownStore {
	case storeMemory:
		logger.Warn("Using in-memory cooldown store; records are lost on restart")
		return cooldown.NewGate(cooldown.NewMemoryStore(), days), noop, nil

	case storeRedis:
		if env.Value.RedisAddr == nil {
			return nil, noop, fmt.Errorf("REDIS_ADDR is required when COOLDOWN_STORE=redis")
		}
		opts := &redis.Options{Addr: *env.Value.RedisAddr}
		if env.Value.RedisPassword != nil {
			opts.Password = *env.Value.RedisPassword
		}
		rdb := redis.NewClient(opts)

		ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, noop, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
		}

		logger.Info("Using redis cooldown store", zap.String("addr", opts.Addr))
		closeFn := func() {
			if err := rdb.Close(); err != nil {
				logger.Warn("Failed to close redis client", zap.Error(err))
			}
		}
		return cooldown.NewGate(cooldown.NewRedisStore(rdb, ""), days), closeFn, nil

	default:
		return cooldown.NewGate(cooldown.NewSQLiteStore(), days), noop, nil
	}
}

func buildChecker() eligibility.Checker {
	if env.Value.EligibilityURL == nil {
		logger.Info("Eligibility service not configured, only cooldown is enforced")
		return eligibility.AllowAll{}
	}

	token := ""
	if env.Value.EligibilityToken != nil {
		token = *env.Value.EligibilityToken
	}
	logger.Info("Using eligibility service", zap.String("url", *env.Value.EligibilityURL))
	return eligibility.NewHTTPChecker(*env.Value.EligibilityURL, token, env.Value.EligibilityTimeout)
}

func sleepOrDone(done <-chan struct{}, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-done:
		return false
	case <-timer.C:
		return true
	}
}

// cleanupCooldownsPeriodically は期限切れのクールダウン行を定期的に削除する
func cleanupCooldownsPeriodically(done <-chan struct{}) {
	logger.Info("Starting cooldown cleanup goroutine")

	for {
		removed, err := localdb.CleanupExpiredSpinCooldowns(time.Now())
		if err != nil {
			logger.Warn("Failed to cleanup expired cooldowns", zap.Error(err))
		} else if removed > 0 {
			logger.Info("Expired cooldowns removed", zap.Int64("count", removed))
		}

		if !sleepOrDone(done, cleanupInterval) {
			logger.Info("Stopping cooldown cleanup goroutine")
			return
		}
	}
}
