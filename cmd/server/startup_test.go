package main

import (
	"testing"

	"github.com/ichi0g0y/prize-wheel/internal/eligibility"
	"github.com/ichi0g0y/prize-wheel/internal/env"
)

func withEnvValue(t *testing.T, v env.EnvValue) {
	t.Helper()
	orig := env.Value
	env.Value = v
	t.Cleanup(func() {
		env.Value = orig
	})
}

func TestBuildCooldownGate(t *testing.T) {
	withEnvValue(t, env.EnvValue{CooldownStore: storeMemory, CooldownDays: 0})

	gate, closeFn, err := buildCooldownGate()
	if err != nil {
		t.Fatalf("buildCooldownGate failed: %v", err)
	}
	defer closeFn()
	if gate.Days() != 15 {
		t.Fatalf("days mismatch: got=%d want=15", gate.Days())
	}
}

func TestBuildCooldownGate_RedisRequiresAddr(t *testing.T) {
	withEnvValue(t, env.EnvValue{CooldownStore: storeRedis, CooldownDays: 15})

	if _, _, err := buildCooldownGate(); err == nil {
		t.Fatal("expected error when REDIS_ADDR is missing")
	}
}

func TestBuildChecker(t *testing.T) {
	withEnvValue(t, env.EnvValue{})
	if _, ok := buildChecker().(eligibility.AllowAll); !ok {
		t.Fatal("expected AllowAll when ELIGIBILITY_URL is empty")
	}

	url := "https://eligibility.example.com/check"
	withEnvValue(t, env.EnvValue{EligibilityURL: &url})
	if _, ok := buildChecker().(*eligibility.HTTPChecker); !ok {
		t.Fatal("expected HTTPChecker when ELIGIBILITY_URL is set")
	}
}
