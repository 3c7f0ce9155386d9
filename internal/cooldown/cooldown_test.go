package cooldown

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ichi0g0y/prize-wheel/internal/localdb"
	"github.com/redis/go-redis/v9"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newMemoryGate(t *testing.T, days int) (*Gate, *MemoryStore, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
	store := NewMemoryStore()
	return NewGate(store, days, WithNow(clock.Now)), store, clock
}

// runGateScenario は15日間のクールダウンを一通り確認する
func runGateScenario(t *testing.T, gate *Gate, clock *fakeClock) {
	t.Helper()
	ctx := context.Background()
	t0 := clock.Now()

	recent, err := gate.HasRecentSpin(ctx, "501234567")
	if err != nil {
		t.Fatalf("HasRecentSpin failed: %v", err)
	}
	if recent {
		t.Fatal("fresh identity should not have a recent spin")
	}

	if err := gate.RecordSpin(ctx, "501234567", "وجبة غداء", "ABCD1234"); err != nil {
		t.Fatalf("RecordSpin failed: %v", err)
	}

	recent, err = gate.HasRecentSpin(ctx, "501234567")
	if err != nil || !recent {
		t.Fatalf("expected recent spin: got=%v err=%v", recent, err)
	}

	endsAt, ok, err := gate.ActiveCooldownEndsAt(ctx, "501234567")
	if err != nil || !ok {
		t.Fatalf("expected active cooldown: ok=%v err=%v", ok, err)
	}
	want := t0.Add(15 * 86_400_000 * time.Millisecond)
	if !endsAt.Equal(want) {
		t.Fatalf("unexpected ends_at: got=%v want=%v", endsAt, want)
	}

	last, err := gate.LastOutcome(ctx, "501234567")
	if err != nil || last == nil {
		t.Fatalf("expected last outcome: got=%v err=%v", last, err)
	}
	if last.PrizeLabel != "وجبة غداء" || last.Code != "ABCD1234" {
		t.Fatalf("unexpected last outcome: %+v", last)
	}

	// 期限の1ms前はまだ有効
	clock.now = want.Add(-time.Millisecond)
	if recent, _ := gate.HasRecentSpin(ctx, "501234567"); !recent {
		t.Fatal("cooldown should still be active 1ms before the end")
	}

	clock.now = want.Add(time.Millisecond)
	_, ok, err = gate.ActiveCooldownEndsAt(ctx, "501234567")
	if err != nil {
		t.Fatalf("ActiveCooldownEndsAt failed: %v", err)
	}
	if ok {
		t.Fatal("cooldown should be over at t0+15d+1ms")
	}
	last, err = gate.LastOutcome(ctx, "501234567")
	if err != nil || last != nil {
		t.Fatalf("expected no last outcome after expiry: got=%v err=%v", last, err)
	}
	if recent, _ := gate.HasRecentSpin(ctx, "501234567"); recent {
		t.Fatal("HasRecentSpin should be false after expiry")
	}
}

func TestGate_FifteenDayScenario(t *testing.T) {
	gate, store, clock := newMemoryGate(t, 15)
	runGateScenario(t, gate, clock)

	if len(store.records) != 0 {
		t.Fatalf("expired record should be removed lazily: got=%d", len(store.records))
	}
}

func TestGate_BoundaryIsExclusive(t *testing.T) {
	gate, _, clock := newMemoryGate(t, 1)
	ctx := context.Background()

	if err := gate.RecordSpin(ctx, "user@example.com", "Cap", "CODE"); err != nil {
		t.Fatalf("RecordSpin failed: %v", err)
	}
	clock.Advance(24 * time.Hour)

	if recent, _ := gate.HasRecentSpin(ctx, "user@example.com"); recent {
		t.Fatal("record exactly one window old should be expired")
	}
}

func TestGate_NormalizedIdentitySharesRecord(t *testing.T) {
	gate, _, _ := newMemoryGate(t, 15)
	ctx := context.Background()

	if err := gate.RecordSpin(ctx, "+966 50 123 4567", "Cap", "CODE"); err != nil {
		t.Fatalf("RecordSpin failed: %v", err)
	}
	for _, id := range []string{"00966501234567", "0501234567", "501234567", "٥٠١٢٣٤٥٦٧"} {
		recent, err := gate.HasRecentSpin(ctx, id)
		if err != nil {
			t.Fatalf("HasRecentSpin(%q) failed: %v", id, err)
		}
		if !recent {
			t.Fatalf("HasRecentSpin(%q) should share the record", id)
		}
	}
}

func TestGate_ClearAndInvalidIdentity(t *testing.T) {
	gate, _, _ := newMemoryGate(t, 15)
	ctx := context.Background()

	if err := gate.RecordSpin(ctx, "501234567", "Cap", "CODE"); err != nil {
		t.Fatalf("RecordSpin failed: %v", err)
	}
	if err := gate.Clear(ctx, "0501234567"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if recent, _ := gate.HasRecentSpin(ctx, "501234567"); recent {
		t.Fatal("record should be cleared")
	}

	if _, err := gate.HasRecentSpin(ctx, "   "); !errors.Is(err, ErrInvalidIdentity) {
		t.Fatalf("unexpected error: got=%v want=%v", err, ErrInvalidIdentity)
	}
	if err := gate.RecordSpin(ctx, "", "Cap", "CODE"); !errors.Is(err, ErrInvalidIdentity) {
		t.Fatalf("unexpected error: got=%v want=%v", err, ErrInvalidIdentity)
	}
}

func TestGate_RecordSpinOverwrites(t *testing.T) {
	gate, _, clock := newMemoryGate(t, 15)
	ctx := context.Background()

	_ = gate.RecordSpin(ctx, "501234567", "Cap", "FIRST")
	clock.Advance(time.Hour)
	_ = gate.RecordSpin(ctx, "501234567", "Mug", "SECOND")

	endsAt, ok, _ := gate.ActiveCooldownEndsAt(ctx, "501234567")
	if !ok || !endsAt.Equal(clock.Now().Add(gate.Window())) {
		t.Fatalf("window should restart from the latest spin: got=%v ok=%v", endsAt, ok)
	}
	last, _ := gate.LastOutcome(ctx, "501234567")
	if last.Code != "SECOND" {
		t.Fatalf("unexpected code: got=%q want=%q", last.Code, "SECOND")
	}
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) (*Record, error) {
	return nil, errors.New("boom")
}
func (failingStore) Put(context.Context, Record, time.Time) error { return errors.New("boom") }
func (failingStore) Delete(context.Context, string) error         { return errors.New("boom") }

func TestGate_StoreErrorsPropagate(t *testing.T) {
	gate := NewGate(failingStore{}, 15)
	ctx := context.Background()

	if _, err := gate.HasRecentSpin(ctx, "501234567"); err == nil {
		t.Fatal("expected store error")
	}
	if err := gate.RecordSpin(ctx, "501234567", "Cap", "CODE"); err == nil {
		t.Fatal("expected store error")
	}
}

func TestClampDays(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{0, DefaultDays},
		{-3, DefaultDays},
		{1, 1},
		{15, 15},
		{365, 365},
		{366, 365},
		{10000, 365},
	}
	for _, tt := range tests {
		if got := ClampDays(tt.in); got != tt.want {
			t.Fatalf("ClampDays(%d): got=%d want=%d", tt.in, got, tt.want)
		}
	}

	g := NewGate(NewMemoryStore(), 400)
	if g.Days() != 365 {
		t.Fatalf("unexpected days: got=%d want=365", g.Days())
	}
}

func TestSQLiteStore_Scenario(t *testing.T) {
	if localdb.DBClient != nil {
		_ = localdb.CloseDB()
	}
	if _, err := localdb.SetupDB(filepath.Join(t.TempDir(), "local.db")); err != nil {
		t.Fatalf("SetupDB failed: %v", err)
	}
	t.Cleanup(func() {
		_ = localdb.CloseDB()
	})

	clock := &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
	gate := NewGate(NewSQLiteStore(), 15, WithNow(clock.Now))
	runGateScenario(t, gate, clock)

	row, err := localdb.GetSpinCooldown(context.Background(), "501234567")
	if err != nil {
		t.Fatalf("GetSpinCooldown failed: %v", err)
	}
	if row != nil {
		t.Fatalf("expired row should be deleted: %+v", row)
	}
}

func TestRedisStore_Scenario(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() {
		_ = rdb.Close()
	})
	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not reachable: %v", err)
	}

	prefix := "prize-wheel-test:" + t.Name() + ":"
	store := NewRedisStore(rdb, prefix)
	_ = store.Delete(ctx, "501234567")

	// RedisのTTLは実時間なので、ゲート側の時計を進めて期限切れを確認する
	clock := &fakeClock{now: time.Now()}
	gate := NewGate(store, 15, WithNow(clock.Now))
	runGateScenario(t, gate, clock)
}

func TestGate_WithDaysSharesStore(t *testing.T) {
	gate, _, clock := newMemoryGate(t, 15)
	ctx := context.Background()

	_ = gate.RecordSpin(ctx, "501234567", "Cap", "CODE")
	clock.Advance(2 * 24 * time.Hour)

	shorter := gate.WithDays(1)
	if shorter.Days() != 1 {
		t.Fatalf("unexpected days: got=%d want=1", shorter.Days())
	}
	if recent, _ := shorter.HasRecentSpin(ctx, "501234567"); recent {
		t.Fatal("record older than the new window should be expired")
	}
	if recent, _ := gate.HasRecentSpin(ctx, "501234567"); recent {
		t.Fatal("expired record was deleted through the shared store")
	}
}

// runRaisedWindowScenario は1日で記録した後に15日へ延長しても、物理的な削除で記録が消えないことを確認する
func runRaisedWindowScenario(t *testing.T, store Store, clock *fakeClock, cleanup func(now time.Time)) {
	t.Helper()
	ctx := context.Background()

	short := NewGate(store, 1, WithNow(clock.Now))
	if err := short.RecordSpin(ctx, "501234567", "Cap", "CODE"); err != nil {
		t.Fatalf("RecordSpin failed: %v", err)
	}

	longer := short.WithDays(15)
	clock.Advance(2 * 24 * time.Hour)
	cleanup(clock.Now())

	recent, err := longer.HasRecentSpin(ctx, "501234567")
	if err != nil {
		t.Fatalf("HasRecentSpin failed: %v", err)
	}
	if !recent {
		t.Fatal("record should survive cleanup after the window was raised")
	}
	endsAt, ok, err := longer.ActiveCooldownEndsAt(ctx, "501234567")
	if err != nil || !ok {
		t.Fatalf("expected active cooldown: ok=%v err=%v", ok, err)
	}
	if want := clock.Now().Add(13 * 24 * time.Hour); !endsAt.Equal(want) {
		t.Fatalf("unexpected ends_at: got=%v want=%v", endsAt, want)
	}
}

func TestGate_RaisedWindowKeepsRecord(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		clock := &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
		runRaisedWindowScenario(t, NewMemoryStore(), clock, func(time.Time) {})
	})

	t.Run("sqlite", func(t *testing.T) {
		if localdb.DBClient != nil {
			_ = localdb.CloseDB()
		}
		if _, err := localdb.SetupDB(filepath.Join(t.TempDir(), "local.db")); err != nil {
			t.Fatalf("SetupDB failed: %v", err)
		}
		t.Cleanup(func() {
			_ = localdb.CloseDB()
		})

		clock := &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
		runRaisedWindowScenario(t, NewSQLiteStore(), clock, func(now time.Time) {
			if _, err := localdb.CleanupExpiredSpinCooldowns(now); err != nil {
				t.Fatalf("CleanupExpiredSpinCooldowns failed: %v", err)
			}
		})

		row, err := localdb.GetSpinCooldown(context.Background(), "501234567")
		if err != nil || row == nil {
			t.Fatalf("row should remain until the widest window passes: row=%v err=%v", row, err)
		}
		if want := RetainUntil(row.SpunAt); !row.ExpiresAt.Equal(want) {
			t.Fatalf("unexpected expires_at: got=%v want=%v", row.ExpiresAt, want)
		}
	})

	t.Run("redis", func(t *testing.T) {
		addr := os.Getenv("REDIS_ADDR")
		if addr == "" {
			t.Skip("REDIS_ADDR not set")
		}
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		t.Cleanup(func() {
			_ = rdb.Close()
		})
		ctx := context.Background()
		if err := rdb.Ping(ctx).Err(); err != nil {
			t.Skipf("redis not reachable: %v", err)
		}

		store := NewRedisStore(rdb, "prize-wheel-test:"+t.Name()+":")
		_ = store.Delete(ctx, "501234567")
		clock := &fakeClock{now: time.Now()}
		runRaisedWindowScenario(t, store, clock, func(time.Time) {})

		ttl, err := rdb.TTL(ctx, store.key("501234567")).Result()
		if err != nil {
			t.Fatalf("TTL failed: %v", err)
		}
		if ttl < 15*24*time.Hour {
			t.Fatalf("redis expiry should cover the widest window: ttl=%v", ttl)
		}
	})
}
