// Package cooldown implements the per-identity "already spun" gate.
//
// The gate is advisory: it trusts the local clock and can be bypassed by
// clock manipulation or by clearing the store. The authoritative decision
// belongs to the external eligibility check (see package eligibility).
package cooldown

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	DefaultDays = 15
	MinDays     = 1
	MaxDays     = 365

	dayMs = 86_400_000
)

var ErrInvalidIdentity = errors.New("invalid identity")

// Record は1つのidentityに対する直近のスピン記録
type Record struct {
	Identity       string    `json:"identity"`
	SpunAt         time.Time `json:"spun_at"`
	LastPrizeLabel string    `json:"last_prize_label"`
	LastCode       string    `json:"last_code"`
}

// LastOutcome is the prize label and code of the last active spin.
type LastOutcome struct {
	PrizeLabel string `json:"prize_label"`
	Code       string `json:"code"`
}

// Store persists cooldown records keyed by normalized identity.
// Get returns (nil, nil) when no record exists.
type Store interface {
	Get(ctx context.Context, identity string) (*Record, error)
	Put(ctx context.Context, record Record, expiresAt time.Time) error
	Delete(ctx context.Context, identity string) error
}

// Gate answers cooldown questions against a Store.
type Gate struct {
	store Store
	days  int
	now   func() time.Time
}

// Option customises a Gate.
type Option func(*Gate)

// WithNow overrides the time source.
func WithNow(now func() time.Time) Option {
	return func(g *Gate) {
		if now != nil {
			g.now = now
		}
	}
}

// ClampDays limits the cooldown window to [MinDays, MaxDays]; zero or
// negative selects DefaultDays.
func ClampDays(days int) int {
	if days <= 0 {
		return DefaultDays
	}
	if days < MinDays {
		return MinDays
	}
	if days > MaxDays {
		return MaxDays
	}
	return days
}

// NewGate creates a gate with the given window in days.
func NewGate(store Store, days int, opts ...Option) *Gate {
	g := &Gate{
		store: store,
		days:  ClampDays(days),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Days returns the configured window.
func (g *Gate) Days() int {
	return g.days
}

// RetainUntil returns the physical expiry handed to the store for a record
// spun at spunAt. It covers the widest window so that raising the window
// later never loses a record the gate still treats as active.
func RetainUntil(spunAt time.Time) time.Time {
	return spunAt.Add(time.Duration(MaxDays) * dayMs * time.Millisecond)
}

// Window returns the cooldown window as a duration.
func (g *Gate) Window() time.Duration {
	return time.Duration(g.days) * dayMs * time.Millisecond
}

// active は期限内の記録のみを返す。期限切れの記録は削除を試みて無いものとして扱う。
func (g *Gate) active(ctx context.Context, identity string) (*Record, error) {
	id, err := NormalizeIdentity(identity)
	if err != nil {
		return nil, err
	}

	record, err := g.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to read cooldown record: %w", err)
	}
	if record == nil {
		return nil, nil
	}

	if g.now().Sub(record.SpunAt) < g.Window() {
		return record, nil
	}

	_ = g.store.Delete(ctx, id)
	return nil, nil
}

// HasRecentSpin reports whether identity spun within the window.
func (g *Gate) HasRecentSpin(ctx context.Context, identity string) (bool, error) {
	record, err := g.active(ctx, identity)
	if err != nil {
		return false, err
	}
	return record != nil, nil
}

// RecordSpin stores a spin for identity at the current time.
func (g *Gate) RecordSpin(ctx context.Context, identity, prizeLabel, code string) error {
	id, err := NormalizeIdentity(identity)
	if err != nil {
		return err
	}

	spunAt := g.now()
	record := Record{
		Identity:       id,
		SpunAt:         spunAt,
		LastPrizeLabel: prizeLabel,
		LastCode:       code,
	}
	if err := g.store.Put(ctx, record, RetainUntil(spunAt)); err != nil {
		return fmt.Errorf("failed to write cooldown record: %w", err)
	}
	return nil
}

// ActiveCooldownEndsAt returns when the active cooldown for identity ends.
// ok is false when there is no active cooldown.
func (g *Gate) ActiveCooldownEndsAt(ctx context.Context, identity string) (endsAt time.Time, ok bool, err error) {
	record, err := g.active(ctx, identity)
	if err != nil || record == nil {
		return time.Time{}, false, err
	}
	return record.SpunAt.Add(g.Window()), true, nil
}

// LastOutcome returns the prize and code of the active record, if any.
func (g *Gate) LastOutcome(ctx context.Context, identity string) (*LastOutcome, error) {
	record, err := g.active(ctx, identity)
	if err != nil || record == nil {
		return nil, err
	}
	return &LastOutcome{PrizeLabel: record.LastPrizeLabel, Code: record.LastCode}, nil
}

// Clear removes any record for identity.
func (g *Gate) Clear(ctx context.Context, identity string) error {
	id, err := NormalizeIdentity(identity)
	if err != nil {
		return err
	}
	return g.store.Delete(ctx, id)
}

// WithDays returns a gate over the same store with a different window.
func (g *Gate) WithDays(days int) *Gate {
	return &Gate{store: g.store, days: ClampDays(days), now: g.now}
}
