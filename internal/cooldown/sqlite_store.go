package cooldown

import (
	"context"
	"time"

	"github.com/ichi0g0y/prize-wheel/internal/localdb"
)

// SQLiteStore persists records in the local spin_cooldowns table.
type SQLiteStore struct{}

func NewSQLiteStore() *SQLiteStore {
	return &SQLiteStore{}
}

func (s *SQLiteStore) Get(ctx context.Context, identity string) (*Record, error) {
	row, err := localdb.GetSpinCooldown(ctx, identity)
	if err != nil || row == nil {
		return nil, err
	}
	return &Record{
		Identity:       row.Identity,
		SpunAt:         row.SpunAt,
		LastPrizeLabel: row.LastPrizeLabel,
		LastCode:       row.LastCode,
	}, nil
}

func (s *SQLiteStore) Put(ctx context.Context, record Record, expiresAt time.Time) error {
	return localdb.UpsertSpinCooldown(ctx, localdb.SpinCooldown{
		Identity:       record.Identity,
		SpunAt:         record.SpunAt,
		LastPrizeLabel: record.LastPrizeLabel,
		LastCode:       record.LastCode,
		ExpiresAt:      expiresAt,
	})
}

func (s *SQLiteStore) Delete(ctx context.Context, identity string) error {
	return localdb.DeleteSpinCooldown(ctx, identity)
}
