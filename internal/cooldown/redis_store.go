package cooldown

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "prize-wheel:cooldown:"

// RedisStore keeps one hash per identity and lets Redis expire it once it
// is older than the widest window (see RetainUntil).
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) key(identity string) string {
	return s.prefix + identity
}

func (s *RedisStore) Get(ctx context.Context, identity string) (*Record, error) {
	vals, err := s.rdb.HGetAll(ctx, s.key(identity)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(vals) == 0 {
		return nil, nil
	}

	spunAtMs, err := strconv.ParseInt(vals["spun_at"], 10, 64)
	if err != nil {
		// 壊れたレコードは無いものとして扱う
		return nil, nil
	}
	return &Record{
		Identity:       identity,
		SpunAt:         time.UnixMilli(spunAtMs),
		LastPrizeLabel: vals["last_prize_label"],
		LastCode:       vals["last_code"],
	}, nil
}

func (s *RedisStore) Put(ctx context.Context, record Record, expiresAt time.Time) error {
	key := s.key(record.Identity)
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key,
		"spun_at", strconv.FormatInt(record.SpunAt.UnixMilli(), 10),
		"last_prize_label", record.LastPrizeLabel,
		"last_code", record.LastCode,
	)
	pipe.ExpireAt(ctx, key, expiresAt)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Delete(ctx context.Context, identity string) error {
	return s.rdb.Del(ctx, s.key(identity)).Err()
}
