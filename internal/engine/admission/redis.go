package admission

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"crmcore/internal/platform/config"
)

// RedisCounterStore enforces limits cluster-wide: INCR is atomic, the
// window TTL is set only by the increment that opens it.
type RedisCounterStore struct {
	client *redis.Client
}

func NewRedisCounterStore(cfg config.RedisConfig) *RedisCounterStore {
	return &RedisCounterStore{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
	}
}

func (s *RedisCounterStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, "ratelimit:"+key)
	pipe.ExpireNX(ctx, "ratelimit:"+key, window)
	ttl := pipe.PTTL(ctx, "ratelimit:"+key)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, time.Time{}, err
	}

	remaining := ttl.Val()
	if remaining < 0 {
		remaining = window
	}
	return incr.Val(), time.Now().Add(remaining), nil
}

func (s *RedisCounterStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisCounterStore) Close() error {
	return s.client.Close()
}
