package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"spread-alerts/internal/config"
)

// redisKV is the subset of the redis client used by RedisSignalStore.
type redisKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisSignalStore keeps the last alerted spread under a single key.
type RedisSignalStore struct {
	client redisKV
	key    string
}

// NewRedisClient builds a client from runtime settings.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// NewRedisSignalStore stores the value at <prefix>last_signal:<currency>.
func NewRedisSignalStore(client redisKV, prefix string, currency int) *RedisSignalStore {
	return &RedisSignalStore{
		client: client,
		key:    fmt.Sprintf("%slast_signal:%d", prefix, currency),
	}
}

// Key returns the redis key in use.
func (s *RedisSignalStore) Key() string {
	return s.key
}

func (s *RedisSignalStore) Load(ctx context.Context) (string, bool, error) {
	value, err := s.client.Get(ctx, s.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis get %s: %w", s.key, err)
	}
	if value == "" {
		return "", false, nil
	}
	return value, true, nil
}

func (s *RedisSignalStore) Save(ctx context.Context, spread string) error {
	if err := s.client.Set(ctx, s.key, spread, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", s.key, err)
	}
	return nil
}

var _ SignalStore = (*RedisSignalStore)(nil)
