package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore satisfies Store on top of a go-redis client. Every key is
// namespaced with prefix.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore parses url, connects and pings the server before returning.
func NewRedisStore(ctx context.Context, url, prefix string) (*RedisStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}

	client := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	return NewRedisStoreFromClient(client, prefix), nil
}

func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Append(ctx context.Context, key string, value []byte, maxEntries int) error {
	if maxEntries <= 0 {
		return fmt.Errorf("redis: append %s: maxEntries must be positive", key)
	}
	fullKey := s.prefix + key

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, fullKey, value)
	pipe.LTrim(ctx, fullKey, int64(-maxEntries), -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: append %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context, key string, limit int) ([][]byte, error) {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}

	values, err := s.client.LRange(ctx, s.prefix+key, start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list %s: %w", key, err)
	}

	out := make([][]byte, 0, len(values))
	for _, v := range values {
		out = append(out, []byte(v))
	}
	return out, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get %s: %w", key, err)
	}
	return data, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
