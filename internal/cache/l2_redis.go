package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is the primary L2 backend spec.md §7 names explicitly
// ("e.g., Redis"). It is a thin wrapper: TTL is Redis's own EX
// expiration, so there is no envelope format to maintain the way
// BitcaskStore needs one.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to a Redis instance at addr (host:port, or a
// redis:// URL).
func NewRedisStore(addr string) (*RedisStore, error) {
	opts, err := parseRedisAddr(addr)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	return &RedisStore{client: client}, nil
}

func parseRedisAddr(addr string) (*redis.Options, error) {
	if opts, err := redis.ParseURL(addr); err == nil {
		return opts, nil
	}
	return &redis.Options{Addr: addr}, nil
}

// Get returns (value, true, nil) on a hit, (nil, false, nil) on a miss.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, true, nil
}

// Set stores value under key with the given TTL.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete %s: %w", key, err)
	}
	return nil
}

// Keys returns every key matching a prefix pattern, via SCAN (never
// KEYS, to avoid blocking a shared Redis instance).
func (s *RedisStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan %s*: %w", prefix, err)
	}
	return keys, nil
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
