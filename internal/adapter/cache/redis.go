// Package cache stores generated SQL in Redis so repeated questions skip the model.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/guillermoBallester/querygate/internal/core/port"
	"github.com/redis/go-redis/v9"
)

// RedisCache implements port.GenerationCache.
type RedisCache struct {
	client *redis.Client
}

var _ port.GenerationCache = (*RedisCache)(nil)

// Connect parses a redis:// URL and pings the server, retrying with
// exponential backoff up to maxRetries times.
func Connect(ctx context.Context, url string, maxRetries int, logger *slog.Logger) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	opts.MaxRetries = 3
	opts.MinRetryBackoff = 8 * time.Millisecond
	opts.MaxRetryBackoff = 512 * time.Millisecond
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)
	maxRetries = max(maxRetries, 1)

	for i := range maxRetries {
		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * time.Second
			select {
			case <-ctx.Done():
				_ = client.Close()
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		err = client.Ping(ctx).Err()
		if err == nil {
			return &RedisCache{client: client}, nil
		}
		logger.Warn("redis ping failed",
			slog.Int("attempt", i+1),
			slog.Int("max_retries", maxRetries),
			slog.String("error", err.Error()),
		)
	}

	_ = client.Close()
	return nil, fmt.Errorf("connecting to redis after %d attempts: %w", maxRetries, err)
}

// NewRedisCache wraps an existing client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading %s: %w", key, err)
	}
	return val, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key, sql string, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, sql, ttl).Err(); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
