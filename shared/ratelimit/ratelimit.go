package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrRateLimited      = errors.New("rate limited")
	ErrRedisUnavailable = errors.New("rate limit store unavailable")
)

// Config controls a fixed window limiter.
type Config struct {
	Prefix string
	Window time.Duration
	Limit  int
}

// FixedWindow counts hits per key in a fixed time window stored in Redis.
// The window starts at the first hit for a key.
type FixedWindow struct {
	redis  redis.UniversalClient
	config Config
}

// NewFixedWindow creates a limiter backed by redisClient.
func NewFixedWindow(redisClient redis.UniversalClient, cfg Config) *FixedWindow {
	return &FixedWindow{
		redis:  redisClient,
		config: cfg,
	}
}

// Allow records one hit for each non-empty key and returns ErrRateLimited if
// any of them exceeded the limit.
func (l *FixedWindow) Allow(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := l.hit(ctx, l.config.Prefix+":"+key); err != nil {
			return err
		}
	}
	return nil
}

func (l *FixedWindow) hit(ctx context.Context, key string) error {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	if count > int64(l.config.Limit) {
		return ErrRateLimited
	}

	return nil
}
