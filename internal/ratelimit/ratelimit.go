package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Decision struct {
	Allowed    bool
	Count      int64
	RetryAfter time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// RedisLimiter is a fixed-window counter: the first hit in a window sets the
// key's expiry and every hit increments it.
type RedisLimiter struct {
	Client *redis.Client
	Prefix string
	Limit  int64
	Window time.Duration
}

func NewRedisLimiter(redisURL, prefix string, limit int64, window time.Duration) (*RedisLimiter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisLimiter{
		Client: redis.NewClient(opts),
		Prefix: prefix,
		Limit:  limit,
		Window: window,
	}, nil
}

func (l *RedisLimiter) Ping(ctx context.Context) error {
	return l.Client.Ping(ctx).Err()
}

func (l *RedisLimiter) Close() error {
	return l.Client.Close()
}

func (l *RedisLimiter) key(key string) string {
	if l.Prefix == "" {
		return key
	}
	return l.Prefix + ":" + key
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	k := l.key(key)
	count, err := l.Client.Incr(ctx, k).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("increment %s: %w", k, err)
	}
	if count == 1 {
		if err := l.Client.Expire(ctx, k, l.Window).Err(); err != nil {
			return Decision{}, fmt.Errorf("expire %s: %w", k, err)
		}
	}
	if count <= l.Limit {
		return Decision{Allowed: true, Count: count}, nil
	}

	ttl, err := l.Client.TTL(ctx, k).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("ttl %s: %w", k, err)
	}
	if ttl < 0 {
		// A key without an expiry never resets.
		if err := l.Client.Expire(ctx, k, l.Window).Err(); err != nil {
			return Decision{}, fmt.Errorf("expire %s: %w", k, err)
		}
		ttl = l.Window
	}
	return Decision{Allowed: false, Count: count, RetryAfter: ttl}, nil
}
