// Package throttle limits how often a one-time code may be sent to the same
// phone, using a Redis key per phone that expires after the resend interval.
package throttle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "eventhub:sms-send:"

// Connect initializes a Redis client from a redis:// URL or a host:port address.
func Connect(redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// RedisLimiter allows one send per key per interval. A non-positive
// interval disables throttling.
type RedisLimiter struct {
	client   redis.Cmdable
	interval time.Duration
}

func NewRedisLimiter(client redis.Cmdable, interval time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, interval: interval}
}

// Allow claims the send slot of key. It returns false while a previous claim
// is still live.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.interval <= 0 {
		return true, nil
	}
	ok, err := l.client.SetNX(ctx, keyPrefix+key, 1, l.interval).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

// Release drops the claim on key so the next send is not throttled.
func (l *RedisLimiter) Release(ctx context.Context, key string) error {
	if l.interval <= 0 {
		return nil
	}
	if err := l.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
