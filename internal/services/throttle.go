package services

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Throttle blocks until the caller may issue one upstream call.
type Throttle interface {
	Wait(ctx context.Context) error
}

// LocalThrottle enforces the budget within this process only. Several
// instances behind a load balancer each get their own budget.
type LocalThrottle struct {
	limiter *rate.Limiter
}

func NewLocalThrottle(interval time.Duration) *LocalThrottle {
	return &LocalThrottle{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

func (t *LocalThrottle) Wait(ctx context.Context) error {
	return t.limiter.Wait(ctx)
}

// RedisThrottle shares one slot key across all instances: a caller owns the
// next slot when SET NX succeeds, and the key expires after interval.
type RedisThrottle struct {
	client   *redis.Client
	key      string
	interval time.Duration
}

func NewRedisThrottle(client *redis.Client, key string, interval time.Duration) *RedisThrottle {
	return &RedisThrottle{client: client, key: key, interval: interval}
}

func (t *RedisThrottle) Wait(ctx context.Context) error {
	if t.client == nil {
		return errors.New("redis client not initialized")
	}
	for {
		ok, err := t.client.SetNX(ctx, t.key, 1, t.interval).Result()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		remaining, err := t.client.PTTL(ctx, t.key).Result()
		if err != nil {
			return err
		}
		if remaining <= 0 || remaining > t.interval {
			remaining = 10 * time.Millisecond
		}

		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
