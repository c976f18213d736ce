package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter counts admissions in Redis so ceilings hold across processes
// and survive restarts. One INCR-backed counter per granularity, keyed by
// the current window; an admission that overflows any ceiling is rolled
// back before denying.
type RedisLimiter struct {
	rdb      *redis.Client
	ceilings func() Ceilings
	now      func() time.Time
}

func NewRedisLimiter(rdb *redis.Client, ceilings func() Ceilings) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, ceilings: ceilings, now: time.Now}
}

func (l *RedisLimiter) Allow(ctx context.Context, provider string) (bool, error) {
	c := l.ceilings()
	now := l.now()

	var taken []string
	for _, g := range granularities {
		ceiling := ceilingFor(c, g.name)
		if ceiling <= 0 {
			continue
		}

		key := fmt.Sprintf("rl:%s:%s:%d", provider, g.name, windowStart(now, g.size))
		n, err := l.rdb.Incr(ctx, key).Result()
		if err != nil {
			l.rollback(ctx, taken)
			return false, fmt.Errorf("rate limit incr: %w", err)
		}
		if n == 1 {
			// Window key just appeared; expire it one full window after it
			// can no longer admit, so slow clocks do not orphan keys.
			_ = l.rdb.Expire(ctx, key, 2*g.size).Err()
		}
		if n > int64(ceiling) {
			taken = append(taken, key)
			l.rollback(ctx, taken)
			return false, nil
		}
		taken = append(taken, key)
	}
	return true, nil
}

func (l *RedisLimiter) rollback(ctx context.Context, keys []string) {
	for _, key := range keys {
		_ = l.rdb.Decr(ctx, key).Err()
	}
}
