package redis

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/launchforge/launchpad/internal/domain"
)

//go:embed scripts/sliding_window.lua
var slidingWindowLua string

const (
	limiterKeyPrefix = "ratelimit:"

	// Wait retries at this cadence against a 1 rps allowance.
	waitRetryEvery = 50 * time.Millisecond
)

// RateLimiter is the cross-replica limiter backend: a sorted-set sliding
// window advanced atomically by a Lua script, so concurrent replicas never
// overcount.
type RateLimiter struct {
	rdb    *redis.Client
	script *redis.Script
}

var _ domain.RateLimiter = (*RateLimiter)(nil)

// NewRateLimiter creates a RateLimiter backed by the given Client.
func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{
		rdb:    c.Underlying(),
		script: redis.NewScript(slidingWindowLua),
	}
}

// Allow reports whether one more request fits in the key's window, counting
// it when it does.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	res, err := rl.script.Run(ctx, rl.rdb,
		[]string{limiterKeyPrefix + key},
		time.Now().UnixMicro(),
		window.Microseconds(),
		limit,
	).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("redis: rate limit %s: %w", key, err)
	}
	if len(res) < 2 {
		return false, fmt.Errorf("redis: rate limit %s: malformed script reply (%d values)", key, len(res))
	}
	return res[0] == 1, nil
}

// Wait blocks until the key's 1 rps allowance admits a request or the
// context ends. Callers needing other limits should loop over Allow.
func (rl *RateLimiter) Wait(ctx context.Context, key string) error {
	ticker := time.NewTicker(waitRetryEvery)
	defer ticker.Stop()

	for {
		allowed, err := rl.Allow(ctx, key, 1, time.Second)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("redis: rate limit wait %s: %w", key, ctx.Err())
		case <-ticker.C:
		}
	}
}
