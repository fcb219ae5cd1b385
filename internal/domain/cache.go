package domain

import (
	"context"
	"errors"
	"time"
)

// ErrLockHeld is returned by LockManager.Acquire when the lock is taken.
var ErrLockHeld = errors.New("lock already held")

// RateLimiter provides sliding-window rate limiting. The in-process backend
// is single-instance only; the Redis backend is safe across replicas.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking for background jobs that must run
// on at most one replica at a time.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides pub/sub fan-out of deal events to the WebSocket hub and
// any other listeners.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// DealCache is a read-through cache of deal snapshots. A miss reports
// (zero, false, nil); errors are reserved for backend failures.
type DealCache interface {
	Set(ctx context.Context, deal Deal) error
	Get(ctx context.Context, id string) (Deal, bool, error)
	Invalidate(ctx context.Context, id string) error
}

// Event channels published on the signal bus.
const (
	ChannelDeals         = "ch:deals"
	ChannelContributions = "ch:contributions"
	ChannelClaims        = "ch:claims"
)
