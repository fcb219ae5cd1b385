package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/launchforge/launchpad/internal/domain"
)

// unlockLua releases the lock only when the stored token is the caller's, so
// an expired holder cannot delete a lock someone else has since taken.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// LockManager implements domain.LockManager with SET NX plus a token-checked
// unlock script. The archive sweeper relies on it so at most one replica
// sweeps at a time.
type LockManager struct {
	rdb    *redis.Client
	unlock *redis.Script
}

var _ domain.LockManager = (*LockManager)(nil)

// NewLockManager creates a LockManager backed by the given Client.
func NewLockManager(c *Client) *LockManager {
	return &LockManager{
		rdb:    c.Underlying(),
		unlock: redis.NewScript(unlockLua),
	}
}

// Acquire takes the named lock for at most ttl and returns its release
// function, which is idempotent. A lock already held elsewhere surfaces as
// domain.ErrLockHeld.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	k := "lock:" + key
	token := uuid.New().String()

	ok, err := lm.rdb.SetNX(ctx, k, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			// Detached context: release must work even after the caller's
			// context is cancelled.
			rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = lm.unlock.Run(rctx, lm.rdb, []string{k}, token).Err()
		})
	}
	return release, nil
}
