// Package ratelimit provides an in-process sliding-window rate limiter for
// single-replica deployments that run without Redis.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/launchforge/launchpad/internal/domain"
)

const (
	waitPollInterval = 50 * time.Millisecond
	sweepInterval    = time.Minute
)

// Memory implements domain.RateLimiter with per-key timestamp windows held in
// process memory. It is not safe across replicas.
type Memory struct {
	mu      sync.Mutex
	windows map[string][]time.Time

	done chan struct{}
	once sync.Once
}

// NewMemory creates a Memory limiter and starts its background sweeper. Call
// Close to stop the sweeper.
func NewMemory() *Memory {
	m := &Memory{
		windows: make(map[string][]time.Time),
		done:    make(chan struct{}),
	}
	go m.sweep()
	return m
}

// Allow reports whether a request for the key fits in the sliding window,
// counting it when it does.
func (m *Memory) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now()
	cutoff := now.Add(-window)

	m.mu.Lock()
	defer m.mu.Unlock()

	ts := m.windows[key]
	live := ts[:0]
	for _, t := range ts {
		if t.After(cutoff) {
			live = append(live, t)
		}
	}

	if len(live) >= limit {
		m.windows[key] = live
		return false, nil
	}

	m.windows[key] = append(live, now)
	return true, nil
}

// Wait blocks until a request for the key is allowed, polling at a fixed
// interval. It uses a default limit of 1 request per second.
func (m *Memory) Wait(ctx context.Context, key string) error {
	for {
		allowed, err := m.Allow(ctx, key, 1, time.Second)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		timer := time.NewTimer(waitPollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Close stops the background sweeper. Safe to call multiple times.
func (m *Memory) Close() {
	m.once.Do(func() { close(m.done) })
}

// sweep periodically drops keys whose windows have fully expired so idle keys
// do not accumulate.
func (m *Memory) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-sweepInterval)
			m.mu.Lock()
			for key, ts := range m.windows {
				if len(ts) == 0 || !ts[len(ts)-1].After(cutoff) {
					delete(m.windows, key)
				}
			}
			m.mu.Unlock()
		}
	}
}

// Compile-time interface check.
var _ domain.RateLimiter = (*Memory)(nil)
