package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllow_EnforcesLimit(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := m.Allow(ctx, "client-a", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "request %d should be allowed", i)
	}

	ok, err := m.Allow(ctx, "client-a", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "fourth request should be rejected")
}

func TestAllow_KeysAreIndependent(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	ok, err := m.Allow(ctx, "client-a", 1, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = m.Allow(ctx, "client-a", 1, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// A different key has its own window.
	ok, err = m.Allow(ctx, "client-b", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAllow_WindowSlides(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	ok, err := m.Allow(ctx, "client-a", 1, 30*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = m.Allow(ctx, "client-a", 1, 30*time.Millisecond)
	require.NoError(t, err)
	require.False(t, ok)

	time.Sleep(40 * time.Millisecond)

	ok, err = m.Allow(ctx, "client-a", 1, 30*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok, "request should pass after the window slides")
}

func TestAllow_ConcurrentNeverExceedsLimit(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	const limit = 10
	const attempts = 50

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := m.Allow(ctx, "shared", limit, time.Minute)
			require.NoError(t, err)
			if ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, limit, allowed)
}

func TestWait_ReturnsWhenAllowed(t *testing.T) {
	m := NewMemory()
	defer m.Close()

	require.NoError(t, m.Wait(context.Background(), "waiter"))
}

func TestWait_HonorsContextCancellation(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()

	// Exhaust the 1 rps budget, then wait with a deadline shorter than the
	// refill window.
	require.NoError(t, m.Wait(context.Background(), "waiter"))

	err := m.Wait(ctx, "waiter")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClose_Idempotent(t *testing.T) {
	m := NewMemory()
	m.Close()
	m.Close()
}
