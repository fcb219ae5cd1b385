package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/launchforge/launchpad/internal/domain"
)

func tok(n int64) int64 { return n * 1_000_000 }

var vestingStart = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type claimEnv struct {
	vestings      *fakeVestingStore
	notifications *fakeNotificationStore
	audit         *fakeAuditStore
	bus           *fakeSignalBus
	svc           *ClaimService
	now           time.Time
}

// newClaimEnv seeds one schedule: 1000 tokens total, 100 at TGE, a 30-day
// cliff, fully vested 180 days after start.
func newClaimEnv(t *testing.T) *claimEnv {
	t.Helper()
	env := &claimEnv{
		vestings:      newFakeVestingStore(),
		notifications: &fakeNotificationStore{},
		audit:         &fakeAuditStore{},
		bus:           newFakeSignalBus(),
		now:           vestingStart,
	}
	env.svc = NewClaimService(env.vestings, env.notifications, env.audit, env.bus, testLogger()).
		WithClock(func() time.Time { return env.now })

	cliff := vestingStart.AddDate(0, 0, 30)
	require.NoError(t, env.vestings.Create(context.Background(), domain.VestingSchedule{
		ID:           "sched-1",
		UserID:       "user-1",
		DealID:       "deal-1",
		TotalAmount:  tok(1000),
		TgeAmount:    tok(100),
		VestingStart: vestingStart,
		CliffEnd:     &cliff,
		VestingEnd:   vestingStart.AddDate(0, 0, 180),
	}))
	return env
}

func TestClaim_MidVesting(t *testing.T) {
	env := newClaimEnv(t)
	ctx := context.Background()

	// Halfway through the linear portion: TGE plus half the remainder.
	env.now = vestingStart.AddDate(0, 0, 105)
	res, err := env.svc.Claim(ctx, "user-1", "deal-1")
	require.NoError(t, err)
	assert.Equal(t, tok(550), res.Claimed)
	assert.Equal(t, tok(450), res.Remaining)
	assert.NotEmpty(t, res.TxHash)

	sched, err := env.vestings.GetByUserAndDeal(ctx, "user-1", "deal-1")
	require.NoError(t, err)
	assert.Equal(t, tok(550), sched.ClaimedAmount)
	require.NotNil(t, sched.LastClaimAt)
	assert.Equal(t, env.now, *sched.LastClaimAt)

	require.Len(t, env.vestings.claims, 1)
	assert.Equal(t, tok(550), env.vestings.claims[0].Amount)

	notifs, err := env.notifications.ListByUser(ctx, "user-1", domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, notifs, 1)
	assert.Equal(t, domain.NotifyTokensClaimed, notifs[0].Kind)

	assert.Equal(t, 1, env.audit.count("claim.processed"))
	assert.Len(t, env.bus.published[domain.ChannelClaims], 1)
}

func TestClaim_BeforeStart(t *testing.T) {
	env := newClaimEnv(t)
	env.now = vestingStart.AddDate(0, 0, -1)

	_, err := env.svc.Claim(context.Background(), "user-1", "deal-1")
	require.Error(t, err)
	assert.Equal(t, domain.CodeNothingToClaim, domain.CodeOf(err))
	assert.True(t, domain.IsKind(err, domain.KindPolicy))
	assert.Empty(t, env.vestings.claims)
}

func TestClaim_TgeOnlyDuringCliff(t *testing.T) {
	env := newClaimEnv(t)
	ctx := context.Background()

	env.now = vestingStart.AddDate(0, 0, 15)
	res, err := env.svc.Claim(ctx, "user-1", "deal-1")
	require.NoError(t, err)
	assert.Equal(t, tok(100), res.Claimed)
	assert.Equal(t, tok(900), res.Remaining)

	// The TGE portion is spent; a second claim in the cliff has nothing.
	_, err = env.svc.Claim(ctx, "user-1", "deal-1")
	require.Error(t, err)
	assert.Equal(t, domain.CodeNothingToClaim, domain.CodeOf(err))
}

func TestClaim_SequentialClaimsAccumulate(t *testing.T) {
	env := newClaimEnv(t)
	ctx := context.Background()

	env.now = vestingStart.AddDate(0, 0, 105)
	first, err := env.svc.Claim(ctx, "user-1", "deal-1")
	require.NoError(t, err)
	assert.Equal(t, tok(550), first.Claimed)

	env.now = vestingStart.AddDate(0, 0, 200)
	second, err := env.svc.Claim(ctx, "user-1", "deal-1")
	require.NoError(t, err)
	assert.Equal(t, tok(450), second.Claimed)
	assert.Zero(t, second.Remaining)

	_, err = env.svc.Claim(ctx, "user-1", "deal-1")
	require.Error(t, err)
	assert.Equal(t, domain.CodeNothingToClaim, domain.CodeOf(err))
}

func TestClaim_NoSchedule(t *testing.T) {
	env := newClaimEnv(t)

	_, err := env.svc.Claim(context.Background(), "user-1", "deal-9")
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
}

// raceVestingStore serves one stale schedule snapshot: the first read also
// advances the stored claimed amount, as a concurrent claimer would.
type raceVestingStore struct {
	*fakeVestingStore
	raced bool
}

func (r *raceVestingStore) GetByUserAndDeal(ctx context.Context, userID, dealID string) (domain.VestingSchedule, error) {
	s, err := r.fakeVestingStore.GetByUserAndDeal(ctx, userID, dealID)
	if err != nil || r.raced {
		return s, err
	}
	r.raced = true
	r.mu.Lock()
	key := vestingKey(userID, dealID)
	cur := r.schedules[key]
	cur.ClaimedAmount += tok(1)
	r.schedules[key] = cur
	r.mu.Unlock()
	return s, nil
}

func TestClaim_ConcurrentUpdateConflict(t *testing.T) {
	env := newClaimEnv(t)
	ctx := context.Background()

	raced := &raceVestingStore{fakeVestingStore: env.vestings}
	svc := NewClaimService(raced, env.notifications, env.audit, env.bus, testLogger()).
		WithClock(func() time.Time { return env.now })

	env.now = vestingStart.AddDate(0, 0, 105)
	_, err := svc.Claim(ctx, "user-1", "deal-1")
	require.Error(t, err)
	assert.Equal(t, domain.CodeConcurrentUpdate, domain.CodeOf(err))
	assert.True(t, domain.IsKind(err, domain.KindConflict))

	// The guarded write rejected the stale claim without side effects.
	assert.Empty(t, env.vestings.claims)
	notifs, nerr := env.notifications.ListByUser(ctx, "user-1", domain.ListOpts{})
	require.NoError(t, nerr)
	assert.Empty(t, notifs)
}
