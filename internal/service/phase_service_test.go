package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/launchforge/launchpad/internal/domain"
)

type phaseEnv struct {
	deals  *fakeDealStore
	phases *fakePhaseStore
	audit  *fakeAuditStore
	bus    *fakeSignalBus
	svc    *PhaseService
}

func newPhaseEnv(t *testing.T, status domain.DealStatus) *phaseEnv {
	t.Helper()
	env := &phaseEnv{
		deals:  newFakeDealStore(),
		phases: newFakePhaseStore(),
		audit:  &fakeAuditStore{},
		bus:    newFakeSignalBus(),
	}
	env.svc = NewPhaseService(env.deals, env.phases, env.audit, env.bus, testLogger())
	require.NoError(t, env.deals.Create(context.Background(), domain.Deal{
		ID:     "deal-1",
		Status: status,
	}))
	return env
}

func TestTransition_Lifecycle(t *testing.T) {
	cases := []struct {
		action domain.PhaseAction
		from   domain.DealStatus
		to     domain.DealStatus
	}{
		{domain.ActionOpenRegistration, domain.DealStatusApproved, domain.DealStatusRegistrationOpen},
		{domain.ActionCloseRegistration, domain.DealStatusRegistrationOpen, domain.DealStatusGuaranteed},
		{domain.ActionOpenContributions, domain.DealStatusGuaranteed, domain.DealStatusFCFS},
		{domain.ActionCloseContributions, domain.DealStatusGuaranteed, domain.DealStatusSettlement},
		{domain.ActionCloseContributions, domain.DealStatusFCFS, domain.DealStatusSettlement},
		{domain.ActionStartDistribution, domain.DealStatusSettlement, domain.DealStatusDistributing},
		{domain.ActionComplete, domain.DealStatusDistributing, domain.DealStatusCompleted},
		{domain.ActionCancel, domain.DealStatusDraft, domain.DealStatusCancelled},
		{domain.ActionCancel, domain.DealStatusFCFS, domain.DealStatusCancelled},
		{domain.ActionCancel, domain.DealStatusDistributing, domain.DealStatusCancelled},
	}
	for _, tc := range cases {
		t.Run(string(tc.action)+"_from_"+string(tc.from), func(t *testing.T) {
			env := newPhaseEnv(t, tc.from)

			tr, err := env.svc.Transition(context.Background(), "deal-1", tc.action)
			require.NoError(t, err)
			assert.Equal(t, tc.from, tr.PreviousStatus)
			assert.Equal(t, tc.to, tr.NewStatus)
			assert.Equal(t, tc.to, tr.Deal.Status)
			assert.NotEmpty(t, tr.Message)

			deal, err := env.deals.GetByID(context.Background(), "deal-1")
			require.NoError(t, err)
			assert.Equal(t, tc.to, deal.Status)
		})
	}
}

func TestTransition_InvalidFrom(t *testing.T) {
	cases := []struct {
		action domain.PhaseAction
		from   domain.DealStatus
	}{
		{domain.ActionOpenRegistration, domain.DealStatusDraft},
		{domain.ActionOpenContributions, domain.DealStatusRegistrationOpen},
		{domain.ActionCloseContributions, domain.DealStatusSettlement},
		{domain.ActionComplete, domain.DealStatusSettlement},
		{domain.ActionCancel, domain.DealStatusCompleted},
		{domain.ActionCancel, domain.DealStatusCancelled},
	}
	for _, tc := range cases {
		t.Run(string(tc.action)+"_from_"+string(tc.from), func(t *testing.T) {
			env := newPhaseEnv(t, tc.from)

			_, err := env.svc.Transition(context.Background(), "deal-1", tc.action)
			require.Error(t, err)
			assert.Equal(t, domain.CodeInvalidTransition, domain.CodeOf(err))
			assert.True(t, domain.IsKind(err, domain.KindState))

			// The failed transition leaves the deal untouched.
			deal, err := env.deals.GetByID(context.Background(), "deal-1")
			require.NoError(t, err)
			assert.Equal(t, tc.from, deal.Status)
			assert.Equal(t, 0, env.audit.count("deal.phase_changed"))
		})
	}
}

func TestTransition_UnknownAction(t *testing.T) {
	env := newPhaseEnv(t, domain.DealStatusApproved)

	_, err := env.svc.Transition(context.Background(), "deal-1", "freeze")
	require.Error(t, err)
	assert.Equal(t, domain.CodeInvalidInput, domain.CodeOf(err))
}

func TestTransition_UnknownDeal(t *testing.T) {
	env := newPhaseEnv(t, domain.DealStatusApproved)

	_, err := env.svc.Transition(context.Background(), "nope", domain.ActionOpenRegistration)
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
}

func TestTransition_RefreshesProjectionAndPublishes(t *testing.T) {
	env := newPhaseEnv(t, domain.DealStatusGuaranteed)
	ctx := context.Background()

	_, err := env.svc.Transition(ctx, "deal-1", domain.ActionOpenContributions)
	require.NoError(t, err)

	phases, err := env.svc.Phases(ctx, "deal-1")
	require.NoError(t, err)
	require.Len(t, phases, 5)
	for i, p := range phases {
		assert.Equal(t, i+1, p.Order)
		assert.Equal(t, "deal-1", p.DealID)
		assert.Equal(t, p.Name == "fcfs", p.Active)
	}

	assert.Equal(t, 1, env.audit.count("deal.phase_changed"))
	assert.Len(t, env.bus.published[domain.ChannelDeals], 1)
}

func TestAutoSettle_FiresAtMostOnce(t *testing.T) {
	env := newPhaseEnv(t, domain.DealStatusFCFS)
	ctx := context.Background()

	env.deals.mu.Lock()
	deal := env.deals.deals["deal-1"]
	deal.HardCap = usd(1000)
	deal.TotalRaised = usd(1000)
	env.deals.deals["deal-1"] = deal
	env.deals.mu.Unlock()

	applied, err := env.svc.AutoSettle(ctx, "deal-1")
	require.NoError(t, err)
	assert.True(t, applied)

	got, err := env.deals.GetByID(ctx, "deal-1")
	require.NoError(t, err)
	assert.Equal(t, domain.DealStatusSettlement, got.Status)

	// Replaying the check is a no-op with no further side effects.
	applied, err = env.svc.AutoSettle(ctx, "deal-1")
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, 1, env.audit.count("deal.phase_changed"))
	assert.Len(t, env.bus.published[domain.ChannelDeals], 1)
}

func TestAutoSettle_BelowCapDoesNothing(t *testing.T) {
	env := newPhaseEnv(t, domain.DealStatusFCFS)
	ctx := context.Background()

	env.deals.mu.Lock()
	deal := env.deals.deals["deal-1"]
	deal.HardCap = usd(1000)
	deal.TotalRaised = usd(400)
	env.deals.deals["deal-1"] = deal
	env.deals.mu.Unlock()

	applied, err := env.svc.AutoSettle(ctx, "deal-1")
	require.NoError(t, err)
	assert.False(t, applied)

	got, err := env.deals.GetByID(ctx, "deal-1")
	require.NoError(t, err)
	assert.Equal(t, domain.DealStatusFCFS, got.Status)
}
