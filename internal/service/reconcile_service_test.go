package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/launchforge/launchpad/internal/domain"
)

type reconcileEnv struct {
	deals         *fakeDealStore
	contributions *fakeContributionStore
	users         *fakeUserStore
	notifications *fakeNotificationStore
	events        *fakeEventStore
	audit         *fakeAuditStore
	bus           *fakeSignalBus
	alerter       *fakeAlerter
	svc           *ReconcileService
}

// newReconcileEnv seeds an FCFS deal with 900 of its 1000 USD cap raised by
// earlier contributors, then records one PENDING 50 USD contribution through
// the ledger so its aggregates are reserved.
func newReconcileEnv(t *testing.T) *reconcileEnv {
	t.Helper()

	deals := newFakeDealStore()
	users := newFakeUserStore()
	env := &reconcileEnv{
		deals:         deals,
		contributions: newFakeContributionStore(deals, users),
		users:         users,
		notifications: &fakeNotificationStore{},
		events:        &fakeEventStore{},
		audit:         &fakeAuditStore{},
		bus:           newFakeSignalBus(),
		alerter:       &fakeAlerter{},
	}

	logger := testLogger()
	phaseSvc := NewPhaseService(deals, newFakePhaseStore(), env.audit, env.bus, logger)
	env.svc = NewReconcileService(
		env.contributions, env.notifications, env.events, env.audit,
		env.bus, phaseSvc, logger,
	).WithAlerter(env.alerter).WithClock(func() time.Time { return testNow })

	ctx := context.Background()
	require.NoError(t, deals.Create(ctx, domain.Deal{
		ID:          "deal-1",
		Status:      domain.DealStatusFCFS,
		HardCap:     usd(1000),
		TotalRaised: usd(900),
	}))
	require.NoError(t, users.Upsert(ctx, domain.User{ID: "user-1"}))

	_, err := env.contributions.Record(ctx, domain.Contribution{
		ID:        "contrib-1",
		UserID:    "user-1",
		DealID:    "deal-1",
		Amount:    usd(50),
		Currency:  domain.CurrencyUSDC,
		AmountUsd: usd(50),
		TxHash:    txHash(100),
		Chain:     domain.ChainEthereum,
		Status:    domain.ContributionPending,
	})
	require.NoError(t, err)
	return env
}

func confirmEvent(hash string) domain.SettlementEvent {
	return domain.SettlementEvent{
		Type:           domain.EventContributionConfirmed,
		TxHash:         hash,
		BlockNumber:    18_500_000,
		BlockTimestamp: testNow,
		Chain:          domain.ChainEthereum,
		Confirmations:  12,
		IdempotencyKey: "idem-" + hash,
	}
}

func eventOfType(hash string, typ domain.SettlementEventType) domain.SettlementEvent {
	ev := confirmEvent(hash)
	ev.Type = typ
	return ev
}

func (env *reconcileEnv) contribution(t *testing.T, hash string) domain.Contribution {
	t.Helper()
	c, err := env.contributions.GetByTxHash(context.Background(), hash)
	require.NoError(t, err)
	return c
}

func (env *reconcileEnv) deal(t *testing.T) domain.Deal {
	t.Helper()
	d, err := env.deals.GetByID(context.Background(), "deal-1")
	require.NoError(t, err)
	return d
}

func TestApply_ConfirmThenReplayIsIdempotent(t *testing.T) {
	env := newReconcileEnv(t)
	ctx := context.Background()
	ev := confirmEvent(txHash(100))

	outcome, err := env.svc.Apply(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, outcome)

	c := env.contribution(t, ev.TxHash)
	assert.Equal(t, domain.ContributionConfirmed, c.Status)
	require.NotNil(t, c.BlockNumber)
	assert.Equal(t, ev.BlockNumber, *c.BlockNumber)

	user, err := env.users.GetByID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, usd(50), user.TotalContributedUsd)

	// At-least-once delivery: the replay lands as a no-op and credits nothing
	// a second time.
	outcome, err = env.svc.Apply(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeNoop, outcome)

	user, err = env.users.GetByID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, usd(50), user.TotalContributedUsd)
	assert.Equal(t, usd(950), env.deal(t).TotalRaised)

	events, err := env.events.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.OutcomeApplied, events[0].Outcome)
	assert.Equal(t, domain.OutcomeNoop, events[1].Outcome)

	notifs, err := env.notifications.ListByUser(ctx, "user-1", domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, notifs, 1)
	assert.Equal(t, domain.NotifyContributionConfirmed, notifs[0].Kind)
}

func TestApply_UnknownTxIsSkipped(t *testing.T) {
	env := newReconcileEnv(t)
	ctx := context.Background()

	// The indexer can race ahead of the ledger write; the event is skipped
	// without error so a redelivery can land later.
	for _, typ := range []domain.SettlementEventType{
		domain.EventContributionConfirmed,
		domain.EventContributionFailed,
		domain.EventContributionReverted,
	} {
		outcome, err := env.svc.Apply(ctx, eventOfType(txHash(999), typ))
		require.NoError(t, err)
		assert.Equal(t, domain.OutcomeSkipped, outcome)
	}

	events, err := env.events.ListRecent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

func TestApply_FailReleasesAggregates(t *testing.T) {
	env := newReconcileEnv(t)
	ctx := context.Background()

	outcome, err := env.svc.Apply(ctx, eventOfType(txHash(100), domain.EventContributionFailed))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, outcome)

	assert.Equal(t, domain.ContributionFailed, env.contribution(t, txHash(100)).Status)

	deal := env.deal(t)
	assert.Equal(t, usd(900), deal.TotalRaised)
	assert.Equal(t, 0, deal.ContributorCount)

	// The contribution never confirmed, so user totals stay untouched.
	user, err := env.users.GetByID(ctx, "user-1")
	require.NoError(t, err)
	assert.Zero(t, user.TotalContributedUsd)

	outcome, err = env.svc.Apply(ctx, eventOfType(txHash(100), domain.EventContributionFailed))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeNoop, outcome)
	assert.Equal(t, usd(900), env.deal(t).TotalRaised)
}

func TestApply_RevertCompensatesConfirmed(t *testing.T) {
	env := newReconcileEnv(t)
	ctx := context.Background()

	_, err := env.svc.Apply(ctx, confirmEvent(txHash(100)))
	require.NoError(t, err)

	outcome, err := env.svc.Apply(ctx, eventOfType(txHash(100), domain.EventContributionReverted))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, outcome)

	assert.Equal(t, domain.ContributionFailed, env.contribution(t, txHash(100)).Status)

	deal := env.deal(t)
	assert.Equal(t, usd(900), deal.TotalRaised)
	assert.Equal(t, 0, deal.ContributorCount)

	user, err := env.users.GetByID(ctx, "user-1")
	require.NoError(t, err)
	assert.Zero(t, user.TotalContributedUsd)

	// Exactly one compliance flag, carried into the ledger transaction.
	require.Len(t, env.contributions.flags, 1)
	flag := env.contributions.flags[0]
	assert.Equal(t, "user-1", flag.UserID)
	assert.Equal(t, "deal-1", flag.DealID)
	assert.Equal(t, domain.ReasonAnomalousActivity, flag.Reason)
	assert.Equal(t, domain.SeverityMedium, flag.Severity)
	assert.Equal(t, txHash(100), flag.Reference)

	require.Len(t, env.alerter.alerts, 1)
	assert.Contains(t, env.alerter.alerts[0], "compliance_flag")

	// Replaying the reversal is a no-op: no second flag, no second alert.
	outcome, err = env.svc.Apply(ctx, eventOfType(txHash(100), domain.EventContributionReverted))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeNoop, outcome)
	assert.Len(t, env.contributions.flags, 1)
	assert.Len(t, env.alerter.alerts, 1)
}

func TestApply_RevertOfUnconfirmedIsNoop(t *testing.T) {
	env := newReconcileEnv(t)
	ctx := context.Background()

	// Still PENDING: reversal only acts on confirmed contributions.
	outcome, err := env.svc.Apply(ctx, eventOfType(txHash(100), domain.EventContributionReverted))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeNoop, outcome)
	assert.Equal(t, domain.ContributionPending, env.contribution(t, txHash(100)).Status)
	assert.Empty(t, env.contributions.flags)
	assert.Empty(t, env.alerter.alerts)
}

func TestApply_ConfirmTriggersAutoSettle(t *testing.T) {
	env := newReconcileEnv(t)
	ctx := context.Background()

	// A second pending contribution saturates the cap at record time; its
	// confirmation must fire the settlement transition.
	_, err := env.contributions.Record(ctx, domain.Contribution{
		ID:        "contrib-2",
		UserID:    "user-1",
		DealID:    "deal-1",
		Amount:    usd(50),
		AmountUsd: usd(50),
		Currency:  domain.CurrencyUSDC,
		TxHash:    txHash(101),
		Chain:     domain.ChainEthereum,
		Status:    domain.ContributionPending,
	})
	require.NoError(t, err)

	outcome, err := env.svc.Apply(ctx, confirmEvent(txHash(101)))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, outcome)

	deal := env.deal(t)
	assert.Equal(t, domain.DealStatusSettlement, deal.Status)
	assert.Equal(t, usd(1000), deal.TotalRaised)
}

func TestApply_UnknownEventType(t *testing.T) {
	env := newReconcileEnv(t)

	_, err := env.svc.Apply(context.Background(), domain.SettlementEvent{
		Type:   "CONTRIBUTION_TELEPORTED",
		TxHash: txHash(100),
	})
	require.Error(t, err)
	assert.Equal(t, domain.CodeInvalidInput, domain.CodeOf(err))
}
