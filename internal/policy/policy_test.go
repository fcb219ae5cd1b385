package policy

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/launchforge/launchpad/internal/domain"
)

func usd(n int64) int64 { return n * domain.MicroUnit }

func openDeal() domain.Deal {
	return domain.Deal{
		ID:              "deal-1",
		Status:          domain.DealStatusFCFS,
		HardCap:         usd(1000),
		MinContribution: usd(10),
		MaxContribution: usd(500),
		TotalRaised:     usd(900),
	}
}

func eligibleUser() domain.User {
	return domain.User{ID: "user-1", Tier: domain.TierGold, KycApproved: true}
}

func codeOf(t *testing.T, err error) string {
	t.Helper()
	var de *domain.Error
	require.True(t, errors.As(err, &de), "expected a domain error, got %v", err)
	return de.Code
}

func TestAdmit_Passes(t *testing.T) {
	err := Admit(Input{
		Deal:   openDeal(),
		User:   eligibleUser(),
		Amount: usd(100),
		Now:    time.Now(),
	})
	assert.NoError(t, err)
}

func TestAdmit_DealNotOpen(t *testing.T) {
	deal := openDeal()
	deal.Status = domain.DealStatusSettlement

	err := Admit(Input{Deal: deal, User: eligibleUser(), Amount: usd(100), Now: time.Now()})
	assert.Equal(t, domain.CodeDealNotOpen, codeOf(t, err))
}

func TestAdmit_Window(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	deal := openDeal()
	open := now.Add(time.Hour)
	deal.ContributionOpenAt = &open
	err := Admit(Input{Deal: deal, User: eligibleUser(), Amount: usd(100), Now: now})
	assert.Equal(t, domain.CodeTooEarly, codeOf(t, err))

	deal = openDeal()
	closed := now.Add(-time.Hour)
	deal.ContributionCloseAt = &closed
	err = Admit(Input{Deal: deal, User: eligibleUser(), Amount: usd(100), Now: now})
	assert.Equal(t, domain.CodeTooLate, codeOf(t, err))

	// Boundary instants are inclusive on both ends.
	deal = openDeal()
	deal.ContributionOpenAt = &now
	deal.ContributionCloseAt = &now
	assert.NoError(t, Admit(Input{Deal: deal, User: eligibleUser(), Amount: usd(100), Now: now}))
}

func TestAdmit_Kyc(t *testing.T) {
	deal := openDeal()
	deal.RequiresKyc = true
	user := eligibleUser()
	user.KycApproved = false

	err := Admit(Input{Deal: deal, User: user, Amount: usd(100), Now: time.Now()})
	assert.Equal(t, domain.CodeKycRequired, codeOf(t, err))
}

func TestAdmit_Tier(t *testing.T) {
	deal := openDeal()
	deal.MinTierRequired = domain.TierPlatinum
	user := eligibleUser() // GOLD

	err := Admit(Input{Deal: deal, User: user, Amount: usd(100), Now: time.Now()})
	assert.Equal(t, domain.CodeTierInsufficient, codeOf(t, err))

	user.Tier = domain.TierPlatinum
	assert.NoError(t, Admit(Input{Deal: deal, User: user, Amount: usd(100), Now: time.Now()}))
}

func TestAdmit_AmountLimits(t *testing.T) {
	deal := openDeal()

	err := Admit(Input{Deal: deal, User: eligibleUser(), Amount: usd(5), Now: time.Now()})
	assert.Equal(t, domain.CodeBelowMinimum, codeOf(t, err))

	err = Admit(Input{Deal: deal, User: eligibleUser(), Amount: usd(501), Now: time.Now()})
	assert.Equal(t, domain.CodeAboveMaximum, codeOf(t, err))

	// Exactly at either bound is accepted.
	assert.NoError(t, Admit(Input{Deal: deal, User: eligibleUser(), Amount: usd(10), Now: time.Now()}))
	deal.TotalRaised = 0
	assert.NoError(t, Admit(Input{Deal: deal, User: eligibleUser(), Amount: usd(500), Now: time.Now()}))
}

func TestAdmit_HardCap(t *testing.T) {
	deal := openDeal() // cap 1000, raised 900

	err := Admit(Input{Deal: deal, User: eligibleUser(), Amount: usd(150), Now: time.Now()})
	require.Error(t, err)
	var de *domain.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, domain.CodeExceedsHardCap, de.Code)
	assert.Equal(t, usd(100), de.Remaining)
	assert.Contains(t, de.Message, "100 USD remaining")

	// Filling the cap exactly is allowed.
	assert.NoError(t, Admit(Input{Deal: deal, User: eligibleUser(), Amount: usd(100), Now: time.Now()}))

	// A zero hard cap disables the check entirely.
	deal.HardCap = 0
	assert.NoError(t, Admit(Input{Deal: deal, User: eligibleUser(), Amount: usd(150), Now: time.Now()}))
}

func TestAdmit_ZeroAmountSkipsAmountChecks(t *testing.T) {
	deal := openDeal()
	deal.TotalRaised = deal.HardCap // no headroom at all

	// A zero amount (eligibility probe) trivially passes the amount checks.
	assert.NoError(t, Admit(Input{Deal: deal, User: eligibleUser(), Amount: 0, Now: time.Now()}))
}

func TestEvaluate_CollectsAllFailures(t *testing.T) {
	deal := openDeal()
	deal.Status = domain.DealStatusDraft
	deal.RequiresKyc = true
	deal.MinTierRequired = domain.TierDiamond
	user := domain.User{ID: "user-1", Tier: domain.TierBronze}

	rep := Evaluate(Input{Deal: deal, User: user, Amount: usd(2000), Now: time.Now()})

	assert.False(t, rep.Eligible)
	assert.Len(t, rep.Checks, len(Checks))
	assert.ElementsMatch(t,
		[]string{"deal_open", "kyc", "tier", "amount_limits", "hard_cap"},
		rep.FailedChecks,
	)

	// Failed checks carry an operator-readable reason.
	for _, c := range rep.Checks {
		if !c.Passed {
			assert.NotEmpty(t, c.Reason, "check %s has no reason", c.Name)
		}
	}
}

func TestEvaluate_EligibleReport(t *testing.T) {
	rep := Evaluate(Input{Deal: openDeal(), User: eligibleUser(), Amount: usd(50), Now: time.Now()})

	assert.True(t, rep.Eligible)
	assert.Empty(t, rep.FailedChecks)
	for _, c := range rep.Checks {
		assert.True(t, c.Passed, "check %s failed", c.Name)
	}
}

// Admit and Evaluate run the same table, so a failing input must fail both.
func TestAdmitAndEvaluateAgree(t *testing.T) {
	deal := openDeal()
	deal.MinTierRequired = domain.TierDiamond
	in := Input{Deal: deal, User: eligibleUser(), Amount: usd(50), Now: time.Now()}

	err := Admit(in)
	rep := Evaluate(in)

	require.Error(t, err)
	assert.False(t, rep.Eligible)
	assert.Contains(t, rep.FailedChecks, "tier")
}
