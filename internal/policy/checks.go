// Package policy implements admission control for contributions. A single
// ordered check table backs both the fail-fast admission gate and the
// collect-all eligibility checker so the two paths cannot drift.
package policy

import (
	"time"

	"github.com/launchforge/launchpad/internal/domain"
)

// Input bundles everything the checks evaluate. Amount may be zero for
// eligibility queries that omit it; amount-dependent checks then pass
// trivially.
type Input struct {
	Deal   domain.Deal
	User   domain.User
	Amount int64 // micro-USD
	Now    time.Time
}

// Check is one named predicate. Run returns nil on pass.
type Check struct {
	Name string
	Run  func(in Input) *domain.Error
}

// Checks is the fixed, cost-ascending evaluation order. The gate stops at
// the first failure; the eligibility checker runs the whole table.
var Checks = []Check{
	{Name: "deal_open", Run: checkDealOpen},
	{Name: "contribution_window", Run: checkWindow},
	{Name: "kyc", Run: checkKyc},
	{Name: "tier", Run: checkTier},
	{Name: "amount_limits", Run: checkAmountLimits},
	{Name: "hard_cap", Run: checkHardCap},
}

func checkDealOpen(in Input) *domain.Error {
	if !in.Deal.Status.AcceptingContributions() {
		return domain.State(domain.CodeDealNotOpen,
			"deal %s is not accepting contributions in status %s", in.Deal.ID, in.Deal.Status)
	}
	return nil
}

func checkWindow(in Input) *domain.Error {
	if open := in.Deal.ContributionOpenAt; open != nil && in.Now.Before(*open) {
		return domain.Policy(domain.CodeTooEarly,
			"contributions open at %s", open.UTC().Format(time.RFC3339))
	}
	if close := in.Deal.ContributionCloseAt; close != nil && in.Now.After(*close) {
		return domain.Policy(domain.CodeTooLate,
			"contributions closed at %s", close.UTC().Format(time.RFC3339))
	}
	return nil
}

func checkKyc(in Input) *domain.Error {
	if in.Deal.RequiresKyc && !in.User.KycApproved {
		return domain.Policy(domain.CodeKycRequired, "deal %s requires KYC approval", in.Deal.ID)
	}
	return nil
}

func checkTier(in Input) *domain.Error {
	min := in.Deal.MinTierRequired
	if min == "" {
		return nil
	}
	if !in.User.Tier.AtLeast(min) {
		return domain.Policy(domain.CodeTierInsufficient,
			"tier %s is below the required %s", in.User.Tier, min)
	}
	return nil
}

func checkAmountLimits(in Input) *domain.Error {
	if in.Amount <= 0 {
		return nil
	}
	if min := in.Deal.MinContribution; min > 0 && in.Amount < min {
		return domain.Policy(domain.CodeBelowMinimum,
			"minimum contribution is %s USD", domain.FormatMicro(min))
	}
	if max := in.Deal.MaxContribution; max > 0 && in.Amount > max {
		return domain.Policy(domain.CodeAboveMaximum,
			"maximum contribution is %s USD", domain.FormatMicro(max))
	}
	return nil
}

func checkHardCap(in Input) *domain.Error {
	if in.Amount <= 0 || in.Deal.HardCap <= 0 {
		return nil
	}
	if in.Amount+in.Deal.TotalRaised > in.Deal.HardCap {
		remaining := in.Deal.Remaining()
		err := domain.Policy(domain.CodeExceedsHardCap,
			"contribution exceeds hard cap, %s USD remaining", domain.FormatMicro(remaining))
		err.Remaining = remaining
		return err
	}
	return nil
}
