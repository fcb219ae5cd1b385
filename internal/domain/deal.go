package domain

import "time"

// DealStatus represents the lifecycle state of a funding round.
type DealStatus string

const (
	DealStatusDraft            DealStatus = "DRAFT"
	DealStatusUnderReview      DealStatus = "UNDER_REVIEW"
	DealStatusApproved         DealStatus = "APPROVED"
	DealStatusRegistrationOpen DealStatus = "REGISTRATION_OPEN"
	DealStatusGuaranteed       DealStatus = "GUARANTEED_ALLOCATION"
	DealStatusFCFS             DealStatus = "FCFS"
	DealStatusSettlement       DealStatus = "SETTLEMENT"
	DealStatusDistributing     DealStatus = "DISTRIBUTING"
	DealStatusCompleted        DealStatus = "COMPLETED"
	DealStatusCancelled        DealStatus = "CANCELLED"
)

// Terminal reports whether the status admits no further transitions.
func (s DealStatus) Terminal() bool {
	return s == DealStatusCompleted || s == DealStatusCancelled
}

// AcceptingContributions reports whether contributions may be submitted in
// this status.
func (s DealStatus) AcceptingContributions() bool {
	return s == DealStatusGuaranteed || s == DealStatusFCFS
}

// Chain identifies the network a contribution settles on.
type Chain string

const (
	ChainEthereum Chain = "ETHEREUM"
	ChainArbitrum Chain = "ARBITRUM"
	ChainBase     Chain = "BASE"
)

// Valid reports whether the chain is one of the supported networks.
func (c Chain) Valid() bool {
	switch c {
	case ChainEthereum, ChainArbitrum, ChainBase:
		return true
	}
	return false
}

// Currency is an accepted contribution currency. Amounts are treated as
// already USD-denominated upstream; the currency is recorded for audit only.
type Currency string

const (
	CurrencyUSDC Currency = "USDC"
	CurrencyUSDT Currency = "USDT"
	CurrencyETH  Currency = "ETH"
	CurrencyDAI  Currency = "DAI"
	CurrencyWETH Currency = "WETH"
)

// Valid reports whether the currency is accepted for contributions.
func (c Currency) Valid() bool {
	switch c {
	case CurrencyUSDC, CurrencyUSDT, CurrencyETH, CurrencyDAI, CurrencyWETH:
		return true
	}
	return false
}

// Tier is an ordinal investor classification. Higher tiers unlock deals that
// set a minimum tier requirement.
type Tier string

const (
	TierBronze   Tier = "BRONZE"
	TierSilver   Tier = "SILVER"
	TierGold     Tier = "GOLD"
	TierPlatinum Tier = "PLATINUM"
	TierDiamond  Tier = "DIAMOND"
)

// tierRank fixes the tier ordering. Unknown tiers rank below BRONZE.
var tierRank = map[Tier]int{
	TierBronze:   1,
	TierSilver:   2,
	TierGold:     3,
	TierPlatinum: 4,
	TierDiamond:  5,
}

// AtLeast reports whether t ranks at or above min.
func (t Tier) AtLeast(min Tier) bool {
	return tierRank[t] >= tierRank[min]
}

// Deal is a fundraising round. Monetary fields are fixed-point micro-USD
// (USD * 1e6); token fields are fixed-point micro-tokens.
type Deal struct {
	ID     string
	Name   string
	Symbol string
	Chain  Chain
	Status DealStatus

	RegistrationOpenAt  *time.Time
	RegistrationCloseAt *time.Time
	ContributionOpenAt  *time.Time
	ContributionCloseAt *time.Time
	DistributionAt      *time.Time

	HardCap         int64 // micro-USD; 0 disables the cap
	MinContribution int64 // micro-USD; 0 disables the lower bound
	MaxContribution int64 // micro-USD; 0 disables the upper bound
	MinTierRequired Tier  // empty means no tier requirement
	RequiresKyc     bool

	TotalRaised      int64 // micro-USD, maintained by the ledger
	ContributorCount int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Remaining returns the headroom left under the hard cap in micro-USD.
// Deals without a hard cap report zero; callers must check HardCap first.
func (d Deal) Remaining() int64 {
	if d.HardCap <= 0 {
		return 0
	}
	if d.TotalRaised >= d.HardCap {
		return 0
	}
	return d.HardCap - d.TotalRaised
}

// DealPhase is an informational projection of the lifecycle, refreshed by the
// phase controller whenever the deal status changes.
type DealPhase struct {
	ID      string
	DealID  string
	Name    string
	Order   int
	StartAt *time.Time
	EndAt   *time.Time
	Active  bool
}

// PhaseAction is an operator-invoked lifecycle transition.
type PhaseAction string

const (
	ActionOpenRegistration   PhaseAction = "open_registration"
	ActionCloseRegistration  PhaseAction = "close_registration"
	ActionOpenContributions  PhaseAction = "open_contributions"
	ActionCloseContributions PhaseAction = "close_contributions"
	ActionStartDistribution  PhaseAction = "start_distribution"
	ActionComplete           PhaseAction = "complete"
	ActionCancel             PhaseAction = "cancel"
)

// PhaseTransition is the result of a successful lifecycle transition.
type PhaseTransition struct {
	PreviousStatus DealStatus
	NewStatus      DealStatus
	Message        string
	Deal           Deal
}
