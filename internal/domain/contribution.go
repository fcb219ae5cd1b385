package domain

import "time"

// ContributionStatus tracks a contribution through settlement.
type ContributionStatus string

const (
	ContributionPending   ContributionStatus = "PENDING"
	ContributionConfirmed ContributionStatus = "CONFIRMED"
	ContributionRefunded  ContributionStatus = "REFUNDED"
	ContributionFailed    ContributionStatus = "FAILED"
)

// Contribution is one ledger entry: a claimed on-chain payment into a deal.
// TxHash is globally unique; exactly one contribution exists per transaction.
// Status transitions are owned exclusively by the settlement reconciler.
type Contribution struct {
	ID        string
	UserID    string
	DealID    string
	Amount    int64 // fixed-point: native amount * 1e6
	Currency  Currency
	AmountUsd int64 // micro-USD, already converted upstream
	TxHash    string
	Chain     Chain
	Status    ContributionStatus

	ConfirmedAt *time.Time
	BlockNumber *int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ContributionRequest is the validated input for submitting a contribution.
type ContributionRequest struct {
	Amount   int64 // micro-USD
	Currency Currency
	TxHash   string
	Chain    Chain
}
