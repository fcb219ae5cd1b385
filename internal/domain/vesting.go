package domain

import "time"

// VestingSchedule defines how a user's token allocation for a deal unlocks
// over time. Exactly one schedule exists per (user, deal). Token amounts are
// fixed-point micro-tokens (tokens * 1e6). ClaimedAmount is monotonically
// non-decreasing and never exceeds TotalAmount.
type VestingSchedule struct {
	ID     string
	UserID string
	DealID string

	TotalAmount   int64 // micro-tokens
	TgeAmount     int64 // micro-tokens unlocked at vesting start
	ClaimedAmount int64 // micro-tokens claimed so far

	VestingStart time.Time
	CliffEnd     *time.Time // nil means no cliff: linear vesting from start
	VestingEnd   time.Time
	LastClaimAt  *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Remaining returns the unclaimed portion of the allocation.
func (s VestingSchedule) Remaining() int64 {
	if s.ClaimedAmount >= s.TotalAmount {
		return 0
	}
	return s.TotalAmount - s.ClaimedAmount
}

// ClaimRecord is an immutable receipt of one claim event.
type ClaimRecord struct {
	ID         string
	ScheduleID string
	UserID     string
	DealID     string
	Amount     int64  // micro-tokens
	TxHash     string // reference issued for the distribution transfer
	ClaimedAt  time.Time
}

// ClaimResult is returned to the caller after a successful claim.
type ClaimResult struct {
	Claimed   int64 // micro-tokens
	Remaining int64 // micro-tokens left unclaimed
	TxHash    string
}
