// Package vesting computes claimable token amounts from vesting schedules.
package vesting

import (
	"time"

	"github.com/launchforge/launchpad/internal/domain"
)

// Claimable returns how many micro-tokens are claimable from s at now. It is
// a deterministic pure function of its arguments.
//
// Before vestingStart nothing is claimable. From vestingEnd onward the whole
// unclaimed remainder is. In between, the TGE amount is unlocked immediately
// and the rest vests linearly from the cliff end (or vestingStart when no
// cliff is set) to vestingEnd.
func Claimable(s domain.VestingSchedule, now time.Time) int64 {
	if now.Before(s.VestingStart) {
		return 0
	}
	if !now.Before(s.VestingEnd) {
		return s.Remaining()
	}

	unlocked := s.TgeAmount

	cliffEnd := s.VestingStart
	if s.CliffEnd != nil {
		cliffEnd = *s.CliffEnd
	}

	if !now.Before(cliffEnd) {
		linearTotal := s.TotalAmount - s.TgeAmount
		if linearTotal > 0 {
			// A non-positive linear window means no additional vesting
			// before vestingEnd; ProRata guards the division.
			elapsed := now.Sub(cliffEnd)
			duration := s.VestingEnd.Sub(cliffEnd)
			unlocked += domain.ProRata(linearTotal, int64(elapsed), int64(duration))
		}
	}

	claimable := unlocked - s.ClaimedAmount
	if claimable < 0 {
		return 0
	}
	return claimable
}
