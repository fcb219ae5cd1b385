package domain

import "time"

// User is the platform's view of an investor, mirrored for admission checks
// and aggregate bookkeeping. Authentication and profile CRUD live upstream.
type User struct {
	ID          string
	Wallet      string
	Tier        Tier
	KycApproved bool

	TotalContributedUsd int64 // micro-USD across confirmed contributions
	TotalClaimedTokens  int64 // micro-tokens across all deals

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NotificationKind classifies user-facing notifications.
type NotificationKind string

const (
	NotifyContributionReceived  NotificationKind = "CONTRIBUTION_RECEIVED"
	NotifyContributionConfirmed NotificationKind = "CONTRIBUTION_CONFIRMED"
	NotifyContributionFailed    NotificationKind = "CONTRIBUTION_FAILED"
	NotifyContributionReverted  NotificationKind = "CONTRIBUTION_REVERTED"
	NotifyTokensClaimed         NotificationKind = "TOKENS_CLAIMED"
	NotifyDealPhaseChanged      NotificationKind = "DEAL_PHASE_CHANGED"
)

// Notification is a queued user-facing message delivered by an external
// notification worker.
type Notification struct {
	ID        string
	UserID    string
	Kind      NotificationKind
	Title     string
	Body      string
	Reference string // deal ID or tx hash the notification refers to
	Read      bool
	CreatedAt time.Time
}
