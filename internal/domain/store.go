package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// DealStore persists deals.
type DealStore interface {
	Create(ctx context.Context, deal Deal) error
	GetByID(ctx context.Context, id string) (Deal, error)
	List(ctx context.Context, opts ListOpts) ([]Deal, error)

	// UpdateStatus transitions a deal from exactly the given prior status to
	// the new one in a single conditional write. It returns a ConflictError
	// when the deal's status changed concurrently.
	UpdateStatus(ctx context.Context, id string, from, to DealStatus) (Deal, error)

	// SettleIfFull moves the deal to SETTLEMENT iff it is still in a
	// contribution-accepting status and totalRaised has reached the hard
	// cap. It reports whether this call performed the transition, so that
	// concurrent cap-crossers fire side effects at most once.
	SettleIfFull(ctx context.Context, id string) (Deal, bool, error)
}

// ContributionStore is the append-only contribution ledger. Each mutating
// method executes as one atomic unit covering the contribution row and every
// aggregate it maintains; none may partially apply.
type ContributionStore interface {
	// Record inserts a PENDING contribution, reserves hard-cap headroom by
	// incrementing deal.totalRaised (guarded against oversubscription), and
	// increments contributorCount on the user's first contribution to the
	// deal. Duplicate tx hashes surface as a ConflictError via the storage
	// uniqueness constraint, never via a prior read.
	Record(ctx context.Context, c Contribution) (Contribution, error)

	GetByTxHash(ctx context.Context, txHash string) (Contribution, error)
	ListByDeal(ctx context.Context, dealID string, opts ListOpts) ([]Contribution, error)
	ListByUser(ctx context.Context, userID string, opts ListOpts) ([]Contribution, error)
	CountForUser(ctx context.Context, dealID, userID string) (int64, error)

	// Confirm marks the contribution CONFIRMED and credits the user's
	// confirmed totals. It reports false without error when no row matches
	// the hash or the row is already confirmed.
	Confirm(ctx context.Context, txHash string, blockNumber int64, confirmedAt time.Time) (Contribution, bool, error)

	// Fail marks the contribution FAILED and releases its deal aggregates.
	// A previously confirmed contribution also has its user totals debited.
	// Reports false when the row is absent or already failed/refunded.
	Fail(ctx context.Context, txHash string) (Contribution, bool, error)

	// Revert compensates a CONFIRMED contribution: status to FAILED, deal
	// and user aggregates debited, and the given compliance flag written,
	// all in one transaction. No-op (false) for any other prior status.
	Revert(ctx context.Context, txHash string, flag ComplianceFlag) (Contribution, bool, error)
}

// VestingStore persists vesting schedules and claim receipts.
type VestingStore interface {
	Create(ctx context.Context, s VestingSchedule) error
	GetByUserAndDeal(ctx context.Context, userID, dealID string) (VestingSchedule, error)

	// ApplyClaim atomically writes the claim record, advances claimedAmount
	// by rec.Amount, stamps lastClaimAt, and credits the user's claimed
	// totals. The write is guarded on claimedAmount still being
	// expectedClaimed; a mismatch surfaces as a ConflictError.
	ApplyClaim(ctx context.Context, rec ClaimRecord, expectedClaimed int64) (VestingSchedule, error)
}

// UserStore persists the mirrored investor records.
type UserStore interface {
	GetByID(ctx context.Context, id string) (User, error)
	Upsert(ctx context.Context, u User) error
}

// ComplianceStore persists anomaly flags.
type ComplianceStore interface {
	Create(ctx context.Context, flag ComplianceFlag) error
	ListUnresolved(ctx context.Context, opts ListOpts) ([]ComplianceFlag, error)
	Resolve(ctx context.Context, id string) error
}

// PhaseStore persists the informational phase projection.
type PhaseStore interface {
	Replace(ctx context.Context, dealID string, phases []DealPhase) error
	ListByDeal(ctx context.Context, dealID string) ([]DealPhase, error)
}

// NotificationStore queues user-facing notifications for delivery.
type NotificationStore interface {
	Enqueue(ctx context.Context, n Notification) error
	ListByUser(ctx context.Context, userID string, opts ListOpts) ([]Notification, error)
	MarkRead(ctx context.Context, id string) error
}

// EventStore journals reconciler outcomes.
type EventStore interface {
	Record(ctx context.Context, e ProcessedEvent) error
	ListRecent(ctx context.Context, limit int) ([]ProcessedEvent, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
