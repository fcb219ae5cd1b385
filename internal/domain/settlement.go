package domain

import "time"

// SettlementEventType classifies an indexer settlement event.
type SettlementEventType string

const (
	EventContributionConfirmed SettlementEventType = "CONTRIBUTION_CONFIRMED"
	EventContributionFailed    SettlementEventType = "CONTRIBUTION_FAILED"
	EventContributionReverted  SettlementEventType = "CONTRIBUTION_REVERTED"
)

// SettlementEvent is an externally-verified on-chain settlement fact pushed
// by the indexer. Delivery is at-least-once and may arrive before the ledger
// entry it refers to is visible; the reconciler must tolerate both.
type SettlementEvent struct {
	Type           SettlementEventType
	TxHash         string
	BlockNumber    int64
	BlockTimestamp time.Time
	Chain          Chain
	From           string
	To             string
	Amount         string // raw token units as a decimal string
	TokenAddress   string
	TokenSymbol    string
	TokenDecimals  int
	DealID         string // optional hint; the ledger row is matched by TxHash
	LogIndex       int
	Confirmations  int
	IdempotencyKey string
	ReceivedAt     time.Time
}

// ReconcileOutcome describes what the reconciler did with one event.
type ReconcileOutcome string

const (
	OutcomeApplied ReconcileOutcome = "APPLIED"
	OutcomeNoop    ReconcileOutcome = "NOOP"
	OutcomeSkipped ReconcileOutcome = "SKIPPED" // no matching ledger entry yet
)

// ProcessedEvent is a journal row recording the outcome of one reconciler
// application. Idempotence derives from ledger state guards, not this table;
// the journal exists for observability and replay audits.
type ProcessedEvent struct {
	ID             int64
	IdempotencyKey string
	EventType      SettlementEventType
	TxHash         string
	Outcome        ReconcileOutcome
	ProcessedAt    time.Time
}
