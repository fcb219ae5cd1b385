package domain

import "time"

// FlagSeverity grades a compliance flag for review triage.
type FlagSeverity string

const (
	SeverityLow    FlagSeverity = "LOW"
	SeverityMedium FlagSeverity = "MEDIUM"
	SeverityHigh   FlagSeverity = "HIGH"
)

// ComplianceFlag is an anomaly record requiring manual review. The reconciler
// raises one automatically when a confirmed contribution is reverted; other
// flags are written by external review tooling.
type ComplianceFlag struct {
	ID         string
	UserID     string
	DealID     string
	Reason     string
	Severity   FlagSeverity
	Reference  string // e.g. the tx hash that triggered the flag
	Resolved   bool
	CreatedAt  time.Time
	ResolvedAt *time.Time
}

// ReasonAnomalousActivity is the reason attached to reversal flags.
const ReasonAnomalousActivity = "rapid/anomalous activity"
