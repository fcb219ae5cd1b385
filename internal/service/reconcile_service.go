package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/launchforge/launchpad/internal/domain"
)

// Alerter delivers operator alerts. Satisfied by notify.Notifier.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// ReconcileService applies externally-verified settlement events to the
// ledger. Every branch is idempotent under at-least-once delivery and
// tolerates events that race ahead of the ledger write they refer to.
type ReconcileService struct {
	contributions domain.ContributionStore
	notifications domain.NotificationStore
	events        domain.EventStore
	audit         domain.AuditStore
	bus           domain.SignalBus
	phases        *PhaseService
	alerter       Alerter
	logger        *slog.Logger
	clock         func() time.Time
}

// NewReconcileService creates a ReconcileService with all required
// dependencies.
func NewReconcileService(
	contributions domain.ContributionStore,
	notifications domain.NotificationStore,
	events domain.EventStore,
	audit domain.AuditStore,
	bus domain.SignalBus,
	phases *PhaseService,
	logger *slog.Logger,
) *ReconcileService {
	return &ReconcileService{
		contributions: contributions,
		notifications: notifications,
		events:        events,
		audit:         audit,
		bus:           bus,
		phases:        phases,
		logger:        logger.With(slog.String("component", "reconcile_service")),
		clock:         time.Now,
	}
}

// WithAlerter attaches an operator alert channel for compliance flags.
func (s *ReconcileService) WithAlerter(a Alerter) *ReconcileService {
	s.alerter = a
	return s
}

// WithClock overrides the wall clock (deterministic testing).
func (s *ReconcileService) WithClock(clock func() time.Time) *ReconcileService {
	s.clock = clock
	return s
}

// Apply reconciles one settlement event into the ledger and reports what it
// did. Replaying the same payload any number of times yields the same final
// state; an event with no matching ledger entry is skipped without error.
func (s *ReconcileService) Apply(ctx context.Context, ev domain.SettlementEvent) (domain.ReconcileOutcome, error) {
	var (
		outcome domain.ReconcileOutcome
		err     error
	)

	switch ev.Type {
	case domain.EventContributionConfirmed:
		outcome, err = s.applyConfirmed(ctx, ev)
	case domain.EventContributionFailed:
		outcome, err = s.applyFailed(ctx, ev)
	case domain.EventContributionReverted:
		outcome, err = s.applyReverted(ctx, ev)
	default:
		return "", domain.Validation(domain.CodeInvalidInput, "unknown settlement event type %q", ev.Type)
	}
	if err != nil {
		return "", err
	}

	s.journal(ctx, ev, outcome)
	return outcome, nil
}

func (s *ReconcileService) applyConfirmed(ctx context.Context, ev domain.SettlementEvent) (domain.ReconcileOutcome, error) {
	c, applied, err := s.contributions.Confirm(ctx, ev.TxHash, ev.BlockNumber, ev.BlockTimestamp)
	if err != nil {
		return "", err
	}
	if !applied {
		if c.ID == "" {
			// The indexer saw the transaction before our ledger entry became
			// visible. Soft skip; a redelivery will land.
			s.logger.InfoContext(ctx, "confirmation for unknown tx, skipped",
				slog.String("tx_hash", ev.TxHash),
			)
			return domain.OutcomeSkipped, nil
		}
		return domain.OutcomeNoop, nil
	}

	s.notifyUser(ctx, c.UserID, domain.NotifyContributionConfirmed,
		"Contribution confirmed",
		"Your contribution of "+domain.FormatMicro(c.AmountUsd)+" USD was confirmed on-chain.",
		c.TxHash)
	s.auditEvent(ctx, "settlement.confirmed", c, ev)
	s.publish(ctx, "contribution_confirmed", c)

	// Outside the confirmation transaction: the deal may have reached its
	// hard cap, in which case the guarded settlement transition fires.
	if _, err := s.phases.AutoSettle(ctx, c.DealID); err != nil {
		s.logger.ErrorContext(ctx, "auto settlement check failed",
			slog.String("deal_id", c.DealID),
			slog.String("error", err.Error()),
		)
	}

	return domain.OutcomeApplied, nil
}

func (s *ReconcileService) applyFailed(ctx context.Context, ev domain.SettlementEvent) (domain.ReconcileOutcome, error) {
	c, applied, err := s.contributions.Fail(ctx, ev.TxHash)
	if err != nil {
		return "", err
	}
	if !applied {
		if c.ID == "" {
			return domain.OutcomeSkipped, nil
		}
		return domain.OutcomeNoop, nil
	}

	s.notifyUser(ctx, c.UserID, domain.NotifyContributionFailed,
		"Contribution failed",
		"Your contribution transaction failed on-chain; no funds were recorded.",
		c.TxHash)
	s.auditEvent(ctx, "settlement.failed", c, ev)
	s.publish(ctx, "contribution_failed", c)

	return domain.OutcomeApplied, nil
}

func (s *ReconcileService) applyReverted(ctx context.Context, ev domain.SettlementEvent) (domain.ReconcileOutcome, error) {
	// A post-confirmation reversal is an anomaly signal: the compliance flag
	// is written in the same transaction as the compensation.
	flag := domain.ComplianceFlag{
		ID:        uuid.New().String(),
		Reason:    domain.ReasonAnomalousActivity,
		Severity:  domain.SeverityMedium,
		Reference: ev.TxHash,
		CreatedAt: s.clock(),
	}

	c, applied, err := s.contributions.Revert(ctx, ev.TxHash, flag)
	if err != nil {
		return "", err
	}
	if !applied {
		if c.ID == "" {
			return domain.OutcomeSkipped, nil
		}
		// Reversal only acts on CONFIRMED contributions.
		return domain.OutcomeNoop, nil
	}

	s.notifyUser(ctx, c.UserID, domain.NotifyContributionReverted,
		"Contribution reverted",
		"Your confirmed contribution was reverted on-chain and has been removed from the deal.",
		c.TxHash)
	s.auditEvent(ctx, "settlement.reverted", c, ev)
	s.publish(ctx, "contribution_reverted", c)

	if s.alerter != nil {
		if err := s.alerter.Notify(ctx, "compliance_flag",
			"Compliance flag raised",
			"Post-confirmation reversal for tx "+ev.TxHash+" (severity MEDIUM).",
		); err != nil {
			s.logger.WarnContext(ctx, "operator alert failed",
				slog.String("tx_hash", ev.TxHash),
				slog.String("error", err.Error()),
			)
		}
	}

	return domain.OutcomeApplied, nil
}

func (s *ReconcileService) notifyUser(ctx context.Context, userID string, kind domain.NotificationKind, title, body, ref string) {
	if err := s.notifications.Enqueue(ctx, domain.Notification{
		ID:        uuid.New().String(),
		UserID:    userID,
		Kind:      kind,
		Title:     title,
		Body:      body,
		Reference: ref,
		CreatedAt: s.clock(),
	}); err != nil {
		s.logger.ErrorContext(ctx, "enqueue settlement notification failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *ReconcileService) auditEvent(ctx context.Context, event string, c domain.Contribution, ev domain.SettlementEvent) {
	if err := s.audit.Log(ctx, event, map[string]any{
		"contribution_id": c.ID,
		"deal_id":         c.DealID,
		"user_id":         c.UserID,
		"tx_hash":         ev.TxHash,
		"block_number":    ev.BlockNumber,
		"idempotency_key": ev.IdempotencyKey,
	}); err != nil {
		s.logger.ErrorContext(ctx, "audit settlement event failed",
			slog.String("tx_hash", ev.TxHash),
			slog.String("error", err.Error()),
		)
	}
}

func (s *ReconcileService) publish(ctx context.Context, eventType string, c domain.Contribution) {
	payload, err := json.Marshal(map[string]any{
		"type":   eventType,
		"dealId": c.DealID,
		"txHash": c.TxHash,
		"amount": domain.FormatMicro(c.AmountUsd),
	})
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, domain.ChannelContributions, payload); err != nil {
		s.logger.WarnContext(ctx, "publish settlement event failed",
			slog.String("tx_hash", c.TxHash),
			slog.String("error", err.Error()),
		)
	}
}

// journal records the reconciliation outcome for observability. Idempotence
// never depends on this table.
func (s *ReconcileService) journal(ctx context.Context, ev domain.SettlementEvent, outcome domain.ReconcileOutcome) {
	if err := s.events.Record(ctx, domain.ProcessedEvent{
		IdempotencyKey: ev.IdempotencyKey,
		EventType:      ev.Type,
		TxHash:         ev.TxHash,
		Outcome:        outcome,
		ProcessedAt:    s.clock(),
	}); err != nil {
		s.logger.WarnContext(ctx, "journal settlement event failed",
			slog.String("tx_hash", ev.TxHash),
			slog.String("error", err.Error()),
		)
	}
}
