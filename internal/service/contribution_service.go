package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/launchforge/launchpad/internal/domain"
	"github.com/launchforge/launchpad/internal/indexer"
	"github.com/launchforge/launchpad/internal/policy"
)

// ContributionService admits and records contributions. Admission control is
// a pure policy check; the ledger write and its aggregate maintenance happen
// in one atomic store operation.
type ContributionService struct {
	deals         domain.DealStore
	contributions domain.ContributionStore
	users         domain.UserStore
	notifications domain.NotificationStore
	audit         domain.AuditStore
	bus           domain.SignalBus
	phases        *PhaseService
	logger        *slog.Logger
	clock         func() time.Time
}

// NewContributionService creates a ContributionService with all required
// dependencies.
func NewContributionService(
	deals domain.DealStore,
	contributions domain.ContributionStore,
	users domain.UserStore,
	notifications domain.NotificationStore,
	audit domain.AuditStore,
	bus domain.SignalBus,
	phases *PhaseService,
	logger *slog.Logger,
) *ContributionService {
	return &ContributionService{
		deals:         deals,
		contributions: contributions,
		users:         users,
		notifications: notifications,
		audit:         audit,
		bus:           bus,
		phases:        phases,
		logger:        logger.With(slog.String("component", "contribution_service")),
		clock:         time.Now,
	}
}

// WithClock overrides the wall clock (deterministic testing).
func (s *ContributionService) WithClock(clock func() time.Time) *ContributionService {
	s.clock = clock
	return s
}

// Submit validates, admits, and records a contribution. On success the
// contribution is PENDING and the deal's aggregates reflect it; the
// settlement reconciler later confirms or fails it.
func (s *ContributionService) Submit(ctx context.Context, userID, dealID string, req domain.ContributionRequest) (domain.Contribution, error) {
	if err := validateContributionRequest(req); err != nil {
		return domain.Contribution{}, err
	}

	deal, err := s.deals.GetByID(ctx, dealID)
	if err != nil {
		return domain.Contribution{}, err
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return domain.Contribution{}, err
	}

	now := s.clock()
	if err := policy.Admit(policy.Input{Deal: deal, User: user, Amount: req.Amount, Now: now}); err != nil {
		return domain.Contribution{}, err
	}

	contribution := domain.Contribution{
		ID:        uuid.New().String(),
		UserID:    userID,
		DealID:    dealID,
		Amount:    req.Amount,
		Currency:  req.Currency,
		AmountUsd: req.Amount,
		TxHash:    req.TxHash,
		Chain:     req.Chain,
		Status:    domain.ContributionPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	created, err := s.contributions.Record(ctx, contribution)
	if err != nil {
		return domain.Contribution{}, err
	}

	s.logger.InfoContext(ctx, "contribution recorded",
		slog.String("contribution_id", created.ID),
		slog.String("deal_id", dealID),
		slog.String("user_id", userID),
		slog.String("amount_usd", domain.FormatMicro(created.AmountUsd)),
		slog.String("tx_hash", created.TxHash),
	)

	s.afterRecord(ctx, created)

	// The ledger write may have saturated the hard cap; the conditional
	// settlement transition fires at most once across concurrent crossers.
	if _, err := s.phases.AutoSettle(ctx, dealID); err != nil {
		s.logger.ErrorContext(ctx, "auto settlement check failed",
			slog.String("deal_id", dealID),
			slog.String("error", err.Error()),
		)
	}

	return created, nil
}

// Eligibility evaluates every admission check for a user against a deal.
// Amount is optional; zero skips the amount-dependent checks.
func (s *ContributionService) Eligibility(ctx context.Context, userID, dealID string, amount int64) (policy.Report, error) {
	deal, err := s.deals.GetByID(ctx, dealID)
	if err != nil {
		return policy.Report{}, err
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return policy.Report{}, err
	}
	return policy.Evaluate(policy.Input{Deal: deal, User: user, Amount: amount, Now: s.clock()}), nil
}

// ListByDeal returns a deal's contributions with pagination.
func (s *ContributionService) ListByDeal(ctx context.Context, dealID string, opts domain.ListOpts) ([]domain.Contribution, error) {
	return s.contributions.ListByDeal(ctx, dealID, opts)
}

// afterRecord writes the audit entry, queues the user notification, and
// publishes the ledger event. The contribution is already committed; these
// are best-effort.
func (s *ContributionService) afterRecord(ctx context.Context, c domain.Contribution) {
	if err := s.audit.Log(ctx, "contribution.recorded", map[string]any{
		"contribution_id": c.ID,
		"deal_id":         c.DealID,
		"user_id":         c.UserID,
		"amount_usd":      domain.FormatMicro(c.AmountUsd),
		"tx_hash":         c.TxHash,
		"chain":           string(c.Chain),
	}); err != nil {
		s.logger.ErrorContext(ctx, "audit contribution failed",
			slog.String("contribution_id", c.ID),
			slog.String("error", err.Error()),
		)
	}

	if err := s.notifications.Enqueue(ctx, domain.Notification{
		ID:        uuid.New().String(),
		UserID:    c.UserID,
		Kind:      domain.NotifyContributionReceived,
		Title:     "Contribution received",
		Body:      "Your contribution of " + domain.FormatMicro(c.AmountUsd) + " USD is awaiting on-chain confirmation.",
		Reference: c.TxHash,
		CreatedAt: s.clock(),
	}); err != nil {
		s.logger.ErrorContext(ctx, "enqueue notification failed",
			slog.String("user_id", c.UserID),
			slog.String("error", err.Error()),
		)
	}

	payload, err := json.Marshal(map[string]any{
		"type":   "contribution_recorded",
		"dealId": c.DealID,
		"amount": domain.FormatMicro(c.AmountUsd),
		"txHash": c.TxHash,
	})
	if err == nil {
		if err := s.bus.Publish(ctx, domain.ChannelContributions, payload); err != nil {
			s.logger.WarnContext(ctx, "publish contribution failed",
				slog.String("contribution_id", c.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// validateContributionRequest rejects malformed input before any store or
// policy work happens.
func validateContributionRequest(req domain.ContributionRequest) error {
	if req.Amount <= 0 {
		return domain.Validation(domain.CodeInvalidInput, "amount must be positive")
	}
	if !req.Currency.Valid() {
		return domain.Validation(domain.CodeInvalidInput, "unsupported currency %q", req.Currency)
	}
	if !req.Chain.Valid() {
		return domain.Validation(domain.CodeInvalidInput, "unsupported chain %q", req.Chain)
	}
	if !indexer.ValidTxHash(req.TxHash) {
		return domain.Validation(domain.CodeInvalidInput, "txHash must be a 0x-prefixed 32-byte hex string")
	}
	return nil
}
