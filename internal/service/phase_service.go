package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/launchforge/launchpad/internal/domain"
)

// transitionSpec is one row of the lifecycle precondition table.
type transitionSpec struct {
	from    []domain.DealStatus
	to      domain.DealStatus
	message string
}

// anyNonTerminal marks transitions allowed from every non-terminal status.
var anyNonTerminal = []domain.DealStatus{
	domain.DealStatusDraft,
	domain.DealStatusUnderReview,
	domain.DealStatusApproved,
	domain.DealStatusRegistrationOpen,
	domain.DealStatusGuaranteed,
	domain.DealStatusFCFS,
	domain.DealStatusSettlement,
	domain.DealStatusDistributing,
}

// transitions is the fixed precondition table for operator-invoked actions.
var transitions = map[domain.PhaseAction]transitionSpec{
	domain.ActionOpenRegistration: {
		from:    []domain.DealStatus{domain.DealStatusApproved},
		to:      domain.DealStatusRegistrationOpen,
		message: "registration is now open",
	},
	domain.ActionCloseRegistration: {
		from:    []domain.DealStatus{domain.DealStatusRegistrationOpen},
		to:      domain.DealStatusGuaranteed,
		message: "registration closed, guaranteed allocation phase started",
	},
	domain.ActionOpenContributions: {
		from:    []domain.DealStatus{domain.DealStatusGuaranteed},
		to:      domain.DealStatusFCFS,
		message: "first-come-first-served contribution phase started",
	},
	domain.ActionCloseContributions: {
		from:    []domain.DealStatus{domain.DealStatusGuaranteed, domain.DealStatusFCFS},
		to:      domain.DealStatusSettlement,
		message: "contributions closed, deal entering settlement",
	},
	domain.ActionStartDistribution: {
		from:    []domain.DealStatus{domain.DealStatusSettlement},
		to:      domain.DealStatusDistributing,
		message: "token distribution started",
	},
	domain.ActionComplete: {
		from:    []domain.DealStatus{domain.DealStatusDistributing},
		to:      domain.DealStatusCompleted,
		message: "deal completed",
	},
	domain.ActionCancel: {
		from:    anyNonTerminal,
		to:      domain.DealStatusCancelled,
		message: "deal cancelled",
	},
}

// PhaseService owns the deal lifecycle state machine: guarded operator
// transitions plus the automatic hard-cap settlement transition.
type PhaseService struct {
	deals  domain.DealStore
	phases domain.PhaseStore
	audit  domain.AuditStore
	bus    domain.SignalBus
	cache  domain.DealCache
	logger *slog.Logger
}

// NewPhaseService creates a PhaseService with all required dependencies.
func NewPhaseService(
	deals domain.DealStore,
	phases domain.PhaseStore,
	audit domain.AuditStore,
	bus domain.SignalBus,
	logger *slog.Logger,
) *PhaseService {
	return &PhaseService{
		deals:  deals,
		phases: phases,
		audit:  audit,
		bus:    bus,
		logger: logger.With(slog.String("component", "phase_service")),
	}
}

// WithCache attaches a deal cache to invalidate on transitions.
func (s *PhaseService) WithCache(cache domain.DealCache) *PhaseService {
	s.cache = cache
	return s
}

// Transition applies an operator-invoked lifecycle action. The status write
// is conditional on the status observed here, so two concurrent operators
// cannot both apply an action; the loser gets a ConflictError.
func (s *PhaseService) Transition(ctx context.Context, dealID string, action domain.PhaseAction) (domain.PhaseTransition, error) {
	spec, ok := transitions[action]
	if !ok {
		return domain.PhaseTransition{}, domain.Validation(domain.CodeInvalidInput, "unknown phase action %q", action)
	}

	deal, err := s.deals.GetByID(ctx, dealID)
	if err != nil {
		return domain.PhaseTransition{}, err
	}

	allowed := false
	for _, from := range spec.from {
		if deal.Status == from {
			allowed = true
			break
		}
	}
	if !allowed {
		return domain.PhaseTransition{}, domain.State(domain.CodeInvalidTransition,
			"cannot %s from %s", action, deal.Status)
	}

	updated, err := s.deals.UpdateStatus(ctx, dealID, deal.Status, spec.to)
	if err != nil {
		return domain.PhaseTransition{}, err
	}

	s.afterTransition(ctx, updated, deal.Status, string(action))

	return domain.PhaseTransition{
		PreviousStatus: deal.Status,
		NewStatus:      updated.Status,
		Message:        spec.message,
		Deal:           updated,
	}, nil
}

// AutoSettle moves the deal to SETTLEMENT when the hard cap is saturated.
// The underlying write is guarded on the deal still being in a
// contribution-accepting status, so concurrent contributions crossing the
// cap fire the transition and its side effects exactly once.
func (s *PhaseService) AutoSettle(ctx context.Context, dealID string) (bool, error) {
	deal, applied, err := s.deals.SettleIfFull(ctx, dealID)
	if err != nil {
		return false, err
	}
	if !applied {
		return false, nil
	}

	s.logger.InfoContext(ctx, "hard cap reached, deal auto-settled",
		slog.String("deal_id", dealID),
		slog.String("total_raised", domain.FormatMicro(deal.TotalRaised)),
	)
	s.afterTransition(ctx, deal, domain.DealStatusFCFS, "auto_settlement")
	return true, nil
}

// Phases returns the informational phase projection for a deal.
func (s *PhaseService) Phases(ctx context.Context, dealID string) ([]domain.DealPhase, error) {
	return s.phases.ListByDeal(ctx, dealID)
}

// afterTransition refreshes the phase projection, writes an audit entry, and
// publishes the change on the signal bus. These are best-effort: the status
// write has already committed, failures here are logged, not surfaced.
func (s *PhaseService) afterTransition(ctx context.Context, deal domain.Deal, prev domain.DealStatus, action string) {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, deal.ID); err != nil {
			s.logger.WarnContext(ctx, "invalidate deal cache failed",
				slog.String("deal_id", deal.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := s.phases.Replace(ctx, deal.ID, projectPhases(deal)); err != nil {
		s.logger.ErrorContext(ctx, "refresh phase projection failed",
			slog.String("deal_id", deal.ID),
			slog.String("error", err.Error()),
		)
	}

	if err := s.audit.Log(ctx, "deal.phase_changed", map[string]any{
		"deal_id":  deal.ID,
		"action":   action,
		"previous": string(prev),
		"status":   string(deal.Status),
	}); err != nil {
		s.logger.ErrorContext(ctx, "audit phase change failed",
			slog.String("deal_id", deal.ID),
			slog.String("error", err.Error()),
		)
	}

	payload, err := json.Marshal(map[string]any{
		"type":     "phase_changed",
		"dealId":   deal.ID,
		"previous": string(prev),
		"status":   string(deal.Status),
		"action":   action,
	})
	if err == nil {
		if err := s.bus.Publish(ctx, domain.ChannelDeals, payload); err != nil {
			s.logger.WarnContext(ctx, "publish phase change failed",
				slog.String("deal_id", deal.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// projectPhases derives the ordered phase rows for a deal from its timing
// windows and current status.
func projectPhases(deal domain.Deal) []domain.DealPhase {
	rows := []struct {
		name    string
		status  domain.DealStatus
		startAt *time.Time
		endAt   *time.Time
	}{
		{"registration", domain.DealStatusRegistrationOpen, deal.RegistrationOpenAt, deal.RegistrationCloseAt},
		{"guaranteed_allocation", domain.DealStatusGuaranteed, deal.RegistrationCloseAt, deal.ContributionOpenAt},
		{"fcfs", domain.DealStatusFCFS, deal.ContributionOpenAt, deal.ContributionCloseAt},
		{"settlement", domain.DealStatusSettlement, deal.ContributionCloseAt, deal.DistributionAt},
		{"distribution", domain.DealStatusDistributing, deal.DistributionAt, nil},
	}

	phases := make([]domain.DealPhase, 0, len(rows))
	for i, r := range rows {
		phases = append(phases, domain.DealPhase{
			ID:      fmt.Sprintf("%s:%s", deal.ID, r.name),
			DealID:  deal.ID,
			Name:    r.name,
			Order:   i + 1,
			StartAt: r.startAt,
			EndAt:   r.endAt,
			Active:  deal.Status == r.status,
		})
	}
	return phases
}
