package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/launchforge/launchpad/internal/domain"
	"github.com/launchforge/launchpad/internal/vesting"
)

// ClaimService processes vesting claims. Rate limiting is the transport
// layer's responsibility; this service performs no throttling itself.
type ClaimService struct {
	vestings      domain.VestingStore
	notifications domain.NotificationStore
	audit         domain.AuditStore
	bus           domain.SignalBus
	logger        *slog.Logger
	clock         func() time.Time
}

// NewClaimService creates a ClaimService with all required dependencies.
func NewClaimService(
	vestings domain.VestingStore,
	notifications domain.NotificationStore,
	audit domain.AuditStore,
	bus domain.SignalBus,
	logger *slog.Logger,
) *ClaimService {
	return &ClaimService{
		vestings:      vestings,
		notifications: notifications,
		audit:         audit,
		bus:           bus,
		logger:        logger.With(slog.String("component", "claim_service")),
		clock:         time.Now,
	}
}

// WithClock overrides the wall clock (deterministic testing).
func (s *ClaimService) WithClock(clock func() time.Time) *ClaimService {
	s.clock = clock
	return s
}

// Claim resolves the user's schedule for the deal, computes the claimable
// amount, and applies it atomically. The schedule update is guarded on the
// claimed amount observed here, so a concurrent claim cannot double-spend
// the same unlocked tokens.
func (s *ClaimService) Claim(ctx context.Context, userID, dealID string) (domain.ClaimResult, error) {
	sched, err := s.vestings.GetByUserAndDeal(ctx, userID, dealID)
	if err != nil {
		return domain.ClaimResult{}, err
	}

	now := s.clock()
	claimable := vesting.Claimable(sched, now)
	if claimable <= 0 {
		return domain.ClaimResult{}, domain.Policy(domain.CodeNothingToClaim, "nothing to claim")
	}

	rec := domain.ClaimRecord{
		ID:         uuid.New().String(),
		ScheduleID: sched.ID,
		UserID:     userID,
		DealID:     dealID,
		Amount:     claimable,
		TxHash:     "claim-" + uuid.New().String(),
		ClaimedAt:  now,
	}

	updated, err := s.vestings.ApplyClaim(ctx, rec, sched.ClaimedAmount)
	if err != nil {
		return domain.ClaimResult{}, err
	}

	s.logger.InfoContext(ctx, "tokens claimed",
		slog.String("user_id", userID),
		slog.String("deal_id", dealID),
		slog.String("amount", domain.FormatMicro(claimable)),
	)

	s.afterClaim(ctx, rec, updated)

	return domain.ClaimResult{
		Claimed:   claimable,
		Remaining: updated.Remaining(),
		TxHash:    rec.TxHash,
	}, nil
}

// afterClaim writes the audit entry, queues the user notification, and
// publishes the claim event. Best-effort once the claim has committed.
func (s *ClaimService) afterClaim(ctx context.Context, rec domain.ClaimRecord, sched domain.VestingSchedule) {
	if err := s.audit.Log(ctx, "claim.processed", map[string]any{
		"claim_id": rec.ID,
		"user_id":  rec.UserID,
		"deal_id":  rec.DealID,
		"amount":   domain.FormatMicro(rec.Amount),
		"tx_hash":  rec.TxHash,
	}); err != nil {
		s.logger.ErrorContext(ctx, "audit claim failed",
			slog.String("claim_id", rec.ID),
			slog.String("error", err.Error()),
		)
	}

	if err := s.notifications.Enqueue(ctx, domain.Notification{
		ID:        uuid.New().String(),
		UserID:    rec.UserID,
		Kind:      domain.NotifyTokensClaimed,
		Title:     "Tokens claimed",
		Body:      "You claimed " + domain.FormatMicro(rec.Amount) + " tokens; " + domain.FormatMicro(sched.Remaining()) + " remain vesting.",
		Reference: rec.DealID,
		CreatedAt: s.clock(),
	}); err != nil {
		s.logger.ErrorContext(ctx, "enqueue claim notification failed",
			slog.String("user_id", rec.UserID),
			slog.String("error", err.Error()),
		)
	}

	payload, err := json.Marshal(map[string]any{
		"type":   "tokens_claimed",
		"dealId": rec.DealID,
		"amount": domain.FormatMicro(rec.Amount),
	})
	if err == nil {
		if err := s.bus.Publish(ctx, domain.ChannelClaims, payload); err != nil {
			s.logger.WarnContext(ctx, "publish claim failed",
				slog.String("claim_id", rec.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}
