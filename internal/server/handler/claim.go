package handler

import (
	"log/slog"
	"net/http"

	"github.com/launchforge/launchpad/internal/domain"
	"github.com/launchforge/launchpad/internal/service"
)

// ClaimHandler serves vesting claims.
type ClaimHandler struct {
	claims *service.ClaimService
	logger *slog.Logger
}

// NewClaimHandler creates a ClaimHandler.
func NewClaimHandler(claims *service.ClaimService, logger *slog.Logger) *ClaimHandler {
	return &ClaimHandler{
		claims: claims,
		logger: logHandler(logger, "claim"),
	}
}

// Claim transfers the caller's claimable vested tokens for a deal.
// POST /api/deals/{id}/claim
func (h *ClaimHandler) Claim(w http.ResponseWriter, r *http.Request) {
	uid := requireUser(w, r)
	if uid == "" {
		return
	}
	dealID := pathParam(r, "id")

	result, err := h.claims.Claim(r.Context(), uid, dealID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"claimed":   domain.FormatMicro(result.Claimed),
		"remaining": domain.FormatMicro(result.Remaining),
		"txHash":    result.TxHash,
	})
}
