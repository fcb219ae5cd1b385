package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/launchforge/launchpad/internal/domain"
	"github.com/launchforge/launchpad/internal/service"
)

// ContributionHandler serves contribution submission and eligibility queries.
type ContributionHandler struct {
	contributions *service.ContributionService
	logger        *slog.Logger
}

// NewContributionHandler creates a ContributionHandler.
func NewContributionHandler(contributions *service.ContributionService, logger *slog.Logger) *ContributionHandler {
	return &ContributionHandler{
		contributions: contributions,
		logger:        logHandler(logger, "contribution"),
	}
}

// submitRequest is the JSON body for a contribution submission. Amount is a
// decimal USD string, converted to micro-USD internally.
type submitRequest struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
	TxHash   string `json:"txHash"`
	Chain    string `json:"chain"`
}

// Submit records a new contribution against a deal.
// POST /api/deals/{id}/contributions
func (h *ContributionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	uid := requireUser(w, r)
	if uid == "" {
		return
	}
	dealID := pathParam(r, "id")

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDomainError(w, h.logger, domain.Validation(domain.CodeInvalidInput, "malformed request body"))
		return
	}

	amount, err := domain.ParseMicro(req.Amount)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	created, err := h.contributions.Submit(r.Context(), uid, dealID, domain.ContributionRequest{
		Amount:   amount,
		Currency: domain.Currency(req.Currency),
		TxHash:   req.TxHash,
		Chain:    domain.Chain(req.Chain),
	})
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, toContributionModel(created))
}

// Eligibility evaluates every admission check for the caller against a deal.
// GET /api/deals/{id}/eligibility?amount=
func (h *ContributionHandler) Eligibility(w http.ResponseWriter, r *http.Request) {
	uid := requireUser(w, r)
	if uid == "" {
		return
	}
	dealID := pathParam(r, "id")

	var amount int64
	if v := r.URL.Query().Get("amount"); v != "" {
		parsed, err := domain.ParseMicro(v)
		if err != nil {
			writeDomainError(w, h.logger, err)
			return
		}
		amount = parsed
	}

	report, err := h.contributions.Eligibility(r.Context(), uid, dealID, amount)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}
