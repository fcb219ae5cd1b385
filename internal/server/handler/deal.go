package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/launchforge/launchpad/internal/domain"
	"github.com/launchforge/launchpad/internal/service"
)

// DealHandler serves the deal read surface and contribution listings.
type DealHandler struct {
	deals         *service.DealService
	contributions *service.ContributionService
	phases        *service.PhaseService
	logger        *slog.Logger
}

// NewDealHandler creates a DealHandler.
func NewDealHandler(
	deals *service.DealService,
	contributions *service.ContributionService,
	phases *service.PhaseService,
	logger *slog.Logger,
) *DealHandler {
	return &DealHandler{
		deals:         deals,
		contributions: contributions,
		phases:        phases,
		logger:        logHandler(logger, "deal"),
	}
}

// dealResponse is the JSON shape for one deal. Monetary fields are formatted
// decimal USD strings.
type dealResponse struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	Symbol           string       `json:"symbol"`
	Chain            string       `json:"chain"`
	Status           string       `json:"status"`
	HardCap          string       `json:"hardCap"`
	MinContribution  string       `json:"minContribution"`
	MaxContribution  string       `json:"maxContribution"`
	MinTierRequired  string       `json:"minTierRequired,omitempty"`
	RequiresKyc      bool         `json:"requiresKyc"`
	TotalRaised      string       `json:"totalRaised"`
	ContributorCount int          `json:"contributorCount"`
	CreatedAt        time.Time    `json:"createdAt"`
	Phases           []phaseModel `json:"phases,omitempty"`
}

type phaseModel struct {
	Name    string     `json:"name"`
	Order   int        `json:"order"`
	StartAt *time.Time `json:"startAt,omitempty"`
	EndAt   *time.Time `json:"endAt,omitempty"`
	Active  bool       `json:"active"`
}

func toDealResponse(d domain.Deal) dealResponse {
	return dealResponse{
		ID:               d.ID,
		Name:             d.Name,
		Symbol:           d.Symbol,
		Chain:            string(d.Chain),
		Status:           string(d.Status),
		HardCap:          domain.FormatMicro(d.HardCap),
		MinContribution:  domain.FormatMicro(d.MinContribution),
		MaxContribution:  domain.FormatMicro(d.MaxContribution),
		MinTierRequired:  string(d.MinTierRequired),
		RequiresKyc:      d.RequiresKyc,
		TotalRaised:      domain.FormatMicro(d.TotalRaised),
		ContributorCount: d.ContributorCount,
		CreatedAt:        d.CreatedAt,
	}
}

// ListDeals returns deals with pagination.
// GET /api/deals
func (h *DealHandler) ListDeals(w http.ResponseWriter, r *http.Request) {
	deals, err := h.deals.List(r.Context(), parseListOpts(r))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	out := make([]dealResponse, 0, len(deals))
	for _, d := range deals {
		out = append(out, toDealResponse(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"deals": out})
}

// GetDeal returns one deal with its phase projection.
// GET /api/deals/{id}
func (h *DealHandler) GetDeal(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	deal, err := h.deals.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	resp := toDealResponse(deal)

	phases, err := h.phases.Phases(r.Context(), id)
	if err != nil {
		h.logger.WarnContext(r.Context(), "load phase projection failed",
			slog.String("deal_id", id),
			slog.String("error", err.Error()),
		)
	}
	for _, p := range phases {
		resp.Phases = append(resp.Phases, phaseModel{
			Name:    p.Name,
			Order:   p.Order,
			StartAt: p.StartAt,
			EndAt:   p.EndAt,
			Active:  p.Active,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// contributionModel is the JSON shape for one ledger entry.
type contributionModel struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId"`
	DealID      string     `json:"dealId"`
	AmountUsd   string     `json:"amountUsd"`
	Currency    string     `json:"currency"`
	TxHash      string     `json:"txHash"`
	Chain       string     `json:"chain"`
	Status      string     `json:"status"`
	ConfirmedAt *time.Time `json:"confirmedAt,omitempty"`
	BlockNumber *int64     `json:"blockNumber,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

func toContributionModel(c domain.Contribution) contributionModel {
	return contributionModel{
		ID:          c.ID,
		UserID:      c.UserID,
		DealID:      c.DealID,
		AmountUsd:   domain.FormatMicro(c.AmountUsd),
		Currency:    string(c.Currency),
		TxHash:      c.TxHash,
		Chain:       string(c.Chain),
		Status:      string(c.Status),
		ConfirmedAt: c.ConfirmedAt,
		BlockNumber: c.BlockNumber,
		CreatedAt:   c.CreatedAt,
	}
}

// ListContributions returns a deal's ledger entries with pagination.
// GET /api/deals/{id}/contributions
func (h *DealHandler) ListContributions(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	contributions, err := h.contributions.ListByDeal(r.Context(), id, parseListOpts(r))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	out := make([]contributionModel, 0, len(contributions))
	for _, c := range contributions {
		out = append(out, toContributionModel(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"contributions": out})
}
