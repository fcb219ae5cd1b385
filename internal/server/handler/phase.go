package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/launchforge/launchpad/internal/domain"
	"github.com/launchforge/launchpad/internal/service"
)

// PhaseHandler serves operator-invoked deal lifecycle transitions.
type PhaseHandler struct {
	phases *service.PhaseService
	logger *slog.Logger
}

// NewPhaseHandler creates a PhaseHandler.
func NewPhaseHandler(phases *service.PhaseService, logger *slog.Logger) *PhaseHandler {
	return &PhaseHandler{
		phases: phases,
		logger: logHandler(logger, "phase"),
	}
}

// transitionRequest is the JSON body for a phase transition.
type transitionRequest struct {
	Action string `json:"action"`
}

// Transition applies a lifecycle action to a deal.
// POST /api/deals/{id}/phase
func (h *PhaseHandler) Transition(w http.ResponseWriter, r *http.Request) {
	dealID := pathParam(r, "id")

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDomainError(w, h.logger, domain.Validation(domain.CodeInvalidInput, "malformed request body"))
		return
	}

	result, err := h.phases.Transition(r.Context(), dealID, domain.PhaseAction(req.Action))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"previousStatus": string(result.PreviousStatus),
		"newStatus":      string(result.NewStatus),
		"message":        result.Message,
		"deal":           toDealResponse(result.Deal),
	})
}
