package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/launchforge/launchpad/internal/indexer"
	"github.com/launchforge/launchpad/internal/service"
)

// maxWebhookBody bounds settlement event payload size.
const maxWebhookBody = 64 * 1024

// WebhookHandler receives settlement events from the indexer. Signature and
// freshness verification happens in middleware before this handler runs.
type WebhookHandler struct {
	reconciler *service.ReconcileService
	logger     *slog.Logger
}

// NewWebhookHandler creates a WebhookHandler.
func NewWebhookHandler(reconciler *service.ReconcileService, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		reconciler: reconciler,
		logger:     logHandler(logger, "webhook"),
	}
}

// Settlement parses one settlement event delivery and applies it through the
// reconciler. Duplicate and out-of-order deliveries resolve to NOOP/SKIPPED
// outcomes, never errors, so the indexer can retry safely.
// POST /api/webhooks/settlement
func (h *WebhookHandler) Settlement(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "unreadable body", Code: "INVALID_INPUT"})
		return
	}

	ev, err := indexer.Parse(body)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	outcome, err := h.reconciler.Apply(r.Context(), ev)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	h.logger.InfoContext(r.Context(), "settlement event processed",
		slog.String("event_type", string(ev.Type)),
		slog.String("tx_hash", ev.TxHash),
		slog.String("outcome", string(outcome)),
	)

	writeJSON(w, http.StatusOK, map[string]any{
		"outcome": string(outcome),
		"txHash":  ev.TxHash,
	})
}
