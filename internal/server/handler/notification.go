package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/launchforge/launchpad/internal/domain"
)

// NotificationHandler serves the caller's notification queue.
type NotificationHandler struct {
	notifications domain.NotificationStore
	logger        *slog.Logger
}

// NewNotificationHandler creates a NotificationHandler.
func NewNotificationHandler(notifications domain.NotificationStore, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		notifications: notifications,
		logger:        logHandler(logger, "notification"),
	}
}

type notificationModel struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Reference string    `json:"reference,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

// List returns the caller's notifications, newest first.
// GET /api/notifications
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	uid := requireUser(w, r)
	if uid == "" {
		return
	}

	notifications, err := h.notifications.ListByUser(r.Context(), uid, parseListOpts(r))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	out := make([]notificationModel, 0, len(notifications))
	for _, n := range notifications {
		out = append(out, notificationModel{
			ID:        n.ID,
			Kind:      string(n.Kind),
			Title:     n.Title,
			Body:      n.Body,
			Reference: n.Reference,
			Read:      n.Read,
			CreatedAt: n.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": out})
}

// MarkRead marks one of the caller's notifications as read.
// POST /api/notifications/{id}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	uid := requireUser(w, r)
	if uid == "" {
		return
	}

	if err := h.notifications.MarkRead(r.Context(), pathParam(r, "id")); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
