package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger checks one dependency's connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the health-check endpoint with dependency pings.
type HealthHandler struct {
	deps   map[string]Pinger
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler. The deps map associates a
// dependency name ("postgres", "redis") with its pinger; nil entries are
// skipped.
func NewHealthHandler(deps map[string]Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{deps: deps, logger: logHandler(logger, "health")}
}

// HealthCheck responds with overall status plus one entry per dependency.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	overall := "ok"
	deps := make(map[string]string, len(h.deps))
	for name, p := range h.deps {
		if p == nil {
			continue
		}
		if err := p.Ping(ctx); err != nil {
			h.logger.WarnContext(ctx, "dependency ping failed",
				slog.String("dependency", name),
				slog.String("error", err.Error()),
			)
			deps[name] = "unavailable"
			overall = "degraded"
			status = http.StatusServiceUnavailable
		} else {
			deps[name] = "ok"
		}
	}

	writeJSON(w, status, map[string]any{
		"status":       overall,
		"dependencies": deps,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
}
