package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/launchforge/launchpad/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// errorBody is the JSON error shape returned to API clients.
type errorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Remaining string `json:"remaining,omitempty"` // hard-cap headroom, USD
}

// writeDomainError maps a domain error kind to an HTTP status and writes the
// stable code plus message. Internal errors are logged and surfaced
// generically.
func writeDomainError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		logger.Error("unhandled error", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error", Code: "INTERNAL"})
		return
	}

	status := http.StatusInternalServerError
	switch de.Kind {
	case domain.KindValidation:
		status = http.StatusBadRequest
	case domain.KindNotFound:
		status = http.StatusNotFound
	case domain.KindState, domain.KindConflict:
		status = http.StatusConflict
	case domain.KindPolicy:
		status = http.StatusUnprocessableEntity
	case domain.KindExternalSignal:
		status = http.StatusUnauthorized
	case domain.KindInternal:
		logger.Error("internal error", slog.String("error", de.Error()))
		writeJSON(w, status, errorBody{Error: "internal error", Code: "INTERNAL"})
		return
	}

	body := errorBody{Error: de.Message, Code: de.Code}
	if de.Code == domain.CodeExceedsHardCap {
		body.Remaining = domain.FormatMicro(de.Remaining)
	}
	writeJSON(w, status, body)
}

// userID extracts the authenticated user's ID supplied by the upstream
// identity layer. Authentication itself lives there; this service trusts the
// header once the API-key middleware has passed.
func userID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

// requireUser writes a 401 and returns "" when the identity header is absent.
func requireUser(w http.ResponseWriter, r *http.Request) string {
	id := userID(r)
	if id == "" {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing X-User-ID header", Code: "UNAUTHENTICATED"})
	}
	return id
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}
