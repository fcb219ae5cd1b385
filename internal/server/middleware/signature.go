package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/launchforge/launchpad/internal/crypto"
	"github.com/launchforge/launchpad/internal/domain"
)

// Signature headers attached by the indexer to settlement deliveries.
const (
	HeaderSignature = "X-Webhook-Signature"
	HeaderTimestamp = "X-Webhook-Timestamp"
)

// maxSignedBody bounds how much of a signed request body is buffered for
// verification.
const maxSignedBody = 64 * 1024

// Signature returns middleware that verifies the HMAC signature and
// timestamp freshness of webhook deliveries before the handler runs. The
// body is buffered and restored so the handler can read it again.
func Signature(verifier *crypto.WebhookVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBody))
			if err != nil {
				http.Error(w, `{"error":"unreadable body","code":"INVALID_INPUT"}`, http.StatusBadRequest)
				return
			}
			r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))

			sig := r.Header.Get(HeaderSignature)
			ts := r.Header.Get(HeaderTimestamp)

			if err := verifier.Verify(sig, ts, body, time.Now()); err != nil {
				logger.WarnContext(r.Context(), "webhook signature rejected",
					slog.String("code", domain.CodeOf(err)),
					slog.String("remote_addr", r.RemoteAddr),
				)
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"signature verification failed","code":"` + domain.CodeOf(err) + `"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
