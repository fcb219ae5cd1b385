package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Auth returns middleware gating requests on a static API key, presented
// either as a Bearer token or in X-API-Key. An empty configured key disables
// the gate entirely.
func Auth(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			presented := presentedKey(r)
			if presented == "" {
				unauthorized(w, "missing credentials")
				return
			}
			if subtle.ConstantTimeCompare([]byte(presented), []byte(apiKey)) != 1 {
				unauthorized(w, "invalid credentials")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func presentedKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if scheme, token, ok := strings.Cut(auth, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `","code":"UNAUTHENTICATED"}`))
}
