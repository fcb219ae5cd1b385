// Package crypto provides HMAC verification for the settlement webhook and
// encrypted storage for its shared secret.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"time"

	"github.com/launchforge/launchpad/internal/domain"
)

// DefaultMaxSkew is the freshness window for signed webhook deliveries.
const DefaultMaxSkew = 5 * time.Minute

// WebhookVerifier validates the signature and timestamp headers the indexer
// attaches to settlement event deliveries. The signature is
// HMAC-SHA256(secret, timestamp + "." + body) encoded as base64.
type WebhookVerifier struct {
	secret  []byte
	maxSkew time.Duration
}

// NewWebhookVerifier creates a verifier for the given shared secret. A
// non-positive maxSkew falls back to DefaultMaxSkew.
func NewWebhookVerifier(secret string, maxSkew time.Duration) *WebhookVerifier {
	if maxSkew <= 0 {
		maxSkew = DefaultMaxSkew
	}
	return &WebhookVerifier{secret: []byte(secret), maxSkew: maxSkew}
}

// Verify checks the timestamp freshness window and the request signature.
// Stale or unsigned requests fail with an ExternalSignal error before any
// payload parsing happens.
func (v *WebhookVerifier) Verify(signature, timestamp string, body []byte, now time.Time) error {
	if signature == "" || timestamp == "" {
		return domain.ExternalSignal(domain.CodeInvalidSignature, "missing signature or timestamp header")
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return domain.ExternalSignal(domain.CodeInvalidSignature, "timestamp header is not a unix timestamp")
	}

	skew := now.Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > v.maxSkew {
		return domain.ExternalSignal(domain.CodeStaleSignature,
			"timestamp outside the %s freshness window", v.maxSkew)
	}

	expected := v.Sign(body, ts)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return domain.ExternalSignal(domain.CodeInvalidSignature, "signature mismatch")
	}
	return nil
}

// Sign computes the signature for a body at the given unix timestamp. Used
// by the verifier and by tests constructing deliveries.
func (v *WebhookVerifier) Sign(body []byte, unixTS int64) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(strconv.FormatInt(unixTS, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
