package crypto

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/launchforge/launchpad/internal/domain"
)

func TestVerify_ValidSignature(t *testing.T) {
	v := NewWebhookVerifier("topsecret", time.Minute)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	body := []byte(`{"type":"CONTRIBUTION_CONFIRMED","txHash":"0xabc"}`)

	sig := v.Sign(body, now.Unix())
	err := v.Verify(sig, strconv.FormatInt(now.Unix(), 10), body, now)
	assert.NoError(t, err)
}

func TestVerify_MissingHeaders(t *testing.T) {
	v := NewWebhookVerifier("topsecret", time.Minute)
	now := time.Now()

	err := v.Verify("", strconv.FormatInt(now.Unix(), 10), []byte("{}"), now)
	assert.Equal(t, domain.CodeInvalidSignature, domain.CodeOf(err))

	err = v.Verify("sig", "", []byte("{}"), now)
	assert.Equal(t, domain.CodeInvalidSignature, domain.CodeOf(err))
}

func TestVerify_BadTimestamp(t *testing.T) {
	v := NewWebhookVerifier("topsecret", time.Minute)
	err := v.Verify("sig", "not-a-number", []byte("{}"), time.Now())
	assert.Equal(t, domain.CodeInvalidSignature, domain.CodeOf(err))
}

func TestVerify_StaleTimestamp(t *testing.T) {
	v := NewWebhookVerifier("topsecret", time.Minute)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	body := []byte("{}")

	for _, ts := range []time.Time{now.Add(-2 * time.Minute), now.Add(2 * time.Minute)} {
		sig := v.Sign(body, ts.Unix())
		err := v.Verify(sig, strconv.FormatInt(ts.Unix(), 10), body, now)
		assert.Equal(t, domain.CodeStaleSignature, domain.CodeOf(err))
	}

	// Just inside the window on either side is accepted.
	ts := now.Add(-59 * time.Second)
	sig := v.Sign(body, ts.Unix())
	assert.NoError(t, v.Verify(sig, strconv.FormatInt(ts.Unix(), 10), body, now))
}

func TestVerify_TamperedBody(t *testing.T) {
	v := NewWebhookVerifier("topsecret", time.Minute)
	now := time.Now()
	sig := v.Sign([]byte(`{"amount":"1"}`), now.Unix())

	err := v.Verify(sig, strconv.FormatInt(now.Unix(), 10), []byte(`{"amount":"9"}`), now)
	assert.Equal(t, domain.CodeInvalidSignature, domain.CodeOf(err))
}

func TestVerify_WrongSecret(t *testing.T) {
	signer := NewWebhookVerifier("one", time.Minute)
	verifier := NewWebhookVerifier("two", time.Minute)
	now := time.Now()
	body := []byte("{}")

	sig := signer.Sign(body, now.Unix())
	err := verifier.Verify(sig, strconv.FormatInt(now.Unix(), 10), body, now)
	assert.Equal(t, domain.CodeInvalidSignature, domain.CodeOf(err))
}

func TestSecretEncryptionRoundTrip(t *testing.T) {
	blob, err := EncryptSecret("webhook-shared-secret", "hunter2")
	require.NoError(t, err)

	got, err := DecryptSecret(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "webhook-shared-secret", got)

	_, err = DecryptSecret(blob, "wrong")
	assert.Error(t, err)
}

func TestLoadSecret(t *testing.T) {
	// Raw secret wins outright.
	got, err := LoadSecret(SecretConfig{RawSecret: "raw"})
	require.NoError(t, err)
	assert.Equal(t, "raw", got)

	// Encrypted path is decrypted with the password.
	blob, err := EncryptSecret("from-file", "pw")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "secret.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	got, err = LoadSecret(SecretConfig{EncryptedSecretPath: path, SecretPassword: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "from-file", got)

	// Nothing configured is an error.
	_, err = LoadSecret(SecretConfig{})
	assert.Error(t, err)
}
