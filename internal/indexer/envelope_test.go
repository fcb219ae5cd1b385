package indexer

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/launchforge/launchpad/internal/domain"
)

const (
	testTxHash  = "0x" + "ab" + "cdef0123456789abcdef0123456789abcdef0123456789abcdef0123456789"
	testAddress = "0x52908400098527886E0F7030069857D2E4169EE7"
	testToken   = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
)

func validEnvelope() Envelope {
	return Envelope{
		EventType:      "CONTRIBUTION_CONFIRMED",
		IdempotencyKey: "evt-1",
		Timestamp:      time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC).Unix(),
		Data: EventData{
			TxHash:         testTxHash,
			BlockNumber:    19_000_000,
			BlockTimestamp: time.Date(2026, 8, 1, 11, 59, 0, 0, time.UTC).Unix(),
			Chain:          "ETHEREUM",
			From:           testAddress,
			To:             testToken,
			Amount:         "250000000",
			TokenAddress:   testToken,
			TokenSymbol:    "USDC",
			TokenDecimals:  6,
			DealID:         "deal-1",
			LogIndex:       3,
			Confirmations:  12,
		},
	}
}

func TestParse_ValidEvent(t *testing.T) {
	body, err := json.Marshal(validEnvelope())
	require.NoError(t, err)

	ev, err := Parse(body)
	require.NoError(t, err)

	assert.Equal(t, domain.EventContributionConfirmed, ev.Type)
	assert.Equal(t, testTxHash, ev.TxHash)
	assert.Equal(t, domain.ChainEthereum, ev.Chain)
	assert.Equal(t, "evt-1", ev.IdempotencyKey)
	assert.Equal(t, int64(19_000_000), ev.BlockNumber)
	assert.True(t, ev.BlockTimestamp.Equal(time.Date(2026, 8, 1, 11, 59, 0, 0, time.UTC)))
}

func TestParse_MalformedJSON(t *testing.T) {
	_, err := Parse([]byte(`{"eventType":`))
	assert.Equal(t, domain.CodeInvalidInput, domain.CodeOf(err))
}

func TestEvent_ValidationFailures(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Envelope)
		want   string
	}{
		{"unknown event type", func(e *Envelope) { e.EventType = "SOMETHING_ELSE" }, "unknown eventType"},
		{"missing idempotency key", func(e *Envelope) { e.IdempotencyKey = "" }, "idempotencyKey"},
		{"zero timestamp", func(e *Envelope) { e.Timestamp = 0 }, "timestamp"},
		{"short tx hash", func(e *Envelope) { e.Data.TxHash = "0xabc" }, "txHash"},
		{"non-hex tx hash", func(e *Envelope) { e.Data.TxHash = "0x" + strings.Repeat("zz", 32) }, "txHash"},
		{"zero block number", func(e *Envelope) { e.Data.BlockNumber = 0 }, "blockNumber"},
		{"unsupported chain", func(e *Envelope) { e.Data.Chain = "DOGECHAIN" }, "chain"},
		{"bad from address", func(e *Envelope) { e.Data.From = "0x1234" }, "from/to"},
		{"bad token address", func(e *Envelope) { e.Data.TokenAddress = "not-an-address" }, "tokenAddress"},
		{"decimals out of range", func(e *Envelope) { e.Data.TokenDecimals = 19 }, "tokenDecimals"},
		{"fractional amount", func(e *Envelope) { e.Data.Amount = "12.5" }, "amount"},
		{"empty amount", func(e *Envelope) { e.Data.Amount = "" }, "amount"},
		{"negative log index", func(e *Envelope) { e.Data.LogIndex = -1 }, "logIndex"},
		{"zero confirmations", func(e *Envelope) { e.Data.Confirmations = 0 }, "confirmations"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := validEnvelope()
			tc.mutate(&env)

			_, err := env.Event()
			require.Error(t, err)
			assert.Equal(t, domain.CodeInvalidInput, domain.CodeOf(err))
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestEvent_AllEventTypes(t *testing.T) {
	want := map[string]domain.SettlementEventType{
		"CONTRIBUTION_CONFIRMED": domain.EventContributionConfirmed,
		"CONTRIBUTION_FAILED":    domain.EventContributionFailed,
		"CONTRIBUTION_REVERTED":  domain.EventContributionReverted,
	}
	for wire, typ := range want {
		env := validEnvelope()
		env.EventType = wire
		ev, err := env.Event()
		require.NoError(t, err)
		assert.Equal(t, typ, ev.Type)
	}
}

func TestValidTxHash(t *testing.T) {
	assert.True(t, ValidTxHash(testTxHash))
	assert.False(t, ValidTxHash(""))
	assert.False(t, ValidTxHash("0x1234"))
	assert.False(t, ValidTxHash(strings.TrimPrefix(testTxHash, "0x")))
}

func TestValidAddress(t *testing.T) {
	assert.True(t, ValidAddress(testAddress))
	assert.False(t, ValidAddress(""))
	assert.False(t, ValidAddress("0x1234"))
	assert.False(t, ValidAddress(testTxHash))
}
