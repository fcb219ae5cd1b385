package indexer

import (
	"encoding/json"
	"math/big"
	"time"

	"github.com/launchforge/launchpad/internal/domain"
)

// Envelope is the wire shape of one settlement event delivery.
type Envelope struct {
	EventType      string    `json:"eventType"`
	Data           EventData `json:"data"`
	IdempotencyKey string    `json:"idempotencyKey"`
	Timestamp      int64     `json:"timestamp"`
}

// EventData carries the on-chain facts for a settlement event.
type EventData struct {
	TxHash         string `json:"txHash"`
	BlockNumber    int64  `json:"blockNumber"`
	BlockTimestamp int64  `json:"blockTimestamp"`
	Chain          string `json:"chain"`
	From           string `json:"from"`
	To             string `json:"to"`
	Amount         string `json:"amount"`
	TokenAddress   string `json:"tokenAddress"`
	TokenSymbol    string `json:"tokenSymbol"`
	TokenDecimals  int    `json:"tokenDecimals"`
	DealID         string `json:"dealId,omitempty"`
	LogIndex       int    `json:"logIndex"`
	Confirmations  int    `json:"confirmations"`
}

// eventTypes maps wire event types to domain types.
var eventTypes = map[string]domain.SettlementEventType{
	"CONTRIBUTION_CONFIRMED": domain.EventContributionConfirmed,
	"CONTRIBUTION_FAILED":    domain.EventContributionFailed,
	"CONTRIBUTION_REVERTED":  domain.EventContributionReverted,
}

// Parse decodes and validates one settlement event delivery. Signature and
// freshness checks happen earlier, at the transport boundary; Parse only
// validates payload shape.
func Parse(body []byte) (domain.SettlementEvent, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return domain.SettlementEvent{}, domain.Validation(domain.CodeInvalidInput, "malformed settlement event: %v", err)
	}
	return env.Event()
}

// Event validates the envelope and converts it to a domain event.
func (env Envelope) Event() (domain.SettlementEvent, error) {
	typ, ok := eventTypes[env.EventType]
	if !ok {
		return domain.SettlementEvent{}, domain.Validation(domain.CodeInvalidInput, "unknown eventType %q", env.EventType)
	}
	if env.IdempotencyKey == "" {
		return domain.SettlementEvent{}, domain.Validation(domain.CodeInvalidInput, "idempotencyKey is required")
	}
	if env.Timestamp <= 0 {
		return domain.SettlementEvent{}, domain.Validation(domain.CodeInvalidInput, "timestamp must be positive")
	}

	d := env.Data
	if !ValidTxHash(d.TxHash) {
		return domain.SettlementEvent{}, domain.Validation(domain.CodeInvalidInput, "txHash must be a 0x-prefixed 32-byte hex string")
	}
	if d.BlockNumber <= 0 {
		return domain.SettlementEvent{}, domain.Validation(domain.CodeInvalidInput, "blockNumber must be positive")
	}
	if d.BlockTimestamp <= 0 {
		return domain.SettlementEvent{}, domain.Validation(domain.CodeInvalidInput, "blockTimestamp must be positive")
	}
	chain := domain.Chain(d.Chain)
	if !chain.Valid() {
		return domain.SettlementEvent{}, domain.Validation(domain.CodeInvalidInput, "unsupported chain %q", d.Chain)
	}
	if !ValidAddress(d.From) || !ValidAddress(d.To) {
		return domain.SettlementEvent{}, domain.Validation(domain.CodeInvalidInput, "from/to must be 0x-prefixed 20-byte hex addresses")
	}
	if !ValidAddress(d.TokenAddress) {
		return domain.SettlementEvent{}, domain.Validation(domain.CodeInvalidInput, "tokenAddress must be a 0x-prefixed 20-byte hex address")
	}
	if d.TokenDecimals < 0 || d.TokenDecimals > 18 {
		return domain.SettlementEvent{}, domain.Validation(domain.CodeInvalidInput, "tokenDecimals must be within 0..18")
	}
	if _, ok := new(big.Int).SetString(d.Amount, 10); !ok {
		return domain.SettlementEvent{}, domain.Validation(domain.CodeInvalidInput, "amount must be a base-10 integer string")
	}
	if d.LogIndex < 0 {
		return domain.SettlementEvent{}, domain.Validation(domain.CodeInvalidInput, "logIndex must not be negative")
	}
	if d.Confirmations < 1 {
		return domain.SettlementEvent{}, domain.Validation(domain.CodeInvalidInput, "confirmations must be at least 1")
	}

	return domain.SettlementEvent{
		Type:           typ,
		TxHash:         d.TxHash,
		BlockNumber:    d.BlockNumber,
		BlockTimestamp: time.Unix(d.BlockTimestamp, 0).UTC(),
		Chain:          chain,
		From:           d.From,
		To:             d.To,
		Amount:         d.Amount,
		TokenAddress:   d.TokenAddress,
		TokenSymbol:    d.TokenSymbol,
		TokenDecimals:  d.TokenDecimals,
		DealID:         d.DealID,
		LogIndex:       d.LogIndex,
		Confirmations:  d.Confirmations,
		IdempotencyKey: env.IdempotencyKey,
		ReceivedAt:     time.Unix(env.Timestamp, 0).UTC(),
	}, nil
}
