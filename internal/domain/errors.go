package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is the coarse classification of a domain error. Callers branch on
// the kind; the code is the stable machine-readable discriminant surfaced to
// API clients.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindNotFound
	KindState
	KindPolicy
	KindConflict
	KindExternalSignal
)

// Stable machine-readable error codes.
const (
	CodeDealNotOpen       = "DEAL_NOT_OPEN"
	CodeTooEarly          = "TOO_EARLY"
	CodeTooLate           = "TOO_LATE"
	CodeKycRequired       = "KYC_REQUIRED"
	CodeTierInsufficient  = "TIER_INSUFFICIENT"
	CodeBelowMinimum      = "BELOW_MINIMUM"
	CodeAboveMaximum      = "ABOVE_MAXIMUM"
	CodeExceedsHardCap    = "EXCEEDS_HARD_CAP"
	CodeDuplicateTxHash   = "DUPLICATE_TX_HASH"
	CodeNothingToClaim    = "NOTHING_TO_CLAIM"
	CodeNotFound          = "NOT_FOUND"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeInvalidInput      = "INVALID_INPUT"
	CodeInvalidSignature  = "INVALID_SIGNATURE"
	CodeStaleSignature    = "STALE_SIGNATURE"
	CodeConcurrentUpdate  = "CONCURRENT_UPDATE"
	CodeRateLimited       = "RATE_LIMITED"
)

// Error is a tagged domain error carrying an explicit kind and code instead
// of relying on message prefixes.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error

	// Remaining carries the hard-cap headroom in micro-USD when Code is
	// EXCEEDS_HARD_CAP.
	Remaining int64
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Validation creates a malformed-input error.
func Validation(code, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: fmt.Sprintf(format, args...)}
}

// NotFound creates an absent-entity error.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// State creates an illegal-lifecycle error.
func State(code, format string, args ...any) *Error {
	return &Error{Kind: KindState, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Policy creates an admission/policy failure.
func Policy(code, format string, args ...any) *Error {
	return &Error{Kind: KindPolicy, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Conflict creates a uniqueness or concurrent-update violation.
func Conflict(code, format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: fmt.Sprintf(format, args...)}
}

// ExternalSignal creates an invalid external-event error.
func ExternalSignal(code, format string, args ...any) *Error {
	return &Error{Kind: KindExternalSignal, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Internal wraps an unexpected error. The message is safe to surface; the
// wrapped cause is for logs only.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Code: "INTERNAL", Message: "internal error", Err: err}
}

// KindOf extracts the kind from err, or KindInternal when err is not a
// domain error.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// CodeOf extracts the machine-readable code from err, or "INTERNAL".
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return "INTERNAL"
}

// IsKind reports whether err is a domain error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var de *Error
	return errors.As(err, &de) && de.Kind == kind
}
