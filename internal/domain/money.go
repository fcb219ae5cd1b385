package domain

import (
	"fmt"
	"math/big"
	"strings"
)

// MicroUnit is the fixed-point scale for monetary and token amounts.
// All int64 amount fields store value * 1e6; no floating point touches
// ledger arithmetic.
const MicroUnit int64 = 1_000_000

// FormatMicro renders a fixed-point micro-unit amount as a decimal string,
// e.g. 1_500_000 -> "1.5".
func FormatMicro(v int64) string {
	neg := ""
	if v < 0 {
		neg = "-"
		v = -v
	}
	whole := v / MicroUnit
	frac := v % MicroUnit
	if frac == 0 {
		return fmt.Sprintf("%s%d", neg, whole)
	}
	s := fmt.Sprintf("%s%d.%06d", neg, whole, frac)
	// Trim trailing zeros from the fraction.
	for s[len(s)-1] == '0' {
		s = s[:len(s)-1]
	}
	return s
}

// ParseMicro parses a non-negative decimal string into fixed-point
// micro-units, e.g. "1.5" -> 1_500_000. At most six fractional digits are
// accepted; anything else is a validation error.
func ParseMicro(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "." || strings.HasPrefix(s, "-") {
		return 0, Validation(CodeInvalidInput, "amount %q is not a non-negative decimal", s)
	}

	whole, frac, _ := strings.Cut(s, ".")
	if len(frac) > 6 {
		return 0, Validation(CodeInvalidInput, "amount %q has more than six decimal places", s)
	}

	var v int64
	for _, c := range whole {
		if c < '0' || c > '9' {
			return 0, Validation(CodeInvalidInput, "amount %q is not a non-negative decimal", s)
		}
		d := int64(c - '0')
		if v > (1<<63-1-d)/10 {
			return 0, Validation(CodeInvalidInput, "amount %q is too large", s)
		}
		v = v*10 + d
	}
	if v > (1<<63-1)/MicroUnit {
		return 0, Validation(CodeInvalidInput, "amount %q is too large", s)
	}
	v *= MicroUnit

	scale := MicroUnit / 10
	for _, c := range frac {
		if c < '0' || c > '9' {
			return 0, Validation(CodeInvalidInput, "amount %q is not a non-negative decimal", s)
		}
		v += int64(c-'0') * scale
		scale /= 10
	}
	return v, nil
}

// ProRata computes total * elapsed / duration without intermediate overflow,
// rounding down. A non-positive duration or elapsed yields zero; elapsed is
// clamped to duration.
func ProRata(total, elapsed, duration int64) int64 {
	if total <= 0 || duration <= 0 || elapsed <= 0 {
		return 0
	}
	if elapsed >= duration {
		return total
	}
	n := new(big.Int).Mul(big.NewInt(total), big.NewInt(elapsed))
	n.Quo(n, big.NewInt(duration))
	return n.Int64()
}
