package reconcile

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/stx20sync/internal/domain"
)

// maxDigits bounds the integer digits kept from a remote number. Anything
// longer is replaced by ±10^maxDigits before it is rescaled, so a short
// string with a huge exponent costs no more than a plain one.
const maxDigits = 64

var (
	maxInt64      = decimal.NewFromInt(math.MaxInt64)
	minInt64      = decimal.NewFromInt(math.MinInt64)
	hundred       = decimal.NewFromInt(100)
	overflowBound = decimal.New(1, maxDigits)
)

// ParseSaturated parses a decimal string into an int64, truncating any
// fractional part toward zero. Values outside the int64 range are clamped to
// the nearest bound and reported through the saturated flag; only input that
// is not a number is an error.
func ParseSaturated(s string) (v int64, saturated bool, err error) {
	d, err := parseDecimal(s)
	if err != nil {
		return 0, false, err
	}
	return saturate(d)
}

func parseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: empty numeric value", domain.ErrInvalidRecord)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: numeric value %q: %v", domain.ErrInvalidRecord, s, err)
	}
	return boundMagnitude(d).Truncate(0), nil
}

// boundMagnitude clamps d using only its exponent and coefficient length:
// values below one become zero, values with more than maxDigits integer
// digits become ±10^maxDigits.
func boundMagnitude(d decimal.Decimal) decimal.Decimal {
	if d.IsZero() {
		return decimal.Zero
	}
	coef := d.Coefficient()
	digits := int64(len(coef.String()))
	if coef.Sign() < 0 {
		digits--
	}
	switch mag := int64(d.Exponent()) + digits; {
	case mag <= 0:
		return decimal.Zero
	case mag > maxDigits:
		if d.IsNegative() {
			return overflowBound.Neg()
		}
		return overflowBound
	}
	return d
}

func saturate(d decimal.Decimal) (int64, bool, error) {
	switch {
	case d.GreaterThan(maxInt64):
		return math.MaxInt64, true, nil
	case d.LessThan(minInt64):
		return math.MinInt64, true, nil
	default:
		return d.IntPart(), false, nil
	}
}

// Supply is the parsed mint state of a token.
type Supply struct {
	Total         int64
	MintLimit     int64
	Left          int64
	PercentMinted float64
	// Saturated is true when any field was clamped to the int64 range.
	Saturated bool
}

// ParseSupply parses the remote supply strings of a token. The percentage is
// computed from the exact values before saturation and clamped to [0, 100];
// remaining supply never exceeds total supply.
func ParseSupply(total, mintLimit, left string) (Supply, error) {
	totalDec, err := parseDecimal(total)
	if err != nil {
		return Supply{}, fmt.Errorf("total supply: %w", err)
	}
	leftDec, err := parseDecimal(left)
	if err != nil {
		return Supply{}, fmt.Errorf("supply left to mint: %w", err)
	}
	limitDec := decimal.Zero
	if strings.TrimSpace(mintLimit) != "" {
		if limitDec, err = parseDecimal(mintLimit); err != nil {
			return Supply{}, fmt.Errorf("mint limit: %w", err)
		}
	}

	if leftDec.GreaterThan(totalDec) {
		leftDec = totalDec
	}
	if leftDec.IsNegative() {
		leftDec = decimal.Zero
	}

	var s Supply
	var sat1, sat2, sat3 bool
	s.Total, sat1, _ = saturate(totalDec)
	s.MintLimit, sat2, _ = saturate(limitDec)
	s.Left, sat3, _ = saturate(leftDec)
	s.Saturated = sat1 || sat2 || sat3
	s.PercentMinted = percentMinted(totalDec, leftDec)
	return s, nil
}

func percentMinted(total, left decimal.Decimal) float64 {
	if !total.IsPositive() {
		return 0
	}
	pct := total.Sub(left).Div(total).Mul(hundred)
	switch {
	case pct.IsNegative():
		return 0
	case pct.GreaterThan(hundred):
		return 100
	}
	return pct.InexactFloat64()
}
