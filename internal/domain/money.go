package domain

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ZeroCents is the tolerance for value totals. Values are integer cents, so
// any non-zero total exceeds it.
const ZeroCents = 0.5

// ZeroStock is the tolerance under which an asset amount counts as nothing.
var ZeroStock = decimal.New(1, -8)

var hundred = decimal.NewFromInt(100)

// Cents converts a currency amount to cents rounding half up, like Math.round.
func Cents(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Add(decimal.NewFromFloat(0.5)).Floor().IntPart()
}

// FromCents converts cents to a currency amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// RoundHalfUp rounds like Math.round.
func RoundHalfUp(d decimal.Decimal) int64 {
	return d.Add(decimal.NewFromFloat(0.5)).Floor().IntPart()
}

// RealNegative reports whether cents are below zero beyond the tolerance.
func RealNegative(cents int64) bool {
	return float64(cents) < -ZeroCents
}

// RealPositive reports whether cents are above zero beyond the tolerance.
func RealPositive(cents int64) bool {
	return float64(cents) > ZeroCents
}

// IsZeroStock reports whether an asset amount is negligible.
func IsZeroStock(amount decimal.Decimal) bool {
	return amount.Abs().LessThan(ZeroStock)
}

var (
	thousandsComma = regexp.MustCompile(`,\d+\.`)
	thousandsDot   = regexp.MustCompile(`\.\d+,`)
	whitespace     = regexp.MustCompile(`\s`)
	leadingNumber  = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)
)

// ParseNumber converts a messy number like `12,300.50`, `12.300,50` or `12,5`.
// Trailing garbage is ignored. It fails when no number starts the string.
func ParseNumber(s string) (float64, bool) {
	s = whitespace.ReplaceAllString(s, "")
	switch {
	case thousandsComma.MatchString(s):
		s = strings.ReplaceAll(s, ",", "")
	case thousandsDot.MatchString(s):
		s = strings.Replace(strings.ReplaceAll(s, ".", ""), ",", ".", 1)
	default:
		s = strings.Replace(s, ",", ".", 1)
	}
	m := leadingNumber.FindString(s)
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
