// Package amount models token quantities as raw fixed-point integers.
//
// All amounts in the pipeline are raw uint64 units with six implied decimal
// places (1 token = 1_000_000 raw units). Threshold comparisons and
// persistence operate on raw integers only; conversion to a decimal
// representation happens exclusively at display boundaries, and never
// through floating point.
package amount

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Decimals is the number of implied decimal places in a raw amount.
const Decimals = 6

// Unit is the number of raw units that make up one whole token.
const Unit uint64 = 1_000_000

// Display converts a raw amount to its decimal token value.
// The division is exact: 420690000 -> 420.69.
func Display(raw uint64) decimal.Decimal {
	return decimal.NewFromUint64(raw).Shift(-Decimals)
}

// Format renders a raw amount with exactly six decimal places.
// 420000000 -> "420.000000".
func Format(raw uint64) string {
	return Display(raw).StringFixed(Decimals)
}

// Parse converts a display string back to raw units.
// The value must be non-negative, must not carry more than six decimal
// places, and must fit in a uint64.
func Parse(s string) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return FromDisplay(d)
}

// FromDisplay converts a decimal token value to raw units.
func FromDisplay(d decimal.Decimal) (uint64, error) {
	if d.IsNegative() {
		return 0, fmt.Errorf("amount %s is negative", d)
	}
	raw := d.Shift(Decimals)
	if !raw.IsInteger() {
		return 0, fmt.Errorf("amount %s has more than %d decimal places", d, Decimals)
	}
	bi := raw.BigInt()
	if !bi.IsUint64() {
		return 0, fmt.Errorf("amount %s overflows raw units", d)
	}
	return bi.Uint64(), nil
}
