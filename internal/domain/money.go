package domain

import "github.com/shopspring/decimal"

const minorUnitExponent = 2

// FormatMinor renders a minor-unit amount as a fixed two-decimal string.
func FormatMinor(amount int64) string {
	return decimal.New(amount, -minorUnitExponent).StringFixed(minorUnitExponent)
}

// MinorFromDecimal converts a major-unit amount to minor units. It fails
// when the amount carries more precision than the currency supports.
func MinorFromDecimal(amount decimal.Decimal) (int64, bool) {
	shifted := amount.Shift(minorUnitExponent)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, false
	}
	return shifted.IntPart(), true
}

// SplitAmount divides total across quantity units. The remainder of an
// uneven division is assigned to the first unit so the parts sum to total.
func SplitAmount(total int64, quantity int) []int64 {
	if quantity <= 0 {
		return nil
	}
	q := int64(quantity)
	base := total / q
	remainder := total - base*q
	parts := make([]int64, quantity)
	for i := range parts {
		parts[i] = base
	}
	parts[0] += remainder
	return parts
}
