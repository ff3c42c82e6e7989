package invoicing

import "github.com/shopspring/decimal"

// MoneyPlaces is the number of fractional digits kept on persisted and
// displayed amounts.
const MoneyPlaces = 2

var hundred = decimal.NewFromInt(100)

// Round2 rounds half-up to two decimals. All amounts here are non-negative, so
// decimal's half-away-from-zero rounding is half-up.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// percentOf returns base * pct / 100 without rounding.
func percentOf(base, pct decimal.Decimal) decimal.Decimal {
	return base.Mul(pct).Div(hundred)
}

// clamp bounds d to [floor, ceil].
func clamp(d, floor, ceil decimal.Decimal) decimal.Decimal {
	if d.LessThan(floor) {
		return floor
	}
	if d.GreaterThan(ceil) {
		return ceil
	}
	return d
}

// hasMoreThanTwoPlaces reports whether d carries sub-cent precision.
func hasMoreThanTwoPlaces(d decimal.Decimal) bool {
	return !d.Equal(d.Truncate(MoneyPlaces))
}
