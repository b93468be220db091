package domain

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

var maxBaseUnits = decimal.NewFromUint64(math.MaxUint64)

// ToUIAmount renders base units as a decimal with the mint's precision
func ToUIAmount(amount uint64, decimals uint8) decimal.Decimal {
	return decimal.NewFromUint64(amount).Shift(-int32(decimals))
}

// ParseUIAmount converts a human amount such as "12.5" to base units.
// Amounts carrying more fractional digits than decimals are rejected with
// PrecisionMismatch rather than truncated. Malformed, negative and
// out-of-range amounts fail with ErrInvalidAmount.
func ParseUIAmount(s string, decimals uint8) (uint64, error) {
	if decimals > MaxDecimals {
		return 0, NewError(KindPrecisionMismatch, "decimals %d exceeds maximum %d", decimals, MaxDecimals)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w %q", ErrInvalidAmount, s)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("%w %s: must not be negative", ErrInvalidAmount, s)
	}

	units := d.Shift(int32(decimals))
	if !units.Equal(units.Truncate(0)) {
		return 0, NewError(KindPrecisionMismatch, "amount %s has more than %d decimal places", s, decimals)
	}
	if units.GreaterThan(maxBaseUnits) {
		return 0, fmt.Errorf("%w %s: overflows base units", ErrInvalidAmount, s)
	}

	return units.BigInt().Uint64(), nil
}
