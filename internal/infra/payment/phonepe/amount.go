package phonepe

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

const minorUnitExponent = 2

// ToMinorUnits converts a major-unit amount (rupees) to paise without rounding.
// Amounts that are not positive or carry sub-paisa precision are rejected.
func ToMinorUnits(amount decimal.Decimal) (int64, error) {
	if !amount.IsPositive() {
		return 0, fmt.Errorf("%w: %s must be positive", ErrInvalidAmount, amount.String())
	}

	minor := amount.Shift(minorUnitExponent)
	if !minor.IsInteger() {
		return 0, fmt.Errorf("%w: %s has more than %d decimal places", ErrInvalidAmount, amount.String(), minorUnitExponent)
	}
	if minor.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return 0, fmt.Errorf("%w: %s overflows", ErrInvalidAmount, amount.String())
	}

	return minor.IntPart(), nil
}

// FromMinorUnits converts paise back to a major-unit decimal.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -minorUnitExponent)
}
