// README: Offer pricing: final price from cost total and margin, and the margin invariant check.
package offer

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// marginPlaces is the precision the margin invariant is compared at.
const marginPlaces = 4

// PriceOffer returns total × (1 + margin). The result is exact; it is not rounded.
func PriceOffer(total, margin decimal.Decimal) (decimal.Decimal, error) {
	if margin.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: margin must be >= 0, got %s", ErrInvalidPricing, margin)
	}
	if !total.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: total cost must be > 0, got %s", ErrInvalidPricing, total)
	}
	final := total.Mul(decimal.NewFromInt(1).Add(margin))
	if !final.GreaterThan(total) {
		return decimal.Zero, fmt.Errorf("%w: final price %s must exceed total cost %s", ErrInvalidPricing, final, total)
	}
	return final, nil
}

// ImpliedMargin returns (final - total) / total.
func ImpliedMargin(total, final decimal.Decimal) decimal.Decimal {
	return final.Sub(total).Div(total)
}

// ValidatePricing enforces final > total and round(margin,4) == round((final-total)/total,4).
func ValidatePricing(total, margin, final decimal.Decimal) error {
	if margin.IsNegative() {
		return fmt.Errorf("%w: margin must be >= 0, got %s", ErrInvalidPricing, margin)
	}
	if !total.IsPositive() {
		return fmt.Errorf("%w: total cost must be > 0, got %s", ErrInvalidPricing, total)
	}
	if !final.GreaterThan(total) {
		return fmt.Errorf("%w: final price %s must exceed total cost %s", ErrInvalidPricing, final, total)
	}
	expected := ImpliedMargin(total, final).Round(marginPlaces)
	got := margin.Round(marginPlaces)
	if !expected.Equal(got) {
		return fmt.Errorf("%w: margin mismatch: expected %s, got %s", ErrInvalidPricing,
			expected.StringFixed(marginPlaces), got.StringFixed(marginPlaces))
	}
	return nil
}
