// README: CostBreakdown aggregation; every total is derived from the component list.
package costing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"freightquote/internal/types"
)

// CountryAmounts maps a country code (or "" for route-wide items) to an amount.
type CountryAmounts map[string]decimal.Decimal

// CostBreakdown holds the priced components and their derived aggregates.
// Build it with NewBreakdown; the subtotals and total are never set directly.
type CostBreakdown struct {
	Components   []CostComponent                 `json:"cost_components"`
	ByType       map[ComponentType]CountryAmounts `json:"components"`
	EmptyDriving map[ComponentType]CountryAmounts `json:"empty_driving_components,omitempty"`
	Skipped      []SkippedRate                   `json:"skipped,omitempty"`
	Currency     string                          `json:"currency"`

	SubtotalDistanceBased decimal.Decimal `json:"subtotal_distance_based"`
	SubtotalTimeBased     decimal.Decimal `json:"subtotal_time_based"`
	SubtotalEmptyDriving  decimal.Decimal `json:"subtotal_empty_driving"`
	TotalCost             decimal.Decimal `json:"total_cost"`
}

// NewBreakdown aggregates components. When byCountry is false every amount is
// keyed under "" in ByType; the component list keeps its countries either way.
func NewBreakdown(components []CostComponent, skipped []SkippedRate, currency string, byCountry bool) CostBreakdown {
	b := CostBreakdown{
		Components: append([]CostComponent(nil), components...),
		Skipped:    append([]SkippedRate(nil), skipped...),
		Currency:   currency,
	}
	b.Recompute(byCountry)
	return b
}

// Recompute rebuilds every aggregate from Components. Calling it repeatedly yields identical values.
func (b *CostBreakdown) Recompute(byCountry bool) {
	b.ByType = make(map[ComponentType]CountryAmounts)
	b.EmptyDriving = nil
	b.SubtotalDistanceBased = decimal.Zero
	b.SubtotalTimeBased = decimal.Zero
	b.SubtotalEmptyDriving = decimal.Zero

	for _, c := range b.Components {
		country := ""
		if byCountry {
			country = c.Country
		}
		if c.IsEmptyDriving {
			if b.EmptyDriving == nil {
				b.EmptyDriving = make(map[ComponentType]CountryAmounts)
			}
			addAmount(b.EmptyDriving, c.Type, country, c.Amount)
			b.SubtotalEmptyDriving = b.SubtotalEmptyDriving.Add(c.Amount)
			continue
		}
		addAmount(b.ByType, c.Type, country, c.Amount)
		if c.Type.IsDistanceBased() {
			b.SubtotalDistanceBased = b.SubtotalDistanceBased.Add(c.Amount)
		} else {
			b.SubtotalTimeBased = b.SubtotalTimeBased.Add(c.Amount)
		}
	}
	b.TotalCost = b.SubtotalDistanceBased.Add(b.SubtotalTimeBased).Add(b.SubtotalEmptyDriving)
}

// Verify checks that the stored totals still match the components, e.g. after decoding a stored cost.
func (b *CostBreakdown) Verify() error {
	sum := b.SubtotalDistanceBased.Add(b.SubtotalTimeBased).Add(b.SubtotalEmptyDriving)
	if !sum.Equal(b.TotalCost) {
		return fmt.Errorf("%w: total %s does not equal subtotals %s", types.ErrValidation, b.TotalCost, sum)
	}
	var components decimal.Decimal
	for _, c := range b.Components {
		components = components.Add(c.Amount)
	}
	if !components.Equal(b.TotalCost) {
		return fmt.Errorf("%w: total %s does not equal components %s", types.ErrValidation, b.TotalCost, components)
	}
	return nil
}

// Amount returns the aggregated main-route amount of one component type across countries.
func (b *CostBreakdown) Amount(t ComponentType) decimal.Decimal {
	var sum decimal.Decimal
	for _, v := range b.ByType[t] {
		sum = sum.Add(v)
	}
	return sum
}

func addAmount(m map[ComponentType]CountryAmounts, t ComponentType, country string, amount decimal.Decimal) {
	byCountry, ok := m[t]
	if !ok {
		byCountry = make(CountryAmounts)
		m[t] = byCountry
	}
	byCountry[country] = byCountry[country].Add(amount)
}
