// README: Common money and rate value objects used across modules.
package types

import (
	"sort"

	"github.com/shopspring/decimal"
)

type ID string

// DefaultCurrency is used when settings do not name one.
const DefaultCurrency = "EUR"

// MoneyPlaces is the number of decimal places monetary line items are rounded to.
const MoneyPlaces = 2

type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

func NewMoney(amount decimal.Decimal, currency string) Money {
	if currency == "" {
		currency = DefaultCurrency
	}
	return Money{Amount: amount, Currency: currency}
}

// RoundMoney rounds half away from zero to MoneyPlaces.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// RateMap is a flat rate table keyed by country, vehicle type or category.
type RateMap map[string]decimal.Decimal

// Lookup returns the rate for key and whether it is configured.
func (m RateMap) Lookup(key string) (decimal.Decimal, bool) {
	if m == nil {
		return decimal.Zero, false
	}
	v, ok := m[key]
	return v, ok
}

// Keys returns the map keys in sorted order so iteration is deterministic.
func (m RateMap) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m RateMap) Clone() RateMap {
	if m == nil {
		return nil
	}
	out := make(RateMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// NestedRateMap is a two-level rate table, e.g. toll[country][vehicle_type].
type NestedRateMap map[string]RateMap

func (m NestedRateMap) Lookup(outer, inner string) (decimal.Decimal, bool) {
	if m == nil {
		return decimal.Zero, false
	}
	return m[outer].Lookup(inner)
}

func (m NestedRateMap) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m NestedRateMap) Clone() NestedRateMap {
	if m == nil {
		return nil
	}
	out := make(NestedRateMap, len(m))
	for k, v := range m {
		out[k] = v.Clone()
	}
	return out
}

// Dec parses a decimal literal and panics on malformed input. Intended for constants.
func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
