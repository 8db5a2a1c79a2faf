// README: Pure cost calculation: route segments + vehicle/cargo context + settings -> Cost.
package costing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"freightquote/internal/modules/settings"
	"freightquote/internal/types"
)

var (
	restBlockHours = types.Dec("4.5")
	restPerBlock   = types.Dec("0.75")
)

// Input is everything one calculation depends on. Settings must already be resolved.
type Input struct {
	RouteID   types.ID
	Segments  []Segment
	EmptyLegs []Segment
	Vehicle   *VehicleSpec
	Cargo     *CargoSpec
	Settings  *settings.CostSettings

	IncludeEmptyDriving     bool
	IncludeCountryBreakdown bool
	Estimated               bool
	Validity                time.Duration
	// Strict turns a missing rate into a validation error instead of skipping the component.
	Strict bool
	// TollOverrides are live per-km toll rates by country for the resolved vehicle type.
	TollOverrides types.RateMap
}

// Calculate prices the route. It has no side effects; the returned Cost has no ID yet.
func Calculate(in Input, now time.Time) (*Cost, error) {
	if in.Settings == nil {
		return nil, ErrNoSettings
	}
	if len(in.Segments) == 0 {
		return nil, ErrNoSegments
	}
	if err := validateSegments(in.Segments, "segments"); err != nil {
		return nil, err
	}
	if in.IncludeEmptyDriving {
		if err := validateSegments(in.EmptyLegs, "empty_legs"); err != nil {
			return nil, err
		}
	}

	c := newCalculator(in)
	if err := c.priceLegs(in.Segments, false); err != nil {
		return nil, err
	}
	if err := c.priceDriverExtras(in.Segments); err != nil {
		return nil, err
	}
	if err := c.priceOverhead(in.Segments); err != nil {
		return nil, err
	}
	if in.IncludeEmptyDriving && len(in.EmptyLegs) > 0 {
		if err := c.priceLegs(in.EmptyLegs, true); err != nil {
			return nil, err
		}
	}

	method := MethodStandard
	switch {
	case in.Estimated:
		method = MethodEstimated
	case in.IncludeCountryBreakdown:
		method = MethodDetailed
	}
	validity := in.Validity
	if validity <= 0 {
		validity = DefaultValidity
	}
	snapshot, err := in.Settings.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("snapshot settings: %w", err)
	}

	return &Cost{
		RouteID:          in.RouteID,
		Segments:         append([]Segment(nil), in.Segments...),
		EmptyLegs:        emptyLegsUsed(in),
		Vehicle:          &VehicleSpec{Type: c.vehicleType, ConsumptionLPerKm: c.consumption},
		Cargo:            in.Cargo,
		Breakdown:        NewBreakdown(c.components, c.skipped, c.currency, in.IncludeCountryBreakdown),
		SettingsScope:    in.Settings.Scope,
		SettingsVersion:  in.Settings.Version,
		Method:           method,
		CalculatedAt:     now.UTC(),
		ValidityPeriod:   validity,
		settingsSnapshot: snapshot,
	}, nil
}

func validateSegments(segs []Segment, field string) error {
	v := types.NewValidationError()
	for i, s := range segs {
		if s.Country == "" {
			v.Add("%s[%d]: country is required", field, i)
		}
		if !s.DistanceKm.IsPositive() {
			v.Add("%s[%d]: distance_km must be > 0, got %s", field, i, s.DistanceKm)
		}
		if s.DurationHours.IsNegative() {
			v.Add("%s[%d]: duration_hours must be >= 0, got %s", field, i, s.DurationHours)
		}
	}
	if err := v.OrNil(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSegment, err)
	}
	return nil
}

func emptyLegsUsed(in Input) []Segment {
	if !in.IncludeEmptyDriving || len(in.EmptyLegs) == 0 {
		return nil
	}
	return append([]Segment(nil), in.EmptyLegs...)
}

type calculator struct {
	cs           *settings.CostSettings
	vehicleType  string
	consumption  decimal.Decimal
	cargoType    string
	loadingHours decimal.Decimal
	currency     string
	strict       bool
	tolls        types.RateMap

	components []CostComponent
	skipped    []SkippedRate
}

func newCalculator(in Input) *calculator {
	cs := in.Settings
	c := &calculator{
		cs:          cs,
		vehicleType: cs.DefaultVehicleType,
		consumption: cs.DefaultConsumption,
		currency:    cs.Currency,
		strict:      in.Strict,
		tolls:       in.TollOverrides,
	}
	if c.currency == "" {
		c.currency = types.DefaultCurrency
	}
	if in.Vehicle != nil {
		if in.Vehicle.Type != "" {
			c.vehicleType = in.Vehicle.Type
		}
		if in.Vehicle.ConsumptionLPerKm.IsPositive() {
			c.consumption = in.Vehicle.ConsumptionLPerKm
		}
	}
	if in.Cargo != nil {
		c.cargoType = in.Cargo.Type
		c.loadingHours = in.Cargo.LoadingHours
	}
	return c
}

// priceLegs adds fuel, toll and driver per segment, then maintenance over the total distance.
func (c *calculator) priceLegs(segs []Segment, empty bool) error {
	for _, seg := range segs {
		if c.cs.IsEnabled(settings.ComponentFuel) {
			if price, ok := c.cs.FuelPrices.Lookup(seg.Country); ok {
				c.add(ComponentFuel, seg.Country, "", empty,
					seg.DistanceKm.Mul(c.consumption).Mul(price),
					map[string]string{
						"distance_km": seg.DistanceKm.String(),
						"consumption": c.consumption.String(),
						"fuel_price":  price.String(),
					})
			} else if err := c.skip(ComponentFuel, seg.Country, "", empty); err != nil {
				return err
			}
		}

		if c.cs.IsEnabled(settings.ComponentToll) {
			rate, source, ok := c.tollRate(seg.Country)
			if ok {
				c.add(ComponentToll, seg.Country, "", empty,
					seg.DistanceKm.Mul(rate),
					map[string]string{
						"distance_km":  seg.DistanceKm.String(),
						"toll_rate":    rate.String(),
						"vehicle_type": c.vehicleType,
						"rate_source":  source,
					})
			} else if err := c.skip(ComponentToll, seg.Country, c.vehicleType, empty); err != nil {
				return err
			}
		}

		if c.cs.IsEnabled(settings.ComponentDriver) {
			if rate, ok := c.cs.DriverRates.Lookup(seg.Country); ok {
				c.add(ComponentDriver, seg.Country, "", empty,
					seg.DurationHours.Mul(rate),
					map[string]string{
						"duration_hours": seg.DurationHours.String(),
						"driver_rate":    rate.String(),
					})
			} else if err := c.skip(ComponentDriver, seg.Country, "", empty); err != nil {
				return err
			}
		}
	}

	if c.cs.IsEnabled(settings.ComponentMaintenance) {
		distance, _ := totals(segs)
		if rate, ok := c.cs.MaintenanceRates.Lookup(c.vehicleType); ok {
			c.add(ComponentMaintenance, "", "", empty,
				distance.Mul(rate),
				map[string]string{
					"distance_km":      distance.String(),
					"maintenance_rate": rate.String(),
					"vehicle_type":     c.vehicleType,
				})
		} else if err := c.skip(ComponentMaintenance, "", c.vehicleType, empty); err != nil {
			return err
		}
	}
	return nil
}

// priceDriverExtras adds mandatory rest and loading time at the driver rate of
// the first segment whose country has one.
func (c *calculator) priceDriverExtras(segs []Segment) error {
	if !c.cs.IsEnabled(settings.ComponentDriver) {
		return nil
	}
	_, duration := totals(segs)
	restHours := duration.Div(restBlockHours).Floor().Mul(restPerBlock)
	loadingHours := c.loadingHours
	if !restHours.IsPositive() && !loadingHours.IsPositive() {
		return nil
	}

	country, rate, ok := c.firstDriverRate(segs)
	if !ok {
		if restHours.IsPositive() {
			if err := c.skip(ComponentRest, "", "", false); err != nil {
				return err
			}
		}
		if loadingHours.IsPositive() {
			return c.skip(ComponentLoading, "", "", false)
		}
		return nil
	}
	if restHours.IsPositive() {
		c.add(ComponentRest, country, "", false, restHours.Mul(rate), map[string]string{
			"driving_hours": duration.String(),
			"rest_hours":    restHours.String(),
			"driver_rate":   rate.String(),
		})
	}
	if loadingHours.IsPositive() {
		c.add(ComponentLoading, country, "", false, loadingHours.Mul(rate), map[string]string{
			"loading_hours": loadingHours.String(),
			"driver_rate":   rate.String(),
		})
	}
	return nil
}

// priceOverhead adds one component per configured overhead category.
func (c *calculator) priceOverhead(segs []Segment) error {
	if !c.cs.IsEnabled(settings.ComponentOverhead) {
		return nil
	}
	distance, duration := totals(segs)
	for _, key := range c.cs.OverheadRates.Keys() {
		rate := c.cs.OverheadRates[key]
		var amount decimal.Decimal
		details := map[string]string{"overhead_rate": rate.String()}
		switch settings.OverheadCategory(key) {
		case settings.OverheadFixed:
			amount = rate
		case settings.OverheadPerKm:
			amount = distance.Mul(rate)
			details["distance_km"] = distance.String()
		case settings.OverheadPerHour:
			amount = duration.Mul(rate)
			details["duration_hours"] = duration.String()
		default:
			return fmt.Errorf("%w: unknown overhead category %q", ErrMissingRate, key)
		}
		c.add(ComponentOverhead, "", key, false, amount, details)
	}
	return nil
}

func (c *calculator) tollRate(country string) (decimal.Decimal, string, bool) {
	if rate, ok := c.tolls.Lookup(country); ok && rate.IsPositive() {
		return rate, "live", true
	}
	rate, ok := c.cs.TollRates.Lookup(country, c.vehicleType)
	return rate, "settings", ok
}

func (c *calculator) firstDriverRate(segs []Segment) (string, decimal.Decimal, bool) {
	for _, seg := range segs {
		if rate, ok := c.cs.DriverRates.Lookup(seg.Country); ok {
			return seg.Country, rate, true
		}
	}
	return "", decimal.Zero, false
}

// add applies the empty-driving and cargo factors, rounds, and appends the
// component. Zero amounts are dropped.
func (c *calculator) add(t ComponentType, country, category string, empty bool, amount decimal.Decimal, details map[string]string) {
	if empty {
		if f, ok := c.cs.EmptyDrivingFactors.Lookup(string(t)); ok {
			amount = amount.Mul(f)
			details["empty_driving_factor"] = f.String()
		}
	}
	if c.cargoType != "" {
		if f, ok := c.cs.CargoFactors.Lookup(c.cargoType, string(cargoFactorKey(t))); ok {
			amount = amount.Mul(f)
			details["cargo_factor"] = f.String()
			details["cargo_type"] = c.cargoType
		}
	}
	amount = types.RoundMoney(amount)
	if !amount.IsPositive() {
		return
	}
	c.components = append(c.components, CostComponent{
		Type:           t,
		Amount:         amount,
		Currency:       c.currency,
		Country:        country,
		Category:       category,
		IsEmptyDriving: empty,
		Details:        details,
	})
}

func (c *calculator) skip(t ComponentType, country, vehicleType string, empty bool) error {
	if c.strict {
		key := country
		if vehicleType != "" {
			key = fmt.Sprintf("%s/%s", country, vehicleType)
		}
		return fmt.Errorf("%w: %s rate for %q", ErrMissingRate, t, key)
	}
	c.skipped = append(c.skipped, SkippedRate{
		Component:      t,
		Country:        country,
		VehicleType:    vehicleType,
		IsEmptyDriving: empty,
	})
	return nil
}

// cargoFactorKey maps derived driver-time components onto the driver cargo factor.
func cargoFactorKey(t ComponentType) ComponentType {
	switch t {
	case ComponentRest, ComponentLoading:
		return ComponentDriver
	}
	return t
}

func totals(segs []Segment) (distance, duration decimal.Decimal) {
	for _, s := range segs {
		distance = distance.Add(s.DistanceKm)
		duration = duration.Add(s.DurationHours)
	}
	return distance, duration
}
