package costing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"freightquote/internal/modules/settings"
	"freightquote/internal/types"
)

var testNow = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return types.Dec(s) }

func seg(country, km, hours string) Segment {
	return Segment{Country: country, DistanceKm: d(km), DurationHours: d(hours)}
}

func defaults() *settings.CostSettings {
	cs := settings.Default(settings.DefaultScope)
	cs.Version = "1.0"
	return cs
}

func only(cs *settings.CostSettings, comps ...settings.Component) *settings.CostSettings {
	cs.EnabledComponents = comps
	return cs
}

func componentsOf(c *Cost, t ComponentType) []CostComponent {
	var out []CostComponent
	for _, cc := range c.Breakdown.Components {
		if cc.Type == t {
			out = append(out, cc)
		}
	}
	return out
}

func assertMoney(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.Equal(t, want, got.StringFixed(2), msgAndArgs...)
}

func TestCalculate_FuelFormula(t *testing.T) {
	cs := only(defaults(), settings.ComponentFuel)
	cs.FuelPrices = types.RateMap{"DE": d("1.50")}

	cost, err := Calculate(Input{
		Segments: []Segment{seg("DE", "100", "2")},
		Vehicle:  &VehicleSpec{ConsumptionLPerKm: d("0.30")},
		Settings: cs,
	}, testNow)
	require.NoError(t, err)

	fuel := componentsOf(cost, ComponentFuel)
	require.Len(t, fuel, 1)
	assertMoney(t, "45.00", fuel[0].Amount)
	assert.Equal(t, "DE", fuel[0].Country)
	assertMoney(t, "45.00", cost.Breakdown.TotalCost)
	assert.Equal(t, "1.5", fuel[0].Details["fuel_price"])
}

func TestCalculate_DefaultSettingsSingleSegment(t *testing.T) {
	cost, err := Calculate(Input{
		RouteID:  "r-1",
		Segments: []Segment{seg("DE", "100", "2")},
		Settings: defaults(),
	}, testNow)
	require.NoError(t, err)

	b := cost.Breakdown
	assertMoney(t, "45.00", b.Amount(ComponentFuel))
	assertMoney(t, "35.00", b.Amount(ComponentToll))
	assertMoney(t, "70.00", b.Amount(ComponentDriver))
	assertMoney(t, "12.00", b.Amount(ComponentMaintenance))
	assertMoney(t, "57.00", b.Amount(ComponentOverhead))
	assert.Empty(t, componentsOf(cost, ComponentRest), "2h of driving needs no rest")

	assertMoney(t, "92.00", b.SubtotalDistanceBased)
	assertMoney(t, "127.00", b.SubtotalTimeBased)
	assertMoney(t, "0.00", b.SubtotalEmptyDriving)
	assertMoney(t, "219.00", b.TotalCost)
	require.NoError(t, b.Verify())

	assert.Equal(t, types.ID("r-1"), cost.RouteID)
	assert.Equal(t, MethodStandard, cost.Method)
	assert.Equal(t, "1.0", cost.SettingsVersion)
	assert.Equal(t, DefaultValidity, cost.ValidityPeriod)
	assert.Equal(t, settings.DefaultVehicleType, cost.Vehicle.Type)
	assert.NotEmpty(t, cost.SettingsSnapshot())
	assert.Empty(t, cost.ID)
}

func TestCalculate_MissingFuelRateSkipsOnlyFuel(t *testing.T) {
	cs := defaults()
	cs.TollRates["CH"] = types.RateMap{settings.DefaultVehicleType: d("0.40")}
	cs.DriverRates["CH"] = d("40.00")

	cost, err := Calculate(Input{
		Segments:                []Segment{seg("DE", "100", "2"), seg("CH", "50", "1")},
		Settings:                cs,
		IncludeCountryBreakdown: true,
	}, testNow)
	require.NoError(t, err)

	b := cost.Breakdown
	_, hasCHFuel := b.ByType[ComponentFuel]["CH"]
	assert.False(t, hasCHFuel)
	assertMoney(t, "45.00", b.ByType[ComponentFuel]["DE"])
	assertMoney(t, "20.00", b.ByType[ComponentToll]["CH"])
	assertMoney(t, "40.00", b.ByType[ComponentDriver]["CH"])

	require.Len(t, b.Skipped, 1)
	assert.Equal(t, SkippedRate{Component: ComponentFuel, Country: "CH"}, b.Skipped[0])
	require.NoError(t, b.Verify())
}

func TestCalculate_StrictModeFailsOnMissingRate(t *testing.T) {
	_, err := Calculate(Input{
		Segments: []Segment{seg("DE", "100", "2"), seg("CH", "50", "1")},
		Settings: defaults(),
		Strict:   true,
	}, testNow)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingRate)
	assert.ErrorIs(t, err, types.ErrValidation)
	assert.Contains(t, err.Error(), `fuel rate for "CH"`)
}

func TestCalculate_MissingTollRateForVehicleType(t *testing.T) {
	cost, err := Calculate(Input{
		Segments: []Segment{seg("PL", "100", "2")},
		Vehicle:  &VehicleSpec{Type: settings.VehicleTypeVan},
		Settings: only(defaults(), settings.ComponentToll, settings.ComponentMaintenance),
	}, testNow)
	require.NoError(t, err)
	assert.Empty(t, componentsOf(cost, ComponentToll))
	require.Len(t, cost.Breakdown.Skipped, 1)
	assert.Equal(t, "van", cost.Breakdown.Skipped[0].VehicleType)
	assertMoney(t, "6.00", cost.Breakdown.Amount(ComponentMaintenance))
}

func TestCalculate_CountryBreakdownAndMethod(t *testing.T) {
	in := Input{
		Segments: []Segment{seg("DE", "300", "3.5"), seg("AT", "200", "2.5")},
		Settings: only(defaults(), settings.ComponentFuel),
	}

	plain, err := Calculate(in, testNow)
	require.NoError(t, err)
	assert.Equal(t, MethodStandard, plain.Method)
	require.Len(t, plain.Breakdown.ByType[ComponentFuel], 1)
	// 300*0.3*1.50 + 200*0.3*1.55
	assertMoney(t, "228.00", plain.Breakdown.ByType[ComponentFuel][""])

	in.IncludeCountryBreakdown = true
	detailed, err := Calculate(in, testNow)
	require.NoError(t, err)
	assert.Equal(t, MethodDetailed, detailed.Method)
	assertMoney(t, "135.00", detailed.Breakdown.ByType[ComponentFuel]["DE"])
	assertMoney(t, "93.00", detailed.Breakdown.ByType[ComponentFuel]["AT"])
	assert.True(t, plain.Breakdown.TotalCost.Equal(detailed.Breakdown.TotalCost))

	in.Estimated = true
	est, err := Calculate(in, testNow)
	require.NoError(t, err)
	assert.Equal(t, MethodEstimated, est.Method)
}

func TestCalculate_RestAndLoadingTime(t *testing.T) {
	cost, err := Calculate(Input{
		Segments: []Segment{seg("DE", "500", "6"), seg("AT", "300", "3")},
		Cargo:    &CargoSpec{Type: "general", LoadingHours: d("2")},
		Settings: only(defaults(), settings.ComponentDriver),
	}, testNow)
	require.NoError(t, err)

	// floor(9 / 4.5) = 2 blocks of 0.75h at the DE driver rate.
	rest := componentsOf(cost, ComponentRest)
	require.Len(t, rest, 1)
	assertMoney(t, "52.50", rest[0].Amount)
	assert.Equal(t, "1.5", rest[0].Details["rest_hours"])

	loading := componentsOf(cost, ComponentLoading)
	require.Len(t, loading, 1)
	assertMoney(t, "70.00", loading[0].Amount)

	// driver: 6*35 + 3*34 = 312
	assertMoney(t, "312.00", cost.Breakdown.Amount(ComponentDriver))
	assertMoney(t, "434.50", cost.Breakdown.SubtotalTimeBased)
	assertMoney(t, "0.00", cost.Breakdown.SubtotalDistanceBased)
}

func TestCalculate_CargoFactors(t *testing.T) {
	cost, err := Calculate(Input{
		Segments: []Segment{seg("DE", "100", "2")},
		Cargo:    &CargoSpec{Type: "hazardous", LoadingHours: d("1")},
		Settings: only(defaults(), settings.ComponentToll, settings.ComponentDriver, settings.ComponentFuel),
	}, testNow)
	require.NoError(t, err)

	b := cost.Breakdown
	assertMoney(t, "38.50", b.Amount(ComponentToll))
	assertMoney(t, "84.00", b.Amount(ComponentDriver))
	assertMoney(t, "42.00", b.Amount(ComponentLoading))
	assertMoney(t, "45.00", b.Amount(ComponentFuel), "hazardous cargo has no fuel factor")
	assert.Equal(t, "1.2", componentsOf(cost, ComponentDriver)[0].Details["cargo_factor"])
}

func TestCalculate_EmptyDriving(t *testing.T) {
	in := Input{
		Segments:            []Segment{seg("DE", "100", "2")},
		EmptyLegs:           []Segment{seg("DE", "50", "1")},
		Settings:            only(defaults(), settings.ComponentFuel, settings.ComponentToll, settings.ComponentDriver, settings.ComponentMaintenance),
		IncludeEmptyDriving: true,
	}
	cost, err := Calculate(in, testNow)
	require.NoError(t, err)

	b := cost.Breakdown
	// fuel 22.50*0.85, toll 17.50, driver 35.00, maintenance 6.00
	assertMoney(t, "19.13", b.EmptyDriving[ComponentFuel][""])
	assertMoney(t, "17.50", b.EmptyDriving[ComponentToll][""])
	assertMoney(t, "35.00", b.EmptyDriving[ComponentDriver][""])
	assertMoney(t, "6.00", b.EmptyDriving[ComponentMaintenance][""])
	assertMoney(t, "77.63", b.SubtotalEmptyDriving)
	assertMoney(t, "162.00", b.SubtotalDistanceBased.Add(b.SubtotalTimeBased))
	assertMoney(t, "239.63", b.TotalCost)
	require.NoError(t, b.Verify())
	assert.Len(t, cost.EmptyLegs, 1)

	for _, c := range b.Components {
		if c.IsEmptyDriving {
			assert.NotEqual(t, ComponentRest, c.Type)
			assert.NotEqual(t, ComponentOverhead, c.Type)
		}
	}

	in.IncludeEmptyDriving = false
	without, err := Calculate(in, testNow)
	require.NoError(t, err)
	assert.Nil(t, without.Breakdown.EmptyDriving)
	assert.Nil(t, without.EmptyLegs)
	assertMoney(t, "162.00", without.Breakdown.TotalCost)
}

func TestCalculate_LiveTollOverride(t *testing.T) {
	cost, err := Calculate(Input{
		Segments:      []Segment{seg("DE", "100", "2"), seg("AT", "100", "2")},
		Settings:      only(defaults(), settings.ComponentToll),
		TollOverrides: types.RateMap{"DE": d("0.50")},
	}, testNow)
	require.NoError(t, err)

	tolls := componentsOf(cost, ComponentToll)
	require.Len(t, tolls, 2)
	assertMoney(t, "50.00", tolls[0].Amount)
	assert.Equal(t, "live", tolls[0].Details["rate_source"])
	assertMoney(t, "45.00", tolls[1].Amount)
	assert.Equal(t, "settings", tolls[1].Details["rate_source"])
}

func TestCalculate_ZeroDurationDropsDriverComponent(t *testing.T) {
	cost, err := Calculate(Input{
		Segments: []Segment{seg("DE", "10", "0")},
		Settings: only(defaults(), settings.ComponentDriver, settings.ComponentFuel),
	}, testNow)
	require.NoError(t, err)
	assert.Empty(t, componentsOf(cost, ComponentDriver))
	for _, c := range cost.Breakdown.Components {
		assert.True(t, c.Amount.IsPositive())
	}
}

func TestCalculate_Validation(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		want error
	}{
		{"no settings", Input{Segments: []Segment{seg("DE", "1", "1")}}, ErrNoSettings},
		{"no segments", Input{Settings: defaults()}, ErrNoSegments},
		{"zero distance", Input{Settings: defaults(), Segments: []Segment{seg("DE", "0", "1")}}, ErrInvalidSegment},
		{"negative duration", Input{Settings: defaults(), Segments: []Segment{seg("DE", "5", "-1")}}, ErrInvalidSegment},
		{"missing country", Input{Settings: defaults(), Segments: []Segment{seg("", "5", "1")}}, ErrInvalidSegment},
		{"bad empty leg", Input{
			Settings:            defaults(),
			Segments:            []Segment{seg("DE", "5", "1")},
			EmptyLegs:           []Segment{seg("DE", "-5", "1")},
			IncludeEmptyDriving: true,
		}, ErrInvalidSegment},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Calculate(tt.in, testNow)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, types.ErrValidation)
		})
	}
}

func TestCalculate_Idempotent(t *testing.T) {
	in := Input{
		Segments:                []Segment{seg("DE", "412.7", "5.1"), seg("PL", "233.3", "3.2")},
		EmptyLegs:               []Segment{seg("PL", "80", "1.1")},
		Cargo:                   &CargoSpec{Type: "refrigerated", LoadingHours: d("0.5")},
		Settings:                defaults(),
		IncludeEmptyDriving:     true,
		IncludeCountryBreakdown: true,
	}
	a, err := Calculate(in, testNow)
	require.NoError(t, err)
	b, err := Calculate(in, testNow)
	require.NoError(t, err)

	assert.Equal(t, a.Breakdown, b.Breakdown)
	require.NoError(t, a.Breakdown.Verify())

	rebuilt := a.Breakdown
	rebuilt.Recompute(true)
	assert.True(t, rebuilt.TotalCost.Equal(a.Breakdown.TotalCost))
}

func TestBreakdownVerifyDetectsTampering(t *testing.T) {
	cost, err := Calculate(Input{Segments: []Segment{seg("DE", "100", "2")}, Settings: defaults()}, testNow)
	require.NoError(t, err)

	b := cost.Breakdown
	b.TotalCost = b.TotalCost.Add(d("0.01"))
	assert.ErrorIs(t, b.Verify(), types.ErrValidation)
}

func TestCost_RecalculateNeeded(t *testing.T) {
	c := &Cost{CalculatedAt: testNow, ValidityPeriod: time.Hour, SettingsVersion: "1.0"}
	assert.False(t, c.RecalculateNeeded(testNow.Add(30*time.Minute), "1.0"))
	assert.True(t, c.RecalculateNeeded(testNow.Add(2*time.Hour), "1.0"))
	assert.True(t, c.RecalculateNeeded(testNow, "2.0"))
}
