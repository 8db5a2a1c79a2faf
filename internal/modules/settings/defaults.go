// README: Documented default rate tables, persisted as "1.0" when a scope has no active settings.
package settings

import (
	"freightquote/internal/types"
)

const (
	DefaultVehicleType = "truck_40t"
	VehicleTypeVan     = "van"
)

// Default returns a fresh copy of the default settings for scope.
func Default(scope string) *CostSettings {
	d := types.Dec
	return &CostSettings{
		Scope:    scope,
		Currency: types.DefaultCurrency,
		FuelPrices: types.RateMap{
			"DE": d("1.50"),
			"AT": d("1.55"),
			"PL": d("1.40"),
			"CZ": d("1.45"),
			"FR": d("1.70"),
			"NL": d("1.75"),
		},
		TollRates: types.NestedRateMap{
			"DE": {DefaultVehicleType: d("0.35"), VehicleTypeVan: d("0.10")},
			"AT": {DefaultVehicleType: d("0.45"), VehicleTypeVan: d("0.15")},
			"PL": {DefaultVehicleType: d("0.20")},
			"CZ": {DefaultVehicleType: d("0.25")},
			"FR": {DefaultVehicleType: d("0.30"), VehicleTypeVan: d("0.12")},
		},
		DriverRates: types.RateMap{
			"DE": d("35.00"),
			"AT": d("34.00"),
			"PL": d("18.00"),
			"CZ": d("20.00"),
			"FR": d("33.00"),
			"NL": d("36.00"),
		},
		MaintenanceRates: types.RateMap{
			DefaultVehicleType: d("0.12"),
			VehicleTypeVan:     d("0.06"),
		},
		OverheadRates: types.RateMap{
			string(OverheadFixed):   d("50.00"),
			string(OverheadPerKm):   d("0.02"),
			string(OverheadPerHour): d("2.50"),
		},
		EmptyDrivingFactors: types.RateMap{
			string(ComponentFuel):   d("0.85"),
			string(ComponentToll):   d("1.00"),
			string(ComponentDriver): d("1.00"),
		},
		CargoFactors: types.NestedRateMap{
			"hazardous": {
				string(ComponentDriver): d("1.20"),
				string(ComponentToll):   d("1.10"),
			},
			"refrigerated": {
				string(ComponentFuel):        d("1.15"),
				string(ComponentMaintenance): d("1.10"),
			},
		},
		EnabledComponents:  append([]Component(nil), KnownComponents...),
		DefaultConsumption: d("0.30"),
		DefaultVehicleType: DefaultVehicleType,
	}
}
