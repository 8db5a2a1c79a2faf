// README: Versioned cost settings (rate tables) and their validation rules.
package settings

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/shopspring/decimal"

	"freightquote/internal/types"
)

// DefaultScope is the single scope used when settings are treated as global.
const DefaultScope = "global"

var scopePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]{0,63}$`)

// ValidateScope accepts 1-64 letters, digits, '_', '.', ':' or '-', starting with a letter or digit.
func ValidateScope(scope string) error {
	if !scopePattern.MatchString(scope) {
		return fmt.Errorf("%w: %q", ErrInvalidScope, scope)
	}
	return nil
}

type Component string

const (
	ComponentFuel        Component = "fuel"
	ComponentToll        Component = "toll"
	ComponentDriver      Component = "driver"
	ComponentMaintenance Component = "maintenance"
	ComponentOverhead    Component = "overhead"
)

// KnownComponents lists every component that can be enabled, in calculation order.
var KnownComponents = []Component{
	ComponentFuel,
	ComponentToll,
	ComponentDriver,
	ComponentMaintenance,
	ComponentOverhead,
}

func (c Component) Valid() bool {
	for _, k := range KnownComponents {
		if k == c {
			return true
		}
	}
	return false
}

type OverheadCategory string

const (
	OverheadFixed   OverheadCategory = "fixed"
	OverheadPerKm   OverheadCategory = "per_km"
	OverheadPerHour OverheadCategory = "per_hour"
)

var overheadCategories = []OverheadCategory{OverheadFixed, OverheadPerKm, OverheadPerHour}

// emptyDrivingKeys are the cost types an empty-driving factor may be configured for.
var emptyDrivingKeys = map[string]bool{
	string(ComponentFuel):   true,
	string(ComponentToll):   true,
	string(ComponentDriver): true,
}

var (
	ErrInvalidSettings = fmt.Errorf("%w: invalid cost settings", types.ErrValidation)
	ErrNotFound        = fmt.Errorf("cost settings %w", types.ErrNotFound)
	ErrInvalidScope    = fmt.Errorf("%w: invalid settings scope", types.ErrValidation)
)

// CostSettings is one immutable version of every rate table for a scope.
// Only Active, ModifiedAt and ModifiedBy change after the row is written.
type CostSettings struct {
	ID       types.ID `json:"id"`
	Scope    string   `json:"scope"`
	Version  string   `json:"version"`
	Active   bool     `json:"active"`
	Currency string   `json:"currency"`

	FuelPrices          types.RateMap       `json:"fuel_prices"`
	TollRates           types.NestedRateMap `json:"toll_rates"`
	DriverRates         types.RateMap       `json:"driver_rates"`
	MaintenanceRates    types.RateMap       `json:"maintenance_rates"`
	OverheadRates       types.RateMap       `json:"overhead_rates"`
	EmptyDrivingFactors types.RateMap       `json:"empty_driving_factors"`
	CargoFactors        types.NestedRateMap `json:"cargo_factors"`
	EnabledComponents   []Component         `json:"enabled_components"`

	// DefaultConsumption is litres per km used when no vehicle spec is supplied.
	DefaultConsumption decimal.Decimal `json:"default_consumption"`
	DefaultVehicleType string          `json:"default_vehicle_type"`

	CreatedAt  time.Time `json:"created_at"`
	CreatedBy  string    `json:"created_by"`
	ModifiedAt time.Time `json:"modified_at"`
	ModifiedBy string    `json:"modified_by"`
}

func (s *CostSettings) IsEnabled(c Component) bool {
	for _, e := range s.EnabledComponents {
		if e == c {
			return true
		}
	}
	return false
}

// ParsedVersion returns the version as a comparable value.
func (s *CostSettings) ParsedVersion() (types.Version, error) {
	return types.ParseVersion(s.Version)
}

// Validate checks that every rate is strictly positive and every key is known.
func (s *CostSettings) Validate() error {
	v := types.NewValidationError()
	if s.Currency == "" {
		v.Add("currency is required")
	}
	checkRates(v, "fuel_prices", s.FuelPrices)
	for _, country := range s.TollRates.Keys() {
		checkRates(v, "toll_rates."+country, s.TollRates[country])
	}
	checkRates(v, "driver_rates", s.DriverRates)
	checkRates(v, "maintenance_rates", s.MaintenanceRates)
	checkRates(v, "overhead_rates", s.OverheadRates)
	for _, k := range s.OverheadRates.Keys() {
		if !validOverheadCategory(OverheadCategory(k)) {
			v.Add("overhead_rates: unknown category %q", k)
		}
	}
	checkRates(v, "empty_driving_factors", s.EmptyDrivingFactors)
	for _, k := range s.EmptyDrivingFactors.Keys() {
		if !emptyDrivingKeys[k] {
			v.Add("empty_driving_factors: unknown cost type %q", k)
		}
	}
	for _, cargo := range s.CargoFactors.Keys() {
		checkRates(v, "cargo_factors."+cargo, s.CargoFactors[cargo])
		for _, k := range s.CargoFactors[cargo].Keys() {
			if !Component(k).Valid() {
				v.Add("cargo_factors.%s: unknown component %q", cargo, k)
			}
		}
	}
	seen := make(map[Component]bool, len(s.EnabledComponents))
	for _, c := range s.EnabledComponents {
		if !c.Valid() {
			v.Add("enabled_components: unknown component %q", c)
		}
		if seen[c] {
			v.Add("enabled_components: duplicate component %q", c)
		}
		seen[c] = true
	}
	if !s.DefaultConsumption.IsPositive() {
		v.Add("default_consumption must be > 0")
	}
	if s.DefaultVehicleType == "" {
		v.Add("default_vehicle_type is required")
	}
	if err := v.OrNil(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	return nil
}

func checkRates(v *types.ValidationError, name string, m types.RateMap) {
	for _, k := range m.Keys() {
		if !m[k].IsPositive() {
			v.Add("%s.%s must be > 0, got %s", name, k, m[k].String())
		}
	}
}

func validOverheadCategory(c OverheadCategory) bool {
	for _, k := range overheadCategories {
		if k == c {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can never mutate a stored version.
func (s *CostSettings) Clone() *CostSettings {
	if s == nil {
		return nil
	}
	c := *s
	c.FuelPrices = s.FuelPrices.Clone()
	c.TollRates = s.TollRates.Clone()
	c.DriverRates = s.DriverRates.Clone()
	c.MaintenanceRates = s.MaintenanceRates.Clone()
	c.OverheadRates = s.OverheadRates.Clone()
	c.EmptyDrivingFactors = s.EmptyDrivingFactors.Clone()
	c.CargoFactors = s.CargoFactors.Clone()
	c.EnabledComponents = append([]Component(nil), s.EnabledComponents...)
	return &c
}

// Snapshot serializes the full settings for embedding into history records.
func (s *CostSettings) Snapshot() (json.RawMessage, error) {
	return json.Marshal(s)
}

// FromSnapshot restores settings previously produced by Snapshot.
func FromSnapshot(raw json.RawMessage) (*CostSettings, error) {
	var s CostSettings
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("settings snapshot: %w", err)
	}
	return &s, nil
}

// nextVersion computes floor(current)+1 for the newest existing version (or "1.0" when none).
func nextVersion(latest *CostSettings) (string, error) {
	if latest == nil {
		return types.InitialVersion.String(), nil
	}
	v, err := latest.ParsedVersion()
	if err != nil {
		return "", err
	}
	return v.NextMajor().String(), nil
}
