// README: Cost aggregate, route segments, cost components and cost history entries.
package costing

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"freightquote/internal/types"
)

type ComponentType string

const (
	ComponentFuel        ComponentType = "fuel"
	ComponentToll        ComponentType = "toll"
	ComponentDriver      ComponentType = "driver"
	ComponentMaintenance ComponentType = "maintenance"
	ComponentOverhead    ComponentType = "overhead"
	ComponentRest        ComponentType = "rest"
	ComponentLoading     ComponentType = "loading"
)

// IsDistanceBased reports whether the component belongs to subtotal_distance_based.
func (t ComponentType) IsDistanceBased() bool {
	switch t {
	case ComponentFuel, ComponentToll, ComponentMaintenance:
		return true
	}
	return false
}

type Method string

const (
	MethodStandard  Method = "standard"
	MethodDetailed  Method = "detailed"
	MethodEstimated Method = "estimated"
)

// DefaultValidity is how long a calculated cost stays usable without recalculation.
const DefaultValidity = 24 * time.Hour

var (
	ErrNoSegments     = fmt.Errorf("%w: route segments are empty", types.ErrValidation)
	ErrInvalidSegment = fmt.Errorf("%w: invalid route segment", types.ErrValidation)
	ErrMissingRate    = fmt.Errorf("%w: no rate configured", types.ErrValidation)
	ErrNoSettings     = fmt.Errorf("%w: cost settings unavailable", types.ErrValidation)
	ErrNoRoute        = fmt.Errorf("%w: route segment data unavailable", types.ErrValidation)
	ErrNotFound       = fmt.Errorf("cost %w", types.ErrNotFound)
)

// Segment is one per-country leg of a route.
type Segment struct {
	Country       string          `json:"country"`
	DistanceKm    decimal.Decimal `json:"distance_km"`
	DurationHours decimal.Decimal `json:"duration_hours"`
}

type VehicleSpec struct {
	Type string `json:"type"`
	// ConsumptionLPerKm overrides the settings default when positive.
	ConsumptionLPerKm decimal.Decimal `json:"consumption_l_per_km"`
}

type CargoSpec struct {
	Type         string          `json:"type"`
	WeightKg     decimal.Decimal `json:"weight_kg"`
	LoadingHours decimal.Decimal `json:"loading_hours"`
}

// CostComponent is one priced line of a breakdown. Amount is always > 0.
type CostComponent struct {
	Type           ComponentType     `json:"type"`
	Amount         decimal.Decimal   `json:"amount"`
	Currency       string            `json:"currency"`
	Country        string            `json:"country,omitempty"`
	Category       string            `json:"category,omitempty"`
	IsEmptyDriving bool              `json:"is_empty_driving"`
	Details        map[string]string `json:"details,omitempty"`
}

// SkippedRate records a segment left unpriced for one component because no rate was configured.
type SkippedRate struct {
	Component      ComponentType `json:"component"`
	Country        string        `json:"country,omitempty"`
	VehicleType    string        `json:"vehicle_type,omitempty"`
	IsEmptyDriving bool          `json:"is_empty_driving"`
}

// Cost is a calculated breakdown tied to the settings version that produced it.
type Cost struct {
	ID              types.ID      `json:"id"`
	RouteID         types.ID      `json:"route_id"`
	Segments        []Segment     `json:"segments"`
	EmptyLegs       []Segment     `json:"empty_legs,omitempty"`
	Vehicle         *VehicleSpec  `json:"vehicle,omitempty"`
	Cargo           *CargoSpec    `json:"cargo,omitempty"`
	Breakdown       CostBreakdown `json:"breakdown"`
	SettingsScope   string        `json:"settings_scope"`
	SettingsVersion string        `json:"settings_version"`
	Method          Method        `json:"calculation_method"`
	CalculatedAt    time.Time     `json:"calculated_at"`
	ValidityPeriod  time.Duration `json:"validity_period"`
	IsFinal         bool          `json:"is_final"`
	FinalizedAt     *time.Time    `json:"finalized_at,omitempty"`
	// Fallbacks lists optional collaborators that failed and were replaced by settings values, e.g. "toll:DE".
	Fallbacks []string `json:"fallbacks,omitempty"`

	// settingsSnapshot is the exact settings used, kept for the history entry written on finalization.
	settingsSnapshot json.RawMessage
}

func (c *Cost) Total() types.Money {
	return types.NewMoney(c.Breakdown.TotalCost, c.Breakdown.Currency)
}

// RecalculateNeeded is true once the validity period has elapsed or the settings
// version used is no longer the active one.
func (c *Cost) RecalculateNeeded(now time.Time, activeVersion string) bool {
	if now.Sub(c.CalculatedAt) > c.ValidityPeriod {
		return true
	}
	return activeVersion != c.SettingsVersion
}

// SettingsSnapshot returns the serialized settings the cost was calculated with.
func (c *Cost) SettingsSnapshot() json.RawMessage {
	return c.settingsSnapshot
}

// HistoryEntry is an immutable record of a finalized calculation.
type HistoryEntry struct {
	ID               types.ID        `json:"id"`
	Seq              int64           `json:"seq"`
	RouteID          types.ID        `json:"route_id"`
	CostID           types.ID        `json:"cost_id"`
	CalculationDate  time.Time       `json:"calculation_date"`
	TotalCost        decimal.Decimal `json:"total_cost"`
	Currency         string          `json:"currency"`
	Method           Method          `json:"calculation_method"`
	SettingsScope    string          `json:"settings_scope"`
	SettingsVersion  string          `json:"settings_version"`
	Components       []CostComponent `json:"cost_components"`
	SettingsSnapshot json.RawMessage `json:"settings_snapshot"`
	RecordedAt       time.Time       `json:"recorded_at"`
}
