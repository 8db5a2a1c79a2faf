// README: Costing service resolves settings and collaborators, runs the engine, persists costs and history.
package costing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"freightquote/internal/modules/settings"
	"freightquote/internal/observability/metrics"
	"freightquote/internal/types"
)

const (
	collaboratorToll     = "toll"
	collaboratorLocation = "location"
)

// SettingsProvider is the read side of the settings service.
type SettingsProvider interface {
	GetActive(ctx context.Context, scope string) (*settings.CostSettings, error)
}

// TollRateProvider returns a live per-km toll rate. Failures fall back to the settings table.
type TollRateProvider interface {
	TollRate(ctx context.Context, country, vehicleType string) (decimal.Decimal, error)
}

// RouteResolver splits an origin/destination pair into per-country segments.
type RouteResolver interface {
	Segments(ctx context.Context, origin, destination string) ([]Segment, error)
}

type Config struct {
	Scope    string
	Strict   bool
	Validity time.Duration
}

type Service struct {
	store    Repository
	settings SettingsProvider
	tolls    TollRateProvider
	routes   RouteResolver
	logger   *zap.Logger
	cfg      Config
	now      func() time.Time
}

// NewService wires the costing service. tolls and routes may be nil.
func NewService(store Repository, sp SettingsProvider, tolls TollRateProvider, routes RouteResolver, logger *zap.Logger, cfg Config) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Scope == "" {
		cfg.Scope = settings.DefaultScope
	}
	if cfg.Validity <= 0 {
		cfg.Validity = DefaultValidity
	}
	return &Service{
		store:    store,
		settings: sp,
		tolls:    tolls,
		routes:   routes,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

type CalculateCommand struct {
	RouteID types.ID
	// Segments take precedence over Origin/Destination.
	Segments    []Segment
	Origin      string
	Destination string
	EmptyLegs   []Segment
	Vehicle     *VehicleSpec
	Cargo       *CargoSpec
	// Scope selects whose active settings apply; empty uses the configured scope.
	Scope string
	// Settings pins the calculation to explicit settings instead of the active version.
	Settings *settings.CostSettings

	IncludeEmptyDriving     bool
	IncludeCountryBreakdown bool
	Estimated               bool
	Validity                time.Duration
	// Strict overrides the configured strict mode when set.
	Strict *bool
}

// Calculate prices a route and persists the resulting (non-final) cost.
func (s *Service) Calculate(ctx context.Context, cmd CalculateCommand) (*Cost, error) {
	started := s.now()
	method := string(MethodStandard)
	if cmd.IncludeCountryBreakdown {
		method = string(MethodDetailed)
	}

	cost, fallbacks, err := s.calculate(ctx, cmd)
	if err != nil {
		metrics.ObserveCostCalculation(method, metrics.ResultError, s.now().Sub(started))
		return nil, err
	}
	cost.ID = types.ID(uuid.NewString())
	cost.Fallbacks = fallbacks
	if err := s.store.SaveCost(ctx, cost); err != nil {
		metrics.ObserveCostCalculation(method, metrics.ResultError, s.now().Sub(started))
		return nil, fmt.Errorf("save cost: %w", err)
	}

	result := metrics.ResultSuccess
	if len(fallbacks) > 0 {
		result = metrics.ResultFallback
	}
	metrics.ObserveCostCalculation(string(cost.Method), result, s.now().Sub(started))
	for _, sk := range cost.Breakdown.Skipped {
		metrics.ObserveSkippedRate(string(sk.Component))
		s.logger.Info("cost component skipped: no rate configured",
			zap.String("cost_id", string(cost.ID)),
			zap.String("component", string(sk.Component)),
			zap.String("country", sk.Country),
			zap.String("vehicle_type", sk.VehicleType))
	}
	s.logger.Info("cost calculated",
		zap.String("cost_id", string(cost.ID)),
		zap.String("route_id", string(cost.RouteID)),
		zap.String("total", cost.Breakdown.TotalCost.String()),
		zap.String("settings_version", cost.SettingsVersion),
		zap.String("method", string(cost.Method)))
	return cost, nil
}

func (s *Service) calculate(ctx context.Context, cmd CalculateCommand) (*Cost, []string, error) {
	cs := cmd.Settings
	if cs == nil {
		scope := cmd.Scope
		if scope == "" {
			scope = s.cfg.Scope
		}
		active, err := s.settings.GetActive(ctx, scope)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrNoSettings, err)
		}
		cs = active
	} else if err := cs.Validate(); err != nil {
		return nil, nil, err
	}

	segments := cmd.Segments
	if len(segments) == 0 && cmd.Origin != "" && cmd.Destination != "" {
		resolved, err := s.resolveRoute(ctx, cmd.Origin, cmd.Destination)
		if err != nil {
			return nil, nil, err
		}
		segments = resolved
	}
	routeID := cmd.RouteID
	if routeID == "" {
		routeID = types.ID(uuid.NewString())
	}

	strict := s.cfg.Strict
	if cmd.Strict != nil {
		strict = *cmd.Strict
	}
	validity := cmd.Validity
	if validity <= 0 {
		validity = s.cfg.Validity
	}

	in := Input{
		RouteID:                 routeID,
		Segments:                segments,
		EmptyLegs:               cmd.EmptyLegs,
		Vehicle:                 cmd.Vehicle,
		Cargo:                   cmd.Cargo,
		Settings:                cs,
		IncludeEmptyDriving:     cmd.IncludeEmptyDriving,
		IncludeCountryBreakdown: cmd.IncludeCountryBreakdown,
		Estimated:               cmd.Estimated,
		Validity:                validity,
		Strict:                  strict,
	}
	var fallbacks []string
	if len(segments) > 0 && cs.IsEnabled(settings.ComponentToll) {
		in.TollOverrides, fallbacks = s.liveTolls(ctx, in)
	}
	cost, err := Calculate(in, s.now())
	if err != nil {
		return nil, nil, err
	}
	return cost, fallbacks, nil
}

func (s *Service) resolveRoute(ctx context.Context, origin, destination string) ([]Segment, error) {
	if s.routes == nil {
		return nil, fmt.Errorf("%w: no location collaborator configured", ErrNoRoute)
	}
	segs, err := s.routes.Segments(ctx, origin, destination)
	if err != nil {
		metrics.ObserveCollaborator(collaboratorLocation, metrics.ResultError)
		s.logger.Warn("route segments unavailable",
			zap.String("origin", origin),
			zap.String("destination", destination),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrNoRoute, types.NewCollaboratorError(collaboratorLocation, err))
	}
	metrics.ObserveCollaborator(collaboratorLocation, metrics.ResultSuccess)
	return segs, nil
}

// liveTolls asks the toll collaborator once per distinct country. A failed
// lookup leaves the country to the settings table and is reported as a fallback.
func (s *Service) liveTolls(ctx context.Context, in Input) (types.RateMap, []string) {
	if s.tolls == nil {
		return nil, nil
	}
	vehicleType := in.Settings.DefaultVehicleType
	if in.Vehicle != nil && in.Vehicle.Type != "" {
		vehicleType = in.Vehicle.Type
	}
	legs := append([]Segment(nil), in.Segments...)
	if in.IncludeEmptyDriving {
		legs = append(legs, in.EmptyLegs...)
	}

	rates := make(types.RateMap)
	var fallbacks []string
	seen := make(map[string]bool)
	for _, seg := range legs {
		if seen[seg.Country] {
			continue
		}
		seen[seg.Country] = true
		rate, err := s.tolls.TollRate(ctx, seg.Country, vehicleType)
		if err != nil || !rate.IsPositive() {
			metrics.ObserveCollaborator(collaboratorToll, metrics.ResultFallback)
			s.logger.Warn("toll rate lookup failed, using settings table",
				zap.String("country", seg.Country),
				zap.String("vehicle_type", vehicleType),
				zap.Bool("fallback", true),
				zap.Error(err))
			fallbacks = append(fallbacks, collaboratorToll+":"+seg.Country)
			continue
		}
		metrics.ObserveCollaborator(collaboratorToll, metrics.ResultSuccess)
		rates[seg.Country] = rate
	}
	return rates, fallbacks
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Cost, error) {
	return s.store.GetCost(ctx, id)
}

// Finalize marks the cost final and appends its history entry in one store write.
// Finalizing an already final cost is a no-op that returns the stored cost and a nil entry.
func (s *Service) Finalize(ctx context.Context, id types.ID) (*Cost, *HistoryEntry, error) {
	cost, err := s.store.GetCost(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if cost.IsFinal {
		return cost, nil, nil
	}
	used, err := settings.FromSnapshot(cost.settingsSnapshot)
	if err != nil {
		return nil, nil, err
	}
	entry, err := s.newHistoryEntry(cost, used)
	if err != nil {
		return nil, nil, err
	}
	now := s.now().UTC()
	ok, err := s.store.FinalizeWithHistory(ctx, id, now, entry)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		cur, err := s.store.GetCost(ctx, id)
		return cur, nil, err
	}
	cost.IsFinal = true
	cost.FinalizedAt = &now
	s.logHistory(entry)
	return cost, entry, nil
}

// Record appends an immutable history entry embedding the full settings used.
func (s *Service) Record(ctx context.Context, cost *Cost, used *settings.CostSettings) (*HistoryEntry, error) {
	entry, err := s.newHistoryEntry(cost, used)
	if err != nil {
		return nil, err
	}
	if err := s.store.AppendHistory(ctx, entry); err != nil {
		return nil, fmt.Errorf("append cost history: %w", err)
	}
	s.logHistory(entry)
	return entry, nil
}

func (s *Service) newHistoryEntry(cost *Cost, used *settings.CostSettings) (*HistoryEntry, error) {
	if cost == nil || used == nil {
		return nil, types.Invalid("cost and settings are required to record history")
	}
	snapshot, err := used.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("snapshot settings: %w", err)
	}
	return &HistoryEntry{
		ID:               types.ID(uuid.NewString()),
		RouteID:          cost.RouteID,
		CostID:           cost.ID,
		CalculationDate:  cost.CalculatedAt,
		TotalCost:        cost.Breakdown.TotalCost,
		Currency:         cost.Breakdown.Currency,
		Method:           cost.Method,
		SettingsScope:    used.Scope,
		SettingsVersion:  used.Version,
		Components:       append([]CostComponent(nil), cost.Breakdown.Components...),
		SettingsSnapshot: snapshot,
		RecordedAt:       s.now().UTC(),
	}, nil
}

func (s *Service) logHistory(entry *HistoryEntry) {
	s.logger.Info("cost history recorded",
		zap.String("cost_id", string(entry.CostID)),
		zap.String("route_id", string(entry.RouteID)),
		zap.Int64("seq", entry.Seq))
}

// GetHistory lists the recorded calculations of a route, newest first.
func (s *Service) GetHistory(ctx context.Context, routeID types.ID) ([]*HistoryEntry, error) {
	return s.store.History(ctx, routeID)
}

// RecalculateNeeded compares the cost against the clock and the currently active settings version.
func (s *Service) RecalculateNeeded(ctx context.Context, cost *Cost) (bool, error) {
	active, err := s.settings.GetActive(ctx, cost.SettingsScope)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return true, nil
		}
		return false, err
	}
	return cost.RecalculateNeeded(s.now(), active.Version), nil
}
