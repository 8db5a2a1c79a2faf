package costing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"freightquote/internal/modules/settings"
	"freightquote/internal/testutil"
	"freightquote/internal/types"
)

type fakeTolls struct {
	rates map[string]decimal.Decimal
	err   error
	calls []string
}

func (f *fakeTolls) TollRate(_ context.Context, country, vehicleType string) (decimal.Decimal, error) {
	f.calls = append(f.calls, country+"/"+vehicleType)
	if f.err != nil {
		return decimal.Zero, f.err
	}
	r, ok := f.rates[country]
	if !ok {
		return decimal.Zero, errors.New("no rate")
	}
	return r, nil
}

type fakeRoutes struct {
	segs []Segment
	err  error
}

func (f *fakeRoutes) Segments(context.Context, string, string) ([]Segment, error) {
	return f.segs, f.err
}

type failingSettings struct{ err error }

func (f failingSettings) GetActive(context.Context, string) (*settings.CostSettings, error) {
	return nil, f.err
}

// flakyHistoryStore fails the first finalizing write, as a rejected history insert
// rolls back the whole write.
type flakyHistoryStore struct {
	*MemoryStore
	failures int
}

func (f *flakyHistoryStore) FinalizeWithHistory(ctx context.Context, id types.ID, at time.Time, e *HistoryEntry) (bool, error) {
	if f.failures > 0 {
		f.failures--
		return false, errors.New("history insert failed")
	}
	return f.MemoryStore.FinalizeWithHistory(ctx, id, at, e)
}

type fixture struct {
	svc      *Service
	settings *settings.Service
	store    *MemoryStore
	clock    time.Time
}

func newFixture(t *testing.T, tolls TollRateProvider, routes RouteResolver, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		settings: settings.NewService(settings.NewMemoryStore(), nil),
		store:    NewMemoryStore(),
		clock:    testNow,
	}
	f.svc = NewService(f.store, f.settings, tolls, routes, nil, cfg)
	f.svc.now = func() time.Time { return f.clock }
	return f
}

func TestService_CalculatePersistsCost(t *testing.T) {
	f := newFixture(t, nil, nil, Config{})
	ctx := context.Background()

	cost, err := f.svc.Calculate(ctx, CalculateCommand{
		RouteID:  "route-1",
		Segments: []Segment{seg("DE", "100", "2")},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, cost.ID)
	assert.Equal(t, "1.0", cost.SettingsVersion)
	assert.Equal(t, settings.DefaultScope, cost.SettingsScope)
	assertMoney(t, "219.00", cost.Breakdown.TotalCost)
	assert.False(t, cost.IsFinal)

	stored, err := f.svc.Get(ctx, cost.ID)
	require.NoError(t, err)
	assert.True(t, stored.Breakdown.TotalCost.Equal(cost.Breakdown.TotalCost))

	_, err = f.svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestService_CalculateAssignsRouteID(t *testing.T) {
	f := newFixture(t, nil, nil, Config{})
	cost, err := f.svc.Calculate(context.Background(), CalculateCommand{Segments: []Segment{seg("DE", "10", "1")}})
	require.NoError(t, err)
	assert.NotEmpty(t, cost.RouteID)
}

func TestService_CalculateUsesRequestedScope(t *testing.T) {
	f := newFixture(t, nil, nil, Config{})
	ctx := context.Background()

	nordic := *settings.Default("nordic")
	nordic.FuelPrices["DE"] = d("2.00")
	_, err := f.settings.CreateNewVersion(ctx, "nordic", nordic, "pricing-team")
	require.NoError(t, err)

	segs := []Segment{seg("DE", "100", "2")}
	scoped, err := f.svc.Calculate(ctx, CalculateCommand{Scope: "nordic", Segments: segs})
	require.NoError(t, err)
	assert.Equal(t, "nordic", scoped.SettingsScope)
	assert.True(t, scoped.Breakdown.ByType[ComponentFuel][""].Equal(d("60")))

	global, err := f.svc.Calculate(ctx, CalculateCommand{Segments: segs})
	require.NoError(t, err)
	assert.Equal(t, settings.DefaultScope, global.SettingsScope)
	assert.True(t, global.Breakdown.ByType[ComponentFuel][""].Equal(d("45")))

	_, err = f.svc.Calculate(ctx, CalculateCommand{Scope: "no spaces allowed", Segments: segs})
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestService_SettingsUnavailable(t *testing.T) {
	svc := NewService(NewMemoryStore(), failingSettings{err: errors.New("db down")}, nil, nil, nil, Config{})

	_, err := svc.Calculate(context.Background(), CalculateCommand{Segments: []Segment{seg("DE", "10", "1")}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoSettings)
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestService_ExplicitSettingsAreValidated(t *testing.T) {
	f := newFixture(t, nil, nil, Config{})
	bad := settings.Default(settings.DefaultScope)
	bad.FuelPrices["DE"] = d("-1")

	_, err := f.svc.Calculate(context.Background(), CalculateCommand{
		Segments: []Segment{seg("DE", "10", "1")},
		Settings: bad,
	})
	assert.ErrorIs(t, err, settings.ErrInvalidSettings)
}

func TestService_StrictModeFromConfigAndCommand(t *testing.T) {
	f := newFixture(t, nil, nil, Config{Strict: true})
	cmd := CalculateCommand{Segments: []Segment{seg("CH", "10", "1")}}

	_, err := f.svc.Calculate(context.Background(), cmd)
	assert.ErrorIs(t, err, ErrMissingRate)

	lenient := false
	cmd.Strict = &lenient
	cost, err := f.svc.Calculate(context.Background(), cmd)
	require.NoError(t, err)
	assert.NotEmpty(t, cost.Breakdown.Skipped)
}

func TestService_LiveTollsAndFallback(t *testing.T) {
	tolls := &fakeTolls{rates: map[string]decimal.Decimal{"DE": d("0.50")}}
	f := newFixture(t, tolls, nil, Config{})

	cost, err := f.svc.Calculate(context.Background(), CalculateCommand{
		Segments:            []Segment{seg("DE", "100", "1"), seg("AT", "100", "1"), seg("DE", "20", "0.2")},
		EmptyLegs:           []Segment{seg("AT", "10", "0.1")},
		IncludeEmptyDriving: true,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"DE/truck_40t", "AT/truck_40t"}, tolls.calls, "one lookup per country")
	assert.Equal(t, []string{"toll:AT"}, cost.Fallbacks)
	tollComps := componentsOf(cost, ComponentToll)
	assertMoney(t, "50.00", tollComps[0].Amount)
	assertMoney(t, "45.00", tollComps[1].Amount)
}

func TestService_TollCollaboratorDown(t *testing.T) {
	f := newFixture(t, &fakeTolls{err: context.DeadlineExceeded}, nil, Config{})

	cost, err := f.svc.Calculate(context.Background(), CalculateCommand{Segments: []Segment{seg("DE", "100", "2")}})
	require.NoError(t, err, "toll failures fall back to settings")
	assert.Equal(t, []string{"toll:DE"}, cost.Fallbacks)
	assertMoney(t, "35.00", cost.Breakdown.Amount(ComponentToll))
}

func TestService_ResolvesRouteThroughLocation(t *testing.T) {
	routes := &fakeRoutes{segs: []Segment{seg("DE", "100", "2"), seg("AT", "50", "1")}}
	f := newFixture(t, nil, routes, Config{})

	cost, err := f.svc.Calculate(context.Background(), CalculateCommand{Origin: "Berlin", Destination: "Vienna"})
	require.NoError(t, err)
	assert.Len(t, cost.Segments, 2)
}

func TestService_LocationFailures(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, nil, &fakeRoutes{err: errors.New("maps quota")}, Config{})
	_, err := f.svc.Calculate(ctx, CalculateCommand{Origin: "Berlin", Destination: "Vienna"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoRoute)
	assert.ErrorIs(t, err, types.ErrCollaborator)

	f = newFixture(t, nil, nil, Config{})
	_, err = f.svc.Calculate(ctx, CalculateCommand{Origin: "Berlin", Destination: "Vienna"})
	assert.ErrorIs(t, err, ErrNoRoute)

	_, err = f.svc.Calculate(ctx, CalculateCommand{})
	assert.ErrorIs(t, err, ErrNoSegments)
}

func TestService_FinalizeRecordsHistoryOnce(t *testing.T) {
	f := newFixture(t, nil, nil, Config{})
	ctx := context.Background()

	cost, err := f.svc.Calculate(ctx, CalculateCommand{RouteID: "route-9", Segments: []Segment{seg("DE", "100", "2")}})
	require.NoError(t, err)

	final, entry, err := f.svc.Finalize(ctx, cost.ID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.True(t, final.IsFinal)
	require.NotNil(t, final.FinalizedAt)
	assert.EqualValues(t, 1, entry.Seq)
	assert.Equal(t, cost.ID, entry.CostID)
	assert.Equal(t, "1.0", entry.SettingsVersion)
	assert.True(t, entry.TotalCost.Equal(cost.Breakdown.TotalCost))
	assert.Len(t, entry.Components, len(cost.Breakdown.Components))

	used, err := settings.FromSnapshot(entry.SettingsSnapshot)
	require.NoError(t, err)
	assert.Equal(t, "1.0", used.Version)
	assert.True(t, used.FuelPrices["DE"].Equal(d("1.50")))

	again, entry2, err := f.svc.Finalize(ctx, cost.ID)
	require.NoError(t, err)
	assert.Nil(t, entry2)
	assert.True(t, again.IsFinal)

	hist, err := f.svc.GetHistory(ctx, "route-9")
	require.NoError(t, err)
	assert.Len(t, hist, 1)

	_, _, err = f.svc.Finalize(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_FinalizeRetriesAfterFailedHistoryWrite(t *testing.T) {
	store := &flakyHistoryStore{MemoryStore: NewMemoryStore(), failures: 1}
	svc := NewService(store, settings.NewService(settings.NewMemoryStore(), nil), nil, nil, nil, Config{})
	ctx := context.Background()

	cost, err := svc.Calculate(ctx, CalculateCommand{RouteID: "route-flaky", Segments: []Segment{seg("DE", "100", "2")}})
	require.NoError(t, err)

	_, _, err = svc.Finalize(ctx, cost.ID)
	require.Error(t, err)

	stored, err := svc.Get(ctx, cost.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsFinal, "a failed history write must leave the cost open")

	final, entry, err := svc.Finalize(ctx, cost.ID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.True(t, final.IsFinal)

	hist, err := svc.GetHistory(ctx, "route-flaky")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, cost.ID, hist[0].CostID)
}

func TestService_HistoryKeepsSettingsOfItsTime(t *testing.T) {
	f := newFixture(t, nil, nil, Config{})
	ctx := context.Background()
	cmd := CalculateCommand{RouteID: "route-h", Segments: []Segment{seg("DE", "100", "2")}}

	first, err := f.svc.Calculate(ctx, cmd)
	require.NoError(t, err)
	_, _, err = f.svc.Finalize(ctx, first.ID)
	require.NoError(t, err)

	next := *settings.Default(settings.DefaultScope)
	next.FuelPrices["DE"] = d("2.00")
	_, err = f.settings.CreateNewVersion(ctx, settings.DefaultScope, next, "pricing-team")
	require.NoError(t, err)

	needed, err := f.svc.RecalculateNeeded(ctx, first)
	require.NoError(t, err)
	assert.True(t, needed, "active version moved on")

	second, err := f.svc.Calculate(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, "2.0", second.SettingsVersion)
	_, _, err = f.svc.Finalize(ctx, second.ID)
	require.NoError(t, err)

	hist, err := f.svc.GetHistory(ctx, "route-h")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "2.0", hist[0].SettingsVersion)
	assert.Equal(t, "1.0", hist[1].SettingsVersion)
	assert.Greater(t, hist[0].Seq, hist[1].Seq)

	old, err := settings.FromSnapshot(hist[1].SettingsSnapshot)
	require.NoError(t, err)
	assert.True(t, old.FuelPrices["DE"].Equal(d("1.50")))
}

func TestService_RecalculateNeededAfterValidity(t *testing.T) {
	f := newFixture(t, nil, nil, Config{Validity: time.Hour})
	ctx := context.Background()
	cost, err := f.svc.Calculate(ctx, CalculateCommand{Segments: []Segment{seg("DE", "100", "2")}})
	require.NoError(t, err)

	needed, err := f.svc.RecalculateNeeded(ctx, cost)
	require.NoError(t, err)
	assert.False(t, needed)

	f.clock = f.clock.Add(2 * time.Hour)
	needed, err = f.svc.RecalculateNeeded(ctx, cost)
	require.NoError(t, err)
	assert.True(t, needed)
}

func TestStore_RoundTripOnPostgres(t *testing.T) {
	db := testutil.PG(t, "cost_history", "costs", "cost_settings")
	sp := settings.NewService(settings.NewStore(db), nil)
	svc := NewService(NewStore(db), sp, nil, nil, nil, Config{})
	ctx := context.Background()

	cost, err := svc.Calculate(ctx, CalculateCommand{
		RouteID:                 "pg-route",
		Segments:                []Segment{seg("DE", "100", "2"), seg("AT", "50", "1")},
		IncludeCountryBreakdown: true,
	})
	require.NoError(t, err)

	stored, err := svc.Get(ctx, cost.ID)
	require.NoError(t, err)
	assert.True(t, stored.Breakdown.TotalCost.Equal(cost.Breakdown.TotalCost))
	require.NoError(t, stored.Breakdown.Verify())
	assert.NotEmpty(t, stored.SettingsSnapshot())

	_, entry, err := svc.Finalize(ctx, cost.ID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Positive(t, entry.Seq)

	_, entry, err = svc.Finalize(ctx, cost.ID)
	require.NoError(t, err)
	assert.Nil(t, entry)

	hist, err := svc.GetHistory(ctx, "pg-route")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.True(t, hist[0].TotalCost.Equal(cost.Breakdown.TotalCost))
}
