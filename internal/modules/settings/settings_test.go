package settings

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"freightquote/internal/testutil"
	"freightquote/internal/types"
)

func newService() *Service {
	return NewService(NewMemoryStore(), nil)
}

func TestGetActive_BootstrapsDefaults(t *testing.T) {
	ctx := context.Background()
	svc := newService()

	cs, err := svc.GetActive(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultScope, cs.Scope)
	assert.Equal(t, "1.0", cs.Version)
	assert.True(t, cs.Active)
	assert.Equal(t, SystemActor, cs.CreatedBy)
	assert.NotEmpty(t, cs.ID)

	again, err := svc.GetActive(ctx, DefaultScope)
	require.NoError(t, err)
	assert.Equal(t, cs.ID, again.ID, "defaults are persisted once")

	hist, err := svc.GetHistory(ctx, DefaultScope)
	require.NoError(t, err)
	assert.Len(t, hist, 1)
}

func TestCreateNewVersion_IncrementsAndDeactivates(t *testing.T) {
	ctx := context.Background()
	svc := newService()
	_, err := svc.GetActive(ctx, DefaultScope)
	require.NoError(t, err)

	in := *Default(DefaultScope)
	in.FuelPrices["DE"] = types.Dec("1.62")
	in.Version = "42.7"
	in.Active = false

	v2, err := svc.CreateNewVersion(ctx, DefaultScope, in, "alice")
	require.NoError(t, err)
	assert.Equal(t, "2.0", v2.Version)
	assert.True(t, v2.Active)
	assert.Equal(t, "alice", v2.CreatedBy)

	active, err := svc.GetActive(ctx, DefaultScope)
	require.NoError(t, err)
	assert.Equal(t, v2.ID, active.ID)
	assert.True(t, active.FuelPrices["DE"].Equal(types.Dec("1.62")))

	v1, err := svc.GetByVersion(ctx, DefaultScope, "1")
	require.NoError(t, err)
	assert.False(t, v1.Active)
	assert.Equal(t, "alice", v1.ModifiedBy)
	assert.True(t, v1.FuelPrices["DE"].Equal(types.Dec("1.50")), "old versions are never modified")

	hist, err := svc.GetHistory(ctx, DefaultScope)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "2.0", hist[0].Version, "history is newest first")
	assert.Equal(t, "1.0", hist[1].Version)
}

func TestCreateNewVersion_FirstVersionIsOne(t *testing.T) {
	cs, err := newService().CreateNewVersion(context.Background(), "route-42", *Default(""), "")
	require.NoError(t, err)
	assert.Equal(t, "1.0", cs.Version)
	assert.Equal(t, "route-42", cs.Scope)
	assert.Equal(t, SystemActor, cs.CreatedBy)
}

func TestCreateNewVersion_RejectsInvalidRates(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CostSettings)
		want   string
	}{
		{"zero fuel", func(c *CostSettings) { c.FuelPrices["DE"] = types.Dec("0") }, "fuel_prices.DE"},
		{"negative toll", func(c *CostSettings) { c.TollRates["AT"]["van"] = types.Dec("-1") }, "toll_rates.AT.van"},
		{"unknown overhead", func(c *CostSettings) { c.OverheadRates["weekly"] = types.Dec("1") }, "unknown category"},
		{"unknown empty factor", func(c *CostSettings) { c.EmptyDrivingFactors["overhead"] = types.Dec("1") }, "unknown cost type"},
		{"unknown component", func(c *CostSettings) { c.EnabledComponents = append(c.EnabledComponents, "insurance") }, "unknown component"},
		{"duplicate component", func(c *CostSettings) { c.EnabledComponents = append(c.EnabledComponents, ComponentFuel) }, "duplicate"},
		{"no consumption", func(c *CostSettings) { c.DefaultConsumption = types.Dec("0") }, "default_consumption"},
		{"no currency", func(c *CostSettings) { c.Currency = "" }, "currency"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newService()
			in := Default(DefaultScope)
			tt.mutate(in)

			_, err := svc.CreateNewVersion(context.Background(), DefaultScope, *in, "bob")
			require.Error(t, err)
			assert.ErrorIs(t, err, types.ErrValidation)
			assert.ErrorIs(t, err, ErrInvalidSettings)
			assert.Contains(t, err.Error(), tt.want)

			hist, _ := svc.GetHistory(context.Background(), DefaultScope)
			assert.Empty(t, hist, "rejected versions are not stored")
		})
	}
}

func TestScopeValidation(t *testing.T) {
	ctx := context.Background()
	svc := newService()

	for _, scope := range []string{"global", "eu-west", "customer:42", "a.b_c"} {
		assert.NoError(t, ValidateScope(scope), scope)
	}
	for _, scope := range []string{"has space", "-lead", strings.Repeat("x", 65), "semi;colon"} {
		assert.ErrorIs(t, ValidateScope(scope), ErrInvalidScope, scope)

		_, err := svc.GetActive(ctx, scope)
		assert.ErrorIs(t, err, types.ErrValidation, scope)
		_, err = svc.CreateNewVersion(ctx, scope, *Default(scope), "admin")
		assert.ErrorIs(t, err, ErrInvalidScope, scope)

		hist, err := svc.GetHistory(ctx, scope)
		require.NoError(t, err)
		assert.Empty(t, hist, "rejected scopes never persist settings")
	}
}

func TestGetByVersion_NotFound(t *testing.T) {
	_, err := newService().GetByVersion(context.Background(), DefaultScope, "7.0")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, types.ErrNotFound)

	_, err = newService().GetByVersion(context.Background(), DefaultScope, "x")
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestStoredVersionsAreImmutableCopies(t *testing.T) {
	ctx := context.Background()
	svc := newService()
	cs, err := svc.GetActive(ctx, DefaultScope)
	require.NoError(t, err)
	cs.FuelPrices["DE"] = types.Dec("99")

	again, err := svc.GetActive(ctx, DefaultScope)
	require.NoError(t, err)
	assert.True(t, again.FuelPrices["DE"].Equal(types.Dec("1.50")))
}

func TestSnapshotRoundTripKeepsVersion(t *testing.T) {
	cs, err := newService().GetActive(context.Background(), DefaultScope)
	require.NoError(t, err)
	raw, err := cs.Snapshot()
	require.NoError(t, err)
	back, err := FromSnapshot(raw)
	require.NoError(t, err)
	assert.Equal(t, cs.Version, back.Version)
	assert.True(t, back.TollRates["DE"][DefaultVehicleType].Equal(types.Dec("0.35")))

	_, err = FromSnapshot([]byte("{"))
	assert.Error(t, err)
}

func runConcurrentCreates(t *testing.T, svc *Service, scope string, n int) {
	t.Helper()
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateNewVersion(context.Background(), scope, *Default(scope), "writer")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}

func assertSingleActiveAndIncreasing(t *testing.T, svc *Service, scope string, want int) {
	t.Helper()
	ctx := context.Background()
	hist, err := svc.GetHistory(ctx, scope)
	require.NoError(t, err)
	require.Len(t, hist, want)

	activeCount := 0
	for i, h := range hist {
		if h.Active {
			activeCount++
		}
		if i > 0 {
			prev, _ := hist[i-1].ParsedVersion()
			cur, _ := h.ParsedVersion()
			assert.Equal(t, 1, prev.Compare(cur), "versions must be distinct and strictly increasing")
		}
	}
	assert.Equal(t, 1, activeCount)

	active, err := svc.GetActive(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, hist[0].ID, active.ID)
}

func TestCreateNewVersion_Concurrent(t *testing.T) {
	svc := newService()
	_, err := svc.GetActive(context.Background(), DefaultScope)
	require.NoError(t, err)

	runConcurrentCreates(t, svc, DefaultScope, 2)
	assertSingleActiveAndIncreasing(t, svc, DefaultScope, 3)

	runConcurrentCreates(t, svc, DefaultScope, 16)
	assertSingleActiveAndIncreasing(t, svc, DefaultScope, 19)
}

func TestStore_ConcurrentVersionsOnPostgres(t *testing.T) {
	db := testutil.PG(t, "cost_settings")
	svc := NewService(NewStore(db), nil)

	runConcurrentCreates(t, svc, "pg-scope", 8)
	assertSingleActiveAndIncreasing(t, svc, "pg-scope", 8)

	_, err := svc.GetByVersion(context.Background(), "pg-scope", "99.0")
	assert.True(t, errors.Is(err, ErrNotFound))
}
