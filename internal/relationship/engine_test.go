// ABOUTME: Tests for the relationship strength engine
// ABOUTME: Covers decay-rate continuity, layer reclassification, overrides, and at-risk detection

package relationship

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clawnet/claw-gateway/internal/bus"
	"github.com/clawnet/claw-gateway/internal/store"
)

func setupEngine(t *testing.T) (*Engine, *store.SQLiteStore, *bus.Bus) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	b := bus.New(nil)
	return NewEngine(st, b, nil), st, b
}

func TestComputeDecayRate_Endpoints(t *testing.T) {
	assert.InDelta(t, 0.95, ComputeDecayRate(0), 1e-9)
	assert.InDelta(t, 0.999, ComputeDecayRate(1), 1e-9)
}

func TestComputeDecayRate_ContinuousAtBreakpoints(t *testing.T) {
	for _, bp := range []float64{ThresholdActive, ThresholdSympathy, ThresholdCore} {
		below := ComputeDecayRate(bp - 1e-9)
		at := ComputeDecayRate(bp)
		assert.Less(t, math.Abs(at-below), 1e-3, "discontinuity at %v", bp)
	}
}

func TestComputeDecayRate_Monotonic(t *testing.T) {
	prev := ComputeDecayRate(0)
	for s := 0.01; s <= 1.0; s += 0.01 {
		rate := ComputeDecayRate(s)
		assert.GreaterOrEqual(t, rate, prev, "rate decreased at strength %v", s)
		prev = rate
	}
}

func TestClassifyLayer(t *testing.T) {
	cases := []struct {
		strength float64
		want     store.DunbarLayer
	}{
		{0.0, store.LayerCasual},
		{0.29, store.LayerCasual},
		{0.3, store.LayerActive},
		{0.5, store.LayerActive},
		{0.6, store.LayerSympathy},
		{0.79, store.LayerSympathy},
		{0.8, store.LayerCore},
		{1.0, store.LayerCore},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ClassifyLayer(tc.strength), "strength %v", tc.strength)
	}
}

func TestEstablish_Defaults(t *testing.T) {
	eng, st, _ := setupEngine(t)
	ctx := context.Background()

	rec, err := eng.Establish(ctx, "claw_a", "claw_b")
	require.NoError(t, err)
	assert.Equal(t, DefaultStrength, rec.Strength)
	assert.Equal(t, store.LayerActive, rec.Layer)
	assert.False(t, rec.ManualOverride)

	stored, err := st.GetRelationship(ctx, "claw_a", "claw_b")
	require.NoError(t, err)
	assert.Equal(t, DefaultStrength, stored.Strength)

	// A second establish for the same pair is a duplicate.
	_, err = eng.Establish(ctx, "claw_a", "claw_b")
	assert.ErrorIs(t, err, store.ErrDuplicate)
}

func TestDecayAll_LowersStrengthAndReclassifies(t *testing.T) {
	eng, st, _ := setupEngine(t)
	ctx := context.Background()

	_, err := eng.Establish(ctx, "claw_a", "claw_b")
	require.NoError(t, err)
	// Park the pair just above the active boundary so one tick drops it below.
	_, err = st.SetStrength(ctx, "claw_a", "claw_b", 0.301, store.LayerActive)
	require.NoError(t, err)

	n, err := eng.DecayAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rec, err := st.GetRelationship(ctx, "claw_a", "claw_b")
	require.NoError(t, err)
	assert.Less(t, rec.Strength, 0.301)
	assert.Equal(t, store.LayerCasual, rec.Layer)
}

func TestDecayAll_NeverBelowFloor(t *testing.T) {
	eng, st, _ := setupEngine(t)
	ctx := context.Background()

	_, err := eng.Establish(ctx, "claw_a", "claw_b")
	require.NoError(t, err)
	_, err = st.SetStrength(ctx, "claw_a", "claw_b", MinStrength, store.LayerCasual)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		_, err := eng.DecayAll(ctx)
		require.NoError(t, err)
	}

	rec, err := st.GetRelationship(ctx, "claw_a", "claw_b")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, rec.Strength, MinStrength)
}

func TestDecayAll_EmitsLayerChange(t *testing.T) {
	eng, st, b := setupEngine(t)
	ctx := context.Background()

	events, _ := b.Subscribe(ctx)

	_, err := eng.Establish(ctx, "claw_a", "claw_b")
	require.NoError(t, err)
	_, err = st.SetStrength(ctx, "claw_a", "claw_b", 0.301, store.LayerActive)
	require.NoError(t, err)

	_, err = eng.DecayAll(ctx)
	require.NoError(t, err)

	select {
	case ev := <-events:
		require.Equal(t, bus.EventLayerChanged, ev.Name)
		change := ev.Payload.(LayerChange)
		assert.Equal(t, store.LayerActive, change.From)
		assert.Equal(t, store.LayerCasual, change.To)
	case <-time.After(time.Second):
		t.Fatal("no layer-changed event")
	}
}

func TestSetManualLayer(t *testing.T) {
	eng, st, _ := setupEngine(t)
	ctx := context.Background()

	_, err := eng.Establish(ctx, "claw_a", "claw_b")
	require.NoError(t, err)

	require.NoError(t, eng.SetManualLayer(ctx, "claw_a", "claw_b", store.LayerCore))

	rec, err := st.GetRelationship(ctx, "claw_a", "claw_b")
	require.NoError(t, err)
	assert.Equal(t, store.LayerCore, rec.Layer)
	assert.True(t, rec.ManualOverride)
}

func TestSetManualLayer_EmitsLayerChange(t *testing.T) {
	eng, _, b := setupEngine(t)
	ctx := context.Background()

	_, err := eng.Establish(ctx, "claw_a", "claw_b")
	require.NoError(t, err)

	events, _ := b.Subscribe(ctx)
	require.NoError(t, eng.SetManualLayer(ctx, "claw_a", "claw_b", store.LayerCore))

	select {
	case ev := <-events:
		require.Equal(t, bus.EventLayerChanged, ev.Name)
		change := ev.Payload.(LayerChange)
		assert.Equal(t, store.LayerActive, change.From)
		assert.Equal(t, store.LayerCore, change.To)
	case <-time.After(time.Second):
		t.Fatal("no layer-changed event")
	}

	// Re-pinning to the same layer is not a change.
	require.NoError(t, eng.SetManualLayer(ctx, "claw_a", "claw_b", store.LayerCore))
	select {
	case ev := <-events:
		t.Fatalf("unexpected event %s", ev.Name)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSetManualLayer_Errors(t *testing.T) {
	eng, _, _ := setupEngine(t)
	ctx := context.Background()

	err := eng.SetManualLayer(ctx, "claw_a", "claw_b", "bff")
	assert.ErrorIs(t, err, ErrInvalidLayer)

	err = eng.SetManualLayer(ctx, "claw_a", "claw_b", store.LayerCore)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestManualOverride_SuppressesReclassification(t *testing.T) {
	eng, st, _ := setupEngine(t)
	ctx := context.Background()

	_, err := eng.Establish(ctx, "claw_a", "claw_b")
	require.NoError(t, err)
	require.NoError(t, eng.SetManualLayer(ctx, "claw_a", "claw_b", store.LayerCore))

	// Decay keeps lowering strength, but the pinned layer holds.
	for i := 0; i < 5; i++ {
		_, err := eng.DecayAll(ctx)
		require.NoError(t, err)
	}

	rec, err := st.GetRelationship(ctx, "claw_a", "claw_b")
	require.NoError(t, err)
	assert.Less(t, rec.Strength, DefaultStrength)
	assert.Equal(t, store.LayerCore, rec.Layer)
	assert.True(t, rec.ManualOverride)

	// Clearing the override reclassifies from current strength.
	require.NoError(t, eng.ClearManualOverride(ctx, "claw_a", "claw_b"))
	rec, err = st.GetRelationship(ctx, "claw_a", "claw_b")
	require.NoError(t, err)
	assert.Equal(t, ClassifyLayer(rec.Strength), rec.Layer)
	assert.False(t, rec.ManualOverride)
}

func TestTouchInteraction(t *testing.T) {
	eng, st, _ := setupEngine(t)
	ctx := context.Background()

	_, err := eng.Establish(ctx, "claw_a", "claw_b")
	require.NoError(t, err)

	require.NoError(t, eng.TouchInteraction(ctx, "claw_a", "claw_b"))

	rec, err := st.GetRelationship(ctx, "claw_a", "claw_b")
	require.NoError(t, err)
	require.NotNil(t, rec.LastInteractionAt)
	assert.Equal(t, DefaultStrength, rec.Strength, "touch does not change strength")

	// Touching again is idempotent in effect.
	require.NoError(t, eng.TouchInteraction(ctx, "claw_a", "claw_b"))
}

func TestBoostStrength(t *testing.T) {
	eng, st, _ := setupEngine(t)
	ctx := context.Background()

	_, err := eng.Establish(ctx, "claw_a", "claw_b")
	require.NoError(t, err)

	rec, err := eng.BoostStrength(ctx, "claw_a", "claw_b", 0.2)
	require.NoError(t, err)
	assert.InDelta(t, 0.7, rec.Strength, 1e-9)
	assert.Equal(t, store.LayerSympathy, rec.Layer)

	// Clamped at the ceiling.
	rec, err = eng.BoostStrength(ctx, "claw_a", "claw_b", 5.0)
	require.NoError(t, err)
	assert.Equal(t, MaxStrength, rec.Strength)
	assert.Equal(t, store.LayerCore, rec.Layer)

	stored, err := st.GetRelationship(ctx, "claw_a", "claw_b")
	require.NoError(t, err)
	assert.Equal(t, MaxStrength, stored.Strength)
}

func TestGetAtRisk(t *testing.T) {
	eng, st, _ := setupEngine(t)
	ctx := context.Background()

	old := time.Now().UTC().AddDate(0, 0, -30)

	// Near the bottom of active and long inactive: at risk.
	_, err := eng.Establish(ctx, "claw_a", "claw_b")
	require.NoError(t, err)
	_, err = st.SetStrength(ctx, "claw_a", "claw_b", 0.32, store.LayerActive)
	require.NoError(t, err)
	require.NoError(t, st.TouchRelationship(ctx, "claw_a", "claw_b", old))

	// Near the bottom but recently touched: safe.
	_, err = eng.Establish(ctx, "claw_a", "claw_c")
	require.NoError(t, err)
	_, err = st.SetStrength(ctx, "claw_a", "claw_c", 0.32, store.LayerActive)
	require.NoError(t, err)
	require.NoError(t, st.TouchRelationship(ctx, "claw_a", "claw_c", time.Now().UTC()))

	// Comfortably inside its layer: safe regardless of inactivity.
	_, err = eng.Establish(ctx, "claw_a", "claw_d")
	require.NoError(t, err)
	require.NoError(t, st.TouchRelationship(ctx, "claw_a", "claw_d", old))

	// Never interacted counts as inactive.
	_, err = eng.Establish(ctx, "claw_a", "claw_e")
	require.NoError(t, err)
	_, err = st.SetStrength(ctx, "claw_a", "claw_e", 0.61, store.LayerSympathy)
	require.NoError(t, err)

	atRisk, err := eng.GetAtRisk(ctx, "claw_a", 0.05, 7)
	require.NoError(t, err)

	ids := make(map[string]bool)
	for _, r := range atRisk {
		ids[r.FriendID] = true
	}
	assert.True(t, ids["claw_b"])
	assert.True(t, ids["claw_e"])
	assert.False(t, ids["claw_c"])
	assert.False(t, ids["claw_d"])
}

func TestScenario_ManualCorePinnedThroughDecay(t *testing.T) {
	eng, st, _ := setupEngine(t)
	ctx := context.Background()

	// A and B become friends: default record.
	rec, err := eng.Establish(ctx, "claw_a", "claw_b")
	require.NoError(t, err)
	require.Equal(t, 0.5, rec.Strength)
	require.Equal(t, store.LayerActive, rec.Layer)
	require.False(t, rec.ManualOverride)

	// Pin to core, then decay far below the core threshold.
	require.NoError(t, eng.SetManualLayer(ctx, "claw_a", "claw_b", store.LayerCore))
	for i := 0; i < 50; i++ {
		_, err := eng.DecayAll(ctx)
		require.NoError(t, err)
	}

	got, err := st.GetRelationship(ctx, "claw_a", "claw_b")
	require.NoError(t, err)
	assert.Less(t, got.Strength, ThresholdCore)
	assert.Equal(t, store.LayerCore, got.Layer, "pinned layer survives decay")
}
