package engine

import (
	"context"
	"testing"

	"github.com/statecraft-io/statecraft/internal/ir"
	"github.com/statecraft-io/statecraft/providers/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func applyOne(t *testing.T, eng *Engine, attrs map[string]any) *ir.ResourceRecord {
	t.Helper()
	ctx := context.Background()
	plan, err := eng.Plan(ctx, graphOf(memResource("a", attrs)))
	require.NoError(t, err)
	_, err = eng.Apply(ctx, plan)
	require.NoError(t, err)

	snap, err := eng.Pull(ctx)
	require.NoError(t, err)
	rec := snap.Resource(ir.Addr("mem_object", "a"))
	require.NotNil(t, rec)
	return rec
}

func memBackdoor(t *testing.T, eng *Engine) *mem.Provider {
	t.Helper()
	prov, err := eng.registry.Get("mem")
	require.NoError(t, err)
	return prov.(*mem.Provider)
}

func TestRefresh_DetectsDrift(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	rec := applyOne(t, eng, map[string]any{"size": "small"})
	before, err := eng.Pull(ctx)
	require.NoError(t, err)

	require.True(t, memBackdoor(t, eng).Drift(rec.ID, "size", "huge"))

	snap, err := eng.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.Serial+1, snap.Serial)
	assert.Equal(t, "huge", snap.Resource(rec.Address).Attributes["size"])

	// The next plan proposes converging back to the declared value.
	plan, err := eng.Plan(ctx, graphOf(memResource("a", map[string]any{"size": "small"})))
	require.NoError(t, err)
	require.Len(t, plan.Actions, 1)
	assert.Equal(t, ir.ActionUpdate, plan.Actions[0].Kind)
}

func TestRefresh_DetectsTypeOnlyDrift(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	rec := applyOne(t, eng, map[string]any{"port": "8080"})
	before, err := eng.Pull(ctx)
	require.NoError(t, err)

	// Same rendered value, different type.
	require.True(t, memBackdoor(t, eng).Drift(rec.ID, "port", 8080))

	snap, err := eng.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.Serial+1, snap.Serial)
	assert.Equal(t, 8080, snap.Resource(rec.Address).Attributes["port"])
}

func TestRefresh_DropsVanishedResource(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	rec := applyOne(t, eng, nil)
	memBackdoor(t, eng).Destroy(rec.ID)

	snap, err := eng.Refresh(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap.Resource(rec.Address))

	// Recreation is proposed on the next plan.
	plan, err := eng.Plan(ctx, graphOf(memResource("a", nil)))
	require.NoError(t, err)
	assert.Equal(t, 1, plan.Summary.Create)
}

func TestRefresh_NoDriftIsNoOp(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	applyOne(t, eng, map[string]any{"size": "small"})
	before, err := eng.Pull(ctx)
	require.NoError(t, err)

	snap, err := eng.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.Serial, snap.Serial, "refresh without drift does not bump the serial")
}

func TestRefresh_SurfacesReadErrors(t *testing.T) {
	eng, reg := newTestEngine(t)
	ctx := context.Background()

	applyOne(t, eng, nil)
	reg.Register("mem", &failingReadProvider{})

	_, err := eng.Refresh(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
}
