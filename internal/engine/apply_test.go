package engine

import (
	"context"
	"testing"

	"github.com/statecraft-io/statecraft/internal/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply_ConvergesToNoOp(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	graph := graphOf(
		memResource("a", map[string]any{"size": "small"}),
		memResource("b", map[string]any{"upstream": "ref://mem_object.a/id"}),
	)

	plan, err := eng.Plan(ctx, graph)
	require.NoError(t, err)
	result, err := eng.Apply(ctx, plan)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Created)
	assert.False(t, result.Errored())

	snap, err := eng.Pull(ctx)
	require.NoError(t, err)
	a := snap.Resource(ir.Addr("mem_object", "a"))
	b := snap.Resource(ir.Addr("mem_object", "b"))
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, a.ID, b.Attributes["upstream"], "reference resolved against live state during apply")
	assert.Equal(t, []ir.Address{ir.Addr("mem_object", "a")}, b.Dependencies)

	// A second plan over the applied state proposes nothing.
	plan, err = eng.Plan(ctx, graph)
	require.NoError(t, err)
	assert.False(t, plan.Changes())
}

func TestApply_FailureCancelsDependents(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	bad := memResource("bad", map[string]any{"fail_create": true})
	dependent := memResource("dependent", nil)
	dependent.DependsOn = []string{"mem_object.bad"}
	unrelated := memResource("unrelated", nil)

	plan, err := eng.Plan(ctx, graphOf(bad, dependent, unrelated))
	require.NoError(t, err)
	result, err := eng.Apply(ctx, plan)
	require.NoError(t, err, "a failed action is a result, not an Apply error")

	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Cancelled)
	assert.Equal(t, 1, result.Created, "unrelated branch still ran")
	assert.True(t, result.Errored())

	byAddr := make(map[ir.Address]*ir.ActionResult)
	for _, r := range result.Actions {
		byAddr[r.Address] = r
	}
	assert.Equal(t, ir.StatusFailed, byAddr[ir.Addr("mem_object", "bad")].Status)
	assert.Equal(t, ir.StatusCancelled, byAddr[ir.Addr("mem_object", "dependent")].Status)
	assert.Equal(t, ir.StatusApplied, byAddr[ir.Addr("mem_object", "unrelated")].Status)

	// Partial progress is persisted: the unrelated create is in state, the
	// failed and cancelled ones are not.
	snap, err := eng.Pull(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap.Resource(ir.Addr("mem_object", "bad")))
	assert.Nil(t, snap.Resource(ir.Addr("mem_object", "dependent")))
	assert.NotNil(t, snap.Resource(ir.Addr("mem_object", "unrelated")))
	assert.Equal(t, 1, snap.Serial)
}

func TestApply_ReplaceDestroyBeforeCreate(t *testing.T) {
	eng, reg := newTestEngine(t)
	ctx := context.Background()
	rec := newRecordingProvider()
	reg.Register("mem", rec)

	plan, err := eng.Plan(ctx, graphOf(memResource("a", map[string]any{"zone": "eu-1"})))
	require.NoError(t, err)
	_, err = eng.Apply(ctx, plan)
	require.NoError(t, err)

	snap, err := eng.Pull(ctx)
	require.NoError(t, err)
	oldID := snap.Resource(ir.Addr("mem_object", "a")).ID

	plan, err = eng.Plan(ctx, graphOf(memResource("a", map[string]any{"zone": "eu-2"})))
	require.NoError(t, err)
	require.Equal(t, 1, plan.Summary.Replace)
	result, err := eng.Apply(ctx, plan)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Destroyed)

	// Default ordering: the old object is destroyed before its successor
	// exists.
	assert.Equal(t, []string{"create", "delete", "create"}, opKinds(rec.Ops()))

	snap, err = eng.Pull(ctx)
	require.NoError(t, err)
	newID := snap.Resource(ir.Addr("mem_object", "a")).ID
	assert.NotEqual(t, oldID, newID)
	assert.Equal(t, "eu-2", snap.Resource(ir.Addr("mem_object", "a")).Attributes["zone"])
}

func TestApply_ReplaceCreateBeforeDestroy(t *testing.T) {
	eng, reg := newTestEngine(t)
	ctx := context.Background()
	rec := newRecordingProvider()
	reg.Register("mem", rec)

	res := memResource("a", map[string]any{"zone": "eu-1"})
	res.Lifecycle = &ir.Lifecycle{CreateBeforeDestroy: true}
	plan, err := eng.Plan(ctx, graphOf(res))
	require.NoError(t, err)
	_, err = eng.Apply(ctx, plan)
	require.NoError(t, err)

	replaced := memResource("a", map[string]any{"zone": "eu-2"})
	replaced.Lifecycle = &ir.Lifecycle{CreateBeforeDestroy: true}
	plan, err = eng.Plan(ctx, graphOf(replaced))
	require.NoError(t, err)
	require.Equal(t, 1, plan.Summary.Replace)
	_, err = eng.Apply(ctx, plan)
	require.NoError(t, err)

	// The successor exists before the old object goes away.
	assert.Equal(t, []string{"create", "create", "delete"}, opKinds(rec.Ops()))
}

func TestApply_UpdateKeepsProviderID(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	plan, err := eng.Plan(ctx, graphOf(memResource("a", map[string]any{"size": "small"})))
	require.NoError(t, err)
	_, err = eng.Apply(ctx, plan)
	require.NoError(t, err)

	snap, err := eng.Pull(ctx)
	require.NoError(t, err)
	oldID := snap.Resource(ir.Addr("mem_object", "a")).ID

	plan, err = eng.Plan(ctx, graphOf(memResource("a", map[string]any{"size": "large"})))
	require.NoError(t, err)
	result, err := eng.Apply(ctx, plan)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)

	snap, err = eng.Pull(ctx)
	require.NoError(t, err)
	assert.Equal(t, oldID, snap.Resource(ir.Addr("mem_object", "a")).ID)
	assert.Equal(t, "large", snap.Resource(ir.Addr("mem_object", "a")).Attributes["size"])
}

func TestApply_DestroyRunsInReverseDependencyOrder(t *testing.T) {
	eng, reg := newTestEngine(t)
	ctx := context.Background()
	rec := newRecordingProvider()
	reg.Register("mem", rec)

	a := memResource("a", nil)
	b := memResource("b", map[string]any{"upstream": "ref://mem_object.a/id"})

	plan, err := eng.Plan(ctx, graphOf(a, b))
	require.NoError(t, err)
	_, err = eng.Apply(ctx, plan)
	require.NoError(t, err)

	snap, err := eng.Pull(ctx)
	require.NoError(t, err)
	idA := snap.Resource(ir.Addr("mem_object", "a")).ID
	idB := snap.Resource(ir.Addr("mem_object", "b")).ID

	plan, err = eng.Plan(ctx, &ir.Graph{})
	require.NoError(t, err)
	require.Equal(t, 2, plan.Summary.Destroy)
	result, err := eng.Apply(ctx, plan)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Destroyed)

	ops := rec.Ops()
	require.Len(t, ops, 4)
	assert.Equal(t, "delete "+idB, ops[2], "dependent is destroyed first")
	assert.Equal(t, "delete "+idA, ops[3])

	snap, err = eng.Pull(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Resources)
}

func TestApply_RecordsOutputs(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	graph := graphOf(memResource("a", nil))
	graph.Outputs = map[string]ir.Output{
		"object_id": {Value: "ref://mem_object.a/id"},
	}

	plan, err := eng.Plan(ctx, graph)
	require.NoError(t, err)
	_, err = eng.Apply(ctx, plan)
	require.NoError(t, err)

	snap, err := eng.Pull(ctx)
	require.NoError(t, err)
	require.Contains(t, snap.Outputs, "object_id")
	assert.Equal(t, snap.Resource(ir.Addr("mem_object", "a")).ID, snap.Outputs["object_id"].Value)
}

func TestApply_CancelledContextCancelsPendingActions(t *testing.T) {
	eng, _ := newTestEngine(t)

	plan, err := eng.Plan(context.Background(), graphOf(memResource("a", nil)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := eng.Apply(ctx, plan)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Cancelled)
	assert.Equal(t, 0, result.Created)
}
