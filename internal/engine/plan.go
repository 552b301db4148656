package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/statecraft-io/statecraft/internal/ir"
	"github.com/statecraft-io/statecraft/internal/logging"
	"github.com/statecraft-io/statecraft/pkg/provider"
)

// Plan compares the desired graph against recorded state and produces an
// ordered plan. It holds the state lock for the whole operation and
// implicitly refreshes recorded attributes first (unless SkipRefresh is
// set), so drift surfaces as Update/Replace actions here rather than
// through a separate channel. A refresh failure degrades to a stale-state
// warning on the plan instead of blocking it.
func (e *Engine) Plan(ctx context.Context, graph *ir.Graph) (*ir.Plan, error) {
	var plan *ir.Plan
	err := e.withLock(ctx, "plan", func(ctx context.Context) error {
		snap, err := e.store.Load(ctx)
		if err != nil {
			return err
		}

		var warnings []string
		if !e.SkipRefresh {
			if _, _, err := e.refreshInto(ctx, snap); err != nil {
				logging.Warn("pre-plan refresh failed; planning against recorded state", "error", err)
				warnings = append(warnings, fmt.Sprintf("refresh failed (%v); plan was computed against possibly stale recorded state", err))
			}
		}

		plan, err = e.diff(ctx, graph, snap)
		if err != nil {
			return err
		}
		plan.Warnings = append(plan.Warnings, warnings...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// diff is the planner core: pure comparison, no provider mutations.
func (e *Engine) diff(ctx context.Context, graph *ir.Graph, snap *ir.Snapshot) (*ir.Plan, error) {
	resources, err := Expand(graph.Resources)
	if err != nil {
		return nil, err
	}

	for _, res := range resources {
		if err := e.registry.LoadProvider(res.Provider); err != nil {
			return nil, fmt.Errorf("failed to load provider %s: %w", res.Provider, err)
		}
	}

	dag, err := BuildDAG(resources, snap)
	if err != nil {
		return nil, err
	}

	byAddr := make(map[ir.Address]*ir.Resource, len(resources))
	for _, res := range resources {
		byAddr[res.Addr] = res
	}

	plan := &ir.Plan{
		CreatedAt: time.Now().UTC(),
		Actions:   []*ir.Action{},
		Outputs:   graph.Outputs,
	}
	kindByAddr := make(map[ir.Address]ir.ActionKind)

	for _, addr := range dag.Order() {
		res := byAddr[addr]
		prov, err := e.registry.Get(res.Provider)
		if err != nil {
			return nil, err
		}

		desired := resolveRefs(res.Attributes, snap, true).(map[string]any)
		prior := snap.Resource(addr)

		var priorAttrs map[string]any
		if prior != nil {
			priorAttrs = prior.Attributes
		}
		diff, err := prov.Diff(ctx, res.Type, priorAttrs, desired)
		if err != nil {
			return nil, fmt.Errorf("diff failed for %s: %w", addr, err)
		}

		var kind ir.ActionKind
		switch {
		case prior == nil:
			kind = ir.ActionCreate
		case !provider.Changed(diff):
			kind = ir.ActionNoOp
		case provider.ForcesReplacement(diff):
			kind = ir.ActionReplace
		default:
			kind = ir.ActionUpdate
		}

		if kind == ir.ActionReplace && res.Lifecycle != nil && res.Lifecycle.PreventDestroy {
			return nil, configErrorf("resource %s has prevent_destroy set but an immutable attribute changed; the plan requires destruction", addr)
		}

		action := &ir.Action{
			Address:             addr,
			Kind:                kind,
			Diff:                diff,
			CreateBeforeDestroy: res.CreateBeforeDestroy(),
			Desired:             res,
			Prior:               prior,
		}
		plan.Actions = append(plan.Actions, action)
		kindByAddr[addr] = kind

		switch kind {
		case ir.ActionCreate:
			plan.Summary.Create++
		case ir.ActionUpdate:
			plan.Summary.Update++
		case ir.ActionReplace:
			plan.Summary.Replace++
		default:
			plan.Summary.NoOp++
		}
	}

	// Resources in state but absent from the desired graph are destroyed,
	// per instance: a shrink in cardinality destroys only the dropped
	// indices or keys.
	destroyed := make(map[ir.Address]*ir.Action)
	for _, rec := range snap.Resources {
		if _, stillDesired := byAddr[rec.Address]; stillDesired {
			continue
		}
		if err := e.registry.LoadProvider(rec.Provider); err != nil {
			return nil, fmt.Errorf("failed to load provider %s: %w", rec.Provider, err)
		}
		diff := make(map[string]*ir.AttributeDiff, len(rec.Attributes))
		for k, v := range rec.Attributes {
			diff[k] = &ir.AttributeDiff{Before: v}
		}
		action := &ir.Action{
			Address: rec.Address,
			Kind:    ir.ActionDestroy,
			Diff:    diff,
			Prior:   rec,
		}
		plan.Actions = append(plan.Actions, action)
		destroyed[rec.Address] = action
		kindByAddr[rec.Address] = ir.ActionDestroy
		plan.Summary.Destroy++
	}

	// Wire execution dependencies. Forward actions wait on every transitive
	// dependency that itself has work; NoOps are skipped by the executor so
	// they must not appear as prerequisites.
	for _, action := range plan.Actions {
		switch action.Kind {
		case ir.ActionCreate, ir.ActionUpdate, ir.ActionReplace:
			action.ResourceDependencies = dag.Dependencies(action.Address)
			for _, dep := range dag.TransitiveDeps(action.Address) {
				if k, ok := kindByAddr[dep]; ok && k != ir.ActionNoOp && k != ir.ActionDestroy {
					action.Dependencies = append(action.Dependencies, dep)
				}
			}
		}
	}

	// Destroys run in reverse dependency order: a record is destroyed only
	// after everything that depends on it is gone.
	for _, action := range destroyed {
		rec := action.Prior
		for _, dep := range rec.Dependencies {
			if depAction, ok := destroyed[dep]; ok {
				depAction.Dependencies = append(depAction.Dependencies, action.Address)
			}
		}
	}

	logging.Debug("plan computed",
		"create", plan.Summary.Create, "update", plan.Summary.Update,
		"replace", plan.Summary.Replace, "destroy", plan.Summary.Destroy,
		"noop", plan.Summary.NoOp)
	return plan, nil
}
