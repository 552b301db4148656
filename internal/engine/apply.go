package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/statecraft-io/statecraft/internal/ir"
	"github.com/statecraft-io/statecraft/internal/logging"
)

// ApplyEvent represents a progress event during apply.
type ApplyEvent struct {
	Address  ir.Address
	Kind     ir.ActionKind
	Status   string // "started", "applied", "failed", "cancelled"
	Duration time.Duration
	Error    error
}

// ApplyCallback is called for each apply event if set.
type ApplyCallback func(event ApplyEvent)

// Apply executes a plan against the providers and persists the outcome. It
// holds the state lock for the whole run. Actions execute over a bounded
// worker pool in dependency order; a failure cancels the failing action's
// transitive dependents while unrelated branches continue. The working
// snapshot is committed per successful provider call and persisted at the
// end of the run even when the run failed or was interrupted, so partial
// progress is never discarded.
func (e *Engine) Apply(ctx context.Context, plan *ir.Plan) (*ir.ApplyResult, error) {
	return e.ApplyWithCallback(ctx, plan, nil)
}

// ApplyWithCallback is Apply with progress event callbacks.
func (e *Engine) ApplyWithCallback(ctx context.Context, plan *ir.Plan, callback ApplyCallback) (*ir.ApplyResult, error) {
	var result *ir.ApplyResult
	err := e.withLock(ctx, "apply", func(ctx context.Context) error {
		snap, err := e.store.Load(ctx)
		if err != nil {
			return err
		}
		expected := snap.Serial
		working := snap.DeepCopy()

		result = e.execute(ctx, plan, working, callback)

		if plan.Outputs != nil && result.Failed == 0 && result.Cancelled == 0 {
			outputs := make(map[string]ir.Output, len(plan.Outputs))
			for name, out := range plan.Outputs {
				outputs[name] = ir.Output{
					Value:     resolveRefs(out.Value, working, false),
					Sensitive: out.Sensitive,
				}
			}
			working.Outputs = outputs
		}

		if _, err := e.store.Save(ctx, working, expected); err != nil {
			return fmt.Errorf("failed to persist state after apply: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// execute runs the plan's non-noop actions over the worker pool, committing
// each success into the working snapshot.
func (e *Engine) execute(ctx context.Context, plan *ir.Plan, working *ir.Snapshot, callback ApplyCallback) *ir.ApplyResult {
	emit := func(event ApplyEvent) {
		if callback != nil {
			callback(event)
		}
	}

	var actions []*ir.Action
	for _, a := range plan.Actions {
		if a.Kind != ir.ActionNoOp {
			actions = append(actions, a)
		}
	}

	result := &ir.ApplyResult{}
	results := make(map[ir.Address]*ir.ActionResult, len(actions))
	status := make(map[ir.Address]ir.ActionStatus, len(actions))
	for _, a := range actions {
		r := &ir.ActionResult{Address: a.Address, Kind: a.Kind, Status: ir.StatusPending}
		results[a.Address] = r
		result.Actions = append(result.Actions, r)
		status[a.Address] = ir.StatusPending
	}

	var mu sync.Mutex
	cond := sync.NewCond(&mu)
	var snapMu sync.Mutex
	sem := make(chan struct{}, e.parallelism())

	// Wake waiters when the user interrupts so not-yet-started actions can
	// move to cancelled.
	watchDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			cond.Broadcast()
		case <-watchDone:
		}
	}()
	defer close(watchDone)

	var wg sync.WaitGroup
	for _, action := range actions {
		wg.Add(1)
		go func(a *ir.Action) {
			defer wg.Done()

			cancel := func(reason string) {
				mu.Lock()
				status[a.Address] = ir.StatusCancelled
				r := results[a.Address]
				r.Status = ir.StatusCancelled
				r.Error = reason
				mu.Unlock()
				cond.Broadcast()
				emit(ApplyEvent{Address: a.Address, Kind: a.Kind, Status: "cancelled"})
			}

			mu.Lock()
			for {
				if ctx.Err() != nil {
					mu.Unlock()
					cancel("apply interrupted before this action started")
					return
				}
				pending := false
				blocked := false
				for _, dep := range a.Dependencies {
					switch status[dep] {
					case ir.StatusApplied:
					case ir.StatusFailed, ir.StatusCancelled:
						blocked = true
					default:
						pending = true
					}
				}
				if blocked {
					mu.Unlock()
					cancel("a dependency failed or was cancelled")
					return
				}
				if !pending {
					break
				}
				cond.Wait()
			}
			mu.Unlock()

			sem <- struct{}{}
			defer func() { <-sem }()

			if ctx.Err() != nil {
				cancel("apply interrupted before this action started")
				return
			}

			start := time.Now()
			emit(ApplyEvent{Address: a.Address, Kind: a.Kind, Status: "started"})

			// Once a provider call is in flight it runs to completion even
			// if the user interrupts, so nothing ends up half-created and
			// unrecorded.
			err := e.applyAction(context.WithoutCancel(ctx), a, working, &snapMu)

			mu.Lock()
			r := results[a.Address]
			r.Duration = time.Since(start)
			if err != nil {
				r.Status = ir.StatusFailed
				r.Error = err.Error()
				status[a.Address] = ir.StatusFailed
			} else {
				r.Status = ir.StatusApplied
				status[a.Address] = ir.StatusApplied
			}
			mu.Unlock()
			cond.Broadcast()

			if err != nil {
				logging.Error("action failed", "address", a.Address.String(), "kind", string(a.Kind), "error", err)
				emit(ApplyEvent{Address: a.Address, Kind: a.Kind, Status: "failed", Duration: r.Duration, Error: err})
			} else {
				emit(ApplyEvent{Address: a.Address, Kind: a.Kind, Status: "applied", Duration: r.Duration})
			}
		}(action)
	}
	wg.Wait()

	for _, r := range result.Actions {
		switch r.Status {
		case ir.StatusApplied:
			switch r.Kind {
			case ir.ActionCreate:
				result.Created++
			case ir.ActionUpdate:
				result.Updated++
			case ir.ActionDestroy:
				result.Destroyed++
			case ir.ActionReplace:
				result.Created++
				result.Destroyed++
			}
		case ir.StatusFailed:
			result.Failed++
		case ir.StatusCancelled:
			result.Cancelled++
		}
	}
	return result
}

// applyAction performs one action's provider calls and commits the result
// into the working snapshot. Replace ordering was resolved at plan time;
// both halves run inside this one action.
func (e *Engine) applyAction(ctx context.Context, a *ir.Action, working *ir.Snapshot, snapMu *sync.Mutex) error {
	providerName := ""
	if a.Desired != nil {
		providerName = a.Desired.Provider
	} else if a.Prior != nil {
		providerName = a.Prior.Provider
	}
	prov, err := e.registry.Get(providerName)
	if err != nil {
		return fmt.Errorf("provider not available for %s: %w", a.Address, err)
	}

	retryPolicy := DefaultRetryPolicy()

	resolveAttrs := func() map[string]any {
		snapMu.Lock()
		defer snapMu.Unlock()
		return resolveRefs(a.Desired.Attributes, working, false).(map[string]any)
	}

	create := func() error {
		attrs := resolveAttrs()
		var id string
		var out map[string]any
		err := RetryWithBackoff(ctx, retryPolicy, func() error {
			var cerr error
			id, out, cerr = prov.Create(ctx, a.Desired.Type, attrs)
			return cerr
		}, IsTransientError)
		if err != nil {
			return fmt.Errorf("create failed for %s: %w", a.Address, err)
		}
		snapMu.Lock()
		working.SetResource(&ir.ResourceRecord{
			Address:             a.Address,
			Provider:            providerName,
			ID:                  id,
			Attributes:          out,
			Dependencies:        a.ResourceDependencies,
			CreateBeforeDestroy: a.CreateBeforeDestroy,
		})
		snapMu.Unlock()
		return nil
	}

	destroy := func(rec *ir.ResourceRecord) error {
		err := RetryWithBackoff(ctx, retryPolicy, func() error {
			return prov.Delete(ctx, rec.Address.Type, rec.ID)
		}, IsTransientError)
		if err != nil {
			return fmt.Errorf("destroy failed for %s: %w", rec.Address, err)
		}
		return nil
	}

	switch a.Kind {
	case ir.ActionCreate:
		return create()

	case ir.ActionUpdate:
		attrs := resolveAttrs()
		var out map[string]any
		err := RetryWithBackoff(ctx, retryPolicy, func() error {
			var uerr error
			out, uerr = prov.Update(ctx, a.Desired.Type, a.Prior.ID, attrs)
			return uerr
		}, IsTransientError)
		if err != nil {
			return fmt.Errorf("update failed for %s: %w", a.Address, err)
		}
		snapMu.Lock()
		working.SetResource(&ir.ResourceRecord{
			Address:             a.Address,
			Provider:            providerName,
			ID:                  a.Prior.ID,
			Attributes:          out,
			Dependencies:        a.ResourceDependencies,
			CreateBeforeDestroy: a.CreateBeforeDestroy,
		})
		snapMu.Unlock()
		return nil

	case ir.ActionDestroy:
		if err := destroy(a.Prior); err != nil {
			return err
		}
		snapMu.Lock()
		working.RemoveResource(a.Address)
		snapMu.Unlock()
		return nil

	case ir.ActionReplace:
		if a.CreateBeforeDestroy {
			oldID := a.Prior.ID
			if err := create(); err != nil {
				return err
			}
			old := *a.Prior
			old.ID = oldID
			return destroy(&old)
		}
		if err := destroy(a.Prior); err != nil {
			return err
		}
		snapMu.Lock()
		working.RemoveResource(a.Address)
		snapMu.Unlock()
		return create()

	default:
		return nil
	}
}
