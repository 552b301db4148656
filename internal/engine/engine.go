// Package engine turns a desired resource graph into provider calls: it
// plans by diffing the graph against recorded state, applies plans over a
// dependency-ordered worker pool, refreshes recorded attributes against live
// provider reality, and performs direct state surgery (import, move,
// remove). Every operation that can mutate state holds the state lock for
// its entire duration.
package engine

import (
	"context"
	"time"

	"github.com/statecraft-io/statecraft/internal/logging"
	"github.com/statecraft-io/statecraft/internal/provider"
	"github.com/statecraft-io/statecraft/internal/state"
)

const defaultParallelism = 10

// DefaultLockTimeout bounds how long operations wait for the state lock
// before surfacing LockHeld.
const DefaultLockTimeout = 10 * time.Second

// Engine orchestrates the lifecycle of resources against a single state.
type Engine struct {
	registry *provider.Registry
	store    *state.Store
	locks    *state.LockManager

	// Parallelism bounds the apply worker pool. Zero means the default.
	Parallelism int
	// LockTimeout bounds lock acquisition waits.
	LockTimeout time.Duration
	// SkipRefresh disables the implicit refresh before planning.
	SkipRefresh bool
}

func New(registry *provider.Registry, store *state.Store, locks *state.LockManager) *Engine {
	return &Engine{
		registry:    registry,
		store:       store,
		locks:       locks,
		LockTimeout: DefaultLockTimeout,
	}
}

// Store exposes the underlying state store for read-only inspection. Reads
// taken this way do not hold the lock and may be stale during a concurrent
// apply; they must never drive a mutating decision.
func (e *Engine) Store() *state.Store {
	return e.store
}

// ForceUnlock releases the state lock unconditionally. Operator escape
// hatch for locks orphaned by a crashed process; follow a mid-apply crash
// with a refresh before trusting the next plan.
func (e *Engine) ForceUnlock(ctx context.Context, lockID string) error {
	return e.locks.ForceUnlock(ctx, lockID)
}

// withLock runs fn while holding the state lock for operation op. A failed
// release does not fail the operation, but it is logged with the lock id so
// the operator can force-unlock instead of discovering it on the next run.
func (e *Engine) withLock(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	timeout := e.LockTimeout
	if timeout < 0 {
		timeout = 0
	}
	lease, err := e.locks.Acquire(ctx, op, timeout)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := lease.Release(); rerr != nil {
			logging.Error("failed to release state lock", "id", lease.Info.ID, "operation", op, "error", rerr)
		}
	}()
	return fn(ctx)
}

func (e *Engine) parallelism() int {
	if e.Parallelism > 0 {
		return e.Parallelism
	}
	return defaultParallelism
}
