// Package state persists snapshots through pluggable backends and mediates
// all cross-process concurrency: optimistic serial checks on save plus a
// lease-based lock manager. The snapshot is the only shared mutable resource
// in the system and is always reached through this package, never through
// ambient globals.
package state

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/statecraft-io/statecraft/internal/ir"
	"github.com/statecraft-io/statecraft/internal/logging"
)

// Store reads and writes snapshots with optimistic concurrency control.
type Store struct {
	backend Backend
}

func NewStore(backend Backend) *Store {
	return &Store{backend: backend}
}

// Backend exposes the underlying backend, for version listing.
func (s *Store) Backend() Backend {
	return s.backend
}

// Load returns the persisted snapshot, or an empty one at serial 0 if
// nothing has been persisted yet.
func (s *Store) Load(ctx context.Context) (*ir.Snapshot, error) {
	snap, err := s.backend.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	if snap == nil {
		snap = ir.NewSnapshot()
	}
	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("loaded state is invalid: %w", err)
	}
	return snap, nil
}

// Save persists snap if the backend is still at expectedSerial, returning
// the snapshot as persisted. It fails with *VersionConflictError when
// another writer advanced the serial first; the caller must reload,
// recompute and retry. A save whose content is identical to what is already
// persisted is a no-op and leaves the serial unchanged; any real mutation
// bumps it by exactly one. Lineage is assigned on first save and preserved
// forever after.
func (s *Store) Save(ctx context.Context, snap *ir.Snapshot, expectedSerial int) (*ir.Snapshot, error) {
	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("refusing to save invalid state: %w", err)
	}

	current, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	if current.Serial != expectedSerial {
		return nil, &VersionConflictError{Expected: expectedSerial, Actual: current.Serial}
	}

	if current.SameContent(snap) {
		return current, nil
	}

	out := snap.DeepCopy()
	out.Version = ir.StateVersion
	out.Serial = expectedSerial + 1
	if current.Lineage != "" {
		out.Lineage = current.Lineage
	} else if out.Lineage == "" {
		out.Lineage = uuid.NewString()
	}

	if err := s.backend.Persist(ctx, out); err != nil {
		return nil, fmt.Errorf("failed to persist state: %w", err)
	}
	logging.Debug("state saved", "serial", out.Serial, "resources", len(out.Resources))
	return out, nil
}

// Overwrite persists snap as-is, bypassing the serial check. Push with
// force uses it; nothing else should.
func (s *Store) Overwrite(ctx context.Context, snap *ir.Snapshot) error {
	if err := snap.Validate(); err != nil {
		return fmt.Errorf("refusing to overwrite with invalid state: %w", err)
	}
	if snap.Lineage == "" {
		snap.Lineage = uuid.NewString()
	}
	logging.Warn("overwriting state unconditionally", "serial", snap.Serial, "lineage", snap.Lineage)
	return s.backend.Persist(ctx, snap)
}
