package engine

import (
	"context"
	"fmt"

	"github.com/statecraft-io/statecraft/internal/ir"
	"github.com/statecraft-io/statecraft/internal/logging"
)

// Import brings an existing provider-side object under management: it
// fetches the object's live attributes and inserts a record at addr with no
// configuration history. A later plan may therefore show Update or Replace
// if the written configuration does not exactly match the imported reality.
// It fails with *AddressInUseError if addr already has a record and
// *NotFoundError if providerID does not resolve; neither failure mutates
// state.
func (e *Engine) Import(ctx context.Context, addr ir.Address, providerName, providerID string) (*ir.ResourceRecord, error) {
	var rec *ir.ResourceRecord
	err := e.withLock(ctx, "import", func(ctx context.Context) error {
		snap, err := e.store.Load(ctx)
		if err != nil {
			return err
		}
		if snap.Resource(addr) != nil {
			return &AddressInUseError{Address: addr}
		}

		if err := e.registry.LoadProvider(providerName); err != nil {
			return fmt.Errorf("failed to load provider %s: %w", providerName, err)
		}
		prov, err := e.registry.Get(providerName)
		if err != nil {
			return err
		}

		exists, attrs, err := prov.Read(ctx, addr.Type, providerID, nil)
		if err != nil {
			return fmt.Errorf("failed to read %s from provider: %w", providerID, err)
		}
		if !exists {
			return &NotFoundError{Subject: fmt.Sprintf("provider object %q", providerID)}
		}

		rec = &ir.ResourceRecord{
			Address:    addr,
			Provider:   providerName,
			ID:         providerID,
			Attributes: attrs,
		}
		snap.SetResource(rec)
		_, err = e.store.Save(ctx, snap, snap.Serial)
		return err
	})
	if err != nil {
		return nil, err
	}
	logging.Info("resource imported", "address", addr.String(), "id", providerID)
	return rec, nil
}

// Move renames a record in state. It is a pure state operation: no provider
// is ever called. It fails with *NotFoundError if oldAddr has no record and
// *AddressInUseError if newAddr already does. References recorded in other
// resources' dependencies are rewritten to the new address.
func (e *Engine) Move(ctx context.Context, oldAddr, newAddr ir.Address) error {
	return e.withLock(ctx, "move", func(ctx context.Context) error {
		snap, err := e.store.Load(ctx)
		if err != nil {
			return err
		}
		rec := snap.Resource(oldAddr)
		if rec == nil {
			return &NotFoundError{Subject: fmt.Sprintf("resource %s", oldAddr)}
		}
		if snap.Resource(newAddr) != nil {
			return &AddressInUseError{Address: newAddr}
		}

		rec.Address = newAddr
		for _, other := range snap.Resources {
			for i, dep := range other.Dependencies {
				if dep == oldAddr {
					other.Dependencies[i] = newAddr
				}
			}
		}

		if _, err := e.store.Save(ctx, snap, snap.Serial); err != nil {
			return err
		}
		logging.Info("resource moved", "from", oldAddr.String(), "to", newAddr.String())
		return nil
	})
}

// Remove deletes a record from state WITHOUT touching the real resource:
// the underlying object keeps existing and simply becomes unmanaged. This
// is deliberately not a destroy. It fails with *NotFoundError if addr has
// no record.
func (e *Engine) Remove(ctx context.Context, addr ir.Address) error {
	return e.withLock(ctx, "remove", func(ctx context.Context) error {
		snap, err := e.store.Load(ctx)
		if err != nil {
			return err
		}
		if !snap.RemoveResource(addr) {
			return &NotFoundError{Subject: fmt.Sprintf("resource %s", addr)}
		}
		for _, other := range snap.Resources {
			deps := other.Dependencies[:0]
			for _, dep := range other.Dependencies {
				if dep != addr {
					deps = append(deps, dep)
				}
			}
			other.Dependencies = deps
		}
		if _, err := e.store.Save(ctx, snap, snap.Serial); err != nil {
			return err
		}
		logging.Info("resource removed from state; the real object is now unmanaged", "address", addr.String())
		return nil
	})
}

// Pull returns the persisted snapshot as-is. It does not take the lock:
// this is a read-only inspection that may be stale during a concurrent
// apply and must not drive a mutating decision.
func (e *Engine) Pull(ctx context.Context) (*ir.Snapshot, error) {
	return e.store.Load(ctx)
}

// Push overwrites the persisted snapshot with a caller-supplied one.
// Without force it refuses a lineage mismatch or a serial regression; with
// force it overwrites unconditionally.
func (e *Engine) Push(ctx context.Context, snap *ir.Snapshot, force bool) error {
	return e.withLock(ctx, "push", func(ctx context.Context) error {
		current, err := e.store.Load(ctx)
		if err != nil {
			return err
		}
		if !force {
			if current.Lineage != "" && snap.Lineage != "" && current.Lineage != snap.Lineage {
				return fmt.Errorf("lineage mismatch: remote state has lineage %s, pushed state has %s (use force to override)",
					current.Lineage, snap.Lineage)
			}
			if snap.Serial < current.Serial {
				return fmt.Errorf("serial regression: remote state is at serial %d, pushed state at %d (use force to override)",
					current.Serial, snap.Serial)
			}
		}
		return e.store.Overwrite(ctx, snap)
	})
}
