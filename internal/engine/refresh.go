package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/statecraft-io/statecraft/internal/ir"
	"github.com/statecraft-io/statecraft/internal/logging"
)

// Refresh reconciles recorded attributes with live provider reality and
// persists the result. It only ever updates what the snapshot records — it
// never calls Create or Delete and never consults the desired graph. A
// resource the provider reports gone is dropped from the snapshot, so the
// next plan proposes recreating it.
func (e *Engine) Refresh(ctx context.Context) (*ir.Snapshot, error) {
	var out *ir.Snapshot
	err := e.withLock(ctx, "refresh", func(ctx context.Context) error {
		snap, err := e.store.Load(ctx)
		if err != nil {
			return err
		}
		expected := snap.Serial
		working := snap.DeepCopy()

		changed, removed, err := e.refreshInto(ctx, working)
		if err != nil {
			return err
		}

		if changed == 0 && removed == 0 {
			out = snap
			return nil
		}
		out, err = e.store.Save(ctx, working, expected)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// refreshInto re-reads every record's live attributes into snap, in place.
// It reports how many records drifted and how many disappeared.
func (e *Engine) refreshInto(ctx context.Context, snap *ir.Snapshot) (changed, removed int, err error) {
	var errs []error
	var gone []ir.Address

	for _, rec := range snap.Resources {
		if lerr := e.registry.LoadProvider(rec.Provider); lerr != nil {
			errs = append(errs, fmt.Errorf("%s: %w", rec.Address, lerr))
			continue
		}
		prov, gerr := e.registry.Get(rec.Provider)
		if gerr != nil {
			errs = append(errs, fmt.Errorf("%s: %w", rec.Address, gerr))
			continue
		}

		exists, live, rerr := prov.Read(ctx, rec.Address.Type, rec.ID, rec.Attributes)
		if rerr != nil {
			errs = append(errs, fmt.Errorf("failed to read %s: %w", rec.Address, rerr))
			continue
		}
		if !exists {
			logging.Warn("resource no longer exists in provider", "address", rec.Address.String())
			gone = append(gone, rec.Address)
			removed++
			continue
		}
		if !attributesEqual(rec.Attributes, live) {
			logging.Info("drift detected", "address", rec.Address.String())
			rec.Attributes = live
			changed++
		}
	}

	for _, addr := range gone {
		snap.RemoveResource(addr)
	}

	if len(errs) > 0 {
		return changed, removed, errors.Join(errs...)
	}
	return changed, removed, nil
}

// attributesEqual compares through JSON encoding so numeric types that
// differ only by a YAML/JSON round-trip stay equal while real type drift
// does not. json.Marshal sorts map keys, so the comparison is stable.
func attributesEqual(a, b map[string]any) bool {
	aj, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bj, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(aj, bj)
}
