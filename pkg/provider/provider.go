// Package provider defines the capability set a resource provider
// implements. Providers run in-process and are dispatched per resource type
// through the engine's registry.
package provider

import (
	"context"

	"github.com/statecraft-io/statecraft/internal/ir"
)

// Schema describes how the attributes of one resource type behave during
// diffing.
type Schema struct {
	// RequiresReplacement lists attributes that cannot be changed in place;
	// a difference forces a replace.
	RequiresReplacement []string
	// Computed lists attributes whose value is only knowable at apply time.
	// They are placeheld in diffs and never trigger a replace themselves.
	Computed []string
}

// Provider is the capability set implemented per provider: Create, Read,
// Update, Delete and Diff, plus the attribute schema the planner consults.
type Provider interface {
	// Schema returns attribute behavior for a resource type.
	Schema(typ string) (Schema, error)

	// Diff compares prior recorded attributes with desired attributes and
	// returns the attribute-level differences. Most providers delegate to
	// DefaultDiff.
	Diff(ctx context.Context, typ string, prior, desired map[string]any) (map[string]*ir.AttributeDiff, error)

	// Create provisions a new object and returns its provider identity and
	// resulting attributes.
	Create(ctx context.Context, typ string, attrs map[string]any) (id string, result map[string]any, err error)

	// Read fetches live attributes for an existing object. current carries
	// the attributes recorded in state, when known; stateless providers may
	// echo it. exists=false means the object is gone provider-side.
	Read(ctx context.Context, typ, id string, current map[string]any) (exists bool, attrs map[string]any, err error)

	// Update changes an existing object in place and returns its resulting
	// attributes.
	Update(ctx context.Context, typ, id string, attrs map[string]any) (map[string]any, error)

	// Delete removes an existing object.
	Delete(ctx context.Context, typ, id string) error
}
