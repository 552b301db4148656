package provider

import (
	"bytes"
	"encoding/json"

	"github.com/statecraft-io/statecraft/internal/ir"
)

// DefaultDiff computes an attribute-level diff between prior recorded
// attributes and desired attributes, applying schema rules: attributes in
// RequiresReplacement are flagged as forcing replacement, and computed
// attributes absent from the desired set are placeheld rather than treated
// as removals.
func DefaultDiff(schema Schema, prior, desired map[string]any) map[string]*ir.AttributeDiff {
	replace := toSet(schema.RequiresReplacement)
	computed := toSet(schema.Computed)

	diff := make(map[string]*ir.AttributeDiff)

	keys := make(map[string]bool, len(prior)+len(desired))
	for k := range prior {
		keys[k] = true
	}
	for k := range desired {
		keys[k] = true
	}

	for k := range keys {
		before, inPrior := prior[k]
		after, inDesired := desired[k]

		if computed[k] && !inDesired {
			// Value owned by the provider; carry it forward as a
			// placeholder, never as a removal.
			diff[k] = &ir.AttributeDiff{Before: before, After: ir.UnknownValue, Computed: true}
			continue
		}

		switch {
		case !inPrior:
			diff[k] = &ir.AttributeDiff{After: after}
		case !inDesired:
			diff[k] = &ir.AttributeDiff{Before: before}
		case !valueEqual(before, after):
			diff[k] = &ir.AttributeDiff{Before: before, After: after}
		default:
			continue
		}

		if replace[k] {
			diff[k].ForcesReplacement = true
		}
	}

	return diff
}

// Changed reports whether the diff contains any real difference, ignoring
// computed placeholders.
func Changed(diff map[string]*ir.AttributeDiff) bool {
	for _, d := range diff {
		if !d.Computed {
			return true
		}
	}
	return false
}

// ForcesReplacement reports whether any differing attribute requires the
// resource to be replaced.
func ForcesReplacement(diff map[string]*ir.AttributeDiff) bool {
	for _, d := range diff {
		if d.ForcesReplacement && !d.Computed {
			return true
		}
	}
	return false
}

func toSet(keys []string) map[string]bool {
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	return set
}

// valueEqual compares through JSON encoding: desired values arrive from
// YAML (int) while recorded ones round-trip through JSON (float64), and
// both render identically; a genuine type change ("1" vs 1) does not.
func valueEqual(a, b any) bool {
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
