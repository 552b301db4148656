package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/statecraft-io/statecraft/internal/ir"
)

// Expand resolves resource multiplicity once, up front: a count resource
// becomes one instance per ordinal index, a for_each resource one instance
// per key, and everything else a single non-indexed instance. Cardinality is
// part of the address, so a later shrink or grow diffs per-instance instead
// of replacing the whole set.
func Expand(resources []*ir.Resource) ([]*ir.Resource, error) {
	var expanded []*ir.Resource

	for _, res := range resources {
		if res.Type == "" || res.Name == "" {
			return nil, configErrorf("resource %q.%q is missing a type or name", res.Type, res.Name)
		}
		if res.Count > 0 && len(res.ForEach) > 0 {
			return nil, configErrorf("resource %s.%s sets both count and for_each", res.Type, res.Name)
		}

		base := ir.Addr(res.Type, res.Name)
		switch {
		case res.Count > 0:
			for i := 0; i < res.Count; i++ {
				clone := cloneResource(res)
				clone.Addr = base.Indexed(i)
				clone.Attributes = substituteAll(clone.Attributes, map[string]string{
					"${count.index}": fmt.Sprintf("%d", i),
				})
				expanded = append(expanded, clone)
			}
		case len(res.ForEach) > 0:
			keys := make([]string, 0, len(res.ForEach))
			for k := range res.ForEach {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				clone := cloneResource(res)
				clone.Addr = base.Keyed(k)
				clone.Attributes = substituteAll(clone.Attributes, map[string]string{
					"${each.key}":   k,
					"${each.value}": fmt.Sprintf("%v", res.ForEach[k]),
				})
				expanded = append(expanded, clone)
			}
		default:
			clone := cloneResource(res)
			clone.Addr = base
			expanded = append(expanded, clone)
		}
	}

	seen := make(map[ir.Address]bool, len(expanded))
	for _, res := range expanded {
		if seen[res.Addr] {
			return nil, configErrorf("duplicate resource address %s", res.Addr)
		}
		seen[res.Addr] = true
	}

	return expanded, nil
}

func cloneResource(res *ir.Resource) *ir.Resource {
	clone := &ir.Resource{
		Type:     res.Type,
		Name:     res.Name,
		Provider: res.Provider,
	}
	if res.Lifecycle != nil {
		clone.Lifecycle = &ir.Lifecycle{
			CreateBeforeDestroy: res.Lifecycle.CreateBeforeDestroy,
			PreventDestroy:      res.Lifecycle.PreventDestroy,
		}
	}
	clone.DependsOn = append([]string{}, res.DependsOn...)
	clone.Attributes = ir.CopyAttributes(res.Attributes)
	return clone
}

func substituteAll(attrs map[string]any, replacements map[string]string) map[string]any {
	if attrs == nil {
		return nil
	}
	result := make(map[string]any, len(attrs))
	for k, v := range attrs {
		result[k] = substituteValue(v, replacements)
	}
	return result
}

func substituteValue(v any, replacements map[string]string) any {
	switch val := v.(type) {
	case string:
		result := val
		for old, repl := range replacements {
			result = strings.ReplaceAll(result, old, repl)
		}
		return result
	case map[string]any:
		return substituteAll(val, replacements)
	case []any:
		result := make([]any, len(val))
		for i, item := range val {
			result[i] = substituteValue(item, replacements)
		}
		return result
	default:
		return v
	}
}
