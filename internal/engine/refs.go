package engine

import (
	"strings"

	"github.com/statecraft-io/statecraft/internal/ir"
)

// resolveRefs walks a value and substitutes ref:// strings with the
// referenced resource's recorded attribute. At plan time the snapshot may
// not yet contain the target (it is being created in the same plan); with
// placeholder set, such references resolve to the unknown-value marker so
// they never look like real changes. At apply time dependency ordering
// guarantees the target record exists before a dependent starts.
func resolveRefs(v any, snap *ir.Snapshot, placeholder bool) any {
	switch val := v.(type) {
	case string:
		if !strings.HasPrefix(val, refPrefix) {
			return val
		}
		addr, attr, err := ParseRef(val)
		if err != nil {
			return val
		}
		if rec := snap.Resource(addr); rec != nil {
			if resolved, ok := rec.Attributes[attr]; ok {
				return ir.CopyValue(resolved)
			}
		}
		if placeholder {
			return ir.UnknownValue
		}
		return val
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = resolveRefs(item, snap, placeholder)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = resolveRefs(item, snap, placeholder)
		}
		return out
	default:
		return v
	}
}
