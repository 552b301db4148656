package ir

import (
	"encoding/json"
	"fmt"
)

// StateVersion is the current on-disk state format version.
const StateVersion = 1

// Snapshot is the durable record mapping declared resources to real
// provider-side identities and attributes. Serial increases by exactly one
// on every persisted mutation; Lineage is assigned on first save and never
// changes for the life of a state. A snapshot with zero resources is a valid
// terminal state, not an absent one.
type Snapshot struct {
	Version   int               `json:"version"`
	Serial    int               `json:"serial"`
	Lineage   string            `json:"lineage,omitempty"`
	Outputs   map[string]Output `json:"outputs,omitempty"`
	Resources []*ResourceRecord `json:"resources"`
}

// Output is a named root-level output value recorded in state.
type Output struct {
	Value     any  `yaml:"value" json:"value"`
	Sensitive bool `yaml:"sensitive,omitempty" json:"sensitive,omitempty"`
}

// ResourceRecord ties one address to the provider-side object it manages.
type ResourceRecord struct {
	Address             Address        `json:"address"`
	Provider            string         `json:"provider"`
	ID                  string         `json:"id,omitempty"`
	Attributes          map[string]any `json:"attributes"`
	Dependencies        []Address      `json:"dependencies,omitempty"`
	CreateBeforeDestroy bool           `json:"create_before_destroy,omitempty"`
}

// NewSnapshot returns an empty snapshot at serial 0 with no lineage.
// Lineage is assigned by the store on first save.
func NewSnapshot() *Snapshot {
	return &Snapshot{Version: StateVersion, Resources: []*ResourceRecord{}}
}

// Resource returns the record at addr, or nil.
func (s *Snapshot) Resource(addr Address) *ResourceRecord {
	for _, r := range s.Resources {
		if r.Address == addr {
			return r
		}
	}
	return nil
}

// SetResource inserts rec, replacing any existing record at the same
// address. Insertion order of new records is preserved.
func (s *Snapshot) SetResource(rec *ResourceRecord) {
	for i, r := range s.Resources {
		if r.Address == rec.Address {
			s.Resources[i] = rec
			return
		}
	}
	s.Resources = append(s.Resources, rec)
}

// RemoveResource deletes the record at addr. It reports whether a record was
// present.
func (s *Snapshot) RemoveResource(addr Address) bool {
	for i, r := range s.Resources {
		if r.Address == addr {
			s.Resources = append(s.Resources[:i], s.Resources[i+1:]...)
			return true
		}
	}
	return false
}

// DeepCopy returns an independent copy of the snapshot. The executor works
// on a copy so that a partially failed apply can still be persisted without
// having mutated the caller's view.
func (s *Snapshot) DeepCopy() *Snapshot {
	cp := &Snapshot{
		Version: s.Version,
		Serial:  s.Serial,
		Lineage: s.Lineage,
	}
	if s.Outputs != nil {
		cp.Outputs = make(map[string]Output, len(s.Outputs))
		for k, v := range s.Outputs {
			cp.Outputs[k] = Output{Value: CopyValue(v.Value), Sensitive: v.Sensitive}
		}
	}
	cp.Resources = make([]*ResourceRecord, len(s.Resources))
	for i, r := range s.Resources {
		rc := &ResourceRecord{
			Address:             r.Address,
			Provider:            r.Provider,
			ID:                  r.ID,
			Attributes:          CopyAttributes(r.Attributes),
			CreateBeforeDestroy: r.CreateBeforeDestroy,
		}
		rc.Dependencies = append(rc.Dependencies, r.Dependencies...)
		cp.Resources[i] = rc
	}
	return cp
}

// SameContent reports whether two snapshots carry identical resources and
// outputs, ignoring serial. Used by the store to skip no-op saves.
func (s *Snapshot) SameContent(other *Snapshot) bool {
	a := s.DeepCopy()
	b := other.DeepCopy()
	a.Serial, b.Serial = 0, 0
	aj, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bj, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return string(aj) == string(bj)
}

// Validate checks snapshot-level invariants, currently address uniqueness.
func (s *Snapshot) Validate() error {
	seen := make(map[Address]bool, len(s.Resources))
	for _, r := range s.Resources {
		if seen[r.Address] {
			return fmt.Errorf("duplicate address %s in snapshot", r.Address)
		}
		seen[r.Address] = true
	}
	return nil
}

// CopyAttributes deep-copies an attribute map.
func CopyAttributes(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = CopyValue(v)
	}
	return out
}

// CopyValue deep-copies a JSON-compatible value.
func CopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CopyAttributes(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = CopyValue(item)
		}
		return out
	default:
		return v
	}
}
