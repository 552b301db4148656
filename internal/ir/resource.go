package ir

// Resource is one desired resource in the graph handed to the engine. The
// configuration language and its evaluation happen upstream; attribute
// values here are fully resolved except for ref:// strings, which point at
// attributes of other resources and are resolved against live state during
// apply.
type Resource struct {
	Addr       Address        `yaml:"-" json:"-"`
	Type       string         `yaml:"type" json:"type"`
	Name       string         `yaml:"name" json:"name"`
	Provider   string         `yaml:"provider" json:"provider"`
	Count      int            `yaml:"count,omitempty" json:"count,omitempty"`
	ForEach    map[string]any `yaml:"for_each,omitempty" json:"for_each,omitempty"`
	DependsOn  []string       `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
	Lifecycle  *Lifecycle     `yaml:"lifecycle,omitempty" json:"lifecycle,omitempty"`
	Attributes map[string]any `yaml:"attributes,omitempty" json:"attributes,omitempty"`
}

// Lifecycle holds per-resource policy knobs honored by the planner.
type Lifecycle struct {
	CreateBeforeDestroy bool `yaml:"create_before_destroy,omitempty" json:"create_before_destroy,omitempty"`
	PreventDestroy      bool `yaml:"prevent_destroy,omitempty" json:"prevent_destroy,omitempty"`
}

// Graph is the fully-resolved desired state handed to the planner.
type Graph struct {
	Resources []*Resource       `yaml:"resources" json:"resources"`
	Outputs   map[string]Output `yaml:"outputs,omitempty" json:"outputs,omitempty"`
}

// CreateBeforeDestroy reports the resource's replace ordering policy.
// Destroy-before-create is the default.
func (r *Resource) CreateBeforeDestroy() bool {
	return r.Lifecycle != nil && r.Lifecycle.CreateBeforeDestroy
}
