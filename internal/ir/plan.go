package ir

import "time"

// ActionKind classifies a planned change.
type ActionKind string

const (
	ActionCreate  ActionKind = "create"
	ActionUpdate  ActionKind = "update"
	ActionDestroy ActionKind = "destroy"
	ActionReplace ActionKind = "replace"
	ActionNoOp    ActionKind = "noop"
)

// UnknownValue is the placeholder recorded in a diff for computed attributes
// whose value is not knowable until apply time. It never triggers a replace.
const UnknownValue = "(known after apply)"

// Plan is an ordered list of actions produced by the planner. Actions appear
// in deterministic topological order; the executor derives its scheduling
// DAG from each action's Dependencies.
type Plan struct {
	CreatedAt time.Time         `json:"created_at"`
	Actions   []*Action         `json:"actions"`
	Summary   Summary           `json:"summary"`
	Outputs   map[string]Output `json:"outputs,omitempty"`
	Warnings  []string          `json:"warnings,omitempty"`
}

// Action is one planned change against one address. For a Replace the
// ordering of the destroy and create halves is resolved here, at plan time,
// via CreateBeforeDestroy; the executor never decides it ad hoc.
type Action struct {
	Address             Address                   `json:"address"`
	Kind                ActionKind                `json:"kind"`
	Diff                map[string]*AttributeDiff `json:"diff,omitempty"`
	CreateBeforeDestroy bool                      `json:"create_before_destroy,omitempty"`
	// Dependencies are the actions this one must wait for during execution.
	Dependencies []Address `json:"dependencies,omitempty"`
	// ResourceDependencies are the resource's direct declared and inferred
	// dependencies, recorded into state so destroys order correctly later.
	ResourceDependencies []Address       `json:"resource_dependencies,omitempty"`
	Desired              *Resource       `json:"-"`
	Prior                *ResourceRecord `json:"-"`
}

// AttributeDiff records one attribute-level difference.
type AttributeDiff struct {
	Before            any  `json:"before,omitempty"`
	After             any  `json:"after,omitempty"`
	ForcesReplacement bool `json:"forces_replacement,omitempty"`
	Computed          bool `json:"computed,omitempty"`
}

// Summary counts planned actions by kind.
type Summary struct {
	Create  int `json:"create"`
	Update  int `json:"update"`
	Destroy int `json:"destroy"`
	Replace int `json:"replace"`
	NoOp    int `json:"noop"`
}

// Changes reports whether the plan contains anything other than no-ops.
func (p *Plan) Changes() bool {
	return p.Summary.Create+p.Summary.Update+p.Summary.Destroy+p.Summary.Replace > 0
}

// ActionStatus is the terminal status of one action after an apply run.
type ActionStatus string

const (
	StatusPending   ActionStatus = "pending"
	StatusApplied   ActionStatus = "applied"
	StatusFailed    ActionStatus = "failed"
	StatusCancelled ActionStatus = "cancelled"
)

// ActionResult is the outcome of a single action.
type ActionResult struct {
	Address  Address       `json:"address"`
	Kind     ActionKind    `json:"kind"`
	Status   ActionStatus  `json:"status"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

// ApplyResult aggregates per-action outcomes for one apply run. The counts
// reflect what actually happened: a failed apply leaves state consistent
// with whichever provider calls succeeded.
type ApplyResult struct {
	Actions   []*ActionResult `json:"actions"`
	Created   int             `json:"created"`
	Updated   int             `json:"updated"`
	Destroyed int             `json:"destroyed"`
	Failed    int             `json:"failed"`
	Cancelled int             `json:"cancelled"`
}

// Errored reports whether any action failed.
func (r *ApplyResult) Errored() bool {
	return r.Failed > 0
}
