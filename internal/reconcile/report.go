package reconcile

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"grimm.is/topoctl/internal/catalog"
)

// Outcome is what happened to one object.
type Outcome string

const (
	Created   Outcome = "Created"
	Updated   Outcome = "Updated"
	Unchanged Outcome = "Unchanged"
	Removed   Outcome = "Removed"
	Failed    Outcome = "Failed"
	Skipped   Outcome = "Skipped"
	Conflict  Outcome = "Conflict"
)

// Outcomes lists every outcome in report order.
var Outcomes = []Outcome{Created, Updated, Unchanged, Removed, Conflict, Skipped, Failed}

// blocks reports whether an object with this outcome stops the objects
// that depend on it.
func (o Outcome) blocks() bool {
	return o == Failed || o == Skipped || o == Conflict
}

// Action names the kind of run.
type Action string

const (
	ActionApply    Action = "apply"
	ActionTeardown Action = "teardown"
)

// Result is the outcome for one object.
type Result struct {
	Key        catalog.Key `json:"-" yaml:"-"`
	Object     string      `json:"object" yaml:"object"`
	Kind       string      `json:"kind" yaml:"kind"`
	Scope      string      `json:"scope,omitempty" yaml:"scope,omitempty"`
	Name       string      `json:"name" yaml:"name"`
	Outcome    Outcome     `json:"outcome" yaml:"outcome"`
	Operations []string    `json:"operations,omitempty" yaml:"operations,omitempty"`
	Drift      []string    `json:"drift,omitempty" yaml:"drift,omitempty"`
	Attempts   int         `json:"attempts,omitempty" yaml:"attempts,omitempty"`
	Reason     string      `json:"reason,omitempty" yaml:"reason,omitempty"`
}

func newResult(key catalog.Key) Result {
	return Result{
		Key:    key,
		Object: key.String(),
		Kind:   key.Kind.String(),
		Scope:  key.Scope,
		Name:   key.Name,
	}
}

// Report is the per-object account of one run, in plan order.
type Report struct {
	RunID       string    `json:"run_id" yaml:"run_id"`
	Action      Action    `json:"action" yaml:"action"`
	StartedAt   time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt  time.Time `json:"finished_at" yaml:"finished_at"`
	Interrupted bool      `json:"interrupted,omitempty" yaml:"interrupted,omitempty"`
	Results     []Result  `json:"results" yaml:"results"`
}

// Result returns the result for key.
func (r *Report) Result(key catalog.Key) (Result, bool) {
	for _, res := range r.Results {
		if res.Key == key {
			return res, true
		}
	}
	return Result{}, false
}

// Counts returns the number of objects per outcome.
func (r *Report) Counts() map[Outcome]int {
	counts := make(map[Outcome]int)
	for _, res := range r.Results {
		counts[res.Outcome]++
	}
	return counts
}

// Success reports whether no object failed or was skipped. Conflicts are
// reported but do not fail a run.
func (r *Report) Success() bool {
	for _, res := range r.Results {
		if res.Outcome == Failed || res.Outcome == Skipped {
			return false
		}
	}
	return true
}

// Changed reports whether any object was created, updated or removed.
func (r *Report) Changed() bool {
	for _, res := range r.Results {
		switch res.Outcome {
		case Created, Updated, Removed:
			return true
		}
	}
	return false
}

// Summary renders the counts as "2 created, 1 unchanged".
func (r *Report) Summary() string {
	counts := r.Counts()
	var parts []string
	for _, o := range Outcomes {
		if n := counts[o]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, strings.ToLower(string(o))))
		}
	}
	if len(parts) == 0 {
		return "nothing to do"
	}
	s := strings.Join(parts, ", ")
	if r.Interrupted {
		s += " (interrupted)"
	}
	return s
}

// Duration returns how long the run took.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// JSON returns the indented JSON encoding of the report.
func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// YAML returns the YAML encoding of the report.
func (r *Report) YAML() ([]byte, error) {
	return yaml.Marshal(r)
}
