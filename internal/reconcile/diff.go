package reconcile

import (
	"grimm.is/topoctl/internal/catalog"
	"grimm.is/topoctl/internal/kernel"
)

// DiffKind classifies desired against observed state for one object.
type DiffKind int

const (
	// Missing: nothing holds the name.
	Missing DiffKind = iota
	// Matches: the object exists as declared.
	Matches
	// Diverged: the object exists with different attributes.
	Diverged
	// ForeignConflict: the name is held by an object topoctl does not own
	// and of a different type.
	ForeignConflict
)

func (k DiffKind) String() string {
	switch k {
	case Missing:
		return "missing"
	case Matches:
		return "matches"
	case Diverged:
		return "diverged"
	case ForeignConflict:
		return "foreign-conflict"
	}
	return "unknown"
}

// Diff is the result of Compare.
type Diff struct {
	Kind DiffKind
	// Structural names attributes that can only change by recreating the
	// object; Mutable names attributes an update can fix.
	Structural []string
	Mutable    []string
	// Adopted is set when the object exists, is compatible, and was not
	// created by topoctl.
	Adopted bool
}

// Compare diffs a desired record against what was observed.
func Compare(desired catalog.Attributes, obs *kernel.Observed) Diff {
	if obs == nil {
		return Diff{Kind: Missing}
	}
	if obs.Type != desired.Type() {
		if !obs.Owned {
			return Diff{Kind: ForeignConflict, Structural: []string{"type"}}
		}
		return Diff{Kind: Diverged, Structural: []string{"type"}}
	}

	d := Diff{Adopted: !obs.Owned}
	if obs.Attrs == nil {
		d.Kind = Matches
		return d
	}
	d.Structural, d.Mutable = desired.Diff(obs.Attrs)
	if len(d.Structural) == 0 && len(d.Mutable) == 0 {
		d.Kind = Matches
	} else {
		d.Kind = Diverged
	}
	return d
}

// Drift returns every differing attribute name, structural first.
func (d Diff) Drift() []string {
	if len(d.Structural)+len(d.Mutable) == 0 {
		return nil
	}
	out := make([]string, 0, len(d.Structural)+len(d.Mutable))
	out = append(out, d.Structural...)
	return append(out, d.Mutable...)
}
