package catalog

import (
	"fmt"
	"strings"
)

// RelationType is the type of a directed edge between two objects.
type RelationType int

const (
	// Contains links a namespace to an object placed inside it.
	Contains RelationType = iota
	// AttachesTo links an interface to the bridge or VRF it joins, or an
	// address to the interface it is assigned on.
	AttachesTo
	// PairsWith links the two endpoints of a veth pair. It is symmetric but
	// recorded once, From being the endpoint with the smaller Key.
	PairsWith
	// Uses links a vxlan to the underlay device its tunnel is bound to.
	Uses
)

var relationNames = [...]string{
	Contains:   "contains",
	AttachesTo: "attaches-to",
	PairsWith:  "pairs-with",
	Uses:       "uses",
}

func (t RelationType) String() string {
	if t < 0 || int(t) >= len(relationNames) {
		return fmt.Sprintf("relation(%d)", int(t))
	}
	return relationNames[t]
}

// ParseRelationType accepts the canonical names, with '_' in place of '-'.
func ParseRelationType(s string) (RelationType, error) {
	name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")
	for i, n := range relationNames {
		if n == name {
			return RelationType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown relation type %q", s)
}

// Relation is a typed directed edge between two declared objects.
type Relation struct {
	Type RelationType
	From Key
	To   Key
}

func (r Relation) String() string {
	return fmt.Sprintf("%s -%s-> %s", r.From, r.Type, r.To)
}

// Canonical returns the relation in its recorded form. Only pairs-with
// relations are reordered.
func (r Relation) Canonical() Relation {
	if r.Type == PairsWith && r.To.Less(r.From) {
		r.From, r.To = r.To, r.From
	}
	return r
}

// CompareRelations orders relations by type, then From, then To.
func CompareRelations(a, b Relation) int {
	if a.Type != b.Type {
		if a.Type < b.Type {
			return -1
		}
		return 1
	}
	if c := Compare(a.From, b.From); c != 0 {
		return c
	}
	return Compare(a.To, b.To)
}

// CanAttach reports whether an object of kind from may attach to an object of
// kind to.
func CanAttach(from, to Kind) bool {
	switch from {
	case KindBridge:
		return to == KindVRF
	case KindLink, KindVeth:
		return to == KindVRF || to == KindBridge
	case KindAddress:
		return to.IsLink()
	}
	return false
}

// CanUse reports whether an object of kind from may use one of kind to as its
// underlay.
func CanUse(from, to Kind) bool {
	return from == KindLink && to.IsLink()
}

// CanContain reports whether an object of kind from may contain one of kind to.
// Namespaces may logically contain other namespaces; mutual containment is a
// cycle and is rejected when ordering.
func CanContain(from, to Kind) bool {
	return from == KindNamespace && to.Valid()
}
