// Package topology builds the validated, immutable model of a declared
// network topology.
package topology

import (
	"slices"

	"grimm.is/topoctl/internal/catalog"
)

// Declaration is one parsed object declaration.
type Declaration struct {
	Kind       catalog.Kind
	Name       string
	Scope      string
	Attributes map[string]string
}

// Key returns the catalog key of the declaration.
func (d Declaration) Key() catalog.Key {
	return catalog.NewKey(d.Kind, d.Scope, d.Name)
}

// Declarations is the complete input of Build.
type Declarations struct {
	Objects   []Declaration
	Relations []catalog.Relation
}

// Object is one validated object of the model.
type Object struct {
	Key   catalog.Key
	Attrs catalog.Attributes
}

// Model is a validated topology. It is immutable once built.
type Model struct {
	objects   []Object
	index     map[catalog.Key]int
	relations []catalog.Relation
}

// Objects returns every object sorted by key.
func (m *Model) Objects() []Object {
	return slices.Clone(m.objects)
}

// Object looks up one object by key.
func (m *Model) Object(key catalog.Key) (Object, bool) {
	i, ok := m.index[key]
	if !ok {
		return Object{}, false
	}
	return m.objects[i], true
}

// Relations returns the canonical relations, including the contains edges
// implied by object scopes, sorted.
func (m *Model) Relations() []catalog.Relation {
	return slices.Clone(m.relations)
}

// Len returns the number of objects.
func (m *Model) Len() int {
	return len(m.objects)
}

// Namespaces returns the names of the declared namespaces, sorted.
func (m *Model) Namespaces() []string {
	var names []string
	for _, o := range m.objects {
		if o.Key.Kind == catalog.KindNamespace {
			names = append(names, o.Key.Name)
		}
	}
	slices.Sort(names)
	return names
}

// Group is a (kind, scope) pair with at least one declared object.
type Group struct {
	Kind  catalog.Kind
	Scope string
}

// Groups returns the distinct (kind, scope) groups of the model in key order.
func (m *Model) Groups() []Group {
	var groups []Group
	for _, o := range m.objects {
		g := Group{Kind: o.Key.Kind, Scope: o.Key.Scope}
		if len(groups) == 0 || groups[len(groups)-1] != g {
			groups = append(groups, g)
		}
	}
	return groups
}
