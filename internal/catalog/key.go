package catalog

import (
	"cmp"
	"fmt"
	"strings"
)

// Key identifies one declared object. Scope is the name of the namespace the
// object lives in, or "" for the root namespace.
type Key struct {
	Kind  Kind
	Scope string
	Name  string
}

// NewKey is a convenience constructor.
func NewKey(kind Kind, scope, name string) Key {
	return Key{Kind: kind, Scope: scope, Name: name}
}

// String renders the key as kind:scope/name ("kind:/name" in the root namespace).
func (k Key) String() string {
	return fmt.Sprintf("%s:%s/%s", k.Kind, k.Scope, k.Name)
}

// Compare orders keys by kind rank, then scope, then name.
func Compare(a, b Key) int {
	if c := cmp.Compare(a.Kind, b.Kind); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Scope, b.Scope); c != 0 {
		return c
	}
	return cmp.Compare(a.Name, b.Name)
}

// Less reports whether k sorts before o.
func (k Key) Less(o Key) bool {
	return Compare(k, o) < 0
}

// ParseKey parses the String form of a key. The scope part may be omitted
// ("veth:veth0" is the root namespace veth0).
func ParseKey(s string) (Key, error) {
	kindPart, rest, ok := strings.Cut(s, ":")
	if !ok {
		return Key{}, fmt.Errorf("invalid object reference %q: want kind:scope/name", s)
	}
	kind, err := ParseKind(kindPart)
	if err != nil {
		return Key{}, err
	}
	scope, name := SplitRef(rest)
	if name == "" {
		return Key{}, fmt.Errorf("invalid object reference %q: empty name", s)
	}
	return Key{Kind: kind, Scope: scope, Name: name}, nil
}

// SplitRef splits a "scope/name" reference. A bare "name" has an empty scope.
// Only the first slash separates, so address prefixes survive as names
// ("ns1/10.0.0.1/24" is scope ns1, name 10.0.0.1/24).
func SplitRef(ref string) (scope, name string) {
	if i := strings.Index(ref, "/"); i >= 0 {
		before := ref[:i]
		// A leading IP literal is a prefix, not a scope.
		if !strings.ContainsAny(before, ".:") {
			return before, ref[i+1:]
		}
	}
	return "", ref
}
