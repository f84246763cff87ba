// Package kernel is the boundary between the reconciler and the live
// network stack. The reconciler only sees the Querier and Mutator
// contracts; Driver implements them over netlink, Memory simulates them
// for tests and previews, and DryRun records what would be done.
package kernel

import (
	"context"

	"grimm.is/topoctl/internal/catalog"
)

// Observed is the live state of one object.
type Observed struct {
	Key catalog.Key
	// Type is the kernel object type ("bridge", "dummy", "netns", ...). It
	// may differ from the type the declaration asks for when a foreign
	// object holds the name.
	Type string
	// Owned reports whether the object carries the topoctl ownership marker.
	Owned bool
	Attrs catalog.Attributes
}

// Querier reads live state.
type Querier interface {
	// Exists returns the observed object, or nil and no error when the
	// object is absent.
	Exists(ctx context.Context, key catalog.Key) (*Observed, error)
	// List returns the names of every object of kind in scope.
	List(ctx context.Context, kind catalog.Kind, scope string) ([]string, error)
}

// Mutator changes live state. Create and Update receive the full desired
// attribute record; Update only touches mutable attributes.
type Mutator interface {
	Create(ctx context.Context, key catalog.Key, attrs catalog.Attributes) error
	Update(ctx context.Context, key catalog.Key, attrs catalog.Attributes) error
	Delete(ctx context.Context, key catalog.Key) error
}

// Kernel is both halves of the contract.
type Kernel interface {
	Querier
	Mutator
}
