// Package inspect takes snapshots of live network state through a
// kernel.Querier.
package inspect

import (
	"context"
	"fmt"
	"slices"

	"grimm.is/topoctl/internal/catalog"
	"grimm.is/topoctl/internal/kernel"
	"grimm.is/topoctl/internal/topology"
)

// State maps object keys to what was observed. A present key with a nil
// value records that the object was looked for and found absent.
type State map[catalog.Key]*kernel.Observed

// Present reports whether key was observed to exist.
func (s State) Present(key catalog.Key) bool {
	return s[key] != nil
}

// Keys returns the keys of every present object, sorted.
func (s State) Keys() []catalog.Key {
	var keys []catalog.Key
	for k, o := range s {
		if o != nil {
			keys = append(keys, k)
		}
	}
	slices.SortFunc(keys, catalog.Compare)
	return keys
}

// Inspector reads state through a Querier. Every call goes to the kernel;
// nothing is cached between calls.
type Inspector struct {
	q kernel.Querier
}

// New returns an Inspector reading through q.
func New(q kernel.Querier) *Inspector {
	return &Inspector{q: q}
}

// Snapshot lists every object of the given kinds in scope and queries each.
func (i *Inspector) Snapshot(ctx context.Context, kinds []catalog.Kind, scope string) (State, error) {
	state := make(State)
	for _, kind := range kinds {
		if err := i.snapshotGroup(ctx, state, kind, scope); err != nil {
			return nil, err
		}
	}
	return state, nil
}

func (i *Inspector) snapshotGroup(ctx context.Context, state State, kind catalog.Kind, scope string) error {
	names, err := i.q.List(ctx, kind, scope)
	if err != nil {
		return fmt.Errorf("list %s in %q: %w", kind, scope, err)
	}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		key := catalog.NewKey(kind, scope, name)
		obs, err := i.q.Exists(ctx, key)
		if err != nil {
			return fmt.Errorf("inspect %s: %w", key, err)
		}
		state[key] = obs
	}
	return nil
}

// SnapshotModel snapshots every (kind, scope) group that has declared
// objects, and records every declared object, present or not.
func (i *Inspector) SnapshotModel(ctx context.Context, m *topology.Model) (State, error) {
	state := make(State)
	for _, g := range m.Groups() {
		if err := i.snapshotGroup(ctx, state, g.Kind, g.Scope); err != nil {
			return nil, err
		}
	}
	for _, o := range m.Objects() {
		if _, seen := state[o.Key]; seen {
			continue
		}
		obs, err := i.q.Exists(ctx, o.Key)
		if err != nil {
			return nil, fmt.Errorf("inspect %s: %w", o.Key, err)
		}
		state[o.Key] = obs
	}
	return state, nil
}

// Refresh re-reads one object right before it is acted on.
func (i *Inspector) Refresh(ctx context.Context, key catalog.Key) (*kernel.Observed, error) {
	obs, err := i.q.Exists(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("refresh %s: %w", key, err)
	}
	return obs, nil
}
