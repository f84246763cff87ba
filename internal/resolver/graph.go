// Package resolver derives a deterministic creation order from a topology
// model and reports dependency cycles.
package resolver

import (
	"slices"

	"grimm.is/topoctl/internal/catalog"
	"grimm.is/topoctl/internal/topology"
)

// graph is the ordering constraint graph of one run. An edge u->v means u
// must exist before v.
type graph struct {
	vertices []catalog.Key
	succ     map[catalog.Key][]catalog.Key
	pred     map[catalog.Key][]catalog.Key
}

func newGraph(m *topology.Model) *graph {
	g := &graph{
		succ: make(map[catalog.Key][]catalog.Key, m.Len()),
		pred: make(map[catalog.Key][]catalog.Key, m.Len()),
	}
	for _, o := range m.Objects() {
		g.vertices = append(g.vertices, o.Key)
	}

	seen := make(map[[2]catalog.Key]bool)
	for _, r := range m.Relations() {
		var from, to catalog.Key
		switch r.Type {
		case catalog.Contains, catalog.PairsWith:
			// The scope before what it holds; the primary endpoint (which
			// creates the pair) before the secondary.
			from, to = r.From, r.To
		case catalog.AttachesTo, catalog.Uses:
			// The master or underlay before the device that needs it.
			from, to = r.To, r.From
		default:
			continue
		}
		e := [2]catalog.Key{from, to}
		if seen[e] {
			continue
		}
		seen[e] = true
		g.succ[from] = append(g.succ[from], to)
		g.pred[to] = append(g.pred[to], from)
	}

	for _, adj := range []map[catalog.Key][]catalog.Key{g.succ, g.pred} {
		for _, ks := range adj {
			slices.SortFunc(ks, catalog.Compare)
		}
	}
	return g
}
