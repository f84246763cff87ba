package resolver

import (
	"container/heap"
	"slices"

	"grimm.is/topoctl/internal/catalog"
	"grimm.is/topoctl/internal/topology"
)

// Direction is the direction a plan walks the constraint graph.
type Direction int

const (
	// Forward creates dependencies first.
	Forward Direction = iota
	// Reverse removes dependents first.
	Reverse
)

func (d Direction) String() string {
	if d == Reverse {
		return "reverse"
	}
	return "forward"
}

// Plan is an ordered list of objects to process.
type Plan struct {
	Steps []catalog.Key
	// Requires lists, per step, the steps that must succeed before it in
	// this direction: predecessors when creating, dependents when removing.
	Requires  map[catalog.Key][]catalog.Key
	Direction Direction
}

// Len returns the number of steps.
func (p *Plan) Len() int {
	return len(p.Steps)
}

// Order returns the creation order of the model. Among objects whose
// predecessors are all scheduled, the smallest key goes first, so the result
// is the same on every run. It fails with *CycleError and no plan when the
// constraints cannot be satisfied.
func Order(m *topology.Model) (*Plan, error) {
	g := newGraph(m)
	steps, err := g.sort()
	if err != nil {
		return nil, err
	}
	return &Plan{Steps: steps, Requires: g.pred, Direction: Forward}, nil
}

// TeardownOrder returns the exact reverse of Order.
func TeardownOrder(m *topology.Model) (*Plan, error) {
	g := newGraph(m)
	steps, err := g.sort()
	if err != nil {
		return nil, err
	}
	slices.Reverse(steps)
	return &Plan{Steps: steps, Requires: g.succ, Direction: Reverse}, nil
}

// sort is Kahn's algorithm with a min-heap of ready vertices.
func (g *graph) sort() ([]catalog.Key, error) {
	indegree := make(map[catalog.Key]int, len(g.vertices))
	ready := &keyHeap{}
	for _, v := range g.vertices {
		indegree[v] = len(g.pred[v])
		if indegree[v] == 0 {
			*ready = append(*ready, v)
		}
	}
	heap.Init(ready)

	order := make([]catalog.Key, 0, len(g.vertices))
	for ready.Len() > 0 {
		v := heap.Pop(ready).(catalog.Key)
		order = append(order, v)
		for _, s := range g.succ[v] {
			indegree[s]--
			if indegree[s] == 0 {
				heap.Push(ready, s)
			}
		}
	}

	if len(order) == len(g.vertices) {
		return order, nil
	}

	remaining := make(map[catalog.Key]bool)
	for v, d := range indegree {
		if d > 0 {
			remaining[v] = true
		}
	}
	return nil, &CycleError{Participants: g.cycleMembers(remaining)}
}

// cycleMembers returns the vertices of within that lie on a cycle, using
// Tarjan's strongly connected components. Vertices that are only blocked by
// a cycle are left out.
func (g *graph) cycleMembers(within map[catalog.Key]bool) []catalog.Key {
	var (
		index   = make(map[catalog.Key]int)
		low     = make(map[catalog.Key]int)
		onStack = make(map[catalog.Key]bool)
		stack   []catalog.Key
		next    int
		members []catalog.Key
	)

	var connect func(v catalog.Key)
	connect = func(v catalog.Key) {
		index[v] = next
		low[v] = next
		next++
		stack = append(stack, v)
		onStack[v] = true

		selfLoop := false
		for _, w := range g.succ[v] {
			if !within[w] {
				continue
			}
			if w == v {
				selfLoop = true
			}
			if _, visited := index[w]; !visited {
				connect(w)
				low[v] = min(low[v], low[w])
			} else if onStack[w] {
				low[v] = min(low[v], index[w])
			}
		}

		if low[v] != index[v] {
			return
		}
		var scc []catalog.Key
		for {
			w := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[w] = false
			scc = append(scc, w)
			if w == v {
				break
			}
		}
		if len(scc) > 1 || selfLoop {
			members = append(members, scc...)
		}
	}

	for _, v := range g.vertices {
		if !within[v] {
			continue
		}
		if _, visited := index[v]; !visited {
			connect(v)
		}
	}
	slices.SortFunc(members, catalog.Compare)
	return members
}
