package resolver

import (
	"grimm.is/topoctl/internal/catalog"
)

// keyHeap is a min-heap of keys in catalog order, for container/heap.
type keyHeap []catalog.Key

func (h keyHeap) Len() int           { return len(h) }
func (h keyHeap) Less(i, j int) bool { return h[i].Less(h[j]) }
func (h keyHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *keyHeap) Push(x any) {
	*h = append(*h, x.(catalog.Key))
}

func (h *keyHeap) Pop() any {
	old := *h
	n := len(old)
	k := old[n-1]
	*h = old[:n-1]
	return k
}
