package graph

import "container/heap"

// Candidate is a page paired with its distance to the current query,
// grounded on internal/util/heap.go's Candidate{ID, Distance} — here ID
// is a page number rather than an in-memory slice index.
type Candidate struct {
	Page     uint32
	Distance float32
}

// minHeap orders candidates closest-first; used as the dynamic
// candidate queue during search (spec §4.4.3).
type minHeap struct {
	items []*Candidate
}

func (h *minHeap) Len() int            { return len(h.items) }
func (h *minHeap) Less(i, j int) bool  { return h.items[i].Distance < h.items[j].Distance }
func (h *minHeap) Swap(i, j int)       { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *minHeap) Push(x interface{})  { h.items = append(h.items, x.(*Candidate)) }
func (h *minHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}

func newMinHeap() *minHeap { return &minHeap{items: make([]*Candidate, 0, 16)} }

func (h *minHeap) push(c *Candidate) { heap.Push(h, c) }
func (h *minHeap) pop() *Candidate {
	if h.Len() == 0 {
		return nil
	}
	return heap.Pop(h).(*Candidate)
}

// maxHeap orders candidates furthest-first; used as the working result
// set bounded by ef, so the worst element is always at the top.
type maxHeap struct {
	items []*Candidate
}

func (h *maxHeap) Len() int           { return len(h.items) }
func (h *maxHeap) Less(i, j int) bool { return h.items[i].Distance > h.items[j].Distance }
func (h *maxHeap) Swap(i, j int)      { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *maxHeap) Push(x interface{}) { h.items = append(h.items, x.(*Candidate)) }
func (h *maxHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}

func newMaxHeap() *maxHeap { return &maxHeap{items: make([]*Candidate, 0, 16)} }

func (h *maxHeap) push(c *Candidate) { heap.Push(h, c) }
func (h *maxHeap) pop() *Candidate {
	if h.Len() == 0 {
		return nil
	}
	return heap.Pop(h).(*Candidate)
}
func (h *maxHeap) top() *Candidate {
	if h.Len() == 0 {
		return nil
	}
	return h.items[0]
}

// sortedAscending drains h and returns its contents sorted closest-first.
func sortedAscending(h *maxHeap) []*Candidate {
	out := make([]*Candidate, h.Len())
	for i := h.Len() - 1; i >= 0; i-- {
		out[i] = h.pop()
	}
	return out
}
