package graph

import (
	"context"
	"fmt"

	"github.com/xDarkicex/neurondb-hnsw/internal/codec"
)

// ErrMaxVisitedExceeded documents the reason logged when a single
// search or insert suppresses further graph expansion after visiting
// Config.MaxVisited nodes, the configurable cap supplemented from
// original_source/NeuronDB/src/index/hnsw_am.c's hard-coded
// visited-list ceiling (spec §9 supplemented features). It is not
// returned as an error: spec §4.4.3 and §5 require a search to degrade
// to its best results so far rather than fail once the cap is reached.
var ErrMaxVisitedExceeded = fmt.Errorf("hnsw: exceeded max visited node cap")

// Result is a search hit: the heap tuple identifier of the matching
// row paired with its distance to the query.
type Result struct {
	HeapTID  uint64
	Distance float32
}

// Search performs the two-phase HNSW query of spec §4.4.3: a greedy
// single-path descent from the entry point down to layer 1 (Phase A),
// followed by an ef-bounded best-first search at layer 0 (Phase B).
// k bounds the number of results returned; ef bounds the candidate
// pool width used at layer 0 (ef is raised to at least k).
func (e *Engine) Search(ctx context.Context, query []float32, k, ef int, strategy Strategy, maxVisited int) ([]Result, error) {
	if k <= 0 {
		return nil, newErr(KindValidation, "Search", "k must be positive", nil)
	}
	meta, err := e.readMeta()
	if err != nil {
		return nil, err
	}
	if meta.EntryPoint == codec.NoPage {
		return nil, ErrEmptyIndex
	}
	if int(meta.Dim) != len(query) {
		return nil, newErr(KindValidation, "Search", fmt.Sprintf("query dim %d != index dim %d", len(query), meta.Dim), ErrDimMismatch)
	}
	if ef < k {
		ef = k
	}
	distFn := Distance(strategy)
	if maxVisited <= 0 {
		maxVisited = 1 << 20
	}

	entryNode, ok := e.getNodeLenient(meta.EntryPoint)
	if !ok {
		return nil, newErr(KindCorruptionHard, "Search", "entry point page unreadable", codec.ErrCorrupt)
	}
	cur := Candidate{Page: meta.EntryPoint, Distance: distFn(query, entryNode.Vector)}

	for layer := int(meta.EntryLevel); layer >= 1; layer-- {
		if err := ctx.Err(); err != nil {
			return nil, wrapCancelled("Search", "phase A cancelled", err)
		}
		var err error
		cur, err = e.greedyDescendLayer(ctx, query, cur, layer, distFn)
		if err != nil {
			return nil, err
		}
	}

	results, err := e.searchLayer(ctx, query, []Candidate{cur}, 0, ef, distFn, maxVisited)
	if err != nil {
		return nil, err
	}
	sorted := sortedAscending(results)
	if len(sorted) > k {
		sorted = sorted[:k]
	}

	out := make([]Result, 0, len(sorted))
	for _, c := range sorted {
		n, ok := e.getNodeLenient(c.Page)
		if !ok {
			continue
		}
		out = append(out, Result{HeapTID: n.HeapTID, Distance: c.Distance})
	}
	return out, nil
}

// greedyDescendLayer repeatedly steps to the closest unexplored
// neighbor of cur at layer until no neighbor improves on cur,
// returning the local minimum reached (spec §4.4.3 Phase A).
func (e *Engine) greedyDescendLayer(ctx context.Context, query []float32, cur Candidate, layer int, distFn DistanceFunc) (Candidate, error) {
	relSize, err := e.RelationSize()
	if err != nil {
		return cur, err
	}
	for {
		if err := ctx.Err(); err != nil {
			return cur, wrapCancelled("greedyDescendLayer", "cancelled", err)
		}
		node, ok := e.getNodeLenient(cur.Page)
		if !ok {
			return cur, nil
		}
		if layer > int(node.Level) {
			return cur, nil
		}
		improved := false
		count := int(node.NeighborCount[layer])
		for i := 0; i < count; i++ {
			neighborPage := node.Neighbors[layer][i]
			if !codec.ValidateBlock(neighborPage, relSize) {
				continue
			}
			neighborNode, ok := e.getNodeLenient(neighborPage)
			if !ok {
				continue
			}
			d := distFn(query, neighborNode.Vector)
			if d < cur.Distance {
				cur = Candidate{Page: neighborPage, Distance: d}
				improved = true
			}
		}
		if !improved {
			return cur, nil
		}
	}
}

// searchLayer runs the ef-bounded best-first search of spec §4.4.3
// Phase B at a single layer, starting from entryPoints. Once the
// visited set reaches maxVisited, further expansion is suppressed with
// a single logged warning and the search returns whatever results it
// has gathered so far instead of failing (spec §4.4.3, §5: "search
// degrades rather than exhausting memory").
func (e *Engine) searchLayer(ctx context.Context, query []float32, entryPoints []Candidate, layer, ef int, distFn DistanceFunc, maxVisited int) (*maxHeap, error) {
	relSize, err := e.RelationSize()
	if err != nil {
		return nil, err
	}
	visited := make(map[uint32]bool, ef*4)
	candidates := newMinHeap()
	results := newMaxHeap()

	for _, c := range entryPoints {
		visited[c.Page] = true
		candidates.push(&Candidate{Page: c.Page, Distance: c.Distance})
		results.push(&Candidate{Page: c.Page, Distance: c.Distance})
	}

	capped := false
	for candidates.Len() > 0 && !capped {
		if err := ctx.Err(); err != nil {
			return nil, wrapCancelled("searchLayer", "cancelled", err)
		}
		c := candidates.pop()
		if top := results.top(); results.Len() >= ef && top != nil && c.Distance > top.Distance {
			break
		}
		node, ok := e.getNodeLenient(c.Page)
		if !ok {
			continue
		}
		if layer > int(node.Level) {
			continue
		}
		count := int(node.NeighborCount[layer])
		for i := 0; i < count; i++ {
			neighborPage := node.Neighbors[layer][i]
			if !codec.ValidateBlock(neighborPage, relSize) || visited[neighborPage] {
				continue
			}
			if len(visited) >= maxVisited {
				capped = true
				e.logger.Warn("hnsw: suppressing further expansion at max-visited cap, returning approximate results",
					"cap", maxVisited, "layer", layer, "reason", ErrMaxVisitedExceeded)
				break
			}
			visited[neighborPage] = true
			neighborNode, ok := e.getNodeLenient(neighborPage)
			if !ok {
				continue
			}
			d := distFn(query, neighborNode.Vector)
			top := results.top()
			if results.Len() < ef || top == nil || d < top.Distance {
				candidates.push(&Candidate{Page: neighborPage, Distance: d})
				results.push(&Candidate{Page: neighborPage, Distance: d})
				if results.Len() > ef {
					results.pop()
				}
			}
		}
	}
	return results, nil
}
