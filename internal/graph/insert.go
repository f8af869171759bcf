package graph

import (
	"context"
	"sort"

	"github.com/xDarkicex/neurondb-hnsw/internal/codec"
)

// Insert adds a new vector under heap tuple id tid, grounded on
// internal/index/hnsw/insert.go's Insert: level assignment, greedy
// descent to the node's own level, ef-bounded search and bidirectional
// linking at each layer down to 0, and neighbor pruning back to 2m
// whenever a node's degree at a layer exceeds 2m. Insertion always
// measures distance with L2 regardless of the index's configured query
// strategy (spec §4.4.2).
func (e *Engine) Insert(ctx context.Context, tid uint64, vector []float32, maxVisited int) error {
	if len(vector) == 0 || len(vector) > 32767 {
		return newErr(KindValidation, "Insert", "vector dimension out of range", nil)
	}
	meta, err := e.readMeta()
	if err != nil {
		return err
	}
	if err := e.checkOrSetDim(meta, len(vector)); err != nil {
		return newErr(KindValidation, "Insert", "dimension mismatch", err)
	}
	m := int(meta.M)
	distFn := Distance(L2)
	if maxVisited <= 0 {
		maxVisited = 1 << 20
	}

	level := e.nextLevel(float64(meta.ML))
	newNode := &codec.Node{
		HeapTID:   tid,
		Level:     int32(level),
		Dim:       int16(len(vector)),
		Vector:    vector,
		Neighbors: emptyNeighborRows(level, m),
	}
	newPage, err := e.allocateNode(newNode)
	if err != nil {
		return err
	}

	if meta.EntryPoint == codec.NoPage {
		meta.EntryPoint = newPage
		meta.EntryLevel = int32(level)
		meta.MaxLevel = int32(level)
		meta.InsertedCount++
		return e.writeMeta(meta)
	}

	entryNode, err := e.getNode(meta.EntryPoint)
	if err != nil {
		return err
	}
	cur := Candidate{Page: meta.EntryPoint, Distance: distFn(vector, entryNode.Vector)}

	for layer := int(meta.EntryLevel); layer > level; layer-- {
		if err := ctx.Err(); err != nil {
			return wrapCancelled("Insert", "cancelled during phase A", err)
		}
		cur, err = e.greedyDescendLayer(ctx, vector, cur, layer, distFn)
		if err != nil {
			return err
		}
	}

	top := level
	if int(meta.EntryLevel) < top {
		top = int(meta.EntryLevel)
	}
	for layer := top; layer >= 0; layer-- {
		if err := ctx.Err(); err != nil {
			return wrapCancelled("Insert", "cancelled during linking", err)
		}
		found, err := e.searchLayer(ctx, vector, []Candidate{cur}, layer, int(meta.EfConstruction), distFn, maxVisited)
		if err != nil {
			return err
		}
		candidates := sortedAscending(found)
		if len(candidates) == 0 {
			continue
		}
		cur = *candidates[0]

		selected := candidates
		if len(selected) > m {
			selected = selected[:m]
		}
		if err := e.connect(newPage, selected, layer, m); err != nil {
			return err
		}
	}

	if level > int(meta.EntryLevel) {
		meta.EntryPoint = newPage
		meta.EntryLevel = int32(level)
	}
	if int32(level) > meta.MaxLevel {
		meta.MaxLevel = int32(level)
	}
	meta.InsertedCount++
	return e.writeMeta(meta)
}

// connect links newPage bidirectionally to each candidate at layer.
func (e *Engine) connect(newPage uint32, candidates []*Candidate, layer, m int) error {
	for _, c := range candidates {
		if err := e.addEdge(newPage, c.Page, layer, m); err != nil {
			return err
		}
	}
	return nil
}

// addEdge links a and b at layer in both directions.
func (e *Engine) addEdge(a, b uint32, layer, m int) error {
	if err := e.appendNeighbor(a, b, layer, m); err != nil {
		return err
	}
	return e.appendNeighbor(b, a, layer, m)
}

// appendNeighbor records neighbor in page's adjacency list at layer,
// letting the row grow past its nominal 2m capacity rather than
// dropping the new edge once full (the on-disk record stays fixed at
// 2m slots per level; growth here is transient, in memory only, between
// this read and the putNode a few lines down). If growth pushes the
// count past 2m, pruneNode cuts the list back to its 2m nearest before
// the single write, so the growth never reaches disk and a closer
// candidate always displaces a farther one (spec §4.4.4 step 6c), the
// way the teacher's pruneNeighborConnectionsOptimized grows a
// connection list before re-pruning it.
func (e *Engine) appendNeighbor(page, neighbor uint32, layer, m int) error {
	node, err := e.getNode(page)
	if err != nil {
		return err
	}
	if layer > int(node.Level) {
		return nil
	}
	row := node.Neighbors[layer]
	count := int(node.NeighborCount[layer])
	for i := 0; i < count; i++ {
		if row[i] == neighbor {
			return nil
		}
	}
	if count >= len(row) {
		row = append(row, neighbor)
	} else {
		row[count] = neighbor
	}
	count++
	node.Neighbors[layer] = row
	node.NeighborCount[layer] = int16(count)

	if count > 2*m {
		if err := e.pruneNode(node, layer, m); err != nil {
			return err
		}
	}
	return e.putNode(page, node)
}

// pruneNode cuts node's already-loaded neighbor list at layer back to
// its 2m nearest entries, measured from node's own vector, discarding
// the rest. The caller persists node afterward.
func (e *Engine) pruneNode(node *codec.Node, layer, m int) error {
	count := int(node.NeighborCount[layer])
	type scored struct {
		page uint32
		dist float32
	}
	entries := make([]scored, 0, count)
	distFn := Distance(L2)
	for i := 0; i < count; i++ {
		np := node.Neighbors[layer][i]
		if np == codec.NoPage {
			continue
		}
		nn, err := e.getNode(np)
		if err != nil {
			return err
		}
		entries = append(entries, scored{page: np, dist: distFn(node.Vector, nn.Vector)})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].dist < entries[j].dist })
	cap2m := 2 * m
	if len(entries) > cap2m {
		entries = entries[:cap2m]
	}
	row := make([]uint32, cap2m)
	for i := range row {
		row[i] = codec.NoPage
	}
	for i, s := range entries {
		row[i] = s.page
	}
	node.Neighbors[layer] = row
	node.NeighborCount[layer] = int16(len(entries))
	return nil
}
