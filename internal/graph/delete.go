package graph

import (
	"context"

	"github.com/xDarkicex/neurondb-hnsw/internal/codec"
)

// AliveFunc reports whether the heap tuple tid is still live. BulkDelete
// calls it once per indexed vector, grounded on the host-callback shape
// of a Postgres ambulkdelete scan (spec §4.5).
type AliveFunc func(tid uint64) bool

// DeleteStats summarizes a BulkDelete pass.
type DeleteStats struct {
	TuplesRemoved int64
	PagesScanned  int64
}

// BulkDelete scans every node page, tombstones any whose heap tuple is
// no longer alive per the callback, unlinks its edges from every
// neighbor that still references it, and replaces the entry point if it
// was removed. It never frees pages itself — that is VacuumCleanup's
// job, once no other operation can still be mid-traversal through a
// tombstoned node's neighbor lists.
func (e *Engine) BulkDelete(ctx context.Context, alive AliveFunc, maxVisited int) (DeleteStats, error) {
	var stats DeleteStats
	meta, err := e.readMeta()
	if err != nil {
		return stats, err
	}
	relSize, err := e.RelationSize()
	if err != nil {
		return stats, err
	}
	if maxVisited <= 0 {
		maxVisited = 1 << 20
	}

	dead := make(map[uint32]bool)
	for page := uint32(1); page < relSize; page++ {
		if err := ctx.Err(); err != nil {
			return stats, wrapCancelled("BulkDelete", "cancelled during scan", err)
		}
		stats.PagesScanned++
		node, err := e.getNode(page)
		if err != nil {
			e.logger.Warn("hnsw: skipping unreadable page during bulk delete", "page", page, "error", err)
			continue
		}
		if node.IsTombstone() {
			continue
		}
		if !alive(node.HeapTID) {
			dead[page] = true
		}
	}
	if len(dead) == 0 {
		return stats, nil
	}

	for page := uint32(1); page < relSize; page++ {
		if err := ctx.Err(); err != nil {
			return stats, wrapCancelled("BulkDelete", "cancelled during unlink", err)
		}
		if dead[page] {
			continue
		}
		node, err := e.getNode(page)
		if err != nil {
			continue
		}
		if node.IsTombstone() {
			continue
		}
		if e.unlinkDeadNeighbors(node, dead) {
			if err := e.putNode(page, node); err != nil {
				return stats, err
			}
		}
	}

	for page := range dead {
		node, err := e.getNode(page)
		if err != nil {
			continue
		}
		node.Flags |= codec.FlagTombstone
		for l := range node.Neighbors {
			for i := range node.Neighbors[l] {
				node.Neighbors[l][i] = codec.NoPage
			}
			node.NeighborCount[l] = 0
		}
		if err := e.putNode(page, node); err != nil {
			return stats, err
		}
		stats.TuplesRemoved++
	}

	if dead[meta.EntryPoint] {
		newEntry, newLevel, found := e.findReplacementEntryPoint(ctx, relSize, dead)
		if found {
			meta.EntryPoint = newEntry
			meta.EntryLevel = int32(newLevel)
		} else {
			meta.EntryPoint = codec.NoPage
			meta.EntryLevel = -1
			meta.MaxLevel = -1
		}
	}
	meta.InsertedCount -= stats.TuplesRemoved
	if meta.InsertedCount < 0 {
		meta.InsertedCount = 0
	}
	if err := e.writeMeta(meta); err != nil {
		return stats, err
	}
	return stats, nil
}

// unlinkDeadNeighbors removes every reference to a page in dead from
// node's neighbor lists, compacting each level's slots. Reports whether
// it changed anything.
func (e *Engine) unlinkDeadNeighbors(node *codec.Node, dead map[uint32]bool) bool {
	changed := false
	for l := 0; l <= int(node.Level); l++ {
		row := node.Neighbors[l]
		write := 0
		count := int(node.NeighborCount[l])
		for i := 0; i < count; i++ {
			if dead[row[i]] {
				changed = true
				continue
			}
			row[write] = row[i]
			write++
		}
		for i := write; i < len(row); i++ {
			row[i] = codec.NoPage
		}
		if int(node.NeighborCount[l]) != write {
			node.NeighborCount[l] = int16(write)
		}
	}
	return changed
}

// findReplacementEntryPoint picks the highest-level surviving node as
// the new entry point (spec §9 Open Question: entry-point replacement
// uses the highest-level policy rather than an arbitrary neighbor).
func (e *Engine) findReplacementEntryPoint(ctx context.Context, relSize uint32, dead map[uint32]bool) (uint32, int, bool) {
	best := codec.NoPage
	bestLevel := -1
	for page := uint32(1); page < relSize; page++ {
		if ctx.Err() != nil {
			break
		}
		if dead[page] {
			continue
		}
		node, err := e.getNode(page)
		if err != nil || node.IsTombstone() {
			continue
		}
		if int(node.Level) > bestLevel {
			bestLevel = int(node.Level)
			best = page
		}
	}
	if best == codec.NoPage {
		return codec.NoPage, -1, false
	}
	return best, bestLevel, true
}
