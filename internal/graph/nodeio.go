package graph

import (
	"github.com/xDarkicex/neurondb-hnsw/internal/codec"
)

// getNode reads and decodes the node stored at page under a shared
// guard, grounded on internal/index/hnsw/node.go's in-memory node
// lookup — here backed by a page-store round trip instead of a slice
// index.
func (e *Engine) getNode(page uint32) (*codec.Node, error) {
	m, err := e.M()
	if err != nil {
		return nil, err
	}
	guard, err := e.store.ReadShared(page)
	if err != nil {
		return nil, newErr(KindResource, "getNode", "failed to acquire shared guard", err)
	}
	defer guard.Release()

	n, ok := e.readNode(guard.Data(), m)
	if !ok {
		return nil, newErr(KindCorruptionHard, "getNode", "node page failed validation", codec.ErrCorrupt)
	}
	return n, nil
}

// putNode re-encodes n and writes it back to page under an exclusive
// guard.
func (e *Engine) putNode(page uint32, n *codec.Node) error {
	m, err := e.M()
	if err != nil {
		return err
	}
	buf, err := codec.EncodeNode(n, m)
	if err != nil {
		return newErr(KindCorruptionHard, "putNode", "failed to encode node", err)
	}
	guard, err := e.store.ReadExclusive(page)
	if err != nil {
		return newErr(KindResource, "putNode", "failed to acquire exclusive guard", err)
	}
	defer guard.Release()
	if err := guard.Put(buf); err != nil {
		return newErr(KindResource, "putNode", "failed to write node page", err)
	}
	return nil
}

// allocateNode encodes n and writes it to a freshly extended page,
// returning the new page number.
func (e *Engine) allocateNode(n *codec.Node) (uint32, error) {
	m, err := e.M()
	if err != nil {
		return 0, err
	}
	buf, err := codec.EncodeNode(n, m)
	if err != nil {
		return 0, newErr(KindCorruptionHard, "allocateNode", "failed to encode node", err)
	}
	guard, err := e.store.Extend()
	if err != nil {
		return 0, newErr(KindResource, "allocateNode", "failed to extend relation", err)
	}
	defer guard.Release()
	if err := guard.Put(buf); err != nil {
		return 0, newErr(KindResource, "allocateNode", "failed to write new node page", err)
	}
	return guard.Page(), nil
}

// emptyNeighborRows allocates a fresh, fully-NoPage neighbor table for
// a node of the given level and m.
func emptyNeighborRows(level, m int) [][]uint32 {
	rows := make([][]uint32, level+1)
	for l := 0; l <= level; l++ {
		row := make([]uint32, 2*m)
		for i := range row {
			row[i] = codec.NoPage
		}
		rows[l] = row
	}
	return rows
}
