package hnswam

import (
	"context"

	"github.com/xDarkicex/neurondb-hnsw/internal/graph"
)

// Scan implements the incremental index-scan protocol a host query
// executor drives one tuple at a time (Postgres's
// ambeginscan/amrescan/amgettuple/amendscan), rather than handing back
// every result in one call. The underlying ef-bounded search still runs
// in full on the first GetTuple call; only the result delivery is
// incremental.
type Scan struct {
	idx      *Index
	query    []float32
	k        int
	opts     []SearchOption
	results  []graph.Result
	cursor   int
	executed bool
}

// BeginScan starts a new scan for the k nearest neighbors of query.
// The search itself is deferred until the first GetTuple call so that
// Rescan can change the query before any work happens.
func (idx *Index) BeginScan(query []float32, k int, opts ...SearchOption) *Scan {
	return &Scan{idx: idx, query: query, k: k, opts: opts}
}

// Rescan resets the scan to run against a new query vector, discarding
// any results already computed.
func (s *Scan) Rescan(query []float32, k int) {
	s.query = query
	s.k = k
	s.results = nil
	s.cursor = 0
	s.executed = false
}

// GetTuple returns the next result in distance order, running the
// search on first call. ok is false once the scan is exhausted.
func (s *Scan) GetTuple(ctx context.Context) (graph.Result, bool, error) {
	if !s.executed {
		results, err := s.idx.Search(ctx, s.query, s.k, s.opts...)
		if err != nil {
			return graph.Result{}, false, err
		}
		s.results = results
		s.executed = true
	}
	if s.cursor >= len(s.results) {
		return graph.Result{}, false, nil
	}
	r := s.results[s.cursor]
	s.cursor++
	return r, true, nil
}

// End releases any scan-held resources. Currently a no-op: a Scan holds
// no page guards between GetTuple calls, but the method is kept so
// callers follow the same begin/end discipline the host's executor uses
// for every other index scan.
func (s *Scan) End() error { return nil }
