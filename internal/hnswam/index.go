// Package hnswam is the index access-method façade (spec §4.5): it owns
// the page store and graph engine lifecycle, validates and applies
// options, and exposes the operations a host planner/executor would
// call — Build/Insert/BulkDelete/VacuumCleanup/CostEstimate plus the
// incremental Begin/Rescan/GetTuple/End scan protocol — instrumented
// with the same promauto metrics and log/slog logging used throughout
// this module, grounded on libravdb/collection.go's lifecycle shape.
package hnswam

import (
	"context"
	"fmt"
	"time"

	"github.com/xDarkicex/neurondb-hnsw/internal/codec"
	"github.com/xDarkicex/neurondb-hnsw/internal/graph"
	"github.com/xDarkicex/neurondb-hnsw/internal/obs"
	"github.com/xDarkicex/neurondb-hnsw/internal/pagestore"
	"github.com/xDarkicex/neurondb-hnsw/internal/vector"
)

// Re-exported sentinel errors so callers only need to import this
// package, not internal/graph directly.
var (
	ErrEmptyIndex    = graph.ErrEmptyIndex
	ErrDimMismatch   = graph.ErrDimMismatch
	ErrInvalidOption = graph.ErrInvalidOption
)

// Index is a single open HNSW access method instance bound to one page
// file on disk.
type Index struct {
	store    *pagestore.Store
	engine   *graph.Engine
	metrics  *obs.Metrics
	opts     *options
	breakers *obs.CircuitBreakerManager
}

// Open opens (creating if necessary) the index file at path and applies
// opts, grounded on pagestore.Open + graph.Open + graph.BuildEmpty
// chained the way a Postgres ambuild call would wire them together.
func Open(path string, opts ...Option) (*Index, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("hnsw: invalid option: %w", err)
		}
	}
	if err := o.graphCfg.Validate(); err != nil {
		return nil, err
	}

	store, err := pagestore.Open(path)
	if err != nil {
		return nil, fmt.Errorf("hnsw: open index file %s: %w", path, err)
	}

	engine := graph.Open(store, o.logger)
	if err := engine.BuildEmpty(o.graphCfg); err != nil {
		store.Close()
		return nil, err
	}

	var metrics *obs.Metrics
	if o.registry != nil {
		metrics = obs.NewMetrics(o.registry)
	}

	return &Index{
		store:    store,
		engine:   engine,
		metrics:  metrics,
		opts:     o,
		breakers: obs.NewCircuitBreakerManager(),
	}, nil
}

// Close releases the underlying page store.
func (idx *Index) Close() error {
	return idx.store.Close()
}

// ScanFunc drives a host table-scan: it calls yield once per live tuple
// and returns any error yield reports or any scan-side failure.
// hostsim.Heap.Scan (and a real host's table access method) is shaped
// to be adapted to this signature at the call site.
type ScanFunc func(yield func(tid uint64, vector []float32) error) error

// Build implements spec §4.5's Build operation: it drives scan over
// every heap tuple and inserts each one, returning the count of tuples
// indexed. The meta page itself is already initialized by Open, so
// Build's only job here is the iterate-and-insert loop.
func (idx *Index) Build(ctx context.Context, scan ScanFunc) (int64, error) {
	var count int64
	err := scan(func(tid uint64, vector []float32) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := idx.Insert(ctx, tid, vector); err != nil {
			return err
		}
		count++
		return nil
	})
	return count, err
}

// Insert adds a vector under heap tuple id tid.
func (idx *Index) Insert(ctx context.Context, tid uint64, vector []float32) error {
	start := time.Now()
	err := idx.engine.Insert(ctx, tid, vector, idx.opts.maxVisited)
	idx.metrics.ObserveInsertSeconds(time.Since(start).Seconds())
	if err != nil {
		idx.metrics.IncInsertError()
		if gerr, ok := err.(*graph.Error); ok && gerr.Kind == graph.KindResource {
			idx.metrics.IncMaxVisitedExceeded()
		}
		return err
	}
	idx.metrics.IncInsert()
	return nil
}

// InsertKey coerces a possibly-non-dense key (half-precision, sparse, or
// bit-packed, spec §4.3) to the index's dense float32 representation
// before inserting it, so callers never need to import internal/vector
// directly.
func (idx *Index) InsertKey(ctx context.Context, tid uint64, key vector.Key) error {
	values, _, err := vector.Coerce(key)
	if err != nil {
		return fmt.Errorf("hnsw: coerce insert key: %w", err)
	}
	return idx.Insert(ctx, tid, values)
}

// SearchOption tweaks a single Search call away from the index's
// configured defaults.
type SearchOption func(*searchParams)

type searchParams struct {
	ef         int
	strategy   graph.Strategy
	maxVisited int
}

// WithSearchEf overrides the candidate pool width for one query.
func WithSearchEf(ef int) SearchOption {
	return func(p *searchParams) { p.ef = ef }
}

// WithSearchStrategy overrides the distance strategy for one query.
func WithSearchStrategy(s graph.Strategy) SearchOption {
	return func(p *searchParams) { p.strategy = s }
}

// Search returns the k nearest vectors to query.
func (idx *Index) Search(ctx context.Context, query []float32, k int, opts ...SearchOption) ([]graph.Result, error) {
	p := &searchParams{ef: idx.opts.graphCfg.EfSearch, strategy: idx.opts.strategy, maxVisited: idx.opts.maxVisited}
	for _, opt := range opts {
		opt(p)
	}

	start := time.Now()
	results, err := idx.engine.Search(ctx, query, k, p.ef, p.strategy, p.maxVisited)
	idx.metrics.ObserveSearchSeconds(time.Since(start).Seconds())
	idx.metrics.IncSearch()
	if err != nil {
		idx.metrics.IncSearchError()
		return nil, err
	}
	return results, nil
}

// SearchKey coerces a query key before searching, the query-time
// counterpart to InsertKey.
func (idx *Index) SearchKey(ctx context.Context, key vector.Key, k int, opts ...SearchOption) ([]graph.Result, error) {
	values, _, err := vector.Coerce(key)
	if err != nil {
		return nil, fmt.Errorf("hnsw: coerce search key: %w", err)
	}
	return idx.Search(ctx, values, k, opts...)
}

// AliveBreaker returns the named circuit breaker guarding a host
// alive-callback, creating it with default settings on first use. It is
// owned by the index rather than built fresh per call so a flapping
// host trips once and stays tripped across repeated BulkDelete passes
// instead of resetting its failure count every call, grounded on
// internal/obs/circuit.go's CircuitBreakerManager.
func (idx *Index) AliveBreaker(name string) *obs.CircuitBreaker {
	return idx.breakers.GetOrCreate(name, obs.DefaultCircuitBreakerConfig(name))
}

// BreakerStates reports the current state of every named circuit
// breaker this index has created, for health reporting.
func (idx *Index) BreakerStates() map[string]obs.CircuitState {
	return idx.breakers.GetStates()
}

// BulkDelete tombstones every indexed vector for which alive returns
// false, unlinking and repairing graph edges in the same pass.
func (idx *Index) BulkDelete(ctx context.Context, alive graph.AliveFunc) (graph.DeleteStats, error) {
	stats, err := idx.engine.BulkDelete(ctx, alive, idx.opts.maxVisited)
	if err != nil {
		return stats, err
	}
	idx.metrics.AddTuplesDeleted(stats.TuplesRemoved)
	return stats, nil
}

// VacuumCleanup reclaims pages tombstoned by prior BulkDelete calls.
func (idx *Index) VacuumCleanup(ctx context.Context) (graph.VacuumStats, error) {
	stats, err := idx.engine.VacuumCleanup(ctx)
	if err != nil {
		return stats, err
	}
	idx.metrics.AddPagesFreed(stats.PagesFreed)
	return stats, nil
}

// CostEstimate returns the planner-facing cost model for spec §4.5's
// CostEstimate operation: HNSW search visits roughly ef candidates per
// layer across O(log n) layers, so estimated page accesses scale with
// ef*log2(n) rather than with n itself — the property that makes it
// preferable to a sequential scan once the relation is large enough.
type CostEstimate struct {
	EstimatedPagesAccessed float64
	EstimatedLayers        int
}

// EstimateCost computes a CostEstimate for a query requesting ef
// candidates against an index holding nEntries vectors.
func (idx *Index) EstimateCost(nEntries int64, ef int) CostEstimate {
	if nEntries <= 0 {
		return CostEstimate{}
	}
	layers := 1
	for n := nEntries; n > 1; n >>= 1 {
		layers++
	}
	if layers > codec.MaxLevel {
		layers = codec.MaxLevel
	}
	return CostEstimate{
		EstimatedPagesAccessed: float64(ef) * float64(layers),
		EstimatedLayers:        layers,
	}
}

// Stats exposes the index's current meta-page statistics.
func (idx *Index) Stats() (graph.Stats, error) {
	return idx.engine.Stats()
}

// RelationSize implements obs.RelationSizer for health checks.
func (idx *Index) RelationSize() (uint32, error) {
	return idx.engine.RelationSize()
}
