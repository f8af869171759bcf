// Package obs wires the graph engine's counters and latency histograms,
// grounded on libravdb's internal/obs/metrics.go — same promauto-built
// Metrics struct shape, extended with the operations this index exposes
// (insert/search/delete/vacuum) in place of the teacher's collection-level
// counters.
package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every counter and histogram the façade records. A nil
// *Metrics is valid everywhere it is used below, so metrics remain
// strictly optional instrumentation for callers that skip NewMetrics.
type Metrics struct {
	Inserts       prometheus.Counter
	InsertErrors  prometheus.Counter
	InsertLatency prometheus.Histogram

	SearchQueries prometheus.Counter
	SearchErrors  prometheus.Counter
	SearchLatency prometheus.Histogram

	TuplesDeleted prometheus.Counter
	PagesFreed    prometheus.Counter

	MaxVisitedHit prometheus.Counter
}

// NewMetrics registers a fresh Metrics set against reg. Pass
// prometheus.NewRegistry() in tests to avoid collisions with other
// indexes sharing the process-wide default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Inserts: f.NewCounter(prometheus.CounterOpts{
			Name: "hnsw_inserts_total",
			Help: "Total vectors inserted into the index.",
		}),
		InsertErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "hnsw_insert_errors_total",
			Help: "Total insert operations that returned an error.",
		}),
		InsertLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "hnsw_insert_latency_seconds",
			Help:    "Insert latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		SearchQueries: f.NewCounter(prometheus.CounterOpts{
			Name: "hnsw_search_queries_total",
			Help: "Total search queries served.",
		}),
		SearchErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "hnsw_search_errors_total",
			Help: "Total search queries that returned an error.",
		}),
		SearchLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "hnsw_search_latency_seconds",
			Help:    "Search latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		TuplesDeleted: f.NewCounter(prometheus.CounterOpts{
			Name: "hnsw_tuples_deleted_total",
			Help: "Total tuples tombstoned by BulkDelete.",
		}),
		PagesFreed: f.NewCounter(prometheus.CounterOpts{
			Name: "hnsw_pages_freed_total",
			Help: "Total pages reclaimed by VacuumCleanup.",
		}),
		MaxVisitedHit: f.NewCounter(prometheus.CounterOpts{
			Name: "hnsw_max_visited_exceeded_total",
			Help: "Total operations that hit the configured max-visited cap.",
		}),
	}
}

// IncInsert records a successful insert. Safe to call on a nil *Metrics.
func (m *Metrics) IncInsert() {
	if m != nil {
		m.Inserts.Inc()
	}
}

// IncInsertError records a failed insert.
func (m *Metrics) IncInsertError() {
	if m != nil {
		m.InsertErrors.Inc()
	}
}

// ObserveInsertSeconds records insert latency.
func (m *Metrics) ObserveInsertSeconds(s float64) {
	if m != nil {
		m.InsertLatency.Observe(s)
	}
}

// IncSearch records a served search.
func (m *Metrics) IncSearch() {
	if m != nil {
		m.SearchQueries.Inc()
	}
}

// IncSearchError records a failed search.
func (m *Metrics) IncSearchError() {
	if m != nil {
		m.SearchErrors.Inc()
	}
}

// ObserveSearchSeconds records search latency.
func (m *Metrics) ObserveSearchSeconds(s float64) {
	if m != nil {
		m.SearchLatency.Observe(s)
	}
}

// AddTuplesDeleted records tombstones created by a BulkDelete pass.
func (m *Metrics) AddTuplesDeleted(n int64) {
	if m != nil {
		m.TuplesDeleted.Add(float64(n))
	}
}

// AddPagesFreed records pages reclaimed by a VacuumCleanup pass.
func (m *Metrics) AddPagesFreed(n int64) {
	if m != nil {
		m.PagesFreed.Add(float64(n))
	}
}

// IncMaxVisitedExceeded records a search or insert that hit the
// configured max-visited cap.
func (m *Metrics) IncMaxVisitedExceeded() {
	if m != nil {
		m.MaxVisitedHit.Inc()
	}
}
