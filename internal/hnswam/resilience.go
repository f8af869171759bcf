package hnswam

import (
	"context"
	"log/slog"

	"github.com/xDarkicex/neurondb-hnsw/internal/graph"
	"github.com/xDarkicex/neurondb-hnsw/internal/obs"
)

// GuardedAliveFunc wraps a host-supplied AliveFunc (typically
// hostsim.Heap.Alive, or a real host's equivalent) in a circuit breaker,
// grounded on internal/obs/circuit.go's CircuitBreaker: a flapping or
// overloaded host should not turn a single BulkDelete pass into a full
// scan of repeated, slow failures. When the breaker is open, tuples are
// reported alive — a bulk delete must never tombstone a tuple it could
// not actually confirm as dead.
func GuardedAliveFunc(alive graph.AliveFunc, cb *obs.CircuitBreaker, logger *slog.Logger) graph.AliveFunc {
	if cb == nil {
		return alive
	}
	if logger == nil {
		logger = slog.Default()
	}
	return func(tid uint64) bool {
		result := true
		err := cb.Execute(context.Background(), func() error {
			result = alive(tid)
			return nil
		})
		if err != nil {
			logger.Warn("hnsw: host alive-check circuit open, treating tuple as alive", "tid", tid, "error", err)
			return true
		}
		return result
	}
}
