package hnswam

import (
	"context"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/xDarkicex/neurondb-hnsw/internal/hostsim"
	"github.com/xDarkicex/neurondb-hnsw/internal/obs"
)

// TestBuildFromHostHeapAndGuardedBulkDelete exercises the façade end to
// end against a sqlite-backed heap, the way cmd/hnswdemo does: Build
// drives the host's table-scan callback, and BulkDelete runs behind a
// circuit breaker guarding the host's alive callback.
func TestBuildFromHostHeapAndGuardedBulkDelete(t *testing.T) {
	dir := t.TempDir()
	heap, err := hostsim.Open(filepath.Join(dir, "heap.db"))
	require.NoError(t, err)
	t.Cleanup(func() { heap.Close() })

	idx, err := Open(
		filepath.Join(dir, "index.db"),
		WithM(8),
		WithEfConstruction(32),
		WithEfSearch(16),
		WithRandomSeed(41),
		WithMetricsRegistry(prometheus.NewRegistry()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	rng := rand.New(rand.NewSource(17))
	const n = 40
	for i := uint64(1); i <= n; i++ {
		v := make([]float32, 6)
		for j := range v {
			v[j] = rng.Float32()
		}
		require.NoError(t, heap.Insert(i, v))
	}

	ctx := context.Background()
	built, err := idx.Build(ctx, func(yield func(tid uint64, vector []float32) error) error {
		return heap.Scan(func(r hostsim.Row) error { return yield(r.TID, r.Vector) })
	})
	require.NoError(t, err)
	require.EqualValues(t, n, built)

	for tid := uint64(1); tid <= n; tid += 4 {
		require.NoError(t, heap.MarkDeleted(tid))
	}

	guarded := GuardedAliveFunc(heap.Alive, idx.AliveBreaker("hostsim-alive"), nil)

	stats, err := idx.BulkDelete(ctx, guarded)
	require.NoError(t, err)
	require.EqualValues(t, n/4, stats.TuplesRemoved)

	states := idx.BreakerStates()
	require.Contains(t, states, "hostsim-alive")
	require.Equal(t, obs.CircuitClosed, states["hostsim-alive"])

	vstats, err := idx.VacuumCleanup(ctx)
	require.NoError(t, err)
	require.EqualValues(t, n/4, vstats.PagesFreed)

	relSize, err := idx.RelationSize()
	require.NoError(t, err)
	require.Greater(t, relSize, uint32(0))
}
