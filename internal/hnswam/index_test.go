package hnswam

import (
	"context"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open(
		filepath.Join(t.TempDir(), "index.db"),
		WithM(8),
		WithEfConstruction(32),
		WithEfSearch(16),
		WithRandomSeed(99),
		WithMetricsRegistry(prometheus.NewRegistry()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestOpenInsertSearchRoundTrip(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(5))

	vecs := make(map[uint64][]float32)
	for i := uint64(1); i <= 20; i++ {
		v := make([]float32, 6)
		for j := range v {
			v[j] = rng.Float32()
		}
		require.NoError(t, idx.Insert(ctx, i, v))
		vecs[i] = v
	}

	for tid, v := range vecs {
		results, err := idx.Search(ctx, v, 1)
		require.NoError(t, err)
		require.NotEmpty(t, results)
		require.Equal(t, tid, results[0].HeapTID)
	}
}

func TestSearchOnEmptyIndexErrors(t *testing.T) {
	idx := openTestIndex(t)
	_, err := idx.Search(context.Background(), make([]float32, 6), 1)
	require.ErrorIs(t, err, ErrEmptyIndex)
}

func TestBulkDeleteAndVacuumCleanup(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(9))

	for i := uint64(1); i <= 10; i++ {
		v := make([]float32, 4)
		for j := range v {
			v[j] = rng.Float32()
		}
		require.NoError(t, idx.Insert(ctx, i, v))
	}

	stats, err := idx.BulkDelete(ctx, func(tid uint64) bool { return tid%2 == 0 })
	require.NoError(t, err)
	require.Equal(t, int64(5), stats.TuplesRemoved)

	vstats, err := idx.VacuumCleanup(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(5), vstats.PagesFreed)
}

func TestScanDeliversResultsIncrementally(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(13))

	for i := uint64(1); i <= 15; i++ {
		v := make([]float32, 5)
		for j := range v {
			v[j] = rng.Float32()
		}
		require.NoError(t, idx.Insert(ctx, i, v))
	}

	query := make([]float32, 5)
	for j := range query {
		query[j] = rng.Float32()
	}
	scan := idx.BeginScan(query, 5)
	defer scan.End()

	seen := 0
	for {
		_, ok, err := scan.GetTuple(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		seen++
	}
	require.Equal(t, 5, seen)
}

func TestEstimateCostGrowsWithEfNotLinearlyWithN(t *testing.T) {
	idx := openTestIndex(t)
	small := idx.EstimateCost(100, 16)
	large := idx.EstimateCost(1_000_000, 16)
	require.Less(t, small.EstimatedPagesAccessed, large.EstimatedPagesAccessed)
	require.Less(t, large.EstimatedPagesAccessed, float64(1_000_000))
}
