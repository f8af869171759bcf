package graph

import (
	"context"
	"log/slog"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/xDarkicex/neurondb-hnsw/internal/pagestore"
)

func openTestEngine(t *testing.T) *Engine {
	t.Helper()
	store, err := pagestore.Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("pagestore.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	e := Open(store, slog.Default())
	cfg := DefaultConfig()
	cfg.M = 8
	cfg.EfConstruction = 32
	cfg.EfSearch = 16
	cfg.RandomSeed = 42
	if err := e.BuildEmpty(cfg); err != nil {
		t.Fatalf("BuildEmpty: %v", err)
	}
	return e
}

func randomVector(rng *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = rng.Float32()
	}
	return v
}

func TestInsertThenSearchFindsSelf(t *testing.T) {
	e := openTestEngine(t)
	rng := rand.New(rand.NewSource(7))
	ctx := context.Background()

	const dim = 8
	tids := make([]uint64, 0, 50)
	vectors := make(map[uint64][]float32)
	for i := 0; i < 50; i++ {
		tid := uint64(i + 1)
		v := randomVector(rng, dim)
		if err := e.Insert(ctx, tid, v, 0); err != nil {
			t.Fatalf("Insert(%d): %v", tid, err)
		}
		tids = append(tids, tid)
		vectors[tid] = v
	}

	for _, tid := range tids {
		results, err := e.Search(ctx, vectors[tid], 1, 32, L2, 0)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(results) == 0 {
			t.Fatalf("Search returned no results for tid %d", tid)
		}
		if results[0].HeapTID != tid {
			t.Fatalf("Search(self) = tid %d, want %d (distance %v)", results[0].HeapTID, tid, results[0].Distance)
		}
	}
}

func TestSearchOnEmptyIndexReturnsErrEmptyIndex(t *testing.T) {
	e := openTestEngine(t)
	_, err := e.Search(context.Background(), []float32{1, 2, 3, 4, 5, 6, 7, 8}, 1, 10, L2, 0)
	if err != ErrEmptyIndex {
		t.Fatalf("Search on empty index = %v, want ErrEmptyIndex", err)
	}
}

func TestSearchRejectsDimensionMismatch(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	if err := e.Insert(ctx, 1, make([]float32, 8), 0); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	_, err := e.Search(ctx, make([]float32, 4), 1, 10, L2, 0)
	if err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestBulkDeleteRemovesTuplesAndRepairsLinks(t *testing.T) {
	e := openTestEngine(t)
	rng := rand.New(rand.NewSource(11))
	ctx := context.Background()

	const dim = 8
	alive := map[uint64]bool{}
	for i := 1; i <= 30; i++ {
		tid := uint64(i)
		if err := e.Insert(ctx, tid, randomVector(rng, dim), 0); err != nil {
			t.Fatalf("Insert(%d): %v", tid, err)
		}
		alive[tid] = true
	}

	removed := map[uint64]bool{}
	for tid := uint64(1); tid <= 15; tid++ {
		alive[tid] = false
		removed[tid] = true
	}

	stats, err := e.BulkDelete(ctx, func(tid uint64) bool { return alive[tid] }, 0)
	if err != nil {
		t.Fatalf("BulkDelete: %v", err)
	}
	if stats.TuplesRemoved != 15 {
		t.Fatalf("TuplesRemoved = %d, want 15", stats.TuplesRemoved)
	}

	s, err := e.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if removed[leafTID(s.EntryPoint, e)] {
		t.Fatalf("entry point still points at a removed tuple")
	}

	results, err := e.Search(ctx, randomVector(rng, dim), 10, 32, L2, 0)
	if err != nil {
		t.Fatalf("Search after delete: %v", err)
	}
	for _, r := range results {
		if removed[r.HeapTID] {
			t.Fatalf("search surfaced removed tid %d", r.HeapTID)
		}
	}
}

func leafTID(page uint32, e *Engine) uint64 {
	n, err := e.getNode(page)
	if err != nil {
		return 0
	}
	return n.HeapTID
}

func TestVacuumCleanupReclaimsTombstonedPages(t *testing.T) {
	e := openTestEngine(t)
	rng := rand.New(rand.NewSource(3))
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		if err := e.Insert(ctx, uint64(i), randomVector(rng, 8), 0); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	before, err := e.RelationSize()
	if err != nil {
		t.Fatalf("RelationSize: %v", err)
	}

	if _, err := e.BulkDelete(ctx, func(tid uint64) bool { return tid > 5 }, 0); err != nil {
		t.Fatalf("BulkDelete: %v", err)
	}
	vstats, err := e.VacuumCleanup(ctx)
	if err != nil {
		t.Fatalf("VacuumCleanup: %v", err)
	}
	if vstats.PagesFreed != 5 {
		t.Fatalf("PagesFreed = %d, want 5", vstats.PagesFreed)
	}

	if err := e.Insert(ctx, 100, randomVector(rng, 8), 0); err != nil {
		t.Fatalf("Insert after vacuum: %v", err)
	}
	after, err := e.RelationSize()
	if err != nil {
		t.Fatalf("RelationSize: %v", err)
	}
	if after > before {
		t.Fatalf("relation grew past pre-delete size (%d > %d); freed pages were not reused", after, before)
	}
}
