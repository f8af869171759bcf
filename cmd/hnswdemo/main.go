// Command hnswdemo builds a small HNSW index backed by a simulated
// heap table, runs a handful of inserts/searches/deletes against it,
// and prints the result — a runnable demonstration of how
// internal/hnswam, internal/hostsim, and internal/pagestore compose,
// grounded on the shape of examples/streaming_example.go's
// section-by-section walkthrough.
package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/xDarkicex/neurondb-hnsw/internal/hnswam"
	"github.com/xDarkicex/neurondb-hnsw/internal/hostsim"
	"github.com/xDarkicex/neurondb-hnsw/internal/obs"
)

const dim = 16

func main() {
	dir, err := os.MkdirTemp("", "hnswdemo")
	if err != nil {
		log.Fatalf("create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	heap, err := hostsim.Open(filepath.Join(dir, "heap.db"))
	if err != nil {
		log.Fatalf("open heap: %v", err)
	}
	defer heap.Close()

	idx, err := hnswam.Open(
		filepath.Join(dir, "index.db"),
		hnswam.WithM(16),
		hnswam.WithEfConstruction(100),
		hnswam.WithEfSearch(50),
		hnswam.WithRandomSeed(1),
	)
	if err != nil {
		log.Fatalf("open index: %v", err)
	}
	defer idx.Close()

	ctx := context.Background()

	fmt.Println("=== Loading rows into the simulated heap and index ===")
	loadRows(ctx, heap, idx, 500)

	fmt.Println("\n=== Running nearest-neighbor queries ===")
	runQueries(ctx, idx, 5)

	fmt.Println("\n=== Deleting a third of the rows and vacuuming ===")
	deleteAndVacuum(ctx, heap, idx)

	fmt.Println("\n=== Health check ===")
	checker := obs.NewHealthChecker(idx)
	status, err := checker.Check(ctx)
	if err != nil {
		log.Fatalf("health check: %v", err)
	}
	fmt.Printf("status: %s\n", status.Status)
	for name, check := range status.Checks {
		fmt.Printf("  %s: healthy=%v message=%q\n", name, check.Healthy, check.Message)
	}
	for name, state := range idx.BreakerStates() {
		fmt.Printf("  breaker %s: %s\n", name, state)
	}
}

func loadRows(ctx context.Context, heap *hostsim.Heap, idx *hnswam.Index, n int) {
	rng := rand.New(rand.NewSource(2))
	for i := 1; i <= n; i++ {
		if err := heap.Insert(uint64(i), randomVector(rng)); err != nil {
			log.Fatalf("heap insert %d: %v", i, err)
		}
	}

	built, err := idx.Build(ctx, func(yield func(tid uint64, vector []float32) error) error {
		return heap.Scan(func(r hostsim.Row) error { return yield(r.TID, r.Vector) })
	})
	if err != nil {
		log.Fatalf("build: %v", err)
	}

	stats, err := idx.Stats()
	if err != nil {
		log.Fatalf("stats: %v", err)
	}
	fmt.Printf("built index from %d rows, entry point level %d, max level %d\n", built, stats.EntryLevel, stats.MaxLevel)
}

func runQueries(ctx context.Context, idx *hnswam.Index, n int) {
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < n; i++ {
		q := randomVector(rng)
		results, err := idx.Search(ctx, q, 3)
		if err != nil {
			log.Fatalf("search: %v", err)
		}
		fmt.Printf("query %d: top match tid=%d distance=%.4f\n", i, results[0].HeapTID, results[0].Distance)
	}
}

func deleteAndVacuum(ctx context.Context, heap *hostsim.Heap, idx *hnswam.Index) {
	for tid := uint64(1); tid <= 500; tid += 3 {
		if err := heap.MarkDeleted(tid); err != nil {
			log.Fatalf("mark deleted %d: %v", tid, err)
		}
	}
	guarded := hnswam.GuardedAliveFunc(heap.Alive, idx.AliveBreaker("demo-heap"), nil)
	dstats, err := idx.BulkDelete(ctx, guarded)
	if err != nil {
		log.Fatalf("bulk delete: %v", err)
	}
	fmt.Printf("tombstoned %d tuples across %d pages scanned\n", dstats.TuplesRemoved, dstats.PagesScanned)

	vstats, err := idx.VacuumCleanup(ctx)
	if err != nil {
		log.Fatalf("vacuum cleanup: %v", err)
	}
	fmt.Printf("reclaimed %d pages out of %d\n", vstats.PagesFreed, vstats.PageCount)
}

func randomVector(rng *rand.Rand) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = rng.Float32()*2 - 1
	}
	return v
}
