// Package graph implements the HNSW graph engine (spec §4.4): level
// assignment, multi-layer search, insertion with bidirectional linking
// and neighbor pruning, node removal with link repair, and entry-point
// maintenance, all issued as page-store reads/writes through
// internal/pagestore and internal/codec.
//
// This is the page-oriented generalization of
// internal/index/hnsw/{hnsw,insert,search,neighbors,delete}.go: every
// in-memory h.nodes[id] access there becomes a
// pagestore.ReadShared/ReadExclusive + codec.DecodeNode/EncodeNode round
// trip here, and the page number plays the role the teacher's slice
// index played.
package graph

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"

	"github.com/xDarkicex/neurondb-hnsw/internal/codec"
	"github.com/xDarkicex/neurondb-hnsw/internal/pagestore"
)

// Config holds the build-time HNSW parameters, spec §6 reloptions plus
// the session-independent engine knobs. Immutable after BuildEmpty.
type Config struct {
	M              int     // target out-degree per layer, 2<=m<=128
	EfConstruction int     // candidate-pool width during insertion, 4<=x<=10000, >=M
	EfSearch       int     // default candidate-pool width for queries, 4<=x<=10000, >=M
	ML             float64 // level-distribution factor, default 1/ln(m)
	MaxVisited     int     // cap on the visited-set auxiliary list, default 1Mi
	RandomSeed     int64   // PRNG seed, injectable for reproducible tests
}

// DefaultConfig returns the spec §6 reloption defaults.
func DefaultConfig() Config {
	return Config{
		M:              16,
		EfConstruction: 200,
		EfSearch:       64,
		ML:             0.36,
		MaxVisited:     1 << 20,
		RandomSeed:     1,
	}
}

// Validate enforces spec §4.5's option ranges. Rejection is an error;
// no default silently overrides invalid input.
func (c Config) Validate() error {
	if c.M < 2 || c.M > 128 {
		return fmt.Errorf("%w: m=%d must be in [2,128]", ErrInvalidOption, c.M)
	}
	if c.EfConstruction < 4 || c.EfConstruction > 10000 {
		return fmt.Errorf("%w: ef_construction=%d must be in [4,10000]", ErrInvalidOption, c.EfConstruction)
	}
	if c.EfSearch < 4 || c.EfSearch > 10000 {
		return fmt.Errorf("%w: ef_search=%d must be in [4,10000]", ErrInvalidOption, c.EfSearch)
	}
	if c.EfConstruction < c.M {
		return fmt.Errorf("%w: ef_construction=%d must be >= m=%d", ErrInvalidOption, c.EfConstruction, c.M)
	}
	if c.EfSearch < c.M {
		return fmt.Errorf("%w: ef_search=%d must be >= m=%d", ErrInvalidOption, c.EfSearch, c.M)
	}
	if c.ML <= 0 {
		return fmt.Errorf("%w: ml=%v must be positive", ErrInvalidOption, c.ML)
	}
	return nil
}

// Engine is the graph engine bound to one page store. It is the
// "IndexContext" of spec §9's redesign note: a read-mostly handle
// threaded explicitly through every operation instead of living as
// module-level globals, with a lazily-populated m cache (m is immutable
// after build, so it is safe to cache once read).
type Engine struct {
	store  *pagestore.Store
	logger *slog.Logger

	rngMu sync.Mutex
	rng   *rand.Rand

	cacheMu  sync.Mutex
	mCache   int
	dimCache int
}

// Open binds an engine to an already-open page store. Call BuildEmpty
// once on a fresh store before any Insert/Search.
func Open(store *pagestore.Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, logger: logger}
}

// BuildEmpty initializes the meta page for a fresh index (spec §4.5
// Build). An existing meta page is left unchanged and its stored m stays
// authoritative; the level-assignment PRNG is (re-)seeded from cfg either
// way.
func (e *Engine) BuildEmpty(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return newErr(KindValidation, "BuildEmpty", "invalid config", err)
	}
	meta := &codec.Meta{
		EntryPoint:     codec.NoPage,
		EntryLevel:     -1,
		MaxLevel:       -1,
		M:              int16(cfg.M),
		EfConstruction: int16(cfg.EfConstruction),
		EfSearch:       int16(cfg.EfSearch),
		ML:             float32(cfg.ML),
		InsertedCount:  0,
	}
	initialized, err := e.store.InitMeta(codec.EncodeMeta(meta))
	if err != nil {
		return newErr(KindResource, "BuildEmpty", "failed to initialize meta page", err)
	}
	e.rngMu.Lock()
	e.rng = rand.New(rand.NewSource(cfg.RandomSeed))
	e.rngMu.Unlock()
	if initialized {
		e.cacheMu.Lock()
		e.mCache = cfg.M
		e.cacheMu.Unlock()
	}
	return nil
}

// SeedRNG (re-)seeds the level-assignment PRNG explicitly, for tests
// that need determinism independent of BuildEmpty (spec §9, §8 S6).
func (e *Engine) SeedRNG(seed int64) {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	e.rng = rand.New(rand.NewSource(seed))
}

func (e *Engine) readMeta() (*codec.Meta, error) {
	buf, err := e.store.ReadMeta()
	if err != nil {
		return nil, newErr(KindResource, "readMeta", "meta page unreadable", err)
	}
	meta, err := codec.DecodeMeta(buf)
	if err != nil {
		return nil, newErr(KindCorruptionHard, "readMeta", "meta page corrupted", err)
	}
	e.cacheMu.Lock()
	e.mCache = int(meta.M)
	e.dimCache = int(meta.Dim)
	e.cacheMu.Unlock()
	return meta, nil
}

func (e *Engine) writeMeta(meta *codec.Meta) error {
	if err := e.store.WriteMeta(codec.EncodeMeta(meta)); err != nil {
		return newErr(KindResource, "writeMeta", "failed to persist meta page", err)
	}
	return nil
}

// M returns the index's immutable out-degree target, loading it from
// the meta page on first use.
func (e *Engine) M() (int, error) {
	e.cacheMu.Lock()
	m := e.mCache
	e.cacheMu.Unlock()
	if m != 0 {
		return m, nil
	}
	meta, err := e.readMeta()
	if err != nil {
		return 0, err
	}
	return int(meta.M), nil
}

// dim returns the index's fixed vector dimension, 0 if no vector has
// been inserted yet.
func (e *Engine) dim() (int, error) {
	e.cacheMu.Lock()
	d := e.dimCache
	e.cacheMu.Unlock()
	if d != 0 {
		return d, nil
	}
	meta, err := e.readMeta()
	if err != nil {
		return 0, err
	}
	return int(meta.Dim), nil
}

// checkOrSetDim validates vecDim against the index's fixed dimension,
// fixing it on the first insert into an empty index (spec §4.3:
// dimension is established by the first vector and immutable after).
func (e *Engine) checkOrSetDim(meta *codec.Meta, vecDim int) error {
	if meta.Dim == 0 {
		meta.Dim = int16(vecDim)
		e.cacheMu.Lock()
		e.dimCache = vecDim
		e.cacheMu.Unlock()
		return nil
	}
	if int(meta.Dim) != vecDim {
		return fmt.Errorf("%w: index dimension %d, got %d", ErrDimMismatch, meta.Dim, vecDim)
	}
	return nil
}

// nextLevel draws a new node's level: floor(-ln(U)*ml), clamped to
// [0,15], U drawn uniformly in (0,1) (zero is re-drawn; spec §4.4.1).
func (e *Engine) nextLevel(ml float64) int {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	if e.rng == nil {
		e.rng = rand.New(rand.NewSource(1))
	}
	var u float64
	for u == 0 {
		u = e.rng.Float64()
	}
	level := int(math.Floor(-math.Log(u) * ml))
	if level < 0 {
		level = 0
	}
	if level > codec.MaxLevel-1 {
		level = codec.MaxLevel - 1
	}
	return level
}

// getNodeLenient reads and decodes the node at page, reporting ok=false
// instead of an error for anything the search contract treats as skip-
// with-warning (spec §4.4.3 edge-case policies): an unreadable page, an
// empty page, an undecodable record, or an invalid level. An out-of-range
// neighbor count is clamped to 2m with a logged warning and the node is
// still returned. Callers that traverse the graph during a search
// use this instead of getNode so that one corrupted page never aborts
// the whole query.
func (e *Engine) getNodeLenient(page uint32) (*codec.Node, bool) {
	m, err := e.M()
	if err != nil {
		return nil, false
	}
	guard, err := e.store.ReadShared(page)
	if err != nil {
		e.logger.Warn("hnsw: search skipping page it could not read", "page", page, "error", err)
		return nil, false
	}
	defer guard.Release()
	if guard.IsEmpty() {
		e.logger.Warn("hnsw: search skipping empty page", "page", page)
		return nil, false
	}
	n, ok := e.readNode(guard.Data(), m)
	if !ok {
		return nil, false
	}
	return n, true
}

// readNode decodes the node stored at page, using the index's m.
func (e *Engine) readNode(buf []byte, m int) (*codec.Node, bool) {
	n, err := codec.DecodeNode(buf, m)
	if err != nil {
		e.logger.Warn("hnsw: skipping unreadable node page", "error", err)
		return nil, false
	}
	if ok := codec.ValidateLevel(int(n.Level)); !ok {
		e.logger.Warn("hnsw: skipping node with invalid level", "level", n.Level)
		return nil, false
	}
	for l := 0; l <= int(n.Level); l++ {
		clamped, didClamp := codec.ClampNeighborCount(n.NeighborCount[l], m)
		if didClamp {
			e.logger.Warn("hnsw: clamping out-of-range neighbor count", "level", l, "raw", n.NeighborCount[l])
			n.NeighborCount[l] = clamped
		}
	}
	return n, true
}

// RelationSize exposes the current page count for cost estimation and
// scan bookkeeping (spec §4.5 CostEstimate).
func (e *Engine) RelationSize() (uint32, error) {
	sz, err := e.store.RelationSize()
	if err != nil {
		return 0, newErr(KindResource, "RelationSize", "failed to read relation size", err)
	}
	return sz, nil
}

// Stats summarizes the current meta page, used by VacuumCleanup and
// diagnostics.
type Stats struct {
	EntryPoint    uint32
	EntryLevel    int32
	MaxLevel      int32
	InsertedCount int64
}

// Stats returns the current meta page contents.
func (e *Engine) Stats() (Stats, error) {
	meta, err := e.readMeta()
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		EntryPoint:    meta.EntryPoint,
		EntryLevel:    meta.EntryLevel,
		MaxLevel:      meta.MaxLevel,
		InsertedCount: meta.InsertedCount,
	}, nil
}
