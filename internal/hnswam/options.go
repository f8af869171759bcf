package hnswam

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xDarkicex/neurondb-hnsw/internal/graph"
)

// Option configures an Index at Open time, grounded on
// libravdb/options.go's Option func(*Config) error pattern.
type Option func(*options) error

type options struct {
	graphCfg   graph.Config
	strategy   graph.Strategy
	maxVisited int
	registry   prometheus.Registerer
	logger     *slog.Logger
}

func defaultOptions() *options {
	return &options{
		graphCfg:   graph.DefaultConfig(),
		strategy:   graph.L2,
		maxVisited: graph.DefaultConfig().MaxVisited,
		registry:   prometheus.DefaultRegisterer,
		logger:     slog.Default(),
	}
}

// WithM sets the per-layer out-degree target.
func WithM(m int) Option {
	return func(o *options) error {
		o.graphCfg.M = m
		return nil
	}
}

// WithEfConstruction sets the insertion-time candidate pool width.
func WithEfConstruction(ef int) Option {
	return func(o *options) error {
		o.graphCfg.EfConstruction = ef
		return nil
	}
}

// WithEfSearch sets the default query-time candidate pool width.
func WithEfSearch(ef int) Option {
	return func(o *options) error {
		o.graphCfg.EfSearch = ef
		return nil
	}
}

// WithML sets the level-distribution factor.
func WithML(ml float64) Option {
	return func(o *options) error {
		if ml <= 0 {
			return fmt.Errorf("ml must be positive, got %v", ml)
		}
		o.graphCfg.ML = ml
		return nil
	}
}

// WithMaxVisited caps the number of nodes a single search or insert may
// visit, the supplemented safety valve from original_source's hard-coded
// visited-list ceiling.
func WithMaxVisited(n int) Option {
	return func(o *options) error {
		if n <= 0 {
			return fmt.Errorf("max visited must be positive, got %d", n)
		}
		o.graphCfg.MaxVisited = n
		o.maxVisited = n
		return nil
	}
}

// WithRandomSeed fixes the level-assignment PRNG seed for reproducible
// builds (spec §9 Open Question: PRNG is injectable).
func WithRandomSeed(seed int64) Option {
	return func(o *options) error {
		o.graphCfg.RandomSeed = seed
		return nil
	}
}

// WithStrategy selects the default query-time distance strategy.
func WithStrategy(s graph.Strategy) Option {
	return func(o *options) error {
		o.strategy = s
		return nil
	}
}

// WithMetricsRegistry registers this index's Prometheus metrics against
// reg instead of the global default registry. Pass
// prometheus.NewRegistry() in tests that open more than one index in
// the same process.
func WithMetricsRegistry(reg prometheus.Registerer) Option {
	return func(o *options) error {
		o.registry = reg
		return nil
	}
}

// WithLogger overrides the structured logger used for soft-corruption
// warnings and lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) error {
		if l == nil {
			return fmt.Errorf("logger must not be nil")
		}
		o.logger = l
		return nil
	}
}
