package hnswam

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xDarkicex/neurondb-hnsw/internal/obs"
)

func TestGuardedAliveFuncPassesThroughWhenClosed(t *testing.T) {
	cb := obs.NewCircuitBreaker(obs.DefaultCircuitBreakerConfig("alive-check"))
	calls := 0
	guarded := GuardedAliveFunc(func(tid uint64) bool {
		calls++
		return tid%2 == 0
	}, cb, nil)

	require.True(t, guarded(2))
	require.False(t, guarded(3))
	require.Equal(t, 2, calls)
}

func TestGuardedAliveFuncDefaultsToAliveWhenBreakerOpen(t *testing.T) {
	cfg := obs.DefaultCircuitBreakerConfig("alive-check")
	cfg.MaxFailures = 1
	cfg.Timeout = time.Hour
	cb := obs.NewCircuitBreaker(cfg)

	// Force the breaker open by recording a failure directly against it.
	cb.Execute(nil, func() error { return assertErr })
	require.Equal(t, obs.CircuitOpen, cb.State())

	guarded := GuardedAliveFunc(func(tid uint64) bool { return false }, cb, nil)
	require.True(t, guarded(42), "tuple must be treated as alive while the breaker is open")
}

var assertErr = errTest("forced failure")

type errTest string

func (e errTest) Error() string { return string(e) }
