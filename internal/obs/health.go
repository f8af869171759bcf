package obs

import (
	"context"
	"strconv"
)

// HealthStatus mirrors libravdb/collection.go's health-check shape,
// generalized from a per-collection report to a per-index one.
type HealthStatus struct {
	Status string
	Checks map[string]CheckResult
}

// CheckResult is one named health probe's outcome.
type CheckResult struct {
	Healthy bool
	Message string
}

// RelationSizer is the subset of graph.Engine's surface a health check
// needs; kept as an interface so obs does not import graph (which would
// create an import cycle once graph starts reporting metrics).
type RelationSizer interface {
	RelationSize() (uint32, error)
}

// HealthChecker reports whether the page store backing an index is
// reachable and consistent enough to answer RelationSize.
type HealthChecker struct {
	engine RelationSizer
}

// NewHealthChecker binds a health checker to an open index.
func NewHealthChecker(engine RelationSizer) *HealthChecker {
	return &HealthChecker{engine: engine}
}

// Check performs the page-store reachability probe.
func (hc *HealthChecker) Check(ctx context.Context) (*HealthStatus, error) {
	checks := make(map[string]CheckResult)

	if err := ctx.Err(); err != nil {
		checks["context"] = CheckResult{Healthy: false, Message: err.Error()}
		return &HealthStatus{Status: "unhealthy", Checks: checks}, nil
	}

	size, err := hc.engine.RelationSize()
	if err != nil {
		checks["pagestore"] = CheckResult{Healthy: false, Message: err.Error()}
		return &HealthStatus{Status: "unhealthy", Checks: checks}, nil
	}
	checks["pagestore"] = CheckResult{Healthy: true, Message: "relation size " + strconv.FormatUint(uint64(size), 10)}
	return &HealthStatus{Status: "healthy", Checks: checks}, nil
}
