package navgraph

import (
	"sync/atomic"
	"time"

	"github.com/hupe1980/navgraph/handle"
	"github.com/hupe1980/navgraph/pathfind"
	"github.com/hupe1980/navgraph/regionstore"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems; see
// metrics/prometheus for a Prometheus implementation.
type MetricsCollector interface {
	// RecordGrow is called after each growth pass.
	RecordGrow(grown, frontier int, duration time.Duration)

	// RecordPath is called when a path request finishes.
	// expanded is the number of nodes popped by the search.
	RecordPath(status pathfind.Status, expanded int, duration time.Duration)

	// RecordRegionLoad is called after each region load attempt.
	RecordRegionLoad(nodes int, duration time.Duration, err error)

	// RecordRegionSave is called after each region write attempt.
	RecordRegionSave(nodes, bytes int, duration time.Duration, err error)

	// RecordPageOut is called with the number of regions evicted.
	RecordPageOut(evicted int)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordGrow(int, int, time.Duration)              {}
func (NoopMetricsCollector) RecordPath(pathfind.Status, int, time.Duration)  {}
func (NoopMetricsCollector) RecordRegionLoad(int, time.Duration, error)      {}
func (NoopMetricsCollector) RecordRegionSave(int, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordPageOut(int)                               {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	GrowCount       atomic.Int64
	GrownNodes      atomic.Int64
	GrowTotalNanos  atomic.Int64
	Frontier        atomic.Int64
	PathCount       atomic.Int64
	PathFailures    atomic.Int64
	PathCanceled    atomic.Int64
	PathExpanded    atomic.Int64
	PathTotalNanos  atomic.Int64
	LoadCount       atomic.Int64
	LoadErrors      atomic.Int64
	LoadedNodes     atomic.Int64
	SaveCount       atomic.Int64
	SaveErrors      atomic.Int64
	SavedBytes      atomic.Int64
	SaveTotalNanos  atomic.Int64
	PagedOutRegions atomic.Int64
}

// RecordGrow implements MetricsCollector.
func (b *BasicMetricsCollector) RecordGrow(grown, frontier int, duration time.Duration) {
	b.GrowCount.Add(1)
	b.GrownNodes.Add(int64(grown))
	b.GrowTotalNanos.Add(duration.Nanoseconds())
	b.Frontier.Store(int64(frontier))
}

// RecordPath implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPath(status pathfind.Status, expanded int, duration time.Duration) {
	b.PathCount.Add(1)
	b.PathExpanded.Add(int64(expanded))
	b.PathTotalNanos.Add(duration.Nanoseconds())
	switch status {
	case pathfind.StatusFailed:
		b.PathFailures.Add(1)
	case pathfind.StatusCanceled:
		b.PathCanceled.Add(1)
	}
}

// RecordRegionLoad implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRegionLoad(nodes int, _ time.Duration, err error) {
	b.LoadCount.Add(1)
	b.LoadedNodes.Add(int64(nodes))
	if err != nil {
		b.LoadErrors.Add(1)
	}
}

// RecordRegionSave implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRegionSave(_, bytes int, duration time.Duration, err error) {
	b.SaveCount.Add(1)
	b.SaveTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SaveErrors.Add(1)
		return
	}
	b.SavedBytes.Add(int64(bytes))
}

// RecordPageOut implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPageOut(evicted int) {
	b.PagedOutRegions.Add(int64(evicted))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		GrowCount:       b.GrowCount.Load(),
		GrownNodes:      b.GrownNodes.Load(),
		Frontier:        b.Frontier.Load(),
		PathCount:       b.PathCount.Load(),
		PathFailures:    b.PathFailures.Load(),
		PathCanceled:    b.PathCanceled.Load(),
		PathAvgExpanded: avg(b.PathExpanded.Load(), b.PathCount.Load()),
		PathAvgNanos:    avg(b.PathTotalNanos.Load(), b.PathCount.Load()),
		LoadCount:       b.LoadCount.Load(),
		LoadErrors:      b.LoadErrors.Load(),
		LoadedNodes:     b.LoadedNodes.Load(),
		SaveCount:       b.SaveCount.Load(),
		SaveErrors:      b.SaveErrors.Load(),
		SavedBytes:      b.SavedBytes.Load(),
		SaveAvgNanos:    avg(b.SaveTotalNanos.Load(), b.SaveCount.Load()),
		PagedOutRegions: b.PagedOutRegions.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	GrowCount       int64
	GrownNodes      int64
	Frontier        int64
	PathCount       int64
	PathFailures    int64
	PathCanceled    int64
	PathAvgExpanded int64
	PathAvgNanos    int64
	LoadCount       int64
	LoadErrors      int64
	LoadedNodes     int64
	SaveCount       int64
	SaveErrors      int64
	SavedBytes      int64
	SaveAvgNanos    int64
	PagedOutRegions int64
}

// storeObserver forwards region store events to a MetricsCollector.
type storeObserver struct {
	mc MetricsCollector
}

var _ regionstore.Observer = storeObserver{}

func (o storeObserver) RegionSaved(_ handle.RegionHandle, nodes, bytes int, elapsed time.Duration, err error) {
	o.mc.RecordRegionSave(nodes, bytes, elapsed, err)
}

func (o storeObserver) RegionLoaded(_ handle.RegionHandle, nodes int, elapsed time.Duration, err error) {
	o.mc.RecordRegionLoad(nodes, elapsed, err)
}
