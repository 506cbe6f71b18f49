// Package prometheus exports navgraph metrics to Prometheus.
//
//	reg := prometheus.NewRegistry()
//	mesh, _ := navgraph.Open(ctx, navgraph.WithWorld(w),
//	    navgraph.WithMetricsCollector(navprom.New(reg, "navgraph")))
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hupe1980/navgraph"
	"github.com/hupe1980/navgraph/pathfind"
)

// Collector implements navgraph.MetricsCollector with Prometheus metrics.
type Collector struct {
	growPasses   prometheus.Counter
	grownNodes   prometheus.Counter
	growDuration prometheus.Histogram
	frontier     prometheus.Gauge

	paths        *prometheus.CounterVec
	pathDuration *prometheus.HistogramVec
	pathExpanded prometheus.Histogram

	loads        *prometheus.CounterVec
	loadedNodes  prometheus.Counter
	loadDuration prometheus.Histogram

	saves        *prometheus.CounterVec
	savedBytes   prometheus.Counter
	saveDuration prometheus.Histogram

	pagedOut prometheus.Counter
}

var _ navgraph.MetricsCollector = (*Collector)(nil)

// New registers the navgraph metrics with reg under namespace. A nil reg
// uses the default registerer.
func New(reg prometheus.Registerer, namespace string) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Collector{
		growPasses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "growth",
			Name:      "passes_total",
			Help:      "Budgeted growth passes run",
		}),
		grownNodes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "growth",
			Name:      "nodes_total",
			Help:      "Nodes grown",
		}),
		growDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "growth",
			Name:      "pass_duration_seconds",
			Help:      "Duration of one growth pass",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.015, 0.025, 0.035, 0.05, 0.1},
		}),
		frontier: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "growth",
			Name:      "frontier_nodes",
			Help:      "Discovered nodes waiting to be grown",
		}),
		paths: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "path",
			Name:      "requests_total",
			Help:      "Finished path requests by status",
		}, []string{"status"}),
		pathDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "path",
			Name:      "duration_seconds",
			Help:      "Path request latency from submit to result",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"status"}),
		pathExpanded: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "path",
			Name:      "expanded_nodes",
			Help:      "Nodes expanded per search",
			Buckets:   prometheus.ExponentialBuckets(16, 4, 8),
		}),
		loads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "region",
			Name:      "loads_total",
			Help:      "Region loads by outcome",
		}, []string{"status"}),
		loadedNodes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "region",
			Name:      "loaded_nodes_total",
			Help:      "Node records read from storage",
		}),
		loadDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "region",
			Name:      "load_duration_seconds",
			Help:      "Region load latency",
			Buckets:   prometheus.DefBuckets,
		}),
		saves: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "region",
			Name:      "saves_total",
			Help:      "Region writes by outcome",
		}, []string{"status"}),
		savedBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "region",
			Name:      "saved_bytes_total",
			Help:      "Bytes written to storage",
		}),
		saveDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "region",
			Name:      "save_duration_seconds",
			Help:      "Region write latency",
			Buckets:   prometheus.DefBuckets,
		}),
		pagedOut: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "region",
			Name:      "paged_out_total",
			Help:      "Regions evicted from memory",
		}),
	}
}

// RecordGrow implements navgraph.MetricsCollector.
func (c *Collector) RecordGrow(grown, frontier int, duration time.Duration) {
	c.growPasses.Inc()
	c.grownNodes.Add(float64(grown))
	c.growDuration.Observe(duration.Seconds())
	c.frontier.Set(float64(frontier))
}

// RecordPath implements navgraph.MetricsCollector.
func (c *Collector) RecordPath(status pathfind.Status, expanded int, duration time.Duration) {
	s := status.String()
	c.paths.WithLabelValues(s).Inc()
	c.pathDuration.WithLabelValues(s).Observe(duration.Seconds())
	if expanded > 0 {
		c.pathExpanded.Observe(float64(expanded))
	}
}

// RecordRegionLoad implements navgraph.MetricsCollector.
func (c *Collector) RecordRegionLoad(nodes int, duration time.Duration, err error) {
	c.loads.WithLabelValues(outcome(err)).Inc()
	c.loadedNodes.Add(float64(nodes))
	c.loadDuration.Observe(duration.Seconds())
}

// RecordRegionSave implements navgraph.MetricsCollector.
func (c *Collector) RecordRegionSave(_, bytes int, duration time.Duration, err error) {
	c.saves.WithLabelValues(outcome(err)).Inc()
	c.saveDuration.Observe(duration.Seconds())
	if err == nil {
		c.savedBytes.Add(float64(bytes))
	}
}

// RecordPageOut implements navgraph.MetricsCollector.
func (c *Collector) RecordPageOut(evicted int) {
	c.pagedOut.Add(float64(evicted))
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
