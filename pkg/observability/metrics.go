// Package observability exposes Prometheus instrumentation for the
// analytics core. Collectors are constructed explicitly and passed to the
// components that need them; there is no package-level registry so two
// engines in one process never collide.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the Prometheus metrics emitted by the graph builder,
// metrics engine, and trend aggregator.
type Collector struct {
	registry *prometheus.Registry

	// Graph build metrics
	BuildsTotal    *prometheus.CounterVec
	BuildDuration  *prometheus.HistogramVec
	NodesUpserted  prometheus.Counter
	EdgesUpserted  prometheus.Counter
	RecordsSkipped prometheus.Counter

	// Metrics engine
	ComputeDuration   *prometheus.HistogramVec
	ComputeIterations *prometheus.HistogramVec
	ConvergenceMisses *prometheus.CounterVec

	// Trend aggregator
	TrendRuns      prometheus.Counter
	TrendsDetected prometheus.Counter
}

// NewCollector creates a collector registered against its own registry.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	buildsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graph_builds_total",
			Help:      "Total number of graph build runs",
		},
		[]string{"network", "status"},
	)

	buildDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "graph_build_duration_seconds",
			Help:      "Graph build duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"network"},
	)

	nodesUpserted := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graph_nodes_upserted_total",
			Help:      "Total number of node upserts",
		},
	)

	edgesUpserted := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graph_edges_upserted_total",
			Help:      "Total number of edge upserts",
		},
	)

	recordsSkipped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_skipped_total",
			Help:      "Total number of malformed input records skipped",
		},
	)

	computeDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "metric_compute_duration_seconds",
			Help:      "Per-metric computation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"metric"},
	)

	computeIterations := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "metric_iterations",
			Help:      "Iterations used by iterative metrics",
			Buckets:   []float64{1, 2, 5, 10, 20, 50, 100, 200},
		},
		[]string{"metric"},
	)

	convergenceMisses := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metric_convergence_misses_total",
			Help:      "Computations that hit the iteration cap or timeout before converging",
		},
		[]string{"metric"},
	)

	trendRuns := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trend_detection_runs_total",
			Help:      "Total number of trend detection runs",
		},
	)

	trendsDetected := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trends_detected_total",
			Help:      "Total number of trends emitted",
		},
	)

	registry.MustRegister(
		buildsTotal,
		buildDuration,
		nodesUpserted,
		edgesUpserted,
		recordsSkipped,
		computeDuration,
		computeIterations,
		convergenceMisses,
		trendRuns,
		trendsDetected,
	)

	return &Collector{
		registry:          registry,
		BuildsTotal:       buildsTotal,
		BuildDuration:     buildDuration,
		NodesUpserted:     nodesUpserted,
		EdgesUpserted:     edgesUpserted,
		RecordsSkipped:    recordsSkipped,
		ComputeDuration:   computeDuration,
		ComputeIterations: computeIterations,
		ConvergenceMisses: convergenceMisses,
		TrendRuns:         trendRuns,
		TrendsDetected:    trendsDetected,
	}
}

// Registry exposes the underlying registry so callers can mount it on
// their own /metrics handler.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// ObserveBuild records one build run.
func (c *Collector) ObserveBuild(network string, duration time.Duration, nodes, edges, skipped int, err error) {
	if c == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	c.BuildsTotal.WithLabelValues(network, status).Inc()
	c.BuildDuration.WithLabelValues(network).Observe(duration.Seconds())
	c.NodesUpserted.Add(float64(nodes))
	c.EdgesUpserted.Add(float64(edges))
	c.RecordsSkipped.Add(float64(skipped))
}

// ObserveCompute records one metric computation.
func (c *Collector) ObserveCompute(metric string, duration time.Duration, iterations int, converged bool) {
	if c == nil {
		return
	}
	c.ComputeDuration.WithLabelValues(metric).Observe(duration.Seconds())
	if iterations > 0 {
		c.ComputeIterations.WithLabelValues(metric).Observe(float64(iterations))
	}
	if !converged {
		c.ConvergenceMisses.WithLabelValues(metric).Inc()
	}
}

// ObserveTrendRun records one trend detection run.
func (c *Collector) ObserveTrendRun(trends, skipped int) {
	if c == nil {
		return
	}
	c.TrendRuns.Inc()
	c.TrendsDetected.Add(float64(trends))
	c.RecordsSkipped.Add(float64(skipped))
}
