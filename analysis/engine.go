// Package analysis implements the metrics engine: PageRank, degree
// variants, betweenness/closeness/eigenvector centrality and community
// detection over an immutable graph snapshot. The engine is a pure,
// re-entrant computation library; it owns no background goroutines and
// keeps no state between Compute calls.
package analysis

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pulsegraph/graph"
	"pulsegraph/internal/concurrency"
	"pulsegraph/pkg/observability"
)

const tracerName = "pulsegraph/analysis"

// Metric names used in warnings, traces and instrumentation.
const (
	metricPageRank    = "pagerank"
	metricDegree      = "degree"
	metricBetweenness = "betweenness"
	metricCloseness   = "closeness"
	metricEigenvector = "eigenvector"
	metricCommunities = "communities"
)

// DegreeMode selects between counting incident edges and summing their
// weights.
type DegreeMode int

const (
	DegreeCount DegreeMode = iota
	DegreeWeighted
)

// Engine computes graph metrics over snapshots. Construct one per job or
// per call; it is safe to reuse across snapshots.
type Engine struct {
	logger    *zap.Logger
	collector *observability.Collector
	tracer    trace.Tracer
	pool      *concurrency.Pool

	damping       float64
	tolerance     float64
	maxIterations int

	// weighted treats edge weight as inverse cost for shortest-path
	// metrics: higher weight means shorter effective distance.
	weighted   bool
	degreeMode DegreeMode

	// normalizeBetweenness rescales raw Brandes values by
	// 2/((N-1)(N-2)); the default is raw values.
	normalizeBetweenness bool

	communityMaxSweeps int
	seed               int64
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger; the default is a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithCollector attaches Prometheus instrumentation.
func WithCollector(c *observability.Collector) Option {
	return func(e *Engine) {
		e.collector = c
	}
}

// WithWorkers sets the worker count for parallel phases; zero picks a
// CPU-based default.
func WithWorkers(workers int) Option {
	return func(e *Engine) {
		e.pool = concurrency.NewPool(workers)
	}
}

// WithDamping sets the PageRank damping factor.
func WithDamping(d float64) Option {
	return func(e *Engine) {
		if d > 0 && d < 1 {
			e.damping = d
		}
	}
}

// WithTolerance sets the convergence tolerance for iterative metrics.
func WithTolerance(tol float64) Option {
	return func(e *Engine) {
		if tol > 0 {
			e.tolerance = tol
		}
	}
}

// WithMaxIterations caps the iterations of iterative metrics.
func WithMaxIterations(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxIterations = n
		}
	}
}

// WithWeightedPaths makes shortest-path metrics use 1/weight as the edge
// cost instead of hop counts.
func WithWeightedPaths(weighted bool) Option {
	return func(e *Engine) {
		e.weighted = weighted
	}
}

// WithDegreeMode selects edge counting or weight summing for degrees.
func WithDegreeMode(mode DegreeMode) Option {
	return func(e *Engine) {
		e.degreeMode = mode
	}
}

// WithNormalizedBetweenness rescales betweenness by 2/((N-1)(N-2)).
func WithNormalizedBetweenness(normalize bool) Option {
	return func(e *Engine) {
		e.normalizeBetweenness = normalize
	}
}

// WithCommunitySweeps caps label propagation sweeps.
func WithCommunitySweeps(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.communityMaxSweeps = n
		}
	}
}

// WithSeed fixes the seed for the randomized sweep order of community
// detection; results are deterministic for a fixed seed.
func WithSeed(seed int64) Option {
	return func(e *Engine) {
		e.seed = seed
	}
}

// NewEngine creates a metrics engine with the default tuning: damping
// 0.85, tolerance 1e-6, iteration cap 100, unweighted paths, raw
// betweenness.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		logger:             zap.NewNop(),
		tracer:             otel.Tracer(tracerName),
		pool:               concurrency.NewPool(0),
		damping:            0.85,
		tolerance:          1e-6,
		maxIterations:      100,
		degreeMode:         DegreeCount,
		communityMaxSweeps: 50,
		seed:               1,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Selection toggles which metrics a Compute run produces. Each metric is
// independent and may be skipped.
type Selection struct {
	PageRank    bool
	Degree      bool
	Betweenness bool
	Closeness   bool
	Eigenvector bool
	Communities bool
}

// SelectAll enables every metric.
func SelectAll() Selection {
	return Selection{
		PageRank:    true,
		Degree:      true,
		Betweenness: true,
		Closeness:   true,
		Eigenvector: true,
		Communities: true,
	}
}

// Warning flags a metric that stopped before converging: the values are
// still returned, the caller decides whether to use them.
type Warning struct {
	Metric     string
	Iterations int
	Reason     string
}

// Result is the outcome of one Compute run: derived values keyed by node
// id plus any convergence warnings.
type Result struct {
	Nodes map[string]graph.NodeMetrics

	// CommunityCount is the number of distinct communities; zero when
	// community detection was not selected.
	CommunityCount int

	Warnings []Warning
	Elapsed  time.Duration
}

// Converged reports whether every selected metric converged.
func (r *Result) Converged() bool {
	return len(r.Warnings) == 0
}

// Compute runs the selected metrics over the snapshot. An empty graph
// yields an empty result, not an error. Cycles are fully supported. The
// context deadline bounds the whole run: on expiry the engine returns
// the last converged or partial values it has, flagged with warnings,
// rather than failing.
func (e *Engine) Compute(ctx context.Context, snap *graph.Snapshot, sel Selection) (*Result, error) {
	started := time.Now()
	result := &Result{Nodes: make(map[string]graph.NodeMetrics)}

	if snap == nil || snap.NodeCount() == 0 {
		return result, nil
	}

	ctx, span := e.tracer.Start(ctx, "Compute",
		trace.WithAttributes(
			attribute.Int("nodes", snap.NodeCount()),
			attribute.Int("edges", snap.EdgeCount()),
		))
	defer span.End()

	var (
		degrees     map[string]degreeTriple
		ranks       map[string]float64
		between     map[string]float64
		closeness   map[string]float64
		eigen       map[string]float64
		communities map[string]int

		warnings = newWarningSet()
	)

	// independent metrics fan out; each writes only its own slot
	g, gctx := errgroup.WithContext(ctx)

	if sel.Degree {
		g.Go(func() error {
			start := time.Now()
			degrees = e.computeDegrees(snap)
			e.collector.ObserveCompute(metricDegree, time.Since(start), 0, true)
			return nil
		})
	}
	if sel.PageRank {
		g.Go(func() error {
			var w *Warning
			ranks, w = e.pageRank(gctx, snap)
			warnings.add(w)
			return nil
		})
	}
	if sel.Betweenness {
		g.Go(func() error {
			var w *Warning
			between, w = e.betweenness(gctx, snap)
			warnings.add(w)
			return nil
		})
	}
	if sel.Closeness {
		g.Go(func() error {
			var w *Warning
			closeness, w = e.closeness(gctx, snap)
			warnings.add(w)
			return nil
		})
	}
	if sel.Eigenvector {
		g.Go(func() error {
			var w *Warning
			eigen, w = e.eigenvector(gctx, snap)
			warnings.add(w)
			return nil
		})
	}
	if sel.Communities {
		g.Go(func() error {
			var w *Warning
			communities, result.CommunityCount, w = e.detectCommunities(gctx, snap)
			warnings.add(w)
			return nil
		})
	}

	// metric workers never return errors; partial results on timeout
	// are carried through warnings instead
	_ = g.Wait()

	for _, id := range snap.NodeIDs {
		m := graph.NodeMetrics{}
		if d, ok := degrees[id]; ok {
			m.Degree = ptr(d.total)
			m.InDegree = ptr(d.in)
			m.OutDegree = ptr(d.out)
		}
		if v, ok := ranks[id]; ok {
			m.PageRank = ptr(v)
		}
		if v, ok := between[id]; ok {
			m.Betweenness = ptr(v)
		}
		if v, ok := closeness[id]; ok {
			m.Closeness = ptr(v)
		}
		if v, ok := eigen[id]; ok {
			m.Eigenvector = ptr(v)
		}
		if c, ok := communities[id]; ok {
			m.CommunityID = ptr(c)
		}
		result.Nodes[id] = m
	}

	result.Warnings = warnings.all()
	result.Elapsed = time.Since(started)

	e.logger.Info("metrics computation finished",
		zap.Int("nodes", snap.NodeCount()),
		zap.Int("edges", snap.EdgeCount()),
		zap.Int("communities", result.CommunityCount),
		zap.Int("warnings", len(result.Warnings)),
		zap.Duration("elapsed", result.Elapsed),
	)
	return result, nil
}

func ptr[T any](v T) *T {
	return &v
}
