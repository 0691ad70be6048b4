package analysis

import (
	"context"
	"math"
	"time"

	"pulsegraph/graph"
)

// eigenvector computes eigenvector centrality by power iteration over the
// undirected weighted adjacency, shifted by the identity so that bipartite
// components cannot oscillate. The vector is L2-normalized after every
// multiplication; iteration stops when the L1 change drops below the
// tolerance, on the iteration cap, or on timeout, the latter two flagging
// the values as non-converged.
func (e *Engine) eigenvector(ctx context.Context, snap *graph.Snapshot) (map[string]float64, *Warning) {
	started := time.Now()
	n := snap.NodeCount()

	if snap.EdgeCount() == 0 {
		result := make(map[string]float64, n)
		for _, id := range snap.NodeIDs {
			result[id] = 0
		}
		e.collector.ObserveCompute(metricEigenvector, time.Since(started), 0, true)
		return result, nil
	}

	ids := snap.NodeIDs
	index := make(map[string]int, n)
	for i, id := range ids {
		index[id] = i
	}

	adjacency := make([][]arc, n)
	for i, id := range ids {
		for _, neighbor := range snap.Undirected[id] {
			adjacency[i] = append(adjacency[i], arc{to: index[neighbor.ID], cost: neighbor.Weight})
		}
	}

	values := make([]float64, n)
	next := make([]float64, n)
	for i := range values {
		values[i] = 1.0 / math.Sqrt(float64(n))
	}

	var warning *Warning
	iterations := 0
	converged := false

	for iterations < e.maxIterations {
		if ctx.Err() != nil {
			warning = &Warning{Metric: metricEigenvector, Iterations: iterations, Reason: "timeout"}
			break
		}
		iterations++

		_ = e.pool.ForEach(ctx, n, func(_ context.Context, _, i int) error {
			// the self term is the identity shift
			sum := values[i]
			for _, a := range adjacency[i] {
				sum += a.cost * values[a.to]
			}
			next[i] = sum
			return nil
		})
		if ctx.Err() != nil {
			warning = &Warning{Metric: metricEigenvector, Iterations: iterations, Reason: "timeout"}
			break
		}

		norm := 0.0
		for _, v := range next {
			norm += v * v
		}
		norm = math.Sqrt(norm)

		delta := 0.0
		for i := range next {
			next[i] /= norm
			delta += math.Abs(next[i] - values[i])
		}
		values, next = next, values

		if delta < e.tolerance {
			converged = true
			break
		}
	}

	if !converged && warning == nil {
		warning = &Warning{Metric: metricEigenvector, Iterations: iterations, Reason: "iteration cap reached"}
	}

	result := make(map[string]float64, n)
	for i, id := range ids {
		result[id] = values[i]
	}

	e.collector.ObserveCompute(metricEigenvector, time.Since(started), iterations, converged)
	return result, warning
}
