package analysis

import (
	"context"
	"math"
	"time"

	"pulsegraph/graph"
)

// pageRank computes the damped random-walk PageRank over the directed
// snapshot. The rank vector starts uniform; dangling nodes redistribute
// their mass uniformly across all nodes each iteration, so the vector
// sums to 1 throughout. Iteration stops when the L1 change drops below
// the tolerance, the iteration cap is reached, or the context expires;
// the latter two flag the returned values as non-converged.
func (e *Engine) pageRank(ctx context.Context, snap *graph.Snapshot) (map[string]float64, *Warning) {
	started := time.Now()
	n := snap.NodeCount()

	ids := snap.NodeIDs
	index := make(map[string]int, n)
	for i, id := range ids {
		index[id] = i
	}

	ranks := make([]float64, n)
	next := make([]float64, n)
	outDegree := make([]int, n)
	dangling := make([]int, 0)

	for i, id := range ids {
		ranks[i] = 1.0 / float64(n)
		outDegree[i] = snap.OutDegreeCount(id)
		if outDegree[i] == 0 {
			dangling = append(dangling, i)
		}
	}

	// inbound contributions per node, resolved to indices once
	inbound := make([][]int, n)
	for i, id := range ids {
		for _, neighbor := range snap.In[id] {
			inbound[i] = append(inbound[i], index[neighbor.ID])
		}
	}

	var warning *Warning
	iterations := 0
	converged := false

	for iterations < e.maxIterations {
		if ctx.Err() != nil {
			warning = &Warning{Metric: metricPageRank, Iterations: iterations, Reason: "timeout"}
			break
		}
		iterations++

		danglingMass := 0.0
		for _, i := range dangling {
			danglingMass += ranks[i]
		}
		base := (1-e.damping)/float64(n) + e.damping*danglingMass/float64(n)

		// per-node slots are independent; fan out across the pool
		_ = e.pool.ForEach(ctx, n, func(_ context.Context, _, i int) error {
			sum := 0.0
			for _, j := range inbound[i] {
				sum += ranks[j] / float64(outDegree[j])
			}
			next[i] = base + e.damping*sum
			return nil
		})
		if ctx.Err() != nil {
			warning = &Warning{Metric: metricPageRank, Iterations: iterations, Reason: "timeout"}
			break
		}

		delta := 0.0
		for i := range ranks {
			delta += math.Abs(next[i] - ranks[i])
		}
		ranks, next = next, ranks

		if delta < e.tolerance {
			converged = true
			break
		}
	}

	if !converged && warning == nil {
		warning = &Warning{Metric: metricPageRank, Iterations: iterations, Reason: "iteration cap reached"}
	}

	result := make(map[string]float64, n)
	for i, id := range ids {
		result[id] = ranks[i]
	}

	e.collector.ObserveCompute(metricPageRank, time.Since(started), iterations, converged)
	return result, warning
}
