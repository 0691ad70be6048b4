package analysis

import (
	"context"
	"math/rand"
	"time"

	"pulsegraph/graph"
)

// detectCommunities partitions nodes by weighted label propagation over
// the undirected view. Every node starts in its own community and
// repeatedly adopts the label with the highest total edge weight among
// its neighbors, ties going to the smallest label. The sweep order is
// shuffled with the engine's fixed seed, so runs are deterministic for a
// given seed. Isolated nodes keep their own label and end up in
// singleton communities. Labels are renumbered densely in node-id order
// before returning.
func (e *Engine) detectCommunities(ctx context.Context, snap *graph.Snapshot) (map[string]int, int, *Warning) {
	started := time.Now()
	n := snap.NodeCount()

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

	labels := make([]int, n)
	sweepOrder := make([]int, n)
	for i := range labels {
		labels[i] = i
		sweepOrder[i] = i
	}

	rng := rand.New(rand.NewSource(e.seed))

	var warning *Warning
	sweeps := 0
	stable := false

	weightByLabel := make(map[int]float64)

	for sweeps < e.communityMaxSweeps {
		if ctx.Err() != nil {
			warning = &Warning{Metric: metricCommunities, Iterations: sweeps, Reason: "timeout"}
			break
		}
		sweeps++
		changed := false

		rng.Shuffle(n, func(i, j int) { sweepOrder[i], sweepOrder[j] = sweepOrder[j], sweepOrder[i] })

		for _, i := range sweepOrder {
			if len(adjacency[i]) == 0 {
				continue
			}

			for label := range weightByLabel {
				delete(weightByLabel, label)
			}
			for _, a := range adjacency[i] {
				weightByLabel[labels[a.to]] += a.cost
			}

			best := labels[i]
			bestWeight := weightByLabel[best]
			for label, weight := range weightByLabel {
				if weight > bestWeight || (weight == bestWeight && label < best) {
					best = label
					bestWeight = weight
				}
			}

			if best != labels[i] {
				labels[i] = best
				changed = true
			}
		}

		if !changed {
			stable = true
			break
		}
	}

	if !stable && warning == nil {
		warning = &Warning{Metric: metricCommunities, Iterations: sweeps, Reason: "sweep cap reached"}
	}

	// renumber labels densely in node-id order
	dense := make(map[int]int)
	result := make(map[string]int, n)
	for i, id := range ids {
		label := labels[i]
		communityID, ok := dense[label]
		if !ok {
			communityID = len(dense)
			dense[label] = communityID
		}
		result[id] = communityID
	}

	e.collector.ObserveCompute(metricCommunities, time.Since(started), sweeps, warning == nil)
	return result, len(dense), warning
}
