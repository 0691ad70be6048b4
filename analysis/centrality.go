package analysis

import (
	"container/heap"
	"context"
	"math"
	"time"

	"pulsegraph/graph"
)

// indexedGraph is the snapshot's undirected adjacency resolved to dense
// indices, shared read-only by all shortest-path workers.
type indexedGraph struct {
	ids       []string
	adjacency [][]arc
}

// arc is one adjacency entry with its traversal cost.
type arc struct {
	to   int
	cost float64
}

// indexGraph flattens the undirected adjacency. In weighted mode the
// cost is 1/weight, so heavier edges are shorter; in unweighted mode
// every hop costs 1.
func (e *Engine) indexGraph(snap *graph.Snapshot) *indexedGraph {
	ids := snap.NodeIDs
	index := make(map[string]int, len(ids))
	for i, id := range ids {
		index[id] = i
	}

	adjacency := make([][]arc, len(ids))
	for i, id := range ids {
		neighbors := snap.Undirected[id]
		arcs := make([]arc, 0, len(neighbors))
		for _, n := range neighbors {
			cost := 1.0
			if e.weighted && n.Weight > 0 {
				cost = 1.0 / n.Weight
			}
			arcs = append(arcs, arc{to: index[n.ID], cost: cost})
		}
		adjacency[i] = arcs
	}
	return &indexedGraph{ids: ids, adjacency: adjacency}
}

// shortestPaths holds the single-source results Brandes needs: distances,
// path counts, predecessor lists and the settle order.
type shortestPaths struct {
	dist  []float64
	sigma []float64
	preds [][]int
	order []int
}

// singleSource runs BFS (unweighted) or Dijkstra (weighted) from source.
func (e *Engine) singleSource(ig *indexedGraph, source int, sp *shortestPaths) {
	n := len(ig.ids)
	for i := 0; i < n; i++ {
		sp.dist[i] = math.Inf(1)
		sp.sigma[i] = 0
		sp.preds[i] = sp.preds[i][:0]
	}
	sp.order = sp.order[:0]

	sp.dist[source] = 0
	sp.sigma[source] = 1

	if !e.weighted {
		queue := []int{source}
		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			sp.order = append(sp.order, v)

			for _, a := range ig.adjacency[v] {
				alt := sp.dist[v] + 1
				if math.IsInf(sp.dist[a.to], 1) {
					sp.dist[a.to] = alt
					queue = append(queue, a.to)
				}
				if sp.dist[a.to] == alt {
					sp.sigma[a.to] += sp.sigma[v]
					sp.preds[a.to] = append(sp.preds[a.to], v)
				}
			}
		}
		return
	}

	pq := &distHeap{}
	heap.Push(pq, distEntry{node: source, dist: 0})
	settled := make([]bool, n)

	for pq.Len() > 0 {
		entry := heap.Pop(pq).(distEntry)
		v := entry.node
		if settled[v] {
			continue
		}
		settled[v] = true
		sp.order = append(sp.order, v)

		for _, a := range ig.adjacency[v] {
			alt := sp.dist[v] + a.cost
			switch {
			case alt < sp.dist[a.to]:
				sp.dist[a.to] = alt
				sp.sigma[a.to] = sp.sigma[v]
				sp.preds[a.to] = append(sp.preds[a.to][:0], v)
				heap.Push(pq, distEntry{node: a.to, dist: alt})
			case alt == sp.dist[a.to] && !settled[a.to]:
				sp.sigma[a.to] += sp.sigma[v]
				sp.preds[a.to] = append(sp.preds[a.to], v)
			}
		}
	}
}

// betweenness implements Brandes' algorithm over the undirected view of
// the snapshot. Sources fan out across the worker pool with per-worker
// accumulators merged at the join barrier. Values are raw pair counts
// (halved for undirected double counting) unless normalization is
// enabled. A timeout yields the partial accumulation, flagged.
func (e *Engine) betweenness(ctx context.Context, snap *graph.Snapshot) (map[string]float64, *Warning) {
	started := time.Now()
	ig := e.indexGraph(snap)
	n := len(ig.ids)

	workers := e.pool.Workers()
	if workers > n {
		workers = n
	}
	accumulators := make([][]float64, workers)
	scratch := make([]*shortestPaths, workers)
	for w := 0; w < workers; w++ {
		accumulators[w] = make([]float64, n)
		scratch[w] = &shortestPaths{
			dist:  make([]float64, n),
			sigma: make([]float64, n),
			preds: make([][]int, n),
			order: make([]int, 0, n),
		}
	}

	poolErr := e.pool.ForEach(ctx, n, func(_ context.Context, worker, source int) error {
		sp := scratch[worker]
		e.singleSource(ig, source, sp)

		// dependency accumulation in reverse settle order
		delta := make([]float64, n)
		for i := len(sp.order) - 1; i >= 0; i-- {
			w := sp.order[i]
			for _, v := range sp.preds[w] {
				delta[v] += (sp.sigma[v] / sp.sigma[w]) * (1 + delta[w])
			}
			if w != source {
				accumulators[worker][w] += delta[w]
			}
		}
		return nil
	})

	var warning *Warning
	if poolErr != nil {
		warning = &Warning{Metric: metricBetweenness, Reason: "timeout"}
	}

	scale := 0.5 // undirected paths are counted from both endpoints
	if e.normalizeBetweenness && n > 2 {
		scale *= 2.0 / (float64(n-1) * float64(n-2))
	}

	result := make(map[string]float64, n)
	for i, id := range ig.ids {
		total := 0.0
		for w := 0; w < workers; w++ {
			total += accumulators[w][i]
		}
		result[id] = total * scale
	}

	e.collector.ObserveCompute(metricBetweenness, time.Since(started), 0, warning == nil)
	return result, warning
}

// closeness computes reachable/(sum of shortest-path distances) per node
// over the undirected view; isolated nodes score zero.
func (e *Engine) closeness(ctx context.Context, snap *graph.Snapshot) (map[string]float64, *Warning) {
	started := time.Now()
	ig := e.indexGraph(snap)
	n := len(ig.ids)

	workers := e.pool.Workers()
	if workers > n {
		workers = n
	}
	scratch := make([]*shortestPaths, workers)
	for w := 0; w < workers; w++ {
		scratch[w] = &shortestPaths{
			dist:  make([]float64, n),
			sigma: make([]float64, n),
			preds: make([][]int, n),
			order: make([]int, 0, n),
		}
	}

	scores := make([]float64, n)
	poolErr := e.pool.ForEach(ctx, n, func(_ context.Context, worker, source int) error {
		sp := scratch[worker]
		e.singleSource(ig, source, sp)

		totalDist := 0.0
		reachable := 0
		for i, d := range sp.dist {
			if i != source && !math.IsInf(d, 1) {
				totalDist += d
				reachable++
			}
		}
		if reachable > 0 && totalDist > 0 {
			scores[source] = float64(reachable) / totalDist
		}
		return nil
	})

	var warning *Warning
	if poolErr != nil {
		warning = &Warning{Metric: metricCloseness, Reason: "timeout"}
	}

	result := make(map[string]float64, n)
	for i, id := range ig.ids {
		result[id] = scores[i]
	}

	e.collector.ObserveCompute(metricCloseness, time.Since(started), 0, warning == nil)
	return result, warning
}

// distEntry and distHeap implement the Dijkstra priority queue.
type distEntry struct {
	node int
	dist float64
}

type distHeap []distEntry

func (h distHeap) Len() int           { return len(h) }
func (h distHeap) Less(i, j int) bool { return h[i].dist < h[j].dist }
func (h distHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *distHeap) Push(x any)        { *h = append(*h, x.(distEntry)) }
func (h *distHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	*h = old[:n-1]
	return entry
}
