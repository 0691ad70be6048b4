package graph

import "sort"

// Neighbor is one adjacency entry of a snapshot: the node on the other
// end of an edge plus the edge's accumulated weight.
type Neighbor struct {
	ID     string
	Weight float64
	Type   EdgeType
}

// Snapshot is an immutable view of the store with precomputed adjacency
// lists. Snapshots are safe for any number of concurrent readers while
// the store mutates toward its next version: all node and edge data is
// deep-copied at capture time.
type Snapshot struct {
	// Version of the store this snapshot was taken at.
	Version int64

	Nodes   map[string]*Node
	NodeIDs []string // sorted
	Edges   []Edge   // sorted by (source, target, type)

	// Out and In are the directed adjacency lists, sorted by neighbor
	// id. Undirected merges both directions, combining the weights of
	// antiparallel edges.
	Out        map[string][]Neighbor
	In         map[string][]Neighbor
	Undirected map[string][]Neighbor
}

// Snapshot captures an immutable view of the current graph.
func (s *Store) Snapshot() *Snapshot {
	snap := &Snapshot{
		Version:    s.version,
		Nodes:      make(map[string]*Node, len(s.nodes)),
		NodeIDs:    make([]string, 0, len(s.nodes)),
		Edges:      make([]Edge, 0, len(s.edges)),
		Out:        make(map[string][]Neighbor, len(s.nodes)),
		In:         make(map[string][]Neighbor, len(s.nodes)),
		Undirected: make(map[string][]Neighbor, len(s.nodes)),
	}

	for id, node := range s.nodes {
		snap.Nodes[id] = node.clone()
		snap.NodeIDs = append(snap.NodeIDs, id)
	}
	sort.Strings(snap.NodeIDs)

	for _, edge := range s.edges {
		snap.Edges = append(snap.Edges, *edge)
	}
	sort.Slice(snap.Edges, func(i, j int) bool {
		return snap.Edges[i].Key().less(snap.Edges[j].Key())
	})

	// undirected weights merge antiparallel edges into one entry per
	// neighbor
	undirected := make(map[string]map[string]float64, len(s.nodes))
	for _, id := range snap.NodeIDs {
		undirected[id] = make(map[string]float64)
	}

	for _, edge := range snap.Edges {
		snap.Out[edge.SourceID] = append(snap.Out[edge.SourceID], Neighbor{
			ID:     edge.TargetID,
			Weight: edge.Weight,
			Type:   edge.Type,
		})
		snap.In[edge.TargetID] = append(snap.In[edge.TargetID], Neighbor{
			ID:     edge.SourceID,
			Weight: edge.Weight,
			Type:   edge.Type,
		})
		undirected[edge.SourceID][edge.TargetID] += edge.Weight
		undirected[edge.TargetID][edge.SourceID] += edge.Weight
	}

	for id, weights := range undirected {
		if len(weights) == 0 {
			continue
		}
		neighbors := make([]Neighbor, 0, len(weights))
		for nid, w := range weights {
			neighbors = append(neighbors, Neighbor{ID: nid, Weight: w})
		}
		sort.Slice(neighbors, func(i, j int) bool { return neighbors[i].ID < neighbors[j].ID })
		snap.Undirected[id] = neighbors
	}

	return snap
}

// NodeCount returns the number of nodes in the snapshot.
func (s *Snapshot) NodeCount() int {
	return len(s.NodeIDs)
}

// EdgeCount returns the number of edges in the snapshot.
func (s *Snapshot) EdgeCount() int {
	return len(s.Edges)
}

// OutDegreeCount returns the number of outgoing edges of a node.
func (s *Snapshot) OutDegreeCount(id string) int {
	return len(s.Out[id])
}
