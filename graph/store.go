package graph

import (
	"sort"
	"time"

	"go.uber.org/zap"

	apperrors "pulsegraph/pkg/errors"
)

// Direction selects which incident edges Neighbors considers.
type Direction int

const (
	DirectionOut Direction = iota
	DirectionIn
	DirectionBoth
)

// Store is the mutable graph. It is owned by a single writer for the
// duration of a build cycle; readers work from immutable snapshots, so
// the store itself is not safe for concurrent mutation.
type Store struct {
	logger *zap.Logger

	nodes map[string]*Node
	edges map[EdgeKey]*Edge

	// incident edge keys per node, for neighbor queries and cascade
	// removal
	out map[string]map[EdgeKey]struct{}
	in  map[string]map[EdgeKey]struct{}

	// version increments on every mutation; snapshots record the
	// version they were taken at.
	version int64
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithStoreLogger sets the logger; the default is a no-op logger.
func WithStoreLogger(logger *zap.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore creates an empty graph store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		logger: zap.NewNop(),
		nodes:  make(map[string]*Node),
		edges:  make(map[EdgeKey]*Edge),
		out:    make(map[string]map[EdgeKey]struct{}),
		in:     make(map[string]map[EdgeKey]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UpsertNode creates the node on first reference or merges label and
// attributes into the existing one. Repeated identical upserts converge
// to a single node. A node id may not change type once created.
func (s *Store) UpsertNode(id string, typ NodeType, label string, attrs map[string]any) (*Node, error) {
	if id == "" {
		return nil, apperrors.NewValidation("node id must not be empty")
	}

	if existing, ok := s.nodes[id]; ok {
		if existing.Type != typ {
			return nil, apperrors.NewValidationf("node %q already exists with type %s, got %s", id, existing.Type, typ)
		}
		if label != "" {
			existing.Label = label
		}
		if len(attrs) > 0 {
			if existing.Attributes == nil {
				existing.Attributes = make(map[string]any, len(attrs))
			}
			for k, v := range attrs {
				existing.Attributes[k] = v
			}
		}
		s.version++
		return existing, nil
	}

	node := &Node{ID: id, Type: typ, Label: label}
	if len(attrs) > 0 {
		node.Attributes = make(map[string]any, len(attrs))
		for k, v := range attrs {
			node.Attributes[k] = v
		}
	}
	s.nodes[id] = node
	s.out[id] = make(map[EdgeKey]struct{})
	s.in[id] = make(map[EdgeKey]struct{})
	s.version++
	return node, nil
}

// UpsertEdge creates or merges the directed edge (sourceID, targetID,
// typ). Both endpoints must already exist. Re-observation adds
// weightDelta to the weight, increments the occurrence count and widens
// the first/last seen bounds.
func (s *Store) UpsertEdge(sourceID, targetID string, typ EdgeType, weightDelta float64, observedAt time.Time) (*Edge, error) {
	if _, ok := s.nodes[sourceID]; !ok {
		return nil, apperrors.NewNotFound("edge source node " + sourceID + " does not exist")
	}
	if _, ok := s.nodes[targetID]; !ok {
		return nil, apperrors.NewNotFound("edge target node " + targetID + " does not exist")
	}
	if sourceID == targetID {
		return nil, apperrors.NewValidation("self-loop edges are not allowed")
	}

	key := EdgeKey{SourceID: sourceID, TargetID: targetID, Type: typ}
	edge, ok := s.edges[key]
	if !ok {
		edge = &Edge{SourceID: sourceID, TargetID: targetID, Type: typ}
		s.edges[key] = edge
		s.out[sourceID][key] = struct{}{}
		s.in[targetID][key] = struct{}{}
	}
	edge.observe(weightDelta, observedAt)
	s.version++
	return edge, nil
}

// GetNode looks up a node by id.
func (s *Store) GetNode(id string) (*Node, bool) {
	node, ok := s.nodes[id]
	return node, ok
}

// GetEdge looks up an edge by its identity triple.
func (s *Store) GetEdge(sourceID, targetID string, typ EdgeType) (*Edge, bool) {
	edge, ok := s.edges[EdgeKey{SourceID: sourceID, TargetID: targetID, Type: typ}]
	return edge, ok
}

// Neighbors returns the distinct nodes adjacent to id in the given
// direction, optionally restricted to edge types, sorted by node id.
func (s *Store) Neighbors(id string, dir Direction, types ...EdgeType) []*Node {
	if _, ok := s.nodes[id]; !ok {
		return nil
	}

	typeFilter := make(map[EdgeType]struct{}, len(types))
	for _, t := range types {
		typeFilter[t] = struct{}{}
	}
	matches := func(t EdgeType) bool {
		if len(typeFilter) == 0 {
			return true
		}
		_, ok := typeFilter[t]
		return ok
	}

	seen := make(map[string]struct{})
	if dir == DirectionOut || dir == DirectionBoth {
		for key := range s.out[id] {
			if matches(key.Type) {
				seen[key.TargetID] = struct{}{}
			}
		}
	}
	if dir == DirectionIn || dir == DirectionBoth {
		for key := range s.in[id] {
			if matches(key.Type) {
				seen[key.SourceID] = struct{}{}
			}
		}
	}

	ids := make([]string, 0, len(seen))
	for nid := range seen {
		ids = append(ids, nid)
	}
	sort.Strings(ids)

	neighbors := make([]*Node, 0, len(ids))
	for _, nid := range ids {
		neighbors = append(neighbors, s.nodes[nid])
	}
	return neighbors
}

// RemoveNode deletes the node and every incident edge.
func (s *Store) RemoveNode(id string) bool {
	if _, ok := s.nodes[id]; !ok {
		return false
	}

	for key := range s.out[id] {
		delete(s.edges, key)
		delete(s.in[key.TargetID], key)
	}
	for key := range s.in[id] {
		delete(s.edges, key)
		delete(s.out[key.SourceID], key)
	}
	delete(s.out, id)
	delete(s.in, id)
	delete(s.nodes, id)
	s.version++

	s.logger.Debug("removed node with incident edges", zap.String("node_id", id))
	return true
}

// Nodes returns all nodes sorted by id. The returned pointers are live;
// use Snapshot for an immutable view.
func (s *Store) Nodes() []*Node {
	nodes := make([]*Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes
}

// Edges returns all edges sorted by (source, target, type).
func (s *Store) Edges() []*Edge {
	edges := make([]*Edge, 0, len(s.edges))
	for _, e := range s.edges {
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].Key().less(edges[j].Key()) })
	return edges
}

// NodesByType returns all nodes of one type sorted by id.
func (s *Store) NodesByType(typ NodeType) []*Node {
	nodes := make([]*Node, 0)
	for _, n := range s.nodes {
		if n.Type == typ {
			nodes = append(nodes, n)
		}
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes
}

// TopNodesBy returns the n highest-scoring nodes for a metric, ties
// broken by node id ascending.
func (s *Store) TopNodesBy(metric Metric, n int) []*Node {
	nodes := s.Nodes()
	sort.SliceStable(nodes, func(i, j int) bool {
		vi, vj := nodes[i].metricValue(metric), nodes[j].metricValue(metric)
		if vi != vj {
			return vi > vj
		}
		return nodes[i].ID < nodes[j].ID
	})
	if n >= 0 && n < len(nodes) {
		nodes = nodes[:n]
	}
	return nodes
}

// CommunityMembers returns the nodes assigned to a community, sorted by
// id. Nodes without an assignment are never included.
func (s *Store) CommunityMembers(communityID int) []*Node {
	members := make([]*Node, 0)
	for _, n := range s.nodes {
		if n.CommunityID != nil && *n.CommunityID == communityID {
			members = append(members, n)
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
	return members
}

// ApplyMetrics writes the derived values of an engine run back onto the
// nodes. Unknown node ids are ignored; metrics that were not computed
// (nil fields) leave the previous value in place.
func (s *Store) ApplyMetrics(metrics map[string]NodeMetrics) {
	applied := 0
	for id, m := range metrics {
		node, ok := s.nodes[id]
		if !ok {
			continue
		}
		if m.Degree != nil {
			node.Degree = *m.Degree
		}
		if m.InDegree != nil {
			node.InDegree = *m.InDegree
		}
		if m.OutDegree != nil {
			node.OutDegree = *m.OutDegree
		}
		if m.PageRank != nil {
			node.PageRank = *m.PageRank
		}
		if m.Betweenness != nil {
			node.Betweenness = *m.Betweenness
		}
		if m.Closeness != nil {
			node.Closeness = *m.Closeness
		}
		if m.Eigenvector != nil {
			node.Eigenvector = *m.Eigenvector
		}
		if m.CommunityID != nil {
			id := *m.CommunityID
			node.CommunityID = &id
		}
		applied++
	}
	if applied > 0 {
		s.version++
	}
	s.logger.Debug("applied metrics to nodes", zap.Int("nodes", applied))
}

// Stats summarizes the graph.
type Stats struct {
	NodeCount   int
	EdgeCount   int
	NodesByType map[NodeType]int
	EdgesByType map[EdgeType]int
	// Density is 2E / (N * (N-1)), zero for graphs with fewer than two
	// nodes.
	Density float64
}

// Stats computes node/edge counts by type and graph density.
func (s *Store) Stats() Stats {
	stats := Stats{
		NodeCount:   len(s.nodes),
		EdgeCount:   len(s.edges),
		NodesByType: make(map[NodeType]int),
		EdgesByType: make(map[EdgeType]int),
	}
	for _, n := range s.nodes {
		stats.NodesByType[n.Type]++
	}
	for _, e := range s.edges {
		stats.EdgesByType[e.Type]++
	}
	if stats.NodeCount > 1 {
		maxEdges := float64(stats.NodeCount) * float64(stats.NodeCount-1)
		stats.Density = 2 * float64(stats.EdgeCount) / maxEdges
	}
	return stats
}

// Version returns the store's mutation counter.
func (s *Store) Version() int64 {
	return s.version
}
