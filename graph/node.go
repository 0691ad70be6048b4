// Package graph implements the in-memory directed multigraph at the heart
// of the analytics core: typed nodes, typed weighted edges, incremental
// idempotent upserts, immutable snapshots for metric computation, and the
// builders that turn post batches into author and hashtag networks.
package graph

import "fmt"

// NodeType classifies graph nodes.
type NodeType string

const (
	NodeTypeAuthor  NodeType = "author"
	NodeTypeHashtag NodeType = "hashtag"
	NodeTypeTopic   NodeType = "topic"
	NodeTypeKeyword NodeType = "keyword"
	NodeTypePost    NodeType = "post"
)

// Metric names a derived node metric, used for top-N queries.
type Metric string

const (
	MetricDegree      Metric = "degree"
	MetricInDegree    Metric = "in_degree"
	MetricOutDegree   Metric = "out_degree"
	MetricPageRank    Metric = "pagerank"
	MetricBetweenness Metric = "betweenness_centrality"
	MetricCloseness   Metric = "closeness_centrality"
	MetricEigenvector Metric = "eigenvector_centrality"
)

// Node is a vertex in the graph. Metric fields are derived: they are
// written only through Store.ApplyMetrics after an engine run, never
// hand-set.
type Node struct {
	ID         string
	Type       NodeType
	Label      string
	Attributes map[string]any

	Degree      float64
	InDegree    float64
	OutDegree   float64
	PageRank    float64
	Betweenness float64
	Closeness   float64
	Eigenvector float64

	// CommunityID is nil until community detection has run.
	CommunityID *int
}

// NodeMetrics carries the derived values for one node out of a metrics
// engine run. Field presence mirrors the metric selection of the run:
// a nil pointer means the metric was not computed.
type NodeMetrics struct {
	Degree      *float64
	InDegree    *float64
	OutDegree   *float64
	PageRank    *float64
	Betweenness *float64
	Closeness   *float64
	Eigenvector *float64
	CommunityID *int
}

// NodeID builds the stable node key for an external identifier, unique
// per node type, e.g. "author_42" or "hashtag_nowruz".
func NodeID(typ NodeType, externalID string) string {
	return fmt.Sprintf("%s_%s", typ, externalID)
}

// metricValue extracts the named metric from a node for sorting.
func (n *Node) metricValue(m Metric) float64 {
	switch m {
	case MetricDegree:
		return n.Degree
	case MetricInDegree:
		return n.InDegree
	case MetricOutDegree:
		return n.OutDegree
	case MetricPageRank:
		return n.PageRank
	case MetricBetweenness:
		return n.Betweenness
	case MetricCloseness:
		return n.Closeness
	case MetricEigenvector:
		return n.Eigenvector
	default:
		return 0
	}
}

// clone returns a deep copy of the node; snapshots hand copies to readers
// so a concurrent build never mutates what they see.
func (n *Node) clone() *Node {
	dup := *n
	if n.Attributes != nil {
		dup.Attributes = make(map[string]any, len(n.Attributes))
		for k, v := range n.Attributes {
			dup.Attributes[k] = v
		}
	}
	if n.CommunityID != nil {
		id := *n.CommunityID
		dup.CommunityID = &id
	}
	return &dup
}
