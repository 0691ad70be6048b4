package graph

import "time"

// EdgeType classifies graph edges.
type EdgeType string

const (
	EdgeTypeMentions     EdgeType = "mentions"
	EdgeTypeRepliesTo    EdgeType = "replies_to"
	EdgeTypeRetweets     EdgeType = "retweets"
	EdgeTypeFollows      EdgeType = "follows"
	EdgeTypeCoOccurrence EdgeType = "co_occurrence"
)

// EdgeKey uniquely identifies an edge. Re-observing the same key merges
// into the existing edge instead of duplicating it.
type EdgeKey struct {
	SourceID string
	TargetID string
	Type     EdgeType
}

// Edge is a directed, weighted connection between two nodes.
type Edge struct {
	SourceID string
	TargetID string
	Type     EdgeType

	// Weight accumulates the weight deltas of every observation.
	Weight float64
	// OccurrenceCount is the number of times this edge was observed.
	OccurrenceCount int

	// FirstSeen/LastSeen bound the observation timestamps. They are
	// merged with min/max so the result is independent of ingest order.
	FirstSeen time.Time
	LastSeen  time.Time
}

// Key returns the identity triple of the edge.
func (e *Edge) Key() EdgeKey {
	return EdgeKey{SourceID: e.SourceID, TargetID: e.TargetID, Type: e.Type}
}

// observe merges one more observation into the edge.
func (e *Edge) observe(weightDelta float64, observedAt time.Time) {
	e.Weight += weightDelta
	e.OccurrenceCount++
	if !observedAt.IsZero() {
		if e.FirstSeen.IsZero() || observedAt.Before(e.FirstSeen) {
			e.FirstSeen = observedAt
		}
		if observedAt.After(e.LastSeen) {
			e.LastSeen = observedAt
		}
	}
}

// less orders edge keys by (source, target, type) for deterministic
// listings.
func (k EdgeKey) less(other EdgeKey) bool {
	if k.SourceID != other.SourceID {
		return k.SourceID < other.SourceID
	}
	if k.TargetID != other.TargetID {
		return k.TargetID < other.TargetID
	}
	return k.Type < other.Type
}
