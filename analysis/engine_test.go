package analysis

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsegraph/graph"
)

// buildSnapshot assembles a snapshot from directed author edges, all with
// weight 1.
func buildSnapshot(t *testing.T, edges [][2]string) *graph.Snapshot {
	t.Helper()
	weighted := make([]weightedEdge, len(edges))
	for i, e := range edges {
		weighted[i] = weightedEdge{source: e[0], target: e[1], weight: 1}
	}
	return buildWeightedSnapshot(t, weighted)
}

type weightedEdge struct {
	source, target string
	weight         float64
}

func buildWeightedSnapshot(t *testing.T, edges []weightedEdge) *graph.Snapshot {
	t.Helper()
	store := graph.NewStore()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, e := range edges {
		for _, id := range []string{e.source, e.target} {
			_, err := store.UpsertNode(id, graph.NodeTypeAuthor, id, nil)
			require.NoError(t, err)
		}
		_, err := store.UpsertEdge(e.source, e.target, graph.EdgeTypeMentions, e.weight, at)
		require.NoError(t, err)
	}
	return store.Snapshot()
}

func TestComputeEmptyGraph(t *testing.T) {
	engine := NewEngine()

	result, err := engine.Compute(context.Background(), graph.NewStore().Snapshot(), SelectAll())
	require.NoError(t, err)
	assert.Empty(t, result.Nodes)
	assert.Zero(t, result.CommunityCount)
	assert.True(t, result.Converged())

	result, err = engine.Compute(context.Background(), nil, SelectAll())
	require.NoError(t, err)
	assert.Empty(t, result.Nodes)
}

func TestPageRankSumsToOne(t *testing.T) {
	snap := buildSnapshot(t, [][2]string{
		{"a", "b"}, {"b", "c"}, {"c", "a"}, {"a", "c"}, {"d", "a"},
	})
	engine := NewEngine()

	result, err := engine.Compute(context.Background(), snap, Selection{PageRank: true})
	require.NoError(t, err)
	require.True(t, result.Converged(), "warnings: %v", result.Warnings)

	sum := 0.0
	for _, m := range result.Nodes {
		require.NotNil(t, m.PageRank)
		sum += *m.PageRank
	}
	assert.InDelta(t, 1.0, sum, 1e-6)

	// d has no inbound edges, so it keeps only the teleport share
	assert.Greater(t, *result.Nodes["a"].PageRank, *result.Nodes["d"].PageRank)
}

func TestPageRankSingleNode(t *testing.T) {
	store := graph.NewStore()
	_, err := store.UpsertNode("a", graph.NodeTypeAuthor, "a", nil)
	require.NoError(t, err)

	result, err := NewEngine().Compute(context.Background(), store.Snapshot(), Selection{PageRank: true})
	require.NoError(t, err)
	require.NotNil(t, result.Nodes["a"].PageRank)
	assert.InDelta(t, 1.0, *result.Nodes["a"].PageRank, 1e-9)
}

func TestBetweennessStar(t *testing.T) {
	// hub with four leaves; every leaf pair routes through the hub
	snap := buildSnapshot(t, [][2]string{
		{"hub", "l1"}, {"hub", "l2"}, {"hub", "l3"}, {"hub", "l4"},
	})

	result, err := NewEngine().Compute(context.Background(), snap, Selection{Betweenness: true})
	require.NoError(t, err)
	require.True(t, result.Converged())

	n := float64(snap.NodeCount())
	want := (n - 1) * (n - 2) / 2
	assert.InDelta(t, want, *result.Nodes["hub"].Betweenness, 1e-9)
	for _, leaf := range []string{"l1", "l2", "l3", "l4"} {
		assert.InDelta(t, 0.0, *result.Nodes[leaf].Betweenness, 1e-9)
	}
}

func TestBetweennessNormalized(t *testing.T) {
	snap := buildSnapshot(t, [][2]string{
		{"hub", "l1"}, {"hub", "l2"}, {"hub", "l3"}, {"hub", "l4"},
	})
	engine := NewEngine(WithNormalizedBetweenness(true))

	result, err := engine.Compute(context.Background(), snap, Selection{Betweenness: true})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, *result.Nodes["hub"].Betweenness, 1e-9)
}

func TestClosenessStar(t *testing.T) {
	snap := buildSnapshot(t, [][2]string{
		{"hub", "l1"}, {"hub", "l2"}, {"hub", "l3"}, {"hub", "l4"},
	})

	result, err := NewEngine().Compute(context.Background(), snap, Selection{Closeness: true})
	require.NoError(t, err)

	// hub reaches all four leaves at distance 1
	assert.InDelta(t, 1.0, *result.Nodes["hub"].Closeness, 1e-9)
	// a leaf reaches the hub at 1 and the other three leaves at 2
	assert.InDelta(t, 4.0/7.0, *result.Nodes["l1"].Closeness, 1e-9)
}

func TestWeightedShortestPaths(t *testing.T) {
	// triangle where the direct a-c edge is weak (weight 0.25, cost 4):
	// the weighted route a-b-c costs 2, the unweighted one hops a-c
	snap := buildWeightedSnapshot(t, []weightedEdge{
		{source: "a", target: "b", weight: 1},
		{source: "b", target: "c", weight: 1},
		{source: "a", target: "c", weight: 0.25},
	})
	sel := Selection{Betweenness: true, Closeness: true}

	unweighted, err := NewEngine().Compute(context.Background(), snap, sel)
	require.NoError(t, err)
	// every pair is adjacent, nothing routes through b
	assert.InDelta(t, 0.0, *unweighted.Nodes["b"].Betweenness, 1e-9)
	assert.InDelta(t, 1.0, *unweighted.Nodes["a"].Closeness, 1e-9)

	weighted, err := NewEngine(WithWeightedPaths(true)).Compute(context.Background(), snap, sel)
	require.NoError(t, err)

	// the a-c pair now routes through b
	assert.InDelta(t, 1.0, *weighted.Nodes["b"].Betweenness, 1e-9)
	assert.InDelta(t, 0.0, *weighted.Nodes["a"].Betweenness, 1e-9)
	assert.InDelta(t, 0.0, *weighted.Nodes["c"].Betweenness, 1e-9)

	// b: distance 1 to each end; a: 1 to b, 2 to c via b
	assert.InDelta(t, 1.0, *weighted.Nodes["b"].Closeness, 1e-9)
	assert.InDelta(t, 2.0/3.0, *weighted.Nodes["a"].Closeness, 1e-9)
	assert.InDelta(t, 2.0/3.0, *weighted.Nodes["c"].Closeness, 1e-9)
}

func TestClosenessIsolatedNode(t *testing.T) {
	store := graph.NewStore()
	for _, id := range []string{"a", "b", "lone"} {
		_, err := store.UpsertNode(id, graph.NodeTypeAuthor, id, nil)
		require.NoError(t, err)
	}
	_, err := store.UpsertEdge("a", "b", graph.EdgeTypeMentions, 1, time.Now())
	require.NoError(t, err)

	result, err := NewEngine().Compute(context.Background(), store.Snapshot(), Selection{Closeness: true})
	require.NoError(t, err)
	assert.Zero(t, *result.Nodes["lone"].Closeness)
	assert.InDelta(t, 1.0, *result.Nodes["a"].Closeness, 1e-9)
}

func TestDegreeModes(t *testing.T) {
	store := graph.NewStore()
	at := time.Now()
	for _, id := range []string{"a", "b", "c"} {
		_, err := store.UpsertNode(id, graph.NodeTypeAuthor, id, nil)
		require.NoError(t, err)
	}
	_, err := store.UpsertEdge("a", "b", graph.EdgeTypeMentions, 2.5, at)
	require.NoError(t, err)
	_, err = store.UpsertEdge("c", "a", graph.EdgeTypeRetweets, 1, at)
	require.NoError(t, err)
	snap := store.Snapshot()

	counted, err := NewEngine().Compute(context.Background(), snap, Selection{Degree: true})
	require.NoError(t, err)
	assert.Equal(t, 1.0, *counted.Nodes["a"].OutDegree)
	assert.Equal(t, 1.0, *counted.Nodes["a"].InDegree)
	assert.Equal(t, 2.0, *counted.Nodes["a"].Degree)

	weighted, err := NewEngine(WithDegreeMode(DegreeWeighted)).Compute(context.Background(), snap, Selection{Degree: true})
	require.NoError(t, err)
	assert.InDelta(t, 2.5, *weighted.Nodes["a"].OutDegree, 1e-9)
	assert.InDelta(t, 3.5, *weighted.Nodes["a"].Degree, 1e-9)
}

func TestEigenvectorPath(t *testing.T) {
	// path a-b-c: the middle node scores highest, the ends tie
	snap := buildSnapshot(t, [][2]string{{"a", "b"}, {"b", "c"}})

	result, err := NewEngine().Compute(context.Background(), snap, Selection{Eigenvector: true})
	require.NoError(t, err)

	eb := *result.Nodes["b"].Eigenvector
	ea := *result.Nodes["a"].Eigenvector
	ec := *result.Nodes["c"].Eigenvector
	assert.Greater(t, eb, ea)
	assert.InDelta(t, ea, ec, 1e-6)

	norm := math.Sqrt(ea*ea + eb*eb + ec*ec)
	assert.InDelta(t, 1.0, norm, 1e-6)
}

func TestCommunitiesTwoComponents(t *testing.T) {
	store := graph.NewStore()
	at := time.Now()
	triangles := [][2]string{
		{"a", "b"}, {"b", "c"}, {"c", "a"},
		{"x", "y"}, {"y", "z"}, {"z", "x"},
	}
	for _, e := range triangles {
		for _, id := range e {
			_, err := store.UpsertNode(id, graph.NodeTypeHashtag, id, nil)
			require.NoError(t, err)
		}
		_, err := store.UpsertEdge(e[0], e[1], graph.EdgeTypeCoOccurrence, 1, at)
		require.NoError(t, err)
	}
	_, err := store.UpsertNode("lone", graph.NodeTypeHashtag, "lone", nil)
	require.NoError(t, err)
	snap := store.Snapshot()

	engine := NewEngine()
	result, err := engine.Compute(context.Background(), snap, Selection{Communities: true})
	require.NoError(t, err)
	require.True(t, result.Converged())

	assert.Equal(t, 3, result.CommunityCount)
	assert.Equal(t, *result.Nodes["a"].CommunityID, *result.Nodes["b"].CommunityID)
	assert.Equal(t, *result.Nodes["a"].CommunityID, *result.Nodes["c"].CommunityID)
	assert.Equal(t, *result.Nodes["x"].CommunityID, *result.Nodes["y"].CommunityID)
	assert.NotEqual(t, *result.Nodes["a"].CommunityID, *result.Nodes["x"].CommunityID)
	assert.NotEqual(t, *result.Nodes["a"].CommunityID, *result.Nodes["lone"].CommunityID)
	assert.NotEqual(t, *result.Nodes["x"].CommunityID, *result.Nodes["lone"].CommunityID)

	// community ids are dense, starting at zero
	seen := map[int]bool{}
	for _, m := range result.Nodes {
		require.NotNil(t, m.CommunityID)
		seen[*m.CommunityID] = true
	}
	for i := 0; i < result.CommunityCount; i++ {
		assert.True(t, seen[i], "missing community id %d", i)
	}
}

func TestCommunitiesDeterministic(t *testing.T) {
	snap := buildSnapshot(t, [][2]string{
		{"a", "b"}, {"b", "c"}, {"c", "d"}, {"d", "a"}, {"a", "c"},
		{"e", "f"}, {"f", "g"}, {"g", "e"},
	})
	engine := NewEngine(WithSeed(7))

	first, err := engine.Compute(context.Background(), snap, Selection{Communities: true})
	require.NoError(t, err)
	second, err := engine.Compute(context.Background(), snap, Selection{Communities: true})
	require.NoError(t, err)

	assert.Equal(t, first.CommunityCount, second.CommunityCount)
	for id, m := range first.Nodes {
		assert.Equal(t, *m.CommunityID, *second.Nodes[id].CommunityID, "node %s", id)
	}
}

func TestSelectionIndependence(t *testing.T) {
	snap := buildSnapshot(t, [][2]string{{"a", "b"}, {"b", "c"}})

	result, err := NewEngine().Compute(context.Background(), snap, Selection{PageRank: true})
	require.NoError(t, err)

	m := result.Nodes["a"]
	assert.NotNil(t, m.PageRank)
	assert.Nil(t, m.Degree)
	assert.Nil(t, m.Betweenness)
	assert.Nil(t, m.Closeness)
	assert.Nil(t, m.Eigenvector)
	assert.Nil(t, m.CommunityID)
	assert.Zero(t, result.CommunityCount)
}

func TestComputeExpiredContext(t *testing.T) {
	snap := buildSnapshot(t, [][2]string{
		{"a", "b"}, {"b", "c"}, {"c", "a"},
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := NewEngine().Compute(ctx, snap, Selection{PageRank: true, Communities: true})
	require.NoError(t, err, "timeouts surface as warnings, not errors")
	assert.False(t, result.Converged())

	metrics := make(map[string]string)
	for _, w := range result.Warnings {
		metrics[w.Metric] = w.Reason
	}
	assert.Equal(t, "timeout", metrics["pagerank"])
	assert.Equal(t, "timeout", metrics["communities"])
}
