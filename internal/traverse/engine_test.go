package traverse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsgraph/opsgraph/internal/graph"
)

func TestUpstreamCycleReportedOnce(t *testing.T) {
	ctx := context.Background()
	store := graph.NewMemoryStore()
	addNodes(t, store, "service:a", "service:b")
	addEdge(t, store, graph.EdgeDependsOn, "service:a", "service:b")
	addEdge(t, store, graph.EdgeDependsOn, "service:b", "service:a")

	result, err := New(store).Upstream(ctx, "service:a", DefaultMaxDepth)
	require.NoError(t, err)

	require.Len(t, result.Nodes, 2)
	assert.Equal(t, "service:b", result.Nodes[0].Node.ID)
	assert.Equal(t, 1, result.Nodes[0].Depth)
	// The origin comes back through the cycle at its shortest nonzero
	// depth, never at depth zero.
	assert.Equal(t, "service:a", result.Nodes[1].Node.ID)
	assert.Equal(t, 2, result.Nodes[1].Depth)
	assert.False(t, result.Truncated)
}

func TestUpstreamDiamondMinimumDepth(t *testing.T) {
	ctx := context.Background()
	store := graph.NewMemoryStore()
	addNodes(t, store, "service:top", "service:left", "service:right", "database:shared")
	addEdge(t, store, graph.EdgeDependsOn, "service:top", "service:left")
	addEdge(t, store, graph.EdgeDependsOn, "service:top", "service:right")
	addEdge(t, store, graph.EdgeUses, "service:left", "database:shared")
	addEdge(t, store, graph.EdgeUses, "service:right", "database:shared")
	// A direct shortcut makes the database reachable at depth 1 too.
	addEdge(t, store, graph.EdgeReadsFrom, "service:top", "database:shared")

	result, err := New(store).Upstream(ctx, "service:top", DefaultMaxDepth)
	require.NoError(t, err)

	depths := map[string]int{}
	for _, reached := range result.Nodes {
		_, dup := depths[reached.Node.ID]
		require.False(t, dup, "node %s reported twice", reached.Node.ID)
		depths[reached.Node.ID] = reached.Depth
	}
	assert.Equal(t, 1, depths["database:shared"], "minimum depth wins over deeper routes")
	assert.Len(t, result.Nodes, 3)
}

func TestUpstreamDepthBoundAndTruncation(t *testing.T) {
	ctx := context.Background()
	store := graph.NewMemoryStore()
	addNodes(t, store, "service:a", "service:b", "service:c")
	addEdge(t, store, graph.EdgeCalls, "service:a", "service:b")
	addEdge(t, store, graph.EdgeCalls, "service:b", "service:c")

	engine := New(store)

	bounded, err := engine.Upstream(ctx, "service:a", 1)
	require.NoError(t, err)
	require.Len(t, bounded.Nodes, 1)
	assert.Equal(t, "service:b", bounded.Nodes[0].Node.ID)
	assert.True(t, bounded.Truncated, "service:c lies just past the bound")

	full, err := engine.Upstream(ctx, "service:a", 2)
	require.NoError(t, err)
	assert.Len(t, full.Nodes, 2)
	assert.False(t, full.Truncated)
}

func TestBlastRadiusScenario(t *testing.T) {
	ctx := context.Background()
	store := graph.NewMemoryStore()
	addNodes(t, store,
		"database:payments-db", "service:order-service", "service:api-gateway",
		"cache:redis-main", "team:payments-team")
	addEdge(t, store, graph.EdgeDependsOn, "service:order-service", "database:payments-db")
	addEdge(t, store, graph.EdgeCalls, "service:api-gateway", "service:order-service")
	addEdge(t, store, graph.EdgeUses, "service:order-service", "cache:redis-main")
	addEdge(t, store, graph.EdgeOwns, "team:payments-team", "database:payments-db")

	result, err := New(store).BlastRadius(ctx, "database:payments-db", DefaultMaxDepth)
	require.NoError(t, err)

	got := reachedIDs(result)
	// Dependents transitively, dependency edges only. The owning team
	// points at the database too but ownership is not failure impact,
	// and redis-main is a dependency of a dependent, not a dependent.
	assert.Equal(t, []string{"service:order-service", "service:api-gateway"}, got)
}

func TestBlastRadiusLeafIsEmpty(t *testing.T) {
	ctx := context.Background()
	store := graph.NewMemoryStore()
	addNodes(t, store, "service:lonely")

	result, err := New(store).BlastRadius(ctx, "service:lonely", DefaultMaxDepth)
	require.NoError(t, err)
	assert.Empty(t, result.Nodes)
	assert.False(t, result.Truncated)
}

func TestDownstreamIncludesNonDependencyEdges(t *testing.T) {
	ctx := context.Background()
	store := graph.NewMemoryStore()
	addNodes(t, store, "database:payments-db", "team:payments-team")
	addEdge(t, store, graph.EdgeOwns, "team:payments-team", "database:payments-db")

	result, err := New(store).Downstream(ctx, "database:payments-db", DefaultMaxDepth)
	require.NoError(t, err)
	assert.Equal(t, []string{"team:payments-team"}, reachedIDs(result))
}

func TestExpandPathTieBreaksOnEdgeID(t *testing.T) {
	ctx := context.Background()
	store := graph.NewMemoryStore()
	addNodes(t, store, "service:a", "service:b")
	// Two parallel edges to the same neighbor; the lexically smaller
	// edge id must explain the discovery.
	require.NoError(t, store.UpsertEdge(ctx, graph.Edge{
		ID: "edge:2-uses", Type: graph.EdgeUses, Source: "service:a", Target: "service:b",
	}))
	require.NoError(t, store.UpsertEdge(ctx, graph.Edge{
		ID: "edge:1-calls", Type: graph.EdgeCalls, Source: "service:a", Target: "service:b",
	}))

	result, err := New(store).Upstream(ctx, "service:a", DefaultMaxDepth)
	require.NoError(t, err)
	require.Len(t, result.Nodes, 1)
	require.Len(t, result.Nodes[0].Path, 1)
	assert.Equal(t, "edge:1-calls", result.Nodes[0].Path[0].ID)
}

func TestExpandErrors(t *testing.T) {
	ctx := context.Background()
	store := graph.NewMemoryStore()
	addNodes(t, store, "service:a")
	engine := New(store)

	_, err := engine.Upstream(ctx, "service:ghost", DefaultMaxDepth)
	assert.ErrorIs(t, err, graph.ErrNotFound)

	_, err = engine.Upstream(ctx, "service:a", 0)
	assert.ErrorIs(t, err, graph.ErrInvalidArgument)

	_, err = engine.Upstream(ctx, "service:a", MaxDepthCeiling+1)
	assert.ErrorIs(t, err, graph.ErrInvalidArgument)
}

func TestShortestPath(t *testing.T) {
	ctx := context.Background()
	store := graph.NewMemoryStore()
	addNodes(t, store, "service:gw", "service:orders", "database:db", "service:island")
	addEdge(t, store, graph.EdgeCalls, "service:gw", "service:orders")
	addEdge(t, store, graph.EdgeUses, "service:orders", "database:db")

	engine := New(store)

	path, err := engine.ShortestPath(ctx, "service:gw", "database:db", DefaultMaxDepth)
	require.NoError(t, err)
	assert.Equal(t, 2, path.Len())
	require.Len(t, path.Nodes, 3)
	assert.Equal(t, "service:gw", path.Nodes[0].ID)
	assert.Equal(t, "database:db", path.Nodes[2].ID)

	_, err = engine.ShortestPath(ctx, "service:gw", "service:island", DefaultMaxDepth)
	assert.ErrorIs(t, err, graph.ErrNoPath)

	// Direction matters: edges run gw -> orders -> db only.
	_, err = engine.ShortestPath(ctx, "database:db", "service:gw", DefaultMaxDepth)
	assert.ErrorIs(t, err, graph.ErrNoPath)
}

func TestShortestPathSelfFindsCycle(t *testing.T) {
	ctx := context.Background()
	store := graph.NewMemoryStore()
	addNodes(t, store, "service:a", "service:b")
	addEdge(t, store, graph.EdgeCalls, "service:a", "service:b")
	addEdge(t, store, graph.EdgeCalls, "service:b", "service:a")

	path, err := New(store).ShortestPath(ctx, "service:a", "service:a", DefaultMaxDepth)
	require.NoError(t, err)
	assert.Equal(t, 2, path.Len())
	assert.Equal(t, "service:a", path.Nodes[0].ID)
	assert.Equal(t, "service:a", path.Nodes[len(path.Nodes)-1].ID)
}

func TestNeighborsUnknownOrigin(t *testing.T) {
	store := graph.NewMemoryStore()
	_, err := New(store).Neighbors(context.Background(), "service:ghost", graph.Both, nil)
	assert.ErrorIs(t, err, graph.ErrNotFound)
}

func TestClampDepth(t *testing.T) {
	assert.Equal(t, DefaultMaxDepth, ClampDepth(0))
	assert.Equal(t, 5, ClampDepth(5))
}

func addNodes(t *testing.T, store graph.Store, ids ...string) {
	t.Helper()
	ctx := context.Background()
	for _, id := range ids {
		typ, name, _ := splitID(id)
		require.NoError(t, store.UpsertNode(ctx, graph.Node{ID: id, Type: typ, Name: name}))
	}
}

func addEdge(t *testing.T, store graph.Store, edgeType, source, target string) {
	t.Helper()
	require.NoError(t, store.UpsertEdge(context.Background(), graph.Edge{
		ID:     "edge:" + source + "-" + edgeType + "-" + target,
		Type:   edgeType,
		Source: source,
		Target: target,
	}))
}

func splitID(id string) (typ, name string, ok bool) {
	for i := range id {
		if id[i] == ':' {
			return id[:i], id[i+1:], true
		}
	}
	return "", id, false
}

func reachedIDs(result *Result) []string {
	ids := make([]string, 0, len(result.Nodes))
	for _, reached := range result.Nodes {
		ids = append(ids, reached.Node.ID)
	}
	return ids
}
