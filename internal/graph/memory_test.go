package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreGetNodeNotFound(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.GetNode(context.Background(), "service:ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreUpsertMergesProperties(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.UpsertNode(ctx, Node{
		ID:   "service:orders",
		Type: TypeService,
		Name: "orders",
		Properties: map[string]any{
			"team": "orders-team",
			"port": 8080,
		},
	}))
	require.NoError(t, store.UpsertNode(ctx, Node{
		ID:   "service:orders",
		Type: TypeService,
		Name: "orders",
		Properties: map[string]any{
			"port":     9090,
			"replicas": 3,
		},
	}))

	node, err := store.GetNode(ctx, "service:orders")
	require.NoError(t, err)
	assert.Equal(t, "orders-team", node.Properties["team"], "absent keys survive")
	assert.Equal(t, 9090, node.Properties["port"], "incoming keys overwrite")
	assert.Equal(t, 3, node.Properties["replicas"], "new keys are added")

	count, err := store.NodeCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "upsert of an existing id must not duplicate")
}

func TestMemoryStoreUpsertEdgeDangling(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.UpsertNode(ctx, Node{ID: "service:a", Type: TypeService, Name: "a"}))

	err := store.UpsertEdge(ctx, Edge{
		ID:     "edge:a-calls-b",
		Type:   EdgeCalls,
		Source: "service:a",
		Target: "service:b",
	})
	assert.ErrorIs(t, err, ErrDanglingReference)

	count, err := store.EdgeCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count, "a rejected edge must not be written")
}

func TestMemoryStoreNeighborsDirections(t *testing.T) {
	ctx := context.Background()
	store := seedTriangle(t)

	out, err := store.GetNeighbors(ctx, "service:a", Outgoing, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "database:db", out[0].Node.ID)

	in, err := store.GetNeighbors(ctx, "service:a", Incoming, nil)
	require.NoError(t, err)
	require.Len(t, in, 1)
	assert.Equal(t, "service:b", in[0].Node.ID)

	both, err := store.GetNeighbors(ctx, "service:a", Both, nil)
	require.NoError(t, err)
	assert.Len(t, both, 2)
}

func TestMemoryStoreNeighborsTypeFilter(t *testing.T) {
	ctx := context.Background()
	store := seedTriangle(t)

	neighbors, err := store.GetNeighbors(ctx, "service:a", Both, []string{EdgeUses})
	require.NoError(t, err)
	require.Len(t, neighbors, 1)
	assert.Equal(t, EdgeUses, neighbors[0].Edge.Type)
}

func TestMemoryStoreSelfLoopReportedOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.UpsertNode(ctx, Node{ID: "service:loop", Type: TypeService, Name: "loop"}))
	require.NoError(t, store.UpsertEdge(ctx, Edge{
		ID:     "edge:loop-calls-loop",
		Type:   EdgeCalls,
		Source: "service:loop",
		Target: "service:loop",
	}))

	neighbors, err := store.GetNeighbors(ctx, "service:loop", Both, nil)
	require.NoError(t, err)
	assert.Len(t, neighbors, 1, "a self-loop sits in both adjacency lists but is one edge")
}

func TestMemoryStoreListNodesFilter(t *testing.T) {
	ctx := context.Background()
	store := seedTriangle(t)

	services, err := store.ListNodes(ctx, Filter{Type: TypeService})
	require.NoError(t, err)
	assert.Len(t, services, 2)

	byName, err := store.ListNodes(ctx, Filter{NameContains: "DB"})
	require.NoError(t, err)
	require.Len(t, byName, 1, "name matching is case-insensitive")
	assert.Equal(t, "database:db", byName[0].ID)

	limited, err := store.ListNodes(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestMemoryStoreDeleteNodeCascades(t *testing.T) {
	ctx := context.Background()
	store := seedTriangle(t)

	require.NoError(t, store.DeleteNode(ctx, "service:a"))

	_, err := store.GetNode(ctx, "service:a")
	assert.ErrorIs(t, err, ErrNotFound)

	edges, err := store.EdgeCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, edges, "edges touching the node go with it")

	neighbors, err := store.GetNeighbors(ctx, "service:b", Outgoing, nil)
	require.NoError(t, err)
	assert.Empty(t, neighbors)
}

func TestMemoryStoreReadsAreCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.UpsertNode(ctx, Node{
		ID: "service:a", Type: TypeService, Name: "a",
		Properties: map[string]any{"team": "x"},
	}))

	node, err := store.GetNode(ctx, "service:a")
	require.NoError(t, err)
	node.Properties["team"] = "mutated"

	again, err := store.GetNode(ctx, "service:a")
	require.NoError(t, err)
	assert.Equal(t, "x", again.Properties["team"])
}

// seedTriangle builds b -> a -> db with a depends_on and a uses edge.
func seedTriangle(t *testing.T) *MemoryStore {
	t.Helper()
	ctx := context.Background()
	store := NewMemoryStore()

	for _, node := range []Node{
		{ID: "service:a", Type: TypeService, Name: "a"},
		{ID: "service:b", Type: TypeService, Name: "b"},
		{ID: "database:db", Type: TypeDatabase, Name: "db"},
	} {
		require.NoError(t, store.UpsertNode(ctx, node))
	}
	require.NoError(t, store.UpsertEdge(ctx, Edge{
		ID: "edge:b-depends_on-a", Type: EdgeDependsOn, Source: "service:b", Target: "service:a",
	}))
	require.NoError(t, store.UpsertEdge(ctx, Edge{
		ID: "edge:a-uses-db", Type: EdgeUses, Source: "service:a", Target: "database:db",
	}))
	return store
}
