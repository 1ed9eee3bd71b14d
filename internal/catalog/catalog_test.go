package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsgraph/opsgraph/internal/graph"
	"github.com/opsgraph/opsgraph/internal/traverse"
)

func newTestCatalog(t *testing.T) (*Catalog, graph.Store) {
	t.Helper()
	ctx := context.Background()
	store := graph.NewMemoryStore()

	nodes := []graph.Node{
		{ID: "service:order-service", Type: graph.TypeService, Name: "order-service",
			Properties: map[string]any{"team": "orders-team"}},
		{ID: "service:api-gateway", Type: graph.TypeService, Name: "api-gateway",
			Properties: map[string]any{"oncall": "gw-pager"}},
		{ID: "database:payments-db", Type: graph.TypeDatabase, Name: "payments-db"},
		{ID: "team:orders-team", Type: graph.TypeTeam, Name: "orders-team",
			Properties: map[string]any{"lead": "sam"}},
	}
	for _, node := range nodes {
		require.NoError(t, store.UpsertNode(ctx, node))
	}
	edges := []graph.Edge{
		{ID: "edge:gw-calls-orders", Type: graph.EdgeCalls,
			Source: "service:api-gateway", Target: "service:order-service"},
		{ID: "edge:orders-uses-payments", Type: graph.EdgeUses,
			Source: "service:order-service", Target: "database:payments-db"},
		{ID: "edge:orders-team-owns-orders", Type: graph.EdgeOwns,
			Source: "team:orders-team", Target: "service:order-service"},
	}
	for _, edge := range edges {
		require.NoError(t, store.UpsertEdge(ctx, edge))
	}
	return New(store, traverse.New(store)), store
}

func TestCatalogAdvertisesAllFunctions(t *testing.T) {
	cat, _ := newTestCatalog(t)

	names := make([]string, 0)
	for _, fn := range cat.Functions() {
		names = append(names, fn.Name)
		assert.NotEmpty(t, fn.Description, "%s needs a description for the oracle", fn.Name)
		assert.Equal(t, "object", fn.Schema.Type)
	}
	assert.Equal(t, []string{
		"get_node", "list_nodes", "search_by_name",
		"upstream", "downstream", "blast_radius", "shortest_path",
		"get_owner", "get_team_assets", "get_oncall",
	}, names)
}

func TestExecuteValidation(t *testing.T) {
	cat, _ := newTestCatalog(t)
	ctx := context.Background()

	cases := []struct {
		name string
		fn   string
		args map[string]any
	}{
		{"unknown function", "drop_tables", map[string]any{}},
		{"missing required", "get_node", map[string]any{}},
		{"unexpected argument", "get_node", map[string]any{"id": "x", "verbose": true}},
		{"wrong type", "get_node", map[string]any{"id": 42.0}},
		{"fractional depth", "upstream", map[string]any{"id": "service:order-service", "max_depth": 2.5}},
		{"depth zero", "upstream", map[string]any{"id": "service:order-service", "max_depth": 0.0}},
		{"depth beyond ceiling", "upstream", map[string]any{"id": "service:order-service", "max_depth": 26.0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := cat.Execute(ctx, tc.fn, tc.args)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestExecuteGetNode(t *testing.T) {
	cat, _ := newTestCatalog(t)
	ctx := context.Background()

	result, err := cat.Execute(ctx, "get_node", map[string]any{"id": "database:payments-db"})
	require.NoError(t, err)
	node, ok := result.(graph.Node)
	require.True(t, ok)
	assert.Equal(t, "payments-db", node.Name)

	_, err = cat.Execute(ctx, "get_node", map[string]any{"id": "service:ghost"})
	assert.ErrorIs(t, err, graph.ErrNotFound)
}

func TestExecuteTraversals(t *testing.T) {
	cat, _ := newTestCatalog(t)
	ctx := context.Background()

	result, err := cat.Execute(ctx, "upstream", map[string]any{"id": "service:api-gateway"})
	require.NoError(t, err)
	up := result.(*traverse.Result)
	require.Len(t, up.Nodes, 2)
	assert.Equal(t, "service:order-service", up.Nodes[0].Node.ID)
	assert.Equal(t, "database:payments-db", up.Nodes[1].Node.ID)

	result, err = cat.Execute(ctx, "blast_radius", map[string]any{"id": "database:payments-db"})
	require.NoError(t, err)
	blast := result.(*traverse.Result)
	ids := make([]string, 0, len(blast.Nodes))
	for _, reached := range blast.Nodes {
		ids = append(ids, reached.Node.ID)
	}
	assert.Equal(t, []string{"service:order-service", "service:api-gateway"}, ids)

	result, err = cat.Execute(ctx, "downstream", map[string]any{"id": "service:order-service"})
	require.NoError(t, err)
	down := result.(*traverse.Result)
	ids = ids[:0]
	for _, reached := range down.Nodes {
		ids = append(ids, reached.Node.ID)
	}
	assert.Contains(t, ids, "team:orders-team", "downstream follows ownership edges too")
}

func TestExecuteShortestPath(t *testing.T) {
	cat, _ := newTestCatalog(t)
	ctx := context.Background()

	result, err := cat.Execute(ctx, "shortest_path", map[string]any{
		"from": "service:api-gateway", "to": "database:payments-db",
	})
	require.NoError(t, err)
	path := result.(*traverse.Path)
	assert.Equal(t, 2, path.Len())

	_, err = cat.Execute(ctx, "shortest_path", map[string]any{
		"from": "database:payments-db", "to": "service:api-gateway",
	})
	assert.ErrorIs(t, err, graph.ErrNoPath)
}

func TestExecuteOwnership(t *testing.T) {
	cat, store := newTestCatalog(t)
	ctx := context.Background()

	result, err := cat.Execute(ctx, "get_owner", map[string]any{"id": "service:order-service"})
	require.NoError(t, err)
	owner := result.(Owner)
	require.True(t, owner.Found)
	assert.Equal(t, "team:orders-team", owner.Team.ID)

	// api-gateway has no owns edge and no team property.
	result, err = cat.Execute(ctx, "get_owner", map[string]any{"id": "service:api-gateway"})
	require.NoError(t, err)
	assert.False(t, result.(Owner).Found)

	// The team property fallback resolves when no edge exists.
	require.NoError(t, store.UpsertNode(ctx, graph.Node{
		ID: "service:labeled", Type: graph.TypeService, Name: "labeled",
		Properties: map[string]any{"team": "orders-team"},
	}))
	result, err = cat.Execute(ctx, "get_owner", map[string]any{"id": "service:labeled"})
	require.NoError(t, err)
	owner = result.(Owner)
	require.True(t, owner.Found)
	assert.Equal(t, "team:orders-team", owner.Team.ID)
}

func TestExecuteTeamAssets(t *testing.T) {
	cat, _ := newTestCatalog(t)
	ctx := context.Background()

	for _, team := range []string{"orders-team", "team:orders-team"} {
		result, err := cat.Execute(ctx, "get_team_assets", map[string]any{"team": team})
		require.NoError(t, err)
		assets := result.([]graph.Node)
		require.Len(t, assets, 1)
		assert.Equal(t, "service:order-service", assets[0].ID)
	}

	_, err := cat.Execute(ctx, "get_team_assets", map[string]any{"team": "ghost-team"})
	assert.ErrorIs(t, err, graph.ErrNotFound)
}

func TestExecuteOncall(t *testing.T) {
	cat, _ := newTestCatalog(t)
	ctx := context.Background()

	result, err := cat.Execute(ctx, "get_oncall", map[string]any{"id": "service:api-gateway"})
	require.NoError(t, err)
	oncall := result.(Oncall)
	require.True(t, oncall.Found)
	assert.Equal(t, "gw-pager", oncall.Contact)
	assert.Equal(t, "node", oncall.Source)

	// Falls through to the owning team's lead.
	result, err = cat.Execute(ctx, "get_oncall", map[string]any{"id": "service:order-service"})
	require.NoError(t, err)
	oncall = result.(Oncall)
	require.True(t, oncall.Found)
	assert.Equal(t, "sam", oncall.Contact)
	assert.Equal(t, "team lead", oncall.Source)

	result, err = cat.Execute(ctx, "get_oncall", map[string]any{"id": "database:payments-db"})
	require.NoError(t, err)
	assert.False(t, result.(Oncall).Found)
}

func TestFormatResultEmptySetsAreExplicit(t *testing.T) {
	assert.Equal(t, "No matching nodes found.", FormatResult([]graph.Node{}))
	assert.Equal(t, "No nodes reachable from service:x.",
		FormatResult(&traverse.Result{Origin: "service:x"}))
	assert.Equal(t, "No owning team found.", FormatResult(Owner{}))
	assert.Equal(t, "No on-call contact found.", FormatResult(Oncall{}))
}

func TestFormatResultTraversal(t *testing.T) {
	result := &traverse.Result{
		Origin: "database:payments-db",
		Nodes: []traverse.Reached{
			{
				Node:  graph.Node{ID: "service:order-service", Type: graph.TypeService, Name: "order-service"},
				Depth: 1,
				Path: []graph.Edge{{
					ID: "e1", Type: graph.EdgeDependsOn,
					Source: "service:order-service", Target: "database:payments-db",
				}},
			},
		},
		Truncated: true,
	}
	text := FormatResult(result)
	assert.Contains(t, text, "1 nodes reachable from database:payments-db")
	assert.Contains(t, text, "depth 1")
	// Hops render with their true direction even when walked against it.
	assert.Contains(t, text, "service:order-service -[depends_on]-> database:payments-db")
	assert.Contains(t, text, "truncated")
}
