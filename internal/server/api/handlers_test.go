package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsgraph/opsgraph/internal/catalog"
	"github.com/opsgraph/opsgraph/internal/graph"
	"github.com/opsgraph/opsgraph/internal/oracle"
	"github.com/opsgraph/opsgraph/internal/session"
	"github.com/opsgraph/opsgraph/internal/traverse"
)

// echoOracle answers every turn with fixed text and no tool calls.
type echoOracle struct{ text string }

func (o *echoOracle) Complete(ctx context.Context, system string, messages []oracle.Message, functions []*catalog.Function) (*oracle.Turn, error) {
	return &oracle.Turn{Text: o.text}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	ctx := context.Background()
	store := graph.NewMemoryStore()

	for _, node := range []graph.Node{
		{ID: "service:orders", Type: graph.TypeService, Name: "orders"},
		{ID: "service:gateway", Type: graph.TypeService, Name: "gateway"},
		{ID: "database:orders-db", Type: graph.TypeDatabase, Name: "orders-db"},
	} {
		require.NoError(t, store.UpsertNode(ctx, node))
	}
	for _, edge := range []graph.Edge{
		{ID: "edge:gateway-calls-orders", Type: graph.EdgeCalls,
			Source: "service:gateway", Target: "service:orders"},
		{ID: "edge:orders-uses-db", Type: graph.EdgeUses,
			Source: "service:orders", Target: "database:orders-db"},
	} {
		require.NoError(t, store.UpsertEdge(ctx, edge))
	}

	engine := traverse.New(store)
	cat := catalog.New(store, engine)
	sessions := session.NewStore(&echoOracle{text: "hello from the graph"}, cat, session.DefaultConfig(), 0)
	t.Cleanup(sessions.Close)

	return New(store, engine, sessions, nil, nil)
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	decoded := map[string]any{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func TestHealthCheck(t *testing.T) {
	server := newTestServer(t)
	rec, body := doJSON(t, server.Router(), http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(3), body["node_count"])
	assert.Equal(t, float64(2), body["edge_count"])
}

func TestChatRoundTrip(t *testing.T) {
	router := newTestServer(t).Router()

	rec, body := doJSON(t, router, http.MethodPost, "/chat", `{"message":"what depends on orders-db?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello from the graph", body["reply"])
	sessionID, _ := body["session_id"].(string)
	assert.NotEmpty(t, sessionID, "server assigns an id when the client sends none")

	rec, body = doJSON(t, router, http.MethodPost, "/chat",
		`{"session_id":"`+sessionID+`","message":"and upstream?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, sessionID, body["session_id"])
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	rec, _ := doJSON(t, newTestServer(t).Router(), http.MethodPost, "/chat", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatReset(t *testing.T) {
	router := newTestServer(t).Router()

	rec, body := doJSON(t, router, http.MethodPost, "/chat/reset", `{"session_id":"abc"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["reset"])

	rec, _ = doJSON(t, router, http.MethodPost, "/chat/reset", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetNode(t *testing.T) {
	router := newTestServer(t).Router()

	rec, body := doJSON(t, router, http.MethodGet, "/api/nodes/service:orders", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "orders", body["name"])

	rec, _ = doJSON(t, router, http.MethodGet, "/api/nodes/service:ghost", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListNodes(t *testing.T) {
	router := newTestServer(t).Router()

	rec, body := doJSON(t, router, http.MethodGet, "/api/nodes?type=service", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), body["count"])

	rec, _ = doJSON(t, router, http.MethodGet, "/api/nodes?limit=banana", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetNeighbors(t *testing.T) {
	router := newTestServer(t).Router()

	rec, body := doJSON(t, router, http.MethodGet, "/api/nodes/service:orders/neighbors?direction=out", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["count"])

	rec, body = doJSON(t, router, http.MethodGet, "/api/nodes/service:orders/neighbors", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), body["count"])

	rec, _ = doJSON(t, router, http.MethodGet, "/api/nodes/service:orders/neighbors?direction=sideways", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTraversalRoutes(t *testing.T) {
	router := newTestServer(t).Router()

	rec, body := doJSON(t, router, http.MethodGet, "/api/nodes/service:gateway/upstream", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["nodes"].([]any), 2)

	rec, body = doJSON(t, router, http.MethodGet, "/api/nodes/database:orders-db/blast_radius?depth=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["nodes"].([]any), 1)
	assert.Equal(t, true, body["truncated"])

	rec, _ = doJSON(t, router, http.MethodGet, "/api/nodes/service:gateway/upstream?depth=99", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doJSON(t, router, http.MethodGet, "/api/nodes/service:ghost/downstream", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetPath(t *testing.T) {
	router := newTestServer(t).Router()

	rec, body := doJSON(t, router, http.MethodGet, "/api/path?from=service:gateway&to=database:orders-db", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["found"])

	// No path is a valid answer, not an error.
	rec, body = doJSON(t, router, http.MethodGet, "/api/path?from=database:orders-db&to=service:gateway", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["found"])

	rec, _ = doJSON(t, router, http.MethodGet, "/api/path?from=service:gateway", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestWithoutSources(t *testing.T) {
	rec, _ := doJSON(t, newTestServer(t).Router(), http.MethodPost, "/api/ingest", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsExposed(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	newTestServer(t).Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
