// Package api exposes the graph and the chat dispatcher over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opsgraph/opsgraph/internal/connectors"
	"github.com/opsgraph/opsgraph/internal/graph"
	"github.com/opsgraph/opsgraph/internal/session"
	"github.com/opsgraph/opsgraph/internal/traverse"
)

// Server holds the HTTP server dependencies.
type Server struct {
	store    graph.Store
	engine   *traverse.Engine
	sessions *session.Store
	ingestor *connectors.Ingestor
	sources  []connectors.Source
}

// New creates a new API server. sources are re-ingested on demand via
// POST /api/ingest; pass nil to disable that route's work.
func New(store graph.Store, engine *traverse.Engine, sessions *session.Store, ingestor *connectors.Ingestor, sources []connectors.Source) *Server {
	return &Server{
		store:    store,
		engine:   engine,
		sessions: sessions,
		ingestor: ingestor,
		sources:  sources,
	}
}

// Router assembles the chi router with the standard middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/chat", s.Chat)
	r.Post("/chat/reset", s.ResetChat)

	r.Route("/api", func(r chi.Router) {
		r.Post("/ingest", s.Ingest)
		r.Get("/nodes", s.ListNodes)
		r.Get("/nodes/{id}", s.GetNode)
		r.Get("/nodes/{id}/neighbors", s.GetNeighbors)
		r.Get("/nodes/{id}/upstream", s.traversalHandler(s.engine.Upstream))
		r.Get("/nodes/{id}/downstream", s.traversalHandler(s.engine.Downstream))
		r.Get("/nodes/{id}/blast_radius", s.traversalHandler(s.engine.BlastRadius))
		r.Get("/path", s.GetPath)
	})

	return r
}

// ChatRequest is the request body for a chat turn.
type ChatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

// ChatResponse carries the assistant reply for one turn.
type ChatResponse struct {
	SessionID string `json:"session_id"`
	Reply     string `json:"reply"`
}

// Chat handles POST /chat. A missing session_id starts a fresh session
// and the generated id comes back in the response.
func (s *Server) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	reply, err := s.sessions.HandleTurn(r.Context(), req.SessionID, req.Message)
	if err != nil && reply == "" {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	// A fallback reply with a non-nil error is still a completed turn.
	writeJSON(w, http.StatusOK, ChatResponse{SessionID: req.SessionID, Reply: reply})
}

// ResetChat handles POST /chat/reset.
func (s *Server) ResetChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}
	s.sessions.Reset(req.SessionID)
	writeJSON(w, http.StatusOK, map[string]any{"session_id": req.SessionID, "reset": true})
}

// HealthCheck handles GET /health. Degraded means the process is up
// but the graph store is unreachable.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "degraded",
			"error":  err.Error(),
		})
		return
	}
	nodes, err := s.store.NodeCount(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "degraded",
			"error":  err.Error(),
		})
		return
	}
	edges, _ := s.store.EdgeCount(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"node_count": nodes,
		"edge_count": edges,
	})
}

// ListNodes handles GET /api/nodes with optional type, name_contains
// and limit filters.
func (s *Server) ListNodes(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := graph.Filter{
		Type:         query.Get("type"),
		NameContains: query.Get("name_contains"),
	}
	if l := query.Get("limit"); l != "" {
		limit, err := strconv.Atoi(l)
		if err != nil || limit < 0 {
			http.Error(w, "invalid limit parameter", http.StatusBadRequest)
			return
		}
		filter.Limit = limit
	}

	nodes, err := s.store.ListNodes(r.Context(), filter)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"nodes": nodes, "count": len(nodes)})
}

// GetNode handles GET /api/nodes/{id}.
func (s *Server) GetNode(w http.ResponseWriter, r *http.Request) {
	node, err := s.store.GetNode(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

// GetNeighbors handles GET /api/nodes/{id}/neighbors with optional
// direction (out, in, both) and repeatable type filters.
func (s *Server) GetNeighbors(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	query := r.URL.Query()

	dir := graph.Both
	switch query.Get("direction") {
	case "", "both":
	case "out":
		dir = graph.Outgoing
	case "in":
		dir = graph.Incoming
	default:
		http.Error(w, "invalid direction parameter (use out, in or both)", http.StatusBadRequest)
		return
	}

	neighbors, err := s.engine.Neighbors(r.Context(), id, dir, query["type"])
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"neighbors": neighbors, "count": len(neighbors)})
}

// traversalHandler adapts one of the engine's bounded expansions to an
// HTTP handler. depth=0 means the engine default.
func (s *Server) traversalHandler(expand func(context.Context, string, int) (*traverse.Result, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		depth, ok := depthParam(w, r)
		if !ok {
			return
		}
		result, err := expand(r.Context(), chi.URLParam(r, "id"), traverse.ClampDepth(depth))
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// GetPath handles GET /api/path?from=X&to=Y.
func (s *Server) GetPath(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	from, to := query.Get("from"), query.Get("to")
	if from == "" || to == "" {
		http.Error(w, "from and to query parameters are required", http.StatusBadRequest)
		return
	}
	depth, ok := depthParam(w, r)
	if !ok {
		return
	}

	path, err := s.engine.ShortestPath(r.Context(), from, to, traverse.ClampDepth(depth))
	if err != nil {
		if errors.Is(err, graph.ErrNoPath) {
			writeJSON(w, http.StatusOK, map[string]any{"from": from, "to": to, "found": false})
			return
		}
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"from": from, "to": to, "found": true, "path": path})
}

// Ingest handles POST /api/ingest, re-running the configured sources.
func (s *Server) Ingest(w http.ResponseWriter, r *http.Request) {
	if s.ingestor == nil || len(s.sources) == 0 {
		http.Error(w, "no ingest sources configured", http.StatusServiceUnavailable)
		return
	}
	report, err := s.ingestor.Run(r.Context(), s.sources)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func depthParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	d := r.URL.Query().Get("depth")
	if d == "" {
		return 0, true
	}
	depth, err := strconv.Atoi(d)
	if err != nil || depth < 1 || depth > traverse.MaxDepthCeiling {
		http.Error(w, "invalid depth parameter", http.StatusBadRequest)
		return 0, false
	}
	return depth, true
}

// writeStoreError maps graph error sentinels onto HTTP status codes.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, graph.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, graph.ErrInvalidArgument):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, graph.ErrStoreUnavailable):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
