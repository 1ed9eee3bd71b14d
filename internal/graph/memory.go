package graph

import (
	"context"
	"maps"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-process Store backed by maps. Reads take a
// shared lock and writes an exclusive one, so an in-flight traversal
// sees either the pre- or post-ingestion graph entirely.
//
// It backs the dev server mode and the test suites; the production
// deployment uses the Neo4j adapter.
type MemoryStore struct {
	mu    sync.RWMutex
	nodes map[string]Node
	edges map[string]Edge
	out   map[string][]string // node id -> edge ids where node is source
	in    map[string][]string // node id -> edge ids where node is target
}

// NewMemoryStore returns an empty in-memory graph.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes: make(map[string]Node),
		edges: make(map[string]Edge),
		out:   make(map[string][]string),
		in:    make(map[string][]string),
	}
}

func (s *MemoryStore) GetNode(ctx context.Context, id string) (Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node, ok := s.nodes[id]
	if !ok {
		return Node{}, NotFoundError(id)
	}
	return cloneNode(node), nil
}

func (s *MemoryStore) ListNodes(ctx context.Context, filter Filter) ([]Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.nodes))
	for id := range s.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var result []Node
	for _, id := range ids {
		node := s.nodes[id]
		if filter.Type != "" && node.Type != filter.Type {
			continue
		}
		if filter.NameContains != "" {
			needle := strings.ToLower(filter.NameContains)
			if !strings.Contains(strings.ToLower(node.Name), needle) &&
				!strings.Contains(strings.ToLower(node.ID), needle) {
				continue
			}
		}
		result = append(result, cloneNode(node))
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result, nil
}

func (s *MemoryStore) GetNeighbors(ctx context.Context, id string, dir Direction, edgeTypes []string) ([]Neighbor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var edgeIDs []string
	if dir == Outgoing || dir == Both {
		edgeIDs = append(edgeIDs, s.out[id]...)
	}
	if dir == Incoming || dir == Both {
		edgeIDs = append(edgeIDs, s.in[id]...)
	}
	sort.Strings(edgeIDs)

	var neighbors []Neighbor
	seen := make(map[string]bool, len(edgeIDs))
	for _, eid := range edgeIDs {
		if seen[eid] {
			continue // self-loop appears in both adjacency lists
		}
		seen[eid] = true

		edge := s.edges[eid]
		if len(edgeTypes) > 0 && !containsType(edgeTypes, edge.Type) {
			continue
		}
		farID := edge.Target
		if edge.Target == id && edge.Source != id {
			farID = edge.Source
		}
		far, ok := s.nodes[farID]
		if !ok {
			continue
		}
		neighbors = append(neighbors, Neighbor{Edge: cloneEdge(edge), Node: cloneNode(far)})
	}
	return neighbors, nil
}

func (s *MemoryStore) UpsertNode(ctx context.Context, node Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.nodes[node.ID]; ok {
		node.Properties = MergeProperties(existing.Properties, node.Properties)
		if node.Name == "" {
			node.Name = existing.Name
		}
		if node.Type == "" {
			node.Type = existing.Type
		}
	}
	s.nodes[node.ID] = cloneNode(node)
	return nil
}

func (s *MemoryStore) UpsertEdge(ctx context.Context, edge Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[edge.Source]; !ok {
		return DanglingReferenceError(edge.ID, edge.Source)
	}
	if _, ok := s.nodes[edge.Target]; !ok {
		return DanglingReferenceError(edge.ID, edge.Target)
	}

	if existing, ok := s.edges[edge.ID]; ok {
		edge.Properties = MergeProperties(existing.Properties, edge.Properties)
		s.edges[edge.ID] = cloneEdge(edge)
		return nil
	}

	s.edges[edge.ID] = cloneEdge(edge)
	s.out[edge.Source] = append(s.out[edge.Source], edge.ID)
	s.in[edge.Target] = append(s.in[edge.Target], edge.ID)
	return nil
}

func (s *MemoryStore) DeleteNode(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[id]; !ok {
		return NotFoundError(id)
	}
	delete(s.nodes, id)

	for eid, edge := range s.edges {
		if edge.Source == id || edge.Target == id {
			delete(s.edges, eid)
			s.out[edge.Source] = removeID(s.out[edge.Source], eid)
			s.in[edge.Target] = removeID(s.in[edge.Target], eid)
		}
	}
	delete(s.out, id)
	delete(s.in, id)
	return nil
}

func (s *MemoryStore) NodeCount(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes), nil
}

func (s *MemoryStore) EdgeCount(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.edges), nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = make(map[string]Node)
	s.edges = make(map[string]Edge)
	s.out = make(map[string][]string)
	s.in = make(map[string][]string)
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close(ctx context.Context) error { return nil }

func cloneNode(n Node) Node {
	n.Properties = maps.Clone(n.Properties)
	return n
}

func cloneEdge(e Edge) Edge {
	e.Properties = maps.Clone(e.Properties)
	return e
}

func containsType(types []string, t string) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

func removeID(ids []string, id string) []string {
	for i, candidate := range ids {
		if candidate == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
