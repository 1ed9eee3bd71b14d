// Package traverse implements bounded, cycle-safe breadth-first search
// over the infrastructure graph.
//
// Direction conventions, fixed here and relied on by the function
// catalog and its tests: connectors emit edges pointing from the
// dependent to the dependency (order-service -depends_on-> payments-db).
// Upstream therefore follows outgoing edges and answers "what does this
// node sit on", while Downstream follows incoming edges and answers
// "what transitively depends on this node". BlastRadius is Downstream
// restricted to dependency edge types.
//
// The origin is never reported at depth zero. If a cycle leads back to
// it, it is reported once at its shortest nonzero depth, like any other
// node.
package traverse

import (
	"context"
	"fmt"
	"sort"

	"github.com/opsgraph/opsgraph/internal/graph"
)

const (
	// DefaultMaxDepth bounds traversals when the caller does not say.
	DefaultMaxDepth = 10
	// MaxDepthCeiling is the hard upper bound on any traversal.
	MaxDepthCeiling = 25
)

// DependencyEdgeTypes is the policy list of edge types that express a
// runtime dependency. BlastRadius follows exactly these; ownership
// edges (owns) deliberately do not propagate failure impact.
var DependencyEdgeTypes = []string{
	graph.EdgeDependsOn,
	graph.EdgeConnectsTo,
	graph.EdgeUses,
	graph.EdgeCalls,
	graph.EdgeReadsFrom,
	graph.EdgeWritesTo,
}

// Reached is one node discovered by an expansion, annotated with its
// minimum hop distance and one shortest explanatory path from the
// origin. Ties between equal-depth paths break on lexical edge id, so
// results are reproducible for a fixed graph.
type Reached struct {
	Node  graph.Node   `json:"node"`
	Depth int          `json:"depth"`
	Path  []graph.Edge `json:"path"`
}

// Result is the outcome of Upstream, Downstream or BlastRadius.
// Nodes appear in discovery (breadth-first) order, each exactly once.
// Truncated reports that at least one node was reachable only beyond
// the depth bound.
type Result struct {
	Origin    string    `json:"origin"`
	Nodes     []Reached `json:"nodes"`
	Truncated bool      `json:"truncated"`
}

// Path is the outcome of ShortestPath: the node sequence including both
// endpoints and the edges connecting them, Len == len(Edges).
type Path struct {
	Nodes []graph.Node `json:"nodes"`
	Edges []graph.Edge `json:"edges"`
}

// Len returns the hop count of the path.
func (p *Path) Len() int { return len(p.Edges) }

// Engine runs bounded graph searches against a Store snapshot. It holds
// no mutable state and is safe for concurrent use by many sessions.
type Engine struct {
	store graph.Store
}

// New returns an Engine reading from the given store.
func New(store graph.Store) *Engine {
	return &Engine{store: store}
}

// Neighbors returns the one-hop neighborhood of a node. Unknown ids
// fail with ErrNotFound.
func (e *Engine) Neighbors(ctx context.Context, id string, dir graph.Direction, edgeTypes []string) ([]graph.Neighbor, error) {
	if _, err := e.store.GetNode(ctx, id); err != nil {
		return nil, err
	}
	neighbors, err := e.store.GetNeighbors(ctx, id, dir, edgeTypes)
	if err != nil {
		return nil, err
	}
	sortNeighbors(neighbors)
	return neighbors, nil
}

// Upstream returns everything the node transitively depends on,
// following outgoing edges of any type.
func (e *Engine) Upstream(ctx context.Context, id string, maxDepth int) (*Result, error) {
	return e.expand(ctx, id, graph.Outgoing, nil, maxDepth)
}

// Downstream returns everything that transitively depends on the node,
// following incoming edges of any type.
func (e *Engine) Downstream(ctx context.Context, id string, maxDepth int) (*Result, error) {
	return e.expand(ctx, id, graph.Incoming, nil, maxDepth)
}

// BlastRadius returns the set of nodes impacted if this node fails:
// Downstream restricted to DependencyEdgeTypes.
func (e *Engine) BlastRadius(ctx context.Context, id string, maxDepth int) (*Result, error) {
	return e.expand(ctx, id, graph.Incoming, DependencyEdgeTypes, maxDepth)
}

// expand is the shared breadth-first search. Each reachable node is
// enqueued and reported at most once, at its first (minimum) discovered
// depth, regardless of cycles, self-loops or multi-edges.
func (e *Engine) expand(ctx context.Context, origin string, dir graph.Direction, edgeTypes []string, maxDepth int) (*Result, error) {
	if err := checkDepth(maxDepth); err != nil {
		return nil, err
	}
	if _, err := e.store.GetNode(ctx, origin); err != nil {
		return nil, err
	}

	result := &Result{Origin: origin}

	type frontier struct {
		id    string
		depth int
		path  []graph.Edge
	}
	queue := []frontier{{id: origin}}

	// The origin is intentionally absent from visited so a cycle can
	// report it at its shortest nonzero depth.
	visited := make(map[string]bool)

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		current := queue[0]
		queue = queue[1:]

		neighbors, err := e.store.GetNeighbors(ctx, current.id, dir, edgeTypes)
		if err != nil {
			return nil, err
		}
		sortNeighbors(neighbors)

		for _, nb := range neighbors {
			if visited[nb.Node.ID] {
				continue
			}
			if current.depth == maxDepth {
				// Something reachable lies just past the bound.
				result.Truncated = true
				continue
			}
			visited[nb.Node.ID] = true

			path := append(current.path[:len(current.path):len(current.path)], nb.Edge)
			result.Nodes = append(result.Nodes, Reached{
				Node:  nb.Node,
				Depth: current.depth + 1,
				Path:  path,
			})
			queue = append(queue, frontier{id: nb.Node.ID, depth: current.depth + 1, path: path})
		}
	}

	return result, nil
}

// ShortestPath returns the shortest directed edge sequence from one
// node to another, following outgoing edges, or ErrNoPath if none
// exists within the depth bound. Querying a node against itself finds
// the shortest cycle back to it, if any.
func (e *Engine) ShortestPath(ctx context.Context, fromID, toID string, maxDepth int) (*Path, error) {
	if err := checkDepth(maxDepth); err != nil {
		return nil, err
	}
	from, err := e.store.GetNode(ctx, fromID)
	if err != nil {
		return nil, err
	}
	if _, err := e.store.GetNode(ctx, toID); err != nil {
		return nil, err
	}

	type frontier struct {
		id    string
		depth int
		path  []graph.Edge
		nodes []graph.Node
	}
	queue := []frontier{{id: fromID, nodes: []graph.Node{from}}}
	visited := make(map[string]bool)

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		current := queue[0]
		queue = queue[1:]

		if current.depth == maxDepth {
			continue
		}

		neighbors, err := e.store.GetNeighbors(ctx, current.id, graph.Outgoing, nil)
		if err != nil {
			return nil, err
		}
		sortNeighbors(neighbors)

		for _, nb := range neighbors {
			if visited[nb.Node.ID] {
				continue
			}
			path := append(current.path[:len(current.path):len(current.path)], nb.Edge)
			nodes := append(current.nodes[:len(current.nodes):len(current.nodes)], nb.Node)
			if nb.Node.ID == toID {
				return &Path{Nodes: nodes, Edges: path}, nil
			}
			visited[nb.Node.ID] = true
			queue = append(queue, frontier{id: nb.Node.ID, depth: current.depth + 1, path: path, nodes: nodes})
		}
	}

	return nil, fmt.Errorf("no path from %q to %q within depth %d: %w", fromID, toID, maxDepth, graph.ErrNoPath)
}

// ClampDepth resolves a caller-supplied optional depth: zero means the
// default; anything above the ceiling or below zero is the caller's
// error to handle via checkDepth.
func ClampDepth(depth int) int {
	if depth == 0 {
		return DefaultMaxDepth
	}
	return depth
}

func checkDepth(maxDepth int) error {
	if maxDepth <= 0 {
		return fmt.Errorf("max depth must be positive, got %d: %w", maxDepth, graph.ErrInvalidArgument)
	}
	if maxDepth > MaxDepthCeiling {
		return fmt.Errorf("max depth %d exceeds ceiling %d: %w", maxDepth, MaxDepthCeiling, graph.ErrInvalidArgument)
	}
	return nil
}

func sortNeighbors(neighbors []graph.Neighbor) {
	sort.Slice(neighbors, func(i, j int) bool {
		return neighbors[i].Edge.ID < neighbors[j].Edge.ID
	})
}
