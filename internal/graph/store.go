package graph

import "context"

// Store is the narrow read/write contract over the persisted graph.
// Implementations must provide snapshot-consistent reads: a traversal
// in flight sees either the pre- or post-ingestion graph, never a
// half-applied update.
//
// Both the Neo4j and in-memory backends implement this interface; the
// traversal engine and function catalog consume it and never go around
// it.
type Store interface {
	// GetNode returns the node with the given id, or an error wrapping
	// ErrNotFound.
	GetNode(ctx context.Context, id string) (Node, error)

	// ListNodes returns nodes matching the filter, ordered by id.
	ListNodes(ctx context.Context, filter Filter) ([]Node, error)

	// GetNeighbors returns the one-hop neighborhood of a node. An empty
	// edgeTypes slice matches every edge type. The caller must have
	// verified the node exists; unknown ids yield an empty result.
	GetNeighbors(ctx context.Context, id string, dir Direction, edgeTypes []string) ([]Neighbor, error)

	// UpsertNode creates the node or merges its properties into an
	// existing node with the same id.
	UpsertNode(ctx context.Context, node Node) error

	// UpsertEdge creates or updates an edge. Fails with
	// ErrDanglingReference if either endpoint is missing; the edge is
	// not created in that case.
	UpsertEdge(ctx context.Context, edge Edge) error

	// DeleteNode removes a node and every edge touching it.
	DeleteNode(ctx context.Context, id string) error

	// NodeCount and EdgeCount report graph size, used by health checks.
	NodeCount(ctx context.Context) (int, error)
	EdgeCount(ctx context.Context) (int, error)

	// Clear removes all nodes and edges. Used by full-reload ingestion.
	Clear(ctx context.Context) error

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases underlying connections.
	Close(ctx context.Context) error
}
