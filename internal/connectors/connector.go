// Package connectors parses infrastructure configuration files into
// graph nodes and edges. Connectors are registered explicitly in
// DefaultRegistry, assembled in one place at startup; there is no
// side-effect registration.
package connectors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/opsgraph/opsgraph/internal/graph"
	"github.com/opsgraph/opsgraph/internal/metrics"
)

// Result is what a connector extracts from one source file.
type Result struct {
	Nodes []graph.Node
	Edges []graph.Edge
}

// Connector turns one configuration format into graph entities.
type Connector interface {
	// Name identifies the connector in config and logs.
	Name() string
	// Parse reads the file and extracts nodes and edges. It touches
	// the filesystem only, never the store.
	Parse(path string) (*Result, error)
}

// Registry maps connector names to implementations.
type Registry struct {
	byName map[string]Connector
	order  []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Connector)}
}

// Register adds a connector. Registering a duplicate name is a
// programming error.
func (r *Registry) Register(c Connector) {
	if _, exists := r.byName[c.Name()]; exists {
		panic(fmt.Sprintf("connector %q registered twice", c.Name()))
	}
	r.byName[c.Name()] = c
	r.order = append(r.order, c.Name())
}

// Get returns a connector by name.
func (r *Registry) Get(name string) (Connector, bool) {
	c, ok := r.byName[name]
	return c, ok
}

// Names lists registered connectors in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// DefaultRegistry assembles the built-in connectors.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewDockerCompose())
	r.Register(NewTeams())
	r.Register(NewKubernetes())
	return r
}

// Source pairs a connector with the file it should parse.
type Source struct {
	Connector string
	Path      string
}

// Report summarizes an ingestion run.
type Report struct {
	Nodes        int
	Edges        int
	SkippedEdges []error
}

// Ingestor loads connector output into a store. Edges are applied
// after every connector's nodes, so cross-connector references (a team
// owning a compose-defined service) resolve regardless of source
// order. An edge whose endpoint still does not exist anywhere fails
// its own upsert with DanglingReference and is skipped with a warning;
// the rest of the run is unaffected and nothing partial is written.
type Ingestor struct {
	registry *Registry
	store    graph.Store
}

// NewIngestor builds an ingestor over a registry and store.
func NewIngestor(registry *Registry, store graph.Store) *Ingestor {
	return &Ingestor{registry: registry, store: store}
}

// Run parses every source and upserts the results in two phases:
// all nodes first, then all edges.
func (i *Ingestor) Run(ctx context.Context, sources []Source) (*Report, error) {
	type parsed struct {
		source Source
		result *Result
	}

	var results []parsed
	for _, src := range sources {
		connector, ok := i.registry.Get(src.Connector)
		if !ok {
			return nil, fmt.Errorf("unknown connector %q", src.Connector)
		}
		if _, err := os.Stat(src.Path); err != nil {
			slog.Warn("skipping missing source file", "connector", src.Connector, "path", src.Path)
			continue
		}
		result, err := connector.Parse(src.Path)
		if err != nil {
			return nil, fmt.Errorf("connector %s: parsing %s: %w", src.Connector, src.Path, err)
		}
		results = append(results, parsed{source: src, result: result})
	}

	report := &Report{}
	for _, p := range results {
		for _, node := range p.result.Nodes {
			if err := i.store.UpsertNode(ctx, node); err != nil {
				return nil, fmt.Errorf("connector %s: upserting node %s: %w", p.source.Connector, node.ID, err)
			}
			metrics.IngestedTotal.WithLabelValues(p.source.Connector, "node").Inc()
			report.Nodes++
		}
	}
	for _, p := range results {
		for _, edge := range p.result.Edges {
			err := i.store.UpsertEdge(ctx, edge)
			if errors.Is(err, graph.ErrDanglingReference) {
				slog.Warn("skipping dangling edge", "connector", p.source.Connector, "edge", edge.ID, "err", err)
				report.SkippedEdges = append(report.SkippedEdges, err)
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("connector %s: upserting edge %s: %w", p.source.Connector, edge.ID, err)
			}
			metrics.IngestedTotal.WithLabelValues(p.source.Connector, "edge").Inc()
			report.Edges++
		}
	}
	return report, nil
}
