// Command opsgraph-ingest loads infrastructure descriptions into the
// graph store without starting the server. Sources come from the same
// TOML config the server uses, or from connector=path arguments:
//
//	opsgraph-ingest -config opsgraph.toml
//	opsgraph-ingest docker_compose=deploy/docker-compose.yml teams=teams.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/opsgraph/opsgraph/internal/config"
	"github.com/opsgraph/opsgraph/internal/connectors"
	"github.com/opsgraph/opsgraph/internal/graph"
)

func main() {
	configPath := flag.String("config", "", "path to TOML config file")
	dryRun := flag.Bool("dry-run", false, "parse sources into an in-memory store and report, without writing")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if err := run(*configPath, *dryRun, flag.Args()); err != nil {
		slog.Error("ingest failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, dryRun bool, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	registry := connectors.DefaultRegistry()
	sources, err := resolveSources(registry, cfg.Sources, args)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return fmt.Errorf("no sources given (config [[sources]] or connector=path arguments)")
	}

	ctx := context.Background()
	var store graph.Store
	if dryRun {
		store = graph.NewMemoryStore()
	} else {
		store, err = buildStore(ctx, cfg.Store)
		if err != nil {
			return fmt.Errorf("opening %s store: %w", cfg.Store.Backend, err)
		}
	}
	defer store.Close(ctx)

	report, err := connectors.NewIngestor(registry, store).Run(ctx, sources)
	if err != nil {
		return err
	}

	fmt.Printf("ingested %d nodes, %d edges from %d sources\n", report.Nodes, report.Edges, len(sources))
	for _, skipped := range report.SkippedEdges {
		fmt.Printf("skipped: %v\n", skipped)
	}
	return nil
}

func buildStore(ctx context.Context, cfg config.StoreCfg) (graph.Store, error) {
	switch cfg.Backend {
	case "neo4j":
		return graph.NewNeo4jStore(ctx, graph.Neo4jConfig{
			URI:      cfg.Neo4jURI,
			Username: cfg.Neo4jUser,
			Password: cfg.Neo4jPassword,
			Database: cfg.Neo4jDatabase,
		})
	case "sqlite":
		return graph.NewSQLiteStore(ctx, cfg.SQLitePath)
	default:
		return graph.NewMemoryStore(), nil
	}
}

func resolveSources(registry *connectors.Registry, configured []config.Source, args []string) ([]connectors.Source, error) {
	var sources []connectors.Source
	for _, src := range configured {
		if _, ok := registry.Get(src.Connector); !ok {
			return nil, fmt.Errorf("unknown connector %q (have %v)", src.Connector, registry.Names())
		}
		sources = append(sources, connectors.Source{Connector: src.Connector, Path: src.Path})
	}
	for _, arg := range args {
		name, path, found := strings.Cut(arg, "=")
		if !found {
			return nil, fmt.Errorf("invalid source %q, want connector=path", arg)
		}
		if _, ok := registry.Get(name); !ok {
			return nil, fmt.Errorf("unknown connector %q (have %v)", name, registry.Names())
		}
		sources = append(sources, connectors.Source{Connector: name, Path: path})
	}
	return sources, nil
}
