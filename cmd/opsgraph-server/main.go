// Command opsgraph-server runs the infrastructure graph chat service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opsgraph/opsgraph/internal/catalog"
	"github.com/opsgraph/opsgraph/internal/config"
	"github.com/opsgraph/opsgraph/internal/connectors"
	"github.com/opsgraph/opsgraph/internal/graph"
	"github.com/opsgraph/opsgraph/internal/oracle"
	"github.com/opsgraph/opsgraph/internal/server/api"
	"github.com/opsgraph/opsgraph/internal/session"
	"github.com/opsgraph/opsgraph/internal/traverse"
)

func main() {
	configPath := flag.String("config", "", "path to TOML config file")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if err := run(*configPath); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx := context.Background()
	store, err := buildStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("opening %s store: %w", cfg.Store.Backend, err)
	}
	defer store.Close(ctx)
	slog.Info("graph store ready", "backend", cfg.Store.Backend)

	registry := connectors.DefaultRegistry()
	ingestor := connectors.NewIngestor(registry, store)
	sources, err := resolveSources(registry, cfg.Sources)
	if err != nil {
		return err
	}
	if len(sources) > 0 {
		report, err := ingestor.Run(ctx, sources)
		if err != nil {
			return fmt.Errorf("initial ingest: %w", err)
		}
		slog.Info("ingested sources",
			"sources", len(sources),
			"nodes", report.Nodes,
			"edges", report.Edges,
			"skipped_edges", len(report.SkippedEdges))
	}

	if cfg.Oracle.APIKey == "" {
		return errors.New("OPENAI_API_KEY is required")
	}
	orc := oracle.NewOpenAI(cfg.Oracle.APIKey, cfg.Oracle.Model, cfg.Oracle.MaxRetries)

	engine := traverse.New(store)
	cat := catalog.New(store, engine)

	sessionCfg := session.Config{
		MaxRounds:     cfg.Chat.MaxRounds,
		HistoryWindow: cfg.Chat.HistoryWindow,
		OracleTimeout: cfg.Chat.OracleTimeoutDuration(),
		ExecTimeout:   cfg.Chat.ExecTimeoutDuration(),
		StoreRetries:  session.DefaultConfig().StoreRetries,
	}
	sessions := session.NewStore(orc, cat, sessionCfg, cfg.Chat.SessionTTL())
	defer sessions.Close()

	apiServer := api.New(store, engine, sessions, ingestor, sources)

	srv := &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      apiServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", cfg.Server.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		slog.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
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

func resolveSources(registry *connectors.Registry, configured []config.Source) ([]connectors.Source, error) {
	sources := make([]connectors.Source, 0, len(configured))
	for _, src := range configured {
		if _, ok := registry.Get(src.Connector); !ok {
			return nil, fmt.Errorf("unknown connector %q (have %v)", src.Connector, registry.Names())
		}
		sources = append(sources, connectors.Source{Connector: src.Connector, Path: src.Path})
	}
	return sources, nil
}
