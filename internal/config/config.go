// Package config loads service configuration from an optional TOML
// file with environment-variable overrides for deployment secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

// Config is the full daemon configuration.
type Config struct {
	Server  Server   `toml:"server"`
	Store   StoreCfg `toml:"store"`
	Oracle  Oracle   `toml:"oracle"`
	Chat    Chat     `toml:"chat"`
	Sources []Source `toml:"sources" validate:"dive"`
}

type Server struct {
	Listen string `toml:"listen" validate:"required"`
}

type StoreCfg struct {
	// Backend selects the graph store adapter.
	Backend string `toml:"backend" validate:"oneof=memory neo4j sqlite"`

	Neo4jURI      string `toml:"neo4j_uri"`
	Neo4jUser     string `toml:"neo4j_user"`
	Neo4jPassword string `toml:"-"` // env only, never in the file
	Neo4jDatabase string `toml:"neo4j_database"`

	SQLitePath string `toml:"sqlite_path"`
}

type Oracle struct {
	Model      string `toml:"model"`
	APIKey     string `toml:"-"` // env only
	MaxRetries int    `toml:"max_retries" validate:"min=0,max=10"`
}

type Chat struct {
	MaxRounds      int `toml:"max_rounds" validate:"min=1,max=10"`
	HistoryWindow  int `toml:"history_window" validate:"min=2"`
	OracleTimeout  int `toml:"oracle_timeout_seconds" validate:"min=1"`
	ExecTimeout    int `toml:"exec_timeout_seconds" validate:"min=1"`
	SessionTTLMins int `toml:"session_ttl_minutes" validate:"min=0"`
}

// Source names a connector and the file it ingests at startup.
type Source struct {
	Connector string `toml:"connector" validate:"required"`
	Path      string `toml:"path" validate:"required"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: Server{Listen: ":8080"},
		Store: StoreCfg{
			Backend:       "memory",
			Neo4jURI:      "bolt://localhost:7687",
			Neo4jUser:     "neo4j",
			Neo4jDatabase: "neo4j",
			SQLitePath:    "opsgraph.db",
		},
		Oracle: Oracle{Model: "gpt-4o-mini", MaxRetries: 3},
		Chat: Chat{
			MaxRounds:      4,
			HistoryWindow:  20,
			OracleTimeout:  30,
			ExecTimeout:    10,
			SessionTTLMins: 60,
		},
	}
}

// Load reads the TOML file (if path is non-empty), applies environment
// overrides, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setFromEnv(&cfg.Server.Listen, "OPSGRAPH_LISTEN")
	setFromEnv(&cfg.Store.Backend, "OPSGRAPH_STORE")
	setFromEnv(&cfg.Store.Neo4jURI, "NEO4J_URI")
	setFromEnv(&cfg.Store.Neo4jUser, "NEO4J_USER")
	setFromEnv(&cfg.Store.Neo4jPassword, "NEO4J_PASSWORD")
	setFromEnv(&cfg.Store.Neo4jDatabase, "NEO4J_DATABASE")
	setFromEnv(&cfg.Store.SQLitePath, "OPSGRAPH_SQLITE_PATH")
	setFromEnv(&cfg.Oracle.Model, "OPENAI_MODEL")
	setFromEnv(&cfg.Oracle.APIKey, "OPENAI_API_KEY")
}

func setFromEnv(target *string, key string) {
	if value := os.Getenv(key); value != "" {
		*target = value
	}
}

// OracleTimeoutDuration returns the oracle timeout as a duration.
func (c Chat) OracleTimeoutDuration() time.Duration {
	return time.Duration(c.OracleTimeout) * time.Second
}

// ExecTimeoutDuration returns the execution timeout as a duration.
func (c Chat) ExecTimeoutDuration() time.Duration {
	return time.Duration(c.ExecTimeout) * time.Second
}

// SessionTTL returns the idle eviction window; zero disables eviction.
func (c Chat) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMins) * time.Minute
}
