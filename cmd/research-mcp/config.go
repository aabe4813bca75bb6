// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pdiddy/research-mcp/internal/cache"
	"github.com/pdiddy/research-mcp/internal/engine"
	"github.com/pdiddy/research-mcp/internal/fetch"
	"github.com/pdiddy/research-mcp/internal/llm"
	"github.com/pdiddy/research-mcp/internal/search"
	"github.com/pdiddy/research-mcp/internal/secrets"
	"github.com/pdiddy/research-mcp/internal/server"
	"github.com/pdiddy/research-mcp/internal/session"
	"github.com/pdiddy/research-mcp/pkg/types"
)

const secretsDir = ".secrets/"

// setDefaults registers every config key so that AutomaticEnv can override
// nested keys during Unmarshal.
func setDefaults() {
	viper.SetDefault("transport", "")
	viper.SetDefault("addr", "")
	viper.SetDefault("log.level", "info")

	viper.SetDefault("http.timeout", 30*time.Second)
	viper.SetDefault("http.user_agent", "research-mcp/"+version)

	viper.SetDefault("search.max_results", 10)
	viper.SetDefault("search.tavily_depth", "basic")
	viper.SetDefault("search.tavily_api_key", "")
	viper.SetDefault("search.semantic_scholar_api_key", "")
	viper.SetDefault("search.openalex_email", "")

	viper.SetDefault("llm.model", "")
	viper.SetDefault("llm.api_key", "")
	viper.SetDefault("llm.max_tokens", 4096)
	viper.SetDefault("llm.max_retries", 3)

	viper.SetDefault("engine.backends", []string{})
	viper.SetDefault("engine.max_iterations", engine.DefaultMaxIterations)
	viper.SetDefault("engine.deep_max_sources", engine.DefaultDeepMaxSources)
	viper.SetDefault("engine.quick_max_sources", engine.DefaultQuickMaxSources)
	viper.SetDefault("engine.fetch_pages", 5)
	viper.SetDefault("engine.timeout", server.DefaultTimeout)

	viper.SetDefault("cache.max_entries", 256)
	viper.SetDefault("cache.ttl", 24*time.Hour)
	viper.SetDefault("cache.db_path", "")

	viper.SetDefault("sessions.max", 1024)
	viper.SetDefault("sessions.ttl", 24*time.Hour)
}

// newLogger builds a production zap logger writing JSON to stderr.
func newLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	level, err := zapcore.ParseLevel(viper.GetString("log.level"))
	if err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	if level == zapcore.DebugLevel {
		cfg.Development = true
	}
	return cfg.Build()
}

// loadConfig unmarshals viper settings and fills credentials from the
// secrets directory and the environment.
func loadConfig(logger *zap.Logger) (types.ServerConfig, error) {
	var cfg types.ServerConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	s, err := secrets.Load(secretsDir, logger)
	if err != nil {
		return cfg, err
	}
	if keys := s.Keys(); len(keys) > 0 {
		logger.Info("loaded secrets", zap.Strings("keys", keys))
	}
	fill := func(dst *string, key string) {
		if *dst == "" {
			*dst = s.Get(key, os.Getenv)
		}
	}
	fill(&cfg.Search.TavilyAPIKey, secrets.TavilyAPIKey)
	fill(&cfg.Search.SemanticScholarAPIKey, secrets.SemanticScholarAPIKey)
	fill(&cfg.Search.OpenAlexEmail, secrets.OpenAlexEmail)
	fill(&cfg.AI.APIKey, secrets.AnthropicAPIKey)

	if cfg.Search.Timeout == 0 {
		cfg.Search.Timeout = cfg.HTTP.Timeout
	}
	if cfg.Search.UserAgent == "" {
		cfg.Search.UserAgent = cfg.HTTP.UserAgent
	}
	return cfg, nil
}

// app holds the wired components shared by the commands.
type app struct {
	cfg    types.ServerConfig
	logger *zap.Logger
	store  *cache.SQLiteStore
	svc    *server.Service
	engine *engine.Engine
}

// newApp wires config, logger, engine, registry and cache.
func newApp() (*app, error) {
	logger, err := newLogger()
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig(logger)
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: cfg.HTTP.Timeout}
	backends, err := search.Build(cfg.Engine.Backends, cfg.Search, client, logger.Named("search"))
	if err != nil {
		return nil, err
	}

	opts := engine.Options{
		Backends: backends,
		Search:   cfg.Search,
		Config:   cfg.Engine,
		Fetcher:  fetch.New(cfg.HTTP, logger.Named("fetch")),
		Logger:   logger.Named("engine"),
	}
	claude, err := llm.New(cfg.AI, client, logger.Named("llm"))
	switch {
	case err == nil:
		opts.Planner = claude
		opts.Writer = claude
	case errors.Is(err, llm.ErrNoAPIKey):
		logger.Warn("no Anthropic API key; using rule-based planning and reports")
	default:
		return nil, err
	}
	eng, err := engine.New(opts)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, engine: eng}
	cacheOpts := cache.Options{
		MaxEntries: cfg.Cache.MaxEntries,
		TTL:        cfg.Cache.TTL,
		Logger:     logger.Named("cache"),
	}
	if cfg.Cache.DBPath != "" {
		store, err := cache.OpenSQLite(cfg.Cache.DBPath)
		if err != nil {
			return nil, err
		}
		a.store = store
		cacheOpts.Store = store
	}

	a.svc, err = server.NewService(server.Options{
		Factory: eng,
		Sessions: session.New(session.Options{
			MaxSessions: cfg.Sessions.Max,
			TTL:         cfg.Sessions.TTL,
		}),
		Cache:   cache.New(cacheOpts),
		Timeout: cfg.Engine.Timeout,
		Logger:  logger.Named("server"),
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Close releases the cache database and flushes the logger.
func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("closing cache database", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

// openStore opens the configured cache database for the cache commands.
func openStore() (*cache.SQLiteStore, error) {
	path := viper.GetString("cache.db_path")
	if path == "" {
		return nil, errors.New("cache.db_path is not configured (set it in research-mcp.yaml or RESEARCH_MCP_CACHE_DB_PATH)")
	}
	return cache.OpenSQLite(path)
}
