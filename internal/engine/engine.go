// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package engine defines the research handle the MCP layer drives and a
// concrete implementation that gathers sources from search backends, plans
// follow-up queries and synthesizes reports.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/research-mcp/internal/llm"
	"github.com/pdiddy/research-mcp/internal/search"
	"github.com/pdiddy/research-mcp/pkg/types"
)

// Mode selects how much effort a research run spends.
type Mode string

const (
	// ModeDeep runs several search rounds, follows up on gaps and fetches
	// the top pages.
	ModeDeep Mode = "deep"
	// ModeQuick runs a single search pass and favors speed over depth.
	ModeQuick Mode = "quick"
)

// ParseMode maps a mode name to a Mode. Empty selects ModeDeep.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(ModeDeep):
		return ModeDeep, nil
	case string(ModeQuick):
		return ModeQuick, nil
	default:
		return "", fmt.Errorf("unknown research mode %q", s)
	}
}

// ErrNotConducted is returned by a Researcher asked for results before
// Conduct has succeeded.
var ErrNotConducted = errors.New("research has not been conducted yet")

// ReportOptions customizes WriteReport.
type ReportOptions struct {
	CustomPrompt string
	// Format is "markdown" (default) or "plain"; other values are passed to
	// the model as free-form instructions.
	Format string
}

// Researcher is the handle one research session owns. Conduct runs the
// research; the other methods read its outcome.
type Researcher interface {
	Conduct(ctx context.Context) (types.Result, error)
	WriteReport(ctx context.Context, opts ReportOptions) (string, error)
	Sources(ctx context.Context) ([]types.Source, error)
	Context(ctx context.Context) (string, error)
}

// Factory creates a fresh Researcher for a query.
type Factory interface {
	NewResearcher(query string, mode Mode) (Researcher, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(query string, mode Mode) (Researcher, error)

// NewResearcher calls f.
func (f FactoryFunc) NewResearcher(query string, mode Mode) (Researcher, error) {
	return f(query, mode)
}

// Planner proposes follow-up queries for a deep research run.
type Planner interface {
	PlanQueries(ctx context.Context, query string, known []types.Source, n int) ([]string, error)
}

// Writer synthesizes a report from gathered sources.
type Writer interface {
	WriteReport(ctx context.Context, req llm.ReportRequest) (string, error)
}

// Enricher fills in source page content.
type Enricher interface {
	Enrich(ctx context.Context, sources []types.Source, n int) error
}

// Options configures an Engine. Planner, Writer and Fetcher are optional;
// without them the engine uses deterministic follow-up queries and reports.
type Options struct {
	Backends []search.Backend
	Search   types.SearchConfig
	Config   types.EngineConfig
	Planner  Planner
	Writer   Writer
	Fetcher  Enricher
	Logger   *zap.Logger
}

// Engine creates researchers that share backends and clients.
type Engine struct {
	backends []search.Backend
	search   types.SearchConfig
	cfg      types.EngineConfig
	planner  Planner
	writer   Writer
	fetcher  Enricher
	logger   *zap.Logger
}

// Defaults applied by New when the corresponding config value is zero.
const (
	DefaultMaxIterations   = 3
	DefaultDeepMaxSources  = 20
	DefaultQuickMaxSources = 5
)

// New validates opts and returns an Engine.
func New(opts Options) (*Engine, error) {
	if len(opts.Backends) == 0 {
		return nil, errors.New("engine: at least one search backend is required")
	}
	cfg := opts.Config
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.DeepMaxSources <= 0 {
		cfg.DeepMaxSources = DefaultDeepMaxSources
	}
	if cfg.QuickMaxSources <= 0 {
		cfg.QuickMaxSources = DefaultQuickMaxSources
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		backends: opts.Backends,
		search:   opts.Search,
		cfg:      cfg,
		planner:  opts.Planner,
		writer:   opts.Writer,
		fetcher:  opts.Fetcher,
		logger:   logger,
	}, nil
}

// NewResearcher returns a Researcher for query. The query must not be blank.
func (e *Engine) NewResearcher(query string, mode Mode) (Researcher, error) {
	query = strings.Join(strings.Fields(query), " ")
	if query == "" {
		return nil, errors.New("engine: query is empty")
	}
	if mode == "" {
		mode = ModeDeep
	}
	if mode != ModeDeep && mode != ModeQuick {
		return nil, fmt.Errorf("engine: unknown mode %q", mode)
	}
	return &research{
		engine: e,
		query:  query,
		mode:   mode,
		logger: e.logger.With(zap.String("query", query), zap.String("mode", string(mode))),
	}, nil
}
