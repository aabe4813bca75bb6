// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package engine

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/research-mcp/internal/llm"
	"github.com/pdiddy/research-mcp/internal/search"
	"github.com/pdiddy/research-mcp/pkg/types"
)

// followUpWeight discounts sources found by follow-up queries so results
// for the original question rank first.
const followUpWeight = 0.8

// queriesPerRound is how many follow-up queries a deep round asks for.
const queriesPerRound = 2

// fallbackAngles expand the query when no planner is configured.
var fallbackAngles = []string{"overview", "recent research", "challenges and limitations", "applications"}

type research struct {
	engine *Engine
	query  string
	mode   Mode
	logger *zap.Logger

	mu     sync.Mutex
	done   bool
	result types.Result
}

// Conduct gathers sources and builds the research context. A successful
// call replaces any earlier outcome.
func (r *research) Conduct(ctx context.Context) (types.Result, error) {
	start := time.Now()
	var (
		sources []types.Source
		err     error
	)
	if r.mode == ModeQuick {
		sources, err = r.quick(ctx)
	} else {
		sources, err = r.deep(ctx)
	}
	if err != nil {
		return types.Result{}, err
	}

	res := types.Result{
		Context:    BuildContext(r.query, sources),
		Sources:    sources,
		SourceURLs: types.URLs(sources),
		CreatedAt:  time.Now().UTC(),
	}

	r.mu.Lock()
	r.result = res
	r.done = true
	r.mu.Unlock()

	r.logger.Info("research conducted",
		zap.Int("sources", len(sources)),
		zap.Duration("elapsed", time.Since(start)))
	return res.Clone(), nil
}

func (r *research) quick(ctx context.Context) ([]types.Source, error) {
	cfg := r.engine.search
	cfg.MaxResults = r.engine.cfg.QuickMaxSources
	out, err := search.Search(ctx, r.query, r.engine.backends, cfg, r.logger)
	if err != nil {
		return nil, err
	}
	return out.Sources, nil
}

func (r *research) deep(ctx context.Context) ([]types.Source, error) {
	e := r.engine
	cfg := e.search
	cfg.MaxResults = e.cfg.DeepMaxSources

	out, err := search.Search(ctx, r.query, e.backends, cfg, r.logger)
	if err != nil {
		return nil, err
	}
	all := out.Sources
	asked := map[string]bool{strings.ToLower(r.query): true}

	for round := 1; round < e.cfg.MaxIterations; round++ {
		added := 0
		for _, q := range r.followUps(ctx, all, round) {
			key := strings.ToLower(q)
			if asked[key] {
				continue
			}
			asked[key] = true

			more, err := search.Search(ctx, q, e.backends, cfg, r.logger)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				r.logger.Warn("follow-up search failed", zap.String("follow_up", q), zap.Error(err))
				continue
			}
			for i := range more.Sources {
				more.Sources[i].Score *= followUpWeight
			}
			merged, _ := search.Deduplicate(append(all, more.Sources...))
			added += len(merged) - len(all)
			all = merged
		}
		r.logger.Debug("research round", zap.Int("round", round), zap.Int("new_sources", added))
		if added == 0 {
			break
		}
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].Score > all[j].Score })
	if len(all) > e.cfg.DeepMaxSources {
		all = all[:e.cfg.DeepMaxSources]
	}

	if e.fetcher != nil && e.cfg.FetchPages > 0 {
		if err := e.fetcher.Enrich(ctx, all, e.cfg.FetchPages); err != nil {
			return nil, err
		}
	}
	return all, nil
}

// followUps returns the queries for one deep round: planned by the LLM when
// available, else one fixed angle on the original query.
func (r *research) followUps(ctx context.Context, known []types.Source, round int) []string {
	if p := r.engine.planner; p != nil {
		queries, err := p.PlanQueries(ctx, r.query, known, queriesPerRound)
		if err == nil {
			return queries
		}
		r.logger.Warn("query planning failed, using fallback", zap.Error(err))
	}
	if round-1 >= len(fallbackAngles) {
		return nil
	}
	return []string{r.query + " " + fallbackAngles[round-1]}
}

func (r *research) snapshot() (types.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.done {
		return types.Result{}, ErrNotConducted
	}
	return r.result.Clone(), nil
}

// Sources returns the sources of the last successful Conduct.
func (r *research) Sources(ctx context.Context) ([]types.Source, error) {
	res, err := r.snapshot()
	if err != nil {
		return nil, err
	}
	return res.Sources, nil
}

// Context returns the context text of the last successful Conduct.
func (r *research) Context(ctx context.Context) (string, error) {
	res, err := r.snapshot()
	if err != nil {
		return "", err
	}
	return res.Context, nil
}

// WriteReport synthesizes a report with the configured Writer, or drafts a
// deterministic one from the sources when none is configured.
func (r *research) WriteReport(ctx context.Context, opts ReportOptions) (string, error) {
	res, err := r.snapshot()
	if err != nil {
		return "", err
	}
	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = "markdown"
	}

	w := r.engine.writer
	if w == nil {
		return DraftReport(r.query, res.Sources, format, opts.CustomPrompt), nil
	}

	report, err := w.WriteReport(ctx, llm.ReportRequest{
		Query:        r.query,
		Context:      res.Context,
		Sources:      res.Sources,
		CustomPrompt: opts.CustomPrompt,
		Format:       format,
	})
	if err != nil {
		return "", err
	}
	if bad := InvalidCitations(report, len(res.Sources)); len(bad) > 0 {
		r.logger.Warn("report cites unknown sources", zap.Ints("citations", bad))
	}
	return report, nil
}
