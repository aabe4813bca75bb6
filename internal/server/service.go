// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package server exposes the research engine over MCP. Service holds the
// operations in library form; New registers them on an mcp.Server as tools,
// a resource template and a prompt.
package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/research-mcp/internal/cache"
	"github.com/pdiddy/research-mcp/internal/engine"
	"github.com/pdiddy/research-mcp/internal/envelope"
	"github.com/pdiddy/research-mcp/internal/session"
	"github.com/pdiddy/research-mcp/pkg/types"
)

// DefaultTimeout bounds a single engine call when Options.Timeout is zero.
const DefaultTimeout = 5 * time.Minute

// Options configures a Service. Factory is required; nil Sessions and Cache
// are replaced with unbounded in-memory instances.
type Options struct {
	Factory  engine.Factory
	Sessions *session.Registry
	Cache    *cache.Cache
	Timeout  time.Duration
	Logger   *zap.Logger
}

// Service implements the research operations. Every method that backs a tool
// returns exactly one envelope and never an error.
type Service struct {
	factory  engine.Factory
	sessions *session.Registry
	cache    *cache.Cache
	timeout  time.Duration
	logger   *zap.Logger
}

// NewService returns a Service wired to opts.
func NewService(opts Options) (*Service, error) {
	if opts.Factory == nil {
		return nil, errors.New("research engine factory is required")
	}
	s := &Service{
		factory:  opts.Factory,
		sessions: opts.Sessions,
		cache:    opts.Cache,
		timeout:  opts.Timeout,
		logger:   opts.Logger,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.sessions == nil {
		s.sessions = session.New(session.Options{})
	}
	if s.cache == nil {
		s.cache = cache.New(cache.Options{Logger: s.logger})
	}
	if s.timeout <= 0 {
		s.timeout = DefaultTimeout
	}
	return s, nil
}

// DeepResearch runs a multi-round research pass on query, registers a
// session for follow-up calls and stores the result in the topic cache under
// the normalized query.
func (s *Service) DeepResearch(ctx context.Context, query string) envelope.Envelope {
	return s.research(ctx, "deep_research", query, engine.ModeDeep)
}

// QuickSearch runs a single search pass on query and registers a session.
func (s *Service) QuickSearch(ctx context.Context, query string) envelope.Envelope {
	return s.research(ctx, "quick_search", query, engine.ModeQuick)
}

func (s *Service) research(ctx context.Context, op, query string, mode engine.Mode) envelope.Envelope {
	query = strings.TrimSpace(query)
	key := cache.Normalize(query)
	if key == "" {
		return envelope.HandleError(s.logger, fmt.Errorf("%w: query must not be empty", envelope.ErrValidation), op)
	}

	start := time.Now()
	researcher, err := s.factory.NewResearcher(query, mode)
	if err != nil {
		return envelope.HandleError(s.logger, fmt.Errorf("creating researcher: %w", err), op)
	}

	var result types.Result
	err = s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		result, err = researcher.Conduct(ctx)
		return err
	})
	if err != nil {
		return envelope.HandleError(s.logger, err, op)
	}
	if result.SourceURLs == nil {
		result.SourceURLs = types.URLs(result.Sources)
	}

	sess, err := s.sessions.Create(query, mode, researcher)
	if err != nil {
		return envelope.HandleError(s.logger, err, op)
	}
	if mode == engine.ModeDeep {
		s.cache.Put(ctx, key, result)
	}

	s.logger.Info("research complete",
		zap.String("op", op),
		zap.String("session_id", sess.ID),
		zap.Int("sources", len(result.Sources)),
		zap.Duration("elapsed", time.Since(start)),
	)

	return envelope.Success(map[string]any{
		"session_id":   sess.ID,
		"research_id":  sess.ID,
		"query":        query,
		"source_count": len(result.Sources),
		"context":      result.Context,
		"sources":      envelope.FormatSources(result.Sources),
		"source_urls":  nonNil(result.SourceURLs),
	})
}

// WriteReport synthesizes a report from the session's gathered research.
// An empty format selects markdown.
func (s *Service) WriteReport(ctx context.Context, sessionID, customPrompt, format string) envelope.Envelope {
	const op = "write_report"
	if format == "" {
		format = "markdown"
	}
	var report string
	err := s.withSession(ctx, sessionID, func(ctx context.Context, r engine.Researcher) error {
		var err error
		report, err = r.WriteReport(ctx, engine.ReportOptions{CustomPrompt: customPrompt, Format: format})
		return err
	})
	if err != nil {
		return envelope.HandleError(s.logger, err, op)
	}
	return envelope.Success(map[string]any{
		"report":      report,
		"session_id":  sessionID,
		"research_id": sessionID,
	})
}

// GetSources returns the sources a session gathered.
func (s *Service) GetSources(ctx context.Context, sessionID string) envelope.Envelope {
	const op = "get_research_sources"
	var sources []types.Source
	err := s.withSession(ctx, sessionID, func(ctx context.Context, r engine.Researcher) error {
		var err error
		sources, err = r.Sources(ctx)
		return err
	})
	if err != nil {
		return envelope.HandleError(s.logger, err, op)
	}
	return envelope.Success(map[string]any{
		"session_id":   sessionID,
		"research_id":  sessionID,
		"sources":      envelope.FormatSources(sources),
		"source_count": len(sources),
	})
}

// GetContext returns the session's context text. With withCitations set a
// numbered reference list resolving the inline [n] markers is appended.
func (s *Service) GetContext(ctx context.Context, sessionID string, withCitations bool) envelope.Envelope {
	const op = "get_research_context"
	var text string
	err := s.withSession(ctx, sessionID, func(ctx context.Context, r engine.Researcher) error {
		var err error
		if text, err = r.Context(ctx); err != nil {
			return err
		}
		if !withCitations {
			return nil
		}
		sources, err := r.Sources(ctx)
		if err != nil {
			return err
		}
		text = envelope.ContextWithCitations(text, sources)
		return nil
	})
	if err != nil {
		return envelope.HandleError(s.logger, err, op)
	}
	return envelope.Success(map[string]any{
		"session_id":  sessionID,
		"research_id": sessionID,
		"context":     text,
	})
}

// ReadTopic returns the context text for topic, running deep research on a
// cache miss. Concurrent reads of the same topic share one engine call. No
// session is registered.
func (s *Service) ReadTopic(ctx context.Context, topic string) (string, error) {
	topic = cache.Normalize(topic)
	if topic == "" {
		return "", fmt.Errorf("%w: topic must not be empty", envelope.ErrValidation)
	}
	result, hit, err := s.cache.GetOrCompute(ctx, topic, func(ctx context.Context) (types.Result, error) {
		researcher, err := s.factory.NewResearcher(topic, engine.ModeDeep)
		if err != nil {
			return types.Result{}, fmt.Errorf("creating researcher: %w", err)
		}
		var result types.Result
		err = s.withTimeout(ctx, func(ctx context.Context) error {
			var err error
			result, err = researcher.Conduct(ctx)
			return err
		})
		if result.SourceURLs == nil {
			result.SourceURLs = types.URLs(result.Sources)
		}
		return result, err
	})
	if err != nil {
		return "", err
	}
	s.logger.Debug("topic read", zap.String("topic", topic), zap.Bool("cache_hit", hit))
	return result.Context, nil
}

// withSession looks up sessionID and runs fn under the session lock with
// the engine timeout applied to both the wait and the call.
func (s *Service) withSession(ctx context.Context, sessionID string, fn func(context.Context, engine.Researcher) error) error {
	if sessionID == "" {
		return fmt.Errorf("%w: session_id must not be empty", envelope.ErrValidation)
	}
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return err
	}
	return s.withTimeout(ctx, func(ctx context.Context) error {
		return sess.Do(ctx, func(r engine.Researcher) error {
			return fn(ctx, r)
		})
	})
}

// withTimeout runs fn under the engine timeout. An error returned after the
// deadline passed is reported as a deadline error even if fn wrapped it
// differently.
func (s *Service) withTimeout(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	err := fn(ctx)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}
	return err
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
