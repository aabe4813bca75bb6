// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/research-mcp/pkg/types"
)

// Names of the built-in backends.
const (
	NameTavily          = "tavily"
	NameArxiv           = "arxiv"
	NameOpenAlex        = "openalex"
	NameSemanticScholar = "semantic_scholar"
)

// Build constructs the backends listed in names. An empty list enables every
// backend whose credentials are configured: Tavily needs an API key, the
// academic APIs work anonymously.
func Build(names []string, cfg types.SearchConfig, client *http.Client, logger *zap.Logger) ([]Backend, error) {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if len(names) == 0 {
		names = []string{NameArxiv, NameOpenAlex, NameSemanticScholar}
		if cfg.TavilyAPIKey != "" {
			names = append([]string{NameTavily}, names...)
		}
	}

	var backends []Backend
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case NameTavily:
			if cfg.TavilyAPIKey == "" {
				return nil, fmt.Errorf("backend %q requires a Tavily API key", name)
			}
			backends = append(backends, &TavilyBackend{Client: client, APIKey: cfg.TavilyAPIKey, Depth: cfg.TavilyDepth, Logger: logger})
		case NameArxiv:
			backends = append(backends, &ArxivBackend{Client: client, Logger: logger})
		case NameOpenAlex:
			backends = append(backends, &OpenAlexBackend{Client: client, Email: cfg.OpenAlexEmail, Logger: logger})
		case NameSemanticScholar, "semantic-scholar", "semanticscholar":
			backends = append(backends, &SemanticScholarBackend{Client: client, APIKey: cfg.SemanticScholarAPIKey, Logger: logger})
		default:
			return nil, fmt.Errorf("unknown search backend %q", name)
		}
	}
	return backends, nil
}

// parseDate accepts "2006-01-02" and RFC 3339 timestamps, returning the zero
// time for anything else.
func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339, time.RFC1123} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
