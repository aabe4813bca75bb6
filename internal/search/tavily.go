// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/research-mcp/internal/httputil"
	"github.com/pdiddy/research-mcp/pkg/types"
)

// tavilyAPIBase is the Tavily search endpoint. Declared as a var so tests
// can substitute an httptest server.
var tavilyAPIBase = "https://api.tavily.com/search"

// TavilyBackend queries the Tavily web search API.
type TavilyBackend struct {
	Client *http.Client
	APIKey string
	// Depth is Tavily's search_depth parameter: "basic" or "advanced".
	Depth  string
	Logger *zap.Logger
}

// Name returns the backend identifier.
func (b *TavilyBackend) Name() string { return "tavily" }

type tavilyRequest struct {
	Query             string `json:"query"`
	SearchDepth       string `json:"search_depth"`
	MaxResults        int    `json:"max_results"`
	IncludeRawContent bool   `json:"include_raw_content"`
}

type tavilyResponse struct {
	Results []tavilyResult `json:"results"`
}

type tavilyResult struct {
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	Content       string  `json:"content"`
	RawContent    string  `json:"raw_content"`
	Score         float64 `json:"score"`
	PublishedDate string  `json:"published_date"`
}

// Search posts the query to Tavily and returns web sources.
func (b *TavilyBackend) Search(ctx context.Context, query string, cfg types.SearchConfig) ([]types.Source, error) {
	if strings.TrimSpace(b.APIKey) == "" {
		return nil, errors.New("tavily: API key is missing")
	}

	depth := b.Depth
	if depth == "" {
		depth = "basic"
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}
	if maxResults > 20 {
		maxResults = 20
	}

	payload, err := json.Marshal(tavilyRequest{
		Query:             query,
		SearchDepth:       depth,
		MaxResults:        maxResults,
		IncludeRawContent: depth == "advanced",
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tavilyAPIBase, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.APIKey)
	if cfg.UserAgent != "" {
		req.Header.Set("User-Agent", cfg.UserAgent)
	}

	resp, err := httputil.DoWithRetry(ctx, b.Client, req, 0, b.Logger)
	if err != nil {
		return nil, fmt.Errorf("Tavily API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Tavily API returned HTTP %d", resp.StatusCode)
	}

	var tr tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("parsing Tavily response: %w", err)
	}

	sources := make([]types.Source, 0, len(tr.Results))
	for i, r := range tr.Results {
		if r.URL == "" {
			continue
		}
		s := types.Source{
			Title:     strings.TrimSpace(r.Title),
			URL:       r.URL,
			Snippet:   strings.TrimSpace(r.Content),
			Content:   r.RawContent,
			Backend:   b.Name(),
			Score:     r.Score,
			Published: parseDate(r.PublishedDate),
		}
		if s.Score <= 0 {
			s.Score = positionScore(i, len(tr.Results))
		}
		sources = append(sources, s)
	}
	return sources, nil
}
