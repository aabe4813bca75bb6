// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/research-mcp/internal/httputil"
	"github.com/pdiddy/research-mcp/pkg/types"
)

// semanticAPIBase is the Semantic Scholar paper search endpoint. Declared
// as a var so tests can substitute an httptest server.
var semanticAPIBase = "https://api.semanticscholar.org/graph/v1/paper/search"

const semanticFields = "title,abstract,url,externalIds,year,publicationDate,tldr"

// SemanticScholarBackend queries the Semantic Scholar API.
type SemanticScholarBackend struct {
	Client *http.Client
	APIKey string
	Logger *zap.Logger
}

// Name returns the backend identifier.
func (b *SemanticScholarBackend) Name() string { return "semantic_scholar" }

// Search queries the Semantic Scholar API and returns papers as sources.
// arXiv papers link to their arXiv abstract page so they dedup with the
// arXiv backend.
func (b *SemanticScholarBackend) Search(ctx context.Context, query string, cfg types.SearchConfig) ([]types.Source, error) {
	q := strings.Join(strings.Fields(query), " ")
	if q == "" {
		return nil, fmt.Errorf("empty Semantic Scholar query")
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 20
	}

	params := url.Values{
		"query":  {q},
		"limit":  {strconv.Itoa(maxResults)},
		"fields": {semanticFields},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, semanticAPIBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", cfg.UserAgent)
	apiKey := b.APIKey
	if apiKey == "" {
		apiKey = cfg.SemanticScholarAPIKey
	}
	if apiKey != "" {
		req.Header.Set("x-api-key", apiKey)
	}

	resp, err := httputil.DoWithRetry(ctx, b.Client, req, 0, b.Logger)
	if err != nil {
		return nil, fmt.Errorf("Semantic Scholar API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Semantic Scholar API returned HTTP %d", resp.StatusCode)
	}

	var sr semanticResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("parsing Semantic Scholar response: %w", err)
	}

	total := len(sr.Data)
	var sources []types.Source
	for i, paper := range sr.Data {
		s := types.Source{
			Title:   paper.Title,
			URL:     semanticLink(paper),
			Snippet: paper.Abstract,
			Backend: b.Name(),
			Score:   positionScore(i, total),
		}
		if s.URL == "" {
			continue
		}
		if s.Snippet == "" && paper.TLDR != nil {
			s.Snippet = paper.TLDR.Text
		}
		if paper.PublicationDate != "" {
			s.Published = parseDate(paper.PublicationDate)
		} else if paper.Year > 0 {
			s.Published = time.Date(paper.Year, 1, 1, 0, 0, 0, 0, time.UTC)
		}
		sources = append(sources, s)
	}
	return sources, nil
}

// semanticLink prefers the arXiv abstract page, then the DOI link, then the
// Semantic Scholar page.
func semanticLink(p semanticPaper) string {
	switch {
	case p.ExternalIDs.ArXiv != "":
		return "https://arxiv.org/abs/" + p.ExternalIDs.ArXiv
	case p.ExternalIDs.DOI != "":
		return "https://doi.org/" + p.ExternalIDs.DOI
	default:
		return p.URL
	}
}

// Semantic Scholar API JSON structures.
type semanticResponse struct {
	Total int             `json:"total"`
	Data  []semanticPaper `json:"data"`
}

type semanticPaper struct {
	PaperID         string              `json:"paperId"`
	Title           string              `json:"title"`
	Abstract        string              `json:"abstract"`
	URL             string              `json:"url"`
	Year            int                 `json:"year"`
	PublicationDate string              `json:"publicationDate"`
	ExternalIDs     semanticExternalIDs `json:"externalIds"`
	TLDR            *semanticTLDR       `json:"tldr"`
}

type semanticExternalIDs struct {
	DOI   string `json:"DOI"`
	ArXiv string `json:"ArXiv"`
}

type semanticTLDR struct {
	Text string `json:"text"`
}
