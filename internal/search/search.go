// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package search queries web and academic search APIs and returns unified,
// deduplicated sources for the research engine.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/research-mcp/pkg/types"
)

// Backend searches a single API. Each backend (Tavily, arXiv, OpenAlex,
// Semantic Scholar) implements this interface.
type Backend interface {
	Name() string
	Search(ctx context.Context, query string, cfg types.SearchConfig) ([]types.Source, error)
}

// ErrAllBackendsFailed is returned when every backend failed for a query.
var ErrAllBackendsFailed = errors.New("all search backends failed")

// Output holds the merged sources and dedup statistics.
type Output struct {
	Sources       []types.Source
	DupsRemoved   int
	BackendErrors []string
}

// Search fans out the query to all backends concurrently, deduplicates
// sources, ranks them, and returns the top cfg.MaxResults. A failing backend
// is logged and skipped; Search fails only when every backend fails.
func Search(ctx context.Context, query string, backends []Backend, cfg types.SearchConfig, logger *zap.Logger) (Output, error) {
	if strings.TrimSpace(query) == "" {
		return Output{}, fmt.Errorf("query is empty")
	}
	if len(backends) == 0 {
		return Output{}, fmt.Errorf("no search backends configured")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		mu            sync.Mutex
		perBackend    = make([][]types.Source, len(backends))
		backendErrors []string
	)

	g, gctx := errgroup.WithContext(ctx)
	for i, b := range backends {
		g.Go(func() error {
			sources, err := b.Search(gctx, query, cfg)
			if err != nil {
				logger.Warn("search backend failed", zap.String("backend", b.Name()), zap.Error(err))
				mu.Lock()
				backendErrors = append(backendErrors, fmt.Sprintf("%s: %v", b.Name(), err))
				mu.Unlock()
				return nil
			}
			perBackend[i] = sources
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return Output{}, err
	}
	if len(backendErrors) == len(backends) {
		return Output{BackendErrors: backendErrors}, fmt.Errorf("%w: %s", ErrAllBackendsFailed, strings.Join(backendErrors, "; "))
	}

	// Backend order is preserved before the stable score sort so ties
	// resolve deterministically.
	var all []types.Source
	for _, sources := range perBackend {
		all = append(all, sources...)
	}

	deduped, removed := Deduplicate(all)
	sort.SliceStable(deduped, func(i, j int) bool {
		return deduped[i].Score > deduped[j].Score
	})
	if cfg.MaxResults > 0 && len(deduped) > cfg.MaxResults {
		deduped = deduped[:cfg.MaxResults]
	}

	return Output{
		Sources:       deduped,
		DupsRemoved:   removed,
		BackendErrors: backendErrors,
	}, nil
}

// Deduplicate merges sources that share a normalized URL or title. The first
// occurrence keeps its position; later duplicates fill its empty fields.
func Deduplicate(sources []types.Source) ([]types.Source, int) {
	seen := make(map[string]int) // dedup key → index in deduped
	var deduped []types.Source
	removed := 0

	for _, s := range sources {
		urlKey := ""
		if u := NormalizeURL(s.URL); u != "" {
			urlKey = "url:" + u
		}
		titleKey := ""
		if t := normalizeTitle(s.Title); t != "" {
			titleKey = "title:" + t
		}

		if idx, ok := lookup(seen, urlKey, titleKey); ok {
			mergeInto(&deduped[idx], s)
			removed++
			continue
		}

		idx := len(deduped)
		deduped = append(deduped, s)
		if urlKey != "" {
			seen[urlKey] = idx
		}
		if titleKey != "" {
			seen[titleKey] = idx
		}
	}
	return deduped, removed
}

func lookup(seen map[string]int, keys ...string) (int, bool) {
	for _, k := range keys {
		if k == "" {
			continue
		}
		if idx, ok := seen[k]; ok {
			return idx, true
		}
	}
	return 0, false
}

// mergeInto fills empty fields of dst from src and keeps the higher score.
func mergeInto(dst *types.Source, src types.Source) {
	if dst.Title == "" {
		dst.Title = src.Title
	}
	if dst.URL == "" {
		dst.URL = src.URL
	}
	if dst.Snippet == "" {
		dst.Snippet = src.Snippet
	}
	if len(src.Content) > len(dst.Content) {
		dst.Content = src.Content
	}
	if dst.Published.IsZero() {
		dst.Published = src.Published
	}
	if src.Score > dst.Score {
		dst.Score = src.Score
	}
	if src.Backend != "" && !strings.Contains(dst.Backend, src.Backend) {
		if dst.Backend == "" {
			dst.Backend = src.Backend
		} else {
			dst.Backend = dst.Backend + "," + src.Backend
		}
	}
}

// NormalizeURL lowercases scheme and host, drops the fragment, a trailing
// slash and a leading "www.", so that trivially different links dedup.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.ToLower(raw)
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	path := strings.TrimSuffix(u.EscapedPath(), "/")
	out := host + path
	if u.RawQuery != "" {
		out += "?" + u.RawQuery
	}
	return out
}

// normalizeTitle returns a lowercased, punctuation-stripped version of the title.
func normalizeTitle(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// positionScore gives results a relevance score from their rank in a
// backend's response: 1.0 for the first, decreasing linearly to 0.1.
func positionScore(i, total int) float64 {
	if total <= 1 {
		return 1.0
	}
	return 1.0 - float64(i)/float64(total-1)*0.9
}

// FormatTable writes sources as a human-readable table to w.
func FormatTable(out Output, w io.Writer) {
	if len(out.Sources) == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}

	fmt.Fprintf(w, "%-4s  %-60s  %-6s  %-18s  %s\n", "Rank", "Title", "Score", "Backend", "URL")
	fmt.Fprintln(w, strings.Repeat("-", 120))

	for i, s := range out.Sources {
		fmt.Fprintf(w, "%-4d  %-60s  %-6.2f  %-18s  %s\n",
			i+1, truncate(s.Title, 60), s.Score, truncate(s.Backend, 18), s.URL)
	}

	fmt.Fprintf(w, "\n%d results", len(out.Sources))
	if out.DupsRemoved > 0 {
		fmt.Fprintf(w, " (%d duplicates removed)", out.DupsRemoved)
	}
	fmt.Fprintln(w)
}

// FormatJSON writes sources as indented JSON to w.
func FormatJSON(out Output, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out.Sources)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
