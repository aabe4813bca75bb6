// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for research-mcp: the sources
// a research engine gathers, the result bundle the topic cache stores, and
// the configuration structs loaded through viper.
package types

import "time"

// Source is a single document gathered while researching a query.
type Source struct {
	// Title is the document title as returned by the backend.
	Title string `json:"title" yaml:"title"`

	// URL locates the document. It is the dedup key across backends.
	URL string `json:"url" yaml:"url"`

	// Snippet is a short excerpt or abstract suitable for display.
	Snippet string `json:"snippet,omitempty" yaml:"snippet,omitempty"`

	// Content is the longer body text when a backend or fetcher supplied it.
	// It feeds report synthesis and is never returned to clients directly.
	Content string `json:"content,omitempty" yaml:"content,omitempty"`

	// Backend names the search backend that found the source
	// (e.g. "tavily", "arxiv", "openalex", "semantic_scholar").
	Backend string `json:"backend,omitempty" yaml:"backend,omitempty"`

	// Score is a value between 0.0 and 1.0 indicating relevance to the query.
	Score float64 `json:"score,omitempty" yaml:"score,omitempty"`

	// Published is the publication date, zero when unknown.
	Published time.Time `json:"published,omitempty" yaml:"published,omitempty"`
}

// Result is the bundle a completed research run produces and the topic
// cache stores: the context text, the ordered sources and their raw URLs.
type Result struct {
	Context    string    `json:"context" yaml:"context"`
	Sources    []Source  `json:"sources" yaml:"sources"`
	SourceURLs []string  `json:"source_urls" yaml:"source_urls"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
}

// Clone returns a deep copy of r so that callers cannot mutate a stored entry.
func (r Result) Clone() Result {
	out := r
	if r.Sources != nil {
		out.Sources = make([]Source, len(r.Sources))
		copy(out.Sources, r.Sources)
	}
	if r.SourceURLs != nil {
		out.SourceURLs = make([]string, len(r.SourceURLs))
		copy(out.SourceURLs, r.SourceURLs)
	}
	return out
}

// URLs returns the source URLs in source order, skipping empty ones.
func URLs(sources []Source) []string {
	urls := make([]string, 0, len(sources))
	for _, s := range sources {
		if s.URL != "" {
			urls = append(urls, s.URL)
		}
	}
	return urls
}
