// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by components that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "research-mcp/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// SearchConfig holds settings passed to every search backend call.
type SearchConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// MaxResults is the maximum number of results a backend returns per query.
	MaxResults int `json:"max_results" yaml:"max_results" mapstructure:"max_results"`

	// TavilyAPIKey enables the Tavily web search backend.
	TavilyAPIKey string `json:"tavily_api_key,omitempty" yaml:"tavily_api_key,omitempty" mapstructure:"tavily_api_key"`

	// TavilyDepth is "basic" or "advanced".
	TavilyDepth string `json:"tavily_depth,omitempty" yaml:"tavily_depth,omitempty" mapstructure:"tavily_depth"`

	// SemanticScholarAPIKey is an optional API key for higher rate limits.
	SemanticScholarAPIKey string `json:"semantic_scholar_api_key,omitempty" yaml:"semantic_scholar_api_key,omitempty" mapstructure:"semantic_scholar_api_key"`

	// OpenAlexEmail is sent as the mailto parameter for polite pool access.
	OpenAlexEmail string `json:"openalex_email,omitempty" yaml:"openalex_email,omitempty" mapstructure:"openalex_email"`
}

// AIConfig holds settings for the Generative AI API used for planning
// sub-queries and synthesizing reports.
type AIConfig struct {
	// Model is the AI model identifier (e.g. "claude-sonnet-4-5-20250929").
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// APIKey is the authentication key for the AI API. Empty disables
	// LLM-backed planning and synthesis.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// MaxTokens bounds the length of a generated report (default 4096).
	MaxTokens int `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`

	// MaxRetries is the number of retry attempts for rate-limited API calls (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

// EngineConfig configures the research engine.
type EngineConfig struct {
	// Backends lists the enabled search backends by name. Empty enables
	// every backend whose credentials are present.
	Backends []string `json:"backends" yaml:"backends" mapstructure:"backends"`

	// MaxIterations is the number of search rounds a deep research run makes
	// (the initial query plus planned follow-up queries). Default 3.
	MaxIterations int `json:"max_iterations" yaml:"max_iterations" mapstructure:"max_iterations"`

	// DeepMaxSources caps the sources kept by a deep research run (default 20).
	DeepMaxSources int `json:"deep_max_sources" yaml:"deep_max_sources" mapstructure:"deep_max_sources"`

	// QuickMaxSources caps the sources kept by a quick search (default 5).
	QuickMaxSources int `json:"quick_max_sources" yaml:"quick_max_sources" mapstructure:"quick_max_sources"`

	// FetchPages is the number of top sources whose pages a deep run downloads
	// to enrich report synthesis. Zero disables fetching.
	FetchPages int `json:"fetch_pages" yaml:"fetch_pages" mapstructure:"fetch_pages"`

	// Timeout bounds a single engine call (conduct or report). Default 5m.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
}

// CacheConfig configures the topic result cache.
type CacheConfig struct {
	// MaxEntries bounds the in-memory cache; zero means unbounded.
	MaxEntries int `json:"max_entries" yaml:"max_entries" mapstructure:"max_entries"`

	// TTL expires in-memory entries; zero means entries never expire.
	TTL time.Duration `json:"ttl" yaml:"ttl" mapstructure:"ttl"`

	// DBPath enables SQLite persistence of cached results when non-empty.
	DBPath string `json:"db_path" yaml:"db_path" mapstructure:"db_path"`
}

// SessionConfig configures the research session registry.
type SessionConfig struct {
	// Max bounds the number of live sessions; zero means unbounded.
	Max int `json:"max" yaml:"max" mapstructure:"max"`

	// TTL expires sessions after creation; zero means sessions live for the
	// process lifetime.
	TTL time.Duration `json:"ttl" yaml:"ttl" mapstructure:"ttl"`
}

// ServerConfig groups every setting the serve command consumes.
type ServerConfig struct {
	// Transport is "stdio", "sse" or "http". Empty selects automatically.
	Transport string `json:"transport" yaml:"transport" mapstructure:"transport"`

	// Addr is the listen address for network transports (default ":8000").
	Addr string `json:"addr" yaml:"addr" mapstructure:"addr"`

	HTTP     HTTPConfig    `json:"http" yaml:"http" mapstructure:"http"`
	Search   SearchConfig  `json:"search" yaml:"search" mapstructure:"search"`
	AI       AIConfig      `json:"llm" yaml:"llm" mapstructure:"llm"`
	Engine   EngineConfig  `json:"engine" yaml:"engine" mapstructure:"engine"`
	Cache    CacheConfig   `json:"cache" yaml:"cache" mapstructure:"cache"`
	Sessions SessionConfig `json:"sessions" yaml:"sessions" mapstructure:"sessions"`
}
