// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServer(status int, body string, inspect func(*http.Request)) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if inspect != nil {
			inspect(r)
		}
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
}

// --- arXiv ---

const arxivFeedXML = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/1706.03762v7</id>
    <title>Attention Is
      All You Need</title>
    <summary>  The dominant sequence transduction models ...  </summary>
    <published>2017-06-12T17:57:34Z</published>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2005.14165v4</id>
    <title>Language Models are Few-Shot Learners</title>
    <summary>Recent work has demonstrated substantial gains.</summary>
    <published>2020-05-28T17:29:03Z</published>
  </entry>
  <entry>
    <id>malformed</id>
    <title>Skipped</title>
  </entry>
</feed>`

func TestArxivSearch(t *testing.T) {
	var gotQuery string
	ts := testServer(http.StatusOK, arxivFeedXML, func(r *http.Request) {
		gotQuery = r.URL.Query().Get("search_query")
	})
	defer ts.Close()

	old := arxivAPIBase
	arxivAPIBase = ts.URL
	defer func() { arxivAPIBase = old }()

	b := &ArxivBackend{Client: ts.Client()}
	sources, err := b.Search(context.Background(), "transformer  attention", testCfg())
	require.NoError(t, err)

	assert.Equal(t, "all:transformer AND all:attention", gotQuery)
	require.Len(t, sources, 2)
	assert.Equal(t, "Attention Is All You Need", sources[0].Title)
	assert.Equal(t, "https://arxiv.org/abs/1706.03762", sources[0].URL)
	assert.Equal(t, "The dominant sequence transduction models ...", sources[0].Snippet)
	assert.Equal(t, "arxiv", sources[0].Backend)
	assert.Equal(t, 2017, sources[0].Published.Year())
	assert.Greater(t, sources[0].Score, sources[1].Score)
}

func TestArxivSearchErrors(t *testing.T) {
	ts := testServer(http.StatusInternalServerError, "", nil)
	defer ts.Close()

	old := arxivAPIBase
	arxivAPIBase = ts.URL
	defer func() { arxivAPIBase = old }()

	b := &ArxivBackend{Client: ts.Client()}
	_, err := b.Search(context.Background(), "q", testCfg())
	assert.ErrorContains(t, err, "HTTP 500")

	_, err = b.Search(context.Background(), "  ", testCfg())
	assert.Error(t, err)
}

func TestExtractArxivID(t *testing.T) {
	tests := []struct{ in, want string }{
		{"http://arxiv.org/abs/2301.07041v1", "2301.07041"},
		{"http://arxiv.org/abs/2301.07041", "2301.07041"},
		{"http://arxiv.org/abs/hep-th/9901001v2", "hep-th/9901001"},
		{"no-id-here", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, extractArxivID(tt.in), "extractArxivID(%q)", tt.in)
	}
}

// --- OpenAlex ---

func TestOpenAlexSearch(t *testing.T) {
	body := `{"results":[
		{"id":"https://openalex.org/W1","title":"With DOI","doi":"https://doi.org/10.1/abc",
		 "publication_date":"2021-03-04",
		 "abstract_inverted_index":{"world":[1],"hello":[0]}},
		{"id":"https://openalex.org/W2","title":"Open access only","publication_year":2019,
		 "open_access":{"is_oa":true,"oa_url":"https://repo.example/paper.pdf"}},
		{"id":"https://openalex.org/W3","title":"Bare"},
		{"title":"No link"}
	]}`
	var gotMailto, gotSearch string
	ts := testServer(http.StatusOK, body, func(r *http.Request) {
		gotMailto = r.URL.Query().Get("mailto")
		gotSearch = r.URL.Query().Get("search")
	})
	defer ts.Close()

	old := openAlexSearchBase
	openAlexSearchBase = ts.URL
	defer func() { openAlexSearchBase = old }()

	cfg := testCfg()
	cfg.OpenAlexEmail = "cfg@example.com"
	b := &OpenAlexBackend{Client: ts.Client()}
	sources, err := b.Search(context.Background(), " graph   neural nets ", cfg)
	require.NoError(t, err)

	assert.Equal(t, "cfg@example.com", gotMailto)
	assert.Equal(t, "graph neural nets", gotSearch)
	require.Len(t, sources, 3)
	assert.Equal(t, "https://doi.org/10.1/abc", sources[0].URL)
	assert.Equal(t, "hello world", sources[0].Snippet)
	assert.Equal(t, 2021, sources[0].Published.Year())
	assert.Equal(t, "https://repo.example/paper.pdf", sources[1].URL)
	assert.Equal(t, 2019, sources[1].Published.Year())
	assert.Equal(t, "https://openalex.org/W3", sources[2].URL)
}

func TestOpenAlexEmailOverride(t *testing.T) {
	var gotMailto string
	ts := testServer(http.StatusOK, `{"results":[]}`, func(r *http.Request) {
		gotMailto = r.URL.Query().Get("mailto")
	})
	defer ts.Close()

	old := openAlexSearchBase
	openAlexSearchBase = ts.URL
	defer func() { openAlexSearchBase = old }()

	cfg := testCfg()
	cfg.OpenAlexEmail = "cfg@example.com"
	b := &OpenAlexBackend{Client: ts.Client(), Email: "own@example.com"}
	sources, err := b.Search(context.Background(), "q", cfg)
	require.NoError(t, err)
	assert.Empty(t, sources)
	assert.Equal(t, "own@example.com", gotMailto)
}

func TestOpenAlexBadJSON(t *testing.T) {
	ts := testServer(http.StatusOK, "{not json", nil)
	defer ts.Close()

	old := openAlexSearchBase
	openAlexSearchBase = ts.URL
	defer func() { openAlexSearchBase = old }()

	b := &OpenAlexBackend{Client: ts.Client()}
	_, err := b.Search(context.Background(), "q", testCfg())
	assert.ErrorContains(t, err, "parsing OpenAlex response")
}

func TestReconstructAbstract(t *testing.T) {
	assert.Equal(t, "", reconstructAbstract(nil))
	idx := map[string][]int{"the": {0, 3}, "cat": {1}, "saw": {2}, "dog": {4}}
	assert.Equal(t, "the cat saw the dog", reconstructAbstract(idx))
}

// --- Semantic Scholar ---

func TestSemanticScholarSearch(t *testing.T) {
	body := `{"total":3,"data":[
		{"paperId":"p1","title":"Arxiv paper","abstract":"abs","url":"https://www.semanticscholar.org/paper/p1",
		 "externalIds":{"ArXiv":"1706.03762","DOI":"10.1/x"},"publicationDate":"2017-06-12"},
		{"paperId":"p2","title":"DOI paper","url":"https://www.semanticscholar.org/paper/p2",
		 "externalIds":{"DOI":"10.2/y"},"year":2020,"tldr":{"text":"short summary"}},
		{"paperId":"p3","title":"No link","externalIds":{}}
	]}`
	var gotKey, gotFields string
	ts := testServer(http.StatusOK, body, func(r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		gotFields = r.URL.Query().Get("fields")
	})
	defer ts.Close()

	old := semanticAPIBase
	semanticAPIBase = ts.URL
	defer func() { semanticAPIBase = old }()

	cfg := testCfg()
	cfg.SemanticScholarAPIKey = "s2-key"
	b := &SemanticScholarBackend{Client: ts.Client()}
	sources, err := b.Search(context.Background(), "attention", cfg)
	require.NoError(t, err)

	assert.Equal(t, "s2-key", gotKey)
	assert.Equal(t, semanticFields, gotFields)
	require.Len(t, sources, 2)
	assert.Equal(t, "https://arxiv.org/abs/1706.03762", sources[0].URL)
	assert.Equal(t, "abs", sources[0].Snippet)
	assert.Equal(t, "https://doi.org/10.2/y", sources[1].URL)
	assert.Equal(t, "short summary", sources[1].Snippet)
	assert.Equal(t, 2020, sources[1].Published.Year())
}

func TestSemanticScholarHTTPError(t *testing.T) {
	ts := testServer(http.StatusForbidden, `{"message":"Forbidden"}`, nil)
	defer ts.Close()

	old := semanticAPIBase
	semanticAPIBase = ts.URL
	defer func() { semanticAPIBase = old }()

	b := &SemanticScholarBackend{Client: ts.Client()}
	_, err := b.Search(context.Background(), "q", testCfg())
	assert.ErrorContains(t, err, "HTTP 403")
}

// --- Tavily ---

func TestTavilySearch(t *testing.T) {
	body := `{"results":[
		{"title":"Go blog","url":"https://go.dev/blog","content":"snippet one","score":0.93,"published_date":"2024-01-02"},
		{"title":"Unscored","url":"https://example.com/x","content":"snippet two"},
		{"title":"No url","url":""}
	]}`
	var got tavilyRequest
	var gotAuth string
	ts := testServer(http.StatusOK, body, func(r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
	})
	defer ts.Close()

	old := tavilyAPIBase
	tavilyAPIBase = ts.URL
	defer func() { tavilyAPIBase = old }()

	cfg := testCfg()
	cfg.MaxResults = 50
	b := &TavilyBackend{Client: ts.Client(), APIKey: "tvly-test", Depth: "advanced"}
	sources, err := b.Search(context.Background(), "golang generics", cfg)
	require.NoError(t, err)

	assert.Equal(t, "Bearer tvly-test", gotAuth)
	assert.Equal(t, "golang generics", got.Query)
	assert.Equal(t, "advanced", got.SearchDepth)
	assert.Equal(t, 20, got.MaxResults)
	assert.True(t, got.IncludeRawContent)

	require.Len(t, sources, 2)
	assert.InDelta(t, 0.93, sources[0].Score, 1e-9)
	assert.Equal(t, 2024, sources[0].Published.Year())
	assert.Equal(t, "tavily", sources[1].Backend)
	assert.Greater(t, sources[1].Score, 0.0)
}

func TestTavilyRequiresKey(t *testing.T) {
	b := &TavilyBackend{Client: http.DefaultClient}
	_, err := b.Search(context.Background(), "q", testCfg())
	assert.ErrorContains(t, err, "API key is missing")
}
