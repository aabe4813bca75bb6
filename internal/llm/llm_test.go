// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/research-mcp/pkg/types"
)

// claudeServer returns an httptest server that replies with text as a single
// content block and records the last request.
func claudeServer(t *testing.T, status int, text string, got *claudeRequest) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		if got != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(got))
		}
		w.WriteHeader(status)
		if status != http.StatusOK {
			fmt.Fprint(w, `{"error":{"message":"bad"}}`)
			return
		}
		_ = json.NewEncoder(w).Encode(claudeResponse{
			Content:    []claudeContent{{Type: "text", Text: text}},
			StopReason: "end_turn",
		})
	}))
	old := claudeAPIURL
	claudeAPIURL = ts.URL
	t.Cleanup(func() {
		claudeAPIURL = old
		ts.Close()
	})
	return ts
}

func testClient(t *testing.T, ts *httptest.Server) *Client {
	t.Helper()
	c, err := New(types.AIConfig{APIKey: "test-key"}, ts.Client(), nil)
	require.NoError(t, err)
	return c
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New(types.AIConfig{APIKey: "  "}, nil, nil)
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestNewDefaults(t *testing.T) {
	c, err := New(types.AIConfig{APIKey: "k"}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, defaultModel, c.Model)
	assert.Equal(t, defaultMaxTokens, c.MaxTokens)
	assert.NotNil(t, c.HTTP)
	assert.NotNil(t, c.Logger)
}

func TestComplete(t *testing.T) {
	var got claudeRequest
	ts := claudeServer(t, http.StatusOK, "hello", &got)
	c := testClient(t, ts)

	out, err := c.Complete(context.Background(), "sys", "prompt")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.Equal(t, "sys", got.System)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "prompt", got.Messages[0].Content)
}

func TestCompleteHTTPError(t *testing.T) {
	ts := claudeServer(t, http.StatusBadRequest, "", nil)
	c := testClient(t, ts)

	_, err := c.Complete(context.Background(), "", "prompt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Claude API returned 400")
}

func TestCompleteEmptyContent(t *testing.T) {
	ts := claudeServer(t, http.StatusOK, "", nil)
	c := testClient(t, ts)

	_, err := c.Complete(context.Background(), "", "prompt")
	assert.ErrorContains(t, err, "no text content")
}

func TestPlanQueries(t *testing.T) {
	reply := "```json\n{\"queries\": [\"solar panel recycling\", \"Quantum Computing\", \"  \", \"solar  panel recycling\", \"perovskite durability\"]}\n```"
	var got claudeRequest
	ts := claudeServer(t, http.StatusOK, reply, &got)
	c := testClient(t, ts)

	known := []types.Source{{Title: "First paper"}, {Title: "Second paper"}}
	queries, err := c.PlanQueries(context.Background(), "quantum computing", known, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"solar panel recycling", "perovskite durability"}, queries)

	prompt := got.Messages[0].Content
	assert.Contains(t, prompt, "[1] First paper")
	assert.Contains(t, prompt, "[2] Second paper")
	assert.Contains(t, prompt, "up to 2 new")
}

func TestPlanQueriesZero(t *testing.T) {
	c := &Client{}
	queries, err := c.PlanQueries(context.Background(), "q", nil, 0)
	require.NoError(t, err)
	assert.Nil(t, queries)
}

func TestPlanQueriesBadJSON(t *testing.T) {
	ts := claudeServer(t, http.StatusOK, "I think you should search for cats.", nil)
	c := testClient(t, ts)

	_, err := c.PlanQueries(context.Background(), "q", nil, 3)
	assert.ErrorContains(t, err, "parsing plan JSON")
}

func TestWriteReport(t *testing.T) {
	var got claudeRequest
	ts := claudeServer(t, http.StatusOK, "  # Report\n\nBody [1]\n", &got)
	c := testClient(t, ts)

	report, err := c.WriteReport(context.Background(), ReportRequest{
		Query:        "What is X?",
		Context:      "ctx text",
		CustomPrompt: "Focus on costs.",
		Sources: []types.Source{
			{Title: "A", URL: "https://a.example", Snippet: "snippet a"},
			{Title: "B", URL: "https://b.example", Content: "full text b"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "# Report\n\nBody [1]", report)

	prompt := got.Messages[0].Content
	assert.Contains(t, prompt, "Output format: markdown.")
	assert.Contains(t, prompt, "Focus on costs.")
	assert.Contains(t, prompt, "[1] A - https://a.example\nsnippet a")
	assert.Contains(t, prompt, "[2] B - https://b.example\nfull text b")
}

func TestStripFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFence(`  {"a":1} `))
}
