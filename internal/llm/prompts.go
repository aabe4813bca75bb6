// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/pdiddy/research-mcp/pkg/types"
)

const researcherSystem = "You are a meticulous research assistant. You only state what the provided sources support and you cite them by number."

// planPromptTmpl asks for follow-up search queries that cover gaps in the
// sources gathered so far.
var planPromptTmpl = template.Must(template.New("plan").Funcs(funcs).Parse(`We are researching: {{.Query}}

Sources gathered so far:
{{range $i, $s := .Sources}}[{{inc $i}}] {{$s.Title}}
{{end}}
Propose up to {{.N}} new web search queries that would fill the most important gaps in this research. Each query should be short (under 12 words) and differ from the original question and from each other.

Respond with a JSON object of the form {"queries": ["...", "..."]}. Do not include any text outside the JSON object.
`))

// reportPromptTmpl drives report synthesis over numbered sources.
var reportPromptTmpl = template.Must(template.New("report").Funcs(funcs).Parse(`Write a research report answering: {{.Query}}

Output format: {{.Format}}.
{{- if .CustomPrompt}}

Additional instructions from the user:
{{.CustomPrompt}}
{{- end}}

Cite sources inline with their bracketed number, e.g. [1] or [2][3]. Only cite the numbers listed below. End with a "References" section listing every cited source as "[n] Title - URL".

Research context:
{{.Context}}

Sources:
{{range $i, $s := .Sources}}[{{inc $i}}] {{$s.Title}} - {{$s.URL}}
{{- if $s.Content}}
{{$s.Content}}
{{- else if $s.Snippet}}
{{$s.Snippet}}
{{- end}}

{{end}}`))

var funcs = template.FuncMap{"inc": func(i int) int { return i + 1 }}

// ReportRequest carries everything report synthesis needs.
type ReportRequest struct {
	Query        string
	Context      string
	Sources      []types.Source
	CustomPrompt string
	// Format is a free-form output format such as "markdown" or "plain text".
	Format string
}

// PlanQueries asks the model for up to n follow-up queries for query given
// the sources gathered so far.
func (c *Client) PlanQueries(ctx context.Context, query string, known []types.Source, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	err := planPromptTmpl.Execute(&buf, struct {
		Query   string
		Sources []types.Source
		N       int
	}{query, known, n})
	if err != nil {
		return nil, fmt.Errorf("rendering plan prompt: %w", err)
	}

	text, err := c.Complete(ctx, researcherSystem, buf.String())
	if err != nil {
		return nil, err
	}
	return parseQueries(text, query, n)
}

// WriteReport asks the model to synthesize a report over req's sources.
func (c *Client) WriteReport(ctx context.Context, req ReportRequest) (string, error) {
	if req.Format == "" {
		req.Format = "markdown"
	}
	var buf bytes.Buffer
	if err := reportPromptTmpl.Execute(&buf, req); err != nil {
		return "", fmt.Errorf("rendering report prompt: %w", err)
	}
	text, err := c.Complete(ctx, researcherSystem, buf.String())
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// parseQueries decodes the {"queries": [...]} reply, tolerating a Markdown
// code fence around the JSON. Blank entries and echoes of the original
// query are dropped and the list is capped at n.
func parseQueries(text, original string, n int) ([]string, error) {
	text = stripFence(text)
	var reply struct {
		Queries []string `json:"queries"`
	}
	if err := json.Unmarshal([]byte(text), &reply); err != nil {
		return nil, fmt.Errorf("parsing plan JSON: %w", err)
	}

	seen := map[string]bool{strings.ToLower(strings.TrimSpace(original)): true}
	var out []string
	for _, q := range reply.Queries {
		q = strings.Join(strings.Fields(q), " ")
		key := strings.ToLower(q)
		if q == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, q)
		if len(out) == n {
			break
		}
	}
	return out, nil
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
