// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/pdiddy/research-mcp/internal/envelope"
)

// Name is the MCP implementation name.
const Name = "research-mcp"

// ResourceScheme prefixes topic resource URIs.
const ResourceScheme = "research://"

const instructions = `Autonomous research tools backed by academic and web search.
Use deep_research for thorough multi-round research or quick_search for a fast single pass.
Both return a session_id. Pass it to write_report, get_research_sources or get_research_context.
Read research://{topic} for cached context on a topic.`

// Tool inputs. Fields are optional in the schema so that missing values
// reach the handler and come back as validation envelopes. research_id is
// accepted as an alias of session_id.
type (
	queryInput struct {
		Query string `json:"query,omitempty" jsonschema:"the research question or topic"`
	}
	reportInput struct {
		SessionID    string `json:"session_id,omitempty" jsonschema:"id returned by deep_research or quick_search"`
		ResearchID   string `json:"research_id,omitempty" jsonschema:"alias of session_id"`
		CustomPrompt string `json:"custom_prompt,omitempty" jsonschema:"extra instructions for the report writer"`
		ReportFormat string `json:"report_format,omitempty" jsonschema:"markdown (default) or plain"`
	}
	sourcesInput struct {
		SessionID  string `json:"session_id,omitempty" jsonschema:"id returned by deep_research or quick_search"`
		ResearchID string `json:"research_id,omitempty" jsonschema:"alias of session_id"`
	}
	contextInput struct {
		SessionID     string `json:"session_id,omitempty" jsonschema:"id returned by deep_research or quick_search"`
		ResearchID    string `json:"research_id,omitempty" jsonschema:"alias of session_id"`
		WithCitations bool   `json:"with_citations,omitempty" jsonschema:"append a numbered reference list"`
	}
)

// sessionID prefers the session_id argument over its research_id alias.
func sessionID(id, alias string) string {
	if id != "" {
		return id
	}
	return alias
}

// New returns an MCP server exposing svc.
func New(svc *Service, version string) *mcp.Server {
	s := mcp.NewServer(&mcp.Implementation{
		Name:    Name,
		Title:   "Research MCP",
		Version: version,
	}, &mcp.ServerOptions{Instructions: instructions})

	mcp.AddTool(s, &mcp.Tool{
		Name:        "deep_research",
		Description: "Research a query in depth across several search rounds. Returns a session_id, the gathered context and the sources. Can take minutes.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in queryInput) (*mcp.CallToolResult, envelope.Envelope, error) {
		return toolResult(svc.DeepResearch(ctx, in.Query))
	})

	mcp.AddTool(s, &mcp.Tool{
		Name:        "quick_search",
		Description: "Run a single fast search pass on a query. Returns a session_id, the context and the sources.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in queryInput) (*mcp.CallToolResult, envelope.Envelope, error) {
		return toolResult(svc.QuickSearch(ctx, in.Query))
	})

	mcp.AddTool(s, &mcp.Tool{
		Name:        "write_report",
		Description: "Write a report from a completed research session.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in reportInput) (*mcp.CallToolResult, envelope.Envelope, error) {
		return toolResult(svc.WriteReport(ctx, sessionID(in.SessionID, in.ResearchID), in.CustomPrompt, in.ReportFormat))
	})

	mcp.AddTool(s, &mcp.Tool{
		Name:        "get_research_sources",
		Description: "List the sources gathered by a research session.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in sourcesInput) (*mcp.CallToolResult, envelope.Envelope, error) {
		return toolResult(svc.GetSources(ctx, sessionID(in.SessionID, in.ResearchID)))
	})

	mcp.AddTool(s, &mcp.Tool{
		Name:        "get_research_context",
		Description: "Return the context text of a research session, optionally with a reference list.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in contextInput) (*mcp.CallToolResult, envelope.Envelope, error) {
		return toolResult(svc.GetContext(ctx, sessionID(in.SessionID, in.ResearchID), in.WithCitations))
	})

	s.AddResourceTemplate(&mcp.ResourceTemplate{
		Name:        "research_topic",
		Title:       "Research topic",
		URITemplate: ResourceScheme + "{topic}",
		Description: "Research context for a topic. The first read of a topic runs deep research and can take tens of seconds; later reads are served from cache.",
		MIMEType:    "text/markdown",
	}, svc.handleResource)

	s.AddPrompt(&mcp.Prompt{
		Name:        "research_query",
		Title:       "Research a topic",
		Description: "Instructions for researching a topic with this server's tools.",
		Arguments: []*mcp.PromptArgument{
			{Name: "topic", Description: "topic to research", Required: true},
			{Name: "goal", Description: "what the research should achieve"},
		},
	}, svc.handlePrompt)

	return s
}

// toolResult marks error envelopes on the protocol result. Content is left
// nil so the SDK fills it with the envelope JSON.
func toolResult(env envelope.Envelope) (*mcp.CallToolResult, envelope.Envelope, error) {
	return &mcp.CallToolResult{IsError: env.IsError()}, env, nil
}

func (s *Service) handleResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := req.Params.URI
	topic, err := TopicFromURI(uri)
	if err != nil || strings.TrimSpace(topic) == "" {
		return nil, mcp.ResourceNotFoundError(uri)
	}
	text, err := s.ReadTopic(ctx, topic)
	if err != nil {
		return resourceError(uri, envelope.HandleError(s.logger, err, "research_resource"))
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "text/markdown",
			Text:     text,
		}},
	}, nil
}

// resourceError returns env as the resource body so a failed read reaches
// the client as a summarized error envelope instead of a protocol error.
func resourceError(uri string, env envelope.Envelope) (*mcp.ReadResourceResult, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encoding error envelope: %w", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// TopicFromURI extracts the percent-decoded topic from a research:// URI.
func TopicFromURI(uri string) (string, error) {
	rest, ok := strings.CutPrefix(uri, ResourceScheme)
	if !ok {
		return "", fmt.Errorf("%w: %q is not a %s URI", envelope.ErrValidation, uri, ResourceScheme)
	}
	topic, err := url.PathUnescape(rest)
	if err != nil {
		return "", fmt.Errorf("%w: decoding topic: %v", envelope.ErrValidation, err)
	}
	return topic, nil
}

// TopicURI returns the resource URI for topic.
func TopicURI(topic string) string {
	return ResourceScheme + url.PathEscape(topic)
}
