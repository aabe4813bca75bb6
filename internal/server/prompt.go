// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const defaultGoal = "a thorough, well-sourced understanding of the topic"

// ResearchQueryPrompt returns instructions that walk an assistant through
// researching topic with the server's tools. An empty goal selects a
// general-purpose one.
func ResearchQueryPrompt(topic, goal string) string {
	topic = strings.TrimSpace(topic)
	goal = strings.TrimSpace(goal)
	if goal == "" {
		goal = defaultGoal
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Research the following topic: %s\n\n", topic)
	fmt.Fprintf(&b, "Goal: %s\n\n", goal)
	b.WriteString("Steps:\n")
	fmt.Fprintf(&b, "1. Call deep_research with a focused query about %q. Use quick_search instead if a brief answer is enough.\n", topic)
	b.WriteString("2. Review the returned context and sources. Note gaps or disagreements between sources.\n")
	b.WriteString("3. Call get_research_context with with_citations set to true when you need the numbered references.\n")
	b.WriteString("4. Call write_report with the session_id to produce a structured report tailored to the goal.\n")
	b.WriteString("5. Summarize the key findings, citing sources by their [n] markers.\n")
	return b.String()
}

func (s *Service) handlePrompt(_ context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	args := req.Params.Arguments
	topic := strings.TrimSpace(args["topic"])
	if topic == "" {
		return nil, fmt.Errorf("research_query: argument %q is required", "topic")
	}
	return &mcp.GetPromptResult{
		Description: "Research plan for " + topic,
		Messages: []*mcp.PromptMessage{{
			Role:    "user",
			Content: &mcp.TextContent{Text: ResearchQueryPrompt(topic, args["goal"])},
		}},
	}, nil
}
