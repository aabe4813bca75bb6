// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package engine

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pdiddy/research-mcp/pkg/types"
)

// numericCiteRe matches numeric citations like [1], [12].
var numericCiteRe = regexp.MustCompile(`\[(\d+)\]`)

// BuildContext renders the research context: one numbered block per source
// so that reports and clients can cite by [n].
func BuildContext(query string, sources []types.Source) string {
	if len(sources) == 0 {
		return fmt.Sprintf("No sources were found for %q.", query)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Research findings for %q from %d sources.\n", query, len(sources))
	for i, s := range sources {
		fmt.Fprintf(&b, "\n[%d] %s\n", i+1, sourceTitle(s))
		if text := excerpt(s); text != "" {
			b.WriteString(text)
			b.WriteString("\n")
		}
		if s.URL != "" {
			fmt.Fprintf(&b, "Source: %s\n", s.URL)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// DraftReport builds a report without an LLM: a summary line, one finding
// per source with its citation, and a reference list.
func DraftReport(query string, sources []types.Source, format, customPrompt string) string {
	plain := format == "plain" || format == "text"
	heading := func(level int, text string) string {
		if plain {
			return strings.ToUpper(text)
		}
		return strings.Repeat("#", level) + " " + text
	}
	bullet := "- "
	if plain {
		bullet = "* "
	}

	var b strings.Builder
	b.WriteString(heading(1, "Research report: "+query))
	b.WriteString("\n\n")
	if customPrompt != "" {
		fmt.Fprintf(&b, "Focus: %s\n\n", strings.TrimSpace(customPrompt))
	}
	if len(sources) == 0 {
		b.WriteString("No sources were found for this query.\n")
		return b.String()
	}

	b.WriteString(heading(2, "Summary"))
	fmt.Fprintf(&b, "\n\nThis report draws on %d sources gathered for %q.\n\n", len(sources), query)

	b.WriteString(heading(2, "Findings"))
	b.WriteString("\n\n")
	for i, s := range sources {
		text := excerpt(s)
		if text == "" {
			text = sourceTitle(s)
		}
		fmt.Fprintf(&b, "%s%s [%d]\n", bullet, firstSentence(text), i+1)
	}

	b.WriteString("\n")
	b.WriteString(heading(2, "References"))
	b.WriteString("\n\n")
	for i, s := range sources {
		fmt.Fprintf(&b, "[%d] %s - %s\n", i+1, sourceTitle(s), s.URL)
	}
	return b.String()
}

// InvalidCitations returns the distinct numeric citations in text that fall
// outside 1..n, in ascending order.
func InvalidCitations(text string, n int) []int {
	seen := make(map[int]bool)
	var bad []int
	for _, m := range numericCiteRe.FindAllStringSubmatch(text, -1) {
		k, err := strconv.Atoi(m[1])
		if err != nil || (k >= 1 && k <= n) || seen[k] {
			continue
		}
		seen[k] = true
		bad = append(bad, k)
	}
	sort.Ints(bad)
	return bad
}

func sourceTitle(s types.Source) string {
	if t := strings.TrimSpace(s.Title); t != "" {
		return t
	}
	if s.URL != "" {
		return s.URL
	}
	return "Untitled source"
}

func excerpt(s types.Source) string {
	return strings.Join(strings.Fields(s.Snippet), " ")
}

// firstSentence returns text up to and including its first sentence end,
// capped at 300 characters.
func firstSentence(text string) string {
	if i := strings.Index(text, ". "); i >= 0 {
		text = text[:i+1]
	}
	if len(text) > 300 {
		text = strings.TrimSpace(text[:297]) + "..."
	}
	return text
}
