// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fetch downloads source pages and reduces them to plain text for
// report synthesis.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/research-mcp/internal/httputil"
	"github.com/pdiddy/research-mcp/pkg/types"
)

const (
	// maxBodyBytes caps how much of a response body is read.
	maxBodyBytes = 2 << 20
	// DefaultMaxChars caps the extracted text kept per page.
	DefaultMaxChars = 12000
	// maxParallel bounds concurrent page downloads in Enrich.
	maxParallel = 4
)

var (
	multiNewline = regexp.MustCompile(`\n{3,}`)
	multiSpace   = regexp.MustCompile(`[ \t]{2,}`)
)

// Fetcher retrieves pages over HTTP.
type Fetcher struct {
	Client    *http.Client
	UserAgent string
	MaxChars  int
	Logger    *zap.Logger
}

// New returns a Fetcher configured from cfg.
func New(cfg types.HTTPConfig, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		Client:    &http.Client{Timeout: cfg.Timeout},
		UserAgent: cfg.UserAgent,
		MaxChars:  DefaultMaxChars,
		Logger:    logger,
	}
}

// Fetch downloads rawURL and returns its readable text. HTML is stripped of
// scripts, styles and page chrome; plain text and Markdown pass through.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", errors.New("fetch url is empty")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := httputil.DoWithRetry(ctx, client, req, 1, f.Logger)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching %s: HTTP %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", rawURL, err)
	}

	ct := resp.Header.Get("Content-Type")
	var text string
	switch {
	case strings.Contains(ct, "text/plain"), strings.Contains(ct, "text/markdown"):
		text = string(body)
	case ct == "" || strings.Contains(ct, "html"):
		text, err = HTMLToText(string(body))
		if err != nil {
			return "", fmt.Errorf("parsing %s: %w", rawURL, err)
		}
	default:
		return "", fmt.Errorf("fetching %s: unsupported content type %q", rawURL, ct)
	}

	maxChars := f.MaxChars
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	if len(text) > maxChars {
		text = text[:maxChars] + "\n[TRUNCATED]"
	}
	return text, nil
}

// Enrich fetches the pages of the first n sources that have no Content yet
// and stores the text in place. Failed fetches are logged and skipped; only
// context cancellation is returned as an error.
func (f *Fetcher) Enrich(ctx context.Context, sources []types.Source, n int) error {
	if n > len(sources) {
		n = len(sources)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)
	for i := 0; i < n; i++ {
		if sources[i].Content != "" || sources[i].URL == "" {
			continue
		}
		g.Go(func() error {
			text, err := f.Fetch(gctx, sources[i].URL)
			if err != nil {
				f.Logger.Debug("page fetch failed", zap.String("url", sources[i].URL), zap.Error(err))
				return nil
			}
			sources[i].Content = text
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

// HTMLToText parses an HTML document and returns its visible text with
// headings, paragraphs and list items on their own lines.
func HTMLToText(doc string) (string, error) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	walk(root, &sb, 0)
	return clean(sb.String()), nil
}

func walk(n *html.Node, sb *strings.Builder, depth int) {
	if depth > 100 {
		return
	}
	switch n.Type {
	case html.TextNode:
		if text := strings.TrimSpace(n.Data); text != "" {
			sb.WriteString(text)
			sb.WriteString(" ")
		}
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript", "iframe", "svg", "nav", "footer", "header", "form":
			return
		case "h1", "h2", "h3", "h4", "h5", "h6", "p", "div", "section", "article", "tr", "blockquote", "pre":
			sb.WriteString("\n\n")
		case "br":
			sb.WriteString("\n")
		case "li":
			sb.WriteString("\n- ")
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, sb, depth+1)
	}
}

func clean(s string) string {
	s = multiSpace.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	s = strings.Join(lines, "\n")
	s = multiNewline.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
