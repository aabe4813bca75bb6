// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package envelope shapes every tool response into a uniform success or
// error mapping so clients can dispatch on the status field alone.
package envelope

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/pdiddy/research-mcp/pkg/types"
)

// Envelope is the JSON object returned by every tool.
type Envelope map[string]any

// Status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Kind classifies an error envelope.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindUpstream   Kind = "upstream"
	KindTimeout    Kind = "timeout"
)

// Sentinels recognized by HandleError. Wrap them with fmt.Errorf("...: %w").
var (
	ErrValidation = errors.New("invalid input")
	ErrNotFound   = errors.New("not found")
)

// maxMessageLen bounds upstream error messages returned to clients.
const maxMessageLen = 200

// Success returns a copy of payload with status set to "success". A status
// key in payload is overwritten.
func Success(payload map[string]any) Envelope {
	env := make(Envelope, len(payload)+1)
	for k, v := range payload {
		env[k] = v
	}
	env["status"] = StatusSuccess
	return env
}

// Error returns {"status":"error","message":message}.
func Error(message string) Envelope {
	return Envelope{"status": StatusError, "message": message}
}

// ErrorKind returns an error envelope carrying an error_kind.
func ErrorKind(kind Kind, message string) Envelope {
	env := Error(message)
	env["error_kind"] = string(kind)
	return env
}

// IsError reports whether env is an error envelope.
func (e Envelope) IsError() bool {
	return e["status"] == StatusError
}

// FormatSources projects sources onto {title, url, snippet?}, preserving
// order and dropping engine-internal fields.
func FormatSources(sources []types.Source) []map[string]any {
	out := make([]map[string]any, 0, len(sources))
	for _, s := range sources {
		m := map[string]any{
			"title": s.Title,
			"url":   s.URL,
		}
		if s.Snippet != "" {
			m["snippet"] = s.Snippet
		}
		out = append(out, m)
	}
	return out
}

// ContextWithCitations appends a numbered reference list to context so the
// inline [n] markers resolve to URLs. Without sources context is returned
// unchanged.
func ContextWithCitations(context string, sources []types.Source) string {
	if len(sources) == 0 {
		return context
	}
	var b strings.Builder
	b.WriteString(strings.TrimRight(context, "\n"))
	b.WriteString("\n\nReferences:\n")
	for i, s := range sources {
		title := s.Title
		if title == "" {
			title = s.URL
		}
		fmt.Fprintf(&b, "[%d] %s - %s\n", i+1, title, s.URL)
	}
	return strings.TrimRight(b.String(), "\n")
}

// HandleError logs err with the operation name and converts it to an error
// envelope. Deadline expiry maps to timeout, ErrValidation to validation,
// ErrNotFound to not_found and everything else to upstream with a summarized
// message.
func HandleError(logger *zap.Logger, err error, op string) Envelope {
	if logger == nil {
		logger = zap.NewNop()
	}
	kind := Classify(err)
	fields := []zap.Field{zap.String("op", op), zap.String("error_kind", string(kind)), zap.Error(err)}
	if kind == KindUpstream || kind == KindTimeout {
		logger.Error("operation failed", fields...)
	} else {
		logger.Info("operation rejected", fields...)
	}

	switch kind {
	case KindTimeout:
		return ErrorKind(kind, fmt.Sprintf("%s timed out", op))
	case KindValidation, KindNotFound:
		return ErrorKind(kind, summarize(err.Error()))
	default:
		return ErrorKind(kind, fmt.Sprintf("%s failed: %s", op, summarize(err.Error())))
	}
}

// Classify maps err onto an error kind.
func Classify(err error) Kind {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	default:
		return KindUpstream
	}
}

// summarize keeps the first line of msg, truncated to maxMessageLen bytes on
// a rune boundary.
func summarize(msg string) string {
	if i := strings.IndexAny(msg, "\r\n"); i >= 0 {
		msg = msg[:i]
	}
	msg = strings.TrimSpace(msg)
	if len(msg) > maxMessageLen {
		cut := maxMessageLen - 3
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut] + "..."
	}
	if msg == "" {
		msg = "unknown error"
	}
	return msg
}
