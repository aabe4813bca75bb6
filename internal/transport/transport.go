// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package transport selects and runs the MCP transport: stdio for local
// clients, or SSE and streamable HTTP for network deployments.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// Mode names a transport.
type Mode string

const (
	Stdio Mode = "stdio"
	SSE   Mode = "sse"
	HTTP  Mode = "http"
)

// Environment variables consulted by Select.
const (
	EnvTransport = "RESEARCH_MCP_TRANSPORT"
	EnvPort      = "PORT"
)

// DefaultAddr is the listen address for network transports.
const DefaultAddr = ":8000"

// Endpoint paths served by network transports.
const (
	PathMCP     = "/mcp"
	PathSSE     = "/sse"
	PathHealthz = "/healthz"
)

const shutdownTimeout = 10 * time.Second

// ParseMode maps a transport name to a Mode. "streamable-http" and
// "streamable_http" are accepted as aliases of http.
func ParseMode(name string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "stdio":
		return Stdio, nil
	case "sse":
		return SSE, nil
	case "http", "streamable-http", "streamable_http":
		return HTTP, nil
	default:
		return "", fmt.Errorf("unknown transport %q (want stdio, sse or http)", name)
	}
}

// Select picks the transport. An explicit flag wins, then
// RESEARCH_MCP_TRANSPORT; a set PORT selects http; otherwise stdio.
func Select(flag string, getenv func(string) string) (Mode, error) {
	if strings.TrimSpace(flag) != "" {
		return ParseMode(flag)
	}
	if getenv == nil {
		return Stdio, nil
	}
	if env := getenv(EnvTransport); strings.TrimSpace(env) != "" {
		return ParseMode(env)
	}
	if getenv(EnvPort) != "" {
		return HTTP, nil
	}
	return Stdio, nil
}

// Addr returns addr, or ":$PORT" when addr is empty and PORT is set, or
// DefaultAddr.
func Addr(addr string, getenv func(string) string) string {
	if addr != "" {
		return addr
	}
	if getenv != nil {
		if port := getenv(EnvPort); port != "" {
			return net.JoinHostPort("", port)
		}
	}
	return DefaultAddr
}

// Handler returns the HTTP handler for a network mode: the MCP endpoint
// plus a health check.
func Handler(server *mcp.Server, mode Mode) (http.Handler, error) {
	getServer := func(*http.Request) *mcp.Server { return server }

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+PathHealthz, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	switch mode {
	case SSE:
		mux.Handle(PathSSE, mcp.NewSSEHandler(getServer, nil))
	case HTTP:
		mux.Handle(PathMCP, mcp.NewStreamableHTTPHandler(getServer, nil))
	default:
		return nil, fmt.Errorf("transport %q has no HTTP handler", mode)
	}
	return mux, nil
}

// Serve runs server over mode until ctx is cancelled or the transport
// fails. Network modes shut down gracefully on cancellation.
func Serve(ctx context.Context, server *mcp.Server, mode Mode, addr string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if mode == Stdio {
		logger.Info("serving MCP over stdio")
		if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("stdio transport: %w", err)
		}
		return nil
	}

	handler, err := Handler(server, mode)
	if err != nil {
		return err
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return serveListener(ctx, ln, handler, mode, logger)
}

func serveListener(ctx context.Context, ln net.Listener, handler http.Handler, mode Mode, logger *zap.Logger) error {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(ln)
	}()
	logger.Info("serving MCP over network",
		zap.String("transport", string(mode)),
		zap.String("addr", ln.Addr().String()),
	)

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("%s transport: %w", mode, err)
	case <-ctx.Done():
	}

	logger.Info("shutting down", zap.String("transport", string(mode)))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		_ = srv.Close()
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}
