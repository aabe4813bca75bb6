// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pdiddy/research-mcp/internal/envelope"
)

func TestPrintEnvelope(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printEnvelope(&buf, envelope.Success(map[string]any{"session_id": "abc"})))
	assert.JSONEq(t, `{"status":"success","session_id":"abc"}`, buf.String())

	buf.Reset()
	err := printEnvelope(&buf, envelope.ErrorKind(envelope.KindNotFound, "research session not found"))
	require.EqualError(t, err, "research session not found")
	assert.Contains(t, buf.String(), `"error_kind": "not_found"`)
}

func TestLoadConfig_DefaultsAndEnv(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Chdir(t.TempDir())

	viper.SetEnvPrefix("RESEARCH_MCP")
	viper.SetEnvKeyReplacer(envReplacer)
	viper.AutomaticEnv()
	setDefaults()

	t.Setenv("RESEARCH_MCP_ENGINE_TIMEOUT", "90s")
	t.Setenv("RESEARCH_MCP_CACHE_DB_PATH", "/tmp/cache.db")
	t.Setenv("TAVILY_API_KEY", "tvly-env")
	t.Setenv("ANTHROPIC_API_KEY", "")

	require.NoError(t, os.MkdirAll(".secrets", 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(".secrets", "anthropic-api-key"), []byte("sk-file\n"), 0o600))

	cfg, err := loadConfig(zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.Engine.Timeout)
	assert.Equal(t, 3, cfg.Engine.MaxIterations)
	assert.Equal(t, "/tmp/cache.db", cfg.Cache.DBPath)
	assert.Equal(t, "tvly-env", cfg.Search.TavilyAPIKey)
	assert.Equal(t, "sk-file", cfg.AI.APIKey)
	assert.Equal(t, 30*time.Second, cfg.Search.Timeout)
	assert.Equal(t, "research-mcp/dev", cfg.Search.UserAgent)
}
