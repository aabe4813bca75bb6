// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the research-mcp server and CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is set at build time via ldflags.
var version = "dev"

// envReplacer maps nested keys such as cache.db_path to RESEARCH_MCP_CACHE_DB_PATH.
var envReplacer = strings.NewReplacer(".", "_")

// rootCmd is the base command for the research-mcp CLI.
var rootCmd = &cobra.Command{
	Use:   "research-mcp",
	Short: "MCP server exposing an autonomous research engine",
	Long: `research-mcp serves research tools to AI assistants over the Model Context
Protocol. Clients call deep_research or quick_search to gather sources, then
write_report, get_research_sources and get_research_context to work with the
session. Topics are also readable as research://{topic} resources.

The serve command runs the MCP server over stdio, SSE or streamable HTTP.
The research, search and cache commands expose the same engine from the shell.`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./research-mcp.yaml or ~/.config/research-mcp/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("research-mcp")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "research-mcp"))
		}
	}

	viper.SetEnvPrefix("RESEARCH_MCP")
	viper.SetEnvKeyReplacer(envReplacer)
	viper.AutomaticEnv()
	setDefaults()

	// Stdout belongs to the stdio transport, so diagnostics go to stderr.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
