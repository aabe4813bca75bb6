// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/research-mcp/internal/server"
	"github.com/pdiddy/research-mcp/internal/transport"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server",
	Long: `Serve runs the MCP server. The transport is chosen from --transport, then
RESEARCH_MCP_TRANSPORT; when neither is set a PORT variable selects streamable
HTTP and otherwise stdio is used.

Network transports listen on --addr (default :8000, or :$PORT) and expose
/mcp (http) or /sse (sse) plus /healthz.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := transport.Select(viper.GetString("transport"), os.Getenv)
		if err != nil {
			return err
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		addr := transport.Addr(viper.GetString("addr"), os.Getenv)
		a.logger.Info("starting research-mcp",
			zap.String("version", version),
			zap.String("transport", string(mode)),
			zap.Strings("backends", a.cfg.Engine.Backends),
			zap.Bool("llm", a.cfg.AI.APIKey != ""),
			zap.Bool("persistent_cache", a.store != nil),
		)
		return transport.Serve(cmd.Context(), server.New(a.svc, version), mode, addr, a.logger.Named("transport"))
	},
}

func init() {
	serveCmd.Flags().String("transport", "", "transport: stdio, sse or http")
	serveCmd.Flags().String("addr", "", "listen address for network transports")
	_ = viper.BindPFlag("transport", serveCmd.Flags().Lookup("transport"))
	_ = viper.BindPFlag("addr", serveCmd.Flags().Lookup("addr"))

	rootCmd.AddCommand(serveCmd)
}
