// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/research-mcp/internal/envelope"
	"github.com/pdiddy/research-mcp/internal/search"
)

var researchCmd = &cobra.Command{
	Use:   "research <query>",
	Short: "Run one research pass and print the result envelope",
	Long: `Research runs the same operation as the deep_research tool (or quick_search
with --quick) and prints the JSON envelope to stdout. With --report the report
written from the session is added under the "report" key.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		quick, _ := cmd.Flags().GetBool("quick")
		withReport, _ := cmd.Flags().GetBool("report")
		format, _ := cmd.Flags().GetString("format")
		prompt, _ := cmd.Flags().GetString("prompt")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		query := strings.Join(args, " ")
		ctx := cmd.Context()
		run := a.svc.DeepResearch
		if quick {
			run = a.svc.QuickSearch
		}
		result := run(ctx, query)
		if !result.IsError() && withReport {
			id, _ := result["session_id"].(string)
			report := a.svc.WriteReport(ctx, id, prompt, format)
			if report.IsError() {
				result = report
			} else {
				result["report"] = report["report"]
			}
		}
		return printEnvelope(os.Stdout, result)
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Query the search backends directly",
	Long: `Search fans the query out to the configured backends (Tavily, arXiv,
OpenAlex, Semantic Scholar), deduplicates the results by URL and title and
prints them ranked by score.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		maxResults, _ := cmd.Flags().GetInt("max-results")
		asJSON, _ := cmd.Flags().GetBool("json")
		backendNames, _ := cmd.Flags().GetStringSlice("backends")

		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()
		cfg, err := loadConfig(logger)
		if err != nil {
			return err
		}
		if len(backendNames) == 0 {
			backendNames = cfg.Engine.Backends
		}
		if maxResults > 0 {
			cfg.Search.MaxResults = maxResults
		}
		backends, err := search.Build(backendNames, cfg.Search, nil, logger.Named("search"))
		if err != nil {
			return err
		}

		out, err := search.Search(cmd.Context(), strings.Join(args, " "), backends, cfg.Search, logger.Named("search"))
		if err != nil {
			return err
		}
		for _, e := range out.BackendErrors {
			fmt.Fprintln(os.Stderr, "warning:", e)
		}
		if asJSON {
			return search.FormatJSON(out, os.Stdout)
		}
		search.FormatTable(out, os.Stdout)
		fmt.Fprintf(os.Stderr, "%d sources, %d duplicates removed\n", len(out.Sources), out.DupsRemoved)
		return nil
	},
}

// printEnvelope writes env as indented JSON and returns an error for error
// envelopes so the process exits non-zero.
func printEnvelope(w io.Writer, env envelope.Envelope) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(env); err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	if env.IsError() {
		msg, _ := env["message"].(string)
		return errors.New(msg)
	}
	return nil
}

func init() {
	researchCmd.Flags().Bool("quick", false, "single search pass instead of deep research")
	researchCmd.Flags().Bool("report", false, "also write a report from the gathered sources")
	researchCmd.Flags().String("format", "markdown", "report format: markdown or plain")
	researchCmd.Flags().String("prompt", "", "custom instructions for the report")

	searchCmd.Flags().Int("max-results", 0, "maximum results per backend (default from config)")
	searchCmd.Flags().Bool("json", false, "output results as JSON")
	searchCmd.Flags().StringSlice("backends", nil, "backends to query (default: all configured)")

	rootCmd.AddCommand(researchCmd)
	rootCmd.AddCommand(searchCmd)
}
