// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/research-mcp/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the persistent topic cache",
	Long: `Cache commands read the SQLite database configured by cache.db_path, which
holds every topic researched through deep_research or a research:// resource.`,
}

var cacheExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export cached results as YAML or JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		var w io.Writer = os.Stdout
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating %s: %w", output, err)
			}
			defer f.Close()
			w = f
		}

		switch strings.ToLower(format) {
		case "yaml", "yml":
			return store.ExportYAML(cmd.Context(), w)
		case "json":
			return store.ExportJSON(cmd.Context(), w)
		default:
			return fmt.Errorf("unknown export format %q (want yaml or json)", format)
		}
	},
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached topics, most recently updated first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		entries, err := store.List(cmd.Context())
		if err != nil {
			return err
		}
		printEntries(os.Stdout, entries)
		return nil
	},
}

var cacheSearchCmd = &cobra.Command{
	Use:   "search <terms>",
	Short: "Full-text search over cached topics and context",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		entries, err := store.Search(cmd.Context(), strings.Join(args, " "), limit)
		if err != nil {
			return err
		}
		printEntries(os.Stdout, entries)
		return nil
	},
}

func printEntries(w io.Writer, entries []cache.Entry) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TOPIC\tSOURCES\tCREATED")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", e.Topic, len(e.Sources), e.CreatedAt.Format(time.RFC3339))
	}
	tw.Flush()
}

func init() {
	cacheExportCmd.Flags().String("format", "yaml", "export format: yaml or json")
	cacheExportCmd.Flags().StringP("output", "o", "", "write to file instead of stdout")
	cacheSearchCmd.Flags().Int("limit", 20, "maximum number of matches")

	cacheCmd.AddCommand(cacheExportCmd, cacheListCmd, cacheSearchCmd)
	rootCmd.AddCommand(cacheCmd)
}
