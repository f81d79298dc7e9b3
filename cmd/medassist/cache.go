// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/medassist/internal/articlestore"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the persisted article cache",
	Long: `Cache works on the SQLite snapshot named by cache.snapshot_path. The
snapshot is loaded at start and written back when a command exits, so
searches in later runs reuse fetched articles and their summaries.`,
}

var cacheExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export cached articles to YAML or JSON",
	RunE:  runCacheExport,
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show how many articles are cached and how many are stale",
	RunE:  runCacheStats,
}

func runCacheExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	if format != "yaml" && format != "json" {
		return fmt.Errorf("unsupported format %q: use yaml or json", format)
	}

	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(ctx)
	if a.store == nil {
		return errors.New("cache.snapshot_path is not configured")
	}
	return articlestore.Export(cmd.OutOrStdout(), a.cache.Snapshot(), format)
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	entries := a.cache.Snapshot()
	var stale, summarized int
	for _, e := range entries {
		if a.cache.IsStale(e) {
			stale++
		}
		if e.Record.AISummary != "" {
			summarized++
		}
	}
	w := cmd.OutOrStdout()
	if a.store != nil {
		persisted, err := a.store.Count(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "snapshot:   %s (%d rows)\n", a.store.Path(), persisted)
	}
	fmt.Fprintf(w, "articles:   %d\nstale:      %d\nsummarized: %d\nttl:        %s\n",
		len(entries), stale, summarized, a.cfg.Cache.TTL)
	return nil
}

func init() {
	cacheExportCmd.Flags().String("format", "yaml", "export format: yaml or json")

	cacheCmd.AddCommand(cacheExportCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	rootCmd.AddCommand(cacheCmd)
}
