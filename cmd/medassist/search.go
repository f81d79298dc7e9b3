// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/medassist/internal/assistant"
	"github.com/pdiddy/medassist/pkg/types"
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search PubMed for ranked, summarized articles",
	Long: `Search queries PubMed, ranks the candidates by term overlap, recency and
specialty, and attaches a short AI summary to each result. Articles already
in the cache are not fetched again.`,
	RunE: runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	query, _ := cmd.Flags().GetString("query")
	if query == "" {
		query = strings.Join(args, " ")
	}
	user, _ := cmd.Flags().GetString("user")
	maxResults, _ := cmd.Flags().GetInt("max-results")
	patientContext, _ := cmd.Flags().GetString("patient-context")
	specialtyFlag, _ := cmd.Flags().GetString("specialty")
	format, _ := cmd.Flags().GetString("format")

	specialty, err := types.ParseSpecialty(specialtyFlag)
	if err != nil {
		return err
	}
	if format != "table" && format != "json" && format != "yaml" {
		return fmt.Errorf("unsupported format %q: use table, json or yaml", format)
	}

	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	articles, err := a.assistant.SearchLiterature(ctx, assistant.SearchRequest{
		UserID:         user,
		Query:          query,
		MaxResults:     maxResults,
		PatientContext: patientContext,
		Specialty:      specialty,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", assistant.OutcomeOf(err), err)
	}
	return formatSearchOutput(cmd.OutOrStdout(), articles, format)
}

func formatSearchOutput(w io.Writer, articles []types.ScoredArticle, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(articles)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(articles); err != nil {
			return err
		}
		return enc.Close()
	}

	if len(articles) == 0 {
		fmt.Fprintln(w, "No results found.")
		return nil
	}

	fmt.Fprintf(w, "%-4s  %-6s  %-10s  %-60s  %s\n", "Rank", "Score", "PMID", "Title", "Date")
	fmt.Fprintln(w, strings.Repeat("-", 100))
	for i, a := range articles {
		title := a.Article.Title
		if r := []rune(title); len(r) > 60 {
			title = string(r[:57]) + "..."
		}
		fmt.Fprintf(w, "%-4d  %-6.3f  %-10s  %-60s  %s\n",
			i+1, a.RelevanceScore, a.Article.PMID, title, a.Article.PublicationDate)
		if a.Article.AISummary != "" {
			fmt.Fprintf(w, "      %s\n", a.Article.AISummary)
		}
	}
	fmt.Fprintf(w, "\n%d results\n", len(articles))
	return nil
}

func init() {
	searchCmd.Flags().String("user", "local", "user ID for rate limiting")
	searchCmd.Flags().String("query", "", "search terms (default: positional arguments)")
	searchCmd.Flags().Int("max-results", 0, "maximum number of results (0 = configured default)")
	searchCmd.Flags().String("patient-context", "", "patient context used as secondary ranking terms")
	searchCmd.Flags().String("specialty", "", "medical specialty used for ranking")
	searchCmd.Flags().String("format", "table", "output format: table, json or yaml")

	rootCmd.AddCommand(searchCmd)
}
