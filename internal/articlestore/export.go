// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package articlestore

import (
	"encoding/json"
	"fmt"
	"io"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/medassist/pkg/types"
)

// ExportEntry is one article in an export document.
type ExportEntry struct {
	PMID            string   `json:"pmid" yaml:"pmid"`
	Title           string   `json:"title" yaml:"title"`
	Authors         string   `json:"authors,omitempty" yaml:"authors,omitempty"`
	Journal         string   `json:"journal,omitempty" yaml:"journal,omitempty"`
	PublicationDate string   `json:"publication_date,omitempty" yaml:"publication_date,omitempty"`
	DOI             string   `json:"doi,omitempty" yaml:"doi,omitempty"`
	Keywords        []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	AISummary       string   `json:"ai_summary,omitempty" yaml:"ai_summary,omitempty"`
	RelevanceScore  *float64 `json:"relevance_score,omitempty" yaml:"relevance_score,omitempty"`
	FetchedAt       string   `json:"fetched_at" yaml:"fetched_at"`
}

// Export writes entries to w as "yaml" or "json".
func Export(w io.Writer, entries []types.CacheEntry, format string) error {
	out := make([]ExportEntry, len(entries))
	for i, e := range entries {
		r := e.Record
		out[i] = ExportEntry{
			PMID:            r.PMID,
			Title:           r.Title,
			Authors:         r.Authors,
			Journal:         r.Journal,
			PublicationDate: r.PublicationDate,
			DOI:             r.DOI,
			Keywords:        r.Keywords,
			AISummary:       r.AISummary,
			RelevanceScore:  r.RelevanceScore,
			FetchedAt:       formatTime(e.FetchedAt),
		}
	}

	switch format {
	case "yaml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("marshaling YAML: %w", err)
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("marshaling JSON: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}
