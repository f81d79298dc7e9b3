// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package summary produces short AI summaries of articles through the
// provider chain.
package summary

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/pdiddy/medassist/pkg/types"
)

const summarySystemPrompt = "You summarize biomedical literature for clinicians. Be factual and concise. Do not speculate beyond the abstract."

var summaryPromptTmpl = template.Must(template.New("summary").Funcs(template.FuncMap{"join": strings.Join}).Parse(`Summarize the following article in two or three sentences. State the study design, the population and the main finding.

Title: {{.Title}}
{{- if .Journal}}
Journal: {{.Journal}}{{if .PublicationDate}} ({{.PublicationDate}}){{end}}
{{- end}}
{{- if .Keywords}}
Keywords: {{join .Keywords ", "}}
{{- end}}

Abstract:
{{if .AbstractText}}{{.AbstractText}}{{else}}No abstract available.{{end}}
`))

// ErrNoContent is returned for an article with neither title nor abstract.
var ErrNoContent = errors.New("article has no content to summarize")

// Generator sends a prompt down a provider chain. *provider.Router
// satisfies it.
type Generator interface {
	Generate(ctx context.Context, req types.PromptRequest, chain []types.ProviderSpec) (types.GenerationResult, error)
}

// Summarizer renders the summary prompt and routes it through a Generator.
type Summarizer struct {
	gen   Generator
	chain []types.ProviderSpec
	cfg   types.SummaryConfig
}

// New returns a Summarizer using the given provider chain.
func New(gen Generator, chain []types.ProviderSpec, cfg types.SummaryConfig) *Summarizer {
	return &Summarizer{gen: gen, chain: chain, cfg: cfg}
}

// Summarize returns a summary of rec no longer than the configured
// character bound. Callers treat an error as an empty summary.
func (s *Summarizer) Summarize(ctx context.Context, rec types.ArticleRecord) (string, error) {
	if strings.TrimSpace(rec.Title) == "" && strings.TrimSpace(rec.AbstractText) == "" {
		return "", ErrNoContent
	}
	prompt, err := renderPrompt(rec)
	if err != nil {
		return "", fmt.Errorf("rendering summary prompt: %w", err)
	}
	req := types.PromptRequest{
		SystemPrompt: summarySystemPrompt,
		History:      []types.Turn{{Role: types.RoleUser, Text: prompt}},
		MaxTokens:    s.cfg.MaxTokens,
		Temperature:  s.cfg.Temperature,
	}
	res, err := s.gen.Generate(ctx, req, s.chain)
	if err != nil {
		return "", fmt.Errorf("summarizing %s: %w", rec.PMID, err)
	}
	return Truncate(strings.TrimSpace(res.Text), s.cfg.MaxChars), nil
}

func renderPrompt(rec types.ArticleRecord) (string, error) {
	var buf bytes.Buffer
	if err := summaryPromptTmpl.Execute(&buf, rec); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Truncate cuts s to at most n runes, ending on a word boundary with an
// ellipsis when it has to cut. n <= 0 means no limit.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	runes := []rune(s)
	cut := string(runes[:n-1])
	if i := strings.LastIndexAny(cut, " \n\t"); i > len(cut)/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " \n\t.,;:") + "…"
}
