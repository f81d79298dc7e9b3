// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package prompt assembles provider-agnostic prompt requests from a user
// message, prior turns, optional patient context and a specialty. It
// performs no I/O.
package prompt

import (
	"strings"

	"github.com/pdiddy/medassist/pkg/types"
)

// ContextLabel prefixes the patient context block.
const ContextLabel = "Patient medical context:"

// Emergency is returned instead of a request when the user message matches
// an emergency keyword. It is a deliberate redirect, not an error.
type Emergency struct {
	// Keyword is the configured keyword that matched.
	Keyword string

	// Response is the fixed text to show the user.
	Response string
}

// Builder composes PromptRequests. It is immutable after construction and
// safe for concurrent use.
type Builder struct {
	systemPrompt      string
	specialtyPrompts  map[types.Specialty]string
	keywords          []string
	lowerKeywords     []string
	emergencyResponse string
	historyTurns      int
	maxTokens         int
	temperature       float64
}

// NewBuilder returns a Builder for cfg. Specialty prompt keys are matched
// case-insensitively; unknown keys are ignored.
func NewBuilder(cfg types.ChatConfig) *Builder {
	b := &Builder{
		systemPrompt:      strings.TrimSpace(cfg.SystemPrompt),
		specialtyPrompts:  make(map[types.Specialty]string, len(cfg.SpecialtyPrompts)),
		emergencyResponse: cfg.EmergencyResponse,
		historyTurns:      cfg.HistoryTurns,
		maxTokens:         cfg.MaxTokens,
		temperature:       cfg.Temperature,
	}
	for k, v := range cfg.SpecialtyPrompts {
		sp, err := types.ParseSpecialty(string(k))
		if err != nil || sp == "" {
			continue
		}
		b.specialtyPrompts[sp] = strings.TrimSpace(v)
	}
	for _, kw := range cfg.EmergencyKeywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		b.keywords = append(b.keywords, kw)
		b.lowerKeywords = append(b.lowerKeywords, strings.ToLower(kw))
	}
	return b
}

// Build returns the request for userMessage, or an Emergency when the
// message contains an emergency keyword. Exactly one of the results is set.
//
// Keyword matching is a plain case-insensitive substring scan, so a keyword
// also matches inside longer words.
func (b *Builder) Build(userMessage string, history []types.Turn, medicalContext string, specialty types.Specialty) (types.PromptRequest, *Emergency) {
	if kw, ok := b.emergencyKeyword(userMessage); ok {
		return types.PromptRequest{}, &Emergency{Keyword: kw, Response: b.emergencyResponse}
	}

	req := types.PromptRequest{
		SystemPrompt: b.SystemPrompt(specialty),
		MaxTokens:    b.maxTokens,
		Temperature:  b.temperature,
	}

	kept := truncate(history, b.historyTurns)
	req.History = make([]types.Turn, 0, len(kept)+1)
	req.History = append(req.History, kept...)
	req.History = append(req.History, types.Turn{Role: types.RoleUser, Text: userMessage})

	if mc := strings.TrimSpace(medicalContext); mc != "" {
		req.MedicalContext = ContextLabel + "\n" + mc
	}
	return req, nil
}

// SystemPrompt returns the base prompt followed by the addendum for
// specialty, if one is configured.
func (b *Builder) SystemPrompt(specialty types.Specialty) string {
	add, ok := b.specialtyPrompts[specialty]
	if !ok || add == "" {
		return b.systemPrompt
	}
	if b.systemPrompt == "" {
		return add
	}
	return b.systemPrompt + "\n\n" + add
}

// IsEmergency reports whether message matches an emergency keyword.
func (b *Builder) IsEmergency(message string) bool {
	_, ok := b.emergencyKeyword(message)
	return ok
}

func (b *Builder) emergencyKeyword(message string) (string, bool) {
	lower := strings.ToLower(message)
	for i, kw := range b.lowerKeywords {
		if strings.Contains(lower, kw) {
			return b.keywords[i], true
		}
	}
	return "", false
}

// truncate keeps the most recent n turns. A negative n keeps everything.
func truncate(history []types.Turn, n int) []types.Turn {
	if n < 0 || len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}
