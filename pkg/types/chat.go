// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "USER"
	RoleAssistant Role = "ASSISTANT"
)

// Turn is one message of a conversation.
type Turn struct {
	Role Role   `json:"role" yaml:"role"`
	Text string `json:"text" yaml:"text"`
}

// Message is a provider-agnostic chat message. Role is one of
// "system", "user" or "assistant".
type Message struct {
	Role    string
	Content string
}

// PromptRequest is the payload handed to a provider. It is built fresh
// for every call and treated as a value; the current user message is the
// final USER turn of History.
type PromptRequest struct {
	// SystemPrompt is the base medical prompt plus any specialty addendum.
	SystemPrompt string

	// History holds the retained conversation turns, oldest first.
	History []Turn

	// MedicalContext is the labeled patient context block, or empty.
	MedicalContext string

	// MaxTokens bounds the generated output.
	MaxTokens int

	// Temperature is the sampling temperature.
	Temperature float64
}

// SystemText returns the system prompt with the medical context block
// appended when present.
func (p PromptRequest) SystemText() string {
	if p.MedicalContext == "" {
		return p.SystemPrompt
	}
	return p.SystemPrompt + "\n\n" + p.MedicalContext
}

// Messages renders the request as an ordered message list: the system
// message first, then the history.
func (p PromptRequest) Messages() []Message {
	msgs := make([]Message, 0, len(p.History)+1)
	if sys := p.SystemText(); sys != "" {
		msgs = append(msgs, Message{Role: "system", Content: sys})
	}
	for _, t := range p.History {
		role := "user"
		if t.Role == RoleAssistant {
			role = "assistant"
		}
		msgs = append(msgs, Message{Role: role, Content: t.Text})
	}
	return msgs
}

// Transcript flattens the request into a single prompt string for
// providers that accept raw text only.
func (p PromptRequest) Transcript() string {
	var b strings.Builder
	if sys := p.SystemText(); sys != "" {
		b.WriteString(sys)
		b.WriteString("\n\n")
	}
	for _, t := range p.History {
		if t.Role == RoleAssistant {
			b.WriteString("Assistant: ")
		} else {
			b.WriteString("User: ")
		}
		b.WriteString(t.Text)
		b.WriteString("\n")
	}
	b.WriteString("Assistant:")
	return b.String()
}

// GenerationResult is the outcome of a successful provider call.
type GenerationResult struct {
	Text         string     `json:"text" yaml:"text"`
	TokensUsed   int        `json:"tokens_used" yaml:"tokens_used"`
	ProviderUsed ProviderID `json:"provider_used" yaml:"provider_used"`
	LatencyMs    int64      `json:"latency_ms" yaml:"latency_ms"`

	// Attempts counts every provider attempt made, across the chain.
	Attempts int `json:"attempts" yaml:"attempts"`

	RequestID string `json:"request_id,omitempty" yaml:"request_id,omitempty"`
}

// ProviderID names a text-generation backend.
type ProviderID string

const (
	ProviderOpenAI      ProviderID = "OPENAI"
	ProviderGemini      ProviderID = "GEMINI"
	ProviderOllama      ProviderID = "OLLAMA"
	ProviderHuggingFace ProviderID = "HUGGINGFACE"
	ProviderMock        ProviderID = "MOCK"
)

// ParseProviderID converts a case-insensitive name to a ProviderID.
func ParseProviderID(s string) (ProviderID, error) {
	id := ProviderID(strings.ToUpper(strings.TrimSpace(s)))
	switch id {
	case ProviderOpenAI, ProviderGemini, ProviderOllama, ProviderHuggingFace, ProviderMock:
		return id, nil
	}
	return "", fmt.Errorf("unknown provider %q", s)
}

// ProviderSpec configures one provider of the fallback chain.
type ProviderSpec struct {
	// ID selects the client variant.
	ID ProviderID `json:"id" yaml:"id" mapstructure:"id"`

	// Endpoint is the API base URL. Empty selects the vendor default.
	Endpoint string `json:"endpoint" yaml:"endpoint" mapstructure:"endpoint"`

	// Model is the vendor model name.
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// Timeout bounds a single attempt. Zero falls back to RetryConfig.Timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// Priority orders the chain; lower values are tried first.
	Priority int `json:"priority" yaml:"priority" mapstructure:"priority"`

	// Enabled removes the provider from the chain when false.
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`

	// APIKey authenticates against the vendor. Loaded from secrets, never serialized.
	APIKey string `json:"-" yaml:"-" mapstructure:"api_key"`
}

// ProviderChain returns the enabled specs ordered by priority. Specs with
// equal priority keep their declaration order.
func ProviderChain(specs []ProviderSpec) []ProviderSpec {
	chain := make([]ProviderSpec, 0, len(specs))
	for _, s := range specs {
		if s.Enabled {
			chain = append(chain, s)
		}
	}
	sort.SliceStable(chain, func(i, j int) bool {
		return chain[i].Priority < chain[j].Priority
	})
	return chain
}
