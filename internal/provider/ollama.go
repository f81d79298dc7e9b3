// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/pdiddy/medassist/pkg/types"
)

const ollamaDefaultEndpoint = "http://localhost:11434"

// Ollama calls a local Ollama server through POST /api/chat.
type Ollama struct {
	endpoint string
	model    string
	http     *http.Client
}

// NewOllama returns an Ollama client for spec.
func NewOllama(spec types.ProviderSpec, httpClient *http.Client) *Ollama {
	endpoint := spec.Endpoint
	if endpoint == "" {
		endpoint = ollamaDefaultEndpoint
	}
	return &Ollama{endpoint: strings.TrimRight(endpoint, "/"), model: spec.Model, http: httpClient}
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
	Error           string        `json:"error"`
}

func (c *Ollama) ID() types.ProviderID { return types.ProviderOllama }

func (c *Ollama) Generate(ctx context.Context, req types.PromptRequest) (Completion, error) {
	msgs := req.Messages()
	body := ollamaChatRequest{
		Model:    c.model,
		Messages: make([]ollamaMessage, len(msgs)),
	}
	for i, m := range msgs {
		body.Messages[i] = ollamaMessage(m)
	}
	opts := map[string]any{"temperature": req.Temperature}
	if req.MaxTokens > 0 {
		opts["num_predict"] = req.MaxTokens
	}
	body.Options = opts

	var resp ollamaChatResponse
	if err := postJSON(ctx, c.http, c.ID(), c.endpoint+"/api/chat", nil, body, &resp); err != nil {
		return Completion{}, err
	}
	if resp.Error != "" {
		return Completion{}, transient(c.ID(), errors.New(resp.Error))
	}
	if strings.TrimSpace(resp.Message.Content) == "" {
		return Completion{}, transient(c.ID(), ErrEmptyResponse)
	}
	return Completion{
		Text:       resp.Message.Content,
		TokensUsed: resp.PromptEvalCount + resp.EvalCount,
	}, nil
}
