// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pdiddy/medassist/pkg/types"
)

// OpenAI calls the chat completions API through go-openai. Any
// OpenAI-compatible endpoint works by setting ProviderSpec.Endpoint.
type OpenAI struct {
	model string
	api   *openai.Client
}

// NewOpenAI returns an OpenAI client for spec.
func NewOpenAI(spec types.ProviderSpec, httpClient *http.Client) *OpenAI {
	cfg := openai.DefaultConfig(spec.APIKey)
	if spec.Endpoint != "" {
		cfg.BaseURL = strings.TrimRight(spec.Endpoint, "/")
	}
	cfg.HTTPClient = httpClient
	return &OpenAI{model: spec.Model, api: openai.NewClientWithConfig(cfg)}
}

func (c *OpenAI) ID() types.ProviderID { return types.ProviderOpenAI }

func (c *OpenAI) Generate(ctx context.Context, req types.PromptRequest) (Completion, error) {
	msgs := req.Messages()
	chat := make([]openai.ChatCompletionMessage, len(msgs))
	for i, m := range msgs {
		chat[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    chat,
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		return Completion{}, c.mapError(err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return Completion{}, transient(c.ID(), ErrEmptyResponse)
	}
	return Completion{
		Text:       resp.Choices[0].Message.Content,
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}

// mapError classifies go-openai errors by their HTTP status.
func (c *OpenAI) mapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fromStatus(c.ID(), apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fromStatus(c.ID(), reqErr.HTTPStatusCode, err)
	}
	return transient(c.ID(), err)
}
