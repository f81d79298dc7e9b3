// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/pdiddy/medassist/pkg/types"
)

const geminiDefaultEndpoint = "https://generativelanguage.googleapis.com"

// Gemini calls the generateContent REST endpoint.
type Gemini struct {
	endpoint string
	model    string
	apiKey   string
	http     *http.Client
}

// NewGemini returns a Gemini client for spec.
func NewGemini(spec types.ProviderSpec, httpClient *http.Client) *Gemini {
	endpoint := spec.Endpoint
	if endpoint == "" {
		endpoint = geminiDefaultEndpoint
	}
	return &Gemini{
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    spec.Model,
		apiKey:   spec.APIKey,
		http:     httpClient,
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  struct {
		Temperature     float64 `json:"temperature"`
		MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	UsageMetadata struct {
		TotalTokenCount int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

func (c *Gemini) ID() types.ProviderID { return types.ProviderGemini }

func (c *Gemini) Generate(ctx context.Context, req types.PromptRequest) (Completion, error) {
	var body geminiRequest
	if sys := req.SystemText(); sys != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: sys}}}
	}
	for _, t := range req.History {
		role := "user"
		if t.Role == types.RoleAssistant {
			role = "model"
		}
		body.Contents = append(body.Contents, geminiContent{Role: role, Parts: []geminiPart{{Text: t.Text}}})
	}
	body.GenerationConfig.Temperature = req.Temperature
	body.GenerationConfig.MaxOutputTokens = req.MaxTokens

	u := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.endpoint, url.PathEscape(c.model))
	header := http.Header{}
	header.Set("x-goog-api-key", c.apiKey)

	var resp geminiResponse
	if err := postJSON(ctx, c.http, c.ID(), u, header, body, &resp); err != nil {
		return Completion{}, err
	}
	if resp.PromptFeedback.BlockReason != "" {
		return Completion{}, rejection(c.ID(), fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason))
	}
	if len(resp.Candidates) == 0 {
		return Completion{}, transient(c.ID(), ErrEmptyResponse)
	}

	var text strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}
	if strings.TrimSpace(text.String()) == "" {
		return Completion{}, transient(c.ID(), ErrEmptyResponse)
	}
	return Completion{Text: text.String(), TokensUsed: resp.UsageMetadata.TotalTokenCount}, nil
}
