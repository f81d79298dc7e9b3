// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package provider

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/pdiddy/medassist/pkg/types"
)

const huggingFaceDefaultEndpoint = "https://api-inference.huggingface.co"

// HuggingFace calls the Inference API text-generation task. The API takes
// a single prompt string and reports no usage, so tokens are estimated.
type HuggingFace struct {
	endpoint string
	model    string
	apiKey   string
	http     *http.Client
}

// NewHuggingFace returns a HuggingFace client for spec.
func NewHuggingFace(spec types.ProviderSpec, httpClient *http.Client) *HuggingFace {
	endpoint := spec.Endpoint
	if endpoint == "" {
		endpoint = huggingFaceDefaultEndpoint
	}
	return &HuggingFace{
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    spec.Model,
		apiKey:   spec.APIKey,
		http:     httpClient,
	}
}

type hfRequest struct {
	Inputs     string `json:"inputs"`
	Parameters struct {
		MaxNewTokens   int     `json:"max_new_tokens,omitempty"`
		Temperature    float64 `json:"temperature,omitempty"`
		ReturnFullText bool    `json:"return_full_text"`
	} `json:"parameters"`
	Options struct {
		WaitForModel bool `json:"wait_for_model"`
	} `json:"options"`
}

type hfGeneration struct {
	GeneratedText string `json:"generated_text"`
}

func (c *HuggingFace) ID() types.ProviderID { return types.ProviderHuggingFace }

func (c *HuggingFace) Generate(ctx context.Context, req types.PromptRequest) (Completion, error) {
	var body hfRequest
	body.Inputs = req.Transcript()
	body.Parameters.MaxNewTokens = req.MaxTokens
	body.Parameters.Temperature = req.Temperature
	body.Options.WaitForModel = true

	header := http.Header{}
	if c.apiKey != "" {
		header.Set("Authorization", "Bearer "+c.apiKey)
	}

	var out []hfGeneration
	if err := postJSON(ctx, c.http, c.ID(), c.endpoint+"/models/"+modelPath(c.model), header, body, &out); err != nil {
		return Completion{}, err
	}
	if len(out) == 0 || strings.TrimSpace(out[0].GeneratedText) == "" {
		return Completion{}, transient(c.ID(), ErrEmptyResponse)
	}
	text := strings.TrimSpace(out[0].GeneratedText)
	return Completion{Text: text, TokensUsed: estimateTokens(body.Inputs, text)}, nil
}

// modelPath escapes each segment of an "owner/name" model id.
func modelPath(model string) string {
	segs := strings.Split(model, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}
