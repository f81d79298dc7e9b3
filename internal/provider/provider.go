// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package provider adapts text-generation vendors to one Client interface
// and routes prompts through an ordered fallback chain of them.
//
// Each client owns its vendor's request/response shape and authentication
// and maps vendor failures into two kinds: Transient (retried) and
// Rejection (skipped). Clients carry no medical logic.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pdiddy/medassist/internal/httputil"
	"github.com/pdiddy/medassist/pkg/types"
)

// Client turns a prompt into generated text.
type Client interface {
	ID() types.ProviderID
	Generate(ctx context.Context, req types.PromptRequest) (Completion, error)
}

// Completion is the raw output of one successful provider call.
type Completion struct {
	Text       string
	TokensUsed int
}

// New returns the client variant for spec. A nil httpClient uses
// http.DefaultClient; per-attempt deadlines come from the context.
func New(spec types.ProviderSpec, httpClient *http.Client) (Client, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	switch spec.ID {
	case types.ProviderOpenAI:
		return NewOpenAI(spec, httpClient), nil
	case types.ProviderGemini:
		return NewGemini(spec, httpClient), nil
	case types.ProviderOllama:
		return NewOllama(spec, httpClient), nil
	case types.ProviderHuggingFace:
		return NewHuggingFace(spec, httpClient), nil
	case types.ProviderMock:
		return NewMock(), nil
	}
	return nil, fmt.Errorf("provider %q: %w", spec.ID, ErrUnknownProvider)
}

// NewClients builds one client per spec.
func NewClients(specs []types.ProviderSpec, httpClient *http.Client) ([]Client, error) {
	clients := make([]Client, 0, len(specs))
	for _, s := range specs {
		c, err := New(s, httpClient)
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, nil
}

// estimateTokens approximates token usage at four characters per token for
// vendors that do not report usage.
func estimateTokens(texts ...string) int {
	n := 0
	for _, t := range texts {
		n += len(t)
	}
	return (n + 3) / 4
}

// postJSON sends in as a JSON POST and decodes a 2xx reply into out.
// Failures are classified for id.
func postJSON(ctx context.Context, hc *http.Client, id types.ProviderID, url string, header http.Header, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return rejection(id, fmt.Errorf("encoding request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return rejection(id, fmt.Errorf("building request: %w", err))
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return transient(id, err)
	}
	defer resp.Body.Close()

	if err := httputil.CheckResponse(resp); err != nil {
		return classify(id, err)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return transient(id, fmt.Errorf("decoding response: %w", err))
	}
	return nil
}
