// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package provider

import (
	"context"
	"strings"

	"github.com/pdiddy/medassist/pkg/types"
)

// DefaultMockReply is the canned text returned by Mock unless overridden.
const DefaultMockReply = "This is a simulated response from the offline assistant. " +
	"For personal medical advice, please consult a qualified healthcare professional."

// Mock returns deterministic text without any I/O. It is selected by
// configuration when no real provider is available.
type Mock struct {
	reply string
}

// NewMock returns a Mock with the default reply.
func NewMock() *Mock { return &Mock{reply: DefaultMockReply} }

// NewMockWithReply returns a Mock that always answers reply. The
// placeholder {message} is replaced by the last user turn.
func NewMockWithReply(reply string) *Mock { return &Mock{reply: reply} }

func (m *Mock) ID() types.ProviderID { return types.ProviderMock }

func (m *Mock) Generate(ctx context.Context, req types.PromptRequest) (Completion, error) {
	if err := ctx.Err(); err != nil {
		return Completion{}, transient(m.ID(), err)
	}
	text := m.reply
	if strings.Contains(text, "{message}") {
		text = strings.ReplaceAll(text, "{message}", lastUserTurn(req.History))
	}
	return Completion{Text: text, TokensUsed: estimateTokens(req.Transcript(), text)}, nil
}

func lastUserTurn(history []types.Turn) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == types.RoleUser {
			return history[i].Text
		}
	}
	return ""
}
