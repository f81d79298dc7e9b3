// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/medassist/internal/retry"
	"github.com/pdiddy/medassist/pkg/types"
)

// scripted is a Client whose behavior is supplied per call.
type scripted struct {
	id    types.ProviderID
	calls atomic.Int32
	fn    func(ctx context.Context, call int, req types.PromptRequest) (Completion, error)
}

func (s *scripted) ID() types.ProviderID { return s.id }

func (s *scripted) Generate(ctx context.Context, req types.PromptRequest) (Completion, error) {
	n := int(s.calls.Add(1))
	return s.fn(ctx, n, req)
}

func alwaysTransient(id types.ProviderID) *scripted {
	return &scripted{id: id, fn: func(context.Context, int, types.PromptRequest) (Completion, error) {
		return Completion{}, transient(id, errors.New("connection refused"))
	}}
}

func alwaysOK(id types.ProviderID, text string) *scripted {
	return &scripted{id: id, fn: func(context.Context, int, types.PromptRequest) (Completion, error) {
		return Completion{Text: text, TokensUsed: 7}, nil
	}}
}

func specs(ids ...types.ProviderID) []types.ProviderSpec {
	out := make([]types.ProviderSpec, len(ids))
	for i, id := range ids {
		out[i] = types.ProviderSpec{ID: id, Priority: i + 1, Enabled: true}
	}
	return out
}

func testPolicy() retry.Policy {
	return retry.Policy{MaxRetries: 3, Delay: time.Millisecond, Timeout: time.Second}
}

func testRequest() types.PromptRequest {
	return types.PromptRequest{
		SystemPrompt: "system",
		History:      []types.Turn{{Role: types.RoleUser, Text: "hello"}},
		MaxTokens:    64,
	}
}

func TestRouter_FallsBackToLastProvider(t *testing.T) {
	for n := 1; n <= 4; n++ {
		t.Run(fmt.Sprintf("chain of %d", n), func(t *testing.T) {
			ids := []types.ProviderID{types.ProviderOpenAI, types.ProviderGemini, types.ProviderOllama, types.ProviderHuggingFace}[:n]
			var clients []Client
			var failing []*scripted
			for _, id := range ids[:n-1] {
				c := alwaysTransient(id)
				failing = append(failing, c)
				clients = append(clients, c)
			}
			last := alwaysOK(ids[n-1], "answer")
			clients = append(clients, last)

			r := NewRouter(clients, testPolicy(), nil)
			res, err := r.Generate(context.Background(), testRequest(), specs(ids...))
			require.NoError(t, err)

			assert.Equal(t, "answer", res.Text)
			assert.Equal(t, ids[n-1], res.ProviderUsed)
			assert.Equal(t, 7, res.TokensUsed)
			assert.Equal(t, 3*(n-1)+1, res.Attempts)
			for _, f := range failing {
				assert.Equal(t, int32(3), f.calls.Load(), "%s retried per hop", f.id)
			}
			assert.Equal(t, int32(1), last.calls.Load())
		})
	}
}

func TestRouter_RejectionIsNotRetried(t *testing.T) {
	first := &scripted{id: types.ProviderOpenAI, fn: func(context.Context, int, types.PromptRequest) (Completion, error) {
		return Completion{}, rejection(types.ProviderOpenAI, errors.New("invalid api key"))
	}}
	second := alwaysOK(types.ProviderGemini, "from gemini")

	r := NewRouter([]Client{first, second}, testPolicy(), nil)
	res, err := r.Generate(context.Background(), testRequest(), specs(types.ProviderOpenAI, types.ProviderGemini))
	require.NoError(t, err)

	assert.Equal(t, int32(1), first.calls.Load(), "zero retries after a rejection")
	assert.Equal(t, types.ProviderGemini, res.ProviderUsed)
	assert.Equal(t, 2, res.Attempts)
}

func TestRouter_SucceedsAfterTransientRetry(t *testing.T) {
	flaky := &scripted{id: types.ProviderOpenAI, fn: func(_ context.Context, call int, _ types.PromptRequest) (Completion, error) {
		if call < 3 {
			return Completion{}, errors.New("EOF")
		}
		return Completion{Text: "third time"}, nil
	}}
	backup := alwaysOK(types.ProviderMock, "mock")

	r := NewRouter([]Client{flaky, backup}, testPolicy(), nil)
	res, err := r.Generate(context.Background(), testRequest(), specs(types.ProviderOpenAI, types.ProviderMock))
	require.NoError(t, err)

	assert.Equal(t, types.ProviderOpenAI, res.ProviderUsed)
	assert.Equal(t, "third time", res.Text)
	assert.Equal(t, int32(0), backup.calls.Load())
}

func TestRouter_ExhaustedCarriesLastErrorPerProvider(t *testing.T) {
	a := alwaysTransient(types.ProviderOpenAI)
	b := &scripted{id: types.ProviderGemini, fn: func(context.Context, int, types.PromptRequest) (Completion, error) {
		return Completion{}, rejection(types.ProviderGemini, errors.New("model not found"))
	}}

	r := NewRouter([]Client{a, b}, testPolicy(), nil)
	_, err := r.Generate(context.Background(), testRequest(), specs(types.ProviderOpenAI, types.ProviderGemini))

	require.ErrorIs(t, err, ErrAllProvidersExhausted)
	var ex *ExhaustedError
	require.ErrorAs(t, err, &ex)
	require.Len(t, ex.Failures, 2)
	assert.Equal(t, types.ProviderOpenAI, ex.Failures[0].Provider)
	assert.Equal(t, 3, ex.Failures[0].Attempts)
	assert.Equal(t, Transient, KindOf(ex.Failures[0].Err))
	assert.Equal(t, types.ProviderGemini, ex.Failures[1].Provider)
	assert.Equal(t, 1, ex.Failures[1].Attempts)
	assert.Equal(t, Rejection, KindOf(ex.Failures[1].Err))
	assert.Contains(t, err.Error(), "model not found")
}

func TestRouter_EmptyChain(t *testing.T) {
	r := NewRouter(nil, testPolicy(), nil)
	_, err := r.Generate(context.Background(), testRequest(), nil)
	assert.ErrorIs(t, err, ErrAllProvidersExhausted)
}

func TestRouter_UnknownProviderSkipped(t *testing.T) {
	ok := alwaysOK(types.ProviderMock, "mock")
	r := NewRouter([]Client{ok}, testPolicy(), nil)

	res, err := r.Generate(context.Background(), testRequest(), specs(types.ProviderOpenAI, types.ProviderMock))
	require.NoError(t, err)
	assert.Equal(t, types.ProviderMock, res.ProviderUsed)
	assert.Equal(t, 1, res.Attempts)
}

func TestRouter_AttemptDeadlineIsTransient(t *testing.T) {
	slow := &scripted{id: types.ProviderOllama, fn: func(ctx context.Context, _ int, _ types.PromptRequest) (Completion, error) {
		<-ctx.Done()
		return Completion{}, ctx.Err()
	}}
	backup := alwaysOK(types.ProviderMock, "mock")

	chain := specs(types.ProviderOllama, types.ProviderMock)
	chain[0].Timeout = 5 * time.Millisecond

	r := NewRouter([]Client{slow, backup}, testPolicy(), nil)
	res, err := r.Generate(context.Background(), testRequest(), chain)
	require.NoError(t, err)

	assert.Equal(t, int32(3), slow.calls.Load())
	assert.Equal(t, types.ProviderMock, res.ProviderUsed)
}

func TestRouter_ParentCancellationAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	first := &scripted{id: types.ProviderOpenAI, fn: func(ctx context.Context, _ int, _ types.PromptRequest) (Completion, error) {
		cancel()
		<-ctx.Done()
		return Completion{}, ctx.Err()
	}}
	second := alwaysOK(types.ProviderMock, "mock")

	r := NewRouter([]Client{first, second}, testPolicy(), nil)
	_, err := r.Generate(ctx, testRequest(), specs(types.ProviderOpenAI, types.ProviderMock))

	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrAllProvidersExhausted)
	assert.Equal(t, int32(0), second.calls.Load())
}

func TestRouter_ConcurrentCallsAreIndependent(t *testing.T) {
	// Fails transiently only for requests marked "flaky".
	c := &scripted{id: types.ProviderOpenAI, fn: func(_ context.Context, _ int, req types.PromptRequest) (Completion, error) {
		if req.SystemPrompt == "flaky" {
			return Completion{}, errors.New("reset")
		}
		return Completion{Text: req.SystemPrompt}, nil
	}}
	backup := alwaysOK(types.ProviderMock, "backup")
	r := NewRouter([]Client{c, backup}, testPolicy(), nil)
	chain := specs(types.ProviderOpenAI, types.ProviderMock)

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := testRequest()
			req.SystemPrompt = fmt.Sprintf("req-%d", i)
			wantProvider, wantAttempts := types.ProviderOpenAI, 1
			if i%2 == 0 {
				req.SystemPrompt = "flaky"
				wantProvider, wantAttempts = types.ProviderMock, 4
			}
			res, err := r.Generate(context.Background(), req, chain)
			if err != nil {
				errs <- err
				return
			}
			if res.ProviderUsed != wantProvider || res.Attempts != wantAttempts {
				errs <- fmt.Errorf("request %d: got %s after %d attempts", i, res.ProviderUsed, res.Attempts)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
