// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package assistant is the entry point for chat and literature requests.
// It applies per-user rate limiting, answers emergencies without calling
// a provider and tags every request with an ID for log correlation.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/pdiddy/medassist/internal/prompt"
	"github.com/pdiddy/medassist/internal/provider"
	"github.com/pdiddy/medassist/internal/pubmed"
	"github.com/pdiddy/medassist/internal/ratelimit"
	"github.com/pdiddy/medassist/pkg/types"
)

// Outcome classifies how a request ended.
type Outcome string

const (
	OutcomeGenerated             Outcome = "GENERATED"
	OutcomeEmergency             Outcome = "EMERGENCY"
	OutcomeRateLimited           Outcome = "RATE_LIMITED"
	OutcomeProvidersExhausted    Outcome = "PROVIDERS_EXHAUSTED"
	OutcomeInvalidRequest        Outcome = "INVALID_REQUEST"
	OutcomeLiteratureUnavailable Outcome = "LITERATURE_UNAVAILABLE"
	OutcomeInternal              Outcome = "INTERNAL"
)

var (
	// ErrRateLimited is returned when the user has no tokens left.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrInvalidRequest is wrapped by validation failures.
	ErrInvalidRequest = errors.New("invalid request")
)

// OutcomeOf maps an error returned by this package to its Outcome.
func OutcomeOf(err error) Outcome {
	var apiErr *pubmed.APIError
	switch {
	case err == nil:
		return OutcomeGenerated
	case errors.Is(err, ErrRateLimited):
		return OutcomeRateLimited
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, pubmed.ErrEmptyQuery):
		return OutcomeInvalidRequest
	case errors.Is(err, provider.ErrAllProvidersExhausted):
		return OutcomeProvidersExhausted
	case errors.As(err, &apiErr):
		return OutcomeLiteratureUnavailable
	default:
		return OutcomeInternal
	}
}

// Generator sends a prompt down a provider chain.
type Generator interface {
	Generate(ctx context.Context, req types.PromptRequest, chain []types.ProviderSpec) (types.GenerationResult, error)
}

// Literature answers ranked literature searches.
type Literature interface {
	Search(ctx context.Context, q types.SearchQuery) ([]types.ScoredArticle, error)
}

// ChatRequest is one user message with its conversation.
type ChatRequest struct {
	UserID         string
	Message        string
	History        []types.Turn
	MedicalContext string
	Specialty      types.Specialty
}

// ChatReply is the answer to a ChatRequest.
type ChatReply struct {
	RequestID string
	Outcome   Outcome
	Text      string

	// Result is set for generated replies.
	Result *types.GenerationResult

	// Emergency is set when the message matched an emergency keyword.
	Emergency *prompt.Emergency
}

// SearchRequest is a literature search on behalf of a user.
type SearchRequest struct {
	UserID         string
	Query          string
	MaxResults     int
	PatientContext string
	Specialty      types.Specialty
}

// Assistant wires the rate limiter, prompt builder, provider router and
// literature service together.
type Assistant struct {
	limiter    *ratelimit.Limiter
	builder    *prompt.Builder
	gen        Generator
	chain      []types.ProviderSpec
	literature Literature
	logger     *slog.Logger
	newID      func() string
}

// Option customizes an Assistant.
type Option func(*Assistant)

// WithLiterature enables SearchLiterature.
func WithLiterature(l Literature) Option {
	return func(a *Assistant) { a.literature = l }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Assistant) { a.logger = l }
}

// WithRequestIDs replaces the request ID generator.
func WithRequestIDs(fn func() string) Option {
	return func(a *Assistant) { a.newID = fn }
}

// New returns an Assistant that generates replies through gen using the
// given provider chain.
func New(limiter *ratelimit.Limiter, builder *prompt.Builder, gen Generator, chain []types.ProviderSpec, opts ...Option) *Assistant {
	a := &Assistant{
		limiter: limiter,
		builder: builder,
		gen:     gen,
		chain:   chain,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		newID:   uuid.NewString,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Quota reports userID's remaining request allowance without spending it.
func (a *Assistant) Quota(userID string) ratelimit.Status {
	return a.limiter.Status(userID)
}

// GenerateChatReply answers a chat message. Emergency messages get the
// canned response at once, before rate limiting and without any provider
// call. Otherwise the user must be admitted by the rate limiter and the
// reply comes from the first provider in the chain that succeeds. The
// returned reply carries the outcome even when err is non-nil.
func (a *Assistant) GenerateChatReply(ctx context.Context, req ChatRequest) (ChatReply, error) {
	reply := ChatReply{RequestID: a.newID()}
	log := a.logger.With(slog.String("request_id", reply.RequestID), slog.String("user", req.UserID))

	if err := validateChat(req); err != nil {
		reply.Outcome = OutcomeOf(err)
		log.Warn("chat request rejected", slog.Any("error", err))
		return reply, err
	}

	promptReq, emergency := a.builder.Build(req.Message, req.History, req.MedicalContext, req.Specialty)
	if emergency != nil {
		reply.Outcome = OutcomeEmergency
		reply.Text = emergency.Response
		reply.Emergency = emergency
		log.Warn("emergency keyword matched", slog.String("keyword", emergency.Keyword))
		return reply, nil
	}

	if !a.limiter.Admit(req.UserID) {
		reply.Outcome = OutcomeRateLimited
		log.Info("chat request rate limited")
		return reply, ErrRateLimited
	}

	res, err := a.gen.Generate(ctx, promptReq, a.chain)
	if err != nil {
		reply.Outcome = OutcomeOf(err)
		log.Error("chat generation failed", slog.String("outcome", string(reply.Outcome)), slog.Any("error", err))
		return reply, fmt.Errorf("generating reply: %w", err)
	}
	res.RequestID = reply.RequestID
	reply.Outcome = OutcomeGenerated
	reply.Text = res.Text
	reply.Result = &res
	log.Info("chat reply generated",
		slog.String("provider", string(res.ProviderUsed)),
		slog.Int("attempts", res.Attempts),
		slog.Int("tokens", res.TokensUsed),
		slog.Int64("latency_ms", res.LatencyMs))
	return reply, nil
}

// SearchLiterature runs a ranked literature search for an admitted user.
func (a *Assistant) SearchLiterature(ctx context.Context, req SearchRequest) ([]types.ScoredArticle, error) {
	log := a.logger.With(slog.String("request_id", a.newID()), slog.String("user", req.UserID))

	if err := validateSearch(req); err != nil {
		log.Warn("search request rejected", slog.Any("error", err))
		return nil, err
	}
	if a.literature == nil {
		return nil, fmt.Errorf("%w: literature search is not configured", ErrInvalidRequest)
	}
	if !a.limiter.Admit(req.UserID) {
		log.Info("search request rate limited")
		return nil, ErrRateLimited
	}

	articles, err := a.literature.Search(ctx, types.SearchQuery{
		Terms:          req.Query,
		MaxResults:     req.MaxResults,
		PatientContext: req.PatientContext,
		Specialty:      req.Specialty,
	})
	if err != nil {
		log.Error("literature search failed", slog.String("outcome", string(OutcomeOf(err))), slog.Any("error", err))
		return nil, err
	}
	log.Info("literature search answered", slog.Int("articles", len(articles)))
	return articles, nil
}

func validateChat(req ChatRequest) error {
	switch {
	case strings.TrimSpace(req.UserID) == "":
		return fmt.Errorf("%w: user id is required", ErrInvalidRequest)
	case strings.TrimSpace(req.Message) == "":
		return fmt.Errorf("%w: message is empty", ErrInvalidRequest)
	}
	return nil
}

func validateSearch(req SearchRequest) error {
	switch {
	case strings.TrimSpace(req.UserID) == "":
		return fmt.Errorf("%w: user id is required", ErrInvalidRequest)
	case strings.TrimSpace(req.Query) == "":
		return fmt.Errorf("%w: query is empty", ErrInvalidRequest)
	case req.MaxResults < 0:
		return fmt.Errorf("%w: max results must not be negative", ErrInvalidRequest)
	}
	return nil
}
