// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package provider

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/pdiddy/medassist/internal/retry"
	"github.com/pdiddy/medassist/pkg/types"
)

// state is a step of one Generate call.
type state int

const (
	stateAttempting state = iota
	stateRetryWait
	stateNextProvider
	stateSuccess
	stateExhausted
)

func (s state) String() string {
	return [...]string{"ATTEMPTING", "RETRY_WAIT", "NEXT_PROVIDER", "SUCCESS", "EXHAUSTED"}[s]
}

// Router walks a provider chain in priority order until one succeeds.
// It holds no per-call state and is safe for concurrent use.
type Router struct {
	clients map[types.ProviderID]Client
	policy  retry.Policy
	logger  *slog.Logger
	now     func() time.Time
}

// NewRouter returns a Router over clients. The policy supplies the
// attempts per provider, the linear wait and the fallback attempt deadline.
func NewRouter(clients []Client, policy retry.Policy, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	m := make(map[types.ProviderID]Client, len(clients))
	for _, c := range clients {
		m[c.ID()] = c
	}
	return &Router{clients: m, policy: policy, logger: logger, now: time.Now}
}

// Generate sends req through chain, which must already be in priority
// order. Each provider gets up to policy.Attempts() attempts, each bounded
// by the spec's timeout (or the policy's), with a wait of delay*attempt
// between them. Transient failures are retried; a rejection moves to the
// next provider at once. When every provider fails Generate returns an
// *ExhaustedError. Cancellation of ctx aborts the walk and returns the
// context error.
func (r *Router) Generate(ctx context.Context, req types.PromptRequest, chain []types.ProviderSpec) (types.GenerationResult, error) {
	start := r.now()

	var (
		st       = stateAttempting
		idx      int
		attempt  int
		total    int
		lastErr  error
		comp     Completion
		failures []Failure
	)
	if len(chain) == 0 {
		st = stateExhausted
	}

	for {
		switch st {
		case stateAttempting:
			spec := chain[idx]
			client, ok := r.clients[spec.ID]
			if !ok {
				lastErr = rejection(spec.ID, ErrUnknownProvider)
				st = stateNextProvider
				continue
			}
			attempt++
			total++
			comp, lastErr = r.attempt(ctx, client, spec, req)
			switch {
			case lastErr == nil:
				st = stateSuccess
			case ctx.Err() != nil:
				return types.GenerationResult{}, ctx.Err()
			case !IsTransient(lastErr):
				r.logger.Warn("provider rejected request",
					slog.String("provider", string(spec.ID)),
					slog.Int("attempt", attempt),
					slog.Any("error", lastErr))
				st = stateNextProvider
			case attempt >= r.policy.Attempts():
				r.logger.Warn("provider attempts exhausted",
					slog.String("provider", string(spec.ID)),
					slog.Int("attempts", attempt),
					slog.Any("error", lastErr))
				st = stateNextProvider
			default:
				st = stateRetryWait
			}

		case stateRetryWait:
			wait := r.policy.Wait(attempt)
			r.logger.Debug("retrying provider",
				slog.String("provider", string(chain[idx].ID)),
				slog.Int("attempt", attempt),
				slog.Duration("wait", wait),
				slog.Any("error", lastErr))
			if err := retry.Sleep(ctx, wait); err != nil {
				return types.GenerationResult{}, err
			}
			st = stateAttempting

		case stateNextProvider:
			failures = append(failures, Failure{Provider: chain[idx].ID, Attempts: attempt, Err: lastErr})
			idx++
			attempt = 0
			if idx >= len(chain) {
				st = stateExhausted
			} else {
				st = stateAttempting
			}

		case stateSuccess:
			spec := chain[idx]
			res := types.GenerationResult{
				Text:         comp.Text,
				TokensUsed:   comp.TokensUsed,
				ProviderUsed: spec.ID,
				LatencyMs:    r.now().Sub(start).Milliseconds(),
				Attempts:     total,
			}
			r.logger.Info("provider succeeded",
				slog.String("provider", string(spec.ID)),
				slog.Int("attempts", total),
				slog.Int("tokens", res.TokensUsed),
				slog.Int64("latency_ms", res.LatencyMs))
			return res, nil

		case stateExhausted:
			r.logger.Error("provider chain exhausted",
				slog.Int("providers", len(chain)),
				slog.Int("attempts", total))
			return types.GenerationResult{}, &ExhaustedError{Failures: failures}
		}
	}
}

// attempt makes one bounded call and classifies its failure.
func (r *Router) attempt(ctx context.Context, c Client, spec types.ProviderSpec, req types.PromptRequest) (Completion, error) {
	actx, cancel := r.policy.WithTimeout(spec.Timeout).AttemptContext(ctx)
	defer cancel()

	comp, err := c.Generate(actx, req)
	if err != nil {
		return Completion{}, classify(spec.ID, err)
	}
	return comp, nil
}
