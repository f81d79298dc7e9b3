// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package retry holds the retry discipline shared by provider calls and
// literature API calls: a fixed number of attempts, each bounded by its own
// deadline, separated by a linearly growing wait (delay * attempt).
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/pdiddy/medassist/pkg/types"
)

// Policy describes how many attempts to make and how long to wait.
type Policy struct {
	// MaxRetries is the total number of attempts. Values below 1 mean 1.
	MaxRetries int

	// Delay is the base wait. The wait after attempt n is Delay*n.
	Delay time.Duration

	// Timeout bounds one attempt. Zero means no per-attempt deadline.
	Timeout time.Duration
}

// FromConfig builds a Policy from configuration.
func FromConfig(cfg types.RetryConfig) Policy {
	return Policy{MaxRetries: cfg.MaxRetries, Delay: cfg.Delay, Timeout: cfg.Timeout}
}

// Attempts returns the effective number of attempts.
func (p Policy) Attempts() int {
	if p.MaxRetries < 1 {
		return 1
	}
	return p.MaxRetries
}

// Wait returns the pause after the given 1-based attempt.
func (p Policy) Wait(attempt int) time.Duration {
	if attempt < 1 || p.Delay <= 0 {
		return 0
	}
	return p.Delay * time.Duration(attempt)
}

// WithTimeout returns a copy of p whose attempt deadline is d when d is set.
func (p Policy) WithTimeout(d time.Duration) Policy {
	if d > 0 {
		p.Timeout = d
	}
	return p
}

// AttemptContext derives the context for one attempt.
func (p Policy) AttemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.Timeout)
}

// BackOff returns a fresh backoff.BackOff yielding Delay, 2*Delay, 3*Delay...
// and stopping after Attempts()-1 waits.
func (p Policy) BackOff() backoff.BackOff {
	return backoff.WithMaxRetries(&linear{policy: p}, uint64(p.Attempts()-1))
}

type linear struct {
	policy  Policy
	attempt int
}

func (l *linear) NextBackOff() time.Duration {
	l.attempt++
	return l.policy.Wait(l.attempt)
}

func (l *linear) Reset() { l.attempt = 0 }

// Permanent marks err as not worth retrying. Do returns the unwrapped error.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Notify is called before each wait with the error that caused it.
type Notify func(err error, wait time.Duration)

// Do runs op until it succeeds, returns a Permanent error, the attempts run
// out, or ctx is done. Each call of op gets its own deadline derived from
// the policy. When ctx is cancelled Do returns the context error.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error, notify Notify) error {
	b := backoff.WithContext(p.BackOff(), ctx)
	var n backoff.Notify
	if notify != nil {
		n = backoff.Notify(notify)
	}
	return backoff.RetryNotify(func() error {
		actx, cancel := p.AttemptContext(ctx)
		defer cancel()
		return op(actx)
	}, b, n)
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
