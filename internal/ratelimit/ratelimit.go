// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ratelimit implements per-user admission control. Each user owns
// a token bucket (capacity Burst, refill RequestsPerMinute/3600 tokens per
// second) plus a coarse ceiling of RequestsPerHour per clock hour.
//
// Buckets are created on first use and kept for the process lifetime.
// Users are spread over independently locked shards; a user's bucket is
// mutated under that user's own mutex only.
package ratelimit

import (
	"hash/fnv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pdiddy/medassist/pkg/types"
)

const shardCount = 32

// Limiter admits or denies requests per user.
type Limiter struct {
	cfg    types.RateLimitConfig
	now    func() time.Time
	shards [shardCount]shard
}

type shard struct {
	mu      sync.RWMutex
	buckets map[string]*bucket
}

type bucket struct {
	mu          sync.Mutex
	tokens      *rate.Limiter
	windowStart time.Time
	windowCount int
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New returns a Limiter for cfg.
func New(cfg types.RateLimitConfig, opts ...Option) *Limiter {
	l := &Limiter{cfg: cfg, now: time.Now}
	for i := range l.shards {
		l.shards[i].buckets = make(map[string]*bucket)
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Admit reports whether userID may make a request now. A denial is final
// for this request; nothing is queued.
func (l *Limiter) Admit(userID string) bool {
	b := l.bucket(userID)
	now := l.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollWindow(now)
	if l.cfg.RequestsPerHour > 0 && b.windowCount >= l.cfg.RequestsPerHour {
		return false
	}
	if !b.tokens.AllowN(now, 1) {
		return false
	}
	b.windowCount++
	return true
}

// Status is a point-in-time view of a user's allowance.
type Status struct {
	// Tokens is the number of requests available without waiting.
	Tokens float64

	// HourRemaining is what is left of the hourly ceiling, or -1 when unlimited.
	HourRemaining int

	// WindowResets is when the hourly counter resets.
	WindowResets time.Time
}

// Status reports the allowance for userID without consuming it.
func (l *Limiter) Status(userID string) Status {
	b := l.bucket(userID)
	now := l.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollWindow(now)
	st := Status{
		Tokens:        b.tokens.TokensAt(now),
		HourRemaining: -1,
		WindowResets:  b.windowStart.Add(time.Hour),
	}
	if l.cfg.RequestsPerHour > 0 {
		st.HourRemaining = max(l.cfg.RequestsPerHour-b.windowCount, 0)
	}
	return st
}

func (l *Limiter) bucket(userID string) *bucket {
	s := &l.shards[shardFor(userID)]

	s.mu.RLock()
	b, ok := s.buckets[userID]
	s.mu.RUnlock()
	if ok {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.buckets[userID]; ok {
		return b
	}
	refill := rate.Limit(float64(l.cfg.RequestsPerMinute) / 3600)
	b = &bucket{
		tokens:      rate.NewLimiter(refill, l.cfg.Burst),
		windowStart: l.now().Truncate(time.Hour),
	}
	s.buckets[userID] = b
	return b
}

func (b *bucket) rollWindow(now time.Time) {
	start := now.Truncate(time.Hour)
	if start.After(b.windowStart) {
		b.windowStart = start
		b.windowCount = 0
	}
}

func shardFor(key string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key))
	return h.Sum32() % shardCount
}
