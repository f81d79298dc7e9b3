// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package cache keeps fetched articles in memory, keyed by PMID, with
// TTL-based freshness.
//
// A stale entry is still served. Reading it schedules one background
// refresh of its factual fields; the summary and score survive the refresh.
// Entries are never removed. Keys are spread over independently locked
// shards, so operations on one PMID are linearizable and unrelated PMIDs
// never contend on a shared lock.
package cache

import (
	"context"
	"hash/fnv"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/pdiddy/medassist/pkg/types"
)

// Refresher re-fetches the factual fields of one article.
type Refresher func(ctx context.Context, pmid string) (types.ArticleRecord, error)

// Cache is the shared article cache.
type Cache struct {
	ttl            time.Duration
	refreshTimeout time.Duration
	refresh        Refresher
	now            func() time.Time
	logger         *slog.Logger

	shards []*shard

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	lifeMu sync.Mutex
	closed bool
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	types.CacheEntry
	refreshing bool
}

// Option customizes a Cache.
type Option func(*Cache)

// WithRefresher sets the function used to refresh stale entries. Without
// one, stale entries are served but never refreshed.
func WithRefresher(r Refresher) Option {
	return func(c *Cache) { c.refresh = r }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLogger sets the logger for refresh failures.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// New returns an empty Cache.
func New(cfg types.CacheConfig, opts ...Option) *Cache {
	n := cfg.Shards
	if n <= 0 {
		n = 16
	}
	timeout := cfg.RefreshTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, stop := context.WithCancel(context.Background())
	c := &Cache{
		ttl:            cfg.TTL,
		refreshTimeout: timeout,
		now:            time.Now,
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		shards:         make([]*shard, n),
		baseCtx:        ctx,
		stop:           stop,
	}
	for i := range c.shards {
		c.shards[i] = &shard{entries: make(map[string]*entry)}
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// IsStale reports whether e is older than the TTL.
func (c *Cache) IsStale(e types.CacheEntry) bool {
	return c.now().Sub(e.FetchedAt) > c.ttl
}

// Get returns the cached record for pmid. A stale record is returned as is
// and, unless a refresh for pmid is already running, one is started.
func (c *Cache) Get(pmid string) (types.ArticleRecord, bool) {
	s := c.shard(pmid)
	s.mu.Lock()
	e, ok := s.entries[pmid]
	if !ok {
		s.mu.Unlock()
		return types.ArticleRecord{}, false
	}
	rec := e.Record.Clone()
	start := c.refresh != nil && !e.refreshing && c.IsStale(e.CacheEntry) && c.track()
	if start {
		e.refreshing = true
	}
	s.mu.Unlock()

	if start {
		go c.runRefresh(pmid)
	}
	return rec, true
}

// Lookup returns the entry for pmid without scheduling a refresh.
func (c *Cache) Lookup(pmid string) (types.CacheEntry, bool) {
	s := c.shard(pmid)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[pmid]
	if !ok {
		return types.CacheEntry{}, false
	}
	return types.CacheEntry{Record: e.Record.Clone(), FetchedAt: e.FetchedAt}, true
}

// Put stores rec as freshly fetched. When pmid is already cached the
// factual fields are replaced and the summary and score are kept unless rec
// carries its own, so racing writers converge on the same entry.
func (c *Cache) Put(rec types.ArticleRecord) {
	if rec.PMID == "" {
		return
	}
	rec = rec.Clone()
	now := c.now()
	if rec.IndexedAt.IsZero() {
		rec.IndexedAt = now
	}

	s := c.shard(rec.PMID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[rec.PMID]; ok {
		e.Record = e.Record.MergeFactual(rec).Clone()
		e.FetchedAt = now
		return
	}
	s.entries[rec.PMID] = &entry{CacheEntry: types.CacheEntry{Record: rec, FetchedAt: now}}
}

// SetSummary records the AI summary for a cached pmid. It reports false
// when pmid is not cached.
func (c *Cache) SetSummary(pmid, summary string) bool {
	return c.update(pmid, func(r *types.ArticleRecord) { r.AISummary = summary })
}

// SetScore records the latest relevance score for a cached pmid.
func (c *Cache) SetScore(pmid string, score float64) bool {
	return c.update(pmid, func(r *types.ArticleRecord) { r.RelevanceScore = &score })
}

func (c *Cache) update(pmid string, fn func(*types.ArticleRecord)) bool {
	s := c.shard(pmid)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[pmid]
	if !ok {
		return false
	}
	fn(&e.Record)
	return true
}

// Preload inserts entries keeping their FetchedAt, for warm start. An
// entry does not replace a newer one already cached.
func (c *Cache) Preload(entries []types.CacheEntry) int {
	n := 0
	for _, in := range entries {
		if in.Record.PMID == "" {
			continue
		}
		s := c.shard(in.Record.PMID)
		s.mu.Lock()
		if e, ok := s.entries[in.Record.PMID]; !ok || e.FetchedAt.Before(in.FetchedAt) {
			s.entries[in.Record.PMID] = &entry{CacheEntry: types.CacheEntry{Record: in.Record.Clone(), FetchedAt: in.FetchedAt}}
			n++
		}
		s.mu.Unlock()
	}
	return n
}

// Snapshot returns a copy of every entry, ordered by PMID.
func (c *Cache) Snapshot() []types.CacheEntry {
	var out []types.CacheEntry
	for _, s := range c.shards {
		s.mu.Lock()
		for _, e := range s.entries {
			out = append(out, types.CacheEntry{Record: e.Record.Clone(), FetchedAt: e.FetchedAt})
		}
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Record.PMID < out[j].Record.PMID })
	return out
}

// Len returns the number of cached articles.
func (c *Cache) Len() int {
	n := 0
	for _, s := range c.shards {
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}

// Wait blocks until every running refresh has finished.
func (c *Cache) Wait() {
	c.wg.Wait()
}

// Close stops new refreshes and drains the running ones, giving them up to
// the refresh timeout before cancelling. The cache remains readable
// afterwards but no longer refreshes.
func (c *Cache) Close() {
	c.lifeMu.Lock()
	c.closed = true
	c.lifeMu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	grace := time.NewTimer(c.refreshTimeout)
	defer grace.Stop()
	select {
	case <-done:
	case <-grace.C:
		c.logger.Warn("cancelling article refreshes still running at close")
	}
	c.stop()
	<-done
}

// track registers a refresh unless the cache is closed.
func (c *Cache) track() bool {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()
	if c.closed {
		return false
	}
	c.wg.Add(1)
	return true
}

func (c *Cache) runRefresh(pmid string) {
	defer c.wg.Done()

	ctx, cancel := context.WithTimeout(c.baseCtx, c.refreshTimeout)
	rec, err := c.refresh(ctx, pmid)
	cancel()

	s := c.shard(pmid)
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entries[pmid]
	e.refreshing = false
	if err != nil {
		c.logger.Warn("article refresh failed", slog.String("pmid", pmid), slog.Any("error", err))
		return
	}
	if rec.PMID != pmid {
		c.logger.Warn("article refresh returned wrong record", slog.String("pmid", pmid), slog.String("got", rec.PMID))
		return
	}
	e.Record = e.Record.MergeFactual(rec).Clone()
	e.FetchedAt = c.now()
	c.logger.Debug("article refreshed", slog.String("pmid", pmid))
}

func (c *Cache) shard(pmid string) *shard {
	h := fnv.New32a()
	h.Write([]byte(pmid))
	return c.shards[h.Sum32()%uint32(len(c.shards))]
}
