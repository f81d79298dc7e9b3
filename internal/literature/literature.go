// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package literature runs a literature search end to end: ESearch,
// cache lookup, EFetch for misses, ranking and per-article summaries.
package literature

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/pdiddy/medassist/internal/cache"
	"github.com/pdiddy/medassist/internal/relevance"
	"github.com/pdiddy/medassist/pkg/types"
)

// candidateFactor is how many ESearch ids are requested per wanted result,
// so local ranking has something to choose from.
const candidateFactor = 2

const defaultSharedTimeout = 2 * time.Minute

// Index finds and fetches articles. *pubmed.Client satisfies it.
type Index interface {
	Search(ctx context.Context, q types.SearchQuery) ([]string, error)
	Fetch(ctx context.Context, pmids []string) ([]types.ArticleRecord, error)
}

// Summarizer produces an AI summary for one article.
type Summarizer interface {
	Summarize(ctx context.Context, rec types.ArticleRecord) (string, error)
}

// Service answers literature searches. It is safe for concurrent use.
type Service struct {
	index     Index
	cache     *cache.Cache
	scorer    *relevance.Scorer
	summaries Summarizer
	cfg       types.SearchConfig
	logger    *slog.Logger

	fetches   singleflight.Group
	summarize singleflight.Group
}

// New returns a Service. A nil summarizer disables summaries.
func New(index Index, c *cache.Cache, scorer *relevance.Scorer, summaries Summarizer, cfg types.SearchConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.DefaultMaxResults <= 0 {
		cfg.DefaultMaxResults = 10
	}
	if cfg.MaxParallelism <= 0 {
		cfg.MaxParallelism = 4
	}
	if cfg.SharedTimeout <= 0 {
		cfg.SharedTimeout = defaultSharedTimeout
	}
	return &Service{index: index, cache: c, scorer: scorer, summaries: summaries, cfg: cfg, logger: logger}
}

// Search returns at most q.MaxResults articles ranked by relevance. Cached
// articles are not fetched again. Summary failures leave AISummary empty.
func (s *Service) Search(ctx context.Context, q types.SearchQuery) ([]types.ScoredArticle, error) {
	if q.MaxResults <= 0 {
		q.MaxResults = s.cfg.DefaultMaxResults
	}

	esq := q
	esq.MaxResults = q.MaxResults * candidateFactor
	ids, err := s.index.Search(ctx, esq)
	if err != nil {
		return nil, fmt.Errorf("searching pubmed: %w", err)
	}
	if len(ids) == 0 {
		return []types.ScoredArticle{}, nil
	}

	records, err := s.collect(ctx, ids)
	if err != nil {
		return nil, err
	}

	ranked := s.scorer.Rank(records, q)
	if len(ranked) > q.MaxResults {
		ranked = ranked[:q.MaxResults]
	}
	for i := range ranked {
		score := ranked[i].RelevanceScore
		ranked[i].Article.RelevanceScore = &score
		s.cache.SetScore(ranked[i].Article.PMID, score)
	}

	if s.cfg.Summarize && s.summaries != nil {
		if err := s.summarizeAll(ctx, ranked); err != nil {
			return nil, err
		}
	}
	relevance.Sort(ranked)

	s.logger.Info("literature search complete",
		slog.String("terms", q.Terms),
		slog.Int("candidates", len(ids)),
		slog.Int("returned", len(ranked)))
	return ranked, nil
}

// collect resolves ids from the cache, fetching misses in one call.
// Records come back in ESearch order; ids PubMed did not return are dropped.
func (s *Service) collect(ctx context.Context, ids []string) ([]types.ArticleRecord, error) {
	found := make(map[string]types.ArticleRecord, len(ids))
	var misses []string
	for _, id := range ids {
		if rec, ok := s.cache.Get(id); ok {
			found[id] = rec
			continue
		}
		misses = append(misses, id)
	}

	if len(misses) > 0 {
		fetched, err := s.fetch(ctx, misses)
		if err != nil && len(fetched) == 0 {
			return nil, fmt.Errorf("fetching articles: %w", err)
		}
		if err != nil {
			s.logger.Warn("partial article fetch", slog.Int("fetched", len(fetched)), slog.Any("error", err))
		}
		for _, rec := range fetched {
			found[rec.PMID] = rec
		}
		s.logger.Debug("articles fetched",
			slog.Int("hits", len(ids)-len(misses)),
			slog.Int("misses", len(misses)),
			slog.Int("fetched", len(fetched)))
	}

	out := make([]types.ArticleRecord, 0, len(found))
	for _, id := range ids {
		if rec, ok := found[id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// shared runs fn once per key across concurrent callers. fn runs detached
// from any caller's cancellation, bounded by SharedTimeout. Each caller
// stops waiting when its own ctx is done.
func (s *Service) shared(ctx context.Context, g *singleflight.Group, key string, fn func(context.Context) (any, error)) (any, error) {
	ch := g.DoChan(key, func() (any, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.SharedTimeout)
		defer cancel()
		return fn(callCtx)
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// fetch collapses concurrent fetches of the same id set into one call.
// Fetched records are cached even when every waiting caller has left.
func (s *Service) fetch(ctx context.Context, pmids []string) ([]types.ArticleRecord, error) {
	v, err := s.shared(ctx, &s.fetches, strings.Join(pmids, ","), func(ctx context.Context) (any, error) {
		recs, err := s.index.Fetch(ctx, pmids)
		for _, rec := range recs {
			s.cache.Put(rec)
		}
		return recs, err
	})
	recs, _ := v.([]types.ArticleRecord)
	out := make([]types.ArticleRecord, len(recs))
	for i, r := range recs {
		out[i] = r.Clone()
	}
	return out, err
}

// summarizeAll fills AISummary for articles lacking one, with at most
// MaxParallelism provider calls in flight.
func (s *Service) summarizeAll(ctx context.Context, ranked []types.ScoredArticle) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxParallelism)
	for i := range ranked {
		if ranked[i].Article.AISummary != "" {
			continue
		}
		i := i
		rec := ranked[i].Article
		g.Go(func() error {
			v, err := s.shared(gctx, &s.summarize, rec.PMID, func(ctx context.Context) (any, error) {
				text, err := s.summaries.Summarize(ctx, rec)
				if err == nil {
					s.cache.SetSummary(rec.PMID, text)
				}
				return text, err
			})
			if err != nil {
				if gctx.Err() == nil {
					s.logger.Warn("article summary failed", slog.String("pmid", rec.PMID), slog.Any("error", err))
				}
				return nil
			}
			ranked[i].Article.AISummary, _ = v.(string)
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}
