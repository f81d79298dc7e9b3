// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/pdiddy/medassist/internal/articlestore"
	"github.com/pdiddy/medassist/internal/assistant"
	"github.com/pdiddy/medassist/internal/cache"
	"github.com/pdiddy/medassist/internal/literature"
	"github.com/pdiddy/medassist/internal/prompt"
	"github.com/pdiddy/medassist/internal/provider"
	"github.com/pdiddy/medassist/internal/pubmed"
	"github.com/pdiddy/medassist/internal/ratelimit"
	"github.com/pdiddy/medassist/internal/relevance"
	"github.com/pdiddy/medassist/internal/retry"
	"github.com/pdiddy/medassist/internal/summary"
	"github.com/pdiddy/medassist/pkg/types"
)

// app holds the wired components for one CLI invocation.
type app struct {
	cfg       types.Config
	logger    *slog.Logger
	chain     []types.ProviderSpec
	cache     *cache.Cache
	store     *articlestore.Store
	assistant *assistant.Assistant
}

// newApp loads configuration and wires every component. Callers must
// call close.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig(viper.GetViper(), creds)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg.Log, os.Stderr)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: 2 * time.Minute}
	chain := types.ProviderChain(cfg.Providers)
	clients, err := provider.NewClients(chain, httpClient)
	if err != nil {
		return nil, err
	}
	policy := retry.FromConfig(cfg.Retry)
	router := provider.NewRouter(clients, policy, logger.With(slog.String("component", "router")))

	pm := pubmed.New(cfg.PubMed, httpClient, policy, logger.With(slog.String("component", "pubmed")))
	articles := cache.New(cfg.Cache,
		cache.WithRefresher(pm.FetchOne),
		cache.WithLogger(logger.With(slog.String("component", "cache"))))

	a := &app{cfg: cfg, logger: logger, chain: chain, cache: articles}

	if cfg.Cache.SnapshotPath != "" {
		a.store, err = articlestore.Open(cfg.Cache.SnapshotPath)
		if err != nil {
			articles.Close()
			return nil, err
		}
		entries, err := a.store.LoadAll(ctx)
		if err != nil {
			a.close(ctx)
			return nil, fmt.Errorf("loading article snapshot: %w", err)
		}
		n := articles.Preload(entries)
		logger.Debug("article snapshot loaded", slog.Int("articles", n), slog.String("path", cfg.Cache.SnapshotPath))
	}

	var summarizer literature.Summarizer
	if cfg.Search.Summarize {
		summarizer = summary.New(router, chain, cfg.Summary)
	}
	lit := literature.New(pm, articles,
		relevance.New(cfg.Search.RecencyHalfLife),
		summarizer, cfg.Search,
		logger.With(slog.String("component", "literature")))

	a.assistant = assistant.New(
		ratelimit.New(cfg.RateLimit),
		prompt.NewBuilder(cfg.Chat),
		router, chain,
		assistant.WithLiterature(lit),
		assistant.WithLogger(logger))
	return a, nil
}

// close waits for background refreshes, saves the cache snapshot and
// releases the store.
func (a *app) close(ctx context.Context) {
	a.cache.Close()
	if a.store == nil {
		return
	}
	if n, err := a.store.Save(ctx, a.cache.Snapshot()); err != nil {
		a.logger.Warn("saving article snapshot failed", slog.Any("error", err))
	} else {
		a.logger.Debug("article snapshot saved", slog.Int("articles", n))
	}
	a.store.Close()
}
