// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package cache

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

	"github.com/pdiddy/medassist/pkg/types"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func article(pmid string) types.ArticleRecord {
	return types.ArticleRecord{
		PMID:            pmid,
		Title:           "Title " + pmid,
		AbstractText:    "Abstract " + pmid,
		Authors:         "A Author, B Author",
		Journal:         "Journal",
		PublicationDate: "2024 Jan",
		Keywords:        []string{"diabetes"},
		DOI:             "10.1/" + pmid,
	}
}

func testConfig() types.CacheConfig {
	return types.CacheConfig{TTL: time.Hour, Shards: 4, RefreshTimeout: time.Second}
}

func TestPutGet_FreshHitDoesNotRefresh(t *testing.T) {
	clk := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	var refreshes atomic.Int32
	c := New(testConfig(), WithClock(clk.Now), WithRefresher(func(context.Context, string) (types.ArticleRecord, error) {
		refreshes.Add(1)
		return types.ArticleRecord{}, nil
	}))
	defer c.Close()

	rec := article("100")
	c.Put(rec)
	clk.Advance(30 * time.Minute)

	got, ok := c.Get("100")
	require.True(t, ok)
	rec.IndexedAt = clk.t.Add(-30 * time.Minute)
	assert.Equal(t, rec, got)

	c.Wait()
	assert.Equal(t, int32(0), refreshes.Load())
}

func TestGet_Miss(t *testing.T) {
	c := New(testConfig())
	_, ok := c.Get("missing")
	assert.False(t, ok)
}

func TestGet_StaleServesValueAndRefreshesOnce(t *testing.T) {
	clk := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	release := make(chan struct{})
	var refreshes atomic.Int32
	c := New(testConfig(), WithClock(clk.Now), WithRefresher(func(ctx context.Context, pmid string) (types.ArticleRecord, error) {
		refreshes.Add(1)
		<-release
		fresh := article(pmid)
		fresh.Title = "Corrected title"
		return fresh, nil
	}))
	defer c.Close()

	c.Put(article("200"))
	c.SetSummary("200", "short summary")
	c.SetScore("200", 0.8)
	clk.Advance(2 * time.Hour)

	for i := 0; i < 5; i++ {
		got, ok := c.Get("200")
		require.True(t, ok)
		assert.Equal(t, "Title 200", got.Title, "stale value served while refreshing")
	}
	close(release)
	c.Wait()

	assert.Equal(t, int32(1), refreshes.Load())

	entry, ok := c.Lookup("200")
	require.True(t, ok)
	assert.Equal(t, "Corrected title", entry.Record.Title)
	assert.Equal(t, "short summary", entry.Record.AISummary, "summary survives refresh")
	require.NotNil(t, entry.Record.RelevanceScore)
	assert.InDelta(t, 0.8, *entry.Record.RelevanceScore, 1e-9)
	assert.False(t, c.IsStale(entry))
	assert.Equal(t, 1, c.Len(), "refresh replaces in place")
}

func TestGet_FailedRefreshIsRetriedLater(t *testing.T) {
	clk := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	var refreshes atomic.Int32
	c := New(testConfig(), WithClock(clk.Now), WithRefresher(func(context.Context, string) (types.ArticleRecord, error) {
		refreshes.Add(1)
		return types.ArticleRecord{}, errors.New("pubmed down")
	}))
	defer c.Close()

	c.Put(article("300"))
	clk.Advance(2 * time.Hour)

	c.Get("300")
	c.Wait()
	c.Get("300")
	c.Wait()

	assert.Equal(t, int32(2), refreshes.Load())
	entry, _ := c.Lookup("300")
	assert.True(t, c.IsStale(entry))
}

func TestGet_StaleWithoutRefresher(t *testing.T) {
	clk := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New(testConfig(), WithClock(clk.Now))
	c.Put(article("1"))
	clk.Advance(48 * time.Hour)

	got, ok := c.Get("1")
	require.True(t, ok)
	assert.Equal(t, "1", got.PMID)
}

func TestIsStale(t *testing.T) {
	clk := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	c := New(types.CacheConfig{TTL: time.Hour}, WithClock(clk.Now))

	assert.False(t, c.IsStale(types.CacheEntry{FetchedAt: clk.t.Add(-time.Hour)}), "exactly TTL old is still fresh")
	assert.True(t, c.IsStale(types.CacheEntry{FetchedAt: clk.t.Add(-time.Hour - time.Second)}))
}

func TestPut_MergesIdempotently(t *testing.T) {
	c := New(testConfig())

	c.Put(article("400"))
	c.SetSummary("400", "kept")

	again := article("400")
	c.Put(again)
	c.Put(again)

	got, _ := c.Get("400")
	assert.Equal(t, "kept", got.AISummary)
	assert.Equal(t, 1, c.Len())

	withSummary := article("400")
	withSummary.AISummary = "newer"
	c.Put(withSummary)
	got, _ = c.Get("400")
	assert.Equal(t, "newer", got.AISummary)
}

func TestPut_CopiesInput(t *testing.T) {
	c := New(testConfig())
	rec := article("500")
	c.Put(rec)
	rec.Keywords[0] = "mutated"

	got, _ := c.Get("500")
	assert.Equal(t, []string{"diabetes"}, got.Keywords)

	got.Keywords[0] = "mutated again"
	again, _ := c.Get("500")
	assert.Equal(t, []string{"diabetes"}, again.Keywords)
}

func TestSetSummary_Missing(t *testing.T) {
	c := New(testConfig())
	assert.False(t, c.SetSummary("nope", "x"))
	assert.False(t, c.SetScore("nope", 0.1))
}

func TestConcurrentPutsSamePMID(t *testing.T) {
	c := New(testConfig())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Put(article("600"))
			if i%10 == 0 {
				c.SetSummary("600", "summary")
			}
			c.Get("600")
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, c.Len())
	got, ok := c.Get("600")
	require.True(t, ok)
	assert.Equal(t, "summary", got.AISummary)
}

func TestSnapshotAndPreload(t *testing.T) {
	clk := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	src := New(testConfig(), WithClock(clk.Now))
	for i := 3; i >= 1; i-- {
		src.Put(article(fmt.Sprint(i)))
	}
	src.SetSummary("2", "sum")

	snap := src.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "1", snap[0].Record.PMID)
	assert.Equal(t, "3", snap[2].Record.PMID)

	dst := New(testConfig(), WithClock(clk.Now))
	assert.Equal(t, 3, dst.Preload(snap))
	got, ok := dst.Lookup("2")
	require.True(t, ok)
	assert.Equal(t, "sum", got.Record.AISummary)
	assert.Equal(t, clk.t, got.FetchedAt)

	older := []types.CacheEntry{{Record: article("2"), FetchedAt: clk.t.Add(-time.Hour)}}
	assert.Equal(t, 0, dst.Preload(older), "older snapshot does not replace newer entry")
}

func TestClose_DrainsRunningRefresh(t *testing.T) {
	clk := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	started := make(chan struct{})
	release := make(chan struct{})
	c := New(testConfig(), WithClock(clk.Now), WithRefresher(func(ctx context.Context, pmid string) (types.ArticleRecord, error) {
		close(started)
		select {
		case <-release:
		case <-ctx.Done():
			return types.ArticleRecord{}, ctx.Err()
		}
		fresh := article(pmid)
		fresh.Title = "Refreshed at close"
		return fresh, nil
	}))
	c.Put(article("700"))
	clk.Advance(2 * time.Hour)
	c.Get("700")
	<-started

	done := make(chan struct{})
	go func() {
		c.Close()
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("Close returned before the refresh finished")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	<-done

	snap := c.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "Refreshed at close", snap[0].Record.Title)
	assert.Equal(t, clk.Now(), snap[0].FetchedAt)
	assert.False(t, c.IsStale(snap[0]))
}

func TestClose_CancelsRefreshAfterGrace(t *testing.T) {
	clk := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	started := make(chan struct{})
	cfg := testConfig()
	cfg.RefreshTimeout = 20 * time.Millisecond
	c := New(cfg, WithClock(clk.Now), WithRefresher(func(ctx context.Context, _ string) (types.ArticleRecord, error) {
		close(started)
		<-ctx.Done()
		return types.ArticleRecord{}, ctx.Err()
	}))
	c.Put(article("701"))
	clk.Advance(2 * time.Hour)
	c.Get("701")
	<-started

	done := make(chan struct{})
	go func() {
		c.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}

	entry, ok := c.Lookup("701")
	require.True(t, ok)
	assert.True(t, c.IsStale(entry))
}

func TestGet_AfterCloseDoesNotRefresh(t *testing.T) {
	clk := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	var refreshes atomic.Int32
	c := New(testConfig(), WithClock(clk.Now), WithRefresher(func(context.Context, string) (types.ArticleRecord, error) {
		refreshes.Add(1)
		return types.ArticleRecord{}, nil
	}))
	c.Put(article("702"))
	c.Close()
	clk.Advance(2 * time.Hour)

	_, ok := c.Get("702")
	assert.True(t, ok)
	c.Wait()
	assert.Equal(t, int32(0), refreshes.Load())
}
