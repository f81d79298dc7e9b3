// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package literature

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/medassist/internal/cache"
	"github.com/pdiddy/medassist/internal/provider"
	"github.com/pdiddy/medassist/internal/pubmed"
	"github.com/pdiddy/medassist/internal/relevance"
	"github.com/pdiddy/medassist/internal/retry"
	"github.com/pdiddy/medassist/internal/summary"
	"github.com/pdiddy/medassist/pkg/types"
)

var fixedNow = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

var sevenIDs = []string{"39000001", "39000002", "39000003", "39000004", "39000005", "39000006", "39000007"}

var sevenTitles = map[string]string{
	"39000001": "Diabetes treatment with once-weekly insulin",
	"39000002": "Hypertension outcomes in older adults",
	"39000003": "Type 2 diabetes treatment guidelines 2024",
	"39000004": "Sleep hygiene in shift workers",
	"39000005": "Continuous glucose monitoring in diabetes",
	"39000006": "Diabetes treatment adherence in adolescents",
	"39000007": "Vitamin D and bone density",
}

var sevenYears = map[string]int{
	"39000001": 2024, "39000002": 2019, "39000003": 2024, "39000004": 2021,
	"39000005": 2022, "39000006": 2023, "39000007": 2015,
}

func articleXML(pmid string) string {
	return fmt.Sprintf(`<PubmedArticle><MedlineCitation><PMID>%s</PMID><Article>
<Journal><Title>Test Journal</Title><JournalIssue><PubDate><Year>%d</Year><Month>Jan</Month></PubDate></JournalIssue></Journal>
<ArticleTitle>%s</ArticleTitle>
<Abstract><AbstractText>Abstract for %s.</AbstractText></Abstract>
</Article></MedlineCitation></PubmedArticle>`, pmid, sevenYears[pmid], sevenTitles[pmid], pmid)
}

type pubmedServer struct {
	*httptest.Server
	searches atomic.Int32
	fetches  atomic.Int32
	fetched  atomic.Int32
	failEF   atomic.Bool
	retmax   atomic.Value

	// When hold is set, EFetch signals entered and blocks until hold closes.
	hold    chan struct{}
	entered chan struct{}
}

func (ps *pubmedServer) holdFetches(t *testing.T) (release func()) {
	t.Helper()
	ps.hold = make(chan struct{})
	ps.entered = make(chan struct{}, 16)
	var once sync.Once
	release = func() { once.Do(func() { close(ps.hold) }) }
	t.Cleanup(release)
	return release
}

func newPubmedServer(t *testing.T) *pubmedServer {
	t.Helper()
	ps := &pubmedServer{}
	ps.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/esearch.fcgi":
			ps.searches.Add(1)
			ps.retmax.Store(r.URL.Query().Get("retmax"))
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, `{"esearchresult":{"count":"7","idlist":["`+strings.Join(sevenIDs, `","`)+`"]}}`)
		case "/efetch.fcgi":
			ps.fetches.Add(1)
			if ps.failEF.Load() {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			if ps.hold != nil {
				ps.entered <- struct{}{}
				select {
				case <-ps.hold:
				case <-r.Context().Done():
					return
				}
			}
			ids := strings.Split(r.URL.Query().Get("id"), ",")
			ps.fetched.Add(int32(len(ids)))
			var b strings.Builder
			b.WriteString(`<?xml version="1.0"?><PubmedArticleSet>`)
			for _, id := range ids {
				b.WriteString(articleXML(id))
			}
			b.WriteString(`</PubmedArticleSet>`)
			io.WriteString(w, b.String())
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(ps.Close)
	return ps
}

type countingSummarizer struct {
	calls atomic.Int32
	fail  map[string]bool
}

func (c *countingSummarizer) Summarize(_ context.Context, rec types.ArticleRecord) (string, error) {
	c.calls.Add(1)
	if c.fail[rec.PMID] {
		return "", errors.New("providers down")
	}
	return "summary of " + rec.PMID, nil
}

func newService(t *testing.T, ps *pubmedServer, sum Summarizer) (*Service, *cache.Cache) {
	t.Helper()
	client := pubmed.New(types.PubMedConfig{BaseURL: ps.URL, FetchBatchSize: 50},
		ps.Client(), retry.Policy{MaxRetries: 1, Delay: time.Millisecond, Timeout: time.Second}, nil)
	c := cache.New(types.CacheConfig{TTL: time.Hour, Shards: 4}, cache.WithRefresher(client.FetchOne))
	t.Cleanup(c.Close)
	scorer := relevance.New(5*365*24*time.Hour, relevance.WithClock(func() time.Time { return fixedNow }))
	cfg := types.SearchConfig{DefaultMaxResults: 10, MaxParallelism: 2, Summarize: true}
	return New(client, c, scorer, sum, cfg, nil), c
}

func TestSearch_EndToEnd(t *testing.T) {
	ps := newPubmedServer(t)
	sum := &countingSummarizer{}
	svc, c := newService(t, ps, sum)

	got, err := svc.Search(context.Background(), types.SearchQuery{Terms: "diabetes treatment 2024", MaxResults: 5})
	require.NoError(t, err)
	require.Len(t, got, 5)

	for i, a := range got {
		assert.NotEmpty(t, a.Article.Title)
		require.NotNil(t, a.Article.RelevanceScore)
		assert.Equal(t, a.RelevanceScore, *a.Article.RelevanceScore)
		assert.Equal(t, "summary of "+a.Article.PMID, a.Article.AISummary)
		if i > 0 {
			assert.GreaterOrEqual(t, got[i-1].RelevanceScore, a.RelevanceScore)
		}
	}
	assert.Equal(t, "39000003", got[0].Article.PMID, "title matches every query term")

	assert.Equal(t, "10", ps.retmax.Load(), "twice the wanted results are requested")
	assert.Equal(t, int32(1), ps.fetches.Load())
	assert.Equal(t, int32(7), ps.fetched.Load())
	assert.Equal(t, int32(5), sum.calls.Load())
	assert.Equal(t, 7, c.Len(), "every candidate is cached")

	entry, ok := c.Lookup(got[0].Article.PMID)
	require.True(t, ok)
	assert.Equal(t, "summary of "+got[0].Article.PMID, entry.Record.AISummary)
}

func TestSearch_CacheHitSkipsFetchAndSummary(t *testing.T) {
	ps := newPubmedServer(t)
	sum := &countingSummarizer{}
	svc, _ := newService(t, ps, sum)
	q := types.SearchQuery{Terms: "diabetes treatment 2024", MaxResults: 5}

	first, err := svc.Search(context.Background(), q)
	require.NoError(t, err)
	second, err := svc.Search(context.Background(), q)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(2), ps.searches.Load())
	assert.Equal(t, int32(1), ps.fetches.Load(), "fresh cache entries are not fetched again")
	assert.Equal(t, int32(5), sum.calls.Load(), "cached summaries are reused")
}

func TestSearch_SummaryFailureIsNotFatal(t *testing.T) {
	ps := newPubmedServer(t)
	sum := &countingSummarizer{fail: map[string]bool{"39000003": true}}
	svc, _ := newService(t, ps, sum)

	got, err := svc.Search(context.Background(), types.SearchQuery{Terms: "diabetes treatment 2024", MaxResults: 5})
	require.NoError(t, err)
	require.Len(t, got, 5)
	for _, a := range got {
		if a.Article.PMID == "39000003" {
			assert.Empty(t, a.Article.AISummary)
		} else {
			assert.NotEmpty(t, a.Article.AISummary)
		}
	}
}

func TestSearch_WithoutSummarizer(t *testing.T) {
	ps := newPubmedServer(t)
	svc, _ := newService(t, ps, nil)

	got, err := svc.Search(context.Background(), types.SearchQuery{Terms: "diabetes", MaxResults: 3})
	require.NoError(t, err)
	require.Len(t, got, 3)
	for _, a := range got {
		assert.Empty(t, a.Article.AISummary)
	}
}

func TestSearch_FetchFailure(t *testing.T) {
	ps := newPubmedServer(t)
	ps.failEF.Store(true)
	svc, _ := newService(t, ps, nil)

	_, err := svc.Search(context.Background(), types.SearchQuery{Terms: "diabetes", MaxResults: 5})
	var apiErr *pubmed.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.False(t, apiErr.Retryable)
}

func TestSearch_EmptyTerms(t *testing.T) {
	ps := newPubmedServer(t)
	svc, _ := newService(t, ps, nil)

	_, err := svc.Search(context.Background(), types.SearchQuery{Terms: "   "})
	assert.ErrorIs(t, err, pubmed.ErrEmptyQuery)
	assert.Equal(t, int32(0), ps.searches.Load())
}

func TestSearch_ConcurrentCallersShareCache(t *testing.T) {
	ps := newPubmedServer(t)
	svc, c := newService(t, ps, &countingSummarizer{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := svc.Search(context.Background(), types.SearchQuery{Terms: "diabetes treatment", MaxResults: 5})
			assert.NoError(t, err)
			assert.Len(t, got, 5)
		}()
	}
	wg.Wait()
	assert.Equal(t, 7, c.Len())
}

func TestSearch_ThroughMockProvider(t *testing.T) {
	ps := newPubmedServer(t)
	router := provider.NewRouter([]provider.Client{provider.NewMockWithReply("Mock summary.")}, retry.Policy{MaxRetries: 1}, nil)
	sum := summary.New(router, []types.ProviderSpec{{ID: types.ProviderMock, Enabled: true}}, types.SummaryConfig{MaxChars: 100})
	svc, _ := newService(t, ps, sum)

	got, err := svc.Search(context.Background(), types.SearchQuery{Terms: "diabetes treatment 2024", MaxResults: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Mock summary.", got[0].Article.AISummary)
}

func TestSearch_CancelledCallerDoesNotFailSharedFetch(t *testing.T) {
	ps := newPubmedServer(t)
	release := ps.holdFetches(t)
	svc, c := newService(t, ps, nil)
	q := types.SearchQuery{Terms: "diabetes treatment", MaxResults: 5}

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := svc.Search(ctxA, q)
		errA <- err
	}()
	<-ps.entered
	cancelA()
	assert.ErrorIs(t, <-errA, context.Canceled)

	type result struct {
		got []types.ScoredArticle
		err error
	}
	resB := make(chan result, 1)
	go func() {
		got, err := svc.Search(context.Background(), q)
		resB <- result{got, err}
	}()
	require.Eventually(t, func() bool { return ps.searches.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	release()

	b := <-resB
	require.NoError(t, b.err)
	assert.Len(t, b.got, 5)
	assert.Equal(t, int32(1), ps.fetches.Load(), "second caller reuses the fetch started by the first")
	assert.Equal(t, 7, c.Len())
}

type blockingSummarizer struct {
	entered chan struct{}
	hold    chan struct{}
	calls   atomic.Int32
}

func (b *blockingSummarizer) Summarize(ctx context.Context, rec types.ArticleRecord) (string, error) {
	b.calls.Add(1)
	b.entered <- struct{}{}
	select {
	case <-b.hold:
		return "summary of " + rec.PMID, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestSearch_CancelledCallerDoesNotFailSharedSummary(t *testing.T) {
	ps := newPubmedServer(t)
	sum := &blockingSummarizer{entered: make(chan struct{}, 4), hold: make(chan struct{})}
	var once sync.Once
	release := func() { once.Do(func() { close(sum.hold) }) }
	t.Cleanup(release)
	svc, c := newService(t, ps, sum)
	q := types.SearchQuery{Terms: "diabetes treatment 2024", MaxResults: 1}

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := svc.Search(ctxA, q)
		errA <- err
	}()
	<-sum.entered
	cancelA()
	assert.ErrorIs(t, <-errA, context.Canceled)

	resB := make(chan []types.ScoredArticle, 1)
	go func() {
		got, err := svc.Search(context.Background(), q)
		assert.NoError(t, err)
		resB <- got
	}()
	require.Eventually(t, func() bool { return ps.searches.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	release()

	got := <-resB
	require.Len(t, got, 1)
	assert.Equal(t, "summary of 39000003", got[0].Article.AISummary)
	assert.Equal(t, int32(1), sum.calls.Load())

	entry, ok := c.Lookup("39000003")
	require.True(t, ok)
	assert.Equal(t, "summary of 39000003", entry.Record.AISummary)
}
