// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pubmed queries the NCBI E-utilities in two steps: ESearch turns
// query terms into an ordered list of PMIDs and EFetch turns PMIDs into
// article records parsed from PubMed XML.
//
// Every HTTP call is retried with the shared retry policy. Network errors,
// 429 and 5xx are retried; other 4xx fail at once.
package pubmed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/medassist/internal/httputil"
	"github.com/pdiddy/medassist/internal/retry"
	"github.com/pdiddy/medassist/pkg/types"
)

// maxESearchResults is the retmax ceiling accepted by ESearch.
const maxESearchResults = 10000

// APIError is a failed call to an E-utilities endpoint after retries.
type APIError struct {
	// Op is "esearch" or "efetch".
	Op string

	// StatusCode is the last HTTP status, or 0 for transport failures.
	StatusCode int

	// Retryable reports whether the failure was transient.
	Retryable bool

	Err error
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("pubmed %s: HTTP %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("pubmed %s: %v", e.Op, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// ErrEmptyQuery is returned by Search for blank terms.
var ErrEmptyQuery = errors.New("search terms are empty")

// Client talks to ESearch and EFetch.
type Client struct {
	cfg    types.PubMedConfig
	http   *http.Client
	policy retry.Policy
	logger *slog.Logger
	now    func() time.Time
}

// New returns a Client. The policy's attempt deadline is replaced by
// cfg.Timeout when set. A nil httpClient uses http.DefaultClient and a nil
// logger discards output.
func New(cfg types.PubMedConfig, httpClient *http.Client, policy retry.Policy, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.FetchBatchSize <= 0 {
		cfg.FetchBatchSize = 50
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:    cfg,
		http:   httpClient,
		policy: policy.WithTimeout(cfg.Timeout),
		logger: logger,
		now:    time.Now,
	}
}

type esearchResponse struct {
	Result struct {
		Count  string   `json:"count"`
		IDList []string `json:"idlist"`
		Error  string   `json:"ERROR"`
	} `json:"esearchresult"`
	Error string `json:"error"`
}

// Search returns up to q.MaxResults PMIDs in ESearch relevance order.
func (c *Client) Search(ctx context.Context, q types.SearchQuery) ([]string, error) {
	terms := strings.TrimSpace(q.Terms)
	if terms == "" {
		return nil, ErrEmptyQuery
	}
	retmax := q.MaxResults
	if retmax <= 0 {
		retmax = 20
	}
	retmax = min(retmax, maxESearchResults)

	params := c.baseParams()
	params.Set("term", terms)
	params.Set("retmax", strconv.Itoa(retmax))
	params.Set("retmode", "json")
	params.Set("sort", "relevance")

	body, err := c.get(ctx, "esearch", params)
	if err != nil {
		return nil, err
	}

	var resp esearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &APIError{Op: "esearch", Err: fmt.Errorf("decoding response: %w", err)}
	}
	if msg := firstNonEmpty(resp.Error, resp.Result.Error); msg != "" {
		return nil, &APIError{Op: "esearch", Err: errors.New(msg)}
	}

	ids := make([]string, 0, len(resp.Result.IDList))
	seen := make(map[string]bool, len(resp.Result.IDList))
	for _, id := range resp.Result.IDList {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	c.logger.Debug("esearch complete",
		slog.String("terms", terms),
		slog.String("count", resp.Result.Count),
		slog.Int("ids", len(ids)))
	return ids, nil
}

// Fetch retrieves and parses the given PMIDs in batches. Articles that fail
// to parse are logged and skipped. When a batch fails after retries the
// records of the other batches are still returned, together with an error
// joining the failures.
func (c *Client) Fetch(ctx context.Context, pmids []string) ([]types.ArticleRecord, error) {
	var (
		records []types.ArticleRecord
		errs    []error
	)
	for start := 0; start < len(pmids); start += c.cfg.FetchBatchSize {
		end := min(start+c.cfg.FetchBatchSize, len(pmids))
		batch, err := c.fetchBatch(ctx, pmids[start:end])
		if err != nil {
			if ctx.Err() != nil {
				return records, ctx.Err()
			}
			errs = append(errs, err)
			continue
		}
		records = append(records, batch...)
	}
	return records, errors.Join(errs...)
}

// FetchOne retrieves a single article.
func (c *Client) FetchOne(ctx context.Context, pmid string) (types.ArticleRecord, error) {
	recs, err := c.fetchBatch(ctx, []string{pmid})
	if err != nil {
		return types.ArticleRecord{}, err
	}
	for _, r := range recs {
		if r.PMID == pmid {
			return r, nil
		}
	}
	return types.ArticleRecord{}, &APIError{Op: "efetch", Err: fmt.Errorf("PMID %s not returned", pmid)}
}

func (c *Client) fetchBatch(ctx context.Context, pmids []string) ([]types.ArticleRecord, error) {
	if len(pmids) == 0 {
		return nil, nil
	}
	params := c.baseParams()
	params.Set("id", strings.Join(pmids, ","))
	params.Set("retmode", "xml")
	params.Set("rettype", "abstract")

	body, err := c.get(ctx, "efetch", params)
	if err != nil {
		return nil, err
	}

	records, malformed := ParseArticles(body, c.now().UTC())
	for _, m := range malformed {
		c.logger.Warn("skipping malformed article", slog.Any("error", m))
	}
	return records, nil
}

func (c *Client) baseParams() url.Values {
	params := url.Values{}
	params.Set("db", "pubmed")
	if c.cfg.APIKey != "" {
		params.Set("api_key", c.cfg.APIKey)
	}
	if c.cfg.Tool != "" {
		params.Set("tool", c.cfg.Tool)
	}
	if c.cfg.Email != "" {
		params.Set("email", c.cfg.Email)
	}
	return params
}

// get performs a retried GET of {BaseURL}/{op}.fcgi and returns the body.
func (c *Client) get(ctx context.Context, op string, params url.Values) ([]byte, error) {
	u := fmt.Sprintf("%s/%s.fcgi?%s", c.cfg.BaseURL, op, params.Encode())

	var (
		body       []byte
		lastStatus int
	)
	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return retry.Permanent(err)
		}
		if c.cfg.UserAgent != "" {
			req.Header.Set("User-Agent", c.cfg.UserAgent)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastStatus = 0
			return err
		}
		defer resp.Body.Close()

		lastStatus = resp.StatusCode
		if err := httputil.CheckResponse(resp); err != nil {
			if httputil.Retryable(resp.StatusCode) {
				return err
			}
			return retry.Permanent(err)
		}
		body, err = io.ReadAll(resp.Body)
		return err
	}, func(err error, wait time.Duration) {
		c.logger.Warn("retrying pubmed request",
			slog.String("op", op),
			slog.Duration("wait", wait),
			slog.Any("error", err))
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		retryable := lastStatus == 0 || httputil.Retryable(lastStatus)
		return nil, &APIError{Op: op, StatusCode: lastStatus, Retryable: retryable, Err: err}
	}
	return body, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
