// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package relevance ranks articles against a search query.
//
// The score is a weighted sum in [0,1]:
//
//	0.60 * term overlap   (title 0.5, abstract 0.3, keywords 0.2 per term;
//	                       patient context terms count half)
//	0.25 * recency        (1 / (1 + age/halfLife); unknown date scores 0)
//	0.15 * specialty      (1 when title or keywords hit the specialty vocabulary)
//
// Scoring is a pure function of the article, the query and the clock.
package relevance

import (
	"math"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/pdiddy/medassist/pkg/types"
)

const (
	weightOverlap   = 0.60
	weightRecency   = 0.25
	weightSpecialty = 0.15

	fieldTitle    = 0.5
	fieldAbstract = 0.3
	fieldKeywords = 0.2

	contextWeight = 0.5

	defaultHalfLife = 5 * 365 * 24 * time.Hour
	yearDuration    = 365.25 * 24 * float64(time.Hour)
)

// Scorer computes relevance scores.
type Scorer struct {
	halfLife time.Duration
	now      func() time.Time
}

// Option customizes a Scorer.
type Option func(*Scorer)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scorer) { s.now = now }
}

// New returns a Scorer whose recency component halves every halfLife.
func New(halfLife time.Duration, opts ...Option) *Scorer {
	if halfLife <= 0 {
		halfLife = defaultHalfLife
	}
	s := &Scorer{halfLife: halfLife, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Score returns the relevance of rec for q in [0,1].
func (s *Scorer) Score(rec types.ArticleRecord, q types.SearchQuery) float64 {
	score := weightOverlap*overlap(rec, q) +
		weightRecency*s.recency(rec.PublishedAt) +
		weightSpecialty*specialtyMatch(rec, q.Specialty)
	score = math.Max(0, math.Min(1, score))
	// Round away float noise so equal inputs compare equal across runs.
	return math.Round(score*1e6) / 1e6
}

// Rank scores every record and returns them in ranking order.
func (s *Scorer) Rank(recs []types.ArticleRecord, q types.SearchQuery) []types.ScoredArticle {
	out := make([]types.ScoredArticle, len(recs))
	for i, r := range recs {
		out[i] = types.ScoredArticle{Article: r, RelevanceScore: s.Score(r, q)}
	}
	Sort(out)
	return out
}

// Sort orders articles by score descending, then publication date
// descending, then PMID ascending.
func Sort(articles []types.ScoredArticle) {
	sort.SliceStable(articles, func(i, j int) bool {
		return Less(articles[i], articles[j])
	})
}

// Less reports whether a ranks before b.
func Less(a, b types.ScoredArticle) bool {
	if a.RelevanceScore != b.RelevanceScore {
		return a.RelevanceScore > b.RelevanceScore
	}
	if !a.Article.PublishedAt.Equal(b.Article.PublishedAt) {
		return a.Article.PublishedAt.After(b.Article.PublishedAt)
	}
	return pmidLess(a.Article.PMID, b.Article.PMID)
}

// pmidLess compares numeric PMIDs numerically and anything else lexically.
func pmidLess(a, b string) bool {
	if isDigits(a) && isDigits(b) {
		a, b = strings.TrimLeft(a, "0"), strings.TrimLeft(b, "0")
		if len(a) != len(b) {
			return len(a) < len(b)
		}
	}
	return a < b
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (s *Scorer) recency(published time.Time) float64 {
	if published.IsZero() {
		return 0
	}
	age := s.now().Sub(published)
	if age <= 0 {
		return 1
	}
	ageYears := float64(age) / yearDuration
	halfYears := float64(s.halfLife) / yearDuration
	return 1 / (1 + ageYears/halfYears)
}

func overlap(rec types.ArticleRecord, q types.SearchQuery) float64 {
	queryTerms := Tokenize(q.Terms)
	if len(queryTerms) == 0 {
		return 0
	}
	inQuery := make(map[string]bool, len(queryTerms))
	for _, t := range queryTerms {
		inQuery[t] = true
	}
	var contextTerms []string
	for _, t := range Tokenize(q.PatientContext) {
		if !inQuery[t] {
			contextTerms = append(contextTerms, t)
		}
	}

	title := termSet(rec.Title)
	abstract := termSet(rec.AbstractText)
	keywords := termSet(strings.Join(rec.Keywords, " "))

	termScore := func(t string) float64 {
		v := 0.0
		if title[t] {
			v += fieldTitle
		}
		if abstract[t] {
			v += fieldAbstract
		}
		if keywords[t] {
			v += fieldKeywords
		}
		return v
	}

	var sum float64
	for _, t := range queryTerms {
		sum += termScore(t)
	}
	for _, t := range contextTerms {
		sum += contextWeight * termScore(t)
	}
	return sum / (float64(len(queryTerms)) + contextWeight*float64(len(contextTerms)))
}

func specialtyMatch(rec types.ArticleRecord, sp types.Specialty) float64 {
	vocab := vocabulary[sp]
	if len(vocab) == 0 {
		return 0
	}
	hay := " " + strings.Join(Tokenize(rec.Title+" "+strings.Join(rec.Keywords, " ")), " ") + " "
	for _, v := range vocab {
		if strings.Contains(hay, " "+v+" ") {
			return 1
		}
	}
	return 0
}

func termSet(text string) map[string]bool {
	toks := Tokenize(text)
	set := make(map[string]bool, len(toks))
	for _, t := range toks {
		set[t] = true
	}
	return set
}

// Tokenize lowercases text and splits it into unique terms in first-seen
// order, dropping stop words and single characters.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 || stopWords[f] || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "in": true, "is": true,
	"it": true, "of": true, "on": true, "or": true, "that": true, "the": true,
	"this": true, "to": true, "was": true, "were": true, "with": true,
	"vs": true, "versus": true, "after": true, "among": true, "between": true,
}
