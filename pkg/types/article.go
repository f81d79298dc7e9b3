// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"strings"
	"time"
)

// Specialty is a medical specialty used to tailor prompts and ranking.
type Specialty string

const (
	SpecialtyGeneral           Specialty = "GENERAL"
	SpecialtyCardiology        Specialty = "CARDIOLOGY"
	SpecialtyEndocrinology     Specialty = "ENDOCRINOLOGY"
	SpecialtyNeurology         Specialty = "NEUROLOGY"
	SpecialtyOncology          Specialty = "ONCOLOGY"
	SpecialtyPediatrics        Specialty = "PEDIATRICS"
	SpecialtyPsychiatry        Specialty = "PSYCHIATRY"
	SpecialtyDermatology       Specialty = "DERMATOLOGY"
	SpecialtyInfectiousDisease Specialty = "INFECTIOUS_DISEASE"
	SpecialtyPulmonology       Specialty = "PULMONOLOGY"
)

// Specialties lists every known specialty.
var Specialties = []Specialty{
	SpecialtyGeneral,
	SpecialtyCardiology,
	SpecialtyEndocrinology,
	SpecialtyNeurology,
	SpecialtyOncology,
	SpecialtyPediatrics,
	SpecialtyPsychiatry,
	SpecialtyDermatology,
	SpecialtyInfectiousDisease,
	SpecialtyPulmonology,
}

// ParseSpecialty converts a case-insensitive name to a Specialty. The empty
// string yields the empty Specialty (no specialty requested).
func ParseSpecialty(s string) (Specialty, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	norm := Specialty(strings.ToUpper(strings.ReplaceAll(s, "-", "_")))
	for _, sp := range Specialties {
		if sp == norm {
			return sp, nil
		}
	}
	return "", fmt.Errorf("unknown specialty %q", s)
}

// SearchQuery describes a literature search.
type SearchQuery struct {
	// Terms is the free-text query passed to ESearch.
	Terms string `json:"terms" yaml:"terms"`

	// MaxResults bounds the number of ranked articles returned.
	MaxResults int `json:"max_results" yaml:"max_results"`

	// PatientContext optionally adds terms that influence ranking only.
	PatientContext string `json:"patient_context,omitempty" yaml:"patient_context,omitempty"`

	// Specialty optionally boosts articles matching its vocabulary.
	Specialty Specialty `json:"specialty,omitempty" yaml:"specialty,omitempty"`
}

// ArticleRecord is a parsed PubMed article. There is at most one record
// per PMID; AISummary and RelevanceScore are filled lazily.
type ArticleRecord struct {
	PMID            string    `json:"pmid" yaml:"pmid"`
	Title           string    `json:"title" yaml:"title"`
	AbstractText    string    `json:"abstract_text,omitempty" yaml:"abstract_text,omitempty"`
	Authors         string    `json:"authors,omitempty" yaml:"authors,omitempty"`
	Journal         string    `json:"journal,omitempty" yaml:"journal,omitempty"`
	PublicationDate string    `json:"publication_date,omitempty" yaml:"publication_date,omitempty"`
	PublishedAt     time.Time `json:"published_at,omitzero" yaml:"published_at,omitempty"`
	Keywords        []string  `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	DOI             string    `json:"doi,omitempty" yaml:"doi,omitempty"`
	AISummary       string    `json:"ai_summary,omitempty" yaml:"ai_summary,omitempty"`
	RelevanceScore  *float64  `json:"relevance_score,omitempty" yaml:"relevance_score,omitempty"`
	IndexedAt       time.Time `json:"indexed_at" yaml:"indexed_at"`
}

// MergeFactual returns r with the factual fields taken from fresh and the
// lazily computed fields kept unless fresh carries its own.
func (r ArticleRecord) MergeFactual(fresh ArticleRecord) ArticleRecord {
	out := fresh
	if out.AISummary == "" {
		out.AISummary = r.AISummary
	}
	if out.RelevanceScore == nil {
		out.RelevanceScore = r.RelevanceScore
	}
	if !r.IndexedAt.IsZero() && (out.IndexedAt.IsZero() || r.IndexedAt.Before(out.IndexedAt)) {
		out.IndexedAt = r.IndexedAt
	}
	return out
}

// ScoredArticle pairs an article with its relevance for one query.
type ScoredArticle struct {
	Article        ArticleRecord `json:"article" yaml:"article"`
	RelevanceScore float64       `json:"relevance_score" yaml:"relevance_score"`
}

// CacheEntry is a cached article with the time its factual fields were
// last fetched.
type CacheEntry struct {
	Record    ArticleRecord `json:"record" yaml:"record"`
	FetchedAt time.Time     `json:"fetched_at" yaml:"fetched_at"`
}

// Clone returns a deep copy of r.
func (r ArticleRecord) Clone() ArticleRecord {
	if r.Keywords != nil {
		r.Keywords = append([]string(nil), r.Keywords...)
	}
	if r.RelevanceScore != nil {
		s := *r.RelevanceScore
		r.RelevanceScore = &s
	}
	return r
}
