// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package articlestore persists article cache snapshots in SQLite so a
// restarted process starts warm.
package articlestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/medassist/pkg/types"
)

// Store manages the article snapshot database.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the database at path and creates the schema if
// it does not exist.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s := &Store{db: db, path: path}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS articles (
			pmid TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			abstract TEXT,
			authors TEXT,
			journal TEXT,
			publication_date TEXT,
			published_at TEXT,
			keywords TEXT,
			doi TEXT,
			ai_summary TEXT,
			relevance_score REAL,
			indexed_at TEXT,
			fetched_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_articles_fetched_at ON articles(fetched_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Save upserts entries in one transaction. An entry never replaces a row
// fetched more recently.
func (s *Store) Save(ctx context.Context, entries []types.CacheEntry) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO articles (pmid, title, abstract, authors, journal, publication_date,
			published_at, keywords, doi, ai_summary, relevance_score, indexed_at, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(pmid) DO UPDATE SET
			title=excluded.title, abstract=excluded.abstract, authors=excluded.authors,
			journal=excluded.journal, publication_date=excluded.publication_date,
			published_at=excluded.published_at, keywords=excluded.keywords, doi=excluded.doi,
			ai_summary=excluded.ai_summary, relevance_score=excluded.relevance_score,
			indexed_at=excluded.indexed_at, fetched_at=excluded.fetched_at
		 WHERE excluded.fetched_at >= articles.fetched_at`)
	if err != nil {
		return 0, fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	saved := 0
	for _, e := range entries {
		r := e.Record
		if r.PMID == "" {
			continue
		}
		keywordsJSON, _ := json.Marshal(r.Keywords)
		var score sql.NullFloat64
		if r.RelevanceScore != nil {
			score = sql.NullFloat64{Float64: *r.RelevanceScore, Valid: true}
		}
		res, err := stmt.ExecContext(ctx,
			r.PMID, r.Title, r.AbstractText, r.Authors, r.Journal, r.PublicationDate,
			formatTime(r.PublishedAt), string(keywordsJSON), r.DOI, r.AISummary, score,
			formatTime(r.IndexedAt), formatTime(e.FetchedAt),
		)
		if err != nil {
			return 0, fmt.Errorf("saving article %s: %w", r.PMID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			saved++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing snapshot: %w", err)
	}
	return saved, nil
}

// LoadAll returns every stored entry ordered by PMID.
func (s *Store) LoadAll(ctx context.Context) ([]types.CacheEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT pmid, title, abstract, authors, journal, publication_date, published_at,
			keywords, doi, ai_summary, relevance_score, indexed_at, fetched_at
		 FROM articles ORDER BY pmid`)
	if err != nil {
		return nil, fmt.Errorf("querying articles: %w", err)
	}
	defer rows.Close()

	var out []types.CacheEntry
	for rows.Next() {
		var (
			r                                       types.ArticleRecord
			abstract, authors, journal, pubDate     sql.NullString
			publishedAt, keywordsJSON, doi, summary sql.NullString
			indexedAt                               sql.NullString
			fetchedAt                               string
			score                                   sql.NullFloat64
		)
		if err := rows.Scan(&r.PMID, &r.Title, &abstract, &authors, &journal, &pubDate,
			&publishedAt, &keywordsJSON, &doi, &summary, &score, &indexedAt, &fetchedAt); err != nil {
			return nil, fmt.Errorf("scanning article: %w", err)
		}
		r.AbstractText = abstract.String
		r.Authors = authors.String
		r.Journal = journal.String
		r.PublicationDate = pubDate.String
		r.PublishedAt = parseTime(publishedAt.String)
		r.DOI = doi.String
		r.AISummary = summary.String
		r.IndexedAt = parseTime(indexedAt.String)
		if keywordsJSON.String != "" {
			if err := json.Unmarshal([]byte(keywordsJSON.String), &r.Keywords); err != nil {
				return nil, fmt.Errorf("decoding keywords of article %s: %w", r.PMID, err)
			}
		}
		if score.Valid {
			v := score.Float64
			r.RelevanceScore = &v
		}
		out = append(out, types.CacheEntry{Record: r, FetchedAt: parseTime(fetchedAt)})
	}
	return out, rows.Err()
}

// Count returns the number of stored articles.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM articles`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting articles: %w", err)
	}
	return n, nil
}

// timeLayout is fixed width so stored timestamps compare as strings.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
