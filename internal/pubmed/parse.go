// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pubmed

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/pdiddy/medassist/pkg/types"
)

// MalformedArticleError reports one article of an EFetch document that
// could not be turned into a record. The rest of the document is unaffected.
type MalformedArticleError struct {
	// Index is the position of the article in the document.
	Index int

	// PMID is set when it could be read.
	PMID string

	Err error
}

func (e *MalformedArticleError) Error() string {
	if e.PMID != "" {
		return fmt.Sprintf("malformed article %d (PMID %s): %v", e.Index, e.PMID, e.Err)
	}
	return fmt.Sprintf("malformed article %d: %v", e.Index, e.Err)
}

func (e *MalformedArticleError) Unwrap() error { return e.Err }

var (
	errMissingPMID  = errors.New("missing PMID")
	errMissingTitle = errors.New("missing title")
)

var (
	articleOpen     = []byte("<PubmedArticle")
	articleClose    = []byte("</PubmedArticle>")
	articleOpenNext = []byte{'>', ' ', '\t', '\n', '\r'}
)

// ParseArticles extracts every <PubmedArticle> of an EFetch document. Each
// article is decoded on its own, so a broken article yields a
// *MalformedArticleError and is skipped while its neighbours still parse.
// indexedAt stamps the returned records.
func ParseArticles(doc []byte, indexedAt time.Time) ([]types.ArticleRecord, []error) {
	var (
		records []types.ArticleRecord
		errs    []error
	)
	for i, seg := range splitArticles(doc) {
		rec, err := parseArticle(seg, indexedAt)
		if err != nil {
			errs = append(errs, &MalformedArticleError{Index: i, PMID: rec.PMID, Err: err})
			continue
		}
		records = append(records, rec)
	}
	return records, errs
}

// splitArticles returns the byte range of each <PubmedArticle> element.
// An unterminated final article runs to the end of the document.
func splitArticles(doc []byte) [][]byte {
	var segs [][]byte
	rest := doc
	for {
		i := indexArticleOpen(rest)
		if i < 0 {
			return segs
		}
		rest = rest[i:]
		end := bytes.Index(rest, articleClose)
		if end < 0 {
			return append(segs, rest)
		}
		end += len(articleClose)
		segs = append(segs, rest[:end])
		rest = rest[end:]
	}
}

// indexArticleOpen finds "<PubmedArticle" followed by '>' or whitespace,
// skipping <PubmedArticleSet>.
func indexArticleOpen(b []byte) int {
	off := 0
	for {
		i := bytes.Index(b[off:], articleOpen)
		if i < 0 {
			return -1
		}
		next := off + i + len(articleOpen)
		if next < len(b) && bytes.IndexByte(articleOpenNext, b[next]) >= 0 {
			return off + i
		}
		off = next
	}
}

func parseArticle(seg []byte, indexedAt time.Time) (types.ArticleRecord, error) {
	var a xmlArticle
	dec := xml.NewDecoder(bytes.NewReader(seg))
	dec.Entity = xml.HTMLEntity
	if err := dec.Decode(&a); err != nil {
		return types.ArticleRecord{PMID: pmidHint(seg)}, fmt.Errorf("decoding XML: %w", err)
	}

	cit := a.MedlineCitation
	rec := types.ArticleRecord{
		PMID:      strings.TrimSpace(cit.PMID),
		Title:     cleanText(string(cit.Article.Title)),
		Journal:   cleanText(cit.Article.Journal.Title),
		IndexedAt: indexedAt,
	}
	if rec.PMID == "" {
		return rec, errMissingPMID
	}
	if rec.Title == "" {
		rec.Title = cleanText(string(cit.Article.VernacularTitle))
	}
	if rec.Title == "" {
		return rec, errMissingTitle
	}

	rec.AbstractText = joinAbstract(cit.Article.Abstract)
	rec.Authors = joinAuthors(cit.Article.Authors)
	rec.DOI = findDOI(a)
	rec.Keywords = keywords(cit)
	rec.PublicationDate, rec.PublishedAt = publicationDate(cit.Article)
	return rec, nil
}

// pmidHint pulls the PMID out of a segment that failed to decode so the
// error can name it.
func pmidHint(seg []byte) string {
	i := bytes.Index(seg, []byte("<PMID"))
	if i < 0 {
		return ""
	}
	rest := seg[i:]
	open := bytes.IndexByte(rest, '>')
	end := bytes.Index(rest, []byte("</PMID>"))
	if open < 0 || end < open {
		return ""
	}
	return strings.TrimSpace(string(rest[open+1 : end]))
}

// --- EFetch XML structures ---

type xmlArticle struct {
	XMLName         xml.Name           `xml:"PubmedArticle"`
	MedlineCitation xmlMedlineCitation `xml:"MedlineCitation"`
	ArticleIDs      []xmlArticleID     `xml:"PubmedData>ArticleIdList>ArticleId"`
}

type xmlMedlineCitation struct {
	PMID         string       `xml:"PMID"`
	Article      xmlArticleEl `xml:"Article"`
	Keywords     []richText   `xml:"KeywordList>Keyword"`
	MeshHeadings []string     `xml:"MeshHeadingList>MeshHeading>DescriptorName"`
}

type xmlArticleEl struct {
	Journal         xmlJournal     `xml:"Journal"`
	Title           richText       `xml:"ArticleTitle"`
	VernacularTitle richText       `xml:"VernacularTitle"`
	Abstract        []abstractText `xml:"Abstract>AbstractText"`
	Authors         []xmlAuthor    `xml:"AuthorList>Author"`
	ELocationIDs    []xmlELocation `xml:"ELocationID"`
	ArticleDates    []xmlDate      `xml:"ArticleDate"`
}

type xmlJournal struct {
	Title   string  `xml:"Title"`
	PubDate xmlDate `xml:"JournalIssue>PubDate"`
}

type xmlDate struct {
	Year        string `xml:"Year"`
	Month       string `xml:"Month"`
	Day         string `xml:"Day"`
	MedlineDate string `xml:"MedlineDate"`
}

type xmlAuthor struct {
	LastName       string `xml:"LastName"`
	ForeName       string `xml:"ForeName"`
	Initials       string `xml:"Initials"`
	CollectiveName string `xml:"CollectiveName"`
}

type xmlELocation struct {
	Type  string `xml:"EIdType,attr"`
	Value string `xml:",chardata"`
}

type xmlArticleID struct {
	Type  string `xml:"IdType,attr"`
	Value string `xml:",chardata"`
}

// richText is element text with any inline markup (<i>, <sup>, ...) flattened.
type richText string

func (t *richText) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	s, err := collectText(d)
	*t = richText(s)
	return err
}

// abstractText is one, possibly labeled, section of an abstract.
type abstractText struct {
	Label string
	Text  string
}

func (a *abstractText) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for _, attr := range start.Attr {
		if attr.Name.Local == "Label" {
			a.Label = attr.Value
		}
	}
	s, err := collectText(d)
	a.Text = s
	return err
}

// collectText concatenates all character data up to the end of the
// current element.
func collectText(d *xml.Decoder) (string, error) {
	var b strings.Builder
	depth := 0
	for {
		tok, err := d.Token()
		if err != nil {
			return b.String(), err
		}
		switch v := tok.(type) {
		case xml.CharData:
			b.Write(v)
		case xml.StartElement:
			depth++
		case xml.EndElement:
			if depth == 0 {
				return b.String(), nil
			}
			depth--
		}
	}
}

// --- field mapping ---

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func joinAbstract(sections []abstractText) string {
	parts := make([]string, 0, len(sections))
	for _, s := range sections {
		text := cleanText(s.Text)
		if text == "" {
			continue
		}
		if s.Label != "" {
			text = labelCase(s.Label) + ": " + text
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n")
}

// labelCase turns "BACKGROUND" into "Background".
func labelCase(label string) string {
	r, size := utf8.DecodeRuneInString(label)
	return string(unicode.ToUpper(r)) + strings.ToLower(label[size:])
}

func joinAuthors(authors []xmlAuthor) string {
	names := make([]string, 0, len(authors))
	for _, a := range authors {
		var name string
		switch {
		case a.CollectiveName != "":
			name = a.CollectiveName
		case a.ForeName != "":
			name = a.ForeName + " " + a.LastName
		case a.Initials != "":
			name = a.LastName + " " + a.Initials
		default:
			name = a.LastName
		}
		if name = cleanText(name); name != "" {
			names = append(names, name)
		}
	}
	return strings.Join(names, ", ")
}

func findDOI(a xmlArticle) string {
	for _, id := range a.ArticleIDs {
		if strings.EqualFold(id.Type, "doi") {
			if v := strings.TrimSpace(id.Value); v != "" {
				return v
			}
		}
	}
	for _, e := range a.MedlineCitation.Article.ELocationIDs {
		if strings.EqualFold(e.Type, "doi") {
			if v := strings.TrimSpace(e.Value); v != "" {
				return v
			}
		}
	}
	return ""
}

// keywords returns author keywords followed by MeSH descriptors, without
// case-insensitive duplicates.
func keywords(cit xmlMedlineCitation) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(s string) {
		s = cleanText(s)
		k := strings.ToLower(s)
		if s == "" || seen[k] {
			return
		}
		seen[k] = true
		out = append(out, s)
	}
	for _, k := range cit.Keywords {
		add(string(k))
	}
	for _, m := range cit.MeshHeadings {
		add(m)
	}
	return out
}

var monthNames = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

// publicationDate returns the display date and its parsed form. The
// journal issue date is preferred, then the electronic article date. Missing
// month or day default to 1; an unparseable year yields the zero time.
func publicationDate(art xmlArticleEl) (string, time.Time) {
	d := art.Journal.PubDate
	if d.Year == "" && d.MedlineDate == "" && len(art.ArticleDates) > 0 {
		d = art.ArticleDates[0]
	}

	year, month, day := strings.TrimSpace(d.Year), strings.TrimSpace(d.Month), strings.TrimSpace(d.Day)
	if year == "" && d.MedlineDate != "" {
		raw := cleanText(d.MedlineDate)
		fields := strings.Fields(raw)
		if len(fields) > 0 && len(fields[0]) >= 4 {
			year = fields[0][:4]
		}
		if len(fields) > 1 {
			month = fields[1]
		}
		return raw, toTime(year, month, "")
	}

	display := strings.TrimSpace(strings.Join([]string{year, month, day}, " "))
	return cleanText(display), toTime(year, month, day)
}

func toTime(year, month, day string) time.Time {
	y, err := strconv.Atoi(year)
	if err != nil || y < 1000 {
		return time.Time{}
	}
	m := time.January
	if month != "" {
		if n, err := strconv.Atoi(month); err == nil && n >= 1 && n <= 12 {
			m = time.Month(n)
		} else if len(month) >= 3 {
			if mm, ok := monthNames[strings.ToLower(month[:3])]; ok {
				m = mm
			}
		}
	}
	dd := 1
	if n, err := strconv.Atoi(day); err == nil && n >= 1 && n <= 31 {
		dd = n
	}
	return time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)
}
