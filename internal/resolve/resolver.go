// Package resolve matches incoming records against existing catalog
// entities and decides create vs update. Matching runs against an
// in-memory snapshot loaded once per run, so bulk imports never do a
// per-record database round trip.
package resolve

import (
	"github.com/mkoskinen/librarian/internal/catalog"
	"github.com/mkoskinen/librarian/internal/normalize"
	"github.com/mkoskinen/librarian/internal/similarity"
)

// MatchKind reports which strategy produced a match.
type MatchKind int

const (
	MatchNone MatchKind = iota
	MatchISBN
	MatchTitle
	MatchFuzzy
)

func (k MatchKind) String() string {
	switch k {
	case MatchISBN:
		return "isbn"
	case MatchTitle:
		return "title"
	case MatchFuzzy:
		return "fuzzy"
	default:
		return "none"
	}
}

// Matcher resolves incoming records against a snapshot of the catalog.
// Strategies run in precision order; the first success wins.
type Matcher struct {
	books       []*catalog.Book
	byISBN      map[string]*catalog.Book
	byNormTitle map[string]*catalog.Book
	bookAuthors map[int64][]string
}

// NewMatcher builds the lookup indexes from a catalog snapshot.
// bookAuthors maps book id to its author names, used only by the fuzzy
// step for author confirmation.
func NewMatcher(books []catalog.Book, bookAuthors map[int64][]string) *Matcher {
	m := &Matcher{
		byISBN:      make(map[string]*catalog.Book),
		byNormTitle: make(map[string]*catalog.Book),
		bookAuthors: bookAuthors,
	}
	if m.bookAuthors == nil {
		m.bookAuthors = make(map[int64][]string)
	}
	for i := range books {
		m.index(&books[i])
	}
	return m
}

func (m *Matcher) index(b *catalog.Book) {
	m.books = append(m.books, b)
	if b.ISBN10 != "" {
		m.byISBN[b.ISBN10] = b
	}
	if b.ISBN13 != "" {
		m.byISBN[b.ISBN13] = b
	}
	if b.NormalizedTitle != "" {
		m.byNormTitle[b.NormalizedTitle] = b
	}
}

// Add registers a newly created book so later records in the same run can
// match against it.
func (m *Matcher) Add(b *catalog.Book, authors []string) {
	m.index(b)
	if len(authors) > 0 {
		m.bookAuthors[b.ID] = authors
	}
}

// Match finds the existing book an incoming record refers to, if any.
// Order: ISBN equality, exact normalized-title equality, then fuzzy title
// with author confirmation. Fuzzy title similarity alone never matches:
// generic titles collide across unrelated books.
func (m *Matcher) Match(title string, authors []string, isbn10, isbn13 string) (*catalog.Book, MatchKind) {
	if isbn13 != "" {
		if b, ok := m.byISBN[isbn13]; ok {
			return b, MatchISBN
		}
	}
	if isbn10 != "" {
		if b, ok := m.byISBN[isbn10]; ok {
			return b, MatchISBN
		}
	}

	normTitle := normalize.Title(title)
	if b, ok := m.byNormTitle[normTitle]; ok {
		return b, MatchTitle
	}

	for _, b := range m.books {
		if similarity.Score(title, b.Title) < similarity.MatchThreshold {
			continue
		}
		if m.authorsAgree(authors, m.bookAuthors[b.ID]) {
			return b, MatchFuzzy
		}
	}
	return nil, MatchNone
}

// authorsAgree reports whether at least one candidate author clears the
// similarity threshold against at least one existing author.
func (m *Matcher) authorsAgree(candidates, existing []string) bool {
	for _, c := range candidates {
		for _, e := range existing {
			if similarity.Score(c, e) >= similarity.MatchThreshold {
				return true
			}
		}
	}
	return false
}
