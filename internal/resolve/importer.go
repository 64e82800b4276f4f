package resolve

import (
	"fmt"
	"log/slog"

	"github.com/mkoskinen/librarian/internal/catalog"
	"github.com/mkoskinen/librarian/internal/normalize"
)

// ImportRecord is the source-neutral shape every importer produces.
// Title may still carry a series annotation; Author may be in
// "Last, First" form. ISBNs are raw and get normalized here.
type ImportRecord struct {
	Title             string
	Author            string
	AdditionalAuthors string
	ISBN10            string
	ISBN13            string
	SourceID          string
	Publisher         string
	NumberOfPages     int
}

// Stats accumulates import outcomes across one run.
type Stats struct {
	Created int
	Updated int
}

// Importer resolves import records into the catalog: matched records
// update the existing book in place (fill-gaps only), unmatched records
// create book, author and series rows with unique slugs. Re-importing
// the same export is idempotent.
type Importer struct {
	db      *catalog.DB
	matcher *Matcher

	bookSlugs   map[string]bool
	authorSlugs map[string]bool
	seriesSlugs map[string]bool

	authorsByName map[string]*catalog.Author
	seriesByName  map[string]*catalog.Series

	stats Stats
}

// NewImporter loads the catalog snapshot the resolver matches against.
func NewImporter(db *catalog.DB) (*Importer, error) {
	books, err := db.AllBooks()
	if err != nil {
		return nil, fmt.Errorf("loading books: %w", err)
	}
	bookAuthors, err := db.BookAuthorNames()
	if err != nil {
		return nil, fmt.Errorf("loading book authors: %w", err)
	}
	authors, err := db.AllAuthors()
	if err != nil {
		return nil, fmt.Errorf("loading authors: %w", err)
	}
	series, err := db.AllSeries()
	if err != nil {
		return nil, fmt.Errorf("loading series: %w", err)
	}
	bookSlugs, err := db.BookSlugs()
	if err != nil {
		return nil, err
	}
	authorSlugs, err := db.AuthorSlugs()
	if err != nil {
		return nil, err
	}
	seriesSlugs, err := db.SeriesSlugs()
	if err != nil {
		return nil, err
	}

	imp := &Importer{
		db:            db,
		matcher:       NewMatcher(books, bookAuthors),
		bookSlugs:     bookSlugs,
		authorSlugs:   authorSlugs,
		seriesSlugs:   seriesSlugs,
		authorsByName: make(map[string]*catalog.Author, len(authors)),
		seriesByName:  make(map[string]*catalog.Series, len(series)),
	}
	for i := range authors {
		imp.authorsByName[normalize.Title(authors[i].Name)] = &authors[i]
	}
	for i := range series {
		imp.seriesByName[normalize.Title(series[i].Name)] = &series[i]
	}
	return imp, nil
}

// Stats returns the counters accumulated so far.
func (imp *Importer) Stats() Stats { return imp.stats }

// Import resolves one record. Matched books get their identifier gaps
// filled; new books are created together with their authors and series.
func (imp *Importer) Import(rec ImportRecord) error {
	series := normalize.ParseSeries(rec.Title)
	authors := normalize.Authors(rec.Author, rec.AdditionalAuthors)
	isbn10 := normalize.ISBN(rec.ISBN10)
	isbn13 := normalize.ISBN(rec.ISBN13)

	book, kind := imp.matcher.Match(series.CleanTitle, authors, isbn10, isbn13)
	if book != nil {
		slog.Debug("Record matched existing book", "title", series.CleanTitle, "slug", book.Slug, "via", kind.String())
		return imp.update(book, rec, isbn10, isbn13)
	}
	return imp.create(rec, series, authors, isbn10, isbn13)
}

// update fills identifier and metadata gaps on a matched book. Existing
// values are never overwritten.
func (imp *Importer) update(book *catalog.Book, rec ImportRecord, isbn10, isbn13 string) error {
	changed := false
	fill := func(dst *string, src string) {
		if *dst == "" && src != "" {
			*dst = src
			changed = true
		}
	}
	fill(&book.ISBN10, isbn10)
	fill(&book.ISBN13, isbn13)
	fill(&book.SourceID, rec.SourceID)
	fill(&book.Publisher, rec.Publisher)
	if book.NumberOfPages == 0 && rec.NumberOfPages > 0 {
		book.NumberOfPages = rec.NumberOfPages
		changed = true
	}

	if !changed {
		return nil
	}
	if err := imp.db.UpdateBook(book); err != nil {
		return fmt.Errorf("updating book %s: %w", book.Slug, err)
	}
	imp.stats.Updated++
	return nil
}

func (imp *Importer) create(rec ImportRecord, series normalize.SeriesInfo, authors []string, isbn10, isbn13 string) error {
	slug := normalize.MakeUniqueSlug(normalize.Slugify(series.CleanTitle), imp.bookSlugs)
	book := &catalog.Book{
		Slug:            slug,
		Title:           series.CleanTitle,
		NormalizedTitle: normalize.Title(series.CleanTitle),
		ISBN10:          isbn10,
		ISBN13:          isbn13,
		SourceID:        rec.SourceID,
		Publisher:       rec.Publisher,
		NumberOfPages:   rec.NumberOfPages,
	}
	if err := imp.db.InsertBook(book); err != nil {
		return fmt.Errorf("inserting book %s: %w", slug, err)
	}
	imp.bookSlugs[slug] = true
	imp.matcher.Add(book, authors)
	imp.stats.Created++

	for _, name := range authors {
		author, err := imp.ensureAuthor(name)
		if err != nil {
			return err
		}
		if err := imp.db.LinkBookAuthor(book.ID, author.ID); err != nil {
			return fmt.Errorf("linking author %s: %w", author.Slug, err)
		}
	}

	if series.Series != "" {
		sr, err := imp.ensureSeries(series.Series)
		if err != nil {
			return err
		}
		if err := imp.db.LinkBookSeries(book.ID, sr.ID, series.Order); err != nil {
			return fmt.Errorf("linking series %s: %w", sr.Slug, err)
		}
	}

	slog.Debug("Created book", "slug", slug, "authors", len(authors), "series", series.Series)
	return nil
}

// ensureAuthor finds an author by normalized name or creates one.
func (imp *Importer) ensureAuthor(name string) (*catalog.Author, error) {
	key := normalize.Title(name)
	if a, ok := imp.authorsByName[key]; ok {
		return a, nil
	}

	slug := normalize.MakeUniqueSlug(normalize.Slugify(name), imp.authorSlugs)
	author := &catalog.Author{
		Slug:           slug,
		Name:           name,
		NormalizedLast: normalize.Title(normalize.LastName(name)),
	}
	if err := imp.db.InsertAuthor(author); err != nil {
		return nil, fmt.Errorf("inserting author %s: %w", slug, err)
	}
	imp.authorSlugs[slug] = true
	imp.authorsByName[key] = author
	return author, nil
}

// ensureSeries finds a series by normalized name or creates one.
func (imp *Importer) ensureSeries(name string) (*catalog.Series, error) {
	key := normalize.Title(name)
	if sr, ok := imp.seriesByName[key]; ok {
		return sr, nil
	}

	slug := normalize.MakeUniqueSlug(normalize.Slugify(name), imp.seriesSlugs)
	sr := &catalog.Series{Slug: slug, Name: name}
	if err := imp.db.InsertSeries(sr); err != nil {
		return nil, fmt.Errorf("inserting series %s: %w", slug, err)
	}
	imp.seriesSlugs[slug] = true
	imp.seriesByName[key] = sr
	return sr, nil
}
