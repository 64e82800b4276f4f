package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS books (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	slug TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL,
	normalized_title TEXT NOT NULL,
	subtitle TEXT NOT NULL DEFAULT '',
	isbn10 TEXT NOT NULL DEFAULT '',
	isbn13 TEXT NOT NULL DEFAULT '',
	source_id TEXT NOT NULL DEFAULT '',
	openlibrary_key TEXT NOT NULL DEFAULT '',
	googlebooks_id TEXT NOT NULL DEFAULT '',
	cover_url TEXT NOT NULL DEFAULT '',
	cover_path TEXT NOT NULL DEFAULT '',
	cover_source TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	publisher TEXT NOT NULL DEFAULT '',
	number_of_pages INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'PENDING',
	enriched_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_books_status ON books(status);
CREATE INDEX IF NOT EXISTS idx_books_isbn13 ON books(isbn13);
CREATE INDEX IF NOT EXISTS idx_books_source_id ON books(source_id);

CREATE TABLE IF NOT EXISTS authors (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	slug TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	normalized_last TEXT NOT NULL DEFAULT '',
	openlibrary_key TEXT NOT NULL DEFAULT '',
	bio TEXT NOT NULL DEFAULT '',
	photo_url TEXT NOT NULL DEFAULT '',
	birth_year TEXT NOT NULL DEFAULT '',
	death_year TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS series (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	slug TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS book_authors (
	book_id INTEGER NOT NULL REFERENCES books(id),
	author_id INTEGER NOT NULL REFERENCES authors(id),
	PRIMARY KEY (book_id, author_id)
);

CREATE TABLE IF NOT EXISTS book_series (
	book_id INTEGER NOT NULL REFERENCES books(id),
	series_id INTEGER NOT NULL REFERENCES series(id),
	position REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (book_id, series_id)
);

CREATE TABLE IF NOT EXISTS approvals (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	book_id INTEGER NOT NULL REFERENCES books(id),
	title TEXT NOT NULL,
	current_cover_url TEXT NOT NULL DEFAULT '',
	proposed_cover_url TEXT NOT NULL,
	matched_author TEXT NOT NULL DEFAULT '',
	provider TEXT NOT NULL,
	confidence INTEGER NOT NULL,
	state TEXT NOT NULL DEFAULT 'pending',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// DB is the SQLite-backed catalog store. All writes are per-row upserts;
// the only multi-row transaction is duplicate-author consolidation.
type DB struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the catalog database at path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}
	if err := db.Ping(); err != nil {
		closeErr := db.Close()
		return nil, errors.Join(fmt.Errorf("failed to connect to catalog database: %w", err), closeErr)
	}
	s := &DB{db: db, path: path}
	if err := s.init(); err != nil {
		closeErr := db.Close()
		return nil, errors.Join(err, closeErr)
	}
	return s, nil
}

func (s *DB) init() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create catalog tables: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *DB) Close() error {
	return s.db.Close()
}

const bookColumns = `id, slug, title, normalized_title, subtitle, isbn10, isbn13,
	source_id, openlibrary_key, googlebooks_id, cover_url, cover_path, cover_source,
	description, publisher, number_of_pages, status, enriched_at`

func scanBook(row interface{ Scan(...any) error }) (*Book, error) {
	var b Book
	var enrichedAt sql.NullTime
	err := row.Scan(
		&b.ID, &b.Slug, &b.Title, &b.NormalizedTitle, &b.Subtitle, &b.ISBN10, &b.ISBN13,
		&b.SourceID, &b.OpenLibraryKey, &b.GoogleBooksID, &b.CoverURL, &b.CoverPath, &b.CoverSource,
		&b.Description, &b.Publisher, &b.NumberOfPages, &b.Status, &enrichedAt,
	)
	if err != nil {
		return nil, err
	}
	if enrichedAt.Valid {
		b.EnrichedAt = enrichedAt.Time
	}
	return &b, nil
}

// InsertBook inserts a new book and sets its ID.
func (s *DB) InsertBook(b *Book) error {
	res, err := s.db.Exec(`INSERT INTO books
		(slug, title, normalized_title, subtitle, isbn10, isbn13, source_id,
		 openlibrary_key, googlebooks_id, cover_url, cover_path, cover_source,
		 description, publisher, number_of_pages, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.Slug, b.Title, b.NormalizedTitle, b.Subtitle, b.ISBN10, b.ISBN13, b.SourceID,
		b.OpenLibraryKey, b.GoogleBooksID, b.CoverURL, b.CoverPath, b.CoverSource,
		b.Description, b.Publisher, b.NumberOfPages, statusOrPending(b.Status))
	if err != nil {
		return fmt.Errorf("failed to insert book %q: %w", b.Slug, err)
	}
	b.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read book id: %w", err)
	}
	if b.Status == "" {
		b.Status = StatusPending
	}
	return nil
}

func statusOrPending(st EnrichmentStatus) EnrichmentStatus {
	if st == "" {
		return StatusPending
	}
	return st
}

// UpdateBook rewrites all mutable fields of an existing book row.
func (s *DB) UpdateBook(b *Book) error {
	var enrichedAt any
	if !b.EnrichedAt.IsZero() {
		enrichedAt = b.EnrichedAt.UTC()
	}
	_, err := s.db.Exec(`UPDATE books SET
		title = ?, normalized_title = ?, subtitle = ?, isbn10 = ?, isbn13 = ?,
		source_id = ?, openlibrary_key = ?, googlebooks_id = ?, cover_url = ?,
		cover_path = ?, cover_source = ?, description = ?, publisher = ?,
		number_of_pages = ?, status = ?, enriched_at = ?
		WHERE id = ?`,
		b.Title, b.NormalizedTitle, b.Subtitle, b.ISBN10, b.ISBN13,
		b.SourceID, b.OpenLibraryKey, b.GoogleBooksID, b.CoverURL,
		b.CoverPath, b.CoverSource, b.Description, b.Publisher,
		b.NumberOfPages, b.Status, enrichedAt, b.ID)
	if err != nil {
		return fmt.Errorf("failed to update book %d: %w", b.ID, err)
	}
	return nil
}

// GetBook fetches a single book by id.
func (s *DB) GetBook(id int64) (*Book, error) {
	row := s.db.QueryRow("SELECT "+bookColumns+" FROM books WHERE id = ?", id)
	b, err := scanBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("book %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load book %d: %w", id, err)
	}
	return b, nil
}

// AllBooks loads the full book set, ordered by id. The resolver works
// against this in-memory snapshot to avoid per-record round trips.
func (s *DB) AllBooks() ([]Book, error) {
	rows, err := s.db.Query("SELECT " + bookColumns + " FROM books ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to load books: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var books []Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
		books = append(books, *b)
	}
	return books, rows.Err()
}

// BooksByStatus pages through books in the given statuses, ordered by id.
func (s *DB) BooksByStatus(statuses []EnrichmentStatus, offset, limit int) ([]Book, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(statuses))
	args := make([]any, 0, len(statuses)+2)
	for i, st := range statuses {
		placeholders[i] = "?"
		args = append(args, st)
	}
	args = append(args, limit, offset)

	query := fmt.Sprintf(
		"SELECT %s FROM books WHERE status IN (%s) ORDER BY id LIMIT ? OFFSET ?",
		bookColumns, strings.Join(placeholders, ", "))
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query books by status: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var books []Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
		books = append(books, *b)
	}
	return books, rows.Err()
}

// CountByStatus returns the number of books in the given statuses.
func (s *DB) CountByStatus(statuses []EnrichmentStatus) (int, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	placeholders := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, st := range statuses {
		placeholders[i] = "?"
		args[i] = st
	}
	var count int
	query := fmt.Sprintf("SELECT COUNT(*) FROM books WHERE status IN (%s)", strings.Join(placeholders, ", "))
	if err := s.db.QueryRow(query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count books: %w", err)
	}
	return count, nil
}

// BookSlugs returns the set of existing book slugs.
func (s *DB) BookSlugs() (map[string]bool, error) { return s.slugs("books") }

// AuthorSlugs returns the set of existing author slugs.
func (s *DB) AuthorSlugs() (map[string]bool, error) { return s.slugs("authors") }

// SeriesSlugs returns the set of existing series slugs.
func (s *DB) SeriesSlugs() (map[string]bool, error) { return s.slugs("series") }

func (s *DB) slugs(table string) (map[string]bool, error) {
	rows, err := s.db.Query("SELECT slug FROM " + table)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s slugs: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	slugs := make(map[string]bool)
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, err
		}
		slugs[slug] = true
	}
	return slugs, rows.Err()
}

// InsertAuthor inserts a new author and sets its ID.
func (s *DB) InsertAuthor(a *Author) error {
	res, err := s.db.Exec(`INSERT INTO authors
		(slug, name, normalized_last, openlibrary_key, bio, photo_url, birth_year, death_year)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Slug, a.Name, a.NormalizedLast, a.OpenLibraryKey, a.Bio, a.PhotoURL, a.BirthYear, a.DeathYear)
	if err != nil {
		return fmt.Errorf("failed to insert author %q: %w", a.Slug, err)
	}
	a.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read author id: %w", err)
	}
	return nil
}

// UpdateAuthor rewrites all mutable fields of an existing author row.
func (s *DB) UpdateAuthor(a *Author) error {
	_, err := s.db.Exec(`UPDATE authors SET
		name = ?, normalized_last = ?, openlibrary_key = ?, bio = ?,
		photo_url = ?, birth_year = ?, death_year = ?
		WHERE id = ?`,
		a.Name, a.NormalizedLast, a.OpenLibraryKey, a.Bio,
		a.PhotoURL, a.BirthYear, a.DeathYear, a.ID)
	if err != nil {
		return fmt.Errorf("failed to update author %d: %w", a.ID, err)
	}
	return nil
}

// AllAuthors loads every author, ordered by id.
func (s *DB) AllAuthors() ([]Author, error) {
	rows, err := s.db.Query(`SELECT id, slug, name, normalized_last, openlibrary_key,
		bio, photo_url, birth_year, death_year FROM authors ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to load authors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var authors []Author
	for rows.Next() {
		var a Author
		if err := rows.Scan(&a.ID, &a.Slug, &a.Name, &a.NormalizedLast, &a.OpenLibraryKey,
			&a.Bio, &a.PhotoURL, &a.BirthYear, &a.DeathYear); err != nil {
			return nil, err
		}
		authors = append(authors, a)
	}
	return authors, rows.Err()
}

// LinkBookAuthor associates a book with an author, ignoring duplicates.
func (s *DB) LinkBookAuthor(bookID, authorID int64) error {
	_, err := s.db.Exec(
		"INSERT OR IGNORE INTO book_authors (book_id, author_id) VALUES (?, ?)",
		bookID, authorID)
	if err != nil {
		return fmt.Errorf("failed to link book %d to author %d: %w", bookID, authorID, err)
	}
	return nil
}

// AuthorsForBook returns the authors linked to a book.
func (s *DB) AuthorsForBook(bookID int64) ([]Author, error) {
	rows, err := s.db.Query(`SELECT a.id, a.slug, a.name, a.normalized_last, a.openlibrary_key,
		a.bio, a.photo_url, a.birth_year, a.death_year
		FROM authors a JOIN book_authors ba ON ba.author_id = a.id
		WHERE ba.book_id = ? ORDER BY a.id`, bookID)
	if err != nil {
		return nil, fmt.Errorf("failed to load authors for book %d: %w", bookID, err)
	}
	defer func() { _ = rows.Close() }()

	var authors []Author
	for rows.Next() {
		var a Author
		if err := rows.Scan(&a.ID, &a.Slug, &a.Name, &a.NormalizedLast, &a.OpenLibraryKey,
			&a.Bio, &a.PhotoURL, &a.BirthYear, &a.DeathYear); err != nil {
			return nil, err
		}
		authors = append(authors, a)
	}
	return authors, rows.Err()
}

// BookAuthorNames returns the author display names per book id, the
// resolver's in-memory association snapshot.
func (s *DB) BookAuthorNames() (map[int64][]string, error) {
	rows, err := s.db.Query(`SELECT ba.book_id, a.name
		FROM book_authors ba JOIN authors a ON a.id = ba.author_id
		ORDER BY ba.book_id, a.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to load book-author names: %w", err)
	}
	defer func() { _ = rows.Close() }()

	names := make(map[int64][]string)
	for rows.Next() {
		var bookID int64
		var name string
		if err := rows.Scan(&bookID, &name); err != nil {
			return nil, err
		}
		names[bookID] = append(names[bookID], name)
	}
	return names, rows.Err()
}

// BookCountForAuthor returns the number of books linked to an author.
func (s *DB) BookCountForAuthor(authorID int64) (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM book_authors WHERE author_id = ?", authorID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count books for author %d: %w", authorID, err)
	}
	return count, nil
}

// ConsolidateAuthorGroup repoints every association from the losers to the
// canonical author and deletes the losers, as one transaction. UPDATE OR
// IGNORE skips repoints that would duplicate an existing link; the
// leftover loser associations are then dropped. Re-running on an already
// consolidated group is a no-op.
func (s *DB) ConsolidateAuthorGroup(canonicalID int64, loserIDs []int64) error {
	if len(loserIDs) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin consolidation: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, loserID := range loserIDs {
		if _, err := tx.Exec(
			"UPDATE OR IGNORE book_authors SET author_id = ? WHERE author_id = ?",
			canonicalID, loserID); err != nil {
			return fmt.Errorf("failed to repoint author %d: %w", loserID, err)
		}
		if _, err := tx.Exec(
			"DELETE FROM book_authors WHERE author_id = ?", loserID); err != nil {
			return fmt.Errorf("failed to drop stale links for author %d: %w", loserID, err)
		}
		if _, err := tx.Exec("DELETE FROM authors WHERE id = ?", loserID); err != nil {
			return fmt.Errorf("failed to delete author %d: %w", loserID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit consolidation: %w", err)
	}
	return nil
}

// InsertSeries inserts a new series and sets its ID.
func (s *DB) InsertSeries(sr *Series) error {
	res, err := s.db.Exec("INSERT INTO series (slug, name) VALUES (?, ?)", sr.Slug, sr.Name)
	if err != nil {
		return fmt.Errorf("failed to insert series %q: %w", sr.Slug, err)
	}
	sr.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read series id: %w", err)
	}
	return nil
}

// AllSeries loads every series, ordered by id.
func (s *DB) AllSeries() ([]Series, error) {
	rows, err := s.db.Query("SELECT id, slug, name FROM series ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to load series: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var all []Series
	for rows.Next() {
		var sr Series
		if err := rows.Scan(&sr.ID, &sr.Slug, &sr.Name); err != nil {
			return nil, err
		}
		all = append(all, sr)
	}
	return all, rows.Err()
}

// LinkBookSeries records the book's position in a series, replacing any
// previous position.
func (s *DB) LinkBookSeries(bookID, seriesID int64, position float64) error {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO book_series (book_id, series_id, position) VALUES (?, ?, ?)",
		bookID, seriesID, position)
	if err != nil {
		return fmt.Errorf("failed to link book %d to series %d: %w", bookID, seriesID, err)
	}
	return nil
}

// SeriesEntries returns the (book, position) pairs for a series ordered by
// position.
func (s *DB) SeriesEntries(seriesID int64) ([]SeriesEntry, error) {
	rows, err := s.db.Query(
		"SELECT book_id, series_id, position FROM book_series WHERE series_id = ? ORDER BY position",
		seriesID)
	if err != nil {
		return nil, fmt.Errorf("failed to load series entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []SeriesEntry
	for rows.Next() {
		var e SeriesEntry
		if err := rows.Scan(&e.BookID, &e.SeriesID, &e.Position); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// InsertApproval queues a pending-approval record and sets its ID.
func (s *DB) InsertApproval(a *Approval) error {
	if a.State == "" {
		a.State = ApprovalPending
	}
	res, err := s.db.Exec(`INSERT INTO approvals
		(book_id, title, current_cover_url, proposed_cover_url, matched_author, provider, confidence, state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.BookID, a.Title, a.CurrentCoverURL, a.ProposedCoverURL, a.MatchedAuthor,
		a.Provider, a.Confidence, a.State)
	if err != nil {
		return fmt.Errorf("failed to insert approval for book %d: %w", a.BookID, err)
	}
	a.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read approval id: %w", err)
	}
	return nil
}

// ApprovalsByState lists approvals in the given state, oldest first.
func (s *DB) ApprovalsByState(state ApprovalState) ([]Approval, error) {
	rows, err := s.db.Query(`SELECT id, book_id, title, current_cover_url, proposed_cover_url,
		matched_author, provider, confidence, state, created_at
		FROM approvals WHERE state = ? ORDER BY id`, state)
	if err != nil {
		return nil, fmt.Errorf("failed to load approvals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var approvals []Approval
	for rows.Next() {
		var a Approval
		if err := rows.Scan(&a.ID, &a.BookID, &a.Title, &a.CurrentCoverURL, &a.ProposedCoverURL,
			&a.MatchedAuthor, &a.Provider, &a.Confidence, &a.State, &a.CreatedAt); err != nil {
			return nil, err
		}
		approvals = append(approvals, a)
	}
	return approvals, rows.Err()
}

// SetApprovalState moves an approval to a new state.
func (s *DB) SetApprovalState(id int64, state ApprovalState) error {
	_, err := s.db.Exec("UPDATE approvals SET state = ? WHERE id = ?", state, id)
	if err != nil {
		return fmt.Errorf("failed to update approval %d: %w", id, err)
	}
	return nil
}
