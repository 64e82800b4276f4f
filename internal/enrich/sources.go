// Package enrich drives the metadata enrichment pipeline: it selects
// catalog books needing work, queries provider sources in priority
// order, merges candidate metadata under confidence rules, validates
// covers and persists the result with a resumable cursor.
package enrich

import (
	"context"

	"github.com/mkoskinen/librarian/internal/catalog"
	"github.com/mkoskinen/librarian/internal/provider"
	"github.com/mkoskinen/librarian/internal/provider/googlebooks"
	"github.com/mkoskinen/librarian/internal/provider/openlibrary"
)

// Source is a provider client bound to the catalog field that stores its
// record id, so the orchestrator can run the id-based lookup strategy
// without knowing provider specifics.
type Source interface {
	Name() string
	Priority() int
	AcceptFloor() int
	LookupISBN(ctx context.Context, isbn string) (*provider.Metadata, error)
	LookupID(ctx context.Context, id string) (*provider.Metadata, error)
	Search(ctx context.Context, title, author string) (*provider.Metadata, error)

	// StoredID returns the book's existing record id for this source,
	// empty when none is known.
	StoredID(b *catalog.Book) string
	// StoreID records a discovered id on the book.
	StoreID(b *catalog.Book, id string)
}

// AuthorSource is implemented by sources that also expose per-author
// records keyed by the ids in Metadata.AuthorKeys.
type AuthorSource interface {
	Source
	LookupAuthor(ctx context.Context, key string) (*provider.AuthorMetadata, error)
}

type openLibrarySource struct {
	*openlibrary.Client
}

// NewOpenLibrarySource binds an OpenLibrary client to the catalog's
// OpenLibrary work-key column.
func NewOpenLibrarySource(c *openlibrary.Client) AuthorSource {
	return openLibrarySource{c}
}

func (s openLibrarySource) LookupID(ctx context.Context, id string) (*provider.Metadata, error) {
	return s.LookupWork(ctx, id)
}

func (s openLibrarySource) StoredID(b *catalog.Book) string { return b.OpenLibraryKey }

func (s openLibrarySource) StoreID(b *catalog.Book, id string) {
	if b.OpenLibraryKey == "" {
		b.OpenLibraryKey = id
	}
}

type googleBooksSource struct {
	*googlebooks.Client
}

// NewGoogleBooksSource binds a Google Books client to the catalog's
// volume-id column.
func NewGoogleBooksSource(c *googlebooks.Client) Source {
	return googleBooksSource{c}
}

func (s googleBooksSource) LookupID(ctx context.Context, id string) (*provider.Metadata, error) {
	return s.LookupVolume(ctx, id)
}

func (s googleBooksSource) StoredID(b *catalog.Book) string { return b.GoogleBooksID }

func (s googleBooksSource) StoreID(b *catalog.Book, id string) {
	if b.GoogleBooksID == "" {
		b.GoogleBooksID = id
	}
}

// DefaultSources returns the production source set in priority order.
func DefaultSources(googleAPIKey string) []Source {
	return []Source{
		NewOpenLibrarySource(openlibrary.New()),
		NewGoogleBooksSource(googlebooks.New(googleAPIKey)),
	}
}
