// Package provider defines the interface for external bibliographic
// sources and the common metadata record they produce. Providers are
// untrusted, best-effort, schema-loose: every field access tolerates
// absence, and a failed lookup is "no data", never fatal.
package provider

import (
	"context"
)

// Client is implemented by each external metadata source. Implementations
// handle their own rate limiting and transform responses into Metadata.
type Client interface {
	// Name returns the human-readable name of the source.
	Name() string

	// Priority orders sources when merging data. Lower values indicate
	// higher precedence.
	Priority() int

	// AcceptFloor is the minimum author-match confidence (0-100) this
	// source needs before its cover or description is applied
	// automatically. Per-source trust tuning, not a shared constant.
	AcceptFloor() int

	// Ping tests the connection to the source.
	Ping(ctx context.Context) error

	// LookupISBN fetches metadata by ISBN. Returns ErrNotFound when the
	// source has no record, ErrUnavailable on transport or status
	// failures.
	LookupISBN(ctx context.Context, isbn string) (*Metadata, error)

	// Search performs a free-text title (and optional author) search,
	// the lowest-precision strategy. Same error contract as LookupISBN.
	Search(ctx context.Context, title, author string) (*Metadata, error)
}

// Metadata is the provider-neutral record for one lookup. Pointer fields
// distinguish "not set" from "empty".
type Metadata struct {
	Title         *string
	Subtitle      *string
	Description   *string
	Publisher     *string
	NumberOfPages *int
	CoverURL      *string
	PublishDate   *string
	Language      *string

	// ProviderID is the source's stable identifier for the matched
	// record (OpenLibrary work key, Google Books volume id).
	ProviderID *string

	Authors  []string
	Subjects []string

	// AuthorKeys maps author name to the source's stable author
	// identifier, for sources that link authors to their own records.
	AuthorKeys map[string]string
}

// AuthorMetadata is a provider's record for a single author.
type AuthorMetadata struct {
	Name      string
	Bio       *string
	PhotoURL  *string
	BirthYear *string
	DeathYear *string
}
