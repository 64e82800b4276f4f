// Package catalog defines the persistent book catalog model and its
// SQLite store. Books, authors and series are created once at import time
// and enriched repeatedly; enrichment fills gaps and never deletes fields.
package catalog

import "time"

// EnrichmentStatus tracks where a book is in the enrichment lifecycle.
// Transitions within a run are monotonic (PENDING to one of the terminal
// states); PARTIAL, NOT_FOUND and FAILED books stay eligible for later runs.
type EnrichmentStatus string

const (
	StatusPending  EnrichmentStatus = "PENDING"
	StatusPartial  EnrichmentStatus = "PARTIAL"
	StatusEnriched EnrichmentStatus = "ENRICHED"
	StatusNotFound EnrichmentStatus = "NOT_FOUND"
	StatusFailed   EnrichmentStatus = "FAILED"
)

// RetryableStatuses are the statuses selected for an enrichment pass.
var RetryableStatuses = []EnrichmentStatus{
	StatusPending, StatusPartial, StatusNotFound, StatusFailed,
}

// Book is a catalog entry. Title and NormalizedTitle are always set; at
// most one provider id per provider is non-empty.
type Book struct {
	ID              int64
	Slug            string
	Title           string
	NormalizedTitle string
	Subtitle        string
	ISBN10          string
	ISBN13          string
	SourceID        string // import-source id, e.g. Goodreads book id
	OpenLibraryKey  string
	GoogleBooksID   string
	CoverURL        string
	CoverPath       string
	CoverSource     string
	Description     string
	Publisher       string
	NumberOfPages   int
	Status          EnrichmentStatus
	EnrichedAt      time.Time // zero until first enrichment attempt
}

// Author identity for dedup purposes is the normalized name: two authors
// with equal normalized names are duplicates and get consolidated.
type Author struct {
	ID             int64
	Slug           string
	Name           string
	NormalizedLast string
	OpenLibraryKey string
	Bio            string
	PhotoURL       string
	BirthYear      string
	DeathYear      string
}

// Series groups books under ordered positions. Positions are non-negative
// rationals (2.5 novellas happen) and unique per series only by convention.
type Series struct {
	ID   int64
	Slug string
	Name string
}

// SeriesEntry is one (book, position) pair within a series.
type SeriesEntry struct {
	BookID   int64
	SeriesID int64
	Position float64
}

// ApprovalState is the lifecycle of a pending-approval record.
type ApprovalState string

const (
	ApprovalPending  ApprovalState = "pending"
	ApprovalApproved ApprovalState = "approved"
	ApprovalRejected ApprovalState = "rejected"
	ApprovalApplied  ApprovalState = "applied"
)

// Approval is a deferred cover replacement awaiting a human decision:
// the candidate would overwrite an existing cover and its author-match
// confidence sits below the provider's auto-accept floor.
type Approval struct {
	ID               int64         `yaml:"id"`
	BookID           int64         `yaml:"entityId"`
	Title            string        `yaml:"title"`
	CurrentCoverURL  string        `yaml:"currentCoverRef"`
	ProposedCoverURL string        `yaml:"proposedCoverRef"`
	MatchedAuthor    string        `yaml:"matchedAuthor"`
	Provider         string        `yaml:"sourceProvider"`
	Confidence       int           `yaml:"confidence"`
	State            ApprovalState `yaml:"state"`
	CreatedAt        time.Time     `yaml:"createdAt"`
}
