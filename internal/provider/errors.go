package provider

import "errors"

var (
	// ErrNotFound is returned when a source has no record for the query.
	// Non-fatal: the caller moves on to the next source or strategy.
	ErrNotFound = errors.New("no provider record")

	// ErrInvalidISBN is returned when the provided ISBN is empty or
	// malformed.
	ErrInvalidISBN = errors.New("invalid ISBN")

	// ErrUnavailable is returned on network failure or a non-2xx status.
	// Non-fatal, but distinguishes a transient failure (retry later) from
	// a definitive miss.
	ErrUnavailable = errors.New("provider unavailable")
)
