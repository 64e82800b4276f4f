package cache

// SQL schemas for cache tables.
// All cache tables use "cache_key" as the primary key column.

// OpenLibrarySchema defines the schema for the OpenLibrary response cache.
const OpenLibrarySchema = `
CREATE TABLE IF NOT EXISTS openlibrary_cache (
	cache_key TEXT PRIMARY KEY NOT NULL,
	data TEXT NOT NULL,
	cached_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_openlibrary_cached_at ON openlibrary_cache(cached_at);
`

// GoogleBooksSchema defines the schema for the Google Books response cache.
const GoogleBooksSchema = `
CREATE TABLE IF NOT EXISTS googlebooks_cache (
	cache_key TEXT PRIMARY KEY NOT NULL,
	data TEXT NOT NULL,
	cached_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_googlebooks_cached_at ON googlebooks_cache(cached_at);
`

// AllSchemas contains all cache table schemas for initialization.
var AllSchemas = []string{
	OpenLibrarySchema,
	GoogleBooksSchema,
}

// ValidTableNames is the whitelist of allowed cache table names, used to
// prevent SQL injection when interpolating table names.
var ValidTableNames = map[string]bool{
	"openlibrary_cache": true,
	"googlebooks_cache": true,
}
