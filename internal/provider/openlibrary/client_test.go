package openlibrary

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkoskinen/librarian/internal/provider"
	"github.com/mkoskinen/librarian/internal/ratelimit"
	"github.com/mkoskinen/librarian/internal/testutil"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	testutil.WithTestCache(t)

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewWithOptions(server.Client(), ratelimit.NewUnlimited("OpenLibrary"), server.URL, "https://covers.example.org")
}

func TestLookupISBN(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/books", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ISBN:9780441013593", r.URL.Query().Get("bibkeys"))
		_, _ = w.Write([]byte(`{"ISBN:9780441013593": {
			"title": "Dune",
			"publishers": [{"name": "Ace Books"}],
			"authors": [{"name": "Frank Herbert", "url": "https://openlibrary.org/authors/OL79034A/Frank_Herbert"}],
			"number_of_pages": 604,
			"publish_date": "2005",
			"cover": {"large": "https://covers.example.org/b/id/11481354-L.jpg"}
		}}`))
	})
	mux.HandleFunc("/isbn/9780441013593.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"key": "/books/OL7826630M",
			"works": [{"key": "/works/OL893415W"}],
			"covers": [11481354],
			"languages": [{"key": "/languages/eng"}]
		}`))
	})

	c := newTestClient(t, mux)
	data, err := c.LookupISBN(context.Background(), "9780441013593")
	require.NoError(t, err)

	require.NotNil(t, data.Title)
	assert.Equal(t, "Dune", *data.Title)
	assert.Equal(t, "Ace Books", *data.Publisher)
	assert.Equal(t, 604, *data.NumberOfPages)
	assert.Equal(t, "/works/OL893415W", *data.ProviderID)
	assert.Equal(t, "eng", *data.Language)
	assert.Equal(t, []string{"Frank Herbert"}, data.Authors)
	assert.Equal(t, "OL79034A", data.AuthorKeys["Frank Herbert"])
	assert.Equal(t, "https://covers.example.org/b/id/11481354-L.jpg", *data.CoverURL)
}

func TestLookupISBNNotFoundIsCachedNegatively(t *testing.T) {
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/api/books", func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(`{}`))
	})

	c := newTestClient(t, mux)

	_, err := c.LookupISBN(context.Background(), "9780000000000")
	require.ErrorIs(t, err, provider.ErrNotFound)

	// Second lookup is served from the negative cache entry.
	_, err = c.LookupISBN(context.Background(), "9780000000000")
	require.ErrorIs(t, err, provider.ErrNotFound)
	assert.Equal(t, 1, calls)
}

func TestLookupISBNEmptyISBN(t *testing.T) {
	c := newTestClient(t, http.NewServeMux())
	_, err := c.LookupISBN(context.Background(), "")
	require.ErrorIs(t, err, provider.ErrInvalidISBN)
}

func TestLookupISBNServerErrorNotCached(t *testing.T) {
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/api/books", func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	})

	c := newTestClient(t, mux)

	_, err := c.LookupISBN(context.Background(), "9780441013593")
	require.ErrorIs(t, err, provider.ErrUnavailable)

	// Failures are not cached; the next attempt hits the server again.
	_, err = c.LookupISBN(context.Background(), "9780441013593")
	require.ErrorIs(t, err, provider.ErrUnavailable)
	assert.Equal(t, 2, calls)
}

func TestSearch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/search.json", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "The Way of Kings", r.URL.Query().Get("title"))
		assert.Equal(t, "Brandon Sanderson", r.URL.Query().Get("author"))
		_, _ = w.Write([]byte(`{"numFound": 1, "docs": [{
			"title": "The Way of Kings",
			"author_name": ["Brandon Sanderson"],
			"cover_i": 8259447,
			"key": "/works/OL15358691W",
			"first_publish_year": 2010
		}]}`))
	})
	mux.HandleFunc("/works/OL15358691W.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"title": "The Way of Kings",
			"description": {"type": "/type/text", "value": "An epic fantasy."},
			"subjects": ["Fantasy", "Epic"]
		}`))
	})

	c := newTestClient(t, mux)
	data, err := c.Search(context.Background(), "The Way of Kings", "Brandon Sanderson")
	require.NoError(t, err)

	assert.Equal(t, "The Way of Kings", *data.Title)
	assert.Equal(t, "/works/OL15358691W", *data.ProviderID)
	assert.Equal(t, []string{"Brandon Sanderson"}, data.Authors)
	assert.Equal(t, "An epic fantasy.", *data.Description)
	assert.Equal(t, []string{"Fantasy", "Epic"}, data.Subjects)
	assert.Equal(t, "https://covers.example.org/b/id/8259447-L.jpg", *data.CoverURL)
}

func TestSearchNoResults(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/search.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"numFound": 0, "docs": []}`))
	})

	c := newTestClient(t, mux)
	_, err := c.Search(context.Background(), "No Such Book", "")
	require.ErrorIs(t, err, provider.ErrNotFound)
}

func TestLookupWork(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/works/OL893415W.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"title": "Dune",
			"description": "Paul Atreides on Arrakis.",
			"covers": [-1, 11481354]
		}`))
	})

	c := newTestClient(t, mux)
	data, err := c.LookupWork(context.Background(), "/works/OL893415W")
	require.NoError(t, err)

	assert.Equal(t, "Paul Atreides on Arrakis.", *data.Description)
	// Negative cover ids are placeholders and skipped.
	assert.Equal(t, "https://covers.example.org/b/id/11481354-L.jpg", *data.CoverURL)
}

func TestLookupAuthor(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/authors/OL79034A.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"name": "Frank Herbert",
			"bio": {"type": "/type/text", "value": "American author."},
			"birth_date": "8 October 1920",
			"death_date": "11 February 1986",
			"photos": [6988866]
		}`))
	})

	c := newTestClient(t, mux)
	author, err := c.LookupAuthor(context.Background(), "OL79034A")
	require.NoError(t, err)

	assert.Equal(t, "Frank Herbert", author.Name)
	assert.Equal(t, "American author.", *author.Bio)
	assert.Equal(t, "8 October 1920", *author.BirthYear)
	assert.Equal(t, "https://covers.example.org/a/id/6988866-L.jpg", *author.PhotoURL)
}

func TestCoverURLBuilders(t *testing.T) {
	c := NewWithOptions(nil, nil, "", "https://covers.example.org")

	assert.Equal(t, "https://covers.example.org/b/id/42-L.jpg", c.CoverURLFromID(42))
	assert.Equal(t, "https://covers.example.org/b/olid/OL7826630M-L.jpg", c.CoverURLFromEditionKey("OL7826630M"))
	assert.Equal(t, "https://covers.example.org/b/isbn/9780441013593-L.jpg", c.CoverURLFromISBN("9780441013593"))
}
