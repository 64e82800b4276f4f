// Package openlibrary implements the provider client for the OpenLibrary
// JSON APIs and its cover CDN.
package openlibrary

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mkoskinen/librarian/internal/cache"
	"github.com/mkoskinen/librarian/internal/provider"
	"github.com/mkoskinen/librarian/internal/ratelimit"
)

const (
	defaultBaseURL       = "https://openlibrary.org"
	defaultCoversBaseURL = "https://covers.openlibrary.org"

	priority = 1

	// acceptFloor reflects OpenLibrary's strong author-linkage data:
	// cover/description auto-acceptance needs at least a last-name match.
	acceptFloor = 50

	// minInterval keeps well under OpenLibrary's informal limit. The gate
	// is shared by every call this client makes, so lookups serialize.
	minInterval = 600 * time.Millisecond

	cacheTable = "openlibrary_cache"
)

// Client talks to OpenLibrary. All requests go through one min-interval
// gate; responses are cached with negative caching for misses.
type Client struct {
	httpClient    *http.Client
	limiter       *ratelimit.Limiter
	baseURL       string
	coversBaseURL string
}

var _ provider.Client = (*Client)(nil)

// New creates an OpenLibrary client with production defaults.
func New() *Client {
	return &Client{
		httpClient:    &http.Client{Timeout: 5 * time.Second},
		limiter:       ratelimit.NewInterval("OpenLibrary", minInterval),
		baseURL:       defaultBaseURL,
		coversBaseURL: defaultCoversBaseURL,
	}
}

// NewWithOptions creates a client with injected transport pieces; tests
// pass an httptest server URL and an unlimited gate.
func NewWithOptions(httpClient *http.Client, limiter *ratelimit.Limiter, baseURL, coversBaseURL string) *Client {
	return &Client{
		httpClient:    httpClient,
		limiter:       limiter,
		baseURL:       baseURL,
		coversBaseURL: coversBaseURL,
	}
}

// Name returns the human-readable name of this source.
func (c *Client) Name() string { return "OpenLibrary" }

// Priority returns the merge precedence (lower = higher).
func (c *Client) Priority() int { return priority }

// AcceptFloor returns the auto-accept confidence floor for this source.
func (c *Client) AcceptFloor() int { return acceptFloor }

// Ping tests the connection to OpenLibrary.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return fmt.Errorf("creating ping request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("OpenLibrary ping failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("OpenLibrary returned status %d", resp.StatusCode)
	}
	return nil
}

// cachedResult wraps Metadata so not-found responses cache under the
// shorter negative TTL.
type cachedResult struct {
	Data     *provider.Metadata `json:"data"`
	NotFound bool               `json:"not_found"`
}

// LookupISBN fetches book metadata by ISBN, the highest-precision
// strategy.
func (c *Client) LookupISBN(ctx context.Context, isbn string) (*provider.Metadata, error) {
	if isbn == "" {
		return nil, provider.ErrInvalidISBN
	}

	cached, _, err := cache.GetOrFetchWithTTL(cacheTable, "isbn:"+isbn, func() (*cachedResult, error) {
		return c.fetchByISBN(ctx, isbn)
	}, cache.SelectNegativeTTL(func(r *cachedResult) bool { return r.NotFound }))
	if err != nil {
		return nil, err
	}
	if cached.NotFound {
		return nil, provider.ErrNotFound
	}
	return cached.Data, nil
}

// bookResponse matches the jscmd=data books API shape.
type bookResponse struct {
	Title       string `json:"title"`
	Subtitle    string `json:"subtitle"`
	Description any    `json:"description"`
	Publishers  []struct {
		Name string `json:"name"`
	} `json:"publishers"`
	Authors []struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	} `json:"authors"`
	Cover struct {
		Large string `json:"large"`
	} `json:"cover"`
	Subjects      []any  `json:"subjects"`
	NumberOfPages int    `json:"number_of_pages"`
	PublishDate   string `json:"publish_date"`
}

// editionResponse matches the /isbn/{isbn}.json edition shape.
type editionResponse struct {
	NumberOfPages int      `json:"number_of_pages"`
	Publishers    []string `json:"publishers"`
	Covers        []int    `json:"covers"`
	Key           string   `json:"key"`
	Works         []struct {
		Key string `json:"key"`
	} `json:"works"`
	Languages []struct {
		Key string `json:"key"`
	} `json:"languages"`
}

func (c *Client) fetchByISBN(ctx context.Context, isbn string) (*cachedResult, error) {
	var result map[string]bookResponse
	endpoint := fmt.Sprintf("%s/api/books?bibkeys=ISBN:%s&format=json&jscmd=data", c.baseURL, isbn)
	if err := c.getJSON(ctx, endpoint, &result); err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return &cachedResult{NotFound: true}, nil
	}

	olBook := result["ISBN:"+isbn]
	data := &provider.Metadata{
		Title:         provider.String(olBook.Title),
		Subtitle:      provider.String(olBook.Subtitle),
		Description:   provider.String(provider.ExtractText(olBook.Description)),
		NumberOfPages: provider.Int(olBook.NumberOfPages),
		PublishDate:   provider.String(olBook.PublishDate),
		Subjects:      provider.ExtractStringSlice(olBook.Subjects),
	}
	if len(olBook.Publishers) > 0 {
		data.Publisher = provider.String(olBook.Publishers[0].Name)
	}
	for _, author := range olBook.Authors {
		if author.Name == "" {
			continue
		}
		data.Authors = append(data.Authors, author.Name)
		if key := authorKeyFromURL(author.URL); key != "" {
			if data.AuthorKeys == nil {
				data.AuthorKeys = make(map[string]string)
			}
			data.AuthorKeys[author.Name] = key
		}
	}

	// Edition data carries the work key, cover ids and gaps the books API
	// leaves open.
	edition, err := c.fetchEdition(ctx, isbn)
	if err == nil && edition != nil {
		if len(edition.Works) > 0 {
			data.ProviderID = provider.String(edition.Works[0].Key)
		}
		if data.NumberOfPages == nil {
			data.NumberOfPages = provider.Int(edition.NumberOfPages)
		}
		if data.Publisher == nil && len(edition.Publishers) > 0 {
			data.Publisher = provider.String(edition.Publishers[0])
		}
		if len(edition.Languages) > 0 {
			if parts := strings.Split(edition.Languages[0].Key, "/"); len(parts) > 0 {
				data.Language = provider.String(parts[len(parts)-1])
			}
		}
		data.CoverURL = provider.String(c.coverURL(olBook.Cover.Large, edition, isbn))
	} else {
		data.CoverURL = provider.String(c.coverURL(olBook.Cover.Large, nil, isbn))
	}

	return &cachedResult{Data: data}, nil
}

func (c *Client) fetchEdition(ctx context.Context, isbn string) (*editionResponse, error) {
	var edition editionResponse
	endpoint := fmt.Sprintf("%s/isbn/%s.json", c.baseURL, isbn)
	if err := c.getJSON(ctx, endpoint, &edition); err != nil {
		return nil, err
	}
	return &edition, nil
}

// coverURL resolves the four cover-reference shapes OpenLibrary uses, in
// trust order: direct URL, numeric cover id, edition key, ISBN.
func (c *Client) coverURL(direct string, edition *editionResponse, isbn string) string {
	if direct != "" {
		return direct
	}
	if edition != nil {
		for _, id := range edition.Covers {
			if id > 0 {
				return c.CoverURLFromID(id)
			}
		}
		if key := strings.TrimPrefix(edition.Key, "/books/"); key != edition.Key && key != "" {
			return c.CoverURLFromEditionKey(key)
		}
	}
	if isbn != "" {
		return c.CoverURLFromISBN(isbn)
	}
	return ""
}

// authorKeyFromURL extracts the OL author key from an author page URL
// like https://openlibrary.org/authors/OL79034A/Frank_Herbert.
func authorKeyFromURL(rawURL string) string {
	idx := strings.Index(rawURL, "/authors/")
	if idx < 0 {
		return ""
	}
	key := rawURL[idx+len("/authors/"):]
	if slash := strings.IndexByte(key, '/'); slash >= 0 {
		key = key[:slash]
	}
	return key
}

// CoverURLFromID builds the large cover URL for a numeric cover id.
func (c *Client) CoverURLFromID(coverID int) string {
	return fmt.Sprintf("%s/b/id/%d-L.jpg", c.coversBaseURL, coverID)
}

// CoverURLFromEditionKey builds the large cover URL for an OL edition key.
func (c *Client) CoverURLFromEditionKey(key string) string {
	return fmt.Sprintf("%s/b/olid/%s-L.jpg", c.coversBaseURL, key)
}

// CoverURLFromISBN builds the large cover URL keyed by ISBN.
func (c *Client) CoverURLFromISBN(isbn string) string {
	return fmt.Sprintf("%s/b/isbn/%s-L.jpg", c.coversBaseURL, isbn)
}

// searchResponse matches /search.json.
type searchResponse struct {
	NumFound int `json:"numFound"`
	Docs     []struct {
		Title            string   `json:"title"`
		AuthorName       []string `json:"author_name"`
		CoverID          int      `json:"cover_i"`
		Key              string   `json:"key"`
		FirstPublishYear int      `json:"first_publish_year"`
	} `json:"docs"`
}

// Search performs a title/author search and enriches the best hit with
// its work record (description, subjects).
func (c *Client) Search(ctx context.Context, title, author string) (*provider.Metadata, error) {
	if title == "" {
		return nil, provider.ErrNotFound
	}

	key := "search:" + title + "|" + author
	cached, _, err := cache.GetOrFetchWithTTL(cacheTable, key, func() (*cachedResult, error) {
		return c.fetchSearch(ctx, title, author)
	}, cache.SelectNegativeTTL(func(r *cachedResult) bool { return r.NotFound }))
	if err != nil {
		return nil, err
	}
	if cached.NotFound {
		return nil, provider.ErrNotFound
	}
	return cached.Data, nil
}

func (c *Client) fetchSearch(ctx context.Context, title, author string) (*cachedResult, error) {
	params := url.Values{}
	params.Set("title", title)
	if author != "" {
		params.Set("author", author)
	}
	params.Set("limit", "5")

	var result searchResponse
	endpoint := fmt.Sprintf("%s/search.json?%s", c.baseURL, params.Encode())
	if err := c.getJSON(ctx, endpoint, &result); err != nil {
		return nil, err
	}
	if result.NumFound == 0 || len(result.Docs) == 0 {
		return &cachedResult{NotFound: true}, nil
	}

	doc := result.Docs[0]
	data := &provider.Metadata{
		Title:      provider.String(doc.Title),
		ProviderID: provider.String(doc.Key),
		Authors:    doc.AuthorName,
	}
	if doc.CoverID > 0 {
		data.CoverURL = provider.String(c.CoverURLFromID(doc.CoverID))
	}

	// Description lives on the work record, not in search results.
	if doc.Key != "" {
		if work, err := c.fetchWork(ctx, doc.Key); err == nil && work != nil {
			if data.Description == nil {
				data.Description = work.Description
			}
			if len(data.Subjects) == 0 {
				data.Subjects = work.Subjects
			}
		}
	}
	return &cachedResult{Data: data}, nil
}

// workResponse matches /works/{key}.json.
type workResponse struct {
	Title       string `json:"title"`
	Description any    `json:"description"`
	Subjects    []any  `json:"subjects"`
	Covers      []int  `json:"covers"`
}

// LookupWork fetches a work record directly by its key, the provider-id
// strategy used when a book already carries an OpenLibrary key.
func (c *Client) LookupWork(ctx context.Context, workKey string) (*provider.Metadata, error) {
	if workKey == "" {
		return nil, provider.ErrNotFound
	}

	cached, _, err := cache.GetOrFetchWithTTL(cacheTable, "work:"+workKey, func() (*cachedResult, error) {
		work, err := c.fetchWork(ctx, workKey)
		if err != nil {
			return nil, err
		}
		if work == nil {
			return &cachedResult{NotFound: true}, nil
		}
		return &cachedResult{Data: work}, nil
	}, cache.SelectNegativeTTL(func(r *cachedResult) bool { return r.NotFound }))
	if err != nil {
		return nil, err
	}
	if cached.NotFound {
		return nil, provider.ErrNotFound
	}
	return cached.Data, nil
}

func (c *Client) fetchWork(ctx context.Context, workKey string) (*provider.Metadata, error) {
	if !strings.HasPrefix(workKey, "/works/") {
		workKey = "/works/" + workKey
	}

	var work workResponse
	endpoint := fmt.Sprintf("%s%s.json", c.baseURL, workKey)
	if err := c.getJSON(ctx, endpoint, &work); err != nil {
		return nil, err
	}

	data := &provider.Metadata{
		Title:       provider.String(work.Title),
		Description: provider.String(provider.ExtractText(work.Description)),
		ProviderID:  provider.String(workKey),
		Subjects:    provider.ExtractStringSlice(work.Subjects),
	}
	for _, id := range work.Covers {
		if id > 0 {
			data.CoverURL = provider.String(c.CoverURLFromID(id))
			break
		}
	}
	return data, nil
}

// authorResponse matches /authors/{key}.json.
type authorResponse struct {
	Name      string `json:"name"`
	Bio       any    `json:"bio"`
	BirthDate string `json:"birth_date"`
	DeathDate string `json:"death_date"`
	Photos    []int  `json:"photos"`
}

// LookupAuthor fetches an author record by its OL key ("/authors/OL..A"
// or bare key) for bio/photo/date enrichment.
func (c *Client) LookupAuthor(ctx context.Context, authorKey string) (*provider.AuthorMetadata, error) {
	if authorKey == "" {
		return nil, provider.ErrNotFound
	}
	if !strings.HasPrefix(authorKey, "/authors/") {
		authorKey = "/authors/" + authorKey
	}

	var author authorResponse
	endpoint := fmt.Sprintf("%s%s.json", c.baseURL, authorKey)
	if err := c.getJSON(ctx, endpoint, &author); err != nil {
		return nil, err
	}
	if author.Name == "" {
		return nil, provider.ErrNotFound
	}

	meta := &provider.AuthorMetadata{
		Name:      author.Name,
		Bio:       provider.String(provider.ExtractText(author.Bio)),
		BirthYear: provider.String(author.BirthDate),
		DeathYear: provider.String(author.DeathDate),
	}
	for _, id := range author.Photos {
		if id > 0 {
			photo := fmt.Sprintf("%s/a/id/%d-L.jpg", c.coversBaseURL, id)
			meta.PhotoURL = &photo
			break
		}
	}
	return meta, nil
}

// getJSON performs a rate-gated GET and decodes the response. Transport
// errors and non-2xx statuses map to ErrUnavailable.
func (c *Client) getJSON(ctx context.Context, endpoint string, v any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", provider.ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return provider.ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", provider.ErrUnavailable, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
