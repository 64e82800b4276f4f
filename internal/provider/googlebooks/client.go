// Package googlebooks implements the provider client for the Google Books
// volumes API.
package googlebooks

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
	defaultBaseURL = "https://www.googleapis.com/books/v1"

	priority = 2

	// acceptFloor is lower than OpenLibrary's: Google Books author data is
	// noisier, so even a containment-grade match may auto-accept.
	acceptFloor = 30

	minInterval = 100 * time.Millisecond

	cacheTable = "googlebooks_cache"
)

// Client talks to the Google Books volumes API.
type Client struct {
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	baseURL    string
	apiKey     string
}

var _ provider.Client = (*Client)(nil)

// New creates a Google Books client with production defaults. The API key
// is optional; anonymous requests get a lower quota.
func New(apiKey string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		limiter:    ratelimit.NewInterval("Google Books", minInterval),
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
	}
}

// NewWithOptions creates a client with injected transport pieces.
func NewWithOptions(httpClient *http.Client, limiter *ratelimit.Limiter, baseURL string) *Client {
	return &Client{
		httpClient: httpClient,
		limiter:    limiter,
		baseURL:    baseURL,
	}
}

// Name returns the human-readable name of this source.
func (c *Client) Name() string { return "Google Books" }

// Priority returns the merge precedence (lower = higher).
func (c *Client) Priority() int { return priority }

// AcceptFloor returns the auto-accept confidence floor for this source.
func (c *Client) AcceptFloor() int { return acceptFloor }

// Ping tests the connection to Google Books.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/volumes?q=test&maxResults=1", nil)
	if err != nil {
		return fmt.Errorf("creating ping request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("Google Books ping failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Google Books returned status %d", resp.StatusCode)
	}
	return nil
}

type cachedResult struct {
	Data     *provider.Metadata `json:"data"`
	NotFound bool               `json:"not_found"`
}

// volumesResponse matches the volumes list endpoint.
type volumesResponse struct {
	TotalItems int      `json:"totalItems"`
	Items      []volume `json:"items"`
}

type volume struct {
	ID         string `json:"id"`
	VolumeInfo struct {
		Title         string   `json:"title"`
		Subtitle      string   `json:"subtitle"`
		Authors       []string `json:"authors"`
		Publisher     string   `json:"publisher"`
		PublishedDate string   `json:"publishedDate"`
		Description   string   `json:"description"`
		PageCount     int      `json:"pageCount"`
		Categories    []string `json:"categories"`
		Language      string   `json:"language"`
		ImageLinks    struct {
			Thumbnail      string `json:"thumbnail"`
			SmallThumbnail string `json:"smallThumbnail"`
		} `json:"imageLinks"`
	} `json:"volumeInfo"`
}

// LookupISBN fetches volume metadata via an isbn: query.
func (c *Client) LookupISBN(ctx context.Context, isbn string) (*provider.Metadata, error) {
	if isbn == "" {
		return nil, provider.ErrInvalidISBN
	}

	cached, _, err := cache.GetOrFetchWithTTL(cacheTable, "isbn:"+isbn, func() (*cachedResult, error) {
		return c.fetchVolumes(ctx, "isbn:"+isbn)
	}, cache.SelectNegativeTTL(func(r *cachedResult) bool { return r.NotFound }))
	if err != nil {
		return nil, err
	}
	if cached.NotFound {
		return nil, provider.ErrNotFound
	}
	return cached.Data, nil
}

// Search queries by title, optionally constrained by author.
func (c *Client) Search(ctx context.Context, title, author string) (*provider.Metadata, error) {
	if title == "" {
		return nil, provider.ErrNotFound
	}

	query := fmt.Sprintf("intitle:%q", title)
	if author != "" {
		query += fmt.Sprintf("+inauthor:%q", author)
	}

	cached, _, err := cache.GetOrFetchWithTTL(cacheTable, "search:"+title+"|"+author, func() (*cachedResult, error) {
		return c.fetchVolumes(ctx, query)
	}, cache.SelectNegativeTTL(func(r *cachedResult) bool { return r.NotFound }))
	if err != nil {
		return nil, err
	}
	if cached.NotFound {
		return nil, provider.ErrNotFound
	}
	return cached.Data, nil
}

// LookupVolume fetches a volume directly by its id, the provider-id
// strategy used when a book already carries a Google Books id.
func (c *Client) LookupVolume(ctx context.Context, volumeID string) (*provider.Metadata, error) {
	if volumeID == "" {
		return nil, provider.ErrNotFound
	}

	cached, _, err := cache.GetOrFetchWithTTL(cacheTable, "volume:"+volumeID, func() (*cachedResult, error) {
		var vol volume
		endpoint := fmt.Sprintf("%s/volumes/%s", c.baseURL, url.PathEscape(volumeID))
		if err := c.getJSON(ctx, endpoint, &vol); err != nil {
			return nil, err
		}
		if vol.VolumeInfo.Title == "" {
			return &cachedResult{NotFound: true}, nil
		}
		return &cachedResult{Data: c.toMetadata(vol)}, nil
	}, cache.SelectNegativeTTL(func(r *cachedResult) bool { return r.NotFound }))
	if err != nil {
		return nil, err
	}
	if cached.NotFound {
		return nil, provider.ErrNotFound
	}
	return cached.Data, nil
}

func (c *Client) fetchVolumes(ctx context.Context, query string) (*cachedResult, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("maxResults", "5")
	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}

	var result volumesResponse
	endpoint := fmt.Sprintf("%s/volumes?%s", c.baseURL, params.Encode())
	if err := c.getJSON(ctx, endpoint, &result); err != nil {
		return nil, err
	}
	if result.TotalItems == 0 || len(result.Items) == 0 {
		return &cachedResult{NotFound: true}, nil
	}
	return &cachedResult{Data: c.toMetadata(result.Items[0])}, nil
}

func (c *Client) toMetadata(vol volume) *provider.Metadata {
	info := vol.VolumeInfo
	data := &provider.Metadata{
		Title:         provider.String(info.Title),
		Subtitle:      provider.String(info.Subtitle),
		Description:   provider.String(info.Description),
		Publisher:     provider.String(info.Publisher),
		NumberOfPages: provider.Int(info.PageCount),
		PublishDate:   provider.String(info.PublishedDate),
		Language:      provider.String(info.Language),
		ProviderID:    provider.String(vol.ID),
		Authors:       info.Authors,
		Subjects:      info.Categories,
	}

	cover := info.ImageLinks.Thumbnail
	if cover == "" {
		cover = info.ImageLinks.SmallThumbnail
	}
	data.CoverURL = provider.String(upgradeCoverURL(cover))
	return data
}

// upgradeCoverURL rewrites a thumbnail link into the largest rendition the
// CDN serves: https, zoom=0 and no page-curl decoration.
func upgradeCoverURL(coverURL string) string {
	if coverURL == "" {
		return ""
	}
	coverURL = strings.Replace(coverURL, "http://", "https://", 1)
	coverURL = strings.Replace(coverURL, "zoom=1", "zoom=0", 1)
	coverURL = strings.Replace(coverURL, "&edge=curl", "", 1)
	return coverURL
}

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
