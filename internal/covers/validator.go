// Package covers downloads, validates and stores book cover images.
// Providers routinely serve placeholders and thumbnails where a real
// cover was requested; validation is what keeps those out of the catalog.
package covers

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	// Register the decoders cover CDNs actually serve.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/mkoskinen/librarian/internal/provider"
)

const (
	// minBytes rejects placeholder and blank images, which compress far
	// below any real cover scan.
	minBytes = 15000

	// Minimum plausible cover dimensions in pixels.
	minWidth  = 150
	minHeight = 200

	// Portrait aspect (height/width) bounds for a book cover.
	minAspect = 1.2
	maxAspect = 2.0

	maxDownloadBytes = 20 << 20
)

// placeholderMarkers appear in the URLs of known "no cover available"
// images; such URLs are rejected without a download.
var placeholderMarkers = []string{
	"nophoto",
	"image-not-available",
}

// Verdict is the outcome of validating one candidate image.
type Verdict struct {
	OK     bool
	Reason string
	Width  int
	Height int
}

// Validator downloads and checks candidate cover images.
type Validator struct {
	httpClient *http.Client
}

// NewValidator creates a validator with production defaults.
func NewValidator() *Validator {
	return &Validator{httpClient: &http.Client{Timeout: 15 * time.Second}}
}

// NewValidatorWithClient creates a validator using the given HTTP client.
func NewValidatorWithClient(httpClient *http.Client) *Validator {
	return &Validator{httpClient: httpClient}
}

// FetchAndValidate downloads the image at url and validates it. The
// downloaded bytes are returned alongside the verdict so an accepted
// cover never needs a second fetch.
func (v *Validator) FetchAndValidate(ctx context.Context, url string) (Verdict, []byte, error) {
	if IsPlaceholderURL(url) {
		return Verdict{Reason: "placeholder URL"}, nil, nil
	}

	data, err := v.fetch(ctx, url)
	if err != nil {
		return Verdict{}, nil, err
	}

	verdict := Validate(data)
	if !verdict.OK {
		slog.Debug("Cover rejected", "url", url, "reason", verdict.Reason,
			"bytes", len(data), "width", verdict.Width, "height", verdict.Height)
	}
	return verdict, data, nil
}

func (v *Validator) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating cover request: %w", err)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, provider.ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", provider.ErrUnavailable, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		return nil, fmt.Errorf("reading cover body: %w", err)
	}
	return data, nil
}

// IsPlaceholderURL reports whether url points at a known "no cover"
// placeholder image.
func IsPlaceholderURL(url string) bool {
	lower := strings.ToLower(url)
	for _, marker := range placeholderMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// Validate checks downloaded image bytes against the size, dimension and
// aspect-ratio requirements for a real book cover. An image whose header
// cannot be parsed passes on the byte floor alone: an oversized blob of an
// exotic format beats no cover at all.
func Validate(data []byte) Verdict {
	if len(data) < minBytes {
		return Verdict{Reason: fmt.Sprintf("too small: %d bytes", len(data))}
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Verdict{OK: true, Reason: "undecodable header, accepted on size"}
	}

	verdict := Verdict{Width: cfg.Width, Height: cfg.Height}
	if cfg.Width < minWidth || cfg.Height < minHeight {
		verdict.Reason = fmt.Sprintf("dimensions too small: %dx%d", cfg.Width, cfg.Height)
		return verdict
	}

	aspect := float64(cfg.Height) / float64(cfg.Width)
	if aspect < minAspect || aspect > maxAspect {
		verdict.Reason = fmt.Sprintf("aspect ratio %.2f outside book range", aspect)
		return verdict
	}

	verdict.OK = true
	return verdict
}
