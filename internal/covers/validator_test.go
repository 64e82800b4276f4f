package covers

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"image/png"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkoskinen/librarian/internal/provider"
)

// noiseImage builds an incompressible image so encoded sizes stay above
// the byte floor regardless of format.
func noiseImage(w, h int) *image.RGBA {
	rng := rand.New(rand.NewSource(42))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.Intn(256))
	}
	return img
}

func noisePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, noiseImage(w, h)))
	return buf.Bytes()
}

func noiseJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, noiseImage(w, h), &jpeg.Options{Quality: 100}))
	return buf.Bytes()
}

func TestValidateRejectsTinyPayload(t *testing.T) {
	verdict := Validate([]byte("GIF89a not really an image"))
	assert.False(t, verdict.OK)
	assert.Contains(t, verdict.Reason, "too small")
}

func TestValidateRejectsSquareImage(t *testing.T) {
	data := noisePNG(t, 500, 500)
	require.Greater(t, len(data), minBytes)

	verdict := Validate(data)
	assert.False(t, verdict.OK)
	assert.Contains(t, verdict.Reason, "aspect ratio")
}

func TestValidateRejectsSmallDimensions(t *testing.T) {
	data := noisePNG(t, 100, 140)
	require.Greater(t, len(data), minBytes)

	verdict := Validate(data)
	assert.False(t, verdict.OK)
	assert.Contains(t, verdict.Reason, "dimensions too small")
}

func TestValidateAcceptsBookShapedJPEG(t *testing.T) {
	data := noiseJPEG(t, 300, 450)
	require.Greater(t, len(data), minBytes)

	verdict := Validate(data)
	assert.True(t, verdict.OK)
	assert.Equal(t, 300, verdict.Width)
	assert.Equal(t, 450, verdict.Height)
}

func TestValidateAcceptsUndecodableOnSize(t *testing.T) {
	data := bytes.Repeat([]byte{0xAB}, 16000)

	verdict := Validate(data)
	assert.True(t, verdict.OK)
	assert.Contains(t, verdict.Reason, "undecodable")
}

func TestIsPlaceholderURL(t *testing.T) {
	assert.True(t, IsPlaceholderURL("https://s.gr-assets.com/assets/nophoto/book/111x148.png"))
	assert.True(t, IsPlaceholderURL("https://example.com/Image-Not-Available.gif"))
	assert.False(t, IsPlaceholderURL("https://covers.openlibrary.org/b/id/11481354-L.jpg"))
}

func TestFetchAndValidateSkipsPlaceholderWithoutRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("placeholder URL should not be fetched")
	}))
	defer server.Close()

	v := NewValidatorWithClient(server.Client())
	verdict, data, err := v.FetchAndValidate(context.Background(), server.URL+"/nophoto.png")
	require.NoError(t, err)
	assert.False(t, verdict.OK)
	assert.Nil(t, data)
}

func TestFetchAndValidate(t *testing.T) {
	cover := noiseJPEG(t, 300, 450)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/good.jpg":
			_, _ = w.Write(cover)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	v := NewValidatorWithClient(server.Client())

	verdict, data, err := v.FetchAndValidate(context.Background(), server.URL+"/good.jpg")
	require.NoError(t, err)
	assert.True(t, verdict.OK)
	assert.Equal(t, cover, data)

	_, _, err = v.FetchAndValidate(context.Background(), server.URL+"/missing.jpg")
	require.ErrorIs(t, err, provider.ErrNotFound)
}
