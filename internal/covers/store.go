package covers

import (
	"bytes"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
)

const thumbnailWidth = 300

// Store writes accepted covers and their thumbnails under a base
// directory, one JPEG pair per slug.
type Store struct {
	dir string
}

// NewStore creates a cover store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating covers directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Save writes the cover bytes for slug and renders a thumbnail next to
// it. It returns the relative path of the stored cover. Bytes that do not
// decode are stored as-is without a thumbnail.
func (s *Store) Save(slug string, data []byte) (string, error) {
	coverPath := filepath.Join(s.dir, slug+".jpg")

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		// Validated on size alone; keep the original bytes.
		if writeErr := os.WriteFile(coverPath, data, 0o644); writeErr != nil {
			return "", fmt.Errorf("writing cover: %w", writeErr)
		}
		return coverPath, nil
	}

	if err := imaging.Save(img, coverPath, imaging.JPEGQuality(90)); err != nil {
		return "", fmt.Errorf("writing cover: %w", err)
	}

	thumb := imaging.Resize(img, thumbnailWidth, 0, imaging.Lanczos)
	thumbPath := filepath.Join(s.dir, slug+"-thumb.jpg")
	if err := imaging.Save(thumb, thumbPath, imaging.JPEGQuality(85)); err != nil {
		return "", fmt.Errorf("writing thumbnail: %w", err)
	}

	return coverPath, nil
}

// Exists reports whether a stored cover already exists for slug.
func (s *Store) Exists(slug string) bool {
	_, err := os.Stat(filepath.Join(s.dir, slug+".jpg"))
	return err == nil
}

// Remove deletes the stored cover and thumbnail for slug, ignoring
// files that are already gone.
func (s *Store) Remove(slug string) error {
	for _, name := range []string{slug + ".jpg", slug + "-thumb.jpg"} {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing cover: %w", err)
		}
	}
	return nil
}
