package enrich

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Cursor is the resumable progress state of a long enrichment pass. It
// is rewritten after every batch so an interrupted run resumes from the
// last completed batch boundary without losing aggregate counters.
type Cursor struct {
	LastOffset     int       `json:"lastOffset"`
	TotalProcessed int       `json:"totalProcessed"`
	TotalUpdated   int       `json:"totalUpdated"`
	LastRun        time.Time `json:"lastRun"`
}

// LoadCursor reads the cursor file. A missing file yields a zero cursor,
// not an error: the first run starts from scratch.
func LoadCursor(path string) (Cursor, error) {
	var c Cursor
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return c, fmt.Errorf("reading cursor file: %w", err)
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return Cursor{}, fmt.Errorf("parsing cursor file: %w", err)
	}
	return c, nil
}

// Save writes the cursor atomically via a temp-file rename so a crash
// mid-write never corrupts the resume point.
func (c Cursor) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding cursor: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing cursor file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing cursor file: %w", err)
	}
	return nil
}

// Reset returns a zero-offset cursor that keeps nothing: a full pass
// completed with no pending entities left.
func (c Cursor) Reset() Cursor {
	return Cursor{LastRun: time.Now().UTC()}
}
