// Package kindle imports books from an Amazon Kindle library export
// JSON file.
package kindle

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/mkoskinen/librarian/internal/catalog"
	"github.com/mkoskinen/librarian/internal/normalize"
	"github.com/mkoskinen/librarian/internal/resolve"
)

// libraryItem is one book in the Kindle export. Authors sometimes carry
// a trailing colon separator artifact, stripped during import.
type libraryItem struct {
	Title     string   `json:"title"`
	Authors   []string `json:"authors"`
	ASIN      string   `json:"asin"`
	Publisher string   `json:"publisher"`
}

// ImportFile reads a Kindle library JSON export and resolves every item
// into the catalog. Kindle exports carry no ISBNs, so matching falls back
// to title and author resolution.
func ImportFile(path string, db *catalog.DB) (resolve.Stats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return resolve.Stats{}, fmt.Errorf("reading Kindle export: %w", err)
	}

	var items []libraryItem
	if err := json.Unmarshal(data, &items); err != nil {
		return resolve.Stats{}, fmt.Errorf("parsing Kindle export: %w", err)
	}

	imp, err := resolve.NewImporter(db)
	if err != nil {
		return resolve.Stats{}, err
	}

	processed := 0
	for _, item := range items {
		if item.Title == "" {
			slog.Warn("Skipping item without title", "asin", item.ASIN)
			continue
		}

		primary, additional := splitAuthors(item.Authors)
		rec := resolve.ImportRecord{
			Title:             item.Title,
			Author:            primary,
			AdditionalAuthors: additional,
			SourceID:          "kindle-" + item.ASIN,
			Publisher:         item.Publisher,
		}
		if err := imp.Import(rec); err != nil {
			slog.Error("Importing item failed", "title", item.Title, "error", err)
			continue
		}
		processed++
	}

	stats := imp.Stats()
	slog.Info("Kindle import complete",
		"processed", processed, "created", stats.Created, "updated", stats.Updated)
	return stats, nil
}

// splitAuthors flips each "Last, First" entry up front: the additional
// field downstream is comma-separated, so comma-form names must not
// survive the join.
func splitAuthors(authors []string) (primary, additional string) {
	cleaned := make([]string, 0, len(authors))
	for _, a := range authors {
		a = strings.TrimSuffix(strings.TrimSpace(a), ":")
		if a == "" {
			continue
		}
		cleaned = append(cleaned, normalize.FlipName(a))
	}
	if len(cleaned) == 0 {
		return "", ""
	}
	return cleaned[0], strings.Join(cleaned[1:], ", ")
}
