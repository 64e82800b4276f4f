// Package audible imports books from an Audible library export TSV.
package audible

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/mkoskinen/librarian/internal/catalog"
	"github.com/mkoskinen/librarian/internal/resolve"
)

// The export is tab-separated with a header row. Column names vary in
// capitalization between export versions, so the header is matched
// case-insensitively.
var wantedColumns = []string{"title", "author", "asin", "publisher"}

// ImportFile reads an Audible library TSV export and resolves every row
// into the catalog. Audiobook editions carry no ISBNs; matching falls
// back to title and author resolution, which also merges an audiobook
// with an already-imported print edition of the same book.
func ImportFile(path string, db *catalog.DB) (resolve.Stats, error) {
	file, err := os.Open(path)
	if err != nil {
		return resolve.Stats{}, fmt.Errorf("opening Audible export: %w", err)
	}
	defer func() { _ = file.Close() }()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return resolve.Stats{}, fmt.Errorf("reading TSV header: %w", err)
		}
		return resolve.Stats{}, fmt.Errorf("empty Audible export")
	}
	columns, err := mapHeader(scanner.Text())
	if err != nil {
		return resolve.Stats{}, err
	}

	imp, err := resolve.NewImporter(db)
	if err != nil {
		return resolve.Stats{}, err
	}

	processed := 0
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), "\t")
		title := field(fields, columns, "title")
		if title == "" {
			continue
		}

		rec := resolve.ImportRecord{
			Title:     title,
			Author:    field(fields, columns, "author"),
			Publisher: field(fields, columns, "publisher"),
		}
		if asin := field(fields, columns, "asin"); asin != "" {
			rec.SourceID = "audible-" + asin
		}
		if err := imp.Import(rec); err != nil {
			slog.Error("Importing row failed", "title", title, "error", err)
			continue
		}
		processed++
	}
	if err := scanner.Err(); err != nil {
		return resolve.Stats{}, fmt.Errorf("reading Audible export: %w", err)
	}

	stats := imp.Stats()
	slog.Info("Audible import complete",
		"processed", processed, "created", stats.Created, "updated", stats.Updated)
	return stats, nil
}

// mapHeader resolves the wanted column names to their positions. Title
// and author are required; the rest are optional.
func mapHeader(header string) (map[string]int, error) {
	columns := make(map[string]int, len(wantedColumns))
	for i, name := range strings.Split(header, "\t") {
		name = strings.ToLower(strings.TrimSpace(name))
		for _, wanted := range wantedColumns {
			if name == wanted {
				columns[wanted] = i
			}
		}
	}
	for _, required := range []string{"title", "author"} {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("Audible export header missing %q column", required)
		}
	}
	return columns, nil
}

func field(fields []string, columns map[string]int, name string) string {
	idx, ok := columns[name]
	if !ok || idx >= len(fields) {
		return ""
	}
	return strings.TrimSpace(fields[idx])
}
