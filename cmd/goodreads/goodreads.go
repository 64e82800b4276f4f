// Package goodreads imports books from a Goodreads library export CSV.
package goodreads

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/mkoskinen/librarian/internal/catalog"
	"github.com/mkoskinen/librarian/internal/resolve"
)

// Column positions in the Goodreads export. The export has no stable
// header contract across account locales, so positions are what the
// original files actually use.
const (
	colBookID            = 0
	colTitle             = 1
	colAuthor            = 2
	colAdditionalAuthors = 4
	colISBN              = 5
	colISBN13            = 6
	colPublisher         = 9
	colNumberOfPages     = 11
)

const progressEvery = 10

// ImportFile reads a Goodreads library export and resolves every row
// into the catalog.
func ImportFile(path string, db *catalog.DB) (resolve.Stats, error) {
	total, err := countRecords(path)
	if err != nil {
		return resolve.Stats{}, err
	}

	file, err := os.Open(path)
	if err != nil {
		return resolve.Stats{}, fmt.Errorf("opening CSV file: %w", err)
	}
	defer func() { _ = file.Close() }()

	imp, err := resolve.NewImporter(db)
	if err != nil {
		return resolve.Stats{}, err
	}

	reader := csv.NewReader(file)
	if _, err := reader.Read(); err != nil {
		return resolve.Stats{}, fmt.Errorf("reading CSV header: %w", err)
	}

	processed := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			slog.Warn("Skipping unreadable record", "error", err)
			continue
		}
		if len(record) <= colNumberOfPages {
			slog.Warn("Skipping short record", "fields", len(record))
			continue
		}

		pages, err := strconv.Atoi(strings.TrimSpace(record[colNumberOfPages]))
		if err != nil {
			pages = 0
		}

		rec := resolve.ImportRecord{
			Title:             record[colTitle],
			Author:            record[colAuthor],
			AdditionalAuthors: record[colAdditionalAuthors],
			ISBN10:            cleanISBN(record[colISBN]),
			ISBN13:            cleanISBN(record[colISBN13]),
			SourceID:          "gr-" + record[colBookID],
			Publisher:         record[colPublisher],
			NumberOfPages:     pages,
		}
		if err := imp.Import(rec); err != nil {
			slog.Error("Importing record failed", "title", rec.Title, "error", err)
			continue
		}

		processed++
		if processed%progressEvery == 0 {
			slog.Info("Importing books",
				"processed", processed,
				"total", total,
				"percentage", fmt.Sprintf("%.1f%%", float64(processed)/float64(total)*100))
		}
	}

	stats := imp.Stats()
	slog.Info("Goodreads import complete",
		"processed", processed, "created", stats.Created, "updated", stats.Updated)
	return stats, nil
}

// cleanISBN strips the Excel-proofing wrapper Goodreads puts around ISBN
// columns, e.g. ="9780765326355".
func cleanISBN(s string) string {
	s = strings.TrimPrefix(s, "=\"")
	return strings.TrimSuffix(s, "\"")
}

// countRecords counts data rows so progress can report a percentage.
func countRecords(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening CSV file: %w", err)
	}
	defer func() { _ = file.Close() }()

	reader := csv.NewReader(file)
	if _, err := reader.Read(); err != nil {
		return 0, fmt.Errorf("reading CSV header: %w", err)
	}

	count := 0
	for {
		_, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			continue
		}
		count++
	}
	return count, nil
}
