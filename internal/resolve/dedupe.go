package resolve

import (
	"fmt"
	"log/slog"
	"regexp"

	"github.com/mkoskinen/librarian/internal/catalog"
	"github.com/mkoskinen/librarian/internal/normalize"
)

var numericSuffix = regexp.MustCompile(`-\d+$`)

// ConsolidationResult summarizes one dedupe pass.
type ConsolidationResult struct {
	Groups  int
	Removed int
}

// ConsolidateAuthors merges duplicate author rows. Authors are grouped by
// normalized name; within each group the canonical record is the one
// whose slug carries no numeric disambiguation suffix, tie-broken by
// highest book count. All book links are repointed to the canonical
// record and the losers deleted, one transaction per group, so a re-run
// after a mid-pass crash converges to the same end state.
func ConsolidateAuthors(db *catalog.DB) (ConsolidationResult, error) {
	var result ConsolidationResult

	authors, err := db.AllAuthors()
	if err != nil {
		return result, fmt.Errorf("loading authors: %w", err)
	}

	groups := make(map[string][]catalog.Author)
	for _, a := range authors {
		key := normalize.Title(a.Name)
		groups[key] = append(groups[key], a)
	}

	for key, group := range groups {
		if len(group) < 2 {
			continue
		}

		canonical, err := pickCanonical(db, group)
		if err != nil {
			return result, err
		}

		var loserIDs []int64
		for _, a := range group {
			if a.ID != canonical.ID {
				loserIDs = append(loserIDs, a.ID)
			}
		}

		slog.Info("Consolidating duplicate authors",
			"name", key, "canonical", canonical.Slug, "duplicates", len(loserIDs))
		if err := db.ConsolidateAuthorGroup(canonical.ID, loserIDs); err != nil {
			return result, fmt.Errorf("consolidating %s: %w", key, err)
		}

		result.Groups++
		result.Removed += len(loserIDs)
	}
	return result, nil
}

// pickCanonical prefers a slug without a numeric suffix; among equals the
// author with the most linked books wins.
func pickCanonical(db *catalog.DB, group []catalog.Author) (catalog.Author, error) {
	best := group[0]
	bestCount, err := db.BookCountForAuthor(best.ID)
	if err != nil {
		return best, err
	}

	for _, a := range group[1:] {
		count, err := db.BookCountForAuthor(a.ID)
		if err != nil {
			return best, err
		}
		if better(a, count, best, bestCount) {
			best, bestCount = a, count
		}
	}
	return best, nil
}

func better(a catalog.Author, aCount int, b catalog.Author, bCount int) bool {
	aClean := !numericSuffix.MatchString(a.Slug)
	bClean := !numericSuffix.MatchString(b.Slug)
	if aClean != bClean {
		return aClean
	}
	return aCount > bCount
}
