package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mkoskinen/librarian/internal/catalog"
	"github.com/mkoskinen/librarian/internal/covers"
)

// WriteApprovalsReport renders pending approvals as a YAML document for
// offline review.
func WriteApprovalsReport(path string, approvals []catalog.Approval) error {
	data, err := yaml.Marshal(approvals)
	if err != nil {
		return fmt.Errorf("encoding approvals report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing approvals report: %w", err)
	}
	return nil
}

// ApplyApprovals applies every approved cover replacement: the proposed
// cover is validated one final time before it touches the catalog. A
// proposal that no longer validates is rejected instead.
func ApplyApprovals(ctx context.Context, db *catalog.DB, validator *covers.Validator, store *covers.Store) (int, error) {
	approved, err := db.ApprovalsByState(catalog.ApprovalApproved)
	if err != nil {
		return 0, fmt.Errorf("loading approved entries: %w", err)
	}

	applied := 0
	for _, a := range approved {
		if err := ctx.Err(); err != nil {
			return applied, err
		}

		book, err := db.GetBook(a.BookID)
		if err != nil {
			slog.Warn("Approval references missing book", "approval", a.ID, "book", a.BookID)
			continue
		}

		verdict, data, err := validator.FetchAndValidate(ctx, a.ProposedCoverURL)
		if err != nil || !verdict.OK {
			slog.Info("Approved cover no longer validates, rejecting",
				"slug", book.Slug, "url", a.ProposedCoverURL)
			if err := db.SetApprovalState(a.ID, catalog.ApprovalRejected); err != nil {
				return applied, err
			}
			continue
		}

		book.CoverURL = a.ProposedCoverURL
		book.CoverSource = a.Provider
		if store != nil {
			if path, err := store.Save(book.Slug, data); err == nil {
				book.CoverPath = path
			}
		}
		if err := db.UpdateBook(book); err != nil {
			return applied, fmt.Errorf("updating book %s: %w", book.Slug, err)
		}
		if err := db.SetApprovalState(a.ID, catalog.ApprovalApplied); err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}
