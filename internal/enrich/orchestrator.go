package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mkoskinen/librarian/internal/catalog"
	"github.com/mkoskinen/librarian/internal/covers"
	"github.com/mkoskinen/librarian/internal/provider"
	"github.com/mkoskinen/librarian/internal/similarity"
)

const (
	defaultBatchSize = 50

	// coverWorkers bounds the cover fetch+validate fan-out. Covers come
	// from CDNs without the API rate gates, and no two workers ever touch
	// the same book.
	coverWorkers = 10
)

// Config wires an Orchestrator. Sources must be in priority order.
type Config struct {
	DB         *catalog.DB
	Sources    []Source
	Validator  *covers.Validator
	CoverStore *covers.Store
	CursorFile string
	BatchSize  int

	// Limit caps how many books this run processes; 0 means no cap.
	Limit int

	// ReplaceBad re-validates existing covers and replaces the ones that
	// fail, instead of treating any existing cover as settled.
	ReplaceBad bool

	// AutoApprove applies low-confidence replacement covers directly
	// instead of queueing them for review. They still must validate.
	AutoApprove bool
}

// Summary reports per-outcome counts for one run.
type Summary struct {
	Processed int
	Enriched  int
	Partial   int
	NotFound  int
	Failed    int
	Updated   int
	Approvals int
}

// Orchestrator drives enrichment batch runs.
type Orchestrator struct {
	cfg Config
}

// New creates an orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Validator == nil {
		cfg.Validator = covers.NewValidator()
	}
	return &Orchestrator{cfg: cfg}
}

// lookupStrategy records which query produced a candidate.
type lookupStrategy int

const (
	strategyISBN lookupStrategy = iota
	strategyProviderID
	strategySearch
)

// bookWork carries one book through the batch phases. Each worker owns
// its item exclusively, so no locking is needed.
type bookWork struct {
	book    *catalog.Book
	authors []catalog.Author

	candidates []Candidate
	merged     Merged
	transient  bool

	coverAccepted *CoverCandidate
	coverPath     string
	coverDeferred *CoverCandidate
}

// Run processes batches of retryable books until none remain, the limit
// is hit, or the context is cancelled. The cursor is persisted after
// every batch; it resets to zero only when a full pass finds nothing
// left to do.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	var summary Summary

	cursor, err := LoadCursor(o.cfg.CursorFile)
	if err != nil {
		return summary, err
	}
	if cursor.LastOffset > 0 {
		slog.Info("Resuming enrichment", "offset", cursor.LastOffset,
			"processed_so_far", cursor.TotalProcessed)
	}

	for {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		batch, err := o.cfg.DB.BooksByStatus(catalog.RetryableStatuses, cursor.LastOffset, o.cfg.BatchSize)
		if err != nil {
			return summary, fmt.Errorf("selecting batch: %w", err)
		}
		if len(batch) == 0 {
			cursor = cursor.Reset()
			if err := cursor.Save(o.cfg.CursorFile); err != nil {
				return summary, err
			}
			slog.Info("Enrichment pass complete", "processed", summary.Processed,
				"enriched", summary.Enriched, "partial", summary.Partial,
				"not_found", summary.NotFound, "failed", summary.Failed,
				"approvals", summary.Approvals)
			return summary, nil
		}
		if o.cfg.Limit > 0 && summary.Processed+len(batch) > o.cfg.Limit {
			batch = batch[:o.cfg.Limit-summary.Processed]
		}

		work := o.prepareBatch(batch)
		o.fetchPhase(ctx, work)
		o.coverPhase(ctx, work)

		stillRetryable := 0
		for _, w := range work {
			updated, err := o.apply(ctx, w)
			summary.Processed++
			if err != nil {
				// One book's failure never aborts the batch.
				slog.Error("Enrichment failed", "slug", w.book.Slug, "error", err)
				summary.Failed++
				stillRetryable++
				continue
			}
			if updated {
				summary.Updated++
				cursor.TotalUpdated++
			}
			switch w.book.Status {
			case catalog.StatusEnriched:
				summary.Enriched++
			case catalog.StatusPartial:
				summary.Partial++
				stillRetryable++
			case catalog.StatusNotFound:
				summary.NotFound++
				stillRetryable++
			default:
				summary.Failed++
				stillRetryable++
			}
			if w.coverDeferred != nil {
				summary.Approvals++
			}
		}

		// Books that stay retryable remain in the status query; the
		// offset only skips past those so the next batch is fresh.
		cursor.LastOffset += stillRetryable
		cursor.TotalProcessed += len(batch)
		cursor.LastRun = time.Now().UTC()
		if err := cursor.Save(o.cfg.CursorFile); err != nil {
			return summary, err
		}
		slog.Info("Batch complete", "size", len(batch), "offset", cursor.LastOffset)

		if o.cfg.Limit > 0 && summary.Processed >= o.cfg.Limit {
			return summary, nil
		}
	}
}

func (o *Orchestrator) prepareBatch(batch []catalog.Book) []*bookWork {
	work := make([]*bookWork, 0, len(batch))
	for i := range batch {
		w := &bookWork{book: &batch[i]}
		authors, err := o.cfg.DB.AuthorsForBook(w.book.ID)
		if err != nil {
			slog.Warn("Loading authors failed", "slug", w.book.Slug, "error", err)
		}
		w.authors = authors
		work = append(work, w)
	}
	return work
}

// fetchPhase queries every source for every book, sequentially: the
// provider gates serialize these calls anyway.
func (o *Orchestrator) fetchPhase(ctx context.Context, work []*bookWork) {
	for _, w := range work {
		if ctx.Err() != nil {
			return
		}
		o.fetchCandidates(ctx, w)
	}
}

func (o *Orchestrator) fetchCandidates(ctx context.Context, w *bookWork) {
	existing := make([]string, 0, len(w.authors))
	for _, a := range w.authors {
		existing = append(existing, a.Name)
	}

	for _, src := range o.cfg.Sources {
		data, strat, err := o.lookup(ctx, src, w.book, existing)
		if err != nil {
			if errors.Is(err, provider.ErrNotFound) || errors.Is(err, provider.ErrInvalidISBN) {
				continue
			}
			slog.Warn("Source lookup failed", "source", src.Name(), "slug", w.book.Slug, "error", err)
			w.transient = true
			continue
		}

		confidence := similarity.AuthorConfidence(data.Authors, existing)
		if len(existing) == 0 && strat == strategyISBN {
			// ISBN equality is an exact identity key; with no catalog
			// authors to check against there is nothing to protect.
			confidence = similarity.ConfidenceExact
		}

		if data.ProviderID != nil {
			src.StoreID(w.book, *data.ProviderID)
		}
		w.candidates = append(w.candidates, Candidate{
			Source:      src.Name(),
			Priority:    src.Priority(),
			AcceptFloor: src.AcceptFloor(),
			Confidence:  confidence,
			Data:        data,
		})
	}
	w.merged = Merge(w.candidates)
}

// lookup runs the strategy chain for one source: ISBN first, stored
// provider id second, free-text search last.
func (o *Orchestrator) lookup(ctx context.Context, src Source, b *catalog.Book, authors []string) (*provider.Metadata, lookupStrategy, error) {
	var lastErr error = provider.ErrNotFound

	for _, isbn := range []string{b.ISBN13, b.ISBN10} {
		if isbn == "" {
			continue
		}
		data, err := src.LookupISBN(ctx, isbn)
		if err == nil {
			return data, strategyISBN, nil
		}
		lastErr = err
		if !errors.Is(err, provider.ErrNotFound) && !errors.Is(err, provider.ErrInvalidISBN) {
			return nil, strategyISBN, err
		}
	}

	if id := src.StoredID(b); id != "" {
		data, err := src.LookupID(ctx, id)
		if err == nil {
			return data, strategyProviderID, nil
		}
		lastErr = err
		if !errors.Is(err, provider.ErrNotFound) {
			return nil, strategyProviderID, err
		}
	}

	author := ""
	if len(authors) > 0 {
		author = authors[0]
	}
	data, err := src.Search(ctx, b.Title, author)
	if err == nil {
		return data, strategySearch, nil
	}
	if errors.Is(err, provider.ErrNotFound) {
		err = lastErr
	}
	return nil, strategySearch, err
}

// coverPhase resolves covers with a bounded worker pool over independent
// books.
func (o *Orchestrator) coverPhase(ctx context.Context, work []*bookWork) {
	jobs := make(chan *bookWork)
	var wg sync.WaitGroup

	for range coverWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for w := range jobs {
				o.resolveCover(ctx, w)
			}
		}()
	}
	for _, w := range work {
		jobs <- w
	}
	close(jobs)
	wg.Wait()
}

// resolveCover picks the cover for one book: keep a valid existing
// cover, otherwise accept the first trusted candidate that passes
// validation. An untrusted candidate that would replace a bad existing
// cover is deferred for approval, never applied silently.
func (o *Orchestrator) resolveCover(ctx context.Context, w *bookWork) {
	b := w.book

	replacingBad := false
	if b.CoverURL != "" || b.CoverPath != "" {
		if !o.cfg.ReplaceBad || b.CoverURL == "" {
			return
		}
		verdict, _, err := o.cfg.Validator.FetchAndValidate(ctx, b.CoverURL)
		if err == nil && verdict.OK {
			return
		}
		slog.Info("Existing cover failed validation", "slug", b.Slug, "reason", verdict.Reason)
		replacingBad = true
	}

	if o.acceptFirstValid(ctx, w, w.merged.CoverCandidates) {
		return
	}

	if replacingBad && len(w.merged.Deferred) > 0 {
		if o.cfg.AutoApprove {
			o.acceptFirstValid(ctx, w, w.merged.Deferred)
			return
		}
		deferred := w.merged.Deferred[0]
		w.coverDeferred = &deferred
	}
}

// acceptFirstValid downloads candidates in order and accepts the first
// one that passes validation, saving it to the cover store.
func (o *Orchestrator) acceptFirstValid(ctx context.Context, w *bookWork, candidates []CoverCandidate) bool {
	b := w.book
	for _, cc := range candidates {
		verdict, data, err := o.cfg.Validator.FetchAndValidate(ctx, cc.URL)
		if err != nil || !verdict.OK {
			continue
		}
		accepted := cc
		w.coverAccepted = &accepted
		if o.cfg.CoverStore != nil {
			path, err := o.cfg.CoverStore.Save(b.Slug, data)
			if err != nil {
				slog.Warn("Storing cover failed", "slug", b.Slug, "error", err)
			} else {
				w.coverPath = path
			}
		}
		return true
	}
	return false
}

// apply writes the merged result for one book and returns whether any
// field changed beyond the status bookkeeping.
func (o *Orchestrator) apply(ctx context.Context, w *bookWork) (bool, error) {
	b := w.book
	changed := false

	fill := func(dst *string, src *string) {
		if *dst == "" && src != nil && *src != "" {
			*dst = *src
			changed = true
		}
	}
	fill(&b.Subtitle, w.merged.Data.Subtitle)
	fill(&b.Description, w.merged.Data.Description)
	fill(&b.Publisher, w.merged.Data.Publisher)
	if b.NumberOfPages == 0 && w.merged.Data.NumberOfPages != nil {
		b.NumberOfPages = *w.merged.Data.NumberOfPages
		changed = true
	}

	if w.coverAccepted != nil {
		if b.CoverURL == "" || o.cfg.ReplaceBad {
			b.CoverURL = w.coverAccepted.URL
			b.CoverSource = w.coverAccepted.Source
			if w.coverPath != "" {
				b.CoverPath = w.coverPath
			}
			changed = true
		}
	}

	if w.coverDeferred != nil {
		if err := o.cfg.DB.InsertApproval(&catalog.Approval{
			BookID:           b.ID,
			Title:            b.Title,
			CurrentCoverURL:  b.CoverURL,
			ProposedCoverURL: w.coverDeferred.URL,
			MatchedAuthor:    firstAuthorName(w.authors),
			Provider:         w.coverDeferred.Source,
			Confidence:       w.coverDeferred.Confidence,
		}); err != nil {
			return changed, fmt.Errorf("queueing approval: %w", err)
		}
	}

	b.Status = o.statusFor(w)
	b.EnrichedAt = time.Now().UTC()
	if err := o.cfg.DB.UpdateBook(b); err != nil {
		return changed, fmt.Errorf("updating book: %w", err)
	}

	if err := o.enrichAuthors(ctx, w); err != nil {
		slog.Warn("Author enrichment failed", "slug", b.Slug, "error", err)
	}
	return changed, nil
}

func (o *Orchestrator) statusFor(w *bookWork) catalog.EnrichmentStatus {
	if len(w.candidates) == 0 {
		if w.transient {
			return catalog.StatusFailed
		}
		return catalog.StatusNotFound
	}
	b := w.book
	if b.Description != "" && (b.CoverURL != "" || b.CoverPath != "") {
		return catalog.StatusEnriched
	}
	return catalog.StatusPartial
}

// enrichAuthors fills bio, photo and life dates for the book's authors
// using per-author provider records, when a source linked any.
func (o *Orchestrator) enrichAuthors(ctx context.Context, w *bookWork) error {
	keys := w.merged.Data.AuthorKeys
	if len(keys) == 0 {
		return nil
	}
	src := o.authorSource()
	if src == nil {
		return nil
	}

	for i := range w.authors {
		a := &w.authors[i]

		if a.OpenLibraryKey == "" {
			for name, key := range keys {
				if similarity.AuthorConfidence([]string{name}, []string{a.Name}) >= similarity.ConfidenceLastName {
					a.OpenLibraryKey = key
					break
				}
			}
		}
		if a.OpenLibraryKey == "" {
			continue
		}
		if a.Bio != "" && a.PhotoURL != "" && a.BirthYear != "" {
			continue
		}

		meta, err := src.LookupAuthor(ctx, a.OpenLibraryKey)
		if err != nil {
			if errors.Is(err, provider.ErrNotFound) {
				continue
			}
			return err
		}
		fillAuthorGaps(a, meta)
		if err := o.cfg.DB.UpdateAuthor(a); err != nil {
			return fmt.Errorf("updating author %s: %w", a.Slug, err)
		}
	}
	return nil
}

func (o *Orchestrator) authorSource() AuthorSource {
	for _, src := range o.cfg.Sources {
		if as, ok := src.(AuthorSource); ok {
			return as
		}
	}
	return nil
}

func fillAuthorGaps(a *catalog.Author, meta *provider.AuthorMetadata) {
	fill := func(dst *string, src *string) {
		if *dst == "" && src != nil {
			*dst = *src
		}
	}
	fill(&a.Bio, meta.Bio)
	fill(&a.PhotoURL, meta.PhotoURL)
	fill(&a.BirthYear, meta.BirthYear)
	fill(&a.DeathYear, meta.DeathYear)
}

func firstAuthorName(authors []catalog.Author) string {
	if len(authors) == 0 {
		return ""
	}
	return authors[0].Name
}
