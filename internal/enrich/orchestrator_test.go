package enrich

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkoskinen/librarian/internal/catalog"
	"github.com/mkoskinen/librarian/internal/covers"
	"github.com/mkoskinen/librarian/internal/provider"
)

// stubSource is a canned Source for orchestrator tests.
type stubSource struct {
	name     string
	priority int
	floor    int

	byISBN     map[string]*provider.Metadata
	byID       map[string]*provider.Metadata
	bySearch   *provider.Metadata
	authorMeta map[string]*provider.AuthorMetadata
	err        error
}

func (s *stubSource) Name() string     { return s.name }
func (s *stubSource) Priority() int    { return s.priority }
func (s *stubSource) AcceptFloor() int { return s.floor }

func (s *stubSource) LookupISBN(_ context.Context, isbn string) (*provider.Metadata, error) {
	if s.err != nil {
		return nil, s.err
	}
	if d, ok := s.byISBN[isbn]; ok {
		return d, nil
	}
	return nil, provider.ErrNotFound
}

func (s *stubSource) LookupID(_ context.Context, id string) (*provider.Metadata, error) {
	if s.err != nil {
		return nil, s.err
	}
	if d, ok := s.byID[id]; ok {
		return d, nil
	}
	return nil, provider.ErrNotFound
}

func (s *stubSource) Search(_ context.Context, _, _ string) (*provider.Metadata, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.bySearch != nil {
		return s.bySearch, nil
	}
	return nil, provider.ErrNotFound
}

func (s *stubSource) LookupAuthor(_ context.Context, key string) (*provider.AuthorMetadata, error) {
	if m, ok := s.authorMeta[key]; ok {
		return m, nil
	}
	return nil, provider.ErrNotFound
}

func (s *stubSource) StoredID(b *catalog.Book) string { return b.OpenLibraryKey }
func (s *stubSource) StoreID(b *catalog.Book, id string) {
	if b.OpenLibraryKey == "" {
		b.OpenLibraryKey = id
	}
}

func goodCoverJPEG(t *testing.T) []byte {
	t.Helper()
	rng := rand.New(rand.NewSource(7))
	img := image.NewRGBA(image.Rect(0, 0, 300, 450))
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.Intn(256))
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 100}))
	return buf.Bytes()
}

func coverServer(t *testing.T) *httptest.Server {
	t.Helper()
	good := goodCoverJPEG(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/good.jpg", "/better.jpg":
			_, _ = w.Write(good)
		case "/bad.jpg":
			_, _ = w.Write([]byte("GIF89a tiny placeholder"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func openTestDB(t *testing.T) *catalog.DB {
	t.Helper()
	db, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedBook(t *testing.T, db *catalog.DB, book *catalog.Book, authorName string) {
	t.Helper()
	require.NoError(t, db.InsertBook(book))
	if authorName != "" {
		a := &catalog.Author{Slug: "a-" + book.Slug, Name: authorName, NormalizedLast: "x"}
		require.NoError(t, db.InsertAuthor(a))
		require.NoError(t, db.LinkBookAuthor(book.ID, a.ID))
	}
}

func TestRunEnrichesPendingBook(t *testing.T) {
	db := openTestDB(t)
	server := coverServer(t)

	book := &catalog.Book{Slug: "dune", Title: "Dune", NormalizedTitle: "dune", ISBN13: "9780441013593"}
	seedBook(t, db, book, "Frank Herbert")

	src := &stubSource{
		name: "OpenLibrary", priority: 1, floor: 50,
		byISBN: map[string]*provider.Metadata{
			"9780441013593": {
				Description: str("A desert planet."),
				CoverURL:    str(server.URL + "/good.jpg"),
				Publisher:   str("Ace Books"),
				ProviderID:  str("/works/OL893415W"),
				Authors:     []string{"Frank Herbert"},
				AuthorKeys:  map[string]string{"Frank Herbert": "OL79034A"},
			},
		},
		authorMeta: map[string]*provider.AuthorMetadata{
			"OL79034A": {Name: "Frank Herbert", Bio: str("American author."), BirthYear: str("1920")},
		},
	}

	coverDir := t.TempDir()
	store, err := covers.NewStore(coverDir)
	require.NoError(t, err)
	cursorFile := filepath.Join(t.TempDir(), "cursor.json")

	o := New(Config{
		DB:         db,
		Sources:    []Source{src},
		Validator:  covers.NewValidatorWithClient(server.Client()),
		CoverStore: store,
		CursorFile: cursorFile,
	})
	summary, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Enriched)
	assert.Equal(t, 1, summary.Updated)

	got, err := db.GetBook(book.ID)
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusEnriched, got.Status)
	assert.Equal(t, "A desert planet.", got.Description)
	assert.Equal(t, server.URL+"/good.jpg", got.CoverURL)
	assert.Equal(t, "OpenLibrary", got.CoverSource)
	assert.Equal(t, filepath.Join(coverDir, "dune.jpg"), got.CoverPath)
	assert.Equal(t, "/works/OL893415W", got.OpenLibraryKey)
	assert.False(t, got.EnrichedAt.IsZero())

	authors, err := db.AuthorsForBook(book.ID)
	require.NoError(t, err)
	require.Len(t, authors, 1)
	assert.Equal(t, "OL79034A", authors[0].OpenLibraryKey)
	assert.Equal(t, "American author.", authors[0].Bio)
	assert.Equal(t, "1920", authors[0].BirthYear)

	// The pass completed with nothing left pending, so the cursor reset.
	cursor, err := LoadCursor(cursorFile)
	require.NoError(t, err)
	assert.Zero(t, cursor.LastOffset)
	assert.False(t, cursor.LastRun.IsZero())
}

func TestRunLowConfidenceWithholdsDescriptionAndCover(t *testing.T) {
	db := openTestDB(t)
	server := coverServer(t)

	book := &catalog.Book{Slug: "dune", Title: "Dune", NormalizedTitle: "dune", ISBN13: "9780441013593"}
	seedBook(t, db, book, "Frank Herbert")

	src := &stubSource{
		name: "OpenLibrary", priority: 1, floor: 50,
		byISBN: map[string]*provider.Metadata{
			"9780441013593": {
				Description: str("Wrong book entirely."),
				CoverURL:    str(server.URL + "/good.jpg"),
				Authors:     []string{"Somebody Unrelated"},
			},
		},
	}

	o := New(Config{
		DB:         db,
		Sources:    []Source{src},
		Validator:  covers.NewValidatorWithClient(server.Client()),
		CursorFile: filepath.Join(t.TempDir(), "cursor.json"),
	})
	summary, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Partial)
	assert.Zero(t, summary.Approvals)

	got, err := db.GetBook(book.ID)
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusPartial, got.Status)
	assert.Empty(t, got.Description)
	assert.Empty(t, got.CoverURL)
}

func TestRunMarksNotFoundAndFailed(t *testing.T) {
	db := openTestDB(t)

	missing := &catalog.Book{Slug: "missing", Title: "Missing", NormalizedTitle: "missing"}
	seedBook(t, db, missing, "")

	o := New(Config{
		DB:         db,
		Sources:    []Source{&stubSource{name: "OpenLibrary", priority: 1, floor: 50}},
		CursorFile: filepath.Join(t.TempDir(), "cursor.json"),
	})
	summary, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.NotFound)

	got, err := db.GetBook(missing.ID)
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusNotFound, got.Status)

	// A transport failure marks FAILED instead, still retryable later.
	broken := &catalog.Book{Slug: "broken", Title: "Broken", NormalizedTitle: "broken"}
	seedBook(t, db, broken, "")

	o = New(Config{
		DB:         db,
		Sources:    []Source{&stubSource{name: "OpenLibrary", priority: 1, floor: 50, err: provider.ErrUnavailable}},
		CursorFile: filepath.Join(t.TempDir(), "cursor.json"),
		Limit:      2,
	})
	summary, err = o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Failed)

	got, err = db.GetBook(broken.ID)
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusFailed, got.Status)
}

func TestRunReplaceBadQueuesApproval(t *testing.T) {
	db := openTestDB(t)
	server := coverServer(t)

	book := &catalog.Book{
		Slug: "dune", Title: "Dune", NormalizedTitle: "dune", ISBN13: "9780441013593",
		CoverURL: server.URL + "/bad.jpg", Description: "Already described.",
	}
	seedBook(t, db, book, "Frank Herbert")

	// The only candidate cover comes from an author match below the
	// floor: replacing the bad cover needs a human decision.
	src := &stubSource{
		name: "Google Books", priority: 2, floor: 30,
		byISBN: map[string]*provider.Metadata{
			"9780441013593": {
				CoverURL: str(server.URL + "/better.jpg"),
				Authors:  []string{"Somebody Unrelated"},
			},
		},
	}

	o := New(Config{
		DB:         db,
		Sources:    []Source{src},
		Validator:  covers.NewValidatorWithClient(server.Client()),
		CursorFile: filepath.Join(t.TempDir(), "cursor.json"),
		ReplaceBad: true,
	})
	summary, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Approvals)

	pending, err := db.ApprovalsByState(catalog.ApprovalPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, book.ID, pending[0].BookID)
	assert.Equal(t, server.URL+"/better.jpg", pending[0].ProposedCoverURL)
	assert.Equal(t, "Google Books", pending[0].Provider)

	// The bad cover stays until the approval is applied.
	got, err := db.GetBook(book.ID)
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/bad.jpg", got.CoverURL)

	// Approve and apply: the proposed cover replaces the bad one.
	require.NoError(t, db.SetApprovalState(pending[0].ID, catalog.ApprovalApproved))
	applied, err := ApplyApprovals(context.Background(), db, covers.NewValidatorWithClient(server.Client()), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	got, err = db.GetBook(book.ID)
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/better.jpg", got.CoverURL)
	assert.Equal(t, "Google Books", got.CoverSource)

	appliedList, err := db.ApprovalsByState(catalog.ApprovalApplied)
	require.NoError(t, err)
	assert.Len(t, appliedList, 1)
}

func TestRunReplaceBadAutoApprove(t *testing.T) {
	db := openTestDB(t)
	server := coverServer(t)

	book := &catalog.Book{
		Slug: "dune", Title: "Dune", NormalizedTitle: "dune", ISBN13: "9780441013593",
		CoverURL: server.URL + "/bad.jpg", Description: "Already described.",
	}
	seedBook(t, db, book, "Frank Herbert")

	src := &stubSource{
		name: "Google Books", priority: 2, floor: 30,
		byISBN: map[string]*provider.Metadata{
			"9780441013593": {
				CoverURL: str(server.URL + "/better.jpg"),
				Authors:  []string{"Somebody Unrelated"},
			},
		},
	}

	o := New(Config{
		DB:          db,
		Sources:     []Source{src},
		Validator:   covers.NewValidatorWithClient(server.Client()),
		CursorFile:  filepath.Join(t.TempDir(), "cursor.json"),
		ReplaceBad:  true,
		AutoApprove: true,
	})
	summary, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Approvals)

	// The low-confidence cover was applied directly, no review round-trip.
	got, err := db.GetBook(book.ID)
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/better.jpg", got.CoverURL)

	pending, err := db.ApprovalsByState(catalog.ApprovalPending)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRunReplaceBadKeepsValidCover(t *testing.T) {
	db := openTestDB(t)
	server := coverServer(t)

	book := &catalog.Book{
		Slug: "dune", Title: "Dune", NormalizedTitle: "dune", ISBN13: "9780441013593",
		CoverURL: server.URL + "/good.jpg", CoverSource: "OpenLibrary",
		Description: "Already described.",
	}
	seedBook(t, db, book, "Frank Herbert")

	src := &stubSource{
		name: "Google Books", priority: 2, floor: 30,
		byISBN: map[string]*provider.Metadata{
			"9780441013593": {
				CoverURL: str(server.URL + "/better.jpg"),
				Authors:  []string{"Frank Herbert"},
			},
		},
	}

	o := New(Config{
		DB:         db,
		Sources:    []Source{src},
		Validator:  covers.NewValidatorWithClient(server.Client()),
		CursorFile: filepath.Join(t.TempDir(), "cursor.json"),
		ReplaceBad: true,
	})
	_, err := o.Run(context.Background())
	require.NoError(t, err)

	// The existing cover validated, so nothing was replaced.
	got, err := db.GetBook(book.ID)
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/good.jpg", got.CoverURL)
}
