package enrich

import (
	"sort"

	"github.com/mkoskinen/librarian/internal/provider"
)

// Candidate is one source's response for a target book, scored against
// the book's known authors.
type Candidate struct {
	Source      string
	Priority    int
	AcceptFloor int

	// Confidence is the 0-100 author-match score between the candidate's
	// authors and the target book's authors.
	Confidence int

	Data *provider.Metadata
}

// trusted reports whether this candidate clears its source's auto-accept
// floor. Cover and description only merge from trusted candidates; the
// cheap factual fields (pages, publisher) merge regardless.
func (c Candidate) trusted() bool {
	return c.Confidence >= c.AcceptFloor
}

// Merged is the outcome of merging all candidates for one book.
type Merged struct {
	Data provider.Metadata

	// CoverCandidates are cover URLs in acceptance order, from trusted
	// candidates only. The first one to pass validation wins.
	CoverCandidates []CoverCandidate

	// Deferred are covers from untrusted candidates; they surface as
	// pending approvals when they would overwrite an existing cover.
	Deferred []CoverCandidate
}

// CoverCandidate carries a cover URL with its provenance.
type CoverCandidate struct {
	URL        string
	Source     string
	Confidence int
}

// Merge combines candidate metadata in priority order: for every field
// the highest-priority candidate that has it wins, and existing values
// are filled by the caller, never overwritten here.
func Merge(candidates []Candidate) Merged {
	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})

	var m Merged
	for _, c := range sorted {
		if c.Data == nil {
			continue
		}
		d := c.Data

		fillString(&m.Data.Title, d.Title)
		fillString(&m.Data.Subtitle, d.Subtitle)
		fillString(&m.Data.Publisher, d.Publisher)
		fillString(&m.Data.PublishDate, d.PublishDate)
		fillString(&m.Data.Language, d.Language)
		fillInt(&m.Data.NumberOfPages, d.NumberOfPages)
		if len(m.Data.Subjects) == 0 {
			m.Data.Subjects = d.Subjects
		}
		if len(m.Data.Authors) == 0 {
			m.Data.Authors = d.Authors
		}
		for name, key := range d.AuthorKeys {
			if m.Data.AuthorKeys == nil {
				m.Data.AuthorKeys = make(map[string]string)
			}
			if _, ok := m.Data.AuthorKeys[name]; !ok {
				m.Data.AuthorKeys[name] = key
			}
		}

		if c.trusted() {
			fillString(&m.Data.Description, d.Description)
		}
		if d.CoverURL != nil && *d.CoverURL != "" {
			cc := CoverCandidate{URL: *d.CoverURL, Source: c.Source, Confidence: c.Confidence}
			if c.trusted() {
				m.CoverCandidates = append(m.CoverCandidates, cc)
			} else {
				m.Deferred = append(m.Deferred, cc)
			}
		}
	}
	return m
}

func fillString(dst **string, src *string) {
	if *dst == nil && src != nil && *src != "" {
		*dst = src
	}
}

func fillInt(dst **int, src *int) {
	if *dst == nil && src != nil && *src > 0 {
		*dst = src
	}
}
