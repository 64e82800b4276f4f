package enrich

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mkoskinen/librarian/internal/provider"
)

func str(s string) *string { return &s }
func num(n int) *int       { return &n }

func TestMergePriorityOrder(t *testing.T) {
	merged := Merge([]Candidate{
		{
			Source: "Google Books", Priority: 2, AcceptFloor: 30, Confidence: 100,
			Data: &provider.Metadata{
				Description:   str("secondary description"),
				Publisher:     str("GB Publisher"),
				NumberOfPages: num(600),
			},
		},
		{
			Source: "OpenLibrary", Priority: 1, AcceptFloor: 50, Confidence: 100,
			Data: &provider.Metadata{
				Description: str("primary description"),
			},
		},
	})

	// The higher-priority source wins where both have data; lower
	// priority fills the rest.
	assert.Equal(t, "primary description", *merged.Data.Description)
	assert.Equal(t, "GB Publisher", *merged.Data.Publisher)
	assert.Equal(t, 600, *merged.Data.NumberOfPages)
}

func TestMergeFloorGatesDescriptionAndCover(t *testing.T) {
	merged := Merge([]Candidate{
		{
			Source: "OpenLibrary", Priority: 1, AcceptFloor: 50, Confidence: 30,
			Data: &provider.Metadata{
				Description:   str("untrusted description"),
				CoverURL:      str("https://example.com/untrusted.jpg"),
				Publisher:     str("Ace Books"),
				NumberOfPages: num(604),
			},
		},
	})

	// Below the floor: no description, cover deferred. The cheap factual
	// fields still merge.
	assert.Nil(t, merged.Data.Description)
	assert.Empty(t, merged.CoverCandidates)
	assert.Len(t, merged.Deferred, 1)
	assert.Equal(t, "https://example.com/untrusted.jpg", merged.Deferred[0].URL)
	assert.Equal(t, "Ace Books", *merged.Data.Publisher)
}

func TestMergeCoverCandidatesKeepPriorityOrder(t *testing.T) {
	merged := Merge([]Candidate{
		{Source: "Google Books", Priority: 2, AcceptFloor: 30, Confidence: 80,
			Data: &provider.Metadata{CoverURL: str("https://example.com/gb.jpg")}},
		{Source: "OpenLibrary", Priority: 1, AcceptFloor: 50, Confidence: 80,
			Data: &provider.Metadata{CoverURL: str("https://example.com/ol.jpg")}},
	})

	assert.Len(t, merged.CoverCandidates, 2)
	assert.Equal(t, "OpenLibrary", merged.CoverCandidates[0].Source)
	assert.Equal(t, "Google Books", merged.CoverCandidates[1].Source)
}

func TestMergeAuthorKeys(t *testing.T) {
	merged := Merge([]Candidate{
		{Source: "OpenLibrary", Priority: 1, AcceptFloor: 50, Confidence: 100,
			Data: &provider.Metadata{AuthorKeys: map[string]string{"Frank Herbert": "OL79034A"}}},
	})
	assert.Equal(t, "OL79034A", merged.Data.AuthorKeys["Frank Herbert"])
}

func TestMergeEmpty(t *testing.T) {
	merged := Merge(nil)
	assert.Nil(t, merged.Data.Description)
	assert.Empty(t, merged.CoverCandidates)
}
