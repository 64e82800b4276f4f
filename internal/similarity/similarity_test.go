package similarity

import (
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestScoreExactAfterNormalization(t *testing.T) {
	assert.Equal(t, 1.0, Score("Harry Potter", "harry potter!!"))
	assert.Equal(t, 1.0, Score("Dune", "DUNE"))
}

func TestScoreContainment(t *testing.T) {
	got := Score("Harry Potter and the Sorcerer's Stone", "Harry Potter")
	assert.Equal(t, 0.9, got)
	// Symmetric
	assert.Equal(t, 0.9, Score("Harry Potter", "Harry Potter and the Sorcerer's Stone"))
}

func TestScoreEditDistanceFallback(t *testing.T) {
	// "dune" vs "dane": 1 edit over 4 runes
	got := Score("dune", "dane")
	assert.Equal(t, 0.75, got)

	// Unrelated strings score low
	assert.True(t, Score("The Hobbit", "War and Peace") < MatchThreshold)
}

func TestScoreEmpty(t *testing.T) {
	assert.Equal(t, 1.0, Score("", ""))
	assert.Equal(t, 0.0, Score("Dune", ""))
}

func TestAuthorPairConfidenceTiers(t *testing.T) {
	tests := []struct {
		name      string
		candidate string
		existing  string
		want      int
	}{
		{"exact normalized equality", "Frank Herbert", "frank herbert", ConfidenceExact},
		{"comma form flipped before comparing", "Herbert, Frank", "Frank Herbert", ConfidenceExact},
		{"last name plus initial", "John Smith", "Smith, J.", ConfidenceFirstOrInit},
		{"last name plus same first", "John Smith", "john smith", ConfidenceExact},
		{"last name only", "John Smith", "Jane Smith", ConfidenceLastName},
		{"containment", "John Smith", "John Smith Jr.", ConfidenceContainment},
		{"no relation", "John Smith", "Smithsonian Institute", ConfidenceNone},
		{"empty candidate", "", "Frank Herbert", ConfidenceNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, authorPairConfidence(tt.candidate, tt.existing))
		})
	}
}

func TestAuthorConfidenceBestPair(t *testing.T) {
	got := AuthorConfidence(
		[]string{"Neil Gaiman", "Terry Pratchett"},
		[]string{"Pratchett, Terry"},
	)
	assert.Equal(t, ConfidenceExact, got)

	got = AuthorConfidence([]string{"Jane Smith"}, []string{"John Smith", "Frank Herbert"})
	assert.Equal(t, ConfidenceLastName, got)

	assert.Equal(t, ConfidenceNone, AuthorConfidence(nil, []string{"Frank Herbert"}))
}
