// Package similarity scores how likely two title or author strings refer
// to the same work or person. The title score is Levenshtein-derived but
// deliberately not a metric: containment outranks edit distance so that
// abbreviated and subtitle variants match well.
package similarity

import (
	"strings"

	"github.com/mkoskinen/librarian/internal/normalize"
)

// MatchThreshold is the acceptance bar for fuzzy title matches. Tuned
// against real import batches; lowering it starts matching unrelated books
// with generic titles.
const MatchThreshold = 0.85

// containmentScore is returned when one normalized string contains the
// other. Kept above MatchThreshold on purpose: "Harry Potter" should match
// "Harry Potter and the Sorcerer's Stone".
const containmentScore = 0.9

// Score returns a similarity in [0,1] between two strings after
// normalization: 1.0 on equality, 0.9 on containment either way, otherwise
// 1 - levenshtein/maxlen.
func Score(a, b string) float64 {
	na := normalize.Title(a)
	nb := normalize.Title(b)

	if na == nb {
		return 1.0
	}
	if na == "" || nb == "" {
		return 0
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return containmentScore
	}

	ra := []rune(na)
	rb := []rune(nb)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	return 1.0 - float64(levenshtein(ra, rb))/float64(maxLen)
}

// levenshtein computes edit distance with a two-row DP over runes.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
