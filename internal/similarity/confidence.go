package similarity

import (
	"strings"

	"github.com/mkoskinen/librarian/internal/normalize"
)

// Author-match confidence tiers on a 0-100 scale. These drive automatic
// acceptance of enrichment payloads, not entity identity; call sites apply
// per-provider floors against them. The values are hand-tuned and changing
// them silently shifts what gets applied vs. flagged for manual approval.
const (
	ConfidenceExact       = 100 // normalized names equal
	ConfidenceFirstOrInit = 80  // same last name, same first name or initial
	ConfidenceLastName    = 50  // same last name only
	ConfidenceContainment = 30  // one normalized name contains the other
	ConfidenceNone        = 0
)

// AuthorConfidence returns the best pairwise confidence between any
// candidate author and any existing author.
func AuthorConfidence(candidates, existing []string) int {
	best := ConfidenceNone
	for _, c := range candidates {
		for _, e := range existing {
			if score := authorPairConfidence(c, e); score > best {
				best = score
			}
		}
	}
	return best
}

// authorPairConfidence scores a single candidate/existing name pair.
func authorPairConfidence(candidate, existing string) int {
	nc := normalize.Title(flipIfCommaForm(candidate))
	ne := normalize.Title(flipIfCommaForm(existing))
	if nc == "" || ne == "" {
		return ConfidenceNone
	}
	if nc == ne {
		return ConfidenceExact
	}

	cFirst, cLast := normalize.SplitName(candidate)
	eFirst, eLast := normalize.SplitName(existing)

	if cLast != "" && cLast == eLast {
		if cFirst != "" && eFirst != "" {
			if cFirst == eFirst || cFirst[:1] == eFirst[:1] {
				return ConfidenceFirstOrInit
			}
		}
		return ConfidenceLastName
	}

	if strings.Contains(nc, ne) || strings.Contains(ne, nc) {
		return ConfidenceContainment
	}
	return ConfidenceNone
}

func flipIfCommaForm(name string) string {
	idx := strings.Index(name, ",")
	if idx < 0 {
		return name
	}
	return strings.TrimSpace(name[idx+1:]) + " " + strings.TrimSpace(name[:idx])
}
