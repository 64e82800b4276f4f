// Package normalize provides the string transforms used as equality keys
// for duplicate detection across import sources and providers.
package normalize

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonAlnum     = regexp.MustCompile(`[^a-z0-9 ]+`)
	nonSlug      = regexp.MustCompile(`[^\w\s-]+`)
	whitespace   = regexp.MustCompile(`\s+`)
	stripAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// foldAccents lowercases and strips combining marks so "Élodie" and
// "Elodie" produce the same key.
func foldAccents(s string) string {
	result, _, err := transform.String(stripAccents, strings.ToLower(s))
	if err != nil {
		return strings.ToLower(s)
	}
	return result
}

// Title produces the canonical comparison key for a title: lowercase,
// accents folded, non-alphanumerics stripped, whitespace collapsed.
// Title is idempotent.
func Title(s string) string {
	s = foldAccents(s)
	s = nonAlnum.ReplaceAllString(s, "")
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Slugify turns a title into a URL-safe slug. The result is deterministic
// and derived from the title alone; uniqueness is the caller's problem
// (see MakeUniqueSlug).
func Slugify(s string) string {
	s = foldAccents(s)
	s = nonSlug.ReplaceAllString(s, "")
	s = whitespace.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// MakeUniqueSlug appends an incrementing numeric suffix until the candidate
// is absent from existing. The first collision gets "-2", matching the
// slugs already in the catalog.
func MakeUniqueSlug(base string, existing map[string]bool) string {
	if !existing[base] {
		return base
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s-%d", base, i)
		if !existing[candidate] {
			return candidate
		}
	}
}

// ISBN strips hyphens and spaces and accepts only results of length 10 or
// 13. No checksum validation is performed; the length filter alone matches
// what the import sources actually emit. Returns "" for anything else.
func ISBN(s string) string {
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")
	if len(s) == 10 || len(s) == 13 {
		return s
	}
	return ""
}

// LastName returns the normalized last name of an author, the grouping key
// for duplicate-author consolidation. Handles "Last, First" input.
func LastName(name string) string {
	_, last := SplitName(name)
	return last
}

// SplitName breaks an author name into normalized first and last parts.
// "Smith, J." and "John Smith" both yield last "smith".
func SplitName(name string) (first, last string) {
	if idx := strings.Index(name, ","); idx >= 0 {
		// "Last, First" form
		name = strings.TrimSpace(name[idx+1:]) + " " + strings.TrimSpace(name[:idx])
	}
	norm := Title(name)
	fields := strings.Fields(norm)
	switch len(fields) {
	case 0:
		return "", ""
	case 1:
		return "", fields[0]
	default:
		return fields[0], fields[len(fields)-1]
	}
}
