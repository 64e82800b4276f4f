package normalize

import (
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestTitle(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercases and strips punctuation", "Harry Potter!!", "harry potter"},
		{"collapses whitespace", "  The   Hobbit ", "the hobbit"},
		{"folds accents", "Élodie à Paris", "elodie a paris"},
		{"strips all non-alphanumerics", "Dune: Messiah (2nd ed.)", "dune messiah 2nd ed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Title(tt.input))
		})
	}
}

func TestTitleIdempotent(t *testing.T) {
	inputs := []string{"Harry Potter!!", "  The   Hobbit ", "Élodie", "dune"}
	for _, in := range inputs {
		once := Title(in)
		assert.Equal(t, once, Title(once))
	}
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "the-hobbit-part-2", Slugify("The Hobbit: Part 2!"))
	assert.Equal(t, "dune", Slugify("Dune"))
	assert.Equal(t, "already-hyphenated", Slugify("already-hyphenated"))
}

func TestMakeUniqueSlug(t *testing.T) {
	assert.Equal(t, "foo", MakeUniqueSlug("foo", map[string]bool{}))
	assert.Equal(t, "foo-2", MakeUniqueSlug("foo", map[string]bool{"foo": true}))
	assert.Equal(t, "foo-3", MakeUniqueSlug("foo", map[string]bool{"foo": true, "foo-2": true}))
}

func TestISBN(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"978-0-7653-2635-5", "9780765326355"},
		{"0 7653 2635 7", "0765326357"},
		{"12345", ""},
		{"", ""},
		{"97807653263551", ""}, // 14 digits
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ISBN(tt.input))
	}
}

func TestParseSeries(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  SeriesInfo
	}{
		{
			"comma hash form",
			"Mistborn (Mistborn, #1)",
			SeriesInfo{CleanTitle: "Mistborn", Series: "Mistborn", Order: 1},
		},
		{
			"book form",
			"The Eye of the World (The Wheel of Time, Book 1)",
			SeriesInfo{CleanTitle: "The Eye of the World", Series: "The Wheel of Time", Order: 1},
		},
		{
			"bare hash form",
			"Words of Radiance (The Stormlight Archive #2)",
			SeriesInfo{CleanTitle: "Words of Radiance", Series: "The Stormlight Archive", Order: 2},
		},
		{
			"fractional order",
			"The Slow Regard of Silent Things (The Kingkiller Chronicle, #2.5)",
			SeriesInfo{CleanTitle: "The Slow Regard of Silent Things", Series: "The Kingkiller Chronicle", Order: 2.5},
		},
		{
			"colon form",
			"Changes: The Dresden Files 12",
			SeriesInfo{CleanTitle: "Changes", Series: "The Dresden Files", Order: 12},
		},
		{
			"colon form rejected when series segment too long",
			"Sapiens: A Brief History of Humankind and Everything That Came After Which Rambles On 2",
			SeriesInfo{CleanTitle: "Sapiens: A Brief History of Humankind and Everything That Came After Which Rambles On 2"},
		},
		{
			"no annotation",
			"The Hobbit",
			SeriesInfo{CleanTitle: "The Hobbit"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseSeries(tt.title))
		})
	}
}

func TestParseSeriesFirstPatternWins(t *testing.T) {
	// Parenthetical form takes precedence over the colon form.
	got := ParseSeries("Prequel: Stories (Legends, #0.5)")
	assert.Equal(t, "Prequel: Stories", got.CleanTitle)
	assert.Equal(t, "Legends", got.Series)
	assert.Equal(t, 0.5, got.Order)
}

func TestAuthors(t *testing.T) {
	tests := []struct {
		name       string
		primary    string
		additional string
		want       []string
	}{
		{"flips last-first", "Herbert, Frank", "", []string{"Frank Herbert"}},
		{"plain name passes through", "Brandon Sanderson", "", []string{"Brandon Sanderson"}},
		{"splits on and", "Terry Pratchett and Neil Gaiman", "", []string{"Terry Pratchett", "Neil Gaiman"}},
		{
			"merges additional authors",
			"Sanderson, Brandon",
			"Michael Whelan, Isaac Stewart",
			[]string{"Brandon Sanderson", "Michael Whelan", "Isaac Stewart"},
		},
		{
			"deduplicates preserving first-seen order",
			"Herbert, Frank",
			"Frank Herbert, Kevin J. Anderson",
			[]string{"Frank Herbert", "Kevin J. Anderson"},
		},
		{"empty input", "", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Authors(tt.primary, tt.additional))
		})
	}
}

func TestSplitName(t *testing.T) {
	first, last := SplitName("John Smith")
	assert.Equal(t, "john", first)
	assert.Equal(t, "smith", last)

	first, last = SplitName("Smith, J.")
	assert.Equal(t, "j", first)
	assert.Equal(t, "smith", last)

	first, last = SplitName("Cher")
	assert.Equal(t, "", first)
	assert.Equal(t, "cher", last)
}
