package normalize

import (
	"regexp"
	"strconv"
	"strings"
)

// SeriesInfo is the result of extracting a series annotation from a title.
// Series is empty when no annotation was found; Order is only meaningful
// when Series is set. Fractional orders (2.5 novellas) are preserved.
type SeriesInfo struct {
	CleanTitle string
	Series     string
	Order      float64
}

// maxColonSeriesLen guards the colon form against matching subtitles:
// "Title: A Very Long Descriptive Subtitle 2" is almost never a series.
const maxColonSeriesLen = 50

// Parenthetical forms are tried before the colon form; the first matching
// pattern wins and no further patterns are consulted.
var seriesPatterns = []*regexp.Regexp{
	// "Mistborn (Mistborn, #1)"
	regexp.MustCompile(`^(.*?)\s*\(([^,()]+),\s*#(\d+(?:\.\d+)?)\)\s*$`),
	// "The Eye of the World (The Wheel of Time, Book 1)"
	regexp.MustCompile(`^(.*?)\s*\(([^,()]+),\s*Book\s+(\d+(?:\.\d+)?)\)\s*$`),
	// "Words of Radiance (The Stormlight Archive #2)"
	regexp.MustCompile(`^(.*?)\s*\(([^#()]+?)\s*#(\d+(?:\.\d+)?)\)\s*$`),
}

// "Foundation: Robot City 3", applied only when the series segment is short.
var colonSeriesPattern = regexp.MustCompile(`^(.*?):\s*(.+?)\s+(\d+(?:\.\d+)?)\s*$`)

// ParseSeries extracts a trailing series annotation from a title.
// Recognized forms: "Title (Series, #N)", "Title (Series, Book N)",
// "Title (Series #N)" and "Title: Series N".
func ParseSeries(title string) SeriesInfo {
	for _, re := range seriesPatterns {
		if m := re.FindStringSubmatch(title); m != nil {
			if info, ok := buildSeriesInfo(m); ok {
				return info
			}
		}
	}
	if m := colonSeriesPattern.FindStringSubmatch(title); m != nil {
		if len(m[2]) < maxColonSeriesLen {
			if info, ok := buildSeriesInfo(m); ok {
				return info
			}
		}
	}
	return SeriesInfo{CleanTitle: strings.TrimSpace(title)}
}

func buildSeriesInfo(m []string) (SeriesInfo, bool) {
	order, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return SeriesInfo{}, false
	}
	clean := strings.TrimSpace(m[1])
	series := strings.TrimSpace(m[2])
	if clean == "" || series == "" {
		return SeriesInfo{}, false
	}
	return SeriesInfo{CleanTitle: clean, Series: series, Order: order}, true
}
