package normalize

import "strings"

// Authors normalizes the author fields of an import record into a list of
// "First Last" display names. The primary field may be a single
// "Last, First" name or several names joined with commas or "and"; the
// optional additional field is comma-separated. The result preserves
// first-seen order and drops duplicates by normalized name.
func Authors(primary string, additional string) []string {
	var names []string
	names = append(names, splitAuthorField(primary)...)
	for _, name := range strings.Split(additional, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}

	seen := make(map[string]bool, len(names))
	result := make([]string, 0, len(names))
	for _, name := range names {
		name = flipCommaName(name)
		key := Title(name)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		result = append(result, name)
	}
	return result
}

// splitAuthorField breaks a possibly multi-author field on "and" and on
// commas. A single comma is ambiguous with the "Last, First" form, which
// flipCommaName resolves afterwards.
func splitAuthorField(field string) []string {
	field = strings.TrimSpace(field)
	if field == "" {
		return nil
	}

	var parts []string
	for _, chunk := range strings.Split(field, " and ") {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		if strings.Count(chunk, ",") >= 2 {
			// Genuinely comma-separated author list
			for _, p := range strings.Split(chunk, ",") {
				if p = strings.TrimSpace(p); p != "" {
					parts = append(parts, p)
				}
			}
			continue
		}
		parts = append(parts, chunk)
	}
	return parts
}

// FlipName converts a single "Last, First" name into display order.
// Names without a comma pass through unchanged.
func FlipName(name string) string {
	return flipCommaName(name)
}

// flipCommaName converts "Last, First" into "First Last". Names without a
// comma pass through unchanged.
func flipCommaName(name string) string {
	idx := strings.Index(name, ",")
	if idx < 0 {
		return strings.TrimSpace(name)
	}
	last := strings.TrimSpace(name[:idx])
	first := strings.TrimSpace(name[idx+1:])
	if first == "" {
		return last
	}
	return first + " " + last
}
