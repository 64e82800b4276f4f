package provider

// Loose-shape extractors shared by the provider clients. Provider payloads
// vary between plain values and wrapped objects, so extraction is an
// explicit first-match chain rather than a blind property walk; a field in
// an unexpected shape yields nothing instead of an error.

// ExtractText handles description-like fields that arrive either as a
// string or as {"type": ..., "value": "..."}.
func ExtractText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		if val, ok := t["value"].(string); ok {
			return val
		}
	}
	return ""
}

// ExtractStringSlice converts []any to []string, accepting both plain
// strings and {"name": "..."} objects.
func ExtractStringSlice(items []any) []string {
	if len(items) == 0 {
		return nil
	}
	result := make([]string, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			result = append(result, v)
		case map[string]any:
			if name, ok := v["name"].(string); ok {
				result = append(result, name)
			}
		}
	}
	return result
}

// String returns a pointer to s when non-empty, else nil. Keeps the
// Metadata building sites readable.
func String(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Int returns a pointer to n when positive, else nil.
func Int(n int) *int {
	if n <= 0 {
		return nil
	}
	return &n
}
