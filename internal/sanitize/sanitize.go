// Package sanitize neutralizes markup in externally supplied strings before
// they reach storage or rendering. Every string taken from a request body or
// URL must pass through here; identifiers are additionally validated as UUIDs
// at the boundary, and all queries are parameter-bound, so this is defense
// against stored markup, not the only injection barrier.
package sanitize

import "github.com/microcosm-cc/bluemonday"

var policy = bluemonday.StrictPolicy()

// String strips all HTML elements and escapes markup metacharacters.
func String(s string) string {
	return policy.Sanitize(s)
}

// Strings sanitizes a slice in place and returns it.
func Strings(values []string) []string {
	for i, v := range values {
		values[i] = String(v)
	}
	return values
}

// Map sanitizes the string values of a free-form context map. Nested maps and
// slices are walked; non-string leaves pass through unchanged.
func Map(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[String(k)] = value(v)
	}
	return out
}

func value(v any) any {
	switch val := v.(type) {
	case string:
		return String(val)
	case map[string]any:
		return Map(val)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = value(elem)
		}
		return out
	default:
		return v
	}
}
