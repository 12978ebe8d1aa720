package fingerprint

import (
	"crypto/sha256"
	"encoding/json"
	"sort"

	"github.com/btcsuite/btcutil/base58"
)

// Claim produces a deterministic SHA-256 fingerprint of a claim payload
// (value plus context). The claim service uses it to detect no-op upserts:
// writing the same payload twice leaves the stored row untouched.
func Claim(value string, context map[string]any) string {
	payload := map[string]any{
		"value":   value,
		"context": context,
	}
	canonical := canonicalJSON(payload)
	if canonical == nil {
		return ""
	}

	hash := sha256.Sum256(canonical)
	return base58.Encode(hash[:])
}

// canonicalJSON produces a deterministic JSON encoding: object keys sorted,
// no insignificant whitespace. Handles the JSON value universe plus nested
// maps and slices as produced by encoding/json.
func canonicalJSON(v any) []byte {
	switch val := v.(type) {
	case nil:
		return []byte("null")

	case bool:
		if val {
			return []byte("true")
		}
		return []byte("false")

	case float64, int, int64, string:
		b, _ := json.Marshal(val)
		return b

	case []any:
		var elements [][]byte
		for _, elem := range val {
			elements = append(elements, canonicalJSON(elem))
		}
		return join(elements, '[', ']')

	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var pairs [][]byte
		for _, k := range keys {
			keyJSON, _ := json.Marshal(k)
			pair := append(keyJSON, ':')
			pair = append(pair, canonicalJSON(val[k])...)
			pairs = append(pairs, pair)
		}
		return join(pairs, '{', '}')

	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		return b
	}
}

func join(parts [][]byte, open, close byte) []byte {
	result := []byte{open}
	for i, part := range parts {
		result = append(result, part...)
		if i < len(parts)-1 {
			result = append(result, ',')
		}
	}
	return append(result, close)
}

// Equal compares two fingerprints. Empty fingerprints never match anything.
func Equal(a, b string) bool {
	return a != "" && b != "" && a == b
}
