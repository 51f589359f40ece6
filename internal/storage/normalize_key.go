package storage

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeKey converts a natural-key value to a canonical string form,
// suitable for in-memory dedupe of upsert candidates (e.g. "Carrefour").
//
// Names arrive from a public catalog API and mix Unicode composition
// forms ("é" as one rune vs "e" + combining accent); NFC normalization
// keeps those from producing duplicate dimension rows.
//
// Backends must not assume a particular underlying type for keys; this
// helper keeps dedupe sets consistent across backends.
func NormalizeKey(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return norm.NFC.String(strings.TrimSpace(t))
	case []byte:
		return norm.NFC.String(strings.TrimSpace(string(t)))
	case int64:
		return fmt.Sprintf("%d", t)
	case int:
		return fmt.Sprintf("%d", t)
	default:
		return norm.NFC.String(strings.TrimSpace(fmt.Sprint(v)))
	}
}
