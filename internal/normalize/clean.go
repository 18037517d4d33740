// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package normalize

import (
	"strings"
	"unicode"
)

// Clean lowercases s, strips punctuation and symbols, and collapses runs of
// whitespace to single spaces. The result is the store's variant index key:
// two surface forms that clean to the same string are treated as the same
// raw name. Per prd001-entity-store R2.1.
func Clean(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		default:
			// Punctuation and symbols are dropped entirely, matching
			// the scraper-side cleaning the registry was built with.
		}
	}

	return strings.TrimRight(b.String(), " ")
}
