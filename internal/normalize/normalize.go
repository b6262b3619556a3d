// Package normalize canonicalizes free-text place names into cache keys.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Key returns the canonical form of name: trimmed, lower-cased, stripped of
// diacritics, with internal whitespace collapsed to single spaces.
//
// Two spellings of the same place ("São Félix", "sao  felix") map to the same
// key. The mapping is a heuristic and is not guaranteed to be injective.
func Key(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	stripped, _, err := transform.String(t, s)
	if err != nil {
		// Only reachable on malformed transformer chains; fall back to the
		// lower-cased input so the function stays total.
		stripped = s
	}
	return strings.Join(strings.Fields(stripped), " ")
}
