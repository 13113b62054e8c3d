package domain

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeName canonicalizes a municipality name for exact-match joins:
// diacritics are stripped, the result is upper-cased, and whitespace is
// trimmed with inner runs collapsed to a single space.
// " São   Paulo " and "SAO PAULO" both yield "SAO PAULO".
func NormalizeName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, name)
	if err != nil {
		stripped = name
	}
	return strings.Join(strings.Fields(strings.ToUpper(stripped)), " ")
}
