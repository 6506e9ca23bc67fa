package search

import (
	"strings"
	"unicode"
)

// IndexNameFor converts a record type name into its index name using the
// snake-case convention, e.g. "ActivityReport" becomes "activity_report".
// Digit runs form their own segments: "Foo12Bar" becomes "foo_12_bar".
func IndexNameFor(recordType string) string {
	runes := []rune(recordType)
	var b strings.Builder
	b.Grow(len(recordType) + 4)

	for i, r := range runes {
		if i > 0 && isBoundary(runes, i) {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// isBoundary reports whether a segment separator belongs before runes[i].
func isBoundary(runes []rune, i int) bool {
	prev, cur := runes[i-1], runes[i]

	switch {
	case unicode.IsUpper(cur) && (unicode.IsLower(prev) || unicode.IsDigit(prev)):
		return true
	case unicode.IsDigit(cur) && unicode.IsLetter(prev):
		return true
	case unicode.IsLetter(cur) && unicode.IsDigit(prev):
		return true
	case unicode.IsUpper(prev) && unicode.IsUpper(cur):
		// Acronym followed by a new word, e.g. "HTMLParser".
		return i+1 < len(runes) && unicode.IsLower(runes[i+1])
	}
	return false
}
