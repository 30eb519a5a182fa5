package rules

import (
	"strings"
	"unicode"
)

// Tokenize splits a query into its first whitespace-delimited word and the
// text following the whitespace after it. Leading whitespace is skipped and
// the remainder is not trimmed further.
func Tokenize(query string) (word, remainder string) {
	rest := strings.TrimLeftFunc(query, unicode.IsSpace)

	end := strings.IndexFunc(rest, unicode.IsSpace)
	if end < 0 {
		return rest, ""
	}

	return rest[:end], strings.TrimLeftFunc(rest[end:], unicode.IsSpace)
}
