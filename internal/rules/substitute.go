package rules

import (
	"net/url"
	"strings"
)

// Template placeholders.
const (
	PlaceholderQuery = "%q"
	PlaceholderHash  = "%hash"
	// PlaceholderArg0 and PlaceholderArg1 are reserved for positional
	// parameters and always expand to "".
	PlaceholderArg0 = "%0"
	PlaceholderArg1 = "%1"
)

// PercentEncode escapes s for use inside a URL. Everything outside the
// RFC 3986 unreserved set is escaped and spaces become %20.
func PercentEncode(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// Substitute fills rule's template. %q receives the encoded remainder when
// the rule matched explicitly and the encoded full query when it is the
// default fallback. Replacement is a single pass, so substituted text is
// never scanned for placeholders again.
func Substitute(rule Rule, matched bool, remainder, fullQuery, configID string) string {
	value := fullQuery
	if matched {
		value = remainder
	}

	r := strings.NewReplacer(
		PlaceholderQuery, PercentEncode(value),
		PlaceholderHash, configID,
		PlaceholderArg0, "",
		PlaceholderArg1, "",
	)
	return r.Replace(rule.URLTemplate)
}
