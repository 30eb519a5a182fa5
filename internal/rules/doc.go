// Package rules implements the query resolution engine.
//
// A configuration is a YAML mapping from keyword prefixes to URL templates.
// Parse folds it into an immutable RuleSet; Tokenize splits a query into its
// leading word and the remainder; RuleSet.Resolve picks the first rule whose
// prefix equals the word, falling back to the default rule; Substitute fills
// the winning template.
//
// # Configuration Format
//
//	default: https://www.google.com/search?q=%q
//	g: https://www.google.com/search?q=%q
//	help: { q: "https://qk.run/%hash", alias: ["edit", "list"] }
//
// # Placeholders
//
//   - %q: the percent-encoded remainder, or the whole query when the default rule fired
//   - %hash: the identifier the configuration is stored under
//   - %0, %1: reserved positional parameters, always replaced with ""
//
// # Example Usage
//
//	rs, err := rules.Parse(text)
//	if err != nil {
//	    return err
//	}
//	res := rules.Resolve(rs, "g hello world", id)
//	// res.URL == "https://www.google.com/search?q=hello%20world"
//
// # Thread Safety
//
// Everything in this package is pure; RuleSet values are never mutated after
// Parse returns and may be shared freely.
package rules
