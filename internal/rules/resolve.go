package rules

// Resolution outcomes, used as metric labels.
const (
	OutcomeMatched  = "matched"
	OutcomeFallback = "fallback"
)

// Resolution is the result of running a query through a RuleSet.
type Resolution struct {
	URL     string
	Rule    Rule
	Word    string
	Matched bool
}

// Outcome returns OutcomeMatched or OutcomeFallback.
func (r Resolution) Outcome() string {
	if r.Matched {
		return OutcomeMatched
	}
	return OutcomeFallback
}

// Resolve tokenizes query, selects a rule from rs and builds the destination
// URL. configID is the identifier rs was loaded from and fills %hash.
func Resolve(rs *RuleSet, query, configID string) Resolution {
	word, remainder := Tokenize(query)
	rule, matched := rs.Resolve(word)

	return Resolution{
		URL:     Substitute(rule, matched, remainder, query, configID),
		Rule:    rule,
		Word:    word,
		Matched: matched,
	}
}
