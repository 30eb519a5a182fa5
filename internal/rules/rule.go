package rules

// DefaultPrefix is the reserved prefix naming the fallback rule.
const DefaultPrefix = "default"

// Rule binds one keyword prefix to a URL template.
type Rule struct {
	Prefix      string `json:"prefix"`
	URLTemplate string `json:"urlTemplate"`
}

// RuleSet is the table derived from one configuration text.
// The zero value is not usable; construct it with Parse.
type RuleSet struct {
	def   Rule
	rules []Rule
}

// newRuleSet builds a RuleSet from rules in declaration order. The last rule
// whose prefix is DefaultPrefix becomes the default; fallback is used when
// there is none.
func newRuleSet(declared []Rule, fallback Rule) *RuleSet {
	def := fallback
	for _, r := range declared {
		if r.Prefix == DefaultPrefix {
			def = r
		}
	}
	def.Prefix = DefaultPrefix

	return &RuleSet{def: def, rules: declared}
}

// Default returns the fallback rule.
func (rs *RuleSet) Default() Rule {
	return rs.def
}

// Rules returns a copy of the declared rules in declaration order.
func (rs *RuleSet) Rules() []Rule {
	out := make([]Rule, len(rs.rules))
	copy(out, rs.rules)
	return out
}

// Len returns the number of declared rules, aliases included.
func (rs *RuleSet) Len() int {
	return len(rs.rules)
}

// Resolve returns the first rule whose prefix equals word. When nothing
// matches it returns the default rule and false.
func (rs *RuleSet) Resolve(word string) (Rule, bool) {
	for _, r := range rs.rules {
		if r.Prefix == word {
			return r, true
		}
	}
	return rs.def, false
}
