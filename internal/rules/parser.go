package rules

import (
	_ "embed"
	"fmt"
)

// DefaultConfig is the configuration shown to new users and the source of
// the fallback rule for configurations that declare no default.
//
//go:embed default.yaml
var DefaultConfig string

var embedded = mustParseEmbedded()

func mustParseEmbedded() *RuleSet {
	rs, err := parse(DefaultConfig, Rule{Prefix: DefaultPrefix})
	if err != nil {
		panic(fmt.Sprintf("rules: embedded default configuration: %v", err))
	}
	if rs.def.URLTemplate == "" {
		panic("rules: embedded default configuration declares no default entry")
	}
	return rs
}

// Embedded returns the RuleSet of DefaultConfig.
func Embedded() *RuleSet {
	return embedded
}

// Parse turns configuration text into a RuleSet. Any malformed entry fails
// the whole parse with a *ConfigError.
func Parse(raw string) (*RuleSet, error) {
	return parse(raw, embedded.def)
}

func parse(raw string, fallback Rule) (*RuleSet, error) {
	root, err := decode(raw)
	if err != nil {
		return nil, err
	}
	if root.kind != kindMapping {
		return nil, newConfigError("", "top level must be a mapping of prefixes to URL templates, got "+root.typeName())
	}

	declared := make([]Rule, 0, len(root.entries))
	for i, e := range root.entries {
		expanded, err := expand(i, e)
		if err != nil {
			return nil, err
		}
		declared = append(declared, expanded...)
	}

	return newRuleSet(declared, fallback), nil
}

// expand converts one top-level entry into its primary rule followed by one
// rule per alias.
func expand(index int, e entry) ([]Rule, error) {
	if e.key.kind != kindScalar {
		return nil, newConfigError("", fmt.Sprintf("entry %d: key must be a string, got %s", index+1, e.key.typeName()))
	}
	key := e.key.text

	switch e.value.kind {
	case kindScalar:
		return []Rule{{Prefix: key, URLTemplate: e.value.text}}, nil
	case kindMapping:
		return expandNested(key, e.value)
	case kindNull:
		return nil, newConfigError(key, "missing URL template")
	default:
		return nil, newConfigError(key, "value must be a URL template or a mapping with a q field, got "+e.value.typeName())
	}
}

func expandNested(key string, value node) ([]Rule, error) {
	q, ok := value.lookup("q")
	if !ok || q.kind == kindNull {
		return nil, newConfigError(key, "missing required field q")
	}
	if q.kind != kindScalar {
		return nil, newConfigError(key, "field q must be a string, got "+q.typeName())
	}

	aliases, err := aliasNames(key, value)
	if err != nil {
		return nil, err
	}

	out := make([]Rule, 0, 1+len(aliases))
	out = append(out, Rule{Prefix: key, URLTemplate: q.text})
	for _, a := range aliases {
		out = append(out, Rule{Prefix: a, URLTemplate: q.text})
	}
	return out, nil
}

func aliasNames(key string, value node) ([]string, error) {
	alias, ok := value.lookup("alias")
	if !ok {
		return nil, nil
	}

	switch alias.kind {
	case kindNull:
		return nil, nil
	case kindScalar:
		return []string{alias.text}, nil
	case kindSequence:
		names := make([]string, 0, len(alias.items))
		for i, item := range alias.items {
			if item.kind != kindScalar {
				return nil, newConfigError(key, fmt.Sprintf("alias %d must be a string, got %s", i+1, item.typeName()))
			}
			names = append(names, item.text)
		}
		return names, nil
	default:
		return nil, newConfigError(key, "field alias must be a string or a list of strings, got "+alias.typeName())
	}
}
