package rules

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// maxNodeDepth bounds conversion of self-referencing anchors.
const maxNodeDepth = 32

type nodeKind int

const (
	kindNull nodeKind = iota
	kindScalar
	kindTyped
	kindMapping
	kindSequence
)

func (k nodeKind) String() string {
	switch k {
	case kindNull:
		return "null"
	case kindScalar:
		return "string"
	case kindTyped:
		return "non-string scalar"
	case kindMapping:
		return "mapping"
	case kindSequence:
		return "sequence"
	default:
		return "unknown"
	}
}

// node is the configuration document reduced to the shapes the parser
// distinguishes.
type node struct {
	kind    nodeKind
	text    string
	tag     string
	entries []entry
	items   []node
}

type entry struct {
	key   node
	value node
}

// typeName names the node's shape for error messages: the resolved tag for
// typed scalars ("int", "bool"), the kind otherwise.
func (n node) typeName() string {
	if n.kind == kindTyped {
		return n.tag
	}
	return n.kind.String()
}

// lookup returns the value stored under a scalar key.
func (n node) lookup(key string) (node, bool) {
	for _, e := range n.entries {
		if e.key.kind == kindScalar && e.key.text == key {
			return e.value, true
		}
	}
	return node{}, false
}

// decode parses raw YAML into a node tree. Only the first document is used.
func decode(raw string) (node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(raw), &doc); err != nil {
		return node{}, &ConfigError{Reason: "invalid YAML: " + err.Error(), Cause: err}
	}
	return convert(&doc, 0)
}

func convert(n *yaml.Node, depth int) (node, error) {
	if depth > maxNodeDepth {
		return node{}, newConfigError("", fmt.Sprintf("nesting deeper than %d levels", maxNodeDepth))
	}

	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return node{kind: kindNull}, nil
		}
		return convert(n.Content[0], depth+1)

	case yaml.AliasNode:
		if n.Alias == nil {
			return node{kind: kindNull}, nil
		}
		return convert(n.Alias, depth+1)

	case yaml.ScalarNode:
		switch tag := n.ShortTag(); tag {
		case "!!null":
			return node{kind: kindNull}, nil
		case "!!str", "!!timestamp":
			// Plain dates stay text; only numbers and booleans are rejected.
			return node{kind: kindScalar, text: n.Value}, nil
		default:
			return node{kind: kindTyped, text: n.Value, tag: strings.TrimPrefix(tag, "!!")}, nil
		}

	case yaml.MappingNode:
		out := node{kind: kindMapping, entries: make([]entry, 0, len(n.Content)/2)}
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, err := convert(n.Content[i], depth+1)
			if err != nil {
				return node{}, err
			}
			v, err := convert(n.Content[i+1], depth+1)
			if err != nil {
				return node{}, err
			}
			out.entries = append(out.entries, entry{key: k, value: v})
		}
		return out, nil

	case yaml.SequenceNode:
		out := node{kind: kindSequence, items: make([]node, 0, len(n.Content))}
		for _, c := range n.Content {
			item, err := convert(c, depth+1)
			if err != nil {
				return node{}, err
			}
			out.items = append(out.items, item)
		}
		return out, nil

	default:
		return node{kind: kindNull}, nil
	}
}
