// SPDX-License-Identifier: MIT

package document

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

var yamlLineRe = regexp.MustCompile(`line (\d+)`)

func parseYAML(raw []byte, l limits) (Node, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return Null(), nil
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Node{}, yamlParseError(err)
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return Null(), nil
	}
	c := yamlConverter{limits: l}
	return c.convert(doc.Content[0], 1)
}

func yamlParseError(err error) *ParseError {
	pe := &ParseError{Format: YAML, Msg: err.Error(), Err: err}
	if m := yamlLineRe.FindStringSubmatch(err.Error()); m != nil {
		pe.Line, _ = strconv.Atoi(m[1])
	}
	return pe
}

type yamlConverter struct {
	limits limits
	nodes  int
}

func (c *yamlConverter) errorAt(y *yaml.Node, msg string, err error) error {
	return &ParseError{Format: YAML, Line: y.Line, Column: y.Column, Msg: msg, Err: err}
}

func (c *yamlConverter) convert(y *yaml.Node, depth int) (Node, error) {
	if depth > c.limits.maxDepth {
		return Node{}, c.errorAt(y, "nesting too deep", ErrDepthExceeded)
	}
	c.nodes++
	if c.nodes > c.limits.maxNodes {
		return Node{}, c.errorAt(y, "document too large", ErrTooLarge)
	}

	switch y.Kind {
	case yaml.DocumentNode:
		if len(y.Content) == 0 {
			return Null(), nil
		}
		return c.convert(y.Content[0], depth)
	case yaml.AliasNode:
		if y.Alias == nil {
			return Null(), nil
		}
		return c.convert(y.Alias, depth)
	case yaml.ScalarNode:
		return c.scalar(y)
	case yaml.SequenceNode:
		items := make([]Node, 0, len(y.Content))
		for _, child := range y.Content {
			n, err := c.convert(child, depth+1)
			if err != nil {
				return Node{}, err
			}
			items = append(items, n)
		}
		return Node{kind: KindSequence, items: items}, nil
	case yaml.MappingNode:
		return c.mapping(y, depth)
	default:
		return Node{}, c.errorAt(y, fmt.Sprintf("unsupported node kind %d", y.Kind), nil)
	}
}

func (c *yamlConverter) mapping(y *yaml.Node, depth int) (Node, error) {
	out := Node{kind: KindMapping}
	var merges []*yaml.Node
	for i := 0; i+1 < len(y.Content); i += 2 {
		k, v := y.Content[i], y.Content[i+1]
		if k.Kind == yaml.ScalarNode && k.ShortTag() == "!!merge" {
			merges = append(merges, v)
			continue
		}
		if k.Kind != yaml.ScalarNode {
			return Node{}, c.errorAt(k, "mapping keys must be scalars", nil)
		}
		if out.indexOf(k.Value) >= 0 {
			return Node{}, c.errorAt(k, fmt.Sprintf("duplicate key %q", k.Value), nil)
		}
		n, err := c.convert(v, depth+1)
		if err != nil {
			return Node{}, err
		}
		out.keys = append(out.keys, k.Value)
		out.items = append(out.items, n)
	}
	// "<<" entries contribute keys the mapping does not define itself.
	for _, m := range merges {
		sources := []*yaml.Node{m}
		if m.Kind == yaml.SequenceNode {
			sources = m.Content
		}
		for _, src := range sources {
			n, err := c.convert(src, depth)
			if err != nil {
				return Node{}, err
			}
			if n.kind != KindMapping {
				return Node{}, c.errorAt(src, "merge value must be a mapping", nil)
			}
			for i, k := range n.keys {
				if out.indexOf(k) < 0 {
					out.keys = append(out.keys, k)
					out.items = append(out.items, n.items[i])
				}
			}
		}
	}
	return out, nil
}

func (c *yamlConverter) scalar(y *yaml.Node) (Node, error) {
	switch y.ShortTag() {
	case "!!null":
		return Null(), nil
	case "!!bool":
		var b bool
		if err := y.Decode(&b); err != nil {
			return Node{}, c.errorAt(y, "invalid bool", err)
		}
		return Bool(b), nil
	case "!!int":
		var i int64
		if err := y.Decode(&i); err == nil {
			return Int(i), nil
		}
		var f float64
		if err := y.Decode(&f); err != nil {
			return Node{}, c.errorAt(y, "invalid integer", err)
		}
		return Float(f), nil
	case "!!float":
		var f float64
		if err := y.Decode(&f); err != nil {
			return Node{}, c.errorAt(y, "invalid float", err)
		}
		return Float(f), nil
	case "!!binary":
		b, err := base64.StdEncoding.DecodeString(y.Value)
		if err != nil {
			return Node{}, c.errorAt(y, "invalid binary", err)
		}
		if !utf8.Valid(b) {
			return Node{}, c.errorAt(y, "binary value is not UTF-8 text", ErrInvalidUTF8)
		}
		return String(string(b)), nil
	default:
		return String(y.Value), nil
	}
}

func serializeYAML(n Node) ([]byte, error) {
	root, err := toYAML(n, nil)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(4)
	if err := enc.Encode(root); err != nil {
		return nil, &SerializeError{Format: YAML, Msg: err.Error()}
	}
	if err := enc.Close(); err != nil {
		return nil, &SerializeError{Format: YAML, Msg: err.Error()}
	}
	return buf.Bytes(), nil
}

func toYAML(n Node, p Path) (*yaml.Node, error) {
	switch n.kind {
	case KindNull:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}, nil
	case KindBool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(n.b)}, nil
	case KindInt:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.FormatInt(n.i, 10)}, nil
	case KindFloat:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: formatFloat(n.f)}, nil
	case KindString:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: n.s}, nil
	case KindSequence:
		out := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		if len(n.items) == 0 {
			out.Style = yaml.FlowStyle
		}
		for i, it := range n.items {
			child, err := toYAML(it, p.At(i))
			if err != nil {
				return nil, err
			}
			out.Content = append(out.Content, child)
		}
		return out, nil
	case KindMapping:
		out := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		if len(n.keys) == 0 {
			out.Style = yaml.FlowStyle
		}
		for i, k := range n.keys {
			child, err := toYAML(n.items[i], p.Child(k))
			if err != nil {
				return nil, err
			}
			out.Content = append(out.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
				child,
			)
		}
		return out, nil
	}
	return nil, &SerializeError{Format: YAML, Path: p, Msg: fmt.Sprintf("unknown kind %s", n.kind)}
}

// isFinite reports whether f can be written to formats without NaN/Inf literals.
func isFinite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

var errNonFinite = errors.New("non-finite float")
