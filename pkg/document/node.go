// SPDX-License-Identifier: MIT

// Package document implements the format-neutral tree every configuration file,
// persisted value and query row passes through.
//
// A Node is an immutable value: helpers that change a tree return a modified copy
// and never touch the receiver. Mappings keep the order in which keys were first
// defined and never hold the same key twice.
package document

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Kind identifies the variant held by a Node.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindSequence
	KindMapping
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Node is one value of a document tree. The zero value is Null.
type Node struct {
	kind  Kind
	b     bool
	i     int64
	f     float64
	s     string
	keys  []string // mapping keys, parallel to items
	items []Node
}

// Pair is a single mapping entry.
type Pair struct {
	Key   string
	Value Node
}

// Null returns the null node.
func Null() Node { return Node{} }

// Bool returns a boolean node.
func Bool(v bool) Node { return Node{kind: KindBool, b: v} }

// Int returns an integer node.
func Int(v int64) Node { return Node{kind: KindInt, i: v} }

// Float returns a floating point node.
func Float(v float64) Node { return Node{kind: KindFloat, f: v} }

// String returns a string node.
func String(v string) Node { return Node{kind: KindString, s: v} }

// Sequence returns a sequence holding copies of items.
func Sequence(items ...Node) Node {
	return Node{kind: KindSequence, items: append([]Node(nil), items...)}
}

// Mapping returns a mapping built from pairs in order. A repeated key keeps the
// position of its first occurrence and the value of its last.
func Mapping(pairs ...Pair) Node {
	n := Node{kind: KindMapping}
	for _, p := range pairs {
		if idx := n.indexOf(p.Key); idx >= 0 {
			n.items[idx] = p.Value
			continue
		}
		n.keys = append(n.keys, p.Key)
		n.items = append(n.items, p.Value)
	}
	return n
}

// Kind reports the variant of n.
func (n Node) Kind() Kind { return n.kind }

// IsNull reports whether n is the null node.
func (n Node) IsNull() bool { return n.kind == KindNull }

// IsScalar reports whether n is neither a sequence nor a mapping.
func (n Node) IsScalar() bool { return n.kind != KindSequence && n.kind != KindMapping }

// AsBool returns the boolean held by n.
func (n Node) AsBool() (bool, bool) { return n.b, n.kind == KindBool }

// AsInt returns the integer held by n.
func (n Node) AsInt() (int64, bool) { return n.i, n.kind == KindInt }

// AsFloat returns the float held by n. Integer nodes are widened.
func (n Node) AsFloat() (float64, bool) {
	switch n.kind {
	case KindFloat:
		return n.f, true
	case KindInt:
		return float64(n.i), true
	default:
		return 0, false
	}
}

// AsString returns the string held by n.
func (n Node) AsString() (string, bool) { return n.s, n.kind == KindString }

// Len returns the number of items of a sequence or entries of a mapping.
func (n Node) Len() int {
	if n.kind == KindSequence || n.kind == KindMapping {
		return len(n.items)
	}
	return 0
}

// Index returns the i-th item of a sequence.
func (n Node) Index(i int) (Node, bool) {
	if n.kind != KindSequence || i < 0 || i >= len(n.items) {
		return Node{}, false
	}
	return n.items[i], true
}

// Items returns a copy of the items of a sequence.
func (n Node) Items() []Node {
	if n.kind != KindSequence {
		return nil
	}
	return append([]Node(nil), n.items...)
}

// Keys returns the keys of a mapping in definition order.
func (n Node) Keys() []string {
	if n.kind != KindMapping {
		return nil
	}
	return append([]string(nil), n.keys...)
}

// Pairs returns the entries of a mapping in definition order.
func (n Node) Pairs() []Pair {
	if n.kind != KindMapping {
		return nil
	}
	out := make([]Pair, len(n.keys))
	for i, k := range n.keys {
		out[i] = Pair{Key: k, Value: n.items[i]}
	}
	return out
}

// Get returns the value stored under key in a mapping.
func (n Node) Get(key string) (Node, bool) {
	if n.kind != KindMapping {
		return Node{}, false
	}
	idx := n.indexOf(key)
	if idx < 0 {
		return Node{}, false
	}
	return n.items[idx], true
}

// Set returns a copy of the mapping with key bound to value. Non-mapping
// receivers are treated as an empty mapping.
func (n Node) Set(key string, value Node) Node {
	out := Node{kind: KindMapping}
	if n.kind == KindMapping {
		out.keys = append([]string(nil), n.keys...)
		out.items = append([]Node(nil), n.items...)
	}
	if idx := out.indexOf(key); idx >= 0 {
		out.items[idx] = value
		return out
	}
	out.keys = append(out.keys, key)
	out.items = append(out.items, value)
	return out
}

// Delete returns a copy of the mapping without key.
func (n Node) Delete(key string) Node {
	if n.kind != KindMapping {
		return n
	}
	idx := n.indexOf(key)
	if idx < 0 {
		return n
	}
	out := Node{kind: KindMapping}
	out.keys = append(append([]string(nil), n.keys[:idx]...), n.keys[idx+1:]...)
	out.items = append(append([]Node(nil), n.items[:idx]...), n.items[idx+1:]...)
	return out
}

// Depth returns the nesting depth of n; scalars have depth 1.
func (n Node) Depth() int {
	d := 0
	for _, it := range n.items {
		if c := it.Depth(); c > d {
			d = c
		}
	}
	return d + 1
}

func (n Node) indexOf(key string) int {
	for i, k := range n.keys {
		if k == key {
			return i
		}
	}
	return -1
}

// String renders n in a compact single-line form for logs and error messages.
func (n Node) String() string {
	var sb strings.Builder
	n.render(&sb)
	return sb.String()
}

func (n Node) render(sb *strings.Builder) {
	switch n.kind {
	case KindNull:
		sb.WriteString("null")
	case KindBool:
		sb.WriteString(strconv.FormatBool(n.b))
	case KindInt:
		sb.WriteString(strconv.FormatInt(n.i, 10))
	case KindFloat:
		sb.WriteString(formatFloat(n.f))
	case KindString:
		sb.WriteString(strconv.Quote(n.s))
	case KindSequence:
		sb.WriteByte('[')
		for i, it := range n.items {
			if i > 0 {
				sb.WriteString(", ")
			}
			it.render(sb)
		}
		sb.WriteByte(']')
	case KindMapping:
		sb.WriteByte('{')
		for i, k := range n.keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(k)
			sb.WriteString(": ")
			n.items[i].render(sb)
		}
		sb.WriteByte('}')
	}
}

// formatFloat renders f so that it re-parses as a float in both formats.
func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return ".nan"
	case math.IsInf(f, 1):
		return ".inf"
	case math.IsInf(f, -1):
		return "-.inf"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// Equal reports whether a and b hold the same tree. Mapping key order is ignored.
func Equal(a, b Node) bool { return equal(a, b, false) }

// EqualOrdered reports whether a and b hold the same tree including mapping key order.
func EqualOrdered(a, b Node) bool { return equal(a, b, true) }

func equal(a, b Node, ordered bool) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindInt:
		return a.i == b.i
	case KindFloat:
		return a.f == b.f || (math.IsNaN(a.f) && math.IsNaN(b.f))
	case KindString:
		return a.s == b.s
	case KindSequence:
		if len(a.items) != len(b.items) {
			return false
		}
		for i := range a.items {
			if !equal(a.items[i], b.items[i], ordered) {
				return false
			}
		}
		return true
	case KindMapping:
		if len(a.keys) != len(b.keys) {
			return false
		}
		for i, k := range a.keys {
			if ordered {
				if b.keys[i] != k || !equal(a.items[i], b.items[i], ordered) {
					return false
				}
				continue
			}
			other, ok := b.Get(k)
			if !ok || !equal(a.items[i], other, ordered) {
				return false
			}
		}
		return true
	}
	return false
}

// SortedKeys returns the keys of a mapping in lexical order.
func (n Node) SortedKeys() []string {
	keys := n.Keys()
	sort.Strings(keys)
	return keys
}

// GoString implements fmt.GoStringer so %#v output stays readable in test failures.
func (n Node) GoString() string {
	return fmt.Sprintf("document.Node(%s)", n.String())
}
