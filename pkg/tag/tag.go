// SPDX-License-Identifier: MIT

// Package tag implements the flat binary representation used for values stored in
// host-managed persistence containers. The layout follows the shape of NBT: a kind
// byte, a name and a big-endian payload, with compounds terminated by an End tag.
//
// Tags are always derived from document nodes, so every value that has a node
// form also has a tag form and FromNode/ToNode are inverses.
package tag

import (
	"fmt"

	"github.com/ManuGH/skylib/pkg/document"
)

// Kind is the type byte written in front of every payload.
type Kind byte

const (
	KindEnd      Kind = 0
	KindByte     Kind = 1
	KindLong     Kind = 4
	KindDouble   Kind = 6
	KindString   Kind = 8
	KindList     Kind = 9
	KindCompound Kind = 10
	KindNull     Kind = 13
)

func (k Kind) String() string {
	switch k {
	case KindEnd:
		return "end"
	case KindByte:
		return "byte"
	case KindLong:
		return "long"
	case KindDouble:
		return "double"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindCompound:
		return "compound"
	case KindNull:
		return "null"
	default:
		return fmt.Sprintf("kind(%d)", byte(k))
	}
}

func (k Kind) valid() bool {
	switch k {
	case KindEnd, KindByte, KindLong, KindDouble, KindString, KindList, KindCompound, KindNull:
		return true
	}
	return false
}

// Tag is one value of the binary representation.
type Tag struct {
	kind  Kind
	b     byte
	l     int64
	d     float64
	s     string
	elem  Kind     // element kind of a list
	names []string // compound entry names, parallel to items
	items []Tag
}

// Kind reports the kind of t.
func (t Tag) Kind() Kind { return t.kind }

// ElemKind reports the element kind of a list tag; End for an empty list.
func (t Tag) ElemKind() Kind { return t.elem }

// Len reports the number of list items or compound entries.
func (t Tag) Len() int { return len(t.items) }

// mixedName is the entry name used to wrap the items of heterogeneous lists.
const mixedName = ""

// FromNode converts a document node into its tag form.
func FromNode(n document.Node) (Tag, error) {
	return fromNode(n, 1)
}

func fromNode(n document.Node, depth int) (Tag, error) {
	if depth > document.DefaultMaxDepth {
		return Tag{}, document.ErrDepthExceeded
	}
	switch n.Kind() {
	case document.KindNull:
		return Tag{kind: KindNull}, nil
	case document.KindBool:
		v, _ := n.AsBool()
		var b byte
		if v {
			b = 1
		}
		return Tag{kind: KindByte, b: b}, nil
	case document.KindInt:
		v, _ := n.AsInt()
		return Tag{kind: KindLong, l: v}, nil
	case document.KindFloat:
		v, _ := n.AsFloat()
		return Tag{kind: KindDouble, d: v}, nil
	case document.KindString:
		v, _ := n.AsString()
		return Tag{kind: KindString, s: v}, nil
	case document.KindSequence:
		items := make([]Tag, 0, n.Len())
		for _, it := range n.Items() {
			t, err := fromNode(it, depth+1)
			if err != nil {
				return Tag{}, err
			}
			items = append(items, t)
		}
		return newList(items), nil
	case document.KindMapping:
		out := Tag{kind: KindCompound}
		for _, p := range n.Pairs() {
			t, err := fromNode(p.Value, depth+1)
			if err != nil {
				return Tag{}, err
			}
			out.names = append(out.names, p.Key)
			out.items = append(out.items, t)
		}
		return out, nil
	}
	return Tag{}, fmt.Errorf("tag: unsupported node kind %s", n.Kind())
}

// newList builds a list tag. Heterogeneous items are wrapped in single-entry
// compounds named "". Compound items that already look wrapped are wrapped again
// so that ToNode can unwrap unambiguously.
func newList(items []Tag) Tag {
	if len(items) == 0 {
		return Tag{kind: KindList, elem: KindEnd}
	}
	elem := items[0].kind
	homogeneous := true
	for _, it := range items[1:] {
		if it.kind != elem {
			homogeneous = false
			break
		}
	}
	if homogeneous && !(elem == KindCompound && allWrapped(items)) {
		return Tag{kind: KindList, elem: elem, items: items}
	}
	wrapped := make([]Tag, len(items))
	for i, it := range items {
		wrapped[i] = Tag{kind: KindCompound, names: []string{mixedName}, items: []Tag{it}}
	}
	return Tag{kind: KindList, elem: KindCompound, items: wrapped}
}

func allWrapped(items []Tag) bool {
	for _, it := range items {
		if it.kind != KindCompound || len(it.items) != 1 || it.names[0] != mixedName {
			return false
		}
	}
	return true
}

// ToNode converts a tag back into a document node.
func ToNode(t Tag) (document.Node, error) {
	switch t.kind {
	case KindNull, KindEnd:
		return document.Null(), nil
	case KindByte:
		return document.Bool(t.b != 0), nil
	case KindLong:
		return document.Int(t.l), nil
	case KindDouble:
		return document.Float(t.d), nil
	case KindString:
		return document.String(t.s), nil
	case KindList:
		items := t.items
		if t.elem == KindCompound && len(items) > 0 && allWrapped(items) {
			unwrapped := make([]Tag, len(items))
			for i, it := range items {
				unwrapped[i] = it.items[0]
			}
			items = unwrapped
		}
		nodes := make([]document.Node, 0, len(items))
		for _, it := range items {
			n, err := ToNode(it)
			if err != nil {
				return document.Node{}, err
			}
			nodes = append(nodes, n)
		}
		return document.Sequence(nodes...), nil
	case KindCompound:
		pairs := make([]document.Pair, 0, len(t.items))
		for i, it := range t.items {
			n, err := ToNode(it)
			if err != nil {
				return document.Node{}, err
			}
			pairs = append(pairs, document.Pair{Key: t.names[i], Value: n})
		}
		return document.Mapping(pairs...), nil
	}
	return document.Node{}, fmt.Errorf("tag: unsupported kind %s", t.kind)
}
