// SPDX-License-Identifier: MIT

package document

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Segment is one step of a Path: a mapping key or a sequence index.
type Segment struct {
	Key     string
	Index   int
	IsIndex bool
}

// Key returns a mapping-key segment.
func Key(k string) Segment { return Segment{Key: k} }

// Index returns a sequence-index segment.
func Index(i int) Segment { return Segment{Index: i, IsIndex: true} }

// Path addresses a node inside a tree. The empty path addresses the root.
type Path []Segment

// ParsePath parses expressions like "a.b[2].c". A leading "$" is accepted,
// and keys containing dots or brackets can be written as ["a.b"].
func ParsePath(expr string) (Path, error) {
	s := strings.TrimSpace(expr)
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimPrefix(s, ".")
	var p Path
	for i := 0; i < len(s); {
		switch s[i] {
		case '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated bracket in %q", ErrInvalidPath, expr)
			}
			inner := s[i+1 : i+end]
			if strings.HasPrefix(inner, `"`) {
				// quoted keys may themselves contain ']'
				k, rest, err := unquotePrefix(s[i+1:])
				if err != nil || !strings.HasPrefix(rest, "]") {
					return nil, fmt.Errorf("%w: bad quoted key in %q", ErrInvalidPath, expr)
				}
				p = append(p, Key(k))
				i = len(s) - len(rest) + 1
			} else {
				idx, err := strconv.Atoi(inner)
				if err != nil || idx < 0 {
					return nil, fmt.Errorf("%w: bad index %q in %q", ErrInvalidPath, inner, expr)
				}
				p = append(p, Index(idx))
				i += end + 1
			}
			if i < len(s) && s[i] == '.' {
				i++
				if i == len(s) {
					return nil, fmt.Errorf("%w: trailing dot in %q", ErrInvalidPath, expr)
				}
			}
		case '.':
			return nil, fmt.Errorf("%w: empty key in %q", ErrInvalidPath, expr)
		default:
			end := strings.IndexAny(s[i:], ".[")
			if end < 0 {
				end = len(s) - i
			}
			p = append(p, Key(s[i:i+end]))
			i += end
			if i < len(s) && s[i] == '.' {
				i++
				if i == len(s) {
					return nil, fmt.Errorf("%w: trailing dot in %q", ErrInvalidPath, expr)
				}
			}
		}
	}
	return p, nil
}

// MustParsePath is ParsePath for constant expressions.
func MustParsePath(expr string) Path {
	p, err := ParsePath(expr)
	if err != nil {
		panic(err)
	}
	return p
}

func unquotePrefix(s string) (string, string, error) {
	prefix, err := strconv.QuotedPrefix(s)
	if err != nil {
		return "", "", err
	}
	k, err := strconv.Unquote(prefix)
	if err != nil {
		return "", "", err
	}
	return k, s[len(prefix):], nil
}

// Child returns a copy of p extended with a key segment.
func (p Path) Child(key string) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, Key(key))
}

// At returns a copy of p extended with an index segment.
func (p Path) At(i int) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, Index(i))
}

// String renders p in the syntax accepted by ParsePath, without the "$" root.
func (p Path) String() string {
	var sb strings.Builder
	for i, seg := range p {
		switch {
		case seg.IsIndex:
			sb.WriteString("[" + strconv.Itoa(seg.Index) + "]")
		case strings.ContainsAny(seg.Key, ".[]\"") || seg.Key == "":
			sb.WriteString("[" + strconv.Quote(seg.Key) + "]")
		default:
			if i > 0 {
				sb.WriteByte('.')
			}
			sb.WriteString(seg.Key)
		}
	}
	return sb.String()
}

// Display renders p rooted at "$", e.g. "$.players[2].name".
func (p Path) Display() string {
	if len(p) == 0 {
		return "$"
	}
	s := p.String()
	if strings.HasPrefix(s, "[") {
		return "$" + s
	}
	return "$." + s
}

// Lookup returns the node addressed by p.
func (n Node) Lookup(p Path) (Node, bool) {
	cur := n
	for _, seg := range p {
		var ok bool
		if seg.IsIndex {
			cur, ok = cur.Index(seg.Index)
		} else {
			cur, ok = cur.Get(seg.Key)
		}
		if !ok {
			return Node{}, false
		}
	}
	return cur, true
}

// With returns a copy of n with the node at p replaced by value. Missing
// mapping levels are created; a scalar on the way yields ErrPathConflict.
func (n Node) With(p Path, value Node) (Node, error) {
	if len(p) == 0 {
		return value, nil
	}
	seg := p[0]
	if seg.IsIndex {
		if n.kind != KindSequence {
			return Node{}, fmt.Errorf("%w: %s is %s", ErrPathConflict, p.Display(), n.kind)
		}
		if seg.Index < 0 || seg.Index > len(n.items) {
			return Node{}, fmt.Errorf("%w: %d", ErrIndexOutOfRange, seg.Index)
		}
		var child Node
		if seg.Index < len(n.items) {
			child = n.items[seg.Index]
		}
		updated, err := child.With(p[1:], value)
		if err != nil {
			return Node{}, err
		}
		out := Node{kind: KindSequence, items: append([]Node(nil), n.items...)}
		if seg.Index == len(out.items) {
			out.items = append(out.items, updated)
		} else {
			out.items[seg.Index] = updated
		}
		return out, nil
	}
	if n.kind != KindMapping && n.kind != KindNull {
		return Node{}, fmt.Errorf("%w: %q is %s", ErrPathConflict, seg.Key, n.kind)
	}
	child, _ := n.Get(seg.Key)
	updated, err := child.With(p[1:], value)
	if err != nil {
		return Node{}, err
	}
	return n.Set(seg.Key, updated), nil
}

// Without returns a copy of n with the node at p removed. Missing paths leave n unchanged.
func (n Node) Without(p Path) Node {
	if len(p) == 0 {
		return Node{}
	}
	seg := p[0]
	if seg.IsIndex {
		if n.kind != KindSequence || seg.Index < 0 || seg.Index >= len(n.items) {
			return n
		}
		out := Node{kind: KindSequence, items: append([]Node(nil), n.items...)}
		if len(p) == 1 {
			out.items = append(out.items[:seg.Index], out.items[seg.Index+1:]...)
		} else {
			out.items[seg.Index] = out.items[seg.Index].Without(p[1:])
		}
		return out
	}
	child, ok := n.Get(seg.Key)
	if !ok {
		return n
	}
	if len(p) == 1 {
		return n.Delete(seg.Key)
	}
	return n.Set(seg.Key, child.Without(p[1:]))
}

// SkipChildren may be returned by a WalkFunc to avoid descending into a node.
var SkipChildren = errors.New("document: skip children")

// WalkFunc is called for every node visited by Walk.
type WalkFunc func(p Path, n Node) error

// Walk visits n and its descendants depth first, parents before children.
func (n Node) Walk(fn WalkFunc) error {
	return walk(nil, n, fn)
}

func walk(p Path, n Node, fn WalkFunc) error {
	if err := fn(p, n); err != nil {
		if errors.Is(err, SkipChildren) {
			return nil
		}
		return err
	}
	switch n.kind {
	case KindSequence:
		for i, it := range n.items {
			if err := walk(p.At(i), it, fn); err != nil {
				return err
			}
		}
	case KindMapping:
		for i, k := range n.keys {
			if err := walk(p.Child(k), n.items[i], fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// Leaves returns the paths of every scalar and empty collection under n in walk order.
func (n Node) Leaves() []Path {
	var out []Path
	_ = n.Walk(func(p Path, c Node) error {
		if c.IsScalar() || c.Len() == 0 {
			out = append(out, p)
		}
		return nil
	})
	return out
}
