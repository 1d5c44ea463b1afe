// SPDX-License-Identifier: MIT

package codec

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ManuGH/skylib/pkg/document"
)

// List returns a codec for slices of elem. Null decodes to an empty slice.
func List[T any](elem Codec[T]) Codec[[]T] {
	return New(
		func(v []T) (document.Node, error) {
			items := make([]document.Node, 0, len(v))
			for _, it := range v {
				n, err := elem.Encode(it)
				if err != nil {
					return document.Node{}, err
				}
				items = append(items, n)
			}
			return document.Sequence(items...), nil
		},
		func(n document.Node) ([]T, error) {
			if n.IsNull() {
				return []T{}, nil
			}
			if n.Kind() != document.KindSequence {
				return nil, mismatch("sequence", n)
			}
			out := make([]T, 0, n.Len())
			for i, it := range n.Items() {
				v, err := elem.Decode(it)
				if err != nil {
					return nil, Prefix(err, document.Index(i))
				}
				out = append(out, v)
			}
			return out, nil
		},
	)
}

// Map returns a codec for string-keyed maps of elem. Keys are written in
// lexical order so output is stable.
func Map[V any](elem Codec[V]) Codec[map[string]V] {
	return New(
		func(v map[string]V) (document.Node, error) {
			keys := make([]string, 0, len(v))
			for k := range v {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			pairs := make([]document.Pair, 0, len(keys))
			for _, k := range keys {
				n, err := elem.Encode(v[k])
				if err != nil {
					return document.Node{}, err
				}
				pairs = append(pairs, document.Pair{Key: k, Value: n})
			}
			return document.Mapping(pairs...), nil
		},
		func(n document.Node) (map[string]V, error) {
			if n.IsNull() {
				return map[string]V{}, nil
			}
			if n.Kind() != document.KindMapping {
				return nil, mismatch("mapping", n)
			}
			out := make(map[string]V, n.Len())
			for _, p := range n.Pairs() {
				v, err := elem.Decode(p.Value)
				if err != nil {
					return nil, Prefix(err, document.Key(p.Key))
				}
				out[p.Key] = v
			}
			return out, nil
		},
	)
}

// Optional returns a codec mapping Null to a nil pointer. Null is reserved
// for nil, so a non-nil value whose element encodes to Null, such as a
// pointer to nil under Optional(Optional(c)), fails to encode.
func Optional[T any](elem Codec[T]) Codec[*T] {
	return New(
		func(v *T) (document.Node, error) {
			if v == nil {
				return document.Null(), nil
			}
			n, err := elem.Encode(*v)
			if err != nil {
				return document.Node{}, err
			}
			if n.IsNull() {
				return document.Node{}, &EncodeError{Type: typeName[*T](), Err: errors.New("present value encodes to null")}
			}
			return n, nil
		},
		func(n document.Node) (*T, error) {
			if n.IsNull() {
				return nil, nil
			}
			v, err := elem.Decode(n)
			if err != nil {
				return nil, err
			}
			return &v, nil
		},
	)
}

// Enum returns a codec accepting only the listed values. Decoding falls back to
// a case-insensitive match.
func Enum[T ~string](values ...T) Codec[T] {
	allowed := make([]string, len(values))
	for i, v := range values {
		allowed[i] = string(v)
	}
	expected := "one of [" + strings.Join(allowed, ", ") + "]"
	return New(
		func(v T) (document.Node, error) {
			for _, a := range values {
				if a == v {
					return document.String(string(v)), nil
				}
			}
			return document.Node{}, &EncodeError{Type: typeName[T](), Err: fmt.Errorf("%q is not %s", string(v), expected)}
		},
		func(n document.Node) (T, error) {
			s, ok := n.AsString()
			if !ok {
				return "", mismatch(expected, n)
			}
			for _, a := range values {
				if string(a) == s {
					return a, nil
				}
			}
			for _, a := range values {
				if strings.EqualFold(string(a), s) {
					return a, nil
				}
			}
			return "", mismatch(expected, n)
		},
	)
}

// RecordField describes one entry of a Record codec. Build it with Field or
// FieldWithDefault.
type RecordField[T any] struct {
	name       string
	encode     func(T) (document.Node, error)
	decode     func(document.Node, *T) error
	setDefault func(*T)
}

// Name is the mapping key of the field.
func (f RecordField[T]) Name() string { return f.name }

// Field declares a required record entry.
func Field[T, F any](name string, c Codec[F], get func(T) F, set func(*T, F)) RecordField[T] {
	return RecordField[T]{
		name:   name,
		encode: func(v T) (document.Node, error) { return c.Encode(get(v)) },
		decode: func(n document.Node, dst *T) error {
			v, err := c.Decode(n)
			if err != nil {
				return err
			}
			set(dst, v)
			return nil
		},
	}
}

// FieldWithDefault declares an optional record entry that takes def when absent.
func FieldWithDefault[T, F any](name string, c Codec[F], def F, get func(T) F, set func(*T, F)) RecordField[T] {
	f := Field(name, c, get, set)
	f.setDefault = func(dst *T) { set(dst, def) }
	return f
}

// Record returns a codec for T encoded as a mapping of the given fields, in
// field order. Unknown keys are ignored on decode.
func Record[T any](fields ...RecordField[T]) Codec[T] {
	return New(
		func(v T) (document.Node, error) {
			pairs := make([]document.Pair, 0, len(fields))
			for _, f := range fields {
				n, err := f.encode(v)
				if err != nil {
					return document.Node{}, err
				}
				pairs = append(pairs, document.Pair{Key: f.name, Value: n})
			}
			return document.Mapping(pairs...), nil
		},
		func(n document.Node) (T, error) {
			var out T
			if n.Kind() != document.KindMapping {
				return out, mismatch("mapping", n)
			}
			for _, f := range fields {
				child, ok := n.Get(f.name)
				if !ok {
					if f.setDefault != nil {
						f.setDefault(&out)
						continue
					}
					return out, &DecodeError{Path: document.Path{document.Key(f.name)}, Expected: "value", Got: "missing field"}
				}
				if err := f.decode(child, &out); err != nil {
					return out, Prefix(err, document.Key(f.name))
				}
			}
			return out, nil
		},
	)
}
