// SPDX-License-Identifier: MIT

package codec

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/ManuGH/skylib/pkg/document"
	"github.com/ManuGH/skylib/pkg/tag"
)

type entry struct {
	name   string
	codec  any
	encode func(any) (document.Node, error)
	decode func(document.Node) (any, error)
}

// Registry maps Go types to their codecs. Registration is expected at startup;
// lookups are safe for concurrent use at any time.
type Registry struct {
	mu     sync.RWMutex
	byType map[reflect.Type]*entry
	byName map[string]*entry
}

// Option configures a Registry at construction.
type Option func(*Registry)

// WithBuiltins registers the scalar codecs of this package.
func WithBuiltins() Option {
	return func(r *Registry) {
		MustRegister(r, Bool)
		MustRegister(r, Int)
		MustRegister(r, Int32)
		MustRegister(r, Int64)
		MustRegister(r, Float64)
		MustRegister(r, String)
		MustRegister(r, Bytes)
		MustRegister(r, Duration)
		MustRegister(r, Time)
		MustRegister(r, UUID)
		MustRegister(r, List(String))
		MustRegister(r, Map(String))
	}
}

// NewRegistry returns an empty registry with opts applied.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		byType: make(map[reflect.Type]*entry),
		byName: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TypeNameOf returns the name under which codecs for T are registered,
// e.g. "int", "time.Duration", "[]string".
func TypeNameOf[T any]() string { return typeName[T]() }

func typeName[T any]() string { return reflect.TypeFor[T]().String() }

// Register adds c as the codec for T.
func Register[T any](r *Registry, c Codec[T]) error {
	typ := reflect.TypeFor[T]()
	e := &entry{
		name:  typ.String(),
		codec: c,
		encode: func(v any) (document.Node, error) {
			tv, ok := v.(T)
			if !ok {
				return document.Node{}, &EncodeError{Type: typ.String(), Err: fmt.Errorf("value of type %T", v)}
			}
			return c.Encode(tv)
		},
		decode: func(n document.Node) (any, error) { return c.Decode(n) },
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byType[typ]; exists {
		return &DuplicateCodecError{Type: e.name}
	}
	if _, exists := r.byName[e.name]; exists {
		return &DuplicateCodecError{Type: e.name}
	}
	r.byType[typ] = e
	r.byName[e.name] = e
	return nil
}

// MustRegister is Register for startup code; it panics on duplicates.
func MustRegister[T any](r *Registry, c Codec[T]) {
	if err := Register(r, c); err != nil {
		panic(err)
	}
}

// Lookup returns the codec registered for T.
func Lookup[T any](r *Registry) (Codec[T], error) {
	typ := reflect.TypeFor[T]()
	r.mu.RLock()
	e, ok := r.byType[typ]
	r.mu.RUnlock()
	if !ok {
		return nil, &UnknownTypeError{Type: typ.String()}
	}
	return e.codec.(Codec[T]), nil
}

// Has reports whether a codec is registered under typeName.
func (r *Registry) Has(typeName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byName[typeName]
	return ok
}

// TypeNames lists every registered type name in lexical order.
func (r *Registry) TypeNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byName))
	for name := range r.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// DecodeAny decodes n with the codec registered under typeName.
func (r *Registry) DecodeAny(typeName string, n document.Node) (any, error) {
	r.mu.RLock()
	e, ok := r.byName[typeName]
	r.mu.RUnlock()
	if !ok {
		return nil, &UnknownTypeError{Type: typeName}
	}
	return e.decode(n)
}

// EncodeAny encodes v with the codec registered for its dynamic type.
func (r *Registry) EncodeAny(v any) (document.Node, error) {
	typ := reflect.TypeOf(v)
	if typ == nil {
		return document.Null(), nil
	}
	r.mu.RLock()
	e, ok := r.byType[typ]
	r.mu.RUnlock()
	if !ok {
		return document.Node{}, &UnknownTypeError{Type: typ.String()}
	}
	return e.encode(v)
}

// Encode converts v with the codec registered for T.
func Encode[T any](r *Registry, v T) (document.Node, error) {
	c, err := Lookup[T](r)
	if err != nil {
		return document.Node{}, err
	}
	return c.Encode(v)
}

// Decode converts n with the codec registered for T.
func Decode[T any](r *Registry, n document.Node) (T, error) {
	c, err := Lookup[T](r)
	if err != nil {
		var zero T
		return zero, err
	}
	return c.Decode(n)
}

// EncodeTag converts v to its binary tag form.
func EncodeTag[T any](r *Registry, v T) ([]byte, error) {
	n, err := Encode(r, v)
	if err != nil {
		return nil, err
	}
	return tag.MarshalNode(n)
}

// DecodeTag converts binary tag data back to T. Malformed data yields *tag.CorruptError.
func DecodeTag[T any](r *Registry, data []byte) (T, error) {
	c, err := Lookup[T](r)
	if err != nil {
		var zero T
		return zero, err
	}
	n, err := tag.UnmarshalNode(data)
	if err != nil {
		var zero T
		return zero, err
	}
	return c.Decode(n)
}
