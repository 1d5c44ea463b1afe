// SPDX-License-Identifier: MIT

// Package codec converts typed Go values to and from document nodes.
//
// A Codec is registered once per Go type in a Registry. Composite codecs are built
// by explicit composition over element codecs (List, Map, Optional, Record); there
// is no reflection-driven field mapping.
package codec

import (
	"github.com/ManuGH/skylib/pkg/document"
)

// Codec converts between T and its document form.
type Codec[T any] interface {
	Encode(v T) (document.Node, error)
	Decode(n document.Node) (T, error)
}

type funcCodec[T any] struct {
	enc func(T) (document.Node, error)
	dec func(document.Node) (T, error)
}

func (c funcCodec[T]) Encode(v T) (document.Node, error) { return c.enc(v) }
func (c funcCodec[T]) Decode(n document.Node) (T, error) { return c.dec(n) }

// New builds a Codec from a pair of functions.
func New[T any](encode func(T) (document.Node, error), decode func(document.Node) (T, error)) Codec[T] {
	return funcCodec[T]{enc: encode, dec: decode}
}

// Convert derives a codec for B from a codec for A. to may reject values with an
// error, which surfaces as a DecodeError.
func Convert[A, B any](c Codec[A], to func(A) (B, error), from func(B) A) Codec[B] {
	return funcCodec[B]{
		enc: func(v B) (document.Node, error) { return c.Encode(from(v)) },
		dec: func(n document.Node) (B, error) {
			a, err := c.Decode(n)
			if err != nil {
				var zero B
				return zero, err
			}
			b, err := to(a)
			if err != nil {
				var zero B
				return zero, invalid(typeName[B](), n, err)
			}
			return b, nil
		},
	}
}
