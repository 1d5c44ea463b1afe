// SPDX-License-Identifier: MIT

package codec

import (
	"errors"
	"fmt"

	"github.com/ManuGH/skylib/pkg/document"
)

// DuplicateCodecError is returned when a type is registered twice.
type DuplicateCodecError struct {
	Type string
}

func (e *DuplicateCodecError) Error() string {
	return fmt.Sprintf("codec: duplicate codec for type %s", e.Type)
}

// UnknownTypeError is returned when no codec is registered for a type.
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("codec: no codec registered for type %s", e.Type)
}

// DecodeError reports a node that does not match the shape a codec expects.
// Path is relative to the node handed to the outermost Decode call.
type DecodeError struct {
	Path     document.Path
	Expected string
	Got      string
	Err      error
}

func (e *DecodeError) Error() string {
	msg := "decode " + e.Path.Display()
	if e.Expected != "" {
		msg += ": expected " + e.Expected
		if e.Got != "" {
			msg += ", got " + e.Got
		}
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError reports a value that has no node representation.
type EncodeError struct {
	Type string
	Err  error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("codec: encode %s: %v", e.Type, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// mismatch builds a DecodeError for a node of the wrong kind.
func mismatch(expected string, n document.Node) error {
	return &DecodeError{Expected: expected, Got: describe(n)}
}

func invalid(expected string, n document.Node, err error) error {
	return &DecodeError{Expected: expected, Got: describe(n), Err: err}
}

func describe(n document.Node) string {
	switch n.Kind() {
	case document.KindSequence, document.KindMapping, document.KindNull:
		return n.Kind().String()
	default:
		return n.Kind().String() + " " + n.String()
	}
}

// Prefix returns err with seg prepended to its decode path. Errors that are not
// DecodeErrors are wrapped in one.
func Prefix(err error, seg ...document.Segment) error {
	if err == nil || len(seg) == 0 {
		return err
	}
	var de *DecodeError
	if errors.As(err, &de) {
		p := make(document.Path, 0, len(seg)+len(de.Path))
		p = append(p, seg...)
		p = append(p, de.Path...)
		return &DecodeError{Path: p, Expected: de.Expected, Got: de.Got, Err: de.Err}
	}
	return &DecodeError{Path: append(document.Path(nil), seg...), Err: err}
}
