// SPDX-License-Identifier: MIT

package document

import (
	"errors"
	"fmt"
)

var (
	// ErrDepthExceeded is returned when a tree nests deeper than the configured limit.
	ErrDepthExceeded = errors.New("document: nesting depth exceeded")
	// ErrTooLarge is returned when alias expansion would produce an unreasonably large tree.
	ErrTooLarge = errors.New("document: too many nodes")
	// ErrInvalidUTF8 is returned when input text or a decoded string is not valid UTF-8.
	ErrInvalidUTF8 = errors.New("document: invalid UTF-8")
	// ErrUnknownFormat is returned for file extensions without a registered format.
	ErrUnknownFormat = errors.New("document: unknown format")
	// ErrPathConflict is returned when a path walks through a scalar.
	ErrPathConflict = errors.New("document: path walks through a scalar")
	// ErrIndexOutOfRange is returned when a path addresses a missing sequence item.
	ErrIndexOutOfRange = errors.New("document: sequence index out of range")
	// ErrInvalidPath is returned by ParsePath for malformed expressions.
	ErrInvalidPath = errors.New("document: invalid path")
)

// ParseError reports malformed input. Line and Column are 1-based; zero means unknown.
type ParseError struct {
	Format Format
	Line   int
	Column int
	Msg    string
	Err    error
}

func (e *ParseError) Error() string {
	switch {
	case e.Line > 0 && e.Column > 0:
		return fmt.Sprintf("parse %s: line %d, column %d: %s", e.Format, e.Line, e.Column, e.Msg)
	case e.Line > 0:
		return fmt.Sprintf("parse %s: line %d: %s", e.Format, e.Line, e.Msg)
	default:
		return fmt.Sprintf("parse %s: %s", e.Format, e.Msg)
	}
}

func (e *ParseError) Unwrap() error { return e.Err }

// SerializeError reports a node that has no representation in the target format.
type SerializeError struct {
	Format Format
	Path   Path
	Msg    string
}

func (e *SerializeError) Error() string {
	return fmt.Sprintf("serialize %s at %s: %s", e.Format, e.Path.Display(), e.Msg)
}
