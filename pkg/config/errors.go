// SPDX-License-Identifier: MIT

package config

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrParseFailure classifies documents that are not well-formed.
	ErrParseFailure = errors.New("config parse failure")
	// ErrValidationFailure classifies documents that do not match their schema.
	ErrValidationFailure = errors.New("config validation failure")
	// ErrBackendUnavailable classifies failures to read or write the backing store.
	ErrBackendUnavailable = errors.New("config backend unavailable")

	// ErrPathNotFound is returned by Get for paths the document does not contain.
	ErrPathNotFound = errors.New("config path not found")
	// ErrNotLoaded is returned by Manager operations that need a current instance.
	ErrNotLoaded = errors.New("config not loaded")
	// ErrNoRunner is returned by async Manager operations when no runner was configured.
	ErrNoRunner = errors.New("config manager has no background runner")
	// ErrNotWatchable is returned by Watch for backends without a file path.
	ErrNotWatchable = errors.New("config backend cannot be watched")
)

// Kind classifies an Error.
type Kind uint8

const (
	ParseFailure Kind = iota + 1
	ValidationFailure
	BackendUnavailable
)

func (k Kind) String() string {
	switch k {
	case ParseFailure:
		return "parse failure"
	case ValidationFailure:
		return "validation failure"
	case BackendUnavailable:
		return "backend unavailable"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

func (k Kind) sentinel() error {
	switch k {
	case ParseFailure:
		return ErrParseFailure
	case ValidationFailure:
		return ErrValidationFailure
	case BackendUnavailable:
		return ErrBackendUnavailable
	}
	return nil
}

// Error is returned by Load, Save and the Manager. errors.Is matches it against
// ErrParseFailure, ErrValidationFailure and ErrBackendUnavailable by Kind.
type Error struct {
	Kind   Kind
	Schema string
	Source string   // backend description
	Paths  []string // offending document paths, validation failures only
	Err    error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString("config ")
	sb.WriteString(e.Schema)
	if e.Source != "" {
		sb.WriteString(" (" + e.Source + ")")
	}
	sb.WriteString(": ")
	sb.WriteString(e.Kind.String())
	if len(e.Paths) > 0 {
		sb.WriteString(" at " + strings.Join(e.Paths, ", "))
	}
	if e.Err != nil {
		sb.WriteString(": " + e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel of e.Kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}
