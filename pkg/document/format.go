// SPDX-License-Identifier: MIT

package document

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Format selects the textual encoding of a document.
type Format uint8

const (
	YAML Format = iota + 1
	JSON
)

func (f Format) String() string {
	switch f {
	case YAML:
		return "yaml"
	case JSON:
		return "json"
	default:
		return fmt.Sprintf("format(%d)", uint8(f))
	}
}

// FormatFromPath selects the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		return YAML, nil
	case ".json":
		return JSON, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, path)
	}
}

// ParseFormat maps a format name ("yaml", "yml", "json") to a Format.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "yaml", "yml":
		return YAML, nil
	case "json":
		return JSON, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, name)
	}
}

// DefaultMaxDepth bounds the nesting of parsed and merged documents.
const DefaultMaxDepth = 64

// defaultMaxNodes bounds the size of a parsed tree after alias expansion.
const defaultMaxNodes = 1 << 20

// Option tunes Parse.
type Option func(*limits)

type limits struct {
	maxDepth int
	maxNodes int
}

// WithMaxDepth overrides DefaultMaxDepth.
func WithMaxDepth(depth int) Option {
	return func(l *limits) {
		if depth > 0 {
			l.maxDepth = depth
		}
	}
}

func newLimits(opts []Option) limits {
	l := limits{maxDepth: DefaultMaxDepth, maxNodes: defaultMaxNodes}
	for _, opt := range opts {
		opt(&l)
	}
	return l
}

// Parse decodes raw in the given format. Empty or whitespace-only input yields Null.
func Parse(raw []byte, format Format, opts ...Option) (Node, error) {
	l := newLimits(opts)
	switch format {
	case YAML:
		return parseYAML(raw, l)
	case JSON:
		return parseJSON(raw, l)
	default:
		return Node{}, fmt.Errorf("%w: %v", ErrUnknownFormat, format)
	}
}

// Serialize encodes n in the given format.
func Serialize(n Node, format Format) ([]byte, error) {
	switch format {
	case YAML:
		return serializeYAML(n)
	case JSON:
		return serializeJSON(n)
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownFormat, format)
	}
}
