// SPDX-License-Identifier: MIT

package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
)

var prettyOptions = &pretty.Options{Width: 80, Indent: "    "}

func parseJSON(raw []byte, l limits) (Node, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return Null(), nil
	}
	if at := invalidUTF8(raw); at >= 0 {
		pe := &ParseError{Format: JSON, Msg: "invalid UTF-8", Err: ErrInvalidUTF8}
		pe.Line, pe.Column = lineColumn(raw, at)
		return Node{}, pe
	}
	if !gjson.ValidBytes(raw) {
		return Node{}, jsonParseError(raw)
	}
	c := jsonConverter{raw: raw, limits: l}
	return c.convert(gjson.ParseBytes(raw), 1)
}

// jsonParseError locates the syntax error with encoding/json, which reports byte offsets.
func jsonParseError(raw []byte) *ParseError {
	var v any
	err := json.Unmarshal(raw, &v)
	pe := &ParseError{Format: JSON, Msg: "invalid JSON", Err: err}
	var se *json.SyntaxError
	if errors.As(err, &se) {
		pe.Msg = se.Error()
		// Offset counts the offending byte.
		pe.Line, pe.Column = lineColumn(raw, int(se.Offset)-1)
	} else if err != nil {
		pe.Msg = err.Error()
	}
	return pe
}

// invalidUTF8 returns the offset of the first byte that is not part of a
// valid UTF-8 sequence, or -1.
func invalidUTF8(raw []byte) int {
	for i := 0; i < len(raw); {
		r, size := utf8.DecodeRune(raw[i:])
		if r == utf8.RuneError && size == 1 {
			return i
		}
		i += size
	}
	return -1
}

func lineColumn(raw []byte, offset int) (int, int) {
	if offset > len(raw) {
		offset = len(raw)
	}
	if offset < 0 {
		return 0, 0
	}
	before := raw[:offset]
	line := bytes.Count(before, []byte{'\n'}) + 1
	col := offset - bytes.LastIndexByte(before, '\n')
	if col < 1 {
		col = 1
	}
	return line, col
}

type jsonConverter struct {
	raw    []byte
	limits limits
	nodes  int
}

func (c *jsonConverter) errorAt(offset int, msg string, err error) error {
	pe := &ParseError{Format: JSON, Msg: msg, Err: err}
	if offset > 0 {
		pe.Line, pe.Column = lineColumn(c.raw, offset)
	}
	return pe
}

func (c *jsonConverter) convert(r gjson.Result, depth int) (Node, error) {
	if depth > c.limits.maxDepth {
		return Node{}, c.errorAt(r.Index, "nesting too deep", ErrDepthExceeded)
	}
	c.nodes++
	if c.nodes > c.limits.maxNodes {
		return Node{}, c.errorAt(r.Index, "document too large", ErrTooLarge)
	}

	switch r.Type {
	case gjson.Null:
		return Null(), nil
	case gjson.False:
		return Bool(false), nil
	case gjson.True:
		return Bool(true), nil
	case gjson.String:
		return String(r.Str), nil
	case gjson.Number:
		return c.number(r)
	case gjson.JSON:
		if r.IsArray() {
			items := make([]Node, 0)
			var failed error
			r.ForEach(func(_, v gjson.Result) bool {
				n, err := c.convert(v, depth+1)
				if err != nil {
					failed = err
					return false
				}
				items = append(items, n)
				return true
			})
			if failed != nil {
				return Node{}, failed
			}
			return Node{kind: KindSequence, items: items}, nil
		}
		out := Node{kind: KindMapping}
		var failed error
		r.ForEach(func(k, v gjson.Result) bool {
			if out.indexOf(k.Str) >= 0 {
				failed = c.errorAt(k.Index, fmt.Sprintf("duplicate key %q", k.Str), nil)
				return false
			}
			n, err := c.convert(v, depth+1)
			if err != nil {
				failed = err
				return false
			}
			out.keys = append(out.keys, k.Str)
			out.items = append(out.items, n)
			return true
		})
		if failed != nil {
			return Node{}, failed
		}
		return out, nil
	}
	return Node{}, c.errorAt(r.Index, "unexpected value", nil)
}

func (c *jsonConverter) number(r gjson.Result) (Node, error) {
	raw := strings.TrimSpace(r.Raw)
	if !strings.ContainsAny(raw, ".eE") {
		if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return Int(i), nil
		}
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return Node{}, c.errorAt(r.Index, "invalid number "+raw, err)
	}
	return Float(f), nil
}

func serializeJSON(n Node) ([]byte, error) {
	var buf []byte
	buf, err := appendJSON(buf, n, nil)
	if err != nil {
		return nil, err
	}
	return pretty.PrettyOptions(buf, prettyOptions), nil
}

func appendJSON(dst []byte, n Node, p Path) ([]byte, error) {
	switch n.kind {
	case KindNull:
		return append(dst, "null"...), nil
	case KindBool:
		return strconv.AppendBool(dst, n.b), nil
	case KindInt:
		return strconv.AppendInt(dst, n.i, 10), nil
	case KindFloat:
		if !isFinite(n.f) {
			return nil, &SerializeError{Format: JSON, Path: p, Msg: errNonFinite.Error()}
		}
		return append(dst, formatFloat(n.f)...), nil
	case KindString:
		return appendJSONString(dst, n.s), nil
	case KindSequence:
		dst = append(dst, '[')
		for i, it := range n.items {
			if i > 0 {
				dst = append(dst, ',')
			}
			var err error
			if dst, err = appendJSON(dst, it, p.At(i)); err != nil {
				return nil, err
			}
		}
		return append(dst, ']'), nil
	case KindMapping:
		dst = append(dst, '{')
		for i, k := range n.keys {
			if i > 0 {
				dst = append(dst, ',')
			}
			dst = appendJSONString(dst, k)
			dst = append(dst, ':')
			var err error
			if dst, err = appendJSON(dst, n.items[i], p.Child(k)); err != nil {
				return nil, err
			}
		}
		return append(dst, '}'), nil
	}
	return nil, &SerializeError{Format: JSON, Path: p, Msg: fmt.Sprintf("unknown kind %s", n.kind)}
}

func appendJSONString(dst []byte, s string) []byte {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	return append(dst, bytes.TrimRight(b.Bytes(), "\n")...)
}
