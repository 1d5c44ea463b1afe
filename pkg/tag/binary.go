// SPDX-License-Identifier: MIT

package tag

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ManuGH/skylib/pkg/document"
)

const (
	// maxItems bounds the number of tags one Unmarshal may decode, across
	// all nesting levels.
	maxItems = 1 << 20
	// maxDepth leaves room for the wrapping compounds of heterogeneous lists.
	maxDepth = 2 * document.DefaultMaxDepth
)

// CorruptError reports undecodable binary input.
type CorruptError struct {
	Offset int
	Msg    string
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("tag: corrupt data at offset %d: %s", e.Offset, e.Msg)
}

// Marshal encodes t as an unnamed root tag.
func Marshal(t Tag) ([]byte, error) {
	buf := make([]byte, 0, 64)
	buf = append(buf, byte(t.kind))
	buf = appendString(buf, "")
	return appendPayload(buf, t)
}

// MarshalNode is FromNode followed by Marshal.
func MarshalNode(n document.Node) ([]byte, error) {
	t, err := FromNode(n)
	if err != nil {
		return nil, err
	}
	return Marshal(t)
}

// UnmarshalNode is Unmarshal followed by ToNode.
func UnmarshalNode(data []byte) (document.Node, error) {
	t, err := Unmarshal(data)
	if err != nil {
		return document.Node{}, err
	}
	return ToNode(t)
}

func appendString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

func appendPayload(buf []byte, t Tag) ([]byte, error) {
	switch t.kind {
	case KindNull, KindEnd:
		return buf, nil
	case KindByte:
		return append(buf, t.b), nil
	case KindLong:
		return binary.BigEndian.AppendUint64(buf, uint64(t.l)), nil
	case KindDouble:
		return binary.BigEndian.AppendUint64(buf, math.Float64bits(t.d)), nil
	case KindString:
		return appendString(buf, t.s), nil
	case KindList:
		buf = append(buf, byte(t.elem))
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(t.items)))
		var err error
		for _, it := range t.items {
			if it.kind != t.elem {
				return nil, fmt.Errorf("tag: list of %s holds %s", t.elem, it.kind)
			}
			if buf, err = appendPayload(buf, it); err != nil {
				return nil, err
			}
		}
		return buf, nil
	case KindCompound:
		var err error
		for i, it := range t.items {
			buf = append(buf, byte(it.kind))
			buf = appendString(buf, t.names[i])
			if buf, err = appendPayload(buf, it); err != nil {
				return nil, err
			}
		}
		return append(buf, byte(KindEnd)), nil
	}
	return nil, fmt.Errorf("tag: cannot marshal kind %s", t.kind)
}

// Unmarshal decodes data produced by Marshal. Truncated or malformed input
// yields *CorruptError.
func Unmarshal(data []byte) (Tag, error) {
	r := reader{data: data, budget: maxItems}
	kind, err := r.kind()
	if err != nil {
		return Tag{}, err
	}
	if kind == KindEnd {
		return Tag{}, r.corrupt("root tag is end")
	}
	if _, err := r.string(); err != nil {
		return Tag{}, err
	}
	t, err := r.payload(kind, 1)
	if err != nil {
		return Tag{}, err
	}
	if r.off != len(r.data) {
		return Tag{}, r.corrupt(fmt.Sprintf("%d trailing bytes", len(r.data)-r.off))
	}
	return t, nil
}

type reader struct {
	data   []byte
	off    int
	budget int
}

func (r *reader) corrupt(msg string) error {
	return &CorruptError{Offset: r.off, Msg: msg}
}

func (r *reader) need(n int) error {
	if n < 0 || len(r.data)-r.off < n {
		return r.corrupt("unexpected end of data")
	}
	return nil
}

func (r *reader) kind() (Kind, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	k := Kind(r.data[r.off])
	if !k.valid() {
		return 0, r.corrupt(fmt.Sprintf("unknown kind %d", byte(k)))
	}
	r.off++
	return k, nil
}

func (r *reader) uint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v, nil
}

func (r *reader) uint64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.data[r.off:])
	r.off += 8
	return v, nil
}

func (r *reader) string() (string, error) {
	n, err := r.uint32()
	if err != nil {
		return "", err
	}
	if err := r.need(int(n)); err != nil {
		return "", err
	}
	s := string(r.data[r.off : r.off+int(n)])
	r.off += int(n)
	return s, nil
}

func (r *reader) payload(kind Kind, depth int) (Tag, error) {
	if depth > maxDepth {
		return Tag{}, r.corrupt("nesting too deep")
	}
	if r.budget == 0 {
		return Tag{}, r.corrupt("too many items")
	}
	r.budget--
	switch kind {
	case KindNull:
		return Tag{kind: KindNull}, nil
	case KindByte:
		if err := r.need(1); err != nil {
			return Tag{}, err
		}
		b := r.data[r.off]
		r.off++
		return Tag{kind: KindByte, b: b}, nil
	case KindLong:
		v, err := r.uint64()
		if err != nil {
			return Tag{}, err
		}
		return Tag{kind: KindLong, l: int64(v)}, nil
	case KindDouble:
		v, err := r.uint64()
		if err != nil {
			return Tag{}, err
		}
		return Tag{kind: KindDouble, d: math.Float64frombits(v)}, nil
	case KindString:
		s, err := r.string()
		if err != nil {
			return Tag{}, err
		}
		return Tag{kind: KindString, s: s}, nil
	case KindList:
		return r.list(depth)
	case KindCompound:
		return r.compound(depth)
	}
	return Tag{}, r.corrupt(fmt.Sprintf("unexpected kind %s", kind))
}

func (r *reader) list(depth int) (Tag, error) {
	elem, err := r.kind()
	if err != nil {
		return Tag{}, err
	}
	n, err := r.uint32()
	if err != nil {
		return Tag{}, err
	}
	count := int(n)
	switch elem {
	case KindEnd:
		if count != 0 {
			return Tag{}, r.corrupt("non-empty list of end")
		}
	case KindNull:
		if count > r.budget {
			return Tag{}, r.corrupt("too many items")
		}
	default:
		// every other element kind occupies at least one byte
		if count > len(r.data)-r.off {
			return Tag{}, r.corrupt("list length exceeds data")
		}
	}
	out := Tag{kind: KindList, elem: elem, items: make([]Tag, 0, count)}
	for i := 0; i < count; i++ {
		it, err := r.payload(elem, depth+1)
		if err != nil {
			return Tag{}, err
		}
		out.items = append(out.items, it)
	}
	return out, nil
}

func (r *reader) compound(depth int) (Tag, error) {
	out := Tag{kind: KindCompound}
	seen := make(map[string]struct{})
	for {
		kind, err := r.kind()
		if err != nil {
			return Tag{}, err
		}
		if kind == KindEnd {
			return out, nil
		}
		name, err := r.string()
		if err != nil {
			return Tag{}, err
		}
		if _, dup := seen[name]; dup {
			return Tag{}, r.corrupt(fmt.Sprintf("duplicate entry %q", name))
		}
		seen[name] = struct{}{}
		it, err := r.payload(kind, depth+1)
		if err != nil {
			return Tag{}, err
		}
		out.names = append(out.names, name)
		out.items = append(out.items, it)
	}
}
