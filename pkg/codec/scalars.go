// SPDX-License-Identifier: MIT

package codec

import (
	"encoding/base64"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ManuGH/skylib/pkg/document"
	"github.com/ManuGH/skylib/pkg/timeutil"
)

// Scalar codecs. Decoders accept the obvious neighbouring representations
// (an integral float for an int, a number for a string) since hand-edited
// configuration files are not strict about them; encoders always produce the
// canonical kind.
var (
	Bool     Codec[bool]          = New(encodeBool, decodeBool)
	Int      Codec[int]           = New(encodeInt[int], decodeInt[int](math.MinInt, math.MaxInt))
	Int32    Codec[int32]         = New(encodeInt[int32], decodeInt[int32](math.MinInt32, math.MaxInt32))
	Int64    Codec[int64]         = New(encodeInt[int64], decodeInt[int64](math.MinInt64, math.MaxInt64))
	Float64  Codec[float64]       = New(encodeFloat, decodeFloat)
	String   Codec[string]        = New(encodeString, decodeString)
	Bytes    Codec[[]byte]        = New(encodeBytes, decodeBytes)
	Duration Codec[time.Duration] = New(encodeDuration, decodeDuration)
	Time     Codec[time.Time]     = New(encodeTime, decodeTime)
	UUID     Codec[uuid.UUID]     = New(encodeUUID, decodeUUID)
)

func encodeBool(v bool) (document.Node, error) { return document.Bool(v), nil }

func decodeBool(n document.Node) (bool, error) {
	if b, ok := n.AsBool(); ok {
		return b, nil
	}
	if s, ok := n.AsString(); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			return false, invalid("bool", n, err)
		}
		return b, nil
	}
	return false, mismatch("bool", n)
}

type integer interface {
	~int | ~int32 | ~int64
}

func encodeInt[T integer](v T) (document.Node, error) { return document.Int(int64(v)), nil }

func decodeInt[T integer](lo, hi int64) func(document.Node) (T, error) {
	return func(n document.Node) (T, error) {
		var v int64
		switch n.Kind() {
		case document.KindInt:
			v, _ = n.AsInt()
		case document.KindFloat:
			f, _ := n.AsFloat()
			if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
				return 0, mismatch("integer", n)
			}
			v = int64(f)
		case document.KindString:
			s, _ := n.AsString()
			parsed, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
			if err != nil {
				return 0, invalid("integer", n, err)
			}
			v = parsed
		default:
			return 0, mismatch("integer", n)
		}
		if v < lo || v > hi {
			return 0, &DecodeError{Expected: "integer in [" + strconv.FormatInt(lo, 10) + ", " + strconv.FormatInt(hi, 10) + "]", Got: describe(n)}
		}
		return T(v), nil
	}
}

func encodeFloat(v float64) (document.Node, error) { return document.Float(v), nil }

func decodeFloat(n document.Node) (float64, error) {
	if f, ok := n.AsFloat(); ok {
		return f, nil
	}
	if s, ok := n.AsString(); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, invalid("float", n, err)
		}
		return f, nil
	}
	return 0, mismatch("float", n)
}

func encodeString(v string) (document.Node, error) { return document.String(v), nil }

func decodeString(n document.Node) (string, error) {
	switch n.Kind() {
	case document.KindString:
		s, _ := n.AsString()
		return s, nil
	case document.KindInt, document.KindFloat, document.KindBool:
		return n.String(), nil
	default:
		return "", mismatch("string", n)
	}
}

func encodeBytes(v []byte) (document.Node, error) {
	return document.String(base64.StdEncoding.EncodeToString(v)), nil
}

func decodeBytes(n document.Node) ([]byte, error) {
	s, ok := n.AsString()
	if !ok {
		return nil, mismatch("base64 string", n)
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, invalid("base64 string", n, err)
	}
	return b, nil
}

// encodeDuration writes the compact form when it is exact and the Go form otherwise.
func encodeDuration(v time.Duration) (document.Node, error) {
	if v%time.Millisecond == 0 {
		return document.String(timeutil.FormatCompact(v)), nil
	}
	return document.String(v.String()), nil
}

// decodeDuration accepts compact strings ("1d2h"), Go durations ("1h30m0.5s")
// and integer milliseconds.
func decodeDuration(n document.Node) (time.Duration, error) {
	if ms, ok := n.AsInt(); ok {
		if ms > math.MaxInt64/int64(time.Millisecond) || ms < math.MinInt64/int64(time.Millisecond) {
			return 0, mismatch("duration", n)
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
	s, ok := n.AsString()
	if !ok {
		return 0, mismatch("duration", n)
	}
	if d, err := timeutil.ParseCompact(s); err == nil {
		return d, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return 0, invalid("duration", n, err)
	}
	return d, nil
}

func encodeTime(v time.Time) (document.Node, error) {
	return document.String(v.Format(time.RFC3339Nano)), nil
}

// decodeTime accepts RFC 3339 strings and integer Unix milliseconds.
func decodeTime(n document.Node) (time.Time, error) {
	if ms, ok := n.AsInt(); ok {
		return time.UnixMilli(ms), nil
	}
	s, ok := n.AsString()
	if !ok {
		return time.Time{}, mismatch("RFC 3339 timestamp", n)
	}
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, invalid("RFC 3339 timestamp", n, err)
	}
	return t, nil
}

func encodeUUID(v uuid.UUID) (document.Node, error) { return document.String(v.String()), nil }

func decodeUUID(n document.Node) (uuid.UUID, error) {
	s, ok := n.AsString()
	if !ok {
		return uuid.Nil, mismatch("uuid", n)
	}
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return uuid.Nil, invalid("uuid", n, err)
	}
	return id, nil
}
