// SPDX-License-Identifier: MIT

package document

import (
	"encoding/base64"
	"errors"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var nodeType = reflect.TypeOf(Node{})

// genNode produces trees up to the given depth with small collections.
func genNode(depth int) gopter.Gen {
	scalars := []gopter.Gen{
		gen.Const(Null()),
		gen.Bool().Map(func(b bool) Node { return Bool(b) }),
		gen.Int64().Map(func(i int64) Node { return Int(i) }),
		gen.Float64Range(-1e12, 1e12).Map(func(f float64) Node { return Float(f) }),
		gen.AlphaString().Map(func(s string) Node { return String(s) }),
	}
	if depth <= 1 {
		return gen.OneGenOf(scalars...)
	}
	child := genNode(depth - 1)
	seq := gen.IntRange(0, 3).FlatMap(func(v interface{}) gopter.Gen {
		return gen.SliceOfN(v.(int), child, nodeType).Map(func(items []Node) Node {
			return Sequence(items...)
		})
	}, nodeType)
	mapping := gen.IntRange(0, 3).FlatMap(func(v interface{}) gopter.Gen {
		return gopter.CombineGens(
			gen.SliceOfN(v.(int), gen.Identifier()),
			gen.SliceOfN(v.(int), child, nodeType),
		).Map(func(vals []interface{}) Node {
			keys := vals[0].([]string)
			items := vals[1].([]Node)
			pairs := make([]Pair, 0, len(keys))
			for i, k := range keys {
				pairs = append(pairs, Pair{Key: k, Value: items[i]})
			}
			return Mapping(pairs...)
		})
	}, nodeType)
	return gen.OneGenOf(append(scalars, seq, mapping)...)
}

func TestProperty_SerializeParseIdentity(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	for _, f := range []Format{YAML, JSON} {
		format := f
		properties.Property(format.String()+" round trip", prop.ForAll(
			func(n Node) bool {
				out, err := Serialize(n, format)
				if err != nil {
					return false
				}
				back, err := Parse(out, format)
				if err != nil {
					return false
				}
				return EqualOrdered(n, back)
			},
			genNode(4),
		))
	}

	properties.TestingRun(t)
}

// parsedRoundTrips reports whether raw either fails to parse with a
// *ParseError or parses to a node that survives serialize then parse.
func parsedRoundTrips(raw []byte, format Format) bool {
	n, err := Parse(raw, format)
	if err != nil {
		var pe *ParseError
		return errors.As(err, &pe)
	}
	out, err := Serialize(n, format)
	if err != nil {
		return false
	}
	back, err := Parse(out, format)
	return err == nil && EqualOrdered(n, back)
}

func TestProperty_ArbitraryBytesRoundTripOrFail(t *testing.T) {
	properties := gopter.NewProperties(nil)
	bytesGen := gen.SliceOf(gen.UInt8Range(0x20, 0xFF)).Map(func(b []uint8) []byte { return b })

	properties.Property("json string bytes", prop.ForAll(
		func(b []byte) bool {
			raw := append([]byte(`{"v":"`), b...)
			return parsedRoundTrips(append(raw, `"}`...), JSON)
		},
		bytesGen,
	))
	properties.Property("yaml binary scalar", prop.ForAll(
		func(b []byte) bool {
			return parsedRoundTrips([]byte("v: !!binary "+base64.StdEncoding.EncodeToString(b)+"\n"), YAML)
		},
		bytesGen,
	))

	properties.TestingRun(t)
}

func TestParse_RejectsInvalidUTF8(t *testing.T) {
	for _, tt := range []struct {
		format Format
		raw    string
	}{
		{format: JSON, raw: "{\"v\":\"\xff\"}"},
		{format: JSON, raw: "{\"\xc3\":1}"},
		{format: YAML, raw: "v: !!binary /w==\n"},
	} {
		_, err := Parse([]byte(tt.raw), tt.format)
		var pe *ParseError
		require.ErrorAs(t, err, &pe, tt.raw)
		assert.Equal(t, tt.format, pe.Format)
		assert.ErrorIs(t, err, ErrInvalidUTF8)
	}

	n, err := Parse([]byte("v: !!binary aMOpbGxv\n"), YAML)
	require.NoError(t, err)
	v, _ := n.Lookup(MustParsePath("v"))
	s, _ := v.AsString()
	assert.Equal(t, "héllo", s)
}

func TestProperty_MergeIdempotent(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("merge(merge(b,o),o) == merge(b,o)", prop.ForAll(
		func(base, override Node) bool {
			once, err := Merge(base, override)
			if err != nil {
				return false
			}
			twice, err := Merge(once, override)
			if err != nil {
				return false
			}
			return EqualOrdered(once, twice)
		},
		genNode(4), genNode(4),
	))

	properties.Property("merge with empty override keeps base", prop.ForAll(
		func(base Node) bool {
			if base.Kind() != KindMapping {
				return true
			}
			out, err := Merge(base, Mapping())
			return err == nil && EqualOrdered(out, base)
		},
		genNode(3),
	))

	properties.TestingRun(t)
}
