// SPDX-License-Identifier: MIT

package tag

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/skylib/pkg/document"
)

func roundTrip(t *testing.T, n document.Node) document.Node {
	t.Helper()
	data, err := MarshalNode(n)
	require.NoError(t, err)
	back, err := UnmarshalNode(data)
	require.NoError(t, err)
	return back
}

func TestRoundTrip_Scalars(t *testing.T) {
	for _, n := range []document.Node{
		document.Null(),
		document.Bool(true),
		document.Bool(false),
		document.Int(math.MinInt64),
		document.Int(42),
		document.Float(-0.25),
		document.Float(math.Inf(1)),
		document.String(""),
		document.String("héllo wörld"),
	} {
		back := roundTrip(t, n)
		assert.True(t, document.EqualOrdered(n, back), "want %s got %s", n, back)
	}
}

func TestRoundTrip_Collections(t *testing.T) {
	n := document.Mapping(
		document.Pair{Key: "homes", Value: document.Sequence(
			document.Mapping(document.Pair{Key: "x", Value: document.Int(1)}),
			document.Mapping(document.Pair{Key: "x", Value: document.Int(2)}),
		)},
		document.Pair{Key: "mixed", Value: document.Sequence(document.Int(1), document.String("a"), document.Null())},
		document.Pair{Key: "wrapped-look", Value: document.Sequence(
			document.Mapping(document.Pair{Key: "", Value: document.Int(1)}),
			document.Mapping(document.Pair{Key: "", Value: document.Int(2)}),
		)},
		document.Pair{Key: "empty", Value: document.Sequence()},
		document.Pair{Key: "nested", Value: document.Sequence(document.Sequence(document.Int(1)), document.Sequence())},
	)
	back := roundTrip(t, n)
	assert.True(t, document.EqualOrdered(n, back), "want %s got %s", n, back)
}

func TestFromNode_MixedListsAreWrapped(t *testing.T) {
	tg, err := FromNode(document.Sequence(document.Int(1), document.String("a")))
	require.NoError(t, err)
	assert.Equal(t, KindList, tg.Kind())
	assert.Equal(t, KindCompound, tg.ElemKind())
	assert.Equal(t, 2, tg.Len())

	tg, err = FromNode(document.Sequence(document.Int(1), document.Int(2)))
	require.NoError(t, err)
	assert.Equal(t, KindLong, tg.ElemKind())

	tg, err = FromNode(document.Sequence())
	require.NoError(t, err)
	assert.Equal(t, KindEnd, tg.ElemKind())
}

func TestMarshal_Layout(t *testing.T) {
	data, err := MarshalNode(document.Int(42))
	require.NoError(t, err)
	want := []byte{
		byte(KindLong),
		0, 0, 0, 0, // empty root name
		0, 0, 0, 0, 0, 0, 0, 42,
	}
	assert.Equal(t, want, data)

	data, err = MarshalNode(document.Mapping(document.Pair{Key: "a", Value: document.Bool(true)}))
	require.NoError(t, err)
	want = []byte{
		byte(KindCompound), 0, 0, 0, 0,
		byte(KindByte), 0, 0, 0, 1, 'a', 1,
		byte(KindEnd),
	}
	assert.Equal(t, want, data)
}

func TestUnmarshal_Corrupt(t *testing.T) {
	valid, err := MarshalNode(document.Mapping(
		document.Pair{Key: "name", Value: document.String("steve")},
		document.Pair{Key: "score", Value: document.Int(7)},
	))
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "truncated", data: valid[:len(valid)-3]},
		{name: "trailing", data: append(append([]byte(nil), valid...), 0xFF)},
		{name: "unknown kind", data: []byte{0x63, 0, 0, 0, 0}},
		{name: "root end", data: []byte{0}},
		{name: "huge string", data: []byte{byte(KindString), 0, 0, 0, 0, 0xFF, 0xFF, 0xFF, 0xFF}},
		{name: "huge list", data: []byte{byte(KindList), 0, 0, 0, 0, byte(KindLong), 0x7F, 0xFF, 0xFF, 0xFF}},
		{name: "text", data: []byte("score=42")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal(tt.data)
			var ce *CorruptError
			require.True(t, errors.As(err, &ce), "got %v", err)
		})
	}
}

func TestUnmarshal_ItemBudgetSpansNestedLists(t *testing.T) {
	// A list of lists of nulls: each inner list is five bytes but claims
	// half of the item budget.
	const inner = 8
	data := []byte{byte(KindList), 0, 0, 0, 0, byte(KindList), 0, 0, 0, inner}
	for i := 0; i < inner; i++ {
		data = append(data, byte(KindNull), 0, 0x08, 0, 0)
	}

	_, err := Unmarshal(data)
	var ce *CorruptError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.Contains(t, ce.Msg, "too many items")
}

func TestUnmarshal_NullListWithinBudget(t *testing.T) {
	data := []byte{byte(KindList), 0, 0, 0, 0, byte(KindNull), 0, 0, 0, 3}
	tg, err := Unmarshal(data)
	require.NoError(t, err)
	n, err := ToNode(tg)
	require.NoError(t, err)
	assert.Equal(t, 3, n.Len())
}

func TestUnmarshal_DuplicateCompoundEntry(t *testing.T) {
	data := []byte{
		byte(KindCompound), 0, 0, 0, 0,
		byte(KindByte), 0, 0, 0, 1, 'a', 1,
		byte(KindByte), 0, 0, 0, 1, 'a', 0,
		byte(KindEnd),
	}
	_, err := Unmarshal(data)
	var ce *CorruptError
	require.True(t, errors.As(err, &ce))
	assert.Contains(t, ce.Msg, "duplicate")
}

var nodeType = reflect.TypeOf(document.Node{})

func genNode(depth int) gopter.Gen {
	scalars := []gopter.Gen{
		gen.Const(document.Null()),
		gen.Bool().Map(func(b bool) document.Node { return document.Bool(b) }),
		gen.Int64().Map(func(i int64) document.Node { return document.Int(i) }),
		gen.Float64().Map(func(f float64) document.Node { return document.Float(f) }),
		gen.AnyString().Map(func(s string) document.Node { return document.String(s) }),
	}
	if depth <= 1 {
		return gen.OneGenOf(scalars...)
	}
	child := genNode(depth - 1)
	seq := gen.IntRange(0, 3).FlatMap(func(v interface{}) gopter.Gen {
		return gen.SliceOfN(v.(int), child, nodeType).Map(func(items []document.Node) document.Node {
			return document.Sequence(items...)
		})
	}, nodeType)
	mapping := gen.IntRange(0, 3).FlatMap(func(v interface{}) gopter.Gen {
		return gen.SliceOfN(v.(int), child, nodeType).Map(func(items []document.Node) document.Node {
			pairs := make([]document.Pair, len(items))
			for i, it := range items {
				pairs[i] = document.Pair{Key: string(rune('a' + i)), Value: it}
			}
			return document.Mapping(pairs...)
		})
	}, nodeType)
	return gen.OneGenOf(append(scalars, seq, mapping)...)
}

func TestProperty_NodeTagInverse(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("ToNode(FromNode(n)) == n", prop.ForAll(
		func(n document.Node) bool {
			data, err := MarshalNode(n)
			if err != nil {
				return false
			}
			back, err := UnmarshalNode(data)
			return err == nil && document.EqualOrdered(n, back)
		},
		genNode(4),
	))

	properties.TestingRun(t)
}
