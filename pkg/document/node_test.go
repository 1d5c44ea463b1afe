// SPDX-License-Identifier: MIT

package document

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapping_DuplicateKeysKeepFirstPosition(t *testing.T) {
	n := Mapping(
		Pair{Key: "a", Value: Int(1)},
		Pair{Key: "b", Value: Int(2)},
		Pair{Key: "a", Value: Int(3)},
	)
	assert.Equal(t, []string{"a", "b"}, n.Keys())
	v, ok := n.Get("a")
	require.True(t, ok)
	got, _ := v.AsInt()
	assert.Equal(t, int64(3), got)
}

func TestNode_SetDoesNotMutateReceiver(t *testing.T) {
	orig := Mapping(Pair{Key: "volume", Value: Float(1)})
	updated := orig.Set("volume", Float(0.5)).Set("enabled", Bool(true))

	v, _ := orig.Get("volume")
	f, _ := v.AsFloat()
	assert.Equal(t, 1.0, f)
	assert.Equal(t, 1, orig.Len())
	assert.Equal(t, []string{"volume", "enabled"}, updated.Keys())
}

func TestNode_Delete(t *testing.T) {
	n := Mapping(Pair{Key: "a", Value: Int(1)}, Pair{Key: "b", Value: Int(2)})
	assert.Equal(t, []string{"b"}, n.Delete("a").Keys())
	assert.Equal(t, []string{"a", "b"}, n.Keys())
	assert.True(t, EqualOrdered(n, n.Delete("missing")))
}

func TestNode_Accessors(t *testing.T) {
	_, ok := String("x").AsInt()
	assert.False(t, ok)

	f, ok := Int(3).AsFloat()
	assert.True(t, ok)
	assert.Equal(t, 3.0, f)

	_, ok = Sequence(Int(1)).Index(1)
	assert.False(t, ok)

	assert.True(t, Node{}.IsNull())
	assert.Equal(t, 0, String("abc").Len())
}

func TestEqual(t *testing.T) {
	a := Mapping(Pair{Key: "x", Value: Int(1)}, Pair{Key: "y", Value: Int(2)})
	b := Mapping(Pair{Key: "y", Value: Int(2)}, Pair{Key: "x", Value: Int(1)})

	assert.True(t, Equal(a, b))
	assert.False(t, EqualOrdered(a, b))
	assert.False(t, Equal(Int(1), Float(1)))
	assert.True(t, Equal(Float(math.NaN()), Float(math.NaN())))
	assert.False(t, Equal(Sequence(Int(1), Int(2)), Sequence(Int(2), Int(1))))
}

func TestNode_Depth(t *testing.T) {
	assert.Equal(t, 1, Int(1).Depth())
	assert.Equal(t, 3, Sequence(Mapping(Pair{Key: "a", Value: Int(1)})).Depth())
}

func TestNode_String(t *testing.T) {
	n := Mapping(
		Pair{Key: "name", Value: String("steve")},
		Pair{Key: "scores", Value: Sequence(Int(1), Float(2))},
	)
	assert.Equal(t, `{name: "steve", scores: [1, 2.0]}`, n.String())
}
