// SPDX-License-Identifier: MIT

package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge_DefaultsAndOverride(t *testing.T) {
	defaults := Mapping(
		Pair{Key: "volume", Value: Float(1.0)},
		Pair{Key: "enabled", Value: Bool(true)},
	)
	file := Mapping(Pair{Key: "volume", Value: Float(0.5)})

	got, err := Merge(defaults, file)
	require.NoError(t, err)
	assert.Equal(t, "{volume: 0.5, enabled: true}", got.String())
}

func TestMerge_Rules(t *testing.T) {
	tests := []struct {
		name     string
		base     Node
		override Node
		want     string
	}{
		{
			name:     "nested mappings merge",
			base:     Mapping(Pair{Key: "db", Value: Mapping(Pair{Key: "host", Value: String("a")}, Pair{Key: "port", Value: Int(1)})}),
			override: Mapping(Pair{Key: "db", Value: Mapping(Pair{Key: "port", Value: Int(2)})}),
			want:     `{db: {host: "a", port: 2}}`,
		},
		{
			name:     "sequences replace whole",
			base:     Mapping(Pair{Key: "worlds", Value: Sequence(String("a"), String("b"))}),
			override: Mapping(Pair{Key: "worlds", Value: Sequence(String("c"))}),
			want:     `{worlds: ["c"]}`,
		},
		{
			name:     "override only keys appended",
			base:     Mapping(Pair{Key: "b", Value: Int(1)}),
			override: Mapping(Pair{Key: "z", Value: Int(2)}, Pair{Key: "a", Value: Int(3)}),
			want:     `{b: 1, z: 2, a: 3}`,
		},
		{
			name:     "scalar replaces mapping",
			base:     Mapping(Pair{Key: "x", Value: Mapping(Pair{Key: "y", Value: Int(1)})}),
			override: Mapping(Pair{Key: "x", Value: Int(5)}),
			want:     `{x: 5}`,
		},
		{
			name:     "non mapping override replaces root",
			base:     Mapping(Pair{Key: "x", Value: Int(1)}),
			override: Sequence(Int(1)),
			want:     `[1]`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Merge(tt.base, tt.override)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestMergeAll(t *testing.T) {
	got, err := MergeAll(
		Mapping(Pair{Key: "a", Value: Int(1)}, Pair{Key: "b", Value: Int(1)}),
		Mapping(Pair{Key: "b", Value: Int(2)}),
		Mapping(Pair{Key: "c", Value: Int(3)}),
	)
	require.NoError(t, err)
	assert.Equal(t, "{a: 1, b: 2, c: 3}", got.String())

	empty, err := MergeAll()
	require.NoError(t, err)
	assert.True(t, empty.IsNull())
}

func TestMerge_DepthExceeded(t *testing.T) {
	deep := Int(1)
	for i := 0; i < DefaultMaxDepth; i++ {
		deep = Mapping(Pair{Key: "k", Value: deep})
	}
	_, err := Merge(Mapping(), deep)
	assert.ErrorIs(t, err, ErrDepthExceeded)
}

func TestMerge_DepthCheckedWhileMerging(t *testing.T) {
	nest := func(levels int) Node {
		n := Int(1)
		for i := 1; i < levels; i++ {
			n = Mapping(Pair{Key: "k", Value: n})
		}
		return n
	}

	atLimit := nest(DefaultMaxDepth)
	got, err := Merge(Mapping(), atLimit)
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxDepth, got.Depth())

	for _, tt := range []struct {
		name           string
		base, override Node
	}{
		{name: "deep base key", base: Mapping(Pair{Key: "a", Value: nest(100000)}), override: Mapping()},
		{name: "deep override key", base: Mapping(), override: Mapping(Pair{Key: "a", Value: nest(100000)})},
		{name: "deep merged path", base: nest(DefaultMaxDepth), override: nest(DefaultMaxDepth + 1)},
		{name: "deep replacement", base: Int(1), override: nest(DefaultMaxDepth + 1)},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Merge(tt.base, tt.override)
			assert.ErrorIs(t, err, ErrDepthExceeded)
		})
	}
}
