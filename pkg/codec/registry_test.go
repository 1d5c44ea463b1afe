// SPDX-License-Identifier: MIT

package codec

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/skylib/pkg/document"
	"github.com/ManuGH/skylib/pkg/tag"
)

func TestRegister_Duplicate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, Register(r, Int))

	err := Register(r, Int)
	var dup *DuplicateCodecError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "int", dup.Type)

	assert.Panics(t, func() { MustRegister(r, Int) })
}

func TestLookup_Unknown(t *testing.T) {
	r := NewRegistry()
	_, err := Lookup[time.Duration](r)
	var unknown *UnknownTypeError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "time.Duration", unknown.Type)

	_, err = Decode[int](r, document.Int(1))
	assert.True(t, errors.As(err, &unknown))

	_, err = r.DecodeAny("nope", document.Null())
	assert.True(t, errors.As(err, &unknown))
}

func TestWithBuiltins(t *testing.T) {
	r := NewRegistry(WithBuiltins())
	for _, name := range []string{"bool", "int", "int32", "int64", "float64", "string", "[]uint8", "time.Duration", "time.Time", "uuid.UUID", "[]string", "map[string]string"} {
		assert.True(t, r.Has(name), name)
	}
	assert.Contains(t, r.TypeNames(), "time.Duration")
	assert.Equal(t, "time.Duration", TypeNameOf[time.Duration]())
}

func TestRegistry_DecodeAnyEncodeAny(t *testing.T) {
	r := NewRegistry(WithBuiltins())

	v, err := r.DecodeAny(TypeNameOf[time.Duration](), document.String("1d2h"))
	require.NoError(t, err)
	assert.Equal(t, 26*time.Hour, v)

	n, err := r.EncodeAny(90 * time.Second)
	require.NoError(t, err)
	s, _ := n.AsString()
	assert.Equal(t, "1m30s", s)

	n, err = r.EncodeAny(nil)
	require.NoError(t, err)
	assert.True(t, n.IsNull())

	_, err = r.EncodeAny(struct{}{})
	var unknown *UnknownTypeError
	assert.True(t, errors.As(err, &unknown))
}

func TestEncodeDecodeTag(t *testing.T) {
	r := NewRegistry(WithBuiltins())
	id := uuid.MustParse("1b4e28ba-2fa1-11d2-883f-0016d3cca427")

	data, err := EncodeTag(r, id)
	require.NoError(t, err)
	back, err := DecodeTag[uuid.UUID](r, data)
	require.NoError(t, err)
	assert.Equal(t, id, back)

	_, err = DecodeTag[uuid.UUID](r, []byte{0xFF})
	var corrupt *tag.CorruptError
	assert.True(t, errors.As(err, &corrupt))

	intData, err := EncodeTag(r, 42)
	require.NoError(t, err)
	_, err = DecodeTag[uuid.UUID](r, intData)
	var de *DecodeError
	assert.True(t, errors.As(err, &de))
}

type gameMode string

const (
	survival  gameMode = "survival"
	adventure gameMode = "adventure"
)

type player struct {
	Name  string
	Score int
	Mode  gameMode
	Homes []string
}

var playerCodec = Record(
	Field("name", String, func(p player) string { return p.Name }, func(p *player, v string) { p.Name = v }),
	FieldWithDefault("score", Int, 0, func(p player) int { return p.Score }, func(p *player, v int) { p.Score = v }),
	FieldWithDefault("mode", Enum(survival, adventure), survival, func(p player) gameMode { return p.Mode }, func(p *player, v gameMode) { p.Mode = v }),
	FieldWithDefault("homes", List(String), nil, func(p player) []string { return p.Homes }, func(p *player, v []string) { p.Homes = v }),
)

func TestRecord_RoundTrip(t *testing.T) {
	r := NewRegistry(WithBuiltins())
	require.NoError(t, Register(r, playerCodec))
	require.NoError(t, Register(r, List(playerCodec)))

	in := []player{
		{Name: "alex", Score: 3, Mode: adventure, Homes: []string{"base"}},
		{Name: "sam", Score: 9, Mode: survival, Homes: []string{}},
	}
	n, err := Encode(r, in)
	require.NoError(t, err)
	assert.Equal(t, `[{name: "alex", score: 3, mode: "adventure", homes: ["base"]}, {name: "sam", score: 9, mode: "survival", homes: []}]`, n.String())

	out, err := Decode[[]player](r, n)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	data, err := EncodeTag(r, in)
	require.NoError(t, err)
	out, err = DecodeTag[[]player](r, data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestRecord_DefaultsAndErrors(t *testing.T) {
	p, err := playerCodec.Decode(document.Mapping(
		document.Pair{Key: "name", Value: document.String("kai")},
		document.Pair{Key: "unknown", Value: document.Int(1)},
	))
	require.NoError(t, err)
	assert.Equal(t, player{Name: "kai", Mode: survival}, p)

	_, err = playerCodec.Decode(document.Mapping())
	var de *DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "$.name", de.Path.Display())

	players := document.Mapping(document.Pair{Key: "players", Value: document.Sequence(
		document.Mapping(document.Pair{Key: "name", Value: document.String("a")}),
		document.Mapping(document.Pair{Key: "name", Value: document.String("b")}),
		document.Mapping(document.Pair{Key: "name", Value: document.Sequence()}),
	)})
	type roster struct{ Players []player }
	rosterCodec := Record(Field("players", List(playerCodec), func(r roster) []player { return r.Players }, func(r *roster, v []player) { r.Players = v }))

	_, err = rosterCodec.Decode(players)
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "$.players[2].name", de.Path.Display())
	assert.Equal(t, "string", de.Expected)
	assert.Equal(t, "sequence", de.Got)
	assert.Contains(t, err.Error(), "$.players[2].name")

	_, err = playerCodec.Decode(document.Mapping(
		document.Pair{Key: "name", Value: document.String("x")},
		document.Pair{Key: "mode", Value: document.String("creative")},
	))
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "$.mode", de.Path.Display())
}

func TestEnum(t *testing.T) {
	c := Enum(survival, adventure)
	v, err := c.Decode(document.String("ADVENTURE"))
	require.NoError(t, err)
	assert.Equal(t, adventure, v)

	_, err = c.Encode(gameMode("hardcore"))
	var ee *EncodeError
	assert.True(t, errors.As(err, &ee))
}

func TestOptionalAndMap(t *testing.T) {
	opt := Optional(Int)
	n, err := opt.Encode(nil)
	require.NoError(t, err)
	assert.True(t, n.IsNull())

	v, err := opt.Decode(document.Int(5))
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, 5, *v)

	nested := Optional(Optional(Int))
	var inner *int
	_, err = nested.Encode(&inner)
	var ee *EncodeError
	require.ErrorAs(t, err, &ee)
	five := 5
	inner = &five
	n, err = nested.Encode(&inner)
	require.NoError(t, err)
	back, err := nested.Decode(n)
	require.NoError(t, err)
	require.NotNil(t, back)
	require.NotNil(t, *back)
	assert.Equal(t, 5, **back)

	m := Map(Float64)
	n, err = m.Encode(map[string]float64{"b": 2, "a": 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, n.Keys())

	_, err = m.Decode(document.Mapping(document.Pair{Key: "x", Value: document.String("nan?")}))
	var de *DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "$.x", de.Path.Display())
}
