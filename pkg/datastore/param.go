// SPDX-License-Identifier: MIT

package datastore

import (
	"database/sql/driver"
	"fmt"

	"github.com/tidwall/pretty"

	"github.com/ManuGH/skylib/pkg/codec"
	"github.com/ManuGH/skylib/pkg/document"
)

// Param is one statement parameter in its document form. Build it with Arg.
type Param struct {
	node document.Node
}

// Arg encodes v with the codec registered for T.
func Arg[T any](r *codec.Registry, v T) (Param, error) {
	n, err := codec.Encode(r, v)
	if err != nil {
		return Param{}, err
	}
	return Param{node: n}, nil
}

// MustArg is Arg for values whose codec is known to be registered.
func MustArg[T any](r *codec.Registry, v T) Param {
	p, err := Arg(r, v)
	if err != nil {
		panic(err)
	}
	return p
}

// NodeArg wraps an already encoded node.
func NodeArg(n document.Node) Param { return Param{node: n} }

// Node returns the encoded parameter.
func (p Param) Node() document.Node { return p.node }

// Value maps the parameter to a database/sql driver value. Scalars map to
// their Go counterparts; sequences and mappings are stored as compact JSON text.
func (p Param) Value() (driver.Value, error) {
	n := p.node
	switch n.Kind() {
	case document.KindNull:
		return nil, nil
	case document.KindBool:
		v, _ := n.AsBool()
		return v, nil
	case document.KindInt:
		v, _ := n.AsInt()
		return v, nil
	case document.KindFloat:
		v, _ := n.AsFloat()
		return v, nil
	case document.KindString:
		v, _ := n.AsString()
		return v, nil
	default:
		data, err := document.Serialize(n, document.JSON)
		if err != nil {
			return nil, fmt.Errorf("datastore: parameter: %w", err)
		}
		return string(pretty.Ugly(data)), nil
	}
}

var _ driver.Valuer = Param{}

// Statement is a parameterized SQL statement that does not return rows.
type Statement struct {
	SQL  string
	Args []Param
}

// NewStatement returns a statement with positional args.
func NewStatement(sql string, args ...Param) Statement {
	return Statement{SQL: sql, Args: args}
}

func (s Statement) args() []any {
	out := make([]any, len(s.Args))
	for i, a := range s.Args {
		out[i] = a
	}
	return out
}

// TypedQuery is a parameterized SQL query whose rows decode into T. A row with
// one column decodes from the column value, wider rows from a mapping keyed by
// column name.
type TypedQuery[T any] struct {
	SQL   string
	Args  []Param
	Codec codec.Codec[T]
}

// NewQuery returns a query decoding rows with c.
func NewQuery[T any](sql string, c codec.Codec[T], args ...Param) TypedQuery[T] {
	return TypedQuery[T]{SQL: sql, Args: args, Codec: c}
}

func (q TypedQuery[T]) statement() Statement { return Statement{SQL: q.SQL, Args: q.Args} }
