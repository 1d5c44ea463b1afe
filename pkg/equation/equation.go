// SPDX-License-Identifier: MIT

// Package equation evaluates arithmetic formulas found in plugin configuration,
// such as price or reward curves ("base * 1.5 ^ level").
//
// Formulas support + - * / % and ^ (power, right associative), parentheses
// and the numeric builtins of expr-lang/expr (abs, ceil, floor, round, min,
// max). Unary minus binds weaker than ^, so -2 ^ 2 is -4.
package equation

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

var (
	// ErrUnknownVariable is returned when a variable has no value.
	ErrUnknownVariable = errors.New("equation: unknown variable")
	// ErrNotFinite is returned for results that are infinite or NaN, which
	// includes division by zero.
	ErrNotFinite = errors.New("equation: result is not finite")
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Equation is a compiled formula. It is safe for concurrent use.
type Equation struct {
	source  string
	vars    []string
	program *vm.Program
}

// Compile parses expression with the given variable names. Using a name that
// was not declared is a compile error.
func Compile(expression string, vars ...string) (*Equation, error) {
	env := make(map[string]any, len(vars))
	for _, name := range vars {
		if !identifier.MatchString(name) {
			return nil, fmt.Errorf("equation: invalid variable name %q", name)
		}
		env[name] = 0.0
	}
	program, err := expr.Compile(expression, expr.Env(env), expr.AsFloat64())
	if err != nil {
		return nil, fmt.Errorf("equation: compile %q: %w", expression, err)
	}
	sorted := append([]string(nil), vars...)
	sort.Strings(sorted)
	return &Equation{source: expression, vars: sorted, program: program}, nil
}

// MustCompile is Compile for formulas known to be valid.
func MustCompile(expression string, vars ...string) *Equation {
	eq, err := Compile(expression, vars...)
	if err != nil {
		panic(err)
	}
	return eq
}

// String returns the source formula.
func (e *Equation) String() string { return e.source }

// Variables returns the declared variable names, sorted.
func (e *Equation) Variables() []string { return append([]string(nil), e.vars...) }

// Eval computes the formula. Every declared variable needs a value.
func (e *Equation) Eval(vars map[string]float64) (float64, error) {
	env := make(map[string]any, len(e.vars))
	for _, name := range e.vars {
		v, ok := vars[name]
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrUnknownVariable, name)
		}
		env[name] = v
	}
	out, err := expr.Run(e.program, env)
	if err != nil {
		return 0, fmt.Errorf("equation: eval %q: %w", e.source, err)
	}
	f, ok := out.(float64)
	if !ok {
		return 0, fmt.Errorf("equation: eval %q: unexpected result type %T", e.source, out)
	}
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("%w: %q", ErrNotFinite, e.source)
	}
	return f, nil
}

// Evaluate compiles and evaluates expression once. Keys of vars that are
// identifiers become variables; other keys, such as "%level%", are
// placeholders replaced by their value in the text before compiling.
func Evaluate(expression string, vars map[string]float64) (float64, error) {
	var names []string
	values := make(map[string]float64, len(vars))

	// Longest placeholders first so "%lvl%" never clobbers "%lvl%_max%".
	placeholders := make([]string, 0, len(vars))
	for k, v := range vars {
		if identifier.MatchString(k) {
			names = append(names, k)
			values[k] = v
			continue
		}
		placeholders = append(placeholders, k)
	}
	sort.Slice(placeholders, func(i, j int) bool {
		if len(placeholders[i]) != len(placeholders[j]) {
			return len(placeholders[i]) > len(placeholders[j])
		}
		return placeholders[i] < placeholders[j]
	})
	for _, k := range placeholders {
		if k == "" {
			continue
		}
		expression = strings.ReplaceAll(expression, k, "("+strconv.FormatFloat(vars[k], 'g', -1, 64)+")")
	}

	eq, err := Compile(expression, names...)
	if err != nil {
		return 0, err
	}
	return eq.Eval(values)
}
