// SPDX-License-Identifier: MIT

package equation

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		expr string
		vars map[string]float64
		want float64
	}{
		{expr: "1 + 2 * 3", want: 7},
		{expr: "(1 + 2) * 3", want: 9},
		{expr: "7 / 2", want: 3.5},
		{expr: "2 ^ 3 ^ 2", want: 512},
		{expr: "-3 + 5", want: 2},
		{expr: "base * 1.5 ^ level", vars: map[string]float64{"base": 100, "level": 2}, want: 225},
		{expr: "100 * %level% + %level%_bonus", vars: map[string]float64{"%level%": 3, "%level%_bonus": 7}, want: 307},
		{expr: "max(cost - discount, 0)", vars: map[string]float64{"cost": 5, "discount": 8}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := Evaluate(tt.expr, tt.vars)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestEvaluate_Errors(t *testing.T) {
	_, err := Evaluate("1 / 0", nil)
	require.ErrorIs(t, err, ErrNotFinite)

	_, err = Evaluate("x / y", map[string]float64{"x": 0, "y": 0})
	require.ErrorIs(t, err, ErrNotFinite)

	_, err = Evaluate("2 * missing", nil)
	require.Error(t, err)

	_, err = Evaluate("2 * (3", nil)
	require.Error(t, err)

	_, err = Evaluate(`"text"`, nil)
	require.Error(t, err)
}

func TestCompile_Reuse(t *testing.T) {
	eq := MustCompile("price * (1 - rebate)", "rebate", "price")
	assert.Equal(t, []string{"price", "rebate"}, eq.Variables())
	assert.Equal(t, "price * (1 - rebate)", eq.String())

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := eq.Eval(map[string]float64{"price": float64(100 * i), "rebate": 0.25})
			assert.NoError(t, err)
			assert.InDelta(t, float64(75*i), got, 1e-9)
		}()
	}
	wg.Wait()

	_, err := eq.Eval(map[string]float64{"price": 1})
	require.ErrorIs(t, err, ErrUnknownVariable)

	_, err = Compile("a + 1", "not a name")
	require.Error(t, err)
}
