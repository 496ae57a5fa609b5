// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fixedpoint

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func wad(v int64) *big.Int { return FromInt(v) }

func TestMulRounding(t *testing.T) {
	tests := []struct {
		name     string
		a, b     *big.Int
		down, up *big.Int
	}{
		{"exact", wad(2), wad(3), wad(6), wad(6)},
		{"one wei apart", big.NewInt(1), big.NewInt(1), big.NewInt(0), big.NewInt(1)},
		{"half", wad(1), Half, Half, Half},
		{"third times three", big.NewInt(333333333333333333), wad(3), big.NewInt(999999999999999999), big.NewInt(999999999999999999)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.down.String(), MulDown(tt.a, tt.b).String())
			require.Equal(t, tt.up.String(), MulUp(tt.a, tt.b).String())
		})
	}
}

func TestDivRounding(t *testing.T) {
	// 1 / 3 truncates down; the up variant adds the last wei.
	down := DivDown(wad(1), wad(3))
	up := DivUp(wad(1), wad(3))
	require.Equal(t, big.NewInt(333333333333333333), down)
	require.Equal(t, big.NewInt(333333333333333334), up)

	// Exact division agrees in both directions.
	require.Equal(t, wad(5), DivDown(wad(10), wad(2)))
	require.Equal(t, wad(5), DivUp(wad(10), wad(2)))
}

func TestMulDiv(t *testing.T) {
	// 7 * 3 / 2 = 10.5
	tenAndHalf := new(big.Int).Add(wad(10), Half)
	require.Equal(t, tenAndHalf, MulDivDown(wad(7), wad(3), wad(2)))
	require.Equal(t, tenAndHalf, MulDivUp(wad(7), wad(3), wad(2)))

	// 1 * 1 / 3 straddles a wei.
	lo := MulDivDown(wad(1), wad(1), wad(3))
	hi := MulDivUp(wad(1), wad(1), wad(3))
	require.Equal(t, big.NewInt(1), new(big.Int).Sub(hi, lo))
}

func TestDivByZeroPanics(t *testing.T) {
	require.PanicsWithError(t, "fixedpoint: DivDown: division by zero", func() {
		DivDown(wad(1), big.NewInt(0))
	})
	require.PanicsWithError(t, "fixedpoint: MulDivUp: division by zero", func() {
		MulDivUp(wad(1), wad(1), big.NewInt(0))
	})
}

func TestNegativeOperandPanics(t *testing.T) {
	require.Panics(t, func() { MulDown(big.NewInt(-1), wad(1)) })
	require.Panics(t, func() { DivUp(wad(1), big.NewInt(-1)) })
}

func TestOverflowPanics(t *testing.T) {
	huge := new(big.Int).Lsh(big.NewInt(1), 255)
	require.Panics(t, func() { MulDown(huge, huge) })
}

func TestRecover(t *testing.T) {
	sentinel := big.NewInt(0)
	var err error
	func() {
		defer Recover(&err, errTest)
		DivDown(wad(1), sentinel)
	}()
	require.ErrorIs(t, err, errTest)

	// Non-arithmetic panics pass through untouched.
	require.Panics(t, func() {
		var err2 error
		defer Recover(&err2, errTest)
		panic("unrelated")
	})
}

var errTest = errTestType{}

type errTestType struct{}

func (errTestType) Error() string { return "arithmetic fault" }

func TestMinMaxClamp(t *testing.T) {
	require.Equal(t, wad(1), Min(wad(1), wad(2)))
	require.Equal(t, wad(2), Max(wad(1), wad(2)))
	require.Equal(t, wad(3), Clamp(wad(5), wad(1), wad(3)))
	require.Equal(t, wad(1), Clamp(wad(0), wad(1), wad(3)))
	require.Equal(t, wad(2), Clamp(wad(2), wad(1), wad(3)))

	// Results are fresh values, not aliases.
	a := wad(1)
	m := Min(a, wad(2))
	m.Add(m, One)
	require.Equal(t, wad(1), a)
}
