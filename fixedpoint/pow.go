// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fixedpoint

import "math/big"

// The fractional power function is computed in binary fixed point with
// 128 fractional bits: Pow(x, y) = Exp2(y * Log2(x)). Log2 uses the
// classic iterated-squaring bit extraction and Exp2 multiplies over a
// chain of iterated square roots of two, so the pipeline needs no
// precomputed decimal constants. The Q128 intermediate keeps the
// round-trip error below one wei for the magnitudes the bonding curve
// produces.

var (
	oneQ128 = new(big.Int).Lsh(big.NewInt(1), 128)
	twoQ128 = new(big.Int).Lsh(big.NewInt(1), 129)

	// sqrtChain[i] = 2^(2^-(i+1)) in Q128, built by repeated
	// integer square roots at package init.
	sqrtChain [128]*big.Int
)

func init() {
	t := new(big.Int).Set(twoQ128)
	for i := range sqrtChain {
		t = new(big.Int).Sqrt(new(big.Int).Lsh(t, 128))
		sqrtChain[i] = t
	}
}

func toQ128(wad *big.Int) *big.Int {
	q := new(big.Int).Lsh(wad, 128)
	return q.Quo(q, One)
}

func fromQ128(q *big.Int) *big.Int {
	r := new(big.Int).Mul(q, One)
	return r.Rsh(r, 128)
}

// log2Q128 returns log2 of a positive Q128 value as a signed Q128.
func log2Q128(x *big.Int) *big.Int {
	if x.Sign() <= 0 {
		fault("Log2", "non-positive argument")
	}
	n := x.BitLen() - 129
	y := new(big.Int)
	if n >= 0 {
		y.Rsh(x, uint(n))
	} else {
		y.Lsh(x, uint(-n))
	}

	r := new(big.Int).Mul(big.NewInt(int64(n)), oneQ128)
	bit := new(big.Int).Rsh(oneQ128, 1)
	for bit.Sign() != 0 {
		y.Mul(y, y)
		y.Rsh(y, 128)
		if y.Cmp(twoQ128) >= 0 {
			r.Add(r, bit)
			y.Rsh(y, 1)
		}
		bit = new(big.Int).Rsh(bit, 1)
	}
	return r
}

// exp2Q128 returns 2^x for a signed Q128 exponent, as a Q128 value.
func exp2Q128(x *big.Int) *big.Int {
	if x.Sign() < 0 {
		// 2^-a = 1 / 2^a, and ONE^2 in Q128 is 2^256.
		p := exp2Pos(new(big.Int).Neg(x))
		return new(big.Int).Quo(maxU256, p)
	}
	return exp2Pos(x)
}

func exp2Pos(x *big.Int) *big.Int {
	n := new(big.Int).Rsh(x, 128)
	if n.Cmp(big.NewInt(127)) > 0 {
		fault("Exp2", "exponent too large")
	}
	shift := uint(n.Uint64())
	f := new(big.Int).Sub(x, new(big.Int).Lsh(n, 128))

	r := new(big.Int).Set(oneQ128)
	for i := 0; i < 128; i++ {
		if f.Bit(127-i) == 1 {
			r.Mul(r, sqrtChain[i])
			r.Rsh(r, 128)
		}
	}
	r.Lsh(r, shift)
	return checkRange("Exp2", r)
}

// Pow computes x^y for WAD-scaled x >= 0 and y >= 0. Pow(x, 0) is one
// for any x and Pow(0, y) is zero for y > 0. The result rounds toward
// zero at the final conversion.
func Pow(x, y *big.Int) *big.Int {
	checkOperands("Pow", x, y)
	if y.Sign() == 0 {
		return new(big.Int).Set(One)
	}
	if x.Sign() == 0 {
		return new(big.Int)
	}
	lx := log2Q128(toQ128(x))
	e := new(big.Int).Mul(lx, y)
	e.Quo(e, One)
	return checkRange("Pow", fromQ128(exp2Q128(e)))
}

// Log2 returns log2(x) for WAD-scaled x > 0 as a signed WAD value.
func Log2(x *big.Int) *big.Int {
	checkOperands("Log2", x)
	q := log2Q128(toQ128(x))
	neg := q.Sign() < 0
	if neg {
		q.Neg(q)
	}
	r := fromQ128(q)
	if neg {
		r.Neg(r)
	}
	return r
}

// Exp2 returns 2^x for a signed WAD exponent as a WAD value.
func Exp2(x *big.Int) *big.Int {
	if x == nil {
		fault("Exp2", "nil operand")
	}
	q := new(big.Int).Lsh(new(big.Int).Abs(x), 128)
	q.Quo(q, One)
	if x.Sign() < 0 {
		q.Neg(q)
	}
	return fromQ128(exp2Q128(q))
}
