// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package fixedpoint implements 18-decimal fixed-point arithmetic on
// big.Int values with explicit rounding directions. Callers pick the
// direction that is conservative for the party bearing rounding risk:
// amounts owed to the pool round up, amounts paid out round down.
//
// All values are "WAD" scaled: 1.0 == 1e18. Inputs to the unsigned
// helpers must be non-negative and results must fit in 256 bits;
// violations raise an *ArithError panic which the pool engine recovers
// at its entry-point boundary.
package fixedpoint

import (
	"fmt"
	"math/big"
)

// Decimals is the fixed-point scale.
const Decimals = 18

var (
	// One is 1.0 in WAD (1e18).
	One = big.NewInt(1e18)

	// Two is 2.0 in WAD.
	Two = big.NewInt(2e18)

	// Half is 0.5 in WAD.
	Half = big.NewInt(5e17)

	// SecondsPerYear converts annualized rates to per-second terms.
	SecondsPerYear = big.NewInt(31_536_000)

	maxU256 = new(big.Int).Lsh(big.NewInt(1), 256)
)

// ArithError is raised on the fatal arithmetic faults of the fixed
// point layer: division by zero, negative operands to unsigned
// operations, and results outside the 256-bit range. It is always a
// caller bug: a missing precondition check upstream.
type ArithError struct {
	Op     string
	Detail string
}

func (e *ArithError) Error() string {
	return fmt.Sprintf("fixedpoint: %s: %s", e.Op, e.Detail)
}

func fault(op, detail string) {
	panic(&ArithError{Op: op, Detail: detail})
}

func checkOperands(op string, xs ...*big.Int) {
	for _, x := range xs {
		if x == nil {
			fault(op, "nil operand")
		}
		if x.Sign() < 0 {
			fault(op, "negative operand")
		}
	}
}

func checkRange(op string, x *big.Int) *big.Int {
	if x.CmpAbs(maxU256) >= 0 {
		fault(op, "result exceeds 256 bits")
	}
	return x
}

// FromInt returns v scaled to WAD (FromInt(10) == 10e18).
func FromInt(v int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(v), One)
}

// MulDown returns a*b/1e18 rounded toward zero.
func MulDown(a, b *big.Int) *big.Int {
	checkOperands("MulDown", a, b)
	r := new(big.Int).Mul(a, b)
	r.Quo(r, One)
	return checkRange("MulDown", r)
}

// MulUp returns a*b/1e18 rounded away from zero.
func MulUp(a, b *big.Int) *big.Int {
	checkOperands("MulUp", a, b)
	r := new(big.Int).Mul(a, b)
	return checkRange("MulUp", divCeil(r, One))
}

// DivDown returns a*1e18/b rounded toward zero.
func DivDown(a, b *big.Int) *big.Int {
	checkOperands("DivDown", a, b)
	if b.Sign() == 0 {
		fault("DivDown", "division by zero")
	}
	r := new(big.Int).Mul(a, One)
	r.Quo(r, b)
	return checkRange("DivDown", r)
}

// DivUp returns a*1e18/b rounded away from zero.
func DivUp(a, b *big.Int) *big.Int {
	checkOperands("DivUp", a, b)
	if b.Sign() == 0 {
		fault("DivUp", "division by zero")
	}
	r := new(big.Int).Mul(a, One)
	return checkRange("DivUp", divCeil(r, b))
}

// MulDivDown returns a*b/d rounded toward zero.
func MulDivDown(a, b, d *big.Int) *big.Int {
	checkOperands("MulDivDown", a, b, d)
	if d.Sign() == 0 {
		fault("MulDivDown", "division by zero")
	}
	r := new(big.Int).Mul(a, b)
	r.Quo(r, d)
	return checkRange("MulDivDown", r)
}

// MulDivUp returns a*b/d rounded away from zero.
func MulDivUp(a, b, d *big.Int) *big.Int {
	checkOperands("MulDivUp", a, b, d)
	if d.Sign() == 0 {
		fault("MulDivUp", "division by zero")
	}
	r := new(big.Int).Mul(a, b)
	return checkRange("MulDivUp", divCeil(r, d))
}

// Min returns the smaller of a and b as a fresh value.
func Min(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// Max returns the larger of a and b as a fresh value.
func Max(a, b *big.Int) *big.Int {
	if a.Cmp(b) >= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// Clamp limits x to [lo, hi].
func Clamp(x, lo, hi *big.Int) *big.Int {
	if x.Cmp(lo) < 0 {
		return new(big.Int).Set(lo)
	}
	if x.Cmp(hi) > 0 {
		return new(big.Int).Set(hi)
	}
	return new(big.Int).Set(x)
}

// divCeil divides non-negative a by positive b rounding up.
func divCeil(a, b *big.Int) *big.Int {
	q, m := new(big.Int).QuoRem(a, b, new(big.Int))
	if m.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

// Recover translates an *ArithError panic into an error assigned to
// *errp, re-raising anything else. Entry points defer it so that a
// fault inside a quote aborts the whole action with state untouched.
func Recover(errp *error, wrap error) {
	if r := recover(); r != nil {
		ae, ok := r.(*ArithError)
		if !ok {
			panic(r)
		}
		*errp = fmt.Errorf("%w: %s", wrap, ae.Error())
	}
}
