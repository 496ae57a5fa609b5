// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package yieldspace implements the constant-power bonding curve that
// prices bond/share trades:
//
//	k = (c/µ)·(µz)^(1-t) + y^(1-t)
//
// where z is the share reserves, y the bond reserves, c the current
// vault share price, µ the share price at pool creation, and t the
// time-stretch exponent. Every function here is a pure computation
// over a reserve snapshot; callers own all state.
//
// Rounding is chosen per trade direction so that the pool never loses
// a wei to rounding: amounts leaving the reserves round down, amounts
// entering round up.
package yieldspace

import (
	"math/big"

	"github.com/luxfi/hyperdrive/fixedpoint"
)

// Curve is a snapshot of the reserve state the bonding curve prices
// against. All fields are WAD scaled and must be positive, except
// BondReserves which may be zero before initialization.
type Curve struct {
	ShareReserves     *big.Int // z
	BondReserves      *big.Int // y
	SharePrice        *big.Int // c
	InitialSharePrice *big.Int // µ
	TimeStretch       *big.Int // t, in (0, 1)
}

// timeElapsed returns 1 - t, the curve exponent.
func (c Curve) timeElapsed() *big.Int {
	return new(big.Int).Sub(fixedpoint.One, c.TimeStretch)
}

func (c Curve) cOverMuDown() *big.Int {
	return fixedpoint.DivDown(c.SharePrice, c.InitialSharePrice)
}

func (c Curve) cOverMuUp() *big.Int {
	return fixedpoint.DivUp(c.SharePrice, c.InitialSharePrice)
}

// KDown computes the invariant rounding down.
func (c Curve) KDown() *big.Int {
	te := c.timeElapsed()
	shareTerm := fixedpoint.MulDown(
		c.cOverMuDown(),
		fixedpoint.Pow(fixedpoint.MulDown(c.InitialSharePrice, c.ShareReserves), te),
	)
	bondTerm := fixedpoint.Pow(c.BondReserves, te)
	return new(big.Int).Add(shareTerm, bondTerm)
}

// KUp computes the invariant rounding up.
func (c Curve) KUp() *big.Int {
	te := c.timeElapsed()
	shareTerm := fixedpoint.MulUp(
		c.cOverMuUp(),
		fixedpoint.Pow(fixedpoint.MulUp(c.InitialSharePrice, c.ShareReserves), te),
	)
	bondTerm := fixedpoint.Pow(c.BondReserves, te)
	return new(big.Int).Add(shareTerm, bondTerm)
}

// SpotPrice returns the price of one bond in base, (µz/y)^t. The
// price is at most one for any solvent pool (y >= µz).
func (c Curve) SpotPrice() *big.Int {
	ratio := fixedpoint.DivDown(
		fixedpoint.MulDown(c.InitialSharePrice, c.ShareReserves),
		c.BondReserves,
	)
	return fixedpoint.Pow(ratio, c.TimeStretch)
}

// BondsOutGivenSharesIn prices a purchase of bonds with dz shares
// (the open-long direction). The bonds out round down.
func (c Curve) BondsOutGivenSharesIn(dz *big.Int) *big.Int {
	te := c.timeElapsed()
	k := c.KDown()

	newZ := new(big.Int).Add(c.ShareReserves, dz)
	shareTerm := fixedpoint.MulDown(
		c.cOverMuDown(),
		fixedpoint.Pow(fixedpoint.MulDown(c.InitialSharePrice, newZ), te),
	)
	inner := new(big.Int).Sub(k, shareTerm)
	if inner.Sign() < 0 {
		inner.SetInt64(0)
	}
	newY := fixedpoint.Pow(inner, fixedpoint.DivUp(fixedpoint.One, te))
	out := new(big.Int).Sub(c.BondReserves, newY)
	if out.Sign() < 0 {
		out.SetInt64(0)
	}
	return out
}

// SharesOutGivenBondsIn prices a sale of dy bonds into the pool (the
// open-short and close-long direction). The shares out round down.
func (c Curve) SharesOutGivenBondsIn(dy *big.Int) *big.Int {
	te := c.timeElapsed()
	k := c.KUp()

	newY := new(big.Int).Add(c.BondReserves, dy)
	inner := new(big.Int).Sub(k, fixedpoint.Pow(newY, te))
	if inner.Sign() < 0 {
		inner.SetInt64(0)
	}
	inner = fixedpoint.DivUp(inner, c.cOverMuDown())
	newZ := fixedpoint.DivUp(
		fixedpoint.Pow(inner, fixedpoint.DivUp(fixedpoint.One, te)),
		c.InitialSharePrice,
	)
	out := new(big.Int).Sub(c.ShareReserves, newZ)
	if out.Sign() < 0 {
		out.SetInt64(0)
	}
	return out
}

// BondsInGivenSharesOut prices a sale of bonds large enough to draw
// dz shares out of the pool. The bonds in round up.
func (c Curve) BondsInGivenSharesOut(dz *big.Int) *big.Int {
	te := c.timeElapsed()
	k := c.KUp()

	newZ := new(big.Int).Sub(c.ShareReserves, dz)
	if newZ.Sign() <= 0 {
		newZ.SetInt64(1)
	}
	shareTerm := fixedpoint.MulDown(
		c.cOverMuDown(),
		fixedpoint.Pow(fixedpoint.MulDown(c.InitialSharePrice, newZ), te),
	)
	inner := new(big.Int).Sub(k, shareTerm)
	if inner.Sign() < 0 {
		inner.SetInt64(0)
	}
	newY := fixedpoint.Pow(inner, fixedpoint.DivUp(fixedpoint.One, te))
	in := new(big.Int).Sub(newY, c.BondReserves)
	if in.Sign() < 0 {
		in.SetInt64(0)
	}
	return in
}

// SharesInGivenBondsOut prices a purchase of dy bonds out of the pool
// (the close-short direction). The shares in round up.
func (c Curve) SharesInGivenBondsOut(dy *big.Int) *big.Int {
	te := c.timeElapsed()
	k := c.KUp()

	newY := new(big.Int).Sub(c.BondReserves, dy)
	if newY.Sign() <= 0 {
		// The curve cannot source more bonds than its reserves.
		newY.SetInt64(1)
	}
	inner := new(big.Int).Sub(k, fixedpoint.Pow(newY, te))
	inner = fixedpoint.DivUp(inner, c.cOverMuDown())
	newZ := fixedpoint.DivUp(
		fixedpoint.Pow(inner, fixedpoint.DivUp(fixedpoint.One, te)),
		c.InitialSharePrice,
	)
	in := new(big.Int).Sub(newZ, c.ShareReserves)
	if in.Sign() < 0 {
		in.SetInt64(0)
	}
	return in
}

// MaxBondsOut returns the trade that exhausts the curve: the bond
// amount that moves the spot price to one (µz == y). Buying more than
// this would push the fixed rate negative.
func (c Curve) MaxBondsOut() *big.Int {
	te := c.timeElapsed()
	k := c.KDown()

	// At the optimum both reserve terms are equal: y* = µz*, so
	// k = (c/µ + 1)·(y*)^(1-t).
	denom := new(big.Int).Add(c.cOverMuUp(), fixedpoint.One)
	optimalY := fixedpoint.Pow(
		fixedpoint.DivDown(k, denom),
		fixedpoint.DivDown(fixedpoint.One, te),
	)
	out := new(big.Int).Sub(c.BondReserves, optimalY)
	if out.Sign() < 0 {
		out.SetInt64(0)
	}
	return out
}

// After returns the snapshot shifted by the given signed reserve
// deltas. It never mutates the receiver.
func (c Curve) After(shareDelta, bondDelta *big.Int) Curve {
	next := c
	next.ShareReserves = new(big.Int).Add(c.ShareReserves, shareDelta)
	next.BondReserves = new(big.Int).Add(c.BondReserves, bondDelta)
	return next
}
