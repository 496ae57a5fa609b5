// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package yieldspace

import (
	"math/big"

	"github.com/luxfi/hyperdrive/fixedpoint"
)

// AnnualizedDuration converts a position duration in seconds to a WAD
// fraction of a year.
func AnnualizedDuration(positionDuration uint64) *big.Int {
	return fixedpoint.DivDown(
		new(big.Int).SetUint64(positionDuration),
		fixedpoint.SecondsPerYear,
	)
}

// APRFromReserves derives the annualized fixed rate implied by the
// reserves: r = (1 - p) / (p · t) for spot price p and annualized
// duration t. A pool priced above par quotes a zero rate rather than
// a negative one.
func (c Curve) APRFromReserves(positionDuration uint64) *big.Int {
	p := c.SpotPrice()
	if p.Cmp(fixedpoint.One) >= 0 {
		return new(big.Int)
	}
	num := new(big.Int).Sub(fixedpoint.One, p)
	denom := fixedpoint.MulUp(p, AnnualizedDuration(positionDuration))
	return fixedpoint.DivDown(num, denom)
}

// InitialBondReserves computes the bond reserves that pair with the
// share reserves to quote the target APR on a fresh pool. From the
// spot price identity p = (µz/y)^t and the rate identity
// p = 1/(1 + r·d), the bond reserves are y = µz · (1 + r·d)^(1/t).
func (c Curve) InitialBondReserves(apr *big.Int, positionDuration uint64) *big.Int {
	d := AnnualizedDuration(positionDuration)
	growth := new(big.Int).Add(fixedpoint.One, fixedpoint.MulDown(apr, d))
	scaled := fixedpoint.Pow(growth, fixedpoint.DivDown(fixedpoint.One, c.TimeStretch))
	return fixedpoint.MulDown(
		fixedpoint.MulDown(c.InitialSharePrice, c.ShareReserves),
		scaled,
	)
}

// ReservesGivenRate returns the reserve levels that would quote the
// target rate while preserving the invariant, ignoring solvency. Used
// as the first guess when targeting a rate with a long.
func (c Curve) ReservesGivenRate(targetRate *big.Int, positionDuration uint64) (shareReserves, bondReserves *big.Int) {
	te := c.timeElapsed()
	d := AnnualizedDuration(positionDuration)

	// s = (r·d + 1)^(1/t)
	scaledRate := fixedpoint.Pow(
		new(big.Int).Add(fixedpoint.MulUp(targetRate, d), fixedpoint.One),
		fixedpoint.DivDown(fixedpoint.One, c.TimeStretch),
	)

	// inner = (k / (c/µ + s^(1-t)))^(1/(1-t)); z = inner/µ, y = inner·s.
	denom := new(big.Int).Add(c.cOverMuUp(), fixedpoint.Pow(scaledRate, te))
	inner := fixedpoint.Pow(
		fixedpoint.DivDown(c.KDown(), denom),
		fixedpoint.DivDown(fixedpoint.One, te),
	)
	shareReserves = fixedpoint.DivDown(inner, c.InitialSharePrice)
	bondReserves = fixedpoint.MulDown(inner, scaledRate)
	return shareReserves, bondReserves
}
