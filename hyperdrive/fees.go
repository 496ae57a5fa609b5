// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hyperdrive

import (
	"math/big"

	fp "github.com/luxfi/hyperdrive/fixedpoint"
)

// feeQuote is the fee breakdown of a single trade. Curve fees on
// opening a long are bond denominated; everything else is share
// denominated. Governance amounts are always share denominated and
// are included in the totals.
type feeQuote struct {
	CurveFee      *big.Int
	FlatFee       *big.Int
	GovernanceFee *big.Int
}

// openLongFees prices the curve fee for a long opened with dz shares
// at spot price p and vault share price c.
//
//	fee_bonds = ((1/p) - 1) * phi_c * c * dz
//
// The governance cut is reported both in bonds and in shares, the
// latter valued at the spot price. Returns (curve fee in bonds,
// governance fee in bonds, governance fee in shares).
func openLongFees(f FeeParams, p, c, dz *big.Int) (*big.Int, *big.Int, *big.Int) {
	// (1/p - 1) is the discount the pool quotes below par.
	discount := new(big.Int).Sub(fp.DivDown(fp.One, p), fp.One)
	curveFeeBonds := fp.MulDown(fp.MulDown(discount, f.Curve), fp.MulDown(c, dz))
	govBonds := fp.MulDown(curveFeeBonds, f.GovernanceLP)
	govShares := fp.MulDivDown(govBonds, p, c)
	return curveFeeBonds, govBonds, govShares
}

// closeLongFees prices the fees for closing dy bonds of a long with
// normalized time remaining tau at spot price p and share price c.
// All amounts are in shares.
func closeLongFees(f FeeParams, p, c, dy, tau *big.Int) feeQuote {
	return flatPlusCurveFees(f, p, c, dy, tau)
}

// openShortFees prices the curve fee for shorting dy bonds at spot
// price p and share price c. All amounts are in shares.
//
//	fee_shares = (1 - p) * phi_c * dy / c
func openShortFees(f FeeParams, p, c, dy *big.Int) feeQuote {
	spread := new(big.Int).Sub(fp.One, p)
	curve := fp.DivDown(fp.MulDown(fp.MulDown(spread, f.Curve), dy), c)
	gov := fp.MulDown(curve, f.GovernanceLP)
	return feeQuote{CurveFee: curve, FlatFee: new(big.Int), GovernanceFee: gov}
}

// closeShortFees prices the fees for closing dy bonds of a short with
// normalized time remaining tau. All amounts are in shares.
func closeShortFees(f FeeParams, p, c, dy, tau *big.Int) feeQuote {
	return flatPlusCurveFees(f, p, c, dy, tau)
}

// flatPlusCurveFees splits dy bonds into a curve portion (weight tau)
// charged the curve fee and a matured portion (weight 1-tau) charged
// the flat fee, both converted to shares at price c.
func flatPlusCurveFees(f FeeParams, p, c, dy, tau *big.Int) feeQuote {
	spread := new(big.Int).Sub(fp.One, p)
	curveBonds := fp.MulDown(dy, tau)
	curve := fp.DivDown(fp.MulDown(fp.MulDown(spread, f.Curve), curveBonds), c)

	flatBonds := fp.MulDown(dy, new(big.Int).Sub(fp.One, tau))
	flat := fp.DivDown(fp.MulDown(flatBonds, f.Flat), c)

	gov := fp.MulDown(new(big.Int).Add(curve, flat), f.GovernanceLP)
	return feeQuote{CurveFee: curve, FlatFee: flat, GovernanceFee: gov}
}

// total is the full fee charged to the trader in shares.
func (q feeQuote) total() *big.Int {
	return new(big.Int).Add(q.CurveFee, q.FlatFee)
}

// lpShare is the fee portion retained by the pool's reserves, i.e.
// the total minus the governance accrual.
func (q feeQuote) lpShare() *big.Int {
	return new(big.Int).Sub(q.total(), q.GovernanceFee)
}
