// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hyperdrive

import (
	"math/big"

	"github.com/luxfi/geth/common"

	fp "github.com/luxfi/hyperdrive/fixedpoint"
)

// OpenShort sells bonds the trader does not own into the curve. The
// trader posts the face value minus the curve proceeds as margin and
// earns the vault's variable rate on the full face until maturity.
// Returns the maturity and the margin actually charged, in the unit
// the trader paid with.
func (p *Pool) OpenShort(
	trader common.Address,
	destination common.Address,
	bondAmount *big.Int,
	maxDeposit *big.Int,
	asBase bool,
) (maturity uint64, deposit *big.Int, err error) {
	defer fp.Recover(&err, ErrArithmetic)
	if err := p.lock(); err != nil {
		return 0, nil, err
	}
	defer p.unlock()

	if !p.initialized {
		return 0, nil, ErrPoolNotInitialized
	}
	if destination == (common.Address{}) {
		return 0, nil, ErrZeroAddress
	}
	if err := p.requireMinTxn(bondAmount); err != nil {
		return 0, nil, err
	}
	if err := p.applyCheckpoints(); err != nil {
		return 0, nil, err
	}

	c := p.info.SharePrice
	c0 := p.openSharePrice(p.latestBucket())

	next := p.info.Clone()
	curve := p.curve(&next)
	spot := curve.SpotPrice()
	dz := curve.SharesOutGivenBondsIn(bondAmount)
	fees := openShortFees(p.cfg.Fees, spot, c, bondAmount)

	// The margin is the face value in shares minus what the curve
	// pays for the bonds, plus the curve fee.
	depositShares := fp.DivUp(bondAmount, c0)
	depositShares.Sub(depositShares, dz)
	depositShares.Add(depositShares, fees.total())
	if depositShares.Sign() <= 0 {
		return 0, nil, ErrInsufficientLiquidity
	}

	deposit = depositShares
	if asBase {
		deposit = fp.MulUp(depositShares, c)
	}
	if deposit.Cmp(maxDeposit) > 0 {
		return 0, nil, ErrSlippage
	}

	next.ShareReserves.Sub(next.ShareReserves, new(big.Int).Sub(dz, fees.lpShare()))
	next.BondReserves.Add(next.BondReserves, bondAmount)
	next.GovernanceFeesAccrued.Add(next.GovernanceFeesAccrued, fees.GovernanceFee)

	maturity = p.maturityFor()
	next.ShortAverageMaturityTime, next.ShortsOutstanding = updateAverageMaturity(
		next.ShortAverageMaturityTime, next.ShortsOutstanding, bondAmount, maturity, true)

	if err := p.checkSolvency(&next, c); err != nil {
		return 0, nil, err
	}

	// Mint before the vault pull so a failed deposit can be undone by
	// burning what was just minted, leaving no partial effect.
	id := EncodeAssetID(AssetShort, maturity)
	if err := p.ledger.Mint(id, destination, toU256(bondAmount)); err != nil {
		return 0, nil, err
	}
	if _, err := p.depositShares(trader, deposit, asBase); err != nil {
		_ = p.ledger.Burn(id, destination, toU256(bondAmount))
		return 0, nil, err
	}

	p.recordMaturity(AssetShort, maturity, bondAmount)
	p.info = next
	p.log.Debug("opened short",
		"trader", trader.Hex(),
		"maturity", maturity,
		"bonds", bondAmount.String(),
		"deposit", deposit.String(),
	)
	return maturity, deposit, nil
}

// CloseShort buys the bonds back before maturity, or settles the
// matured claim, paying the destination the margin plus any variable
// interest earned on the face.
func (p *Pool) CloseShort(
	trader common.Address,
	destination common.Address,
	maturity uint64,
	bondAmount *big.Int,
	minOutput *big.Int,
	asBase bool,
) (proceeds *big.Int, err error) {
	defer fp.Recover(&err, ErrArithmetic)
	if err := p.lock(); err != nil {
		return nil, err
	}
	defer p.unlock()

	if !p.initialized {
		return nil, ErrPoolNotInitialized
	}
	if destination == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	if err := p.validMaturity(maturity); err != nil {
		return nil, err
	}
	if err := p.requireMinTxn(bondAmount); err != nil {
		return nil, err
	}
	if err := p.applyCheckpoints(); err != nil {
		return nil, err
	}

	c := p.info.SharePrice
	next := p.info.Clone()
	var proceedsShares *big.Int

	if maturity <= p.now() {
		cp := p.checkpoints[p.bucketOf(maturity)]
		if cp == nil || !cp.Matured {
			return nil, ErrInvalidMaturity
		}
		owedBase := fp.MulDown(bondAmount, cp.ShortProceedsPerBond)
		proceedsShares = p.zombieRedeem(&next, owedBase, c)
	} else {
		tau := p.timeRemaining(maturity)
		curve := p.curve(&next)
		spot := curve.SpotPrice()
		c0 := p.openSharePrice(maturity - p.cfg.PositionDuration)

		curveBonds := fp.MulDown(bondAmount, tau)
		sharesCurve := new(big.Int)
		if curveBonds.Sign() > 0 {
			sharesCurve = curve.SharesInGivenBondsOut(curveBonds)
		}
		flatShares := fp.DivUp(fp.MulDown(bondAmount, new(big.Int).Sub(fp.One, tau)), c)

		fees := closeShortFees(p.cfg.Fees, spot, c, bondAmount, tau)
		payment := new(big.Int).Add(sharesCurve, flatShares)
		payment.Add(payment, fees.total())

		// The short's escrow is worth the face at the open price
		// grown by the vault since; the buyback payment comes out of
		// it and the remainder is the trader's.
		proceedsShares = fp.DivDown(bondAmount, c0)
		proceedsShares.Sub(proceedsShares, payment)
		if proceedsShares.Sign() < 0 {
			proceedsShares = new(big.Int)
		}

		next.ShareReserves.Add(next.ShareReserves, new(big.Int).Sub(payment, fees.GovernanceFee))
		next.BondReserves.Sub(next.BondReserves, curveBonds)
		if next.BondReserves.Sign() < 0 {
			return nil, ErrInsufficientLiquidity
		}
		next.GovernanceFeesAccrued.Add(next.GovernanceFeesAccrued, fees.GovernanceFee)

		next.ShortAverageMaturityTime, next.ShortsOutstanding = updateAverageMaturity(
			next.ShortAverageMaturityTime, next.ShortsOutstanding, bondAmount, maturity, false)
		p.fundWithdrawalPool(&next, c)
	}

	proceedsValue := proceedsShares
	if asBase {
		proceedsValue = fp.MulDown(proceedsShares, c)
	}
	if proceedsValue.Cmp(minOutput) < 0 {
		return nil, ErrSlippage
	}

	id := EncodeAssetID(AssetShort, maturity)
	if err := p.ledger.Burn(id, trader, toU256(bondAmount)); err != nil {
		return nil, err
	}
	proceeds, err = p.withdraw(destination, proceedsShares, asBase)
	if err != nil {
		// Undo the burn so a failed payout leaves the position intact.
		_ = p.ledger.Mint(id, trader, toU256(bondAmount))
		return nil, err
	}

	if maturity > p.now() {
		p.releaseMaturity(AssetShort, maturity, bondAmount)
	}
	p.info = next
	p.log.Debug("closed short",
		"trader", trader.Hex(),
		"maturity", maturity,
		"bonds", bondAmount.String(),
		"proceeds", proceeds.String(),
	)
	return proceeds, nil
}
