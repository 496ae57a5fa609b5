// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hyperdrive

import (
	"math/big"

	"github.com/luxfi/geth/common"

	fp "github.com/luxfi/hyperdrive/fixedpoint"
)

// OpenLong deposits base or vault shares and buys bonds on the
// curve, returning the maturity time and the face value credited to
// the destination. The position redeems one base per bond at
// maturity.
func (p *Pool) OpenLong(
	trader common.Address,
	destination common.Address,
	amount *big.Int,
	minOutput *big.Int,
	asBase bool,
) (maturity uint64, bondProceeds *big.Int, err error) {
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
	if err := p.applyCheckpoints(); err != nil {
		return 0, nil, err
	}

	c := p.info.SharePrice
	var dz, baseAmount *big.Int
	if asBase {
		baseAmount = new(big.Int).Set(amount)
		dz = fp.DivDown(amount, c)
	} else {
		dz = new(big.Int).Set(amount)
		baseAmount = fp.MulDown(amount, c)
	}
	if err := p.requireMinTxn(baseAmount); err != nil {
		return 0, nil, err
	}

	next := p.info.Clone()
	curve := p.curve(&next)
	spot := curve.SpotPrice()
	dyRaw := curve.BondsOutGivenSharesIn(dz)
	if dyRaw.Cmp(next.BondReserves) >= 0 {
		return 0, nil, ErrInsufficientLiquidity
	}

	curveFeeBonds, govBonds, govShares := openLongFees(p.cfg.Fees, spot, c, dz)
	bondProceeds = new(big.Int).Sub(dyRaw, curveFeeBonds)
	if bondProceeds.Sign() <= 0 {
		return 0, nil, ErrInsufficientLiquidity
	}
	if bondProceeds.Cmp(minOutput) < 0 {
		return 0, nil, ErrSlippage
	}

	// The LP portion of the curve fee stays in the bond reserves;
	// the governance portion leaves as a share-denominated accrual.
	bondDelta := new(big.Int).Sub(dyRaw, new(big.Int).Sub(curveFeeBonds, govBonds))
	next.ShareReserves.Add(next.ShareReserves, new(big.Int).Sub(dz, govShares))
	next.BondReserves.Sub(next.BondReserves, bondDelta)
	next.GovernanceFeesAccrued.Add(next.GovernanceFeesAccrued, govShares)

	maturity = p.maturityFor()
	next.LongAverageMaturityTime, next.LongsOutstanding = updateAverageMaturity(
		next.LongAverageMaturityTime, next.LongsOutstanding, bondProceeds, maturity, true)
	next.LongExposure.Add(next.LongExposure, bondProceeds)

	if err := p.checkSolvency(&next, c); err != nil {
		return 0, nil, err
	}

	// Mint before the vault pull so a failed deposit can be undone by
	// burning what was just minted, leaving no partial effect.
	id := EncodeAssetID(AssetLong, maturity)
	if err := p.ledger.Mint(id, destination, toU256(bondProceeds)); err != nil {
		return 0, nil, err
	}
	if _, err := p.depositShares(trader, amount, asBase); err != nil {
		_ = p.ledger.Burn(id, destination, toU256(bondProceeds))
		return 0, nil, err
	}

	p.recordMaturity(AssetLong, maturity, bondProceeds)
	p.info = next
	p.log.Debug("opened long",
		"trader", trader.Hex(),
		"maturity", maturity,
		"deposit", baseAmount.String(),
		"bonds", bondProceeds.String(),
	)
	return maturity, bondProceeds, nil
}

// CloseLong sells bonds back before maturity, or redeems them at
// face value afterwards, paying the destination in base or vault
// shares.
func (p *Pool) CloseLong(
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
		owedBase := fp.MulDown(bondAmount, cp.LongProceedsPerBond)
		proceedsShares = p.zombieRedeem(&next, owedBase, c)
	} else {
		tau := p.timeRemaining(maturity)
		curve := p.curve(&next)
		spot := curve.SpotPrice()

		curveBonds := fp.MulDown(bondAmount, tau)
		sharesCurve := new(big.Int)
		if curveBonds.Sign() > 0 {
			sharesCurve = curve.SharesOutGivenBondsIn(curveBonds)
		}
		flatShares := fp.DivDown(fp.MulDown(bondAmount, new(big.Int).Sub(fp.One, tau)), c)

		fees := closeLongFees(p.cfg.Fees, spot, c, bondAmount, tau)
		proceedsShares = new(big.Int).Add(sharesCurve, flatShares)
		proceedsShares.Sub(proceedsShares, fees.total())
		if proceedsShares.Sign() < 0 {
			proceedsShares = new(big.Int)
		}

		next.ShareReserves.Sub(next.ShareReserves, new(big.Int).Add(proceedsShares, fees.GovernanceFee))
		next.BondReserves.Add(next.BondReserves, curveBonds)
		next.GovernanceFeesAccrued.Add(next.GovernanceFeesAccrued, fees.GovernanceFee)

		next.LongAverageMaturityTime, next.LongsOutstanding = updateAverageMaturity(
			next.LongAverageMaturityTime, next.LongsOutstanding, bondAmount, maturity, false)
		next.LongExposure.Sub(next.LongExposure, bondAmount)
		if next.LongExposure.Sign() < 0 {
			next.LongExposure = new(big.Int)
		}

		if err := p.checkSolvency(&next, c); err != nil {
			return nil, err
		}
		p.fundWithdrawalPool(&next, c)
	}

	proceedsValue := proceedsShares
	if asBase {
		proceedsValue = fp.MulDown(proceedsShares, c)
	}
	if proceedsValue.Cmp(minOutput) < 0 {
		return nil, ErrSlippage
	}

	id := EncodeAssetID(AssetLong, maturity)
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
		p.releaseMaturity(AssetLong, maturity, bondAmount)
	}
	p.info = next
	p.log.Debug("closed long",
		"trader", trader.Hex(),
		"maturity", maturity,
		"bonds", bondAmount.String(),
		"proceeds", proceeds.String(),
	)
	return proceeds, nil
}

// validMaturity accepts only checkpoint-aligned maturities within
// one position duration of the present.
func (p *Pool) validMaturity(maturity uint64) error {
	if maturity == 0 || maturity%p.cfg.CheckpointDuration != 0 {
		return ErrInvalidMaturity
	}
	if maturity > p.latestBucket()+p.cfg.PositionDuration {
		return ErrInvalidMaturity
	}
	return nil
}

// TargetedLongAmount sizes the deposit, in base, that moves the
// pool's fixed rate down to the target, capped at the caller's
// budget. A nil budget means no cap; a capped result leaves the rate
// above the target. Returns zero when the target is at or above the
// current rate. The sizing ignores fees, so the realized rate lands
// marginally above the target.
func (p *Pool) TargetedLongAmount(targetAPR, budget *big.Int) (baseAmount *big.Int, err error) {
	defer fp.Recover(&err, ErrArithmetic)
	if err := p.lock(); err != nil {
		return nil, err
	}
	defer p.unlock()

	if !p.initialized {
		return nil, ErrPoolNotInitialized
	}
	if targetAPR == nil || targetAPR.Sign() < 0 {
		return nil, ErrInvalidAPR
	}

	curve := p.curve(&p.info)
	current := curve.APRFromReserves(p.cfg.PositionDuration)
	if targetAPR.Cmp(current) >= 0 {
		return new(big.Int), nil
	}

	// The rate is monotone decreasing in the deposit, so bisect on
	// the share amount. The upper bound is the trade that walks the
	// price all the way to par.
	maxBonds := curve.MaxBondsOut()
	hi := curve.SharesInGivenBondsOut(fp.MulDown(maxBonds, big.NewInt(999_999_999_999_999_000)))
	lo := new(big.Int)
	for i := 0; i < 96; i++ {
		mid := new(big.Int).Add(lo, hi)
		mid.Rsh(mid, 1)
		if mid.Cmp(lo) == 0 {
			break
		}
		dy := curve.BondsOutGivenSharesIn(mid)
		after := curve.After(mid, new(big.Int).Neg(dy))
		if after.APRFromReserves(p.cfg.PositionDuration).Cmp(targetAPR) <= 0 {
			hi = mid
		} else {
			lo = mid
		}
	}
	baseAmount = fp.MulDown(hi, p.sharePrice())
	if budget != nil {
		if budget.Sign() <= 0 {
			return new(big.Int), nil
		}
		baseAmount = fp.Min(baseAmount, budget)
	}
	return baseAmount, nil
}
