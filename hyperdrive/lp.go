// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hyperdrive

import (
	"math/big"

	"github.com/luxfi/geth/common"

	fp "github.com/luxfi/hyperdrive/fixedpoint"
)

// Initialize seeds the pool's reserves and prices the bond reserves
// so the starting fixed rate equals the target APR. It can only run
// once. A slice of the contribution equal to twice the minimum share
// reserves stays in the pool forever: half as the untradeable floor,
// half as dead LP shares held by the zero address.
func (p *Pool) Initialize(
	trader common.Address,
	destination common.Address,
	contribution *big.Int,
	targetAPR *big.Int,
	asBase bool,
) (lpShares *big.Int, err error) {
	defer fp.Recover(&err, ErrArithmetic)
	if err := p.lock(); err != nil {
		return nil, err
	}
	defer p.unlock()

	if p.initialized {
		return nil, ErrPoolAlreadyInitialized
	}
	if destination == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	if targetAPR == nil || targetAPR.Sign() <= 0 {
		return nil, ErrInvalidAPR
	}

	c := p.sharePrice()
	var dz *big.Int
	if asBase {
		dz = fp.DivDown(contribution, c)
	} else {
		dz = new(big.Int).Set(contribution)
	}
	floor := new(big.Int).Lsh(p.cfg.MinimumShareReserves, 1)
	if dz.Cmp(floor) < 0 {
		return nil, ErrBelowMinimumContribution
	}

	info := newPoolInfo()
	info.ShareReserves = new(big.Int).Set(dz)
	info.SharePrice = new(big.Int).Set(c)
	info.BondReserves = p.curve(&info).InitialBondReserves(targetAPR, p.cfg.PositionDuration)

	// Dead shares pin the LP supply above zero so the share price of
	// LP tokens stays defined for every later deposit.
	dead := p.cfg.MinimumShareReserves
	lpShares = new(big.Int).Sub(dz, floor)
	info.LPTotalSupply = new(big.Int).Add(lpShares, dead)

	// Mint before the vault pull so a failed deposit can be undone by
	// burning what was just minted, leaving no partial effect.
	if err := p.ledger.Mint(LPAssetID(), destination, toU256(lpShares)); err != nil {
		return nil, err
	}
	if err := p.ledger.Mint(LPAssetID(), common.Address{}, toU256(dead)); err != nil {
		_ = p.ledger.Burn(LPAssetID(), destination, toU256(lpShares))
		return nil, err
	}
	if _, err := p.depositShares(trader, contribution, asBase); err != nil {
		_ = p.ledger.Burn(LPAssetID(), destination, toU256(lpShares))
		_ = p.ledger.Burn(LPAssetID(), common.Address{}, toU256(dead))
		return nil, err
	}

	p.info = info
	p.initialized = true
	p.lastCheckpoint = p.latestBucket()
	if err := p.mintCheckpoint(p.lastCheckpoint, c); err != nil {
		return nil, err
	}
	p.log.Info("pool initialized",
		"contribution", contribution.String(),
		"targetAPR", targetAPR.String(),
		"lpShares", lpShares.String(),
	)
	return lpShares, nil
}

// AddLiquidity mints LP shares against a deposit. The bond reserves
// scale with the share reserves so the deposit leaves the pool's
// implied APR untouched; the caller's rate band rejects deposits
// into a market that moved away from them.
func (p *Pool) AddLiquidity(
	trader common.Address,
	destination common.Address,
	contribution *big.Int,
	minAPR *big.Int,
	maxAPR *big.Int,
	asBase bool,
) (lpShares *big.Int, err error) {
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
	if err := p.applyCheckpoints(); err != nil {
		return nil, err
	}

	c := p.info.SharePrice
	var dz, baseAmount *big.Int
	if asBase {
		baseAmount = new(big.Int).Set(contribution)
		dz = fp.DivDown(contribution, c)
	} else {
		dz = new(big.Int).Set(contribution)
		baseAmount = fp.MulDown(contribution, c)
	}
	if err := p.requireMinTxn(baseAmount); err != nil {
		return nil, err
	}

	next := p.info.Clone()
	apr := p.curve(&next).APRFromReserves(p.cfg.PositionDuration)
	if apr.Cmp(minAPR) < 0 || apr.Cmp(maxAPR) > 0 {
		return nil, ErrInvalidAPR
	}

	// New shares are priced against the LP capital actually at work:
	// reserves net of the floor and the capital locked under longs.
	poolNet := p.lpCapital(&next, c)
	lpShares = fp.MulDivDown(dz, next.LPTotalSupply, poolNet)
	if lpShares.Sign() <= 0 {
		return nil, ErrBelowMinimumTransaction
	}

	p.scaleLiquidityUp(&next, dz)
	next.LPTotalSupply.Add(next.LPTotalSupply, lpShares)
	if err := p.checkSolvency(&next, c); err != nil {
		return nil, err
	}

	if err := p.ledger.Mint(LPAssetID(), destination, toU256(lpShares)); err != nil {
		return nil, err
	}
	if _, err := p.depositShares(trader, contribution, asBase); err != nil {
		_ = p.ledger.Burn(LPAssetID(), destination, toU256(lpShares))
		return nil, err
	}

	p.info = next
	p.log.Debug("added liquidity",
		"trader", trader.Hex(),
		"deposit", baseAmount.String(),
		"lpShares", lpShares.String(),
	)
	return lpShares, nil
}

// RemoveLiquidity burns LP shares. Whatever portion of the holder's
// entitlement is idle pays out immediately; the remainder, still
// locked under open positions, converts to withdrawal shares that
// redeem as positions wind down.
func (p *Pool) RemoveLiquidity(
	trader common.Address,
	destination common.Address,
	lpShares *big.Int,
	minOutput *big.Int,
	asBase bool,
) (proceeds *big.Int, withdrawalShares *big.Int, err error) {
	defer fp.Recover(&err, ErrArithmetic)
	if err := p.lock(); err != nil {
		return nil, nil, err
	}
	defer p.unlock()

	if !p.initialized {
		return nil, nil, ErrPoolNotInitialized
	}
	if destination == (common.Address{}) {
		return nil, nil, ErrZeroAddress
	}
	if lpShares == nil || lpShares.Sign() <= 0 {
		return nil, nil, ErrBelowMinimumTransaction
	}
	if err := p.applyCheckpoints(); err != nil {
		return nil, nil, err
	}

	c := p.info.SharePrice
	next := p.info.Clone()

	entitlement := fp.MulDivDown(lpShares, p.lpCapital(&next, c), next.LPTotalSupply)
	idle := p.idleShares(&next, c)
	payable := fp.Min(entitlement, idle)
	withdrawalShares = new(big.Int).Sub(entitlement, payable)

	p.scaleLiquidityDown(&next, payable)
	next.LPTotalSupply.Sub(next.LPTotalSupply, lpShares)
	if withdrawalShares.Sign() > 0 {
		next.WithdrawalSharesOutstanding.Add(next.WithdrawalSharesOutstanding, withdrawalShares)
	}

	proceedsValue := payable
	if asBase {
		proceedsValue = fp.MulDown(payable, c)
	}
	if proceedsValue.Cmp(minOutput) < 0 {
		return nil, nil, ErrSlippage
	}

	if err := p.ledger.Burn(LPAssetID(), trader, toU256(lpShares)); err != nil {
		return nil, nil, err
	}
	if withdrawalShares.Sign() > 0 {
		if err := p.ledger.Mint(WithdrawalShareAssetID(), destination, toU256(withdrawalShares)); err != nil {
			_ = p.ledger.Mint(LPAssetID(), trader, toU256(lpShares))
			return nil, nil, err
		}
	}
	proceeds, err = p.withdraw(destination, payable, asBase)
	if err != nil {
		// Undo the ledger moves so a failed payout leaves the holder
		// exactly as before.
		if withdrawalShares.Sign() > 0 {
			_ = p.ledger.Burn(WithdrawalShareAssetID(), destination, toU256(withdrawalShares))
		}
		_ = p.ledger.Mint(LPAssetID(), trader, toU256(lpShares))
		return nil, nil, err
	}

	p.info = next
	p.log.Debug("removed liquidity",
		"trader", trader.Hex(),
		"lpShares", lpShares.String(),
		"proceeds", proceeds.String(),
		"withdrawalShares", withdrawalShares.String(),
	)
	return proceeds, withdrawalShares, nil
}

// RedeemWithdrawalShares pays out withdrawal shares that checkpoint
// processing has backed with freed capital. Unfunded shares are left
// with the holder to redeem later. Returns the proceeds and the
// number of shares actually redeemed.
func (p *Pool) RedeemWithdrawalShares(
	trader common.Address,
	destination common.Address,
	shares *big.Int,
	minOutputPerShare *big.Int,
	asBase bool,
) (proceeds *big.Int, redeemed *big.Int, err error) {
	defer fp.Recover(&err, ErrArithmetic)
	if err := p.lock(); err != nil {
		return nil, nil, err
	}
	defer p.unlock()

	if !p.initialized {
		return nil, nil, ErrPoolNotInitialized
	}
	if destination == (common.Address{}) {
		return nil, nil, ErrZeroAddress
	}
	if shares == nil || shares.Sign() <= 0 {
		return nil, nil, ErrBelowMinimumTransaction
	}
	if err := p.applyCheckpoints(); err != nil {
		return nil, nil, err
	}

	c := p.info.SharePrice
	next := p.info.Clone()

	redeemed = fp.Min(shares, next.WithdrawalSharesProceeds)
	if redeemed.Sign() == 0 {
		return new(big.Int), new(big.Int), nil
	}
	next.WithdrawalSharesProceeds.Sub(next.WithdrawalSharesProceeds, redeemed)
	next.WithdrawalSharesOutstanding.Sub(next.WithdrawalSharesOutstanding, redeemed)

	proceedsValue := redeemed
	if asBase {
		proceedsValue = fp.MulDown(redeemed, c)
	}
	if proceedsValue.Cmp(fp.MulDown(redeemed, minOutputPerShare)) < 0 {
		return nil, nil, ErrSlippage
	}

	if err := p.ledger.Burn(WithdrawalShareAssetID(), trader, toU256(redeemed)); err != nil {
		return nil, nil, err
	}
	proceeds, err = p.withdraw(destination, redeemed, asBase)
	if err != nil {
		// Undo the burn so a failed payout leaves the claim intact.
		_ = p.ledger.Mint(WithdrawalShareAssetID(), trader, toU256(redeemed))
		return nil, nil, err
	}

	p.info = next
	p.log.Debug("redeemed withdrawal shares",
		"trader", trader.Hex(),
		"redeemed", redeemed.String(),
		"proceeds", proceeds.String(),
	)
	return proceeds, redeemed, nil
}

// lpCapital is the share-denominated present value backing LP
// tokens: the reserves net of the floor and of the outstanding long
// liability valued at the spot price. The face value stays locked
// under solvency, so the gap between face and present value is what
// converts to withdrawal shares on exit.
func (p *Pool) lpCapital(info *PoolInfo, c *big.Int) *big.Int {
	capital := new(big.Int).Sub(info.ShareReserves, p.cfg.MinimumShareReserves)
	if info.LongsOutstanding.Sign() > 0 {
		spot := p.curve(info).SpotPrice()
		liability := fp.MulDown(spot, info.LongsOutstanding)
		capital.Sub(capital, fp.DivUp(liability, c))
	}
	if capital.Sign() <= 0 {
		return new(big.Int).Set(p.cfg.MinimumShareReserves)
	}
	return capital
}
