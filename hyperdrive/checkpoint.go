// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hyperdrive

import (
	"math/big"

	fp "github.com/luxfi/hyperdrive/fixedpoint"
)

// Checkpoint mints the checkpoint for the bucket containing t, plus
// any skipped buckets before it, settling every position that
// matured in them. Anyone may call it; trades call it implicitly.
func (p *Pool) Checkpoint(t uint64) (err error) {
	defer fp.Recover(&err, ErrArithmetic)
	if err := p.lock(); err != nil {
		return err
	}
	defer p.unlock()
	if !p.initialized {
		return ErrPoolNotInitialized
	}
	if t > p.now() {
		return ErrInvalidMaturity
	}
	return p.applyCheckpoints()
}

// applyCheckpoints mints every bucket between the last applied
// checkpoint and the current one. Skipped buckets are backfilled
// with the current vault price; once a price is recorded it is
// immutable.
//
// Minting is its own committed sub-action: the settlements depend
// only on the clock and the recorded prices, so they stand even when
// the trade that triggered them fails afterwards. Anyone could have
// minted the same checkpoints with the same result via Checkpoint.
func (p *Pool) applyCheckpoints() error {
	latest := p.latestBucket()
	c := p.sharePrice()
	p.info.SharePrice = new(big.Int).Set(c)
	for b := p.lastCheckpoint + p.cfg.CheckpointDuration; b <= latest; b += p.cfg.CheckpointDuration {
		if err := p.mintCheckpoint(b, c); err != nil {
			return err
		}
		p.lastCheckpoint = b
	}
	return nil
}

// mintCheckpoint records the bucket price and settles maturities.
func (p *Pool) mintCheckpoint(bucket uint64, price *big.Int) error {
	cp, ok := p.checkpoints[bucket]
	if !ok {
		cp = newCheckpoint()
		p.checkpoints[bucket] = cp
	}
	if cp.SharePrice.Sign() == 0 {
		cp.SharePrice = new(big.Int).Set(price)
	}
	if !cp.Matured {
		p.settleMaturedLongs(cp)
		p.settleMaturedShorts(bucket, cp)
		cp.Matured = true
	}
	p.fundWithdrawalPool(&p.info, price)
	if p.store != nil {
		if err := p.store.Put(bucket, *cp.Clone()); err != nil {
			return err
		}
	}
	return nil
}

// settleMaturedLongs closes every long maturing at the bucket as a
// flat redemption at the checkpoint price. The proceeds move into
// the zombie pool where holders claim them pro rata later.
func (p *Pool) settleMaturedLongs(cp *Checkpoint) {
	faces := cp.LongsMaturing
	if faces.Sign() == 0 {
		return
	}
	cm := cp.SharePrice
	info := &p.info

	raw := fp.DivDown(faces, cm)
	flatFee := fp.DivDown(fp.MulDown(faces, p.cfg.Fees.Flat), cm)
	gov := fp.MulDown(flatFee, p.cfg.Fees.GovernanceLP)
	proceeds := new(big.Int).Sub(raw, flatFee)
	if proceeds.Sign() < 0 {
		proceeds = new(big.Int)
	}

	info.ShareReserves.Sub(info.ShareReserves, new(big.Int).Add(proceeds, gov))
	info.GovernanceFeesAccrued.Add(info.GovernanceFeesAccrued, gov)

	owedBase := fp.MulDown(proceeds, cm)
	info.ZombieShareReserves.Add(info.ZombieShareReserves, proceeds)
	info.ZombieBaseProceeds.Add(info.ZombieBaseProceeds, owedBase)
	cp.LongProceedsPerBond = fp.DivDown(owedBase, faces)

	p.removeLongs(info, faces)
}

// settleMaturedShorts settles every short maturing at the bucket.
// The pool collects the face value from the short escrow and the
// holders' variable interest moves into the zombie pool.
func (p *Pool) settleMaturedShorts(bucket uint64, cp *Checkpoint) {
	faces := cp.ShortsMaturing
	if faces.Sign() == 0 {
		return
	}
	cm := cp.SharePrice
	info := &p.info

	facePayment := fp.DivDown(faces, cm)
	flatFee := fp.DivDown(fp.MulDown(faces, p.cfg.Fees.Flat), cm)
	gov := fp.MulDown(flatFee, p.cfg.Fees.GovernanceLP)

	lpFee := new(big.Int).Sub(flatFee, gov)
	info.ShareReserves.Add(info.ShareReserves, new(big.Int).Add(facePayment, lpFee))
	info.GovernanceFeesAccrued.Add(info.GovernanceFeesAccrued, gov)

	// The short's payoff is the variable interest accrued on the
	// face since the open checkpoint, net of the flat fee.
	c0 := p.openSharePrice(bucket - p.cfg.PositionDuration)
	proceeds := new(big.Int).Sub(fp.DivDown(faces, c0), facePayment)
	proceeds.Sub(proceeds, flatFee)
	if proceeds.Sign() < 0 {
		proceeds = new(big.Int)
	}

	owedBase := fp.MulDown(proceeds, cm)
	info.ZombieShareReserves.Add(info.ZombieShareReserves, proceeds)
	info.ZombieBaseProceeds.Add(info.ZombieBaseProceeds, owedBase)
	cp.ShortProceedsPerBond = fp.DivDown(owedBase, faces)

	p.removeShorts(info, faces)
}

// openSharePrice resolves the checkpoint price a position opened at,
// falling back to the configured initial price for positions older
// than the recorded history.
func (p *Pool) openSharePrice(bucket uint64) *big.Int {
	if cp, ok := p.checkpoints[bucket]; ok && cp.SharePrice.Sign() > 0 {
		return cp.SharePrice
	}
	return p.cfg.InitialSharePrice
}

// removeLongs retires face value from the long aggregates.
func (p *Pool) removeLongs(info *PoolInfo, faces *big.Int) {
	info.LongsOutstanding.Sub(info.LongsOutstanding, faces)
	if info.LongsOutstanding.Sign() <= 0 {
		info.LongsOutstanding = new(big.Int)
		info.LongAverageMaturityTime = new(big.Int)
	}
	info.LongExposure.Sub(info.LongExposure, faces)
	if info.LongExposure.Sign() < 0 {
		info.LongExposure = new(big.Int)
	}
}

// removeShorts retires face value from the short aggregates.
func (p *Pool) removeShorts(info *PoolInfo, faces *big.Int) {
	info.ShortsOutstanding.Sub(info.ShortsOutstanding, faces)
	if info.ShortsOutstanding.Sign() <= 0 {
		info.ShortsOutstanding = new(big.Int)
		info.ShortAverageMaturityTime = new(big.Int)
	}
}

// zombieRedeem draws a matured position's claim out of the zombie
// pool. Claims redeem pro rata against the pooled shares, so vault
// interest earned after maturity accrues to the remaining claimants
// and negative interest marks every claim down together. Governance
// skims its share of any positive interest.
func (p *Pool) zombieRedeem(info *PoolInfo, owedBase, c *big.Int) *big.Int {
	if owedBase.Sign() == 0 || info.ZombieBaseProceeds.Sign() == 0 {
		return new(big.Int)
	}
	owed := fp.Min(owedBase, info.ZombieBaseProceeds)
	shares := fp.MulDivDown(info.ZombieShareReserves, owed, info.ZombieBaseProceeds)
	info.ZombieShareReserves.Sub(info.ZombieShareReserves, shares)
	info.ZombieBaseProceeds.Sub(info.ZombieBaseProceeds, owed)

	value := fp.MulDown(shares, c)
	if value.Cmp(owed) > 0 {
		interest := new(big.Int).Sub(value, owed)
		govShares := fp.DivDown(fp.MulDown(interest, p.cfg.Fees.GovernanceZombie), c)
		govShares = fp.Min(govShares, shares)
		shares = new(big.Int).Sub(shares, govShares)
		info.GovernanceFeesAccrued.Add(info.GovernanceFeesAccrued, govShares)
	}
	return shares
}

// fundWithdrawalPool moves idle capital into the withdrawal pool
// until every outstanding withdrawal share is backed one to one. It
// runs after every state change that can free capital: checkpoint
// settlement and position closes.
func (p *Pool) fundWithdrawalPool(info *PoolInfo, c *big.Int) {
	unfunded := new(big.Int).Sub(info.WithdrawalSharesOutstanding, info.WithdrawalSharesProceeds)
	if unfunded.Sign() <= 0 {
		return
	}
	idle := p.idleShares(info, c)
	amount := fp.Min(idle, unfunded)
	if amount.Sign() <= 0 {
		return
	}
	p.scaleLiquidityDown(info, amount)
	info.WithdrawalSharesProceeds.Add(info.WithdrawalSharesProceeds, amount)
}

// scaleLiquidityDown removes shares from the reserves while scaling
// the bond reserves proportionally so the spot price, and with it
// the implied APR, is unchanged.
func (p *Pool) scaleLiquidityDown(info *PoolInfo, shares *big.Int) {
	old := new(big.Int).Set(info.ShareReserves)
	info.ShareReserves.Sub(info.ShareReserves, shares)
	info.BondReserves = fp.MulDivDown(info.BondReserves, info.ShareReserves, old)
}

// scaleLiquidityUp adds shares to the reserves while preserving the
// spot price.
func (p *Pool) scaleLiquidityUp(info *PoolInfo, shares *big.Int) {
	old := new(big.Int).Set(info.ShareReserves)
	info.ShareReserves.Add(info.ShareReserves, shares)
	info.BondReserves = fp.MulDivDown(info.BondReserves, info.ShareReserves, old)
}

// recordMaturity books face value into the checkpoint a position
// will mature at.
func (p *Pool) recordMaturity(kind AssetKind, maturity uint64, faces *big.Int) {
	cp, ok := p.checkpoints[maturity]
	if !ok {
		cp = newCheckpoint()
		p.checkpoints[maturity] = cp
	}
	switch kind {
	case AssetLong:
		cp.LongsMaturing.Add(cp.LongsMaturing, faces)
	case AssetShort:
		cp.ShortsMaturing.Add(cp.ShortsMaturing, faces)
	}
}

// releaseMaturity removes face value from a future checkpoint when a
// position closes early.
func (p *Pool) releaseMaturity(kind AssetKind, maturity uint64, faces *big.Int) {
	cp, ok := p.checkpoints[maturity]
	if !ok {
		return
	}
	switch kind {
	case AssetLong:
		cp.LongsMaturing.Sub(cp.LongsMaturing, faces)
		if cp.LongsMaturing.Sign() < 0 {
			cp.LongsMaturing = new(big.Int)
		}
	case AssetShort:
		cp.ShortsMaturing.Sub(cp.ShortsMaturing, faces)
		if cp.ShortsMaturing.Sign() < 0 {
			cp.ShortsMaturing = new(big.Int)
		}
	}
}

// updateAverageMaturity folds a position delta into the outstanding
// weighted average maturity time.
func updateAverageMaturity(avg, outstanding, delta *big.Int, maturity uint64, add bool) (*big.Int, *big.Int) {
	m := new(big.Int).Mul(new(big.Int).SetUint64(maturity), fp.One)
	weighted := new(big.Int).Mul(avg, outstanding)
	dw := new(big.Int).Mul(m, delta)
	var next, total *big.Int
	if add {
		total = new(big.Int).Add(outstanding, delta)
		weighted.Add(weighted, dw)
	} else {
		total = new(big.Int).Sub(outstanding, delta)
		weighted.Sub(weighted, dw)
	}
	if total.Sign() <= 0 {
		return new(big.Int), new(big.Int)
	}
	next = new(big.Int).Quo(weighted, total)
	if next.Sign() < 0 {
		next = new(big.Int)
	}
	return next, total
}
