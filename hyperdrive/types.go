// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package hyperdrive implements the pool engine for fixed/variable
// yield trading: per-checkpoint position accounting, the fee model,
// and the single canonical reserves record every action mutates
// atomically. Pricing is delegated to the yieldspace package; token
// custody and the share price are delegated to external collaborators
// behind the YieldSource and PositionLedger interfaces.
package hyperdrive

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/hyperdrive/fixedpoint"
)

// YieldSource is the vault adapter the pool deposits into and
// withdraws from. Prices are WAD base-per-share.
type YieldSource interface {
	// PricePerShare reports the current vault share price.
	PricePerShare() *big.Int

	// DepositBase pulls base from the account and credits the pool
	// with vault shares, returning the shares minted.
	DepositBase(from common.Address, amount *uint256.Int) (*uint256.Int, error)

	// DepositShares moves vault shares from the account to the pool.
	DepositShares(from common.Address, shares *uint256.Int) error

	// WithdrawBase redeems pool shares for base paid to the account,
	// returning the base amount.
	WithdrawBase(to common.Address, shares *uint256.Int) (*uint256.Int, error)

	// WithdrawShares transfers pool shares to the account.
	WithdrawShares(to common.Address, shares *uint256.Int) error
}

// PositionLedger is the multi-token ownership ledger for LP shares,
// longs, shorts, and withdrawal shares, keyed by asset ID.
type PositionLedger interface {
	Mint(id *uint256.Int, to common.Address, amount *uint256.Int) error
	Burn(id *uint256.Int, from common.Address, amount *uint256.Int) error
	BalanceOf(id *uint256.Int, owner common.Address) *uint256.Int
	TotalSupply(id *uint256.Int) *uint256.Int
}

// CheckpointStore persists finalized checkpoints. A nil store keeps
// checkpoints in memory only.
type CheckpointStore interface {
	Put(bucket uint64, cp Checkpoint) error
	Get(bucket uint64) (Checkpoint, bool, error)
}

// FeeParams is the pool's fee schedule, all WAD percentages.
type FeeParams struct {
	Curve            *big.Int // fee on curve price impact
	Flat             *big.Int // fee on the matured portion of a close
	GovernanceLP     *big.Int // governance split of LP fees
	GovernanceZombie *big.Int // governance split of zombie interest
}

// PoolConfig is immutable after deployment.
type PoolConfig struct {
	BaseToken                common.Address
	VaultToken               common.Address
	InitialSharePrice        *big.Int
	MinimumShareReserves     *big.Int
	MinimumTransactionAmount *big.Int
	PositionDuration         uint64 // seconds
	CheckpointDuration       uint64 // seconds, divides PositionDuration
	TimeStretch              *big.Int
	Fees                     FeeParams
	Governance               common.Address
	FeeCollector             common.Address
}

// Validate checks the internal consistency of the configuration.
// Governance-imposed fee bounds are enforced separately by the
// factory at deployment time.
func (c *PoolConfig) Validate() error {
	if c.CheckpointDuration == 0 {
		return ErrInvalidCheckpointDuration
	}
	if c.PositionDuration == 0 || c.PositionDuration%c.CheckpointDuration != 0 {
		return ErrInvalidCheckpointDuration
	}
	if c.TimeStretch == nil || c.TimeStretch.Sign() <= 0 ||
		c.TimeStretch.Cmp(fixedpoint.One) >= 0 {
		return ErrInvalidTimeStretch
	}
	if c.InitialSharePrice == nil || c.InitialSharePrice.Sign() <= 0 {
		return ErrInvalidInitialSharePrice
	}
	if c.MinimumShareReserves == nil || c.MinimumShareReserves.Sign() <= 0 {
		return ErrInvalidMinimumShareReserves
	}
	if c.MinimumTransactionAmount == nil || c.MinimumTransactionAmount.Sign() < 0 {
		return ErrInvalidMinimumTransaction
	}
	for _, f := range []*big.Int{c.Fees.Curve, c.Fees.Flat, c.Fees.GovernanceLP, c.Fees.GovernanceZombie} {
		if f == nil || f.Sign() < 0 || f.Cmp(fixedpoint.One) > 0 {
			return ErrInvalidFeeParameters
		}
	}
	return nil
}

// PoolInfo is the single canonical reserves record. All values are
// WAD; share quantities are vault-share denominated, bond and
// exposure quantities are base denominated.
type PoolInfo struct {
	ShareReserves *big.Int
	BondReserves  *big.Int
	LPTotalSupply *big.Int
	SharePrice    *big.Int // vault price at the last action

	LongsOutstanding        *big.Int
	LongAverageMaturityTime *big.Int // WAD seconds
	LongExposure            *big.Int // base face backing open longs

	ShortsOutstanding        *big.Int
	ShortAverageMaturityTime *big.Int

	WithdrawalSharesOutstanding *big.Int
	WithdrawalSharesProceeds    *big.Int

	GovernanceFeesAccrued *big.Int

	ZombieShareReserves *big.Int
	ZombieBaseProceeds  *big.Int
}

func newPoolInfo() PoolInfo {
	return PoolInfo{
		ShareReserves:               new(big.Int),
		BondReserves:                new(big.Int),
		LPTotalSupply:               new(big.Int),
		SharePrice:                  new(big.Int),
		LongsOutstanding:            new(big.Int),
		LongAverageMaturityTime:     new(big.Int),
		LongExposure:                new(big.Int),
		ShortsOutstanding:           new(big.Int),
		ShortAverageMaturityTime:    new(big.Int),
		WithdrawalSharesOutstanding: new(big.Int),
		WithdrawalSharesProceeds:    new(big.Int),
		GovernanceFeesAccrued:       new(big.Int),
		ZombieShareReserves:         new(big.Int),
		ZombieBaseProceeds:          new(big.Int),
	}
}

// Clone deep-copies the record so an action can stage its deltas and
// commit them atomically or drop them without trace.
func (pi PoolInfo) Clone() PoolInfo {
	cp := func(x *big.Int) *big.Int { return new(big.Int).Set(x) }
	return PoolInfo{
		ShareReserves:               cp(pi.ShareReserves),
		BondReserves:                cp(pi.BondReserves),
		LPTotalSupply:               cp(pi.LPTotalSupply),
		SharePrice:                  cp(pi.SharePrice),
		LongsOutstanding:            cp(pi.LongsOutstanding),
		LongAverageMaturityTime:     cp(pi.LongAverageMaturityTime),
		LongExposure:                cp(pi.LongExposure),
		ShortsOutstanding:           cp(pi.ShortsOutstanding),
		ShortAverageMaturityTime:    cp(pi.ShortAverageMaturityTime),
		WithdrawalSharesOutstanding: cp(pi.WithdrawalSharesOutstanding),
		WithdrawalSharesProceeds:    cp(pi.WithdrawalSharesProceeds),
		GovernanceFeesAccrued:       cp(pi.GovernanceFeesAccrued),
		ZombieShareReserves:         cp(pi.ZombieShareReserves),
		ZombieBaseProceeds:          cp(pi.ZombieBaseProceeds),
	}
}

// Checkpoint snapshots a time bucket. The share price, once set, is
// the oracle price for every position maturing in the bucket and
// never changes.
type Checkpoint struct {
	SharePrice *big.Int

	// Face value of positions maturing at this bucket, removed again
	// when positions close early.
	LongsMaturing  *big.Int
	ShortsMaturing *big.Int

	// Base owed per WAD bond for matured positions, set when the
	// bucket matures. Zero until then.
	LongProceedsPerBond  *big.Int
	ShortProceedsPerBond *big.Int

	Matured bool
}

func newCheckpoint() *Checkpoint {
	return &Checkpoint{
		SharePrice:           new(big.Int),
		LongsMaturing:        new(big.Int),
		ShortsMaturing:       new(big.Int),
		LongProceedsPerBond:  new(big.Int),
		ShortProceedsPerBond: new(big.Int),
	}
}

// Clone deep-copies a checkpoint.
func (c *Checkpoint) Clone() *Checkpoint {
	cp := func(x *big.Int) *big.Int { return new(big.Int).Set(x) }
	return &Checkpoint{
		SharePrice:           cp(c.SharePrice),
		LongsMaturing:        cp(c.LongsMaturing),
		ShortsMaturing:       cp(c.ShortsMaturing),
		LongProceedsPerBond:  cp(c.LongProceedsPerBond),
		ShortProceedsPerBond: cp(c.ShortProceedsPerBond),
		Matured:              c.Matured,
	}
}

// Errors - configuration
var (
	ErrInvalidCheckpointDuration   = errors.New("checkpoint duration must divide position duration")
	ErrInvalidTimeStretch          = errors.New("time stretch out of range")
	ErrInvalidInitialSharePrice    = errors.New("invalid initial share price")
	ErrInvalidMinimumShareReserves = errors.New("invalid minimum share reserves")
	ErrInvalidMinimumTransaction   = errors.New("invalid minimum transaction amount")
	ErrInvalidFeeParameters        = errors.New("fee percentage out of range")
)

// Errors - caller preconditions
var (
	ErrUnauthorized             = errors.New("unauthorized")
	ErrInvalidFeeDestination    = errors.New("invalid fee destination")
	ErrZeroAddress              = errors.New("zero destination address")
	ErrBelowMinimumContribution = errors.New("contribution below minimum")
	ErrBelowMinimumTransaction  = errors.New("amount below minimum transaction")
	ErrSlippage                 = errors.New("slippage bound violated")
	ErrInvalidAPR               = errors.New("apr outside caller bounds")
	ErrInsufficientLiquidity    = errors.New("insufficient liquidity")
)

// Errors - state consistency
var (
	ErrPoolNotInitialized        = errors.New("pool not initialized")
	ErrPoolAlreadyInitialized    = errors.New("pool already initialized")
	ErrReentrant                 = errors.New("reentrancy detected")
	ErrInvalidMaturity           = errors.New("invalid maturity time")
	ErrBelowMinimumShareReserves = errors.New("share reserves below donation floor")
)

// Errors - arithmetic
var (
	ErrArithmetic     = errors.New("arithmetic fault")
	ErrAmountOverflow = errors.New("amount exceeds 256 bits")
)
