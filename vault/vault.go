// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package vault models the yield-bearing reserve the pool deposits
// into. The accruing vault compounds a configurable variable rate,
// positive or negative, into its share price and keeps base and
// share balances for every account plus the pool itself.
package vault

import (
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	log "github.com/luxfi/log"

	fp "github.com/luxfi/hyperdrive/fixedpoint"
)

var (
	ErrInsufficientBase   = errors.New("insufficient base balance")
	ErrInsufficientShares = errors.New("insufficient share balance")
	ErrInvalidPrice       = errors.New("share price must be positive")
	ErrPriceUnderflow     = errors.New("negative rate drove price to zero")
)

// AccruingVault is an in-memory yield source with linear-in-time
// compounding between observations.
type AccruingVault struct {
	mu sync.Mutex

	price       *big.Int // WAD base per share
	rate        *big.Int // signed WAD annual rate
	lastAccrual uint64

	base   map[common.Address]*uint256.Int
	shares map[common.Address]*uint256.Int

	// poolShares is the pool's custody balance, the only account the
	// YieldSource methods move funds in and out of.
	poolShares *uint256.Int

	log log.Logger
	now func() uint64
}

// Option configures an AccruingVault.
type Option func(*AccruingVault)

// WithClock overrides the wall clock.
func WithClock(now func() uint64) Option { return func(v *AccruingVault) { v.now = now } }

// WithLogger overrides the default logger.
func WithLogger(l log.Logger) Option { return func(v *AccruingVault) { v.log = l } }

// NewAccruingVault starts a vault at the given share price accruing
// the given annual rate. A negative rate marks the price down.
func NewAccruingVault(price, rate *big.Int, opts ...Option) (*AccruingVault, error) {
	if price == nil || price.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	v := &AccruingVault{
		price:      new(big.Int).Set(price),
		rate:       new(big.Int).Set(rate),
		base:       make(map[common.Address]*uint256.Int),
		shares:     make(map[common.Address]*uint256.Int),
		poolShares: uint256.NewInt(0),
		log:        log.NewTestLogger(log.InfoLevel),
		now:        func() uint64 { return uint64(time.Now().Unix()) },
	}
	for _, opt := range opts {
		opt(v)
	}
	v.lastAccrual = v.now()
	return v, nil
}

// accrue folds the elapsed time into the share price. Must hold mu.
func (v *AccruingVault) accrue() error {
	t := v.now()
	if t <= v.lastAccrual {
		return nil
	}
	dt := new(big.Int).SetUint64(t - v.lastAccrual)
	v.lastAccrual = t
	if v.rate.Sign() == 0 {
		return nil
	}
	// elapsed is the WAD fraction of a year; the rate may be
	// negative so the product is taken in signed arithmetic.
	elapsed := fp.DivDown(dt, fp.SecondsPerYear)
	growth := new(big.Int).Mul(v.rate, elapsed)
	growth.Quo(growth, fp.One)
	factor := new(big.Int).Add(fp.One, growth)
	if factor.Sign() <= 0 {
		return ErrPriceUnderflow
	}
	v.price = fp.MulDown(v.price, factor)
	if v.price.Sign() <= 0 {
		return ErrPriceUnderflow
	}
	return nil
}

// SetRate changes the accrual rate, compounding the old rate up to
// the present first.
func (v *AccruingVault) SetRate(rate *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.accrue(); err != nil {
		return err
	}
	v.rate = new(big.Int).Set(rate)
	return nil
}

// PricePerShare reports the current share price.
func (v *AccruingVault) PricePerShare() *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.accrue(); err != nil {
		v.log.Error("vault accrual failed", "err", err)
		return new(big.Int)
	}
	return new(big.Int).Set(v.price)
}

// MintBase credits an account with base, funding it for deposits.
func (v *AccruingVault) MintBase(account common.Address, amount *uint256.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.credit(v.base, account, amount)
}

// BaseBalance reports an account's base holdings.
func (v *AccruingVault) BaseBalance(account common.Address) *uint256.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balance(v.base, account)
}

// ShareBalance reports an account's vault share holdings.
func (v *AccruingVault) ShareBalance(account common.Address) *uint256.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balance(v.shares, account)
}

// PoolShares reports the pool's custody balance.
func (v *AccruingVault) PoolShares() *uint256.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return new(uint256.Int).Set(v.poolShares)
}

// DepositBase converts an account's base into shares credited to the
// pool's custody balance.
func (v *AccruingVault) DepositBase(from common.Address, amount *uint256.Int) (*uint256.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.accrue(); err != nil {
		return nil, err
	}
	if err := debit(v.base, from, amount, ErrInsufficientBase); err != nil {
		return nil, err
	}
	shares := v.toShares(amount)
	v.poolShares.Add(v.poolShares, shares)
	return new(uint256.Int).Set(shares), nil
}

// DepositShares moves shares from an account into pool custody.
func (v *AccruingVault) DepositShares(from common.Address, shares *uint256.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.accrue(); err != nil {
		return err
	}
	if err := debit(v.shares, from, shares, ErrInsufficientShares); err != nil {
		return err
	}
	v.poolShares.Add(v.poolShares, shares)
	return nil
}

// WithdrawBase redeems pool-held shares for base paid to the account.
func (v *AccruingVault) WithdrawBase(to common.Address, shares *uint256.Int) (*uint256.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.accrue(); err != nil {
		return nil, err
	}
	if v.poolShares.Lt(shares) {
		return nil, ErrInsufficientShares
	}
	v.poolShares.Sub(v.poolShares, shares)
	base := v.toBase(shares)
	v.credit(v.base, to, base)
	return new(uint256.Int).Set(base), nil
}

// WithdrawShares moves shares out of pool custody to the account.
func (v *AccruingVault) WithdrawShares(to common.Address, shares *uint256.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.accrue(); err != nil {
		return err
	}
	if v.poolShares.Lt(shares) {
		return ErrInsufficientShares
	}
	v.poolShares.Sub(v.poolShares, shares)
	v.credit(v.shares, to, shares)
	return nil
}

func (v *AccruingVault) toShares(base *uint256.Int) *uint256.Int {
	out := fp.DivDown(base.ToBig(), v.price)
	u, _ := uint256.FromBig(out)
	return u
}

func (v *AccruingVault) toBase(shares *uint256.Int) *uint256.Int {
	out := fp.MulDown(shares.ToBig(), v.price)
	u, _ := uint256.FromBig(out)
	return u
}

func (v *AccruingVault) balance(m map[common.Address]*uint256.Int, a common.Address) *uint256.Int {
	if b, ok := m[a]; ok {
		return new(uint256.Int).Set(b)
	}
	return uint256.NewInt(0)
}

func (v *AccruingVault) credit(m map[common.Address]*uint256.Int, a common.Address, amount *uint256.Int) {
	b, ok := m[a]
	if !ok {
		b = uint256.NewInt(0)
		m[a] = b
	}
	b.Add(b, amount)
}

func debit(m map[common.Address]*uint256.Int, a common.Address, amount *uint256.Int, insufficient error) error {
	b, ok := m[a]
	if !ok || b.Lt(amount) {
		return insufficient
	}
	b.Sub(b, amount)
	return nil
}
