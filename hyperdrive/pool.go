// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hyperdrive

import (
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	log "github.com/luxfi/log"

	fp "github.com/luxfi/hyperdrive/fixedpoint"
	"github.com/luxfi/hyperdrive/yieldspace"
)

// Pool is the trading engine. Every public entry point acquires the
// reentrancy guard, stages its state deltas on copies, and commits
// them only after all validation and external transfers succeed.
type Pool struct {
	mu     sync.RWMutex
	locked atomic.Bool

	cfg  PoolConfig
	info PoolInfo

	checkpoints    map[uint64]*Checkpoint
	lastCheckpoint uint64

	vault  YieldSource
	ledger PositionLedger
	store  CheckpointStore

	log log.Logger
	now func() uint64

	initialized bool
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger overrides the default logger.
func WithLogger(l log.Logger) Option { return func(p *Pool) { p.log = l } }

// WithClock overrides the wall clock. Tests use this to control
// checkpoint and maturity timing.
func WithClock(now func() uint64) Option { return func(p *Pool) { p.now = now } }

// WithCheckpointStore attaches a persistence backend for finalized
// checkpoints.
func WithCheckpointStore(s CheckpointStore) Option { return func(p *Pool) { p.store = s } }

// NewPool validates the configuration and wires the collaborators.
// The pool is inert until Initialize seeds its reserves.
func NewPool(cfg PoolConfig, vault YieldSource, ledger PositionLedger, opts ...Option) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Pool{
		cfg:         cfg,
		info:        newPoolInfo(),
		checkpoints: make(map[uint64]*Checkpoint),
		vault:       vault,
		ledger:      ledger,
		log:         log.NewTestLogger(log.InfoLevel),
		now:         func() uint64 { return uint64(time.Now().Unix()) },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// lock serializes entry points. The write lock is held for the whole
// action so readers never observe a half-applied state; the flag
// catches a collaborator calling back into the pool mid-action, which
// would otherwise deadlock on the mutex.
func (p *Pool) lock() error {
	if p.locked.Load() {
		return ErrReentrant
	}
	p.mu.Lock()
	p.locked.Store(true)
	return nil
}

func (p *Pool) unlock() {
	p.locked.Store(false)
	p.mu.Unlock()
}

// Config returns a copy of the immutable pool configuration.
func (p *Pool) Config() PoolConfig {
	cfg := p.cfg
	cp := func(x *big.Int) *big.Int { return new(big.Int).Set(x) }
	cfg.InitialSharePrice = cp(p.cfg.InitialSharePrice)
	cfg.MinimumShareReserves = cp(p.cfg.MinimumShareReserves)
	cfg.MinimumTransactionAmount = cp(p.cfg.MinimumTransactionAmount)
	cfg.TimeStretch = cp(p.cfg.TimeStretch)
	cfg.Fees = FeeParams{
		Curve:            cp(p.cfg.Fees.Curve),
		Flat:             cp(p.cfg.Fees.Flat),
		GovernanceLP:     cp(p.cfg.Fees.GovernanceLP),
		GovernanceZombie: cp(p.cfg.Fees.GovernanceZombie),
	}
	return cfg
}

// Info returns a copy of the canonical reserves record.
func (p *Pool) Info() PoolInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.info.Clone()
}

// UncollectedGovernanceFees reports the governance accrual in shares.
func (p *Pool) UncollectedGovernanceFees() *big.Int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return new(big.Int).Set(p.info.GovernanceFeesAccrued)
}

// GetCheckpoint returns the checkpoint covering the bucket at time t,
// or false if none has been minted yet.
func (p *Pool) GetCheckpoint(t uint64) (Checkpoint, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp, ok := p.checkpoints[p.bucketOf(t)]
	if !ok {
		return Checkpoint{}, false
	}
	return *cp.Clone(), true
}

// SpotPrice reports the current bond spot price in base.
func (p *Pool) SpotPrice() (price *big.Int, err error) {
	defer fp.Recover(&err, ErrArithmetic)
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.initialized {
		return nil, ErrPoolNotInitialized
	}
	return p.curve(&p.info).SpotPrice(), nil
}

// SpotAPR reports the pool's current implied fixed rate.
func (p *Pool) SpotAPR() (apr *big.Int, err error) {
	defer fp.Recover(&err, ErrArithmetic)
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.initialized {
		return nil, ErrPoolNotInitialized
	}
	return p.curve(&p.info).APRFromReserves(p.cfg.PositionDuration), nil
}

// curve builds the pricing view over a reserves record. The reserves
// exposed to pricing exclude the minimum share reserves so the floor
// can never be traded away.
func (p *Pool) curve(info *PoolInfo) yieldspace.Curve {
	return yieldspace.Curve{
		ShareReserves:     new(big.Int).Set(info.ShareReserves),
		BondReserves:      new(big.Int).Set(info.BondReserves),
		SharePrice:        p.sharePrice(),
		InitialSharePrice: p.cfg.InitialSharePrice,
		TimeStretch:       p.cfg.TimeStretch,
	}
}

// sharePrice reads the vault price, treating a non-positive report as
// a vault fault surfaced to the caller via the arithmetic guard.
func (p *Pool) sharePrice() *big.Int {
	c := p.vault.PricePerShare()
	if c == nil || c.Sign() <= 0 {
		panic(&fp.ArithError{Op: "sharePrice", Detail: "vault reported non-positive price"})
	}
	return c
}

// bucketOf truncates a timestamp to its checkpoint bucket.
func (p *Pool) bucketOf(t uint64) uint64 {
	return t - t%p.cfg.CheckpointDuration
}

// latestBucket is the bucket containing the current time.
func (p *Pool) latestBucket() uint64 {
	return p.bucketOf(p.now())
}

// maturityFor is the maturity assigned to a position opened now.
func (p *Pool) maturityFor() uint64 {
	return p.latestBucket() + p.cfg.PositionDuration
}

// timeRemaining computes the normalized time to maturity, measured
// from the latest checkpoint so every trade in a bucket prices
// identically. Clamped to [0, 1].
func (p *Pool) timeRemaining(maturity uint64) *big.Int {
	latest := p.latestBucket()
	if maturity <= latest {
		return new(big.Int)
	}
	left := new(big.Int).SetUint64(maturity - latest)
	tau := fp.DivDown(new(big.Int).Mul(left, fp.One), new(big.Int).SetUint64(p.cfg.PositionDuration))
	return fp.Min(tau, fp.One)
}

// toU256 narrows a WAD amount for the vault and ledger boundary.
func toU256(x *big.Int) *uint256.Int {
	u, overflow := uint256.FromBig(x)
	if overflow || x.Sign() < 0 {
		panic(&fp.ArithError{Op: "toU256", Detail: "amount exceeds 256 bits"})
	}
	return u
}

// depositShares pulls the trader's funds into the vault and returns
// the vault share amount credited to the pool.
func (p *Pool) depositShares(from common.Address, amount *big.Int, asBase bool) (*big.Int, error) {
	if asBase {
		shares, err := p.vault.DepositBase(from, toU256(amount))
		if err != nil {
			return nil, err
		}
		return shares.ToBig(), nil
	}
	if err := p.vault.DepositShares(from, toU256(amount)); err != nil {
		return nil, err
	}
	return new(big.Int).Set(amount), nil
}

// withdraw pays shares out of the vault, in base or in shares, and
// returns the amount in the unit the receiver chose.
func (p *Pool) withdraw(to common.Address, shares *big.Int, asBase bool) (*big.Int, error) {
	if shares.Sign() == 0 {
		return new(big.Int), nil
	}
	if asBase {
		base, err := p.vault.WithdrawBase(to, toU256(shares))
		if err != nil {
			return nil, err
		}
		return base.ToBig(), nil
	}
	if err := p.vault.WithdrawShares(to, toU256(shares)); err != nil {
		return nil, err
	}
	return new(big.Int).Set(shares), nil
}

// baseValue converts a share amount to base at the current price.
func (p *Pool) baseValue(shares, c *big.Int) *big.Int {
	return fp.MulDown(shares, c)
}

// requireMinTxn rejects dust that would let rounding dominate.
func (p *Pool) requireMinTxn(baseAmount *big.Int) error {
	if baseAmount.Cmp(p.cfg.MinimumTransactionAmount) < 0 {
		return ErrBelowMinimumTransaction
	}
	return nil
}

// checkSolvency verifies the reserves can back every outstanding
// long at face value and that the donation floor holds.
func (p *Pool) checkSolvency(info *PoolInfo, c *big.Int) error {
	exposureShares := fp.DivUp(info.LongExposure, c)
	need := new(big.Int).Add(p.cfg.MinimumShareReserves, exposureShares)
	if info.ShareReserves.Cmp(need) < 0 {
		return ErrInsufficientLiquidity
	}
	if info.LPTotalSupply.Sign() > 0 {
		floor := new(big.Int).Lsh(p.cfg.MinimumShareReserves, 1)
		if info.ShareReserves.Cmp(floor) < 0 {
			return ErrBelowMinimumShareReserves
		}
	}
	return nil
}

// idleShares is the capital not backing positions or the floor, i.e.
// what can leave the pool immediately.
func (p *Pool) idleShares(info *PoolInfo, c *big.Int) *big.Int {
	idle := new(big.Int).Sub(info.ShareReserves, new(big.Int).Lsh(p.cfg.MinimumShareReserves, 1))
	idle.Sub(idle, fp.DivUp(info.LongExposure, c))
	if idle.Sign() < 0 {
		return new(big.Int)
	}
	return idle
}

// CollectGovernanceFee pays the accrued governance fees to the
// destination. Only the configured governance address or fee
// collector may call it.
func (p *Pool) CollectGovernanceFee(caller, destination common.Address, asBase bool) (proceeds *big.Int, err error) {
	defer fp.Recover(&err, ErrArithmetic)
	if err := p.lock(); err != nil {
		return nil, err
	}
	defer p.unlock()

	if caller != p.cfg.Governance && caller != p.cfg.FeeCollector {
		return nil, ErrUnauthorized
	}
	if destination == (common.Address{}) {
		return nil, ErrInvalidFeeDestination
	}
	amount := new(big.Int).Set(p.info.GovernanceFeesAccrued)
	if amount.Sign() == 0 {
		return new(big.Int), nil
	}
	proceeds, err = p.withdraw(destination, amount, asBase)
	if err != nil {
		return nil, err
	}
	p.info.GovernanceFeesAccrued = new(big.Int)
	p.log.Debug("collected governance fees",
		"destination", destination.Hex(),
		"shares", amount.String(),
	)
	return proceeds, nil
}
