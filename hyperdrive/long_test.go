// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hyperdrive

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	fp "github.com/luxfi/hyperdrive/fixedpoint"
	"github.com/luxfi/hyperdrive/yieldspace"
)

var fivePercent = big.NewInt(50_000_000_000_000_000)

func TestOpenLongPaysFixedRate(t *testing.T) {
	e := newTestEnv(t, zeroFees(), new(big.Int))
	e.initialize(wad(100_000_000), fivePercent)

	deposit := wad(1_000_000)
	e.fund(e.bob, deposit)
	maturity, bonds, err := e.pool.OpenLong(e.bob, e.bob, deposit, new(big.Int), true)
	require.NoError(t, err)
	require.Equal(t, genesis+year, maturity)

	// Bonds redeem at par, so the face must exceed the deposit by
	// roughly the fixed rate and never by more than the rate at the
	// starting spot price.
	require.Positive(t, new(big.Int).Sub(bonds, deposit).Sign())
	cap := fp.MulDown(deposit, new(big.Int).Add(fp.One, big.NewInt(60_000_000_000_000_000)))
	require.Negative(t, bonds.Cmp(cap))

	id := EncodeAssetID(AssetLong, maturity)
	require.Equal(t, bonds.String(), e.ledger.BalanceOf(id, e.bob).ToBig().String())
}

func TestLongImmediateRoundTripFavorsPool(t *testing.T) {
	e := newTestEnv(t, zeroFees(), new(big.Int))
	e.initialize(wad(100_000_000), fivePercent)

	deposit := wad(1_000_000)
	e.fund(e.bob, deposit)
	maturity, bonds, err := e.pool.OpenLong(e.bob, e.bob, deposit, new(big.Int), true)
	require.NoError(t, err)

	proceeds, err := e.pool.CloseLong(e.bob, e.bob, maturity, bonds, new(big.Int), true)
	require.NoError(t, err)
	require.LessOrEqual(t, proceeds.Cmp(deposit), 0)
	requireClose(t, deposit, proceeds, 10_000)
}

func TestLongMaturedRedemptionAtPar(t *testing.T) {
	e := newTestEnv(t, zeroFees(), new(big.Int))
	e.initialize(wad(100_000_000), fivePercent)

	deposit := wad(1_000_000)
	e.fund(e.bob, deposit)
	maturity, bonds, err := e.pool.OpenLong(e.bob, e.bob, deposit, new(big.Int), true)
	require.NoError(t, err)

	e.clock.advance(year)
	require.NoError(t, e.pool.Checkpoint(e.clock.now()))

	proceeds, err := e.pool.CloseLong(e.bob, e.bob, maturity, bonds, new(big.Int), true)
	require.NoError(t, err)
	requireClose(t, bonds, proceeds, 1_000_000)
}

func TestCloseLongProceedsGrowTowardPar(t *testing.T) {
	// With a zero variable rate and no fees, a long closed later is
	// worth more: the curve leg shrinks toward the flat par leg as
	// the position ages.
	deposit := wad(1_000_000)
	closeAfter := func(elapsed uint64) *big.Int {
		e := newTestEnv(t, zeroFees(), new(big.Int))
		e.initialize(wad(100_000_000), fivePercent)
		e.fund(e.bob, deposit)
		maturity, bonds, err := e.pool.OpenLong(e.bob, e.bob, deposit, new(big.Int), true)
		require.NoError(t, err)

		e.clock.advance(elapsed)
		require.NoError(t, e.pool.Checkpoint(e.clock.now()))
		proceeds, err := e.pool.CloseLong(e.bob, e.bob, maturity, bonds, new(big.Int), true)
		require.NoError(t, err)
		return proceeds
	}

	early := closeAfter(day)
	mid := closeAfter(year / 2)
	late := closeAfter(year)
	require.Negative(t, early.Cmp(mid))
	require.Negative(t, mid.Cmp(late))
}

// TestCloseLongMatchesCurveQuote closes a fee-free long immediately,
// while its full face still trades on the curve, and checks the payout
// against a standalone curve quote on the post-open reserves.
func TestCloseLongMatchesCurveQuote(t *testing.T) {
	e := newTestEnv(t, zeroFees(), new(big.Int))
	e.initialize(wad(100_000_000), fivePercent)

	deposit := wad(1_000_000)
	e.fund(e.bob, deposit)
	maturity, bonds, err := e.pool.OpenLong(e.bob, e.bob, deposit, new(big.Int), true)
	require.NoError(t, err)

	info := e.pool.Info()
	curve := yieldspace.Curve{
		ShareReserves:     info.ShareReserves,
		BondReserves:      info.BondReserves,
		SharePrice:        wad(1),
		InitialSharePrice: wad(1),
		TimeStretch:       testConfig(zeroFees()).TimeStretch,
	}
	want := curve.SharesOutGivenBondsIn(bonds)

	proceeds, err := e.pool.CloseLong(e.bob, e.bob, maturity, bonds, new(big.Int), true)
	require.NoError(t, err)
	require.Equal(t, want.String(), proceeds.String())
}

func TestLongSlippageBound(t *testing.T) {
	e := newTestEnv(t, zeroFees(), new(big.Int))
	e.initialize(wad(100_000_000), fivePercent)

	deposit := wad(1_000_000)
	e.fund(e.bob, deposit)
	_, _, err := e.pool.OpenLong(e.bob, e.bob, deposit, wad(2_000_000), true)
	require.ErrorIs(t, err, ErrSlippage)
}

func TestLongOversizedTradeRejected(t *testing.T) {
	e := newTestEnv(t, zeroFees(), new(big.Int))
	e.initialize(wad(1_000_000), fivePercent)

	e.fund(e.bob, wad(100_000_000))
	_, _, err := e.pool.OpenLong(e.bob, e.bob, wad(100_000_000), new(big.Int), true)
	require.Error(t, err)
}

// TestGovernanceFeeCarveOut compares a pool whose entire curve fee
// goes to governance with a fee-free pool: the trader's fee is
// carved out of the trade, so the LP reserves follow the fee-free
// trajectory.
func TestGovernanceFeeCarveOut(t *testing.T) {
	free := newTestEnv(t, zeroFees(), new(big.Int))
	taxed := newTestEnv(t, FeeParams{
		Curve:            big.NewInt(100_000_000_000_000_000), // 10%
		Flat:             new(big.Int),
		GovernanceLP:     fp.One, // 100% to governance
		GovernanceZombie: new(big.Int),
	}, new(big.Int))

	contribution := wad(500_000_000)
	free.initialize(contribution, fivePercent)
	taxed.initialize(contribution, fivePercent)

	deposit := wad(10_000_000)
	for _, e := range []*testEnv{free, taxed} {
		e.fund(e.bob, deposit)
		maturity, bonds, err := e.pool.OpenLong(e.bob, e.bob, deposit, new(big.Int), true)
		require.NoError(t, err)
		_, err = e.pool.CloseLong(e.bob, e.bob, maturity, bonds, new(big.Int), true)
		require.NoError(t, err)
	}

	requireClose(t,
		free.pool.Info().ShareReserves,
		taxed.pool.Info().ShareReserves,
		10_000,
	)
	// The fee went somewhere: governance accrued it all.
	require.Positive(t, taxed.pool.UncollectedGovernanceFees().Sign())
	require.Zero(t, free.pool.UncollectedGovernanceFees().Sign())
}

func TestTargetedLongHitsRate(t *testing.T) {
	e := newTestEnv(t, zeroFees(), new(big.Int))
	e.initialize(wad(100_000_000), fivePercent)

	target := big.NewInt(40_000_000_000_000_000) // 4%
	amount, err := e.pool.TargetedLongAmount(target, nil)
	require.NoError(t, err)
	require.Positive(t, amount.Sign())

	e.fund(e.bob, amount)
	_, _, err = e.pool.OpenLong(e.bob, e.bob, amount, new(big.Int), true)
	require.NoError(t, err)

	apr, err := e.pool.SpotAPR()
	require.NoError(t, err)
	requireClose(t, target, apr, 10_000)
}

func TestTargetedLongAboveCurrentRateIsZero(t *testing.T) {
	e := newTestEnv(t, zeroFees(), new(big.Int))
	e.initialize(wad(100_000_000), fivePercent)

	amount, err := e.pool.TargetedLongAmount(wad(1), nil)
	require.NoError(t, err)
	require.Zero(t, amount.Sign())
}

func TestTargetedLongRespectsBudget(t *testing.T) {
	e := newTestEnv(t, zeroFees(), new(big.Int))
	e.initialize(wad(100_000_000), fivePercent)

	target := big.NewInt(40_000_000_000_000_000) // 4%
	uncapped, err := e.pool.TargetedLongAmount(target, nil)
	require.NoError(t, err)
	require.Positive(t, uncapped.Sign())

	budget := new(big.Int).Rsh(uncapped, 1)
	capped, err := e.pool.TargetedLongAmount(target, budget)
	require.NoError(t, err)
	require.Equal(t, budget.String(), capped.String())

	// A budget above the full size never inflates the trade.
	roomy, err := e.pool.TargetedLongAmount(target, new(big.Int).Lsh(uncapped, 1))
	require.NoError(t, err)
	require.Equal(t, uncapped.String(), roomy.String())

	// Spending the capped amount moves the rate only part way down.
	e.fund(e.bob, capped)
	_, _, err = e.pool.OpenLong(e.bob, e.bob, capped, new(big.Int), true)
	require.NoError(t, err)
	apr, err := e.pool.SpotAPR()
	require.NoError(t, err)
	require.Positive(t, apr.Cmp(target))
	require.Negative(t, apr.Cmp(fivePercent))
}

func TestCloseLongInvalidMaturity(t *testing.T) {
	e := newTestEnv(t, zeroFees(), new(big.Int))
	e.initialize(wad(100_000_000), fivePercent)

	_, err := e.pool.CloseLong(e.bob, e.bob, genesis+year+1, wad(10), new(big.Int), true)
	require.ErrorIs(t, err, ErrInvalidMaturity)

	_, err = e.pool.CloseLong(e.bob, e.bob, genesis+2*year, wad(10), new(big.Int), true)
	require.ErrorIs(t, err, ErrInvalidMaturity)
}
