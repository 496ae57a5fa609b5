// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hyperdrive

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenShortMarginBelowFace(t *testing.T) {
	e := newTestEnv(t, zeroFees(), new(big.Int))
	e.initialize(wad(100_000_000), fivePercent)

	face := wad(1_000_000)
	e.fund(e.bob, face)
	maturity, deposit, err := e.pool.OpenShort(e.bob, e.bob, face, face, true)
	require.NoError(t, err)
	require.Equal(t, genesis+year, maturity)

	// The margin is the discount below par plus slippage: a few
	// percent of the face, never the whole face.
	require.Negative(t, deposit.Cmp(face))
	require.Positive(t, deposit.Sign())
	tenth := new(big.Int).Quo(face, big.NewInt(10))
	require.Negative(t, deposit.Cmp(tenth))

	id := EncodeAssetID(AssetShort, maturity)
	require.Equal(t, face.String(), e.ledger.BalanceOf(id, e.bob).ToBig().String())
}

func TestShortImmediateRoundTripFavorsPool(t *testing.T) {
	e := newTestEnv(t, zeroFees(), new(big.Int))
	e.initialize(wad(100_000_000), fivePercent)

	face := wad(1_000_000)
	e.fund(e.bob, face)
	maturity, deposit, err := e.pool.OpenShort(e.bob, e.bob, face, face, true)
	require.NoError(t, err)

	proceeds, err := e.pool.CloseShort(e.bob, e.bob, maturity, face, new(big.Int), true)
	require.NoError(t, err)
	require.LessOrEqual(t, proceeds.Cmp(deposit), 0)
	requireClose(t, deposit, proceeds, 1_000)
}

func TestShortEarnsVariableInterest(t *testing.T) {
	rate := big.NewInt(100_000_000_000_000_000) // 10% variable
	e := newTestEnv(t, zeroFees(), rate)
	e.initialize(wad(100_000_000), fivePercent)

	face := wad(1_000_000)
	e.fund(e.bob, face)
	maturity, _, err := e.pool.OpenShort(e.bob, e.bob, face, face, true)
	require.NoError(t, err)

	e.clock.advance(year)
	require.NoError(t, e.pool.Checkpoint(e.clock.now()))

	proceeds, err := e.pool.CloseShort(e.bob, e.bob, maturity, face, new(big.Int), true)
	require.NoError(t, err)

	// Base proceeds at maturity are the variable interest earned on
	// the face: face * (c_m - c_0) / c_0, paid at the matured price.
	want := new(big.Int).Quo(face, big.NewInt(10))
	requireClose(t, want, proceeds, 100)
}

func TestShortZeroInterestRedeemsToNothing(t *testing.T) {
	e := newTestEnv(t, zeroFees(), new(big.Int))
	e.initialize(wad(100_000_000), fivePercent)

	face := wad(1_000_000)
	e.fund(e.bob, face)
	maturity, _, err := e.pool.OpenShort(e.bob, e.bob, face, face, true)
	require.NoError(t, err)

	e.clock.advance(year)
	require.NoError(t, e.pool.Checkpoint(e.clock.now()))

	proceeds, err := e.pool.CloseShort(e.bob, e.bob, maturity, face, new(big.Int), true)
	require.NoError(t, err)
	require.Zero(t, proceeds.Sign())
}

func TestShortDepositBound(t *testing.T) {
	e := newTestEnv(t, zeroFees(), new(big.Int))
	e.initialize(wad(100_000_000), fivePercent)

	face := wad(1_000_000)
	e.fund(e.bob, face)
	_, _, err := e.pool.OpenShort(e.bob, e.bob, face, big.NewInt(1), true)
	require.ErrorIs(t, err, ErrSlippage)
}

func TestShortCurveFeeRaisesDeposit(t *testing.T) {
	free := newTestEnv(t, zeroFees(), new(big.Int))
	taxed := newTestEnv(t, FeeParams{
		Curve:            big.NewInt(100_000_000_000_000_000),
		Flat:             new(big.Int),
		GovernanceLP:     new(big.Int),
		GovernanceZombie: new(big.Int),
	}, new(big.Int))

	face := wad(1_000_000)
	var deposits [2]*big.Int
	for i, e := range []*testEnv{free, taxed} {
		e.initialize(wad(100_000_000), fivePercent)
		e.fund(e.bob, face)
		_, d, err := e.pool.OpenShort(e.bob, e.bob, face, face, true)
		require.NoError(t, err)
		deposits[i] = d
	}
	require.Positive(t, deposits[1].Cmp(deposits[0]))
}
