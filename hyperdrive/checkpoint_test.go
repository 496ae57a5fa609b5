// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hyperdrive

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckpointBackfill(t *testing.T) {
	e := newTestEnv(t, zeroFees(), new(big.Int))
	e.initialize(wad(100_000_000), fivePercent)

	e.clock.advance(5 * day)
	require.NoError(t, e.pool.Checkpoint(e.clock.now()))

	for i := uint64(0); i <= 5; i++ {
		cp, ok := e.pool.GetCheckpoint(genesis + i*day)
		require.True(t, ok, "bucket %d missing", i)
		require.Positive(t, cp.SharePrice.Sign())
	}
}

func TestCheckpointPriceImmutable(t *testing.T) {
	rate := big.NewInt(100_000_000_000_000_000)
	e := newTestEnv(t, zeroFees(), rate)
	e.initialize(wad(100_000_000), fivePercent)

	e.clock.advance(day)
	require.NoError(t, e.pool.Checkpoint(e.clock.now()))
	cp1, ok := e.pool.GetCheckpoint(e.clock.now())
	require.True(t, ok)

	// Later accrual must not rewrite the recorded price.
	e.clock.advance(100 * day)
	require.NoError(t, e.pool.Checkpoint(e.clock.now()))
	cp2, ok := e.pool.GetCheckpoint(genesis + day)
	require.True(t, ok)
	require.Equal(t, cp1.SharePrice.String(), cp2.SharePrice.String())
}

func TestCheckpointInFutureRejected(t *testing.T) {
	e := newTestEnv(t, zeroFees(), new(big.Int))
	e.initialize(wad(100_000_000), fivePercent)

	err := e.pool.Checkpoint(e.clock.now() + day)
	require.ErrorIs(t, err, ErrInvalidMaturity)
}

// TestZombieNegativeInterest marks down a matured claim when the
// vault loses money after maturity.
func TestZombieNegativeInterest(t *testing.T) {
	e := newTestEnv(t, zeroFees(), new(big.Int))
	e.initialize(wad(100_000_000), fivePercent)

	deposit := wad(1_000_000)
	e.fund(e.bob, deposit)
	maturity, bonds, err := e.pool.OpenLong(e.bob, e.bob, deposit, new(big.Int), true)
	require.NoError(t, err)

	e.clock.advance(year)
	require.NoError(t, e.pool.Checkpoint(e.clock.now()))

	// The vault loses 20% over the next year while the claim sits
	// unredeemed.
	require.NoError(t, e.vault.SetRate(big.NewInt(-200_000_000_000_000_000)))
	e.clock.advance(year)

	proceeds, err := e.pool.CloseLong(e.bob, e.bob, maturity, bonds, new(big.Int), true)
	require.NoError(t, err)

	want := new(big.Int).Quo(new(big.Int).Mul(bonds, big.NewInt(8)), big.NewInt(10))
	requireClose(t, want, proceeds, 100)
}

// TestZombieInterestAccruesToClaim pays post-maturity vault gains to
// the unredeemed holder, net of the governance skim.
func TestZombieInterestAccruesToClaim(t *testing.T) {
	fees := zeroFees()
	fees.GovernanceZombie = big.NewInt(100_000_000_000_000_000) // 10%
	e := newTestEnv(t, fees, new(big.Int))
	e.initialize(wad(100_000_000), fivePercent)

	deposit := wad(1_000_000)
	e.fund(e.bob, deposit)
	maturity, bonds, err := e.pool.OpenLong(e.bob, e.bob, deposit, new(big.Int), true)
	require.NoError(t, err)

	e.clock.advance(year)
	require.NoError(t, e.pool.Checkpoint(e.clock.now()))

	require.NoError(t, e.vault.SetRate(big.NewInt(100_000_000_000_000_000)))
	e.clock.advance(year)

	proceeds, err := e.pool.CloseLong(e.bob, e.bob, maturity, bonds, new(big.Int), true)
	require.NoError(t, err)

	// Face plus 10% interest, minus the 10% governance skim of the
	// interest: face * (1 + 0.09).
	want := new(big.Int).Quo(new(big.Int).Mul(bonds, big.NewInt(109)), big.NewInt(100))
	requireClose(t, want, proceeds, 100)
	require.Positive(t, e.pool.UncollectedGovernanceFees().Sign())
}

func TestMaturedPositionsLeaveExposure(t *testing.T) {
	e := newTestEnv(t, zeroFees(), new(big.Int))
	e.initialize(wad(100_000_000), fivePercent)

	deposit := wad(1_000_000)
	e.fund(e.bob, deposit)
	_, _, err := e.pool.OpenLong(e.bob, e.bob, deposit, new(big.Int), true)
	require.NoError(t, err)
	require.Positive(t, e.pool.Info().LongExposure.Sign())
	require.Positive(t, e.pool.Info().LongsOutstanding.Sign())

	e.clock.advance(year)
	require.NoError(t, e.pool.Checkpoint(e.clock.now()))

	info := e.pool.Info()
	require.Zero(t, info.LongExposure.Sign())
	require.Zero(t, info.LongsOutstanding.Sign())
	require.Positive(t, info.ZombieShareReserves.Sign())
}
