// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package factory

import (
	"math/big"
	"testing"

	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"

	fp "github.com/luxfi/hyperdrive/fixedpoint"
	"github.com/luxfi/hyperdrive/hyperdrive"
	"github.com/luxfi/hyperdrive/ledger"
	"github.com/luxfi/hyperdrive/vault"
)

var (
	governance = common.HexToAddress("0x60")
	collector  = common.HexToAddress("0x61")
	stranger   = common.HexToAddress("0x66")
)

func testBounds() FeeBounds {
	return FeeBounds{
		MaxCurve:            big.NewInt(100_000_000_000_000_000),
		MaxFlat:             big.NewInt(10_000_000_000_000_000),
		MaxGovernanceLP:     fp.One,
		MaxGovernanceZombie: fp.One,
	}
}

func testPoolConfig() hyperdrive.PoolConfig {
	return hyperdrive.PoolConfig{
		BaseToken:                common.HexToAddress("0x0b"),
		VaultToken:               common.HexToAddress("0x0c"),
		InitialSharePrice:        new(big.Int).Set(fp.One),
		MinimumShareReserves:     big.NewInt(50_000),
		MinimumTransactionAmount: big.NewInt(1_000),
		PositionDuration:         31_536_000,
		CheckpointDuration:       86_400,
		TimeStretch:              big.NewInt(45_000_000_000_000_000),
		Fees: hyperdrive.FeeParams{
			Curve:            big.NewInt(50_000_000_000_000_000),
			Flat:             big.NewInt(5_000_000_000_000_000),
			GovernanceLP:     big.NewInt(150_000_000_000_000_000),
			GovernanceZombie: big.NewInt(30_000_000_000_000_000),
		},
	}
}

var extra = []byte("hyperdrive")

func deployID(n byte) common.Hash {
	var h common.Hash
	h[31] = n
	return h
}

func TestStagedDeployment(t *testing.T) {
	f := New(governance, collector, testBounds())
	cfg := testPoolConfig()

	d, err := f.NewDeployment(governance, deployID(1), cfg, extra)
	require.NoError(t, err)
	require.False(t, d.Complete())

	var addrs [NumTargets]common.Address
	for i := 0; i < NumTargets; i++ {
		addr, err := f.DeployTarget(deployID(1), i, cfg, extra)
		require.NoError(t, err)
		require.NotEqual(t, common.Address{}, addr)
		addrs[i] = addr
	}
	require.True(t, d.Complete())

	// Derivation is deterministic and index-distinct.
	again, err := f.DeployTarget(deployID(1), 0, cfg, extra)
	require.NoError(t, err)
	require.Equal(t, addrs[0], again)
	require.NotEqual(t, addrs[0], addrs[1])

	v, err := vault.NewAccruingVault(new(big.Int).Set(fp.One), new(big.Int))
	require.NoError(t, err)
	pool, err := f.Finalize(deployID(1), v, ledger.New())
	require.NoError(t, err)
	require.NotNil(t, pool)

	// Governance wiring flows into the pool config.
	require.Equal(t, governance, pool.Config().Governance)
	require.Equal(t, collector, pool.Config().FeeCollector)

	_, err = f.Finalize(deployID(1), v, ledger.New())
	require.ErrorIs(t, err, ErrAlreadyFinalized)
}

func TestDeployTargetConfigMismatch(t *testing.T) {
	f := New(governance, collector, testBounds())
	cfg := testPoolConfig()
	_, err := f.NewDeployment(governance, deployID(2), cfg, extra)
	require.NoError(t, err)

	altered := testPoolConfig()
	altered.Fees.Curve = big.NewInt(60_000_000_000_000_000)
	_, err = f.DeployTarget(deployID(2), 0, altered, extra)
	require.ErrorIs(t, err, ErrConfigMismatch)
}

func TestDeployTargetExtraDataMismatch(t *testing.T) {
	f := New(governance, collector, testBounds())
	cfg := testPoolConfig()
	_, err := f.NewDeployment(governance, deployID(7), cfg, extra)
	require.NoError(t, err)

	_, err = f.DeployTarget(deployID(7), 0, cfg, []byte("other"))
	require.ErrorIs(t, err, ErrConfigMismatch)
}

func TestFinalizeIncomplete(t *testing.T) {
	f := New(governance, collector, testBounds())
	cfg := testPoolConfig()
	_, err := f.NewDeployment(governance, deployID(3), cfg, extra)
	require.NoError(t, err)

	for i := 0; i < NumTargets-1; i++ {
		_, err := f.DeployTarget(deployID(3), i, cfg, extra)
		require.NoError(t, err)
	}
	v, err := vault.NewAccruingVault(new(big.Int).Set(fp.One), new(big.Int))
	require.NoError(t, err)
	_, err = f.Finalize(deployID(3), v, ledger.New())
	require.ErrorIs(t, err, ErrIncompleteDeployment)
}

func TestFeeBoundsEnforced(t *testing.T) {
	f := New(governance, collector, testBounds())
	cfg := testPoolConfig()
	cfg.Fees.Curve = big.NewInt(200_000_000_000_000_000) // above the cap
	_, err := f.NewDeployment(governance, deployID(4), cfg, extra)
	require.ErrorIs(t, err, ErrFeeBounds)
}

func TestDeploymentAuthorization(t *testing.T) {
	f := New(governance, collector, testBounds())
	_, err := f.NewDeployment(stranger, deployID(5), testPoolConfig(), extra)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestDuplicateDeploymentID(t *testing.T) {
	f := New(governance, collector, testBounds())
	_, err := f.NewDeployment(governance, deployID(6), testPoolConfig(), extra)
	require.NoError(t, err)
	_, err = f.NewDeployment(governance, deployID(6), testPoolConfig(), extra)
	require.ErrorIs(t, err, ErrDuplicateDeployment)
}

func TestUnknownDeployment(t *testing.T) {
	f := New(governance, collector, testBounds())
	_, err := f.DeployTarget(deployID(9), 0, testPoolConfig(), extra)
	require.ErrorIs(t, err, ErrUnknownDeployment)
}
