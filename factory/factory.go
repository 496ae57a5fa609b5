// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package factory deploys pools in stages. A deployment pins the
// pool configuration by hash, collects the five target components
// one at a time, and finalizes into a live pool only when every
// target was deployed against the identical configuration.
package factory

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"math/big"
	"sync"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
	log "github.com/luxfi/log"
	"github.com/zeebo/blake3"

	"github.com/luxfi/hyperdrive/hyperdrive"
)

// NumTargets is the number of component deployments a pool needs
// before it can be finalized.
const NumTargets = 5

var (
	ErrUnauthorized         = errors.New("unauthorized")
	ErrConfigMismatch       = errors.New("target config does not match deployment")
	ErrIncompleteDeployment = errors.New("deployment is missing targets")
	ErrUnknownDeployment    = errors.New("unknown deployment")
	ErrDuplicateDeployment  = errors.New("deployment id already used")
	ErrInvalidTargetIndex   = errors.New("target index out of range")
	ErrFeeBounds            = errors.New("fees exceed governance bounds")
	ErrAlreadyFinalized     = errors.New("deployment already finalized")
)

// FeeBounds caps the fee schedule a deployer may configure.
type FeeBounds struct {
	MaxCurve            *big.Int
	MaxFlat             *big.Int
	MaxGovernanceLP     *big.Int
	MaxGovernanceZombie *big.Int
}

// check rejects fee schedules above the caps.
func (b FeeBounds) check(f hyperdrive.FeeParams) error {
	pairs := [][2]*big.Int{
		{f.Curve, b.MaxCurve},
		{f.Flat, b.MaxFlat},
		{f.GovernanceLP, b.MaxGovernanceLP},
		{f.GovernanceZombie, b.MaxGovernanceZombie},
	}
	for _, p := range pairs {
		if p[1] != nil && p[0].Cmp(p[1]) > 0 {
			return ErrFeeBounds
		}
	}
	return nil
}

// Deployment tracks one staged pool deployment.
type Deployment struct {
	ID            common.Hash
	ConfigHash    common.Hash
	ExtraDataHash common.Hash
	Config        hyperdrive.PoolConfig
	Targets       [NumTargets]common.Address
	deployed      [NumTargets]bool
	finalized     bool
}

// Complete reports whether every target has been deployed.
func (d *Deployment) Complete() bool {
	for _, ok := range d.deployed {
		if !ok {
			return false
		}
	}
	return true
}

// Factory creates pools under a governance-controlled fee regime.
type Factory struct {
	mu sync.Mutex

	governance   common.Address
	feeCollector common.Address
	bounds       FeeBounds

	deployments map[common.Hash]*Deployment

	log log.Logger
}

// New builds a factory. Governance owns the fee bounds and becomes
// the governance address of every pool the factory deploys.
func New(governance, feeCollector common.Address, bounds FeeBounds) *Factory {
	return &Factory{
		governance:   governance,
		feeCollector: feeCollector,
		bounds:       bounds,
		deployments:  make(map[common.Hash]*Deployment),
		log:          log.NewTestLogger(log.InfoLevel),
	}
}

// configRecord is the canonical encoding hashed to pin a deployment
// to one configuration.
type configRecord struct {
	BaseToken                common.Address `json:"baseToken"`
	VaultToken               common.Address `json:"vaultToken"`
	InitialSharePrice        *big.Int       `json:"initialSharePrice"`
	MinimumShareReserves     *big.Int       `json:"minimumShareReserves"`
	MinimumTransactionAmount *big.Int       `json:"minimumTransactionAmount"`
	PositionDuration         uint64         `json:"positionDuration"`
	CheckpointDuration       uint64         `json:"checkpointDuration"`
	TimeStretch              *big.Int       `json:"timeStretch"`
	Curve                    *big.Int       `json:"curveFee"`
	Flat                     *big.Int       `json:"flatFee"`
	GovernanceLP             *big.Int       `json:"governanceLPFee"`
	GovernanceZombie         *big.Int       `json:"governanceZombieFee"`
	Governance               common.Address `json:"governance"`
	FeeCollector             common.Address `json:"feeCollector"`
}

// HashConfig derives the canonical configuration hash.
func HashConfig(cfg hyperdrive.PoolConfig) (common.Hash, error) {
	rec := configRecord{
		BaseToken:                cfg.BaseToken,
		VaultToken:               cfg.VaultToken,
		InitialSharePrice:        cfg.InitialSharePrice,
		MinimumShareReserves:     cfg.MinimumShareReserves,
		MinimumTransactionAmount: cfg.MinimumTransactionAmount,
		PositionDuration:         cfg.PositionDuration,
		CheckpointDuration:       cfg.CheckpointDuration,
		TimeStretch:              cfg.TimeStretch,
		Curve:                    cfg.Fees.Curve,
		Flat:                     cfg.Fees.Flat,
		GovernanceLP:             cfg.Fees.GovernanceLP,
		GovernanceZombie:         cfg.Fees.GovernanceZombie,
		Governance:               cfg.Governance,
		FeeCollector:             cfg.FeeCollector,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return common.Hash{}, err
	}
	sum := blake3.Sum256(data)
	return common.BytesToHash(sum[:]), nil
}

// HashExtraData hashes the opaque initialization payload pinned to a
// deployment.
func HashExtraData(extraData []byte) common.Hash {
	sum := blake3.Sum256(extraData)
	return common.BytesToHash(sum[:])
}

// NewDeployment opens a staged deployment for a configuration. The
// config is validated and checked against the fee bounds up front so
// no target can be deployed for an illegal pool. The extra data is an
// opaque payload pinned by hash alongside the configuration.
func (f *Factory) NewDeployment(caller common.Address, id common.Hash, cfg hyperdrive.PoolConfig, extraData []byte) (*Deployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if caller != f.governance {
		return nil, ErrUnauthorized
	}
	if _, ok := f.deployments[id]; ok {
		return nil, ErrDuplicateDeployment
	}
	cfg.Governance = f.governance
	cfg.FeeCollector = f.feeCollector
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := f.bounds.check(cfg.Fees); err != nil {
		return nil, err
	}
	hash, err := HashConfig(cfg)
	if err != nil {
		return nil, err
	}
	d := &Deployment{
		ID:            id,
		ConfigHash:    hash,
		ExtraDataHash: HashExtraData(extraData),
		Config:        cfg,
	}
	f.deployments[id] = d
	f.log.Info("opened deployment", "id", id.Hex(), "configHash", hash.Hex())
	return d, nil
}

// DeployTarget deploys the target at the index, verifying the caller
// resubmitted the exact configuration and extra data the deployment
// was opened with. The target address is derived deterministically
// from the deployment id, the config hash, and the index.
func (f *Factory) DeployTarget(id common.Hash, index int, cfg hyperdrive.PoolConfig, extraData []byte) (common.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	d, ok := f.deployments[id]
	if !ok {
		return common.Address{}, ErrUnknownDeployment
	}
	if index < 0 || index >= NumTargets {
		return common.Address{}, ErrInvalidTargetIndex
	}
	cfg.Governance = d.Config.Governance
	cfg.FeeCollector = d.Config.FeeCollector
	hash, err := HashConfig(cfg)
	if err != nil {
		return common.Address{}, err
	}
	if hash != d.ConfigHash || HashExtraData(extraData) != d.ExtraDataHash {
		return common.Address{}, ErrConfigMismatch
	}
	addr := deriveTarget(id, hash, index)
	d.Targets[index] = addr
	d.deployed[index] = true
	f.log.Debug("deployed target", "id", id.Hex(), "index", index, "address", addr.Hex())
	return addr, nil
}

// deriveTarget computes a stable pseudo-address for a component.
func deriveTarget(id, configHash common.Hash, index int) common.Address {
	var buf [72]byte
	copy(buf[:32], id[:])
	copy(buf[32:64], configHash[:])
	binary.BigEndian.PutUint64(buf[64:], uint64(index))
	return common.BytesToAddress(crypto.Keccak256(buf[:])[12:])
}

// Finalize wires the deployed targets into a live pool. It fails
// unless every target exists, and a deployment can only finalize
// once.
func (f *Factory) Finalize(
	id common.Hash,
	vault hyperdrive.YieldSource,
	ledger hyperdrive.PositionLedger,
	opts ...hyperdrive.Option,
) (*hyperdrive.Pool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	d, ok := f.deployments[id]
	if !ok {
		return nil, ErrUnknownDeployment
	}
	if d.finalized {
		return nil, ErrAlreadyFinalized
	}
	if !d.Complete() {
		return nil, ErrIncompleteDeployment
	}
	pool, err := hyperdrive.NewPool(d.Config, vault, ledger, opts...)
	if err != nil {
		return nil, err
	}
	d.finalized = true
	f.log.Info("finalized deployment", "id", id.Hex())
	return pool, nil
}

// Deployment returns the tracked deployment record.
func (f *Factory) Deployment(id common.Hash) (*Deployment, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.deployments[id]
	return d, ok
}
