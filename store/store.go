// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package store persists finalized pool checkpoints in a key-value
// database so a restarted node can re-price matured positions
// without replaying history.
package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"math/big"

	"github.com/luxfi/database"
	"github.com/zeebo/blake3"

	"github.com/luxfi/hyperdrive/hyperdrive"
)

// CheckpointStore writes one record per checkpoint bucket, keyed by
// the hash of the pool identifier and the bucket timestamp.
type CheckpointStore struct {
	db     database.Database
	poolID [32]byte
}

// New builds a store scoped to one pool.
func New(db database.Database, poolID [32]byte) *CheckpointStore {
	return &CheckpointStore{db: db, poolID: poolID}
}

// checkpointRecord is the stored form of a checkpoint. Big integers
// round-trip through JSON as decimal strings of arbitrary width.
type checkpointRecord struct {
	SharePrice           *big.Int `json:"sharePrice"`
	LongsMaturing        *big.Int `json:"longsMaturing"`
	ShortsMaturing       *big.Int `json:"shortsMaturing"`
	LongProceedsPerBond  *big.Int `json:"longProceedsPerBond"`
	ShortProceedsPerBond *big.Int `json:"shortProceedsPerBond"`
	Matured              bool     `json:"matured"`
}

func (s *CheckpointStore) key(bucket uint64) []byte {
	var buf [40]byte
	copy(buf[:32], s.poolID[:])
	binary.BigEndian.PutUint64(buf[32:], bucket)
	sum := blake3.Sum256(buf[:])
	return sum[:]
}

// Put writes a checkpoint record.
func (s *CheckpointStore) Put(bucket uint64, cp hyperdrive.Checkpoint) error {
	rec := checkpointRecord{
		SharePrice:           cp.SharePrice,
		LongsMaturing:        cp.LongsMaturing,
		ShortsMaturing:       cp.ShortsMaturing,
		LongProceedsPerBond:  cp.LongProceedsPerBond,
		ShortProceedsPerBond: cp.ShortProceedsPerBond,
		Matured:              cp.Matured,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Put(s.key(bucket), data)
}

// Get reads a checkpoint record, reporting false when the bucket has
// never been written.
func (s *CheckpointStore) Get(bucket uint64) (hyperdrive.Checkpoint, bool, error) {
	data, err := s.db.Get(s.key(bucket))
	if errors.Is(err, database.ErrNotFound) {
		return hyperdrive.Checkpoint{}, false, nil
	}
	if err != nil {
		return hyperdrive.Checkpoint{}, false, err
	}
	var rec checkpointRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return hyperdrive.Checkpoint{}, false, err
	}
	cp := hyperdrive.Checkpoint{
		SharePrice:           orZero(rec.SharePrice),
		LongsMaturing:        orZero(rec.LongsMaturing),
		ShortsMaturing:       orZero(rec.ShortsMaturing),
		LongProceedsPerBond:  orZero(rec.LongProceedsPerBond),
		ShortProceedsPerBond: orZero(rec.ShortProceedsPerBond),
		Matured:              rec.Matured,
	}
	return cp, true, nil
}

// Has reports whether the bucket has a stored record.
func (s *CheckpointStore) Has(bucket uint64) (bool, error) {
	return s.db.Has(s.key(bucket))
}

func orZero(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return x
}
