// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hyperdrive

import (
	"errors"

	"github.com/holiman/uint256"
)

// AssetKind discriminates the position token families.
type AssetKind uint8

const (
	AssetLP AssetKind = iota
	AssetLong
	AssetShort
	AssetWithdrawalShare
)

func (k AssetKind) String() string {
	switch k {
	case AssetLP:
		return "lp"
	case AssetLong:
		return "long"
	case AssetShort:
		return "short"
	case AssetWithdrawalShare:
		return "withdrawal-share"
	default:
		return "unknown"
	}
}

// ErrInvalidAssetID is returned when an asset ID does not decode to a
// known kind and an in-range maturity time.
var ErrInvalidAssetID = errors.New("invalid asset id")

// EncodeAssetID packs a kind and maturity time into a single 256-bit
// token identifier: the kind occupies the top 8 bits, the maturity
// the low bits. LP and withdrawal-share assets have no maturity and
// use zero.
func EncodeAssetID(kind AssetKind, maturityTime uint64) *uint256.Int {
	id := uint256.NewInt(uint64(kind))
	id.Lsh(id, 248)
	return id.Or(id, uint256.NewInt(maturityTime))
}

// DecodeAssetID unpacks an asset ID produced by EncodeAssetID.
func DecodeAssetID(id *uint256.Int) (AssetKind, uint64, error) {
	prefix := new(uint256.Int).Rsh(id, 248)
	kind := AssetKind(prefix.Uint64())
	if kind > AssetWithdrawalShare {
		return 0, 0, ErrInvalidAssetID
	}
	rest := new(uint256.Int).Lsh(prefix, 248)
	rest.Xor(rest, id)
	if !rest.IsUint64() {
		return 0, 0, ErrInvalidAssetID
	}
	maturity := rest.Uint64()
	if (kind == AssetLP || kind == AssetWithdrawalShare) && maturity != 0 {
		return 0, 0, ErrInvalidAssetID
	}
	return kind, maturity, nil
}

// LPAssetID is the identifier of the LP share token.
func LPAssetID() *uint256.Int { return EncodeAssetID(AssetLP, 0) }

// WithdrawalShareAssetID is the identifier of the withdrawal share token.
func WithdrawalShareAssetID() *uint256.Int { return EncodeAssetID(AssetWithdrawalShare, 0) }
