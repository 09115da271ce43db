// Package settlement performs on-chain split/merge/redeem operations against
// the conditional-tokens framework, including position-ID derivation and
// the standard-vs-negative-risk contract dispatch.
package settlement

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/polyarb/polyarb/pkg/types"
)

var (
	uint256Ty, _ = abi.NewType("uint256", "", nil)
	bytes32Ty, _ = abi.NewType("bytes32", "", nil)
	addressTy, _ = abi.NewType("address", "", nil)

	collectionIDArgs = abi.Arguments{{Type: bytes32Ty}, {Type: bytes32Ty}, {Type: uint256Ty}}
	positionIDArgs   = abi.Arguments{{Type: addressTy}, {Type: bytes32Ty}}
)

// DeriveCollectionID computes keccak256(parentCollectionId ‖ conditionId ‖
// indexSet) per the conditional-tokens framework. parentCollectionId is the
// zero value for a first-level split (the only case this system performs).
func DeriveCollectionID(conditionID [32]byte, indexSet uint64) [32]byte {
	var parent [32]byte
	packed, err := collectionIDArgs.Pack(parent, conditionID, new(big.Int).SetUint64(indexSet))
	if err != nil {
		panic("settlement: pack collection id: " + err.Error())
	}
	return crypto.Keccak256Hash(packed)
}

// DerivePositionID computes keccak256(collateralToken ‖ collectionId), the
// ERC1155 token id that represents a claim on the given outcome.
func DerivePositionID(collateralToken common.Address, collectionID [32]byte) *big.Int {
	packed, err := positionIDArgs.Pack(collateralToken, collectionID)
	if err != nil {
		panic("settlement: pack position id: " + err.Error())
	}
	return new(big.Int).SetBytes(crypto.Keccak256(packed))
}

// DerivePosition builds the full OnChainPosition for one leg of a binary
// market. indexSet must be types.IndexSetYes or types.IndexSetNo.
func DerivePosition(conditionID [32]byte, collateral common.Address, indexSet uint64, isNegRisk bool) types.OnChainPosition {
	collectionID := DeriveCollectionID(conditionID, indexSet)
	positionID := DerivePositionID(collateral, collectionID)

	return types.OnChainPosition{
		ConditionID:    conditionID,
		CollateralAddr: collateral.Hex(),
		IndexSet:       indexSet,
		CollectionID:   collectionID,
		PositionID:     positionID,
		IsNegRisk:      isNegRisk,
	}
}

// ConditionIDFromHex parses a 0x-prefixed 32-byte hex string.
func ConditionIDFromHex(hex string) [32]byte {
	return common.HexToHash(hex)
}
