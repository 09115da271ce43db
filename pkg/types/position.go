package types

import "math/big"

// IndexSet values for a binary market's two outcomes, used in CTF
// collection-id derivation. YES occupies bit 0, NO occupies bit 1.
const (
	IndexSetYes uint64 = 1
	IndexSetNo  uint64 = 2
)

// OnChainPosition is a derived conditional-token position: a claim on $1
// collateral if (conditionID, indexSet) resolves true.
type OnChainPosition struct {
	ConditionID    [32]byte
	CollateralAddr string
	IndexSet       uint64
	CollectionID   [32]byte
	PositionID     *big.Int
	IsNegRisk      bool
}
