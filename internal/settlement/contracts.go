package settlement

import "strings"

// Polygon mainnet addresses for the conditional-tokens framework. The
// negative-risk market is a parallel deployment: its own exchange and its
// own adapter in front of the same ERC1155 contract.
const (
	PolygonUSDC            = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"
	PolygonCTF             = "0x4D97DCd97eC945f40cF65F87097ACe5EA0476045"
	PolygonCTFExchange     = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"
	PolygonNegRiskExchange = "0xC5d563A36AE78145C45a50134d48A1215220f80"
	PolygonNegRiskAdapter  = "0xd91E80cF2E7be2e162c6513ceD06f1dD0dA35296"
)

const (
	splitPositionABI = `[{"inputs":[{"name":"collateralToken","type":"address"},{"name":"parentCollectionId","type":"bytes32"},{"name":"conditionId","type":"bytes32"},{"name":"partition","type":"uint256[]"},{"name":"amount","type":"uint256"}],"name":"splitPosition","outputs":[],"type":"function"}]`
	mergePositionsABI = `[{"inputs":[{"name":"collateralToken","type":"address"},{"name":"parentCollectionId","type":"bytes32"},{"name":"conditionId","type":"bytes32"},{"name":"partition","type":"uint256[]"},{"name":"amount","type":"uint256"}],"name":"mergePositions","outputs":[],"type":"function"}]`
	redeemPositionsABI = `[{"inputs":[{"name":"collateralToken","type":"address"},{"name":"parentCollectionId","type":"bytes32"},{"name":"conditionId","type":"bytes32"},{"name":"indexSets","type":"uint256[]"}],"name":"redeemPositions","outputs":[],"type":"function"}]`

	erc20ApproveABI = `[{"inputs":[{"name":"spender","type":"address"},{"name":"value","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"},` +
		`{"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"},` +
		`{"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"}]`

	erc1155ApprovalABI = `[{"inputs":[{"name":"operator","type":"address"},{"name":"approved","type":"bool"}],"name":"setApprovalForAll","outputs":[],"type":"function"},` +
		`{"inputs":[{"name":"owner","type":"address"},{"name":"operator","type":"address"}],"name":"isApprovedForAll","outputs":[{"name":"","type":"bool"}],"type":"function"},` +
		`{"inputs":[{"name":"owner","type":"address"},{"name":"id","type":"uint256"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"}]`
)

// exchangeFor returns the exchange address that a market's orders clear
// against, selected by its isNegRisk flag.
func exchangeFor(isNegRisk bool) string {
	if isNegRisk {
		return PolygonNegRiskExchange
	}
	return PolygonCTFExchange
}

// operatorsFor returns every ERC1155 operator that must hold
// setApprovalForAll for a position to be fully tradeable: the relevant
// exchange, and — for neg-risk markets — the adapter that fronts it.
func operatorsFor(isNegRisk bool) []string {
	if isNegRisk {
		return []string{PolygonNegRiskExchange, PolygonNegRiskAdapter}
	}
	return []string{PolygonCTFExchange}
}

func normalizeAddr(addr string) string {
	return strings.ToLower(addr)
}
