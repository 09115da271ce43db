// Package pricing computes effective YES/NO prices that account for the
// exchange's mirror identity ("buy YES at P == sell NO at 1-P") and the
// arbitrage predicate built on top of them.
package pricing

import "github.com/polyarb/polyarb/pkg/types"

// ComputeEffectivePrices derives the mirror-adjusted effective prices for a
// market's YES and NO books. Naive top-of-book comparison reports phantom
// arbitrage because the same resting order appears on both legs; mirroring
// each side against 1-otherSide removes that double count.
func ComputeEffectivePrices(yesAsk, yesBid, noAsk, noBid float64) types.EffectivePrices {
	effBuyYes := min(yesAsk, 1-noBid)
	effBuyNo := min(noAsk, 1-yesBid)
	effSellYes := max(yesBid, 1-noAsk)
	effSellNo := max(noBid, 1-yesAsk)

	return types.EffectivePrices{
		EffBuyYes:    effBuyYes,
		EffBuyNo:     effBuyNo,
		EffSellYes:   effSellYes,
		EffSellNo:    effSellNo,
		LongCost:     effBuyYes + effBuyNo,
		ShortRevenue: effSellYes + effSellNo,
	}
}

// ArbResult is the outcome of CheckArbitrage: nil when no arbitrage exists.
type ArbResult struct {
	Type   types.OpportunityType
	Profit float64 // fraction of $1 notional
	Action string
}

// CheckArbitrage evaluates the long/short arbitrage predicate against a set
// of effective prices. When both conditions would qualify (only possible
// through mirror inefficiency) long is returned, since it requires no prior
// inventory to execute.
func CheckArbitrage(prices types.EffectivePrices, epsilon float64) *ArbResult {
	if prices.LongCost < 1-epsilon {
		return &ArbResult{
			Type:   types.OpportunityLong,
			Profit: 1 - prices.LongCost,
			Action: "buy YES + buy NO, merge",
		}
	}
	if prices.ShortRevenue > 1+epsilon {
		return &ArbResult{
			Type:   types.OpportunityShort,
			Profit: prices.ShortRevenue - 1,
			Action: "split 1 USDC, sell both",
		}
	}
	return nil
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
