package orderbook

import (
	"math"
	"sort"
	"strconv"

	"github.com/polyarb/polyarb/pkg/types"
)

// DefaultDepth is the number of levels retained per side after normalization.
const DefaultDepth = 25

// Normalize converts raw bid/ask price levels into sorted, depth-limited
// levels with running cumulative USD notional. Rows with non-finite or
// non-positive price/size, or a price above 1, are dropped; rows with equal
// prices are kept as separate levels, not merged. Bids are sorted
// descending by price, asks ascending. The result is deterministic and
// idempotent on equal inputs.
func Normalize(rawBids, rawAsks []types.PriceLevel, depth int) (bids []types.DepthLevel, asks []types.DepthLevel) {
	if depth <= 0 {
		depth = DefaultDepth
	}
	bids = normalizeSide(rawBids, depth, true)
	asks = normalizeSide(rawAsks, depth, false)
	return bids, asks
}

func normalizeSide(raw []types.PriceLevel, depth int, descending bool) []types.DepthLevel {
	levels := make([]types.DepthLevel, 0, len(raw))
	for _, r := range raw {
		price, err := strconv.ParseFloat(r.Price, 64)
		if err != nil || math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 || price > 1 {
			continue
		}
		size, err := strconv.ParseFloat(r.Size, 64)
		if err != nil || math.IsNaN(size) || math.IsInf(size, 0) || size <= 0 {
			continue
		}
		levels = append(levels, types.DepthLevel{Price: price, Size: size})
	}

	sort.SliceStable(levels, func(i, j int) bool {
		if descending {
			return levels[i].Price > levels[j].Price
		}
		return levels[i].Price < levels[j].Price
	})

	if len(levels) > depth {
		levels = levels[:depth]
	}

	cum := 0.0
	for i := range levels {
		cum += levels[i].Price * levels[i].Size
		levels[i].CumUsd = cum
	}
	return levels
}

// BestOf returns the top level's price and size, or (0,0,false) if the side
// is empty — callers use this to tolerate a missing side rather than erroring.
func BestOf(levels []types.DepthLevel) (price, size float64, ok bool) {
	if len(levels) == 0 {
		return 0, 0, false
	}
	return levels[0].Price, levels[0].Size, true
}
