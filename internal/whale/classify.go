package whale

import (
	"math"

	"github.com/polyarb/polyarb/pkg/types"
)

// WindowStats is the raw per-window accumulator a WindowFetcher assembles
// from trade/activity/settlement history for one wallet.
type WindowStats struct {
	BuyVolume       float64
	SellVolume      float64
	RedemptionValue float64
	UnrealizedPnl   float64 // only meaningful (and only applied) for the "all" window
	WinsByMarket    int
	EndedMarkets    int
	TradeCount      int
}

// classify turns raw window stats into the published metrics for one
// window, per the formulas: pnl = sellVolume + redemptionValue - buyVolume
// (+ unrealizedPnl for "all"); volume = buy + sell; winRate =
// winsByMarket/endedMarkets; smartScore = clamp(0,100, 50 + 3*ROI% +
// activityScore); activityScore = min(20, tradeCount/10).
func classify(stats WindowStats, window string) types.WindowMetrics {
	pnl := stats.SellVolume + stats.RedemptionValue - stats.BuyVolume
	if window == windowAll {
		pnl += stats.UnrealizedPnl
	}
	volume := stats.BuyVolume + stats.SellVolume

	var winRate float64
	if stats.EndedMarkets > 0 {
		winRate = float64(stats.WinsByMarket) / float64(stats.EndedMarkets)
	}

	var roiPct float64
	if stats.BuyVolume > 0 {
		roiPct = pnl / stats.BuyVolume * 100
	}
	activityScore := math.Min(20, float64(stats.TradeCount)/10)
	smartScore := clamp(0, 100, 50+3*roiPct+activityScore)

	tradeCount := stats.TradeCount
	return types.WindowMetrics{
		Pnl:        &pnl,
		Volume:     &volume,
		TradeCount: &tradeCount,
		WinRate:    &winRate,
		SmartScore: &smartScore,
	}
}

func clamp(lo, hi, v float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

const (
	window24h  = "24h"
	window7d   = "7d"
	window30d  = "30d"
	windowAll  = "all"
)

var allWindows = []string{window24h, window7d, window30d, windowAll}

// meetsPromotion applies the promotion gate against the "all" window,
// which is the only window with enough history to judge a wallet's
// standing lifetime performance.
func meetsPromotion(all types.WindowMetrics, totalVolume, minPnl, minWinRate, minVolume float64) bool {
	if all.Pnl == nil || all.WinRate == nil {
		return false
	}
	return *all.Pnl >= minPnl && *all.WinRate >= minWinRate && totalVolume >= minVolume
}
