package discovery

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/polyarb/polyarb/internal/follow"
	"github.com/polyarb/polyarb/internal/whale"
	"github.com/polyarb/polyarb/pkg/types"
)

// windowLookback maps a classification window to how far back its activity
// scan reaches. "all" scans everything GetAllActivity is willing to page
// through.
var windowLookback = map[string]time.Duration{
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

// Gateway adapts DataClient onto the narrow fetcher interfaces
// internal/whale and internal/follow depend on, so neither package needs
// to import the Data-API client directly.
type Gateway struct {
	data    *DataClient
	logger  *zap.Logger
	maxRows int
}

// NewGateway constructs a Gateway over an existing DataClient. maxRows
// bounds how many activity rows GetAllActivity pages through per call.
func NewGateway(data *DataClient, maxRows int, logger *zap.Logger) *Gateway {
	if maxRows <= 0 {
		maxRows = 2000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{data: data, maxRows: maxRows, logger: logger}
}

// FetchWindowStats implements whale.WindowFetcher by aggregating a
// wallet's activity feed (and open positions for the "all" window's
// unrealized pnl) over the window's lookback.
func (g *Gateway) FetchWindowStats(ctx context.Context, address, window string) (whale.WindowStats, error) {
	events, err := g.data.GetAllActivity(ctx, address, g.maxRows)
	if err != nil {
		return whale.WindowStats{}, fmt.Errorf("fetch activity for %s: %w", address, err)
	}

	var cutoff time.Time
	if lookback, ok := windowLookback[window]; ok {
		cutoff = time.Now().Add(-lookback)
	}

	var stats whale.WindowStats
	endedMarkets := map[string]bool{}
	wonMarkets := map[string]bool{}

	for _, ev := range events {
		if !cutoff.IsZero() && ev.Timestamp.Before(cutoff) {
			continue
		}
		switch ev.Type {
		case "TRADE":
			stats.TradeCount++
			if ev.Side == "BUY" {
				stats.BuyVolume += ev.UsdcSize
			} else {
				stats.SellVolume += ev.UsdcSize
			}
		case "REDEEM":
			stats.RedemptionValue += ev.UsdcSize
			endedMarkets[ev.ConditionID] = true
			if ev.UsdcSize > 0 {
				wonMarkets[ev.ConditionID] = true
			}
		}
	}
	stats.EndedMarkets = len(endedMarkets)
	stats.WinsByMarket = len(wonMarkets)

	if window == "all" {
		positions, err := g.data.FetchPositions(ctx, address)
		if err != nil {
			g.logger.Warn("whale-window-positions-fetch-failed",
				zap.String("address", address), zap.Error(err))
		}
		for _, p := range positions {
			stats.UnrealizedPnl += p.CurrentValue - p.AvgPrice*p.Size
		}
	}

	return stats, nil
}

// FetchActivity implements follow.ActivityFetcher, converting the Data
// API's activity rows into the follow package's normalized event type.
func (g *Gateway) FetchActivity(ctx context.Context, wallet string, limit int) ([]types.FollowEvent, error) {
	events, err := g.data.FetchUserActivity(ctx, wallet, limit, 0)
	if err != nil {
		return nil, fmt.Errorf("fetch activity for %s: %w", wallet, err)
	}

	out := make([]types.FollowEvent, 0, len(events))
	for _, ev := range events {
		out = append(out, types.FollowEvent{
			Type:            types.FollowEventType(ev.Type),
			Side:            types.FollowSide(ev.Side),
			Size:            ev.Size,
			Price:           ev.Price,
			UsdcSize:        ev.UsdcSize,
			Asset:           ev.Asset,
			ConditionID:     ev.ConditionID,
			Outcome:         ev.Outcome,
			Title:           ev.Title,
			Slug:            ev.Slug,
			Timestamp:       ev.Timestamp,
			TransactionHash: ev.TransactionHash,
		})
	}
	return out, nil
}

var (
	_ whale.WindowFetcher   = (*Gateway)(nil)
	_ follow.ActivityFetcher = (*Gateway)(nil)
)
