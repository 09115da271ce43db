package arbitrage

import (
	"time"

	"github.com/polyarb/polyarb/pkg/types"
)

// CreateTestOpportunity creates a test binary arbitrage opportunity.
// This is a test helper kept alongside the package it exercises to avoid
// import cycles.
func CreateTestOpportunity(marketID string, marketSlug string) *Opportunity {
	return &Opportunity{
		ID:              "test-opp-" + marketID,
		MarketID:        marketID,
		MarketSlug:      marketSlug,
		MarketQuestion:  "Test market: " + marketSlug,
		YesTokenID:      "test-yes-token-" + marketID,
		NoTokenID:       "test-no-token-" + marketID,
		DetectedAt:      time.Now(),
		Type:            types.OpportunityLong,
		YesAskPrice:     0.48,
		YesAskSize:      100.0,
		YesTickSize:     0.01,
		YesMinSize:      5.0,
		NoAskPrice:      0.51,
		NoAskSize:       100.0,
		NoTickSize:      0.01,
		NoMinSize:       5.0,
		PriceSum:        0.99,
		ProfitMargin:    0.01,
		ProfitBPS:       100,
		MaxTradeSize:    100.0,
		EstimatedProfit: 1.0,
		TotalFees:       0.2,
		NetProfit:       0.8,
		NetProfitBPS:    80,
	}
}
