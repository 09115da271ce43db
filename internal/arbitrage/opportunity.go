package arbitrage

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/polyarb/polyarb/internal/pricing"
	"github.com/polyarb/polyarb/pkg/types"
)

// Opportunity represents an arbitrage opportunity on a single binary market.
// Long opportunities are executed by buying both legs; short opportunities
// by splitting collateral and selling both legs (see internal/pricing).
type Opportunity struct {
	ID             string
	MarketID       string
	MarketSlug     string
	MarketQuestion string
	ConditionID    string // 0x-prefixed 32-byte condition id, for on-chain split/merge
	IsNegRisk      bool
	YesTokenID     string // Token ID for YES outcome
	NoTokenID      string // Token ID for NO outcome
	DetectedAt     time.Time
	Type           types.OpportunityType
	Prices         types.EffectivePrices
	YesAskPrice    float64 // Price to BUY YES
	YesAskSize     float64 // Size available to BUY YES
	YesTickSize    float64
	YesMinSize     float64
	NoAskPrice     float64 // Price to BUY NO
	NoAskSize      float64 // Size available to BUY NO
	NoTickSize     float64
	NoMinSize      float64
	PriceSum       float64

	ProfitMargin    float64
	ProfitBPS       int
	MaxTradeSize    float64
	MaxOrderbookSize float64
	MaxBalanceSize  float64
	EstimatedProfit float64
	TotalFees       float64
	NetProfit       float64
	NetProfitBPS    int
	ConfigThreshold float64
}

// NewOpportunity creates a new arbitrage opportunity with fee accounting.
// Parameters are ASK prices and sizes (the prices you PAY to BUY).
func NewOpportunity(
	marketID string,
	marketSlug string,
	marketQuestion string,
	yesTokenID string,
	noTokenID string,
	yesAskPrice float64,
	yesAskSize float64,
	noAskPrice float64,
	noAskSize float64,
	threshold float64,
	takerFee float64,
) *Opportunity {
	priceSum := yesAskPrice + noAskPrice
	profitMargin := 1.0 - priceSum

	maxSize := yesAskSize
	if noAskSize < maxSize {
		maxSize = noAskSize
	}

	// Calculate fees (taker fee on both sides since we're taking liquidity)
	totalCost := (yesAskPrice + noAskPrice) * maxSize
	totalFees := totalCost * takerFee
	grossProfit := profitMargin * maxSize
	netProfit := grossProfit - totalFees

	return &Opportunity{
		ID:              uuid.New().String(),
		MarketID:        marketID,
		MarketSlug:      marketSlug,
		MarketQuestion:  marketQuestion,
		YesTokenID:      yesTokenID,
		NoTokenID:       noTokenID,
		DetectedAt:      time.Now(),
		YesAskPrice:     yesAskPrice,
		YesAskSize:      yesAskSize,
		NoAskPrice:      noAskPrice,
		NoAskSize:       noAskSize,
		PriceSum:        priceSum,
		ProfitMargin:    profitMargin,
		ProfitBPS:       int(profitMargin * 10000),
		MaxTradeSize:    maxSize,
		EstimatedProfit: grossProfit,
		TotalFees:       totalFees,
		NetProfit:       netProfit,
		NetProfitBPS:    int((netProfit / maxSize) * 10000),
		ConfigThreshold: threshold,
	}
}

// BookInput is one market's YES/NO top-of-book plus sizing inputs, consumed
// by NewFromBook to build an opportunity using the mirror-adjusted effective
// price model instead of naive ask-sum comparison.
type BookInput struct {
	MarketID       string
	MarketSlug     string
	MarketQuestion string
	ConditionID    string
	IsNegRisk      bool
	YesTokenID     string
	NoTokenID      string
	YesAsk, YesBid, YesAskSize float64
	NoAsk, NoBid, NoAskSize    float64
	YesTickSize, YesMinSize    float64
	NoTickSize, NoMinSize      float64
	MaxBalanceSize             float64
	ConfigMaxTradeSize         float64
	SizeSafetyFactor           float64 // default 0.8
	MinTradeSize               float64 // default 5.0
	Epsilon                    float64
	TakerFee                   float64
}

// NewFromBook evaluates the long/short arbitrage predicate over mirror-
// adjusted effective prices and, if one holds, returns a populated
// Opportunity. Returns nil if no arbitrage is present or the recommended
// size falls below MinTradeSize.
func NewFromBook(in BookInput) *Opportunity {
	prices := pricing.ComputeEffectivePrices(in.YesAsk, in.YesBid, in.NoAsk, in.NoBid)

	result := pricing.CheckArbitrage(prices, in.Epsilon)
	if result == nil {
		return nil
	}
	oppType, profitRate := result.Type, result.Profit

	sizeSafety := in.SizeSafetyFactor
	if sizeSafety <= 0 {
		sizeSafety = 0.8
	}
	minTradeSize := in.MinTradeSize
	if minTradeSize <= 0 {
		minTradeSize = 5.0
	}

	maxOrderbookSize := min2(in.YesAskSize, in.NoAskSize)
	recommendedSize := min2(maxOrderbookSize, min2(in.MaxBalanceSize, in.ConfigMaxTradeSize)) * sizeSafety
	if recommendedSize < minTradeSize {
		return nil
	}

	grossProfit := recommendedSize * profitRate
	totalFees := recommendedSize * prices.LongCost * in.TakerFee * 2
	netProfit := grossProfit - totalFees

	return &Opportunity{
		ID:               uuid.New().String(),
		MarketID:         in.MarketID,
		MarketSlug:       in.MarketSlug,
		MarketQuestion:   in.MarketQuestion,
		ConditionID:      in.ConditionID,
		IsNegRisk:        in.IsNegRisk,
		YesTokenID:       in.YesTokenID,
		NoTokenID:        in.NoTokenID,
		DetectedAt:       time.Now(),
		Type:             oppType,
		Prices:           prices,
		YesAskPrice:      in.YesAsk,
		YesAskSize:       in.YesAskSize,
		YesTickSize:      in.YesTickSize,
		YesMinSize:       in.YesMinSize,
		NoAskPrice:       in.NoAsk,
		NoAskSize:        in.NoAskSize,
		NoTickSize:       in.NoTickSize,
		NoMinSize:        in.NoMinSize,
		PriceSum:         prices.LongCost,
		ProfitMargin:     profitRate,
		ProfitBPS:        int(profitRate * 10000),
		MaxTradeSize:     recommendedSize,
		MaxOrderbookSize: maxOrderbookSize,
		MaxBalanceSize:   in.MaxBalanceSize,
		EstimatedProfit:  grossProfit,
		TotalFees:        totalFees,
		NetProfit:        netProfit,
		NetProfitBPS:     int((netProfit / recommendedSize) * 10000),
	}
}

func min2(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func max2(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// String returns a human-readable representation of the opportunity.
func (o *Opportunity) String() string {
	return fmt.Sprintf(
		"Opportunity[%s] Market=%s YES=%.4f NO=%.4f Sum=%.4f Profit=%dbps Size=%.2f Est=$%.2f",
		o.ID[:8],
		o.MarketSlug,
		o.YesAskPrice,
		o.NoAskPrice,
		o.PriceSum,
		o.ProfitBPS,
		o.MaxTradeSize,
		o.EstimatedProfit,
	)
}
