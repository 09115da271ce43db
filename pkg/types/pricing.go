package types

import "time"

// EffectivePrices accounts for the exchange's mirror identity
// "buy YES at P == sell NO at 1-P" so that a naive top-of-book comparison
// does not report phantom arbitrage against the same liquidity twice.
type EffectivePrices struct {
	EffBuyYes  float64
	EffBuyNo   float64
	EffSellYes float64
	EffSellNo  float64

	LongCost     float64 // EffBuyYes + EffBuyNo
	ShortRevenue float64 // EffSellYes + EffSellNo
}

// OpportunityType distinguishes the two arbitrage directions.
type OpportunityType string

const (
	OpportunityLong  OpportunityType = "long"  // buy YES + buy NO, merge
	OpportunityShort OpportunityType = "short" // split, sell YES + sell NO
)

// ArbOpportunity is the binary YES/NO mirror-pricing arbitrage opportunity
// carried in the ArbitrageEngine's cached opportunity set.
type ArbOpportunity struct {
	ID                string
	MarketID          string
	MarketSlug        string
	MarketQuestion    string
	ConditionID       string
	YesTokenID        string
	NoTokenID         string
	IsNegRisk         bool
	Type              OpportunityType
	ProfitRate        float64 // fraction, e.g. 0.02 for 2%
	ProfitBPS         int
	Prices            EffectivePrices
	RecommendedSize   float64
	MaxOrderbookSize  float64
	MaxBalanceSize    float64
	ConfigMaxTradeSize float64
	DetectedAt        time.Time
}
