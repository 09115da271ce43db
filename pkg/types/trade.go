package types

import "time"

// Trade represents a single trade execution.
type Trade struct {
	TokenID   string
	Outcome   string // "YES" or "NO"
	Side      string // "BUY" or "SELL"
	Price     float64
	Size      float64
	Timestamp time.Time
}

// ExecutionResult contains the result of executing an arbitrage opportunity.
// Orders are placed atomically as a two-leg batch; OrderIDs/ExpectedProfit
// are populated immediately on submission, RealizedProfit is populated once
// fill verification completes (it may lag Success=true for live trades).
type ExecutionResult struct {
	OpportunityID  string
	MarketSlug     string
	ExecutedAt     time.Time
	YesTrade       *Trade
	NoTrade        *Trade
	OrderIDs       []string
	ExpectedProfit float64
	RealizedProfit float64
	Success        bool
	Imbalanced     bool
	Error          error
}

// FillStatus is the outcome of polling an order's fill state.
type FillStatus struct {
	OrderID      string
	Outcome      string
	OriginalSize float64
	FullyFilled  bool
	Status       string
	SizeFilled   float64
	ActualPrice  float64
	VerifiedAt   time.Time
	Error        error
}
