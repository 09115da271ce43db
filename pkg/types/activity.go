package types

import "time"

// UserTrade is one fill from the Data API's user/market trade history.
type UserTrade struct {
	ProxyWallet     string    `json:"proxyWallet"`
	Asset           string    `json:"asset"`
	ConditionID     string    `json:"conditionId"`
	Outcome         string    `json:"outcome"`
	Side            string    `json:"side"`
	Size            float64   `json:"size"`
	Price           float64   `json:"price"`
	UsdcSize        float64   `json:"usdcSize"`
	Timestamp       time.Time `json:"timestamp"`
	TransactionHash string    `json:"transactionHash"`
	Title           string    `json:"title"`
	Slug            string    `json:"slug"`
}

// ActivityEvent is one row of the Data API's per-user activity feed,
// covering trades as well as split/merge/redeem/conversion/reward events.
type ActivityEvent struct {
	ProxyWallet     string    `json:"proxyWallet"`
	Type            string    `json:"type"` // TRADE, SPLIT, MERGE, REDEEM, CONVERSION, REWARD
	Side            string    `json:"side"`
	Asset           string    `json:"asset"`
	ConditionID     string    `json:"conditionId"`
	Outcome         string    `json:"outcome"`
	Size            float64   `json:"size"`
	Price           float64   `json:"price"`
	UsdcSize        float64   `json:"usdcSize"`
	Title           string    `json:"title"`
	Slug            string    `json:"slug"`
	Timestamp       time.Time `json:"timestamp"`
	TransactionHash string    `json:"transactionHash"`
}

// LeaderboardEntry is one row of the Data API's PnL/volume leaderboard.
type LeaderboardEntry struct {
	ProxyWallet string  `json:"proxyWallet"`
	Rank        int     `json:"rank"`
	Pnl         float64 `json:"pnl"`
	Volume      float64 `json:"volume"`
}

// UserPosition is a single open on-chain position as reported by the Data
// API's positions endpoint (distinct from the settlement package's
// OnChainPosition, which is computed locally from CTF state).
type UserPosition struct {
	ProxyWallet  string  `json:"proxyWallet"`
	Asset        string  `json:"asset"`
	ConditionID  string  `json:"conditionId"`
	Outcome      string  `json:"outcome"`
	Size         float64 `json:"size"`
	AvgPrice     float64 `json:"avgPrice"`
	CurrentValue float64 `json:"currentValue"`
	Title        string  `json:"title"`
	Slug         string  `json:"slug"`
}
