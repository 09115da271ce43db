package types

import (
	"encoding/json"
	"strconv"
	"time"
)

// OrderbookMessage represents a message from the Polymarket WebSocket.
type OrderbookMessage struct {
	EventType string       `json:"event_type"` // "book", "price_change", "last_trade_price"
	AssetID   string       `json:"asset_id"`
	Market    string       `json:"market"`
	Timestamp int64        `json:"-"` // Parsed from string via UnmarshalJSON
	Hash      string       `json:"hash,omitempty"`
	Bids      []PriceLevel `json:"bids,omitempty"`
	Asks      []PriceLevel `json:"asks,omitempty"`
}

// UnmarshalJSON custom unmarshaler to handle string timestamp.
func (o *OrderbookMessage) UnmarshalJSON(data []byte) error {
	type Alias OrderbookMessage
	aux := &struct {
		TimestampStr string `json:"timestamp"`
		*Alias
	}{
		Alias: (*Alias)(o),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	// Parse timestamp from string to int64
	if aux.TimestampStr != "" {
		timestamp, err := strconv.ParseInt(aux.TimestampStr, 10, 64)
		if err != nil {
			return err
		}
		o.Timestamp = timestamp
	}

	return nil
}

// PriceLevel represents a single price level in the orderbook.
type PriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// OrderbookSnapshot represents the current state of an orderbook for a token.
// BestBid/BestAsk are convenience fields kept in sync with Bids[0]/Asks[0];
// Bids/Asks hold up to NormalizedDepth levels with running cumulative USD.
type OrderbookSnapshot struct {
	MarketID     string
	TokenID      string
	Outcome      string // "YES" or "NO"
	BestBidPrice float64
	BestBidSize  float64
	BestAskPrice float64
	BestAskSize  float64
	Bids         []DepthLevel // descending price
	Asks         []DepthLevel // ascending price
	FetchedAtMs  int64        // epoch millis this snapshot was fetched/applied
	LastUpdated  time.Time
}

// DepthLevel is a single normalized orderbook level with running cumulative
// notional value in USD (price * size summed from the top of book).
type DepthLevel struct {
	Price  float64
	Size   float64
	CumUsd float64
}

// Spread returns bestAsk-bestBid, or 0 if either side is absent.
func (s *OrderbookSnapshot) Spread() float64 {
	if s.BestBidPrice <= 0 || s.BestAskPrice <= 0 {
		return 0
	}
	return s.BestAskPrice - s.BestBidPrice
}

// IsStale reports whether the snapshot is older than ttl as of nowMs.
func (s *OrderbookSnapshot) IsStale(nowMs int64, ttl time.Duration) bool {
	if s.FetchedAtMs == 0 {
		return true
	}
	return nowMs-s.FetchedAtMs > ttl.Milliseconds()
}
