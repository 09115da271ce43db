package types

import (
	"fmt"
	"time"
)

// FollowEventType enumerates the normalized activity kinds a follow runner
// can observe on a target wallet.
type FollowEventType string

const (
	FollowEventTrade      FollowEventType = "TRADE"
	FollowEventSplit      FollowEventType = "SPLIT"
	FollowEventMerge      FollowEventType = "MERGE"
	FollowEventRedeem     FollowEventType = "REDEEM"
	FollowEventConversion FollowEventType = "CONVERSION"
	FollowEventYield      FollowEventType = "YIELD"
)

// FollowSide is BUY or SELL, meaningful for TRADE events.
type FollowSide string

const (
	FollowSideBuy  FollowSide = "BUY"
	FollowSideSell FollowSide = "SELL"
)

// FollowEvent is a normalized activity record from a followed wallet's
// on-chain/exchange activity feed.
type FollowEvent struct {
	Type            FollowEventType
	Side            FollowSide
	Size            float64
	Price           float64 // in (0,1]
	UsdcSize        float64
	Asset           string
	ConditionID     string
	Outcome         string
	Title           string
	Slug            string
	Timestamp       time.Time
	TransactionHash string
}

// Fingerprint returns the dedupe key for this event: the real
// transactionHash when present, otherwise a deterministic synthetic
// fingerprint so repeated observations of the same logical event collapse
// to the same key.
func (e *FollowEvent) Fingerprint() string {
	if e.TransactionHash != "" {
		return e.TransactionHash
	}
	return fmt.Sprintf("synthetic:%d:%s:%s:%s:%g:%g",
		e.Timestamp.UnixMilli(), e.ConditionID, e.Asset, e.Side, e.Size, e.Price)
}
