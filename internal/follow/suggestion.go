package follow

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/polyarb/polyarb/pkg/types"
)

// Suggestion is a candidate copy-trade order derived from one followed
// wallet's activity event, after filtering and sizing (§4.8).
type Suggestion struct {
	ID            string
	RunnerID      string
	Event         types.FollowEvent
	SuggestedUsdc float64
	DroppedReason string // empty if not dropped
	CreatedAt     time.Time
}

// Drop reasons, surfaced so a caller can distinguish "never considered"
// from "considered and rejected".
const (
	DropReasonTypeSideFilter = "typeSideFilter"
	DropReasonKeywordDeny    = "keywordDeny"
	DropReasonQuotaExceeded  = "quotaExceeded"
)

// suggestionID deterministically derives the suggestion id from the
// runner id and the event's transaction hash (or synthetic fingerprint),
// so re-observing the same event always yields the same id (§4.8, §8).
func suggestionID(runnerID, eventFingerprint string) string {
	h := sha256.Sum256([]byte(runnerID + ":" + eventFingerprint))
	return hex.EncodeToString(h[:])
}

// RunnerConfig controls one followed wallet's polling, filtering, and
// sizing behavior.
type RunnerConfig struct {
	TargetWallet string
	PollMs       int // default 2000, floor 500
	ActivityLimit int // default 100

	AllowedTypes []types.FollowEventType // default [TRADE]
	AllowedSides []types.FollowSide      // default [BUY, SELL]

	KeywordAllow []string // event.Title must contain one of these, if non-empty
	KeywordDeny  []string // event.Title must not contain any of these

	ScaleRatio      float64 // suggestedUsdc = min(event.UsdcSize*ScaleRatio, MaxUsdcPerOrder)
	MaxUsdcPerOrder float64
	MaxUsdcPerDay   float64

	SuggestionRingSize int // default 1000
	EventRingSize      int // default 1000
}

func (c *RunnerConfig) applyDefaults() {
	if c.PollMs <= 0 {
		c.PollMs = 2000
	}
	if c.PollMs < 500 {
		c.PollMs = 500
	}
	if c.ActivityLimit <= 0 {
		c.ActivityLimit = 100
	}
	if len(c.AllowedTypes) == 0 {
		c.AllowedTypes = []types.FollowEventType{types.FollowEventTrade}
	}
	if len(c.AllowedSides) == 0 {
		c.AllowedSides = []types.FollowSide{types.FollowSideBuy, types.FollowSideSell}
	}
	if c.ScaleRatio <= 0 {
		c.ScaleRatio = 1.0
	}
	if c.SuggestionRingSize <= 0 {
		c.SuggestionRingSize = 1000
	}
	if c.EventRingSize <= 0 {
		c.EventRingSize = 1000
	}
}

func (c *RunnerConfig) typeSideAllowed(ev types.FollowEvent) bool {
	typeOK := false
	for _, t := range c.AllowedTypes {
		if t == ev.Type {
			typeOK = true
			break
		}
	}
	if !typeOK {
		return false
	}
	if ev.Type != types.FollowEventTrade {
		return true
	}
	for _, s := range c.AllowedSides {
		if s == ev.Side {
			return true
		}
	}
	return false
}

func (c *RunnerConfig) keywordAllowed(title string) bool {
	lower := strings.ToLower(title)
	for _, deny := range c.KeywordDeny {
		if deny != "" && strings.Contains(lower, strings.ToLower(deny)) {
			return false
		}
	}
	if len(c.KeywordAllow) == 0 {
		return true
	}
	for _, allow := range c.KeywordAllow {
		if allow != "" && strings.Contains(lower, strings.ToLower(allow)) {
			return true
		}
	}
	return false
}

// buildSuggestion runs the ordered filter/scale/quota pipeline for one
// event: type/side filter, keyword allow/deny, ratio scaling, then the
// caller-supplied dailyUsed (24h rolling sum) against MaxUsdcPerDay.
func (c *RunnerConfig) buildSuggestion(runnerID string, ev types.FollowEvent, dailyUsed float64) *Suggestion {
	s := &Suggestion{
		RunnerID:  runnerID,
		Event:     ev,
		ID:        suggestionID(runnerID, ev.Fingerprint()),
		CreatedAt: time.Now().UTC(),
	}

	if !c.typeSideAllowed(ev) {
		s.DroppedReason = DropReasonTypeSideFilter
		return s
	}
	if !c.keywordAllowed(ev.Title) {
		s.DroppedReason = DropReasonKeywordDeny
		return s
	}

	suggested := ev.UsdcSize * c.ScaleRatio
	if c.MaxUsdcPerOrder > 0 && suggested > c.MaxUsdcPerOrder {
		suggested = c.MaxUsdcPerOrder
	}

	if c.MaxUsdcPerDay > 0 && dailyUsed+suggested > c.MaxUsdcPerDay {
		s.DroppedReason = DropReasonQuotaExceeded
		return s
	}

	s.SuggestedUsdc = suggested
	return s
}
