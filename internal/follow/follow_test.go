package follow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/polyarb/polyarb/pkg/types"
)

type stubFetcher struct {
	events []types.FollowEvent
}

func (s *stubFetcher) FetchActivity(_ context.Context, _ string, _ int) ([]types.FollowEvent, error) {
	return s.events, nil
}

type stubBooks struct {
	snapshots map[string]*types.OrderbookSnapshot
}

func (s *stubBooks) GetSnapshot(tokenID string) (*types.OrderbookSnapshot, bool) {
	snap, ok := s.snapshots[tokenID]
	return snap, ok
}

func tradeEvent(hash string, usdc float64, ts time.Time) types.FollowEvent {
	return types.FollowEvent{
		Type: types.FollowEventTrade, Side: types.FollowSideBuy,
		Price: 0.5, UsdcSize: usdc, Asset: "token-1", ConditionID: "cond-1",
		Timestamp: ts, TransactionHash: hash,
	}
}

func TestSuggestionID_DeterministicForSameFingerprint(t *testing.T) {
	cfg := RunnerConfig{ScaleRatio: 1, MaxUsdcPerOrder: 100}
	cfg.applyDefaults()

	ev := tradeEvent("tx-1", 10, time.Now())
	a := cfg.buildSuggestion("runner-1", ev, 0)
	b := cfg.buildSuggestion("runner-1", ev, 0)

	assert.Equal(t, a.ID, b.ID)
}

func TestBuildSuggestion_ScalesAndCaps(t *testing.T) {
	cfg := RunnerConfig{ScaleRatio: 2, MaxUsdcPerOrder: 15}
	cfg.applyDefaults()

	ev := tradeEvent("tx-1", 10, time.Now())
	s := cfg.buildSuggestion("runner-1", ev, 0)

	assert.Empty(t, s.DroppedReason)
	assert.Equal(t, 15.0, s.SuggestedUsdc) // 10*2=20, capped to 15
}

func TestBuildSuggestion_DropsOnDailyQuota(t *testing.T) {
	cfg := RunnerConfig{ScaleRatio: 1, MaxUsdcPerDay: 50}
	cfg.applyDefaults()

	ev := tradeEvent("tx-1", 10, time.Now())
	s := cfg.buildSuggestion("runner-1", ev, 45)

	assert.Equal(t, DropReasonQuotaExceeded, s.DroppedReason)
	assert.Zero(t, s.SuggestedUsdc)
}

func TestBuildSuggestion_DropsOnTypeSideFilter(t *testing.T) {
	cfg := RunnerConfig{AllowedSides: []types.FollowSide{types.FollowSideSell}}
	cfg.applyDefaults()

	ev := tradeEvent("tx-1", 10, time.Now())
	s := cfg.buildSuggestion("runner-1", ev, 0)

	assert.Equal(t, DropReasonTypeSideFilter, s.DroppedReason)
}

func TestRing_OverwritesOldestWhenFull(t *testing.T) {
	r := newRing[int](3)
	r.push(1)
	r.push(2)
	r.push(3)
	r.push(4)

	assert.Equal(t, []int{2, 3, 4}, r.snapshot())
}

func TestRunner_DedupesByLastSeenTransactionHash(t *testing.T) {
	now := time.Now().UTC()
	fetcher := &stubFetcher{events: []types.FollowEvent{
		tradeEvent("tx-2", 10, now),
		tradeEvent("tx-1", 10, now.Add(-time.Minute)),
	}}

	cfg := RunnerConfig{TargetWallet: "0xabc", PollMs: 500}
	runner := NewRunner("runner-1", cfg, fetcher, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner.mu.Lock()
	runner.running = true
	runner.startedAt = now.Add(-time.Hour)
	runner.mu.Unlock()

	runner.poll(ctx)
	require.Len(t, runner.Events(), 2)

	// second poll with no new events should not duplicate
	runner.poll(ctx)
	assert.Len(t, runner.Events(), 2)
}

func TestAutoTrader_SweepStopsAtPriceCapHit(t *testing.T) {
	books := &stubBooks{snapshots: map[string]*types.OrderbookSnapshot{
		"token-1": {
			Asks: []types.DepthLevel{
				{Price: 0.50, Size: 10},
				{Price: 0.52, Size: 10},
				{Price: 0.60, Size: 10},
			},
		},
	}}

	cfg := AutoTraderConfig{
		Mode: "auto", Style: "sweep", Paper: true,
		SweepPriceCapCents: 3, // cap at 0.53
		SweepMaxOrdersPerEvent: 10,
	}
	at := NewAutoTrader(cfg, books, zaptest.NewLogger(t))

	s := &Suggestion{ID: "s1", Event: types.FollowEvent{Asset: "token-1", ConditionID: "cond-1", Side: types.FollowSideBuy}, SuggestedUsdc: 100}
	require.NoError(t, at.Execute(s))

	history := at.PaperHistory()
	require.Len(t, history, 1)
	assert.Equal(t, SweepStopPriceCapHit, history[0].StopReason)
	assert.Len(t, history[0].Orders, 2) // 0.50 and 0.52 fill, 0.60 is beyond cap
}

func TestAutoTrader_QueueModeRequiresExecutePending(t *testing.T) {
	at := NewAutoTrader(AutoTraderConfig{Mode: "queue", Style: "copy", Paper: true}, nil, zaptest.NewLogger(t))

	s := &Suggestion{ID: "s1", Event: types.FollowEvent{Price: 0.5}, SuggestedUsdc: 10}
	at.HandleSuggestion(s)

	assert.Empty(t, at.PaperHistory())
	require.NoError(t, at.ExecutePending("s1"))
	assert.Len(t, at.PaperHistory(), 1)

	assert.ErrorIs(t, at.ExecutePending("s1"), ErrSuggestionNotFound)
}
