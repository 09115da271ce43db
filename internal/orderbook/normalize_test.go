package orderbook

import (
	"testing"
	"time"

	"github.com/polyarb/polyarb/pkg/types"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func lvl(price, size string) types.PriceLevel {
	return types.PriceLevel{Price: price, Size: size}
}

func TestNormalize_SortsAndDrainsDepth(t *testing.T) {
	bids := []types.PriceLevel{lvl("0.45", "10"), lvl("0.50", "5"), lvl("0.48", "3")}
	asks := []types.PriceLevel{lvl("0.55", "4"), lvl("0.52", "6"), lvl("0.53", "2")}

	normBids, normAsks := Normalize(bids, asks, 2)

	assert.Len(t, normBids, 2)
	assert.Equal(t, 0.50, normBids[0].Price)
	assert.Equal(t, 0.48, normBids[1].Price)

	assert.Len(t, normAsks, 2)
	assert.Equal(t, 0.52, normAsks[0].Price)
	assert.Equal(t, 0.53, normAsks[1].Price)
}

func TestNormalize_DropsInvalidRows(t *testing.T) {
	bids := []types.PriceLevel{
		lvl("0.50", "5"),
		lvl("0", "5"),       // price not in (0,1]
		lvl("1.5", "5"),     // price out of range
		lvl("0.40", "0"),    // zero size
		lvl("nope", "5"),    // unparseable
		lvl("0.30", "nope"), // unparseable
	}

	normBids, _ := Normalize(bids, nil, DefaultDepth)

	assert.Len(t, normBids, 1)
	assert.Equal(t, 0.50, normBids[0].Price)
}

func TestNormalize_CumulativeUsdIsRunningTotal(t *testing.T) {
	asks := []types.PriceLevel{lvl("0.50", "10"), lvl("0.51", "20")}

	_, normAsks := Normalize(nil, asks, DefaultDepth)

	assert.InDelta(t, 5.0, normAsks[0].CumUsd, 1e-9)
	assert.InDelta(t, 5.0+0.51*20, normAsks[1].CumUsd, 1e-9)
}

func TestNormalize_Idempotent(t *testing.T) {
	bids := []types.PriceLevel{lvl("0.45", "10"), lvl("0.50", "5")}

	b1, _ := Normalize(bids, nil, DefaultDepth)
	b2, _ := Normalize(bids, nil, DefaultDepth)

	assert.Equal(t, b1, b2)
}

func TestBestOf_EmptyReturnsNotOk(t *testing.T) {
	_, _, ok := BestOf(nil)
	assert.False(t, ok)
}

func TestBestOf_ReturnsTopLevel(t *testing.T) {
	levels := []types.DepthLevel{{Price: 0.5, Size: 3}, {Price: 0.4, Size: 1}}
	price, size, ok := BestOf(levels)
	assert.True(t, ok)
	assert.Equal(t, 0.5, price)
	assert.Equal(t, 3.0, size)
}

func TestOrderbookSnapshot_IsStale(t *testing.T) {
	snap := &types.OrderbookSnapshot{FetchedAtMs: time.Now().UnixMilli() - 3000}
	assert.True(t, snap.IsStale(time.Now().UnixMilli(), 2*time.Second))

	fresh := &types.OrderbookSnapshot{FetchedAtMs: time.Now().UnixMilli()}
	assert.False(t, fresh.IsStale(time.Now().UnixMilli(), 2*time.Second))
}

func TestOrderbookSnapshot_Spread(t *testing.T) {
	snap := &types.OrderbookSnapshot{BestBidPrice: 0.48, BestAskPrice: 0.52}
	assert.InDelta(t, 0.04, snap.Spread(), 1e-9)
}

func TestGetFreshSnapshot_StaleIsRejected(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	msgChan := make(chan *types.OrderbookMessage)
	m := New(&Config{Logger: logger, MessageChannel: msgChan})

	m.mu.Lock()
	m.books["tok-1"] = &types.OrderbookSnapshot{
		TokenID:     "tok-1",
		FetchedAtMs: time.Now().UnixMilli() - 5000,
	}
	m.mu.Unlock()

	_, ok := m.GetFreshSnapshot("tok-1", 2*time.Second)
	assert.False(t, ok)

	m.mu.Lock()
	m.books["tok-1"].FetchedAtMs = time.Now().UnixMilli()
	m.mu.Unlock()

	_, ok = m.GetFreshSnapshot("tok-1", 2*time.Second)
	assert.True(t, ok)
}
