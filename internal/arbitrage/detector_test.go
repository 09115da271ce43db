package arbitrage

import (
	"context"
	"testing"
	"time"

	"github.com/polyarb/polyarb/internal/orderbook"
	"github.com/polyarb/polyarb/pkg/types"
	"go.uber.org/zap/zaptest"
)

func newTestDetector(t *testing.T) (*Detector, *MockStorage) {
	t.Helper()

	obManager := orderbook.New(&orderbook.Config{
		Logger:         zaptest.NewLogger(t),
		MessageChannel: make(chan *types.OrderbookMessage),
	})
	storage := NewMockStorage()

	d := &Detector{
		obManager: obManager,
		config: Config{
			Threshold:     0.995,
			ScanInterval:  30 * time.Second,
			MaxMarkets:    500,
			MinVolume24hr: 100.0,
		},
		logger:          zaptest.NewLogger(t),
		storage:         storage,
		opportunityChan: make(chan *Opportunity, 10),
		cache:           make(map[string]*cachedOpportunity),
		ctx:             context.Background(),
	}

	return d, storage
}

func marketSub(slug string, volume float64) *types.MarketSubscription {
	return &types.MarketSubscription{
		MarketID:   "market-" + slug,
		MarketSlug: slug,
		Volume24hr: volume,
		Outcomes: []types.OutcomeToken{
			{TokenID: "yes-" + slug, Outcome: "YES"},
			{TokenID: "no-" + slug, Outcome: "NO"},
		},
	}
}

func TestFilterAndRankCandidates_FiltersByVolume(t *testing.T) {
	all := []*types.MarketSubscription{
		marketSub("low", 50),
		marketSub("high", 500),
	}

	got := filterAndRankCandidates(all, 100.0, 0)

	if len(got) != 1 || got[0].MarketSlug != "high" {
		t.Fatalf("expected only the above-floor market, got %v", got)
	}
}

func TestFilterAndRankCandidates_SkipsNonBinary(t *testing.T) {
	threeWay := marketSub("multi", 1000)
	threeWay.Outcomes = append(threeWay.Outcomes, types.OutcomeToken{TokenID: "third", Outcome: "C"})

	got := filterAndRankCandidates([]*types.MarketSubscription{threeWay}, 0, 0)

	if len(got) != 0 {
		t.Fatalf("expected multi-outcome market to be filtered out, got %v", got)
	}
}

func TestFilterAndRankCandidates_SortsByVolumeDescending(t *testing.T) {
	all := []*types.MarketSubscription{
		marketSub("mid", 200),
		marketSub("top", 900),
		marketSub("bottom", 150),
	}

	got := filterAndRankCandidates(all, 0, 0)

	if len(got) != 3 || got[0].MarketSlug != "top" || got[1].MarketSlug != "mid" || got[2].MarketSlug != "bottom" {
		t.Fatalf("expected descending volume order, got %v", got)
	}
}

func TestFilterAndRankCandidates_CapsAtMaxMarkets(t *testing.T) {
	all := []*types.MarketSubscription{
		marketSub("a", 300),
		marketSub("b", 200),
		marketSub("c", 100),
	}

	got := filterAndRankCandidates(all, 0, 2)

	if len(got) != 2 {
		t.Fatalf("expected cap to 2 markets, got %d", len(got))
	}
}

func TestPublishOpportunity_StoresCachesAndSends(t *testing.T) {
	d, storage := newTestDetector(t)

	opp := CreateTestOpportunity("m1", "market-one")
	d.publishOpportunity(opp, "market-one")

	if len(storage.GetOpportunities()) != 1 {
		t.Fatalf("expected opportunity to be stored")
	}

	select {
	case got := <-d.opportunityChan:
		if got.ID != opp.ID {
			t.Fatalf("unexpected opportunity on channel: %+v", got)
		}
	default:
		t.Fatal("expected opportunity on channel")
	}

	cached := d.CachedOpportunities()
	if len(cached) != 1 || cached[0].ID != opp.ID {
		t.Fatalf("expected opportunity to be cached, got %v", cached)
	}
}

func TestSweepStaleOpportunities_EvictsUnrefreshedEntries(t *testing.T) {
	d, _ := newTestDetector(t)

	d.cache["stale"] = &cachedOpportunity{
		opp:      CreateTestOpportunity("m1", "stale"),
		lastSeen: time.Now().Add(-time.Hour),
	}
	d.cache["fresh"] = &cachedOpportunity{
		opp:      CreateTestOpportunity("m2", "fresh"),
		lastSeen: time.Now(),
	}

	refreshed := map[string]bool{"stale": true, "fresh": true}
	d.sweepStaleOpportunities(refreshed)

	if _, ok := d.cache["stale"]; ok {
		t.Error("expected stale entry to be evicted")
	}
	if _, ok := d.cache["fresh"]; !ok {
		t.Error("expected freshly-published entry to survive its own publish round")
	}
}

func TestSweepStaleOpportunities_SkipsMarketsNotScannedThisRound(t *testing.T) {
	d, _ := newTestDetector(t)

	d.cache["untouched"] = &cachedOpportunity{
		opp:      CreateTestOpportunity("m1", "untouched"),
		lastSeen: time.Now().Add(-time.Hour),
	}

	d.sweepStaleOpportunities(map[string]bool{})

	if _, ok := d.cache["untouched"]; !ok {
		t.Error("expected entry for a market outside this round's scan to survive")
	}
}

func TestScanMarket_SkipsWhenSnapshotMissing(t *testing.T) {
	d, storage := newTestDetector(t)

	market := marketSub("no-book", 1000)
	refreshed := make(map[string]bool)

	d.scanMarket(market, refreshed)

	if len(storage.GetOpportunities()) != 0 {
		t.Fatal("expected no opportunity without orderbook snapshots")
	}
	if refreshed["no-book"] {
		t.Error("expected market to not be marked refreshed without any snapshot")
	}
}
