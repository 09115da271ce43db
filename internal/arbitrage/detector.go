package arbitrage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/polyarb/polyarb/internal/discovery"
	"github.com/polyarb/polyarb/internal/markets"
	"github.com/polyarb/polyarb/internal/orderbook"
	"github.com/polyarb/polyarb/pkg/types"
	"go.uber.org/zap"
)

// Storage is the interface for storing opportunities.
type Storage interface {
	StoreOpportunity(ctx context.Context, opp *Opportunity) error
	Close() error
}

// Detector watches orderbook updates and evaluates the mirror-adjusted
// arbitrage predicate on every binary market it is subscribed to.
type Detector struct {
	obManager        *orderbook.Manager
	discoveryService *discovery.Service
	config           Config
	logger           *zap.Logger
	storage          Storage
	metadataClient   *markets.CachedMetadataClient
	opportunityChan  chan *Opportunity
	obUpdateChan     <-chan *types.OrderbookSnapshot
	balanceFn        func() float64 // returns available USDC balance; nil means unconstrained
	ctx              context.Context
	wg               sync.WaitGroup

	cacheMu sync.RWMutex
	cache   map[string]*cachedOpportunity // keyed by market slug
}

// cachedOpportunity is the deep scanner's live view of the last opportunity
// seen for a market, used for sweep eviction between passes.
type cachedOpportunity struct {
	opp      *Opportunity
	lastSeen time.Time
}

// Config holds detector configuration.
type Config struct {
	Threshold        float64 // epsilon fed to pricing.CheckArbitrage
	MinTradeSize     float64
	MaxTradeSize     float64
	SizeSafetyFactor float64
	TakerFee         float64

	// Deep scan: periodic full sweep of subscribed markets, independent of
	// the event-driven book-update loop. Zero ScanInterval disables it.
	ScanInterval  time.Duration
	MaxMarkets    int     // cap on markets scanned per pass (0 = no cap)
	MinVolume24hr float64 // markets below this 24h volume are skipped

	Logger *zap.Logger
}

const deepScanChunkSize = 5
const deepScanChunkDelay = 2 * time.Second

// New creates a new arbitrage detector.
func New(cfg Config, obManager *orderbook.Manager, discoveryService *discovery.Service, storage Storage, metadataClient *markets.CachedMetadataClient) *Detector {
	return &Detector{
		obManager:        obManager,
		discoveryService: discoveryService,
		config:           cfg,
		logger:           cfg.Logger,
		storage:          storage,
		metadataClient:   metadataClient,
		opportunityChan:  make(chan *Opportunity, 10000),
		obUpdateChan:     obManager.UpdateChan(),
		cache:            make(map[string]*cachedOpportunity),
	}
}

// SetBalanceFn wires a callback returning the account's current available
// USDC balance, used to cap recommended trade size. Without it, opportunity
// sizing is bounded only by orderbook depth and the configured max size.
func (d *Detector) SetBalanceFn(fn func() float64) {
	d.balanceFn = fn
}

// Start starts the arbitrage detector's event-driven loop.
func (d *Detector) Start(ctx context.Context) error {
	d.ctx = ctx
	d.logger.Info("arbitrage-detector-starting",
		zap.Float64("epsilon", d.config.Threshold),
		zap.Float64("min-trade-size", d.config.MinTradeSize),
		zap.Float64("max-trade-size", d.config.MaxTradeSize))

	d.wg.Add(1)
	go d.detectionLoop()

	if d.config.ScanInterval > 0 {
		d.wg.Add(1)
		go d.deepScanLoop()
	}

	return nil
}

// deepScanLoop runs a full sweep of subscribed markets on a fixed interval,
// independent of the event-driven book-update path. It catches markets whose
// edge never produced a fresh book update (e.g. a thinly-traded leg) and
// evicts cached opportunities that a pass no longer confirms.
func (d *Detector) deepScanLoop() {
	defer d.wg.Done()

	d.runDeepScan()

	ticker := time.NewTicker(d.config.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.runDeepScan()
		}
	}
}

// runDeepScan filters subscribed markets by 24h volume, caps the set to
// MaxMarkets, and evaluates them in fixed-size chunks with a pause between
// chunks to stay gentle on the metadata client and orderbook snapshots.
// After the full pass, any cached opportunity not refreshed this round is
// evicted.
func (d *Detector) runDeepScan() {
	start := time.Now()
	defer func() { DeepScanDurationSeconds.Observe(time.Since(start).Seconds()) }()

	candidates := d.deepScanCandidates()
	DeepScanMarketsScanned.Set(float64(len(candidates)))

	refreshed := make(map[string]bool, len(candidates))

	for i := 0; i < len(candidates); i += deepScanChunkSize {
		end := i + deepScanChunkSize
		if end > len(candidates) {
			end = len(candidates)
		}
		chunk := candidates[i:end]

		var chunkWg sync.WaitGroup
		for _, market := range chunk {
			chunkWg.Add(1)
			go func(market *types.MarketSubscription) {
				defer chunkWg.Done()
				d.scanMarket(market, refreshed)
			}(market)
		}
		chunkWg.Wait()

		if end < len(candidates) {
			select {
			case <-d.ctx.Done():
				return
			case <-time.After(deepScanChunkDelay):
			}
		}
	}

	d.sweepStaleOpportunities(refreshed)
}

// deepScanCandidates returns subscribed binary markets meeting the volume
// floor, sorted by descending volume, capped at MaxMarkets.
func (d *Detector) deepScanCandidates() []*types.MarketSubscription {
	return filterAndRankCandidates(d.discoveryService.GetSubscribedMarkets(), d.config.MinVolume24hr, d.config.MaxMarkets)
}

// filterAndRankCandidates keeps binary markets at or above minVolume, sorts
// them by descending 24h volume, and caps the result at maxMarkets (0 = no cap).
// Factored out of deepScanCandidates so the selection logic is testable
// without a live discovery service.
func filterAndRankCandidates(all []*types.MarketSubscription, minVolume float64, maxMarkets int) []*types.MarketSubscription {
	candidates := make([]*types.MarketSubscription, 0, len(all))
	for _, market := range all {
		if len(market.Outcomes) != 2 {
			continue
		}
		if market.Volume24hr < minVolume {
			continue
		}
		candidates = append(candidates, market)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Volume24hr > candidates[j].Volume24hr
	})

	if maxMarkets > 0 && len(candidates) > maxMarkets {
		candidates = candidates[:maxMarkets]
	}

	return candidates
}

// scanMarket evaluates a single market for the deep scanner, marking it
// refreshed regardless of whether an opportunity was found so a market that
// fell back into balance still clears its stale cache entry.
func (d *Detector) scanMarket(market *types.MarketSubscription, refreshed map[string]bool) {
	yesBook, ok := d.obManager.GetSnapshot(market.Outcomes[0].TokenID)
	if !ok {
		return
	}
	noBook, ok := d.obManager.GetSnapshot(market.Outcomes[1].TokenID)
	if !ok {
		return
	}

	d.cacheMu.Lock()
	refreshed[market.MarketSlug] = true
	d.cacheMu.Unlock()

	opp, found := d.evaluate(market, yesBook, noBook)
	if !found {
		return
	}

	d.publishOpportunity(opp, market.MarketSlug)
}

// sweepStaleOpportunities drops cached opportunities for markets the most
// recent deep-scan pass covered but no longer confirmed (a cache entry whose
// market was scanned this round without re-publishing stays untouched since
// the round's start, so it reads as older than the scan interval).
func (d *Detector) sweepStaleOpportunities(refreshed map[string]bool) {
	d.cacheMu.Lock()
	defer d.cacheMu.Unlock()

	for slug, entry := range d.cache {
		if refreshed[slug] && time.Since(entry.lastSeen) > d.config.ScanInterval {
			delete(d.cache, slug)
			CachedOpportunitiesEvictedTotal.Inc()
			d.logger.Debug("cached-opportunity-evicted", zap.String("market-slug", slug))
		}
	}
}

// publishOpportunity stores, caches, and fans out a detected opportunity.
// Shared by the event-driven loop and the deep scanner.
func (d *Detector) publishOpportunity(opp *Opportunity, marketSlug string) {
	d.cacheMu.Lock()
	d.cache[marketSlug] = &cachedOpportunity{opp: opp, lastSeen: time.Now()}
	d.cacheMu.Unlock()

	if err := d.storage.StoreOpportunity(d.ctx, opp); err != nil {
		d.logger.Error("failed-to-store-opportunity", zap.String("opportunity-id", opp.ID), zap.Error(err))
	}

	select {
	case d.opportunityChan <- opp:
		d.logger.Info("arbitrage-opportunity-detected",
			zap.String("opportunity-id", opp.ID),
			zap.String("market-slug", opp.MarketSlug),
			zap.String("type", string(opp.Type)),
			zap.Int("net-profit-bps", opp.NetProfitBPS),
			zap.Float64("net-profit", opp.NetProfit))
	default:
		d.logger.Warn("opportunity-channel-full", zap.String("market-slug", marketSlug))
	}
}

// CachedOpportunities returns a snapshot of the deep scanner's live
// opportunity cache, safe for concurrent reads (e.g. an HTTP handler).
func (d *Detector) CachedOpportunities() []*Opportunity {
	d.cacheMu.RLock()
	defer d.cacheMu.RUnlock()

	opps := make([]*Opportunity, 0, len(d.cache))
	for _, entry := range d.cache {
		opps = append(opps, entry.opp)
	}
	return opps
}

// detectionLoop listens for orderbook updates and checks for arbitrage.
func (d *Detector) detectionLoop() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			d.logger.Info("arbitrage-detector-stopping")
			close(d.opportunityChan)
			return
		case update := <-d.obUpdateChan:
			if update == nil {
				return
			}
			start := time.Now()
			d.checkArbitrageForToken(update)
			DetectionDurationSeconds.Observe(time.Since(start).Seconds())
		}
	}
}

// checkArbitrageForToken re-evaluates a binary market whenever either of
// its legs' orderbook changes.
func (d *Detector) checkArbitrageForToken(update *types.OrderbookSnapshot) {
	market, exists := d.discoveryService.GetMarketByTokenID(update.TokenID)
	if !exists {
		return
	}
	if len(market.Outcomes) != 2 {
		d.logger.Debug("skipping-non-binary-market", zap.String("market-slug", market.MarketSlug), zap.Int("outcome-count", len(market.Outcomes)))
		return
	}

	yesTokenID, noTokenID := market.Outcomes[0].TokenID, market.Outcomes[1].TokenID
	yesBook, ok := d.obManager.GetSnapshot(yesTokenID)
	if !ok {
		return
	}
	noBook, ok := d.obManager.GetSnapshot(noTokenID)
	if !ok {
		return
	}

	opp, found := d.evaluate(market, yesBook, noBook)
	if !found {
		return
	}

	latestUpdate := yesBook.LastUpdated
	if noBook.LastUpdated.After(latestUpdate) {
		latestUpdate = noBook.LastUpdated
	}
	EndToEndLatencySeconds.Observe(time.Since(latestUpdate).Seconds())

	d.publishOpportunity(opp, market.MarketSlug)
}

// evaluate builds a BookInput from a market's two legs and runs the
// mirror-adjusted arbitrage check, attaching per-token tick size and
// minimum order size from the metadata client (defaulting when absent).
func (d *Detector) evaluate(market *types.MarketSubscription, yesBook, noBook *types.OrderbookSnapshot) (*Opportunity, bool) {
	if yesBook.BestAskPrice <= 0 || yesBook.BestBidPrice <= 0 || noBook.BestAskPrice <= 0 || noBook.BestBidPrice <= 0 {
		OpportunitiesRejectedTotal.WithLabelValues("invalid_price").Inc()
		return nil, false
	}
	if yesBook.BestAskSize <= 0 || noBook.BestAskSize <= 0 {
		OpportunitiesRejectedTotal.WithLabelValues("invalid_size").Inc()
		return nil, false
	}

	yesTickSize, yesMinSize := d.tokenMeta(market.Outcomes[0].TokenID)
	noTickSize, noMinSize := d.tokenMeta(market.Outcomes[1].TokenID)

	sizeSafety := d.config.SizeSafetyFactor
	if sizeSafety <= 0 {
		sizeSafety = 0.8
	}

	maxBalanceSize := d.config.MaxTradeSize
	if d.balanceFn != nil {
		if bal := d.balanceFn(); bal < maxBalanceSize {
			maxBalanceSize = bal
		}
	}

	opp := NewFromBook(BookInput{
		MarketID:           market.MarketID,
		MarketSlug:         market.MarketSlug,
		MarketQuestion:     market.Question,
		ConditionID:        market.ConditionID,
		IsNegRisk:          market.IsNegRisk,
		YesTokenID:         market.Outcomes[0].TokenID,
		NoTokenID:          market.Outcomes[1].TokenID,
		YesAsk:             yesBook.BestAskPrice,
		YesBid:             yesBook.BestBidPrice,
		YesAskSize:         yesBook.BestAskSize,
		NoAsk:              noBook.BestAskPrice,
		NoBid:              noBook.BestBidPrice,
		NoAskSize:          noBook.BestAskSize,
		YesTickSize:        yesTickSize,
		YesMinSize:         yesMinSize,
		NoTickSize:         noTickSize,
		NoMinSize:          noMinSize,
		MaxBalanceSize:     maxBalanceSize,
		ConfigMaxTradeSize: d.config.MaxTradeSize,
		SizeSafetyFactor:   sizeSafety,
		MinTradeSize:       d.config.MinTradeSize,
		Epsilon:            d.config.Threshold,
		TakerFee:           d.config.TakerFee,
	})
	if opp == nil {
		OpportunitiesRejectedTotal.WithLabelValues("no_arbitrage_or_below_min_size").Inc()
		return nil, false
	}

	if opp.NetProfit <= 0 {
		d.logger.Debug("opportunity-rejected-negative-profit-after-fees",
			zap.String("market-slug", market.MarketSlug),
			zap.Float64("gross-profit", opp.EstimatedProfit),
			zap.Float64("total-fees", opp.TotalFees))
		OpportunitiesRejectedTotal.WithLabelValues("negative_profit_after_fees").Inc()
		return nil, false
	}

	OpportunitiesDetectedTotal.Inc()
	OpportunityProfitBPS.Observe(float64(opp.ProfitBPS))
	OpportunitySizeUSD.Observe(opp.MaxTradeSize)
	NetProfitBPS.Observe(float64(opp.NetProfitBPS))

	return opp, true
}

// tokenMeta returns tick size and minimum order size for a token, falling
// back to exchange-wide defaults when the metadata client is unset or the
// lookup fails.
func (d *Detector) tokenMeta(tokenID string) (tickSize, minSize float64) {
	if d.metadataClient == nil {
		return 0.01, 5.0
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	tickSize, minSize, err := d.metadataClient.GetTokenMetadata(ctx, tokenID)
	if err != nil {
		d.logger.Warn("failed-to-fetch-token-metadata", zap.String("token-id", tokenID), zap.Error(err))
		return 0.01, 5.0
	}
	return tickSize, minSize
}

// OpportunityChan returns the channel for receiving opportunities.
func (d *Detector) OpportunityChan() <-chan *Opportunity {
	return d.opportunityChan
}

// Close gracefully closes the detector.
func (d *Detector) Close() error {
	d.logger.Info("closing-arbitrage-detector")
	d.wg.Wait()
	d.logger.Info("arbitrage-detector-closed")
	return nil
}
