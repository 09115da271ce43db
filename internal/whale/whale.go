// Package whale implements WhaleDiscovery: an observation queue that
// accumulates per-wallet trade activity, a scheduled analyzer that
// classifies candidates against promotion thresholds, and a persisted
// index of promoted wallets (§4.7).
package whale

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/polyarb/polyarb/pkg/types"
)

// WindowFetcher supplies the raw per-window trade/settlement stats a
// wallet needs classified. Implemented by a Data-API-backed gateway; kept
// as an interface here so this package never imports the discovery client
// directly.
type WindowFetcher interface {
	FetchWindowStats(ctx context.Context, address, window string) (WindowStats, error)
}

// Config configures a Discovery instance.
type Config struct {
	MinTradeUSDC        float64       // per-trade floor before an observation is queued
	MinTradesObserved   int           // observation count floor before a wallet is analyzed
	MinPnl              float64
	MinWinRate          float64
	MinVolume           float64
	AnalysisInterval    time.Duration // default 20s
	MaxAnalysisPerBatch int           // default 10
	IndexPath           string        // JSON file persisting promoted WhaleRecords
	QueueBufferSize     int           // default 10000, effectively unbounded at expected load

	Fetcher WindowFetcher
	Cache   *WalletCache
	Logger  *zap.Logger
}

type observationIncrement struct {
	address     string
	tradesDelta int
	volumeDelta float64
	at          time.Time
}

// Discovery is the WhaleDiscovery service: queue + analyzer + index.
type Discovery struct {
	cfg    Config
	logger *zap.Logger

	queue chan observationIncrement

	mu           sync.Mutex
	observations map[string]*types.WhaleObservation
	promoted     map[string]*types.WhaleRecord // lowercased address -> record
}

// New constructs a Discovery with defaults filled in for zero-valued
// scheduling fields.
func New(cfg Config) *Discovery {
	if cfg.AnalysisInterval <= 0 {
		cfg.AnalysisInterval = 20 * time.Second
	}
	if cfg.MaxAnalysisPerBatch <= 0 {
		cfg.MaxAnalysisPerBatch = 10
	}
	if cfg.QueueBufferSize <= 0 {
		cfg.QueueBufferSize = 10000
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &Discovery{
		cfg:          cfg,
		logger:       logger,
		queue:        make(chan observationIncrement, cfg.QueueBufferSize),
		observations: make(map[string]*types.WhaleObservation),
		promoted:     make(map[string]*types.WhaleRecord),
	}

	if cfg.IndexPath != "" {
		if err := d.loadIndex(); err != nil {
			logger.Warn("whale-index-load-failed", zap.Error(err))
		}
	}
	return d
}

// Observe enqueues a trade observation for a wallet. Trades below
// MinTradeUSDC never enter the queue.
func (d *Discovery) Observe(address string, tradeUsdcValue float64) {
	if tradeUsdcValue < d.cfg.MinTradeUSDC {
		return
	}
	select {
	case d.queue <- observationIncrement{
		address:     strings.ToLower(address),
		tradesDelta: 1,
		volumeDelta: tradeUsdcValue,
		at:          time.Now().UTC(),
	}:
	default:
		d.logger.Warn("whale-observation-queue-full", zap.String("address", address))
		QueueDropsTotal.Inc()
	}
}

// Run drains the observation queue into the accumulator map and runs the
// analyzer on AnalysisInterval until ctx is cancelled.
func (d *Discovery) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.AnalysisInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case inc := <-d.queue:
			d.merge(inc)
		case <-ticker.C:
			d.analyzeBatch(ctx)
		}
	}
}

func (d *Discovery) merge(inc observationIncrement) {
	d.mu.Lock()
	defer d.mu.Unlock()

	obs, ok := d.observations[inc.address]
	if !ok {
		obs = &types.WhaleObservation{Address: inc.address, FirstObservedAt: inc.at}
		d.observations[inc.address] = obs
	}
	obs.TradesObserved += inc.tradesDelta
	obs.VolumeObserved += inc.volumeDelta
	obs.LastObservedAt = inc.at
	ObservationsQueuedTotal.Inc()
}

// candidates returns up to MaxAnalysisPerBatch observations that clear the
// pre-analysis gate and are not already promoted.
func (d *Discovery) candidates() []*types.WhaleObservation {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]*types.WhaleObservation, 0, d.cfg.MaxAnalysisPerBatch)
	for addr, obs := range d.observations {
		if len(out) >= d.cfg.MaxAnalysisPerBatch {
			break
		}
		if obs.TradesObserved < d.cfg.MinTradesObserved {
			continue
		}
		if _, already := d.promoted[addr]; already {
			continue
		}
		cp := *obs
		out = append(out, &cp)
	}
	return out
}

func (d *Discovery) analyzeBatch(ctx context.Context) {
	if d.cfg.Fetcher == nil {
		return
	}

	batch := d.candidates()
	if len(batch) == 0 {
		return
	}

	start := time.Now()
	for _, obs := range batch {
		d.analyzeWallet(ctx, obs)
	}
	AnalysisBatchDurationSeconds.Observe(time.Since(start).Seconds())
	AnalysisBatchSize.Set(float64(len(batch)))
}

func (d *Discovery) analyzeWallet(ctx context.Context, obs *types.WhaleObservation) {
	entry := types.WalletCacheEntry{Address: obs.Address, Windows: make(map[string]types.WindowMetrics, len(allWindows))}

	for _, window := range allWindows {
		stats, err := d.cfg.Fetcher.FetchWindowStats(ctx, obs.Address, window)
		if err != nil {
			d.logger.Warn("whale-window-fetch-failed",
				zap.String("address", obs.Address), zap.String("window", window), zap.Error(err))
			continue
		}
		entry.Windows[window] = classify(stats, window)
	}

	if d.cfg.Cache != nil {
		d.cfg.Cache.Set(&entry)
	}

	all, ok := entry.Windows[windowAll]
	if !ok {
		return
	}
	var totalVolume float64
	if all.Volume != nil {
		totalVolume = *all.Volume
	}
	if !meetsPromotion(all, totalVolume, d.cfg.MinPnl, d.cfg.MinWinRate, d.cfg.MinVolume) {
		return
	}

	record := &types.WhaleRecord{
		Address:     obs.Address,
		PromotedAt:  time.Now().UTC(),
		Pnl:         deref(all.Pnl),
		WinRate:     deref(all.WinRate),
		TotalVolume: totalVolume,
		SmartScore:  deref(all.SmartScore),
	}

	d.mu.Lock()
	d.promoted[obs.Address] = record
	d.mu.Unlock()

	WalletsPromotedTotal.Inc()
	d.logger.Info("whale-promoted",
		zap.String("address", obs.Address),
		zap.Float64("pnl", record.Pnl),
		zap.Float64("win-rate", record.WinRate),
		zap.Float64("total-volume", record.TotalVolume))

	if err := d.saveIndex(); err != nil {
		d.logger.Warn("whale-index-save-failed", zap.Error(err))
	}
}

// Whales returns every currently-promoted wallet record.
func (d *Discovery) Whales() []*types.WhaleRecord {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]*types.WhaleRecord, 0, len(d.promoted))
	for _, r := range d.promoted {
		cp := *r
		out = append(out, &cp)
	}
	return out
}

func (d *Discovery) loadIndex() error {
	data, err := os.ReadFile(d.cfg.IndexPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var records []*types.WhaleRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("parse whale index: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range records {
		d.promoted[strings.ToLower(r.Address)] = r
	}
	return nil
}

func (d *Discovery) saveIndex() error {
	d.mu.Lock()
	records := make([]*types.WhaleRecord, 0, len(d.promoted))
	for _, r := range d.promoted {
		records = append(records, r)
	}
	d.mu.Unlock()

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal whale index: %w", err)
	}
	return writeFileAtomic(d.cfg.IndexPath, data, 0o644)
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

// writeFileAtomic writes data to path via a tmp-file-plus-rename so a
// crash mid-write never corrupts the persisted index (§5 "atomic
// tmp+rename").
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	return os.Rename(tmpPath, path)
}
