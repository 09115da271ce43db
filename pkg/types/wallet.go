package types

import "time"

// WindowMetrics holds performance metrics for a single lookback window.
// Fields are pointers so a nulled-out window (data unavailable, per the
// whale discovery "no pollution" invariant) can be distinguished from a
// window with genuinely zero activity.
type WindowMetrics struct {
	Pnl         *float64
	Volume      *float64
	TradeCount  *int
	WinRate     *float64
	SmartScore  *float64
}

// WalletCacheEntry is keyed by lowercased wallet address. TTL is 24h.
type WalletCacheEntry struct {
	Address   string
	UpdatedAt time.Time
	Windows   map[string]WindowMetrics // "24h", "7d", "30d", "all"
}

// IsEmpty reports whether every window in the entry carries no data, the
// signal used to refuse overwriting a valid prior entry with a failed fetch.
func (w *WalletCacheEntry) IsEmpty() bool {
	for _, wm := range w.Windows {
		if wm.Pnl != nil || wm.Volume != nil || wm.TradeCount != nil {
			return false
		}
	}
	return true
}

// WhaleObservation is the pre-promotion accumulator gated by trade-size and
// trade-count thresholds before a wallet is analyzed.
type WhaleObservation struct {
	Address         string
	TradesObserved  int
	VolumeObserved  float64
	FirstObservedAt time.Time
	LastObservedAt  time.Time
}

// WhaleRecord is a promoted wallet meeting all classification thresholds.
type WhaleRecord struct {
	Address     string
	PromotedAt  time.Time
	Pnl         float64
	WinRate     float64
	TotalVolume float64
	SmartScore  float64
}
