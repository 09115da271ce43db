package follow

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/polyarb/polyarb/pkg/types"
)

// ErrSuggestionNotFound is returned by ExecutePending for an unknown or
// already-consumed suggestion id.
var ErrSuggestionNotFound = errors.New("follow: suggestion not found")

// ErrHourlyCapReached is returned when MaxOrdersPerHour has been hit.
var ErrHourlyCapReached = errors.New("follow: hourly order cap reached")

// Sweep stop reasons (§4.8).
const (
	SweepStopCapReached       = "capReached"
	SweepStopSizeExhausted    = "sizeExhausted"
	SweepStopPriceCapHit      = "priceCapHit"
	SweepStopInsufficientDepth = "insufficientDepth"
	SweepStopQuotaHit         = "quotaHit"
)

// OrderBookProvider supplies the current book for a token; sweep style walks
// it to build its simulated fills. Copy style does not read it.
type OrderBookProvider interface {
	GetSnapshot(tokenID string) (*types.OrderbookSnapshot, bool)
}

// PaperOrder is one simulated fill against the cached book.
type PaperOrder struct {
	Price     float64
	Size      float64
	UsdcValue float64
}

// PaperExecution is the record of one paper-mode suggestion execution.
type PaperExecution struct {
	SuggestionID string
	ConditionID  string
	Orders       []PaperOrder
	StopReason   string
	At           time.Time
}

// AutoTraderConfig configures copy-trade execution for suggestions coming
// out of one or more Runners.
type AutoTraderConfig struct {
	Mode  string // "queue" or "auto"
	Style string // "copy" or "sweep"

	PriceBufferCents       float64 // copy style: price offset in cents
	SweepPriceCapCents     float64 // sweep style: max cents walked from touch
	SweepMaxOrdersPerEvent int
	SweepMaxUsdcPerEvent   float64
	SweepMinIntervalMs     int

	AllowConditionIDs map[string]bool // empty = allow all
	DenyConditionIDs  map[string]bool
	MaxOrdersPerHour  int

	Paper bool // copy style: record the order in PaperHistory; sweep style records simulated fills either way
}

// AutoTrader consumes suggestions from one or more Runners and turns
// accepted ones into simulated orders recorded in PaperHistory (§4.8). It
// holds no order client and submits no live orders.
type AutoTrader struct {
	cfg    AutoTraderConfig
	books  OrderBookProvider
	logger *zap.Logger

	mu             sync.Mutex
	pending        map[string]*Suggestion
	lastSweepAt    map[string]time.Time // keyed by conditionId
	hourlyOrders   []time.Time
	paperHistory   []PaperExecution
}

// NewAutoTrader constructs an AutoTrader. books may be nil for live-only,
// copy-style configurations that never need to inspect depth.
func NewAutoTrader(cfg AutoTraderConfig, books OrderBookProvider, logger *zap.Logger) *AutoTrader {
	if cfg.Mode == "" {
		cfg.Mode = "queue"
	}
	if cfg.Style == "" {
		cfg.Style = "copy"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AutoTrader{
		cfg:         cfg,
		books:       books,
		logger:      logger,
		pending:     make(map[string]*Suggestion),
		lastSweepAt: make(map[string]time.Time),
	}
}

func (a *AutoTrader) allowedConditionID(conditionID string) bool {
	if a.cfg.DenyConditionIDs[conditionID] {
		return false
	}
	if len(a.cfg.AllowConditionIDs) == 0 {
		return true
	}
	return a.cfg.AllowConditionIDs[conditionID]
}

// HandleSuggestion is the Runner.OnSuggestion hook: it queues or
// immediately executes an accepted suggestion depending on Mode.
func (a *AutoTrader) HandleSuggestion(s *Suggestion) {
	if s.DroppedReason != "" {
		return
	}
	if !a.allowedConditionID(s.Event.ConditionID) {
		return
	}

	if a.cfg.Mode == "queue" {
		a.mu.Lock()
		a.pending[s.ID] = s
		a.mu.Unlock()
		return
	}

	if err := a.Execute(s); err != nil {
		a.logger.Warn("follow-autotrade-failed", zap.String("suggestion-id", s.ID), zap.Error(err))
	}
}

// ExecutePending executes a previously queued suggestion by id.
func (a *AutoTrader) ExecutePending(id string) error {
	a.mu.Lock()
	s, ok := a.pending[id]
	if ok {
		delete(a.pending, id)
	}
	a.mu.Unlock()

	if !ok {
		return ErrSuggestionNotFound
	}
	return a.Execute(s)
}

// Pending returns the ids of suggestions awaiting ExecutePending.
func (a *AutoTrader) Pending() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.pending))
	for id := range a.pending {
		out = append(out, id)
	}
	return out
}

// Execute runs the configured style against a suggestion.
func (a *AutoTrader) Execute(s *Suggestion) error {
	if !a.allowHourlyLocked() {
		return ErrHourlyCapReached
	}

	if a.cfg.Style == "sweep" {
		return a.executeSweep(s)
	}
	return a.executeCopy(s)
}

func (a *AutoTrader) allowHourlyLocked() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cfg.MaxOrdersPerHour <= 0 {
		return true
	}
	cutoff := time.Now().Add(-time.Hour)
	kept := a.hourlyOrders[:0]
	for _, t := range a.hourlyOrders {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= a.cfg.MaxOrdersPerHour {
		a.hourlyOrders = kept
		return false
	}
	a.hourlyOrders = append(kept, time.Now())
	return true
}

func (a *AutoTrader) executeCopy(s *Suggestion) error {
	price := s.Event.Price + a.cfg.PriceBufferCents/100
	price = clampPrice(price)
	size := 0.0
	if price > 0 {
		size = s.SuggestedUsdc / price
	}

	order := PaperOrder{Price: price, Size: size, UsdcValue: size * price}

	if a.cfg.Paper {
		a.recordPaper(s, []PaperOrder{order}, "")
		AutoTradeOrdersTotal.WithLabelValues("copy", "paper").Inc()
		return nil
	}

	// With Paper unset the order is only counted under the live label;
	// AutoTrader holds no order client, so nothing is submitted.
	AutoTradeOrdersTotal.WithLabelValues("copy", "live").Inc()
	return nil
}

func (a *AutoTrader) executeSweep(s *Suggestion) error {
	conditionID := s.Event.ConditionID

	a.mu.Lock()
	last, seen := a.lastSweepAt[conditionID]
	if seen && a.cfg.SweepMinIntervalMs > 0 && time.Since(last) < time.Duration(a.cfg.SweepMinIntervalMs)*time.Millisecond {
		a.mu.Unlock()
		return nil
	}
	a.lastSweepAt[conditionID] = time.Now()
	a.mu.Unlock()

	if a.books == nil {
		a.recordPaper(s, nil, SweepStopInsufficientDepth)
		return nil
	}
	snapshot, ok := a.books.GetSnapshot(s.Event.Asset)
	if !ok {
		a.recordPaper(s, nil, SweepStopInsufficientDepth)
		return nil
	}

	levels := snapshot.Asks
	if s.Event.Side == types.FollowSideSell {
		levels = snapshot.Bids
	}
	if len(levels) == 0 {
		a.recordPaper(s, nil, SweepStopInsufficientDepth)
		return nil
	}

	touch := levels[0].Price
	priceCap := touch + a.cfg.SweepPriceCapCents/100
	if s.Event.Side == types.FollowSideSell {
		priceCap = touch - a.cfg.SweepPriceCapCents/100
	}

	remainingUsdc := s.SuggestedUsdc
	if a.cfg.SweepMaxUsdcPerEvent > 0 && remainingUsdc > a.cfg.SweepMaxUsdcPerEvent {
		remainingUsdc = a.cfg.SweepMaxUsdcPerEvent
	}

	orders := make([]PaperOrder, 0, a.cfg.SweepMaxOrdersPerEvent)
	stopReason := SweepStopSizeExhausted

	for _, lvl := range levels {
		if a.cfg.SweepMaxOrdersPerEvent > 0 && len(orders) >= a.cfg.SweepMaxOrdersPerEvent {
			stopReason = SweepStopCapReached
			break
		}
		if priceBeyondCap(lvl.Price, priceCap, s.Event.Side) {
			stopReason = SweepStopPriceCapHit
			break
		}
		if remainingUsdc <= 0 {
			stopReason = SweepStopQuotaHit
			break
		}

		levelUsdc := lvl.Price * lvl.Size
		takeUsdc := levelUsdc
		if takeUsdc > remainingUsdc {
			takeUsdc = remainingUsdc
		}
		size := 0.0
		if lvl.Price > 0 {
			size = takeUsdc / lvl.Price
		}
		orders = append(orders, PaperOrder{Price: lvl.Price, Size: size, UsdcValue: takeUsdc})
		remainingUsdc -= takeUsdc
	}

	a.recordPaper(s, orders, stopReason)
	AutoTradeOrdersTotal.WithLabelValues("sweep", "paper").Add(float64(len(orders)))
	return nil
}

func priceBeyondCap(price, cap float64, side types.FollowSide) bool {
	if side == types.FollowSideSell {
		return price < cap
	}
	return price > cap
}

func clampPrice(p float64) float64 {
	if p <= 0 {
		return 0.01
	}
	if p >= 1 {
		return 0.99
	}
	return p
}

func (a *AutoTrader) recordPaper(s *Suggestion, orders []PaperOrder, stopReason string) {
	a.mu.Lock()
	a.paperHistory = append(a.paperHistory, PaperExecution{
		SuggestionID: s.ID,
		ConditionID:  s.Event.ConditionID,
		Orders:       orders,
		StopReason:   stopReason,
		At:           time.Now().UTC(),
	})
	a.mu.Unlock()
}

// PaperHistory returns every paper execution recorded so far.
func (a *AutoTrader) PaperHistory() []PaperExecution {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]PaperExecution, len(a.paperHistory))
	copy(out, a.paperHistory)
	return out
}
