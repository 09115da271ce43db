package follow

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/polyarb/polyarb/pkg/types"
)

// ActivityFetcher supplies a wallet's recent activity feed, newest-first.
// Satisfied by a Data-API-backed gateway; kept as an interface so this
// package never imports the discovery client directly.
type ActivityFetcher interface {
	FetchActivity(ctx context.Context, wallet string, limit int) ([]types.FollowEvent, error)
}

type dailyUsage struct {
	usdc float64
	at   time.Time
}

// Runner tracks one followed wallet: its polling loop, dedupe cursor, and
// bounded suggestion/event history (§4.8).
type Runner struct {
	id      string
	cfg     RunnerConfig
	fetcher ActivityFetcher
	logger  *zap.Logger

	mu                      sync.Mutex
	running                 bool
	startedAt               time.Time
	lastSeenTransactionHash string
	suggestionRing          *ring[*Suggestion]
	eventRing               *ring[types.FollowEvent]
	dailySpend              []dailyUsage

	onSuggestion func(*Suggestion) // optional hook, e.g. AutoTrader
}

// NewRunner constructs a Runner for one target wallet.
func NewRunner(id string, cfg RunnerConfig, fetcher ActivityFetcher, logger *zap.Logger) *Runner {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		id:             id,
		cfg:            cfg,
		fetcher:        fetcher,
		logger:         logger,
		suggestionRing: newRing[*Suggestion](cfg.SuggestionRingSize),
		eventRing:      newRing[types.FollowEvent](cfg.EventRingSize),
	}
}

// OnSuggestion registers a callback invoked for every suggestion produced,
// including dropped ones (caller checks DroppedReason). Used to wire an
// AutoTrader without this package depending on it.
func (r *Runner) OnSuggestion(fn func(*Suggestion)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onSuggestion = fn
}

// Run starts the polling loop and blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.mu.Lock()
	r.running = true
	r.startedAt = time.Now().UTC()
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	ticker := time.NewTicker(time.Duration(r.cfg.PollMs) * time.Millisecond)
	defer ticker.Stop()

	r.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.poll(ctx)
		}
	}
}

func (r *Runner) poll(ctx context.Context) {
	events, err := r.fetcher.FetchActivity(ctx, r.cfg.TargetWallet, r.cfg.ActivityLimit)
	if err != nil {
		r.logger.Warn("follow-poll-failed", zap.String("runner", r.id), zap.Error(err))
		PollErrorsTotal.Inc()
		return
	}

	r.mu.Lock()
	lastSeen := r.lastSeenTransactionHash
	startedAt := r.startedAt
	r.mu.Unlock()

	fresh := make([]types.FollowEvent, 0, len(events))
	for _, ev := range events {
		fp := ev.Fingerprint()
		if fp == lastSeen {
			break
		}
		if ev.Timestamp.Before(startedAt) {
			continue
		}
		fresh = append(fresh, ev)
	}
	if len(fresh) == 0 {
		return
	}

	// events arrive newest-first; process oldest-first so daily-quota
	// accounting and the dedupe cursor both advance in chronological order.
	for i := len(fresh) - 1; i >= 0; i-- {
		r.handleEvent(fresh[i])
	}

	r.mu.Lock()
	r.lastSeenTransactionHash = fresh[0].Fingerprint()
	r.mu.Unlock()
}

func (r *Runner) handleEvent(ev types.FollowEvent) {
	r.mu.Lock()
	r.eventRing.push(ev)
	dailyUsed := r.dailyUsedLocked(ev.Timestamp)
	suggestion := r.cfg.buildSuggestion(r.id, ev, dailyUsed)
	if suggestion.DroppedReason == "" {
		r.dailySpend = append(r.dailySpend, dailyUsage{usdc: suggestion.SuggestedUsdc, at: suggestion.CreatedAt})
	}
	r.suggestionRing.push(suggestion)
	hook := r.onSuggestion
	r.mu.Unlock()

	SuggestionsTotal.WithLabelValues(dropLabel(suggestion.DroppedReason)).Inc()
	if hook != nil {
		hook(suggestion)
	}
}

// dailyUsedLocked sums suggested USDC over the trailing 24h, pruning
// expired entries. Caller must hold r.mu.
func (r *Runner) dailyUsedLocked(now time.Time) float64 {
	cutoff := now.Add(-24 * time.Hour)
	kept := r.dailySpend[:0]
	var total float64
	for _, e := range r.dailySpend {
		if e.at.After(cutoff) {
			kept = append(kept, e)
			total += e.usdc
		}
	}
	r.dailySpend = kept
	return total
}

// Suggestions returns the runner's bounded suggestion history, oldest first.
func (r *Runner) Suggestions() []*Suggestion {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.suggestionRing.snapshot()
}

// Events returns the runner's bounded observed-event history, oldest first.
func (r *Runner) Events() []types.FollowEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.eventRing.snapshot()
}

// Running reports whether the polling loop is currently active.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func dropLabel(reason string) string {
	if reason == "" {
		return "accepted"
	}
	return reason
}
