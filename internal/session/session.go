// Package session implements SessionOrchestrator: a single-threaded loop
// per trading session that merges orderbook updates and a periodic tick,
// asks a Strategy for signals, and serializes them into order/settlement
// actions (§4.9).
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/polyarb/polyarb/pkg/types"
)

// SignalType enumerates the actions a Strategy can request.
type SignalType string

const (
	SignalRebalance   SignalType = "rebalance"
	SignalPlaceOrder  SignalType = "place_order"
	SignalCancelOrder SignalType = "cancel_order"
)

// Signal is one action a Strategy asks the orchestrator to take.
type Signal struct {
	Type    SignalType
	TokenID string
	Side    string
	Price   float64
	Size    float64
	OrderID string // cancel_order only
}

// Strategy decides what to do in response to a book update or a periodic
// tick. Implementations must not block; the orchestrator calls them
// synchronously on its single loop goroutine.
type Strategy interface {
	OnBookUpdate(ctx context.Context, snapshot *types.OrderbookSnapshot) []Signal
	OnTick(ctx context.Context) []Signal
}

// OrderExecutor places and cancels orders. Satisfied by
// internal/execution.OrderClient; kept as an interface here to avoid a
// session->execution->session import cycle.
type OrderExecutor interface {
	PlaceOrder(ctx context.Context, tokenID, side string, price, size float64) (orderID string, err error)
	CancelOrder(ctx context.Context, orderID string) error
}

// Rebalancer issues the on-chain merge/split corrective action for an
// imbalanced position. Satisfied by the arbitrage package's rebalancer.
type Rebalancer interface {
	Rebalance(ctx context.Context) error
}

// State is the orchestrator's persisted progress snapshot (§4.9).
type State struct {
	Running          bool      `json:"running"`
	SignalsGenerated int       `json:"signalsGenerated"`
	OrdersPlaced     int       `json:"ordersPlaced"`
	BalanceSnapshots int       `json:"balanceSnapshots"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Config configures an Orchestrator.
type Config struct {
	SessionID       string
	StateDir        string // state persisted at {StateDir}/sessions/{id}/state.json
	BookUpdates     <-chan *types.OrderbookSnapshot
	TickInterval    time.Duration // default 1s
	PersistInterval time.Duration // default 5s

	Strategy   Strategy
	Executor   OrderExecutor
	Rebalancer Rebalancer
	Logger     *zap.Logger
}

// Orchestrator runs one session's merged event loop.
type Orchestrator struct {
	cfg    Config
	logger *zap.Logger

	mu    sync.Mutex
	state State
}

// New constructs an Orchestrator, filling in scheduling defaults.
func New(cfg Config) *Orchestrator {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.PersistInterval <= 0 {
		cfg.PersistInterval = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{cfg: cfg, logger: logger}
}

// Run executes the merged bookUpdate/periodicTick loop until ctx is
// cancelled, persisting state on PersistInterval.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.setRunning(true)
	defer o.setRunning(false)

	tick := time.NewTicker(o.cfg.TickInterval)
	defer tick.Stop()
	persist := time.NewTicker(o.cfg.PersistInterval)
	defer persist.Stop()

	for {
		select {
		case <-ctx.Done():
			o.persist()
			return ctx.Err()

		case snapshot, ok := <-o.cfg.BookUpdates:
			if !ok {
				o.cfg.BookUpdates = nil
				continue
			}
			o.dispatch(ctx, o.cfg.Strategy.OnBookUpdate(ctx, snapshot))

		case <-tick.C:
			o.dispatch(ctx, o.cfg.Strategy.OnTick(ctx))

		case <-persist.C:
			o.persist()
		}
	}
}

func (o *Orchestrator) setRunning(running bool) {
	o.mu.Lock()
	o.state.Running = running
	o.mu.Unlock()
}

// dispatch processes signals one at a time in order, on the caller's
// goroutine (the single session loop), so actions within one tick never
// interleave with actions from another.
func (o *Orchestrator) dispatch(ctx context.Context, signals []Signal) {
	for _, sig := range signals {
		o.mu.Lock()
		o.state.SignalsGenerated++
		o.mu.Unlock()
		SignalsTotal.WithLabelValues(string(sig.Type)).Inc()

		if err := o.apply(ctx, sig); err != nil {
			o.logger.Warn("session-signal-failed",
				zap.String("session", o.cfg.SessionID),
				zap.String("signal-type", string(sig.Type)),
				zap.Error(err))
		}
	}
}

func (o *Orchestrator) apply(ctx context.Context, sig Signal) error {
	switch sig.Type {
	case SignalRebalance:
		if o.cfg.Rebalancer == nil {
			return fmt.Errorf("session: no rebalancer configured")
		}
		return o.cfg.Rebalancer.Rebalance(ctx)

	case SignalPlaceOrder:
		if o.cfg.Executor == nil {
			return fmt.Errorf("session: no executor configured")
		}
		if _, err := o.cfg.Executor.PlaceOrder(ctx, sig.TokenID, sig.Side, sig.Price, sig.Size); err != nil {
			return err
		}
		o.mu.Lock()
		o.state.OrdersPlaced++
		o.mu.Unlock()
		return nil

	case SignalCancelOrder:
		if o.cfg.Executor == nil {
			return fmt.Errorf("session: no executor configured")
		}
		return o.cfg.Executor.CancelOrder(ctx, sig.OrderID)

	default:
		return fmt.Errorf("session: unknown signal type %q", sig.Type)
	}
}

// State returns a copy of the orchestrator's current in-memory state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) statePath() string {
	return filepath.Join(o.cfg.StateDir, "sessions", o.cfg.SessionID, "state.json")
}

func (o *Orchestrator) persist() {
	if o.cfg.StateDir == "" {
		return
	}

	o.mu.Lock()
	o.state.BalanceSnapshots++
	o.state.UpdatedAt = time.Now().UTC()
	snapshot := o.state
	o.mu.Unlock()

	if err := writeStateAtomic(o.statePath(), &snapshot); err != nil {
		o.logger.Warn("session-state-persist-failed",
			zap.String("session", o.cfg.SessionID), zap.Error(err))
		return
	}
	SessionStatePersistsTotal.Inc()
}

func writeStateAtomic(path string, state *State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
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
	return os.Rename(tmpPath, path)
}
