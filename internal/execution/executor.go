package execution

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/polyarb/polyarb/internal/arbitrage"
	"github.com/polyarb/polyarb/internal/circuitbreaker"
	"github.com/polyarb/polyarb/pkg/types"
	"go.uber.org/zap"
)

// Executor executes trades for arbitrage opportunities.
type Executor struct {
	mode             string // "paper" or "live"
	logger           *zap.Logger
	opportunityChan  <-chan *arbitrage.Opportunity
	ctx              context.Context
	wg               sync.WaitGroup
	cumulativeProfit float64
	mu               sync.Mutex
	orderClient      *OrderClient // For live trading
	circuitBreaker   *circuitbreaker.BalanceCircuitBreaker

	// Fill verification config
	aggressionTicks  int
	fillTimeout      time.Duration
	fillRetryInitial time.Duration
	fillRetryMax     time.Duration
	fillRetryMult    float64
	takerFee         float64
}

// Config holds executor configuration.
type Config struct {
	Mode               string
	MaxPositionSize    float64
	Logger             *zap.Logger
	OpportunityChannel <-chan *arbitrage.Opportunity
	OrderClient        *OrderClient                          // Optional: for live trading
	CircuitBreaker     *circuitbreaker.BalanceCircuitBreaker // Optional: for balance monitoring

	// Fill verification config
	AggressionTicks  int
	FillTimeout      time.Duration
	FillRetryInitial time.Duration
	FillRetryMax     time.Duration
	FillRetryMult    float64
	TakerFee         float64
}

// New creates a new trade executor.
func New(cfg *Config) *Executor {
	return &Executor{
		mode:             cfg.Mode,
		logger:           cfg.Logger,
		opportunityChan:  cfg.OpportunityChannel,
		orderClient:      cfg.OrderClient,
		circuitBreaker:   cfg.CircuitBreaker,
		aggressionTicks:  cfg.AggressionTicks,
		fillTimeout:      cfg.FillTimeout,
		fillRetryInitial: cfg.FillRetryInitial,
		fillRetryMax:     cfg.FillRetryMax,
		fillRetryMult:    cfg.FillRetryMult,
		takerFee:         cfg.TakerFee,
	}
}

// Start starts the executor.
func (e *Executor) Start(ctx context.Context) error {
	e.ctx = ctx
	e.logger.Info("executor-starting", zap.String("mode", e.mode))

	e.wg.Add(1)
	go e.executionLoop()

	return nil
}

// executionLoop processes opportunities.
func (e *Executor) executionLoop() {
	defer e.wg.Done()

	for {
		select {
		case <-e.ctx.Done():
			e.logger.Info("executor-stopping")
			return
		case opp, ok := <-e.opportunityChan:
			if !ok {
				e.logger.Info("opportunity-channel-closed")
				return
			}

			// Track opportunity received
			OpportunitiesReceived.Inc()

			// Check circuit breaker before executing
			if e.circuitBreaker != nil && !e.circuitBreaker.IsEnabled() {
				e.logger.Warn("skipping-opportunity-circuit-breaker-disabled",
					zap.String("opportunity-id", opp.ID),
					zap.String("market-slug", opp.MarketSlug),
					zap.Float64("spread", opp.ProfitMargin))
				OpportunitiesSkippedTotal.WithLabelValues("circuit_breaker").Inc()
				continue
			}

			start := time.Now()
			result := e.execute(opp)
			ExecutionDurationSeconds.Observe(time.Since(start).Seconds())

			if result.Error != nil {
				e.logger.Error("execution-failed",
					zap.String("opportunity-id", opp.ID),
					zap.Error(result.Error))

				// Classify error type
				errorType := classifyError(result.Error)
				ExecutionErrorsTotal.Inc()
				ExecutionErrorsByType.WithLabelValues(errorType).Inc()
			} else {
				// Track successful execution
				OpportunitiesExecuted.Inc()

				e.logger.Info("execution-successful",
					zap.String("opportunity-id", opp.ID),
					zap.String("market-slug", opp.MarketSlug),
					zap.Float64("profit", result.RealizedProfit))

				// Record successful trade for circuit breaker threshold calculation
				if e.circuitBreaker != nil && e.mode == "live" {
					e.circuitBreaker.RecordTrade(opp.MaxTradeSize)
				}
			}
		}
	}
}

// execute executes an arbitrage opportunity.
func (e *Executor) execute(opp *arbitrage.Opportunity) *types.ExecutionResult {
	switch e.mode {
	case "paper":
		return e.executePaper(opp)
	case "live":
		return e.executeLive(opp)
	default:
		return &types.ExecutionResult{
			OpportunityID: opp.ID,
			MarketSlug:    opp.MarketSlug,
			ExecutedAt:    time.Now(),
			Success:       false,
			Error:         fmt.Errorf("unknown execution mode: %s", e.mode),
		}
	}
}

// executePaper executes a paper trade (simulated) for a binary YES/NO
// opportunity. Long arb buys both legs; short arb sells both legs against a
// simulated split.
func (e *Executor) executePaper(opp *arbitrage.Opportunity) *types.ExecutionResult {
	now := time.Now()

	side := "BUY"
	yesPrice, noPrice := opp.YesAskPrice, opp.NoAskPrice
	if opp.Type == types.OpportunityShort {
		side = "SELL"
		yesPrice, noPrice = opp.Prices.EffSellYes, opp.Prices.EffSellNo
	}

	yesTrade := &types.Trade{TokenID: opp.YesTokenID, Outcome: "YES", Side: side, Price: yesPrice, Size: opp.MaxTradeSize, Timestamp: now}
	noTrade := &types.Trade{TokenID: opp.NoTokenID, Outcome: "NO", Side: side, Price: noPrice, Size: opp.MaxTradeSize, Timestamp: now}

	TradesTotal.WithLabelValues("paper", "YES").Inc()
	TradesTotal.WithLabelValues("paper", "NO").Inc()

	realizedProfit := opp.MaxTradeSize * opp.ProfitMargin

	ProfitRealizedUSD.WithLabelValues("paper").Add(realizedProfit)

	e.mu.Lock()
	e.cumulativeProfit += realizedProfit
	cumulativeProfit := e.cumulativeProfit
	e.mu.Unlock()

	e.logger.Info("paper-trade-executed",
		zap.String("market-slug", opp.MarketSlug),
		zap.String("question", opp.MarketQuestion),
		zap.String("type", string(opp.Type)),
		zap.Float64("yes-price", yesPrice),
		zap.Float64("no-price", noPrice),
		zap.Float64("size", opp.MaxTradeSize),
		zap.Int("profit-bps", opp.ProfitBPS),
		zap.Float64("profit-usd", realizedProfit),
		zap.Float64("cumulative-profit-usd", cumulativeProfit))

	return &types.ExecutionResult{
		OpportunityID:  opp.ID,
		MarketSlug:     opp.MarketSlug,
		ExecutedAt:     now,
		YesTrade:       yesTrade,
		NoTrade:        noTrade,
		RealizedProfit: realizedProfit,
		ExpectedProfit: opp.EstimatedProfit,
		Success:        true,
	}
}

// adjustPriceForAggression adjusts the ask price upward by N ticks to improve fill probability.
func adjustPriceForAggression(askPrice, tickSize float64, aggressionTicks int) (adjustedPrice float64) {
	adjustedPrice = askPrice + (tickSize * float64(aggressionTicks))

	// Cap at 0.9999 (max valid price on Polymarket)
	if adjustedPrice > 0.9999 {
		adjustedPrice = 0.9999
	}

	// Round to tick size boundaries
	adjustedPrice = math.Round(adjustedPrice/tickSize) * tickSize

	return adjustedPrice
}

// calculateActualProfit computes profit from fill verification results.
// Returns (actualProfit, allFilled).
// Requires all orders to be 100% filled; partial fills return 0.0, false.
func calculateActualProfit(fills []types.FillStatus, takerFee float64) (actualProfit float64, allFilled bool) {
	allFilled = true
	totalCost := 0.0
	tokenCount := 0.0

	for i, fill := range fills {
		if !fill.FullyFilled {
			return 0.0, false // Require 100% fill
		}
		totalCost += fill.SizeFilled * fill.ActualPrice

		// All outcomes should have equal token counts (arbitrage strategy)
		if i == 0 {
			tokenCount = fill.SizeFilled
		}
	}

	// Revenue from winning outcome: tokenCount * $1.00
	revenue := tokenCount
	fees := totalCost * takerFee
	actualProfit = revenue - totalCost - fees

	return actualProfit, true
}

// executeLive executes a live trade via the Polymarket CLOB API. Both legs
// of a binary opportunity are submitted atomically via the batch endpoint.
// Short-arb opportunities require selling both legs against a collateral
// split, which the batch order builder does not yet support, so they are
// rejected here rather than mis-executed as a buy.
func (e *Executor) executeLive(opp *arbitrage.Opportunity) *types.ExecutionResult {
	now := time.Now()

	if e.orderClient == nil {
		e.logger.Error("order-client-not-configured")
		return &types.ExecutionResult{
			OpportunityID: opp.ID,
			MarketSlug:    opp.MarketSlug,
			ExecutedAt:    now,
			Success:       false,
			Error:         fmt.Errorf("order client not configured"),
		}
	}

	if opp.YesTokenID == "" || opp.NoTokenID == "" {
		e.logger.Error("missing-token-id", zap.String("opportunity-id", opp.ID))
		return &types.ExecutionResult{
			OpportunityID: opp.ID,
			MarketSlug:    opp.MarketSlug,
			ExecutedAt:    now,
			Success:       false,
			Error:         fmt.Errorf("missing YES or NO token ID"),
		}
	}

	if opp.Type == types.OpportunityShort {
		e.logger.Error("short-arb-live-execution-unsupported",
			zap.String("opportunity-id", opp.ID),
			zap.String("market-slug", opp.MarketSlug))
		return &types.ExecutionResult{
			OpportunityID: opp.ID,
			MarketSlug:    opp.MarketSlug,
			ExecutedAt:    now,
			Success:       false,
			Error:         fmt.Errorf("short arb live execution requires sell-side order support, not yet wired"),
		}
	}

	adjustedYesPrice := adjustPriceForAggression(opp.YesAskPrice, opp.YesTickSize, e.aggressionTicks)
	adjustedNoPrice := adjustPriceForAggression(opp.NoAskPrice, opp.NoTickSize, e.aggressionTicks)

	e.logger.Info("placing-batch-orders",
		zap.String("market-slug", opp.MarketSlug),
		zap.Float64("size", opp.MaxTradeSize),
		zap.Float64("yes-ask", opp.YesAskPrice),
		zap.Float64("no-ask", opp.NoAskPrice),
		zap.Float64("yes-adjusted", adjustedYesPrice),
		zap.Float64("no-adjusted", adjustedNoPrice))

	ctx, cancel := context.WithTimeout(e.ctx, 30*time.Second)
	defer cancel()

	yesResp, noResp, err := e.orderClient.PlaceOrdersBatch(
		ctx,
		opp.YesTokenID,
		opp.NoTokenID,
		opp.MaxTradeSize,
		adjustedYesPrice,
		adjustedNoPrice,
		opp.YesTickSize,
		opp.YesMinSize,
		opp.NoTickSize,
		opp.NoMinSize,
	)

	if err != nil {
		e.logger.Error("batch-order-placement-failed",
			zap.String("opportunity-id", opp.ID),
			zap.String("market-slug", opp.MarketSlug),
			zap.Error(err))

		ExecutionErrorsTotal.Inc()

		return &types.ExecutionResult{
			OpportunityID: opp.ID,
			MarketSlug:    opp.MarketSlug,
			ExecutedAt:    now,
			Success:       false,
			Error:         err,
		}
	}

	var failedLegs []string
	if yesResp == nil || !yesResp.Success || yesResp.OrderID == "" {
		failedLegs = append(failedLegs, "YES")
	}
	if noResp == nil || !noResp.Success || noResp.OrderID == "" {
		failedLegs = append(failedLegs, "NO")
	}

	if len(failedLegs) > 0 {
		e.logger.Error("some-orders-failed",
			zap.String("opportunity-id", opp.ID),
			zap.String("market-slug", opp.MarketSlug),
			zap.Strings("failed-legs", failedLegs))
		ExecutionErrorsTotal.Inc()
		return &types.ExecutionResult{
			OpportunityID: opp.ID,
			MarketSlug:    opp.MarketSlug,
			ExecutedAt:    now,
			Success:       false,
			Error:         fmt.Errorf("order failures: %s", strings.Join(failedLegs, ", ")),
		}
	}

	orderIDs := []string{yesResp.OrderID, noResp.OrderID}
	outcomes := []string{"YES", "NO"}
	expectedSizes := []float64{opp.MaxTradeSize, opp.MaxTradeSize}
	adjustedPrices := []float64{adjustedYesPrice, adjustedNoPrice}

	expectedProfit := opp.MaxTradeSize * opp.ProfitMargin

	e.logger.Info("orders-placed-verifying-fills",
		zap.String("market-slug", opp.MarketSlug),
		zap.Float64("size-usd", opp.MaxTradeSize),
		zap.Float64("expected-profit-usd", expectedProfit),
		zap.String("yes-order-id", yesResp.OrderID),
		zap.String("no-order-id", noResp.OrderID))

	go e.verifyFillsAndUpdateMetrics(orderIDs, outcomes, expectedSizes, adjustedPrices, opp, expectedProfit, now)

	return &types.ExecutionResult{
		OpportunityID:  opp.ID,
		MarketSlug:     opp.MarketSlug,
		ExecutedAt:     now,
		OrderIDs:       orderIDs,
		ExpectedProfit: expectedProfit,
		Success:        true,
		Error:          nil,
	}
}

// verifyFillsAndUpdateMetrics runs in a goroutine to verify fills and update metrics asynchronously.
func (e *Executor) verifyFillsAndUpdateMetrics(
	orderIDs []string,
	outcomes []string,
	expectedSizes []float64,
	adjustedPrices []float64,
	opp *arbitrage.Opportunity,
	expectedProfit float64,
	executedAt time.Time,
) {
	// Create a new context for fill verification (independent of request context)
	ctx, cancel := context.WithTimeout(context.Background(), e.fillTimeout+10*time.Second)
	defer cancel()

	// Create fill tracker
	fillTracker := NewFillTracker(
		e.orderClient,
		e.logger,
		&FillTrackerConfig{
			InitialBackoff: e.fillRetryInitial,
			MaxBackoff:     e.fillRetryMax,
			BackoffMult:    e.fillRetryMult,
			FillTimeout:    e.fillTimeout,
		},
	)

	// Verify fills with exponential backoff
	fillStartTime := time.Now()
	fillStatuses, err := fillTracker.VerifyFills(ctx, orderIDs, outcomes, expectedSizes)
	fillDuration := time.Since(fillStartTime)

	// Update fill verification duration metric
	FillVerificationDurationSeconds.Observe(fillDuration.Seconds())

	if err != nil {
		e.logger.Error("fill-verification-failed",
			zap.String("opportunity-id", opp.ID),
			zap.String("market-slug", opp.MarketSlug),
			zap.Error(err))
		FillVerificationTotal.WithLabelValues("error").Inc()
		return
	}

	// Calculate actual profit from fill data
	actualProfit, allFilled := calculateActualProfit(fillStatuses, e.takerFee)

	// Update metrics and logs based on fill status
	if allFilled {
		FillVerificationTotal.WithLabelValues("success").Inc()

		// Update profit metrics ONLY after 100% fill confirmation
		ProfitRealizedUSD.WithLabelValues("live").Add(actualProfit)

		e.mu.Lock()
		e.cumulativeProfit += actualProfit
		cumulativeActualProfit := e.cumulativeProfit
		e.mu.Unlock()

		e.logger.Info("all-orders-fully-filled",
			zap.String("opportunity-id", opp.ID),
			zap.String("market-slug", opp.MarketSlug),
			zap.Float64("expected-profit-usd", expectedProfit),
			zap.Float64("actual-profit-usd", actualProfit),
			zap.Float64("profit-deviation-usd", actualProfit-expectedProfit),
			zap.Float64("cumulative-actual-profit-usd", cumulativeActualProfit),
			zap.Duration("fill-duration", fillDuration))

		// Update trade count metrics for each filled outcome
		for _, fill := range fillStatuses {
			if fill.FullyFilled {
				TradesTotal.WithLabelValues("live", fill.Outcome).Inc()
			}
		}
	} else {
		FillVerificationTotal.WithLabelValues("partial").Inc()

		e.logger.Warn("orders-not-fully-filled",
			zap.String("opportunity-id", opp.ID),
			zap.String("market-slug", opp.MarketSlug),
			zap.Duration("fill-duration", fillDuration))
	}

	// Track price deviation for each fill
	for i, fill := range fillStatuses {
		if fill.FullyFilled && i < len(adjustedPrices) {
			deviation := fill.ActualPrice - adjustedPrices[i]
			ActualFillPriceDeviation.Observe(deviation)
		}
	}
}

// Close gracefully closes the executor.
func (e *Executor) Close() error {
	e.logger.Info("closing-executor")
	e.wg.Wait()

	e.mu.Lock()
	finalProfit := e.cumulativeProfit
	e.mu.Unlock()

	e.logger.Info("executor-closed",
		zap.Float64("total-profit-usd", finalProfit),
		zap.String("mode", e.mode))

	return nil
}

// classifyError classifies an execution error by type.
func classifyError(err error) string {
	if err == nil {
		return "unknown"
	}

	errMsg := strings.ToLower(err.Error())

	// Network errors
	if strings.Contains(errMsg, "connection refused") ||
		strings.Contains(errMsg, "timeout") ||
		strings.Contains(errMsg, "dial") ||
		strings.Contains(errMsg, "eof") ||
		strings.Contains(errMsg, "network") {
		return "network"
	}

	// API/validation errors
	if strings.Contains(errMsg, "api error") ||
		strings.Contains(errMsg, "invalid") ||
		strings.Contains(errMsg, "bad request") ||
		strings.Contains(errMsg, "400") ||
		strings.Contains(errMsg, "403") ||
		strings.Contains(errMsg, "404") ||
		strings.Contains(errMsg, "500") {
		return "api"
	}

	// Validation errors (client-side)
	if strings.Contains(errMsg, "missing") ||
		strings.Contains(errMsg, "required") ||
		strings.Contains(errMsg, "not configured") {
		return "validation"
	}

	// Insufficient funds
	if strings.Contains(errMsg, "insufficient") ||
		strings.Contains(errMsg, "balance") ||
		strings.Contains(errMsg, "funds") {
		return "funds"
	}

	return "unknown"
}
