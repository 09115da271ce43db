package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/polyarb/polyarb/pkg/cache"
	"github.com/polyarb/polyarb/pkg/types"
)

const (
	tickSizeTTL  = 1 * time.Hour
	negRiskTTL   = 1 * time.Hour
	tickSizeKey  = "ticksize:"
	negRiskKey   = "negrisk:"
)

// AttachMetadataCache wires a shared TTL cache for per-token tickSize and
// isNegRisk lookups, populated lazily from exchange market metadata and read
// by TickSizeFor and IsNegRiskFor. PlaceOrders and PlaceOrdersBatch take the
// tick size from their callers and do not consult this cache.
func (c *OrderClient) AttachMetadataCache(metaCache cache.Cache) {
	c.metaCache = metaCache
}

// TickSizeFor returns the cached tick size for a token, fetching and caching
// it from the exchange if absent. Defaults to "0.01" on a miss+fetch error.
func (c *OrderClient) TickSizeFor(ctx context.Context, tokenID string) (float64, error) {
	if c.metaCache == nil {
		return 0.01, nil
	}
	if v, ok := c.metaCache.Get(tickSizeKey + tokenID); ok {
		return v.(float64), nil
	}

	tickSize, err := c.fetchTickSize(ctx, tokenID)
	if err != nil {
		return 0.01, err
	}
	c.metaCache.Set(tickSizeKey+tokenID, tickSize, tickSizeTTL)
	return tickSize, nil
}

// IsNegRiskFor returns the cached neg-risk flag for a token.
func (c *OrderClient) IsNegRiskFor(ctx context.Context, tokenID string) (bool, error) {
	if c.metaCache == nil {
		return false, nil
	}
	if v, ok := c.metaCache.Get(negRiskKey + tokenID); ok {
		return v.(bool), nil
	}

	isNegRisk, err := c.fetchIsNegRisk(ctx, tokenID)
	if err != nil {
		return false, err
	}
	c.metaCache.Set(negRiskKey+tokenID, isNegRisk, negRiskTTL)
	return isNegRisk, nil
}

func (c *OrderClient) fetchTickSize(ctx context.Context, tokenID string) (float64, error) {
	path := fmt.Sprintf("/tick-size?token_id=%s", tokenID)
	body, status, err := c.l2Request(ctx, http.MethodGet, path, "")
	if err != nil {
		return 0.01, err
	}
	if status != http.StatusOK {
		return 0.01, &types.ApiError{Status: status, Body: string(body)}
	}

	var resp struct {
		MinimumTickSize string `json:"minimum_tick_size"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0.01, fmt.Errorf("parse tick size: %w", err)
	}

	var parsed float64
	if _, err := fmt.Sscanf(resp.MinimumTickSize, "%f", &parsed); err != nil || parsed <= 0 {
		return 0.01, nil
	}
	return parsed, nil
}

func (c *OrderClient) fetchIsNegRisk(ctx context.Context, tokenID string) (bool, error) {
	path := fmt.Sprintf("/neg-risk?token_id=%s", tokenID)
	body, status, err := c.l2Request(ctx, http.MethodGet, path, "")
	if err != nil {
		return false, err
	}
	if status != http.StatusOK {
		return false, &types.ApiError{Status: status, Body: string(body)}
	}

	var resp struct {
		NegRisk bool `json:"neg_risk"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, fmt.Errorf("parse neg-risk: %w", err)
	}
	return resp.NegRisk, nil
}

// GetOrder queries the status of a previously submitted order. FillTracker
// polls this with exponential backoff until the order is fully filled or
// the verification timeout elapses.
func (c *OrderClient) GetOrder(ctx context.Context, orderID string) (*types.OrderQueryResponse, error) {
	path := "/data/order/" + orderID
	body, status, err := c.l2Request(ctx, http.MethodGet, path, "")
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if status != http.StatusOK {
		return nil, &types.ApiError{Status: status, Body: string(body)}
	}

	var resp types.OrderQueryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse order response: %w", err)
	}
	return &resp, nil
}

// CancelOrder cancels a single open order by id.
func (c *OrderClient) CancelOrder(ctx context.Context, orderID string) error {
	reqBody, err := json.Marshal(map[string]string{"orderID": orderID})
	if err != nil {
		return fmt.Errorf("marshal cancel request: %w", err)
	}

	body, status, err := c.l2Request(ctx, http.MethodDelete, "/order", string(reqBody))
	if err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	if status != http.StatusOK {
		return &types.ApiError{Status: status, Body: string(body)}
	}

	c.logger.Info("order-cancelled", zap.String("order-id", orderID))
	return nil
}

// CancelAllOrders cancels every open order for the authenticated account.
func (c *OrderClient) CancelAllOrders(ctx context.Context) error {
	body, status, err := c.l2Request(ctx, http.MethodDelete, "/cancel-all", "")
	if err != nil {
		return fmt.Errorf("cancel all orders: %w", err)
	}
	if status != http.StatusOK {
		return &types.ApiError{Status: status, Body: string(body)}
	}

	c.logger.Info("all-orders-cancelled")
	return nil
}

// GetOpenOrders returns all open orders, optionally filtered by market.
func (c *OrderClient) GetOpenOrders(ctx context.Context, marketID string) ([]types.OrderQueryResponse, error) {
	path := "/data/orders"
	if marketID != "" {
		path += "?market=" + marketID
	}

	body, status, err := c.l2Request(ctx, http.MethodGet, path, "")
	if err != nil {
		return nil, fmt.Errorf("get open orders: %w", err)
	}
	if status != http.StatusOK {
		return nil, &types.ApiError{Status: status, Body: string(body)}
	}

	var resp []types.OrderQueryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse open orders: %w", err)
	}
	return resp, nil
}

// GetTrades returns settled trades, optionally filtered by market.
func (c *OrderClient) GetTrades(ctx context.Context, marketID string) ([]types.Trade, error) {
	path := "/data/trades"
	if marketID != "" {
		path += "?market=" + marketID
	}

	body, status, err := c.l2Request(ctx, http.MethodGet, path, "")
	if err != nil {
		return nil, fmt.Errorf("get trades: %w", err)
	}
	if status != http.StatusOK {
		return nil, &types.ApiError{Status: status, Body: string(body)}
	}

	var raw []struct {
		AssetID   string  `json:"asset_id"`
		Outcome   string  `json:"outcome"`
		Side      string  `json:"side"`
		Price     float64 `json:"price,string"`
		Size      float64 `json:"size,string"`
		Timestamp int64   `json:"match_time,string"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse trades: %w", err)
	}

	trades := make([]types.Trade, 0, len(raw))
	for _, r := range raw {
		trades = append(trades, types.Trade{
			TokenID:   r.AssetID,
			Outcome:   r.Outcome,
			Side:      r.Side,
			Price:     r.Price,
			Size:      r.Size,
			Timestamp: time.Unix(r.Timestamp, 0),
		})
	}
	return trades, nil
}

// GetBalanceAllowance reports the exchange's view of available collateral or
// token balance for a given kind ("COLLATERAL" or "CONDITIONAL") and,
// for conditional tokens, a specific tokenID.
func (c *OrderClient) GetBalanceAllowance(ctx context.Context, kind, tokenID string) (float64, error) {
	path := "/balance-allowance?asset_type=" + kind
	if tokenID != "" {
		path += "&token_id=" + tokenID
	}

	body, status, err := c.l2Request(ctx, http.MethodGet, path, "")
	if err != nil {
		return 0, fmt.Errorf("get balance allowance: %w", err)
	}
	if status != http.StatusOK {
		return 0, &types.ApiError{Status: status, Body: string(body)}
	}

	var resp struct {
		Balance string `json:"balance"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("parse balance allowance: %w", err)
	}

	var parsed float64
	fmt.Sscanf(resp.Balance, "%f", &parsed)
	return parsed, nil
}
