package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/polyarb/polyarb/pkg/types"
)

// RewardMarket is one market's liquidity-reward configuration: the daily
// reward pool split across rate buckets, each with its own max-spread and
// min-size eligibility cutoffs.
type RewardMarket struct {
	ConditionID  string              `json:"condition_id"`
	RewardsMaxSpread float64         `json:"rewards_max_spread"`
	RewardsMinSize   float64         `json:"rewards_min_size"`
	RateBuckets      []RewardRateBucket `json:"rates"`
}

// RewardRateBucket is one asset/rate pair within a market's reward config.
type RewardRateBucket struct {
	AssetID   string  `json:"asset_address"`
	RewardRate float64 `json:"rewards_daily_rate"`
}

// RewardEarning is one day's accrued reward for the authenticated maker on
// a given market.
type RewardEarning struct {
	ConditionID string  `json:"condition_id"`
	Date        string  `json:"date"`
	Earnings    float64 `json:"earnings,string"`
	AssetRate   float64 `json:"asset_rate,string"`
}

// GetRewardMarkets lists every market currently carrying a liquidity reward
// configuration.
func (c *OrderClient) GetRewardMarkets(ctx context.Context) ([]RewardMarket, error) {
	body, status, err := c.l2Request(ctx, http.MethodGet, "/rewards/markets", "")
	if err != nil {
		return nil, fmt.Errorf("get reward markets: %w", err)
	}
	if status != http.StatusOK {
		return nil, &types.ApiError{Status: status, Body: string(body)}
	}

	var resp struct {
		Data []RewardMarket `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse reward markets: %w", err)
	}
	return resp.Data, nil
}

// GetRewardMarket returns the reward configuration for a single market by
// condition id, or an ApiError if the market carries no reward program.
func (c *OrderClient) GetRewardMarket(ctx context.Context, conditionID string) (*RewardMarket, error) {
	path := "/rewards/markets/" + conditionID
	body, status, err := c.l2Request(ctx, http.MethodGet, path, "")
	if err != nil {
		return nil, fmt.Errorf("get reward market: %w", err)
	}
	if status != http.StatusOK {
		return nil, &types.ApiError{Status: status, Body: string(body)}
	}

	var market RewardMarket
	if err := json.Unmarshal(body, &market); err != nil {
		return nil, fmt.Errorf("parse reward market: %w", err)
	}
	return &market, nil
}

// GetRewardEarnings returns the authenticated maker's per-day reward
// accrual, optionally filtered to a single market.
func (c *OrderClient) GetRewardEarnings(ctx context.Context, conditionID string) ([]RewardEarning, error) {
	path := "/rewards/user"
	if conditionID != "" {
		path += "?market=" + conditionID
	}

	body, status, err := c.l2Request(ctx, http.MethodGet, path, "")
	if err != nil {
		return nil, fmt.Errorf("get reward earnings: %w", err)
	}
	if status != http.StatusOK {
		return nil, &types.ApiError{Status: status, Body: string(body)}
	}

	var resp struct {
		Data []RewardEarning `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse reward earnings: %w", err)
	}
	return resp.Data, nil
}
