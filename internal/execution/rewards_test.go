package execution

import (
	"encoding/json"
	"testing"
)

func TestRewardMarket_ParsesExchangePayload(t *testing.T) {
	raw := []byte(`{
		"condition_id": "0xabc",
		"rewards_max_spread": 3.5,
		"rewards_min_size": 100,
		"rates": [{"asset_address": "0xtoken1", "rewards_daily_rate": 12.5}]
	}`)

	var market RewardMarket
	if err := json.Unmarshal(raw, &market); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if market.ConditionID != "0xabc" {
		t.Errorf("condition id = %q, want 0xabc", market.ConditionID)
	}
	if market.RewardsMaxSpread != 3.5 {
		t.Errorf("max spread = %v, want 3.5", market.RewardsMaxSpread)
	}
	if len(market.RateBuckets) != 1 || market.RateBuckets[0].AssetID != "0xtoken1" {
		t.Fatalf("unexpected rate buckets: %+v", market.RateBuckets)
	}
}

func TestRewardEarning_ParsesStringifiedNumbers(t *testing.T) {
	raw := []byte(`{"condition_id": "0xabc", "date": "2026-07-30", "earnings": "12.34", "asset_rate": "0.5"}`)

	var earning RewardEarning
	if err := json.Unmarshal(raw, &earning); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if earning.Earnings != 12.34 {
		t.Errorf("earnings = %v, want 12.34", earning.Earnings)
	}
	if earning.AssetRate != 0.5 {
		t.Errorf("asset rate = %v, want 0.5", earning.AssetRate)
	}
}
