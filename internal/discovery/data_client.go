package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/polyarb/polyarb/internal/ratelimiter"
	"github.com/polyarb/polyarb/pkg/types"
)

const (
	dataRetryBase = 250 * time.Millisecond
	dataRetryCap  = 4 * time.Second
	dataMaxTries  = 3

	defaultActivityPageSize = 100
)

// DataClient wraps the Data API (trades/activity/positions/leaderboard),
// every call routed through the shared rate limiter under ClassData and
// retried on transient failures, per §4.2's HttpGateway.
type DataClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *ratelimiter.RateLimiter
	logger     *zap.Logger
}

// NewDataClient constructs a DataClient. limiter may be nil in tests, in
// which case calls run unthrottled.
func NewDataClient(baseURL string, limiter *ratelimiter.RateLimiter, logger *zap.Logger) *DataClient {
	return &DataClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    limiter,
		logger:     logger,
	}
}

// FetchUserTrades returns trades for a single user, newest first.
func (c *DataClient) FetchUserTrades(ctx context.Context, proxyWallet string, limit, offset int) ([]types.UserTrade, error) {
	params := url.Values{"user": {proxyWallet}, "limit": {strconv.Itoa(limit)}, "offset": {strconv.Itoa(offset)}}
	var out []types.UserTrade
	err := c.getJSON(ctx, "/trades", params, &out)
	return out, err
}

// FetchRecentTrades returns the global recent-trades feed across all users.
func (c *DataClient) FetchRecentTrades(ctx context.Context, limit int) ([]types.UserTrade, error) {
	params := url.Values{"limit": {strconv.Itoa(limit)}}
	var out []types.UserTrade
	err := c.getJSON(ctx, "/trades", params, &out)
	return out, err
}

// FetchUserActivity returns one page of a user's activity feed. Per §4.2's
// "user/proxyWallet with auto fallback" contract: walletOrProxy is tried
// first as `user`, and on a 4xx response retried once as `proxyWallet`.
func (c *DataClient) FetchUserActivity(ctx context.Context, walletOrProxy string, limit, offset int) ([]types.ActivityEvent, error) {
	params := url.Values{"user": {walletOrProxy}, "limit": {strconv.Itoa(limit)}, "offset": {strconv.Itoa(offset)}}
	var out []types.ActivityEvent
	err := c.getJSON(ctx, "/activity", params, &out)
	if err == nil {
		return out, nil
	}

	var apiErr *types.ApiError
	if se, ok := err.(*types.ApiError); ok {
		apiErr = se
	}
	if apiErr == nil || apiErr.Status < 400 || apiErr.Status >= 500 {
		return nil, err
	}

	c.logger.Debug("activity-fallback-to-proxy-wallet", zap.String("wallet", walletOrProxy))
	fallbackParams := url.Values{"proxyWallet": {walletOrProxy}, "limit": {strconv.Itoa(limit)}, "offset": {strconv.Itoa(offset)}}
	var fallbackOut []types.ActivityEvent
	if ferr := c.getJSON(ctx, "/activity", fallbackParams, &fallbackOut); ferr != nil {
		return nil, ferr
	}
	return fallbackOut, nil
}

// GetAllActivity pages through a user's full activity history until a page
// returns fewer than pageSize rows or maxRows is reached, then dedupes by
// transactionHash and sorts timestamp-descending, per §4.2's
// "getAllActivity" pagination contract.
func (c *DataClient) GetAllActivity(ctx context.Context, walletOrProxy string, maxRows int) ([]types.ActivityEvent, error) {
	pageSize := defaultActivityPageSize
	seen := make(map[string]bool)
	all := make([]types.ActivityEvent, 0, pageSize)

	for offset := 0; ; offset += pageSize {
		page, err := c.FetchUserActivity(ctx, walletOrProxy, pageSize, offset)
		if err != nil {
			return nil, err
		}

		for _, ev := range page {
			key := ev.TransactionHash
			if key == "" {
				key = fmt.Sprintf("synthetic:%d:%s:%s", ev.Timestamp.UnixMilli(), ev.ConditionID, ev.Asset)
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			all = append(all, ev)
			if maxRows > 0 && len(all) >= maxRows {
				return sortActivityDesc(all), nil
			}
		}

		if len(page) < pageSize {
			break
		}
	}

	return sortActivityDesc(all), nil
}

func sortActivityDesc(events []types.ActivityEvent) []types.ActivityEvent {
	for i := 1; i < len(events); i++ {
		for j := i; j > 0 && events[j-1].Timestamp.Before(events[j].Timestamp); j-- {
			events[j-1], events[j] = events[j], events[j-1]
		}
	}
	return events
}

// FetchPositions returns a user's open on-chain positions.
func (c *DataClient) FetchPositions(ctx context.Context, proxyWallet string) ([]types.UserPosition, error) {
	params := url.Values{"user": {proxyWallet}}
	var out []types.UserPosition
	err := c.getJSON(ctx, "/positions", params, &out)
	return out, err
}

// FetchLeaderboard returns the top-N wallets by PnL or volume.
func (c *DataClient) FetchLeaderboard(ctx context.Context, orderBy string, limit int) ([]types.LeaderboardEntry, error) {
	params := url.Values{"order": {orderBy}, "limit": {strconv.Itoa(limit)}}
	var out []types.LeaderboardEntry
	err := c.getJSON(ctx, "/leaderboard", params, &out)
	return out, err
}

// getJSON performs a rate-limited GET with up to dataMaxTries attempts on
// 429 responses, jittered backoff between base and cap.
func (c *DataClient) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	requestURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	var lastErr error
	for attempt := 0; attempt < dataMaxTries; attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, attempt); err != nil {
				return err
			}
		}

		body, status, err := c.doRequest(ctx, requestURL)
		if err != nil {
			lastErr = err
			continue
		}
		if status == http.StatusOK {
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}
			return nil
		}

		lastErr = &types.ApiError{Status: status, Body: string(body)}
		if status != http.StatusTooManyRequests {
			return lastErr
		}
	}
	return lastErr
}

func (c *DataClient) doRequest(ctx context.Context, requestURL string) ([]byte, int, error) {
	type result struct {
		body   []byte
		status int
	}

	fn := func(ctx context.Context) (result, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return result{}, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "polymarket-arb/1.0")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return result{}, fmt.Errorf("do request: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return result{}, fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return result{body: body, status: resp.StatusCode}, &types.ApiError{Status: resp.StatusCode, Body: string(body)}
		}
		return result{body: body, status: resp.StatusCode}, nil
	}

	var r result
	var err error
	if c.limiter != nil {
		r, err = ratelimiter.Execute(ctx, c.limiter, ratelimiter.ClassData, fn)
	} else {
		r, err = fn(ctx)
	}

	if apiErr, ok := err.(*types.ApiError); ok {
		return r.body, apiErr.Status, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return r.body, r.status, nil
}

func sleepBackoff(ctx context.Context, attempt int) error {
	backoff := dataRetryBase << uint(attempt-1)
	if backoff > dataRetryCap {
		backoff = dataRetryCap
	}
	jittered := time.Duration(float64(backoff) * (0.5 + rand.Float64()))
	timer := time.NewTimer(jittered)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
