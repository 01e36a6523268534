package polymarketapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"whalewatch/config"
	"whalewatch/internal/ratelimit"

	"go.uber.org/zap"
)

// PolymarketApiClient talks to the Polymarket Data API and Gamma API.
type PolymarketApiClient struct {
	logger          *zap.Logger
	httpClient      *http.Client
	gammaBaseURL    string
	dataBaseURL     string
	activityLimiter *ratelimit.Limiter
}

func NewPolymarketApiClient(logger *zap.Logger, cfg *config.Config) *PolymarketApiClient {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &PolymarketApiClient{
		logger: logger,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		gammaBaseURL:    cfg.Polymarket.GammaAPIURL,
		dataBaseURL:     cfg.Polymarket.DataAPIURL,
		activityLimiter: ratelimit.New(cfg.Monitor.RequestsPerSec),
	}
}

// ---- Data API types ----

// Activity represents user activity from the data API.
type Activity struct {
	ProxyWallet     string  `json:"proxyWallet"`
	Timestamp       int64   `json:"timestamp"` // Unix seconds
	ConditionID     string  `json:"conditionId"`
	Type            string  `json:"type"` // TRADE, SPLIT, MERGE, REDEEM, REWARD, CONVERSION
	Size            float64 `json:"size"`
	UsdcSize        float64 `json:"usdcSize"`
	TransactionHash string  `json:"transactionHash"`
	Price           float64 `json:"price"`
	Asset           string  `json:"asset"`
	Side            string  `json:"side"` // BUY or SELL
	OutcomeIndex    int     `json:"outcomeIndex"`

	// Market metadata
	Title   string `json:"title"`
	Slug    string `json:"slug"`
	Outcome string `json:"outcome"`
}

// IsTrade reports whether this activity entry is an actual trade.
func (a *Activity) IsTrade() bool {
	return a.Type == "TRADE"
}

// LeaderboardEntry is one ranked trader from the leaderboard endpoint.
type LeaderboardEntry struct {
	ProxyWallet string  `json:"proxyWallet"`
	Name        string  `json:"name"`
	Amount      float64 `json:"amount"` // PnL in USD for the ranked window
	Volume      float64 `json:"volume"`
}

// Trade represents a trade from the data API.
type Trade struct {
	ID              string  `json:"id"`
	ProxyWallet     string  `json:"proxyWallet"`
	Side            string  `json:"side"` // BUY or SELL
	Size            float64 `json:"size"`
	Price           float64 `json:"price"`
	Timestamp       int64   `json:"timestamp"`
	ConditionID     string  `json:"conditionId"`
	Asset           string  `json:"asset"`
	TransactionHash string  `json:"transactionHash"`

	// Market metadata
	Title        string `json:"title"`
	Slug         string `json:"slug"`
	Outcome      string `json:"outcome"`
	OutcomeIndex int    `json:"outcomeIndex"`
}

// GetUserActivity fetches recent activity for a wallet address. Calls are paced
// by the shared activity rate limiter so a full polling batch cannot exceed the
// configured outbound request budget.
func (c *PolymarketApiClient) GetUserActivity(
	ctx context.Context,
	wallet string,
	limit int,
) ([]Activity, error) {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		return nil, fmt.Errorf("wallet is empty")
	}

	if err := c.activityLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	u, err := url.Parse(c.dataBaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid dataBaseURL: %w", err)
	}
	u.Path = "/activity"

	q := u.Query()
	q.Set("user", wallet)
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	u.RawQuery = q.Encode()

	var activity []Activity
	if err := c.doGet(ctx, u.String(), &activity); err != nil {
		return nil, fmt.Errorf("get user activity: %w", err)
	}

	return activity, nil
}

// GetLeaderboard fetches the top traders ranked by profit over the given
// window ("7d" or "30d").
func (c *PolymarketApiClient) GetLeaderboard(
	ctx context.Context,
	window string,
	limit int,
) ([]LeaderboardEntry, error) {
	if window == "" {
		window = "30d"
	}
	if limit <= 0 {
		limit = 100
	}

	u, err := url.Parse(c.dataBaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid dataBaseURL: %w", err)
	}
	u.Path = "/leaderboard"

	q := u.Query()
	q.Set("window", window)
	q.Set("rankType", "profit")
	q.Set("limit", fmt.Sprintf("%d", limit))
	u.RawQuery = q.Encode()

	var entries []LeaderboardEntry
	if err := c.doGet(ctx, u.String(), &entries); err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}

	return entries, nil
}

// GetTrades fetches recent trades, optionally filtered to specific markets.
func (c *PolymarketApiClient) GetTrades(
	ctx context.Context,
	markets []string,
	limit int,
) ([]Trade, error) {
	u, err := url.Parse(c.dataBaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid dataBaseURL: %w", err)
	}
	u.Path = "/trades"

	q := u.Query()
	if len(markets) > 0 {
		q.Set("market", strings.Join(markets, ","))
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	u.RawQuery = q.Encode()

	var trades []Trade
	if err := c.doGet(ctx, u.String(), &trades); err != nil {
		return nil, fmt.Errorf("get trades: %w", err)
	}

	return trades, nil
}

// ---- Gamma API types ----

// GammaMarket is the subset of Gamma market metadata the tracker needs to map
// asset IDs onto markets.
type GammaMarket struct {
	ID           string          `json:"id"`
	Slug         string          `json:"slug"`
	Question     string          `json:"question"`
	ConditionID  string          `json:"conditionId"`
	ClobTokenIDs json.RawMessage `json:"clobTokenIds"`
	Outcomes     json.RawMessage `json:"outcomes"`
	Volume24hr   float64         `json:"volume24hr"`
	Active       bool            `json:"active"`
	Closed       bool            `json:"closed"`
}

// GetTokenIDs parses the ClobTokenIDs field, which the Gamma API encodes either
// as a JSON array or as a string containing a JSON array.
func (m *GammaMarket) GetTokenIDs() []string {
	if len(m.ClobTokenIDs) == 0 {
		return nil
	}

	var tokenIDs []string
	if err := json.Unmarshal(m.ClobTokenIDs, &tokenIDs); err == nil && len(tokenIDs) > 0 {
		if len(tokenIDs) == 1 && len(tokenIDs[0]) > 0 && tokenIDs[0][0] == '[' {
			var nested []string
			if err := json.Unmarshal([]byte(tokenIDs[0]), &nested); err == nil && len(nested) > 0 {
				return nested
			}
		}
		return tokenIDs
	}

	var jsonStr string
	if err := json.Unmarshal(m.ClobTokenIDs, &jsonStr); err == nil && jsonStr != "" {
		var inner []string
		if err := json.Unmarshal([]byte(jsonStr), &inner); err == nil && len(inner) > 0 {
			return inner
		}
	}

	return nil
}

// GetTopMarketsByVolume fetches the top active markets sorted by 24-hour volume.
func (c *PolymarketApiClient) GetTopMarketsByVolume(
	ctx context.Context,
	limit int,
) ([]GammaMarket, error) {
	if limit <= 0 {
		limit = 20
	}

	u, err := url.Parse(c.gammaBaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid gammaBaseURL: %w", err)
	}
	u.Path = "/markets"

	q := u.Query()
	q.Set("limit", fmt.Sprintf("%d", limit))
	q.Set("order", "volume24hr")
	q.Set("ascending", "false")
	q.Set("active", "true")
	u.RawQuery = q.Encode()

	var markets []GammaMarket
	if err := c.doGet(ctx, u.String(), &markets); err != nil {
		return nil, fmt.Errorf("get top markets: %w", err)
	}
	return markets, nil
}

// doGet performs a GET request and decodes the JSON response.
func (c *PolymarketApiClient) doGet(ctx context.Context, url string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("status=%d body=%s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}

	return nil
}
