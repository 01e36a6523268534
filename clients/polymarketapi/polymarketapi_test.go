package polymarketapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"whalewatch/config"
)

func testConfig(dataURL, gammaURL string) *config.Config {
	cfg := config.Defaults()
	cfg.Polymarket.DataAPIURL = dataURL
	cfg.Polymarket.GammaAPIURL = gammaURL
	cfg.Monitor.RequestsPerSec = 1000 // don't throttle tests
	return cfg
}

func TestNewPolymarketApiClient(t *testing.T) {
	client := NewPolymarketApiClient(nil, testConfig("https://data.example.com", "https://gamma.example.com"))

	if client.logger == nil {
		t.Error("expected logger to be set")
	}
	if client.dataBaseURL != "https://data.example.com" {
		t.Errorf("unexpected data URL: %s", client.dataBaseURL)
	}
	if client.gammaBaseURL != "https://gamma.example.com" {
		t.Errorf("unexpected gamma URL: %s", client.gammaBaseURL)
	}
	if client.activityLimiter == nil {
		t.Error("expected activity limiter to be set")
	}
}

func TestGetUserActivity(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/activity" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("user") != "0xwhale" {
			t.Errorf("unexpected user: %s", q.Get("user"))
		}
		if q.Get("limit") != "50" {
			t.Errorf("unexpected limit: %s", q.Get("limit"))
		}

		activity := []Activity{
			{ProxyWallet: "0xwhale", Type: "TRADE", Side: "BUY", Size: 100, Price: 0.42, TransactionHash: "0xabc"},
			{ProxyWallet: "0xwhale", Type: "REDEEM", Size: 50},
		}
		json.NewEncoder(w).Encode(activity)
	}))
	defer server.Close()

	client := NewPolymarketApiClient(nil, testConfig(server.URL, server.URL))

	activity, err := client.GetUserActivity(context.Background(), "0xwhale", 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(activity) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(activity))
	}
	if !activity[0].IsTrade() {
		t.Error("expected first entry to be a trade")
	}
	if activity[1].IsTrade() {
		t.Error("expected REDEEM entry to not be a trade")
	}
}

func TestGetUserActivityEmptyWallet(t *testing.T) {
	client := NewPolymarketApiClient(nil, testConfig("https://data.example.com", ""))

	if _, err := client.GetUserActivity(context.Background(), "  ", 10); err == nil {
		t.Error("expected error for empty wallet")
	}
}

func TestGetLeaderboard(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/leaderboard" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("window") != "30d" {
			t.Errorf("unexpected window: %s", q.Get("window"))
		}
		if q.Get("limit") != "200" {
			t.Errorf("unexpected limit: %s", q.Get("limit"))
		}

		entries := []LeaderboardEntry{
			{ProxyWallet: "0xAAA", Name: "alpha", Amount: 125000, Volume: 2000000},
			{ProxyWallet: "0xBBB", Amount: 90000, Volume: 1500000},
		}
		json.NewEncoder(w).Encode(entries)
	}))
	defer server.Close()

	client := NewPolymarketApiClient(nil, testConfig(server.URL, server.URL))

	entries, err := client.GetLeaderboard(context.Background(), "30d", 200)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Amount != 125000 {
		t.Errorf("unexpected pnl: %f", entries[0].Amount)
	}
}

func TestGetLeaderboardServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewPolymarketApiClient(nil, testConfig(server.URL, server.URL))

	if _, err := client.GetLeaderboard(context.Background(), "30d", 10); err == nil {
		t.Error("expected error on 502")
	}
}

func TestGammaMarketGetTokenIDs(t *testing.T) {
	// Direct array
	m := &GammaMarket{ClobTokenIDs: json.RawMessage(`["token1","token2"]`)}
	ids := m.GetTokenIDs()
	if len(ids) != 2 || ids[0] != "token1" {
		t.Errorf("unexpected token ids: %v", ids)
	}

	// String-encoded array
	m = &GammaMarket{ClobTokenIDs: json.RawMessage(`"[\"token1\",\"token2\"]"`)}
	ids = m.GetTokenIDs()
	if len(ids) != 2 || ids[1] != "token2" {
		t.Errorf("unexpected token ids from string encoding: %v", ids)
	}

	// Empty
	m = &GammaMarket{}
	if m.GetTokenIDs() != nil {
		t.Error("expected nil for empty field")
	}
}
