package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"whalewatch/clients/notifier"
	"whalewatch/clients/polymarketapi"
	"whalewatch/config"
)

type fakeAPI struct {
	fakeFetcher
	leaderboard []polymarketapi.LeaderboardEntry
	lbErr       error
}

func (f *fakeAPI) GetLeaderboard(ctx context.Context, window string, limit int) ([]polymarketapi.LeaderboardEntry, error) {
	if f.lbErr != nil {
		return nil, f.lbErr
	}
	return f.leaderboard, nil
}

type captureNotifier struct {
	mu     sync.Mutex
	alerts []notifier.WhaleTradeAlert
}

func (c *captureNotifier) SendWhaleTradeAlert(alert notifier.WhaleTradeAlert) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, alert)
}

func (c *captureNotifier) Close() error { return nil }

func (c *captureNotifier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.alerts)
}

func newTestTracker(t *testing.T, api *fakeAPI) (*Tracker, *captureNotifier) {
	t.Helper()
	cfg := config.Defaults()
	cfg.Universe.MinTrades = 1
	cfg.Universe.MinVolume = 1
	notif := &captureNotifier{}
	return NewTracker(zap.NewNop(), cfg, api, nil, notif), notif
}

func whaleActivity(hash, wallet string) polymarketapi.Activity {
	return polymarketapi.Activity{
		ProxyWallet:     wallet,
		Timestamp:       time.Now().Unix(),
		ConditionID:     "0xcond",
		Type:            "TRADE",
		Size:            200,
		UsdcSize:        100,
		TransactionHash: hash,
		Price:           0.5,
		Asset:           "token1",
		Side:            "BUY",
		Outcome:         "Yes",
		Title:           "Will it happen?",
		Slug:            "will-it-happen",
	}
}

func TestStartSeedsFromLeaderboard(t *testing.T) {
	api := &fakeAPI{leaderboard: []polymarketapi.LeaderboardEntry{
		{ProxyWallet: "0xAAA", Name: "alpha", Amount: 5000, Volume: 100000},
		{ProxyWallet: "0xBBB", Amount: 3000, Volume: 50000},
	}}
	tr, _ := newTestTracker(t, api)
	defer tr.Stop()

	if err := tr.Start(t.Context()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if !tr.Universe().IsWhale("0xaaa") || !tr.Universe().IsWhale("0xbbb") {
		t.Error("leaderboard wallets should be seeded")
	}
	if tr.Universe().Stats().Rebuilds != 1 {
		t.Error("start should run the initial rebuild")
	}
}

func TestStartFallsBackToBuiltinSeeds(t *testing.T) {
	api := &fakeAPI{lbErr: errors.New("api down")}
	tr, _ := newTestTracker(t, api)
	defer tr.Stop()

	if err := tr.Start(t.Context()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if got := tr.Universe().Stats().Total; got != len(fallbackWhaleSeeds) {
		t.Errorf("expected %d fallback whales, got %d", len(fallbackWhaleSeeds), got)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	tr, _ := newTestTracker(t, &fakeAPI{})
	ctx := t.Context()
	if err := tr.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := tr.Start(ctx); err != nil {
		t.Fatalf("second start failed: %v", err)
	}
	tr.Stop()
	tr.Stop()
}

func TestHandleWhaleActivityEmitsSignal(t *testing.T) {
	tr, notif := newTestTracker(t, &fakeAPI{})
	tr.Universe().SeedFromLeaderboard([]SeedEntry{{Address: "0xwhale", Name: "moby"}})

	var events []WhaleTradeEvent
	tr.Bus().Subscribe(func(ev Event) {
		if e, ok := ev.(WhaleTradeEvent); ok {
			events = append(events, e)
		}
	})

	tr.HandleWhaleActivity(whaleActivity("0xh1", "0xWHALE"))

	if notif.count() != 1 {
		t.Fatalf("expected 1 alert, got %d", notif.count())
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 bus event, got %d", len(events))
	}
	if events[0].Whale.Address != "0xwhale" {
		t.Errorf("unexpected whale on event: %s", events[0].Whale.Address)
	}

	pos, ok := tr.Ledger().GetPosition("0xwhale", "0xcond", "Yes")
	if !ok || pos.NetShares != 200 {
		t.Errorf("ledger should reflect the trade, got %+v", pos)
	}
	if trades := tr.GetRecentWhaleTrades(10); len(trades) != 1 {
		t.Errorf("expected 1 cached whale trade, got %d", len(trades))
	}
	w, _ := tr.Universe().GetWhale("0xwhale")
	if w.LastSeen.IsZero() {
		t.Error("whale trade should update LastSeen")
	}
}

func TestHandleWhaleActivityIgnoresDuplicates(t *testing.T) {
	tr, notif := newTestTracker(t, &fakeAPI{})
	tr.Universe().SeedFromLeaderboard([]SeedEntry{{Address: "0xwhale"}})

	act := whaleActivity("0xh1", "0xwhale")
	tr.HandleWhaleActivity(act)
	tr.HandleWhaleActivity(act)

	if notif.count() != 1 {
		t.Errorf("duplicate trade should not alert twice, got %d alerts", notif.count())
	}
	if tr.Store().TradeCount() != 1 {
		t.Errorf("expected 1 stored trade, got %d", tr.Store().TradeCount())
	}
}

func TestHandleWhaleActivityNonWhaleStoresOnly(t *testing.T) {
	tr, notif := newTestTracker(t, &fakeAPI{})

	tr.HandleWhaleActivity(whaleActivity("0xh1", "0xnobody"))

	if notif.count() != 0 {
		t.Error("non-whale activity should not alert")
	}
	if tr.Store().TradeCount() != 1 {
		t.Error("non-whale activity should still be stored")
	}
}

func TestProcessEnrichedTradeEmitsPerWhaleSide(t *testing.T) {
	tr, notif := newTestTracker(t, &fakeAPI{})
	tr.Universe().SeedFromLeaderboard([]SeedEntry{
		{Address: "0xalice"},
		{Address: "0xbob"},
	})

	trade := StoredTrade{
		ID:        "t1",
		MarketID:  "0xcond",
		AssetID:   "token1",
		Maker:     "0xalice",
		Taker:     "0xbob",
		Side:      SideBuy,
		Outcome:   "Yes",
		Price:     0.5,
		Size:      100,
		SizeUsdc:  50,
		Timestamp: time.Now(),
	}
	if emitted := tr.ProcessEnrichedTrade(trade); emitted != 2 {
		t.Fatalf("expected 2 emitted signals for whale-vs-whale trade, got %d", emitted)
	}
	if notif.count() != 2 {
		t.Errorf("expected 2 alerts, got %d", notif.count())
	}

	// The taker bought and the maker sold against a flat book.
	bob, _ := tr.Ledger().GetPosition("0xbob", "0xcond", "Yes")
	if bob.NetShares != 100 {
		t.Errorf("taker position should be long 100, got %f", bob.NetShares)
	}
	alice, _ := tr.Ledger().GetPosition("0xalice", "0xcond", "Yes")
	if alice.NetShares != 0 {
		t.Errorf("maker position should be flat, got %f", alice.NetShares)
	}

	if again := tr.ProcessEnrichedTrade(trade); again != 0 {
		t.Errorf("replayed trade should emit nothing, got %d", again)
	}
}

func TestStreamTradeStoredAnonymously(t *testing.T) {
	tr, notif := newTestTracker(t, &fakeAPI{})

	raw := json.RawMessage(`{
		"event_type": "last_trade_price",
		"asset_id": "token1",
		"market": "0xcond",
		"price": "0.55",
		"size": "120",
		"side": "BUY",
		"timestamp": "1700000000",
		"id": "stream-1"
	}`)
	tr.handleStreamMessage(raw)

	if tr.Store().TradeCount() != 1 {
		t.Fatalf("expected 1 stored stream trade, got %d", tr.Store().TradeCount())
	}
	trades := tr.Store().ListTrades(TradeQuery{MarketID: "0xcond"})
	if trades[0].Outcome != unknownOutcome || trades[0].Taker != "" {
		t.Errorf("stream trade should be anonymous with unknown outcome, got %+v", trades[0])
	}
	if notif.count() != 0 {
		t.Error("anonymous stream trades must not alert")
	}
	if p := tr.PriceFor("token1", "0xcond"); p != 0.55 {
		t.Errorf("stream trade should update price cache, got %f", p)
	}
}

func TestPriceCacheFromPriceAndBookEvents(t *testing.T) {
	tr, _ := newTestTracker(t, &fakeAPI{})

	tr.handleStreamMessage(json.RawMessage(`{
		"event_type": "price_change",
		"asset_id": "token1",
		"market": "0xcond",
		"best_bid": "0.40",
		"best_ask": "0.44"
	}`))
	approx(t, tr.PriceFor("token1", ""), 0.42, "mid from price event")

	tr.handleStreamMessage(json.RawMessage(`{
		"event_type": "book",
		"asset_id": "token2",
		"market": "0xcond2",
		"bids": [{"price": "0.10", "size": "5"}, {"price": "0.30", "size": "5"}],
		"asks": [{"price": "0.90", "size": "5"}, {"price": "0.50", "size": "5"}]
	}`))
	approx(t, tr.PriceFor("token2", ""), 0.40, "mid from book event")

	// Market level fallback when the asset is unknown.
	approx(t, tr.PriceFor("tokenX", "0xcond"), 0.42, "market fallback mid")
}

func TestWhaleTradeCacheCapAndSweep(t *testing.T) {
	tr, _ := newTestTracker(t, &fakeAPI{})
	tr.cfg.Tracker.CacheCapacity = 5
	tr.cfg.Tracker.CacheTTL = time.Hour

	for i := 0; i < 8; i++ {
		tr.cacheWhaleTrade(CachedWhaleTrade{
			Trade:    StoredTrade{ID: string(rune('a' + i))},
			CachedAt: time.Now(),
		})
	}
	trades := tr.GetRecentWhaleTrades(0)
	if len(trades) != 5 {
		t.Fatalf("expected cache capped at 5, got %d", len(trades))
	}
	if trades[0].Trade.ID != "h" {
		t.Errorf("newest trade should come first, got %s", trades[0].Trade.ID)
	}

	tr.cacheWhaleTrade(CachedWhaleTrade{
		Trade:    StoredTrade{ID: "stale"},
		CachedAt: time.Now().Add(-2 * time.Hour),
	})
	if swept := tr.sweepCache(); swept != 1 {
		t.Errorf("expected 1 expired entry swept, got %d", swept)
	}
}

func TestTrackerStatsAggregates(t *testing.T) {
	tr, _ := newTestTracker(t, &fakeAPI{})
	tr.Universe().SeedFromLeaderboard([]SeedEntry{{Address: "0xwhale"}})
	tr.HandleWhaleActivity(whaleActivity("0xh1", "0xwhale"))

	st := tr.Stats()
	if st.Store.TradeCount != 1 || st.Universe.Total != 1 || st.CachedTrade != 1 {
		t.Errorf("unexpected aggregate stats: %+v", st)
	}
	if st.Ledger.OpenPositions != 1 {
		t.Errorf("expected 1 open position, got %d", st.Ledger.OpenPositions)
	}
}
