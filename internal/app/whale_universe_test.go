package app

import (
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"
)

func seededUniverse(t *testing.T, store *TradeStore, bus *EventBus) *WhaleUniverse {
	t.Helper()
	if store == nil {
		store = NewTradeStore(zap.NewNop(), TradeStoreConfig{})
	}
	return NewWhaleUniverse(zap.NewNop(), store, bus, WhaleUniverseConfig{
		Top10Size: 2,
		Top50Size: 4,
	})
}

func TestSeedFromLeaderboard(t *testing.T) {
	u := seededUniverse(t, nil, nil)

	added := u.SeedFromLeaderboard([]SeedEntry{
		{Address: "0xAAA", Name: "alpha", PnL: 1000, Volume: 50000},
		{Address: "0xBBB", PnL: 500, Volume: 20000},
		{Address: ""},
	})
	if added != 2 {
		t.Fatalf("expected 2 added, got %d", added)
	}

	w, ok := u.GetWhale("0xaaa")
	if !ok {
		t.Fatal("seeded whale should be retrievable by lowercase address")
	}
	if w.Name != "alpha" || w.PnL30d != 1000 {
		t.Errorf("unexpected seeded whale: %+v", w)
	}
}

func TestSeedPreservesLastSeen(t *testing.T) {
	u := seededUniverse(t, nil, nil)
	u.SeedFromLeaderboard([]SeedEntry{{Address: "0xaaa", PnL: 100}})
	u.UpdateLastSeen("0xAAA")

	before, _ := u.GetWhale("0xaaa")
	if before.LastSeen.IsZero() {
		t.Fatal("UpdateLastSeen should set LastSeen")
	}

	u.SeedFromLeaderboard([]SeedEntry{{Address: "0xaaa", Name: "renamed", PnL: 999}})
	after, _ := u.GetWhale("0xaaa")
	if !after.LastSeen.Equal(before.LastSeen) {
		t.Error("reseeding must not clear LastSeen")
	}
	if after.Name != "renamed" {
		t.Error("reseeding should update the display name")
	}
}

func TestRebuildWithEmptyStoreKeepsSeededWhales(t *testing.T) {
	u := seededUniverse(t, nil, nil)
	u.SeedFromLeaderboard([]SeedEntry{
		{Address: "0xaaa", PnL: 300},
		{Address: "0xbbb", PnL: 200},
		{Address: "0xccc", PnL: 100},
	})

	if err := u.Rebuild(); err != nil {
		t.Fatalf("rebuild failed: %v", err)
	}
	st := u.Stats()
	if st.Total != 3 {
		t.Fatalf("expected 3 whales after rebuild of empty store, got %d", st.Total)
	}
}

func TestRebuildAssignsTiersByPnl(t *testing.T) {
	store := NewTradeStore(zap.NewNop(), TradeStoreConfig{MinStatsTrades: 1, MinStatsVolume: 1})
	now := time.Now()

	// Six wallets with descending realized pnl.
	for rank := 0; rank < 6; rank++ {
		wallet := fmt.Sprintf("0xwallet%d", rank)
		sellPrice := 0.90 - float64(rank)*0.10
		store.Append(StoredTrade{
			ID: fmt.Sprintf("%s-buy", wallet), MarketID: "m", AssetID: "a",
			Taker: wallet, Side: SideBuy, Price: 0.10, Size: 100, SizeUsdc: 10,
			Timestamp: now.Add(-2 * time.Hour),
		})
		store.Append(StoredTrade{
			ID: fmt.Sprintf("%s-sell", wallet), MarketID: "m", AssetID: "a",
			Taker: wallet, Side: SideSell, Price: sellPrice, Size: 100, SizeUsdc: sellPrice * 100,
			Timestamp: now.Add(-time.Hour),
		})
	}

	u := seededUniverse(t, store, nil)
	if err := u.Rebuild(); err != nil {
		t.Fatalf("rebuild failed: %v", err)
	}

	st := u.Stats()
	if st.Top10 != 2 || st.Top50 != 2 || st.Tracked != 2 {
		t.Fatalf("unexpected tier counts: %+v", st)
	}

	best, _ := u.GetWhale("0xwallet0")
	if best.Tier != TierTop10 {
		t.Errorf("highest pnl wallet should be top10, got %s", best.Tier)
	}
	worst, _ := u.GetWhale("0xwallet5")
	if worst.Tier != TierTracked {
		t.Errorf("lowest pnl wallet should be tracked, got %s", worst.Tier)
	}
}

func TestRebuildPublishesEvent(t *testing.T) {
	bus := NewEventBus()
	u := seededUniverse(t, nil, bus)
	u.SeedFromLeaderboard([]SeedEntry{{Address: "0xaaa", PnL: 1}})

	var got *UniverseRebuildEvent
	bus.Subscribe(func(ev Event) {
		if e, ok := ev.(UniverseRebuildEvent); ok {
			got = &e
		}
	})

	if err := u.Rebuild(); err != nil {
		t.Fatalf("rebuild failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected a universeRebuild event")
	}
	if got.WhaleCount != 1 {
		t.Errorf("expected whale count 1, got %d", got.WhaleCount)
	}
}

func TestRebuildPreservesLastSeenAcrossRebuilds(t *testing.T) {
	u := seededUniverse(t, nil, nil)
	u.SeedFromLeaderboard([]SeedEntry{{Address: "0xaaa", PnL: 1}})
	u.UpdateLastSeen("0xaaa")
	before, _ := u.GetWhale("0xaaa")

	if err := u.Rebuild(); err != nil {
		t.Fatalf("rebuild failed: %v", err)
	}
	after, _ := u.GetWhale("0xaaa")
	if !after.LastSeen.Equal(before.LastSeen) {
		t.Error("rebuild must carry LastSeen over")
	}
}

func TestUpdateLastSeenUnknownWalletIsNoop(t *testing.T) {
	u := seededUniverse(t, nil, nil)
	u.UpdateLastSeen("0xnobody")
	if u.IsWhale("0xnobody") {
		t.Error("UpdateLastSeen must not create whales")
	}
}

func TestGetTopByPnlAndVolume(t *testing.T) {
	u := seededUniverse(t, nil, nil)
	u.SeedFromLeaderboard([]SeedEntry{
		{Address: "0xaaa", PnL: 100, Volume: 9000},
		{Address: "0xbbb", PnL: 300, Volume: 1000},
		{Address: "0xccc", PnL: 200, Volume: 5000},
	})

	byPnl := u.GetTopByPnL(2)
	if len(byPnl) != 2 || byPnl[0].Address != "0xbbb" {
		t.Errorf("unexpected pnl ranking: %+v", byPnl)
	}
	byVol := u.GetTopByVolume(2)
	if len(byVol) != 2 || byVol[0].Address != "0xaaa" {
		t.Errorf("unexpected volume ranking: %+v", byVol)
	}
}

func TestEarlyEntryScore(t *testing.T) {
	cases := []struct {
		avgBuy float64
		want   float64
	}{
		{0, 0},
		{0.10, 0.90},
		{0.95, 0.05},
		{1.5, 0},
	}
	for _, c := range cases {
		got := earlyEntryScore(c.avgBuy)
		if diff := got - c.want; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("earlyEntryScore(%f) = %f, want %f", c.avgBuy, got, c.want)
		}
	}
}

func TestCopySuitabilityZeroForUnprofitable(t *testing.T) {
	if copySuitability(-100, 1e6, 50) != 0 {
		t.Error("unprofitable wallets should score zero")
	}
	if s := copySuitability(100000, 1000000, 100); s != 1 {
		t.Errorf("maxed out wallet should score 1, got %f", s)
	}
}

func TestForceRebuildRunsImmediately(t *testing.T) {
	u := seededUniverse(t, nil, nil)
	u.SeedFromLeaderboard([]SeedEntry{{Address: "0xaaa", PnL: 1}})

	if err := u.ForceRebuild(); err != nil {
		t.Fatalf("force rebuild failed: %v", err)
	}
	st := u.Stats()
	if st.Rebuilds != 1 || st.LastRebuild.IsZero() {
		t.Errorf("force rebuild should count as a rebuild: %+v", st)
	}
}

func TestUniverseStartStopIdempotent(t *testing.T) {
	u := seededUniverse(t, nil, nil)
	ctx := t.Context()
	u.Start(ctx)
	u.Start(ctx)
	u.Stop()
	u.Stop()
}
