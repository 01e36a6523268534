package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"whalewatch/clients/polymarketapi"
)

type fakeFetcher struct {
	mu       sync.Mutex
	byWallet map[string][]polymarketapi.Activity
	calls    []string
	err      error
}

func (f *fakeFetcher) GetUserActivity(ctx context.Context, wallet string, limit int) ([]polymarketapi.Activity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, wallet)
	if f.err != nil {
		return nil, f.err
	}
	return f.byWallet[wallet], nil
}

func (f *fakeFetcher) calledWallets() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func monitorFixture(t *testing.T, whaleCount int, fetcher *fakeFetcher, cfg ActivityMonitorConfig) (*ActivityMonitor, *WhaleUniverse) {
	t.Helper()
	u := NewWhaleUniverse(zap.NewNop(), NewTradeStore(zap.NewNop(), TradeStoreConfig{}), nil, WhaleUniverseConfig{})
	seeds := make([]SeedEntry, 0, whaleCount)
	for i := 0; i < whaleCount; i++ {
		seeds = append(seeds, SeedEntry{Address: fmt.Sprintf("0xwhale%02d", i)})
	}
	u.SeedFromLeaderboard(seeds)
	return NewActivityMonitor(zap.NewNop(), fetcher, u, cfg), u
}

func tradeActivity(hash string, age time.Duration) polymarketapi.Activity {
	return polymarketapi.Activity{
		ProxyWallet:     "0xwhale00",
		Timestamp:       time.Now().Add(-age).Unix(),
		ConditionID:     "0xcond",
		Type:            "TRADE",
		Size:            100,
		UsdcSize:        50,
		TransactionHash: hash,
		Price:           0.5,
		Asset:           "token1",
		Side:            "BUY",
		Outcome:         "Yes",
	}
}

func TestPollCycleRoundRobinWraps(t *testing.T) {
	fetcher := &fakeFetcher{}
	m, _ := monitorFixture(t, 15, fetcher, ActivityMonitorConfig{BatchSize: 10})

	m.pollCycle(context.Background())
	m.pollCycle(context.Background())

	calls := fetcher.calledWallets()
	if len(calls) != 20 {
		t.Fatalf("expected 20 polled wallets across 2 cycles, got %d", len(calls))
	}
	// Second cycle starts at index 10 and wraps to 0..4.
	seen := make(map[string]int)
	for _, w := range calls {
		seen[w]++
	}
	if seen["0xwhale00"] != 2 {
		t.Errorf("wallet 0 should be polled in both cycles, got %d", seen["0xwhale00"])
	}
	if seen["0xwhale14"] != 1 {
		t.Errorf("wallet 14 should be polled once, got %d", seen["0xwhale14"])
	}
}

func TestPollCycleForwardsFreshTrades(t *testing.T) {
	fetcher := &fakeFetcher{byWallet: map[string][]polymarketapi.Activity{
		"0xwhale00": {
			tradeActivity("0xh1", time.Minute),
			tradeActivity("0xh2", 10*time.Minute), // past lookback
			{Type: "REDEEM", TransactionHash: "0xh3", Timestamp: time.Now().Unix()},
		},
	}}
	m, _ := monitorFixture(t, 1, fetcher, ActivityMonitorConfig{Lookback: 5 * time.Minute})

	var mu sync.Mutex
	var got []string
	m.SetTradeHandler(func(a polymarketapi.Activity) {
		mu.Lock()
		got = append(got, a.TransactionHash)
		mu.Unlock()
	})

	m.pollCycle(context.Background())
	m.pollCycle(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != "0xh1" {
		t.Errorf("expected only the fresh trade once, got %v", got)
	}
}

func TestMarkSeenTrimsToMostRecent(t *testing.T) {
	m, _ := monitorFixture(t, 1, &fakeFetcher{}, ActivityMonitorConfig{MaxSeenHashes: 1000, TrimSeenTo: 500})

	for i := 0; i < 1001; i++ {
		if !m.markSeen(fmt.Sprintf("0xhash%04d", i)) {
			t.Fatalf("hash %d should be new", i)
		}
	}

	if m.SeenCount() != 500 {
		t.Fatalf("expected 500 retained hashes after trim, got %d", m.SeenCount())
	}
	// The most recent hashes survived the trim and are not reprocessed.
	for i := 501; i <= 1000; i++ {
		if m.markSeen(fmt.Sprintf("0xhash%04d", i)) {
			t.Fatalf("retained hash %d was reprocessed", i)
		}
	}
	// The oldest were evicted and would be treated as new again.
	if !m.markSeen("0xhash0000") {
		t.Error("evicted hash should be accepted as new")
	}
}

func TestPollWalletFailureIsCountedNotFatal(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("api down")}
	m, _ := monitorFixture(t, 1, fetcher, ActivityMonitorConfig{})

	for i := 0; i < 3; i++ {
		m.pollCycle(context.Background())
	}
	if st := m.Stats(); st.Failures != 3 {
		t.Errorf("expected 3 recorded failures, got %d", st.Failures)
	}
}

func TestPollCycleEmptyUniverseIsNoop(t *testing.T) {
	fetcher := &fakeFetcher{}
	m, _ := monitorFixture(t, 0, fetcher, ActivityMonitorConfig{})
	m.pollCycle(context.Background())
	if len(fetcher.calledWallets()) != 0 {
		t.Error("empty universe should not trigger fetches")
	}
}

func TestMonitorStartStopIdempotent(t *testing.T) {
	m, _ := monitorFixture(t, 1, &fakeFetcher{}, ActivityMonitorConfig{PollInterval: time.Hour})
	ctx := t.Context()
	m.Start(ctx)
	m.Start(ctx)
	m.Stop()
	m.Stop()
}
