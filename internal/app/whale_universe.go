package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"whalewatch/internal/metrics"
)

// Tier classifies how closely a whale is watched.
type Tier string

const (
	TierTop10   Tier = "top10"
	TierTop50   Tier = "top50"
	TierTracked Tier = "tracked"
)

// WhaleInfo is a tracked wallet's profile. Address is always lowercase.
type WhaleInfo struct {
	Address         string    `json:"address"`
	Name            string    `json:"name,omitempty"`
	Tier            Tier      `json:"tier"`
	PnL7d           float64   `json:"pnl7d"`
	PnL30d          float64   `json:"pnl30d"`
	Volume7d        float64   `json:"volume7d"`
	Volume30d       float64   `json:"volume30d"`
	TradeCount7d    int       `json:"tradeCount7d"`
	TradeCount30d   int       `json:"tradeCount30d"`
	EarlyEntryScore float64   `json:"earlyEntryScore"`
	CopySuitability float64   `json:"copySuitability"`
	LastSeen        time.Time `json:"lastSeen,omitempty"`
}

// SeedEntry is a leaderboard-derived bootstrap record.
type SeedEntry struct {
	Address string
	Name    string
	PnL     float64
	Volume  float64
}

type WhaleUniverseConfig struct {
	RebuildInterval time.Duration
	Top10Size       int
	Top50Size       int
}

func DefaultWhaleUniverseConfig() WhaleUniverseConfig {
	return WhaleUniverseConfig{
		RebuildInterval: time.Hour,
		Top10Size:       10,
		Top50Size:       50,
	}
}

// WhaleUniverse maintains the set of wallets worth watching, ranked into
// tiers by 30 day PnL. It reseeds itself from observed trade stats on a
// schedule and keeps leaderboard seed data around so seeded whales survive
// rebuilds before the store has enough of their history.
type WhaleUniverse struct {
	logger *zap.Logger
	store  *TradeStore
	bus    *EventBus
	config WhaleUniverseConfig

	mu          sync.RWMutex
	whales      map[string]*WhaleInfo
	seeds       map[string]SeedEntry
	lastRebuild time.Time
	rebuilds    int

	runMu   sync.Mutex
	running bool
	stopCh  chan struct{}
}

func NewWhaleUniverse(logger *zap.Logger, store *TradeStore, bus *EventBus, config WhaleUniverseConfig) *WhaleUniverse {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultWhaleUniverseConfig()
	if config.RebuildInterval <= 0 {
		config.RebuildInterval = def.RebuildInterval
	}
	if config.Top10Size <= 0 {
		config.Top10Size = def.Top10Size
	}
	if config.Top50Size <= 0 {
		config.Top50Size = def.Top50Size
	}

	return &WhaleUniverse{
		logger: logger.Named("whale-universe"),
		store:  store,
		bus:    bus,
		config: config,
		whales: make(map[string]*WhaleInfo),
		seeds:  make(map[string]SeedEntry),
	}
}

// SeedFromLeaderboard merges leaderboard entries into the universe. Existing
// whales keep their LastSeen and observed stats; seed PnL and volume only fill
// in where the trade store has nothing yet.
func (u *WhaleUniverse) SeedFromLeaderboard(entries []SeedEntry) int {
	u.mu.Lock()
	defer u.mu.Unlock()

	added := 0
	for _, e := range entries {
		addr := normalizeAddress(e.Address)
		if addr == "" {
			continue
		}
		e.Address = addr
		u.seeds[addr] = e

		if w, ok := u.whales[addr]; ok {
			if e.Name != "" {
				w.Name = e.Name
			}
			continue
		}
		u.whales[addr] = &WhaleInfo{
			Address:   addr,
			Name:      e.Name,
			Tier:      TierTracked,
			PnL30d:    e.PnL,
			Volume30d: e.Volume,
		}
		added++
	}
	u.logger.Info("seeded whale universe",
		zap.Int("entries", len(entries)),
		zap.Int("added", added),
		zap.Int("total", len(u.whales)))
	return added
}

// Rebuild recomputes the universe from trade store stats merged with seed
// data, ranks by 30 day PnL and reassigns tiers.
func (u *WhaleUniverse) Rebuild() error {
	start := time.Now()

	stats7 := u.store.ComputeWalletStats(Window7d)
	stats30 := u.store.ComputeWalletStats(Window30d)

	u.mu.Lock()

	candidates := make(map[string]*WhaleInfo)
	for addr, st := range stats30 {
		w := &WhaleInfo{
			Address:       addr,
			Tier:          TierTracked,
			PnL30d:        st.RealizedPnl,
			Volume30d:     st.Volume,
			TradeCount30d: st.TradeCount,
		}
		if st7, ok := stats7[addr]; ok {
			w.PnL7d = st7.RealizedPnl
			w.Volume7d = st7.Volume
			w.TradeCount7d = st7.TradeCount
		}
		w.EarlyEntryScore = earlyEntryScore(st.AvgBuyPrice)
		w.CopySuitability = copySuitability(w.PnL30d, w.Volume30d, w.TradeCount30d)
		candidates[addr] = w
	}

	// Seeded whales stay in the universe even before the store has seen
	// enough of their trades to qualify on its own.
	for addr, seed := range u.seeds {
		if _, ok := candidates[addr]; ok {
			continue
		}
		candidates[addr] = &WhaleInfo{
			Address:   addr,
			Name:      seed.Name,
			Tier:      TierTracked,
			PnL30d:    seed.PnL,
			Volume30d: seed.Volume,
		}
	}

	ranked := make([]*WhaleInfo, 0, len(candidates))
	for _, w := range candidates {
		ranked = append(ranked, w)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].PnL30d != ranked[j].PnL30d {
			return ranked[i].PnL30d > ranked[j].PnL30d
		}
		return ranked[i].Address < ranked[j].Address
	})

	counts := map[Tier]int{}
	for i, w := range ranked {
		switch {
		case i < u.config.Top10Size:
			w.Tier = TierTop10
		case i < u.config.Top50Size:
			w.Tier = TierTop50
		default:
			w.Tier = TierTracked
		}
		counts[w.Tier]++

		if prev, ok := u.whales[w.Address]; ok {
			w.LastSeen = prev.LastSeen
			if w.Name == "" {
				w.Name = prev.Name
			}
		}
	}

	u.whales = candidates
	u.lastRebuild = time.Now()
	u.rebuilds++
	total := len(candidates)
	u.mu.Unlock()

	metrics.UniverseRebuilds.WithLabelValues("ok").Inc()
	metrics.UniverseRebuildDuration.Observe(time.Since(start).Seconds())
	metrics.UniverseSize.WithLabelValues(string(TierTop10)).Set(float64(counts[TierTop10]))
	metrics.UniverseSize.WithLabelValues(string(TierTop50)).Set(float64(counts[TierTop50]))
	metrics.UniverseSize.WithLabelValues(string(TierTracked)).Set(float64(counts[TierTracked]))

	u.logger.Info("whale universe rebuilt",
		zap.Int("total", total),
		zap.Int("top10", counts[TierTop10]),
		zap.Int("top50", counts[TierTop50]),
		zap.Int("tracked", counts[TierTracked]),
		zap.Duration("took", time.Since(start)))

	if u.bus != nil {
		u.bus.Publish(UniverseRebuildEvent{
			WhaleCount: total,
			Top10:      counts[TierTop10],
			Top50:      counts[TierTop50],
			Tracked:    counts[TierTracked],
			Timestamp:  time.Now(),
		})
	}
	return nil
}

// ForceRebuild triggers an immediate rebuild outside the schedule.
func (u *WhaleUniverse) ForceRebuild() error {
	return u.Rebuild()
}

// earlyEntryScore rewards wallets whose average buy fills come in cheap.
func earlyEntryScore(avgBuyPrice float64) float64 {
	if avgBuyPrice <= 0 {
		return 0
	}
	score := 1 - avgBuyPrice
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// copySuitability blends profitability, activity and size into a 0..1 score.
// Unprofitable wallets score zero.
func copySuitability(pnl30d, volume30d float64, tradeCount30d int) float64 {
	if pnl30d <= 0 {
		return 0
	}
	pnlScore := pnl30d / 100000
	if pnlScore > 1 {
		pnlScore = 1
	}
	volScore := volume30d / 1000000
	if volScore > 1 {
		volScore = 1
	}
	actScore := float64(tradeCount30d) / 100
	if actScore > 1 {
		actScore = 1
	}
	return 0.5*pnlScore + 0.3*volScore + 0.2*actScore
}

// UpdateLastSeen marks a whale as recently active. Unknown wallets are a
// no-op.
func (u *WhaleUniverse) UpdateLastSeen(address string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if w, ok := u.whales[normalizeAddress(address)]; ok {
		w.LastSeen = time.Now()
	}
}

func (u *WhaleUniverse) GetWhale(address string) (WhaleInfo, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	w, ok := u.whales[normalizeAddress(address)]
	if !ok {
		return WhaleInfo{}, false
	}
	return *w, true
}

func (u *WhaleUniverse) IsWhale(address string) bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	_, ok := u.whales[normalizeAddress(address)]
	return ok
}

// GetAllWhales returns every whale, sorted by address so callers iterating
// in batches see a stable order between rebuilds.
func (u *WhaleUniverse) GetAllWhales() []WhaleInfo {
	u.mu.RLock()
	out := make([]WhaleInfo, 0, len(u.whales))
	for _, w := range u.whales {
		out = append(out, *w)
	}
	u.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

func (u *WhaleUniverse) GetTopByPnL(n int) []WhaleInfo {
	return u.topBy(n, func(a, b WhaleInfo) bool { return a.PnL30d > b.PnL30d })
}

func (u *WhaleUniverse) GetTopByVolume(n int) []WhaleInfo {
	return u.topBy(n, func(a, b WhaleInfo) bool { return a.Volume30d > b.Volume30d })
}

func (u *WhaleUniverse) topBy(n int, less func(a, b WhaleInfo) bool) []WhaleInfo {
	u.mu.RLock()
	out := make([]WhaleInfo, 0, len(u.whales))
	for _, w := range u.whales {
		out = append(out, *w)
	}
	u.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

type UniverseStats struct {
	Total       int       `json:"total"`
	Top10       int       `json:"top10"`
	Top50       int       `json:"top50"`
	Tracked     int       `json:"tracked"`
	Rebuilds    int       `json:"rebuilds"`
	LastRebuild time.Time `json:"lastRebuild,omitempty"`
}

func (u *WhaleUniverse) Stats() UniverseStats {
	u.mu.RLock()
	defer u.mu.RUnlock()

	st := UniverseStats{
		Total:       len(u.whales),
		Rebuilds:    u.rebuilds,
		LastRebuild: u.lastRebuild,
	}
	for _, w := range u.whales {
		switch w.Tier {
		case TierTop10:
			st.Top10++
		case TierTop50:
			st.Top50++
		default:
			st.Tracked++
		}
	}
	return st
}

// Start launches the periodic rebuild loop. Calling Start on a running
// universe is a no-op.
func (u *WhaleUniverse) Start(ctx context.Context) {
	u.runMu.Lock()
	defer u.runMu.Unlock()
	if u.running {
		return
	}
	u.running = true
	u.stopCh = make(chan struct{})

	go u.runRebuildLoop(ctx, u.stopCh)
	u.logger.Info("whale universe scheduler started",
		zap.Duration("interval", u.config.RebuildInterval))
}

func (u *WhaleUniverse) runRebuildLoop(ctx context.Context, stopCh chan struct{}) {
	ticker := time.NewTicker(u.config.RebuildInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			if err := u.Rebuild(); err != nil {
				metrics.UniverseRebuilds.WithLabelValues("error").Inc()
				u.logger.Error("scheduled rebuild failed", zap.Error(err))
				if u.bus != nil {
					u.bus.Publish(ErrorEvent{Component: "whale-universe", Err: err, Timestamp: time.Now()})
				}
			}
		}
	}
}

// Stop halts the rebuild loop. Safe to call more than once.
func (u *WhaleUniverse) Stop() {
	u.runMu.Lock()
	defer u.runMu.Unlock()
	if !u.running {
		return
	}
	u.running = false
	close(u.stopCh)
}
