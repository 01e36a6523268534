package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"whalewatch/clients/notifier"
	"whalewatch/clients/polymarketapi"
	"whalewatch/clients/polymarketevents"
	"whalewatch/config"
	"whalewatch/internal/metrics"
)

// Trade provenance labels for metrics.
const (
	provenanceStream   = "stream"
	provenanceActivity = "activity"
)

// Outcome recorded for anonymous stream trades, which carry no outcome label.
const unknownOutcome = "UNKNOWN"

// DataAPI is the REST surface the tracker depends on.
type DataAPI interface {
	ActivityFetcher
	GetLeaderboard(ctx context.Context, window string, limit int) ([]polymarketapi.LeaderboardEntry, error)
}

// CachedWhaleTrade is a whale trade held in the recent trade cache, with the
// market price snapshotted at cache time.
type CachedWhaleTrade struct {
	Trade        StoredTrade `json:"trade"`
	Whale        WhaleInfo   `json:"whale"`
	PriceAtTrade float64     `json:"priceAtTrade"`
	CachedAt     time.Time   `json:"cachedAt"`
}

// Tracker wires the trade store, whale universe, position ledger and activity
// monitor together and feeds them from both trade provenances: the anonymous
// websocket stream and the wallet attributed activity poll.
type Tracker struct {
	logger   *zap.Logger
	cfg      *config.Config
	api      DataAPI
	events   *polymarketevents.PolymarketEventsClient
	notifier notifier.Notifier

	store    *TradeStore
	universe *WhaleUniverse
	ledger   *PositionLedger
	monitor  *ActivityMonitor
	bus      *EventBus

	priceMu sync.RWMutex
	prices  map[string]float64

	cacheMu sync.Mutex
	cache   []CachedWhaleTrade

	runMu   sync.Mutex
	running bool
	stopCh  chan struct{}
}

func NewTracker(
	logger *zap.Logger,
	cfg *config.Config,
	api DataAPI,
	events *polymarketevents.PolymarketEventsClient,
	notif notifier.Notifier,
) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("tracker")

	bus := NewEventBus()
	store := NewTradeStore(logger, TradeStoreConfig{
		MaxTrades:      cfg.Store.MaxTrades,
		Retention:      cfg.Store.Retention,
		MinStatsTrades: cfg.Universe.MinTrades,
		MinStatsVolume: cfg.Universe.MinVolume,
	})
	universe := NewWhaleUniverse(logger, store, bus, WhaleUniverseConfig{
		RebuildInterval: cfg.Universe.RebuildInterval,
		Top10Size:       cfg.Universe.Top10Size,
		Top50Size:       cfg.Universe.Top50Size,
	})
	ledger := NewPositionLedger(logger, PositionLedgerConfig{
		ClosedRetention: cfg.Ledger.ClosedRetention,
	})
	monitor := NewActivityMonitor(logger, api, universe, ActivityMonitorConfig{
		PollInterval:  cfg.Monitor.PollInterval,
		BatchSize:     cfg.Monitor.BatchSize,
		Lookback:      cfg.Monitor.Lookback,
		MaxSeenHashes: cfg.Monitor.MaxSeenHashes,
		TrimSeenTo:    cfg.Monitor.TrimSeenTo,
	})

	t := &Tracker{
		logger:   logger,
		cfg:      cfg,
		api:      api,
		events:   events,
		notifier: notif,
		store:    store,
		universe: universe,
		ledger:   ledger,
		monitor:  monitor,
		bus:      bus,
		prices:   make(map[string]float64),
	}
	monitor.SetTradeHandler(t.HandleWhaleActivity)
	return t
}

func (t *Tracker) Store() *TradeStore        { return t.store }
func (t *Tracker) Universe() *WhaleUniverse  { return t.universe }
func (t *Tracker) Ledger() *PositionLedger   { return t.ledger }
func (t *Tracker) Monitor() *ActivityMonitor { return t.monitor }
func (t *Tracker) Bus() *EventBus            { return t.bus }

// Start seeds the whale universe, runs the first rebuild and launches the
// background loops. A second Start on a running tracker is a no-op.
func (t *Tracker) Start(ctx context.Context) error {
	t.runMu.Lock()
	defer t.runMu.Unlock()
	if t.running {
		return nil
	}

	seeds := t.loadSeeds(ctx)
	t.universe.SeedFromLeaderboard(seeds)

	if err := t.universe.ForceRebuild(); err != nil {
		t.logger.Warn("initial universe rebuild failed", zap.Error(err))
		t.bus.Publish(ErrorEvent{Component: "tracker", Err: err, Timestamp: time.Now()})
	}

	t.running = true
	t.stopCh = make(chan struct{})

	t.universe.Start(ctx)
	t.monitor.Start(ctx)
	if t.events != nil {
		go t.runEventLoop(ctx, t.stopCh)
	}
	go t.runCleanupLoop(ctx, t.stopCh)

	t.logger.Info("tracker started", zap.Int("whales", t.universe.Stats().Total))
	return nil
}

// loadSeeds fetches the profit leaderboard, falling back to the builtin seed
// list when the API is unreachable or returns nothing.
func (t *Tracker) loadSeeds(ctx context.Context) []SeedEntry {
	entries, err := t.api.GetLeaderboard(ctx, "30d", t.cfg.Universe.LeaderboardSize)
	if err != nil || len(entries) == 0 {
		if err != nil {
			t.logger.Warn("leaderboard fetch failed, using fallback seeds", zap.Error(err))
		} else {
			t.logger.Warn("leaderboard returned no entries, using fallback seeds")
		}
		return fallbackWhaleSeeds
	}

	seeds := make([]SeedEntry, 0, len(entries))
	for _, e := range entries {
		seeds = append(seeds, SeedEntry{
			Address: e.ProxyWallet,
			Name:    e.Name,
			PnL:     e.Amount,
			Volume:  e.Volume,
		})
	}
	return seeds
}

// Stop halts background loops. Safe to call more than once.
func (t *Tracker) Stop() {
	t.runMu.Lock()
	defer t.runMu.Unlock()
	if !t.running {
		return
	}
	t.running = false
	close(t.stopCh)

	t.monitor.Stop()
	t.universe.Stop()
	t.logger.Info("tracker stopped")
}

func (t *Tracker) runEventLoop(ctx context.Context, stopCh chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case raw, ok := <-t.events.Messages():
			if !ok {
				return
			}
			t.handleStreamMessage(raw)
		}
	}
}

func (t *Tracker) handleStreamMessage(raw json.RawMessage) {
	ev := polymarketevents.ParseEvent(raw)
	if ev == nil {
		return
	}
	t.handleStreamEvent(ev)
}

func (t *Tracker) handleStreamEvent(ev polymarketevents.Event) {
	switch e := ev.(type) {
	case *polymarketevents.TradeEvent:
		t.handleStreamTrade(e)
	case *polymarketevents.PriceEvent:
		if mid := e.Mid(); mid > 0 {
			t.setPrice(e.AssetID, e.Market, mid)
		}
	case *polymarketevents.BookEvent:
		if mid := e.Midpoint(); mid > 0 {
			t.setPrice(e.AssetID, e.Market, mid)
		}
	}
}

// handleStreamTrade stores an anonymous stream trade and updates the price
// cache. No whale attribution is possible here, that arrives later through
// the activity poll.
func (t *Tracker) handleStreamTrade(ev *polymarketevents.TradeEvent) {
	id := ev.TradeID
	if id == "" {
		id = fmt.Sprintf("%s:%s:%s", ev.AssetID, ev.Timestamp, ev.Side)
	}

	price := ev.GetPriceFloat()
	size := ev.GetSizeFloat()
	trade := StoredTrade{
		ID:        id,
		MarketID:  ev.Market,
		AssetID:   ev.AssetID,
		Side:      ev.Side,
		Outcome:   unknownOutcome,
		Price:     price,
		Size:      size,
		SizeUsdc:  price * size,
		Timestamp: time.Unix(ev.GetTimestampUnix(), 0),
	}
	if t.store.Append(trade) {
		metrics.TradesIngested.WithLabelValues(provenanceStream).Inc()
	}
	if price > 0 {
		t.setPrice(ev.AssetID, ev.Market, price)
	}
}

// HandleWhaleActivity processes one wallet attributed trade from the activity
// poll. The polled wallet is recorded as the taker, so its recorded side is
// its own.
func (t *Tracker) HandleWhaleActivity(act polymarketapi.Activity) {
	wallet := normalizeAddress(act.ProxyWallet)
	if wallet == "" || !act.IsTrade() {
		return
	}

	trade := StoredTrade{
		ID:        fmt.Sprintf("%s:%s:%s", act.TransactionHash, act.Asset, act.Side),
		MarketID:  act.ConditionID,
		AssetID:   act.Asset,
		Taker:     wallet,
		Side:      act.Side,
		Outcome:   act.Outcome,
		Price:     act.Price,
		Size:      act.Size,
		SizeUsdc:  act.UsdcSize,
		Timestamp: time.Unix(act.Timestamp, 0),
	}
	if !t.store.Append(trade) {
		return
	}
	metrics.TradesIngested.WithLabelValues(provenanceActivity).Inc()

	whale, ok := t.universe.GetWhale(wallet)
	if !ok {
		return
	}
	t.emitWhaleTrade(whale, trade, act.Title, act.Slug)
}

// ProcessEnrichedTrade stores a fully attributed trade and emits a whale
// trade signal for each side held by a tracked whale. A trade between two
// whales produces two signals.
func (t *Tracker) ProcessEnrichedTrade(trade StoredTrade) int {
	trade.Maker = normalizeAddress(trade.Maker)
	trade.Taker = normalizeAddress(trade.Taker)
	if !t.store.Append(trade) {
		return 0
	}
	metrics.TradesIngested.WithLabelValues(provenanceActivity).Inc()

	emitted := 0
	for _, wallet := range walletsOf(&trade) {
		whale, ok := t.universe.GetWhale(wallet)
		if !ok {
			continue
		}
		t.emitWhaleTrade(whale, trade, "", "")
		emitted++
	}
	return emitted
}

// emitWhaleTrade runs the full signal path for one whale side: position
// ledger, trade cache, liveness, event bus and notifier.
func (t *Tracker) emitWhaleTrade(whale WhaleInfo, trade StoredTrade, title, slug string) {
	priceNow := t.PriceFor(trade.AssetID, trade.MarketID)

	t.ledger.OnTrade(trade, whale.Address)
	t.cacheWhaleTrade(CachedWhaleTrade{
		Trade:        trade,
		Whale:        whale,
		PriceAtTrade: priceNow,
		CachedAt:     time.Now(),
	})
	t.universe.UpdateLastSeen(whale.Address)

	t.bus.Publish(WhaleTradeEvent{
		Whale:     whale,
		Trade:     trade,
		PriceNow:  priceNow,
		Timestamp: time.Now(),
	})

	if t.notifier != nil {
		t.notifier.SendWhaleTradeAlert(notifier.WhaleTradeAlert{
			WhaleName:    whale.Name,
			WhaleAddress: whale.Address,
			Tier:         string(whale.Tier),
			Side:         effectiveSide(&trade, whale.Address),
			Shares:       trade.Size,
			Price:        trade.Price,
			Notional:     trade.SizeUsdc,
			MarketTitle:  title,
			MarketSlug:   slug,
			ConditionID:  trade.MarketID,
			Outcome:      trade.Outcome,
			PriceAtAlert: priceNow,
			Timestamp:    trade.Timestamp,
		})
	}
	metrics.WhaleTradesEmitted.Inc()

	t.logger.Info("whale trade",
		zap.String("whale", shortID(whale.Address)),
		zap.String("tier", string(whale.Tier)),
		zap.String("side", effectiveSide(&trade, whale.Address)),
		zap.Float64("notional", trade.SizeUsdc),
		zap.String("market", shortID(trade.MarketID)))
}

// ---- price cache ----

func (t *Tracker) setPrice(assetID, marketID string, price float64) {
	t.priceMu.Lock()
	if assetID != "" {
		t.prices[assetID] = price
	}
	if marketID != "" {
		t.prices[marketID] = price
	}
	t.priceMu.Unlock()
	metrics.PriceUpdates.Inc()
}

// PriceFor returns the last known price for the asset, falling back to the
// market level price, or 0 when neither has been seen.
func (t *Tracker) PriceFor(assetID, marketID string) float64 {
	t.priceMu.RLock()
	defer t.priceMu.RUnlock()
	if p, ok := t.prices[assetID]; ok {
		return p
	}
	return t.prices[marketID]
}

// ---- whale trade cache ----

func (t *Tracker) cacheWhaleTrade(ct CachedWhaleTrade) {
	t.cacheMu.Lock()
	defer t.cacheMu.Unlock()

	t.cache = append(t.cache, ct)
	if limit := t.cfg.Tracker.CacheCapacity; limit > 0 && len(t.cache) > limit {
		t.cache = append(t.cache[:0:0], t.cache[len(t.cache)-limit:]...)
	}
	metrics.CachedWhaleTrades.Set(float64(len(t.cache)))
}

// GetRecentWhaleTrades returns up to n cached whale trades, newest first.
func (t *Tracker) GetRecentWhaleTrades(n int) []CachedWhaleTrade {
	t.cacheMu.Lock()
	defer t.cacheMu.Unlock()

	out := make([]CachedWhaleTrade, 0, len(t.cache))
	for i := len(t.cache) - 1; i >= 0; i-- {
		out = append(out, t.cache[i])
	}
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// sweepCache drops cache entries older than the TTL.
func (t *Tracker) sweepCache() int {
	cutoff := time.Now().Add(-t.cfg.Tracker.CacheTTL)

	t.cacheMu.Lock()
	defer t.cacheMu.Unlock()

	kept := t.cache[:0]
	for _, ct := range t.cache {
		if !ct.CachedAt.Before(cutoff) {
			kept = append(kept, ct)
		}
	}
	removed := len(t.cache) - len(kept)
	t.cache = kept
	metrics.CachedWhaleTrades.Set(float64(len(t.cache)))
	return removed
}

func (t *Tracker) runCleanupLoop(ctx context.Context, stopCh chan struct{}) {
	ticker := time.NewTicker(t.cfg.Tracker.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			swept := t.sweepCache()
			evicted := t.ledger.Cleanup()
			trimmed := t.store.Cleanup()
			if swept > 0 || evicted > 0 || trimmed > 0 {
				t.logger.Debug("cleanup pass",
					zap.Int("cacheSwept", swept),
					zap.Int("positionsEvicted", evicted),
					zap.Int("tradesTrimmed", trimmed))
			}
		}
	}
}

// TrackerStats is the aggregate snapshot served by the stats endpoint.
type TrackerStats struct {
	Store       TradeStoreStats `json:"store"`
	Universe    UniverseStats   `json:"universe"`
	Ledger      LedgerStats     `json:"ledger"`
	Monitor     MonitorStats    `json:"monitor"`
	CachedTrade int             `json:"cachedWhaleTrades"`
	Prices      int             `json:"knownPrices"`
}

func (t *Tracker) Stats() TrackerStats {
	t.cacheMu.Lock()
	cached := len(t.cache)
	t.cacheMu.Unlock()

	t.priceMu.RLock()
	prices := len(t.prices)
	t.priceMu.RUnlock()

	return TrackerStats{
		Store:       t.store.Stats(),
		Universe:    t.universe.Stats(),
		Ledger:      t.ledger.Stats(),
		Monitor:     t.monitor.Stats(),
		CachedTrade: cached,
		Prices:      prices,
	}
}
