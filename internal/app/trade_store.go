package app

import (
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"whalewatch/internal/metrics"
)

// StoredTrade is the canonical in-memory trade record. Side is always from
// the taker's perspective. Maker and Taker may be empty for anonymous stream
// trades.
type StoredTrade struct {
	ID        string
	MarketID  string
	AssetID   string
	Maker     string
	Taker     string
	Side      string
	Outcome   string
	Price     float64
	Size      float64
	SizeUsdc  float64
	Timestamp time.Time
}

const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// StatsWindow selects the lookback for wallet statistics.
type StatsWindow string

const (
	Window7d  StatsWindow = "7d"
	Window30d StatsWindow = "30d"
)

func (w StatsWindow) Duration() time.Duration {
	if w == Window7d {
		return 7 * 24 * time.Hour
	}
	return 30 * 24 * time.Hour
}

// WalletStats is derived per-wallet trading activity over a window. A trade
// where the wallet is both maker and taker counts once; a trade where two
// different tracked wallets face each other counts toward both.
type WalletStats struct {
	Wallet       string
	TradeCount   int
	Volume       float64
	RealizedPnl  float64
	BuyShares    float64
	SellShares   float64
	AvgBuyPrice  float64
	AvgSellPrice float64
}

// TradeQuery filters ListTrades. Zero values mean "no constraint".
type TradeQuery struct {
	Wallet   string
	MarketID string
	Since    time.Time
	Until    time.Time
	Limit    int
}

type TradeStoreConfig struct {
	MaxTrades      int
	Retention      time.Duration
	MinStatsTrades int
	MinStatsVolume float64
}

func DefaultTradeStoreConfig() TradeStoreConfig {
	return TradeStoreConfig{
		MaxTrades:      100000,
		Retention:      30 * 24 * time.Hour,
		MinStatsTrades: 10,
		MinStatsVolume: 10000,
	}
}

// TradeStore is a bounded in-memory trade log with wallet and market indexes.
type TradeStore struct {
	logger *zap.Logger
	config TradeStoreConfig

	mu       sync.RWMutex
	trades   map[string]*StoredTrade
	byWallet map[string][]*StoredTrade
	byMarket map[string][]*StoredTrade
	cleanups int
}

func NewTradeStore(logger *zap.Logger, config TradeStoreConfig) *TradeStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultTradeStoreConfig()
	if config.MaxTrades <= 0 {
		config.MaxTrades = def.MaxTrades
	}
	if config.Retention <= 0 {
		config.Retention = def.Retention
	}
	if config.MinStatsTrades <= 0 {
		config.MinStatsTrades = def.MinStatsTrades
	}
	if config.MinStatsVolume <= 0 {
		config.MinStatsVolume = def.MinStatsVolume
	}

	return &TradeStore{
		logger:   logger.Named("trade-store"),
		config:   config,
		trades:   make(map[string]*StoredTrade),
		byWallet: make(map[string][]*StoredTrade),
		byMarket: make(map[string][]*StoredTrade),
	}
}

// Append stores a trade, returning false if a trade with the same ID was
// already stored. Crossing the size cap triggers a cleanup.
func (s *TradeStore) Append(trade StoredTrade) bool {
	if trade.ID == "" {
		return false
	}
	trade.Maker = normalizeAddress(trade.Maker)
	trade.Taker = normalizeAddress(trade.Taker)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.trades[trade.ID]; exists {
		metrics.TradesDeduplicated.Inc()
		return false
	}

	t := &trade
	s.trades[trade.ID] = t
	s.indexLocked(t)

	if len(s.trades) > s.config.MaxTrades {
		s.cleanupLocked(time.Now())
	}
	metrics.StoreSize.Set(float64(len(s.trades)))
	return true
}

func (s *TradeStore) indexLocked(t *StoredTrade) {
	for _, w := range walletsOf(t) {
		s.byWallet[w] = append(s.byWallet[w], t)
	}
	if t.MarketID != "" {
		s.byMarket[t.MarketID] = append(s.byMarket[t.MarketID], t)
	}
}

// walletsOf returns the distinct non-empty wallets on a trade.
func walletsOf(t *StoredTrade) []string {
	var out []string
	if t.Maker != "" {
		out = append(out, t.Maker)
	}
	if t.Taker != "" && t.Taker != t.Maker {
		out = append(out, t.Taker)
	}
	return out
}

// ListTrades returns trades matching the query, newest first.
func (s *TradeStore) ListTrades(q TradeQuery) []StoredTrade {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates []*StoredTrade
	switch {
	case q.Wallet != "":
		candidates = s.byWallet[normalizeAddress(q.Wallet)]
	case q.MarketID != "":
		candidates = s.byMarket[q.MarketID]
	default:
		candidates = make([]*StoredTrade, 0, len(s.trades))
		for _, t := range s.trades {
			candidates = append(candidates, t)
		}
	}

	out := make([]StoredTrade, 0, len(candidates))
	for _, t := range candidates {
		if q.MarketID != "" && t.MarketID != q.MarketID {
			continue
		}
		if !q.Since.IsZero() && t.Timestamp.Before(q.Since) {
			continue
		}
		if !q.Until.IsZero() && t.Timestamp.After(q.Until) {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

// ComputeWalletStats aggregates per-wallet activity over the window. Wallets
// below the trade count or volume thresholds are omitted. Realized PnL is an
// estimate computed per (market, outcome): the lesser of that book's
// cumulative buy and sell shares, matched at each side's average execution
// price, summed across books. Buys and sells in unrelated books never offset
// each other.
func (s *TradeStore) ComputeWalletStats(window StatsWindow) map[string]WalletStats {
	cutoff := time.Now().Add(-window.Duration())

	type bookAcc struct {
		buySh    float64
		buyCost  float64
		sellSh   float64
		sellCost float64
	}
	type acc struct {
		count  int
		volume float64
		books  map[string]*bookAcc
	}

	s.mu.RLock()
	accs := make(map[string]*acc)
	for _, t := range s.trades {
		if t.Timestamp.Before(cutoff) {
			continue
		}
		for _, w := range walletsOf(t) {
			a := accs[w]
			if a == nil {
				a = &acc{books: make(map[string]*bookAcc)}
				accs[w] = a
			}
			a.count++
			a.volume += t.SizeUsdc

			bookKey := t.MarketID + "|" + t.Outcome
			b := a.books[bookKey]
			if b == nil {
				b = &bookAcc{}
				a.books[bookKey] = b
			}
			if effectiveSide(t, w) == SideBuy {
				b.buySh += t.Size
				b.buyCost += t.Size * t.Price
			} else {
				b.sellSh += t.Size
				b.sellCost += t.Size * t.Price
			}
		}
	}
	s.mu.RUnlock()

	out := make(map[string]WalletStats)
	for w, a := range accs {
		if a.count < s.config.MinStatsTrades || a.volume < s.config.MinStatsVolume {
			continue
		}
		st := WalletStats{
			Wallet:     w,
			TradeCount: a.count,
			Volume:     a.volume,
		}
		var buyCost, sellCost float64
		for _, b := range a.books {
			st.BuyShares += b.buySh
			st.SellShares += b.sellSh
			buyCost += b.buyCost
			sellCost += b.sellCost

			matched := b.buySh
			if b.sellSh < matched {
				matched = b.sellSh
			}
			if matched > 0 {
				st.RealizedPnl += matched * (b.sellCost/b.sellSh - b.buyCost/b.buySh)
			}
		}
		if st.BuyShares > 0 {
			st.AvgBuyPrice = buyCost / st.BuyShares
		}
		if st.SellShares > 0 {
			st.AvgSellPrice = sellCost / st.SellShares
		}
		out[w] = st
	}
	return out
}

// effectiveSide is the trade side from the given wallet's perspective. Side
// is recorded taker-side, so a maker fill inverts it.
func effectiveSide(t *StoredTrade, wallet string) string {
	side := strings.ToUpper(t.Side)
	if wallet == t.Maker && wallet != t.Taker {
		if side == SideBuy {
			return SideSell
		}
		return SideBuy
	}
	if side == SideSell {
		return SideSell
	}
	return SideBuy
}

// Cleanup drops trades past retention and, if still over the cap, the oldest
// excess. Returns the number removed.
func (s *TradeStore) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleanupLocked(time.Now())
}

func (s *TradeStore) cleanupLocked(now time.Time) int {
	cutoff := now.Add(-s.config.Retention)
	survivors := make([]*StoredTrade, 0, len(s.trades))
	for _, t := range s.trades {
		if !t.Timestamp.Before(cutoff) {
			survivors = append(survivors, t)
		}
	}
	if len(survivors) > s.config.MaxTrades {
		sort.Slice(survivors, func(i, j int) bool {
			return survivors[i].Timestamp.Before(survivors[j].Timestamp)
		})
		survivors = survivors[len(survivors)-s.config.MaxTrades:]
	}

	removed := len(s.trades) - len(survivors)
	if removed == 0 {
		return 0
	}

	s.trades = make(map[string]*StoredTrade, len(survivors))
	s.byWallet = make(map[string][]*StoredTrade)
	s.byMarket = make(map[string][]*StoredTrade)
	for _, t := range survivors {
		s.trades[t.ID] = t
		s.indexLocked(t)
	}
	s.cleanups++

	metrics.StoreCleanups.Inc()
	metrics.StoreSize.Set(float64(len(s.trades)))
	s.logger.Debug("trade store cleanup",
		zap.Int("removed", removed),
		zap.Int("remaining", len(s.trades)))
	return removed
}

func (s *TradeStore) TradeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.trades)
}

type TradeStoreStats struct {
	TradeCount  int       `json:"tradeCount"`
	WalletCount int       `json:"walletCount"`
	MarketCount int       `json:"marketCount"`
	Cleanups    int       `json:"cleanups"`
	Oldest      time.Time `json:"oldest,omitempty"`
	Newest      time.Time `json:"newest,omitempty"`
}

func (s *TradeStore) Stats() TradeStoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := TradeStoreStats{
		TradeCount:  len(s.trades),
		WalletCount: len(s.byWallet),
		MarketCount: len(s.byMarket),
		Cleanups:    s.cleanups,
	}
	for _, t := range s.trades {
		if st.Oldest.IsZero() || t.Timestamp.Before(st.Oldest) {
			st.Oldest = t.Timestamp
		}
		if t.Timestamp.After(st.Newest) {
			st.Newest = t.Timestamp
		}
	}
	return st
}
