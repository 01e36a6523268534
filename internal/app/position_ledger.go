package app

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"whalewatch/internal/metrics"
)

const sharesEpsilon = 1e-9

// Position tracks a wallet's exposure to one market outcome. VwapEntry is the
// volume weighted average entry price of the currently open shares.
type Position struct {
	Wallet      string    `json:"wallet"`
	MarketID    string    `json:"marketId"`
	Outcome     string    `json:"outcome"`
	NetShares   float64   `json:"netShares"`
	VwapEntry   float64   `json:"vwapEntry"`
	RealizedPnl float64   `json:"realizedPnl"`
	PeakShares  float64   `json:"peakShares"`
	UpdatedAt   time.Time `json:"updatedAt"`

	closed bool
}

func (p *Position) IsOpen() bool {
	return p.NetShares > sharesEpsilon
}

type PositionLedgerConfig struct {
	ClosedRetention time.Duration
}

func DefaultPositionLedgerConfig() PositionLedgerConfig {
	return PositionLedgerConfig{ClosedRetention: 24 * time.Hour}
}

// PositionLedger maintains per-wallet per-outcome positions built from the
// trade flow.
type PositionLedger struct {
	logger *zap.Logger
	config PositionLedgerConfig

	mu        sync.RWMutex
	positions map[string]*Position
}

func NewPositionLedger(logger *zap.Logger, config PositionLedgerConfig) *PositionLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.ClosedRetention <= 0 {
		config.ClosedRetention = DefaultPositionLedgerConfig().ClosedRetention
	}
	return &PositionLedger{
		logger:    logger.Named("position-ledger"),
		config:    config,
		positions: make(map[string]*Position),
	}
}

func positionKey(wallet, marketID, outcome string) string {
	return wallet + "|" + marketID + "|" + outcome
}

// OnTrade applies a trade to the given wallet's position. Trades that grow
// exposure fold into the VWAP entry; trades that shrink it realize PnL
// against it. Sells beyond the open position are clamped, the books only go
// long.
func (l *PositionLedger) OnTrade(trade StoredTrade, wallet string) {
	wallet = normalizeAddress(wallet)
	if wallet == "" {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := positionKey(wallet, trade.MarketID, trade.Outcome)
	pos := l.positions[key]
	if pos == nil {
		pos = &Position{Wallet: wallet, MarketID: trade.MarketID, Outcome: trade.Outcome}
		l.positions[key] = pos
	}

	if effectiveSide(&trade, wallet) == SideBuy {
		if pos.closed {
			// A reopened position starts a fresh peak.
			pos.PeakShares = 0
			pos.closed = false
		}
		newShares := pos.NetShares + trade.Size
		if newShares > sharesEpsilon {
			pos.VwapEntry = (pos.VwapEntry*pos.NetShares + trade.Price*trade.Size) / newShares
		}
		pos.NetShares = newShares
	} else {
		closing := trade.Size
		if closing > pos.NetShares {
			closing = pos.NetShares
		}
		if closing > 0 {
			pos.RealizedPnl += closing * (trade.Price - pos.VwapEntry)
			pos.NetShares -= closing
		}
		if pos.NetShares <= sharesEpsilon {
			pos.NetShares = 0
			pos.VwapEntry = 0
			pos.closed = true
		}
	}

	if pos.NetShares > pos.PeakShares {
		pos.PeakShares = pos.NetShares
	}
	pos.UpdatedAt = time.Now()

	l.logger.Debug("position updated",
		zap.String("wallet", shortID(wallet)),
		zap.String("market", shortID(trade.MarketID)),
		zap.String("outcome", trade.Outcome),
		zap.Float64("netShares", pos.NetShares),
		zap.Float64("realizedPnl", pos.RealizedPnl))

	metrics.OpenPositions.Set(float64(l.openCountLocked()))
}

func (l *PositionLedger) openCountLocked() int {
	n := 0
	for _, p := range l.positions {
		if p.IsOpen() {
			n++
		}
	}
	return n
}

func (l *PositionLedger) GetPosition(wallet, marketID, outcome string) (Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.positions[positionKey(normalizeAddress(wallet), marketID, outcome)]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// GetWalletPositions returns all of a wallet's positions, open first, then by
// most recently updated.
func (l *PositionLedger) GetWalletPositions(wallet string) []Position {
	wallet = normalizeAddress(wallet)

	l.mu.RLock()
	var out []Position
	for _, p := range l.positions {
		if p.Wallet == wallet {
			out = append(out, *p)
		}
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].IsOpen() != out[j].IsOpen() {
			return out[i].IsOpen()
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

func (l *PositionLedger) GetTotalRealizedPnL(wallet string) float64 {
	wallet = normalizeAddress(wallet)

	l.mu.RLock()
	defer l.mu.RUnlock()
	total := 0.0
	for _, p := range l.positions {
		if p.Wallet == wallet {
			total += p.RealizedPnl
		}
	}
	return total
}

// GetPositionReduction reports how much of the peak exposure has been exited,
// from 0 (still at peak) to 1 (fully closed). Unknown positions are 0.
func (l *PositionLedger) GetPositionReduction(wallet, marketID, outcome string) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	p, ok := l.positions[positionKey(normalizeAddress(wallet), marketID, outcome)]
	if !ok || p.PeakShares <= sharesEpsilon {
		return 0
	}
	r := (p.PeakShares - p.NetShares) / p.PeakShares
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}

// Cleanup evicts closed positions that have been idle past retention.
func (l *PositionLedger) Cleanup() int {
	cutoff := time.Now().Add(-l.config.ClosedRetention)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, p := range l.positions {
		if !p.IsOpen() && p.UpdatedAt.Before(cutoff) {
			delete(l.positions, key)
			removed++
		}
	}
	if removed > 0 {
		l.logger.Debug("position ledger cleanup", zap.Int("removed", removed))
	}
	return removed
}

type LedgerStats struct {
	Positions     int `json:"positions"`
	OpenPositions int `json:"openPositions"`
	Wallets       int `json:"wallets"`
}

func (l *PositionLedger) Stats() LedgerStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	wallets := make(map[string]struct{})
	st := LedgerStats{Positions: len(l.positions)}
	for _, p := range l.positions {
		wallets[p.Wallet] = struct{}{}
		if p.IsOpen() {
			st.OpenPositions++
		}
	}
	st.Wallets = len(wallets)
	return st
}
