package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"whalewatch/clients/polymarketapi"
	"whalewatch/internal/metrics"
)

// ActivityFetcher is the slice of the data API the monitor needs.
type ActivityFetcher interface {
	GetUserActivity(ctx context.Context, wallet string, limit int) ([]polymarketapi.Activity, error)
}

// ActivityHandler receives each newly observed whale trade.
type ActivityHandler func(polymarketapi.Activity)

type ActivityMonitorConfig struct {
	PollInterval  time.Duration
	BatchSize     int
	Lookback      time.Duration
	MaxSeenHashes int
	TrimSeenTo    int
	FetchLimit    int
}

func DefaultActivityMonitorConfig() ActivityMonitorConfig {
	return ActivityMonitorConfig{
		PollInterval:  30 * time.Second,
		BatchSize:     10,
		Lookback:      5 * time.Minute,
		MaxSeenHashes: 1000,
		TrimSeenTo:    500,
		FetchLimit:    50,
	}
}

// ActivityMonitor polls tracked whales in round robin batches and forwards
// trades it has not seen before. The REST poll backstops the websocket
// stream, which carries no wallet identity.
type ActivityMonitor struct {
	logger   *zap.Logger
	fetcher  ActivityFetcher
	universe *WhaleUniverse
	config   ActivityMonitorConfig

	handlerMu sync.RWMutex
	handler   ActivityHandler

	mu        sync.Mutex
	cursor    int
	seen      map[string]struct{}
	seenOrder []string
	cycles    int
	failures  int

	runMu   sync.Mutex
	running bool
	stopCh  chan struct{}
}

func NewActivityMonitor(logger *zap.Logger, fetcher ActivityFetcher, universe *WhaleUniverse, config ActivityMonitorConfig) *ActivityMonitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultActivityMonitorConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.Lookback <= 0 {
		config.Lookback = def.Lookback
	}
	if config.MaxSeenHashes <= 0 {
		config.MaxSeenHashes = def.MaxSeenHashes
	}
	if config.TrimSeenTo <= 0 || config.TrimSeenTo >= config.MaxSeenHashes {
		config.TrimSeenTo = config.MaxSeenHashes / 2
	}
	if config.FetchLimit <= 0 {
		config.FetchLimit = def.FetchLimit
	}

	return &ActivityMonitor{
		logger:   logger.Named("activity-monitor"),
		fetcher:  fetcher,
		universe: universe,
		config:   config,
		seen:     make(map[string]struct{}),
	}
}

// SetTradeHandler installs the callback invoked for each fresh trade. Must be
// set before Start.
func (m *ActivityMonitor) SetTradeHandler(h ActivityHandler) {
	m.handlerMu.Lock()
	defer m.handlerMu.Unlock()
	m.handler = h
}

// Start launches the polling loop. A second Start on a running monitor is a
// no-op.
func (m *ActivityMonitor) Start(ctx context.Context) {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})

	go m.runPollLoop(ctx, m.stopCh)
	m.logger.Info("activity monitor started",
		zap.Duration("interval", m.config.PollInterval),
		zap.Int("batchSize", m.config.BatchSize))
}

// Stop halts polling. Safe to call more than once.
func (m *ActivityMonitor) Stop() {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if !m.running {
		return
	}
	m.running = false
	close(m.stopCh)
}

func (m *ActivityMonitor) runPollLoop(ctx context.Context, stopCh chan struct{}) {
	ticker := time.NewTicker(m.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			m.pollCycle(ctx)
		}
	}
}

// pollCycle fetches one batch of whales in parallel and waits for all of them
// to settle before returning.
func (m *ActivityMonitor) pollCycle(ctx context.Context) {
	whales := m.universe.GetAllWhales()
	if len(whales) == 0 {
		return
	}

	batch := m.nextBatch(len(whales))
	metrics.PollCycles.Inc()

	var wg sync.WaitGroup
	for _, idx := range batch {
		wallet := whales[idx].Address
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.pollWallet(ctx, wallet)
		}()
	}
	wg.Wait()

	m.mu.Lock()
	m.cycles++
	m.mu.Unlock()
}

// nextBatch advances the round robin cursor and returns the indexes to poll,
// wrapping around the whale list.
func (m *ActivityMonitor) nextBatch(total int) []int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cursor >= total {
		m.cursor = 0
	}
	size := m.config.BatchSize
	if size > total {
		size = total
	}
	batch := make([]int, 0, size)
	for i := 0; i < size; i++ {
		batch = append(batch, (m.cursor+i)%total)
	}
	m.cursor = (m.cursor + size) % total
	return batch
}

func (m *ActivityMonitor) pollWallet(ctx context.Context, wallet string) {
	acts, err := m.fetcher.GetUserActivity(ctx, wallet, m.config.FetchLimit)
	if err != nil {
		metrics.PollRequests.WithLabelValues("error").Inc()
		m.mu.Lock()
		m.failures++
		sampled := m.failures%10 == 1
		m.mu.Unlock()
		// One in ten failures is logged so a flapping API cannot flood
		// the logs.
		if sampled {
			m.logger.Warn("activity fetch failed",
				zap.String("wallet", shortID(wallet)),
				zap.Error(err))
		}
		return
	}
	metrics.PollRequests.WithLabelValues("ok").Inc()

	cutoff := time.Now().Add(-m.config.Lookback)
	for i := range acts {
		act := acts[i]
		if !act.IsTrade() {
			continue
		}
		if time.Unix(act.Timestamp, 0).Before(cutoff) {
			continue
		}
		if !m.markSeen(act.TransactionHash) {
			continue
		}

		m.handlerMu.RLock()
		h := m.handler
		m.handlerMu.RUnlock()
		if h != nil {
			h(act)
		}
	}
}

// markSeen records a transaction hash, returning false if it was already
// known. Crossing the cap trims the set to the most recent entries.
func (m *ActivityMonitor) markSeen(hash string) bool {
	if hash == "" {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.seen[hash]; ok {
		return false
	}
	m.seen[hash] = struct{}{}
	m.seenOrder = append(m.seenOrder, hash)

	if len(m.seenOrder) > m.config.MaxSeenHashes {
		keep := m.seenOrder[len(m.seenOrder)-m.config.TrimSeenTo:]
		m.seenOrder = append(make([]string, 0, m.config.MaxSeenHashes), keep...)
		m.seen = make(map[string]struct{}, len(m.seenOrder))
		for _, h := range m.seenOrder {
			m.seen[h] = struct{}{}
		}
	}
	return true
}

func (m *ActivityMonitor) SeenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen)
}

type MonitorStats struct {
	Cycles     int `json:"cycles"`
	Failures   int `json:"failures"`
	SeenHashes int `json:"seenHashes"`
	Cursor     int `json:"cursor"`
}

func (m *ActivityMonitor) Stats() MonitorStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MonitorStats{
		Cycles:     m.cycles,
		Failures:   m.failures,
		SeenHashes: len(m.seen),
		Cursor:     m.cursor,
	}
}
