package notifier

import (
	"time"

	"go.uber.org/zap"
)

// WhaleTradeAlert contains the data needed to surface a whale trade signal.
type WhaleTradeAlert struct {
	// Wallet info
	WhaleName    string
	WhaleAddress string
	Tier         string // top10, top50, tracked

	// Trade info
	Side     string // BUY or SELL
	Shares   float64
	Price    float64
	Notional float64

	// Market info
	MarketTitle string
	MarketSlug  string
	ConditionID string
	Outcome     string

	// Mark-to-market snapshot at cache time, 0 if no price was known
	PriceAtAlert float64

	Timestamp time.Time
}

// Notifier is the interface for delivering whale trade signals to external
// channels. Delivery is best-effort; implementations log and swallow failures.
type Notifier interface {
	// SendWhaleTradeAlert delivers one whale trade signal.
	SendWhaleTradeAlert(alert WhaleTradeAlert)

	// Close cleans up any resources.
	Close() error
}

// MultiNotifier broadcasts alerts to multiple notifiers.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a MultiNotifier, skipping nil members.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	var active []Notifier
	for _, n := range notifiers {
		if n != nil {
			active = append(active, n)
		}
	}
	return &MultiNotifier{notifiers: active}
}

func (m *MultiNotifier) SendWhaleTradeAlert(alert WhaleTradeAlert) {
	for _, n := range m.notifiers {
		n.SendWhaleTradeAlert(alert)
	}
}

func (m *MultiNotifier) Close() error {
	var firstErr error
	for _, n := range m.notifiers {
		if err := n.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// LogNotifier writes alerts to the structured log. Always available, used as
// the fallback channel when no external notifier is configured.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger.Named("whale-alert")}
}

func (l *LogNotifier) SendWhaleTradeAlert(alert WhaleTradeAlert) {
	l.logger.Info("whale trade",
		zap.String("whale", alert.WhaleAddress),
		zap.String("name", alert.WhaleName),
		zap.String("tier", alert.Tier),
		zap.String("side", alert.Side),
		zap.Float64("shares", alert.Shares),
		zap.Float64("price", alert.Price),
		zap.Float64("notional", alert.Notional),
		zap.String("market", alert.MarketTitle),
		zap.String("outcome", alert.Outcome),
	)
}

func (l *LogNotifier) Close() error {
	return nil
}
