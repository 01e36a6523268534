package polymarketevents

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// PolymarketEventsClient streams market channel events (trades, price changes,
// book snapshots) over the public CLOB WebSocket.
type PolymarketEventsClient struct {
	logger *zap.Logger

	marketWSURL  string
	dialer       *websocket.Dialer
	pingInterval time.Duration

	connMu  sync.Mutex
	writeMu sync.Mutex
	conn    *websocket.Conn

	msgCh   chan json.RawMessage
	errCh   chan error
	closeCh chan struct{}

	msgCount        uint64
	lastMsgUnixNano int64
}

func NewPolymarketEventsClient(logger *zap.Logger, marketWSURL string) *PolymarketEventsClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if marketWSURL == "" {
		marketWSURL = "wss://ws-subscriptions-clob.polymarket.com/ws/market"
	}

	return &PolymarketEventsClient{
		logger:       logger,
		marketWSURL:  marketWSURL,
		dialer:       websocket.DefaultDialer,
		pingInterval: 10 * time.Second,

		msgCh:   make(chan json.RawMessage, 1024),
		errCh:   make(chan error, 64),
		closeCh: make(chan struct{}),
	}
}

// ConnectMarket dials the public market channel and subscribes to the provided
// asset IDs (token IDs). The market channel requires no API key.
func (c *PolymarketEventsClient) ConnectMarket(
	ctx context.Context,
	assetIDs []string,
) error {
	c.connMu.Lock()
	alreadyConnected := c.conn != nil
	c.connMu.Unlock()
	if alreadyConnected {
		return fmt.Errorf("already connected")
	}

	conn, _, err := c.dialer.DialContext(ctx, c.marketWSURL, nil)
	if err != nil {
		return fmt.Errorf("dial market ws: %w", err)
	}

	c.logger.Info(
		"polymarket ws dialed",
		zap.String("url", c.marketWSURL),
		zap.Int("assets", len(assetIDs)),
	)

	conn.SetCloseHandler(func(code int, text string) error {
		c.logger.Warn(
			"polymarket ws close frame received",
			zap.Int("code", code),
			zap.String("reason", text),
		)
		return nil
	})

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	sub := map[string]any{
		"type":       "market",
		"assets_ids": assetIDs,
	}

	if err := c.writeJSON(sub); err != nil {
		_ = conn.Close()
		c.connMu.Lock()
		c.conn = nil
		c.connMu.Unlock()
		return fmt.Errorf("send initial subscription: %w", err)
	}

	go c.readLoop()
	go c.pingLoop()

	go func() {
		select {
		case <-ctx.Done():
			_ = c.Close()
		case <-c.closeCh:
		}
	}()

	return nil
}

func (c *PolymarketEventsClient) SubscribeAssets(assetIDs []string) error {
	return c.sendOp("subscribe", assetIDs)
}

func (c *PolymarketEventsClient) UnsubscribeAssets(assetIDs []string) error {
	return c.sendOp("unsubscribe", assetIDs)
}

func (c *PolymarketEventsClient) Messages() <-chan json.RawMessage {
	return c.msgCh
}

func (c *PolymarketEventsClient) Errors() <-chan error {
	return c.errCh
}

type WSStats struct {
	MessageCount  uint64
	LastMessageAt time.Time
}

func (c *PolymarketEventsClient) Stats() WSStats {
	n := atomic.LoadUint64(&c.msgCount)
	ns := atomic.LoadInt64(&c.lastMsgUnixNano)

	var t time.Time
	if ns > 0 {
		t = time.Unix(0, ns)
	}

	return WSStats{
		MessageCount:  n,
		LastMessageAt: t,
	}
}

func (c *PolymarketEventsClient) Close() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	select {
	case <-c.closeCh:
	default:
		close(c.closeCh)
	}

	// Fresh channel so a reconnect can reuse the client.
	c.closeCh = make(chan struct{})

	var err error
	if c.conn != nil {
		err = c.conn.Close()
		c.conn = nil
	}

	return err
}

// ---- Typed market channel events ----

// Event is a parsed market channel message. The variant set is closed:
// *TradeEvent, *PriceEvent, or *BookEvent. Consumers dispatch with a single
// type switch.
type Event interface {
	EventAssetID() string
}

// TradeEvent is an executed trade on the market channel. Wallet identity is not
// available on this stream.
type TradeEvent struct {
	EventType string `json:"event_type"`
	AssetID   string `json:"asset_id"`
	Market    string `json:"market"` // condition ID
	Price     string `json:"price"`
	Size      string `json:"size"`
	Side      string `json:"side"`
	Timestamp string `json:"timestamp"`
	TradeID   string `json:"id"`
}

func (e *TradeEvent) EventAssetID() string { return e.AssetID }

// GetPriceFloat returns the price as a float64.
func (e *TradeEvent) GetPriceFloat() float64 {
	f, _ := strconv.ParseFloat(e.Price, 64)
	return f
}

// GetSizeFloat returns the size as a float64.
func (e *TradeEvent) GetSizeFloat() float64 {
	f, _ := strconv.ParseFloat(e.Size, 64)
	return f
}

// GetTimestampUnix returns the timestamp as Unix seconds.
func (e *TradeEvent) GetTimestampUnix() int64 {
	ts, _ := strconv.ParseInt(e.Timestamp, 10, 64)
	// Some frames carry milliseconds.
	if ts > 1e12 {
		ts /= 1000
	}
	return ts
}

// PriceEvent carries the current best bid/ask for an asset.
type PriceEvent struct {
	EventType string `json:"event_type"`
	AssetID   string `json:"asset_id"`
	Market    string `json:"market"`
	BestBid   string `json:"best_bid"`
	BestAsk   string `json:"best_ask"`
}

func (e *PriceEvent) EventAssetID() string { return e.AssetID }

// Mid returns the bid/ask midpoint, or 0 if either side is missing.
func (e *PriceEvent) Mid() float64 {
	bid, _ := strconv.ParseFloat(e.BestBid, 64)
	ask, _ := strconv.ParseFloat(e.BestAsk, 64)
	if bid <= 0 || ask <= 0 {
		return 0
	}
	return (bid + ask) / 2
}

// BookLevel is one price level of an order book snapshot.
type BookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// BookEvent is a full order book snapshot for an asset.
type BookEvent struct {
	EventType string      `json:"event_type"`
	AssetID   string      `json:"asset_id"`
	Market    string      `json:"market"`
	Bids      []BookLevel `json:"bids"`
	Asks      []BookLevel `json:"asks"`
}

func (e *BookEvent) EventAssetID() string { return e.AssetID }

// Midpoint computes the mid price from the best book levels, 0 if unavailable.
// Bids arrive sorted ascending and asks descending, so the best levels are last.
func (e *BookEvent) Midpoint() float64 {
	if len(e.Bids) == 0 || len(e.Asks) == 0 {
		return 0
	}
	bid, _ := strconv.ParseFloat(e.Bids[len(e.Bids)-1].Price, 64)
	ask, _ := strconv.ParseFloat(e.Asks[len(e.Asks)-1].Price, 64)
	if bid <= 0 || ask <= 0 {
		return 0
	}
	return (bid + ask) / 2
}

// ParseEvent classifies a raw market channel message into one of the closed
// event variants. Returns nil for unknown or malformed frames.
func ParseEvent(data json.RawMessage) Event {
	var head struct {
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil
	}

	switch head.EventType {
	case "trade", "last_trade_price":
		var ev TradeEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil
		}
		return &ev
	case "price_change", "tick_size_change":
		var ev PriceEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil
		}
		return &ev
	case "book":
		var ev BookEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil
		}
		return &ev
	default:
		return nil
	}
}

// ---- connection internals ----

func (c *PolymarketEventsClient) sendOp(operation string, assetIDs []string) error {
	msg := map[string]any{
		"operation":  operation,
		"assets_ids": assetIDs,
	}

	c.logger.Info("polymarket ws op", zap.String("operation", operation), zap.Int("assets", len(assetIDs)))
	return c.writeJSON(msg)
}

func (c *PolymarketEventsClient) writeJSON(v any) error {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()

	if conn == nil {
		return fmt.Errorf("not connected")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return conn.WriteJSON(v)
}

func (c *PolymarketEventsClient) pingLoop() {
	t := time.NewTicker(c.pingInterval)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			c.connMu.Lock()
			conn := c.conn
			c.connMu.Unlock()

			if conn != nil {
				c.writeMu.Lock()
				_ = conn.WriteMessage(websocket.TextMessage, []byte("PING"))
				c.writeMu.Unlock()
			}

		case <-c.closeCh:
			return
		}
	}
}

func (c *PolymarketEventsClient) readLoop() {
	for {
		select {
		case <-c.closeCh:
			return
		default:
		}

		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			return
		}

		_, b, err := conn.ReadMessage()
		if err != nil {
			c.logger.Warn("polymarket ws read loop exiting", zap.Error(err))
			select {
			case c.errCh <- err:
			default:
			}
			_ = c.Close()
			return
		}

		// Server may reply with plain "PONG".
		if string(b) == "PONG" || string(b) == "PING" {
			continue
		}

		atomic.AddUint64(&c.msgCount, 1)
		atomic.StoreInt64(&c.lastMsgUnixNano, time.Now().UnixNano())

		c.emitFrame(b)
	}
}

// emitFrame forwards a frame, unpacking JSON array batches into single events.
func (c *PolymarketEventsClient) emitFrame(b []byte) {
	trimmed := b
	for len(trimmed) > 0 && (trimmed[0] == ' ' || trimmed[0] == '\n' || trimmed[0] == '\t' || trimmed[0] == '\r') {
		trimmed = trimmed[1:]
	}

	if len(trimmed) == 0 {
		return
	}

	if trimmed[0] == '[' {
		var arr []json.RawMessage
		if err := json.Unmarshal(trimmed, &arr); err != nil {
			c.logger.Warn("polymarket ws bad json array frame", zap.Error(err))
			return
		}
		for _, one := range arr {
			c.forward(one)
		}
		return
	}

	c.forward(json.RawMessage(append([]byte(nil), trimmed...)))
}

func (c *PolymarketEventsClient) forward(msg json.RawMessage) {
	select {
	case c.msgCh <- msg:
	default:
		c.logger.Warn("dropping ws message: msgCh full")
	}
}
