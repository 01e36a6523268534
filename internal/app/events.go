package app

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a tracker lifecycle event delivered to subscribers. The set of
// event types is closed: WhaleTradeEvent, UniverseRebuildEvent and ErrorEvent.
type Event interface {
	eventName() string
}

// WhaleTradeEvent fires once per whale side of a processed trade.
type WhaleTradeEvent struct {
	Whale     WhaleInfo
	Trade     StoredTrade
	PriceNow  float64
	Timestamp time.Time
}

func (WhaleTradeEvent) eventName() string { return "whaleTrade" }

// UniverseRebuildEvent fires after every successful whale universe rebuild.
type UniverseRebuildEvent struct {
	WhaleCount int
	Top10      int
	Top50      int
	Tracked    int
	Timestamp  time.Time
}

func (UniverseRebuildEvent) eventName() string { return "universeRebuild" }

// ErrorEvent carries recoverable failures from background components.
type ErrorEvent struct {
	Component string
	Err       error
	Timestamp time.Time
}

func (ErrorEvent) eventName() string { return "error" }

// EventHandler receives published events. Handlers run synchronously on the
// publisher's goroutine and must not block.
type EventHandler func(Event)

// EventBus is a minimal in-process pub/sub fanout for tracker events.
type EventBus struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]EventHandler
}

func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[uuid.UUID]EventHandler)}
}

// Subscribe registers a handler and returns a token for Unsubscribe.
func (b *EventBus) Subscribe(handler EventHandler) uuid.UUID {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.New()
	b.subs[id] = handler
	return id
}

// Unsubscribe removes a handler. Unknown tokens are a no-op, so callers can
// always defer it.
func (b *EventBus) Unsubscribe(id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

// Publish delivers the event to every current subscriber.
func (b *EventBus) Publish(ev Event) {
	b.mu.RLock()
	handlers := make([]EventHandler, 0, len(b.subs))
	for _, h := range b.subs {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}

func (b *EventBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
