package swrcache

import (
	"log"
	"sync"
	"time"
)

// --- Event System ---

// Event identifies a cache lifecycle event.
type Event string

// Standard lifecycle event types
const (
	EventFetch        Event = "fetch"
	EventHit          Event = "hit"
	EventSuccess      Event = "success"
	EventError        Event = "error"
	EventRetry        Event = "retry"
	EventMutate       Event = "mutate"
	EventSet          Event = "set"
	EventInvalidate   Event = "invalidate"
	EventHydrated     Event = "hydrated"
	EventGC           Event = "gc"
	EventCleared      Event = "cleared"
	EventPollingStart Event = "polling:start"
	EventPollingStop  Event = "polling:stop"
	EventSync         Event = "sync"
)

// GlobalTopic returns the bus topic carrying an event for every key.
func GlobalTopic(event Event) string {
	return "query:" + string(event)
}

// KeyTopic returns the bus topic carrying an event for a single cache key.
func KeyTopic(key string, event Event) string {
	return "query:" + key + ":" + string(event)
}

// Handler is the signature for functions that listen to bus topics.
type Handler func(payload interface{})

// Bus is a topic-based publish/subscribe event bus. A panicking handler is
// recovered and logged so the remaining handlers for the topic still run.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string]map[int]Handler
	nextID   int
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[string]map[int]Handler)}
}

// Subscribe registers a handler for a topic and returns an unsubscribe
// function. Unsubscribing twice is a no-op.
func (b *Bus) Subscribe(topic string, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handlers[topic] == nil {
		b.handlers[topic] = make(map[int]Handler)
	}
	id := b.nextID
	b.nextID++
	b.handlers[topic][id] = handler
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if hs, ok := b.handlers[topic]; ok {
			delete(hs, id)
			if len(hs) == 0 {
				delete(b.handlers, topic)
			}
		}
	}
}

// Publish delivers a payload to every handler subscribed to the topic.
// Handlers run sequentially, in no particular order.
func (b *Bus) Publish(topic string, payload interface{}) {
	b.mu.RLock()
	hs, ok := b.handlers[topic]
	if !ok || len(hs) == 0 {
		b.mu.RUnlock()
		return
	}
	handlers := make([]Handler, 0, len(hs))
	for _, h := range hs {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.dispatch(topic, h, payload)
	}
}

func (b *Bus) dispatch(topic string, h Handler, payload interface{}) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: event handler for topic %q panicked: %v", topic, r)
		}
	}()
	h(payload)
}

// SubscriberCount reports the number of handlers registered for a topic.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[topic])
}

// --- Event payloads ---

// FetchInfo is the payload of EventFetch. Cached reports whether a value was
// already present for the key when the fetch started.
type FetchInfo struct {
	Key    string
	Cached bool
}

// HitInfo is the payload of EventHit: a fresh read served without a fetch.
type HitInfo[V any] struct {
	Key  string
	Data V
}

// SuccessInfo is the payload of EventSuccess.
type SuccessInfo[V any] struct {
	Key  string
	Data V
}

// ErrorInfo is the payload of EventError. Stale carries the previous value,
// if one survived the failure.
type ErrorInfo[V any] struct {
	Key   string
	Err   error
	Stale *V
}

// RetryInfo is the payload of EventRetry, emitted before each backoff delay.
type RetryInfo struct {
	Key     string
	Attempt int
	Max     int
	Delay   time.Duration
	Err     error
}

// MutateInfo is the payload of EventMutate.
type MutateInfo[V any] struct {
	Key      string
	Data     V
	Previous *V
}

// SetInfo is the payload of EventSet.
type SetInfo[V any] struct {
	Key  string
	Data V
}

// InvalidateInfo is the payload of EventInvalidate.
type InvalidateInfo struct {
	Key string
}

// HydratedInfo is the payload of EventHydrated, listing keys restored from
// the durable store at startup.
type HydratedInfo struct {
	Keys []string
}

// GCInfo is the payload of EventGC, listing collected keys.
type GCInfo struct {
	Keys []string
}

// ClearedInfo is the payload of EventCleared.
type ClearedInfo struct {
	Keys []string
}

// PollInfo is the payload of EventPollingStart and EventPollingStop.
type PollInfo struct {
	Key      string
	Interval time.Duration
}

// SyncInfo is the payload of EventSync: an external context rewrote the
// persisted snapshot and this key now carries its data.
type SyncInfo[V any] struct {
	Key  string
	Data V
}
