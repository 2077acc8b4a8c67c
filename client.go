// Package swrcache is a data-fetching cache client: it deduplicates
// concurrent fetches per key (single-flight), serves stale data while
// revalidating in the background, retries failed fetches with exponential
// backoff, persists a filtered snapshot of entries to a pluggable durable
// store, polls keys on an interval, periodically evicts expired entries, and
// exposes its lifecycle through a topic event bus and reactive signals.
package swrcache

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"swrcache/internal/orderedmap"
)

// Client is a cache client instance. Each client owns its entry store, poll
// table, persistence debounce timer, GC loop, and storage watcher; Dispose
// tears all of them down. V is the cached value type.
type Client[V any] struct {
	opts Options
	bus  *Bus

	mu      sync.Mutex
	entries *orderedmap.Map[*entry[V]]

	pollMu sync.Mutex
	polls  map[string]*pollHandle

	persistMu    sync.Mutex
	persistTimer *time.Timer

	gcStop    chan struct{}
	watchStop func()

	disposeOnce sync.Once
	disposed    atomic.Bool
}

// New creates a cache client. If a Store is configured, persisted entries
// that have not yet expired are restored immediately, and external changes to
// the storage item are observed when the store supports watching.
func New[V any](opts Options) *Client[V] {
	opts = opts.withDefaults()
	c := &Client[V]{
		opts:    opts,
		bus:     opts.Bus,
		entries: orderedmap.New[*entry[V]](),
		polls:   make(map[string]*pollHandle),
	}

	if opts.Store != nil {
		c.loadFromStorage()
		if w, ok := opts.Store.(Watcher); ok {
			stop, err := w.Watch(context.Background(), opts.StorageKey, c.handleExternalChange)
			if err != nil {
				log.Printf("WARN: failed to watch storage item '%s': %v", opts.StorageKey, err)
			} else {
				c.watchStop = stop
			}
		}
	}

	if opts.GCInterval > 0 {
		c.gcStop = make(chan struct{})
		go c.gcLoop()
	}
	return c
}

// Bus returns the client's event bus.
func (c *Client[V]) Bus() *Bus {
	return c.bus
}

// Subscribe registers a handler for the global topic of an event, covering
// every key. It returns an unsubscribe function.
func (c *Client[V]) Subscribe(event Event, handler Handler) func() {
	return c.bus.Subscribe(GlobalTopic(event), handler)
}

// SubscribeKey registers a handler for an event on a single key. An active
// success subscriber also marks the key as live for the garbage collector.
func (c *Client[V]) SubscribeKey(key string, event Event, handler Handler) func() {
	return c.bus.Subscribe(KeyTopic(key, event), handler)
}

// emit publishes an event on the global topic and the per-key topic.
func (c *Client[V]) emit(key string, event Event, payload interface{}) {
	c.bus.Publish(GlobalTopic(event), payload)
	c.bus.Publish(KeyTopic(key, event), payload)
}

// emitGlobal publishes an event that has no single subject key.
func (c *Client[V]) emitGlobal(event Event, payload interface{}) {
	c.bus.Publish(GlobalTopic(event), payload)
}

// Clear removes every entry, emits EventCleared with the removed keys, and
// schedules a persistence save. Active polls are not stopped.
func (c *Client[V]) Clear() {
	c.mu.Lock()
	keys := c.entries.Keys()
	c.entries.Reset()
	c.mu.Unlock()

	c.emitGlobal(EventCleared, ClearedInfo{Keys: keys})
	c.schedulePersist()
}

// Dispose stops all polling, the GC loop, and the storage watcher, then
// forces one final synchronous save. Safe to call more than once.
func (c *Client[V]) Dispose() {
	c.disposeOnce.Do(func() {
		c.disposed.Store(true)
		c.StopAllPolling()
		if c.gcStop != nil {
			close(c.gcStop)
		}
		if c.watchStop != nil {
			c.watchStop()
		}
		c.Flush()
	})
}
