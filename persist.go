package swrcache

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"swrcache/internal/orderedmap"
)

// persistedEntry is the durable reduction of a cache entry: no error, no
// in-flight token. Timestamps are unix milliseconds.
type persistedEntry[V any] struct {
	Data    V     `json:"data"`
	StaleAt int64 `json:"staleAt"`
	Expiry  int64 `json:"expiry"`
}

// schedulePersist arms (or re-arms) the debounced save. Bursts of mutations
// within the debounce window coalesce into a single storage write.
func (c *Client[V]) schedulePersist() {
	if c.opts.Store == nil {
		return
	}
	c.persistMu.Lock()
	defer c.persistMu.Unlock()
	if c.persistTimer == nil {
		c.persistTimer = time.AfterFunc(c.opts.PersistDebounce, c.saveToStorage)
		return
	}
	c.persistTimer.Reset(c.opts.PersistDebounce)
}

// Flush cancels any pending debounced save and writes the snapshot now.
func (c *Client[V]) Flush() {
	if c.opts.Store == nil {
		return
	}
	c.persistMu.Lock()
	if c.persistTimer != nil {
		c.persistTimer.Stop()
	}
	c.persistMu.Unlock()
	c.saveToStorage()
}

// keyPersisted reports whether a cache key passes the PersistKeys prefix
// allow-list. An empty list persists everything, not nothing.
func (c *Client[V]) keyPersisted(key string) bool {
	if len(c.opts.PersistKeys) == 0 {
		return true
	}
	for _, prefix := range c.opts.PersistKeys {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

// saveToStorage serializes every entry with data whose key passes the
// allow-list into one JSON blob under the configured storage key. Write
// failures are logged, never thrown; the cache keeps operating in
// memory-only mode for the cycle.
func (c *Client[V]) saveToStorage() {
	snapshot := orderedmap.New[persistedEntry[V]]()
	c.mu.Lock()
	for _, key := range c.entries.Keys() {
		ent, ok := c.entries.Get(key)
		if !ok || !ent.hasData || !c.keyPersisted(key) {
			continue
		}
		snapshot.Set(key, persistedEntry[V]{
			Data:    ent.data,
			StaleAt: ent.staleAt.UnixMilli(),
			Expiry:  ent.expiry.UnixMilli(),
		})
	}
	c.mu.Unlock()

	blob, err := json.Marshal(snapshot)
	if err != nil {
		log.Printf("ERROR: failed to serialize cache snapshot: %v", err)
		return
	}
	if err := c.opts.Store.SetItem(context.Background(), c.opts.StorageKey, string(blob)); err != nil {
		log.Printf("ERROR: failed to persist cache snapshot to '%s': %v", c.opts.StorageKey, err)
	}
}

// readSnapshot loads and decodes the persisted blob. Corrupt or missing
// storage is treated as empty, never as a fatal error.
func (c *Client[V]) readSnapshot() map[string]persistedEntry[V] {
	blob, err := c.opts.Store.GetItem(context.Background(), c.opts.StorageKey)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Printf("WARN: failed to read cache snapshot from '%s': %v", c.opts.StorageKey, err)
		}
		return nil
	}
	var snapshot map[string]persistedEntry[V]
	if err := json.Unmarshal([]byte(blob), &snapshot); err != nil {
		log.Printf("WARN: corrupt cache snapshot in '%s', ignoring: %v", c.opts.StorageKey, err)
		return nil
	}
	return snapshot
}

// loadFromStorage restores persisted entries whose expiry is still in the
// future and emits one EventHydrated listing the restored keys.
func (c *Client[V]) loadFromStorage() {
	snapshot := c.readSnapshot()
	if len(snapshot) == 0 {
		return
	}
	now := time.Now()
	c.mu.Lock()
	var restored []string
	for key, pe := range snapshot {
		expiry := time.UnixMilli(pe.Expiry)
		if !expiry.After(now) {
			continue
		}
		c.entries.Set(key, &entry[V]{
			data:    pe.Data,
			hasData: true,
			staleAt: time.UnixMilli(pe.StaleAt),
			expiry:  expiry,
		})
		restored = append(restored, key)
	}
	c.mu.Unlock()

	if len(restored) > 0 {
		c.emitGlobal(EventHydrated, HydratedInfo{Keys: restored})
	}
}

// handleExternalChange reloads the snapshot after another execution context
// modified the storage item. No merging is attempted: the external write
// fully wins for every key it contains, and each installed key emits
// EventSync with its now-current data.
func (c *Client[V]) handleExternalChange() {
	snapshot := c.readSnapshot()
	if len(snapshot) == 0 {
		return
	}
	now := time.Now()
	type synced struct {
		key  string
		data V
	}
	var updates []synced
	c.mu.Lock()
	for key, pe := range snapshot {
		expiry := time.UnixMilli(pe.Expiry)
		if !expiry.After(now) {
			continue
		}
		c.entries.Set(key, &entry[V]{
			data:    pe.Data,
			hasData: true,
			staleAt: time.UnixMilli(pe.StaleAt),
			expiry:  expiry,
		})
		updates = append(updates, synced{key: key, data: pe.Data})
	}
	c.mu.Unlock()

	for _, u := range updates {
		c.emit(u.key, EventSync, SyncInfo[V]{Key: u.key, Data: u.data})
	}
}
