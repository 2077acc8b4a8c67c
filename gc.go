package swrcache

import "time"

// gcLoop collects expired entries on the configured interval until Dispose.
func (c *Client[V]) gcLoop() {
	ticker := time.NewTicker(c.opts.GCInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.gcStop:
			return
		case <-ticker.C:
			c.GC()
		}
	}
}

// GC deletes every entry whose expiry has passed and whose key has no active
// subscriber on its success topic. A live success subscriber is the sole
// signal that someone still depends on the key, and it overrides pure
// time-based expiry. Emits EventGC with the collected keys when the set is
// non-empty, and returns them.
func (c *Client[V]) GC() []string {
	now := time.Now()
	c.mu.Lock()
	var collected []string
	for _, key := range c.entries.Keys() {
		ent, ok := c.entries.Get(key)
		if !ok || !now.After(ent.expiry) || ent.flight != nil {
			continue
		}
		if c.bus.SubscriberCount(KeyTopic(key, EventSuccess)) > 0 {
			continue
		}
		c.entries.Delete(key)
		collected = append(collected, key)
	}
	c.mu.Unlock()

	if len(collected) > 0 {
		c.emitGlobal(EventGC, GCInfo{Keys: collected})
	}
	return collected
}
