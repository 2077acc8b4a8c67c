package swrcache

import (
	"context"
	"sync"
	"time"
)

// pollHandle tracks one active poll. Closing stop ends the ticker loop; it
// does not abort a fetch already in progress.
type pollHandle struct {
	stop chan struct{}
	once sync.Once
}

func (p *pollHandle) cancel() {
	p.once.Do(func() { close(p.stop) })
}

// StartPolling repeats a fetch for key on a fixed interval. Any existing poll
// for the key is cancelled first. One query fires immediately; each tick then
// forces the entry stale so the query goes through the normal
// single-flight/stale-while-revalidate machinery rather than bypassing it —
// a manual Query and a poll tick can never race into two concurrent fetches
// for the same key. Fetch failures are swallowed here and surface through
// EventError only. The returned stop function is equivalent to
// StopPolling(key).
func (c *Client[V]) StartPolling(ctx context.Context, key string, fetcher Fetcher[V], interval time.Duration, opts ...QueryOptions) func() {
	if c.disposed.Load() {
		return func() {}
	}
	c.StopPolling(key)

	p := &pollHandle{stop: make(chan struct{})}
	c.pollMu.Lock()
	c.polls[key] = p
	c.pollMu.Unlock()

	c.emit(key, EventPollingStart, PollInfo{Key: key, Interval: interval})

	go func() {
		_, _ = c.Query(ctx, key, fetcher, opts...)
	}()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-p.stop:
				return
			case <-ticker.C:
				c.forceStale(key)
				_, _ = c.Query(ctx, key, fetcher, opts...)
			}
		}
	}()

	return func() { c.StopPolling(key) }
}

// forceStale resets the entry's staleAt into the past so the next Query
// treats it as stale. The expiry is left alone: a not-yet-expired entry still
// revalidates in the background, an expired one forces a blocking fetch.
func (c *Client[V]) forceStale(key string) {
	c.mu.Lock()
	if ent, ok := c.entries.Get(key); ok {
		ent.staleAt = time.Time{}
	}
	c.mu.Unlock()
}

// StopPolling cancels the interval timer for key if one is active. Idempotent.
func (c *Client[V]) StopPolling(key string) {
	c.pollMu.Lock()
	p, ok := c.polls[key]
	if ok {
		delete(c.polls, key)
	}
	c.pollMu.Unlock()
	if !ok {
		return
	}
	p.cancel()
	c.emit(key, EventPollingStop, PollInfo{Key: key})
}

// StopAllPolling stops every currently active poll.
func (c *Client[V]) StopAllPolling() {
	c.pollMu.Lock()
	keys := make([]string, 0, len(c.polls))
	for key := range c.polls {
		keys = append(keys, key)
	}
	c.pollMu.Unlock()
	for _, key := range keys {
		c.StopPolling(key)
	}
}
