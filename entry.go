package swrcache

import "time"

// entry is the internal per-key cache record. All fields are guarded by the
// client's store mutex; the mutex is never held across a fetch or a backoff
// delay, so the flight field is the only coordination point between
// concurrent callers for the same key.
type entry[V any] struct {
	data    V
	hasData bool
	staleAt time.Time
	expiry  time.Time
	err     error
	flight  *flight[V] // in-flight fetch token; nil when idle
}

// flight is a one-shot future shared by every caller that attaches to an
// in-flight fetch. complete must be called exactly once.
type flight[V any] struct {
	done chan struct{}
	data V
	err  error
}

func newFlight[V any]() *flight[V] {
	return &flight[V]{done: make(chan struct{})}
}

func (f *flight[V]) complete(data V, err error) {
	f.data = data
	f.err = err
	close(f.done)
}

// wait blocks until the flight settles. There is no cancellation: stopping a
// poll or disposing the client does not abort a fetch already in progress.
func (f *flight[V]) wait() (V, error) {
	<-f.done
	return f.data, f.err
}

// EntryView is a read-only snapshot of a cache entry, as returned by GetEntry.
type EntryView[V any] struct {
	Data     V
	HasData  bool
	StaleAt  time.Time
	Expiry   time.Time
	Err      error
	InFlight bool
}

// GetEntry returns a snapshot of the entry for key, or nil when the key has
// never been cached (or has been invalidated, which is indistinguishable).
func (c *Client[V]) GetEntry(key string) *EntryView[V] {
	c.mu.Lock()
	defer c.mu.Unlock()
	ent, ok := c.entries.Get(key)
	if !ok {
		return nil
	}
	return &EntryView[V]{
		Data:     ent.data,
		HasData:  ent.hasData,
		StaleAt:  ent.staleAt,
		Expiry:   ent.expiry,
		Err:      ent.err,
		InFlight: ent.flight != nil,
	}
}

// Keys returns the cached keys in store insertion order.
func (c *Client[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Keys()
}
