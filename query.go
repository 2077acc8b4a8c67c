package swrcache

import (
	"context"
	"time"
)

// Fetcher produces the value for a cache key. Retrying is handled by the
// client; a timeout, if desired, must be implemented inside the fetcher.
type Fetcher[V any] func(ctx context.Context) (V, error)

// Query returns the cached value for key, fetching it when needed.
//
// A fresh entry (now < staleAt) is returned immediately without a network
// call. If a fetch for the key is already in flight, the caller attaches to
// it and shares its resolution. A stale-but-not-expired entry is returned
// immediately while the fetch continues in the background
// (stale-while-revalidate); background failures do not surface here, only
// through EventError and the entry's Err field. Otherwise the caller waits
// for the fetch, which retries with exponential backoff before giving up
// with a *FetchError.
func (c *Client[V]) Query(ctx context.Context, key string, fetcher Fetcher[V], opts ...QueryOptions) (V, error) {
	if c.disposed.Load() {
		var zero V
		return zero, ErrClientDisposed
	}
	o := c.queryOptions(opts)
	now := time.Now()

	c.mu.Lock()
	ent, ok := c.entries.Get(key)
	if ok && now.Before(ent.staleAt) {
		data := ent.data
		c.mu.Unlock()
		c.emit(key, EventHit, HitInfo[V]{Key: key, Data: data})
		return data, nil
	}
	if ok && ent.flight != nil {
		fl := ent.flight
		c.mu.Unlock()
		return fl.wait()
	}

	// Fetch needed. The flight token is installed before the mutex is
	// released, so concurrent callers attach instead of fetching again.
	hasCached := ok && ent.hasData
	isStale := ok && ent.hasData && now.Before(ent.expiry)
	var stale V
	if isStale {
		stale = ent.data
	}
	if !ok {
		ent = &entry[V]{}
		c.entries.Set(key, ent)
	}
	fl := newFlight[V]()
	ent.flight = fl
	c.mu.Unlock()

	c.emit(key, EventFetch, FetchInfo{Key: key, Cached: hasCached})

	if isStale {
		go c.runFetch(ctx, key, fetcher, o, fl)
		return stale, nil
	}
	c.runFetch(ctx, key, fetcher, o, fl)
	return fl.wait()
}

// Prefetch warms the cache for key without exposing the result. Fetch
// failures are swallowed here; they remain observable through EventError.
func (c *Client[V]) Prefetch(ctx context.Context, key string, fetcher Fetcher[V], opts ...QueryOptions) {
	go func() {
		_, _ = c.Query(ctx, key, fetcher, opts...)
	}()
}

// runFetch drives one retry-wrapped fetch for key and records the outcome on
// the entry before settling the shared flight.
func (c *Client[V]) runFetch(ctx context.Context, key string, fetcher Fetcher[V], o QueryOptions, fl *flight[V]) {
	data, err := c.fetchWithRetry(ctx, key, fetcher, o)
	if err != nil {
		c.recordError(key, err)
		var zero V
		fl.complete(zero, err)
		return
	}
	c.recordSuccess(key, data, o)
	fl.complete(data, nil)
}

// fetchWithRetry attempts the fetch up to o.Retries+1 times. Each failed
// attempt that leaves retries remaining emits EventRetry with the computed
// delay (RetryDelay doubling per attempt), then sleeps before the next try.
// The last error is propagated wrapped in a *FetchError.
func (c *Client[V]) fetchWithRetry(ctx context.Context, key string, fetcher Fetcher[V], o QueryOptions) (V, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		data, err := fetcher(ctx)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if attempt >= o.Retries {
			break
		}
		delay := o.RetryDelay << uint(attempt)
		c.emit(key, EventRetry, RetryInfo{
			Key:     key,
			Attempt: attempt + 1,
			Max:     o.Retries,
			Delay:   delay,
			Err:     err,
		})
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			lastErr = ctx.Err()
			var zero V
			return zero, &FetchError{Key: key, Attempts: attempt + 1, Err: lastErr}
		}
	}
	var zero V
	return zero, &FetchError{Key: key, Attempts: o.Retries + 1, Err: lastErr}
}

// recordSuccess replaces the entry with the fresh value and new timestamps,
// emits EventSuccess, and schedules a persistence save.
func (c *Client[V]) recordSuccess(key string, data V, o QueryOptions) {
	now := time.Now()
	c.mu.Lock()
	c.entries.Set(key, &entry[V]{
		data:    data,
		hasData: true,
		staleAt: now.Add(o.StaleTime),
		expiry:  now.Add(o.TTL),
	})
	c.mu.Unlock()

	c.emit(key, EventSuccess, SuccessInfo[V]{Key: key, Data: data})
	c.schedulePersist()
}

// recordError replaces the entry keeping any previous data and its previous
// staleAt/expiry, records the error, and emits EventError with the surviving
// stale value. A stale window that was already open stays open until expiry.
func (c *Client[V]) recordError(key string, err error) {
	c.mu.Lock()
	next := &entry[V]{err: err}
	var stale *V
	if prev, ok := c.entries.Get(key); ok {
		next.data = prev.data
		next.hasData = prev.hasData
		next.staleAt = prev.staleAt
		next.expiry = prev.expiry
		if prev.hasData {
			data := prev.data
			stale = &data
		}
	}
	c.entries.Set(key, next)
	c.mu.Unlock()

	c.emit(key, EventError, ErrorInfo[V]{Key: key, Err: err, Stale: stale})
}
