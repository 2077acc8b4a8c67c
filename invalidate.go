package swrcache

import (
	"context"
	"time"
)

// Mutate rewrites the data of an existing entry in place, leaving staleAt and
// expiry untouched. This is the optimistic-update primitive: callers reflect
// a local change before (or without) a server round-trip. It returns the
// previous data, or nil when the key has no entry (in which case nothing is
// created or emitted).
func (c *Client[V]) Mutate(key string, updater func(previous V) V) *V {
	c.mu.Lock()
	ent, ok := c.entries.Get(key)
	if !ok {
		c.mu.Unlock()
		return nil
	}
	var previous *V
	if ent.hasData {
		prev := ent.data
		previous = &prev
	}
	next := updater(ent.data)
	ent.data = next
	ent.hasData = true
	c.mu.Unlock()

	c.emit(key, EventMutate, MutateInfo[V]{Key: key, Data: next, Previous: previous})
	c.schedulePersist()
	return previous
}

// MutateValue is Mutate with a plain replacement value.
func (c *Client[V]) MutateValue(key string, data V) *V {
	return c.Mutate(key, func(V) V { return data })
}

// SetData unconditionally creates or overwrites the entry for key with fresh
// staleAt/expiry computed from now, clearing any recorded error and in-flight
// token. Use it to seed the cache from data obtained outside the coordinator,
// such as a mutation response.
func (c *Client[V]) SetData(key string, data V, opts ...QueryOptions) {
	o := c.queryOptions(opts)
	now := time.Now()
	c.mu.Lock()
	c.entries.Set(key, &entry[V]{
		data:    data,
		hasData: true,
		staleAt: now.Add(o.StaleTime),
		expiry:  now.Add(o.TTL),
	})
	c.mu.Unlock()

	c.emit(key, EventSet, SetInfo[V]{Key: key, Data: data})
	c.schedulePersist()
}

// Invalidate deletes the entry for key entirely; a later read cannot tell it
// apart from a never-fetched key. Idempotent.
func (c *Client[V]) Invalidate(key string) {
	c.mu.Lock()
	c.entries.Delete(key)
	c.mu.Unlock()

	c.emit(key, EventInvalidate, InvalidateInfo{Key: key})
	c.schedulePersist()
}

// InvalidateRefetch invalidates key and immediately queries it again with the
// supplied fetcher, returning the fetch result.
func (c *Client[V]) InvalidateRefetch(ctx context.Context, key string, fetcher Fetcher[V], opts ...QueryOptions) (V, error) {
	c.Invalidate(key)
	return c.Query(ctx, key, fetcher, opts...)
}

// InvalidateMatching deletes every entry whose key satisfies the predicate,
// emitting EventInvalidate per key. It returns the invalidated keys in store
// insertion order.
func (c *Client[V]) InvalidateMatching(predicate func(key string) bool) []string {
	c.mu.Lock()
	var matched []string
	for _, key := range c.entries.Keys() {
		if predicate(key) {
			c.entries.Delete(key)
			matched = append(matched, key)
		}
	}
	c.mu.Unlock()

	for _, key := range matched {
		c.emit(key, EventInvalidate, InvalidateInfo{Key: key})
	}
	if len(matched) > 0 {
		c.schedulePersist()
	}
	return matched
}
