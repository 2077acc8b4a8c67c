package swrcache

import (
	"context"
	"time"

	"swrcache/signal"
)

// SignalOptions configures QuerySignal and PollingSignal.
type SignalOptions struct {
	// Disabled suppresses the automatic fetch at construction.
	Disabled bool
	// Query overrides the client defaults for fetches made by the handle.
	Query QueryOptions
}

// QueryHandle wraps a cache key's lifecycle in reactive cells. Data holds
// the last known value (nil before the first result and after invalidation),
// Loading is true exactly while a fetch is outstanding with no value cached
// yet, and Error holds the last fetch error. The cells mirror the key's
// success/error/mutate/set/invalidate events, so updates made by other
// callers (polls, other handles) are reflected too.
type QueryHandle[V any] struct {
	Data    *signal.Signal[*V]
	Loading *signal.Signal[bool]
	Error   *signal.Signal[error]

	ctx     context.Context
	client  *Client[V]
	key     string
	fetcher Fetcher[V]
	opts    QueryOptions
	unsubs  []func()
}

// QuerySignal builds a reactive handle for key. Unless opts.Disabled is set,
// an initial fetch is triggered at construction.
func QuerySignal[V any](ctx context.Context, client *Client[V], key string, fetcher Fetcher[V], opts ...SignalOptions) *QueryHandle[V] {
	var o SignalOptions
	if len(opts) > 0 {
		o = opts[0]
	}
	h := &QueryHandle[V]{
		Data:    signal.New[*V](nil),
		Loading: signal.New(false),
		Error:   signal.New[error](nil),
		ctx:     ctx,
		client:  client,
		key:     key,
		fetcher: fetcher,
		opts:    o.Query,
	}
	h.subscribe()
	if !o.Disabled {
		h.Fetch()
	}
	return h
}

func (h *QueryHandle[V]) subscribe() {
	h.unsubs = append(h.unsubs,
		h.client.SubscribeKey(h.key, EventSuccess, func(payload interface{}) {
			if info, ok := payload.(SuccessInfo[V]); ok {
				data := info.Data
				signal.Batch(func() {
					h.Data.Set(&data)
					h.Error.Set(nil)
					h.Loading.Set(false)
				})
			}
		}),
		h.client.SubscribeKey(h.key, EventError, func(payload interface{}) {
			if info, ok := payload.(ErrorInfo[V]); ok {
				signal.Batch(func() {
					h.Error.Set(info.Err)
					h.Loading.Set(false)
				})
			}
		}),
		h.client.SubscribeKey(h.key, EventMutate, func(payload interface{}) {
			if info, ok := payload.(MutateInfo[V]); ok {
				data := info.Data
				h.Data.Set(&data)
			}
		}),
		h.client.SubscribeKey(h.key, EventSet, func(payload interface{}) {
			if info, ok := payload.(SetInfo[V]); ok {
				data := info.Data
				signal.Batch(func() {
					h.Data.Set(&data)
					h.Error.Set(nil)
				})
			}
		}),
		h.client.SubscribeKey(h.key, EventInvalidate, func(payload interface{}) {
			signal.Batch(func() {
				h.Data.Set(nil)
				h.Error.Set(nil)
			})
		}),
	)
}

// Fetch triggers a query for the handle's key. It flips Loading when no
// value is cached yet, and returns without waiting: the outcome lands in the
// cells. Fetch failures are not returned anywhere — observe the Error cell
// or the key's error event.
func (h *QueryHandle[V]) Fetch() {
	ent := h.client.GetEntry(h.key)
	if ent == nil || !ent.HasData {
		h.Loading.Set(true)
	}
	go func() {
		data, err := h.client.Query(h.ctx, h.key, h.fetcher, h.opts)
		if err != nil {
			// The error event already updated the cells.
			return
		}
		// Fresh hits emit no success event, so sync the cells here.
		signal.Batch(func() {
			h.Data.Set(&data)
			h.Error.Set(nil)
			h.Loading.Set(false)
		})
	}()
}

// Refetch invalidates the key and fetches it again.
func (h *QueryHandle[V]) Refetch() {
	h.client.Invalidate(h.key)
	h.Fetch()
}

// Mutate applies an optimistic update through the client; the mutate event
// syncs the Data cell. Returns the previous data, or nil without an entry.
func (h *QueryHandle[V]) Mutate(updater func(previous V) V) *V {
	return h.client.Mutate(h.key, updater)
}

// Unsubscribe detaches the handle from the key's events. The cells keep
// their last values but stop updating.
func (h *QueryHandle[V]) Unsubscribe() {
	for _, unsub := range h.unsubs {
		unsub()
	}
	h.unsubs = nil
}

// PollingHandle is a QueryHandle fed by a poll instead of an initial fetch.
type PollingHandle[V any] struct {
	*QueryHandle[V]
	stopPoll func()
}

// PollingSignal builds a reactive handle whose data is refreshed by polling.
// The handle is constructed with fetching disabled; the poll's immediate
// first query populates it.
func PollingSignal[V any](ctx context.Context, client *Client[V], key string, fetcher Fetcher[V], interval time.Duration, opts ...SignalOptions) *PollingHandle[V] {
	var o SignalOptions
	if len(opts) > 0 {
		o = opts[0]
	}
	o.Disabled = true
	h := QuerySignal(ctx, client, key, fetcher, o)
	stop := client.StartPolling(ctx, key, fetcher, interval, o.Query)
	return &PollingHandle[V]{QueryHandle: h, stopPoll: stop}
}

// Stop ends the poll. The handle stays subscribed until Unsubscribe.
func (h *PollingHandle[V]) Stop() {
	h.stopPoll()
}

// RenderTarget is the rendering surface BindQuery writes into. It stands in
// for a DOM element so the binding works in any host environment.
type RenderTarget interface {
	SetContent(content string)
}

// BindOptions configures BindQuery.
type BindOptions[V any] struct {
	// Target receives the rendered content. Required.
	Target RenderTarget
	// Render converts the cached value to content. Required.
	Render func(data V) string
	// OnLoading, if set, runs when a fetch starts with no cached value yet.
	OnLoading func(target RenderTarget)
	// OnError, if set, runs on fetch failure with any surviving stale data.
	OnError func(err error, stale *V, target RenderTarget)
	// Poll, if positive, keeps the binding fresh by polling the key.
	Poll time.Duration
	// Query overrides the client defaults for fetches made by the binding.
	Query QueryOptions
}

// BindQuery renders the cached value for key into a target, re-rendering on
// every success, set, and mutate event for the key, and triggers an initial
// query. The returned stop function detaches the binding and ends its poll.
func BindQuery[V any](ctx context.Context, client *Client[V], key string, fetcher Fetcher[V], opts BindOptions[V]) (func(), error) {
	if opts.Target == nil {
		return nil, ErrNoTarget
	}
	if opts.Render == nil {
		return nil, ErrNoRender
	}

	render := func(data V) {
		opts.Target.SetContent(opts.Render(data))
	}
	unsubs := []func(){
		client.SubscribeKey(key, EventSuccess, func(payload interface{}) {
			if info, ok := payload.(SuccessInfo[V]); ok {
				render(info.Data)
			}
		}),
		client.SubscribeKey(key, EventSet, func(payload interface{}) {
			if info, ok := payload.(SetInfo[V]); ok {
				render(info.Data)
			}
		}),
		client.SubscribeKey(key, EventMutate, func(payload interface{}) {
			if info, ok := payload.(MutateInfo[V]); ok {
				render(info.Data)
			}
		}),
	}
	if opts.OnLoading != nil {
		unsubs = append(unsubs, client.SubscribeKey(key, EventFetch, func(payload interface{}) {
			if info, ok := payload.(FetchInfo); ok && !info.Cached {
				opts.OnLoading(opts.Target)
			}
		}))
	}
	if opts.OnError != nil {
		unsubs = append(unsubs, client.SubscribeKey(key, EventError, func(payload interface{}) {
			if info, ok := payload.(ErrorInfo[V]); ok {
				opts.OnError(info.Err, info.Stale, opts.Target)
			}
		}))
	}

	// The initial query and a poll's immediate fire can overlap; single-flight
	// collapses them into one fetch.
	go func() {
		_, _ = client.Query(ctx, key, fetcher, opts.Query)
	}()
	var stopPoll func()
	if opts.Poll > 0 {
		stopPoll = client.StartPolling(ctx, key, fetcher, opts.Poll, opts.Query)
	}

	return func() {
		if stopPoll != nil {
			stopPoll()
		}
		for _, unsub := range unsubs {
			unsub()
		}
	}, nil
}
