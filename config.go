package swrcache

import "time"

// --- Client Configuration ---

// Default values applied by New when the corresponding Options field is zero.
const (
	DefaultTTL             = 60 * time.Second
	DefaultStaleTime       = 5 * time.Second
	DefaultRetries         = 3
	DefaultRetryDelay      = time.Second
	DefaultGCInterval      = 60 * time.Second
	DefaultPersistDebounce = time.Second
	DefaultStorageKey      = "swrcache"
)

// Options holds configuration for a cache client.
type Options struct {
	// Store is the durable key-value store backing persistence. Nil disables
	// persistence entirely (memory-only client).
	Store Store

	// Bus carries lifecycle events. If nil, the client creates its own.
	Bus *Bus

	// StorageKey names the single item in Store that holds the persisted
	// snapshot. Defaults to DefaultStorageKey.
	StorageKey string

	// PersistKeys is a prefix allow-list for persisted cache keys. When empty
	// every entry with data is persisted: no filter configured means persist
	// everything, not nothing.
	PersistKeys []string

	// TTL is the default absolute lifetime of a cached value.
	TTL time.Duration

	// StaleTime is the default duration after which a cached value is still
	// servable but triggers a background refresh.
	StaleTime time.Duration

	// Retries is the default number of retries after a failed fetch attempt.
	// Zero means DefaultRetries; negative means no retries.
	Retries int

	// RetryDelay is the base backoff delay; it doubles with each attempt.
	RetryDelay time.Duration

	// GCInterval is how often expired, unwatched entries are collected.
	// Zero means DefaultGCInterval; negative disables the background GC.
	GCInterval time.Duration

	// PersistDebounce is how long after a mutation the snapshot save runs,
	// coalescing bursts into one write.
	PersistDebounce time.Duration
}

func (o Options) withDefaults() Options {
	if o.Bus == nil {
		o.Bus = NewBus()
	}
	if o.StorageKey == "" {
		o.StorageKey = DefaultStorageKey
	}
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.StaleTime <= 0 {
		o.StaleTime = DefaultStaleTime
	}
	if o.Retries == 0 {
		o.Retries = DefaultRetries
	} else if o.Retries < 0 {
		o.Retries = 0
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.GCInterval == 0 {
		o.GCInterval = DefaultGCInterval
	}
	if o.PersistDebounce <= 0 {
		o.PersistDebounce = DefaultPersistDebounce
	}
	return o
}

// QueryOptions overrides the client defaults for a single operation. Zero
// fields fall back to the client's Options; a negative Retries disables
// retrying for the call.
type QueryOptions struct {
	TTL        time.Duration
	StaleTime  time.Duration
	Retries    int
	RetryDelay time.Duration
}

func (c *Client[V]) queryOptions(opts []QueryOptions) QueryOptions {
	o := QueryOptions{
		TTL:        c.opts.TTL,
		StaleTime:  c.opts.StaleTime,
		Retries:    c.opts.Retries,
		RetryDelay: c.opts.RetryDelay,
	}
	if len(opts) == 0 {
		return o
	}
	in := opts[0]
	if in.TTL > 0 {
		o.TTL = in.TTL
	}
	if in.StaleTime > 0 {
		o.StaleTime = in.StaleTime
	}
	if in.Retries > 0 {
		o.Retries = in.Retries
	} else if in.Retries < 0 {
		o.Retries = 0
	}
	if in.RetryDelay > 0 {
		o.RetryDelay = in.RetryDelay
	}
	return o
}
