package swrcache_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"swrcache"
)

// newTestClient builds a memory-only client with background GC disabled and
// short persistence debounce, suitable for most tests.
func newTestClient(t *testing.T, opts swrcache.Options) *swrcache.Client[string] {
	t.Helper()
	if opts.GCInterval == 0 {
		opts.GCInterval = -1
	}
	if opts.PersistDebounce == 0 {
		opts.PersistDebounce = 10 * time.Millisecond
	}
	c := swrcache.New[string](opts)
	t.Cleanup(c.Dispose)
	return c
}

// countingFetcher returns value and counts invocations.
func countingFetcher(value string, calls *atomic.Int32) swrcache.Fetcher[string] {
	return func(ctx context.Context) (string, error) {
		calls.Add(1)
		return value, nil
	}
}

// failingFetcher always returns err and counts invocations.
func failingFetcher(err error, calls *atomic.Int32) swrcache.Fetcher[string] {
	return func(ctx context.Context) (string, error) {
		calls.Add(1)
		return "", err
	}
}

// eventRecorder collects bus payloads for assertions.
type eventRecorder struct {
	mu       sync.Mutex
	payloads []interface{}
}

func (r *eventRecorder) handler(payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, payload)
}

func (r *eventRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payloads)
}

func (r *eventRecorder) all() []interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]interface{}(nil), r.payloads...)
}

const (
	waitTimeout = 2 * time.Second
	waitTick    = 5 * time.Millisecond
)
