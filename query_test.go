package swrcache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swrcache"
)

func TestQuery_FetchesOnceWithinStaleTime(t *testing.T) {
	c := newTestClient(t, swrcache.Options{})
	ctx := context.Background()

	var calls atomic.Int32
	fetcher := countingFetcher("v1", &calls)

	hits := &eventRecorder{}
	defer c.Subscribe(swrcache.EventHit, hits.handler)()

	data, err := c.Query(ctx, "users", fetcher)
	require.NoError(t, err)
	assert.Equal(t, "v1", data)

	// Within staleTime: fresh hit, no second fetch.
	data, err = c.Query(ctx, "users", fetcher)
	require.NoError(t, err)
	assert.Equal(t, "v1", data)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, hits.count())
}

func TestQuery_DeduplicatesConcurrentCallers(t *testing.T) {
	c := newTestClient(t, swrcache.Options{})
	ctx := context.Background()

	var calls atomic.Int32
	release := make(chan struct{})
	fetcher := func(ctx context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "shared", nil
	}

	const callers = 10
	var wg sync.WaitGroup
	results := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Query(ctx, "users", fetcher)
		}(i)
	}

	// Let every caller attach to the in-flight fetch before it settles.
	require.Eventually(t, func() bool { return calls.Load() == 1 }, waitTimeout, waitTick)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "shared", results[i])
	}
	assert.Equal(t, int32(1), calls.Load(), "concurrent callers must share one fetch")
}

func TestQuery_StaleWhileRevalidate(t *testing.T) {
	c := newTestClient(t, swrcache.Options{})
	ctx := context.Background()
	opts := swrcache.QueryOptions{StaleTime: 20 * time.Millisecond, TTL: time.Minute}

	var calls1 atomic.Int32
	_, err := c.Query(ctx, "users", countingFetcher("v1", &calls1), opts)
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond) // past staleTime, before ttl

	var calls2 atomic.Int32
	data, err := c.Query(ctx, "users", countingFetcher("v2", &calls2), opts)
	require.NoError(t, err)
	assert.Equal(t, "v1", data, "stale value is served immediately")

	// Background refresh lands without the caller waiting.
	require.Eventually(t, func() bool {
		ent := c.GetEntry("users")
		return ent != nil && ent.Data == "v2"
	}, waitTimeout, waitTick)
	assert.Equal(t, int32(1), calls2.Load())
}

func TestQuery_RetriesWithBackoff(t *testing.T) {
	c := newTestClient(t, swrcache.Options{})
	ctx := context.Background()

	retries := &eventRecorder{}
	defer c.Subscribe(swrcache.EventRetry, retries.handler)()

	var calls atomic.Int32
	boom := errors.New("boom")
	fetcher := func(ctx context.Context) (string, error) {
		if calls.Add(1) <= 2 {
			return "", boom
		}
		return "ok", nil
	}

	start := time.Now()
	data, err := c.Query(ctx, "users", fetcher, swrcache.QueryOptions{
		Retries:    2,
		RetryDelay: 10 * time.Millisecond,
	})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, "ok", data)
	assert.Equal(t, int32(3), calls.Load(), "fetcher called exactly 3 times")
	assert.GreaterOrEqual(t, elapsed, 30*time.Millisecond, "two induced delays of 10ms and 20ms")

	infos := retries.all()
	require.Len(t, infos, 2)
	first := infos[0].(swrcache.RetryInfo)
	second := infos[1].(swrcache.RetryInfo)
	assert.Equal(t, 1, first.Attempt)
	assert.Equal(t, 10*time.Millisecond, first.Delay)
	assert.Equal(t, 2, second.Attempt)
	assert.Equal(t, 20*time.Millisecond, second.Delay)
}

func TestQuery_ExhaustedRetriesRejectsWithLastError(t *testing.T) {
	c := newTestClient(t, swrcache.Options{})
	ctx := context.Background()

	var calls atomic.Int32
	boom := errors.New("boom")
	_, err := c.Query(ctx, "users", failingFetcher(boom, &calls), swrcache.QueryOptions{
		Retries:    1,
		RetryDelay: 5 * time.Millisecond,
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	var fe *swrcache.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 2, fe.Attempts)
	assert.Equal(t, int32(2), calls.Load(), "fetcher called exactly twice")

	ent := c.GetEntry("users")
	require.NotNil(t, ent)
	assert.False(t, ent.HasData)
	assert.Error(t, ent.Err)
	assert.False(t, ent.InFlight)
}

func TestQuery_BackgroundFailureKeepsStaleData(t *testing.T) {
	c := newTestClient(t, swrcache.Options{})
	ctx := context.Background()
	opts := swrcache.QueryOptions{StaleTime: 20 * time.Millisecond, TTL: time.Minute, Retries: -1}

	var calls1 atomic.Int32
	_, err := c.Query(ctx, "users", countingFetcher("v1", &calls1), opts)
	require.NoError(t, err)
	before := c.GetEntry("users")
	require.NotNil(t, before)

	time.Sleep(40 * time.Millisecond)

	failures := &eventRecorder{}
	defer c.Subscribe(swrcache.EventError, failures.handler)()

	var calls2 atomic.Int32
	boom := errors.New("boom")
	data, err := c.Query(ctx, "users", failingFetcher(boom, &calls2), opts)
	require.NoError(t, err, "caller who received stale data never sees the background failure")
	assert.Equal(t, "v1", data)

	require.Eventually(t, func() bool {
		ent := c.GetEntry("users")
		return ent != nil && ent.Err != nil
	}, waitTimeout, waitTick)

	ent := c.GetEntry("users")
	assert.True(t, ent.HasData)
	assert.Equal(t, "v1", ent.Data, "previous data survives the failure")
	assert.True(t, ent.StaleAt.Equal(before.StaleAt), "previous staleAt is preserved")
	assert.True(t, ent.Expiry.Equal(before.Expiry), "previous expiry is preserved")

	infos := failures.all()
	require.Len(t, infos, 1)
	info := infos[0].(swrcache.ErrorInfo[string])
	assert.ErrorIs(t, info.Err, boom)
	require.NotNil(t, info.Stale)
	assert.Equal(t, "v1", *info.Stale)
}

func TestQuery_ExpiredEntryForcesBlockingFetch(t *testing.T) {
	c := newTestClient(t, swrcache.Options{})
	ctx := context.Background()
	opts := swrcache.QueryOptions{StaleTime: 10 * time.Millisecond, TTL: 20 * time.Millisecond}

	var calls1 atomic.Int32
	_, err := c.Query(ctx, "users", countingFetcher("v1", &calls1), opts)
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond) // past ttl

	// The expired entry is still visible until something removes it.
	require.NotNil(t, c.GetEntry("users"))

	var calls2 atomic.Int32
	data, err := c.Query(ctx, "users", countingFetcher("v2", &calls2), opts)
	require.NoError(t, err)
	assert.Equal(t, "v2", data, "expired data cannot be served, caller waits for the fetch")
}

func TestQuery_IndependentKeysFetchConcurrently(t *testing.T) {
	c := newTestClient(t, swrcache.Options{})
	ctx := context.Background()

	releaseA := make(chan struct{})
	fetcherA := func(ctx context.Context) (string, error) {
		<-releaseA
		return "a", nil
	}

	go func() {
		_, _ = c.Query(ctx, "a", fetcherA)
	}()
	require.Eventually(t, func() bool {
		ent := c.GetEntry("a")
		return ent != nil && ent.InFlight
	}, waitTimeout, waitTick)

	// A blocked fetch on "a" does not serialize "b".
	var callsB atomic.Int32
	data, err := c.Query(ctx, "b", countingFetcher("b", &callsB))
	require.NoError(t, err)
	assert.Equal(t, "b", data)
	close(releaseA)
}

func TestPrefetch_SwallowsFailures(t *testing.T) {
	c := newTestClient(t, swrcache.Options{})

	failures := &eventRecorder{}
	defer c.Subscribe(swrcache.EventError, failures.handler)()

	var calls atomic.Int32
	c.Prefetch(context.Background(), "users", failingFetcher(errors.New("boom"), &calls),
		swrcache.QueryOptions{Retries: -1})

	require.Eventually(t, func() bool { return failures.count() == 1 }, waitTimeout, waitTick)
	assert.Equal(t, int32(1), calls.Load())
}

func TestQuery_DisposedClientRejects(t *testing.T) {
	c := swrcache.New[string](swrcache.Options{GCInterval: -1})
	c.Dispose()
	c.Dispose() // idempotent

	var calls atomic.Int32
	_, err := c.Query(context.Background(), "users", countingFetcher("v1", &calls))
	assert.ErrorIs(t, err, swrcache.ErrClientDisposed)
	assert.Equal(t, int32(0), calls.Load())
}

func TestPrefetch_WarmsCache(t *testing.T) {
	c := newTestClient(t, swrcache.Options{})

	var calls atomic.Int32
	c.Prefetch(context.Background(), "users", countingFetcher("v1", &calls))

	require.Eventually(t, func() bool {
		ent := c.GetEntry("users")
		return ent != nil && ent.HasData && ent.Data == "v1"
	}, waitTimeout, waitTick)
}
