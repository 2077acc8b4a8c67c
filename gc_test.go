package swrcache_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swrcache"
)

func TestGC_CollectsExpiredUnwatchedEntries(t *testing.T) {
	c := newTestClient(t, swrcache.Options{})
	c.SetData("old", "x", swrcache.QueryOptions{TTL: 20 * time.Millisecond, StaleTime: 10 * time.Millisecond})
	c.SetData("fresh", "y")

	events := &eventRecorder{}
	defer c.Subscribe(swrcache.EventGC, events.handler)()

	time.Sleep(40 * time.Millisecond)

	collected := c.GC()
	assert.Equal(t, []string{"old"}, collected)
	assert.Nil(t, c.GetEntry("old"))
	assert.NotNil(t, c.GetEntry("fresh"))

	infos := events.all()
	require.Len(t, infos, 1)
	assert.Equal(t, []string{"old"}, infos[0].(swrcache.GCInfo).Keys)
}

func TestGC_SparesKeysWithActiveSuccessSubscriber(t *testing.T) {
	c := newTestClient(t, swrcache.Options{})
	c.SetData("watched", "x", swrcache.QueryOptions{TTL: 20 * time.Millisecond, StaleTime: 10 * time.Millisecond})

	unsub := c.SubscribeKey("watched", swrcache.EventSuccess, func(interface{}) {})
	time.Sleep(40 * time.Millisecond)

	assert.Empty(t, c.GC(), "a live success subscriber overrides expiry")
	assert.NotNil(t, c.GetEntry("watched"))

	unsub()
	assert.Equal(t, []string{"watched"}, c.GC())
	assert.Nil(t, c.GetEntry("watched"))
}

func TestGC_EmitsNothingWhenNothingCollected(t *testing.T) {
	c := newTestClient(t, swrcache.Options{})
	c.SetData("fresh", "y")

	events := &eventRecorder{}
	defer c.Subscribe(swrcache.EventGC, events.handler)()

	assert.Empty(t, c.GC())
	assert.Equal(t, 0, events.count())
}

func TestGC_RunsOnInterval(t *testing.T) {
	c := swrcache.New[string](swrcache.Options{GCInterval: 30 * time.Millisecond})
	t.Cleanup(c.Dispose)
	c.SetData("old", "x", swrcache.QueryOptions{TTL: 20 * time.Millisecond, StaleTime: 10 * time.Millisecond})

	require.Eventually(t, func() bool {
		return c.GetEntry("old") == nil
	}, waitTimeout, waitTick, "the background loop collects without a manual GC call")
}
