/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package lrucache

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestCache(t *testing.T, maxEntries int, opts Options[string, int]) (*LRUCache[string, int], *PrometheusMetrics) {
	t.Helper()
	metrics := NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{Namespace: "test"})
	cache, err := NewWithOpts[string, int](maxEntries, metrics, opts)
	require.NoError(t, err)
	return cache, metrics
}

func TestNewWithOpts_InvalidArgs(t *testing.T) {
	_, err := New[string, int](-1, nil)
	require.Error(t, err)
	_, err = NewWithOpts[string, int](1, nil, Options[string, int]{DefaultTTL: -time.Second})
	require.Error(t, err)
}

func TestLRUCache_AddGetRemove(t *testing.T) {
	cache, metrics := newTestCache(t, 10, Options[string, int]{})

	_, found := cache.Get("10.0.0.1")
	require.False(t, found)

	cache.Add("10.0.0.1", 1)
	cache.Add("10.0.0.2", 2)
	cache.Add("10.0.0.1", 3)

	val, found := cache.Get("10.0.0.1")
	require.True(t, found)
	require.Equal(t, 3, val)
	require.Equal(t, 2, cache.Len())

	require.True(t, cache.Remove("10.0.0.2"))
	require.False(t, cache.Remove("10.0.0.2"))
	require.Equal(t, 1, cache.Len())

	require.Equal(t, 1.0, testutil.ToFloat64(metrics.HitsTotal))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.MissesTotal))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.EntriesAmount))
}

func TestLRUCache_Eviction(t *testing.T) {
	var evicted []string
	cache, metrics := newTestCache(t, 2, Options[string, int]{
		OnEvict: func(key string, _ int) { evicted = append(evicted, key) },
	})

	cache.Add("a", 1)
	cache.Add("b", 2)
	_, _ = cache.Get("a") // "b" becomes the least recently used
	cache.Add("c", 3)

	require.Equal(t, []string{"b"}, evicted)
	_, found := cache.Get("b")
	require.False(t, found)
	require.Equal(t, 2, cache.Len())
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.EvictionsTotal))
}

func TestLRUCache_Unbounded(t *testing.T) {
	cache, _ := newTestCache(t, 0, Options[string, int]{})
	for i := 0; i < 1000; i++ {
		cache.Add(strconv.Itoa(i), i)
	}
	require.Equal(t, 1000, cache.Len())
}

func TestLRUCache_Expiration(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	cache, metrics := newTestCache(t, 10, Options[string, int]{DefaultTTL: time.Minute, Clock: clock.Now})

	cache.Add("a", 1)
	cache.AddWithTTL("b", 2, 2*time.Minute)
	cache.AddWithTTL("c", 3, 0)
	cache.AddWithExpiration("d", 4, clock.now.Add(30*time.Second))

	clock.Advance(time.Minute)
	_, found := cache.Get("d")
	require.False(t, found)
	_, found = cache.Get("a")
	require.True(t, found, "entry must be alive exactly at its deadline")

	clock.Advance(time.Nanosecond)
	_, found = cache.Get("a")
	require.False(t, found)

	clock.Advance(time.Hour)
	require.Equal(t, 1, cache.RemoveExpired())
	require.Equal(t, 1, cache.Len())
	_, found = cache.Get("c")
	require.True(t, found)
	require.Equal(t, 3.0, testutil.ToFloat64(metrics.ExpirationsTotal))
}

func TestLRUCache_GetOrAdd(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	cache, _ := newTestCache(t, 10, Options[string, int]{Clock: clock.Now})

	calls := 0
	provider := func() int {
		calls++
		return calls
	}

	val, exists := cache.GetOrAddWithTTL("k", provider, time.Second)
	require.False(t, exists)
	require.Equal(t, 1, val)

	val, exists = cache.GetOrAdd("k", provider)
	require.True(t, exists)
	require.Equal(t, 1, val)

	clock.Advance(time.Second + time.Nanosecond)
	val, exists = cache.GetOrAdd("k", provider)
	require.False(t, exists)
	require.Equal(t, 2, val)
}

func TestLRUCache_RunPeriodicCleanup(t *testing.T) {
	cache, _ := newTestCache(t, 10, Options[string, int]{})
	cache.AddWithTTL("k", 1, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		cache.RunPeriodicCleanup(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return cache.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
