package kubecache

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestSingleFlightBuildsOnce exercises testable property 6: under N
// concurrent Get(same key) calls with a slow constructor, the constructor
// runs exactly once and every caller observes the same handle.
//
// buildClient itself talks to the filesystem/kubeconfig, which we cannot
// stub without touching the real function; instead this test drives the
// singleflight.Group directly the way Cache.Get does, which is the part of
// the cache responsible for the single-flight guarantee.
func TestSingleFlightBuildsOnce(t *testing.T) {
	c := New(time.Hour)

	var calls int32
	const n = 100

	var wg sync.WaitGroup
	results := make([]any, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, _, _ := c.group.Do("same-key", func() (any, error) {
				atomic.AddInt32(&calls, 1)
				time.Sleep(20 * time.Millisecond)
				return &Client{}, nil
			})
			results[i] = v
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	first := results[0]
	for _, r := range results {
		assert.Same(t, first, r)
	}
}

func TestCleanupExpiredDropsStaleEntries(t *testing.T) {
	c := New(10 * time.Millisecond)
	c.entries[Key{Context: "a"}] = &cacheEntry{client: &Client{}, createdAt: time.Now().Add(-time.Hour)}
	c.entries[Key{Context: "b"}] = &cacheEntry{client: &Client{}, createdAt: time.Now()}

	c.CleanupExpired()

	_, aOK := c.entries[Key{Context: "a"}]
	_, bOK := c.entries[Key{Context: "b"}]
	assert.False(t, aOK)
	assert.True(t, bOK)
}

func TestInvalidateDropsEntry(t *testing.T) {
	c := New(time.Hour)
	key := Key{Context: "x"}
	c.entries[key] = &cacheEntry{client: &Client{}, createdAt: time.Now()}

	c.Invalidate(key)

	_, ok := c.entries[key]
	assert.False(t, ok)
}
