package cache

import (
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ui-recognizer/internal/classify"
	"ui-recognizer/internal/feature"
)

func newTestCache(maxEntries, limitMB int) *Cache {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return New(maxEntries, limitMB, log)
}

func someVectors(n int) []feature.Vector {
	return make([]feature.Vector, n)
}

func someElements(n int) []classify.Element {
	return make([]classify.Element, n)
}

func TestCacheHitAndMiss(t *testing.T) {
	c := newTestCache(10, 64)

	_, ok := c.GetResults("absent")
	assert.False(t, ok)

	c.PutResults("present", someElements(3))
	got, ok := c.GetResults("present")
	require.True(t, ok)
	assert.Len(t, got, 3)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Results.Hits)
	assert.Equal(t, int64(1), stats.Results.Misses)
	assert.InDelta(t, 0.5, stats.Results.HitRate, 1e-9)
}

func TestCacheNamespacesAreIndependent(t *testing.T) {
	c := newTestCache(10, 64)

	c.PutFeatures("key", someVectors(2))
	_, ok := c.GetResults("key")
	assert.False(t, ok, "feature entry must not satisfy a result lookup")

	vectors, ok := c.GetFeatures("key")
	require.True(t, ok)
	assert.Len(t, vectors, 2)
}

func TestCacheEntryCountEviction(t *testing.T) {
	c := newTestCache(3, 64)

	for i := 0; i < 5; i++ {
		c.PutResults(fmt.Sprintf("key-%d", i), someElements(1))
	}

	stats := c.Stats()
	assert.Equal(t, 3, stats.Results.Entries)
	assert.Equal(t, int64(2), stats.Results.Evictions)

	// The oldest entries are gone, the newest survive.
	_, ok := c.GetResults("key-0")
	assert.False(t, ok)
	_, ok = c.GetResults("key-4")
	assert.True(t, ok)
}

func TestCacheMemoryBudgetEviction(t *testing.T) {
	// 3 MB total, 1 MB per namespace. Each of these feature entries is
	// roughly 640 KB, so a third insert must evict the oldest first.
	c := newTestCache(100, 3)
	big := someVectors(1024)

	c.PutFeatures("a", big)
	c.PutFeatures("b", big)
	c.PutFeatures("c", big)

	stats := c.Stats()
	assert.LessOrEqual(t, stats.Features.Bytes, c.limit/3)
	assert.Greater(t, stats.Features.Evictions, int64(0))

	_, ok := c.GetFeatures("c")
	assert.True(t, ok, "newest entry must survive budget eviction")
}

func TestCacheOversizedValueIsRejected(t *testing.T) {
	c := newTestCache(100, 3)
	huge := someVectors(10000) // over the per-namespace budget on its own

	c.PutFeatures("huge", huge)
	_, ok := c.GetFeatures("huge")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Stats().Features.Entries)
}

func TestCacheOversizedValueLeavesResidentsAlone(t *testing.T) {
	c := newTestCache(100, 3)

	c.PutFeatures("small-a", someVectors(100))
	c.PutFeatures("small-b", someVectors(100))
	c.PutFeatures("huge", someVectors(10000))

	stats := c.Stats()
	assert.Equal(t, 2, stats.Features.Entries)
	assert.Equal(t, int64(0), stats.Features.Evictions,
		"a rejected value must not evict anything")
	_, ok := c.GetFeatures("small-a")
	assert.True(t, ok)
	_, ok = c.GetFeatures("small-b")
	assert.True(t, ok)
}

func TestCacheClear(t *testing.T) {
	c := newTestCache(10, 64)
	c.PutResults("a", someElements(1))
	c.PutFeatures("b", someVectors(1))

	c.Clear()

	assert.Equal(t, int64(0), c.TotalBytes())
	assert.Equal(t, 0, c.Stats().Results.Entries)
	assert.Equal(t, 0, c.Stats().Features.Entries)
}

func TestCacheOptimizeBelowTriggerIsNoop(t *testing.T) {
	c := newTestCache(100, 64)
	for i := 0; i < 10; i++ {
		c.PutResults(fmt.Sprintf("key-%d", i), someElements(4))
	}
	before := c.Stats().Results.Entries

	c.Optimize()
	assert.Equal(t, before, c.Stats().Results.Entries)
}

func TestNamespaceEvictHalf(t *testing.T) {
	c := newTestCache(100, 64)
	for i := 0; i < 4; i++ {
		c.PutResults(fmt.Sprintf("key-%d", i), someElements(1))
	}

	c.results.evictHalf()
	assert.Equal(t, 2, c.results.lru.Len())

	// The survivors are the most recently added.
	_, ok := c.GetResults("key-3")
	assert.True(t, ok)
	_, ok = c.GetResults("key-0")
	assert.False(t, ok)
}

func TestCacheKeyFormat(t *testing.T) {
	assert.Equal(t, "00000000000000ff", Key(0xff))
	assert.Len(t, Key(0xdeadbeef), 16)
}
