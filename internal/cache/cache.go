// Package cache provides a bounded in-memory cache for pyramids, feature
// vectors, and recognition results, keyed by frame content hashes.
package cache

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"ui-recognizer/internal/classify"
	"ui-recognizer/internal/feature"
	"ui-recognizer/internal/pyramid"
)

// defaultTTL is how long an entry stays valid after insertion.
const defaultTTL = time.Hour

// rough per-item byte estimates for values whose memory is Go-managed.
const (
	vectorBytes  = 640
	elementBytes = 256
)

type entry struct {
	value       any
	size        int64
	createdAt   time.Time
	lastAccess  time.Time
	accessCount int
}

// NamespaceStats reports one namespace's counters.
type NamespaceStats struct {
	Entries   int     `json:"entries"`
	Bytes     int64   `json:"bytes"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	HitRate   float64 `json:"hit_rate"`
}

// Stats reports the cache state across all namespaces.
type Stats struct {
	Pyramids   NamespaceStats `json:"pyramids"`
	Features   NamespaceStats `json:"features"`
	Results    NamespaceStats `json:"results"`
	TotalBytes int64          `json:"total_bytes"`
	LimitBytes int64          `json:"limit_bytes"`
	Uptime     time.Duration  `json:"uptime"`
}

// namespace is one LRU-managed slice of the cache with its own byte budget.
// closer, when set, releases resources held by evicted values.
type namespace struct {
	name      string
	lru       *lru.Cache[string, *entry]
	budget    int64
	bytes     int64
	hits      int64
	misses    int64
	evictions int64
	ttl       time.Duration
	closer    func(any)
}

func newNamespace(name string, maxEntries int, budget int64, ttl time.Duration, closer func(any)) *namespace {
	ns := &namespace{name: name, budget: budget, ttl: ttl, closer: closer}
	ns.lru, _ = lru.NewWithEvict(maxEntries, func(key string, e *entry) {
		ns.bytes -= e.size
		ns.evictions++
		if ns.closer != nil {
			ns.closer(e.value)
		}
	})
	return ns
}

func (ns *namespace) get(key string) (any, bool) {
	e, ok := ns.lru.Get(key)
	if !ok {
		ns.misses++
		return nil, false
	}
	if ns.ttl > 0 && time.Since(e.createdAt) > ns.ttl {
		ns.lru.Remove(key)
		ns.misses++
		return nil, false
	}
	e.lastAccess = time.Now()
	e.accessCount++
	ns.hits++
	return e.value, true
}

func (ns *namespace) put(key string, value any, size int64) {
	if size > ns.budget {
		// Oversized value, caching it would evict everything and still
		// not fit. Reject it without disturbing the resident entries.
		if ns.closer != nil {
			ns.closer(value)
		}
		return
	}
	// Evict before insert until the new entry fits the byte budget.
	for ns.bytes+size > ns.budget && ns.lru.Len() > 0 {
		ns.lru.RemoveOldest()
	}
	now := time.Now()
	ns.lru.Add(key, &entry{value: value, size: size, createdAt: now, lastAccess: now})
	ns.bytes += size
}

// evictHalf removes the oldest half of the namespace.
func (ns *namespace) evictHalf() {
	target := ns.lru.Len() / 2
	for i := 0; i < target; i++ {
		ns.lru.RemoveOldest()
	}
}

func (ns *namespace) stats() NamespaceStats {
	s := NamespaceStats{
		Entries:   ns.lru.Len(),
		Bytes:     ns.bytes,
		Hits:      ns.hits,
		Misses:    ns.misses,
		Evictions: ns.evictions,
	}
	if total := ns.hits + ns.misses; total > 0 {
		s.HitRate = float64(ns.hits) / float64(total)
	}
	return s
}

// Cache holds the three recognition namespaces under one byte limit.
// It is not safe for concurrent use; the recognizer serializes access.
type Cache struct {
	pyramids *namespace
	features *namespace
	results  *namespace
	limit    int64
	started  time.Time
	log      *logrus.Entry
}

// New creates a Cache with maxEntries slots per namespace and a total
// memory limit split evenly across the namespaces. Evicted pyramids have
// their image memory released.
func New(maxEntries int, memoryLimitMB int, log *logrus.Logger) *Cache {
	limit := int64(memoryLimitMB) * 1024 * 1024
	perNS := limit / 3
	closePyramid := func(v any) {
		if p, ok := v.(*pyramid.Pyramid); ok {
			p.Close()
		}
	}
	return &Cache{
		pyramids: newNamespace("pyramid", maxEntries, perNS, defaultTTL, closePyramid),
		features: newNamespace("feature", maxEntries, perNS, defaultTTL, nil),
		results:  newNamespace("result", maxEntries, perNS, defaultTTL, nil),
		limit:    limit,
		started:  time.Now(),
		log:      log.WithField("component", "cache"),
	}
}

// Key formats a content hash into a cache key.
func Key(hash uint64) string {
	return fmt.Sprintf("%016x", hash)
}

// GetPyramid returns a cached pyramid. The pyramid remains owned by the
// cache; callers must not close it.
func (c *Cache) GetPyramid(key string) (*pyramid.Pyramid, bool) {
	v, ok := c.pyramids.get(key)
	if !ok {
		return nil, false
	}
	return v.(*pyramid.Pyramid), true
}

// PutPyramid stores a pyramid, transferring ownership to the cache.
func (c *Cache) PutPyramid(key string, p *pyramid.Pyramid) {
	c.pyramids.put(key, p, p.MemBytes())
}

// GetFeatures returns cached feature vectors.
func (c *Cache) GetFeatures(key string) ([]feature.Vector, bool) {
	v, ok := c.features.get(key)
	if !ok {
		return nil, false
	}
	return v.([]feature.Vector), true
}

// PutFeatures stores feature vectors.
func (c *Cache) PutFeatures(key string, vectors []feature.Vector) {
	c.features.put(key, vectors, int64(len(vectors))*vectorBytes)
}

// GetResults returns cached recognition results.
func (c *Cache) GetResults(key string) ([]classify.Element, bool) {
	v, ok := c.results.get(key)
	if !ok {
		return nil, false
	}
	return v.([]classify.Element), true
}

// PutResults stores recognition results.
func (c *Cache) PutResults(key string, elements []classify.Element) {
	c.results.put(key, elements, int64(len(elements))*elementBytes+64)
}

// TotalBytes reports the current memory footprint.
func (c *Cache) TotalBytes() int64 {
	return c.pyramids.bytes + c.features.bytes + c.results.bytes
}

// Optimize evicts the oldest half of every namespace when the cache is
// above 80 percent of its memory limit.
func (c *Cache) Optimize() {
	if c.TotalBytes() <= c.limit*8/10 {
		return
	}
	before := c.TotalBytes()
	c.pyramids.evictHalf()
	c.features.evictHalf()
	c.results.evictHalf()
	c.log.WithFields(logrus.Fields{
		"before_bytes": before,
		"after_bytes":  c.TotalBytes(),
	}).Debug("cache optimized")
}

// Clear empties all namespaces, releasing pyramid memory.
func (c *Cache) Clear() {
	c.pyramids.lru.Purge()
	c.features.lru.Purge()
	c.results.lru.Purge()
}

// Stats returns counters for every namespace.
func (c *Cache) Stats() Stats {
	return Stats{
		Pyramids:   c.pyramids.stats(),
		Features:   c.features.stats(),
		Results:    c.results.stats(),
		TotalBytes: c.TotalBytes(),
		LimitBytes: c.limit,
		Uptime:     time.Since(c.started),
	}
}
