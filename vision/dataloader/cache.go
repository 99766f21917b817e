package dataloader

import (
	"container/list"
	"fmt"
	"sync"
)

// ImageCache is an LRU cache of preprocessed image tensors keyed by
// file path. Decoding and resizing dominate batch assembly time, so
// datasets that fit in the cache are decoded exactly once per run.
// The cache is safe for concurrent use and can be shared between
// loaders for different splits of the same dataset.
type ImageCache struct {
	mu      sync.Mutex
	entries map[string][]float32
	lru     *list.List
	lruMap  map[string]*list.Element
	maxSize int

	hits   int64
	misses int64
}

// NewImageCache creates a cache holding at most maxSize images. A
// maxSize of zero disables caching.
func NewImageCache(maxSize int) *ImageCache {
	return &ImageCache{
		entries: make(map[string][]float32),
		lru:     list.New(),
		lruMap:  make(map[string]*list.Element),
		maxSize: maxSize,
	}
}

// Get returns the cached pixels for a path, if present.
func (c *ImageCache) Get(path string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, ok := c.entries[path]
	if !ok {
		c.misses++
		return nil, false
	}
	c.lru.MoveToFront(c.lruMap[path])
	c.hits++
	return data, true
}

// Put stores preprocessed pixels for a path, evicting the least
// recently used entries when the cache is full.
func (c *ImageCache) Put(path string, data []float32) {
	if c.maxSize <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[path]; ok {
		c.lru.MoveToFront(c.lruMap[path])
		return
	}

	c.entries[path] = data
	c.lruMap[path] = c.lru.PushFront(path)
	for len(c.entries) > c.maxSize {
		oldest := c.lru.Back()
		key := oldest.Value.(string)
		c.lru.Remove(oldest)
		delete(c.lruMap, key)
		delete(c.entries, key)
	}
}

// Stats reports cache usage counters.
func (c *ImageCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CacheStats{
		Size:    len(c.entries),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats
}

// Clear drops all cached entries, keeping the counters.
func (c *ImageCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string][]float32)
	c.lru = list.New()
	c.lruMap = make(map[string]*list.Element)
}

// CacheStats holds cache usage counters.
type CacheStats struct {
	Size    int
	MaxSize int
	Hits    int64
	Misses  int64
	HitRate float64
}

func (s CacheStats) String() string {
	return fmt.Sprintf("cache %d/%d, hits %d, misses %d, hit rate %.1f%%",
		s.Size, s.MaxSize, s.Hits, s.Misses, s.HitRate*100)
}
