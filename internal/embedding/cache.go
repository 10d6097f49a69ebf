package embedding

import (
	"container/list"
	"context"
	"sync"
)

// lruCache is an LRU cache for embeddings keyed by text.
type lruCache struct {
	capacity int
	cache    map[string]*list.Element
	lru      *list.List
	mu       sync.Mutex
}

type cacheEntry struct {
	key   string
	value []float32
}

func newLRUCache(capacity int) *lruCache {
	return &lruCache{
		capacity: capacity,
		cache:    make(map[string]*list.Element),
		lru:      list.New(),
	}
}

func (c *lruCache) get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.cache[key]; ok {
		c.lru.MoveToFront(elem)
		return elem.Value.(*cacheEntry).value, true
	}
	return nil, false
}

func (c *lruCache) set(key string, value []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.cache[key]; ok {
		c.lru.MoveToFront(elem)
		elem.Value.(*cacheEntry).value = value
		return
	}
	elem := c.lru.PushFront(&cacheEntry{key: key, value: value})
	c.cache[key] = elem
	if c.lru.Len() > c.capacity {
		if oldest := c.lru.Back(); oldest != nil {
			c.lru.Remove(oldest)
			delete(c.cache, oldest.Value.(*cacheEntry).key)
		}
	}
}

// CachedProvider wraps a Provider with an LRU cache keyed by text, so repeated
// text (common when re-indexing unchanged documents) is embedded once.
type CachedProvider struct {
	inner Provider
	cache *lruCache
}

// WithCache wraps p with an LRU cache of the given capacity.
// A capacity <= 0 returns p unwrapped.
func WithCache(p Provider, capacity int) Provider {
	if capacity <= 0 {
		return p
	}
	return &CachedProvider{inner: p, cache: newLRUCache(capacity)}
}

// Embed returns the cached embedding for text if present, otherwise delegates.
func (c *CachedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if emb, ok := c.cache.get(text); ok {
		return emb, nil
	}
	emb, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.set(text, emb)
	return emb, nil
}

// EmbedBatch embeds each text, serving cache hits without backend calls.
func (c *CachedProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := c.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Dimensions returns the wrapped provider's dimension.
func (c *CachedProvider) Dimensions() int {
	return c.inner.Dimensions()
}

// Close closes the wrapped provider.
func (c *CachedProvider) Close() error {
	return c.inner.Close()
}
