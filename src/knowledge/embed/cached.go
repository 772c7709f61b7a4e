package embed

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"strconv"
	"sync"
	"time"
)

// CachedEmbedder wraps an Embedder with a TTL-bounded LRU of computed
// vectors. Re-embedding the same text is the hottest path during
// reconciliation sweeps and repeated retrievals.
type CachedEmbedder struct {
	inner Embedder

	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[string]*list.Element
	lru      *list.List
}

type cachedVector struct {
	key       string
	vec       []float32
	expiresAt time.Time
}

// NewCachedEmbedder caps the cache at capacity entries, each valid for ttl.
func NewCachedEmbedder(inner Embedder, capacity int, ttl time.Duration) *CachedEmbedder {
	if capacity <= 0 {
		capacity = 256
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedEmbedder{
		inner:    inner,
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*list.Element, capacity),
		lru:      list.New(),
	}
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := hashText(text)
	if vec, ok := c.get(key); ok {
		return vec, nil
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.set(key, vec)
	return vec, nil
}

// Len returns the number of live entries.
func (c *CachedEmbedder) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

func (c *CachedEmbedder) get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.items[key]
	if !ok {
		return nil, false
	}
	ent := elem.Value.(*cachedVector)
	if time.Now().After(ent.expiresAt) {
		c.lru.Remove(elem)
		delete(c.items, key)
		return nil, false
	}
	c.lru.MoveToFront(elem)
	return ent.vec, true
}

func (c *CachedEmbedder) set(key string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	expiresAt := time.Now().Add(c.ttl)
	if elem, ok := c.items[key]; ok {
		c.lru.MoveToFront(elem)
		ent := elem.Value.(*cachedVector)
		ent.vec = vec
		ent.expiresAt = expiresAt
		return
	}
	elem := c.lru.PushFront(&cachedVector{key: key, vec: vec, expiresAt: expiresAt})
	c.items[key] = elem
	if c.lru.Len() > c.capacity {
		oldest := c.lru.Back()
		if oldest != nil {
			c.lru.Remove(oldest)
			delete(c.items, oldest.Value.(*cachedVector).key)
		}
	}
}

func hashText(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// TryCacheEmbedder wraps the embedder when MEMORY_EMBED_CACHE_SIZE is set.
// MEMORY_EMBED_CACHE_TTL is in seconds and defaults to five minutes.
func TryCacheEmbedder(inner Embedder) Embedder {
	sizeStr := os.Getenv("MEMORY_EMBED_CACHE_SIZE")
	if sizeStr == "" {
		return inner
	}
	size, err := strconv.Atoi(sizeStr)
	if err != nil || size <= 0 {
		return inner
	}
	ttl := 300 * time.Second
	if ttlStr := os.Getenv("MEMORY_EMBED_CACHE_TTL"); ttlStr != "" {
		if sec, err := strconv.Atoi(ttlStr); err == nil && sec > 0 {
			ttl = time.Duration(sec) * time.Second
		}
	}
	return NewCachedEmbedder(inner, size, ttl)
}
