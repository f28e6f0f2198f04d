package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"
)

// CachedEmbedder wraps an Embedder with a bounded in-memory cache. Entries
// evict in insertion order (FIFO) once capacity is reached, which keeps
// eviction deterministic for repeated indexing runs. Keys hash both model
// name and text, so swapping models never serves stale vectors.
type CachedEmbedder struct {
	inner    Embedder
	capacity int

	mu    sync.Mutex
	cache map[string][]float32
	order []string

	hits   uint64
	misses uint64
}

// NewCachedEmbedder wraps inner with a cache of the given capacity.
// Non-positive capacity defaults to 1000.
func NewCachedEmbedder(inner Embedder, capacity int) *CachedEmbedder {
	if capacity <= 0 {
		capacity = 1000
	}
	return &CachedEmbedder{
		inner:    inner,
		capacity: capacity,
		cache:    make(map[string][]float32, capacity),
		order:    make([]string, 0, capacity),
	}
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch serves cache hits directly and issues a single batch call to
// the inner embedder for the misses, preserving input order in the result.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int

	c.mu.Lock()
	for i, text := range texts {
		key := c.key(text)
		if vec, ok := c.cache[key]; ok {
			results[i] = vec
			c.hits++
		} else {
			missTexts = append(missTexts, text)
			missIdx = append(missIdx, i)
			c.misses++
		}
	}
	c.mu.Unlock()

	if len(missTexts) == 0 {
		return results, nil
	}

	vecs, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	for j, vec := range vecs {
		results[missIdx[j]] = vec
		c.put(c.key(missTexts[j]), vec)
	}
	c.mu.Unlock()

	slog.Debug("embedding batch served",
		slog.Int("total", len(texts)),
		slog.Int("misses", len(missTexts)))

	return results, nil
}

// put inserts under lock, evicting the oldest entry when full.
func (c *CachedEmbedder) put(key string, vec []float32) {
	if _, exists := c.cache[key]; exists {
		return
	}
	if len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.cache, oldest)
	}
	c.cache[key] = vec
	c.order = append(c.order, key)
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(c.inner.ModelName() + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// Stats returns cumulative hit and miss counts plus the current entry count.
func (c *CachedEmbedder) Stats() (hits, misses uint64, size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses, len(c.cache)
}

// Clear drops all cached vectors.
func (c *CachedEmbedder) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string][]float32, c.capacity)
	c.order = c.order[:0]
}

func (c *CachedEmbedder) Dimensions() int { return c.inner.Dimensions() }

func (c *CachedEmbedder) ModelName() string { return c.inner.ModelName() }

func (c *CachedEmbedder) Available(ctx context.Context) bool { return c.inner.Available(ctx) }

func (c *CachedEmbedder) Close() error { return c.inner.Close() }
