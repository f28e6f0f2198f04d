package embed

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticEmbedder_Deterministic(t *testing.T) {
	e := NewStaticEmbedder(128)
	ctx := context.Background()

	a, err := e.Embed(ctx, "the quick brown fox")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "the quick brown fox")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 128)
}

func TestStaticEmbedder_UnitNorm(t *testing.T) {
	e := NewStaticEmbedder(64)

	vec, err := e.Embed(context.Background(), "normalize me please")
	require.NoError(t, err)

	var sum float64
	for _, x := range vec {
		sum += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, sum, 1e-5)
}

func TestStaticEmbedder_SimilarTextsCloser(t *testing.T) {
	e := NewStaticEmbedder(256)
	ctx := context.Background()

	base, _ := e.Embed(ctx, "machine learning models need training data")
	near, _ := e.Embed(ctx, "training data helps machine learning models")
	far, _ := e.Embed(ctx, "the weather in lisbon is sunny today")

	assert.Greater(t, cosine(base, near), cosine(base, far))
}

func TestStaticEmbedder_EmptyText(t *testing.T) {
	e := NewStaticEmbedder(32)

	vec, err := e.Embed(context.Background(), "   ")
	require.NoError(t, err)
	require.Len(t, vec, 32)
	for _, x := range vec {
		assert.Zero(t, x)
	}
}

func TestNormalizeVector_ZeroVector(t *testing.T) {
	v := []float32{0, 0, 0}
	assert.Equal(t, []float32{0, 0, 0}, normalizeVector(v))
}

func TestDimensionsFor(t *testing.T) {
	assert.Equal(t, 384, DimensionsFor("all-MiniLM-L6-v2"))
	assert.Equal(t, 768, DimensionsFor("nomic-embed-text"))
	assert.Equal(t, 1024, DimensionsFor("mxbai-embed-large"))
	assert.Equal(t, 384, DimensionsFor("some-unknown-model"))
}

// countingEmbedder records batch calls for cache assertions.
type countingEmbedder struct {
	*StaticEmbedder
	calls  atomic.Int64
	embeds atomic.Int64
}

func newCountingEmbedder(dims int) *countingEmbedder {
	return &countingEmbedder{StaticEmbedder: NewStaticEmbedder(dims)}
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls.Add(1)
	c.embeds.Add(int64(len(texts)))
	return c.StaticEmbedder.EmbedBatch(ctx, texts)
}

func TestCachedEmbedder_HitsSkipBackend(t *testing.T) {
	inner := newCountingEmbedder(64)
	cached := NewCachedEmbedder(inner, 100)
	ctx := context.Background()

	// First call populates the cache.
	_, err := cached.EmbedBatch(ctx, []string{"alpha", "beta"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), inner.calls.Load())

	// Second call is served entirely from cache.
	_, err = cached.EmbedBatch(ctx, []string{"alpha", "beta"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), inner.calls.Load())

	hits, misses, size := cached.Stats()
	assert.Equal(t, uint64(2), hits)
	assert.Equal(t, uint64(2), misses)
	assert.Equal(t, 2, size)
}

func TestCachedEmbedder_PartialHitSingleBatchCall(t *testing.T) {
	inner := newCountingEmbedder(64)
	cached := NewCachedEmbedder(inner, 100)
	ctx := context.Background()

	_, err := cached.EmbedBatch(ctx, []string{"alpha"})
	require.NoError(t, err)

	// One cached, two new: exactly one more backend call carrying only the
	// misses, with input order preserved in the result.
	vecs, err := cached.EmbedBatch(ctx, []string{"beta", "alpha", "gamma"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), inner.calls.Load())
	assert.Equal(t, int64(3), inner.embeds.Load())

	direct, _ := inner.StaticEmbedder.Embed(ctx, "alpha")
	assert.Equal(t, direct, vecs[1])
}

func TestCachedEmbedder_FIFOEviction(t *testing.T) {
	inner := newCountingEmbedder(32)
	cached := NewCachedEmbedder(inner, 2)
	ctx := context.Background()

	_, err := cached.EmbedBatch(ctx, []string{"one", "two", "three"})
	require.NoError(t, err)

	_, _, size := cached.Stats()
	assert.Equal(t, 2, size)

	// "one" was evicted first; re-embedding it misses.
	before := inner.calls.Load()
	_, err = cached.Embed(ctx, "one")
	require.NoError(t, err)
	assert.Equal(t, before+1, inner.calls.Load())

	// "three" is still resident.
	before = inner.calls.Load()
	_, err = cached.Embed(ctx, "three")
	require.NoError(t, err)
	assert.Equal(t, before, inner.calls.Load())
}

func TestCachedEmbedder_Clear(t *testing.T) {
	cached := NewCachedEmbedder(NewStaticEmbedder(16), 10)

	_, err := cached.Embed(context.Background(), "ephemeral")
	require.NoError(t, err)
	cached.Clear()

	_, _, size := cached.Stats()
	assert.Zero(t, size)
}

func TestOllamaEmbedder_Batch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embed", r.URL.Path)

		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := embedResponse{Model: req.Model}
		for range req.Input {
			resp.Embeddings = append(resp.Embeddings, []float32{3, 4})
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(srv.URL, "nomic-embed-text")
	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)

	// The raw {3,4} vector comes back unit-normalized.
	assert.InDelta(t, 0.6, float64(vecs[0][0]), 1e-5)
	assert.InDelta(t, 0.8, float64(vecs[0][1]), 1e-5)

	// Dimensionality is locked to what the server actually returned.
	assert.Equal(t, 2, e.Dimensions())
}

func TestOllamaEmbedder_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(srv.URL, "missing-model")
	_, err := e.EmbedBatch(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestOllamaEmbedder_CountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{{1, 0}}})
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(srv.URL, "m")
	_, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	require.Error(t, err)
}

func TestOllamaEmbedder_Available(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		fmt.Fprint(w, `{"models":[{"name":"nomic-embed-text:latest"}]}`)
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(srv.URL, "nomic-embed-text")
	assert.True(t, e.Available(context.Background()))

	down := NewOllamaEmbedder("http://127.0.0.1:1", "nomic-embed-text")
	assert.False(t, down.Available(context.Background()))
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
