// Package embed provides text embedding for retrieval and semantic
// evaluation. An Ollama-backed embedder is the production path; a
// deterministic static embedder serves tests and offline use. Both are
// wrapped by a caching layer keyed on model and text.
package embed

import (
	"context"
	"math"
)

// Embedder converts text into dense vectors. Implementations must be safe
// for concurrent use and must return unit-normalized vectors of a fixed
// dimensionality.
type Embedder interface {
	// Embed returns the vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions reports the vector dimensionality.
	Dimensions() int

	// ModelName reports the underlying model identifier.
	ModelName() string

	// Available reports whether the backend can serve requests right now.
	Available(ctx context.Context) bool

	// Close releases resources held by the embedder.
	Close() error
}

// modelDimensions maps known embedding models to their output size.
var modelDimensions = map[string]int{
	"all-MiniLM-L6-v2":  384,
	"all-mpnet-base-v2": 768,
	"nomic-embed-text":  768,
	"mxbai-embed-large": 1024,
}

// DimensionsFor returns the known dimensionality of a model, defaulting to
// 384 for unrecognized names.
func DimensionsFor(model string) int {
	if d, ok := modelDimensions[model]; ok {
		return d
	}
	return 384
}

// normalizeVector scales v to unit length in place and returns it. A zero
// vector is returned unchanged.
func normalizeVector(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := 1.0 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}
