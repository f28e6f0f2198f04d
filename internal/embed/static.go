package embed

import (
	"context"
	"hash/fnv"
	"strings"
)

// StaticEmbedder produces deterministic vectors from token and bigram hashes.
// It requires no external service, which makes it the fallback when Ollama is
// unreachable and the workhorse for tests. Identical text always yields the
// identical vector, and texts sharing vocabulary land near each other, so
// cosine comparisons remain meaningful.
type StaticEmbedder struct {
	dims int
	name string
}

// NewStaticEmbedder creates a StaticEmbedder with the given dimensionality.
// Non-positive dims default to 384.
func NewStaticEmbedder(dims int) *StaticEmbedder {
	if dims <= 0 {
		dims = 384
	}
	return &StaticEmbedder{dims: dims, name: "static-hash"}
}

func (s *StaticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return s.embedOne(text), nil
}

func (s *StaticEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, t := range texts {
		vecs[i] = s.embedOne(t)
	}
	return vecs, nil
}

func (s *StaticEmbedder) embedOne(text string) []float32 {
	vec := make([]float32, s.dims)

	tokens := strings.Fields(strings.ToLower(text))
	if len(tokens) == 0 {
		return vec
	}

	for _, tok := range tokens {
		h := hashToken(tok)
		vec[h%uint32(s.dims)] += 1.0
		// Character trigrams soften exact-token matching.
		for i := 0; i+3 <= len(tok); i++ {
			g := hashToken(tok[i : i+3])
			vec[g%uint32(s.dims)] += 0.5
		}
	}
	// Bigrams capture a little word order.
	for i := 0; i+1 < len(tokens); i++ {
		h := hashToken(tokens[i] + " " + tokens[i+1])
		vec[h%uint32(s.dims)] += 0.75
	}

	return normalizeVector(vec)
}

func hashToken(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}

func (s *StaticEmbedder) Dimensions() int { return s.dims }

func (s *StaticEmbedder) ModelName() string { return s.name }

func (s *StaticEmbedder) Available(context.Context) bool { return true }

func (s *StaticEmbedder) Close() error { return nil }
