package embed

import (
	"context"
	"log/slog"

	"github.com/lentra-ai/lentra/internal/config"
)

// NewFromConfig builds the configured embedder wrapped in a cache. When the
// Ollama provider is selected but unreachable, it degrades to the static
// embedder so indexing and retrieval keep working offline.
func NewFromConfig(ctx context.Context, cfg config.EmbeddingsConfig) Embedder {
	var inner Embedder

	switch cfg.Provider {
	case "static":
		inner = NewStaticEmbedder(cfg.Dimensions)
	default:
		ollama := NewOllamaEmbedder(cfg.OllamaHost, cfg.Model)
		if ollama.Available(ctx) {
			inner = ollama
		} else {
			slog.Warn("ollama unavailable, falling back to static embeddings",
				slog.String("host", cfg.OllamaHost),
				slog.String("model", cfg.Model))
			dims := cfg.Dimensions
			if dims <= 0 {
				dims = DimensionsFor(cfg.Model)
			}
			inner = NewStaticEmbedder(dims)
		}
	}

	return NewCachedEmbedder(inner, cfg.CacheSize)
}
