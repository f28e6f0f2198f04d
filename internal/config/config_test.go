package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DefaultTopK, cfg.RAG.TopK)
	assert.Equal(t, DefaultChunkSize, cfg.RAG.ChunkSize)
	assert.Equal(t, "recursive", cfg.RAG.ChunkStrategy)
	assert.Equal(t, "flat", cfg.Index.Backend)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultEmbeddingModel, cfg.Embeddings.Model)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lentra.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rag:
  top_k: 8
  chunk_size: 256
  chunk_overlap: 32
embeddings:
  provider: static
  model: test-model
index:
  backend: hnsw
  path: /tmp/lentra-index
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.RAG.TopK)
	assert.Equal(t, 256, cfg.RAG.ChunkSize)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
	assert.Equal(t, "hnsw", cfg.Index.Backend)
	// Untouched knobs keep defaults.
	assert.Equal(t, "recursive", cfg.RAG.ChunkStrategy)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("LENTRA_TOP_K", "11")
	t.Setenv("LENTRA_EVALUATION_MODE", "ensemble")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 11, cfg.RAG.TopK)
	assert.Equal(t, "ensemble", cfg.Evaluation.Mode)
}

func TestLoad_MalformedYAMLFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lentra.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rag: [not a map"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"chunk size too small", func(c *Config) { c.RAG.ChunkSize = 10 }},
		{"chunk size too large", func(c *Config) { c.RAG.ChunkSize = 5000 }},
		{"overlap >= size", func(c *Config) { c.RAG.ChunkOverlap = c.RAG.ChunkSize }},
		{"bad strategy", func(c *Config) { c.RAG.ChunkStrategy = "semantic" }},
		{"bad provider", func(c *Config) { c.Embeddings.Provider = "openai" }},
		{"bad mode", func(c *Config) { c.Evaluation.Mode = "vibes" }},
		{"bad backend", func(c *Config) { c.Index.Backend = "faiss" }},
		{"negative weight", func(c *Config) { c.Evaluation.Weights = map[string]float64{"heuristic": -1} }},
		{"empty index path", func(c *Config) { c.Index.Path = "  " }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lentra.yaml")

	cfg := Default()
	cfg.RAG.TopK = 7
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.RAG.TopK)
}
