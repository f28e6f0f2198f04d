// Package config loads and validates Lentra configuration.
//
// Configuration is resolved in three layers, later layers winning:
//  1. built-in defaults
//  2. a YAML config file (lentra.yaml)
//  3. LENTRA_* environment variables
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Default knob values. Chunk sizes follow the common 512/50 RAG split.
const (
	DefaultTopK          = 5
	DefaultChunkSize     = 512
	DefaultChunkOverlap  = 50
	DefaultChunkStrategy = "recursive"
	DefaultMaxTokens     = 2000

	DefaultEmbeddingModel    = "all-MiniLM-L6-v2"
	DefaultEmbeddingProvider = "ollama"
	DefaultOllamaHost        = "http://localhost:11434"
	DefaultCacheSize         = 1000
	DefaultBatchSize         = 32

	DefaultEvaluationMode = "heuristic"
	DefaultJudgeModel     = "llama3.1:8b"

	DefaultVectorBackend = "flat"
)

// Config is the complete Lentra configuration.
type Config struct {
	RAG        RAGConfig        `yaml:"rag"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
	Index      IndexConfig      `yaml:"index"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// RAGConfig configures chunking and retrieval.
type RAGConfig struct {
	// TopK is the default number of chunks to retrieve.
	TopK int `yaml:"top_k"`

	// ChunkSize is the target chunk size in characters.
	ChunkSize int `yaml:"chunk_size"`

	// ChunkOverlap is the overlap between consecutive chunks in characters.
	// Must be smaller than ChunkSize.
	ChunkOverlap int `yaml:"chunk_overlap"`

	// ChunkStrategy selects the splitter: fixed, sentence, or recursive.
	ChunkStrategy string `yaml:"chunk_strategy"`

	// MaxContextTokens bounds assembled context; the character budget is
	// MaxContextTokens * 4.
	MaxContextTokens int `yaml:"max_context_tokens"`
}

// EmbeddingsConfig configures the embedding backend.
type EmbeddingsConfig struct {
	// Provider selects the backend: ollama or static.
	Provider string `yaml:"provider"`

	// Model is the embedding model name.
	Model string `yaml:"model"`

	// Dimensions overrides dimension auto-detection (0 = auto).
	Dimensions int `yaml:"dimensions"`

	// OllamaHost is the Ollama API endpoint.
	OllamaHost string `yaml:"ollama_host"`

	// BatchSize for batch embedding requests.
	BatchSize int `yaml:"batch_size"`

	// CacheSize bounds the embedding cache (entries).
	CacheSize int `yaml:"cache_size"`
}

// EvaluationConfig configures response scoring.
type EvaluationConfig struct {
	// Mode is the default strategy: heuristic, embedding_similarity,
	// llm_judge, ensemble, or human_vote.
	Mode string `yaml:"mode"`

	// JudgeModel is the model id used for llm_judge mode.
	JudgeModel string `yaml:"judge_model"`

	// UseLLMJudge includes the judge in ensemble mode.
	UseLLMJudge bool `yaml:"use_llm_judge"`

	// Weights are per-strategy ensemble weights (heuristic, embedding,
	// llm_judge). Empty map means mode-appropriate defaults.
	Weights map[string]float64 `yaml:"weights"`
}

// IndexConfig configures vector index storage.
type IndexConfig struct {
	// Path is the directory holding the index file pair.
	Path string `yaml:"path"`

	// Backend selects the nearest-neighbor backend: flat (exact, default)
	// or hnsw (approximate, for large indexes).
	Backend string `yaml:"backend"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		RAG: RAGConfig{
			TopK:             DefaultTopK,
			ChunkSize:        DefaultChunkSize,
			ChunkOverlap:     DefaultChunkOverlap,
			ChunkStrategy:    DefaultChunkStrategy,
			MaxContextTokens: DefaultMaxTokens,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   DefaultEmbeddingProvider,
			Model:      DefaultEmbeddingModel,
			OllamaHost: DefaultOllamaHost,
			BatchSize:  DefaultBatchSize,
			CacheSize:  DefaultCacheSize,
		},
		Evaluation: EvaluationConfig{
			Mode:       DefaultEvaluationMode,
			JudgeModel: DefaultJudgeModel,
		},
		Index: IndexConfig{
			Path:    filepath.Join("data", "index"),
			Backend: DefaultVectorBackend,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from path (optional), applies environment
// overrides, validates, and returns the result. A missing file is not an
// error; a malformed one is.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Defaults plus env only.
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies LENTRA_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("LENTRA_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RAG.TopK = n
		}
	}
	if v := os.Getenv("LENTRA_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RAG.ChunkSize = n
		}
	}
	if v := os.Getenv("LENTRA_CHUNK_OVERLAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RAG.ChunkOverlap = n
		}
	}
	if v := os.Getenv("LENTRA_CHUNK_STRATEGY"); v != "" {
		c.RAG.ChunkStrategy = v
	}
	if v := os.Getenv("LENTRA_EMBEDDING_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("LENTRA_EMBEDDING_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("LENTRA_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("LENTRA_EVALUATION_MODE"); v != "" {
		c.Evaluation.Mode = v
	}
	if v := os.Getenv("LENTRA_JUDGE_MODEL"); v != "" {
		c.Evaluation.JudgeModel = v
	}
	if v := os.Getenv("LENTRA_INDEX_PATH"); v != "" {
		c.Index.Path = v
	}
	if v := os.Getenv("LENTRA_VECTOR_BACKEND"); v != "" {
		c.Index.Backend = v
	}
	if v := os.Getenv("LENTRA_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks ranges and enumerations, clamping where a clamp is safer
// than a failure.
func (c *Config) Validate() error {
	if c.RAG.TopK < 1 {
		c.RAG.TopK = DefaultTopK
	}
	if c.RAG.ChunkSize < 100 || c.RAG.ChunkSize > 2000 {
		return fmt.Errorf("config: chunk_size %d out of range [100, 2000]", c.RAG.ChunkSize)
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("config: chunk_overlap %d must be in [0, chunk_size)", c.RAG.ChunkOverlap)
	}
	if c.RAG.MaxContextTokens < 1 {
		c.RAG.MaxContextTokens = DefaultMaxTokens
	}

	switch c.RAG.ChunkStrategy {
	case "fixed", "sentence", "recursive":
	default:
		return fmt.Errorf("config: unknown chunk_strategy %q", c.RAG.ChunkStrategy)
	}

	switch c.Embeddings.Provider {
	case "ollama", "static":
	default:
		return fmt.Errorf("config: unknown embeddings provider %q", c.Embeddings.Provider)
	}
	if c.Embeddings.BatchSize < 1 {
		c.Embeddings.BatchSize = DefaultBatchSize
	}
	if c.Embeddings.CacheSize < 1 {
		c.Embeddings.CacheSize = DefaultCacheSize
	}

	switch c.Evaluation.Mode {
	case "heuristic", "embedding_similarity", "llm_judge", "ensemble", "human_vote":
	default:
		return fmt.Errorf("config: unknown evaluation mode %q", c.Evaluation.Mode)
	}
	for name, w := range c.Evaluation.Weights {
		if w < 0 {
			return fmt.Errorf("config: negative weight %f for strategy %q", w, name)
		}
	}

	switch c.Index.Backend {
	case "flat", "hnsw":
	default:
		return fmt.Errorf("config: unknown vector backend %q", c.Index.Backend)
	}
	if strings.TrimSpace(c.Index.Path) == "" {
		return fmt.Errorf("config: index path must not be empty")
	}

	return nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
