// Package rag wires chunking, embedding, and the vector index into the
// retrieval engine: documents go in as chunked, embedded records and come
// back out as scored chunks with an assembled prompt context.
package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/lentra-ai/lentra/internal/chunk"
	"github.com/lentra-ai/lentra/internal/config"
	"github.com/lentra-ai/lentra/internal/embed"
	"github.com/lentra-ai/lentra/internal/errors"
	"github.com/lentra-ai/lentra/internal/store"
)

// DefaultCollection receives documents indexed without an explicit
// collection.
const DefaultCollection = "default"

// charsPerToken approximates tokens from characters when budgeting context.
const charsPerToken = 4

// RetrievedChunk is one scored retrieval hit.
type RetrievedChunk struct {
	Content  string         `json:"content"`
	Score    float64        `json:"score"`
	Source   string         `json:"source"`
	Metadata map[string]any `json:"metadata"`
}

// RetrievalResult is the full answer to a retrieval query: the scored chunks
// plus an assembled context string ready for prompt injection.
type RetrievalResult struct {
	Query     string           `json:"query"`
	Chunks    []RetrievedChunk `json:"chunks"`
	Context   string           `json:"context"`
	LatencyMS float64          `json:"latency_ms"`
}

// IndexResult reports what indexing one document produced.
type IndexResult struct {
	DocumentID string `json:"document_id"`
	Source     string `json:"source"`
	Collection string `json:"collection"`
	Chunks     int    `json:"chunks"`
}

// Engine is the retrieval engine. Construction is cheap; the index and
// embedder are built lazily on first use so commands that never touch
// retrieval pay nothing. Safe for concurrent use after initialization.
type Engine struct {
	cfg *config.Config

	initMu      sync.Mutex
	initialized bool

	chunker  *chunk.Chunker
	embedder embed.Embedder
	index    *store.Index
}

// New creates an uninitialized engine from configuration.
func New(cfg *config.Config) *Engine {
	return &Engine{cfg: cfg}
}

// Initialize opens the index and builds the embedder. It is idempotent and
// called implicitly by every operation.
func (e *Engine) Initialize(ctx context.Context) error {
	e.initMu.Lock()
	defer e.initMu.Unlock()

	if e.initialized {
		return nil
	}

	e.chunker = chunk.New(chunk.Options{
		Size:     e.cfg.RAG.ChunkSize,
		Overlap:  e.cfg.RAG.ChunkOverlap,
		Strategy: chunk.Strategy(e.cfg.RAG.ChunkStrategy),
	})

	e.embedder = embed.NewFromConfig(ctx, e.cfg.Embeddings)

	idx, err := store.Open(e.cfg.Index.Path, e.cfg.Index.Backend)
	if err != nil {
		return errors.NewRAGError(errors.OpInitialize, "open vector index", err)
	}
	e.index = idx

	e.initialized = true
	slog.Info("retrieval engine initialized",
		slog.String("embedder", e.embedder.ModelName()),
		slog.String("index", e.cfg.Index.Path))
	return nil
}

// IndexDocument chunks, embeds, and stores one document, then snapshots the
// index. The document id is a content fingerprint, so re-indexing identical
// content produces the same id.
func (e *Engine) IndexDocument(ctx context.Context, content, filename, collection string, metadata map[string]any) (*IndexResult, error) {
	if err := e.Initialize(ctx); err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, errors.NewRAGError(errors.OpIndex, "document is empty", nil).
			WithDetail("source", filename)
	}
	if collection == "" {
		collection = DefaultCollection
	}

	docID := DocumentID(filename, content)

	base := map[string]any{
		"document_id": docID,
		"source":      filename,
		"collection":  collection,
		"indexed_at":  time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range metadata {
		if _, reserved := base[k]; !reserved {
			base[k] = v
		}
	}

	chunks := e.chunker.Chunk(content, base)
	if len(chunks) == 0 {
		return nil, errors.NewRAGError(errors.OpIndex, "document produced no chunks", nil).
			WithDetail("source", filename)
	}

	texts := make([]string, len(chunks))
	metas := make([]map[string]any, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Content
		ch.Metadata["content"] = ch.Content
		metas[i] = ch.Metadata
	}

	vectors, err := e.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, errors.WrapRAG(errors.OpIndex, err)
	}

	if _, err := e.index.Add(vectors, metas); err != nil {
		return nil, err
	}
	if err := e.index.Save(); err != nil {
		return nil, err
	}

	slog.Info("document indexed",
		slog.String("document_id", docID),
		slog.String("source", filename),
		slog.String("collection", collection),
		slog.Int("chunks", len(chunks)))

	return &IndexResult{
		DocumentID: docID,
		Source:     filename,
		Collection: collection,
		Chunks:     len(chunks),
	}, nil
}

// Retrieve embeds the query, searches the index, and assembles a context
// string from the hits. Zero topK and maxTokens fall back to configuration.
// An empty index yields an empty result, not an error.
func (e *Engine) Retrieve(ctx context.Context, query string, topK int, collection string, threshold float64, maxTokens int) (*RetrievalResult, error) {
	if err := e.Initialize(ctx); err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return nil, errors.NewRAGError(errors.OpRetrieve, "query is empty", nil)
	}
	if topK <= 0 {
		topK = e.cfg.RAG.TopK
	}
	if maxTokens <= 0 {
		maxTokens = e.cfg.RAG.MaxContextTokens
	}

	start := time.Now()

	queryVec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, errors.WrapRAG(errors.OpRetrieve, err)
	}

	hits, err := e.index.Search(queryVec, topK, collection, threshold)
	if err != nil {
		return nil, err
	}

	chunks := make([]RetrievedChunk, 0, len(hits))
	for _, hit := range hits {
		content, _ := hit.Metadata["content"].(string)
		source, _ := hit.Metadata["source"].(string)
		chunks = append(chunks, RetrievedChunk{
			Content:  content,
			Score:    hit.Score,
			Source:   source,
			Metadata: hit.Metadata,
		})
	}

	result := &RetrievalResult{
		Query:     query,
		Chunks:    chunks,
		Context:   assembleContext(chunks, maxTokens),
		LatencyMS: float64(time.Since(start).Microseconds()) / 1000.0,
	}

	slog.Debug("retrieval complete",
		slog.Int("hits", len(chunks)),
		slog.Float64("latency_ms", result.LatencyMS))

	return result, nil
}

// assembleContext concatenates chunks as source-tagged blocks under a token
// budget. Chunks are included whole or not at all; assembly stops at the
// first chunk that would overflow the budget, so the context is always a
// prefix of the ranked hits.
func assembleContext(chunks []RetrievedChunk, maxTokens int) string {
	budget := maxTokens * charsPerToken

	var parts []string
	used := 0
	for i, ch := range chunks {
		block := fmt.Sprintf("[Source %d: %s]\n%s", i+1, ch.Source, ch.Content)
		cost := len(block)
		if len(parts) > 0 {
			cost += 2 // joining blank line
		}
		if used+cost > budget {
			break
		}
		parts = append(parts, block)
		used += cost
	}

	return strings.Join(parts, "\n\n")
}

// DeleteDocument removes a document's chunks from retrieval (soft delete)
// and snapshots the index. Returns the number of chunks affected.
func (e *Engine) DeleteDocument(ctx context.Context, documentID string) (int, error) {
	if err := e.Initialize(ctx); err != nil {
		return 0, err
	}

	deleted := e.index.DeleteDocument(documentID)
	if deleted == 0 {
		return 0, nil
	}
	if err := e.index.Save(); err != nil {
		return deleted, err
	}
	return deleted, nil
}

// ClearCollection soft-deletes every document in a collection and snapshots
// the index. Returns the number of documents removed.
func (e *Engine) ClearCollection(ctx context.Context, collection string) (int, error) {
	if err := e.Initialize(ctx); err != nil {
		return 0, err
	}

	removed := e.index.ClearCollection(collection)
	if removed == 0 {
		return 0, nil
	}
	if err := e.index.Save(); err != nil {
		return removed, err
	}
	return removed, nil
}

// Rebuild compacts the index, dropping soft-deleted records for good.
func (e *Engine) Rebuild(ctx context.Context) (int, error) {
	if err := e.Initialize(ctx); err != nil {
		return 0, err
	}

	removed := e.index.Rebuild()
	if err := e.index.Save(); err != nil {
		return removed, err
	}
	return removed, nil
}

// ListCollections returns collection summaries.
func (e *Engine) ListCollections(ctx context.Context) ([]store.CollectionInfo, error) {
	if err := e.Initialize(ctx); err != nil {
		return nil, err
	}
	return e.index.Collections(), nil
}

// CollectionInfo returns one collection's document and chunk counts. The
// boolean reports whether the collection exists (has active records).
func (e *Engine) CollectionInfo(ctx context.Context, name string) (store.CollectionInfo, bool, error) {
	if err := e.Initialize(ctx); err != nil {
		return store.CollectionInfo{}, false, err
	}
	info, ok := e.index.Collection(name)
	return info, ok, nil
}

// ListDocuments returns document summaries, optionally scoped to one
// collection.
func (e *Engine) ListDocuments(ctx context.Context, collection string) ([]store.DocumentInfo, error) {
	if err := e.Initialize(ctx); err != nil {
		return nil, err
	}
	return e.index.Documents(collection), nil
}

// Stats reports index statistics.
func (e *Engine) Stats(ctx context.Context) (store.Stats, error) {
	if err := e.Initialize(ctx); err != nil {
		return store.Stats{}, err
	}
	return e.index.Stats(), nil
}

// Embedder exposes the engine's embedder for components that score against
// the same vector space, such as semantic evaluation.
func (e *Engine) Embedder(ctx context.Context) (embed.Embedder, error) {
	if err := e.Initialize(ctx); err != nil {
		return nil, err
	}
	return e.embedder, nil
}

// Close snapshots the index and releases resources. Safe to call on an
// engine that never initialized.
func (e *Engine) Close() error {
	e.initMu.Lock()
	defer e.initMu.Unlock()

	if !e.initialized {
		return nil
	}

	var firstErr error
	if err := e.index.Save(); err != nil {
		firstErr = err
	}
	if err := e.index.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := e.embedder.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	e.initialized = false
	return firstErr
}

// DocumentID fingerprints a document from its filename, length, and leading
// content. Identical inputs always map to the same id.
func DocumentID(filename, content string) string {
	prefix := content
	if len(prefix) > 512 {
		prefix = prefix[:512]
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%s", filename, len(content), prefix)))
	return hex.EncodeToString(sum[:])[:16]
}
