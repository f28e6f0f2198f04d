package rag

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lentra-ai/lentra/internal/config"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()

	cfg := config.Default()
	cfg.Index.Path = t.TempDir()
	cfg.Embeddings.Provider = "static"
	cfg.Embeddings.Dimensions = 128
	cfg.RAG.ChunkSize = 200
	cfg.RAG.ChunkOverlap = 20

	e := New(cfg)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestEngine_IndexAndRetrieve(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	doc := "Go's garbage collector is a concurrent mark-and-sweep collector. " +
		"It runs alongside the program with very short stop-the-world pauses. " +
		"Channels in Go provide typed communication between goroutines."

	res, err := e.IndexDocument(ctx, doc, "go-notes.md", "", nil)
	require.NoError(t, err)
	assert.Len(t, res.DocumentID, 16)
	assert.Equal(t, DefaultCollection, res.Collection)
	assert.Greater(t, res.Chunks, 0)

	out, err := e.Retrieve(ctx, "how does garbage collection work in Go", 3, "", 0, 0)
	require.NoError(t, err)
	require.NotEmpty(t, out.Chunks)
	assert.Contains(t, out.Context, "[Source 1: go-notes.md]")
	assert.Contains(t, out.Chunks[0].Content, "collector")
	assert.GreaterOrEqual(t, out.LatencyMS, 0.0)
}

func TestEngine_EmptyIndexRetrieval(t *testing.T) {
	e := testEngine(t)

	out, err := e.Retrieve(context.Background(), "anything at all", 5, "", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, out.Chunks)
	assert.Empty(t, out.Context)
}

func TestEngine_EmptyInputsRejected(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	_, err := e.IndexDocument(ctx, "   ", "blank.txt", "", nil)
	require.Error(t, err)

	_, err = e.Retrieve(ctx, "", 5, "", 0, 0)
	require.Error(t, err)
}

func TestEngine_DocumentIDDeterministic(t *testing.T) {
	a := DocumentID("f.txt", "same content")
	b := DocumentID("f.txt", "same content")
	c := DocumentID("g.txt", "same content")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 16)
}

func TestEngine_DeleteDocument(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	res, err := e.IndexDocument(ctx, "The capital of France is Paris. It sits on the Seine.", "fr.txt", "", nil)
	require.NoError(t, err)

	deleted, err := e.DeleteDocument(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, res.Chunks, deleted)

	out, err := e.Retrieve(ctx, "capital of France", 5, "", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, out.Chunks)

	// Unknown ids delete nothing.
	deleted, err = e.DeleteDocument(ctx, "no-such-doc")
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestEngine_CollectionScoping(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	_, err := e.IndexDocument(ctx, "Kubernetes schedules pods onto nodes.", "k8s.md", "infra", nil)
	require.NoError(t, err)
	_, err = e.IndexDocument(ctx, "Sourdough needs a mature starter and patience.", "bread.md", "cooking", nil)
	require.NoError(t, err)

	out, err := e.Retrieve(ctx, "pods and nodes scheduling", 5, "infra", 0, 0)
	require.NoError(t, err)
	require.NotEmpty(t, out.Chunks)
	for _, ch := range out.Chunks {
		assert.Equal(t, "infra", ch.Metadata["collection"])
	}

	cols, err := e.ListCollections(ctx)
	require.NoError(t, err)
	assert.Len(t, cols, 2)

	// Clearing reports documents removed, not chunks.
	cleared, err := e.ClearCollection(ctx, "cooking")
	require.NoError(t, err)
	assert.Equal(t, 1, cleared)

	docs, err := e.ListDocuments(ctx, "cooking")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestEngine_ContextBudget(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	long := strings.Repeat("Observability begins with structured logs. ", 30)
	_, err := e.IndexDocument(ctx, long, "obs.md", "", nil)
	require.NoError(t, err)

	// A tiny budget (10 tokens ~= 40 chars) admits no chunk whole.
	out, err := e.Retrieve(ctx, "structured logs", 5, "", 0, 10)
	require.NoError(t, err)
	require.NotEmpty(t, out.Chunks)
	assert.Empty(t, out.Context)

	// A generous budget includes source-tagged blocks.
	out, err = e.Retrieve(ctx, "structured logs", 5, "", 0, 2000)
	require.NoError(t, err)
	assert.Contains(t, out.Context, "[Source 1: obs.md]")
}

func TestEngine_PersistenceAcrossRestarts(t *testing.T) {
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Index.Path = dir
	cfg.Embeddings.Provider = "static"
	cfg.Embeddings.Dimensions = 64

	first := New(cfg)
	ctx := context.Background()
	_, err := first.IndexDocument(ctx, "Raft elects a leader per term.", "raft.md", "", nil)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second := New(cfg)
	defer second.Close()
	out, err := second.Retrieve(ctx, "leader election", 3, "", 0, 0)
	require.NoError(t, err)
	require.NotEmpty(t, out.Chunks)
	assert.Equal(t, "raft.md", out.Chunks[0].Source)
}

func TestAssembleContext_StopsAtFirstOverflow(t *testing.T) {
	chunks := []RetrievedChunk{
		{Content: "short top hit", Source: "a.txt"},
		{Content: strings.Repeat("x", 400), Source: "b.txt"},
		{Content: "tail chunk", Source: "c.txt"},
	}

	// Budget of 30 chars' worth of tokens admits the first block; the
	// second overflows, and assembly stops there even though the third
	// would fit. The context is always a prefix of the ranked hits.
	got := assembleContext(chunks, 30)
	assert.Equal(t, "[Source 1: a.txt]\nshort top hit", got)
	assert.NotContains(t, got, "b.txt")
	assert.NotContains(t, got, "c.txt")

	// A budget the top hit itself cannot fit yields no context at all.
	assert.Empty(t, assembleContext(chunks[1:], 25))
}
