package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTestConfig produces a config pointing at temp storage with static
// embeddings so tests never touch a model server.
func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	cfg := fmt.Sprintf(`rag:
  top_k: 3
  chunk_size: 200
  chunk_overlap: 20
  chunk_strategy: recursive
embeddings:
  provider: static
  dimensions: 128
index:
  path: %s
logging:
  level: error
`, filepath.Join(dir, "index"))

	path := filepath.Join(dir, "lentra.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func runCLI(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()

	root := NewRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(append([]string{"--config", configPath}, args...))

	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestCLI_IndexQueryDeleteRoundTrip(t *testing.T) {
	configPath := writeTestConfig(t)
	docDir := t.TempDir()

	doc := filepath.Join(docDir, "gravity.md")
	require.NoError(t, os.WriteFile(doc,
		[]byte("Gravity bends spacetime. Massive objects curve the space around them."), 0o644))

	out, err := runCLI(t, configPath, "index", doc, "--collection", "physics")
	require.NoError(t, err)
	assert.Contains(t, out, "indexed "+doc)
	assert.Contains(t, out, "collection physics")

	out, err = runCLI(t, configPath, "query", "how does gravity bend spacetime", "--collection", "physics")
	require.NoError(t, err)
	assert.Contains(t, out, "gravity.md")

	out, err = runCLI(t, configPath, "documents")
	require.NoError(t, err)
	assert.Contains(t, out, "gravity.md")

	out, err = runCLI(t, configPath, "stats", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"active_records"`)

	out, err = runCLI(t, configPath, "collections", "physics")
	require.NoError(t, err)
	assert.Contains(t, out, "physics: 1 documents")

	_, err = runCLI(t, configPath, "collections", "astrology")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no collection named astrology")

	out, err = runCLI(t, configPath, "collections", "clear", "physics")
	require.NoError(t, err)
	assert.Contains(t, out, "cleared 1 documents from collection physics")

	out, err = runCLI(t, configPath, "query", "gravity")
	require.NoError(t, err)
	assert.Contains(t, out, "no matching chunks")
}

func TestCLI_QueryJSONOutput(t *testing.T) {
	configPath := writeTestConfig(t)

	out, err := runCLI(t, configPath, "query", "anything", "--json")
	require.NoError(t, err)

	var result struct {
		Query  string `json:"query"`
		Chunks []any  `json:"chunks"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "anything", result.Query)
	assert.Empty(t, result.Chunks)
}

func TestCLI_EvaluateFromFile(t *testing.T) {
	configPath := writeTestConfig(t)

	input := map[string]any{
		"prompt": "What is the capital of France?",
		"responses": []map[string]any{
			{"model_id": "good", "text": "The capital of France is Paris.", "latency_ms": 900},
			{"model_id": "bad", "text": "Cheese comes in many varieties.", "latency_ms": 900},
		},
	}
	data, err := json.Marshal(input)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "responses.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	out, err := runCLI(t, configPath, "evaluate", path, "--mode", "heuristic")
	require.NoError(t, err)
	assert.Contains(t, out, "winner: good")

	// Ballot mode emits anonymized options instead of scores.
	out, err = runCLI(t, configPath, "evaluate", path, "--mode", "human_vote")
	require.NoError(t, err)
	assert.Contains(t, out, `"ballot_id"`)
	assert.NotContains(t, out, "model_id")
}

func TestCLI_CompareRequiresTwoModels(t *testing.T) {
	configPath := writeTestConfig(t)

	_, err := runCLI(t, configPath, "compare", "hello", "--model", "only-one")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least two")
}

func TestCLI_InitWritesConfig(t *testing.T) {
	t.Chdir(t.TempDir())

	root := NewRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs([]string{"init"})
	require.NoError(t, root.ExecuteContext(context.Background()))
	assert.Contains(t, buf.String(), "wrote lentra.yaml")

	data, err := os.ReadFile("lentra.yaml")
	require.NoError(t, err)
	assert.Contains(t, string(data), "embeddings:")

	// A second init without --force refuses to clobber the file.
	root = NewRootCmd()
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs([]string{"init"})
	err = root.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestCLI_RebuildCommand(t *testing.T) {
	configPath := writeTestConfig(t)

	out, err := runCLI(t, configPath, "rebuild")
	require.NoError(t, err)
	assert.Contains(t, out, "rebuild complete")
}
