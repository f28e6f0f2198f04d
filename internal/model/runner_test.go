package model

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedGenerator fails for model ids present in failing.
type scriptedGenerator struct {
	failing map[string]bool
}

func (s *scriptedGenerator) Generate(_ context.Context, modelID, prompt string, _ Params) (*Generation, error) {
	if s.failing[modelID] {
		return nil, fmt.Errorf("model %s unavailable", modelID)
	}
	return &Generation{ModelID: modelID, Text: "reply to: " + prompt, LatencyMS: 10, Tokens: 4}, nil
}

func TestRunAll_AllSucceed(t *testing.T) {
	gen := &scriptedGenerator{}

	results, err := RunAll(context.Background(), gen, []string{"a", "b", "c"}, "hello", Params{})
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Result order matches request order.
	for i, id := range []string{"a", "b", "c"} {
		require.NotNil(t, results[i])
		assert.Equal(t, id, results[i].ModelID)
	}
}

func TestRunAll_PartialFailure(t *testing.T) {
	gen := &scriptedGenerator{failing: map[string]bool{"b": true}}

	results, err := RunAll(context.Background(), gen, []string{"a", "b", "c"}, "hello", Params{})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.NotNil(t, results[0])
	assert.Nil(t, results[1])
	assert.NotNil(t, results[2])
}

func TestRunAll_AllFail(t *testing.T) {
	gen := &scriptedGenerator{failing: map[string]bool{"a": true, "b": true}}

	_, err := RunAll(context.Background(), gen, []string{"a", "b"}, "hello", Params{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 2 models failed")
}

func TestRunAll_NoModels(t *testing.T) {
	_, err := RunAll(context.Background(), &scriptedGenerator{}, nil, "hello", Params{})
	require.Error(t, err)
}

func TestOllamaRunner_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)

		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3.1:8b", req.Model)
		assert.False(t, req.Stream)
		assert.Equal(t, 0.2, req.Options["temperature"])

		json.NewEncoder(w).Encode(generateResponse{
			Response:  "Paris.",
			EvalCount: 3,
			Done:      true,
		})
	}))
	defer srv.Close()

	r := NewOllamaRunner(srv.URL)
	out, err := r.Generate(context.Background(), "llama3.1:8b", "Capital of France?", Params{Temperature: 0.2, MaxTokens: 100})
	require.NoError(t, err)

	assert.Equal(t, "Paris.", out.Text)
	assert.Equal(t, 3, out.Tokens)
	assert.Greater(t, out.LatencyMS, 0.0)
}

func TestOllamaRunner_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := NewOllamaRunner(srv.URL)
	_, err := r.Generate(context.Background(), "m", "p", Params{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}
