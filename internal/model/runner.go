// Package model runs text generation against local model servers and fans a
// prompt out to several models concurrently.
package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lentra-ai/lentra/internal/errors"
)

// Params are per-request generation knobs.
type Params struct {
	Temperature float64
	MaxTokens   int
	TopP        float64
}

// Generation is one model's completed response.
type Generation struct {
	ModelID   string  `json:"model_id"`
	Text      string  `json:"text"`
	LatencyMS float64 `json:"latency_ms"`
	Tokens    int     `json:"tokens"`
}

// Generator produces a completion from a named model.
type Generator interface {
	Generate(ctx context.Context, modelID, prompt string, params Params) (*Generation, error)
}

const generateTimeout = 5 * time.Minute

// OllamaRunner generates text via a local Ollama server.
type OllamaRunner struct {
	host   string
	client *http.Client
}

// NewOllamaRunner creates a runner against host, defaulting to the local
// Ollama endpoint when empty.
func NewOllamaRunner(host string) *OllamaRunner {
	if host == "" {
		host = "http://localhost:11434"
	}
	return &OllamaRunner{
		host:   strings.TrimRight(host, "/"),
		client: &http.Client{Timeout: generateTimeout},
	}
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Response  string `json:"response"`
	EvalCount int    `json:"eval_count"`
	Done      bool   `json:"done"`
}

func (r *OllamaRunner) Generate(ctx context.Context, modelID, prompt string, params Params) (*Generation, error) {
	options := map[string]any{}
	if params.Temperature > 0 {
		options["temperature"] = params.Temperature
	}
	if params.MaxTokens > 0 {
		options["num_predict"] = params.MaxTokens
	}
	if params.TopP > 0 {
		options["top_p"] = params.TopP
	}

	body, err := json.Marshal(generateRequest{
		Model:   modelID,
		Prompt:  prompt,
		Stream:  false,
		Options: options,
	})
	if err != nil {
		return nil, errors.NewBackendError("ollama", "encode generate request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, errors.NewBackendError("ollama", "build generate request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, errors.NewBackendError("ollama", fmt.Sprintf("generate call for %s failed", modelID), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.NewBackendError("ollama",
			fmt.Sprintf("generate for %s returned %d: %s", modelID, resp.StatusCode, strings.TrimSpace(string(snippet))), nil)
	}

	var parsed generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, errors.NewBackendError("ollama", "decode generate response", err)
	}

	return &Generation{
		ModelID:   modelID,
		Text:      parsed.Response,
		LatencyMS: float64(time.Since(start).Microseconds()) / 1000.0,
		Tokens:    parsed.EvalCount,
	}, nil
}

// RunAll fans prompt out to every model concurrently. A failing model yields
// a nil slot in the result rather than failing the batch; only when every
// model fails does RunAll return an error.
func RunAll(ctx context.Context, gen Generator, modelIDs []string, prompt string, params Params) ([]*Generation, error) {
	if len(modelIDs) == 0 {
		return nil, errors.NewBackendError("runner", "no models requested", nil)
	}

	results := make([]*Generation, len(modelIDs))
	g, ctx := errgroup.WithContext(ctx)

	for i, modelID := range modelIDs {
		g.Go(func() error {
			out, err := gen.Generate(ctx, modelID, prompt, params)
			if err != nil {
				slog.Warn("model generation failed",
					slog.String("model", modelID),
					slog.Any("error", err))
				return nil
			}
			results[i] = out
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	succeeded := 0
	for _, r := range results {
		if r != nil {
			succeeded++
		}
	}
	if succeeded == 0 {
		return nil, errors.NewBackendError("runner",
			fmt.Sprintf("all %d models failed", len(modelIDs)), nil)
	}

	slog.Info("generation fan-out complete",
		slog.Int("requested", len(modelIDs)),
		slog.Int("succeeded", succeeded))

	return results, nil
}
