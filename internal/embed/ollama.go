package embed

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

	"github.com/lentra-ai/lentra/internal/errors"
)

const (
	defaultOllamaHost = "http://localhost:11434"
	embedTimeout      = 120 * time.Second
	probeTimeout      = 2 * time.Second

	// maxBatchSize bounds a single /api/embed call. Larger batches are
	// split to keep request bodies and server memory reasonable.
	maxBatchSize = 64
)

// OllamaEmbedder calls a local Ollama server for embeddings. The vector
// dimensionality is detected from the first successful call and verified on
// subsequent ones.
type OllamaEmbedder struct {
	host   string
	model  string
	client *http.Client
	dims   int
}

// NewOllamaEmbedder creates an embedder for the given model against host.
// An empty host falls back to the default local endpoint.
func NewOllamaEmbedder(host, model string) *OllamaEmbedder {
	if host == "" {
		host = defaultOllamaHost
	}
	host = strings.TrimRight(host, "/")
	return &OllamaEmbedder{
		host:   host,
		model:  model,
		client: &http.Client{Timeout: embedTimeout},
		dims:   DimensionsFor(model),
	}
}

func (o *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := o.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (o *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := o.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (o *OllamaEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Model: o.model, Input: texts})
	if err != nil {
		return nil, errors.NewBackendError("ollama", "encode embed request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, errors.NewBackendError("ollama", "build embed request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, errors.NewBackendError("ollama", fmt.Sprintf("embed call to %s failed", o.host), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.NewBackendError("ollama",
			fmt.Sprintf("embed returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))), nil)
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, errors.NewBackendError("ollama", "decode embed response", err)
	}

	if len(parsed.Embeddings) != len(texts) {
		return nil, errors.NewBackendError("ollama",
			fmt.Sprintf("embed returned %d vectors for %d texts", len(parsed.Embeddings), len(texts)), nil)
	}

	for i, vec := range parsed.Embeddings {
		if len(vec) == 0 {
			return nil, errors.NewBackendError("ollama", fmt.Sprintf("empty vector at position %d", i), nil)
		}
		parsed.Embeddings[i] = normalizeVector(vec)
	}

	// Lock in the dimensionality seen on the wire.
	if got := len(parsed.Embeddings[0]); got != o.dims {
		slog.Debug("embedding dimensionality detected",
			slog.String("model", o.model),
			slog.Int("expected", o.dims),
			slog.Int("actual", got))
		o.dims = got
	}

	return parsed.Embeddings, nil
}

func (o *OllamaEmbedder) Dimensions() int { return o.dims }

func (o *OllamaEmbedder) ModelName() string { return o.model }

// Available probes /api/tags with a short timeout and reports whether the
// configured model is served.
func (o *OllamaEmbedder) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return false
	}
	for _, m := range tags.Models {
		if m.Name == o.model || strings.HasPrefix(m.Name, o.model+":") {
			return true
		}
	}
	// The server is up; the model may still be pullable on demand.
	return len(tags.Models) > 0
}

func (o *OllamaEmbedder) Close() error {
	o.client.CloseIdleConnections()
	return nil
}
