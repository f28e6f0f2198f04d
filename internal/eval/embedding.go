package eval

import (
	"context"
	"math"
	"strings"

	"github.com/lentra-ai/lentra/internal/embed"
	"github.com/lentra-ai/lentra/internal/errors"
)

// EmbeddingStrategy scores responses by semantic similarity: the response
// vector's cosine to the prompt (and, when present, to the retrieval
// context). One batch embeds the prompt, every response, and the context.
type EmbeddingStrategy struct {
	embedder embed.Embedder
}

// NewEmbeddingStrategy creates the strategy over the given embedder.
func NewEmbeddingStrategy(embedder embed.Embedder) *EmbeddingStrategy {
	return &EmbeddingStrategy{embedder: embedder}
}

func (s *EmbeddingStrategy) Name() string { return string(ModeEmbedding) }

func (s *EmbeddingStrategy) Evaluate(ctx context.Context, prompt string, responses []ModelResponse, evalContext string) ([]Score, error) {
	if len(responses) == 0 {
		return []Score{}, nil
	}

	texts := make([]string, 0, len(responses)+2)
	texts = append(texts, prompt)
	for _, r := range responses {
		texts = append(texts, r.Text)
	}
	hasContext := evalContext != ""
	if hasContext {
		texts = append(texts, evalContext)
	}

	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, errors.NewEvaluationError(s.Name(), "embed prompt and responses", err)
	}

	promptVec := vectors[0]
	responseVecs := vectors[1 : len(responses)+1]
	var contextVec []float32
	if hasContext {
		contextVec = vectors[len(vectors)-1]
	}

	scores := make([]Score, 0, len(responses))
	for i, resp := range responses {
		vec := responseVecs[i]

		relevance := cosineSimilarity01(promptVec, vec)
		if hasContext {
			relevance = 0.6*relevance + 0.4*cosineSimilarity01(contextVec, vec)
		}

		clarity := embeddingClarity(vec, resp.Text)
		risk := divergenceRisk(promptVec, vec, contextVec, resp.LatencyMS)

		final := clamp01(0.50*relevance + 0.30*clarity + 0.20*(1.0-risk))

		scores = append(scores, Score{
			ModelID:           resp.ModelID,
			Relevance:         round4(relevance),
			Clarity:           round4(clarity),
			HallucinationRisk: round4(risk),
			FinalScore:        round4(final),
			Reasoning:         embeddingReasoning(relevance, clarity, risk, hasContext),
			Metadata: map[string]any{
				"strategy":        string(ModeEmbedding),
				"embedding_model": s.embedder.ModelName(),
				"has_context":     hasContext,
				"response_length": len(resp.Text),
			},
		})
	}

	return scores, nil
}

// cosineSimilarity01 maps cosine similarity from [-1, 1] onto [0, 1].
// Mismatched or zero vectors score 0.
func cosineSimilarity01(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}

	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0.0
	}

	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return (sim + 1) / 2
}

// embeddingClarity blends the vector norm (semantic density proxy), a
// sentence-count band, and a small formatting bonus.
func embeddingClarity(vec []float32, text string) float64 {
	var sum float64
	for _, x := range vec {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	normScore := math.Min(1.0, norm/1.5)

	sentences := 0
	for _, s := range strings.Split(text, ".") {
		if strings.TrimSpace(s) != "" {
			sentences++
		}
	}

	var lengthScore float64
	switch {
	case sentences == 0:
		lengthScore = 0.1
	case sentences < 2:
		lengthScore = 0.5
	case sentences < 10:
		lengthScore = 1.0
	default:
		lengthScore = math.Max(0.5, 1.0-float64(sentences-10)*0.02)
	}

	formatBonus := 0.0
	if strings.Contains(text, "- ") || strings.Contains(text, "* ") {
		formatBonus += 0.05
	}
	if strings.Contains(text, ":") {
		formatBonus += 0.03
	}
	if hasNumberedList(text) {
		formatBonus += 0.05
	}

	return clamp01(0.4*normScore + 0.5*lengthScore + math.Min(0.1, formatBonus))
}

func hasNumberedList(text string) bool {
	if !strings.Contains(text, ". ") {
		return false
	}
	head := text
	if len(head) > 100 {
		head = head[:100]
	}
	for _, c := range head {
		if c >= '0' && c <= '9' {
			return true
		}
	}
	return false
}

// divergenceRisk treats semantic distance from the prompt (and context) as
// hallucination risk, lightly adjusted by latency extremes.
func divergenceRisk(promptVec, responseVec, contextVec []float32, latencyMS float64) float64 {
	divergence := 1.0 - cosineSimilarity01(promptVec, responseVec)
	if contextVec != nil {
		contextDivergence := 1.0 - cosineSimilarity01(contextVec, responseVec)
		divergence = 0.5*divergence + 0.5*contextDivergence
	}

	var latencyRisk float64
	switch {
	case latencyMS < 500:
		latencyRisk = 0.1
	case latencyMS > 30000:
		latencyRisk = 0.3
	default:
		latencyRisk = 0.0
	}

	return clamp01(0.8*divergence + 0.2*latencyRisk)
}

func embeddingReasoning(relevance, clarity, risk float64, hasContext bool) string {
	var parts []string

	switch {
	case relevance >= 0.8:
		parts = append(parts, "Highly semantically aligned with the query")
	case relevance >= 0.6:
		parts = append(parts, "Moderately relevant to the query")
	case relevance >= 0.4:
		parts = append(parts, "Somewhat related to the query")
	default:
		parts = append(parts, "Low semantic similarity to the query")
	}

	switch {
	case clarity >= 0.8:
		parts = append(parts, "well-structured response")
	case clarity >= 0.5:
		parts = append(parts, "reasonably clear response")
	default:
		parts = append(parts, "could be better structured")
	}

	switch {
	case risk >= 0.6:
		parts = append(parts, "with potential hallucination concerns")
	case risk >= 0.3:
		parts = append(parts, "with moderate confidence")
	default:
		parts = append(parts, "with low hallucination risk")
	}

	if hasContext {
		parts = append(parts, "(evaluated against retrieval context)")
	}

	return strings.Join(parts, "; ") + "."
}
