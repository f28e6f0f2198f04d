package eval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lentra-ai/lentra/internal/embed"
	"github.com/lentra-ai/lentra/internal/model"
)

// EnsembleStrategy blends heuristic, embedding, and optionally judge scores
// into one. Each component score is a weighted average over the strategies
// that produced it; a strategy that did not run is excluded and the
// remaining weights renormalize, so a judge-less ensemble still uses its
// full weight budget.
type EnsembleStrategy struct {
	heuristic *HeuristicStrategy
	embedding *EmbeddingStrategy
	judge     *JudgeStrategy
	weights   map[string]float64
}

// NewEnsembleStrategy builds the ensemble. The judge is included only when
// generator is non-nil and judgeModel is set. Nil weights select defaults:
// heuristic 0.4 / embedding 0.6 without a judge, 0.2 / 0.3 / judge 0.5 with
// one.
func NewEnsembleStrategy(embedder embed.Embedder, generator model.Generator, judgeModel string, weights map[string]float64) *EnsembleStrategy {
	e := &EnsembleStrategy{
		heuristic: NewHeuristicStrategy(nil),
		embedding: NewEmbeddingStrategy(embedder),
	}

	useJudge := generator != nil && judgeModel != ""
	if useJudge {
		e.judge = NewJudgeStrategy(generator, judgeModel)
	}

	if len(weights) > 0 {
		e.weights = weights
	} else if useJudge {
		e.weights = map[string]float64{"heuristic": 0.2, "embedding": 0.3, "llm_judge": 0.5}
	} else {
		e.weights = map[string]float64{"heuristic": 0.4, "embedding": 0.6}
	}

	return e
}

func (e *EnsembleStrategy) Name() string { return string(ModeEnsemble) }

func (e *EnsembleStrategy) Evaluate(ctx context.Context, prompt string, responses []ModelResponse, evalContext string) ([]Score, error) {
	if len(responses) == 0 {
		return []Score{}, nil
	}

	heuristicScores, err := e.heuristic.Evaluate(ctx, prompt, responses, evalContext)
	if err != nil {
		return nil, err
	}
	embeddingScores, err := e.embedding.Evaluate(ctx, prompt, responses, evalContext)
	if err != nil {
		return nil, err
	}

	var judgeScores []Score
	if e.judge != nil {
		judgeScores, err = e.judge.Evaluate(ctx, prompt, responses, evalContext)
		if err != nil {
			return nil, err
		}
	}

	combined := make([]Score, 0, len(responses))
	for i, resp := range responses {
		h := &heuristicScores[i]
		em := &embeddingScores[i]
		var jg *Score
		if judgeScores != nil {
			jg = &judgeScores[i]
		}

		relevance := e.weightedAverage(
			component{value(h, func(s *Score) float64 { return s.Relevance }), "heuristic"},
			component{value(em, func(s *Score) float64 { return s.Relevance }), "embedding"},
			component{value(jg, func(s *Score) float64 { return s.Relevance }), "llm_judge"},
		)
		clarity := e.weightedAverage(
			component{value(h, func(s *Score) float64 { return s.Clarity }), "heuristic"},
			component{value(em, func(s *Score) float64 { return s.Clarity }), "embedding"},
			component{value(jg, func(s *Score) float64 { return s.Clarity }), "llm_judge"},
		)
		risk := e.weightedAverage(
			component{value(h, func(s *Score) float64 { return s.HallucinationRisk }), "heuristic"},
			component{value(em, func(s *Score) float64 { return s.HallucinationRisk }), "embedding"},
			component{value(jg, func(s *Score) float64 { return s.HallucinationRisk }), "llm_judge"},
		)

		final := clamp01(0.45*relevance + 0.30*clarity + 0.25*(1.0-risk))

		combined = append(combined, Score{
			ModelID:           resp.ModelID,
			Relevance:         round4(relevance),
			Clarity:           round4(clarity),
			HallucinationRisk: round4(risk),
			FinalScore:        round4(final),
			Reasoning:         ensembleReasoning(h, em, jg, relevance, clarity, risk),
			Metadata: map[string]any{
				"strategy":        string(ModeEnsemble),
				"weights":         e.weights,
				"used_llm_judge":  e.judge != nil,
				"heuristic_score": h.FinalScore,
				"embedding_score": em.FinalScore,
				"response_length": len(resp.Text),
			},
		})
	}

	slog.Debug("ensemble evaluation complete",
		slog.Int("responses", len(responses)),
		slog.Bool("used_llm_judge", e.judge != nil))

	return combined, nil
}

type component struct {
	value    *float64
	strategy string
}

func value(s *Score, get func(*Score) float64) *float64 {
	if s == nil {
		return nil
	}
	v := get(s)
	return &v
}

// weightedAverage averages the present components by their strategy weights,
// renormalizing over whatever actually ran. All absent means neutral.
func (e *EnsembleStrategy) weightedAverage(components ...component) float64 {
	totalWeight := 0.0
	weightedSum := 0.0

	for _, c := range components {
		if c.value == nil {
			continue
		}
		w := e.weights[c.strategy]
		weightedSum += *c.value * w
		totalWeight += w
	}

	if totalWeight == 0 {
		return 0.5
	}
	return weightedSum / totalWeight
}

func ensembleReasoning(h, em, jg *Score, relevance, clarity, risk float64) string {
	var parts []string

	switch {
	case relevance >= 0.75:
		parts = append(parts, "Strong relevance")
	case relevance >= 0.5:
		parts = append(parts, "Moderate relevance")
	default:
		parts = append(parts, "Limited relevance")
	}

	switch {
	case clarity >= 0.75:
		parts = append(parts, "well-structured")
	case clarity >= 0.5:
		parts = append(parts, "reasonably clear")
	default:
		parts = append(parts, "could be clearer")
	}

	switch {
	case risk <= 0.25:
		parts = append(parts, "low hallucination risk")
	case risk <= 0.5:
		parts = append(parts, "some uncertainty")
	default:
		parts = append(parts, "potential hallucination concerns")
	}

	var insights []string
	if h != nil {
		insights = append(insights, fmt.Sprintf("Heuristic: %.2f", h.FinalScore))
	}
	if em != nil {
		insights = append(insights, fmt.Sprintf("Semantic: %.2f", em.FinalScore))
	}
	if jg != nil {
		insights = append(insights, fmt.Sprintf("Judge: %.2f", jg.FinalScore))
	}

	result := strings.Join(parts, "; ") + "."
	if len(insights) > 0 {
		result += " (" + strings.Join(insights, ", ") + ")"
	}
	return result
}
