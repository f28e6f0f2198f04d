package eval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lentra-ai/lentra/internal/embed"
)

func TestEnsemble_CombinesStrategies(t *testing.T) {
	e := NewEnsembleStrategy(embed.NewStaticEmbedder(256), nil, "", nil)
	prompt := "What is the capital of France?"

	scores, err := e.Evaluate(context.Background(), prompt, []ModelResponse{
		{ModelID: "good", Text: "The capital of France is Paris. It has been the capital for centuries.", LatencyMS: 900},
		{ModelID: "bad", Text: "Penguins live in Antarctica and eat fish.", LatencyMS: 900},
	}, "")
	require.NoError(t, err)
	require.Len(t, scores, 2)

	assert.Equal(t, "good", Winner(scores))
	assert.Contains(t, scores[0].Reasoning, "Heuristic: ")
	assert.Contains(t, scores[0].Reasoning, "Semantic: ")
	assert.NotContains(t, scores[0].Reasoning, "Judge: ")
	assert.Equal(t, false, scores[0].Metadata["used_llm_judge"])
}

func TestEnsemble_WithJudge(t *testing.T) {
	gen := &stubGenerator{reply: `{"relevance": 0.9, "clarity": 0.9, "hallucination_risk": 0.1, "reasoning": "good"}`}
	e := NewEnsembleStrategy(embed.NewStaticEmbedder(128), gen, "judge-model", nil)

	scores, err := e.Evaluate(context.Background(), "prompt here", []ModelResponse{
		{ModelID: "m", Text: "A relevant prompt answer here.", LatencyMS: 900},
	}, "")
	require.NoError(t, err)

	assert.Contains(t, scores[0].Reasoning, "Judge: ")
	assert.Equal(t, true, scores[0].Metadata["used_llm_judge"])
	assert.Greater(t, gen.calls.Load(), int64(0))
}

func TestEnsemble_DefaultWeights(t *testing.T) {
	without := NewEnsembleStrategy(embed.NewStaticEmbedder(64), nil, "", nil)
	assert.Equal(t, map[string]float64{"heuristic": 0.4, "embedding": 0.6}, without.weights)

	with := NewEnsembleStrategy(embed.NewStaticEmbedder(64), &stubGenerator{}, "j", nil)
	assert.Equal(t, map[string]float64{"heuristic": 0.2, "embedding": 0.3, "llm_judge": 0.5}, with.weights)
}

func TestEnsemble_RenormalizesAbsentStrategies(t *testing.T) {
	// Judge weight dominates the configured weights but the judge never
	// runs, so averages renormalize over heuristic and embedding alone.
	e := NewEnsembleStrategy(embed.NewStaticEmbedder(64), nil, "",
		map[string]float64{"heuristic": 0.1, "embedding": 0.1, "llm_judge": 0.8})

	one := 1.0
	half := 0.5
	avg := e.weightedAverage(
		component{&one, "heuristic"},
		component{&half, "embedding"},
		component{nil, "llm_judge"},
	)
	assert.InDelta(t, 0.75, avg, 1e-9)
}

func TestEnsemble_AllAbsentIsNeutral(t *testing.T) {
	e := NewEnsembleStrategy(embed.NewStaticEmbedder(64), nil, "", nil)
	assert.Equal(t, 0.5, e.weightedAverage(component{nil, "llm_judge"}))
}

func TestEnsemble_SingleStrategyIdentity(t *testing.T) {
	// With all weight on one present strategy, renormalization returns that
	// strategy's value exactly.
	e := NewEnsembleStrategy(embed.NewStaticEmbedder(64), nil, "",
		map[string]float64{"heuristic": 1.0, "embedding": 0.0})

	v := 0.731
	avg := e.weightedAverage(
		component{&v, "heuristic"},
		component{nil, "llm_judge"},
	)
	assert.Equal(t, v, avg)
}

func TestEnsemble_EmptyResponses(t *testing.T) {
	e := NewEnsembleStrategy(embed.NewStaticEmbedder(64), nil, "", nil)

	scores, err := e.Evaluate(context.Background(), "p", nil, "")
	require.NoError(t, err)
	assert.Empty(t, scores)
}
