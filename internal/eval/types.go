// Package eval scores and compares model responses. Four scoring strategies
// share one result shape: a fast lexical heuristic, embedding cosine
// similarity, an LLM judge, and a weighted ensemble of the three. The
// Comparator dispatches between them and ranks the results.
package eval

import (
	"context"
	"math"
)

// Mode selects an evaluation strategy.
type Mode string

const (
	ModeHeuristic Mode = "heuristic"
	ModeEmbedding Mode = "embedding_similarity"
	ModeLLMJudge  Mode = "llm_judge"
	ModeHumanVote Mode = "human_vote"
	ModeEnsemble  Mode = "ensemble"
)

// ModelResponse is one model's answer to a prompt, as handed to evaluation.
type ModelResponse struct {
	ModelID   string  `json:"model_id"`
	Text      string  `json:"text"`
	LatencyMS float64 `json:"latency_ms"`
	Tokens    int     `json:"tokens"`
}

// Score is the evaluation of a single response. All components are in
// [0, 1]; HallucinationRisk is inverted (0 is safe) and enters the final
// score as 1-risk.
type Score struct {
	ModelID           string         `json:"model_id"`
	Relevance         float64        `json:"relevance"`
	Clarity           float64        `json:"clarity"`
	HallucinationRisk float64        `json:"hallucination_risk"`
	FinalScore        float64        `json:"final_score"`
	Reasoning         string         `json:"reasoning,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

// Strategy scores a set of responses against a prompt. Context carries the
// retrieval context the responses were generated with, or "" for none.
type Strategy interface {
	Name() string
	Evaluate(ctx context.Context, prompt string, responses []ModelResponse, context_ string) ([]Score, error)
}

func clamp01(x float64) float64 {
	return math.Max(0.0, math.Min(1.0, x))
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}

func round4(x float64) float64 {
	return math.Round(x*10000) / 10000
}
