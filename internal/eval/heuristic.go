package eval

import (
	"context"
	"math"
	"strings"
)

// stopwords excluded from keyword-overlap relevance.
var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"be": {}, "been": {}, "being": {}, "have": {}, "has": {}, "had": {},
	"do": {}, "does": {}, "did": {}, "will": {}, "would": {}, "could": {},
	"should": {}, "may": {}, "might": {}, "can": {}, "to": {}, "of": {},
	"in": {}, "for": {}, "on": {}, "with": {}, "at": {}, "by": {}, "from": {},
	"as": {}, "it": {}, "that": {}, "this": {}, "these": {}, "those": {},
}

// HeuristicStrategy scores responses from structural and lexical features
// alone: keyword overlap for relevance, sentence shape for clarity, and
// generation speed for hallucination risk. No model calls, so it is the
// fastest mode and the fallback for unknown modes.
type HeuristicStrategy struct {
	weights map[string]float64
}

// NewHeuristicStrategy creates the strategy. Nil weights use the defaults
// (relevance 0.40, clarity 0.30, hallucination 0.30).
func NewHeuristicStrategy(weights map[string]float64) *HeuristicStrategy {
	if weights == nil {
		weights = map[string]float64{
			"relevance":     0.40,
			"clarity":       0.30,
			"hallucination": 0.30,
		}
	}
	return &HeuristicStrategy{weights: weights}
}

func (h *HeuristicStrategy) Name() string { return string(ModeHeuristic) }

func (h *HeuristicStrategy) Evaluate(_ context.Context, prompt string, responses []ModelResponse, _ string) ([]Score, error) {
	scores := make([]Score, 0, len(responses))
	for _, resp := range responses {
		scores = append(scores, h.scoreOne(prompt, resp))
	}
	return scores, nil
}

func (h *HeuristicStrategy) scoreOne(prompt string, resp ModelResponse) Score {
	relevance := keywordRelevance(prompt, resp.Text)
	clarity := structuralClarity(resp.Text)
	risk := speedRisk(resp.LatencyMS, len(resp.Text))

	final := relevance*h.weight("relevance", 0.4) +
		clarity*h.weight("clarity", 0.3) +
		(1-risk)*h.weight("hallucination", 0.3)

	return Score{
		ModelID:           resp.ModelID,
		Relevance:         round3(relevance),
		Clarity:           round3(clarity),
		HallucinationRisk: round3(risk),
		FinalScore:        round3(final),
		Reasoning:         heuristicReasoning(relevance, clarity, risk),
		Metadata: map[string]any{
			"strategy":    string(ModeHeuristic),
			"text_length": len(resp.Text),
			"latency_ms":  resp.LatencyMS,
		},
	}
}

func (h *HeuristicStrategy) weight(name string, fallback float64) float64 {
	if w, ok := h.weights[name]; ok {
		return w
	}
	return fallback
}

// keywordRelevance measures how many meaningful prompt words the response
// covers, scaled by 1.5 and capped at 1. A prompt with no meaningful words
// is neutral.
func keywordRelevance(prompt, text string) float64 {
	promptWords := meaningfulWords(prompt)
	if len(promptWords) == 0 {
		return 0.5
	}
	responseWords := meaningfulWords(text)

	overlap := 0
	for w := range promptWords {
		if _, ok := responseWords[w]; ok {
			overlap++
		}
	}

	coverage := float64(overlap) / float64(len(promptWords))
	return math.Min(1.0, coverage*1.5)
}

func meaningfulWords(s string) map[string]struct{} {
	words := map[string]struct{}{}
	for _, w := range strings.Fields(strings.ToLower(s)) {
		if len(w) <= 2 {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		words[w] = struct{}{}
	}
	return words
}

// structuralClarity rewards sentences near a 17-word optimum plus small
// bonuses for paragraph structure and list formatting.
func structuralClarity(text string) float64 {
	if text == "" {
		return 0.0
	}

	sentenceEndings := strings.Count(text, ".") + strings.Count(text, "!") + strings.Count(text, "?")
	sentenceCount := sentenceEndings
	if sentenceCount < 1 {
		sentenceCount = 1
	}

	wordCount := len(strings.Fields(text))
	avgLen := float64(wordCount) / float64(sentenceCount)

	const optimal = 17.0
	deviation := math.Abs(avgLen - optimal)
	sentenceScore := math.Max(0.0, 1.0-deviation/30)

	structureBonus := 0.0
	if strings.Count(text, "\n\n") > 0 || sentenceCount > 1 {
		structureBonus = 0.1
	}

	formatBonus := 0.0
	for _, marker := range []string{"- ", "* ", "1.", "2."} {
		if strings.Contains(text, marker) {
			formatBonus = 0.1
			break
		}
	}

	return math.Min(1.0, sentenceScore+structureBonus+formatBonus)
}

// speedRisk flags generation speeds outside the plausible range for an
// honest model: suspiciously fast output may be canned, very slow output may
// signal a struggling model. Empty responses are maximally risky.
func speedRisk(latencyMS float64, textLength int) float64 {
	if textLength == 0 {
		return 1.0
	}

	speed := float64(textLength) / math.Max(latencyMS, 1)
	switch {
	case speed > 10:
		return 0.3
	case speed < 0.1:
		return 0.4
	default:
		return 0.2
	}
}

func heuristicReasoning(relevance, clarity, risk float64) string {
	var parts []string

	switch {
	case relevance >= 0.8:
		parts = append(parts, "High relevance to prompt")
	case relevance >= 0.5:
		parts = append(parts, "Moderate relevance")
	default:
		parts = append(parts, "Low relevance to prompt")
	}

	switch {
	case clarity >= 0.8:
		parts = append(parts, "well-structured response")
	case clarity >= 0.5:
		parts = append(parts, "acceptable structure")
	default:
		parts = append(parts, "poor structure")
	}

	switch {
	case risk <= 0.2:
		parts = append(parts, "low hallucination risk")
	case risk <= 0.4:
		parts = append(parts, "moderate hallucination risk")
	default:
		parts = append(parts, "elevated hallucination risk")
	}

	return strings.Join(parts, "; ") + "."
}
