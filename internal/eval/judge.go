package eval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/lentra-ai/lentra/internal/model"
)

const judgeSystemPrompt = `You are an expert evaluator of AI-generated responses. Your task is to evaluate the quality of responses to user prompts.

Evaluate each response on these criteria (score 0.0 to 1.0):

1. **Relevance** (0.0-1.0): How well does the response address the user's prompt?
   - 1.0: Perfectly addresses all aspects of the prompt
   - 0.7-0.9: Addresses most aspects with minor gaps
   - 0.4-0.6: Partially addresses the prompt
   - 0.0-0.3: Barely relevant or off-topic

2. **Clarity** (0.0-1.0): How clear, well-structured, and understandable is the response?
   - 1.0: Crystal clear, excellent structure, easy to follow
   - 0.7-0.9: Clear with good organization
   - 0.4-0.6: Understandable but could be better organized
   - 0.0-0.3: Confusing or poorly structured

3. **Hallucination Risk** (0.0-1.0): How likely is the response to contain made-up or incorrect information?
   - 0.0: Very low risk, sticks to verifiable facts or clearly marks speculation
   - 0.3-0.5: Some claims that may need verification
   - 0.6-0.8: Contains questionable claims
   - 1.0: High risk of fabricated information

IMPORTANT: You must respond ONLY with valid JSON in this exact format:
{
  "relevance": <float>,
  "clarity": <float>,
  "hallucination_risk": <float>,
  "reasoning": "<brief explanation>"
}`

const judgeUserPrompt = `Evaluate the following response to the user's prompt.

## User Prompt:
%s

%s## Response to Evaluate:
%s

## Your Evaluation (JSON only):`

const (
	// Long inputs are truncated to keep judge prompts bounded.
	maxJudgeContext  = 2000
	maxJudgeResponse = 3000

	judgeCacheSize = 128
)

var (
	fencedJSON = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)\\s*```")
	anyJSONObj = regexp.MustCompile(`\{[\s\S]*?\}`)
)

// verdict is the judge's parsed JSON reply.
type verdict struct {
	Relevance         *float64 `json:"relevance"`
	Clarity           *float64 `json:"clarity"`
	HallucinationRisk *float64 `json:"hallucination_risk"`
	Reasoning         string   `json:"reasoning"`
}

// JudgeStrategy asks a meta-model to grade each response against a rubric
// and parses its JSON verdict. Verdicts are cached so re-evaluating the same
// prompt/response pair skips the model call. A response whose verdict cannot
// be obtained or parsed falls back to neutral 0.5 scores.
type JudgeStrategy struct {
	generator  model.Generator
	judgeModel string
	cache      *lru.Cache[string, verdict]
}

// NewJudgeStrategy creates the strategy using judgeModel on the given
// generator.
func NewJudgeStrategy(generator model.Generator, judgeModel string) *JudgeStrategy {
	cache, _ := lru.New[string, verdict](judgeCacheSize)
	return &JudgeStrategy{
		generator:  generator,
		judgeModel: judgeModel,
		cache:      cache,
	}
}

func (j *JudgeStrategy) Name() string { return string(ModeLLMJudge) }

func (j *JudgeStrategy) Evaluate(ctx context.Context, prompt string, responses []ModelResponse, evalContext string) ([]Score, error) {
	contextSection := ""
	if evalContext != "" {
		truncated := evalContext
		if len(truncated) > maxJudgeContext {
			truncated = truncated[:maxJudgeContext]
		}
		contextSection = fmt.Sprintf("## Context Provided:\n%s\n\n", truncated)
	}

	scores := make([]Score, 0, len(responses))
	for _, resp := range responses {
		scores = append(scores, j.scoreOne(ctx, prompt, contextSection, resp))
	}
	return scores, nil
}

func (j *JudgeStrategy) scoreOne(ctx context.Context, prompt, contextSection string, resp ModelResponse) Score {
	text := resp.Text
	if len(text) > maxJudgeResponse {
		text = text[:maxJudgeResponse]
	}

	key := j.cacheKey(prompt, contextSection, text)
	v, cached := j.cache.Get(key)
	if !cached {
		fullPrompt := judgeSystemPrompt + "\n\n" +
			fmt.Sprintf(judgeUserPrompt, prompt, contextSection, text)

		gen, err := j.generator.Generate(ctx, j.judgeModel, fullPrompt, model.Params{
			Temperature: 0.1,
			MaxTokens:   500,
		})
		if err != nil {
			slog.Error("judge generation failed",
				slog.String("model", resp.ModelID),
				slog.Any("error", err))
			return fallbackScore(resp)
		}

		parsed, ok := parseVerdict(gen.Text)
		if !ok {
			slog.Warn("judge verdict unparseable",
				slog.String("model", resp.ModelID),
				slog.String("preview", preview(gen.Text, 200)))
			return fallbackScore(resp)
		}
		v = parsed
		j.cache.Add(key, v)
	}

	relevance := valueOr(v.Relevance, 0.5)
	clarity := valueOr(v.Clarity, 0.5)
	risk := valueOr(v.HallucinationRisk, 0.5)
	reasoning := v.Reasoning
	if reasoning == "" {
		reasoning = "LLM judge evaluation"
	}

	final := clamp01(0.50*relevance + 0.25*clarity + 0.25*(1.0-risk))

	return Score{
		ModelID:           resp.ModelID,
		Relevance:         round4(relevance),
		Clarity:           round4(clarity),
		HallucinationRisk: round4(risk),
		FinalScore:        round4(final),
		Reasoning:         reasoning,
		Metadata: map[string]any{
			"strategy":        string(ModeLLMJudge),
			"judge_model":     j.judgeModel,
			"cached":          cached,
			"response_length": len(resp.Text),
		},
	}
}

// parseVerdict extracts the judge's JSON with three fallbacks: the raw text,
// a fenced code block, then any JSON object carrying at least one expected
// key.
func parseVerdict(text string) (verdict, bool) {
	var v verdict
	if err := json.Unmarshal([]byte(text), &v); err == nil && v.hasAnyField() {
		return v, true
	}

	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		if err := json.Unmarshal([]byte(m[1]), &v); err == nil && v.hasAnyField() {
			return v, true
		}
	}

	for _, candidate := range anyJSONObj.FindAllString(text, -1) {
		if err := json.Unmarshal([]byte(candidate), &v); err == nil && v.hasAnyField() {
			return v, true
		}
	}

	return verdict{}, false
}

func (v verdict) hasAnyField() bool {
	return v.Relevance != nil || v.Clarity != nil || v.HallucinationRisk != nil
}

func fallbackScore(resp ModelResponse) Score {
	return Score{
		ModelID:           resp.ModelID,
		Relevance:         0.5,
		Clarity:           0.5,
		HallucinationRisk: 0.5,
		FinalScore:        0.5,
		Reasoning:         "Judge evaluation failed; using default scores.",
		Metadata: map[string]any{
			"strategy":        string(ModeLLMJudge),
			"fallback":        true,
			"response_length": len(resp.Text),
		},
	}
}

func (j *JudgeStrategy) cacheKey(prompt, contextSection, text string) string {
	sum := sha256.Sum256([]byte(j.judgeModel + "\x00" + prompt + "\x00" + contextSection + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

func valueOr(p *float64, fallback float64) float64 {
	if p == nil {
		return fallback
	}
	return clamp01(*p)
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[:n], "")
}
