package eval

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lentra-ai/lentra/internal/embed"
	"github.com/lentra-ai/lentra/internal/model"
)

// Request carries one evaluation job.
type Request struct {
	Prompt     string             `json:"prompt"`
	Responses  []ModelResponse    `json:"responses"`
	Mode       Mode               `json:"mode"`
	Reference  string             `json:"reference,omitempty"`
	Weights    map[string]float64 `json:"weights,omitempty"`
	JudgeModel string             `json:"judge_model,omitempty"`
}

// Result is the outcome of an evaluation: per-response scores plus the
// derived winner and ranking.
type Result struct {
	Mode      Mode     `json:"mode"`
	Scores    []Score  `json:"scores"`
	Winner    string   `json:"winner,omitempty"`
	Ranking   []string `json:"ranking"`
	LatencyMS float64  `json:"evaluation_latency_ms"`
}

// BallotOption is one anonymized response on a ballot.
type BallotOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Ballot presents shuffled, model-blind responses for human voting.
type Ballot struct {
	BallotID  string         `json:"ballot_id"`
	Prompt    string         `json:"prompt"`
	Options   []BallotOption `json:"options"`
	ExpiresAt time.Time      `json:"expires_at"`
}

const ballotTTL = 24 * time.Hour

// Comparator dispatches evaluation requests to the scoring strategies and
// derives winners and rankings. Strategies are built lazily on first use.
// Safe for concurrent use.
type Comparator struct {
	defaultMode     Mode
	judgeModel      string
	judgeInEnsemble bool
	embedder        embed.Embedder
	generator       model.Generator

	mu        sync.Mutex
	heuristic *HeuristicStrategy
	embedding *EmbeddingStrategy
	judges    map[string]*JudgeStrategy
	ensembles map[string]*EnsembleStrategy
}

// NewComparator creates a comparator. The generator may be nil when judge
// evaluation is never used; judgeInEnsemble controls whether ensemble mode
// includes the LLM judge alongside the fast strategies.
func NewComparator(defaultMode Mode, judgeModel string, judgeInEnsemble bool, embedder embed.Embedder, generator model.Generator) *Comparator {
	return &Comparator{
		defaultMode:     defaultMode,
		judgeModel:      judgeModel,
		judgeInEnsemble: judgeInEnsemble,
		embedder:        embedder,
		generator:       generator,
		heuristic:       NewHeuristicStrategy(nil),
		judges:          map[string]*JudgeStrategy{},
		ensembles:       map[string]*EnsembleStrategy{},
	}
}

// Evaluate scores the request's responses in the requested mode. Unknown
// modes fall back to heuristic; human_vote requests must go through
// PrepareBallot instead.
func (c *Comparator) Evaluate(ctx context.Context, req Request) (*Result, error) {
	mode := req.Mode
	if mode == "" {
		mode = c.defaultMode
	}
	if mode == ModeHumanVote {
		return nil, fmt.Errorf("human_vote mode produces a ballot, not scores; use PrepareBallot")
	}

	start := time.Now()
	strategy := c.strategyFor(mode, req)

	slog.Info("evaluating responses",
		slog.String("mode", string(mode)),
		slog.Int("responses", len(req.Responses)))

	scores, err := strategy.Evaluate(ctx, req.Prompt, req.Responses, req.Reference)
	if err != nil {
		return nil, err
	}

	ranking := Ranking(scores)
	result := &Result{
		Mode:      mode,
		Scores:    scores,
		Ranking:   ranking,
		LatencyMS: float64(time.Since(start).Microseconds()) / 1000.0,
	}
	if len(ranking) > 0 {
		result.Winner = ranking[0]
	}
	return result, nil
}

func (c *Comparator) strategyFor(mode Mode, req Request) Strategy {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch mode {
	case ModeEmbedding:
		if c.embedding == nil {
			c.embedding = NewEmbeddingStrategy(c.embedder)
		}
		return c.embedding
	case ModeLLMJudge:
		judgeModel := req.JudgeModel
		if judgeModel == "" {
			judgeModel = c.judgeModel
		}
		j := c.judges[judgeModel]
		if j == nil {
			j = NewJudgeStrategy(c.generator, judgeModel)
			c.judges[judgeModel] = j
		}
		return j
	case ModeEnsemble:
		// Custom weights get a dedicated instance; the default is shared.
		key := fmt.Sprintf("%v", req.Weights)
		e := c.ensembles[key]
		if e == nil {
			var gen model.Generator
			judgeModel := ""
			if c.judgeInEnsemble {
				gen = c.generator
				judgeModel = c.judgeModel
			}
			e = NewEnsembleStrategy(c.embedder, gen, judgeModel, req.Weights)
			c.ensembles[key] = e
		}
		return e
	case ModeHeuristic:
		return c.heuristic
	default:
		slog.Warn("unknown evaluation mode, using heuristic", slog.String("mode", string(mode)))
		return c.heuristic
	}
}

// PrepareBallot shuffles and anonymizes the responses for blind human
// comparison. No scores are computed.
func (c *Comparator) PrepareBallot(req Request) *Ballot {
	shuffled := make([]ModelResponse, len(req.Responses))
	copy(shuffled, req.Responses)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	options := make([]BallotOption, len(shuffled))
	for i, r := range shuffled {
		options[i] = BallotOption{ID: strconv.Itoa(i), Text: r.Text}
	}

	return &Ballot{
		BallotID:  uuid.NewString(),
		Prompt:    req.Prompt,
		Options:   options,
		ExpiresAt: time.Now().UTC().Add(ballotTTL),
	}
}

// Winner returns the model id with the highest final score, or "" for no
// scores.
func Winner(scores []Score) string {
	ranking := Ranking(scores)
	if len(ranking) == 0 {
		return ""
	}
	return ranking[0]
}

// Ranking returns model ids ordered by descending final score. Ties keep
// their input order.
func Ranking(scores []Score) []string {
	sorted := make([]Score, len(scores))
	copy(sorted, scores)
	sort.SliceStable(sorted, func(a, b int) bool {
		return sorted[a].FinalScore > sorted[b].FinalScore
	})

	ids := make([]string, len(sorted))
	for i, s := range sorted {
		ids[i] = s.ModelID
	}
	return ids
}
