package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lentra-ai/lentra/internal/eval"
	"github.com/lentra-ai/lentra/internal/model"
)

func newCompareCmd(a *app) *cobra.Command {
	var (
		models      []string
		mode        string
		judgeModel  string
		useRAG      bool
		collection  string
		temperature float64
		maxTokens   int
		save        bool
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "compare <prompt>",
		Short: "Run a prompt against several models and rank the responses",
		Long: `Compare fans the prompt out to every requested model concurrently,
optionally augmenting it with retrieved context, then scores the
responses with the selected evaluation mode.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(models) < 2 {
				return fmt.Errorf("compare needs at least two --model flags")
			}
			ctx := cmd.Context()
			prompt := strings.Join(args, " ")

			// Optional retrieval augmentation.
			reference := ""
			fullPrompt := prompt
			if useRAG {
				retrieved, err := a.Engine().Retrieve(ctx, prompt, 0, collection, 0, 0)
				if err != nil {
					return err
				}
				reference = retrieved.Context
				if reference != "" {
					fullPrompt = fmt.Sprintf("Use the following context to answer.\n\n%s\n\nQuestion: %s", reference, prompt)
				}
			}

			generations, err := model.RunAll(ctx, a.Runner(), models, fullPrompt, model.Params{
				Temperature: temperature,
				MaxTokens:   maxTokens,
			})
			if err != nil {
				return err
			}

			responses := make([]eval.ModelResponse, 0, len(generations))
			for i, g := range generations {
				if g == nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s failed to respond\n", models[i])
					continue
				}
				responses = append(responses, eval.ModelResponse{
					ModelID:   g.ModelID,
					Text:      g.Text,
					LatencyMS: g.LatencyMS,
					Tokens:    g.Tokens,
				})
			}

			req := eval.Request{
				Prompt:     prompt,
				Responses:  responses,
				Mode:       eval.Mode(mode),
				Reference:  reference,
				JudgeModel: judgeModel,
			}

			comparator, err := a.Comparator(ctx)
			if err != nil {
				return err
			}

			if eval.Mode(mode) == eval.ModeHumanVote {
				ballot := comparator.PrepareBallot(req)
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(ballot)
			}

			result, err := comparator.Evaluate(ctx, req)
			if err != nil {
				return err
			}

			if save {
				if err := saveRun(ctx, a, prompt, result); err != nil {
					return err
				}
			}

			return printEvalResult(cmd, result, responses, asJSON)
		},
	}

	cmd.Flags().StringArrayVarP(&models, "model", "m", nil, "Model to compare (repeat for each model)")
	cmd.Flags().StringVar(&mode, "mode", "", "Evaluation mode (default: config)")
	cmd.Flags().StringVar(&judgeModel, "judge-model", "", "Judge model for llm_judge mode")
	cmd.Flags().BoolVar(&useRAG, "rag", false, "Augment the prompt with retrieved context")
	cmd.Flags().StringVarP(&collection, "collection", "c", "", "Collection for retrieval augmentation")
	cmd.Flags().Float64Var(&temperature, "temperature", 0.7, "Sampling temperature")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "Generation token cap")
	cmd.Flags().BoolVar(&save, "save", false, "Record the run in evaluation history")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the full result as JSON")
	return cmd
}

func printEvalResult(cmd *cobra.Command, result *eval.Result, responses []eval.ModelResponse, asJSON bool) error {
	out := cmd.OutOrStdout()

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			*eval.Result
			Responses []eval.ModelResponse `json:"responses"`
		}{result, responses})
	}

	texts := make(map[string]string, len(responses))
	for _, r := range responses {
		texts[r.ModelID] = r.Text
	}

	for i, id := range result.Ranking {
		var score eval.Score
		for _, s := range result.Scores {
			if s.ModelID == id {
				score = s
				break
			}
		}
		fmt.Fprintf(out, "%d. %s  final=%.3f  relevance=%.3f clarity=%.3f risk=%.3f\n",
			i+1, id, score.FinalScore, score.Relevance, score.Clarity, score.HallucinationRisk)
		if score.Reasoning != "" {
			fmt.Fprintf(out, "   %s\n", score.Reasoning)
		}
		fmt.Fprintf(out, "   %s\n\n", firstLine(texts[id]))
	}
	fmt.Fprintf(out, "winner: %s (%s mode, %.1fms)\n", result.Winner, result.Mode, result.LatencyMS)
	return nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i > 0 {
		s = s[:i]
	}
	if len(s) > 120 {
		s = s[:120] + "..."
	}
	return s
}
