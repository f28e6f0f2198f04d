package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lentra-ai/lentra/internal/eval"
)

// evaluateInput is the JSON shape accepted by the evaluate command.
type evaluateInput struct {
	Prompt    string               `json:"prompt"`
	Responses []eval.ModelResponse `json:"responses"`
	Reference string               `json:"reference,omitempty"`
	Weights   map[string]float64   `json:"weights,omitempty"`
}

func newEvaluateCmd(a *app) *cobra.Command {
	var (
		mode       string
		judgeModel string
		save       bool
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "evaluate <file>",
		Short: "Score pre-recorded model responses from a JSON file",
		Long: `Evaluate reads a JSON file containing a prompt and model responses
and scores them without calling any generation models (except in
llm_judge mode). The file shape:

  {"prompt": "...", "responses": [{"model_id": "...", "text": "...", "latency_ms": 0}]}`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}

			var input evaluateInput
			if err := json.Unmarshal(data, &input); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}
			if len(input.Responses) == 0 {
				return fmt.Errorf("%s contains no responses", args[0])
			}

			ctx := cmd.Context()
			comparator, err := a.Comparator(ctx)
			if err != nil {
				return err
			}

			req := eval.Request{
				Prompt:     input.Prompt,
				Responses:  input.Responses,
				Mode:       eval.Mode(mode),
				Reference:  input.Reference,
				Weights:    input.Weights,
				JudgeModel: judgeModel,
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
				if err := saveRun(ctx, a, input.Prompt, result); err != nil {
					return err
				}
			}

			return printEvalResult(cmd, result, input.Responses, asJSON)
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "", "Evaluation mode (default: config)")
	cmd.Flags().StringVar(&judgeModel, "judge-model", "", "Judge model for llm_judge mode")
	cmd.Flags().BoolVar(&save, "save", false, "Record the run in evaluation history")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the full result as JSON")
	return cmd
}
