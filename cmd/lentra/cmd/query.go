package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newQueryCmd(a *app) *cobra.Command {
	var (
		topK       int
		collection string
		threshold  float64
		maxTokens  int
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Retrieve the most relevant chunks for a question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")

			result, err := a.Engine().Retrieve(cmd.Context(), question, topK, collection, threshold, maxTokens)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}

			if len(result.Chunks) == 0 {
				fmt.Fprintln(out, "no matching chunks")
				return nil
			}
			for i, ch := range result.Chunks {
				fmt.Fprintf(out, "%d. [%.4f] %s\n   %s\n", i+1, ch.Score, ch.Source, ch.Content)
			}
			fmt.Fprintf(out, "\nretrieved %d chunks in %.1fms\n", len(result.Chunks), result.LatencyMS)
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of chunks to retrieve (default: config)")
	cmd.Flags().StringVarP(&collection, "collection", "c", "", "Restrict retrieval to a collection")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "Minimum similarity score")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "Context token budget (default: config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the full result as JSON")
	return cmd
}
