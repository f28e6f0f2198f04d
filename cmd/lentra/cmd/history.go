package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lentra-ai/lentra/internal/eval"
	"github.com/lentra-ai/lentra/internal/history"
)

func (a *app) historyStore() (*history.Store, error) {
	path := filepath.Join(filepath.Dir(a.cfg.Index.Path), "history.db")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return history.Open(path)
}

// saveRun records an evaluation result in history.
func saveRun(ctx context.Context, a *app, prompt string, result *eval.Result) error {
	store, err := a.historyStore()
	if err != nil {
		return err
	}
	defer store.Close()

	id, err := store.Save(ctx, prompt, result)
	if err != nil {
		return err
	}
	fmt.Printf("saved run %s\n", id)
	return nil
}

func newHistoryCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent evaluation runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.historyStore()
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRecent(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "no recorded runs")
				return nil
			}
			for _, run := range runs {
				fmt.Fprintf(out, "%s  %s  mode=%s winner=%s  %s\n",
					run.ID, run.CreatedAt.Format("2006-01-02 15:04:05"), run.Mode, run.Winner, firstLine(run.Prompt))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to list")

	cmd.AddCommand(&cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one evaluation run in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.historyStore()
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(run)
		},
	})

	return cmd
}
