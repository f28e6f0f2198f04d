package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newStatsCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			stats, err := a.Engine().Stats(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			}

			fmt.Fprintf(out, "backend:    %s\n", stats.Backend)
			fmt.Fprintf(out, "dimensions: %d\n", stats.Dimensions)
			fmt.Fprintf(out, "records:    %d active, %d deleted, %d total\n",
				stats.ActiveRecords, stats.DeletedRecords, stats.TotalRecords)
			fmt.Fprintf(out, "searches:   %d\n", stats.SearchCount)
			for name, chunks := range stats.Collections {
				fmt.Fprintf(out, "collection %s: %d chunks\n", name, chunks)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit statistics as JSON")
	return cmd
}

func newRebuildCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Compact the index, dropping deleted records",
		RunE: func(cmd *cobra.Command, _ []string) error {
			removed, err := a.Engine().Rebuild(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rebuild complete, removed %d records\n", removed)
			return nil
		},
	}
}
