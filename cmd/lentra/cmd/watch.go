package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lentra-ai/lentra/internal/watch"
)

func newWatchCmd(a *app) *cobra.Command {
	var collection string

	cmd := &cobra.Command{
		Use:   "watch <directory>",
		Short: "Watch a directory and keep it indexed",
		Long: `Watch indexes every .txt and .md file in the directory, then keeps the
index in sync: new and modified files are reindexed, removed files are
deleted. Runs until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if collection == "" {
				collection = "watched"
			}

			w, err := watch.New(a.Engine(), args[0], collection)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "watching %s into collection %s (ctrl-c to stop)\n", args[0], collection)

			err = w.Run(cmd.Context())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&collection, "collection", "c", "", "Collection for watched documents (default: watched)")
	return cmd
}
