package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newIndexCmd(a *app) *cobra.Command {
	var collection string

	cmd := &cobra.Command{
		Use:   "index <file>...",
		Short: "Index documents into the vector store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine := a.Engine()

			for _, path := range args {
				content, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}

				result, err := engine.IndexDocument(cmd.Context(), string(content), filepath.Base(path), collection, nil)
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "indexed %s: document %s, %d chunks (collection %s)\n",
					path, result.DocumentID, result.Chunks, result.Collection)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&collection, "collection", "c", "", "Collection to index into (default: default)")
	return cmd
}
