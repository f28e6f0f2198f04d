package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDocumentsCmd(a *app) *cobra.Command {
	var collection string

	cmd := &cobra.Command{
		Use:   "documents",
		Short: "List indexed documents",
		RunE: func(cmd *cobra.Command, _ []string) error {
			docs, err := a.Engine().ListDocuments(cmd.Context(), collection)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(docs) == 0 {
				fmt.Fprintln(out, "no documents indexed")
				return nil
			}
			for _, d := range docs {
				fmt.Fprintf(out, "%s  %s (collection %s, %d chunks)\n",
					d.DocumentID, d.Source, d.Collection, d.Chunks)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&collection, "collection", "c", "", "Only list documents in this collection")

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <document-id>",
		Short: "Remove a document from retrieval",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deleted, err := a.Engine().DeleteDocument(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if deleted == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no document with id %s\n", args[0])
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d chunks of document %s\n", deleted, args[0])
			return nil
		},
	})

	return cmd
}

func newCollectionsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collections [name]",
		Short: "List collections, or show one collection's counts",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				info, ok, err := a.Engine().CollectionInfo(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("no collection named %s", args[0])
				}
				fmt.Fprintf(out, "%s: %d documents, %d chunks\n", info.Name, info.Documents, info.Chunks)
				return nil
			}

			cols, err := a.Engine().ListCollections(cmd.Context())
			if err != nil {
				return err
			}
			if len(cols) == 0 {
				fmt.Fprintln(out, "no collections")
				return nil
			}
			for _, c := range cols {
				fmt.Fprintf(out, "%s: %d documents, %d chunks\n", c.Name, c.Documents, c.Chunks)
			}
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "clear <name>",
		Short: "Remove every document in a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := a.Engine().ClearCollection(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %d documents from collection %s\n", removed, args[0])
			return nil
		},
	})

	return cmd
}
