package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kirillkom/raglite/internal/core/domain"
)

func newDocumentsCmd(a *app) *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "documents",
		Short: "List stored documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			docs, err := a.services.Documents.List(cmd.Context(), domain.ListOptions{Limit: limit, Offset: offset})
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				cmd.Println("No documents found")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tCHUNKS\tCREATED")
			for _, doc := range docs {
				chunks := "-"
				if doc.ChunkCount != nil {
					chunks = fmt.Sprint(*doc.ChunkCount)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", doc.ID, doc.Name, doc.Status, chunks, doc.CreatedAt.Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of documents")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of documents to skip")

	cmd.AddCommand(&cobra.Command{
		Use:   "delete [doc-id]",
		Short: "Delete a document and its indexed chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.services.Documents.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			cmd.Printf("Deleted %s\n", args[0])
			return nil
		},
	})
	return cmd
}

func newReindexCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex [doc-id]",
		Short: "Re-extract and re-index a stored document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			queued, err := a.services.Documents.RequestReindex(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if queued {
				cmd.Printf("Reindex of %s queued\n", args[0])
			} else {
				cmd.Printf("Reindexed %s\n", args[0])
			}
			return nil
		},
	}
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show store and index sizes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stats, err := a.services.Stats.Stats(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("documents:       %d\n", stats.Documents)
			cmd.Printf("chats:           %d\n", stats.Chats)
			cmd.Printf("indexed chunks:  %d\n", stats.VectorIndex.Documents)
			cmd.Printf("cached queries:  %d\n", stats.VectorIndex.CachedQueries)
			return nil
		},
	}
}
