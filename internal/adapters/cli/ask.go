package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/raglite/internal/core/domain"
)

func newAskCmd(a *app) *cobra.Command {
	var documentID, model string
	var showSources bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question against the indexed documents",
		Long:  `Resolves the question through the answer cache first and generates a new answer only on a miss.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.TrimSpace(args[0])
			if question == "" {
				return errors.New("question must not be empty")
			}

			outcome, err := a.services.Query.Resolve(cmd.Context(), domain.QueryRequest{
				Text:       question,
				DocumentID: documentID,
				Model:      model,
			})
			if err != nil {
				return err
			}

			switch outcome.Kind {
			case domain.OutcomeNotFound:
				cmd.Println(outcome.Message)
				return nil
			case domain.OutcomeFailed:
				if outcome.Err != nil {
					return fmt.Errorf("%s: %w", outcome.Message, outcome.Err)
				}
				return errors.New(outcome.Message)
			}

			cmd.Println(outcome.Answer)
			cmd.Println()
			line := fmt.Sprintf("source: %s  chat: %s", outcome.Source(), outcome.ChatID)
			if outcome.SimilarityScore != nil {
				line += fmt.Sprintf("  distance: %.4f", *outcome.SimilarityScore)
			}
			cmd.Println(line)
			if showSources {
				for _, src := range outcome.SourceChunks {
					cmd.Printf("  - %s page %d\n", src.Source, src.Page)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&documentID, "document", "d", "", "Restrict retrieval to one document id")
	cmd.Flags().StringVarP(&model, "model", "m", "", "Generation model override")
	cmd.Flags().BoolVar(&showSources, "sources", false, "Print the chunks the answer was built from")
	return cmd
}
