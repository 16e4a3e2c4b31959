package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kirillkom/raglite/internal/core/domain"
)

func newIngestCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest [file...]",
		Short: "Upload and index local files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var failed int
			for _, path := range args {
				if err := ingestOne(cmd, a, path); err != nil {
					cmd.PrintErrf("%s: %v\n", path, err)
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(args))
			}
			return nil
		},
	}
}

func ingestOne(cmd *cobra.Command, a *app, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	res, err := a.services.Ingest.Upload(cmd.Context(), filepath.Base(path), f)
	if err != nil {
		return err
	}
	if res.Outcome == domain.IngestFailed {
		if res.Err != nil {
			return res.Err
		}
		return fmt.Errorf("processing failed")
	}
	if res.Outcome == domain.IngestDuplicate {
		cmd.Printf("%s: already stored as %s\n", path, res.Document.ID)
		return nil
	}
	cmd.Printf("%s: %s (%d pages, %d chunks)\n", path, res.Document.ID, res.Summary.Pages, res.Summary.Chunks)
	return nil
}
