// Package cli implements the ragctl command tree.
package cli

import (
	"context"
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/kirillkom/raglite/internal/core/ports"
)

// Services are the use cases the commands drive.
type Services struct {
	Ingest    ports.DocumentIngestor
	Query     ports.QueryResolver
	Documents ports.DocumentService
	Stats     ports.StatsReader
}

// OpenFunc wires Services on first use. The returned closer runs once the
// command has finished, whether or not it failed.
type OpenFunc func(cmd *cobra.Command) (*Services, func() error, error)

type app struct {
	open     OpenFunc
	services *Services
	closer   func() error
}

// Run executes the command tree for args.
func Run(ctx context.Context, version string, open OpenFunc, args []string, stdout, stderr io.Writer) error {
	a := &app{open: open}
	root := newRootCommand(version, a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	return errors.Join(err, a.close())
}

func newRootCommand(version string, a *app) *cobra.Command {

	root := &cobra.Command{
		Use:           "ragctl",
		Short:         "Operate the raglite document store from the shell",
		Long:          `ragctl ingests documents, asks questions and inspects the store using the same configuration as the API.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			return a.connect(cmd)
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(
		newIngestCmd(a),
		newAskCmd(a),
		newStatsCmd(a),
		newDocumentsCmd(a),
		newReindexCmd(a),
	)
	return root
}

func (a *app) connect(cmd *cobra.Command) error {
	if a.services != nil {
		return nil
	}
	if a.open == nil {
		return errors.New("services not configured")
	}
	services, closer, err := a.open(cmd)
	if err != nil {
		return err
	}
	a.services, a.closer = services, closer
	return nil
}

func (a *app) close() error {
	if a.closer == nil {
		return nil
	}
	err := a.closer()
	a.closer = nil
	return err
}
