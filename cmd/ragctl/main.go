package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kirillkom/raglite/internal/adapters/cli"
	"github.com/kirillkom/raglite/internal/bootstrap"
	"github.com/kirillkom/raglite/internal/config"
	"github.com/kirillkom/raglite/internal/observability/logging"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Run(ctx, version, open, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func open(cmd *cobra.Command) (*cli.Services, func() error, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger := logging.NewStderrLogger("ragctl", cfg.LogLevel, false)

	app, err := bootstrap.New(cmd.Context(), cfg, bootstrap.Options{Logger: logger})
	if err != nil {
		return nil, nil, err
	}
	return &cli.Services{
		Ingest:    app.IngestUC,
		Query:     app.QueryUC,
		Documents: app.DocumentSvc,
		Stats:     app.StatsUC,
	}, app.Close, nil
}
