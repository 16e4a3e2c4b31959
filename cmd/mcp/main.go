package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"

	mcpadapter "github.com/kirillkom/raglite/internal/adapters/mcp"
	"github.com/kirillkom/raglite/internal/bootstrap"
	"github.com/kirillkom/raglite/internal/config"
	"github.com/kirillkom/raglite/internal/observability/logging"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	// stdout carries the protocol
	logger := logging.NewStderrLogger("mcp", cfg.LogLevel, true)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Logger: logger, WithoutQueue: true})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	logger.Info("mcp_stdio_started", "version", version)
	if err := server.ServeStdio(mcpadapter.NewServer(version, app.QueryUC, app.DocumentSvc, logger)); err != nil {
		logger.Error("mcp_server_failed", "error", err)
	}
}
