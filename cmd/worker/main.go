package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kirillkom/raglite/internal/bootstrap"
	"github.com/kirillkom/raglite/internal/config"
	"github.com/kirillkom/raglite/internal/observability/logging"
	"github.com/kirillkom/raglite/internal/observability/metrics"
	"github.com/kirillkom/raglite/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	logger := logging.NewJSONLogger("worker", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Logger:         logger,
		IngestObserver: workerMetrics,
	})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	jobs := worker.NewJobs(app.ProcessUC, app.MaintenanceUC, app.StatsUC, workerMetrics, cfg.StaleProcessingAfter, logger)
	scheduler, err := jobs.Schedule(ctx)
	if err != nil {
		logger.Error("scheduler_init_failed", "error", err)
		os.Exit(1)
	}
	defer func() { <-scheduler.Stop().Done() }()

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", workerMetrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := app.DB.PingContext(r.Context()); err != nil {
			http.Error(w, "degraded", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("worker_metrics_listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_failed", "error", err)
		}
	}()

	var wg sync.WaitGroup
	if app.Queue != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("worker_subscribed", "subject", cfg.ReindexSubject)
			if err := app.Queue.SubscribeReindex(ctx, jobs.HandleReindex); err != nil {
				logger.Error("worker_subscribe_failed", "error", err)
				stop()
			}
		}()
	} else {
		logger.Warn("worker_queue_disabled", "reason", "NATS_URL not set")
	}

	if cfg.InboxDir != "" {
		inbox := worker.NewInbox(cfg.InboxDir, app.IngestUC, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := inbox.Watch(ctx); err != nil {
				logger.Error("inbox_watch_failed", "dir", cfg.InboxDir, "error", err)
			}
		}()
	}

	<-ctx.Done()
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("worker_metrics_shutdown_failed", "error", err)
	}
}
