// Package worker runs background jobs: queued reindex requests, scheduled
// maintenance and inbox auto-ingest.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kirillkom/raglite/internal/core/ports"
)

const (
	defaultReindexTimeout = 30 * time.Minute
	staleSweepSchedule    = "@every 5m"
	statsSchedule         = "@hourly"
)

type StaleSweeper interface {
	FailStaleProcessing(ctx context.Context, olderThan time.Duration) (int, error)
}

// JobObserver is satisfied by metrics.WorkerMetrics.
type JobObserver interface {
	StartJob()
	FinishJob(job string, duration time.Duration, err error)
	AddStaleFailed(n int)
}

type Jobs struct {
	processor  ports.DocumentProcessor
	sweeper    StaleSweeper
	stats      ports.StatsReader
	observer   JobObserver
	logger     *slog.Logger
	staleAfter time.Duration
	timeout    time.Duration
}

func NewJobs(processor ports.DocumentProcessor, sweeper StaleSweeper, stats ports.StatsReader, observer JobObserver, staleAfter time.Duration, logger *slog.Logger) *Jobs {
	if logger == nil {
		logger = slog.Default()
	}
	return &Jobs{
		processor:  processor,
		sweeper:    sweeper,
		stats:      stats,
		observer:   observer,
		logger:     logger,
		staleAfter: staleAfter,
		timeout:    defaultReindexTimeout,
	}
}

// HandleReindex is the queue handler for reindex requests.
func (j *Jobs) HandleReindex(ctx context.Context, documentID string) error {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	return j.track("reindex", func() error {
		summary, err := j.processor.ProcessByID(ctx, documentID)
		if err != nil {
			return err
		}
		j.logger.Info("document_reindexed", "document_id", documentID, "chunks", summary.Chunks, "pages", summary.Pages)
		return nil
	})
}

func (j *Jobs) SweepStale(ctx context.Context) error {
	return j.track("stale_sweep", func() error {
		n, err := j.sweeper.FailStaleProcessing(ctx, j.staleAfter)
		if j.observer != nil {
			j.observer.AddStaleFailed(n)
		}
		return err
	})
}

func (j *Jobs) LogStats(ctx context.Context) error {
	return j.track("stats", func() error {
		stats, err := j.stats.Stats(ctx)
		if err != nil {
			return err
		}
		j.logger.Info("collection_stats",
			"documents", stats.Documents,
			"chats", stats.Chats,
			"indexed_chunks", stats.VectorIndex.Documents,
			"cached_queries", stats.VectorIndex.CachedQueries,
		)
		return nil
	})
}

func (j *Jobs) track(job string, fn func() error) error {
	start := time.Now()
	if j.observer != nil {
		j.observer.StartJob()
	}
	err := fn()
	if j.observer != nil {
		j.observer.FinishJob(job, time.Since(start), err)
	}
	if err != nil {
		j.logger.Error("worker_job_failed", "job", job, "error", err, "duration_ms", time.Since(start).Milliseconds())
	}
	return err
}

// Schedule registers the maintenance jobs on a new cron and starts it.
// Stopping the returned cron waits for running jobs.
func (j *Jobs) Schedule(ctx context.Context) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(staleSweepSchedule, func() { _ = j.SweepStale(ctx) }); err != nil {
		return nil, err
	}
	if _, err := c.AddFunc(statsSchedule, func() { _ = j.LogStats(ctx) }); err != nil {
		return nil, err
	}
	c.Start()
	j.logger.Info("maintenance_scheduled", "stale_sweep", staleSweepSchedule, "stats", statsSchedule, "stale_after", j.staleAfter.String())
	return c, nil
}
