package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/raglite/internal/core/domain"
)

type fakeProcessor struct {
	calls []string
	err   error
}

func (f *fakeProcessor) ProcessByID(_ context.Context, id string) (domain.ProcessingSummary, error) {
	f.calls = append(f.calls, id)
	if f.err != nil {
		return domain.ProcessingSummary{}, f.err
	}
	return domain.ProcessingSummary{Pages: 1, Chunks: 3}, nil
}

type fakeSweeper struct {
	olderThan time.Duration
	n         int
	err       error
}

func (f *fakeSweeper) FailStaleProcessing(_ context.Context, olderThan time.Duration) (int, error) {
	f.olderThan = olderThan
	return f.n, f.err
}

type fakeStats struct {
	stats domain.Stats
	err   error
}

func (f fakeStats) Stats(context.Context) (domain.Stats, error) { return f.stats, f.err }

type recordingObserver struct {
	started  int
	finished map[string]error
	stale    int
}

func (o *recordingObserver) StartJob() { o.started++ }

func (o *recordingObserver) FinishJob(job string, _ time.Duration, err error) {
	if o.finished == nil {
		o.finished = map[string]error{}
	}
	o.finished[job] = err
}

func (o *recordingObserver) AddStaleFailed(n int) { o.stale += n }

type fakeIngestor struct {
	mu      sync.Mutex
	names   []string
	bodies  []string
	outcome domain.IngestOutcome
	err     error
}

func (f *fakeIngestor) Upload(_ context.Context, filename string, body io.Reader) (*domain.IngestResult, error) {
	data, _ := io.ReadAll(body)
	f.mu.Lock()
	f.names = append(f.names, filename)
	f.bodies = append(f.bodies, string(data))
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	outcome := f.outcome
	if outcome == "" {
		outcome = domain.IngestProcessed
	}
	return &domain.IngestResult{Outcome: outcome, Document: &domain.Document{ID: "doc-1", Name: filename}}, nil
}

func (f *fakeIngestor) uploaded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.names...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandleReindexTracksJob(t *testing.T) {
	proc := &fakeProcessor{}
	obs := &recordingObserver{}
	jobs := NewJobs(proc, &fakeSweeper{}, fakeStats{}, obs, time.Hour, quietLogger())

	require.NoError(t, jobs.HandleReindex(context.Background(), "doc-7"))
	assert.Equal(t, []string{"doc-7"}, proc.calls)
	assert.Equal(t, 1, obs.started)
	assert.Contains(t, obs.finished, "reindex")
	assert.NoError(t, obs.finished["reindex"])
}

func TestHandleReindexReportsFailure(t *testing.T) {
	boom := errors.New("extract failed")
	obs := &recordingObserver{}
	jobs := NewJobs(&fakeProcessor{err: boom}, &fakeSweeper{}, fakeStats{}, obs, time.Hour, quietLogger())

	err := jobs.HandleReindex(context.Background(), "doc-7")
	require.ErrorIs(t, err, boom)
	assert.ErrorIs(t, obs.finished["reindex"], boom)
}

func TestSweepStaleUsesConfiguredAge(t *testing.T) {
	sweeper := &fakeSweeper{n: 2}
	obs := &recordingObserver{}
	jobs := NewJobs(&fakeProcessor{}, sweeper, fakeStats{}, obs, 45*time.Minute, quietLogger())

	require.NoError(t, jobs.SweepStale(context.Background()))
	assert.Equal(t, 45*time.Minute, sweeper.olderThan)
	assert.Equal(t, 2, obs.stale)
}

func TestLogStatsWithoutObserver(t *testing.T) {
	jobs := NewJobs(&fakeProcessor{}, &fakeSweeper{}, fakeStats{stats: domain.Stats{Documents: 3}}, nil, time.Hour, quietLogger())
	assert.NoError(t, jobs.LogStats(context.Background()))

	failing := NewJobs(&fakeProcessor{}, &fakeSweeper{}, fakeStats{err: errors.New("db down")}, nil, time.Hour, quietLogger())
	assert.Error(t, failing.LogStats(context.Background()))
}

func TestScheduleRegistersMaintenance(t *testing.T) {
	jobs := NewJobs(&fakeProcessor{}, &fakeSweeper{}, fakeStats{}, nil, time.Hour, quietLogger())
	c, err := jobs.Schedule(context.Background())
	require.NoError(t, err)
	defer c.Stop()
	assert.Len(t, c.Entries(), 2)
}

func TestInboxIngestFileMovesByOutcome(t *testing.T) {
	tests := []struct {
		name     string
		ingestor *fakeIngestor
		wantDir  string
	}{
		{name: "processed", ingestor: &fakeIngestor{}, wantDir: processedDir},
		{name: "duplicate", ingestor: &fakeIngestor{outcome: domain.IngestDuplicate}, wantDir: processedDir},
		{name: "failed", ingestor: &fakeIngestor{outcome: domain.IngestFailed}, wantDir: failedDir},
		{name: "rejected", ingestor: &fakeIngestor{err: domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("unsupported"))}, wantDir: failedDir},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			for _, sub := range []string{processedDir, failedDir} {
				require.NoError(t, os.MkdirAll(filepath.Join(dir, sub), 0o755))
			}
			path := filepath.Join(dir, "notes.txt")
			require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

			in := NewInbox(dir, tc.ingestor, quietLogger())
			in.ingestFile(context.Background(), path)

			assert.Equal(t, []string{"notes.txt"}, tc.ingestor.names)
			assert.Equal(t, []string{"hello"}, tc.ingestor.bodies)
			assert.NoFileExists(t, path)
			assert.FileExists(t, filepath.Join(dir, tc.wantDir, "notes.txt"))
		})
	}
}

func TestInboxIngestFileSkipsDirectories(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "nested")
	require.NoError(t, os.Mkdir(sub, 0o755))

	ing := &fakeIngestor{}
	NewInbox(dir, ing, quietLogger()).ingestFile(context.Background(), sub)
	assert.Empty(t, ing.names)
	assert.DirExists(t, sub)
}

func TestInboxWatchIngestsNewFiles(t *testing.T) {
	dir := t.TempDir()
	ing := &fakeIngestor{}
	in := NewInbox(dir, ing, quietLogger())
	in.settle = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- in.Watch(ctx) }()

	// Watch creates the sub directories before it starts listening.
	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, failedDir))
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "report.md"), []byte("# report"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".partial"), []byte("x"), 0o644))

	assert.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, processedDir, "report.md"))
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, []string{"report.md"}, ing.uploaded())
}

func TestInboxWatchPicksUpExistingFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "left-over.txt"), []byte("old"), 0o644))

	ing := &fakeIngestor{}
	in := NewInbox(dir, ing, quietLogger())
	in.settle = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- in.Watch(ctx) }()

	assert.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, processedDir, "left-over.txt"))
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, []string{"left-over.txt"}, ing.uploaded())
}

func TestInboxRescheduleNeverRunsATimerTwice(t *testing.T) {
	// The file does not exist, so every fired timer returns right after Stat.
	path := filepath.Join(t.TempDir(), "copying.pdf")
	in := NewInbox(filepath.Dir(path), &fakeIngestor{}, quietLogger())
	in.settle = 50 * time.Microsecond

	ctx := context.Background()
	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		in.schedule(ctx, path)
	}

	waited := make(chan struct{})
	go func() {
		in.wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(5 * time.Second):
		t.Fatal("pending timers never drained")
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	assert.Empty(t, in.pending)
}
