package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kirillkom/raglite/internal/core/domain"
	"github.com/kirillkom/raglite/internal/core/ports"
)

const (
	processedDir = "processed"
	failedDir    = "failed"

	defaultSettleDelay = 2 * time.Second
)

// Inbox ingests files dropped into a directory. A file is picked up once
// it has seen no writes for the settle delay, then moved to processed/ or
// failed/ next to it.
type Inbox struct {
	dir      string
	ingestor ports.DocumentIngestor
	logger   *slog.Logger
	settle   time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
	wg      sync.WaitGroup
}

func NewInbox(dir string, ingestor ports.DocumentIngestor, logger *slog.Logger) *Inbox {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inbox{
		dir:      dir,
		ingestor: ingestor,
		logger:   logger,
		settle:   defaultSettleDelay,
		pending:  make(map[string]*time.Timer),
	}
}

// Watch blocks until ctx is cancelled.
func (in *Inbox) Watch(ctx context.Context) error {
	for _, sub := range []string{processedDir, failedDir} {
		if err := os.MkdirAll(filepath.Join(in.dir, sub), 0o755); err != nil {
			return fmt.Errorf("create inbox dir: %w", err)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create inbox watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(in.dir); err != nil {
		return fmt.Errorf("watch inbox %s: %w", in.dir, err)
	}
	in.logger.Info("inbox_watching", "dir", in.dir)

	defer in.wait()
	// files left over from a previous run
	entries, err := os.ReadDir(in.dir)
	if err != nil {
		return fmt.Errorf("read inbox %s: %w", in.dir, err)
	}
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			in.schedule(ctx, filepath.Join(in.dir, entry.Name()))
		}
	}

	for {
		select {
		case <-ctx.Done():
			in.cancelPending()
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				in.schedule(ctx, event.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			in.logger.Warn("inbox_watch_error", "error", err)
		}
	}
}

func (in *Inbox) schedule(ctx context.Context, path string) {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	// A timer that already fired may have its callback blocked on mu; it
	// must not be re-armed or it runs twice against one wg.Add.
	if t, ok := in.pending[path]; ok && t.Stop() {
		t.Reset(in.settle)
		return
	}
	in.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(in.settle, func() {
		defer in.wg.Done()
		in.mu.Lock()
		if in.pending[path] == t {
			delete(in.pending, path)
		}
		in.mu.Unlock()
		in.ingestFile(ctx, path)
	})
	in.pending[path] = t
}

func (in *Inbox) cancelPending() {
	in.mu.Lock()
	defer in.mu.Unlock()
	for path, t := range in.pending {
		if t.Stop() {
			in.wg.Done()
		}
		delete(in.pending, path)
	}
}

func (in *Inbox) wait() { in.wg.Wait() }

func (in *Inbox) ingestFile(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}
	f, err := os.Open(path)
	if err != nil {
		in.logger.Warn("inbox_open_failed", "path", path, "error", err)
		return
	}
	res, err := in.ingestor.Upload(ctx, filepath.Base(path), f)
	_ = f.Close()
	if ctx.Err() != nil {
		// shutting down; the file is picked up again on the next start
		return
	}

	target := processedDir
	switch {
	case err != nil:
		target = failedDir
		in.logger.Warn("inbox_ingest_rejected", "path", path, "error", err)
	case res.Outcome == domain.IngestFailed:
		target = failedDir
		in.logger.Warn("inbox_ingest_failed", "path", path, "error", res.Err)
	default:
		docID := ""
		if res.Document != nil {
			docID = res.Document.ID
		}
		in.logger.Info("inbox_ingested", "path", path, "outcome", string(res.Outcome), "document_id", docID)
	}
	if err := os.Rename(path, filepath.Join(in.dir, target, filepath.Base(path))); err != nil {
		in.logger.Warn("inbox_move_failed", "path", path, "error", err)
	}
}
