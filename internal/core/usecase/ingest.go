package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/raglite/internal/core/domain"
	"github.com/kirillkom/raglite/internal/core/ports"
)

const DefaultMaxUploadBytes int64 = 15 << 20

// IngestObserver receives one call per upload attempt that reached the
// store.
type IngestObserver interface {
	ObserveIngest(outcome string, chunks int, duration time.Duration)
}

type IngestDocumentUseCase struct {
	repo          ports.DocumentRepository
	storage       ports.ObjectStorage
	fingerprinter ports.Fingerprinter
	extractor     ports.TextExtractor
	processor     ports.DocumentProcessor

	maxBytes int64
	logger   *slog.Logger
	observer IngestObserver
	now      func() time.Time
	newID    func() string
}

type IngestOption func(*IngestDocumentUseCase)

func WithMaxUploadBytes(n int64) IngestOption {
	return func(uc *IngestDocumentUseCase) {
		if n > 0 {
			uc.maxBytes = n
		}
	}
}

func WithIngestLogger(logger *slog.Logger) IngestOption {
	return func(uc *IngestDocumentUseCase) {
		if logger != nil {
			uc.logger = logger
		}
	}
}

func WithIngestObserver(observer IngestObserver) IngestOption {
	return func(uc *IngestDocumentUseCase) { uc.observer = observer }
}

func NewIngestDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	fingerprinter ports.Fingerprinter,
	extractor ports.TextExtractor,
	processor ports.DocumentProcessor,
	opts ...IngestOption,
) *IngestDocumentUseCase {
	uc := &IngestDocumentUseCase{
		repo:          repo,
		storage:       storage,
		fingerprinter: fingerprinter,
		extractor:     extractor,
		processor:     processor,
		maxBytes:      DefaultMaxUploadBytes,
		logger:        slog.Default(),
		now:           func() time.Time { return time.Now().UTC() },
		newID:         uuid.NewString,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Upload stores the file, rejects byte-identical duplicates by fingerprint
// and processes the new document synchronously. A processing failure is
// reported through IngestResult (outcome failed, document in status
// failed); the error return covers validation and storage problems.
func (uc *IngestDocumentUseCase) Upload(ctx context.Context, filename string, body io.Reader) (*domain.IngestResult, error) {
	name := filepath.Base(strings.TrimSpace(filename))
	if name == "" || name == "." || name == "/" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", errors.New("filename is required"))
	}
	if !uc.extractor.Supports(name) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", fmt.Errorf("unsupported file type %q", filepath.Ext(name)))
	}

	start := time.Now()
	id := uc.newID()
	storageKey := id + "/" + sanitizeFilename(name)

	size, fingerprint, err := uc.saveAndFingerprint(ctx, storageKey, body)
	if err != nil {
		uc.discard(ctx, storageKey)
		return nil, err
	}
	if size == 0 {
		uc.discard(ctx, storageKey)
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", errors.New("file is empty"))
	}
	if size > uc.maxBytes {
		uc.discard(ctx, storageKey)
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", fmt.Errorf("file exceeds %d bytes", uc.maxBytes))
	}

	existing, err := uc.repo.GetByFingerprint(ctx, fingerprint)
	switch {
	case err == nil:
		uc.discard(ctx, storageKey)
		return uc.finish(start, &domain.IngestResult{Outcome: domain.IngestDuplicate, Document: existing}), nil
	case !domain.IsKind(err, domain.ErrDocumentNotFound):
		uc.discard(ctx, storageKey)
		return nil, fmt.Errorf("check duplicate: %w", err)
	}

	now := uc.now()
	doc := &domain.Document{
		ID:          id,
		Name:        name,
		StoragePath: storageKey,
		Fingerprint: fingerprint,
		Status:      domain.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := uc.repo.Create(ctx, doc); err != nil {
		uc.discard(ctx, storageKey)
		if domain.IsKind(err, domain.ErrDuplicateDocument) {
			// lost the race to a concurrent upload of the same bytes
			winner, getErr := uc.repo.GetByFingerprint(ctx, fingerprint)
			if getErr != nil {
				return nil, fmt.Errorf("load existing document: %w", getErr)
			}
			return uc.finish(start, &domain.IngestResult{Outcome: domain.IngestDuplicate, Document: winner}), nil
		}
		return nil, fmt.Errorf("create document metadata: %w", err)
	}

	summary, procErr := uc.processor.ProcessByID(ctx, id)
	current, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		current = doc
	}
	if procErr != nil {
		return uc.finish(start, &domain.IngestResult{Outcome: domain.IngestFailed, Document: current, Err: procErr}), nil
	}
	return uc.finish(start, &domain.IngestResult{Outcome: domain.IngestProcessed, Document: current, Summary: summary}), nil
}

// saveAndFingerprint streams body into storage and the fingerprinter in one
// pass. At most maxBytes+1 bytes are read so oversize uploads are detected
// without buffering them.
func (uc *IngestDocumentUseCase) saveAndFingerprint(ctx context.Context, key string, body io.Reader) (int64, string, error) {
	pr, pw := io.Pipe()
	type result struct {
		sum string
		err error
	}
	done := make(chan result, 1)
	go func() {
		sum, err := uc.fingerprinter.Fingerprint(pr)
		// unblock the writer if fingerprinting stopped early
		_ = pr.CloseWithError(errors.Join(err, io.ErrClosedPipe))
		done <- result{sum: sum, err: err}
	}()

	limited := io.LimitReader(body, uc.maxBytes+1)
	size, saveErr := uc.storage.Save(ctx, key, io.TeeReader(limited, pw))
	_ = pw.CloseWithError(saveErr)
	fp := <-done

	if saveErr != nil {
		return 0, "", fmt.Errorf("save to storage: %w", saveErr)
	}
	if fp.err != nil {
		return 0, "", fmt.Errorf("fingerprint document: %w", fp.err)
	}
	return size, fp.sum, nil
}

func (uc *IngestDocumentUseCase) finish(start time.Time, res *domain.IngestResult) *domain.IngestResult {
	chunks := res.Summary.Chunks
	if uc.observer != nil {
		uc.observer.ObserveIngest(string(res.Outcome), chunks, time.Since(start))
	}
	attrs := []any{"outcome", string(res.Outcome), "duration_ms", time.Since(start).Milliseconds()}
	if res.Document != nil {
		attrs = append(attrs, "document_id", res.Document.ID, "name", res.Document.Name)
	}
	if res.Err != nil {
		uc.logger.Error("document_ingest_failed", append(attrs, "error", res.Err)...)
	} else {
		uc.logger.Info("document_ingested", append(attrs, "pages", res.Summary.Pages, "chunks", chunks)...)
	}
	return res
}

func (uc *IngestDocumentUseCase) discard(ctx context.Context, key string) {
	if err := uc.storage.Delete(ctx, key); err != nil {
		uc.logger.Warn("storage_cleanup_failed", "key", key, "error", err)
	}
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" {
		return "document.bin"
	}
	return base
}

var _ ports.DocumentIngestor = (*IngestDocumentUseCase)(nil)
