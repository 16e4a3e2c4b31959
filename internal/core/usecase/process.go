package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/raglite/internal/core/domain"
	"github.com/kirillkom/raglite/internal/core/ports"
)

const defaultUpsertBatch = 64

type ProcessDocumentUseCase struct {
	repo      ports.DocumentRepository
	extractor ports.TextExtractor
	chunker   ports.Chunker
	index     ports.VectorIndex

	strategy domain.ChunkType
	batch    int
	logger   *slog.Logger
}

type ProcessOption func(*ProcessDocumentUseCase)

func WithChunkStrategy(strategy domain.ChunkType) ProcessOption {
	return func(uc *ProcessDocumentUseCase) {
		if strategy != "" {
			uc.strategy = strategy
		}
	}
}

func WithUpsertBatch(n int) ProcessOption {
	return func(uc *ProcessDocumentUseCase) {
		if n > 0 {
			uc.batch = n
		}
	}
}

func WithProcessLogger(logger *slog.Logger) ProcessOption {
	return func(uc *ProcessDocumentUseCase) {
		if logger != nil {
			uc.logger = logger
		}
	}
}

func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	extractor ports.TextExtractor,
	chunker ports.Chunker,
	index ports.VectorIndex,
	opts ...ProcessOption,
) *ProcessDocumentUseCase {
	uc := &ProcessDocumentUseCase{
		repo:      repo,
		extractor: extractor,
		chunker:   chunker,
		index:     index,
		strategy:  domain.ChunkTypeSize,
		batch:     defaultUpsertBatch,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// ProcessByID extracts, chunks and indexes a stored document. Chunks from a
// previous run are removed first, so it also serves reindexing. On failure
// the document ends in status failed with the error text, and the returned
// error carries domain.ErrDocumentProcessing.
func (uc *ProcessDocumentUseCase) ProcessByID(ctx context.Context, documentID string) (domain.ProcessingSummary, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return domain.ProcessingSummary{}, fmt.Errorf("fetch document by id: %w", err)
	}
	if err := uc.repo.UpdateStatus(ctx, documentID, domain.StatusProcessing, ""); err != nil {
		return domain.ProcessingSummary{}, fmt.Errorf("set status=processing: %w", err)
	}

	summary, chunkIDs, err := uc.processPipeline(ctx, doc)
	if err != nil {
		return summary, uc.fail(ctx, documentID, err)
	}

	if err := uc.repo.MarkCompleted(ctx, documentID, summary.Pages, chunkIDs); err != nil {
		// the row does not record these ids, so nothing could delete them later
		uc.rollbackChunks(ctx, documentID, chunkIDs)
		return summary, uc.fail(ctx, documentID, fmt.Errorf("set status=completed: %w", err))
	}

	uc.logger.Info("document_processed",
		"document_id", documentID,
		"pages", summary.Pages,
		"chunks", summary.Chunks,
		"characters", summary.Characters,
	)
	return summary, nil
}

func (uc *ProcessDocumentUseCase) processPipeline(ctx context.Context, doc *domain.Document) (domain.ProcessingSummary, []string, error) {
	pages, err := uc.extractor.ExtractPages(ctx, doc)
	if err != nil {
		return domain.ProcessingSummary{}, nil, fmt.Errorf("extract text: %w", err)
	}

	summary := domain.ProcessingSummary{Pages: len(pages)}
	for _, p := range pages {
		if strings.TrimSpace(p.Text) != "" {
			summary.Characters += utf8.RuneCountInString(p.Text)
		}
	}
	if summary.Characters == 0 {
		return summary, nil, domain.WrapError(domain.ErrInvalidInput, "extract text", errors.New("document contains no extractable text"))
	}

	chunks, err := uc.chunker.Chunk(uc.strategy, pages, doc.ID, doc.Name)
	if err != nil {
		return summary, nil, fmt.Errorf("chunk document: %w", err)
	}
	if len(chunks) == 0 {
		return summary, nil, domain.WrapError(domain.ErrInvalidInput, "chunk document", errors.New("chunking produced zero chunks"))
	}

	if len(doc.ChunkIDs) > 0 {
		if err := uc.index.Delete(ctx, domain.CollectionDocuments, doc.ChunkIDs); err != nil {
			return summary, nil, fmt.Errorf("remove previous chunks: %w", err)
		}
	}

	ids, err := uc.indexChunks(ctx, doc.ID, chunks)
	if err != nil {
		return summary, nil, err
	}
	summary.Chunks = len(ids)
	return summary, ids, nil
}

func (uc *ProcessDocumentUseCase) indexChunks(ctx context.Context, documentID string, chunks []domain.Chunk) ([]string, error) {
	ids := make([]string, 0, len(chunks))
	for start := 0; start < len(chunks); start += uc.batch {
		end := min(start+uc.batch, len(chunks))
		batch := chunks[start:end]

		batchIDs := make([]string, len(batch))
		texts := make([]string, len(batch))
		metas := make([]map[string]any, len(batch))
		for i, c := range batch {
			batchIDs[i] = c.ID
			texts[i] = c.Text
			metas[i] = c.Metadata.Map()
		}
		if err := uc.index.Upsert(ctx, domain.CollectionDocuments, batchIDs, texts, metas); err != nil {
			// keep the index free of a half-written document
			uc.rollbackChunks(ctx, documentID, ids)
			return nil, fmt.Errorf("index chunks: %w", err)
		}
		ids = append(ids, batchIDs...)
	}
	return ids, nil
}

func (uc *ProcessDocumentUseCase) rollbackChunks(ctx context.Context, documentID string, ids []string) {
	if len(ids) == 0 {
		return
	}
	if err := uc.index.Delete(ctx, domain.CollectionDocuments, ids); err != nil {
		uc.logger.Warn("chunk_rollback_failed",
			"document_id", documentID,
			"chunks", len(ids),
			"error", err,
		)
	}
}

func (uc *ProcessDocumentUseCase) fail(ctx context.Context, documentID string, processErr error) error {
	wrapped := domain.WrapError(domain.ErrDocumentProcessing, "process document", processErr)
	if err := uc.repo.UpdateStatus(ctx, documentID, domain.StatusFailed, processErr.Error()); err != nil {
		return fmt.Errorf("%w; mark failed status: %v", wrapped, err)
	}
	uc.logger.Error("document_processing_failed", "document_id", documentID, "error", processErr)
	return wrapped
}

var _ ports.DocumentProcessor = (*ProcessDocumentUseCase)(nil)
