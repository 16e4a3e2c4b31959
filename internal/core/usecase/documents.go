package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/raglite/internal/core/domain"
	"github.com/kirillkom/raglite/internal/core/ports"
)

type DocumentService struct {
	repo      ports.DocumentRepository
	storage   ports.ObjectStorage
	index     ports.VectorIndex
	processor ports.DocumentProcessor
	queue     ports.ReindexQueue
	logger    *slog.Logger
}

// NewDocumentService wires document management. queue may be nil, in which
// case reindex requests run inline.
func NewDocumentService(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	index ports.VectorIndex,
	processor ports.DocumentProcessor,
	queue ports.ReindexQueue,
	logger *slog.Logger,
) *DocumentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentService{
		repo:      repo,
		storage:   storage,
		index:     index,
		processor: processor,
		queue:     queue,
		logger:    logger,
	}
}

func (s *DocumentService) List(ctx context.Context, opts domain.ListOptions) ([]domain.Document, error) {
	return s.repo.List(ctx, opts.Normalize())
}

func (s *DocumentService) Get(ctx context.Context, id string) (*domain.Document, error) {
	return s.repo.GetByID(ctx, id)
}

// Delete removes the document's chunks from the index, then its row, then
// the stored file. A missing file is not an error.
func (s *DocumentService) Delete(ctx context.Context, id string) error {
	doc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if len(doc.ChunkIDs) > 0 {
		if err := s.index.Delete(ctx, domain.CollectionDocuments, doc.ChunkIDs); err != nil {
			return fmt.Errorf("remove document chunks: %w", err)
		}
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.storage.Delete(ctx, doc.StoragePath); err != nil {
		s.logger.Warn("document_file_delete_failed", "document_id", id, "path", doc.StoragePath, "error", err)
	}
	s.logger.Info("document_deleted", "document_id", id, "chunks", len(doc.ChunkIDs))
	return nil
}

// RequestReindex queues the document for reprocessing, or reprocesses it
// inline when no queue is configured. queued reports which happened.
func (s *DocumentService) RequestReindex(ctx context.Context, id string) (bool, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return false, err
	}
	if s.queue != nil {
		if err := s.queue.PublishReindex(ctx, id); err != nil {
			return false, fmt.Errorf("publish reindex: %w", err)
		}
		return true, nil
	}
	if _, err := s.processor.ProcessByID(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

var _ ports.DocumentService = (*DocumentService)(nil)
