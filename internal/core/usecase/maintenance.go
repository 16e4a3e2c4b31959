package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/raglite/internal/core/domain"
	"github.com/kirillkom/raglite/internal/core/ports"
)

const staleProcessingMessage = "processing interrupted: no progress before the stale deadline"

type MaintenanceUseCase struct {
	repo   ports.DocumentRepository
	logger *slog.Logger
	now    func() time.Time
}

func NewMaintenanceUseCase(repo ports.DocumentRepository, logger *slog.Logger) *MaintenanceUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &MaintenanceUseCase{
		repo:   repo,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// FailStaleProcessing marks documents that have sat in processing for
// longer than olderThan as failed. A process crash mid-ingest leaves such
// rows behind.
func (uc *MaintenanceUseCase) FailStaleProcessing(ctx context.Context, olderThan time.Duration) (int, error) {
	stale, err := uc.repo.ListStaleProcessing(ctx, uc.now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("list stale documents: %w", err)
	}

	marked := 0
	for _, doc := range stale {
		if err := uc.repo.UpdateStatus(ctx, doc.ID, domain.StatusFailed, staleProcessingMessage); err != nil {
			uc.logger.Warn("stale_document_update_failed", "document_id", doc.ID, "error", err)
			continue
		}
		marked++
	}
	if marked > 0 {
		uc.logger.Info("stale_documents_failed", "count", marked)
	}
	return marked, nil
}
