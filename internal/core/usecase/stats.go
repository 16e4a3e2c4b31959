package usecase

import (
	"context"
	"fmt"

	"github.com/kirillkom/raglite/internal/core/domain"
	"github.com/kirillkom/raglite/internal/core/ports"
)

type StatsUseCase struct {
	docs  ports.DocumentRepository
	chats ports.ChatRepository
	index ports.VectorIndex
}

func NewStatsUseCase(docs ports.DocumentRepository, chats ports.ChatRepository, index ports.VectorIndex) *StatsUseCase {
	return &StatsUseCase{docs: docs, chats: chats, index: index}
}

func (uc *StatsUseCase) Stats(ctx context.Context) (domain.Stats, error) {
	var stats domain.Stats
	var err error

	if stats.Documents, err = uc.docs.Count(ctx); err != nil {
		return domain.Stats{}, fmt.Errorf("count documents: %w", err)
	}
	if stats.Chats, err = uc.chats.Count(ctx); err != nil {
		return domain.Stats{}, fmt.Errorf("count chats: %w", err)
	}
	if stats.VectorIndex.Documents, err = uc.index.Count(ctx, domain.CollectionDocuments); err != nil {
		return domain.Stats{}, fmt.Errorf("count indexed chunks: %w", err)
	}
	if stats.VectorIndex.CachedQueries, err = uc.index.Count(ctx, domain.CollectionCachedQueries); err != nil {
		return domain.Stats{}, fmt.Errorf("count cached questions: %w", err)
	}
	return stats, nil
}

var _ ports.StatsReader = (*StatsUseCase)(nil)
