package usecase

import (
	"context"
	"fmt"

	"github.com/kirillkom/raglite/internal/core/domain"
	"github.com/kirillkom/raglite/internal/core/ports"
)

type ChatService struct {
	repo  ports.ChatRepository
	index ports.VectorIndex
}

func NewChatService(repo ports.ChatRepository, index ports.VectorIndex) *ChatService {
	return &ChatService{repo: repo, index: index}
}

func (s *ChatService) List(ctx context.Context, opts domain.ListOptions) ([]domain.Chat, error) {
	return s.repo.List(ctx, opts.Normalize())
}

func (s *ChatService) Get(ctx context.Context, id string) (*domain.Chat, error) {
	return s.repo.GetByID(ctx, id)
}

// Delete removes the chat and its question cache entry so the similarity
// tier cannot point at it anymore.
func (s *ChatService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.index.Delete(ctx, domain.CollectionCachedQueries, []string{id}); err != nil {
		return fmt.Errorf("remove cached question: %w", err)
	}
	return nil
}

var _ ports.ChatService = (*ChatService)(nil)
