package ports

import (
	"context"
	"io"

	"github.com/kirillkom/raglite/internal/core/domain"
)

// QueryResolver answers questions through the cache, retrieval and generation tiers.
type QueryResolver interface {
	Resolve(ctx context.Context, req domain.QueryRequest) (domain.Outcome, error)
}

// DocumentIngestor is the inbound contract for document uploads.
type DocumentIngestor interface {
	Upload(ctx context.Context, filename string, body io.Reader) (*domain.IngestResult, error)
}

// DocumentProcessor runs extraction, chunking and indexing for a stored document.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) (domain.ProcessingSummary, error)
}

// DocumentService is the read/delete/reindex model for documents.
type DocumentService interface {
	List(ctx context.Context, opts domain.ListOptions) ([]domain.Document, error)
	Get(ctx context.Context, id string) (*domain.Document, error)
	Delete(ctx context.Context, id string) error
	RequestReindex(ctx context.Context, id string) (queued bool, err error)
}

// ChatService is the read/delete model for chat history.
type ChatService interface {
	List(ctx context.Context, opts domain.ListOptions) ([]domain.Chat, error)
	Get(ctx context.Context, id string) (*domain.Chat, error)
	Delete(ctx context.Context, id string) error
}

// StatsReader reports store and index sizes.
type StatsReader interface {
	Stats(ctx context.Context) (domain.Stats, error)
}
