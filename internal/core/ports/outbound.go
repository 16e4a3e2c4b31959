package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/raglite/internal/core/domain"
)

// DocumentRepository persists document state. Create reports
// domain.ErrDuplicateDocument when the fingerprint is already taken.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	GetByFingerprint(ctx context.Context, fingerprint string) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	MarkCompleted(ctx context.Context, id string, pageCount int, chunkIDs []string) error
	List(ctx context.Context, opts domain.ListOptions) ([]domain.Document, error)
	ListStaleProcessing(ctx context.Context, before time.Time) ([]domain.Document, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

// ChatRepository persists answered questions.
type ChatRepository interface {
	Create(ctx context.Context, chat *domain.Chat) error
	// FindByQuestion returns the most recent chat whose question equals q
	// ignoring case, or domain.ErrChatNotFound.
	FindByQuestion(ctx context.Context, q string) (*domain.Chat, error)
	GetByID(ctx context.Context, id string) (*domain.Chat, error)
	AddDocument(ctx context.Context, chatID, documentID string) error
	List(ctx context.Context, opts domain.ListOptions) ([]domain.Chat, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// Fingerprinter computes a fixed-length digest of a byte stream.
type Fingerprinter interface {
	Fingerprint(r io.Reader) (string, error)
}

// TextExtractor extracts page-addressable text from a stored document.
type TextExtractor interface {
	ExtractPages(ctx context.Context, doc *domain.Document) ([]domain.Page, error)
	Supports(filename string) bool
}

// Chunker splits extracted pages into index records.
type Chunker interface {
	Chunk(strategy domain.ChunkType, pages []domain.Page, documentID, source string) ([]domain.Chunk, error)
}

// VectorIndex stores text records in named collections and answers
// nearest-neighbour queries by text. Failures carry domain.ErrIndexUnavailable.
type VectorIndex interface {
	Upsert(ctx context.Context, collection domain.Collection, ids, texts []string, metadatas []map[string]any) error
	QueryNearest(ctx context.Context, collection domain.Collection, text string, k int, filter domain.Filter) ([]domain.Match, error)
	Exists(ctx context.Context, collection domain.Collection, id string) (bool, error)
	Delete(ctx context.Context, collection domain.Collection, ids []string) error
	Count(ctx context.Context, collection domain.Collection) (int, error)
}

// AnswerGenerator produces an answer for a query from assembled context.
type AnswerGenerator interface {
	Generate(ctx context.Context, req domain.GenerationRequest) (string, error)
}

// ReindexQueue publishes and consumes document reindex requests.
type ReindexQueue interface {
	PublishReindex(ctx context.Context, documentID string) error
	SubscribeReindex(ctx context.Context, handler func(context.Context, string) error) error
}

// Embedder turns texts into dense vectors for a vector index backend.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}
