package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/raglite/internal/core/domain"
	"github.com/kirillkom/raglite/internal/core/ports"
)

const (
	DefaultSimilarityThreshold = 0.15
	DefaultRetrievalTopK       = 3

	contextSeparator = "\n\n---\n\n"
)

type SimilarityScope string

const (
	// ScopeGlobal checks the question cache across all documents, even when
	// retrieval is restricted to one document.
	ScopeGlobal SimilarityScope = "global"
	// ScopeDocument restricts the question cache lookup to entries created
	// for the same document.
	ScopeDocument SimilarityScope = "document"
)

// QueryObserver receives one call per resolved query.
type QueryObserver interface {
	ObserveQuery(outcome string, chunksUsed int, duration time.Duration)
}

type QueryResolverUseCase struct {
	chats     ports.ChatRepository
	index     ports.VectorIndex
	generator ports.AnswerGenerator

	threshold    float64
	topK         int
	scope        SimilarityScope
	defaultModel string
	temperature  float64

	logger   *slog.Logger
	observer QueryObserver
	now      func() time.Time
	newID    func() string
}

type QueryOption func(*QueryResolverUseCase)

func WithSimilarityThreshold(threshold float64) QueryOption {
	return func(uc *QueryResolverUseCase) {
		if threshold >= 0 {
			uc.threshold = threshold
		}
	}
}

func WithRetrievalTopK(k int) QueryOption {
	return func(uc *QueryResolverUseCase) {
		if k > 0 {
			uc.topK = k
		}
	}
}

func WithSimilarityScope(scope SimilarityScope) QueryOption {
	return func(uc *QueryResolverUseCase) {
		if scope == ScopeDocument {
			uc.scope = ScopeDocument
		}
	}
}

func WithDefaultModel(model string) QueryOption {
	return func(uc *QueryResolverUseCase) {
		if m := strings.TrimSpace(model); m != "" {
			uc.defaultModel = m
		}
	}
}

func WithTemperature(t float64) QueryOption {
	return func(uc *QueryResolverUseCase) { uc.temperature = t }
}

func WithQueryLogger(logger *slog.Logger) QueryOption {
	return func(uc *QueryResolverUseCase) {
		if logger != nil {
			uc.logger = logger
		}
	}
}

func WithQueryObserver(observer QueryObserver) QueryOption {
	return func(uc *QueryResolverUseCase) { uc.observer = observer }
}

func NewQueryResolverUseCase(
	chats ports.ChatRepository,
	index ports.VectorIndex,
	generator ports.AnswerGenerator,
	opts ...QueryOption,
) *QueryResolverUseCase {
	uc := &QueryResolverUseCase{
		chats:        chats,
		index:        index,
		generator:    generator,
		threshold:    DefaultSimilarityThreshold,
		topK:         DefaultRetrievalTopK,
		scope:        ScopeGlobal,
		defaultModel: domain.DefaultModel,
		temperature:  domain.DefaultTemperature,
		logger:       slog.Default(),
		now:          func() time.Time { return time.Now().UTC() },
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Resolve runs exact cache, similarity cache, retrieval, generation and
// persistence in that order. Pipeline failures come back as an Outcome of
// kind failed or not-found; the error return is reserved for invalid input.
func (uc *QueryResolverUseCase) Resolve(ctx context.Context, req domain.QueryRequest) (domain.Outcome, error) {
	question := domain.NormalizeQuestion(req.Text)
	if question == "" {
		return domain.Outcome{}, domain.WrapError(domain.ErrInvalidInput, "resolve query", errors.New("query text is empty"))
	}
	req.Text = question

	start := time.Now()
	outcome := uc.resolve(ctx, req)
	uc.report(req, outcome, time.Since(start))
	return outcome, nil
}

func (uc *QueryResolverUseCase) resolve(ctx context.Context, req domain.QueryRequest) domain.Outcome {
	if outcome, hit, err := uc.exactMatch(ctx, req.Text); err != nil {
		return failed(domain.MessageQueryFailed, err)
	} else if hit {
		return outcome
	}

	if outcome, hit, err := uc.similarMatch(ctx, req); err != nil {
		return failed(domain.MessageQueryFailed, err)
	} else if hit {
		return outcome
	}

	matches, err := uc.retrieve(ctx, req)
	if err != nil {
		return failed(domain.MessageQueryFailed, err)
	}
	if len(matches) == 0 {
		return domain.Outcome{
			Kind:    domain.OutcomeNotFound,
			Message: domain.MessageNoDocuments,
			Err:     domain.ErrNoRelevantDocuments,
		}
	}

	model := uc.defaultModel
	if m := strings.TrimSpace(req.Model); m != "" {
		model = m
	}
	answer, err := uc.generator.Generate(ctx, domain.GenerationRequest{
		Query:       req.Text,
		Context:     assembleContext(matches),
		Temperature: uc.temperature,
		Model:       model,
	})
	if err != nil {
		return failed(domain.MessageQueryFailed, err)
	}
	if strings.TrimSpace(answer) == "" {
		return failed(domain.MessageGenerationFailed, domain.WrapError(domain.ErrEmptyGeneration, "generate answer", fmt.Errorf("model %s returned no text", model)))
	}

	sources := make([]domain.ChunkMetadata, 0, len(matches))
	for _, m := range matches {
		sources = append(sources, domain.ChunkMetadataFromMap(m.Metadata))
	}

	chat, err := uc.persist(ctx, req, answer, model, sources)
	if err != nil {
		return failed(domain.MessageQueryFailed, err)
	}

	return domain.Outcome{
		Kind:         domain.OutcomeGenerated,
		Answer:       answer,
		ChatID:       chat.ID,
		SourceChunks: sources,
		ChunksUsed:   len(matches),
	}
}

func (uc *QueryResolverUseCase) exactMatch(ctx context.Context, question string) (domain.Outcome, bool, error) {
	chat, err := uc.chats.FindByQuestion(ctx, question)
	if err != nil {
		if domain.IsKind(err, domain.ErrChatNotFound) {
			return domain.Outcome{}, false, nil
		}
		return domain.Outcome{}, false, fmt.Errorf("exact cache lookup: %w", err)
	}
	return domain.Outcome{
		Kind:         domain.OutcomeHitExact,
		Answer:       chat.Answer,
		ChatID:       chat.ID,
		SourceChunks: chat.SourceChunks,
	}, true, nil
}

func (uc *QueryResolverUseCase) similarMatch(ctx context.Context, req domain.QueryRequest) (domain.Outcome, bool, error) {
	var filter domain.Filter
	if uc.scope == ScopeDocument && req.DocumentID != "" {
		filter = domain.Filter{Key: domain.ChunkDocumentIDFilter, Value: req.DocumentID}
	}

	matches, err := uc.index.QueryNearest(ctx, domain.CollectionCachedQueries, req.Text, 1, filter)
	if err != nil {
		return domain.Outcome{}, false, fmt.Errorf("similarity cache lookup: %w", err)
	}
	if len(matches) == 0 {
		return domain.Outcome{}, false, nil
	}
	nearest := matches[0]
	// strict: a match exactly at the threshold is a miss
	if nearest.Distance >= uc.threshold {
		return domain.Outcome{}, false, nil
	}

	chatID := nearest.ID
	if v, ok := nearest.Metadata[domain.CachedQueryChatIDKey].(string); ok && v != "" {
		chatID = v
	}
	chat, err := uc.chats.GetByID(ctx, chatID)
	if err != nil {
		if domain.IsKind(err, domain.ErrChatNotFound) {
			uc.logger.Warn("similarity_cache_drift", "chat_id", chatID, "distance", nearest.Distance)
			return domain.Outcome{}, false, nil
		}
		return domain.Outcome{}, false, fmt.Errorf("resolve cached chat: %w", err)
	}

	score := 1 - nearest.Distance
	return domain.Outcome{
		Kind:            domain.OutcomeHitSimilar,
		Answer:          chat.Answer,
		ChatID:          chat.ID,
		SourceChunks:    chat.SourceChunks,
		SimilarityScore: &score,
	}, true, nil
}

func (uc *QueryResolverUseCase) retrieve(ctx context.Context, req domain.QueryRequest) ([]domain.Match, error) {
	var filter domain.Filter
	if req.DocumentID != "" {
		filter = domain.Filter{Key: domain.ChunkDocumentIDFilter, Value: req.DocumentID}
	}
	matches, err := uc.index.QueryNearest(ctx, domain.CollectionDocuments, req.Text, uc.topK, filter)
	if err != nil {
		return nil, fmt.Errorf("retrieve chunks: %w", err)
	}
	return matches, nil
}

// persist stores the chat, links it to the requested document and registers
// the question in the similarity cache.
func (uc *QueryResolverUseCase) persist(ctx context.Context, req domain.QueryRequest, answer, model string, sources []domain.ChunkMetadata) (*domain.Chat, error) {
	now := uc.now()
	chat := &domain.Chat{
		ID:           uc.newID(),
		Question:     req.Text,
		Answer:       answer,
		SourceChunks: sources,
		Model:        model,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := uc.chats.Create(ctx, chat); err != nil {
		return nil, fmt.Errorf("persist chat: %w", err)
	}

	if req.DocumentID != "" {
		if err := uc.chats.AddDocument(ctx, chat.ID, req.DocumentID); err != nil {
			uc.logger.Warn("chat_document_link_failed", "chat_id", chat.ID, "document_id", req.DocumentID, "error", err)
		}
	}

	meta := map[string]any{
		domain.CachedQueryChatIDKey: chat.ID,
		domain.CachedQueryAnswerKey: domain.TruncateAnswer(answer),
	}
	if req.DocumentID != "" {
		meta[domain.ChunkDocumentIDFilter] = req.DocumentID
	}
	if err := uc.index.Upsert(ctx, domain.CollectionCachedQueries, []string{chat.ID}, []string{chat.Question}, []map[string]any{meta}); err != nil {
		return nil, fmt.Errorf("register cached question: %w", err)
	}
	return chat, nil
}

func (uc *QueryResolverUseCase) report(req domain.QueryRequest, outcome domain.Outcome, elapsed time.Duration) {
	if uc.observer != nil {
		uc.observer.ObserveQuery(string(outcome.Kind), outcome.ChunksUsed, elapsed)
	}

	attrs := []any{
		"outcome", string(outcome.Kind),
		"chat_id", outcome.ChatID,
		"document_id", req.DocumentID,
		"model", req.Model,
		"chunks_used", outcome.ChunksUsed,
		"duration_ms", elapsed.Milliseconds(),
	}
	if outcome.Kind == domain.OutcomeFailed {
		kind := domain.KindOf(outcome.Err)
		kindName := "unknown"
		if kind != nil {
			kindName = kind.Error()
		}
		uc.logger.Error("query_failed", append(attrs, "kind", kindName, "error", outcome.Err)...)
		return
	}
	uc.logger.Info("query_resolved", attrs...)
}

func assembleContext(matches []domain.Match) string {
	texts := make([]string, 0, len(matches))
	for _, m := range matches {
		texts = append(texts, m.Text)
	}
	return strings.Join(texts, contextSeparator)
}

func failed(message string, err error) domain.Outcome {
	return domain.Outcome{Kind: domain.OutcomeFailed, Message: message, Err: err}
}

var _ ports.QueryResolver = (*QueryResolverUseCase)(nil)
