package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/raglite/internal/core/domain"
)

func newResolver(chats *chatRepoFake, index *indexFake, gen *generatorFake, opts ...QueryOption) *QueryResolverUseCase {
	uc := NewQueryResolverUseCase(chats, index, gen, opts...)
	n := 0
	uc.newID = func() string {
		n++
		return fmt.Sprintf("chat-%d", n)
	}
	return uc
}

func docChunks() []domain.Match {
	return []domain.Match{
		{ID: "c1", Text: "Employees get 25 vacation days.", Distance: 0.2, Metadata: map[string]any{"document_id": "doc-1", "source": "hr.pdf", "page": float64(3), "chunk_type": "size", "chunk_index": float64(0)}},
		{ID: "c2", Text: "Vacation carries over.", Distance: 0.3, Metadata: map[string]any{"document_id": "doc-1", "source": "hr.pdf", "page": float64(4), "chunk_type": "size", "chunk_index": float64(1)}},
	}
}

func TestResolveExactMatchIsCaseInsensitive(t *testing.T) {
	chats := newChatRepoFake(&domain.Chat{ID: "chat-old", Question: "What is X?", Answer: "X is Y.", SourceChunks: []domain.ChunkMetadata{{DocumentID: "doc-1", Page: 2}}})
	index := newIndexFake()
	gen := &generatorFake{answer: "unused"}
	uc := newResolver(chats, index, gen)

	out, err := uc.Resolve(context.Background(), domain.QueryRequest{Text: "  what is x?  "})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if out.Kind != domain.OutcomeHitExact || out.Source() != domain.SourceCacheExact {
		t.Fatalf("expected exact hit, got %s", out.Kind)
	}
	if out.ChatID != "chat-old" || out.Answer != "X is Y." || out.SimilarityScore != nil {
		t.Fatalf("unexpected outcome: %#v", out)
	}
	if len(out.SourceChunks) != 1 {
		t.Fatalf("expected stored provenance, got %v", out.SourceChunks)
	}
	if len(index.queries) != 0 || len(gen.calls) != 0 {
		t.Fatalf("exact hit must not touch index or generator: queries=%d calls=%d", len(index.queries), len(gen.calls))
	}
}

func TestResolveExactMatchWinsOverSimilarity(t *testing.T) {
	chats := newChatRepoFake(
		&domain.Chat{ID: "exact", Question: "What is X?", Answer: "exact answer"},
		&domain.Chat{ID: "similar", Question: "What's X?", Answer: "similar answer"},
	)
	index := newIndexFake()
	index.results[domain.CollectionCachedQueries] = []domain.Match{{ID: "similar", Distance: 0.01, Metadata: map[string]any{"chat_id": "similar"}}}
	uc := newResolver(chats, index, &generatorFake{})

	out, _ := uc.Resolve(context.Background(), domain.QueryRequest{Text: "what is x?"})
	if out.Kind != domain.OutcomeHitExact || out.ChatID != "exact" {
		t.Fatalf("expected exact hit on chat exact, got %s %s", out.Kind, out.ChatID)
	}
}

func TestResolveSimilarityHitBelowThreshold(t *testing.T) {
	chats := newChatRepoFake(&domain.Chat{ID: "chat-1", Question: "How many vacation days do I get?", Answer: "25."})
	index := newIndexFake()
	index.results[domain.CollectionCachedQueries] = []domain.Match{{ID: "chat-1", Distance: 0.1, Metadata: map[string]any{"chat_id": "chat-1"}}}
	gen := &generatorFake{answer: "unused"}
	uc := newResolver(chats, index, gen)

	out, err := uc.Resolve(context.Background(), domain.QueryRequest{Text: "how many vacation days?"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if out.Kind != domain.OutcomeHitSimilar || out.Source() != domain.SourceCacheSimilar {
		t.Fatalf("expected similar hit, got %s", out.Kind)
	}
	if out.SimilarityScore == nil || *out.SimilarityScore < 0.8999 || *out.SimilarityScore > 0.9001 {
		t.Fatalf("expected score 0.9, got %v", out.SimilarityScore)
	}
	if len(gen.calls) != 0 {
		t.Fatalf("similar hit must not call generator")
	}
	if q := index.queries[0]; q.collection != domain.CollectionCachedQueries || q.k != 1 {
		t.Fatalf("expected nearest-1 cache lookup, got %#v", q)
	}
}

func TestResolveSimilarityAtThresholdIsMiss(t *testing.T) {
	chats := newChatRepoFake(&domain.Chat{ID: "chat-1", Question: "cached", Answer: "cached answer"})
	index := newIndexFake()
	index.results[domain.CollectionCachedQueries] = []domain.Match{{ID: "chat-1", Distance: 0.15, Metadata: map[string]any{"chat_id": "chat-1"}}}
	index.results[domain.CollectionDocuments] = docChunks()
	gen := &generatorFake{answer: "fresh"}
	uc := newResolver(chats, index, gen)

	out, _ := uc.Resolve(context.Background(), domain.QueryRequest{Text: "something else"})
	if out.Kind != domain.OutcomeGenerated {
		t.Fatalf("distance == threshold must miss, got %s", out.Kind)
	}
	if len(gen.calls) != 1 {
		t.Fatalf("expected one generator call, got %d", len(gen.calls))
	}
}

func TestResolveSimilarityDriftFallsThroughToGeneration(t *testing.T) {
	chats := newChatRepoFake()
	index := newIndexFake()
	index.results[domain.CollectionCachedQueries] = []domain.Match{{ID: "deleted-chat", Distance: 0.01, Metadata: map[string]any{"chat_id": "deleted-chat"}}}
	index.results[domain.CollectionDocuments] = docChunks()
	gen := &generatorFake{answer: "regenerated"}
	uc := newResolver(chats, index, gen)

	out, err := uc.Resolve(context.Background(), domain.QueryRequest{Text: "q"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if out.Kind != domain.OutcomeGenerated || out.Answer != "regenerated" {
		t.Fatalf("expected generated outcome after drift, got %#v", out)
	}
}

func TestResolveNoChunksIsNotFoundWithoutGeneration(t *testing.T) {
	index := newIndexFake()
	gen := &generatorFake{answer: "never"}
	uc := newResolver(newChatRepoFake(), index, gen)

	out, err := uc.Resolve(context.Background(), domain.QueryRequest{Text: "anything"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if out.Kind != domain.OutcomeNotFound || out.Message != domain.MessageNoDocuments {
		t.Fatalf("expected not-found, got %#v", out)
	}
	if !errors.Is(out.Err, domain.ErrNoRelevantDocuments) {
		t.Fatalf("expected ErrNoRelevantDocuments, got %v", out.Err)
	}
	if len(gen.calls) != 0 {
		t.Fatalf("expected zero generator calls, got %d", len(gen.calls))
	}
}

func TestResolveGeneratedPersistsOneChatAndOneCacheEntry(t *testing.T) {
	chats := newChatRepoFake()
	index := newIndexFake()
	index.results[domain.CollectionDocuments] = docChunks()
	long := strings.Repeat("a", 600)
	gen := &generatorFake{answer: long}
	uc := newResolver(chats, index, gen)

	out, err := uc.Resolve(context.Background(), domain.QueryRequest{Text: "How many vacation days?"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if out.Kind != domain.OutcomeGenerated || out.Source() != domain.SourceGenerated {
		t.Fatalf("expected generated, got %s", out.Kind)
	}
	if out.ChunksUsed != 2 || len(out.SourceChunks) != 2 || out.SourceChunks[0].Page != 3 {
		t.Fatalf("unexpected provenance: %#v", out.SourceChunks)
	}

	req := gen.calls[0]
	if req.Model != domain.DefaultModel || req.Temperature != domain.DefaultTemperature {
		t.Fatalf("unexpected generation defaults: %#v", req)
	}
	if req.Context != "Employees get 25 vacation days.\n\n---\n\nVacation carries over." {
		t.Fatalf("unexpected context: %q", req.Context)
	}

	if chats.creates != 1 {
		t.Fatalf("expected exactly one chat, got %d", chats.creates)
	}
	stored, _ := chats.GetByID(context.Background(), out.ChatID)
	if stored.SimilarityScore != nil || stored.Question != "How many vacation days?" {
		t.Fatalf("unexpected stored chat: %#v", stored)
	}

	entries := index.upsertsTo(domain.CollectionCachedQueries)
	if len(entries) != 1 || len(entries[0].ids) != 1 || entries[0].ids[0] != out.ChatID {
		t.Fatalf("expected one cache entry keyed by chat id, got %#v", entries)
	}
	meta := entries[0].metadatas[0]
	if meta["chat_id"] != out.ChatID || len([]rune(meta["answer"].(string))) != 500 {
		t.Fatalf("unexpected cache metadata: %v", meta)
	}
	if entries[0].texts[0] != "How many vacation days?" {
		t.Fatalf("cache entry text should be the question, got %q", entries[0].texts[0])
	}
}

func TestResolvePassesRequestedModelAndDocumentFilter(t *testing.T) {
	chats := newChatRepoFake()
	index := newIndexFake()
	index.results[domain.CollectionDocuments] = docChunks()
	gen := &generatorFake{answer: "ok"}
	uc := newResolver(chats, index, gen)

	out, _ := uc.Resolve(context.Background(), domain.QueryRequest{Text: "q", DocumentID: "doc-1", Model: "mistral"})
	if out.Kind != domain.OutcomeGenerated {
		t.Fatalf("expected generated, got %s", out.Kind)
	}
	if gen.calls[0].Model != "mistral" {
		t.Fatalf("expected requested model, got %q", gen.calls[0].Model)
	}

	// global scope: cache lookup is unfiltered, retrieval is filtered
	if f := index.queries[0].filter; !f.IsZero() {
		t.Fatalf("similarity lookup should be global, got %#v", f)
	}
	if f := index.queries[1].filter; f.Key != "document_id" || f.Value != "doc-1" {
		t.Fatalf("retrieval should be filtered by document, got %#v", f)
	}
	if links := chats.links[out.ChatID]; len(links) != 1 || links[0] != "doc-1" {
		t.Fatalf("expected chat linked to doc-1, got %v", links)
	}
}

func TestResolveDocumentScopeFiltersSimilarityLookup(t *testing.T) {
	index := newIndexFake()
	index.results[domain.CollectionDocuments] = docChunks()
	uc := newResolver(newChatRepoFake(), index, &generatorFake{answer: "ok"}, WithSimilarityScope(ScopeDocument))

	_, _ = uc.Resolve(context.Background(), domain.QueryRequest{Text: "q", DocumentID: "doc-9"})
	if f := index.queries[0].filter; f.Key != "document_id" || f.Value != "doc-9" {
		t.Fatalf("expected document-scoped cache lookup, got %#v", f)
	}
	entries := index.upsertsTo(domain.CollectionCachedQueries)
	if entries[0].metadatas[0]["document_id"] != "doc-9" {
		t.Fatalf("cache entry should carry the document id")
	}
}

func TestResolveSwallowsAssociationFailure(t *testing.T) {
	chats := newChatRepoFake()
	chats.linkErr = domain.WrapError(domain.ErrDocumentNotFound, "link", errors.New("gone"))
	index := newIndexFake()
	index.results[domain.CollectionDocuments] = docChunks()
	uc := newResolver(chats, index, &generatorFake{answer: "ok"})

	out, _ := uc.Resolve(context.Background(), domain.QueryRequest{Text: "q", DocumentID: "gone"})
	if out.Kind != domain.OutcomeGenerated {
		t.Fatalf("association failure must not fail the query, got %s (%v)", out.Kind, out.Err)
	}
	if len(index.upsertsTo(domain.CollectionCachedQueries)) != 1 {
		t.Fatalf("cache entry should still be registered")
	}
}

func TestResolveEmptyAnswerFails(t *testing.T) {
	chats := newChatRepoFake()
	index := newIndexFake()
	index.results[domain.CollectionDocuments] = docChunks()
	uc := newResolver(chats, index, &generatorFake{answer: "   "})

	out, _ := uc.Resolve(context.Background(), domain.QueryRequest{Text: "q"})
	if out.Kind != domain.OutcomeFailed || out.Message != domain.MessageGenerationFailed {
		t.Fatalf("expected generation failure, got %#v", out)
	}
	if !errors.Is(out.Err, domain.ErrEmptyGeneration) {
		t.Fatalf("expected ErrEmptyGeneration, got %v", out.Err)
	}
	if chats.creates != 0 || len(index.upsertsTo(domain.CollectionCachedQueries)) != 0 {
		t.Fatalf("nothing should be persisted on empty answer")
	}
}

func TestResolveGenerationErrorsKeepKind(t *testing.T) {
	kinds := []error{domain.ErrModelNotFound, domain.ErrGenerationTimeout, domain.ErrGenerationTransport, domain.ErrGenerationUnexpected}
	for _, kind := range kinds {
		index := newIndexFake()
		index.results[domain.CollectionDocuments] = docChunks()
		uc := newResolver(newChatRepoFake(), index, &generatorFake{err: domain.WrapError(kind, "generate", errors.New("boom"))})

		out, _ := uc.Resolve(context.Background(), domain.QueryRequest{Text: "q"})
		if out.Kind != domain.OutcomeFailed || out.Message != domain.MessageQueryFailed {
			t.Fatalf("%v: expected failed outcome, got %#v", kind, out)
		}
		if !errors.Is(out.Err, kind) {
			t.Fatalf("expected %v to be retained, got %v", kind, out.Err)
		}
	}
}

func TestResolveIndexFailureIsFailedOutcome(t *testing.T) {
	index := newIndexFake()
	index.queryErr[domain.CollectionDocuments] = domain.WrapError(domain.ErrIndexUnavailable, "query", errors.New("down"))
	gen := &generatorFake{answer: "never"}
	uc := newResolver(newChatRepoFake(), index, gen)

	out, err := uc.Resolve(context.Background(), domain.QueryRequest{Text: "q"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if out.Kind != domain.OutcomeFailed || !errors.Is(out.Err, domain.ErrIndexUnavailable) {
		t.Fatalf("expected failed with index kind, got %#v", out)
	}
	if len(gen.calls) != 0 {
		t.Fatalf("generator must not run after retrieval failure")
	}
}

func TestResolveRejectsEmptyQuery(t *testing.T) {
	uc := newResolver(newChatRepoFake(), newIndexFake(), &generatorFake{})
	_, err := uc.Resolve(context.Background(), domain.QueryRequest{Text: "   "})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

type queryObserverFake struct {
	outcomes []string
}

func (f *queryObserverFake) ObserveQuery(outcome string, _ int, _ time.Duration) {
	f.outcomes = append(f.outcomes, outcome)
}

func TestResolveReportsOutcomeToObserver(t *testing.T) {
	obs := &queryObserverFake{}
	uc := newResolver(newChatRepoFake(), newIndexFake(), &generatorFake{}, WithQueryObserver(obs))

	_, _ = uc.Resolve(context.Background(), domain.QueryRequest{Text: "q"})
	if len(obs.outcomes) != 1 || obs.outcomes[0] != string(domain.OutcomeNotFound) {
		t.Fatalf("unexpected observed outcomes: %v", obs.outcomes)
	}
}
