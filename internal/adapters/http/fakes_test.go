package httpadapter

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/kirillkom/raglite/internal/config"
	"github.com/kirillkom/raglite/internal/core/domain"
)

type ingestFake struct {
	result   *domain.IngestResult
	err      error
	filename string
	body     string
}

func (f *ingestFake) Upload(_ context.Context, filename string, body io.Reader) (*domain.IngestResult, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	f.filename = filename
	f.body = string(raw)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type resolverFake struct {
	outcome domain.Outcome
	err     error
	got     domain.QueryRequest
}

func (f *resolverFake) Resolve(_ context.Context, req domain.QueryRequest) (domain.Outcome, error) {
	f.got = req
	return f.outcome, f.err
}

type documentsFake struct {
	docs      map[string]*domain.Document
	queue     bool
	deleted   []string
	reindexed []string
	listOpts  domain.ListOptions
	err       error
}

func (f *documentsFake) List(_ context.Context, opts domain.ListOptions) ([]domain.Document, error) {
	f.listOpts = opts
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.Document, 0, len(f.docs))
	for _, d := range f.docs {
		out = append(out, *d)
	}
	return out, nil
}

func (f *documentsFake) Get(_ context.Context, id string) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	d, ok := f.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", errors.New(id))
	}
	return d, nil
}

func (f *documentsFake) Delete(ctx context.Context, id string) error {
	if _, err := f.Get(ctx, id); err != nil {
		return err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *documentsFake) RequestReindex(ctx context.Context, id string) (bool, error) {
	if _, err := f.Get(ctx, id); err != nil {
		return false, err
	}
	f.reindexed = append(f.reindexed, id)
	return f.queue, nil
}

type chatsFake struct {
	chats   map[string]*domain.Chat
	deleted []string
}

func (f *chatsFake) List(context.Context, domain.ListOptions) ([]domain.Chat, error) {
	out := make([]domain.Chat, 0, len(f.chats))
	for _, c := range f.chats {
		out = append(out, *c)
	}
	return out, nil
}

func (f *chatsFake) Get(_ context.Context, id string) (*domain.Chat, error) {
	c, ok := f.chats[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrChatNotFound, "get chat", errors.New(id))
	}
	return c, nil
}

func (f *chatsFake) Delete(ctx context.Context, id string) error {
	if _, err := f.Get(ctx, id); err != nil {
		return err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

type statsFake struct {
	stats domain.Stats
	err   error
}

func (f statsFake) Stats(context.Context) (domain.Stats, error) {
	return f.stats, f.err
}

type pingFake struct{ err error }

func (f pingFake) PingContext(context.Context) error { return f.err }

type testEnv struct {
	ingest    *ingestFake
	resolver  *resolverFake
	documents *documentsFake
	chats     *chatsFake
	handler   http.Handler
}

func testConfig() config.Config {
	return config.Config{
		MaxUploadBytes:      1 << 20,
		APIMaxInFlight:      8,
		APIBackpressureWait: 50 * time.Millisecond,
	}
}

func newTestEnv(t *testing.T, cfg config.Config) *testEnv {
	t.Helper()
	now := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	env := &testEnv{
		ingest:   &ingestFake{},
		resolver: &resolverFake{},
		documents: &documentsFake{docs: map[string]*domain.Document{
			"doc-1": {ID: "doc-1", Name: "hr.pdf", Status: domain.StatusCompleted, CreatedAt: now, UpdatedAt: now},
		}},
		chats: &chatsFake{chats: map[string]*domain.Chat{
			"chat-1": {ID: "chat-1", Question: "q", Answer: "a", CreatedAt: now, UpdatedAt: now},
		}},
	}
	router, err := NewRouter(cfg, Dependencies{
		Ingest:    env.ingest,
		Query:     env.resolver,
		Documents: env.documents,
		Chats:     env.chats,
		Stats:     statsFake{stats: domain.Stats{Documents: 1, Chats: 1, VectorIndex: domain.IndexStats{Documents: 4, CachedQueries: 1}}},
		Database:  pingFake{},
		Models:    modelsFake{"llama3.2", "mistral"},
	})
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}
	env.handler = router.Handler()
	return env
}

type modelsFake []string

func (m modelsFake) Models() []string { return m }
