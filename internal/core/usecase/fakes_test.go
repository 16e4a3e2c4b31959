package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/raglite/internal/core/domain"
)

type chatRepoFake struct {
	mu        sync.Mutex
	chats     map[string]*domain.Chat
	links     map[string][]string
	findErr   error
	createErr error
	linkErr   error
	creates   int
}

func newChatRepoFake(chats ...*domain.Chat) *chatRepoFake {
	f := &chatRepoFake{chats: map[string]*domain.Chat{}, links: map[string][]string{}}
	for _, c := range chats {
		f.chats[c.ID] = c
	}
	return f
}

func (f *chatRepoFake) Create(_ context.Context, chat *domain.Chat) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.creates++
	c := *chat
	f.chats[chat.ID] = &c
	return nil
}

func (f *chatRepoFake) FindByQuestion(_ context.Context, q string) (*domain.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	var best *domain.Chat
	for _, c := range f.chats {
		if strings.EqualFold(c.Question, q) && (best == nil || c.CreatedAt.After(best.CreatedAt)) {
			best = c
		}
	}
	if best == nil {
		return nil, domain.WrapError(domain.ErrChatNotFound, "find chat", errors.New("miss"))
	}
	c := *best
	return &c, nil
}

func (f *chatRepoFake) GetByID(_ context.Context, id string) (*domain.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.chats[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrChatNotFound, "get chat", errors.New(id))
	}
	out := *c
	return &out, nil
}

func (f *chatRepoFake) AddDocument(_ context.Context, chatID, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.linkErr != nil {
		return f.linkErr
	}
	f.links[chatID] = append(f.links[chatID], documentID)
	return nil
}

func (f *chatRepoFake) List(context.Context, domain.ListOptions) ([]domain.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Chat, 0, len(f.chats))
	for _, c := range f.chats {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *chatRepoFake) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.chats[id]; !ok {
		return domain.WrapError(domain.ErrChatNotFound, "delete chat", errors.New(id))
	}
	delete(f.chats, id)
	return nil
}

func (f *chatRepoFake) Count(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.chats), nil
}

type upsertCall struct {
	collection domain.Collection
	ids        []string
	texts      []string
	metadatas  []map[string]any
}

type queryCall struct {
	collection domain.Collection
	k          int
	filter     domain.Filter
}

// indexFake returns canned matches per collection and records writes.
type indexFake struct {
	mu        sync.Mutex
	results   map[domain.Collection][]domain.Match
	queryErr  map[domain.Collection]error
	upsertErr error
	deleteErr error
	upserts   []upsertCall
	queries   []queryCall
	deleted   map[domain.Collection][]string
	counts    map[domain.Collection]int
}

func newIndexFake() *indexFake {
	return &indexFake{
		results:  map[domain.Collection][]domain.Match{},
		queryErr: map[domain.Collection]error{},
		deleted:  map[domain.Collection][]string{},
		counts:   map[domain.Collection]int{},
	}
}

func (f *indexFake) Upsert(_ context.Context, collection domain.Collection, ids, texts []string, metadatas []map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts = append(f.upserts, upsertCall{collection: collection, ids: ids, texts: texts, metadatas: metadatas})
	f.counts[collection] += len(ids)
	return nil
}

func (f *indexFake) QueryNearest(_ context.Context, collection domain.Collection, _ string, k int, filter domain.Filter) ([]domain.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, queryCall{collection: collection, k: k, filter: filter})
	if err := f.queryErr[collection]; err != nil {
		return nil, err
	}
	res := f.results[collection]
	if len(res) > k {
		res = res[:k]
	}
	return res, nil
}

func (f *indexFake) Exists(context.Context, domain.Collection, string) (bool, error) {
	return false, nil
}

func (f *indexFake) Delete(_ context.Context, collection domain.Collection, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted[collection] = append(f.deleted[collection], ids...)
	return nil
}

func (f *indexFake) Count(_ context.Context, collection domain.Collection) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[collection], nil
}

func (f *indexFake) upsertsTo(collection domain.Collection) []upsertCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []upsertCall
	for _, u := range f.upserts {
		if u.collection == collection {
			out = append(out, u)
		}
	}
	return out
}

type generatorFake struct {
	answer string
	err    error
	calls  []domain.GenerationRequest
}

func (f *generatorFake) Generate(_ context.Context, req domain.GenerationRequest) (string, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

type docRepoFake struct {
	mu          sync.Mutex
	docs        map[string]*domain.Document
	createErr   error
	markErr     error
	statusCalls []domain.DocumentStatus
	lastError   string
}

func newDocRepoFake(docs ...*domain.Document) *docRepoFake {
	f := &docRepoFake{docs: map[string]*domain.Document{}}
	for _, d := range docs {
		f.docs[d.ID] = d
	}
	return f
}

func (f *docRepoFake) Create(_ context.Context, doc *domain.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, d := range f.docs {
		if d.Fingerprint == doc.Fingerprint {
			return domain.WrapError(domain.ErrDuplicateDocument, "create document", errors.New(doc.Fingerprint))
		}
	}
	d := *doc
	f.docs[doc.ID] = &d
	return nil
}

func (f *docRepoFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", errors.New(id))
	}
	out := *d
	return &out, nil
}

func (f *docRepoFake) GetByFingerprint(_ context.Context, fingerprint string) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.docs {
		if d.Fingerprint == fingerprint {
			out := *d
			return &out, nil
		}
	}
	return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", errors.New(fingerprint))
}

func (f *docRepoFake) UpdateStatus(_ context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "update status", errors.New(id))
	}
	f.statusCalls = append(f.statusCalls, status)
	f.lastError = errMessage
	d.Status = status
	d.Error = errMessage
	return nil
}

func (f *docRepoFake) MarkCompleted(_ context.Context, id string, pageCount int, chunkIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	d, ok := f.docs[id]
	if !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "mark completed", errors.New(id))
	}
	f.statusCalls = append(f.statusCalls, domain.StatusCompleted)
	chunks := len(chunkIDs)
	d.Status = domain.StatusCompleted
	d.PageCount = &pageCount
	d.ChunkCount = &chunks
	d.ChunkIDs = append([]string(nil), chunkIDs...)
	return nil
}

func (f *docRepoFake) List(context.Context, domain.ListOptions) ([]domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Document, 0, len(f.docs))
	for _, d := range f.docs {
		out = append(out, *d)
	}
	return out, nil
}

func (f *docRepoFake) ListStaleProcessing(_ context.Context, before time.Time) ([]domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Document
	for _, d := range f.docs {
		if d.Status == domain.StatusProcessing && d.UpdatedAt.Before(before) {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *docRepoFake) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[id]; !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "delete document", errors.New(id))
	}
	delete(f.docs, id)
	return nil
}

func (f *docRepoFake) Count(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.docs), nil
}

type storageFake struct {
	mu      sync.Mutex
	files   map[string][]byte
	saveErr error
	deleted []string
}

func newStorageFake() *storageFake {
	return &storageFake{files: map[string][]byte{}}
}

func (f *storageFake) Save(_ context.Context, key string, r io.Reader) (int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	if f.saveErr != nil {
		return 0, f.saveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[key] = data
	return int64(len(data)), nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[key]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "open", errors.New(key))
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *storageFake) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, key)
	f.deleted = append(f.deleted, key)
	return nil
}

// fingerprintFake hashes by content length and first bytes; enough to tell
// test payloads apart.
type fingerprintFake struct{}

func (fingerprintFake) Fingerprint(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return "fp:" + string(data), nil
}

type extractorFake struct {
	pages []domain.Page
	err   error
}

func (f *extractorFake) ExtractPages(context.Context, *domain.Document) ([]domain.Page, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.pages, nil
}

func (f *extractorFake) Supports(filename string) bool {
	lower := strings.ToLower(filename)
	return strings.HasSuffix(lower, ".pdf") || strings.HasSuffix(lower, ".txt")
}

type chunkerFake struct {
	err error
	n   int
}

func (f *chunkerFake) Chunk(strategy domain.ChunkType, pages []domain.Page, documentID, source string) ([]domain.Chunk, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.Chunk
	for _, p := range pages {
		if strings.TrimSpace(p.Text) == "" {
			continue
		}
		f.n++
		idx := 0
		out = append(out, domain.Chunk{
			ID:   documentID + "-chunk-" + string(rune('a'+f.n)),
			Text: p.Text,
			Metadata: domain.ChunkMetadata{
				DocumentID: documentID,
				Source:     source,
				Page:       p.Number,
				ChunkType:  strategy,
				ChunkIndex: &idx,
			},
		})
	}
	return out, nil
}

type queueFake struct {
	published []string
	err       error
}

func (f *queueFake) PublishReindex(_ context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, id)
	return nil
}

func (f *queueFake) SubscribeReindex(context.Context, func(context.Context, string) error) error {
	return nil
}
