package mcpadapter

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/raglite/internal/core/domain"
)

type resolverStub struct {
	outcome domain.Outcome
	got     domain.QueryRequest
}

func (r *resolverStub) Resolve(_ context.Context, req domain.QueryRequest) (domain.Outcome, error) {
	r.got = req
	return r.outcome, nil
}

type documentsStub struct {
	docs []domain.Document
	opts domain.ListOptions
}

func (d *documentsStub) List(_ context.Context, opts domain.ListOptions) ([]domain.Document, error) {
	d.opts = opts
	return d.docs, nil
}

func (d *documentsStub) Get(context.Context, string) (*domain.Document, error) { return nil, nil }
func (d *documentsStub) Delete(context.Context, string) error                  { return nil }
func (d *documentsStub) RequestReindex(context.Context, string) (bool, error)  { return false, nil }

func callRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", res.Content[0])
	return text.Text
}

func TestQueryDocumentsReturnsAnswer(t *testing.T) {
	resolver := &resolverStub{outcome: domain.Outcome{Kind: domain.OutcomeGenerated, Answer: "42", ChatID: "chat-1", ChunksUsed: 2}}
	handler := handleQueryDocuments(resolver, nil)

	res, err := handler(context.Background(), callRequest(map[string]any{
		"query":       "  meaning of life?  ",
		"document_id": "doc-1",
	}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, domain.QueryRequest{Text: "meaning of life?", DocumentID: "doc-1"}, resolver.got)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &payload))
	assert.Equal(t, "42", payload["answer"])
	assert.Equal(t, "generated", payload["source"])
	assert.EqualValues(t, 2, payload["chunks_used"])
}

func TestQueryDocumentsReportsUnansweredAsToolError(t *testing.T) {
	resolver := &resolverStub{outcome: domain.Outcome{Kind: domain.OutcomeNotFound, Message: domain.MessageNoDocuments}}
	handler := handleQueryDocuments(resolver, nil)

	res, err := handler(context.Background(), callRequest(map[string]any{"query": "anything"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, domain.MessageNoDocuments, resultText(t, res))
}

func TestQueryDocumentsValidatesInput(t *testing.T) {
	handler := handleQueryDocuments(&resolverStub{}, nil)

	res, err := handler(context.Background(), callRequest(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = handler(context.Background(), callRequest(map[string]any{"query": strings.Repeat("x", 1001)}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestListDocumentsClampsLimit(t *testing.T) {
	pages, chunks := 3, 7
	docs := &documentsStub{docs: []domain.Document{{ID: "doc-1", Name: "hr.pdf", Status: domain.StatusCompleted, PageCount: &pages, ChunkCount: &chunks}}}
	handler := handleListDocuments(docs, nil)

	res, err := handler(context.Background(), callRequest(map[string]any{"limit": 1000}))
	require.NoError(t, err)
	assert.Equal(t, maxListLimit, docs.opts.Limit)

	text := resultText(t, res)
	assert.Contains(t, text, "doc-1")
	assert.Contains(t, text, "pages=3 chunks=7")
}

func TestListDocumentsEmpty(t *testing.T) {
	handler := handleListDocuments(&documentsStub{}, nil)

	res, err := handler(context.Background(), callRequest(nil))
	require.NoError(t, err)
	assert.Equal(t, "No documents uploaded yet.", resultText(t, res))
}
