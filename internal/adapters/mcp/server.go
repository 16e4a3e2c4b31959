// Package mcpadapter exposes the query resolver and document listing as
// Model Context Protocol tools.
package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/raglite/internal/core/domain"
	"github.com/kirillkom/raglite/internal/core/ports"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxQueryRunes    = 1000
)

// NewServer registers the raglite tools on a fresh MCP server.
func NewServer(version string, resolver ports.QueryResolver, documents ports.DocumentService, logger *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer("raglite", version, server.WithToolCapabilities(true))
	s.AddTool(queryDocumentsTool(), handleQueryDocuments(resolver, logger))
	s.AddTool(listDocumentsTool(), handleListDocuments(documents, logger))
	return s
}

func queryDocumentsTool() mcp.Tool {
	return mcp.NewTool("query_documents",
		mcp.WithDescription("Answer a question from the uploaded documents. Cached answers are reused for repeated or similar questions."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The question, at most 1000 characters"),
		),
		mcp.WithString("document_id",
			mcp.Description("Restrict retrieval to one document"),
		),
		mcp.WithString("model",
			mcp.Description("Generation model name; the server default is used when empty"),
		),
	)
}

func listDocumentsTool() mcp.Tool {
	return mcp.NewTool("list_documents",
		mcp.WithDescription("List uploaded documents, newest first"),
		mcp.WithNumber("limit",
			mcp.Description("Max results (default: 20, max: 100)"),
		),
	)
}

type queryResult struct {
	Answer          string                 `json:"answer,omitempty"`
	Source          domain.QuerySource     `json:"source,omitempty"`
	ChatID          string                 `json:"chat_id,omitempty"`
	SourceChunks    []domain.ChunkMetadata `json:"source_chunks,omitempty"`
	SimilarityScore *float64               `json:"similarity_score,omitempty"`
	ChunksUsed      int                    `json:"chunks_used,omitempty"`
	Message         string                 `json:"message,omitempty"`
}

func handleQueryDocuments(resolver ports.QueryResolver, logger *slog.Logger) server.ToolHandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := request.RequireString("query")
		query = strings.TrimSpace(query)
		if err != nil || query == "" {
			return mcp.NewToolResultError("query parameter is required"), nil
		}
		if len([]rune(query)) > maxQueryRunes {
			return mcp.NewToolResultError(fmt.Sprintf("query must be at most %d characters", maxQueryRunes)), nil
		}

		out, err := resolver.Resolve(ctx, domain.QueryRequest{
			Text:       query,
			DocumentID: strings.TrimSpace(request.GetString("document_id", "")),
			Model:      strings.TrimSpace(request.GetString("model", "")),
		})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		switch out.Kind {
		case domain.OutcomeNotFound, domain.OutcomeFailed:
			if out.Err != nil {
				logger.Warn("mcp_query_unanswered", "outcome", string(out.Kind), "error", out.Err)
			}
			return mcp.NewToolResultError(out.Message), nil
		}

		payload, err := json.MarshalIndent(queryResult{
			Answer:          out.Answer,
			Source:          out.Source(),
			ChatID:          out.ChatID,
			SourceChunks:    out.SourceChunks,
			SimilarityScore: out.SimilarityScore,
			ChunksUsed:      out.ChunksUsed,
		}, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode query result: %w", err)
		}
		return mcp.NewToolResultText(string(payload)), nil
	}
}

func handleListDocuments(documents ports.DocumentService, logger *slog.Logger) server.ToolHandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := request.GetInt("limit", defaultListLimit)
		if limit <= 0 {
			limit = defaultListLimit
		}
		limit = min(limit, maxListLimit)

		docs, err := documents.List(ctx, domain.ListOptions{Limit: limit})
		if err != nil {
			logger.Error("mcp_list_documents_failed", "error", err)
			return mcp.NewToolResultError(fmt.Sprintf("list documents: %v", err)), nil
		}
		return mcp.NewToolResultText(formatDocuments(docs)), nil
	}
}

func formatDocuments(docs []domain.Document) string {
	if len(docs) == 0 {
		return "No documents uploaded yet."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d document(s):\n", len(docs))
	for _, d := range docs {
		fmt.Fprintf(&b, "- %s  %s  [%s]", d.ID, d.Name, d.Status)
		if d.PageCount != nil && d.ChunkCount != nil {
			fmt.Fprintf(&b, "  pages=%d chunks=%d", *d.PageCount, *d.ChunkCount)
		}
		b.WriteString("\n")
	}
	return b.String()
}
