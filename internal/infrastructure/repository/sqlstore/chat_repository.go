package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/raglite/internal/core/domain"
	"github.com/kirillkom/raglite/internal/core/ports"
)

const chatColumns = `id, question, answer, source_chunks, similarity_score, model, created_at, updated_at`

type ChatRepository struct {
	db *DB
}

func NewChatRepository(db *DB) *ChatRepository {
	return &ChatRepository{db: db}
}

func (r *ChatRepository) Create(ctx context.Context, chat *domain.Chat) error {
	sources, err := marshalJSON(chat.SourceChunks, "[]")
	if err != nil {
		return fmt.Errorf("marshal source chunks: %w", err)
	}
	var score any
	if chat.SimilarityScore != nil {
		score = *chat.SimilarityScore
	}

	_, err = r.db.exec(ctx, `
INSERT INTO chats (`+chatColumns+`, question_key)
VALUES (?,?,?,?,?,?,?,?,?)
`, chat.ID, chat.Question, chat.Answer, sources, score, chat.Model, chat.CreatedAt, chat.UpdatedAt, questionKey(chat.Question))
	if err != nil {
		return fmt.Errorf("insert chat: %w", err)
	}
	return nil
}

// questionKey is the case-folded form exact cache lookups match on. SQL
// LOWER folds only ASCII on SQLite, so folding happens here for both dialects.
func questionKey(q string) string {
	return strings.ToLower(q)
}

func (r *ChatRepository) FindByQuestion(ctx context.Context, q string) (*domain.Chat, error) {
	row := r.db.queryRow(ctx, `
SELECT `+chatColumns+`
FROM chats
WHERE question_key = ?
ORDER BY created_at DESC
LIMIT 1
`, questionKey(q))

	chat, err := scanChat(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrChatNotFound, "find chat by question", err)
		}
		return nil, err
	}
	return chat, nil
}

// GetByID returns the chat with its associated documents.
func (r *ChatRepository) GetByID(ctx context.Context, id string) (*domain.Chat, error) {
	row := r.db.queryRow(ctx, `
SELECT `+chatColumns+`
FROM chats
WHERE id = ?
`, id)

	chat, err := scanChat(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrChatNotFound, "get chat", fmt.Errorf("chat not found: %s", id))
		}
		return nil, err
	}

	rows, err := r.db.query(ctx, `
SELECT d.id, d.name, d.storage_path, d.file_hash, d.status, d.page_count, d.chunk_count, d.chunk_ids, d.error_message, d.created_at, d.updated_at
FROM documents d
JOIN chat_documents cd ON cd.document_id = d.id
WHERE cd.chat_id = ?
ORDER BY d.created_at
`, id)
	if err != nil {
		return nil, fmt.Errorf("load chat documents: %w", err)
	}
	docs, err := collectDocuments(rows)
	if err != nil {
		return nil, err
	}
	chat.Documents = docs
	return chat, nil
}

// AddDocument is idempotent. A document that no longer exists yields
// domain.ErrDocumentNotFound.
func (r *ChatRepository) AddDocument(ctx context.Context, chatID, documentID string) error {
	query := `INSERT INTO chat_documents (chat_id, document_id) VALUES (?, ?) ON CONFLICT DO NOTHING`
	if _, err := r.db.exec(ctx, query, chatID, documentID); err != nil {
		if isForeignKeyViolation(err) {
			return domain.WrapError(domain.ErrDocumentNotFound, "associate chat document", err)
		}
		return fmt.Errorf("associate chat document: %w", err)
	}
	return nil
}

func (r *ChatRepository) List(ctx context.Context, opts domain.ListOptions) ([]domain.Chat, error) {
	opts = opts.Normalize()
	rows, err := r.db.query(ctx, `
SELECT `+chatColumns+`
FROM chats
ORDER BY created_at DESC, id
LIMIT ? OFFSET ?
`, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Chat, 0)
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *chat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chats: %w", err)
	}
	return out, nil
}

func (r *ChatRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, r.db.rebind(`DELETE FROM chat_documents WHERE chat_id = ?`), id); err != nil {
		return fmt.Errorf("delete chat links: %w", err)
	}
	res, err := tx.ExecContext(ctx, r.db.rebind(`DELETE FROM chats WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	if err := requireAffected(res, domain.ErrChatNotFound, "delete chat", id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete tx: %w", err)
	}
	return nil
}

func (r *ChatRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.queryRow(ctx, `SELECT COUNT(*) FROM chats`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chats: %w", err)
	}
	return n, nil
}

func scanChat(row rowScanner) (*domain.Chat, error) {
	var chat domain.Chat
	var sources []byte
	var score sql.NullFloat64

	err := row.Scan(&chat.ID, &chat.Question, &chat.Answer, &sources, &score, &chat.Model, &chat.CreatedAt, &chat.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan chat: %w", err)
	}
	if len(sources) > 0 {
		if err := json.Unmarshal(sources, &chat.SourceChunks); err != nil {
			return nil, fmt.Errorf("unmarshal source chunks: %w", err)
		}
	}
	if score.Valid {
		v := score.Float64
		chat.SimilarityScore = &v
	}
	return &chat, nil
}

var _ ports.ChatRepository = (*ChatRepository)(nil)
