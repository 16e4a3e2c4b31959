package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/raglite/internal/core/domain"
	"github.com/kirillkom/raglite/internal/core/ports"
)

const documentColumns = `id, name, storage_path, file_hash, status, page_count, chunk_count, chunk_ids, error_message, created_at, updated_at`

type DocumentRepository struct {
	db *DB
}

func NewDocumentRepository(db *DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	chunkIDs, err := marshalJSON(doc.ChunkIDs, "[]")
	if err != nil {
		return fmt.Errorf("marshal chunk ids: %w", err)
	}

	_, err = r.db.exec(ctx, `
INSERT INTO documents (`+documentColumns+`)
VALUES (?,?,?,?,?,?,?,?,?,?,?)
`,
		doc.ID, doc.Name, doc.StoragePath, doc.Fingerprint, string(doc.Status),
		nullableInt(doc.PageCount), nullableInt(doc.ChunkCount), chunkIDs, doc.Error,
		doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.WrapError(domain.ErrDuplicateDocument, "create document", err)
		}
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.queryRow(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE id = ?
`, id)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("document not found: %s", id))
		}
		return nil, err
	}
	return doc, nil
}

func (r *DocumentRepository) GetByFingerprint(ctx context.Context, fingerprint string) (*domain.Document, error) {
	row := r.db.queryRow(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE file_hash = ?
`, fingerprint)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document by fingerprint", fmt.Errorf("no document with hash %s", fingerprint))
		}
		return nil, err
	}
	return doc, nil
}

func (r *DocumentRepository) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	res, err := r.db.exec(ctx, `
UPDATE documents
SET status = ?, error_message = ?, updated_at = ?
WHERE id = ?
`, string(status), errMessage, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	return requireAffected(res, domain.ErrDocumentNotFound, "update document status", id)
}

func (r *DocumentRepository) MarkCompleted(ctx context.Context, id string, pageCount int, chunkIDs []string) error {
	idsJSON, err := marshalJSON(chunkIDs, "[]")
	if err != nil {
		return fmt.Errorf("marshal chunk ids: %w", err)
	}
	res, err := r.db.exec(ctx, `
UPDATE documents
SET status = ?, page_count = ?, chunk_count = ?, chunk_ids = ?, error_message = '', updated_at = ?
WHERE id = ?
`, string(domain.StatusCompleted), pageCount, len(chunkIDs), idsJSON, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark document completed: %w", err)
	}
	return requireAffected(res, domain.ErrDocumentNotFound, "mark document completed", id)
}

func (r *DocumentRepository) List(ctx context.Context, opts domain.ListOptions) ([]domain.Document, error) {
	opts = opts.Normalize()
	rows, err := r.db.query(ctx, `
SELECT `+documentColumns+`
FROM documents
ORDER BY created_at DESC, id
LIMIT ? OFFSET ?
`, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return collectDocuments(rows)
}

func (r *DocumentRepository) ListStaleProcessing(ctx context.Context, before time.Time) ([]domain.Document, error) {
	rows, err := r.db.query(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE status = ? AND updated_at < ?
ORDER BY updated_at
`, string(domain.StatusProcessing), before.UTC())
	if err != nil {
		return nil, fmt.Errorf("list stale documents: %w", err)
	}
	return collectDocuments(rows)
}

func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, r.db.rebind(`DELETE FROM chat_documents WHERE document_id = ?`), id); err != nil {
		return fmt.Errorf("delete document links: %w", err)
	}
	res, err := tx.ExecContext(ctx, r.db.rebind(`DELETE FROM documents WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if err := requireAffected(res, domain.ErrDocumentNotFound, "delete document", id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete tx: %w", err)
	}
	return nil
}

func (r *DocumentRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.queryRow(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var doc domain.Document
	var status string
	var pageCount, chunkCount sql.NullInt64
	var chunkIDs []byte

	err := row.Scan(
		&doc.ID, &doc.Name, &doc.StoragePath, &doc.Fingerprint, &status,
		&pageCount, &chunkCount, &chunkIDs, &doc.Error, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	if len(chunkIDs) > 0 {
		if err := json.Unmarshal(chunkIDs, &doc.ChunkIDs); err != nil {
			return nil, fmt.Errorf("unmarshal chunk ids: %w", err)
		}
	}
	doc.Status = domain.DocumentStatus(status)
	doc.PageCount = intPtr(pageCount)
	doc.ChunkCount = intPtr(chunkCount)
	return &doc, nil
}

func collectDocuments(rows *sql.Rows) ([]domain.Document, error) {
	defer rows.Close()
	out := make([]domain.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func requireAffected(res sql.Result, kind error, op, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return domain.WrapError(kind, op, fmt.Errorf("not found: %s", id))
	}
	return nil
}

func marshalJSON(v any, empty string) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(raw) == "null" {
		return empty, nil
	}
	return string(raw), nil
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

var _ ports.DocumentRepository = (*DocumentRepository)(nil)
