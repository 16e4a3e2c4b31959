package boltindex

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/kirillkom/raglite/internal/core/domain"
	"github.com/kirillkom/raglite/internal/core/ports"
	"github.com/kirillkom/raglite/internal/infrastructure/vector/hashembed"
)

// Index is an embedded vector index: one bbolt bucket per collection, one
// JSON record per id, brute-force cosine search. It suits single-node
// deployments with up to a few hundred thousand chunks.
type Index struct {
	db       *bbolt.DB
	embedder ports.Embedder
}

type record struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
	Vector   []float32      `json:"vector"`
}

func Open(path string, embedder ports.Embedder) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt index: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, c := range []domain.Collection{domain.CollectionDocuments, domain.CollectionCachedQueries} {
			if _, err := tx.CreateBucketIfNotExists([]byte(c)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create index buckets: %w", err)
	}
	return &Index{db: db, embedder: embedder}, nil
}

func (ix *Index) Close() error {
	return ix.db.Close()
}

func (ix *Index) Upsert(ctx context.Context, collection domain.Collection, ids, texts []string, metadatas []map[string]any) error {
	if len(ids) != len(texts) || len(ids) != len(metadatas) {
		return domain.WrapError(domain.ErrInvalidInput, "bolt upsert", fmt.Errorf("ids/texts/metadatas mismatch: %d/%d/%d", len(ids), len(texts), len(metadatas)))
	}
	if len(ids) == 0 {
		return nil
	}
	vectors, err := ix.embedder.Embed(ctx, texts)
	if err != nil {
		return domain.WrapError(domain.ErrIndexUnavailable, "bolt upsert", fmt.Errorf("embed: %w", err))
	}

	err = ix.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(collection))
		if err != nil {
			return err
		}
		for i, id := range ids {
			data, err := json.Marshal(record{ID: id, Text: texts[i], Metadata: metadatas[i], Vector: vectors[i]})
			if err != nil {
				return err
			}
			if err := b.Put([]byte(id), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.WrapError(domain.ErrIndexUnavailable, "bolt upsert", err)
	}
	return nil
}

func (ix *Index) QueryNearest(ctx context.Context, collection domain.Collection, text string, k int, filter domain.Filter) ([]domain.Match, error) {
	if k <= 0 {
		return nil, nil
	}
	query, err := ix.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, domain.WrapError(domain.ErrIndexUnavailable, "bolt query", fmt.Errorf("embed: %w", err))
	}

	var matches []domain.Match
	err = ix.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode record: %w", err)
			}
			if !matchesFilter(rec.Metadata, filter) {
				return nil
			}
			matches = append(matches, domain.Match{
				ID:       rec.ID,
				Text:     rec.Text,
				Metadata: rec.Metadata,
				Distance: hashembed.CosineDistance(query, rec.Vector),
			})
			return nil
		})
	})
	if err != nil {
		return nil, domain.WrapError(domain.ErrIndexUnavailable, "bolt query", err)
	}

	// keys iterate in byte order, so equal distances stay ordered by id
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (ix *Index) Exists(_ context.Context, collection domain.Collection, id string) (bool, error) {
	found := false
	err := ix.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		found = b != nil && b.Get([]byte(id)) != nil
		return nil
	})
	if err != nil {
		return false, domain.WrapError(domain.ErrIndexUnavailable, "bolt exists", err)
	}
	return found, nil
}

func (ix *Index) Delete(_ context.Context, collection domain.Collection, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	err := ix.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return nil
		}
		for _, id := range ids {
			if err := b.Delete([]byte(id)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.WrapError(domain.ErrIndexUnavailable, "bolt delete", err)
	}
	return nil
}

func (ix *Index) Count(_ context.Context, collection domain.Collection) (int, error) {
	n := 0
	err := ix.db.View(func(tx *bbolt.Tx) error {
		if b := tx.Bucket([]byte(collection)); b != nil {
			n = b.Stats().KeyN
		}
		return nil
	})
	if err != nil {
		return 0, domain.WrapError(domain.ErrIndexUnavailable, "bolt count", err)
	}
	return n, nil
}

func matchesFilter(meta map[string]any, filter domain.Filter) bool {
	if filter.IsZero() {
		return true
	}
	v, ok := meta[filter.Key]
	if !ok {
		return false
	}
	return fmt.Sprintf("%v", v) == filter.Value
}

var _ ports.VectorIndex = (*Index)(nil)
