package extractor

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/kirillkom/raglite/internal/core/domain"
	"github.com/kirillkom/raglite/internal/core/ports"
)

// Format turns raw file bytes into pages.
type Format interface {
	Extensions() []string
	Pages(raw []byte) ([]domain.Page, error)
}

// Registry picks a Format by file extension and reads the stored file.
type Registry struct {
	storage  ports.ObjectStorage
	maxBytes int64
	formats  map[string]Format
}

func NewRegistry(storage ports.ObjectStorage, maxBytes int64, formats ...Format) *Registry {
	r := &Registry{
		storage:  storage,
		maxBytes: maxBytes,
		formats:  make(map[string]Format),
	}
	for _, f := range formats {
		for _, ext := range f.Extensions() {
			r.formats[strings.ToLower(ext)] = f
		}
	}
	return r
}

func (r *Registry) Supports(filename string) bool {
	_, ok := r.formats[strings.ToLower(filepath.Ext(filename))]
	return ok
}

func (r *Registry) Extensions() []string {
	out := make([]string, 0, len(r.formats))
	for ext := range r.formats {
		out = append(out, ext)
	}
	return out
}

func (r *Registry) ExtractPages(ctx context.Context, doc *domain.Document) ([]domain.Page, error) {
	ext := strings.ToLower(filepath.Ext(doc.Name))
	format, ok := r.formats[ext]
	if !ok {
		return nil, domain.WrapError(domain.ErrInvalidInput, "extract pages", fmt.Errorf("unsupported file type %q", ext))
	}

	reader, err := r.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("open source document: %w", err)
	}
	defer reader.Close()

	var src io.Reader = reader
	if r.maxBytes > 0 {
		src = io.LimitReader(reader, r.maxBytes+1)
	}
	raw, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("read source document: %w", err)
	}
	if r.maxBytes > 0 && int64(len(raw)) > r.maxBytes {
		return nil, domain.WrapError(domain.ErrInvalidInput, "extract pages", fmt.Errorf("file exceeds %d bytes", r.maxBytes))
	}
	return format.Pages(raw)
}

// JoinPages renders pages as one text, the way a whole-document extractor would.
func JoinPages(pages []domain.Page) (string, int) {
	var b strings.Builder
	for _, p := range pages {
		if p.Text == "" {
			continue
		}
		b.WriteString(p.Text)
		b.WriteByte('\n')
	}
	return b.String(), len(pages)
}
