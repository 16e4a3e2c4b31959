package plaintext

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/raglite/internal/core/domain"
)

// Format reads UTF-8 text files. Form feeds split pages.
type Format struct{}

func New() Format {
	return Format{}
}

func (Format) Extensions() []string {
	return []string{".txt", ".md"}
}

func (Format) Pages(raw []byte) ([]domain.Page, error) {
	if !utf8.Valid(raw) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read text", errors.New("file is not valid utf-8"))
	}

	text := strings.ReplaceAll(string(raw), "\r\n", "\n")
	parts := strings.Split(text, "\f")
	pages := make([]domain.Page, 0, len(parts))
	for i, part := range parts {
		pages = append(pages, domain.Page{Number: i + 1, Text: part})
	}
	return pages, nil
}
