package xlsx

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/raglite/internal/core/domain"
)

// Format renders each worksheet as one page of tab-separated rows.
type Format struct{}

func New() Format {
	return Format{}
}

func (Format) Extensions() []string {
	return []string{".xlsx"}
}

func (Format) Pages(raw []byte) ([]domain.Page, error) {
	book, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "open xlsx", err)
	}
	defer func() {
		_ = book.Close()
	}()

	sheets := book.GetSheetList()
	pages := make([]domain.Page, 0, len(sheets))
	for i, sheet := range sheets {
		rows, err := book.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		var b strings.Builder
		for _, row := range rows {
			line := strings.TrimRight(strings.Join(row, "\t"), "\t")
			if line == "" {
				continue
			}
			b.WriteString(line)
			b.WriteByte('\n')
		}
		text := b.String()
		if text != "" {
			text = sheet + "\n" + text
		}
		pages = append(pages, domain.Page{Number: i + 1, Text: text})
	}
	return pages, nil
}
