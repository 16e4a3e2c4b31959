package html

import (
	"bytes"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"github.com/kirillkom/raglite/internal/core/domain"
)

// Format converts an HTML page body to markdown so headings and lists
// survive as plain text.
type Format struct {
	converter *md.Converter
}

func New() *Format {
	return &Format{converter: md.NewConverter("", true, nil)}
}

func (*Format) Extensions() []string {
	return []string{".html", ".htm"}
}

func (f *Format) Pages(raw []byte) ([]domain.Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse html", err)
	}
	doc.Find("script, style, noscript, template, iframe").Remove()

	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	text := strings.TrimSpace(f.converter.Convert(body))

	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" && !strings.Contains(text, title) {
		text = title + "\n\n" + text
	}
	return []domain.Page{{Number: 1, Text: text}}, nil
}
