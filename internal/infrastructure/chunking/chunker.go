package chunking

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/raglite/internal/core/domain"
)

const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 200
)

type IDMode string

const (
	IDModeRandom        IDMode = "random"
	IDModeDeterministic IDMode = "deterministic"
)

// chunkNamespace seeds deterministic chunk ids.
var chunkNamespace = uuid.MustParse("6f1c2a52-93e4-4d0e-9a55-7d1b1b0c4e21")

// Chunker turns extracted pages into index records. It holds no state
// beyond its configuration and is safe for concurrent use.
type Chunker struct {
	ChunkSize int
	Overlap   int
	IDMode    IDMode
}

func NewChunker(chunkSize, overlap int, mode IDMode) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "new chunker", fmt.Errorf("chunk size must be positive, got %d", chunkSize))
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, domain.WrapError(domain.ErrInvalidInput, "new chunker", fmt.Errorf("overlap must be in [0, %d), got %d", chunkSize, overlap))
	}
	switch mode {
	case "":
		mode = IDModeRandom
	case IDModeRandom, IDModeDeterministic:
	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "new chunker", fmt.Errorf("unknown chunk id mode %q", mode))
	}
	return &Chunker{
		ChunkSize: chunkSize,
		Overlap:   overlap,
		IDMode:    mode,
	}, nil
}

func (c *Chunker) Chunk(strategy domain.ChunkType, pages []domain.Page, documentID, source string) ([]domain.Chunk, error) {
	switch strategy {
	case domain.ChunkTypePage:
		return c.ByPage(pages, documentID, source), nil
	case domain.ChunkTypeSize, "":
		return c.BySize(pages, documentID, source), nil
	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "chunk", fmt.Errorf("unknown chunk strategy %q", strategy))
	}
}

// ByPage emits one chunk per page that has non-whitespace text.
func (c *Chunker) ByPage(pages []domain.Page, documentID, source string) []domain.Chunk {
	out := make([]domain.Chunk, 0, len(pages))
	for _, page := range pages {
		if strings.TrimSpace(page.Text) == "" {
			continue
		}
		out = append(out, domain.Chunk{
			ID:   c.chunkID(documentID, page.Number, -1),
			Text: page.Text,
			Metadata: domain.ChunkMetadata{
				DocumentID: documentID,
				Source:     source,
				Page:       page.Number,
				ChunkType:  domain.ChunkTypePage,
			},
		})
	}
	return out
}

// BySize slides a ChunkSize rune window over each page, advancing by
// ChunkSize-Overlap until the window start passes the end of the page.
func (c *Chunker) BySize(pages []domain.Page, documentID, source string) []domain.Chunk {
	step := c.ChunkSize - c.Overlap

	var out []domain.Chunk
	for _, page := range pages {
		if strings.TrimSpace(page.Text) == "" {
			continue
		}
		runes := []rune(page.Text)
		index := 0
		for start := 0; start < len(runes); start += step {
			end := start + c.ChunkSize
			if end > len(runes) {
				end = len(runes)
			}
			chunkIndex := index
			out = append(out, domain.Chunk{
				ID:   c.chunkID(documentID, page.Number, chunkIndex),
				Text: string(runes[start:end]),
				Metadata: domain.ChunkMetadata{
					DocumentID: documentID,
					Source:     source,
					Page:       page.Number,
					ChunkType:  domain.ChunkTypeSize,
					ChunkIndex: &chunkIndex,
				},
			})
			index++
		}
	}
	return out
}

func (c *Chunker) chunkID(documentID string, page, chunkIndex int) string {
	if c.IDMode != IDModeDeterministic {
		return uuid.NewString()
	}
	key := documentID + ":" + strconv.Itoa(page) + ":" + strconv.Itoa(chunkIndex)
	return uuid.NewSHA1(chunkNamespace, []byte(key)).String()
}
