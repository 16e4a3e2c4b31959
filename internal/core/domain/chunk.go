package domain

import "fmt"

type ChunkType string

const (
	ChunkTypePage ChunkType = "page"
	ChunkTypeSize ChunkType = "size"
)

// Page is one page of extracted text. Number is 1-based.
type Page struct {
	Number int
	Text   string
}

type ChunkMetadata struct {
	DocumentID string    `json:"document_id"`
	Source     string    `json:"source"`
	Page       int       `json:"page"`
	ChunkType  ChunkType `json:"chunk_type"`
	ChunkIndex *int      `json:"chunk_index,omitempty"`
}

type Chunk struct {
	ID       string
	Text     string
	Metadata ChunkMetadata
}

// Map flattens the metadata into an index payload.
func (m ChunkMetadata) Map() map[string]any {
	out := map[string]any{
		"document_id": m.DocumentID,
		"source":      m.Source,
		"page":        m.Page,
		"chunk_type":  string(m.ChunkType),
	}
	if m.ChunkIndex != nil {
		out["chunk_index"] = *m.ChunkIndex
	}
	return out
}

func ChunkMetadataFromMap(payload map[string]any) ChunkMetadata {
	meta := ChunkMetadata{
		DocumentID: stringValue(payload["document_id"]),
		Source:     stringValue(payload["source"]),
		ChunkType:  ChunkType(stringValue(payload["chunk_type"])),
	}
	if page, ok := intValue(payload["page"]); ok {
		meta.Page = page
	}
	if idx, ok := intValue(payload["chunk_index"]); ok {
		meta.ChunkIndex = &idx
	}
	return meta
}

func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}

func intValue(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	case float32:
		return int(t), true
	default:
		return 0, false
	}
}
