package domain

import "time"

type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusFailed     DocumentStatus = "failed"
)

type Document struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	StoragePath string         `json:"file"`
	Fingerprint string         `json:"file_hash"`
	Status      DocumentStatus `json:"status"`
	PageCount   *int           `json:"page_count"`
	ChunkCount  *int           `json:"chunk_count"`
	ChunkIDs    []string       `json:"-"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// ProcessingSummary describes what one ingestion pass produced.
type ProcessingSummary struct {
	Pages      int `json:"pages"`
	Chunks     int `json:"chunks"`
	Characters int `json:"characters"`
}

type IngestOutcome string

const (
	IngestProcessed IngestOutcome = "processed"
	IngestDuplicate IngestOutcome = "duplicate"
	IngestFailed    IngestOutcome = "failed"
)

type IngestResult struct {
	Outcome  IngestOutcome
	Document *Document
	Summary  ProcessingSummary
	Err      error
}

type ListOptions struct {
	Limit  int
	Offset int
}

func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 || o.Limit > 500 {
		o.Limit = 50
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}
