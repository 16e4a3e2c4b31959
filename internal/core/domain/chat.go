package domain

import (
	"strings"
	"time"
)

const (
	DefaultModel          = "llama3.2"
	CachedAnswerMaxRunes  = 500
	CachedQueryChatIDKey  = "chat_id"
	CachedQueryAnswerKey  = "answer"
	ChunkDocumentIDFilter = "document_id"
)

// Chat is an immutable question/answer record.
type Chat struct {
	ID              string          `json:"id"`
	Question        string          `json:"question"`
	Answer          string          `json:"answer"`
	Documents       []Document      `json:"documents"`
	SourceChunks    []ChunkMetadata `json:"source_chunks_metadata"`
	SimilarityScore *float64        `json:"similarity_score"`
	Model           string          `json:"model"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// TruncateAnswer cuts an answer for the question cache payload.
func TruncateAnswer(answer string) string {
	runes := []rune(answer)
	if len(runes) <= CachedAnswerMaxRunes {
		return answer
	}
	return string(runes[:CachedAnswerMaxRunes])
}

func NormalizeQuestion(q string) string {
	return strings.TrimSpace(q)
}
