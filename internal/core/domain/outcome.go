package domain

type QuerySource string

const (
	SourceCacheExact   QuerySource = "cache match"
	SourceCacheSimilar QuerySource = "cache similar"
	SourceGenerated    QuerySource = "generated"
)

type OutcomeKind string

const (
	OutcomeHitExact   OutcomeKind = "hit-exact"
	OutcomeHitSimilar OutcomeKind = "hit-similar"
	OutcomeGenerated  OutcomeKind = "generated"
	OutcomeNotFound   OutcomeKind = "not-found"
	OutcomeFailed     OutcomeKind = "failed"
)

const (
	MessageNoDocuments      = "No relevant documents found. Please upload documents first."
	MessageGenerationFailed = "Failed to generate answer. Please try again."
	MessageQueryFailed      = "Failed to process query. Please try again."
)

type QueryRequest struct {
	Text       string
	DocumentID string
	Model      string
}

// Outcome is the tagged result of resolving one query. Err is set only for
// OutcomeFailed and OutcomeNotFound and is meant for diagnostics.
type Outcome struct {
	Kind            OutcomeKind
	Answer          string
	ChatID          string
	SourceChunks    []ChunkMetadata
	SimilarityScore *float64
	ChunksUsed      int
	Message         string
	Err             error
}

func (o Outcome) Source() QuerySource {
	switch o.Kind {
	case OutcomeHitExact:
		return SourceCacheExact
	case OutcomeHitSimilar:
		return SourceCacheSimilar
	case OutcomeGenerated:
		return SourceGenerated
	default:
		return ""
	}
}

type GenerationRequest struct {
	Query       string
	Context     string
	Temperature float64
	Model       string
}

const DefaultTemperature = 0.7
