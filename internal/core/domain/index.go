package domain

type Collection string

const (
	CollectionDocuments     Collection = "documents"
	CollectionCachedQueries Collection = "cached_queries"
)

// Filter restricts a nearest-neighbour query to records whose metadata
// field Key equals Value. A zero Filter matches everything.
type Filter struct {
	Key   string
	Value string
}

func (f Filter) IsZero() bool {
	return f.Key == ""
}

type Match struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
	Distance float64        `json:"distance"`
}

type IndexStats struct {
	Documents     int `json:"documents"`
	CachedQueries int `json:"cached_queries"`
}

type Stats struct {
	Documents   int        `json:"documents"`
	Chats       int        `json:"chats"`
	VectorIndex IndexStats `json:"vector_index"`
}
