package vectordb

import "context"

// Collection names one similarity-indexed namespace
type Collection string

const (
	// CollectionDocuments holds the ingested internal document chunks
	CollectionDocuments Collection = "documents"
	// CollectionSearchMemory holds summaries of prior external searches
	CollectionSearchMemory Collection = "search_memory"
)

// Doc is one row to be inserted into a collection. The embedding is always
// produced by the caller; the index never embeds on its own.
type Doc struct {
	ID        string
	Content   string
	Metadata  map[string]string
	Embedding []float32
}

// Hit is one nearest-neighbor result. Distance is cosine distance, lower
// means more similar.
type Hit struct {
	ID       string
	Content  string
	Metadata map[string]string
	Distance float64
}

// Index is the vector similarity lookup boundary
type Index interface {
	// Search returns up to topK nearest neighbors ordered by ascending
	// distance. An empty collection yields an empty result, not an error.
	Search(ctx context.Context, collection Collection, vector []float32, topK int) ([]Hit, error)

	// Insert appends rows to a collection
	Insert(ctx context.Context, collection Collection, docs []Doc) error
}
