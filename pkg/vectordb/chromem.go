package vectordb

import (
	"context"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	chromem "github.com/philippgille/chromem-go"
)

// chromemIndex implements Index on top of chromem-go, an embedded pure-Go
// vector database. chromem reports cosine similarity; we expose cosine
// distance (1 - similarity) per the lookup contract.
type chromemIndex struct {
	db          *chromem.DB
	mu          sync.Mutex
	collections map[Collection]*chromem.Collection
}

// NewChromem creates a chromem-backed Index. With a non-empty path the index
// persists to disk and survives restarts; with an empty path it lives in
// memory only.
func NewChromem(path string) (Index, error) {
	var db *chromem.DB
	if path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to open chromem database", goerr.V("path", path))
		}
	}

	return &chromemIndex{
		db:          db,
		collections: make(map[Collection]*chromem.Collection),
	}, nil
}

func (x *chromemIndex) collection(name Collection) (*chromem.Collection, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if col, ok := x.collections[name]; ok {
		return col, nil
	}

	// Embeddings are always supplied by the caller, so no embedding function
	// is registered with the collection.
	col, err := x.db.GetOrCreateCollection(string(name), nil, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open collection", goerr.V("collection", name))
	}

	x.collections[name] = col
	return col, nil
}

func (x *chromemIndex) Search(ctx context.Context, collection Collection, vector []float32, topK int) ([]Hit, error) {
	col, err := x.collection(collection)
	if err != nil {
		return nil, err
	}

	// chromem rejects queries asking for more results than stored documents
	if count := col.Count(); count < topK {
		topK = count
	}
	if topK <= 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, vector, topK, nil, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query collection", goerr.V("collection", collection))
	}

	hits := make([]Hit, 0, len(results))
	for _, res := range results {
		hits = append(hits, Hit{
			ID:       res.ID,
			Content:  res.Content,
			Metadata: res.Metadata,
			Distance: 1 - float64(res.Similarity),
		})
	}

	return hits, nil
}

func (x *chromemIndex) Insert(ctx context.Context, collection Collection, docs []Doc) error {
	col, err := x.collection(collection)
	if err != nil {
		return err
	}

	for _, doc := range docs {
		err := col.AddDocument(ctx, chromem.Document{
			ID:        doc.ID,
			Content:   doc.Content,
			Metadata:  doc.Metadata,
			Embedding: doc.Embedding,
		})
		if err != nil {
			return goerr.Wrap(err, "failed to add document",
				goerr.V("collection", collection), goerr.V("id", doc.ID))
		}
	}

	return nil
}
