package vectordb_test

import (
	"context"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/tandemlab/tandem/pkg/vectordb"
)

func TestChromemSearchEmpty(t *testing.T) {
	idx, err := vectordb.NewChromem("")
	gt.NoError(t, err)

	hits, err := idx.Search(context.Background(), vectordb.CollectionDocuments, []float32{1, 0, 0}, 5)
	gt.NoError(t, err)
	gt.A(t, hits).Length(0)
}

func TestChromemInsertAndSearch(t *testing.T) {
	ctx := context.Background()
	idx, err := vectordb.NewChromem("")
	gt.NoError(t, err)

	docs := []vectordb.Doc{
		{ID: "a", Content: "document retention policy", Metadata: map[string]string{"doc_name": "policy.md"}, Embedding: []float32{1, 0, 0}},
		{ID: "b", Content: "travel expense rules", Metadata: map[string]string{"doc_name": "travel.md"}, Embedding: []float32{0, 1, 0}},
	}
	gt.NoError(t, idx.Insert(ctx, vectordb.CollectionDocuments, docs))

	hits, err := idx.Search(ctx, vectordb.CollectionDocuments, []float32{1, 0, 0}, 5)
	gt.NoError(t, err)
	gt.A(t, hits).Length(2)
	gt.Equal(t, hits[0].ID, "a")
	gt.Number(t, hits[0].Distance).Less(0.01)
	gt.Number(t, hits[1].Distance).Greater(hits[0].Distance)
	gt.Equal(t, hits[0].Metadata["doc_name"], "policy.md")
}

func TestChromemCollectionsIsolated(t *testing.T) {
	ctx := context.Background()
	idx, err := vectordb.NewChromem("")
	gt.NoError(t, err)

	gt.NoError(t, idx.Insert(ctx, vectordb.CollectionSearchMemory, []vectordb.Doc{
		{ID: "m1", Content: "cached search summary", Embedding: []float32{1, 0, 0}},
	}))

	hits, err := idx.Search(ctx, vectordb.CollectionDocuments, []float32{1, 0, 0}, 1)
	gt.NoError(t, err)
	gt.A(t, hits).Length(0)
}
